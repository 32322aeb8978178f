// Package llm defines the provider boundary for urgency scoring backends.
package llm

import (
	"context"
	"fmt"
)

// Request is the context sent to a provider for one message. It carries only
// the current message, never prior conversation history.
type Request struct {
	Model        string
	SystemPrompt string

	// Source is the channel display name, or "DM" for direct conversations.
	Source string
	Sender string
	Direct bool
	Body   string
}

// Verdict is a provider's raw urgency assessment. Urgency is unclamped here;
// range enforcement belongs to the caller.
type Verdict struct {
	Urgency     int
	Explanation string
}

// Provider is a backend that scores message urgency. Implementations honor
// ctx cancellation and deadlines; any error means no usable verdict.
type Provider interface {
	Name() string
	Classify(ctx context.Context, req *Request) (*Verdict, error)
}

// UserContent formats the message context into the user turn sent to a model.
func UserContent(req *Request) string {
	direct := "no"
	if req.Direct {
		direct = "yes"
	}
	return fmt.Sprintf("Channel: %s\nSender: %s\nDM: %s\nMessage: %s",
		req.Source, req.Sender, direct, req.Body)
}
