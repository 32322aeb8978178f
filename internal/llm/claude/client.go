// Package claude scores message urgency via the Anthropic Messages API.
package claude

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"

	"github.com/bmhenry/classy-slack-notifier/internal/llm"
)

// responseTokens bounds the reply; a verdict is a short JSON object.
const responseTokens = 256

// Client implements llm.Provider on the Anthropic SDK.
type Client struct {
	client anthropic.Client
}

// New creates a Claude-backed provider with the given API key.
func New(apiKey string) *Client {
	return &Client{
		client: anthropic.NewClient(option.WithAPIKey(apiKey)),
	}
}

// Name implements llm.Provider.
func (c *Client) Name() string { return "claude" }

// Classify sends the message context to the model and parses the JSON
// verdict out of its text reply.
func (c *Client) Classify(ctx context.Context, req *llm.Request) (*llm.Verdict, error) {
	msg, err := c.client.Messages.New(ctx, anthropic.MessageNewParams{
		Model:     anthropic.Model(req.Model),
		MaxTokens: responseTokens,
		System: []anthropic.TextBlockParam{
			{Text: req.SystemPrompt},
		},
		Messages: []anthropic.MessageParam{
			anthropic.NewUserMessage(anthropic.NewTextBlock(llm.UserContent(req))),
		},
	})
	if err != nil {
		return nil, fmt.Errorf("messages api: %w", err)
	}

	var sb strings.Builder
	for _, block := range msg.Content {
		if text, ok := block.AsAny().(anthropic.TextBlock); ok {
			sb.WriteString(text.Text)
		}
	}

	return parseVerdict(sb.String())
}

type verdictContent struct {
	Urgency *int    `json:"urgency"`
	Reason  *string `json:"reason"`
}

// parseVerdict extracts the {"urgency", "reason"} object from a model reply.
// Models occasionally wrap the object in prose or a code fence, so parsing
// works from the outermost brace pair.
func parseVerdict(reply string) (*llm.Verdict, error) {
	start := strings.Index(reply, "{")
	end := strings.LastIndex(reply, "}")
	if start < 0 || end <= start {
		return nil, fmt.Errorf("no JSON object in reply: %q", reply)
	}

	var vc verdictContent
	if err := json.Unmarshal([]byte(reply[start:end+1]), &vc); err != nil {
		return nil, fmt.Errorf("unmarshal verdict: %w", err)
	}
	if vc.Urgency == nil || vc.Reason == nil {
		return nil, fmt.Errorf("verdict missing required fields: %q", reply)
	}

	return &llm.Verdict{Urgency: *vc.Urgency, Explanation: *vc.Reason}, nil
}
