package triage

import "github.com/bmhenry/classy-slack-notifier/internal/rules"

// Message is one inbound chat event, built once by the transport adapter and
// never mutated afterward.
type Message struct {
	// SourceID is the raw channel or conversation identifier.
	SourceID string

	// SourceName is the resolved channel display name, or "DM" for direct
	// conversations.
	SourceName string

	// SenderID is the raw user identifier of the author.
	SenderID string

	// SenderName is the resolved display name of the author.
	SenderName string

	// Body is the message text.
	Body string

	// ThreadRef identifies the parent thread, if any.
	ThreadRef string

	// Direct is true for 1:1 and private group conversations.
	Direct bool

	// Automated is true when the sender is a bot or app, not a person.
	Automated bool

	// Mentioned is true when the message @-mentions the recipient.
	Mentioned bool
}

// Decision is the rule engine's verdict for one message. Rule identifies
// which rule fired ("self", "keyword:pager", "default", ...) and exists only
// for logs and metrics; behavior depends on Action alone.
type Decision struct {
	Action rules.Action
	Rule   string
}

// Classification is an urgency score with an explanation. It is always fully
// populated: on classifier failure the gateway substitutes a threshold-valued
// fallback, so consumers never see a partial or missing score.
type Classification struct {
	Urgency     int // 1..5
	Explanation string
}
