package triage

import (
	"fmt"
	"time"
)

// Priority is the coarse alert level handed to the notification sink.
type Priority string

const (
	PriorityLow      Priority = "low"
	PriorityNormal   Priority = "normal"
	PriorityCritical Priority = "critical"
)

// bodyLimit caps how much of the message text an alert carries. The cut is a
// hard byte cap, no word-boundary snapping.
const bodyLimit = 200

// Alert is a rendered notification, built for a single dispatch and never
// stored.
type Alert struct {
	Title    string
	Body     string
	Priority Priority
	Expiry   time.Duration
}

// RenderAlert builds the notification for a message. urgency is the
// classification score, or 0 when the message was surfaced without
// classification (rendered at normal priority).
func RenderAlert(m *Message, explanation string, urgency int, expiry time.Duration) *Alert {
	var title string
	if m.Direct {
		title = fmt.Sprintf("Slack: DM from @%s", m.SenderName)
	} else {
		title = fmt.Sprintf("Slack: #%s", m.SourceName)
	}

	body := m.Body
	if len(body) > bodyLimit {
		body = body[:bodyLimit]
	}

	return &Alert{
		Title:    title,
		Body:     body + "\n\n" + explanation,
		Priority: priorityFor(urgency),
		Expiry:   expiry,
	}
}

// priorityFor maps a 1-5 urgency score to an alert priority. Zero means no
// score was computed (surface path) and maps to normal.
func priorityFor(urgency int) Priority {
	switch {
	case urgency == 0:
		return PriorityNormal
	case urgency <= 2:
		return PriorityLow
	case urgency <= 3:
		return PriorityNormal
	default:
		return PriorityCritical
	}
}
