package triage

import (
	"context"

	"github.com/linnemanlabs/go-core/log"
	"github.com/oklog/ulid/v2"

	"github.com/bmhenry/classy-slack-notifier/internal/rules"
)

// Classifier scores a message's urgency under the given policy. It never
// fails: implementations collapse upstream errors into a threshold-valued
// fallback so the caller cannot tell a real score from a precautionary one.
type Classifier interface {
	Classify(ctx context.Context, m *Message, rs *rules.RuleSet) Classification
}

// Notifier delivers a rendered alert to the user. Fire-and-forget: the
// pipeline logs a delivery failure and moves on.
type Notifier interface {
	Notify(ctx context.Context, a *Alert) error
}

// Service sequences one inbound message through dedup, rule evaluation,
// classification, and alert dispatch. Processing is one message at a time;
// the only blocking step is the classifier call, bounded by its own timeout.
type Service struct {
	window     *Window
	source     *rules.Source
	classifier Classifier
	notifier   Notifier
	selfID     string
	logger     log.Logger
	metrics    *Metrics
}

// NewService creates the pipeline coordinator. selfID is the recipient's own
// chat user ID, used by the rule engine to recognize self-authored messages.
func NewService(source *rules.Source, classifier Classifier, notifier Notifier, selfID string, logger log.Logger, metrics *Metrics) *Service {
	if logger == nil {
		logger = log.Nop()
	}
	return &Service{
		window:     NewWindow(DedupCapacity),
		source:     source,
		classifier: classifier,
		notifier:   notifier,
		selfID:     selfID,
		logger:     logger,
		metrics:    metrics,
	}
}

// Handle triages one message. eventID must be stable across redelivery of
// the same event. Nothing about a single message's processing can fail the
// pipeline: every outcome is terminal for that message only.
func (s *Service) Handle(ctx context.Context, eventID string, m *Message) {
	L := s.logger.With(
		"triage_id", ulid.Make().String(),
		"source", m.SourceName,
		"sender", m.SenderName,
	)

	if !s.window.Observe(eventID) {
		L.Debug(ctx, "duplicate event", "event_id", eventID)
		s.metrics.DuplicatesTotal.Inc()
		s.metrics.EventsTotal.WithLabelValues("duplicate").Inc()
		return
	}

	rs := s.source.Current()
	d := Evaluate(m, rs, s.selfID)
	s.metrics.DecisionsTotal.WithLabelValues(string(d.Action)).Inc()

	switch d.Action {
	case rules.ActionDrop:
		L.Debug(ctx, "message dropped", "rule", d.Rule)
		s.metrics.EventsTotal.WithLabelValues("drop").Inc()

	case rules.ActionSurface:
		a := RenderAlert(m, "Matched rule: "+d.Rule, 0, rs.NotificationTimeout)
		s.dispatch(ctx, L, a)
		L.Info(ctx, "message surfaced", "rule", d.Rule)
		s.metrics.EventsTotal.WithLabelValues("surface").Inc()

	case rules.ActionClassify:
		c := s.classifier.Classify(ctx, m, rs)
		s.metrics.ClassifyUrgency.Observe(float64(c.Urgency))

		if c.Urgency < rs.UrgencyThreshold {
			L.Info(ctx, "classified below threshold",
				"rule", d.Rule,
				"urgency", c.Urgency,
				"threshold", rs.UrgencyThreshold,
			)
			s.metrics.EventsTotal.WithLabelValues("below_threshold").Inc()
			return
		}

		a := RenderAlert(m, c.Explanation, c.Urgency, rs.NotificationTimeout)
		s.dispatch(ctx, L, a)
		L.Info(ctx, "classified and alerted",
			"rule", d.Rule,
			"urgency", c.Urgency,
			"threshold", rs.UrgencyThreshold,
		)
		s.metrics.EventsTotal.WithLabelValues("alert").Inc()
	}
}

// dispatch hands the alert to the sink. Delivery failure is logged, never
// retried, never escalated.
func (s *Service) dispatch(ctx context.Context, L log.Logger, a *Alert) {
	if err := s.notifier.Notify(ctx, a); err != nil {
		L.Error(ctx, err, "alert dispatch failed", "title", a.Title)
		s.metrics.NotificationsTotal.WithLabelValues(string(a.Priority), "error").Inc()
		return
	}
	s.metrics.NotificationsTotal.WithLabelValues(string(a.Priority), "ok").Inc()
}
