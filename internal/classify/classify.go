// Package classify is the gateway between the triage pipeline and the LLM
// provider. It owns the call timeout, clamps scores on success, and fails
// open on any provider error: a missed critical message is worse than a
// spurious notification.
package classify

import (
	"context"
	"time"

	"github.com/linnemanlabs/go-core/log"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/bmhenry/classy-slack-notifier/internal/llm"
	"github.com/bmhenry/classy-slack-notifier/internal/rules"
	"github.com/bmhenry/classy-slack-notifier/internal/triage"
)

// FallbackExplanation accompanies the threshold-valued score substituted
// when the provider is unreachable, times out, or replies with garbage.
const FallbackExplanation = "classification unavailable — notifying as a precaution"

// Gateway implements triage.Classifier over an llm.Provider.
type Gateway struct {
	provider llm.Provider
	logger   log.Logger
	metrics  *triage.Metrics
	tracer   trace.Tracer
}

// New creates a classifier gateway.
func New(provider llm.Provider, logger log.Logger, metrics *triage.Metrics) *Gateway {
	if logger == nil {
		logger = log.Nop()
	}
	return &Gateway{
		provider: provider,
		logger:   logger,
		metrics:  metrics,
		tracer:   otel.Tracer("github.com/bmhenry/classy-slack-notifier/internal/classify"),
	}
}

// Classify scores the message's urgency. It always returns a complete
// Classification: on success the score is clamped into [1,5]; on any failure
// it is the configured threshold, which by construction is enough to alert.
func (g *Gateway) Classify(ctx context.Context, m *triage.Message, rs *rules.RuleSet) triage.Classification {
	ctx, span := g.tracer.Start(ctx, "classify",
		trace.WithAttributes(attribute.String("classy.provider", g.provider.Name())),
	)
	defer span.End()

	ctx, cancel := context.WithTimeout(ctx, rs.ClassifyTimeout)
	defer cancel()

	start := time.Now()
	verdict, err := g.provider.Classify(ctx, &llm.Request{
		Model:        rs.Model,
		SystemPrompt: rs.SystemPrompt,
		Source:       m.SourceName,
		Sender:       m.SenderName,
		Direct:       m.Direct,
		Body:         m.Body,
	})
	elapsed := time.Since(start)

	if err != nil {
		g.logger.Warn(ctx, "classifier unavailable, failing open",
			"provider", g.provider.Name(),
			"error", err.Error(),
			"elapsed", elapsed.Seconds(),
		)
		g.metrics.FailOpensTotal.Inc()
		g.metrics.ClassifyDuration.WithLabelValues(g.provider.Name(), "fail_open").Observe(elapsed.Seconds())
		span.SetAttributes(attribute.Bool("classy.fail_open", true))
		return triage.Classification{
			Urgency:     rs.UrgencyThreshold,
			Explanation: FallbackExplanation,
		}
	}

	g.metrics.ClassifyDuration.WithLabelValues(g.provider.Name(), "ok").Observe(elapsed.Seconds())

	urgency := clamp(verdict.Urgency)
	span.SetAttributes(attribute.Int("classy.urgency", urgency))
	return triage.Classification{
		Urgency:     urgency,
		Explanation: verdict.Explanation,
	}
}

// clamp bounds a provider score into the valid 1-5 range.
func clamp(urgency int) int {
	if urgency < 1 {
		return 1
	}
	if urgency > 5 {
		return 5
	}
	return urgency
}
