// Package desktop raises desktop notifications through libnotify's
// notify-send command.
package desktop

import (
	"context"
	"fmt"
	"os/exec"

	"github.com/linnemanlabs/go-core/log"

	"github.com/bmhenry/classy-slack-notifier/internal/triage"
)

const defaultCommand = "notify-send"

// Notifier implements triage.Notifier by shelling out to notify-send.
type Notifier struct {
	command string
	logger  log.Logger
}

// New creates a desktop notifier.
func New(logger log.Logger) *Notifier {
	if logger == nil {
		logger = log.Nop()
	}
	return &Notifier{
		command: defaultCommand,
		logger:  logger,
	}
}

// Notify sends one notification. Fire-and-forget from the pipeline's point
// of view: the returned error is for logging only.
func (n *Notifier) Notify(ctx context.Context, a *triage.Alert) error {
	args := buildArgs(a)

	cmd := exec.CommandContext(ctx, n.command, args...)
	if err := cmd.Run(); err != nil {
		return fmt.Errorf("%s: %w", n.command, err)
	}

	n.logger.Info(ctx, "notification sent",
		"title", a.Title,
		"priority", string(a.Priority),
		"expire_ms", a.Expiry.Milliseconds(),
	)
	return nil
}

// buildArgs translates an alert into notify-send arguments. Expiry converts
// to the milliseconds libnotify expects.
func buildArgs(a *triage.Alert) []string {
	return []string{
		"--urgency=" + string(a.Priority),
		fmt.Sprintf("--expire-time=%d", a.Expiry.Milliseconds()),
		a.Title,
		a.Body,
	}
}
