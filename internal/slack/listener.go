// Package slack adapts Slack Socket Mode events into triage messages. It
// owns the persistent connection, event parsing, display-name resolution,
// and nothing else: every triage decision happens downstream.
package slack

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/linnemanlabs/go-core/log"
	"github.com/slack-go/slack"
	"github.com/slack-go/slack/slackevents"
	"github.com/slack-go/slack/socketmode"

	"github.com/bmhenry/classy-slack-notifier/internal/triage"
)

// Handler consumes parsed messages. Satisfied by triage.Service.
type Handler interface {
	Handle(ctx context.Context, eventID string, m *triage.Message)
}

// nameAPI is the slice of the Slack Web API used for display-name lookups.
type nameAPI interface {
	GetConversationInfoContext(ctx context.Context, input *slack.GetConversationInfoInput) (*slack.Channel, error)
	GetUserInfoContext(ctx context.Context, user string) (*slack.User, error)
}

// ignoredSubtypes carry no message content worth triaging.
var ignoredSubtypes = map[string]struct{}{
	"channel_join":      {},
	"channel_leave":     {},
	"channel_topic":     {},
	"channel_purpose":   {},
	"channel_name":      {},
	"channel_archive":   {},
	"channel_unarchive": {},
	"group_join":        {},
	"group_leave":       {},
	"group_topic":       {},
	"group_purpose":     {},
	"group_name":        {},
	"group_archive":     {},
	"group_unarchive":   {},
}

// Listener wraps a Socket Mode connection and converts raw message events
// into triage.Message values for a Handler.
type Listener struct {
	api    nameAPI
	sock   *socketmode.Client
	selfID string
	logger log.Logger

	mu           sync.Mutex
	channelNames map[string]string
	userNames    map[string]string
}

// New connects the Web API client and resolves the recipient's own user ID.
// The Socket Mode connection itself is established by Run.
func New(botToken, appToken string, logger log.Logger) (*Listener, error) {
	if logger == nil {
		logger = log.Nop()
	}

	api := slack.New(botToken, slack.OptionAppLevelToken(appToken))
	auth, err := api.AuthTest()
	if err != nil {
		return nil, fmt.Errorf("slack auth test: %w", err)
	}

	return &Listener{
		api:          api,
		sock:         socketmode.New(api),
		selfID:       auth.UserID,
		logger:       logger,
		channelNames: make(map[string]string),
		userNames:    make(map[string]string),
	}, nil
}

// SelfID returns the authenticated user's own Slack user ID.
func (l *Listener) SelfID() string { return l.selfID }

// Run consumes events until ctx is canceled, handing each parsed message to
// h. The underlying client manages reconnects and backoff itself.
func (l *Listener) Run(ctx context.Context, h Handler) error {
	go l.consume(ctx, h)
	return l.sock.RunContext(ctx)
}

func (l *Listener) consume(ctx context.Context, h Handler) {
	for {
		select {
		case <-ctx.Done():
			return
		case evt, ok := <-l.sock.Events:
			if !ok {
				return
			}
			switch evt.Type {
			case socketmode.EventTypeConnecting:
				l.logger.Info(ctx, "socket mode connecting")
			case socketmode.EventTypeConnected:
				l.logger.Info(ctx, "socket mode connected")
			case socketmode.EventTypeConnectionError:
				l.logger.Warn(ctx, "socket mode connection error")
			case socketmode.EventTypeEventsAPI:
				payload, ok := evt.Data.(slackevents.EventsAPIEvent)
				if !ok {
					continue
				}
				if evt.Request != nil {
					l.sock.Ack(*evt.Request)
				}
				if payload.Type != slackevents.CallbackEvent {
					continue
				}
				ev, ok := payload.InnerEvent.Data.(*slackevents.MessageEvent)
				if !ok {
					continue
				}
				id, msg := l.parseEvent(ctx, ev)
				if msg == nil {
					continue
				}
				l.handle(ctx, h, id, msg)
			}
		}
	}
}

// handle isolates the pipeline from a panicking message: one bad event must
// not take down the consumer loop.
func (l *Listener) handle(ctx context.Context, h Handler, id string, msg *triage.Message) {
	defer func() {
		if r := recover(); r != nil {
			l.logger.Error(ctx, fmt.Errorf("panic: %v", r), "message handling panicked", "event_id", id)
		}
	}()
	h.Handle(ctx, id, msg)
}

// parseEvent converts a raw message event into a triage.Message. A nil
// message means the event is silently dropped: no stable identifier, an
// ignored subtype, or missing required fields.
func (l *Listener) parseEvent(ctx context.Context, ev *slackevents.MessageEvent) (string, *triage.Message) {
	id := ev.ClientMsgID
	if id == "" {
		id = ev.TimeStamp
	}
	if id == "" {
		l.logger.Debug(ctx, "event has no client_msg_id or ts, dropping")
		return "", nil
	}

	if _, ok := ignoredSubtypes[ev.SubType]; ok {
		l.logger.Debug(ctx, "ignored subtype, dropping", "subtype", ev.SubType)
		return "", nil
	}

	if ev.Channel == "" {
		l.logger.Debug(ctx, "event missing channel, dropping")
		return "", nil
	}

	automated := ev.BotID != "" || ev.SubType == "bot_message"

	senderID := ev.User
	if senderID == "" {
		// bot_message events may lack a user field; acceptable only when
		// the sender is still identifiable as a bot.
		if !automated {
			l.logger.Debug(ctx, "event missing user, dropping")
			return "", nil
		}
		senderID = ev.BotID
		if senderID == "" {
			senderID = "unknown_bot"
		}
	}

	direct := ev.ChannelType == "im" || ev.ChannelType == "mpim"

	return id, &triage.Message{
		SourceID:   ev.Channel,
		SourceName: l.resolveChannel(ctx, ev.Channel, direct),
		SenderID:   senderID,
		SenderName: l.resolveUser(ctx, senderID),
		Body:       ev.Text,
		ThreadRef:  ev.ThreadTimeStamp,
		Direct:     direct,
		Automated:  automated,
		Mentioned:  strings.Contains(ev.Text, "<@"+l.selfID+">"),
	}
}

// resolveChannel returns a display name for the channel, caching lookups.
// Direct conversations have no meaningful name and resolve to "DM"; lookup
// failures fall back to the raw ID.
func (l *Listener) resolveChannel(ctx context.Context, channelID string, direct bool) string {
	l.mu.Lock()
	if name, ok := l.channelNames[channelID]; ok {
		l.mu.Unlock()
		return name
	}
	l.mu.Unlock()

	name := "DM"
	if !direct {
		info, err := l.api.GetConversationInfoContext(ctx, &slack.GetConversationInfoInput{
			ChannelID: channelID,
		})
		if err != nil {
			l.logger.Warn(ctx, "channel name lookup failed, using ID", "channel_id", channelID, "error", err.Error())
			name = channelID
		} else {
			name = info.Name
		}
	}

	l.mu.Lock()
	l.channelNames[channelID] = name
	l.mu.Unlock()
	return name
}

// resolveUser returns a display name for the user, caching lookups. Lookup
// failures fall back to the raw ID.
func (l *Listener) resolveUser(ctx context.Context, userID string) string {
	l.mu.Lock()
	if name, ok := l.userNames[userID]; ok {
		l.mu.Unlock()
		return name
	}
	l.mu.Unlock()

	name := userID
	if info, err := l.api.GetUserInfoContext(ctx, userID); err != nil {
		l.logger.Warn(ctx, "user name lookup failed, using ID", "user_id", userID, "error", err.Error())
	} else if info.Profile.DisplayName != "" {
		name = info.Profile.DisplayName
	} else if info.Profile.RealName != "" {
		name = info.Profile.RealName
	} else if info.RealName != "" {
		name = info.RealName
	}

	l.mu.Lock()
	l.userNames[userID] = name
	l.mu.Unlock()
	return name
}
