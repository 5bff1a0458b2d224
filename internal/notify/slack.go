// Package notify forwards routing and health events to Slack.
package notify

import (
	"context"
	"fmt"

	slackapi "github.com/slack-go/slack"

	"github.com/soyeahso/crmdesk/internal/config"
	"github.com/soyeahso/crmdesk/internal/domain"
	"github.com/soyeahso/crmdesk/internal/hooks"
	"github.com/soyeahso/crmdesk/internal/logging"
)

// hookName identifies the notifier's handlers on the hook manager.
const hookName = "slack-notify"

// poster is the subset of the Slack API the notifier calls.
type poster interface {
	PostMessageContext(ctx context.Context, channelID string, options ...slackapi.MsgOption) (string, string, error)
}

// Slack posts handoff and health alerts to one channel.
type Slack struct {
	client      poster
	channel     string
	minPriority domain.Urgency
	log         *logging.Logger
}

// Opts holds parameters for creating a Slack notifier.
type Opts struct {
	Token       string
	Channel     string
	MinPriority domain.Urgency
	// Client replaces the real Slack API, for tests.
	Client poster
}

// NewSlack creates a notifier. A token is required unless Client is set.
func NewSlack(opts Opts, log *logging.Logger) (*Slack, error) {
	if opts.Client == nil && opts.Token == "" {
		return nil, fmt.Errorf("slack: bot token is required")
	}
	if opts.Channel == "" {
		return nil, fmt.Errorf("slack: channel is required")
	}
	client := opts.Client
	if client == nil {
		client = slackapi.New(opts.Token)
	}
	minPriority := opts.MinPriority
	if minPriority.Rank() == 0 {
		minPriority = domain.UrgencyHigh
	}
	return &Slack{client: client, channel: opts.Channel, minPriority: minPriority, log: log.Sub("notify.slack")}, nil
}

// FromConfig returns nil, nil when Slack is not configured.
func FromConfig(cfg config.SlackConfig, log *logging.Logger) (*Slack, error) {
	if !cfg.Enabled() {
		return nil, nil
	}
	return NewSlack(Opts{
		Token:       cfg.Token,
		Channel:     cfg.Channel,
		MinPriority: domain.Urgency(cfg.MinPriority),
	}, log)
}

// Register subscribes the notifier to handoff and health events.
func (s *Slack) Register(h *hooks.Manager) {
	h.On(hooks.EventAgentHandoff, hookName, s.onHandoff)
	h.On(hooks.EventHealthDegraded, hookName, s.onHealthDegraded)
}

func (s *Slack) onHandoff(ctx context.Context, p hooks.Payload) error {
	if domain.Urgency(p.String("priority")).Rank() < s.minPriority.Rank() {
		return nil
	}
	return s.post(ctx, HandoffText(p))
}

func (s *Slack) onHealthDegraded(ctx context.Context, p hooks.Payload) error {
	return s.post(ctx, HealthText(p))
}

func (s *Slack) post(ctx context.Context, text string) error {
	if _, _, err := s.client.PostMessageContext(ctx, s.channel, slackapi.MsgOptionText(text, false)); err != nil {
		s.log.Warn().Err(err).Str("channel", s.channel).Msg("slack post failed")
		return fmt.Errorf("slack: post message: %w", err)
	}
	return nil
}

// HandoffText renders an agent_handoff payload.
func HandoffText(p hooks.Payload) string {
	text := fmt.Sprintf(":arrows_counterclockwise: *Handoff* %s → %s (%s priority)\n%s",
		p.String("fromAgent"), p.String("toAgent"), p.String("priority"), p.String("reason"))
	if sid := p.String("sessionId"); sid != "" {
		text += "\nsession: `" + sid + "`"
	}
	return text
}

// HealthText renders a health_degraded payload.
func HealthText(p hooks.Payload) string {
	text := ":warning: *Model health degraded*"
	if failing, ok := p.Data["failing"].([]string); ok && len(failing) > 0 {
		text += "\nfailing:"
		for _, m := range failing {
			text += " `" + m + "`"
		}
	}
	return text
}
