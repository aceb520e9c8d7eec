// Package notify delivers escalation notifications over the configured channels.
package notify

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/spec-kit/helpdesk-service/internal/config"
)

// Channel names accepted in notify actions.
const (
	ChannelEmail   = "email"
	ChannelWebhook = "webhook"
	ChannelKafka   = "kafka"
	ChannelLog     = "log"
)

// ErrUnknownChannel is returned when no sender is registered for a channel.
var ErrUnknownChannel = errors.New("unknown notification channel")

// Notification is the payload handed to every channel.
type Notification struct {
	ID           string    `json:"id"`
	Channel      string    `json:"channel"`
	TenantID     string    `json:"tenant_id"`
	TicketID     string    `json:"ticket_id"`
	TicketNumber string    `json:"ticket_number"`
	Title        string    `json:"title"`
	Priority     string    `json:"priority"`
	Status       string    `json:"status"`
	RuleID       int64     `json:"rule_id"`
	RuleName     string    `json:"rule_name,omitempty"`
	Trigger      string    `json:"trigger"`
	Note         string    `json:"note,omitempty"`
	CreatedAt    time.Time `json:"created_at"`
}

// Subject renders a one-line summary.
func (n Notification) Subject() string {
	return fmt.Sprintf("[%s] %s escalated (%s, %s)", n.TicketNumber, n.Title, n.Trigger, n.Priority)
}

// Sender delivers a notification over one channel.
type Sender interface {
	Name() string
	Send(ctx context.Context, n Notification) error
}

// Router dispatches notifications to the sender registered for their channel.
type Router struct {
	senders map[string]Sender
}

// NewRouter registers senders by name; nil senders are skipped.
func NewRouter(senders ...Sender) *Router {
	r := &Router{senders: map[string]Sender{}}
	for _, s := range senders {
		if s != nil {
			r.senders[s.Name()] = s
		}
	}
	return r
}

// Send routes n to its channel.
func (r *Router) Send(ctx context.Context, n Notification) error {
	sender, ok := r.senders[n.Channel]
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnknownChannel, n.Channel)
	}
	return sender.Send(ctx, n)
}

// Channels lists the registered channel names.
func (r *Router) Channels() []string {
	names := make([]string, 0, len(r.senders))
	for name := range r.senders {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Close releases senders holding connections.
func (r *Router) Close() error {
	var errs []error
	for _, s := range r.senders {
		if c, ok := s.(interface{ Close() error }); ok {
			if err := c.Close(); err != nil {
				errs = append(errs, err)
			}
		}
	}
	return errors.Join(errs...)
}

// FromConfig builds a router with every channel the configuration enables.
// The log channel is always present.
func FromConfig(cfg config.NotificationConfig, logger *zap.Logger) *Router {
	senders := []Sender{NewLogSender(logger)}
	if strings.TrimSpace(cfg.SMTPHost) != "" {
		senders = append(senders, NewEmailSender(EmailConfig{
			Host:     cfg.SMTPHost,
			Port:     cfg.SMTPPort,
			Username: cfg.SMTPUser,
			Password: cfg.SMTPPassword,
			From:     cfg.EmailFrom,
			To:       cfg.EmailTo,
		}))
	}
	if strings.TrimSpace(cfg.WebhookURL) != "" {
		senders = append(senders, NewWebhookSender(cfg.WebhookURL, cfg.Timeout))
	}
	if len(cfg.KafkaBrokers) > 0 {
		senders = append(senders, NewKafkaSender(cfg.KafkaBrokers, cfg.KafkaTopic))
	}
	return NewRouter(senders...)
}
