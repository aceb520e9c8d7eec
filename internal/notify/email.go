package notify

import (
	"context"
	"fmt"
	"strings"

	"gopkg.in/gomail.v2"
)

// EmailConfig carries SMTP settings.
type EmailConfig struct {
	Host     string
	Port     int
	Username string
	Password string
	From     string
	To       []string
}

type dialer interface {
	DialAndSend(m ...*gomail.Message) error
}

// EmailSender sends notifications through SMTP.
type EmailSender struct {
	cfg    EmailConfig
	dialer dialer
}

// NewEmailSender builds the SMTP sender.
func NewEmailSender(cfg EmailConfig) *EmailSender {
	return &EmailSender{
		cfg:    cfg,
		dialer: gomail.NewDialer(cfg.Host, cfg.Port, cfg.Username, cfg.Password),
	}
}

func (s *EmailSender) Name() string { return ChannelEmail }

func (s *EmailSender) Send(ctx context.Context, n Notification) error {
	if len(s.cfg.To) == 0 {
		return fmt.Errorf("email channel has no recipients")
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	return s.dialer.DialAndSend(s.message(n))
}

func (s *EmailSender) message(n Notification) *gomail.Message {
	msg := gomail.NewMessage()
	msg.SetHeader("From", s.cfg.From)
	msg.SetHeader("To", s.cfg.To...)
	msg.SetHeader("Subject", n.Subject())
	msg.SetBody("text/plain", renderText(n))
	return msg
}

func renderText(n Notification) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Ticket %s (%s) was escalated.\n\n", n.TicketNumber, n.Title)
	fmt.Fprintf(&b, "Tenant:   %s\n", n.TenantID)
	fmt.Fprintf(&b, "Priority: %s\n", n.Priority)
	fmt.Fprintf(&b, "Status:   %s\n", n.Status)
	fmt.Fprintf(&b, "Trigger:  %s\n", n.Trigger)
	if n.RuleName != "" {
		fmt.Fprintf(&b, "Rule:     %s (#%d)\n", n.RuleName, n.RuleID)
	}
	if n.Note != "" {
		fmt.Fprintf(&b, "\n%s\n", n.Note)
	}
	return b.String()
}
