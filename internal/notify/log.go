package notify

import (
	"context"

	"go.uber.org/zap"
)

// LogSender writes notifications to the service log.
type LogSender struct {
	logger *zap.Logger
}

func NewLogSender(logger *zap.Logger) *LogSender {
	return &LogSender{logger: logger}
}

func (s *LogSender) Name() string { return ChannelLog }

func (s *LogSender) Send(_ context.Context, n Notification) error {
	s.logger.Info("escalation notification",
		zap.String("tenant_id", n.TenantID),
		zap.String("ticket_id", n.TicketID),
		zap.String("ticket_number", n.TicketNumber),
		zap.Int64("rule_id", n.RuleID),
		zap.String("trigger", n.Trigger))
	return nil
}
