package service

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/spec-kit/helpdesk-service/internal/config"
	"github.com/spec-kit/helpdesk-service/internal/events"
	"github.com/spec-kit/helpdesk-service/internal/notify"
	"github.com/spec-kit/helpdesk-service/internal/observability"
	apperrors "github.com/spec-kit/helpdesk-service/pkg/util/errorutil"
)

// NotificationSender delivers one notification.
type NotificationSender interface {
	Send(ctx context.Context, n notify.Notification) error
}

// NotificationService queues escalation notifications and delivers them from
// a worker pool. Delivery never blocks the ticket mutation that requested it.
type NotificationService struct {
	dispatcher events.Dispatcher
	sender     NotificationSender
	metrics    *observability.Metrics
	logger     *zap.Logger
	cfg        config.NotificationConfig

	queue  chan notify.Notification
	wg     sync.WaitGroup
	mu     sync.Mutex
	cancel context.CancelFunc
}

// NewNotificationService creates the service.
func NewNotificationService(dispatcher events.Dispatcher, sender NotificationSender, metrics *observability.Metrics, logger *zap.Logger, cfg config.NotificationConfig) *NotificationService {
	if logger == nil {
		logger = zap.NewNop()
	}
	size := cfg.QueueSize
	if size <= 0 {
		size = 256
	}
	return &NotificationService{
		dispatcher: dispatcher,
		sender:     sender,
		metrics:    metrics,
		logger:     logger,
		cfg:        cfg,
		queue:      make(chan notify.Notification, size),
	}
}

// RegisterHandlers subscribes to events.
func (n *NotificationService) RegisterHandlers() {
	if n.dispatcher == nil {
		return
	}
	n.dispatcher.Subscribe(events.EventEscalationNotify, n.handleEscalationNotify)
	n.dispatcher.Subscribe(events.EventTicketCreated, n.logEvent)
	n.dispatcher.Subscribe(events.EventTicketStatusChanged, n.logEvent)
	n.dispatcher.Subscribe(events.EventTicketAssigned, n.logEvent)
	n.dispatcher.Subscribe(events.EventSLABreached, n.logEvent)
	n.dispatcher.Subscribe(events.EventTicketRedFlagged, n.logEvent)
}

// Start launches the delivery workers.
func (n *NotificationService) Start(ctx context.Context) {
	n.mu.Lock()
	defer n.mu.Unlock()
	if n.cancel != nil {
		return
	}
	runCtx, cancel := context.WithCancel(ctx)
	n.cancel = cancel
	workers := n.cfg.Workers
	if workers <= 0 {
		workers = 1
	}
	for i := 0; i < workers; i++ {
		n.wg.Add(1)
		go n.work(runCtx)
	}
}

// Stop stops the workers after they drain what is already queued, or when ctx expires.
func (n *NotificationService) Stop(ctx context.Context) error {
	n.mu.Lock()
	cancel := n.cancel
	n.cancel = nil
	n.mu.Unlock()
	if cancel == nil {
		return nil
	}
	cancel()
	done := make(chan struct{})
	go func() {
		n.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Enqueue hands a notification to the workers. A full queue drops it.
func (n *NotificationService) Enqueue(notification notify.Notification) bool {
	select {
	case n.queue <- notification:
		return true
	default:
		err := apperrors.NewNotificationFailed(notification.Channel, fmt.Errorf("queue full"))
		n.metrics.RecordNotification(notification.Channel, err)
		n.logger.Error("notification dropped",
			zap.String("ticket_id", notification.TicketID),
			zap.Int64("rule_id", notification.RuleID),
			zap.Error(err))
		return false
	}
}

func (n *NotificationService) work(ctx context.Context) {
	defer n.wg.Done()
	for {
		select {
		case notification := <-n.queue:
			n.deliver(ctx, notification)
		case <-ctx.Done():
			for {
				select {
				case notification := <-n.queue:
					n.deliver(context.Background(), notification)
				default:
					return
				}
			}
		}
	}
}

func (n *NotificationService) deliver(ctx context.Context, notification notify.Notification) {
	timeout := n.cfg.Timeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	sendCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	err := n.sender.Send(sendCtx, notification)
	n.metrics.RecordNotification(notification.Channel, err)
	if err != nil {
		n.logger.Error("notification failed",
			zap.String("tenant_id", notification.TenantID),
			zap.String("ticket_id", notification.TicketID),
			zap.Int64("rule_id", notification.RuleID),
			zap.String("channel", notification.Channel),
			zap.Error(apperrors.NewNotificationFailed(notification.Channel, err)))
		return
	}
	n.logger.Debug("notification delivered",
		zap.String("ticket_id", notification.TicketID),
		zap.String("channel", notification.Channel))
}

func (n *NotificationService) handleEscalationNotify(_ context.Context, event events.Event) error {
	payload, ok := event.Payload.(events.EscalationNotifyPayload)
	if !ok {
		return fmt.Errorf("unexpected payload %T for %s", event.Payload, event.Type)
	}
	id := event.ID
	if id == "" {
		id = uuid.NewString()
	}
	n.Enqueue(notify.Notification{
		ID:           id,
		Channel:      payload.Channel,
		TenantID:     event.TenantID,
		TicketID:     event.TicketID,
		TicketNumber: payload.TicketNumber,
		Title:        payload.Title,
		Priority:     string(payload.Priority),
		Status:       string(payload.Status),
		RuleID:       payload.RuleID,
		RuleName:     payload.RuleName,
		Trigger:      string(payload.Trigger),
		Note:         payload.Note,
		CreatedAt:    event.Timestamp,
	})
	return nil
}

func (n *NotificationService) logEvent(_ context.Context, event events.Event) error {
	n.logger.Debug(string(event.Type),
		zap.String("tenant_id", event.TenantID),
		zap.String("ticket_id", event.TicketID),
		zap.Any("payload", event.Payload))
	return nil
}
