package events

import (
	"context"
	"fmt"
	"sync"

	"go.uber.org/zap"
)

// EventHandler reacts to one published event.
type EventHandler func(context.Context, Event) error

// Dispatcher fans ticket events out to in-process subscribers.
type Dispatcher interface {
	Publish(ctx context.Context, event Event) error
	Subscribe(eventType EventType, handler EventHandler)
}

// Bus runs subscribers synchronously on the publishing goroutine, in
// registration order. A failing or panicking subscriber is logged and skipped.
type Bus struct {
	logger *zap.Logger

	mu     sync.RWMutex
	topics map[EventType][]EventHandler
}

// NewInMemoryDispatcher returns an empty Bus.
func NewInMemoryDispatcher(logger *zap.Logger) Dispatcher {
	return NewBus(logger)
}

// NewBus builds the bus.
func NewBus(logger *zap.Logger) *Bus {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Bus{logger: logger, topics: map[EventType][]EventHandler{}}
}

// Subscribe appends handler to the event type's subscribers.
func (b *Bus) Subscribe(eventType EventType, handler EventHandler) {
	if handler == nil {
		return
	}
	b.mu.Lock()
	b.topics[eventType] = append(b.topics[eventType], handler)
	b.mu.Unlock()
}

// Publish delivers event to every subscriber. Delivery is best-effort, so it
// only fails when the context is already done.
func (b *Bus) Publish(ctx context.Context, event Event) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	b.mu.RLock()
	subscribers := b.topics[event.Type]
	b.mu.RUnlock()

	for i, handler := range subscribers {
		if err := deliver(ctx, handler, event); err != nil {
			b.logger.Warn("event subscriber failed",
				zap.String("event_type", string(event.Type)),
				zap.String("tenant_id", event.TenantID),
				zap.String("ticket_id", event.TicketID),
				zap.Int("subscriber", i),
				zap.Error(err))
		}
	}
	return nil
}

// Subscribers reports how many handlers listen to eventType.
func (b *Bus) Subscribers(eventType EventType) int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.topics[eventType])
}

func deliver(ctx context.Context, handler EventHandler, event Event) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("subscriber panic: %v", r)
		}
	}()
	return handler(ctx, event)
}
