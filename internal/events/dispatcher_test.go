package events

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"go.uber.org/zap"
)

func TestPublishContinuesAfterHandlerError(t *testing.T) {
	d := NewInMemoryDispatcher(zap.NewNop())
	var calls []string
	d.Subscribe(EventTicketCreated, func(context.Context, Event) error {
		calls = append(calls, "first")
		return errors.New("boom")
	})
	d.Subscribe(EventTicketCreated, func(context.Context, Event) error {
		calls = append(calls, "second")
		panic("subscriber bug")
	})
	d.Subscribe(EventTicketCreated, func(context.Context, Event) error {
		calls = append(calls, "third")
		return nil
	})
	d.Subscribe(EventSLABreached, func(context.Context, Event) error {
		calls = append(calls, "other")
		return nil
	})

	assert.NoError(t, d.Publish(context.Background(), Event{Type: EventTicketCreated}))
	assert.Equal(t, []string{"first", "second", "third"}, calls)
}

func TestPublishOnCancelledContext(t *testing.T) {
	bus := NewBus(nil)
	called := false
	bus.Subscribe(EventCommentAdded, func(context.Context, Event) error {
		called = true
		return nil
	})
	bus.Subscribe(EventCommentAdded, nil)
	assert.Equal(t, 1, bus.Subscribers(EventCommentAdded))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	assert.ErrorIs(t, bus.Publish(ctx, Event{Type: EventCommentAdded}), context.Canceled)
	assert.False(t, called)
}
