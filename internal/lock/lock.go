// Package lock serializes mutations of a single ticket across goroutines and replicas.
package lock

import (
	"context"
	"errors"
	"time"
)

// ErrNotAcquired is returned when the wait budget ran out before the lock was free.
var ErrNotAcquired = errors.New("lock not acquired")

// Locker grants exclusive access to a key. The returned release func is safe to call once.
type Locker interface {
	Lock(ctx context.Context, key string) (release func(), err error)
}

// Options bound acquisition.
type Options struct {
	Wait  time.Duration
	TTL   time.Duration
	Retry time.Duration
}

func (o Options) withDefaults() Options {
	if o.Wait <= 0 {
		o.Wait = 5 * time.Second
	}
	if o.TTL <= 0 {
		o.TTL = 30 * time.Second
	}
	if o.Retry <= 0 {
		o.Retry = 50 * time.Millisecond
	}
	return o
}

// TicketKey namespaces a ticket lock.
func TicketKey(tenantID, ticketID string) string {
	return "helpdesk:lock:ticket:" + tenantID + ":" + ticketID
}
