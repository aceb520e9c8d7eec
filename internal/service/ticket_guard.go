package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/spec-kit/helpdesk-service/internal/domain"
	"github.com/spec-kit/helpdesk-service/internal/events"
	"github.com/spec-kit/helpdesk-service/internal/lock"
	"github.com/spec-kit/helpdesk-service/internal/observability"
	"github.com/spec-kit/helpdesk-service/internal/repository"
	apperrors "github.com/spec-kit/helpdesk-service/pkg/util/errorutil"
)

// Clock returns the current instant. Services default to UTC wall time.
type Clock func() time.Time

func systemClock() time.Time { return time.Now().UTC() }

func clockOrDefault(c Clock) Clock {
	if c == nil {
		return systemClock
	}
	return c
}

// withTicketLock serialises read-modify-write on one ticket.
func withTicketLock(ctx context.Context, locker lock.Locker, metrics *observability.Metrics, tenantID, ticketID string, fn func(context.Context) error) error {
	key := lock.TicketKey(tenantID, ticketID)
	release, err := locker.Lock(ctx, key)
	if err != nil {
		metrics.RecordLockContention()
		return apperrors.NewLockContention(key, err)
	}
	defer release()
	return fn(ctx)
}

// loadTicket reads a tenant-scoped ticket and maps a miss to NOT_FOUND.
func loadTicket(ctx context.Context, tickets repository.TicketRepository, tenantID, ticketID string) (*domain.Ticket, error) {
	ticket, err := tickets.GetByID(ctx, tenantID, ticketID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, apperrors.NewNotFound("ticket", map[string]any{"ticket_id": ticketID})
		}
		return nil, err
	}
	return ticket, nil
}

// saveTicket persists the ticket; a lost version race surfaces as lock contention.
func saveTicket(ctx context.Context, tickets repository.TicketRepository, ticket *domain.Ticket, now time.Time) error {
	ticket.UpdatedAt = now
	if err := tickets.Update(ctx, ticket); err != nil {
		switch {
		case errors.Is(err, repository.ErrVersionConflict):
			return apperrors.NewLockContention(lock.TicketKey(ticket.TenantID, ticket.ID), err)
		case errors.Is(err, pgx.ErrNoRows):
			return apperrors.NewNotFound("ticket", map[string]any{"ticket_id": ticket.ID})
		}
		return err
	}
	return nil
}

// auditTrail writes system comments and structured history rows.
type auditTrail struct {
	comments repository.CommentRepository
	history  repository.TicketHistoryRepository
}

func (a auditTrail) systemComment(ctx context.Context, ticketID, body string, at time.Time) error {
	if a.comments == nil {
		return nil
	}
	name := "system"
	return a.comments.Create(ctx, &domain.Comment{
		TicketID:    ticketID,
		Body:        body,
		AuthorRole:  domain.AuthorRoleSystem,
		AuthorName:  &name,
		IsAutoReply: true,
		CreatedAt:   at,
	})
}

func (a auditTrail) record(ctx context.Context, actor domain.Actor, ticketID string, change domain.TicketChangeType, oldValue, newValue map[string]any, at time.Time) error {
	if a.history == nil {
		return nil
	}
	entry := &domain.TicketHistory{
		TicketID:      ticketID,
		ChangedByRole: actor.Role,
		ChangeType:    change,
		OldValue:      oldValue,
		NewValue:      newValue,
		CreatedAt:     at,
	}
	if actor.ID != "" && actor.Role != domain.ActorRoleSystem {
		id := actor.ID
		entry.ChangedByID = &id
	}
	return a.history.Create(ctx, entry)
}

func publishEvent(ctx context.Context, dispatcher events.Dispatcher, event events.Event) {
	if dispatcher == nil {
		return
	}
	if event.ID == "" {
		event.ID = uuid.NewString()
	}
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now().UTC()
	}
	_ = dispatcher.Publish(ctx, event)
}

func statusChangeMessage(from, to domain.TicketStatus, actor domain.Actor, reason string) string {
	msg := fmt.Sprintf("Status changed %s → %s by %s", from, to, actor.Label())
	if reason = strings.TrimSpace(reason); reason != "" {
		msg += ": " + reason
	}
	return msg
}

// stringPreview shortens body to at most max runes.
func stringPreview(body string, max int) string {
	body = strings.TrimSpace(body)
	runes := []rune(body)
	if len(runes) <= max {
		return body
	}
	if max <= 3 {
		return string(runes[:max])
	}
	return string(runes[:max-3]) + "..."
}

func strPtr(v string) *string {
	if v == "" {
		return nil
	}
	return &v
}
