package service

import (
	"context"
	"fmt"
	"time"

	"github.com/spec-kit/helpdesk-service/internal/domain"
	"github.com/spec-kit/helpdesk-service/internal/events"
)

const (
	deadlineFirstResponse = "first_response"
	deadlineResolution    = "resolution"
)

// FlagSLABreach marks missed deadlines on an unsettled ticket and evaluates
// sla_breach rules once per newly missed deadline. It reports whether anything changed.
func (s *LifecycleService) FlagSLABreach(ctx context.Context, tenantID, ticketID string, now time.Time) (bool, error) {
	changed := false
	err := withTicketLock(ctx, s.locker, s.metrics, tenantID, ticketID, func(ctx context.Context) error {
		ticket, err := loadTicket(ctx, s.tickets, tenantID, ticketID)
		if err != nil {
			return err
		}
		if ticket.Status.IsSettled() {
			return nil
		}

		type breach struct {
			deadline string
			due      time.Time
		}
		var missed []breach
		if ticket.FirstRespondedAt == nil && !ticket.FirstResponseBreached && now.After(ticket.FirstResponseDueAt) {
			ticket.FirstResponseBreached = true
			missed = append(missed, breach{deadlineFirstResponse, ticket.FirstResponseDueAt})
		}
		if !ticket.ResolutionBreached && now.After(ticket.ResolutionDueAt) {
			ticket.ResolutionBreached = true
			missed = append(missed, breach{deadlineResolution, ticket.ResolutionDueAt})
		}
		if len(missed) == 0 {
			return nil
		}
		ticket.SLABreached = true
		if err := saveTicket(ctx, s.tickets, ticket, now); err != nil {
			return err
		}
		changed = true

		system := domain.SystemActor(tenantID)
		for _, b := range missed {
			body := fmt.Sprintf("SLA breached: %s was due at %s", humanDeadline(b.deadline), b.due.UTC().Format(time.RFC3339))
			if err := s.audit.systemComment(ctx, ticket.ID, body, now); err != nil {
				return err
			}
			if err := s.audit.record(ctx, system, ticket.ID, domain.ChangeTypeSLABreach,
				map[string]any{"sla_breached": false},
				map[string]any{"sla_breached": true, "deadline": b.deadline, "due_at": b.due}, now); err != nil {
				return err
			}
			s.metrics.RecordBreach(b.deadline)
			publishEvent(ctx, s.dispatcher, events.Event{
				Type:      events.EventSLABreached,
				TenantID:  tenantID,
				TicketID:  ticket.ID,
				Actor:     events.ActorFrom(system),
				Timestamp: now,
				Payload:   events.SLABreachedPayload{Deadline: b.deadline, DueAt: b.due},
			})
		}
		if s.escalations == nil {
			return nil
		}
		for _, b := range missed {
			if _, err := s.escalations.Evaluate(ctx, ticket, domain.SLABreachTrigger(b.deadline, b.due)); err != nil {
				return err
			}
		}
		return nil
	})
	return changed, err
}

// CheckNoResponse evaluates no_response_within rules for a ticket nobody has
// answered yet. It reports whether a rule fired.
func (s *LifecycleService) CheckNoResponse(ctx context.Context, tenantID, ticketID string, now time.Time) (bool, error) {
	if s.escalations == nil {
		return false, nil
	}
	ok, err := s.escalations.HasRules(ctx, tenantID, domain.TriggerNoResponseWithin)
	if err != nil || !ok {
		return false, err
	}
	fired := false
	err = withTicketLock(ctx, s.locker, s.metrics, tenantID, ticketID, func(ctx context.Context) error {
		ticket, err := loadTicket(ctx, s.tickets, tenantID, ticketID)
		if err != nil {
			return err
		}
		if ticket.Status.IsSettled() || ticket.FirstRespondedAt != nil {
			return nil
		}
		actions, err := s.escalations.Evaluate(ctx, ticket, domain.NoResponseTrigger(ticket, now))
		fired = len(actions) > 0
		return err
	})
	return fired, err
}

// AutoClose closes a resolved ticket once the grace period has passed since
// resolution or the last requester reply, whichever is later.
func (s *LifecycleService) AutoClose(ctx context.Context, tenantID, ticketID string, now time.Time, grace time.Duration) (bool, error) {
	closed := false
	err := withTicketLock(ctx, s.locker, s.metrics, tenantID, ticketID, func(ctx context.Context) error {
		ticket, err := loadTicket(ctx, s.tickets, tenantID, ticketID)
		if err != nil {
			return err
		}
		if ticket.Status != domain.TicketStatusResolved || ticket.ResolvedAt == nil {
			return nil
		}
		anchor := *ticket.ResolvedAt
		if ticket.LastCustomerReplyAt != nil && ticket.LastCustomerReplyAt.After(anchor) {
			anchor = *ticket.LastCustomerReplyAt
		}
		if now.Before(anchor.Add(grace)) {
			return nil
		}
		reason := fmt.Sprintf("no reply within %s of resolution", grace)
		if err := s.transitionLocked(ctx, ticket, domain.SystemActor(tenantID), domain.TicketStatusClosed, reason); err != nil {
			return err
		}
		closed = true
		s.metrics.RecordAutoClose()
		return nil
	})
	return closed, err
}

func humanDeadline(deadline string) string {
	if deadline == deadlineFirstResponse {
		return "first response"
	}
	return "resolution"
}
