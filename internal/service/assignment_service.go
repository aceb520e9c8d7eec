package service

import (
	"context"
	"fmt"
	"strings"

	"github.com/spec-kit/helpdesk-service/internal/domain"
	"github.com/spec-kit/helpdesk-service/internal/events"
	"github.com/spec-kit/helpdesk-service/internal/lock"
	"github.com/spec-kit/helpdesk-service/internal/observability"
	"github.com/spec-kit/helpdesk-service/internal/repository"
	apperrors "github.com/spec-kit/helpdesk-service/pkg/util/errorutil"
)

// AssignmentService handles manual ticket assignment by staff.
type AssignmentService struct {
	tickets    repository.TicketRepository
	audit      auditTrail
	locker     lock.Locker
	dispatcher events.Dispatcher
	metrics    *observability.Metrics
	now        Clock
}

// AssignmentDependencies bundles repositories.
type AssignmentDependencies struct {
	TicketRepo  repository.TicketRepository
	CommentRepo repository.CommentRepository
	HistoryRepo repository.TicketHistoryRepository
	Locker      lock.Locker
	Dispatcher  events.Dispatcher
	Metrics     *observability.Metrics
	Clock       Clock
}

// AssignmentInput selects the new owner. A nil field is left unchanged.
type AssignmentInput struct {
	AssigneeID *string
	Team       *string
}

// NewAssignmentService creates the service.
func NewAssignmentService(deps AssignmentDependencies) *AssignmentService {
	return &AssignmentService{
		tickets:    deps.TicketRepo,
		audit:      auditTrail{comments: deps.CommentRepo, history: deps.HistoryRepo},
		locker:     deps.Locker,
		dispatcher: deps.Dispatcher,
		metrics:    deps.Metrics,
		now:        clockOrDefault(deps.Clock),
	}
}

// SelfAssign assigns the ticket to the calling agent.
func (s *AssignmentService) SelfAssign(ctx context.Context, actor domain.Actor, ticketID string) (*domain.Ticket, error) {
	id := actor.ID
	input := AssignmentInput{AssigneeID: &id}
	if actor.Team != nil {
		team := *actor.Team
		input.Team = &team
	}
	return s.Assign(ctx, actor, ticketID, input)
}

// Assign changes assignee and/or team. Agents may only assign to themselves;
// admins may assign anyone.
func (s *AssignmentService) Assign(ctx context.Context, actor domain.Actor, ticketID string, input AssignmentInput) (*domain.Ticket, error) {
	if !actor.Role.IsStaff() {
		return nil, apperrors.NewForbidden("insufficient role for assignment")
	}
	if input.AssigneeID == nil && input.Team == nil {
		return nil, apperrors.NewValidationError("invalid assignment", map[string]any{"assignee_id": "assignee_id or team is required"})
	}
	if input.AssigneeID != nil && strings.TrimSpace(*input.AssigneeID) == "" {
		return nil, apperrors.NewValidationError("invalid assignment", map[string]any{"assignee_id": "must not be empty"})
	}
	if input.Team != nil && strings.TrimSpace(*input.Team) == "" {
		return nil, apperrors.NewValidationError("invalid assignment", map[string]any{"team": "must not be empty"})
	}
	if actor.Role == domain.ActorRoleAgent && input.AssigneeID != nil && *input.AssigneeID != actor.ID {
		return nil, apperrors.NewForbidden("agents may only assign tickets to themselves")
	}

	var ticket *domain.Ticket
	err := withTicketLock(ctx, s.locker, s.metrics, actor.TenantID, ticketID, func(ctx context.Context) error {
		var err error
		if ticket, err = loadTicket(ctx, s.tickets, actor.TenantID, ticketID); err != nil {
			return err
		}
		if ticket.Status.IsTerminal() {
			return apperrors.NewConflict("closed tickets cannot be reassigned", map[string]any{"status": ticket.Status})
		}
		now := s.now()
		oldValue := map[string]any{"assignee_id": ticket.AssigneeID, "assigned_team": ticket.AssignedTeam}
		if input.Team != nil {
			team := *input.Team
			ticket.AssignedTeam = &team
			if input.AssigneeID == nil {
				ticket.AssigneeID = nil
			}
		}
		if input.AssigneeID != nil {
			assignee := *input.AssigneeID
			ticket.AssigneeID = &assignee
		}
		if err := saveTicket(ctx, s.tickets, ticket, now); err != nil {
			return err
		}
		if err := s.audit.record(ctx, actor, ticket.ID, domain.ChangeTypeAssignment, oldValue,
			map[string]any{"assignee_id": ticket.AssigneeID, "assigned_team": ticket.AssignedTeam}, now); err != nil {
			return err
		}
		if err := s.audit.systemComment(ctx, ticket.ID, assignmentMessage(ticket, actor), now); err != nil {
			return err
		}
		publishEvent(ctx, s.dispatcher, events.Event{
			Type:      events.EventTicketAssigned,
			TenantID:  ticket.TenantID,
			TicketID:  ticket.ID,
			Actor:     events.ActorFrom(actor),
			Timestamp: now,
			Payload: events.TicketAssignedPayload{
				AssigneeID: ticket.AssigneeID,
				Team:       ticket.AssignedTeam,
			},
		})
		return nil
	})
	if err != nil {
		return nil, err
	}
	return ticket, nil
}

func assignmentMessage(ticket *domain.Ticket, actor domain.Actor) string {
	switch {
	case ticket.AssigneeID != nil && ticket.AssignedTeam != nil:
		return fmt.Sprintf("Assigned to %s (team %s) by %s", *ticket.AssigneeID, *ticket.AssignedTeam, actor.Label())
	case ticket.AssigneeID != nil:
		return fmt.Sprintf("Assigned to %s by %s", *ticket.AssigneeID, actor.Label())
	default:
		return fmt.Sprintf("Assigned to team %s by %s", *ticket.AssignedTeam, actor.Label())
	}
}
