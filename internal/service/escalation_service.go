package service

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/spec-kit/helpdesk-service/internal/domain"
	"github.com/spec-kit/helpdesk-service/internal/events"
	"github.com/spec-kit/helpdesk-service/internal/observability"
	"github.com/spec-kit/helpdesk-service/internal/repository"
)

// EscalationAction is the intent produced by a fired rule.
type EscalationAction struct {
	RuleID      int64
	RuleName    string
	Trigger     domain.TriggerType
	InstanceKey string
	Type        domain.ActionType
	Team        string
	Channel     string
}

// statusTransitioner applies a lifecycle transition to a ticket whose lock is held.
type statusTransitioner interface {
	transitionLocked(ctx context.Context, ticket *domain.Ticket, actor domain.Actor, to domain.TicketStatus, reason string) error
}

// EscalationService evaluates escalation rules and applies their actions.
type EscalationService struct {
	rules      repository.EscalationRuleRepository
	firings    repository.EscalationFiringRepository
	tickets    repository.TicketRepository
	audit      auditTrail
	dispatcher events.Dispatcher
	metrics    *observability.Metrics
	logger     *zap.Logger
	now        Clock
	lifecycle  statusTransitioner
}

// EscalationDependencies bundles collaborators for the escalation engine.
type EscalationDependencies struct {
	RuleRepo    repository.EscalationRuleRepository
	FiringRepo  repository.EscalationFiringRepository
	TicketRepo  repository.TicketRepository
	CommentRepo repository.CommentRepository
	HistoryRepo repository.TicketHistoryRepository
	Dispatcher  events.Dispatcher
	Metrics     *observability.Metrics
	Logger      *zap.Logger
	Clock       Clock
}

// NewEscalationService constructs the service. The lifecycle service binds
// itself when it is built.
func NewEscalationService(deps EscalationDependencies) *EscalationService {
	logger := deps.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &EscalationService{
		rules:      deps.RuleRepo,
		firings:    deps.FiringRepo,
		tickets:    deps.TicketRepo,
		audit:      auditTrail{comments: deps.CommentRepo, history: deps.HistoryRepo},
		dispatcher: deps.Dispatcher,
		metrics:    deps.Metrics,
		logger:     logger,
		now:        clockOrDefault(deps.Clock),
	}
}

// HasRules reports whether any enabled rule for the trigger type applies to the tenant.
func (s *EscalationService) HasRules(ctx context.Context, tenantID string, trigger domain.TriggerType) (bool, error) {
	rules, err := s.rules.ListForTenant(ctx, tenantID)
	if err != nil {
		return false, err
	}
	for _, rule := range rules {
		if rule.Enabled && rule.Trigger.Type == trigger {
			return true, nil
		}
	}
	return false, nil
}

// Evaluate fires the first matching rule, in id order, that has not yet fired
// for this trigger instance. The caller must hold the ticket lock.
func (s *EscalationService) Evaluate(ctx context.Context, ticket *domain.Ticket, trigger domain.Trigger) ([]EscalationAction, error) {
	rules, err := s.rules.ListForTenant(ctx, ticket.TenantID)
	if err != nil {
		return nil, err
	}
	for i := range rules {
		rule := &rules[i]
		if !rule.Matches(ticket, trigger) {
			continue
		}
		fired, err := s.firings.Exists(ctx, ticket.ID, rule.ID, trigger.InstanceKey)
		if err != nil {
			return nil, err
		}
		if fired {
			continue
		}
		recorded, err := s.firings.Record(ctx, &domain.EscalationFiring{
			TicketID:    ticket.ID,
			RuleID:      rule.ID,
			Trigger:     trigger.Type,
			InstanceKey: trigger.InstanceKey,
			FiredAt:     s.now(),
		})
		if err != nil {
			return nil, err
		}
		if !recorded {
			continue
		}

		action := EscalationAction{
			RuleID:      rule.ID,
			RuleName:    rule.Name,
			Trigger:     trigger.Type,
			InstanceKey: trigger.InstanceKey,
			Type:        rule.Action.Type,
			Team:        rule.Action.Team,
			Channel:     rule.Action.Channel,
		}
		if err := s.apply(ctx, ticket, trigger, action); err != nil {
			return []EscalationAction{action}, err
		}
		return []EscalationAction{action}, nil
	}
	return nil, nil
}

func (s *EscalationService) apply(ctx context.Context, ticket *domain.Ticket, trigger domain.Trigger, action EscalationAction) error {
	now := s.now()
	system := domain.SystemActor(ticket.TenantID)
	logger := s.logger.With(
		zap.String("tenant_id", ticket.TenantID),
		zap.String("ticket_id", ticket.ID),
		zap.Int64("rule_id", action.RuleID),
		zap.String("trigger", string(action.Trigger)))

	if err := s.audit.record(ctx, system, ticket.ID, domain.ChangeTypeEscalation, nil, map[string]any{
		"rule_id":      action.RuleID,
		"rule_name":    action.RuleName,
		"trigger":      action.Trigger,
		"instance_key": action.InstanceKey,
		"action":       action.Type,
	}, now); err != nil {
		return err
	}
	s.metrics.RecordEscalation(string(action.Trigger), string(action.Type))
	logger.Info("escalation rule fired", zap.String("action", string(action.Type)))

	switch action.Type {
	case domain.ActionEscalateStatus:
		if ticket.Status == domain.TicketStatusEscalated {
			return nil
		}
		if !isValidTransition(ticket.Status, domain.TicketStatusEscalated) {
			logger.Warn("escalate_status skipped", zap.String("status", string(ticket.Status)))
			return nil
		}
		if s.lifecycle == nil {
			return fmt.Errorf("escalation engine has no lifecycle bound")
		}
		reason := fmt.Sprintf("escalation rule %q (%s)", action.RuleName, action.Trigger)
		return s.lifecycle.transitionLocked(ctx, ticket, system, domain.TicketStatusEscalated, reason)

	case domain.ActionReassign:
		return s.reassign(ctx, ticket, action, now)

	case domain.ActionNotify:
		publishEvent(ctx, s.dispatcher, events.Event{
			Type:      events.EventEscalationNotify,
			TenantID:  ticket.TenantID,
			TicketID:  ticket.ID,
			Actor:     events.ActorFrom(system),
			Timestamp: now,
			Payload: events.EscalationNotifyPayload{
				Channel:      action.Channel,
				RuleID:       action.RuleID,
				RuleName:     action.RuleName,
				Trigger:      action.Trigger,
				TicketNumber: ticket.TicketNumber,
				Title:        ticket.Title,
				Priority:     ticket.Priority,
				Status:       ticket.Status,
				Note:         trigger.Note,
			},
		})
		return nil
	}
	return fmt.Errorf("unknown escalation action %q", action.Type)
}

func (s *EscalationService) reassign(ctx context.Context, ticket *domain.Ticket, action EscalationAction, now time.Time) error {
	system := domain.SystemActor(ticket.TenantID)
	oldValue := map[string]any{"assigned_team": ticket.AssignedTeam, "assignee_id": ticket.AssigneeID}

	team := action.Team
	ticket.AssignedTeam = &team
	ticket.AssigneeID = nil
	if err := saveTicket(ctx, s.tickets, ticket, now); err != nil {
		return err
	}
	if err := s.audit.record(ctx, system, ticket.ID, domain.ChangeTypeAssignment, oldValue,
		map[string]any{"assigned_team": team, "assignee_id": nil, "rule_id": action.RuleID}, now); err != nil {
		return err
	}
	if err := s.audit.systemComment(ctx, ticket.ID,
		fmt.Sprintf("Reassigned to team %s by escalation rule %q", team, action.RuleName), now); err != nil {
		return err
	}
	publishEvent(ctx, s.dispatcher, events.Event{
		Type:      events.EventTicketAssigned,
		TenantID:  ticket.TenantID,
		TicketID:  ticket.ID,
		Actor:     events.ActorFrom(system),
		Timestamp: now,
		Payload:   events.TicketAssignedPayload{Team: &team},
	})
	return nil
}
