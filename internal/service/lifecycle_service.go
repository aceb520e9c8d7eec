package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"go.uber.org/zap"

	"github.com/spec-kit/helpdesk-service/internal/domain"
	"github.com/spec-kit/helpdesk-service/internal/events"
	"github.com/spec-kit/helpdesk-service/internal/lock"
	"github.com/spec-kit/helpdesk-service/internal/observability"
	"github.com/spec-kit/helpdesk-service/internal/repository"
	"github.com/spec-kit/helpdesk-service/internal/sla"
	apperrors "github.com/spec-kit/helpdesk-service/pkg/util/errorutil"
)

// LifecycleService owns every mutation of ticket state.
type LifecycleService struct {
	tickets     repository.TicketRepository
	comments    repository.CommentRepository
	attachments repository.AttachmentRepository
	history     repository.TicketHistoryRepository
	firings     repository.EscalationFiringRepository
	features    repository.FeatureRepository
	audit       auditTrail
	catalog     *sla.Catalog
	locker      lock.Locker
	escalations *EscalationService
	redFlags    *RedFlagService
	dispatcher  events.Dispatcher
	metrics     *observability.Metrics
	logger      *zap.Logger
	now         Clock
}

// LifecycleDependencies bundles repositories and collaborators for the lifecycle service.
type LifecycleDependencies struct {
	TicketRepo     repository.TicketRepository
	CommentRepo    repository.CommentRepository
	AttachmentRepo repository.AttachmentRepository
	HistoryRepo    repository.TicketHistoryRepository
	FiringRepo     repository.EscalationFiringRepository
	FeatureRepo    repository.FeatureRepository
	Catalog        *sla.Catalog
	Locker         lock.Locker
	Escalations    *EscalationService
	RedFlags       *RedFlagService
	Dispatcher     events.Dispatcher
	Metrics        *observability.Metrics
	Logger         *zap.Logger
	Clock          Clock
}

// CreateTicketInput describes an intake event.
type CreateTicketInput struct {
	FeatureID   string
	Category    string
	Title       string
	Description string
	Priority    *domain.TicketPriority
	// Requester is honoured for staff filing on behalf of an employee.
	Requester *domain.Requester
	FormData  map[string]any
}

// AttachmentInput references an uploaded file.
type AttachmentInput struct {
	Filename string
	URL      string
	IsImage  *bool
}

// TicketListFilter narrows ticket listings.
type TicketListFilter struct {
	AssigneeID  *string
	Team        *string
	Category    *string
	Statuses    []domain.TicketStatus
	Priorities  []domain.TicketPriority
	CreatedFrom *time.Time
	CreatedTo   *time.Time
	Limit       int
	Offset      int
}

// TicketDetail is the ticket read model with its conversation and audit trail.
type TicketDetail struct {
	Ticket      *domain.Ticket
	Comments    []domain.Comment
	Attachments []domain.Attachment
	History     []domain.TicketHistory
	Firings     []domain.EscalationFiring
}

// NewLifecycleService constructs the service and binds it to the escalation engine.
func NewLifecycleService(deps LifecycleDependencies) *LifecycleService {
	logger := deps.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	svc := &LifecycleService{
		tickets:     deps.TicketRepo,
		comments:    deps.CommentRepo,
		attachments: deps.AttachmentRepo,
		history:     deps.HistoryRepo,
		firings:     deps.FiringRepo,
		features:    deps.FeatureRepo,
		audit:       auditTrail{comments: deps.CommentRepo, history: deps.HistoryRepo},
		catalog:     deps.Catalog,
		locker:      deps.Locker,
		escalations: deps.Escalations,
		redFlags:    deps.RedFlags,
		dispatcher:  deps.Dispatcher,
		metrics:     deps.Metrics,
		logger:      logger,
		now:         clockOrDefault(deps.Clock),
	}
	if svc.escalations != nil {
		svc.escalations.lifecycle = svc
	}
	return svc
}

// CreateTicket validates an intake event, stamps due dates and stores the ticket as new.
func (s *LifecycleService) CreateTicket(ctx context.Context, actor domain.Actor, input CreateTicketInput) (*domain.Ticket, error) {
	if actor.TenantID == "" {
		return nil, apperrors.NewForbidden("actor is not bound to a tenant")
	}
	title := strings.TrimSpace(input.Title)
	if title == "" {
		return nil, apperrors.NewValidationError("invalid ticket", map[string]any{"title": "is required"})
	}
	category := strings.TrimSpace(input.Category)
	if err := s.validateFeature(ctx, input.FeatureID, category, input.FormData); err != nil {
		return nil, err
	}
	priority, err := resolvePriority(input.Priority, input.FormData)
	if err != nil {
		return nil, err
	}

	requester := domain.Requester{ID: actor.ID, Name: actor.Name, Email: actor.Email}
	if input.Requester != nil && actor.Role.IsStaff() {
		requester = *input.Requester
	}
	if requester.ID == "" {
		return nil, apperrors.NewValidationError("invalid ticket", map[string]any{"requester.id": "is required"})
	}

	now := s.now()
	policy, due, err := s.catalog.DueDatesFor(ctx, actor.TenantID, category, priority, now)
	if err != nil {
		return nil, err
	}
	seq, err := s.tickets.NextTicketNumber(ctx, actor.TenantID)
	if err != nil {
		return nil, err
	}

	ticket := &domain.Ticket{
		TenantID:           actor.TenantID,
		TicketNumber:       domain.FormatTicketNumber(seq),
		Title:              title,
		Description:        strings.TrimSpace(input.Description),
		Category:           category,
		FeatureID:          input.FeatureID,
		Priority:           priority,
		Status:             domain.TicketStatusNew,
		Requester:          requester,
		FormData:           input.FormData,
		SLAStartedAt:       now,
		FirstResponseDueAt: due.FirstResponseDueAt,
		ResolutionDueAt:    due.ResolutionDueAt,
		CreatedAt:          now,
		UpdatedAt:          now,
	}
	if err := s.tickets.Create(ctx, ticket); err != nil {
		return nil, err
	}
	if err := s.audit.record(ctx, actor, ticket.ID, domain.ChangeTypeDueDates, nil, map[string]any{
		"policy_id":             policy.ID,
		"first_response_due_at": due.FirstResponseDueAt,
		"resolution_due_at":     due.ResolutionDueAt,
	}, now); err != nil {
		return nil, err
	}

	publishEvent(ctx, s.dispatcher, events.Event{
		Type:      events.EventTicketCreated,
		TenantID:  ticket.TenantID,
		TicketID:  ticket.ID,
		Actor:     events.ActorFrom(actor),
		Timestamp: now,
		Payload: events.TicketCreatedPayload{
			TicketNumber: ticket.TicketNumber,
			Category:     ticket.Category,
			Priority:     ticket.Priority,
			Title:        ticket.Title,
		},
	})
	return ticket, nil
}

func (s *LifecycleService) validateFeature(ctx context.Context, featureID, category string, formData map[string]any) error {
	if featureID == "" || s.features == nil {
		return nil
	}
	feature, err := s.features.GetByID(ctx, featureID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return apperrors.NewValidationError("invalid ticket", map[string]any{"feature_id": "unknown feature"})
		}
		return err
	}
	details := map[string]any{}
	if category != "" && !feature.AllowsCategory(category) {
		details["category"] = fmt.Sprintf("not offered by feature %s", feature.Key)
	}
	if missing := feature.MissingFields(formData); len(missing) > 0 {
		details["form_data"] = map[string]any{"missing": missing}
	}
	if len(details) > 0 {
		return apperrors.NewValidationError("invalid ticket", details)
	}
	return nil
}

// resolvePriority takes the explicit hint, then form_data.priority, then medium.
func resolvePriority(hint *domain.TicketPriority, formData map[string]any) (domain.TicketPriority, error) {
	if hint != nil && *hint != "" {
		if !hint.Valid() {
			return "", apperrors.NewValidationError("invalid ticket", map[string]any{"priority": "must be one of low, medium, high, critical"})
		}
		return *hint, nil
	}
	if raw, ok := formData["priority"].(string); ok {
		p := domain.TicketPriority(strings.ToLower(strings.TrimSpace(raw)))
		if p.Valid() {
			return p, nil
		}
	}
	return domain.TicketPriorityMedium, nil
}

// GetTicket returns the ticket with comments, attachments, history and firings.
func (s *LifecycleService) GetTicket(ctx context.Context, actor domain.Actor, ticketID string) (*TicketDetail, error) {
	ticket, err := loadTicket(ctx, s.tickets, actor.TenantID, ticketID)
	if err != nil {
		return nil, err
	}
	if err := authorizeTicket(actor, ticket); err != nil {
		return nil, err
	}
	detail := &TicketDetail{Ticket: ticket}
	if detail.Comments, err = s.comments.ListByTicket(ctx, ticket.ID); err != nil {
		return nil, err
	}
	if s.attachments != nil {
		if detail.Attachments, err = s.attachments.ListByTicket(ctx, ticket.ID); err != nil {
			return nil, err
		}
	}
	if s.history != nil {
		if detail.History, err = s.history.ListByTicket(ctx, ticket.ID); err != nil {
			return nil, err
		}
	}
	if s.firings != nil && actor.Role.IsStaff() {
		if detail.Firings, err = s.firings.ListByTicket(ctx, ticket.ID); err != nil {
			return nil, err
		}
	}
	return detail, nil
}

// ListTickets lists tenant tickets. Employees only see their own.
func (s *LifecycleService) ListTickets(ctx context.Context, actor domain.Actor, filter TicketListFilter) ([]domain.Ticket, error) {
	repoFilter := repository.TicketFilter{
		TenantID:    actor.TenantID,
		AssigneeID:  filter.AssigneeID,
		Team:        filter.Team,
		Category:    filter.Category,
		Statuses:    filter.Statuses,
		Priorities:  filter.Priorities,
		CreatedFrom: filter.CreatedFrom,
		CreatedTo:   filter.CreatedTo,
		Limit:       filter.Limit,
		Offset:      filter.Offset,
	}
	if !actor.Role.IsStaff() {
		id := actor.ID
		repoFilter.RequesterID = &id
	}
	return s.tickets.List(ctx, repoFilter)
}

// Transition applies a requested status change.
func (s *LifecycleService) Transition(ctx context.Context, actor domain.Actor, ticketID string, to domain.TicketStatus, reason string) (*domain.Ticket, error) {
	if !to.Valid() {
		return nil, apperrors.NewValidationError("invalid status", map[string]any{"status": string(to)})
	}
	switch to {
	case domain.TicketStatusReopened:
		return s.Reopen(ctx, actor, ticketID, reason)
	case domain.TicketStatusEscalated:
		return s.Escalate(ctx, actor, ticketID, reason)
	}

	var ticket *domain.Ticket
	err := withTicketLock(ctx, s.locker, s.metrics, actor.TenantID, ticketID, func(ctx context.Context) error {
		var err error
		if ticket, err = loadTicket(ctx, s.tickets, actor.TenantID, ticketID); err != nil {
			return err
		}
		if err := authorizeTicket(actor, ticket); err != nil {
			return err
		}
		if !actor.Role.IsStaff() && to != domain.TicketStatusClosed {
			return apperrors.NewForbidden("requesters may only close or reopen their tickets")
		}
		return s.transitionLocked(ctx, ticket, actor, to, reason)
	})
	if err != nil {
		return nil, err
	}
	return ticket, nil
}

// transitionLocked validates and applies one edge of the status graph.
func (s *LifecycleService) transitionLocked(ctx context.Context, ticket *domain.Ticket, actor domain.Actor, to domain.TicketStatus, reason string) error {
	from := ticket.Status
	if !isValidTransition(from, to) {
		return apperrors.NewInvalidTransition(string(from), string(to))
	}
	if to == domain.TicketStatusAwaitingCustomer && !actor.Role.IsStaff() && actor.Role != domain.ActorRoleSystem {
		return apperrors.NewForbidden("only agents may wait on the customer")
	}

	now := s.now()
	if to == domain.TicketStatusResolved {
		ticket.ResolvedAt = &now
		// A first-response breach stays visible after resolution.
		if ticket.SLABreached && ticket.ResolutionBreached && !ticket.FirstResponseBreached {
			ticket.SLABreached = false
		}
	}
	ticket.Status = to
	if err := saveTicket(ctx, s.tickets, ticket, now); err != nil {
		ticket.Status = from
		return err
	}

	if err := s.audit.systemComment(ctx, ticket.ID, statusChangeMessage(from, to, actor, reason), now); err != nil {
		return err
	}
	newValue := map[string]any{"status": to}
	if reason != "" {
		newValue["reason"] = reason
	}
	if err := s.audit.record(ctx, actor, ticket.ID, domain.ChangeTypeStatus,
		map[string]any{"status": from}, newValue, now); err != nil {
		return err
	}
	s.metrics.RecordTransition(string(from), string(to))
	publishEvent(ctx, s.dispatcher, events.Event{
		Type:      events.EventTicketStatusChanged,
		TenantID:  ticket.TenantID,
		TicketID:  ticket.ID,
		Actor:     events.ActorFrom(actor),
		Timestamp: now,
		Payload: events.TicketStatusChangedPayload{
			OldStatus: from,
			NewStatus: to,
			Reason:    reason,
		},
	})
	return nil
}

// Reopen moves a resolved or closed ticket through reopened back to open
// on a fresh SLA cycle. A ticket left in reopened by an interrupted reopen
// resumes from there.
func (s *LifecycleService) Reopen(ctx context.Context, actor domain.Actor, ticketID, reason string) (*domain.Ticket, error) {
	reason = strings.TrimSpace(reason)
	if reason == "" {
		return nil, apperrors.NewReasonRequired("a reason is required to reopen a ticket")
	}
	var ticket *domain.Ticket
	err := withTicketLock(ctx, s.locker, s.metrics, actor.TenantID, ticketID, func(ctx context.Context) error {
		var err error
		if ticket, err = loadTicket(ctx, s.tickets, actor.TenantID, ticketID); err != nil {
			return err
		}
		if err := authorizeTicket(actor, ticket); err != nil {
			return err
		}
		resuming := ticket.Status == domain.TicketStatusReopened
		if !ticket.Status.IsSettled() && !resuming {
			return apperrors.NewInvalidTransition(string(ticket.Status), string(domain.TicketStatusReopened))
		}

		now := s.now()
		_, due, err := s.catalog.DueDatesFor(ctx, ticket.TenantID, ticket.Category, ticket.Priority, now)
		if err != nil {
			return err
		}
		if !resuming {
			if err := s.transitionLocked(ctx, ticket, actor, domain.TicketStatusReopened, reason); err != nil {
				return err
			}
		}

		oldDue := map[string]any{
			"first_response_due_at": ticket.FirstResponseDueAt,
			"resolution_due_at":     ticket.ResolutionDueAt,
			"sla_breached":          ticket.SLABreached,
		}
		ticket.SLAStartedAt = now
		ticket.FirstResponseDueAt = due.FirstResponseDueAt
		ticket.ResolutionDueAt = due.ResolutionDueAt
		ticket.SLABreached = false
		ticket.FirstResponseBreached = false
		ticket.ResolutionBreached = false
		ticket.ResolvedAt = nil
		ticket.RedFlaggedAt = nil
		ticket.ReopenCount++

		if err := s.transitionLocked(ctx, ticket, domain.SystemActor(ticket.TenantID), domain.TicketStatusOpen, "new SLA cycle"); err != nil {
			return err
		}
		return s.audit.record(ctx, actor, ticket.ID, domain.ChangeTypeDueDates, oldDue, map[string]any{
			"first_response_due_at": ticket.FirstResponseDueAt,
			"resolution_due_at":     ticket.ResolutionDueAt,
			"sla_breached":          false,
			"reopen_count":          ticket.ReopenCount,
		}, now)
	})
	if err != nil {
		return nil, err
	}
	return ticket, nil
}

// Escalate moves the ticket to escalated and evaluates manual rules. A manual
// escalation happens whether or not a rule matches.
func (s *LifecycleService) Escalate(ctx context.Context, actor domain.Actor, ticketID, note string) (*domain.Ticket, error) {
	note = strings.TrimSpace(note)
	var ticket *domain.Ticket
	err := withTicketLock(ctx, s.locker, s.metrics, actor.TenantID, ticketID, func(ctx context.Context) error {
		var err error
		if ticket, err = loadTicket(ctx, s.tickets, actor.TenantID, ticketID); err != nil {
			return err
		}
		if err := authorizeTicket(actor, ticket); err != nil {
			return err
		}
		if ticket.Status.IsSettled() {
			return apperrors.NewInvalidTransition(string(ticket.Status), string(domain.TicketStatusEscalated))
		}
		trigger := domain.ManualTrigger(uuid.NewString(), note)
		if ticket.Status != domain.TicketStatusEscalated {
			if err := s.transitionLocked(ctx, ticket, actor, domain.TicketStatusEscalated, note); err != nil {
				return err
			}
		}
		if err := s.audit.record(ctx, actor, ticket.ID, domain.ChangeTypeEscalation, nil, map[string]any{
			"trigger":      trigger.Type,
			"instance_key": trigger.InstanceKey,
			"note":         note,
		}, s.now()); err != nil {
			return err
		}
		s.metrics.RecordEscalation(string(domain.TriggerManual), string(domain.ActionEscalateStatus))
		if s.escalations == nil {
			return nil
		}
		_, err = s.escalations.Evaluate(ctx, ticket, trigger)
		return err
	})
	if err != nil {
		return nil, err
	}
	return ticket, nil
}

// PostComment appends a comment. A requester reply while awaiting the customer
// moves the ticket back to in_progress, and the first agent reply marks first response.
func (s *LifecycleService) PostComment(ctx context.Context, actor domain.Actor, ticketID, body string) (*domain.Comment, error) {
	body = strings.TrimSpace(body)
	if body == "" {
		return nil, apperrors.NewValidationError("invalid comment", map[string]any{"body": "is required"})
	}
	var (
		ticket      *domain.Ticket
		comment     *domain.Comment
		byRequester bool
	)
	err := withTicketLock(ctx, s.locker, s.metrics, actor.TenantID, ticketID, func(ctx context.Context) error {
		var err error
		if ticket, err = loadTicket(ctx, s.tickets, actor.TenantID, ticketID); err != nil {
			return err
		}
		if err := authorizeTicket(actor, ticket); err != nil {
			return err
		}
		if ticket.Status.IsTerminal() {
			return apperrors.NewConflict("ticket is closed; reopen it before commenting", map[string]any{"status": ticket.Status})
		}

		now := s.now()
		comment = &domain.Comment{
			TicketID:   ticket.ID,
			Body:       body,
			AuthorRole: actor.AuthorRole(),
			AuthorID:   strPtr(actor.ID),
			AuthorName: strPtr(actor.Name),
			CreatedAt:  now,
		}
		if err := s.comments.Create(ctx, comment); err != nil {
			return err
		}

		dirty := false
		if comment.AuthorRole == domain.AuthorRoleAgent && ticket.FirstRespondedAt == nil {
			ticket.FirstRespondedAt = &now
			dirty = true
		}
		byRequester = ticket.IsRequester(actor)
		if byRequester {
			ticket.LastCustomerReplyAt = &now
			dirty = true
			if ticket.Status == domain.TicketStatusAwaitingCustomer {
				return s.transitionLocked(ctx, ticket, actor, domain.TicketStatusInProgress, "requester replied")
			}
		}
		if dirty {
			return saveTicket(ctx, s.tickets, ticket, now)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	publishEvent(ctx, s.dispatcher, events.Event{
		Type:      events.EventCommentAdded,
		TenantID:  ticket.TenantID,
		TicketID:  ticket.ID,
		Actor:     events.ActorFrom(actor),
		Timestamp: comment.CreatedAt,
		Payload: events.CommentAddedPayload{
			CommentID:   comment.ID,
			AuthorRole:  comment.AuthorRole,
			BodyPreview: stringPreview(comment.Body, 120),
		},
	})

	if byRequester && s.redFlags != nil {
		if err := s.redFlags.Assess(ctx, ticket.TenantID, ticket.ID, comment); err != nil {
			s.logger.Warn("red flag assessment skipped",
				zap.String("tenant_id", ticket.TenantID),
				zap.String("ticket_id", ticket.ID),
				zap.Error(err))
		}
	}
	return comment, nil
}

// AddAttachment records a file reference on the ticket.
func (s *LifecycleService) AddAttachment(ctx context.Context, actor domain.Actor, ticketID string, input AttachmentInput) (*domain.Attachment, error) {
	details := map[string]any{}
	if strings.TrimSpace(input.Filename) == "" {
		details["filename"] = "is required"
	}
	if strings.TrimSpace(input.URL) == "" {
		details["url"] = "is required"
	}
	if len(details) > 0 {
		return nil, apperrors.NewValidationError("invalid attachment", details)
	}
	ticket, err := loadTicket(ctx, s.tickets, actor.TenantID, ticketID)
	if err != nil {
		return nil, err
	}
	if err := authorizeTicket(actor, ticket); err != nil {
		return nil, err
	}
	if ticket.Status.IsTerminal() {
		return nil, apperrors.NewConflict("ticket is closed; reopen it before attaching files", map[string]any{"status": ticket.Status})
	}
	attachment := &domain.Attachment{
		TicketID:  ticket.ID,
		Filename:  strings.TrimSpace(input.Filename),
		URL:       strings.TrimSpace(input.URL),
		IsImage:   domain.LooksLikeImage(input.Filename),
		CreatedAt: s.now(),
	}
	if input.IsImage != nil {
		attachment.IsImage = *input.IsImage
	}
	if err := s.attachments.Create(ctx, attachment); err != nil {
		return nil, err
	}
	return attachment, nil
}

// authorizeTicket lets staff act on any tenant ticket and employees on their own.
func authorizeTicket(actor domain.Actor, ticket *domain.Ticket) error {
	if actor.TenantID != ticket.TenantID {
		return apperrors.NewNotFound("ticket", map[string]any{"ticket_id": ticket.ID})
	}
	if actor.Role.IsStaff() || actor.Role == domain.ActorRoleSystem {
		return nil
	}
	if !ticket.IsRequester(actor) {
		return apperrors.NewForbidden("access denied")
	}
	return nil
}

var allowedTransitions = map[domain.TicketStatus][]domain.TicketStatus{
	domain.TicketStatusNew:  {domain.TicketStatusOpen, domain.TicketStatusEscalated},
	domain.TicketStatusOpen: {domain.TicketStatusInProgress, domain.TicketStatusEscalated},
	domain.TicketStatusInProgress: {
		domain.TicketStatusAwaitingCustomer, domain.TicketStatusAwaitingInternal,
		domain.TicketStatusResolved, domain.TicketStatusEscalated,
	},
	domain.TicketStatusAwaitingCustomer: {
		domain.TicketStatusInProgress, domain.TicketStatusAwaitingInternal,
		domain.TicketStatusResolved, domain.TicketStatusEscalated,
	},
	domain.TicketStatusAwaitingInternal: {
		domain.TicketStatusInProgress, domain.TicketStatusAwaitingCustomer,
		domain.TicketStatusResolved, domain.TicketStatusEscalated,
	},
	domain.TicketStatusEscalated: {
		domain.TicketStatusInProgress, domain.TicketStatusAwaitingCustomer,
		domain.TicketStatusAwaitingInternal, domain.TicketStatusResolved,
	},
	domain.TicketStatusResolved: {domain.TicketStatusClosed, domain.TicketStatusReopened},
	domain.TicketStatusClosed:   {domain.TicketStatusReopened},
	domain.TicketStatusReopened: {domain.TicketStatusOpen},
}

func isValidTransition(current, next domain.TicketStatus) bool {
	for _, candidate := range allowedTransitions[current] {
		if candidate == next {
			return true
		}
	}
	return false
}
