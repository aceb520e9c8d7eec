package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/spec-kit/helpdesk-service/internal/domain"
	"github.com/spec-kit/helpdesk-service/internal/events"
	"github.com/spec-kit/helpdesk-service/internal/lock"
	"github.com/spec-kit/helpdesk-service/internal/observability"
	"github.com/spec-kit/helpdesk-service/internal/repository"
	"github.com/spec-kit/helpdesk-service/internal/scoring"
	apperrors "github.com/spec-kit/helpdesk-service/pkg/util/errorutil"
)

// RedFlagService folds external risk scores into tickets.
type RedFlagService struct {
	tickets     repository.TicketRepository
	audit       auditTrail
	scorer      scoring.Scorer
	escalations *EscalationService
	locker      lock.Locker
	threshold   int
	timeout     time.Duration
	dispatcher  events.Dispatcher
	metrics     *observability.Metrics
	logger      *zap.Logger
	now         Clock
}

// RedFlagDependencies bundles collaborators for the red flag adapter.
type RedFlagDependencies struct {
	TicketRepo  repository.TicketRepository
	CommentRepo repository.CommentRepository
	HistoryRepo repository.TicketHistoryRepository
	Scorer      scoring.Scorer
	Escalations *EscalationService
	Locker      lock.Locker
	Threshold   int
	Timeout     time.Duration
	Dispatcher  events.Dispatcher
	Metrics     *observability.Metrics
	Logger      *zap.Logger
	Clock       Clock
}

// NewRedFlagService constructs the adapter.
func NewRedFlagService(deps RedFlagDependencies) *RedFlagService {
	logger := deps.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	scorer := deps.Scorer
	if scorer == nil {
		scorer = scoring.NewDisabledScorer()
	}
	timeout := deps.Timeout
	if timeout <= 0 {
		timeout = 3 * time.Second
	}
	return &RedFlagService{
		tickets:     deps.TicketRepo,
		audit:       auditTrail{comments: deps.CommentRepo, history: deps.HistoryRepo},
		scorer:      scorer,
		escalations: deps.Escalations,
		locker:      deps.Locker,
		threshold:   deps.Threshold,
		timeout:     timeout,
		dispatcher:  deps.Dispatcher,
		metrics:     deps.Metrics,
		logger:      logger,
		now:         clockOrDefault(deps.Clock),
	}
}

// Threshold returns the score at which a ticket is red flagged.
func (s *RedFlagService) Threshold() int { return s.threshold }

// Assess scores a requester comment outside the ticket lock, then stores the
// score. The first threshold crossing in an SLA cycle evaluates red_flag_above rules.
// Scorer failures leave the ticket untouched.
func (s *RedFlagService) Assess(ctx context.Context, tenantID, ticketID string, comment *domain.Comment) error {
	snapshot, err := loadTicket(ctx, s.tickets, tenantID, ticketID)
	if err != nil {
		return err
	}

	scoreCtx, cancel := context.WithTimeout(ctx, s.timeout)
	result, err := s.scorer.Score(scoreCtx, snapshot, comment)
	cancel()
	if err != nil {
		if errors.Is(err, scoring.ErrDisabled) {
			return nil
		}
		s.metrics.RecordScorerFailure()
		unavailable := apperrors.NewScorerUnavailable(err)
		s.logger.Warn("red flag scorer unavailable",
			zap.String("tenant_id", tenantID),
			zap.String("ticket_id", ticketID),
			zap.Error(unavailable))
		return nil
	}

	return withTicketLock(ctx, s.locker, s.metrics, tenantID, ticketID, func(ctx context.Context) error {
		ticket, err := loadTicket(ctx, s.tickets, tenantID, ticketID)
		if err != nil {
			return err
		}
		now := s.now()
		previous := ticket.RedFlagScore
		sentiment := result.Sentiment
		ticket.RedFlagScore = result.Score
		ticket.AISentiment = &sentiment

		crossed := result.Score >= s.threshold && ticket.RedFlaggedAt == nil
		if crossed {
			ticket.RedFlaggedAt = &now
		}
		if err := saveTicket(ctx, s.tickets, ticket, now); err != nil {
			return err
		}
		if !crossed {
			return nil
		}

		system := domain.SystemActor(tenantID)
		if err := s.audit.record(ctx, system, ticket.ID, domain.ChangeTypeRedFlag,
			map[string]any{"red_flag_score": previous},
			map[string]any{"red_flag_score": result.Score, "sentiment": result.Sentiment, "threshold": s.threshold}, now); err != nil {
			return err
		}
		if err := s.audit.systemComment(ctx, ticket.ID,
			fmt.Sprintf("Red flag raised: score %d (%s)", result.Score, result.Sentiment), now); err != nil {
			return err
		}
		publishEvent(ctx, s.dispatcher, events.Event{
			Type:      events.EventTicketRedFlagged,
			TenantID:  tenantID,
			TicketID:  ticket.ID,
			Actor:     events.ActorFrom(system),
			Timestamp: now,
			Payload:   events.TicketRedFlaggedPayload{Score: result.Score, Sentiment: result.Sentiment},
		})
		if s.escalations == nil {
			return nil
		}
		_, err = s.escalations.Evaluate(ctx, ticket, domain.RedFlagTrigger(ticket))
		return err
	})
}
