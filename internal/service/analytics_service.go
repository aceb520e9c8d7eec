package service

import (
	"context"
	"math"
	"time"

	"github.com/spec-kit/helpdesk-service/internal/domain"
	"github.com/spec-kit/helpdesk-service/internal/repository"
	apperrors "github.com/spec-kit/helpdesk-service/pkg/util/errorutil"
)

// AnalyticsService aggregates the tenant dashboard read model. It never writes.
type AnalyticsService struct {
	tickets   repository.TicketRepository
	threshold int
}

// AnalyticsDependencies bundles collaborators for analytics.
type AnalyticsDependencies struct {
	TicketRepo       repository.TicketRepository
	RedFlagThreshold int
}

// AnalyticsFilter narrows the aggregated population.
type AnalyticsFilter struct {
	Category    *string
	Team        *string
	Priorities  []domain.TicketPriority
	CreatedFrom *time.Time
	CreatedTo   *time.Time
}

// NewAnalyticsService constructs the service.
func NewAnalyticsService(deps AnalyticsDependencies) *AnalyticsService {
	return &AnalyticsService{tickets: deps.TicketRepo, threshold: deps.RedFlagThreshold}
}

// GetAnalytics aggregates the actor's tenant. Staff only.
func (s *AnalyticsService) GetAnalytics(ctx context.Context, actor domain.Actor, filter AnalyticsFilter) (*domain.Analytics, error) {
	if !actor.Role.IsStaff() {
		return nil, apperrors.NewForbidden("analytics are restricted to agents and admins")
	}
	tickets, err := s.tickets.ListForAnalytics(ctx, repository.TicketFilter{
		TenantID:    actor.TenantID,
		Category:    filter.Category,
		Team:        filter.Team,
		Priorities:  filter.Priorities,
		CreatedFrom: filter.CreatedFrom,
		CreatedTo:   filter.CreatedTo,
	})
	if err != nil {
		return nil, err
	}
	return Aggregate(tickets, s.threshold), nil
}

// Aggregate computes the analytics read model over tickets.
func Aggregate(tickets []domain.Ticket, redFlagThreshold int) *domain.Analytics {
	out := &domain.Analytics{
		ByStatus:   make(map[domain.TicketStatus]int, len(domain.AllTicketStatuses)),
		ByPriority: make(map[domain.TicketPriority]int, len(domain.AllTicketPriorities)),
		ByCategory: map[string]int{},
	}
	for _, st := range domain.AllTicketStatuses {
		out.ByStatus[st] = 0
	}
	for _, p := range domain.AllTicketPriorities {
		out.ByPriority[p] = 0
	}

	var (
		responseTotal, resolutionTotal float64
		responded, resolved            int
	)
	for i := range tickets {
		t := &tickets[i]
		out.Total++
		out.ByStatus[t.Status]++
		out.ByPriority[t.Priority]++
		category := t.Category
		if category == "" {
			category = "uncategorized"
		}
		out.ByCategory[category]++

		if t.SLABreached {
			out.SLACompliance.Breached++
		} else {
			out.SLACompliance.Met++
		}
		if t.FirstRespondedAt != nil {
			responseTotal += t.FirstRespondedAt.Sub(t.CreatedAt).Minutes()
			responded++
		}
		if t.ResolvedAt != nil {
			resolutionTotal += t.ResolvedAt.Sub(t.CreatedAt).Minutes()
			resolved++
		}
		if t.RedFlagScore >= redFlagThreshold && (t.RedFlagScore > 0 || t.RedFlaggedAt != nil) {
			out.RedFlagCount++
		}
	}
	if out.Total > 0 {
		out.SLACompliance.Percentage = round2(float64(out.SLACompliance.Met) * 100 / float64(out.Total))
	}
	if responded > 0 {
		out.AvgFirstResponseMinutes = round2(responseTotal / float64(responded))
	}
	if resolved > 0 {
		out.AvgResolutionMinutes = round2(resolutionTotal / float64(resolved))
	}
	return out
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}
