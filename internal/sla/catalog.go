package sla

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"go.uber.org/zap"

	"github.com/spec-kit/helpdesk-service/internal/config"
	"github.com/spec-kit/helpdesk-service/internal/domain"
	"github.com/spec-kit/helpdesk-service/internal/repository"
	apperrors "github.com/spec-kit/helpdesk-service/pkg/util/errorutil"
)

// Catalog resolves SLA policies and business calendars for tickets.
type Catalog struct {
	policies  repository.SLAPolicyRepository
	calendars repository.BusinessCalendarRepository
	defaults  []domain.SLAPolicy
	fallback  domain.BusinessCalendar
	logger    *zap.Logger
}

// CatalogDependencies bundles collaborators for the catalog.
type CatalogDependencies struct {
	PolicyRepo   repository.SLAPolicyRepository
	CalendarRepo repository.BusinessCalendarRepository
	Config       config.SLAConfig
	Logger       *zap.Logger
}

// NewCatalog constructs the catalog.
func NewCatalog(deps CatalogDependencies) (*Catalog, error) {
	fallback, err := CalendarFromConfig(deps.Config)
	if err != nil {
		return nil, fmt.Errorf("default calendar: %w", err)
	}
	if _, err := NewCalendar(fallback); err != nil {
		return nil, fmt.Errorf("default calendar: %w", err)
	}
	logger := deps.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Catalog{
		policies:  deps.PolicyRepo,
		calendars: deps.CalendarRepo,
		defaults:  DefaultPolicies(deps.Config),
		fallback:  fallback,
		logger:    logger,
	}, nil
}

// DefaultPolicies returns the global policy per priority described by configuration.
func DefaultPolicies(cfg config.SLAConfig) []domain.SLAPolicy {
	mk := func(p domain.TicketPriority, first, resolution int) domain.SLAPolicy {
		return domain.SLAPolicy{
			Priority:             p,
			FirstResponseMinutes: first,
			ResolutionMinutes:    resolution,
			BusinessHoursOnly:    cfg.BusinessHoursOnly,
		}
	}
	return []domain.SLAPolicy{
		mk(domain.TicketPriorityLow, cfg.LowFirstResponseMinutes, cfg.LowResolutionMinutes),
		mk(domain.TicketPriorityMedium, cfg.MediumFirstResponseMinutes, cfg.MediumResolutionMinutes),
		mk(domain.TicketPriorityHigh, cfg.HighFirstResponseMinutes, cfg.HighResolutionMinutes),
		mk(domain.TicketPriorityCritical, cfg.CriticalFirstResponseMinutes, cfg.CriticalResolutionMinutes),
	}
}

// Bootstrap installs missing global policies and checks every priority resolves.
func (c *Catalog) Bootstrap(ctx context.Context) error {
	for i := range c.defaults {
		policy := c.defaults[i]
		_, err := c.policies.Find(ctx, nil, nil, policy.Priority)
		if err == nil {
			continue
		}
		if !errors.Is(err, pgx.ErrNoRows) {
			return fmt.Errorf("lookup global policy %s: %w", policy.Priority, err)
		}
		if err := ValidatePolicy(&policy); err != nil {
			return fmt.Errorf("global policy %s: %w", policy.Priority, err)
		}
		if err := c.policies.Create(ctx, &policy); err != nil && !errors.Is(err, repository.ErrDuplicate) {
			return fmt.Errorf("install global policy %s: %w", policy.Priority, err)
		}
		c.logger.Info("installed global sla policy",
			zap.String("priority", string(policy.Priority)),
			zap.Int("first_response_minutes", policy.FirstResponseMinutes),
			zap.Int("resolution_minutes", policy.ResolutionMinutes))
	}
	for _, p := range domain.AllTicketPriorities {
		if _, err := c.policies.Find(ctx, nil, nil, p); err != nil {
			return apperrors.NewPolicyNotFound("", "", string(p))
		}
	}
	return nil
}

// Resolve walks tenant+category+priority, tenant+priority, then global+priority.
func (c *Catalog) Resolve(ctx context.Context, tenantID, category string, priority domain.TicketPriority) (*domain.SLAPolicy, error) {
	tenant := &tenantID
	candidates := make([][2]*string, 0, 3)
	if strings.TrimSpace(category) != "" {
		cat := category
		candidates = append(candidates, [2]*string{tenant, &cat})
	}
	candidates = append(candidates, [2]*string{tenant, nil}, [2]*string{nil, nil})

	for _, scope := range candidates {
		policy, err := c.policies.Find(ctx, scope[0], scope[1], priority)
		if err == nil {
			return policy, nil
		}
		if !errors.Is(err, pgx.ErrNoRows) {
			return nil, err
		}
	}
	return nil, apperrors.NewPolicyNotFound(tenantID, category, string(priority))
}

// CalendarFor returns the tenant calendar or the configured fallback.
func (c *Catalog) CalendarFor(ctx context.Context, tenantID string) (Calendar, error) {
	if c.calendars != nil {
		stored, err := c.calendars.Get(ctx, tenantID)
		switch {
		case err == nil:
			cal, perr := NewCalendar(*stored)
			if perr == nil {
				return cal, nil
			}
			c.logger.Warn("invalid tenant calendar; using default",
				zap.String("tenant_id", tenantID), zap.Error(perr))
		case !errors.Is(err, pgx.ErrNoRows):
			return Calendar{}, err
		}
	}
	return NewCalendar(c.fallback)
}

// DefaultCalendar returns the configured fallback calendar definition.
func (c *Catalog) DefaultCalendar() domain.BusinessCalendar {
	return c.fallback
}

// DueDatesFor resolves the policy and computes both deadlines from start.
func (c *Catalog) DueDatesFor(ctx context.Context, tenantID, category string, priority domain.TicketPriority, start time.Time) (*domain.SLAPolicy, DueDates, error) {
	policy, err := c.Resolve(ctx, tenantID, category, priority)
	if err != nil {
		return nil, DueDates{}, err
	}
	cal, err := c.CalendarFor(ctx, tenantID)
	if err != nil {
		return nil, DueDates{}, err
	}
	return policy, ComputeDueDates(*policy, start, cal), nil
}

// ValidatePolicy enforces policy shape rules.
func ValidatePolicy(p *domain.SLAPolicy) error {
	details := map[string]any{}
	if !p.Priority.Valid() {
		details["priority"] = "must be one of low, medium, high, critical"
	}
	if p.FirstResponseMinutes <= 0 {
		details["first_response_minutes"] = "must be positive"
	}
	if p.ResolutionMinutes <= 0 {
		details["resolution_minutes"] = "must be positive"
	}
	if p.ResolutionMinutes < p.FirstResponseMinutes {
		details["resolution_minutes"] = "must be at least first_response_minutes"
	}
	if p.IsGlobal() && p.Category != nil && *p.Category != "" {
		details["category"] = "global policies cannot be scoped to a category"
	}
	if len(details) > 0 {
		return apperrors.NewValidationError("invalid sla policy", details)
	}
	return nil
}
