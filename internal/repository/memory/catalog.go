package memory

import (
	"context"
	"sort"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/spec-kit/helpdesk-service/internal/domain"
	"github.com/spec-kit/helpdesk-service/internal/repository"
)

type policyRepo struct{ s *Store }

func (r policyRepo) Create(_ context.Context, policy *domain.SLAPolicy) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if r.findLocked(policy.TenantID, policy.Category, policy.Priority, "") != nil {
		return repository.ErrDuplicate
	}
	if policy.ID == "" {
		policy.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	policy.CreatedAt, policy.UpdatedAt = now, now
	stored := *policy
	r.s.policies[policy.ID] = &stored
	return nil
}

func (r policyRepo) Update(_ context.Context, policy *domain.SLAPolicy) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	existing, ok := r.s.policies[policy.ID]
	if !ok {
		return pgx.ErrNoRows
	}
	if r.findLocked(existing.TenantID, policy.Category, policy.Priority, policy.ID) != nil {
		return repository.ErrDuplicate
	}
	policy.TenantID = existing.TenantID
	policy.CreatedAt = existing.CreatedAt
	policy.UpdatedAt = time.Now().UTC()
	stored := *policy
	r.s.policies[policy.ID] = &stored
	return nil
}

func (r policyRepo) Delete(_ context.Context, id string) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if _, ok := r.s.policies[id]; !ok {
		return pgx.ErrNoRows
	}
	delete(r.s.policies, id)
	return nil
}

func (r policyRepo) GetByID(_ context.Context, id string) (*domain.SLAPolicy, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	p, ok := r.s.policies[id]
	if !ok {
		return nil, pgx.ErrNoRows
	}
	out := *p
	return &out, nil
}

func (r policyRepo) Find(_ context.Context, tenantID, category *string, priority domain.TicketPriority) (*domain.SLAPolicy, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	p := r.findLocked(tenantID, category, priority, "")
	if p == nil {
		return nil, pgx.ErrNoRows
	}
	out := *p
	return &out, nil
}

func (r policyRepo) ListVisible(_ context.Context, tenantID string) ([]domain.SLAPolicy, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	var result []domain.SLAPolicy
	for _, p := range r.s.policies {
		if p.TenantID == nil || *p.TenantID == tenantID {
			result = append(result, *p)
		}
	}
	sort.Slice(result, func(i, j int) bool {
		gi, gj := result[i].TenantID == nil, result[j].TenantID == nil
		if gi != gj {
			return !gi
		}
		return result[i].Priority < result[j].Priority
	})
	return result, nil
}

func (r policyRepo) findLocked(tenantID, category *string, priority domain.TicketPriority, skipID string) *domain.SLAPolicy {
	for id, p := range r.s.policies {
		if id == skipID {
			continue
		}
		if equalPtr(p.TenantID, tenantID) && equalPtr(p.Category, category) && p.Priority == priority {
			return p
		}
	}
	return nil
}

func equalPtr(a, b *string) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	return *a == *b
}

type ruleRepo struct{ s *Store }

func (r ruleRepo) Create(_ context.Context, rule *domain.EscalationRule) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	r.s.nextRuleID++
	rule.ID = r.s.nextRuleID
	now := time.Now().UTC()
	rule.CreatedAt, rule.UpdatedAt = now, now
	stored := *rule
	r.s.rules[rule.ID] = &stored
	return nil
}

func (r ruleRepo) Update(_ context.Context, rule *domain.EscalationRule) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	existing, ok := r.s.rules[rule.ID]
	if !ok {
		return pgx.ErrNoRows
	}
	rule.TenantID = existing.TenantID
	rule.CreatedAt = existing.CreatedAt
	rule.UpdatedAt = time.Now().UTC()
	stored := *rule
	r.s.rules[rule.ID] = &stored
	return nil
}

func (r ruleRepo) Delete(_ context.Context, id int64) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	existing, ok := r.s.rules[id]
	if !ok {
		return pgx.ErrNoRows
	}
	existing.Enabled = false
	existing.UpdatedAt = time.Now().UTC()
	return nil
}

func (r ruleRepo) GetByID(_ context.Context, id int64) (*domain.EscalationRule, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	rule, ok := r.s.rules[id]
	if !ok {
		return nil, pgx.ErrNoRows
	}
	out := *rule
	return &out, nil
}

func (r ruleRepo) ListForTenant(_ context.Context, tenantID string) ([]domain.EscalationRule, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	var result []domain.EscalationRule
	for _, rule := range r.s.rules {
		if rule.TenantID == nil || *rule.TenantID == tenantID {
			result = append(result, *rule)
		}
	}
	sort.Slice(result, func(i, j int) bool { return result[i].ID < result[j].ID })
	return result, nil
}

type calendarRepo struct{ s *Store }

func (r calendarRepo) Get(_ context.Context, tenantID string) (*domain.BusinessCalendar, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	cal, ok := r.s.calendars[tenantID]
	if !ok {
		return nil, pgx.ErrNoRows
	}
	out := *cal
	out.WorkingDays = append([]time.Weekday{}, cal.WorkingDays...)
	out.Holidays = append([]string{}, cal.Holidays...)
	return &out, nil
}

func (r calendarRepo) Upsert(_ context.Context, calendar *domain.BusinessCalendar) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	calendar.UpdatedAt = time.Now().UTC()
	stored := *calendar
	stored.WorkingDays = append([]time.Weekday{}, calendar.WorkingDays...)
	stored.Holidays = append([]string{}, calendar.Holidays...)
	r.s.calendars[calendar.TenantID] = &stored
	return nil
}

type featureRepo struct{ s *Store }

func (r featureRepo) GetByID(_ context.Context, id string) (*domain.Feature, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	f, ok := r.s.features[id]
	if !ok {
		return nil, pgx.ErrNoRows
	}
	out := *f
	return &out, nil
}

func (r featureRepo) Upsert(_ context.Context, feature *domain.Feature) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	stored := *feature
	r.s.features[feature.ID] = &stored
	return nil
}
