package service

import (
	"context"
	"errors"
	"strings"

	"github.com/jackc/pgx/v5"
	"go.uber.org/zap"

	"github.com/spec-kit/helpdesk-service/internal/domain"
	"github.com/spec-kit/helpdesk-service/internal/notify"
	"github.com/spec-kit/helpdesk-service/internal/repository"
	"github.com/spec-kit/helpdesk-service/internal/sla"
	apperrors "github.com/spec-kit/helpdesk-service/pkg/util/errorutil"
)

// AdminService manages SLA policies, escalation rules, business calendars and
// the feature catalog. Changes apply to the next ticket creation or evaluation;
// existing due dates are not recomputed.
type AdminService struct {
	policies  repository.SLAPolicyRepository
	rules     repository.EscalationRuleRepository
	calendars repository.BusinessCalendarRepository
	features  repository.FeatureRepository
	catalog   *sla.Catalog
	platform  string
	logger    *zap.Logger
}

// AdminDependencies bundles repositories for administration.
type AdminDependencies struct {
	PolicyRepo   repository.SLAPolicyRepository
	RuleRepo     repository.EscalationRuleRepository
	CalendarRepo repository.BusinessCalendarRepository
	FeatureRepo  repository.FeatureRepository
	Catalog      *sla.Catalog
	Logger       *zap.Logger

	// PlatformTenantID names the tenant whose admins may write global rows.
	PlatformTenantID string
}

// PolicyInput describes an SLA policy write. Global policies apply to every tenant.
type PolicyInput struct {
	Global               bool
	Category             *string
	Priority             domain.TicketPriority
	FirstResponseMinutes int
	ResolutionMinutes    int
	BusinessHoursOnly    bool
}

// RuleInput describes an escalation rule write.
type RuleInput struct {
	Global         bool
	Name           string
	Trigger        domain.RuleTrigger
	Action         domain.RuleAction
	PriorityFilter *domain.TicketPriority
	Enabled        bool
}

// NewAdminService constructs the service.
func NewAdminService(deps AdminDependencies) *AdminService {
	logger := deps.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &AdminService{
		policies:  deps.PolicyRepo,
		rules:     deps.RuleRepo,
		calendars: deps.CalendarRepo,
		features:  deps.FeatureRepo,
		catalog:   deps.Catalog,
		platform:  strings.TrimSpace(deps.PlatformTenantID),
		logger:    logger,
	}
}

func requireAdmin(actor domain.Actor) error {
	if actor.Role != domain.ActorRoleAdmin {
		return apperrors.NewForbidden("admin role required")
	}
	return nil
}

// requirePlatformAdmin guards rows shared by every tenant. Tenant admins only read them.
func (s *AdminService) requirePlatformAdmin(actor domain.Actor) error {
	if err := requireAdmin(actor); err != nil {
		return err
	}
	if s.platform == "" || actor.TenantID != s.platform {
		return apperrors.NewForbidden("global catalog changes require a platform administrator")
	}
	return nil
}

// ListPolicies returns the tenant's policies followed by the global ones.
func (s *AdminService) ListPolicies(ctx context.Context, actor domain.Actor) ([]domain.SLAPolicy, error) {
	if err := requireAdmin(actor); err != nil {
		return nil, err
	}
	return s.policies.ListVisible(ctx, actor.TenantID)
}

// CreatePolicy adds a tenant or global policy.
func (s *AdminService) CreatePolicy(ctx context.Context, actor domain.Actor, input PolicyInput) (*domain.SLAPolicy, error) {
	if err := requireAdmin(actor); err != nil {
		return nil, err
	}
	if input.Global {
		if err := s.requirePlatformAdmin(actor); err != nil {
			return nil, err
		}
	}
	policy := policyFromInput(actor, input)
	if err := sla.ValidatePolicy(policy); err != nil {
		return nil, err
	}
	if err := s.policies.Create(ctx, policy); err != nil {
		return nil, mapPolicyError(err, policy.ID)
	}
	s.logger.Info("sla policy created",
		zap.String("tenant_id", actor.TenantID),
		zap.String("policy_id", policy.ID),
		zap.Bool("global", policy.IsGlobal()))
	return policy, nil
}

// UpdatePolicy replaces the policy values. Its scope cannot change.
func (s *AdminService) UpdatePolicy(ctx context.Context, actor domain.Actor, id string, input PolicyInput) (*domain.SLAPolicy, error) {
	existing, err := s.writablePolicy(ctx, actor, id)
	if err != nil {
		return nil, err
	}
	if existing.IsGlobal() && existing.Priority != input.Priority {
		return nil, apperrors.NewValidationError("invalid sla policy", map[string]any{"priority": "a global policy keeps its priority"})
	}
	existing.Category = normalizeCategory(input.Category)
	existing.Priority = input.Priority
	existing.FirstResponseMinutes = input.FirstResponseMinutes
	existing.ResolutionMinutes = input.ResolutionMinutes
	existing.BusinessHoursOnly = input.BusinessHoursOnly
	if err := sla.ValidatePolicy(existing); err != nil {
		return nil, err
	}
	if err := s.policies.Update(ctx, existing); err != nil {
		return nil, mapPolicyError(err, id)
	}
	return existing, nil
}

// DeletePolicy removes a tenant policy. The global fallback per priority is mandatory.
func (s *AdminService) DeletePolicy(ctx context.Context, actor domain.Actor, id string) error {
	existing, err := s.writablePolicy(ctx, actor, id)
	if err != nil {
		return err
	}
	if existing.IsGlobal() {
		return apperrors.NewConflict("global fallback policies cannot be deleted", map[string]any{"policy_id": id})
	}
	return mapPolicyError(s.policies.Delete(ctx, id), id)
}

func (s *AdminService) visiblePolicy(ctx context.Context, actor domain.Actor, id string) (*domain.SLAPolicy, error) {
	if err := requireAdmin(actor); err != nil {
		return nil, err
	}
	policy, err := s.policies.GetByID(ctx, id)
	if err != nil {
		return nil, mapPolicyError(err, id)
	}
	if policy.TenantID != nil && *policy.TenantID != actor.TenantID {
		return nil, apperrors.NewNotFound("sla policy", map[string]any{"policy_id": id})
	}
	return policy, nil
}

func (s *AdminService) writablePolicy(ctx context.Context, actor domain.Actor, id string) (*domain.SLAPolicy, error) {
	policy, err := s.visiblePolicy(ctx, actor, id)
	if err != nil {
		return nil, err
	}
	if policy.IsGlobal() {
		if err := s.requirePlatformAdmin(actor); err != nil {
			return nil, err
		}
	}
	return policy, nil
}

func policyFromInput(actor domain.Actor, input PolicyInput) *domain.SLAPolicy {
	policy := &domain.SLAPolicy{
		Category:             normalizeCategory(input.Category),
		Priority:             input.Priority,
		FirstResponseMinutes: input.FirstResponseMinutes,
		ResolutionMinutes:    input.ResolutionMinutes,
		BusinessHoursOnly:    input.BusinessHoursOnly,
	}
	if !input.Global {
		tenant := actor.TenantID
		policy.TenantID = &tenant
	}
	return policy
}

func normalizeCategory(category *string) *string {
	if category == nil {
		return nil
	}
	trimmed := strings.TrimSpace(*category)
	if trimmed == "" {
		return nil
	}
	return &trimmed
}

func mapPolicyError(err error, id string) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, pgx.ErrNoRows):
		return apperrors.NewNotFound("sla policy", map[string]any{"policy_id": id})
	case errors.Is(err, repository.ErrDuplicate):
		return apperrors.NewConflict("a policy already exists for this tenant, category and priority", nil)
	}
	return err
}

// ListRules returns tenant and global rules in evaluation order.
func (s *AdminService) ListRules(ctx context.Context, actor domain.Actor) ([]domain.EscalationRule, error) {
	if err := requireAdmin(actor); err != nil {
		return nil, err
	}
	return s.rules.ListForTenant(ctx, actor.TenantID)
}

// CreateRule adds an escalation rule. Rule ids are monotonic so new rules evaluate last.
func (s *AdminService) CreateRule(ctx context.Context, actor domain.Actor, input RuleInput) (*domain.EscalationRule, error) {
	if err := requireAdmin(actor); err != nil {
		return nil, err
	}
	if input.Global {
		if err := s.requirePlatformAdmin(actor); err != nil {
			return nil, err
		}
	}
	if err := ValidateRule(input); err != nil {
		return nil, err
	}
	rule := &domain.EscalationRule{
		Name:           strings.TrimSpace(input.Name),
		Trigger:        input.Trigger,
		Action:         input.Action,
		PriorityFilter: input.PriorityFilter,
		Enabled:        input.Enabled,
	}
	if !input.Global {
		tenant := actor.TenantID
		rule.TenantID = &tenant
	}
	if err := s.rules.Create(ctx, rule); err != nil {
		return nil, err
	}
	s.logger.Info("escalation rule created",
		zap.String("tenant_id", actor.TenantID),
		zap.Int64("rule_id", rule.ID),
		zap.String("trigger", string(rule.Trigger.Type)))
	return rule, nil
}

// UpdateRule replaces the rule definition. Its scope and id are kept.
func (s *AdminService) UpdateRule(ctx context.Context, actor domain.Actor, id int64, input RuleInput) (*domain.EscalationRule, error) {
	rule, err := s.writableRule(ctx, actor, id)
	if err != nil {
		return nil, err
	}
	if err := ValidateRule(input); err != nil {
		return nil, err
	}
	rule.Name = strings.TrimSpace(input.Name)
	rule.Trigger = input.Trigger
	rule.Action = input.Action
	rule.PriorityFilter = input.PriorityFilter
	rule.Enabled = input.Enabled
	if err := s.rules.Update(ctx, rule); err != nil {
		return nil, mapRuleError(err, id)
	}
	return rule, nil
}

// DeleteRule disables the rule. Firing records keep referencing it.
func (s *AdminService) DeleteRule(ctx context.Context, actor domain.Actor, id int64) error {
	if _, err := s.writableRule(ctx, actor, id); err != nil {
		return err
	}
	return mapRuleError(s.rules.Delete(ctx, id), id)
}

func (s *AdminService) visibleRule(ctx context.Context, actor domain.Actor, id int64) (*domain.EscalationRule, error) {
	if err := requireAdmin(actor); err != nil {
		return nil, err
	}
	rule, err := s.rules.GetByID(ctx, id)
	if err != nil {
		return nil, mapRuleError(err, id)
	}
	if rule.TenantID != nil && *rule.TenantID != actor.TenantID {
		return nil, apperrors.NewNotFound("escalation rule", map[string]any{"rule_id": id})
	}
	return rule, nil
}

func (s *AdminService) writableRule(ctx context.Context, actor domain.Actor, id int64) (*domain.EscalationRule, error) {
	rule, err := s.visibleRule(ctx, actor, id)
	if err != nil {
		return nil, err
	}
	if rule.TenantID == nil {
		if err := s.requirePlatformAdmin(actor); err != nil {
			return nil, err
		}
	}
	return rule, nil
}

func mapRuleError(err error, id int64) error {
	if errors.Is(err, pgx.ErrNoRows) {
		return apperrors.NewNotFound("escalation rule", map[string]any{"rule_id": id})
	}
	return err
}

var knownChannels = map[string]bool{
	notify.ChannelEmail:   true,
	notify.ChannelWebhook: true,
	notify.ChannelKafka:   true,
	notify.ChannelLog:     true,
}

// ValidateRule checks trigger and action parameters.
func ValidateRule(input RuleInput) error {
	details := map[string]any{}
	if strings.TrimSpace(input.Name) == "" {
		details["name"] = "is required"
	}
	switch input.Trigger.Type {
	case domain.TriggerRedFlagAbove:
		if input.Trigger.Threshold < 0 || input.Trigger.Threshold > 100 {
			details["trigger.threshold"] = "must be within 0..100"
		}
	case domain.TriggerNoResponseWithin:
		if input.Trigger.Threshold <= 0 {
			details["trigger.threshold"] = "must be a positive number of minutes"
		}
	case domain.TriggerSLABreach, domain.TriggerManual:
	default:
		details["trigger.type"] = "must be one of sla_breach, red_flag_above, no_response_within, manual"
	}
	switch input.Action.Type {
	case domain.ActionReassign:
		if strings.TrimSpace(input.Action.Team) == "" {
			details["action.team"] = "is required for reassign"
		}
	case domain.ActionNotify:
		if !knownChannels[input.Action.Channel] {
			details["action.channel"] = "must be one of email, webhook, kafka, log"
		}
	case domain.ActionEscalateStatus:
	default:
		details["action.type"] = "must be one of reassign, escalate_status, notify"
	}
	if input.PriorityFilter != nil && !input.PriorityFilter.Valid() {
		details["priority_filter"] = "must be one of low, medium, high, critical"
	}
	if len(details) > 0 {
		return apperrors.NewValidationError("invalid escalation rule", details)
	}
	return nil
}

// GetCalendar returns the tenant calendar, or the service default when none is stored.
func (s *AdminService) GetCalendar(ctx context.Context, actor domain.Actor) (*domain.BusinessCalendar, error) {
	if err := requireAdmin(actor); err != nil {
		return nil, err
	}
	cal, err := s.calendars.Get(ctx, actor.TenantID)
	if err == nil {
		return cal, nil
	}
	if !errors.Is(err, pgx.ErrNoRows) {
		return nil, err
	}
	fallback := s.catalog.DefaultCalendar()
	fallback.TenantID = actor.TenantID
	return &fallback, nil
}

// PutCalendar validates and stores the tenant calendar.
func (s *AdminService) PutCalendar(ctx context.Context, actor domain.Actor, calendar domain.BusinessCalendar) (*domain.BusinessCalendar, error) {
	if err := requireAdmin(actor); err != nil {
		return nil, err
	}
	calendar.TenantID = actor.TenantID
	if _, err := sla.NewCalendar(calendar); err != nil {
		return nil, apperrors.NewValidationError("invalid business calendar", map[string]any{"calendar": err.Error()})
	}
	if err := s.calendars.Upsert(ctx, &calendar); err != nil {
		return nil, err
	}
	return &calendar, nil
}

// UpsertFeature syncs a catalog entry from the feature collaborator. The
// catalog is shared, so only platform admins write it.
func (s *AdminService) UpsertFeature(ctx context.Context, actor domain.Actor, feature domain.Feature) (*domain.Feature, error) {
	if err := s.requirePlatformAdmin(actor); err != nil {
		return nil, err
	}
	details := map[string]any{}
	if strings.TrimSpace(feature.ID) == "" {
		details["id"] = "is required"
	}
	if strings.TrimSpace(feature.Key) == "" {
		details["key"] = "is required"
	}
	for _, field := range feature.FormSchema {
		if strings.TrimSpace(field.Key) == "" {
			details["form_schema"] = "every field needs a key"
			break
		}
	}
	if len(details) > 0 {
		return nil, apperrors.NewValidationError("invalid feature", details)
	}
	if err := s.features.Upsert(ctx, &feature); err != nil {
		return nil, err
	}
	return &feature, nil
}
