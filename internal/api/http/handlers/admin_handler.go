package handlers

import (
	"net/http"
	"strconv"

	"github.com/gofiber/fiber/v2"

	"github.com/spec-kit/helpdesk-service/internal/api/dto"
	"github.com/spec-kit/helpdesk-service/internal/domain"
	"github.com/spec-kit/helpdesk-service/internal/service"
	apperrors "github.com/spec-kit/helpdesk-service/pkg/util/errorutil"
)

// AdminHandler manages SLA policies, escalation rules, calendars and the feature catalog.
type AdminHandler struct {
	service *service.AdminService
}

// NewAdminHandler constructs handler.
func NewAdminHandler(svc *service.AdminService) *AdminHandler {
	return &AdminHandler{service: svc}
}

// ListPolicies GET /admin/sla-policies.
func (h *AdminHandler) ListPolicies(c *fiber.Ctx) error {
	actor, err := actorOf(c)
	if err != nil {
		return err
	}
	policies, err := h.service.ListPolicies(c.UserContext(), actor)
	if err != nil {
		return err
	}
	items := make([]dto.PolicyResponse, 0, len(policies))
	for i := range policies {
		items = append(items, dto.NewPolicyResponse(&policies[i]))
	}
	return c.JSON(fiber.Map{"data": items})
}

// CreatePolicy POST /admin/sla-policies.
func (h *AdminHandler) CreatePolicy(c *fiber.Ctx) error {
	actor, err := actorOf(c)
	if err != nil {
		return err
	}
	var req dto.PolicyRequest
	if err := parseBody(c, &req); err != nil {
		return err
	}
	policy, err := h.service.CreatePolicy(c.UserContext(), actor, policyInput(req))
	if err != nil {
		return err
	}
	return c.Status(http.StatusCreated).JSON(fiber.Map{"data": dto.NewPolicyResponse(policy)})
}

// UpdatePolicy PUT /admin/sla-policies/:id.
func (h *AdminHandler) UpdatePolicy(c *fiber.Ctx) error {
	actor, err := actorOf(c)
	if err != nil {
		return err
	}
	var req dto.PolicyRequest
	if err := parseBody(c, &req); err != nil {
		return err
	}
	policy, err := h.service.UpdatePolicy(c.UserContext(), actor, c.Params("id"), policyInput(req))
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": dto.NewPolicyResponse(policy)})
}

// DeletePolicy DELETE /admin/sla-policies/:id.
func (h *AdminHandler) DeletePolicy(c *fiber.Ctx) error {
	actor, err := actorOf(c)
	if err != nil {
		return err
	}
	if err := h.service.DeletePolicy(c.UserContext(), actor, c.Params("id")); err != nil {
		return err
	}
	return c.SendStatus(http.StatusNoContent)
}

// ListRules GET /admin/escalation-rules.
func (h *AdminHandler) ListRules(c *fiber.Ctx) error {
	actor, err := actorOf(c)
	if err != nil {
		return err
	}
	rules, err := h.service.ListRules(c.UserContext(), actor)
	if err != nil {
		return err
	}
	items := make([]dto.RuleResponse, 0, len(rules))
	for i := range rules {
		items = append(items, dto.NewRuleResponse(&rules[i]))
	}
	return c.JSON(fiber.Map{"data": items})
}

// CreateRule POST /admin/escalation-rules.
func (h *AdminHandler) CreateRule(c *fiber.Ctx) error {
	actor, err := actorOf(c)
	if err != nil {
		return err
	}
	var req dto.RuleRequest
	if err := parseBody(c, &req); err != nil {
		return err
	}
	rule, err := h.service.CreateRule(c.UserContext(), actor, ruleInput(req))
	if err != nil {
		return err
	}
	return c.Status(http.StatusCreated).JSON(fiber.Map{"data": dto.NewRuleResponse(rule)})
}

// UpdateRule PUT /admin/escalation-rules/:id.
func (h *AdminHandler) UpdateRule(c *fiber.Ctx) error {
	actor, err := actorOf(c)
	if err != nil {
		return err
	}
	id, err := ruleID(c)
	if err != nil {
		return err
	}
	var req dto.RuleRequest
	if err := parseBody(c, &req); err != nil {
		return err
	}
	rule, err := h.service.UpdateRule(c.UserContext(), actor, id, ruleInput(req))
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": dto.NewRuleResponse(rule)})
}

// DeleteRule DELETE /admin/escalation-rules/:id.
func (h *AdminHandler) DeleteRule(c *fiber.Ctx) error {
	actor, err := actorOf(c)
	if err != nil {
		return err
	}
	id, err := ruleID(c)
	if err != nil {
		return err
	}
	if err := h.service.DeleteRule(c.UserContext(), actor, id); err != nil {
		return err
	}
	return c.SendStatus(http.StatusNoContent)
}

// GetCalendar GET /admin/business-calendar.
func (h *AdminHandler) GetCalendar(c *fiber.Ctx) error {
	actor, err := actorOf(c)
	if err != nil {
		return err
	}
	cal, err := h.service.GetCalendar(c.UserContext(), actor)
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": dto.NewCalendarResponse(cal)})
}

// PutCalendar PUT /admin/business-calendar.
func (h *AdminHandler) PutCalendar(c *fiber.Ctx) error {
	actor, err := actorOf(c)
	if err != nil {
		return err
	}
	var req dto.CalendarRequest
	if err := parseBody(c, &req); err != nil {
		return err
	}
	cal, err := h.service.PutCalendar(c.UserContext(), actor, req.Calendar())
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": dto.NewCalendarResponse(cal)})
}

// UpsertFeature PUT /admin/features/:id.
func (h *AdminHandler) UpsertFeature(c *fiber.Ctx) error {
	actor, err := actorOf(c)
	if err != nil {
		return err
	}
	var req dto.FeatureRequest
	if err := parseBody(c, &req); err != nil {
		return err
	}
	feature, err := h.service.UpsertFeature(c.UserContext(), actor, domain.Feature{
		ID:         c.Params("id"),
		Key:        req.Key,
		Name:       req.Name,
		Icon:       req.Icon,
		FormSchema: req.FormSchema,
		Categories: req.Categories,
	})
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": feature})
}

func ruleID(c *fiber.Ctx) (int64, error) {
	id, err := strconv.ParseInt(c.Params("id"), 10, 64)
	if err != nil || id <= 0 {
		return 0, apperrors.NewValidationError("invalid rule id", map[string]any{"id": c.Params("id")})
	}
	return id, nil
}

func policyInput(req dto.PolicyRequest) service.PolicyInput {
	return service.PolicyInput{
		Global:               req.Global,
		Category:             req.Category,
		Priority:             req.Priority,
		FirstResponseMinutes: req.FirstResponseMinutes,
		ResolutionMinutes:    req.ResolutionMinutes,
		BusinessHoursOnly:    req.BusinessHoursOnly,
	}
}

func ruleInput(req dto.RuleRequest) service.RuleInput {
	enabled := true
	if req.Enabled != nil {
		enabled = *req.Enabled
	}
	return service.RuleInput{
		Global:         req.Global,
		Name:           req.Name,
		Trigger:        domain.RuleTrigger{Type: req.Trigger.Type, Threshold: req.Trigger.Threshold},
		Action:         domain.RuleAction{Type: req.Action.Type, Team: req.Action.Team, Channel: req.Action.Channel},
		PriorityFilter: req.PriorityFilter,
		Enabled:        enabled,
	}
}
