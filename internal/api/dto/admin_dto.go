package dto

import (
	"time"

	"github.com/spec-kit/helpdesk-service/internal/domain"
)

// PolicyRequest creates or updates an SLA policy.
type PolicyRequest struct {
	Global               bool                  `json:"global"`
	Category             *string               `json:"category" validate:"omitempty,max=100"`
	Priority             domain.TicketPriority `json:"priority" validate:"required,ticket_priority"`
	FirstResponseMinutes int                   `json:"first_response_minutes" validate:"gt=0"`
	ResolutionMinutes    int                   `json:"resolution_minutes" validate:"gt=0"`
	BusinessHoursOnly    bool                  `json:"business_hours_only"`
}

// PolicyResponse is the SLA policy representation.
type PolicyResponse struct {
	ID                   string                `json:"id"`
	TenantID             *string               `json:"tenant_id"`
	Category             *string               `json:"category"`
	Priority             domain.TicketPriority `json:"priority"`
	FirstResponseMinutes int                   `json:"first_response_minutes"`
	ResolutionMinutes    int                   `json:"resolution_minutes"`
	BusinessHoursOnly    bool                  `json:"business_hours_only"`
	CreatedAt            time.Time             `json:"created_at"`
	UpdatedAt            time.Time             `json:"updated_at"`
}

// RuleTriggerRequest describes the trigger of a rule.
type RuleTriggerRequest struct {
	Type      domain.TriggerType `json:"type" validate:"required,trigger_type"`
	Threshold int                `json:"threshold" validate:"gte=0"`
}

// RuleActionRequest describes the action of a rule.
type RuleActionRequest struct {
	Type    domain.ActionType `json:"type" validate:"required,action_type"`
	Team    string            `json:"team"`
	Channel string            `json:"channel"`
}

// RuleRequest creates or updates an escalation rule.
type RuleRequest struct {
	Global         bool                   `json:"global"`
	Name           string                 `json:"name" validate:"required,not_blank,max=200"`
	Trigger        RuleTriggerRequest     `json:"trigger"`
	Action         RuleActionRequest      `json:"action"`
	PriorityFilter *domain.TicketPriority `json:"priority_filter" validate:"omitempty,ticket_priority"`
	Enabled        *bool                  `json:"enabled"`
}

// RuleResponse is the escalation rule representation.
type RuleResponse struct {
	ID             int64                  `json:"id"`
	TenantID       *string                `json:"tenant_id"`
	Name           string                 `json:"name"`
	Trigger        domain.RuleTrigger     `json:"trigger"`
	Action         domain.RuleAction      `json:"action"`
	PriorityFilter *domain.TicketPriority `json:"priority_filter"`
	Enabled        bool                   `json:"enabled"`
	CreatedAt      time.Time              `json:"created_at"`
	UpdatedAt      time.Time              `json:"updated_at"`
}

// CalendarRequest replaces the tenant business calendar.
type CalendarRequest struct {
	Timezone    string   `json:"timezone" validate:"required"`
	WorkingDays []string `json:"working_days" validate:"required,min=1,dive,oneof=sun mon tue wed thu fri sat"`
	DayStart    string   `json:"day_start" validate:"required,len=5"`
	DayEnd      string   `json:"day_end" validate:"required,len=5"`
	Holidays    []string `json:"holidays" validate:"dive,datetime=2006-01-02"`
}

// CalendarResponse is the business calendar representation.
type CalendarResponse struct {
	TenantID    string    `json:"tenant_id"`
	Timezone    string    `json:"timezone"`
	WorkingDays []string  `json:"working_days"`
	DayStart    string    `json:"day_start"`
	DayEnd      string    `json:"day_end"`
	Holidays    []string  `json:"holidays"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// FeatureRequest syncs a catalog feature.
type FeatureRequest struct {
	Key        string             `json:"key" validate:"required,not_blank"`
	Name       string             `json:"name" validate:"required"`
	Icon       string             `json:"icon"`
	FormSchema []domain.FormField `json:"form_schema" validate:"dive"`
	Categories []string           `json:"categories"`
}

var weekdayNames = []string{"sun", "mon", "tue", "wed", "thu", "fri", "sat"}

// NewPolicyResponse maps a policy.
func NewPolicyResponse(p *domain.SLAPolicy) PolicyResponse {
	return PolicyResponse{
		ID:                   p.ID,
		TenantID:             p.TenantID,
		Category:             p.Category,
		Priority:             p.Priority,
		FirstResponseMinutes: p.FirstResponseMinutes,
		ResolutionMinutes:    p.ResolutionMinutes,
		BusinessHoursOnly:    p.BusinessHoursOnly,
		CreatedAt:            p.CreatedAt,
		UpdatedAt:            p.UpdatedAt,
	}
}

// NewRuleResponse maps a rule.
func NewRuleResponse(r *domain.EscalationRule) RuleResponse {
	return RuleResponse{
		ID:             r.ID,
		TenantID:       r.TenantID,
		Name:           r.Name,
		Trigger:        r.Trigger,
		Action:         r.Action,
		PriorityFilter: r.PriorityFilter,
		Enabled:        r.Enabled,
		CreatedAt:      r.CreatedAt,
		UpdatedAt:      r.UpdatedAt,
	}
}

// Calendar converts the request to the domain calendar.
func (r CalendarRequest) Calendar() domain.BusinessCalendar {
	days := make([]time.Weekday, 0, len(r.WorkingDays))
	for _, name := range r.WorkingDays {
		for idx, candidate := range weekdayNames {
			if candidate == name {
				days = append(days, time.Weekday(idx))
			}
		}
	}
	return domain.BusinessCalendar{
		Timezone:    r.Timezone,
		WorkingDays: days,
		DayStart:    r.DayStart,
		DayEnd:      r.DayEnd,
		Holidays:    r.Holidays,
	}
}

// NewCalendarResponse maps a calendar.
func NewCalendarResponse(c *domain.BusinessCalendar) CalendarResponse {
	days := make([]string, 0, len(c.WorkingDays))
	for _, d := range c.WorkingDays {
		days = append(days, weekdayNames[d])
	}
	holidays := c.Holidays
	if holidays == nil {
		holidays = []string{}
	}
	return CalendarResponse{
		TenantID:    c.TenantID,
		Timezone:    c.Timezone,
		WorkingDays: days,
		DayStart:    c.DayStart,
		DayEnd:      c.DayEnd,
		Holidays:    holidays,
		UpdatedAt:   c.UpdatedAt,
	}
}
