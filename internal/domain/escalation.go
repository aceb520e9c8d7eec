package domain

import (
	"fmt"
	"time"
)

// TriggerType enumerates escalation triggers.
type TriggerType string

const (
	TriggerSLABreach        TriggerType = "sla_breach"
	TriggerRedFlagAbove     TriggerType = "red_flag_above"
	TriggerNoResponseWithin TriggerType = "no_response_within"
	TriggerManual           TriggerType = "manual"
)

// Valid reports whether the trigger type is known.
func (t TriggerType) Valid() bool {
	switch t {
	case TriggerSLABreach, TriggerRedFlagAbove, TriggerNoResponseWithin, TriggerManual:
		return true
	}
	return false
}

// ActionType enumerates escalation actions.
type ActionType string

const (
	ActionReassign       ActionType = "reassign"
	ActionEscalateStatus ActionType = "escalate_status"
	ActionNotify         ActionType = "notify"
)

// Valid reports whether the action type is known.
func (a ActionType) Valid() bool {
	switch a {
	case ActionReassign, ActionEscalateStatus, ActionNotify:
		return true
	}
	return false
}

// RuleTrigger is the condition a rule listens for. Threshold is the red flag
// score for red_flag_above and the minutes for no_response_within.
type RuleTrigger struct {
	Type      TriggerType `json:"type"`
	Threshold int         `json:"threshold,omitempty"`
}

// RuleAction is what a fired rule does. Team applies to reassign, Channel to notify.
type RuleAction struct {
	Type    ActionType `json:"type"`
	Team    string     `json:"team,omitempty"`
	Channel string     `json:"channel,omitempty"`
}

// EscalationRule maps a trigger to an action. A nil TenantID applies to all tenants.
type EscalationRule struct {
	ID             int64
	TenantID       *string
	Name           string
	Trigger        RuleTrigger
	Action         RuleAction
	PriorityFilter *TicketPriority
	Enabled        bool
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

// Matches reports whether the rule listens for this trigger on this ticket.
func (r *EscalationRule) Matches(ticket *Ticket, trigger Trigger) bool {
	if !r.Enabled || r.Trigger.Type != trigger.Type {
		return false
	}
	if r.TenantID != nil && *r.TenantID != ticket.TenantID {
		return false
	}
	if r.PriorityFilter != nil && *r.PriorityFilter != ticket.Priority {
		return false
	}
	switch trigger.Type {
	case TriggerRedFlagAbove:
		return ticket.RedFlagScore >= r.Trigger.Threshold
	case TriggerNoResponseWithin:
		return trigger.ElapsedMinutes >= r.Trigger.Threshold
	}
	return true
}

// Trigger is a concrete occurrence delivered to the escalation engine.
// InstanceKey identifies the occurrence so a rule fires at most once for it.
type Trigger struct {
	Type           TriggerType
	InstanceKey    string
	ElapsedMinutes int
	Note           string
}

// SLABreachTrigger builds the trigger for a missed deadline.
func SLABreachTrigger(deadline string, due time.Time) Trigger {
	return Trigger{
		Type:        TriggerSLABreach,
		InstanceKey: fmt.Sprintf("sla_breach:%s:%d", deadline, due.Unix()),
	}
}

// NoResponseTrigger builds the trigger for an unanswered ticket. Elapsed time
// runs from the start of the current SLA cycle.
func NoResponseTrigger(ticket *Ticket, now time.Time) Trigger {
	elapsed := int(now.Sub(ticket.SLAStartedAt) / time.Minute)
	return Trigger{
		Type:           TriggerNoResponseWithin,
		InstanceKey:    fmt.Sprintf("no_response:%d", ticket.FirstResponseDueAt.Unix()),
		ElapsedMinutes: elapsed,
	}
}

// RedFlagTrigger builds the trigger for the first threshold crossing in an SLA cycle.
func RedFlagTrigger(ticket *Ticket) Trigger {
	return Trigger{
		Type:        TriggerRedFlagAbove,
		InstanceKey: fmt.Sprintf("red_flag:%d", ticket.ReopenCount),
	}
}

// ManualTrigger builds a manual escalation trigger with a fresh key.
func ManualTrigger(id, note string) Trigger {
	return Trigger{
		Type:        TriggerManual,
		InstanceKey: "manual:" + id,
		Note:        note,
	}
}

// EscalationFiring records that a rule fired for a trigger instance.
type EscalationFiring struct {
	ID          string
	TicketID    string
	RuleID      int64
	Trigger     TriggerType
	InstanceKey string
	FiredAt     time.Time
}
