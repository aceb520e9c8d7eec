package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/spec-kit/helpdesk-service/internal/domain"
	"github.com/spec-kit/helpdesk-service/internal/events"
	"github.com/spec-kit/helpdesk-service/internal/scoring"
)

func TestSLABreachEscalatesWhenRuleExists(t *testing.T) {
	h := newHarness(t)
	category := "it"
	tenant := tenantA
	require.NoError(t, h.store.Policies().Create(h.ctx, &domain.SLAPolicy{
		TenantID: &tenant, Category: &category, Priority: domain.TicketPriorityMedium,
		FirstResponseMinutes: 60, ResolutionMinutes: 480,
	}))
	h.addRule(domain.EscalationRule{
		Trigger: domain.RuleTrigger{Type: domain.TriggerSLABreach},
		Action:  domain.RuleAction{Type: domain.ActionEscalateStatus},
	})
	ticket := h.createTicket(domain.TicketPriorityMedium)

	h.advance(61 * time.Minute)
	changed, err := h.lifecycle.FlagSLABreach(h.ctx, tenantA, ticket.ID, h.now)
	require.NoError(t, err)
	assert.True(t, changed)

	got := h.reload(ticket.ID)
	assert.True(t, got.SLABreached)
	assert.True(t, got.FirstResponseBreached)
	assert.False(t, got.ResolutionBreached)
	assert.Equal(t, domain.TicketStatusEscalated, got.Status)
	assert.Len(t, h.history(ticket.ID, domain.ChangeTypeSLABreach), 1)
	assert.Len(t, h.eventsOf(events.EventSLABreached), 1)

	var bodies []string
	for _, c := range h.comments(ticket.ID) {
		bodies = append(bodies, c.Body)
	}
	assert.Contains(t, bodies, "SLA breached: first response was due at 2024-03-04T11:00:00Z")
}

func TestRulesFireInIDOrderOncePerInstance(t *testing.T) {
	h := newHarness(t)
	first := h.addRule(domain.EscalationRule{
		Name:    "tier2",
		Trigger: domain.RuleTrigger{Type: domain.TriggerSLABreach},
		Action:  domain.RuleAction{Type: domain.ActionReassign, Team: "tier2"},
	})
	h.addRule(domain.EscalationRule{
		Trigger: domain.RuleTrigger{Type: domain.TriggerSLABreach},
		Action:  domain.RuleAction{Type: domain.ActionEscalateStatus},
	})
	ticket := h.createTicket(domain.TicketPriorityCritical)

	h.advance(31 * time.Minute)
	_, err := h.lifecycle.FlagSLABreach(h.ctx, tenantA, ticket.ID, h.now)
	require.NoError(t, err)

	got := h.reload(ticket.ID)
	require.NotNil(t, got.AssignedTeam)
	assert.Equal(t, "tier2", *got.AssignedTeam)
	assert.Equal(t, domain.TicketStatusNew, got.Status, "only the first matching rule fires")

	firings, err := h.store.Firings().ListByTicket(h.ctx, ticket.ID)
	require.NoError(t, err)
	require.Len(t, firings, 1)
	assert.Equal(t, first.ID, firings[0].RuleID)

	again, err := h.lifecycle.FlagSLABreach(h.ctx, tenantA, ticket.ID, h.now.Add(time.Minute))
	require.NoError(t, err)
	assert.False(t, again)

	firings, err = h.store.Firings().ListByTicket(h.ctx, ticket.ID)
	require.NoError(t, err)
	assert.Len(t, firings, 1)
}

func TestEvaluateSkipsFiredInstanceAndFallsThrough(t *testing.T) {
	h := newHarness(t)
	h.addRule(domain.EscalationRule{
		Trigger: domain.RuleTrigger{Type: domain.TriggerSLABreach},
		Action:  domain.RuleAction{Type: domain.ActionNotify, Channel: "log"},
	})
	h.addRule(domain.EscalationRule{
		Trigger: domain.RuleTrigger{Type: domain.TriggerSLABreach},
		Action:  domain.RuleAction{Type: domain.ActionNotify, Channel: "email"},
	})
	ticket := h.reload(h.createTicket(domain.TicketPriorityMedium).ID)
	trigger := domain.SLABreachTrigger("resolution", ticket.ResolutionDueAt)

	var channels []string
	for i := 0; i < 3; i++ {
		actions, err := h.escalations.Evaluate(h.ctx, ticket, trigger)
		require.NoError(t, err)
		for _, a := range actions {
			channels = append(channels, a.Channel)
		}
	}
	assert.Equal(t, []string{"log", "email"}, channels)
	assert.Len(t, h.eventsOf(events.EventEscalationNotify), 2)
}

func TestPriorityFilterAndDisabledRules(t *testing.T) {
	h := newHarness(t)
	critical := domain.TicketPriorityCritical
	h.addRule(domain.EscalationRule{
		Trigger:        domain.RuleTrigger{Type: domain.TriggerSLABreach},
		Action:         domain.RuleAction{Type: domain.ActionEscalateStatus},
		PriorityFilter: &critical,
	})
	disabled := h.addRule(domain.EscalationRule{
		Trigger: domain.RuleTrigger{Type: domain.TriggerSLABreach},
		Action:  domain.RuleAction{Type: domain.ActionEscalateStatus},
	})
	require.NoError(t, h.store.Rules().Delete(h.ctx, disabled.ID))

	ticket := h.reload(h.createTicket(domain.TicketPriorityMedium).ID)
	actions, err := h.escalations.Evaluate(h.ctx, ticket, domain.SLABreachTrigger("resolution", ticket.ResolutionDueAt))
	require.NoError(t, err)
	assert.Empty(t, actions)
}

func TestManualEscalationAlwaysEscalates(t *testing.T) {
	h := newHarness(t)
	ticket := h.createTicket(domain.TicketPriorityLow)
	h.move(ticket.ID, domain.TicketStatusOpen)

	got, err := h.lifecycle.Escalate(h.ctx, agent, ticket.ID, "VIP user")
	require.NoError(t, err)
	assert.Equal(t, domain.TicketStatusEscalated, got.Status)
	require.Len(t, h.history(ticket.ID, domain.ChangeTypeEscalation), 1)

	h.addRule(domain.EscalationRule{
		Trigger: domain.RuleTrigger{Type: domain.TriggerManual},
		Action:  domain.RuleAction{Type: domain.ActionNotify, Channel: "webhook"},
	})
	got, err = h.lifecycle.Escalate(h.ctx, agent, ticket.ID, "still stuck")
	require.NoError(t, err)
	assert.Equal(t, domain.TicketStatusEscalated, got.Status)

	notes := h.eventsOf(events.EventEscalationNotify)
	require.Len(t, notes, 1)
	payload := notes[0].Payload.(events.EscalationNotifyPayload)
	assert.Equal(t, "webhook", payload.Channel)
	assert.Equal(t, "still stuck", payload.Note)

	h.move(ticket.ID, domain.TicketStatusResolved)
	_, err = h.lifecycle.Escalate(h.ctx, agent, ticket.ID, "")
	assert.Error(t, err)
}

func TestNoResponseRulesAreTiered(t *testing.T) {
	h := newHarness(t)
	h.addRule(domain.EscalationRule{
		Trigger: domain.RuleTrigger{Type: domain.TriggerNoResponseWithin, Threshold: 30},
		Action:  domain.RuleAction{Type: domain.ActionNotify, Channel: "email"},
	})
	h.addRule(domain.EscalationRule{
		Trigger: domain.RuleTrigger{Type: domain.TriggerNoResponseWithin, Threshold: 60},
		Action:  domain.RuleAction{Type: domain.ActionReassign, Team: "leads"},
	})
	ticket := h.createTicket(domain.TicketPriorityMedium)
	start := h.now

	fired, err := h.lifecycle.CheckNoResponse(h.ctx, tenantA, ticket.ID, start.Add(10*time.Minute))
	require.NoError(t, err)
	assert.False(t, fired)

	fired, err = h.lifecycle.CheckNoResponse(h.ctx, tenantA, ticket.ID, start.Add(31*time.Minute))
	require.NoError(t, err)
	assert.True(t, fired)

	fired, err = h.lifecycle.CheckNoResponse(h.ctx, tenantA, ticket.ID, start.Add(45*time.Minute))
	require.NoError(t, err)
	assert.False(t, fired)

	fired, err = h.lifecycle.CheckNoResponse(h.ctx, tenantA, ticket.ID, start.Add(61*time.Minute))
	require.NoError(t, err)
	assert.True(t, fired)
	require.NotNil(t, h.reload(ticket.ID).AssignedTeam)
	assert.Equal(t, "leads", *h.reload(ticket.ID).AssignedTeam)

	_, err = h.lifecycle.PostComment(h.ctx, agent, ticket.ID, "on it")
	require.NoError(t, err)
	fired, err = h.lifecycle.CheckNoResponse(h.ctx, tenantA, ticket.ID, start.Add(200*time.Minute))
	require.NoError(t, err)
	assert.False(t, fired)
}

func TestRedFlagFirstCrossingEscalatesOnce(t *testing.T) {
	h := newHarness(t)
	h.addRule(domain.EscalationRule{
		Trigger: domain.RuleTrigger{Type: domain.TriggerRedFlagAbove, Threshold: 60},
		Action:  domain.RuleAction{Type: domain.ActionEscalateStatus},
	})
	score := 72
	h.scorer = func(context.Context, *domain.Ticket, *domain.Comment) (scoring.Result, error) {
		return scoring.Result{Score: score, Sentiment: domain.SentimentAngry}, nil
	}
	ticket := h.createTicket(domain.TicketPriorityMedium)

	_, err := h.lifecycle.PostComment(h.ctx, employee, ticket.ID, "This is the third time I am asking!!")
	require.NoError(t, err)

	got := h.reload(ticket.ID)
	assert.Equal(t, 72, got.RedFlagScore)
	require.NotNil(t, got.AISentiment)
	assert.Equal(t, domain.SentimentAngry, *got.AISentiment)
	require.NotNil(t, got.RedFlaggedAt)
	assert.Equal(t, domain.TicketStatusEscalated, got.Status)

	score = 90
	_, err = h.lifecycle.PostComment(h.ctx, employee, ticket.ID, "Hello??")
	require.NoError(t, err)

	assert.Equal(t, 90, h.reload(ticket.ID).RedFlagScore)
	assert.Len(t, h.history(ticket.ID, domain.ChangeTypeRedFlag), 1)
	assert.Len(t, h.eventsOf(events.EventTicketRedFlagged), 1)
	firings, err := h.store.Firings().ListByTicket(h.ctx, ticket.ID)
	require.NoError(t, err)
	assert.Len(t, firings, 1)
}

func TestRedFlagRulesOnlyEvaluateAtFirstCrossing(t *testing.T) {
	h := newHarness(t)
	low := h.addRule(domain.EscalationRule{
		Trigger: domain.RuleTrigger{Type: domain.TriggerRedFlagAbove, Threshold: 60},
		Action:  domain.RuleAction{Type: domain.ActionNotify, Channel: "log"},
	})
	h.addRule(domain.EscalationRule{
		Trigger: domain.RuleTrigger{Type: domain.TriggerRedFlagAbove, Threshold: 85},
		Action:  domain.RuleAction{Type: domain.ActionReassign, Team: "tier-2"},
	})
	score := 70
	h.scorer = func(context.Context, *domain.Ticket, *domain.Comment) (scoring.Result, error) {
		return scoring.Result{Score: score, Sentiment: domain.SentimentNegative}, nil
	}
	ticket := h.createTicket(domain.TicketPriorityMedium)

	_, err := h.lifecycle.PostComment(h.ctx, employee, ticket.ID, "still waiting")
	require.NoError(t, err)
	score = 95
	_, err = h.lifecycle.PostComment(h.ctx, employee, ticket.ID, "unacceptable")
	require.NoError(t, err)

	firings, err := h.store.Firings().ListByTicket(h.ctx, ticket.ID)
	require.NoError(t, err)
	require.Len(t, firings, 1)
	assert.Equal(t, low.ID, firings[0].RuleID)
	assert.Nil(t, h.reload(ticket.ID).AssignedTeam)
}

func TestScorerFailureLeavesTicketUntouched(t *testing.T) {
	h := newHarness(t)
	h.scorer = func(context.Context, *domain.Ticket, *domain.Comment) (scoring.Result, error) {
		return scoring.Result{}, errors.New("model overloaded")
	}
	ticket := h.createTicket(domain.TicketPriorityMedium)

	comment, err := h.lifecycle.PostComment(h.ctx, employee, ticket.ID, "any update?")
	require.NoError(t, err)
	assert.NotEmpty(t, comment.ID)

	got := h.reload(ticket.ID)
	assert.Zero(t, got.RedFlagScore)
	assert.Nil(t, got.AISentiment)
	assert.Nil(t, got.RedFlaggedAt)
}

func TestAssignment(t *testing.T) {
	h := newHarness(t)
	ticket := h.createTicket(domain.TicketPriorityMedium)

	other := "agent-2"
	_, err := h.assignments.Assign(h.ctx, agent, ticket.ID, AssignmentInput{AssigneeID: &other})
	assert.Error(t, err)

	got, err := h.assignments.SelfAssign(h.ctx, agent, ticket.ID)
	require.NoError(t, err)
	require.NotNil(t, got.AssigneeID)
	assert.Equal(t, agent.ID, *got.AssigneeID)

	team := "network"
	got, err = h.assignments.Assign(h.ctx, admin, ticket.ID, AssignmentInput{Team: &team})
	require.NoError(t, err)
	assert.Nil(t, got.AssigneeID)
	assert.Equal(t, "network", *got.AssignedTeam)
	assert.Len(t, h.history(ticket.ID, domain.ChangeTypeAssignment), 2)

	_, err = h.assignments.SelfAssign(h.ctx, employee, ticket.ID)
	assert.Error(t, err)
}
