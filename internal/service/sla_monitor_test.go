package service

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/spec-kit/helpdesk-service/internal/domain"
	"github.com/spec-kit/helpdesk-service/internal/events"
)

const autoCloseGrace = 7 * 24 * time.Hour

func TestFlagSLABreachOncePerDeadline(t *testing.T) {
	h := newHarness(t)
	ticket := h.createTicket(domain.TicketPriorityHigh)

	changed, err := h.lifecycle.FlagSLABreach(h.ctx, tenantA, ticket.ID, h.advance(121*time.Minute))
	require.NoError(t, err)
	assert.True(t, changed)

	got := h.reload(ticket.ID)
	assert.True(t, got.SLABreached)
	assert.True(t, got.FirstResponseBreached)
	assert.False(t, got.ResolutionBreached)
	require.Len(t, h.history(ticket.ID, domain.ChangeTypeSLABreach), 1)

	changed, err = h.lifecycle.FlagSLABreach(h.ctx, tenantA, ticket.ID, h.advance(time.Minute))
	require.NoError(t, err)
	assert.False(t, changed)
	assert.Len(t, h.history(ticket.ID, domain.ChangeTypeSLABreach), 1)
	assert.Len(t, h.eventsOf(events.EventSLABreached), 1)

	changed, err = h.lifecycle.FlagSLABreach(h.ctx, tenantA, ticket.ID, h.advance(24*time.Hour))
	require.NoError(t, err)
	assert.True(t, changed)
	assert.True(t, h.reload(ticket.ID).ResolutionBreached)
	entries := h.history(ticket.ID, domain.ChangeTypeSLABreach)
	require.Len(t, entries, 2)
	assert.Equal(t, "resolution", entries[1].NewValue["deadline"])
	assert.Equal(t, domain.ActorRoleSystem, entries[1].ChangedByRole)
}

func TestFlagSLABreachIgnoresAnsweredAndSettledTickets(t *testing.T) {
	h := newHarness(t)
	answered := h.createTicket(domain.TicketPriorityHigh)
	_, err := h.lifecycle.PostComment(h.ctx, agent, answered.ID, "Looking into it")
	require.NoError(t, err)

	resolved := h.createTicket(domain.TicketPriorityHigh)
	h.move(resolved.ID, domain.TicketStatusOpen, domain.TicketStatusInProgress, domain.TicketStatusResolved)

	now := h.advance(3 * time.Hour)
	for _, id := range []string{answered.ID, resolved.ID} {
		changed, err := h.lifecycle.FlagSLABreach(h.ctx, tenantA, id, now)
		require.NoError(t, err)
		assert.False(t, changed)
		assert.False(t, h.reload(id).SLABreached)
	}
}

func TestBreachAtExactDeadlineIsNotFlagged(t *testing.T) {
	h := newHarness(t)
	ticket := h.createTicket(domain.TicketPriorityHigh)

	changed, err := h.lifecycle.FlagSLABreach(h.ctx, tenantA, ticket.ID, ticket.FirstResponseDueAt)
	require.NoError(t, err)
	assert.False(t, changed)
}

func TestAutoCloseAfterGrace(t *testing.T) {
	h := newHarness(t)
	ticket := h.createTicket(domain.TicketPriorityMedium)
	h.move(ticket.ID, domain.TicketStatusOpen, domain.TicketStatusInProgress, domain.TicketStatusResolved)
	resolvedAt := h.clock()

	closed, err := h.lifecycle.AutoClose(h.ctx, tenantA, ticket.ID, h.advance(autoCloseGrace-time.Minute), autoCloseGrace)
	require.NoError(t, err)
	assert.False(t, closed)
	assert.Equal(t, domain.TicketStatusResolved, h.reload(ticket.ID).Status)

	closed, err = h.lifecycle.AutoClose(h.ctx, tenantA, ticket.ID, h.advance(time.Minute), autoCloseGrace)
	require.NoError(t, err)
	assert.True(t, closed)

	got := h.reload(ticket.ID)
	assert.Equal(t, domain.TicketStatusClosed, got.Status)
	require.NotNil(t, got.ResolvedAt)
	assert.Equal(t, resolvedAt, *got.ResolvedAt)

	entries := h.history(ticket.ID, domain.ChangeTypeStatus)
	last := entries[len(entries)-1]
	assert.Equal(t, domain.ActorRoleSystem, last.ChangedByRole)
	assert.Equal(t, domain.TicketStatusClosed, last.NewValue["status"])
	assert.Contains(t, last.NewValue["reason"], "no reply within")
}

func TestAutoCloseWaitsForLateRequesterReply(t *testing.T) {
	h := newHarness(t)
	ticket := h.createTicket(domain.TicketPriorityMedium)
	h.move(ticket.ID, domain.TicketStatusOpen, domain.TicketStatusInProgress, domain.TicketStatusResolved)

	h.advance(3 * 24 * time.Hour)
	_, err := h.lifecycle.PostComment(h.ctx, employee, ticket.ID, "Thanks, checking tomorrow")
	require.NoError(t, err)

	closed, err := h.lifecycle.AutoClose(h.ctx, tenantA, ticket.ID, h.advance(4*24*time.Hour), autoCloseGrace)
	require.NoError(t, err)
	assert.False(t, closed)

	closed, err = h.lifecycle.AutoClose(h.ctx, tenantA, ticket.ID, h.advance(3*24*time.Hour), autoCloseGrace)
	require.NoError(t, err)
	assert.True(t, closed)
}

func TestCheckNoResponseWithoutRules(t *testing.T) {
	h := newHarness(t)
	ticket := h.createTicket(domain.TicketPriorityLow)

	fired, err := h.lifecycle.CheckNoResponse(h.ctx, tenantA, ticket.ID, h.advance(48*time.Hour))
	require.NoError(t, err)
	assert.False(t, fired)
}
