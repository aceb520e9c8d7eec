package service

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/spec-kit/helpdesk-service/internal/config"
	"github.com/spec-kit/helpdesk-service/internal/domain"
	"github.com/spec-kit/helpdesk-service/internal/events"
	"github.com/spec-kit/helpdesk-service/internal/lock"
	"github.com/spec-kit/helpdesk-service/internal/repository/memory"
	"github.com/spec-kit/helpdesk-service/internal/scoring"
	"github.com/spec-kit/helpdesk-service/internal/sla"
)

const (
	tenantA        = "tenant-a"
	platformTenant = "platform"
)

var (
	employee = domain.Actor{ID: "emp-1", Name: "Erin", Role: domain.ActorRoleEmployee, TenantID: tenantA}
	agent    = domain.Actor{ID: "agent-1", Name: "Jane", Role: domain.ActorRoleAgent, TenantID: tenantA}
	admin    = domain.Actor{ID: "admin-1", Name: "Root", Role: domain.ActorRoleAdmin, TenantID: tenantA}

	platformAdmin = domain.Actor{ID: "ops-1", Name: "Ops", Role: domain.ActorRoleAdmin, TenantID: platformTenant}
)

type harness struct {
	t           *testing.T
	ctx         context.Context
	store       *memory.Store
	catalog     *sla.Catalog
	dispatcher  events.Dispatcher
	lifecycle   *LifecycleService
	escalations *EscalationService
	redFlags    *RedFlagService
	assignments *AssignmentService
	admin       *AdminService

	mu     sync.Mutex
	now    time.Time
	scorer scoring.ScorerFunc
	events []events.Event
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	h := &harness{
		t:     t,
		ctx:   context.Background(),
		store: memory.NewStore(),
		now:   time.Date(2024, 3, 4, 10, 0, 0, 0, time.UTC),
	}
	logger := zap.NewNop()
	catalog, err := sla.NewCatalog(sla.CatalogDependencies{
		PolicyRepo:   h.store.Policies(),
		CalendarRepo: h.store.Calendars(),
		Config: config.SLAConfig{
			LowFirstResponseMinutes:      1440,
			LowResolutionMinutes:         7200,
			MediumFirstResponseMinutes:   480,
			MediumResolutionMinutes:      2880,
			HighFirstResponseMinutes:     120,
			HighResolutionMinutes:        1440,
			CriticalFirstResponseMinutes: 30,
			CriticalResolutionMinutes:    240,
			Timezone:                     "UTC",
			WorkingDays:                  []string{"mon", "tue", "wed", "thu", "fri"},
			DayStart:                     "09:00",
			DayEnd:                       "18:00",
		},
		Logger: logger,
	})
	require.NoError(t, err)
	require.NoError(t, catalog.Bootstrap(h.ctx))
	h.catalog = catalog

	h.dispatcher = events.NewInMemoryDispatcher(logger)
	for _, et := range []events.EventType{
		events.EventTicketCreated, events.EventTicketStatusChanged, events.EventTicketAssigned,
		events.EventCommentAdded, events.EventSLABreached, events.EventTicketRedFlagged, events.EventEscalationNotify,
	} {
		h.dispatcher.Subscribe(et, func(_ context.Context, e events.Event) error {
			h.mu.Lock()
			h.events = append(h.events, e)
			h.mu.Unlock()
			return nil
		})
	}

	locker := lock.NewLocalLocker(lock.Options{Wait: time.Second})
	h.escalations = NewEscalationService(EscalationDependencies{
		RuleRepo:    h.store.Rules(),
		FiringRepo:  h.store.Firings(),
		TicketRepo:  h.store.Tickets(),
		CommentRepo: h.store.Comments(),
		HistoryRepo: h.store.History(),
		Dispatcher:  h.dispatcher,
		Logger:      logger,
		Clock:       h.clock,
	})
	h.redFlags = NewRedFlagService(RedFlagDependencies{
		TicketRepo:  h.store.Tickets(),
		CommentRepo: h.store.Comments(),
		HistoryRepo: h.store.History(),
		Scorer: scoring.ScorerFunc(func(ctx context.Context, ticket *domain.Ticket, comment *domain.Comment) (scoring.Result, error) {
			if h.scorer == nil {
				return scoring.Result{}, scoring.ErrDisabled
			}
			return h.scorer(ctx, ticket, comment)
		}),
		Escalations: h.escalations,
		Locker:      locker,
		Threshold:   50,
		Dispatcher:  h.dispatcher,
		Logger:      logger,
		Clock:       h.clock,
	})
	h.lifecycle = NewLifecycleService(LifecycleDependencies{
		TicketRepo:     h.store.Tickets(),
		CommentRepo:    h.store.Comments(),
		AttachmentRepo: h.store.Attachments(),
		HistoryRepo:    h.store.History(),
		FiringRepo:     h.store.Firings(),
		FeatureRepo:    h.store.Features(),
		Catalog:        catalog,
		Locker:         locker,
		Escalations:    h.escalations,
		RedFlags:       h.redFlags,
		Dispatcher:     h.dispatcher,
		Logger:         logger,
		Clock:          h.clock,
	})
	h.assignments = NewAssignmentService(AssignmentDependencies{
		TicketRepo:  h.store.Tickets(),
		CommentRepo: h.store.Comments(),
		HistoryRepo: h.store.History(),
		Locker:      locker,
		Dispatcher:  h.dispatcher,
		Clock:       h.clock,
	})
	h.admin = NewAdminService(AdminDependencies{
		PolicyRepo:   h.store.Policies(),
		RuleRepo:     h.store.Rules(),
		CalendarRepo: h.store.Calendars(),
		FeatureRepo:  h.store.Features(),
		Catalog:      catalog,
		Logger:       logger,

		PlatformTenantID: platformTenant,
	})
	return h
}

func (h *harness) clock() time.Time {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.now
}

func (h *harness) advance(d time.Duration) time.Time {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.now = h.now.Add(d)
	return h.now
}

func (h *harness) createTicket(priority domain.TicketPriority) *domain.Ticket {
	h.t.Helper()
	ticket, err := h.lifecycle.CreateTicket(h.ctx, employee, CreateTicketInput{
		Category:    "it",
		Title:       "Laptop will not boot",
		Description: "Black screen since this morning",
		Priority:    &priority,
	})
	require.NoError(h.t, err)
	return ticket
}

func (h *harness) reload(id string) *domain.Ticket {
	h.t.Helper()
	ticket, err := h.store.Tickets().GetByID(h.ctx, tenantA, id)
	require.NoError(h.t, err)
	return ticket
}

func (h *harness) move(id string, statuses ...domain.TicketStatus) {
	h.t.Helper()
	for _, status := range statuses {
		_, err := h.lifecycle.Transition(h.ctx, agent, id, status, "")
		require.NoError(h.t, err, "transition to %s", status)
	}
}

func (h *harness) addRule(rule domain.EscalationRule) *domain.EscalationRule {
	h.t.Helper()
	rule.Enabled = true
	if rule.Name == "" {
		rule.Name = string(rule.Trigger.Type) + " rule"
	}
	tenant := tenantA
	rule.TenantID = &tenant
	require.NoError(h.t, h.store.Rules().Create(h.ctx, &rule))
	return &rule
}

func (h *harness) eventsOf(eventType events.EventType) []events.Event {
	h.mu.Lock()
	defer h.mu.Unlock()
	var out []events.Event
	for _, e := range h.events {
		if e.Type == eventType {
			out = append(out, e)
		}
	}
	return out
}

func (h *harness) comments(id string) []domain.Comment {
	h.t.Helper()
	comments, err := h.store.Comments().ListByTicket(h.ctx, id)
	require.NoError(h.t, err)
	return comments
}

func (h *harness) history(id string, change domain.TicketChangeType) []domain.TicketHistory {
	h.t.Helper()
	entries, err := h.store.History().ListByTicket(h.ctx, id)
	require.NoError(h.t, err)
	var out []domain.TicketHistory
	for _, e := range entries {
		if e.ChangeType == change {
			out = append(out, e)
		}
	}
	return out
}
