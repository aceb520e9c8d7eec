package sla

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/spec-kit/helpdesk-service/internal/config"
	"github.com/spec-kit/helpdesk-service/internal/domain"
	"github.com/spec-kit/helpdesk-service/internal/repository/memory"
	apperrors "github.com/spec-kit/helpdesk-service/pkg/util/errorutil"
)

func testSLAConfig() config.SLAConfig {
	return config.SLAConfig{
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
	}
}

func newCatalog(t *testing.T, store *memory.Store) *Catalog {
	t.Helper()
	catalog, err := NewCatalog(CatalogDependencies{
		PolicyRepo:   store.Policies(),
		CalendarRepo: store.Calendars(),
		Config:       testSLAConfig(),
	})
	require.NoError(t, err)
	return catalog
}

func strPtr(s string) *string { return &s }

func TestBootstrapInstallsGlobalDefaults(t *testing.T) {
	store := memory.NewStore()
	catalog := newCatalog(t, store)
	ctx := context.Background()

	require.NoError(t, catalog.Bootstrap(ctx))
	require.NoError(t, catalog.Bootstrap(ctx), "bootstrap is idempotent")

	policies, err := store.Policies().ListVisible(ctx, "any-tenant")
	require.NoError(t, err)
	assert.Len(t, policies, 4)

	critical, err := catalog.Resolve(ctx, "tenant-a", "", domain.TicketPriorityCritical)
	require.NoError(t, err)
	assert.True(t, critical.IsGlobal())
	assert.Equal(t, 30, critical.FirstResponseMinutes)
}

func TestResolveFallbackChain(t *testing.T) {
	store := memory.NewStore()
	catalog := newCatalog(t, store)
	ctx := context.Background()
	require.NoError(t, catalog.Bootstrap(ctx))

	tenantWide := &domain.SLAPolicy{TenantID: strPtr("tenant-a"), Priority: domain.TicketPriorityHigh, FirstResponseMinutes: 60, ResolutionMinutes: 600}
	categoryScoped := &domain.SLAPolicy{TenantID: strPtr("tenant-a"), Category: strPtr("payroll"), Priority: domain.TicketPriorityHigh, FirstResponseMinutes: 15, ResolutionMinutes: 120}
	require.NoError(t, store.Policies().Create(ctx, tenantWide))
	require.NoError(t, store.Policies().Create(ctx, categoryScoped))

	got, err := catalog.Resolve(ctx, "tenant-a", "payroll", domain.TicketPriorityHigh)
	require.NoError(t, err)
	assert.Equal(t, categoryScoped.ID, got.ID)

	got, err = catalog.Resolve(ctx, "tenant-a", "insurance", domain.TicketPriorityHigh)
	require.NoError(t, err)
	assert.Equal(t, tenantWide.ID, got.ID)

	got, err = catalog.Resolve(ctx, "tenant-b", "payroll", domain.TicketPriorityHigh)
	require.NoError(t, err)
	assert.True(t, got.IsGlobal())
}

func TestResolveWithoutPoliciesFails(t *testing.T) {
	catalog := newCatalog(t, memory.NewStore())

	_, err := catalog.Resolve(context.Background(), "tenant-a", "", domain.TicketPriorityLow)
	require.Error(t, err)
	assert.True(t, errors.Is(err, apperrors.ErrPolicyNotFound))
}

func TestCalendarForUsesTenantCalendar(t *testing.T) {
	store := memory.NewStore()
	catalog := newCatalog(t, store)
	ctx := context.Background()

	require.NoError(t, store.Calendars().Upsert(ctx, &domain.BusinessCalendar{
		TenantID:    "tenant-a",
		Timezone:    "UTC",
		WorkingDays: []time.Weekday{time.Saturday},
		DayStart:    "10:00",
		DayEnd:      "12:00",
	}))

	cal, err := catalog.CalendarFor(ctx, "tenant-a")
	require.NoError(t, err)
	assert.True(t, cal.IsWorkingDay(time.Date(2024, 1, 6, 0, 0, 0, 0, time.UTC)))

	fallback, err := catalog.CalendarFor(ctx, "tenant-b")
	require.NoError(t, err)
	assert.False(t, fallback.IsWorkingDay(time.Date(2024, 1, 6, 0, 0, 0, 0, time.UTC)))
}

func TestValidatePolicy(t *testing.T) {
	ok := &domain.SLAPolicy{Priority: domain.TicketPriorityLow, FirstResponseMinutes: 10, ResolutionMinutes: 20}
	assert.NoError(t, ValidatePolicy(ok))

	inverted := &domain.SLAPolicy{Priority: domain.TicketPriorityLow, FirstResponseMinutes: 30, ResolutionMinutes: 20}
	assert.True(t, apperrors.IsCode(ValidatePolicy(inverted), apperrors.CodeValidation))

	globalWithCategory := &domain.SLAPolicy{Category: strPtr("payroll"), Priority: domain.TicketPriorityLow, FirstResponseMinutes: 10, ResolutionMinutes: 20}
	assert.Error(t, ValidatePolicy(globalWithCategory))

	badPriority := &domain.SLAPolicy{Priority: "urgent", FirstResponseMinutes: 10, ResolutionMinutes: 20}
	assert.Error(t, ValidatePolicy(badPriority))
}
