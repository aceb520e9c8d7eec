package worker

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/spec-kit/helpdesk-service/internal/config"
	"github.com/spec-kit/helpdesk-service/internal/domain"
	"github.com/spec-kit/helpdesk-service/internal/repository/memory"
)

type fakeMonitor struct {
	mu       sync.Mutex
	calls    map[string][]string
	failOn   string
	passes   int
	changeFn func(phase, ticketID string) bool
}

func newFakeMonitor() *fakeMonitor {
	return &fakeMonitor{calls: map[string][]string{}}
}

func (f *fakeMonitor) record(phase, ticketID string) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls[phase] = append(f.calls[phase], ticketID)
	if phase == phaseBreach {
		f.passes++
	}
	if ticketID == f.failOn {
		return false, errors.New("boom")
	}
	if f.changeFn != nil {
		return f.changeFn(phase, ticketID), nil
	}
	return true, nil
}

func (f *fakeMonitor) FlagSLABreach(_ context.Context, _, ticketID string, _ time.Time) (bool, error) {
	return f.record(phaseBreach, ticketID)
}

func (f *fakeMonitor) CheckNoResponse(_ context.Context, _, ticketID string, _ time.Time) (bool, error) {
	return f.record(phaseNoResponse, ticketID)
}

func (f *fakeMonitor) AutoClose(_ context.Context, _, ticketID string, _ time.Time, _ time.Duration) (bool, error) {
	return f.record(phaseAutoClose, ticketID)
}

func (f *fakeMonitor) phase(name string) []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string{}, f.calls[name]...)
}

var base = time.Date(2024, 3, 4, 10, 0, 0, 0, time.UTC)

func seed(t *testing.T, store *memory.Store, ticket domain.Ticket) string {
	t.Helper()
	ticket.TenantID = "tenant-a"
	ticket.CreatedAt = base
	ticket.SLAStartedAt = base
	require.NoError(t, store.Tickets().Create(context.Background(), &ticket))
	return ticket.ID
}

func at(d time.Duration) *time.Time {
	v := base.Add(d)
	return &v
}

func TestRunOnceRoutesTicketsToPhases(t *testing.T) {
	store := memory.NewStore()
	overdue := seed(t, store, domain.Ticket{
		Status:             domain.TicketStatusOpen,
		FirstResponseDueAt: base.Add(time.Hour),
		ResolutionDueAt:    base.Add(8 * time.Hour),
	})
	answered := seed(t, store, domain.Ticket{
		Status:             domain.TicketStatusInProgress,
		FirstResponseDueAt: base.Add(time.Hour),
		ResolutionDueAt:    base.Add(30 * 24 * time.Hour),
		FirstRespondedAt:   at(10 * time.Minute),
	})
	stale := seed(t, store, domain.Ticket{
		Status:             domain.TicketStatusResolved,
		FirstResponseDueAt: base.Add(time.Hour),
		ResolutionDueAt:    base.Add(8 * time.Hour),
		FirstRespondedAt:   at(10 * time.Minute),
		ResolvedAt:         at(time.Hour),
	})
	seed(t, store, domain.Ticket{
		Status:             domain.TicketStatusResolved,
		FirstResponseDueAt: base.Add(time.Hour),
		ResolutionDueAt:    base.Add(8 * time.Hour),
		FirstRespondedAt:   at(10 * time.Minute),
		ResolvedAt:         at(7 * 24 * time.Hour),
	})

	monitor := newFakeMonitor()
	scanner := NewBreachScanner(BreachScannerDependencies{
		TicketRepo:     store.Tickets(),
		Monitor:        monitor,
		Config:         config.ScannerConfig{BatchSize: 10},
		AutoCloseGrace: 7 * 24 * time.Hour,
	})

	report, err := scanner.RunOnce(context.Background(), base.Add(7*24*time.Hour+2*time.Hour))
	require.NoError(t, err)

	assert.Equal(t, []string{overdue}, monitor.phase(phaseBreach))
	assert.Equal(t, []string{overdue}, monitor.phase(phaseNoResponse))
	assert.Equal(t, []string{stale}, monitor.phase(phaseAutoClose))
	assert.NotContains(t, monitor.phase(phaseBreach), answered)
	assert.Equal(t, ScanReport{Breached: 1, NoResponse: 1, AutoClosed: 1}, report)

	last, ok := scanner.LastScan()
	assert.True(t, ok)
	assert.Equal(t, base.Add(7*24*time.Hour+2*time.Hour), last)
}

func TestRunOnceContinuesPastFailures(t *testing.T) {
	store := memory.NewStore()
	first := seed(t, store, domain.Ticket{
		Status:             domain.TicketStatusOpen,
		FirstResponseDueAt: base.Add(time.Hour),
		ResolutionDueAt:    base.Add(8 * time.Hour),
	})
	second := seed(t, store, domain.Ticket{
		Status:             domain.TicketStatusOpen,
		FirstResponseDueAt: base.Add(2 * time.Hour),
		ResolutionDueAt:    base.Add(8 * time.Hour),
	})

	monitor := newFakeMonitor()
	monitor.failOn = first
	monitor.changeFn = func(phase, _ string) bool { return phase == phaseBreach }
	scanner := NewBreachScanner(BreachScannerDependencies{
		TicketRepo: store.Tickets(),
		Monitor:    monitor,
		Clock:      func() time.Time { return base.Add(3 * time.Hour) },
	})

	report, err := scanner.RunOnce(context.Background(), base.Add(3*time.Hour))
	require.NoError(t, err)
	assert.Equal(t, []string{first, second}, monitor.phase(phaseBreach))
	assert.Equal(t, 1, report.Breached)
	assert.Equal(t, 0, report.NoResponse)
	assert.Equal(t, 2, report.Failed)
}

func TestRunOncePagesPastBatchSize(t *testing.T) {
	store := memory.NewStore()
	var unanswered []string
	for i := 0; i < 5; i++ {
		unanswered = append(unanswered, seed(t, store, domain.Ticket{
			Status:             domain.TicketStatusOpen,
			FirstResponseDueAt: base.Add(30 * 24 * time.Hour),
			ResolutionDueAt:    base.Add(30 * 24 * time.Hour),
		}))
	}
	var closable []string
	for i := 0; i < 3; i++ {
		closable = append(closable, seed(t, store, domain.Ticket{
			Status:             domain.TicketStatusResolved,
			FirstResponseDueAt: base.Add(time.Hour),
			ResolutionDueAt:    base.Add(8 * time.Hour),
			FirstRespondedAt:   at(10 * time.Minute),
			ResolvedAt:         at(time.Hour),
		}))
	}
	// Resolved earliest but re-anchored by a late requester reply.
	waiting := seed(t, store, domain.Ticket{
		Status:              domain.TicketStatusResolved,
		FirstResponseDueAt:  base.Add(time.Hour),
		ResolutionDueAt:     base.Add(8 * time.Hour),
		FirstRespondedAt:    at(10 * time.Minute),
		ResolvedAt:          at(30 * time.Minute),
		LastCustomerReplyAt: at(7 * 24 * time.Hour),
	})

	monitor := newFakeMonitor()
	monitor.changeFn = func(string, string) bool { return false }
	scanner := NewBreachScanner(BreachScannerDependencies{
		TicketRepo:     store.Tickets(),
		Monitor:        monitor,
		Config:         config.ScannerConfig{BatchSize: 2},
		AutoCloseGrace: 7 * 24 * time.Hour,
	})

	for pass := 0; pass < 2; pass++ {
		_, err := scanner.RunOnce(context.Background(), base.Add(7*24*time.Hour+2*time.Hour))
		require.NoError(t, err)
	}

	evaluated := monitor.phase(phaseNoResponse)
	assert.Len(t, evaluated, 10)
	for _, id := range unanswered {
		count := 0
		for _, got := range evaluated {
			if got == id {
				count++
			}
		}
		assert.Equal(t, 2, count, "ticket %s evaluated once per pass", id)
	}
	assert.ElementsMatch(t, append(append([]string{}, closable...), closable...), monitor.phase(phaseAutoClose))
	assert.NotContains(t, monitor.phase(phaseAutoClose), waiting)
}

func TestRunOnceStopsOnCancelledContext(t *testing.T) {
	store := memory.NewStore()
	seed(t, store, domain.Ticket{
		Status:             domain.TicketStatusOpen,
		FirstResponseDueAt: base.Add(time.Hour),
		ResolutionDueAt:    base.Add(8 * time.Hour),
	})
	monitor := newFakeMonitor()
	scanner := NewBreachScanner(BreachScannerDependencies{TicketRepo: store.Tickets(), Monitor: monitor})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	report, err := scanner.RunOnce(ctx, base.Add(3*time.Hour))
	require.NoError(t, err)
	assert.Empty(t, monitor.phase(phaseBreach))
	assert.Equal(t, ScanReport{}, report)
}

func TestScannerSchedule(t *testing.T) {
	store := memory.NewStore()
	seed(t, store, domain.Ticket{
		Status:             domain.TicketStatusOpen,
		FirstResponseDueAt: base.Add(time.Hour),
		ResolutionDueAt:    base.Add(8 * time.Hour),
	})
	monitor := newFakeMonitor()

	disabled := NewBreachScanner(BreachScannerDependencies{TicketRepo: store.Tickets(), Monitor: monitor})
	require.NoError(t, disabled.StartWithContext(context.Background()))
	require.NoError(t, disabled.StopWithContext(context.Background()))

	scanner := NewBreachScanner(BreachScannerDependencies{
		TicketRepo: store.Tickets(),
		Monitor:    monitor,
		Config:     config.ScannerConfig{Enabled: true, Interval: time.Second},
		Clock:      func() time.Time { return base.Add(3 * time.Hour) },
	})
	require.NoError(t, scanner.StartWithContext(context.Background()))
	assert.Eventually(t, func() bool {
		monitor.mu.Lock()
		defer monitor.mu.Unlock()
		return monitor.passes > 0
	}, 5*time.Second, 50*time.Millisecond)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	require.NoError(t, scanner.StopWithContext(ctx))
}
