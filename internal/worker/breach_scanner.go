package worker

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"

	"github.com/spec-kit/helpdesk-service/internal/config"
	"github.com/spec-kit/helpdesk-service/internal/domain"
	"github.com/spec-kit/helpdesk-service/internal/observability"
	"github.com/spec-kit/helpdesk-service/internal/repository"
)

const (
	phaseBreach     = "breach"
	phaseNoResponse = "no_response"
	phaseAutoClose  = "auto_close"
)

// SLAMonitor applies the per-ticket scanner steps under the ticket lock.
type SLAMonitor interface {
	FlagSLABreach(ctx context.Context, tenantID, ticketID string, now time.Time) (bool, error)
	CheckNoResponse(ctx context.Context, tenantID, ticketID string, now time.Time) (bool, error)
	AutoClose(ctx context.Context, tenantID, ticketID string, now time.Time, grace time.Duration) (bool, error)
}

// ScanReport summarizes one scanner pass.
type ScanReport struct {
	Breached   int
	NoResponse int
	AutoClosed int
	Failed     int
}

// BreachScanner periodically flags SLA breaches, evaluates no-response rules
// and auto-closes resolved tickets. It locks one ticket at a time.
type BreachScanner struct {
	tickets repository.TicketRepository
	monitor SLAMonitor
	cfg     config.ScannerConfig
	grace   time.Duration
	metrics *observability.Metrics
	logger  *zap.Logger
	now     func() time.Time

	mu       sync.Mutex
	cron     *cron.Cron
	running  bool
	lastScan time.Time
}

// BreachScannerDependencies bundles collaborators for the scanner.
type BreachScannerDependencies struct {
	TicketRepo     repository.TicketRepository
	Monitor        SLAMonitor
	Config         config.ScannerConfig
	AutoCloseGrace time.Duration
	Metrics        *observability.Metrics
	Logger         *zap.Logger
	Clock          func() time.Time
}

// NewBreachScanner constructs the scanner.
func NewBreachScanner(deps BreachScannerDependencies) *BreachScanner {
	logger := deps.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	clock := deps.Clock
	if clock == nil {
		clock = func() time.Time { return time.Now().UTC() }
	}
	return &BreachScanner{
		tickets: deps.TicketRepo,
		monitor: deps.Monitor,
		cfg:     deps.Config,
		grace:   deps.AutoCloseGrace,
		metrics: deps.Metrics,
		logger:  logger,
		now:     clock,
	}
}

// StartWithContext schedules RunOnce every configured interval. A pass still
// running when the next tick fires causes that tick to be skipped.
func (s *BreachScanner) StartWithContext(ctx context.Context) error {
	if s == nil || !s.cfg.Enabled {
		return nil
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.running {
		return nil
	}
	interval := s.cfg.Interval
	if interval <= 0 {
		interval = time.Minute
	}
	cronLogger := cronLogger{logger: s.logger}
	c := cron.New(
		cron.WithLocation(time.UTC),
		cron.WithLogger(cronLogger),
		cron.WithChain(cron.Recover(cronLogger), cron.SkipIfStillRunning(cronLogger)),
	)
	if _, err := c.AddFunc(fmt.Sprintf("@every %s", interval), func() {
		if _, err := s.RunOnce(ctx, s.now()); err != nil {
			s.logger.Error("breach scan failed", zap.Error(err))
		}
	}); err != nil {
		return fmt.Errorf("schedule breach scanner: %w", err)
	}
	c.Start()
	s.cron = c
	s.running = true
	s.logger.Info("breach scanner started", zap.Duration("interval", interval))
	return nil
}

// StopWithContext stops scheduling and waits for an in-flight pass.
func (s *BreachScanner) StopWithContext(ctx context.Context) error {
	if s == nil {
		return nil
	}
	s.mu.Lock()
	c := s.cron
	s.cron = nil
	s.running = false
	s.mu.Unlock()
	if c == nil {
		return nil
	}
	done := c.Stop()
	select {
	case <-done.Done():
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// RunOnce performs one pass at the given instant. Per-ticket failures are
// logged and counted; the pass continues with the next ticket.
func (s *BreachScanner) RunOnce(ctx context.Context, now time.Time) (ScanReport, error) {
	started := time.Now()
	defer func() { s.metrics.ObserveScan(time.Since(started)) }()

	var report ScanReport
	batch := s.cfg.BatchSize
	if batch <= 0 {
		batch = 500
	}

	closableAt := now.Add(-s.grace)
	phases := []struct {
		name    string
		list    func(repository.ScanCursor) ([]domain.Ticket, error)
		key     func(domain.Ticket) time.Time
		step    func(domain.Ticket) (bool, error)
		counter *int
	}{
		{
			name: phaseBreach,
			list: func(c repository.ScanCursor) ([]domain.Ticket, error) {
				return s.tickets.ListBreachCandidates(ctx, now, c, batch)
			},
			key: func(t domain.Ticket) time.Time { return t.FirstResponseDueAt },
			step: func(t domain.Ticket) (bool, error) {
				return s.monitor.FlagSLABreach(ctx, t.TenantID, t.ID, now)
			},
			counter: &report.Breached,
		},
		{
			name: phaseNoResponse,
			list: func(c repository.ScanCursor) ([]domain.Ticket, error) {
				return s.tickets.ListNoResponseCandidates(ctx, c, batch)
			},
			key: func(t domain.Ticket) time.Time { return t.SLAStartedAt },
			step: func(t domain.Ticket) (bool, error) {
				return s.monitor.CheckNoResponse(ctx, t.TenantID, t.ID, now)
			},
			counter: &report.NoResponse,
		},
		{
			name: phaseAutoClose,
			list: func(c repository.ScanCursor) ([]domain.Ticket, error) {
				return s.tickets.ListResolved(ctx, closableAt, c, batch)
			},
			key: func(t domain.Ticket) time.Time { return *t.ResolvedAt },
			step: func(t domain.Ticket) (bool, error) {
				return s.monitor.AutoClose(ctx, t.TenantID, t.ID, now, s.grace)
			},
			counter: &report.AutoClosed,
		},
	}

	for _, phase := range phases {
		var cursor repository.ScanCursor
		for {
			page, err := phase.list(cursor)
			if err != nil {
				return report, fmt.Errorf("list %s candidates: %w", phase.name, err)
			}
			s.each(ctx, phase.name, page, &report, phase.step, phase.counter)
			if len(page) < batch || ctx.Err() != nil {
				break
			}
			last := page[len(page)-1]
			cursor = repository.ScanCursor{At: phase.key(last), ID: last.ID}
		}
	}

	s.mu.Lock()
	s.lastScan = now
	s.mu.Unlock()

	if report.Breached+report.NoResponse+report.AutoClosed+report.Failed > 0 {
		s.logger.Info("breach scan completed",
			zap.Int("breached", report.Breached),
			zap.Int("no_response", report.NoResponse),
			zap.Int("auto_closed", report.AutoClosed),
			zap.Int("failed", report.Failed))
	}
	return report, nil
}

// LastScan returns the instant of the last completed pass.
func (s *BreachScanner) LastScan() (time.Time, bool) {
	if s == nil {
		return time.Time{}, false
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastScan, !s.lastScan.IsZero()
}

func (s *BreachScanner) each(ctx context.Context, phase string, tickets []domain.Ticket, report *ScanReport, fn func(domain.Ticket) (bool, error), counter *int) {
	for _, t := range tickets {
		if ctx.Err() != nil {
			return
		}
		changed, err := fn(t)
		s.metrics.RecordScanned(phase, err)
		if err != nil {
			report.Failed++
			s.logger.Error("scanner step failed",
				zap.String("phase", phase),
				zap.String("tenant_id", t.TenantID),
				zap.String("ticket_id", t.ID),
				zap.Error(err))
			continue
		}
		if changed {
			*counter++
		}
	}
}

// cronLogger adapts zap to cron.Logger.
type cronLogger struct {
	logger *zap.Logger
}

func (l cronLogger) Info(msg string, keysAndValues ...interface{}) {
	l.logger.Sugar().Debugw(msg, keysAndValues...)
}

func (l cronLogger) Error(err error, msg string, keysAndValues ...interface{}) {
	l.logger.Sugar().Errorw(msg, append(keysAndValues, "error", err)...)
}
