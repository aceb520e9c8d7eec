package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"

	httptransport "github.com/spec-kit/helpdesk-service/internal/api/http"
	"github.com/spec-kit/helpdesk-service/internal/api/http/handlers"
	"github.com/spec-kit/helpdesk-service/internal/auth"
	"github.com/spec-kit/helpdesk-service/internal/config"
	"github.com/spec-kit/helpdesk-service/internal/events"
	"github.com/spec-kit/helpdesk-service/internal/lock"
	"github.com/spec-kit/helpdesk-service/internal/notify"
	"github.com/spec-kit/helpdesk-service/internal/observability"
	"github.com/spec-kit/helpdesk-service/internal/persistence"
	"github.com/spec-kit/helpdesk-service/internal/scoring"
	"github.com/spec-kit/helpdesk-service/internal/service"
	"github.com/spec-kit/helpdesk-service/internal/sla"
	"github.com/spec-kit/helpdesk-service/internal/worker"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	logger, err := observability.NewLogger(cfg.Logger)
	if err != nil {
		log.Fatalf("failed to init logger: %v", err)
	}
	defer logger.Sync() //nolint:errcheck

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	metrics := observability.NewMetrics()

	pg, err := persistence.NewPostgres(ctx, cfg.Postgres, logger)
	if err != nil {
		logger.Fatal("failed to connect postgres", zap.Error(err))
	}
	defer pg.Close()

	if cfg.Postgres.RunMigrations {
		if err := persistence.RunMigrations(ctx, pg.PoolHandle(), logger); err != nil {
			logger.Fatal("failed to run migrations", zap.Error(err))
		}
	}

	redis := persistence.NewRedis(ctx, cfg.Redis, logger)
	defer redis.Close()

	lockOpts := lock.Options{Wait: cfg.Lock.Wait, TTL: cfg.Lock.TTL, Retry: cfg.Lock.Retry}
	var locker lock.Locker = lock.NewLocalLocker(lockOpts)
	if redis.Enabled() {
		locker = lock.NewRedisLocker(redis.Client, lockOpts)
	}

	repos := newRepositories(pg)

	catalog, err := sla.NewCatalog(sla.CatalogDependencies{
		PolicyRepo:   repos.policies,
		CalendarRepo: repos.calendars,
		Config:       cfg.SLA,
		Logger:       logger,
	})
	if err != nil {
		logger.Fatal("failed to build sla catalog", zap.Error(err))
	}
	if err := catalog.Bootstrap(ctx); err != nil {
		logger.Fatal("failed to seed sla policies", zap.Error(err))
	}

	dispatcher := events.NewInMemoryDispatcher(logger)

	router := notify.FromConfig(cfg.Notification, logger)
	defer func() {
		if err := router.Close(); err != nil {
			logger.Warn("closing notification channels", zap.Error(err))
		}
	}()
	notifications := service.NewNotificationService(dispatcher, router, metrics, logger, cfg.Notification)
	stopNotifications := worker.StartNotificationWorker(ctx, notifications)

	scorer := newScorer(ctx, cfg.RedFlag, logger)

	escalations := service.NewEscalationService(service.EscalationDependencies{
		RuleRepo:    repos.rules,
		FiringRepo:  repos.firings,
		TicketRepo:  repos.tickets,
		CommentRepo: repos.comments,
		HistoryRepo: repos.history,
		Dispatcher:  dispatcher,
		Metrics:     metrics,
		Logger:      logger,
	})
	redFlags := service.NewRedFlagService(service.RedFlagDependencies{
		TicketRepo:  repos.tickets,
		CommentRepo: repos.comments,
		HistoryRepo: repos.history,
		Scorer:      scorer,
		Escalations: escalations,
		Locker:      locker,
		Threshold:   cfg.RedFlag.Threshold,
		Timeout:     cfg.RedFlag.Timeout,
		Dispatcher:  dispatcher,
		Metrics:     metrics,
		Logger:      logger,
	})
	lifecycle := service.NewLifecycleService(service.LifecycleDependencies{
		TicketRepo:     repos.tickets,
		CommentRepo:    repos.comments,
		AttachmentRepo: repos.attachments,
		HistoryRepo:    repos.history,
		FiringRepo:     repos.firings,
		FeatureRepo:    repos.features,
		Catalog:        catalog,
		Locker:         locker,
		Escalations:    escalations,
		RedFlags:       redFlags,
		Dispatcher:     dispatcher,
		Metrics:        metrics,
		Logger:         logger,
	})
	assignments := service.NewAssignmentService(service.AssignmentDependencies{
		TicketRepo:  repos.tickets,
		CommentRepo: repos.comments,
		HistoryRepo: repos.history,
		Locker:      locker,
		Dispatcher:  dispatcher,
		Metrics:     metrics,
	})
	analytics := service.NewAnalyticsService(service.AnalyticsDependencies{
		TicketRepo:       repos.tickets,
		RedFlagThreshold: cfg.RedFlag.Threshold,
	})
	admin := service.NewAdminService(service.AdminDependencies{
		PolicyRepo:       repos.policies,
		RuleRepo:         repos.rules,
		CalendarRepo:     repos.calendars,
		FeatureRepo:      repos.features,
		Catalog:          catalog,
		PlatformTenantID: cfg.Auth.PlatformTenantID,
		Logger:           logger,
	})

	scanner := worker.NewBreachScanner(worker.BreachScannerDependencies{
		TicketRepo:     repos.tickets,
		Monitor:        lifecycle,
		Config:         cfg.Scanner,
		AutoCloseGrace: cfg.SLA.AutoCloseGrace,
		Metrics:        metrics,
		Logger:         logger,
	})
	if cfg.Scanner.Enabled {
		if err := scanner.StartWithContext(ctx); err != nil {
			logger.Fatal("failed to start breach scanner", zap.Error(err))
		}
	}

	tokens := auth.NewTokenManager(cfg.Auth.JWTSecret, cfg.Auth.AccessTokenTTLMinutes)

	app := fiber.New(fiber.Config{AppName: cfg.App.Name})
	httptransport.RegisterMiddlewares(app, logger, metrics, cfg.App.RequestTimeout())

	httptransport.RegisterRoutes(app, httptransport.RouteConfig{
		Health:         handlers.NewHealthHandler(cfg.App.Name, cfg.App.Version, scanner,
			handlers.HealthCheck{Name: "postgres", Dependency: pg},
			handlers.HealthCheck{Name: "redis", Dependency: redis}),
		Tickets:        handlers.NewTicketsHandler(lifecycle, assignments),
		Analytics:      handlers.NewAnalyticsHandler(analytics),
		Admin:          handlers.NewAdminHandler(admin),
		Metrics:        metrics,
		AuthMiddleware: auth.NewAuthMiddleware(tokens),
	})

	go func() {
		if err := app.Listen(cfg.App.Addr()); err != nil {
			logger.Fatal("fiber listen", zap.Error(err))
		}
	}()

	waitForShutdown(logger)

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer shutdownCancel()

	_ = app.ShutdownWithContext(shutdownCtx)
	if err := scanner.StopWithContext(shutdownCtx); err != nil {
		logger.Warn("breach scanner did not stop cleanly", zap.Error(err))
	}
	if err := stopNotifications(shutdownCtx); err != nil {
		logger.Warn("notification workers did not drain", zap.Error(err))
	}
	if closer, ok := scorer.(interface{ Close() error }); ok {
		_ = closer.Close()
	}
}

func newScorer(ctx context.Context, cfg config.RedFlagConfig, logger *zap.Logger) scoring.Scorer {
	if cfg.APIKey == "" {
		logger.Warn("GEMINI_API_KEY not provided; red flag scoring disabled")
		return scoring.NewDisabledScorer()
	}
	scorer, err := scoring.NewGeminiScorer(ctx, cfg.APIKey, cfg.Model)
	if err != nil {
		logger.Error("unable to create gemini scorer; red flag scoring disabled", zap.Error(err))
		return scoring.NewDisabledScorer()
	}
	return scorer
}

func waitForShutdown(logger *zap.Logger) {
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	sig := <-sigCh
	logger.Info("shutting down", zap.String("signal", sig.String()))
}
