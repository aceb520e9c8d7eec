package http

import (
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/adaptor"

	"github.com/spec-kit/helpdesk-service/internal/api/http/handlers"
	"github.com/spec-kit/helpdesk-service/internal/auth"
	"github.com/spec-kit/helpdesk-service/internal/domain"
	"github.com/spec-kit/helpdesk-service/internal/observability"
)

// RouteConfig bundles dependencies for route registration.
type RouteConfig struct {
	Health         *handlers.HealthHandler
	Tickets        *handlers.TicketsHandler
	Analytics      *handlers.AnalyticsHandler
	Admin          *handlers.AdminHandler
	Metrics        *observability.Metrics
	AuthMiddleware *auth.AuthMiddleware
}

// RegisterRoutes wires HTTP routes.
func RegisterRoutes(app *fiber.App, cfg RouteConfig) {
	app.Get("/health/live", cfg.Health.Live)
	app.Get("/health/ready", cfg.Health.Ready)
	if cfg.Metrics != nil {
		app.Get("/metrics", adaptor.HTTPHandler(cfg.Metrics.Handler()))
	}

	api := app.Group("/api/v1", cfg.AuthMiddleware.Handle, auth.RequireRole())

	tickets := api.Group("/tickets")
	tickets.Get("/", cfg.Tickets.ListTickets)
	tickets.Post("/", cfg.Tickets.CreateTicket)
	tickets.Get("/:id", cfg.Tickets.GetTicket)
	tickets.Post("/:id/comments", cfg.Tickets.PostComment)
	tickets.Post("/:id/attachments", cfg.Tickets.AddAttachment)
	tickets.Post("/:id/transitions", cfg.Tickets.Transition)
	tickets.Post("/:id/reopen", cfg.Tickets.Reopen)
	tickets.Post("/:id/escalate", cfg.Tickets.Escalate)
	tickets.Post("/:id/assign", auth.RequireStaff(), cfg.Tickets.Assign)

	api.Get("/analytics", auth.RequireStaff(), cfg.Analytics.GetAnalytics)

	admin := api.Group("/admin", auth.RequireRole(domain.ActorRoleAdmin))
	admin.Get("/sla-policies", cfg.Admin.ListPolicies)
	admin.Post("/sla-policies", cfg.Admin.CreatePolicy)
	admin.Put("/sla-policies/:id", cfg.Admin.UpdatePolicy)
	admin.Delete("/sla-policies/:id", cfg.Admin.DeletePolicy)
	admin.Get("/escalation-rules", cfg.Admin.ListRules)
	admin.Post("/escalation-rules", cfg.Admin.CreateRule)
	admin.Put("/escalation-rules/:id", cfg.Admin.UpdateRule)
	admin.Delete("/escalation-rules/:id", cfg.Admin.DeleteRule)
	admin.Get("/business-calendar", cfg.Admin.GetCalendar)
	admin.Put("/business-calendar", cfg.Admin.PutCalendar)
	admin.Put("/features/:id", cfg.Admin.UpsertFeature)
}
