package handlers

import (
	"context"
	"time"

	"github.com/gofiber/fiber/v2"
)

// Dependency is a backing service probed for readiness.
type Dependency interface {
	Ping(ctx context.Context) error
}

// HealthCheck names a dependency in the readiness report.
type HealthCheck struct {
	Name       string
	Dependency Dependency
}

// ScanReporter exposes when the breach scanner last completed a pass.
type ScanReporter interface {
	LastScan() (time.Time, bool)
}

// HealthHandler serves liveness and readiness probes.
type HealthHandler struct {
	serviceName string
	version     string
	scanner     ScanReporter
	checks      []HealthCheck
}

// NewHealthHandler returns a new handler instance. scanner may be nil.
func NewHealthHandler(serviceName, version string, scanner ScanReporter, checks ...HealthCheck) *HealthHandler {
	return &HealthHandler{serviceName: serviceName, version: version, scanner: scanner, checks: checks}
}

// Live reports service liveness.
func (h *HealthHandler) Live(c *fiber.Ctx) error {
	return c.JSON(fiber.Map{
		"status":  "alive",
		"service": h.serviceName,
		"version": h.version,
	})
}

// Ready pings every dependency. The scanner's last pass is informational only.
func (h *HealthHandler) Ready(c *fiber.Ctx) error {
	ctx, cancel := context.WithTimeout(c.UserContext(), 2*time.Second)
	defer cancel()

	dependencies := fiber.Map{}
	failed := false
	for _, check := range h.checks {
		if check.Dependency == nil {
			continue
		}
		if err := check.Dependency.Ping(ctx); err != nil {
			dependencies[check.Name] = err.Error()
			failed = true
			continue
		}
		dependencies[check.Name] = "ok"
	}

	if failed {
		return c.Status(fiber.StatusServiceUnavailable).JSON(fiber.Map{
			"error": fiber.Map{
				"code":    "DEPENDENCY_UNAVAILABLE",
				"message": "one or more dependencies unavailable",
				"details": dependencies,
			},
		})
	}

	body := fiber.Map{"status": "ready", "dependencies": dependencies}
	if h.scanner != nil {
		if last, ok := h.scanner.LastScan(); ok {
			body["breach_scanner"] = fiber.Map{"last_run": last}
		} else {
			body["breach_scanner"] = fiber.Map{"last_run": nil}
		}
	}
	return c.JSON(body)
}
