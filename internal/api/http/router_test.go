package http

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	nethttp "net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/spec-kit/helpdesk-service/internal/api/http/handlers"
	"github.com/spec-kit/helpdesk-service/internal/auth"
	"github.com/spec-kit/helpdesk-service/internal/config"
	"github.com/spec-kit/helpdesk-service/internal/domain"
	"github.com/spec-kit/helpdesk-service/internal/events"
	"github.com/spec-kit/helpdesk-service/internal/lock"
	"github.com/spec-kit/helpdesk-service/internal/repository/memory"
	"github.com/spec-kit/helpdesk-service/internal/service"
	"github.com/spec-kit/helpdesk-service/internal/sla"
)

type testServer struct {
	app    *fiber.App
	tokens *auth.TokenManager
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()
	logger := zap.NewNop()
	store := memory.NewStore()
	catalog, err := sla.NewCatalog(sla.CatalogDependencies{
		PolicyRepo:   store.Policies(),
		CalendarRepo: store.Calendars(),
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
	require.NoError(t, catalog.Bootstrap(context.Background()))

	dispatcher := events.NewInMemoryDispatcher(logger)
	locker := lock.NewLocalLocker(lock.Options{Wait: time.Second})
	escalations := service.NewEscalationService(service.EscalationDependencies{
		RuleRepo:    store.Rules(),
		FiringRepo:  store.Firings(),
		TicketRepo:  store.Tickets(),
		CommentRepo: store.Comments(),
		HistoryRepo: store.History(),
		Dispatcher:  dispatcher,
		Logger:      logger,
	})
	lifecycle := service.NewLifecycleService(service.LifecycleDependencies{
		TicketRepo:     store.Tickets(),
		CommentRepo:    store.Comments(),
		AttachmentRepo: store.Attachments(),
		HistoryRepo:    store.History(),
		FiringRepo:     store.Firings(),
		FeatureRepo:    store.Features(),
		Catalog:        catalog,
		Locker:         locker,
		Escalations:    escalations,
		Dispatcher:     dispatcher,
		Logger:         logger,
	})
	assignments := service.NewAssignmentService(service.AssignmentDependencies{
		TicketRepo:  store.Tickets(),
		CommentRepo: store.Comments(),
		HistoryRepo: store.History(),
		Locker:      locker,
		Dispatcher:  dispatcher,
	})
	admin := service.NewAdminService(service.AdminDependencies{
		PolicyRepo:   store.Policies(),
		RuleRepo:     store.Rules(),
		CalendarRepo: store.Calendars(),
		FeatureRepo:  store.Features(),
		Catalog:      catalog,
		Logger:       logger,
	})

	tokens := auth.NewTokenManager("test-secret", 60)
	app := fiber.New()
	RegisterMiddlewares(app, logger, nil, 0)
	RegisterRoutes(app, RouteConfig{
		Health:         handlers.NewHealthHandler("helpdesk-service", "test", nil),
		Tickets:        handlers.NewTicketsHandler(lifecycle, assignments),
		Analytics:      handlers.NewAnalyticsHandler(service.NewAnalyticsService(service.AnalyticsDependencies{TicketRepo: store.Tickets(), RedFlagThreshold: 50})),
		Admin:          handlers.NewAdminHandler(admin),
		AuthMiddleware: auth.NewAuthMiddleware(tokens),
	})
	return &testServer{app: app, tokens: tokens}
}

func (s *testServer) do(t *testing.T, actor *domain.Actor, method, path string, body any) (int, map[string]any) {
	t.Helper()
	var reader io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(raw)
	}
	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	if actor != nil {
		token, _, err := s.tokens.GenerateToken(*actor)
		require.NoError(t, err)
		req.Header.Set("Authorization", "Bearer "+token)
	}
	resp, err := s.app.Test(req, -1)
	require.NoError(t, err)
	defer resp.Body.Close()

	var decoded map[string]any
	raw, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	if len(raw) > 0 {
		require.NoError(t, json.Unmarshal(raw, &decoded))
	}
	return resp.StatusCode, decoded
}

var (
	employee = domain.Actor{ID: "emp-1", Name: "Erin", Role: domain.ActorRoleEmployee, TenantID: "tenant-a"}
	agent    = domain.Actor{ID: "agent-1", Name: "Jane", Role: domain.ActorRoleAgent, TenantID: "tenant-a"}
	admin    = domain.Actor{ID: "admin-1", Name: "Root", Role: domain.ActorRoleAdmin, TenantID: "tenant-a"}
)

func errorCode(body map[string]any) string {
	envelope, _ := body["error"].(map[string]any)
	code, _ := envelope["code"].(string)
	return code
}

func TestTicketFlowOverHTTP(t *testing.T) {
	s := newTestServer(t)

	status, body := s.do(t, &employee, nethttp.MethodPost, "/api/v1/tickets", map[string]any{
		"category": "it",
		"title":    "VPN drops every hour",
		"priority": "high",
	})
	require.Equal(t, nethttp.StatusCreated, status)
	data := body["data"].(map[string]any)
	id := data["id"].(string)
	assert.Equal(t, "HD-0001", data["ticket_number"])
	assert.Equal(t, "new", data["status"])

	status, _ = s.do(t, &agent, nethttp.MethodPost, "/api/v1/tickets/"+id+"/transitions", map[string]any{"status": "open"})
	assert.Equal(t, nethttp.StatusOK, status)

	status, body = s.do(t, &agent, nethttp.MethodPost, "/api/v1/tickets/"+id+"/transitions", map[string]any{"status": "closed"})
	assert.Equal(t, nethttp.StatusConflict, status)
	assert.Equal(t, "INVALID_TRANSITION", errorCode(body))

	status, _ = s.do(t, &employee, nethttp.MethodPost, "/api/v1/tickets/"+id+"/comments", map[string]any{"body": "Still broken"})
	assert.Equal(t, nethttp.StatusCreated, status)

	status, body = s.do(t, &employee, nethttp.MethodGet, "/api/v1/tickets/"+id, nil)
	require.Equal(t, nethttp.StatusOK, status)
	detail := body["data"].(map[string]any)
	assert.Equal(t, "open", detail["status"])
	assert.NotEmpty(t, detail["comments"])

	status, body = s.do(t, &agent, nethttp.MethodGet, "/api/v1/tickets?priority=high", nil)
	require.Equal(t, nethttp.StatusOK, status)
	assert.Len(t, body["data"], 1)
}

func TestValidationErrorEnvelope(t *testing.T) {
	s := newTestServer(t)
	status, body := s.do(t, &employee, nethttp.MethodPost, "/api/v1/tickets", map[string]any{
		"title":    "   ",
		"priority": "urgent",
	})
	assert.Equal(t, nethttp.StatusBadRequest, status)
	assert.Equal(t, "VALIDATION_FAILED", errorCode(body))
	details := body["error"].(map[string]any)["details"].(map[string]any)
	assert.Contains(t, details, "title")
	assert.Contains(t, details, "priority")
}

func TestAuthAndRoleGates(t *testing.T) {
	s := newTestServer(t)

	status, body := s.do(t, nil, nethttp.MethodGet, "/api/v1/tickets", nil)
	assert.Equal(t, nethttp.StatusUnauthorized, status)
	assert.Equal(t, "UNAUTHORIZED", errorCode(body))

	status, _ = s.do(t, &employee, nethttp.MethodGet, "/api/v1/analytics", nil)
	assert.Equal(t, nethttp.StatusForbidden, status)

	status, _ = s.do(t, &agent, nethttp.MethodGet, "/api/v1/admin/sla-policies", nil)
	assert.Equal(t, nethttp.StatusForbidden, status)

	status, body = s.do(t, &admin, nethttp.MethodGet, "/api/v1/admin/sla-policies", nil)
	assert.Equal(t, nethttp.StatusOK, status)
	assert.Len(t, body["data"], 4)

	status, _ = s.do(t, nil, nethttp.MethodGet, "/health/live", nil)
	assert.Equal(t, nethttp.StatusOK, status)
}

func TestAdminRuleEndpoints(t *testing.T) {
	s := newTestServer(t)

	status, body := s.do(t, &admin, nethttp.MethodPost, "/api/v1/admin/escalation-rules", map[string]any{
		"name":    "tier2 on breach",
		"trigger": map[string]any{"type": "sla_breach"},
		"action":  map[string]any{"type": "reassign"},
	})
	assert.Equal(t, nethttp.StatusBadRequest, status)
	assert.Equal(t, "VALIDATION_FAILED", errorCode(body))

	status, body = s.do(t, &admin, nethttp.MethodPost, "/api/v1/admin/escalation-rules", map[string]any{
		"name":    "tier2 on breach",
		"trigger": map[string]any{"type": "sla_breach"},
		"action":  map[string]any{"type": "reassign", "team": "tier2"},
	})
	require.Equal(t, nethttp.StatusCreated, status)
	rule := body["data"].(map[string]any)
	assert.Equal(t, true, rule["enabled"])

	status, _ = s.do(t, &admin, nethttp.MethodDelete, "/api/v1/admin/escalation-rules/abc", nil)
	assert.Equal(t, nethttp.StatusBadRequest, status)
}

func TestUnknownRouteUsesEnvelope(t *testing.T) {
	s := newTestServer(t)
	status, body := s.do(t, nil, nethttp.MethodGet, "/nope", nil)
	assert.Equal(t, nethttp.StatusNotFound, status)
	assert.Equal(t, "NOT_FOUND", errorCode(body))

	req := httptest.NewRequest(nethttp.MethodGet, "/health/live", nil)
	req.Header.Set("X-Request-ID", "req-42")
	resp, err := s.app.Test(req, -1)
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, "req-42", resp.Header.Get("X-Request-ID"))
}
