package observability

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMetricsCounters(t *testing.T) {
	m := NewMetrics()
	m.RecordBreach("first_response")
	m.RecordBreach("first_response")
	m.RecordEscalation("sla_breach", "notify")
	m.RecordNotification("email", errors.New("smtp down"))
	m.RecordRequest("/api/v1/tickets", "GET", 200, 15*time.Millisecond)

	assert.Equal(t, 2.0, testutil.ToFloat64(m.breaches.WithLabelValues("first_response")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.escalations.WithLabelValues("sla_breach", "notify")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.notifications.WithLabelValues("email", "failed")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.requests.WithLabelValues("/api/v1/tickets", "GET", "200")))
}

func TestMetricsNilSafe(t *testing.T) {
	var m *Metrics
	assert.NotPanics(t, func() {
		m.RecordBreach("resolution")
		m.RecordLockContention()
		m.ObserveScan(time.Second)
	})
}

func TestMetricsHandlerExposesCollectors(t *testing.T) {
	m := NewMetrics()
	m.RecordAutoClose()

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	assert.True(t, strings.Contains(rec.Body.String(), "helpdesk_tickets_auto_closed_total 1"))
}
