package metrics

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/labstack/echo/v4"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRegistration_NoConflicts(t *testing.T) {
	reg := NewRegistry()

	require.NotPanics(t, func() {
		NewHTTPMetrics(reg)
		NewWebSocketMetrics(reg)
		NewModerationMetrics(reg)
		NewSessionMetrics(reg)
	})

	families, err := reg.Gather()
	require.NoError(t, err)
	assert.NotEmpty(t, families)
}

func TestModerationMetrics_NilSafe(t *testing.T) {
	var m *ModerationMetrics
	assert.NotPanics(t, func() {
		m.ObserveQueues(1, 2)
		m.ObserveAdmission("admitted")
		m.ObserveTransition("pending")
		m.ObserveCooldowns(3, 1)
	})
}

func TestModerationMetrics_Observe(t *testing.T) {
	m := NewModerationMetrics(NewRegistry())

	m.ObserveQueues(2, 3)
	m.ObserveAdmission("cooldown")
	m.ObserveAdmission("cooldown")
	m.ObserveCooldowns(7, 0)
	m.ObserveCooldowns(4, 3)

	assert.Equal(t, float64(2), testutil.ToFloat64(m.QueueDepth.WithLabelValues("moderation")))
	assert.Equal(t, float64(3), testutil.ToFloat64(m.QueueDepth.WithLabelValues("speech")))
	assert.Equal(t, float64(2), testutil.ToFloat64(m.Admissions.WithLabelValues("cooldown")))
	assert.Equal(t, float64(4), testutil.ToFloat64(m.CooldownEntries))
	assert.Equal(t, float64(3), testutil.ToFloat64(m.CooldownsEvicted))
}

func TestHTTPMetrics_MiddlewareSkipsProbes(t *testing.T) {
	m := NewHTTPMetrics(NewRegistry())

	e := echo.New()
	e.Use(m.Middleware())
	e.GET("/api/state", func(c echo.Context) error { return c.NoContent(http.StatusOK) })
	e.GET("/health/live", func(c echo.Context) error { return c.NoContent(http.StatusOK) })

	for _, path := range []string{"/api/state", "/health/live"} {
		e.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, path, nil))
	}

	assert.Equal(t, float64(1), testutil.ToFloat64(m.RequestsTotal.WithLabelValues(http.MethodGet, "/api/state", "200")))
	assert.Equal(t, 1, testutil.CollectAndCount(m.RequestsTotal))
	assert.Equal(t, float64(0), testutil.ToFloat64(m.InFlightGauge))
}

func TestHandler_ServesRegistry(t *testing.T) {
	reg := NewRegistry()
	m := NewSessionMetrics(reg)
	m.Connected.Set(1)

	rec := httptest.NewRecorder()
	Handler(reg).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "tts_relay_session_connected 1")
}
