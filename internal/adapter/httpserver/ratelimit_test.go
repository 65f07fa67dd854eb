package httpserver

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Saileeich/Saileeich-TTS/internal/platform/config"
)

const testRemoteAddr = "1.2.3.4:1234"

func callLimited(t *testing.T, mw echo.MiddlewareFunc, remoteAddr string) error {
	t.Helper()

	e := echo.New()
	req := httptest.NewRequest(http.MethodGet, "/api/state", nil)
	req.RemoteAddr = remoteAddr
	c := e.NewContext(req, httptest.NewRecorder())

	return mw(func(c echo.Context) error {
		return c.String(http.StatusOK, "ok")
	})(c)
}

func TestRateLimiterAllowsRequestsUnderLimit(t *testing.T) {
	mw := newRateLimiter(10, 3)

	for iter := 0; iter < 3; iter++ {
		require.NoError(t, callLimited(t, mw, testRemoteAddr))
	}
}

func TestRateLimiterBlocksExcessiveRequests(t *testing.T) {
	mw := newRateLimiter(0.01, 1)

	require.NoError(t, callLimited(t, mw, testRemoteAddr))

	err := callLimited(t, mw, testRemoteAddr)
	var httpErr *echo.HTTPError
	require.True(t, errors.As(err, &httpErr))
	assert.Equal(t, http.StatusTooManyRequests, httpErr.Code)
}

func TestRateLimiterDifferentIPsAreIndependent(t *testing.T) {
	mw := newRateLimiter(0.01, 1)

	require.NoError(t, callLimited(t, mw, testRemoteAddr))
	require.NoError(t, callLimited(t, mw, "5.6.7.8:1234"))
	assert.Error(t, callLimited(t, mw, testRemoteAddr))
}

func TestRateLimiter_APIRoutesRenderJSON429(t *testing.T) {
	srv := newTestServer(t, Deps{}, func(cfg *config.Config) {
		cfg.APIRateLimit = 0.01
		cfg.APIRateBurst = 1
	})

	first := do(t, srv, http.MethodGet, "/api/state", "")
	require.Equal(t, http.StatusOK, first.Code)

	second := do(t, srv, http.MethodGet, "/api/speech", "")
	assert.Equal(t, http.StatusTooManyRequests, second.Code)
	assert.JSONEq(t, `{"error":"rate limit exceeded","type":"validation"}`, second.Body.String())
}

func TestRateLimiter_HealthNotLimited(t *testing.T) {
	srv := newTestServer(t, Deps{}, func(cfg *config.Config) {
		cfg.APIRateLimit = 0.01
		cfg.APIRateBurst = 1
	})

	for iter := 0; iter < 5; iter++ {
		assert.Equal(t, http.StatusOK, do(t, srv, http.MethodGet, "/health/live", "").Code)
	}
}
