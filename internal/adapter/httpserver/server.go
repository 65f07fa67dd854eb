// Package httpserver serves the request/response API, health probes, metrics and the
// observer WebSocket endpoint.
package httpserver

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/labstack/echo/v4"

	"github.com/Saileeich/Saileeich-TTS/internal/adapter/metrics"
	"github.com/Saileeich/Saileeich-TTS/internal/domain"
	"github.com/Saileeich/Saileeich-TTS/internal/platform/config"
)

// Engine is the moderation surface the API drives.
type Engine interface {
	Approve(ctx context.Context, id string) (domain.Comment, bool, error)
	Deny(ctx context.Context, id string) (domain.Comment, error)
	RetireFromSpeech(ctx context.Context, id string) bool
	ClearSpeechQueue(ctx context.Context) int
	UpdateSettings(ctx context.Context, u domain.SettingsUpdate) (domain.Settings, error)
	Snapshot() domain.QueueSnapshot
	SpeechQueue() []domain.Comment
}

// Sessions binds the relay to an upstream live identity.
type Sessions interface {
	Bind(ctx context.Context, identity, token string) error
	Unbind(ctx context.Context) error
	Status() domain.SessionStatus
}

// Observers reports the connected observer classes.
type Observers interface {
	Counts() domain.ObserverCounts
}

// Deps bundles what the server routes to. Metrics, MetricsHandler and WebSocket are
// optional; their routes are skipped when nil.
type Deps struct {
	Engine         Engine
	Sessions       Sessions
	Observers      Observers
	WebSocket      echo.HandlerFunc
	MetricsHandler http.Handler
	HTTPMetrics    *metrics.HTTPMetrics
	HealthChecks   []HealthCheck
	Clock          clockwork.Clock
}

type Server struct {
	echo   *echo.Echo
	config *config.Config

	engine    Engine
	sessions  Sessions
	observers Observers

	websocketHandler echo.HandlerFunc
	metricsHandler   http.Handler
	httpMetrics      *metrics.HTTPMetrics

	healthChecks []HealthCheck
	clock        clockwork.Clock
	startTime    time.Time
}

func NewServer(cfg *config.Config, deps Deps) *Server {
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	e.HTTPErrorHandler = httpErrorHandler

	clock := deps.Clock
	if clock == nil {
		clock = clockwork.NewRealClock()
	}

	srv := &Server{
		echo:             e,
		config:           cfg,
		engine:           deps.Engine,
		sessions:         deps.Sessions,
		observers:        deps.Observers,
		websocketHandler: deps.WebSocket,
		metricsHandler:   deps.MetricsHandler,
		httpMetrics:      deps.HTTPMetrics,
		healthChecks:     deps.HealthChecks,
		clock:            clock,
		startTime:        clock.Now(),
	}

	srv.registerRoutes()

	return srv
}

func (s *Server) Start() error {
	slog.Info("Starting server", "port", s.config.Port)
	if err := s.echo.Start(":" + s.config.Port); err != nil {
		return fmt.Errorf("failed to start server: %w", err)
	}
	return nil
}

func (s *Server) Shutdown(ctx context.Context) error {
	if err := s.echo.Shutdown(ctx); err != nil {
		return fmt.Errorf("failed to shutdown server: %w", err)
	}
	return nil
}

// ServeHTTP lets tests drive the full middleware chain without a listener.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.echo.ServeHTTP(w, r)
}
