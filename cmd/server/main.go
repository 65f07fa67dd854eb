package main

import (
	"context"
	"errors"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/jonboulle/clockwork"

	"github.com/Saileeich/Saileeich-TTS/internal/adapter/httpserver"
	"github.com/Saileeich/Saileeich-TTS/internal/adapter/metrics"
	"github.com/Saileeich/Saileeich-TTS/internal/adapter/twitch"
	"github.com/Saileeich/Saileeich-TTS/internal/adapter/websocket"
	"github.com/Saileeich/Saileeich-TTS/internal/app"
	"github.com/Saileeich/Saileeich-TTS/internal/broadcast"
	"github.com/Saileeich/Saileeich-TTS/internal/moderation"
	"github.com/Saileeich/Saileeich-TTS/internal/platform/config"
	"github.com/Saileeich/Saileeich-TTS/internal/platform/logging"
	"github.com/Saileeich/Saileeich-TTS/internal/platform/version"
)

func runGracefulShutdown(cfg *config.Config, srv *httpserver.Server, sessions *app.SessionManager, stopSweeper func(), broadcaster *broadcast.Broadcaster) <-chan struct{} {
	done := make(chan struct{})
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	go func() {
		<-sigChan
		slog.Info("Shutdown signal received, cleaning up...")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			slog.Error("Server shutdown error", "error", err)
		}

		if err := sessions.Close(shutdownCtx); err != nil {
			slog.Error("Failed to close upstream session", "error", err)
		}

		stopSweeper()
		broadcaster.Stop()

		close(done)
	}()

	return done
}

func setupConfig() *config.Config {
	cfg, err := config.Load()
	if err != nil {
		// Use log before slog is initialized
		log.Fatalf("Failed to load config: %v", err)
	}
	return cfg
}

func setupEngine(cfg *config.Config, broadcaster *broadcast.Broadcaster, clock clockwork.Clock, m *metrics.ModerationMetrics) *moderation.Engine {
	cooldowns, err := moderation.NewCooldownTracker(cfg.CooldownTrackerSize, clock)
	if err != nil {
		slog.Error("Failed to create cooldown tracker", "error", err)
		os.Exit(1)
	}

	engine, err := moderation.NewEngine(cfg.InitialSettings(), moderation.NewSanitizer(cfg.BannedPhrases), cooldowns, broadcaster, clock, m)
	if err != nil {
		slog.Error("Failed to create moderation engine", "error", err)
		os.Exit(1)
	}
	return engine
}

// bindStartupChannel binds TWITCH_CHANNEL when set. Failure is logged, not fatal; an
// operator can bind again through the API.
func bindStartupChannel(cfg *config.Config, sessions *app.SessionManager) {
	if cfg.TwitchChannel == "" {
		return
	}
	go func() {
		if err := sessions.Bind(context.Background(), cfg.TwitchChannel, ""); err != nil {
			slog.Error("Failed to bind startup channel", "channel", cfg.TwitchChannel, "error", err)
		}
	}()
}

func main() {
	clock := clockwork.NewRealClock()

	cfg := setupConfig()

	logging.InitLogger(cfg.LogLevel, cfg.LogFormat)
	info := version.Get()
	slog.Info("Application starting", "service", info.Service, "version", info.Version, "commit", info.Commit, "env", cfg.AppEnv, "port", cfg.Port)

	reg := metrics.NewRegistry()
	wsMetrics := metrics.NewWebSocketMetrics(reg)
	httpMetrics := metrics.NewHTTPMetrics(reg)

	broadcaster := broadcast.NewBroadcaster(clock, wsMetrics)

	engine := setupEngine(cfg, broadcaster, clock, metrics.NewModerationMetrics(reg))
	stopSweeper := engine.StartCooldownSweeper(cfg.CooldownSweepInterval)

	connector := twitch.NewConnector(cfg.TwitchUsername, cfg.TwitchOAuthToken, clock)
	sessions, err := app.NewSessionManager(connector, engine, broadcaster, cfg.UpstreamConnectTimeout, metrics.NewSessionMetrics(reg))
	if err != nil {
		slog.Error("Failed to create session manager", "error", err)
		os.Exit(1)
	}

	limits := websocket.NewConnectionLimits(int64(cfg.MaxWebSocketConnections), cfg.MaxConnectionsPerIP, cfg.WSConnectRate, cfg.WSConnectBurst, clock)
	wsHandler := websocket.NewHandler(engine, broadcaster, limits, websocket.NewCheckOrigin(cfg.AppURL, cfg.IsDevelopment()), wsMetrics)

	srv := httpserver.NewServer(cfg, httpserver.Deps{
		Engine:         engine,
		Sessions:       sessions,
		Observers:      broadcaster,
		WebSocket:      wsHandler.Handle,
		MetricsHandler: metrics.Handler(reg),
		HTTPMetrics:    httpMetrics,
		HealthChecks: []httpserver.HealthCheck{
			{Name: "broadcaster", Check: broadcaster.Ping},
		},
		Clock: clock,
	})

	bindStartupChannel(cfg, sessions)

	done := runGracefulShutdown(cfg, srv, sessions, stopSweeper, broadcaster)

	if err := srv.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		slog.Error("Server error", "error", err)
		os.Exit(1)
	}

	<-done
}
