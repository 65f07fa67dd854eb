package config

import (
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"go-simpler.org/env"

	"github.com/Saileeich/Saileeich-TTS/internal/domain"
)

type Config struct {
	AppEnv    string `env:"APP_ENV" default:"development"`
	AppURL    string `env:"APP_URL" default:"http://localhost:8080"`
	Port      string `env:"PORT" default:"8080"`
	LogLevel  string `env:"LOG_LEVEL" default:"info"`
	LogFormat string `env:"LOG_FORMAT" default:"text"`

	// Optional bot credentials; chat is read anonymously without them.
	TwitchUsername   string `env:"TWITCH_USERNAME"`
	TwitchOAuthToken string `env:"TWITCH_OAUTH_TOKEN"`
	// Optional channel bound at startup.
	TwitchChannel string `env:"TWITCH_CHANNEL"`

	BannedPhrases []string `env:"BANNED_PHRASES" default:"europe itch,gabe itch,pho q"`

	DefaultAudienceFilter      string `env:"DEFAULT_AUDIENCE_FILTER" default:"everybody"`
	DefaultManualModeration    bool   `env:"DEFAULT_MANUAL_MODERATION" default:"true"`
	DefaultRequirePeriodPrefix bool   `env:"DEFAULT_REQUIRE_PERIOD_PREFIX" default:"true"`
	DefaultCooldownSeconds     int    `env:"DEFAULT_COOLDOWN_SECONDS" default:"5"`
	DefaultMaxTotalQueued      int    `env:"DEFAULT_MAX_TOTAL_QUEUED" default:"5"`

	CooldownTrackerSize   int           `env:"COOLDOWN_TRACKER_SIZE" default:"10000"`
	CooldownSweepInterval time.Duration `env:"COOLDOWN_SWEEP_INTERVAL" default:"1m"`

	MaxWebSocketConnections int     `env:"MAX_WEBSOCKET_CONNECTIONS" default:"10000"`
	MaxConnectionsPerIP     int     `env:"WS_MAX_CONNECTIONS_PER_IP" default:"50"`
	WSConnectRate           float64 `env:"WS_CONNECT_RATE" default:"10"`
	WSConnectBurst          int     `env:"WS_CONNECT_BURST" default:"20"`

	APIRateLimit float64 `env:"API_RATE_LIMIT" default:"20"`
	APIRateBurst int     `env:"API_RATE_BURST" default:"40"`

	UpstreamConnectTimeout time.Duration `env:"UPSTREAM_CONNECT_TIMEOUT" default:"15s"`
	ShutdownTimeout        time.Duration `env:"SHUTDOWN_TIMEOUT" default:"10s"`
}

func Load() (*Config, error) {
	if err := godotenv.Load(); err != nil {
		slog.Info("No .env file found, using environment variables")
	}

	var cfg Config
	if err := env.Load(&cfg, &env.Options{SliceSep: ","}); err != nil {
		return nil, fmt.Errorf("failed to load environment variables: %w", err)
	}

	cfg.BannedPhrases = trimPhrases(cfg.BannedPhrases)

	if err := validate(&cfg); err != nil {
		return nil, err
	}

	return &cfg, nil
}

// IsDevelopment reports whether the app runs in development mode.
func (c *Config) IsDevelopment() bool {
	return c.AppEnv == "development"
}

// InitialSettings returns the settings the engine starts with.
func (c *Config) InitialSettings() domain.Settings {
	return domain.Settings{
		AudienceFilter:      domain.AudienceFilter(c.DefaultAudienceFilter),
		ManualModeration:    c.DefaultManualModeration,
		RequirePeriodPrefix: c.DefaultRequirePeriodPrefix,
		CooldownSeconds:     c.DefaultCooldownSeconds,
		MaxTotalQueued:      c.DefaultMaxTotalQueued,
	}
}

func validate(cfg *Config) error {
	if err := cfg.InitialSettings().Validate(); err != nil {
		return fmt.Errorf("invalid default settings: %w", err)
	}

	if (cfg.TwitchUsername == "") != (cfg.TwitchOAuthToken == "") {
		return errors.New("TWITCH_USERNAME and TWITCH_OAUTH_TOKEN must be set together")
	}

	u, err := url.Parse(cfg.AppURL)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return fmt.Errorf("APP_URL must be an absolute URL, got %q", cfg.AppURL)
	}
	if !cfg.IsDevelopment() && u.Scheme != "https" {
		return fmt.Errorf("APP_URL uses %s which is not allowed in %s", u.Scheme, cfg.AppEnv)
	}

	positive := map[string]int{
		"COOLDOWN_TRACKER_SIZE":     cfg.CooldownTrackerSize,
		"MAX_WEBSOCKET_CONNECTIONS": cfg.MaxWebSocketConnections,
		"WS_MAX_CONNECTIONS_PER_IP": cfg.MaxConnectionsPerIP,
		"WS_CONNECT_BURST":          cfg.WSConnectBurst,
		"API_RATE_BURST":            cfg.APIRateBurst,
	}
	for name, value := range positive {
		if value < 1 {
			return fmt.Errorf("%s must be at least 1", name)
		}
	}
	if cfg.WSConnectRate <= 0 || cfg.APIRateLimit <= 0 {
		return errors.New("WS_CONNECT_RATE and API_RATE_LIMIT must be positive")
	}

	durations := map[string]time.Duration{
		"COOLDOWN_SWEEP_INTERVAL":  cfg.CooldownSweepInterval,
		"UPSTREAM_CONNECT_TIMEOUT": cfg.UpstreamConnectTimeout,
		"SHUTDOWN_TIMEOUT":         cfg.ShutdownTimeout,
	}
	for name, value := range durations {
		if value <= 0 {
			return fmt.Errorf("%s must be positive", name)
		}
	}

	return nil
}

func trimPhrases(phrases []string) []string {
	out := make([]string, 0, len(phrases))
	for _, p := range phrases {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}
