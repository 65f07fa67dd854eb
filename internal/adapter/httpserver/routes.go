package httpserver

import (
	"log/slog"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"

	apperrors "github.com/Saileeich/Saileeich-TTS/internal/platform/errors"
)

const maxBodySize = "16K"

func (s *Server) registerRoutes() {
	s.echo.Use(correlationMiddleware)
	s.echo.Use(s.setupRequestLoggerMiddleware())
	s.echo.Use(middleware.Recover())
	if s.httpMetrics != nil {
		s.echo.Use(s.httpMetrics.Middleware())
		s.echo.Use(apperrors.Middleware(s.httpMetrics.ErrorsTotal))
	} else {
		s.echo.Use(apperrors.Middleware(nil))
	}
	s.echo.Use(middleware.SecureWithConfig(middleware.SecureConfig{
		XSSProtection:      "",
		ContentTypeNosniff: "nosniff",
		XFrameOptions:      "DENY",
		HSTSMaxAge:         63072000, // 2 years; only sent over HTTPS
		ReferrerPolicy:     "strict-origin-when-cross-origin",
	}))

	s.registerHealthRoutes()
	s.registerAPIRoutes()

	if s.metricsHandler != nil {
		s.echo.GET("/metrics", echo.WrapHandler(s.metricsHandler))
	}
	if s.websocketHandler != nil {
		s.echo.GET("/ws", s.websocketHandler)
	}
}

func (s *Server) registerAPIRoutes() {
	limiter := newRateLimiter(s.config.APIRateLimit, s.config.APIRateBurst)
	bodyLimit := middleware.BodyLimit(maxBodySize)

	api := s.echo.Group("/api", limiter, bodyLimit)
	api.GET("/state", s.handleState)
	api.GET("/speech", s.handleSpeechQueue)
	api.POST("/comments/:id/approve", s.handleApprove)
	api.POST("/comments/:id/deny", s.handleDeny)
	api.PATCH("/settings", s.handleUpdateSettings)
	api.POST("/speech/:id/retire", s.handleRetireSpeech)
	api.DELETE("/speech", s.handleClearSpeech)
	api.GET("/session", s.handleSessionStatus)
	api.POST("/session", s.handleBindSession)
	api.DELETE("/session", s.handleUnbindSession)

	// Body-addressed forms kept for dashboards that post {"id": ...}.
	s.echo.POST("/approve", s.handleApproveByBody, limiter, bodyLimit)
	s.echo.POST("/deny", s.handleDenyByBody, limiter, bodyLimit)
}

func (s *Server) setupRequestLoggerMiddleware() echo.MiddlewareFunc {
	return middleware.RequestLoggerWithConfig(middleware.RequestLoggerConfig{
		LogStatus:  true,
		LogURI:     true,
		LogMethod:  true,
		LogLatency: true,
		LogError:   true,
		Skipper: func(c echo.Context) bool {
			return c.Path() == "/metrics" || c.Path() == "/health/live"
		},
		LogValuesFunc: func(c echo.Context, v middleware.RequestLoggerValues) error {
			attrs := []any{
				"method", v.Method,
				"uri", v.URI,
				"status", v.Status,
				"latency", v.Latency,
			}
			if v.Error != nil {
				attrs = append(attrs, "error", v.Error)
			}
			slog.InfoContext(c.Request().Context(), "Request", attrs...)
			return nil
		},
	})
}
