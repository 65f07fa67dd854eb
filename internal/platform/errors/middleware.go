package errors

import (
	"errors"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/prometheus/client_golang/prometheus"
)

// Middleware returns an Echo middleware that renders handler errors as JSON. errorsTotal
// counts errors by type and may be nil.
func Middleware(errorsTotal *prometheus.CounterVec) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			err := next(c)
			if err == nil {
				return nil
			}

			// Echo's own errors (404 routes, rate limiter, body limit) keep their status.
			var httpErr *echo.HTTPError
			if errors.As(err, &httpErr) {
				count(errorsTotal, WrapHTTPError(httpErr).Type)
				return err
			}

			structuredErr := AsStructuredError(err)
			count(errorsTotal, structuredErr.Type)
			logError(c, structuredErr)

			if err := c.JSON(structuredErr.HTTPStatus(), structuredErr.ToResponse()); err != nil {
				return fmt.Errorf("failed to write error response: %w", err)
			}
			return nil
		}
	}
}

func count(errorsTotal *prometheus.CounterVec, t ErrorType) {
	if errorsTotal != nil {
		errorsTotal.WithLabelValues(string(t)).Inc()
	}
}

func logError(c echo.Context, err *Error) {
	ctx := c.Request().Context()
	attrs := []any{
		"error_type", err.Type,
		"message", err.Message,
		"path", c.Request().URL.Path,
		"method", c.Request().Method,
		"status", err.HTTPStatus(),
	}
	for k, v := range err.Context {
		attrs = append(attrs, k, v)
	}

	switch err.Type {
	case TypeValidation, TypeNotFound:
		slog.InfoContext(ctx, "Request rejected", attrs...)
	case TypeConflict:
		slog.WarnContext(ctx, "Conflict", attrs...)
	case TypeExternal:
		if err.Cause != nil {
			attrs = append(attrs, "cause", err.Cause)
		}
		slog.ErrorContext(ctx, "External service error", attrs...)
	default:
		if err.Cause != nil {
			attrs = append(attrs, "cause", err.Cause)
		}
		slog.ErrorContext(ctx, "Internal error", attrs...)
	}
}

// WrapHTTPError converts Echo's HTTPError to a structured error.
func WrapHTTPError(httpErr *echo.HTTPError) *Error {
	message := http.StatusText(httpErr.Code)
	if msg, ok := httpErr.Message.(string); ok {
		message = msg
	}

	var errType ErrorType
	switch {
	case httpErr.Code == http.StatusNotFound:
		errType = TypeNotFound
	case httpErr.Code == http.StatusConflict:
		errType = TypeConflict
	case httpErr.Code == http.StatusBadGateway, httpErr.Code == http.StatusServiceUnavailable:
		errType = TypeExternal
	case httpErr.Code >= 400 && httpErr.Code < 500:
		errType = TypeValidation
	default:
		errType = TypeInternal
	}

	return &Error{
		Type:    errType,
		Message: message,
		Cause:   httpErr.Internal,
		Context: make(map[string]any),
	}
}
