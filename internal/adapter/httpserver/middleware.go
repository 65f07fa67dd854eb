package httpserver

import (
	"errors"
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/Saileeich/Saileeich-TTS/internal/platform/correlation"
	apperrors "github.com/Saileeich/Saileeich-TTS/internal/platform/errors"
)

// correlationMiddleware accepts a caller's correlation id or mints one, and echoes it back.
func correlationMiddleware(next echo.HandlerFunc) echo.HandlerFunc {
	return func(c echo.Context) error {
		id := correlation.FromHeader(c.Request().Header.Get(correlation.Header))
		c.Response().Header().Set(correlation.Header, id)

		ctx := correlation.WithID(c.Request().Context(), id)
		c.SetRequest(c.Request().WithContext(ctx))
		return next(c)
	}
}

// httpErrorHandler renders errors that reach echo unhandled, such as unknown routes and
// rate limit denials, in the same JSON shape as handler errors.
func httpErrorHandler(err error, c echo.Context) {
	if c.Response().Committed {
		return
	}

	var status int
	var structured *apperrors.Error
	var httpErr *echo.HTTPError
	if errors.As(err, &httpErr) {
		status = httpErr.Code
		structured = apperrors.WrapHTTPError(httpErr)
	} else {
		structured = apperrors.AsStructuredError(err)
		status = structured.HTTPStatus()
	}

	if c.Request().Method == http.MethodHead {
		_ = c.NoContent(status)
		return
	}
	_ = c.JSON(status, structured.ToResponse())
}
