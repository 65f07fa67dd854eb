package httpserver

import (
	"fmt"
	"log/slog"
	"net/http"
	"strings"

	"github.com/labstack/echo/v4"

	"github.com/Saileeich/Saileeich-TTS/internal/domain"
	apperrors "github.com/Saileeich/Saileeich-TTS/internal/platform/errors"
)

type stateResponse struct {
	PendingModeration []domain.Comment      `json:"pendingModeration"`
	PendingSpeech     []domain.Comment      `json:"pendingSpeech"`
	Settings          domain.Settings       `json:"settings"`
	Observers         domain.ObserverCounts `json:"observers"`
	Session           domain.SessionStatus  `json:"session"`
}

type approveResponse struct {
	Comment domain.Comment `json:"comment"`
	Queued  bool           `json:"queued"`
}

type commentResponse struct {
	Comment domain.Comment `json:"comment"`
}

type commentIDRequest struct {
	ID string `json:"id"`
}

type speechResponse struct {
	Queue []domain.Comment `json:"queue"`
}

func (s *Server) handleState(c echo.Context) error {
	snap := s.engine.Snapshot()
	response := stateResponse{
		PendingModeration: nonNil(snap.PendingModeration),
		PendingSpeech:     nonNil(snap.PendingSpeech),
		Settings:          snap.Settings,
		Observers:         s.observers.Counts(),
		Session:           s.sessions.Status(),
	}
	if err := c.JSON(http.StatusOK, response); err != nil {
		return fmt.Errorf("failed to send JSON response: %w", err)
	}
	return nil
}

func (s *Server) handleSpeechQueue(c echo.Context) error {
	if err := c.JSON(http.StatusOK, speechResponse{Queue: nonNil(s.engine.SpeechQueue())}); err != nil {
		return fmt.Errorf("failed to send JSON response: %w", err)
	}
	return nil
}

func (s *Server) handleApprove(c echo.Context) error {
	return s.approve(c, c.Param("id"))
}

func (s *Server) handleDeny(c echo.Context) error {
	return s.deny(c, c.Param("id"))
}

func (s *Server) handleApproveByBody(c echo.Context) error {
	id, err := bindCommentID(c)
	if err != nil {
		return err
	}
	return s.approve(c, id)
}

func (s *Server) handleDenyByBody(c echo.Context) error {
	id, err := bindCommentID(c)
	if err != nil {
		return err
	}
	return s.deny(c, id)
}

func (s *Server) approve(c echo.Context, id string) error {
	comment, queued, err := s.engine.Approve(c.Request().Context(), id)
	if err != nil {
		return err
	}
	if err := c.JSON(http.StatusOK, approveResponse{Comment: comment, Queued: queued}); err != nil {
		return fmt.Errorf("failed to send JSON response: %w", err)
	}
	return nil
}

func (s *Server) deny(c echo.Context, id string) error {
	comment, err := s.engine.Deny(c.Request().Context(), id)
	if err != nil {
		return err
	}
	if err := c.JSON(http.StatusOK, commentResponse{Comment: comment}); err != nil {
		return fmt.Errorf("failed to send JSON response: %w", err)
	}
	return nil
}

func bindCommentID(c echo.Context) (string, error) {
	var req commentIDRequest
	if err := c.Bind(&req); err != nil {
		return "", apperrors.ValidationError("invalid request body")
	}
	id := strings.TrimSpace(req.ID)
	if id == "" {
		return "", apperrors.ValidationError("id is required")
	}
	return id, nil
}

func (s *Server) handleUpdateSettings(c echo.Context) error {
	var update domain.SettingsUpdate
	if err := c.Bind(&update); err != nil {
		return apperrors.ValidationError("invalid request body")
	}
	if update.IsEmpty() {
		return apperrors.ValidationError("settings update carries no fields")
	}

	settings, err := s.engine.UpdateSettings(c.Request().Context(), update)
	if err != nil {
		return err
	}
	if err := c.JSON(http.StatusOK, settings); err != nil {
		return fmt.Errorf("failed to send JSON response: %w", err)
	}
	return nil
}

func (s *Server) handleRetireSpeech(c echo.Context) error {
	id := c.Param("id")
	if !s.engine.RetireFromSpeech(c.Request().Context(), id) {
		return apperrors.NotFoundError("comment not in speech queue").WithContext("comment_id", id)
	}
	return c.NoContent(http.StatusNoContent)
}

func (s *Server) handleClearSpeech(c echo.Context) error {
	removed := s.engine.ClearSpeechQueue(c.Request().Context())
	if err := c.JSON(http.StatusOK, map[string]int{"removed": removed}); err != nil {
		return fmt.Errorf("failed to send JSON response: %w", err)
	}
	return nil
}

type bindSessionRequest struct {
	Identity     string `json:"identity"`
	SessionToken string `json:"sessionToken"`
}

func (s *Server) handleSessionStatus(c echo.Context) error {
	if err := c.JSON(http.StatusOK, s.sessions.Status()); err != nil {
		return fmt.Errorf("failed to send JSON response: %w", err)
	}
	return nil
}

func (s *Server) handleBindSession(c echo.Context) error {
	var req bindSessionRequest
	if err := c.Bind(&req); err != nil {
		return apperrors.ValidationError("invalid request body")
	}

	ctx := c.Request().Context()
	if err := s.sessions.Bind(ctx, req.Identity, req.SessionToken); err != nil {
		return err
	}

	status := s.sessions.Status()
	slog.InfoContext(ctx, "Session bound via API", "identity", status.Identity)
	if err := c.JSON(http.StatusOK, status); err != nil {
		return fmt.Errorf("failed to send JSON response: %w", err)
	}
	return nil
}

func (s *Server) handleUnbindSession(c echo.Context) error {
	ctx := c.Request().Context()
	if err := s.sessions.Unbind(ctx); err != nil {
		return err
	}
	slog.InfoContext(ctx, "Session unbound via API")
	return c.NoContent(http.StatusNoContent)
}

func nonNil(comments []domain.Comment) []domain.Comment {
	if comments == nil {
		return []domain.Comment{}
	}
	return comments
}
