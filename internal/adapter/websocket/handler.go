package websocket

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/labstack/echo/v4"

	"github.com/Saileeich/Saileeich-TTS/internal/adapter/metrics"
	"github.com/Saileeich/Saileeich-TTS/internal/broadcast"
	"github.com/Saileeich/Saileeich-TTS/internal/domain"
	"github.com/Saileeich/Saileeich-TTS/internal/platform/correlation"
)

const maxMessageSize = 4096

// Inbound message types.
const (
	TypeDeclareRole    = "declare_role"
	TypeApprove        = "approve"
	TypeDeny           = "deny"
	TypeUpdateSettings = "update_settings"
	TypeSpeechEvent    = "speech_event"
)

// Speech event actions reported by the streamer dashboard.
const (
	SpeechQueued  = "queued"
	SpeechRetired = "retired"
	SpeechCleared = "cleared"
)

// Engine is the slice of the moderation engine the observer protocol drives.
type Engine interface {
	Approve(ctx context.Context, id string) (domain.Comment, bool, error)
	Deny(ctx context.Context, id string) (domain.Comment, error)
	RetireFromSpeech(ctx context.Context, id string) bool
	ClearSpeechQueue(ctx context.Context) int
	UpdateSettings(ctx context.Context, u domain.SettingsUpdate) (domain.Settings, error)
	AttachObserver(ctx context.Context, observerID uuid.UUID, role domain.Role)
}

// Registry owns observer connections once they are upgraded.
type Registry interface {
	Register(observerID uuid.UUID, conn *websocket.Conn) error
	Unregister(observerID uuid.UUID)
	Send(observerID uuid.UUID, data []byte)
}

type inboundMessage struct {
	Type     string                 `json:"type"`
	Role     string                 `json:"role"`
	ID       string                 `json:"id"`
	Action   string                 `json:"action"`
	Settings *domain.SettingsUpdate `json:"settings"`
}

// Handler upgrades observer connections on GET /ws and runs their read loop.
type Handler struct {
	engine   Engine
	registry Registry
	limits   *ConnectionLimits
	upgrader websocket.Upgrader
	metrics  *metrics.WebSocketMetrics
}

// NewHandler creates the observer endpoint. limits and wsMetrics may be nil.
func NewHandler(engine Engine, registry Registry, limits *ConnectionLimits, checkOrigin func(*http.Request) bool, wsMetrics *metrics.WebSocketMetrics) *Handler {
	return &Handler{
		engine:   engine,
		registry: registry,
		limits:   limits,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     checkOrigin,
		},
		metrics: wsMetrics,
	}
}

// Handle is the echo handler for the observer endpoint.
func (h *Handler) Handle(c echo.Context) error {
	ip := c.RealIP()
	if h.limits != nil {
		ok, reason := h.limits.Acquire(ip)
		if !ok {
			if h.metrics != nil {
				h.metrics.RejectedConnections.WithLabelValues(string(reason)).Inc()
			}
			slog.Warn("Observer connection rejected", "remote_ip", ip, "reason", reason)
			return c.JSON(http.StatusServiceUnavailable, map[string]string{"error": "too many connections"})
		}
		defer h.limits.Release(ip)
	}

	conn, err := h.upgrader.Upgrade(c.Response(), c.Request(), nil)
	if err != nil {
		// The upgrader has already written the HTTP error response.
		slog.Debug("Observer upgrade failed", "remote_ip", ip, "error", err)
		return nil
	}

	observerID := uuid.New()
	ctx := correlation.WithID(context.Background(), correlation.NewID())

	if err := h.registry.Register(observerID, conn); err != nil {
		slog.ErrorContext(ctx, "Failed to register observer", "observer_id", observerID, "error", err)
		_ = conn.Close()
		return nil
	}
	defer h.registry.Unregister(observerID)

	if h.metrics != nil {
		h.metrics.ActiveConnections.Inc()
		defer h.metrics.ActiveConnections.Dec()
	}

	slog.InfoContext(ctx, "Observer connected", "observer_id", observerID, "remote_ip", ip)
	h.readLoop(ctx, observerID, conn)
	slog.InfoContext(ctx, "Observer disconnected", "observer_id", observerID)
	return nil
}

// readLoop blocks until the connection closes. The registry's writer owns all writes.
func (h *Handler) readLoop(ctx context.Context, observerID uuid.UUID, conn *websocket.Conn) {
	conn.SetReadLimit(maxMessageSize)
	s := &observerSession{id: observerID}

	for {
		msgType, data, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				slog.DebugContext(ctx, "Observer read failed", "observer_id", observerID, "error", err)
			}
			return
		}
		if msgType != websocket.TextMessage {
			continue
		}

		if err := h.dispatch(ctx, s, data); err != nil {
			slog.DebugContext(ctx, "Observer message rejected", "observer_id", observerID, "error", err)
			h.registry.Send(observerID, broadcast.ErrorMessage(err.Error()))
		}
	}
}

type observerSession struct {
	id   uuid.UUID
	role domain.Role
}

func (h *Handler) dispatch(ctx context.Context, s *observerSession, data []byte) error {
	var msg inboundMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		h.countReceived("invalid")
		return errors.New("malformed message")
	}
	h.countReceived(msg.Type)

	switch msg.Type {
	case TypeDeclareRole:
		return h.declareRole(ctx, s, msg.Role)

	case TypeApprove:
		if msg.ID == "" {
			return errors.New("approve requires an id")
		}
		_, _, err := h.engine.Approve(ctx, msg.ID)
		return err

	case TypeDeny:
		if msg.ID == "" {
			return errors.New("deny requires an id")
		}
		_, err := h.engine.Deny(ctx, msg.ID)
		return err

	case TypeUpdateSettings:
		if msg.Settings == nil || msg.Settings.IsEmpty() {
			return fmt.Errorf("%w: no settings provided", domain.ErrInvalidSetting)
		}
		_, err := h.engine.UpdateSettings(ctx, *msg.Settings)
		return err

	case TypeSpeechEvent:
		return h.speechEvent(ctx, msg)

	default:
		return fmt.Errorf("unknown message type %q", msg.Type)
	}
}

func (h *Handler) declareRole(ctx context.Context, s *observerSession, raw string) error {
	if s.role != "" {
		return fmt.Errorf("%w as %s", domain.ErrRoleAlreadyDeclared, s.role)
	}
	role, err := domain.ParseRole(raw)
	if err != nil {
		return err
	}

	s.role = role
	h.engine.AttachObserver(ctx, s.id, role)
	return nil
}

func (h *Handler) speechEvent(ctx context.Context, msg inboundMessage) error {
	switch msg.Action {
	case SpeechQueued:
		// Acknowledgement from the dashboard only; the comment stays counted until retired.
		return nil
	case SpeechRetired:
		if msg.ID == "" {
			return errors.New("retired speech event requires an id")
		}
		h.engine.RetireFromSpeech(ctx, msg.ID)
		return nil
	case SpeechCleared:
		h.engine.ClearSpeechQueue(ctx)
		return nil
	default:
		return fmt.Errorf("unknown speech action %q", msg.Action)
	}
}

func (h *Handler) countReceived(msgType string) {
	if h.metrics == nil {
		return
	}
	switch msgType {
	case TypeDeclareRole, TypeApprove, TypeDeny, TypeUpdateSettings, TypeSpeechEvent, "invalid":
	default:
		msgType = "unknown"
	}
	h.metrics.MessagesReceived.WithLabelValues(msgType).Inc()
}
