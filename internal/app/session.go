package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"regexp"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"
	"golang.org/x/sync/singleflight"

	"github.com/Saileeich/Saileeich-TTS/internal/adapter/metrics"
	"github.com/Saileeich/Saileeich-TTS/internal/domain"
	"github.com/Saileeich/Saileeich-TTS/internal/platform/correlation"
)

const (
	DefaultConnectTimeout = 15 * time.Second
	gifterCacheSize       = 10000
)

var identityPattern = regexp.MustCompile(`^[a-z0-9_]{1,25}$`)

// Admitter runs a chat event through admission.
type Admitter interface {
	Admit(ctx context.Context, ev domain.ChatEvent) (domain.Comment, error)
}

// StatusPublisher is told whenever the bound identity changes.
type StatusPublisher interface {
	SessionChanged(status domain.SessionStatus)
}

// SessionManager binds at most one upstream live identity and routes its events into
// admission. Events from a connection that is no longer bound are dropped.
type SessionManager struct {
	connector      domain.FeedConnector
	admitter       Admitter
	publisher      StatusPublisher
	metrics        *metrics.SessionMetrics
	connectTimeout time.Duration

	bindGroup  singleflight.Group
	generation atomic.Uint64

	mu        sync.Mutex
	identity  string
	conn      domain.FeedConnection
	activeGen uint64
	gifters   *lru.Cache[string, struct{}]
}

// NewSessionManager creates an unbound session manager. m may be nil.
func NewSessionManager(connector domain.FeedConnector, admitter Admitter, publisher StatusPublisher, connectTimeout time.Duration, m *metrics.SessionMetrics) (*SessionManager, error) {
	gifters, err := lru.New[string, struct{}](gifterCacheSize)
	if err != nil {
		return nil, fmt.Errorf("create gifter cache: %w", err)
	}
	if connectTimeout <= 0 {
		connectTimeout = DefaultConnectTimeout
	}
	return &SessionManager{
		connector:      connector,
		admitter:       admitter,
		publisher:      publisher,
		metrics:        m,
		connectTimeout: connectTimeout,
		gifters:        gifters,
	}, nil
}

// NormalizeIdentity lowercases a channel login and strips a leading @ or #.
func NormalizeIdentity(raw string) (string, error) {
	identity := strings.ToLower(strings.TrimSpace(raw))
	identity = strings.TrimLeft(identity, "@#")
	if !identityPattern.MatchString(identity) {
		return "", fmt.Errorf("%w: %q", domain.ErrInvalidIdentity, raw)
	}
	return identity, nil
}

// Bind connects to the live feed of identity. Binding the identity that is already bound
// is a no-op; binding a different one fails with ErrSessionBound and changes nothing.
// Concurrent binds of the same identity share one connection attempt.
func (s *SessionManager) Bind(ctx context.Context, rawIdentity, token string) error {
	identity, err := NormalizeIdentity(rawIdentity)
	if err != nil {
		s.countBind("invalid")
		return err
	}

	s.mu.Lock()
	bound := s.identity
	s.mu.Unlock()

	switch {
	case bound == identity:
		s.countBind("already_bound")
		return nil
	case bound != "":
		s.countBind("conflict")
		return fmt.Errorf("bind %q: %w (bound to %q)", identity, domain.ErrSessionBound, bound)
	}

	// Coalesced callers share one connect, so it must outlive the first caller's request.
	_, err, _ = s.bindGroup.Do(identity, func() (any, error) {
		return nil, s.connect(context.WithoutCancel(ctx), identity, token)
	})
	return err
}

func (s *SessionManager) connect(ctx context.Context, identity, token string) error {
	gen := s.generation.Add(1)

	connectCtx, cancel := context.WithTimeout(ctx, s.connectTimeout)
	defer cancel()

	conn, err := s.connector.Connect(connectCtx, identity, token, s.handlerFor(gen))
	if err != nil {
		s.countBind("upstream_error")
		if !errors.Is(err, domain.ErrUpstreamUnavailable) {
			err = fmt.Errorf("%w: %w", domain.ErrUpstreamUnavailable, err)
		}
		slog.WarnContext(ctx, "Upstream connect failed", "identity", identity, "error", err)
		return fmt.Errorf("bind %q: %w", identity, err)
	}

	s.mu.Lock()
	if s.identity == identity {
		s.mu.Unlock()
		_ = conn.Close()
		s.countBind("already_bound")
		return nil
	}
	if s.identity != "" {
		// A different identity won the race while we were connecting.
		winner := s.identity
		s.mu.Unlock()
		_ = conn.Close()
		s.countBind("conflict")
		return fmt.Errorf("bind %q: %w (bound to %q)", identity, domain.ErrSessionBound, winner)
	}

	s.identity = identity
	s.conn = conn
	s.activeGen = gen
	s.gifters.Purge()
	s.publisher.SessionChanged(domain.SessionStatus{Connected: true, Identity: identity})
	s.mu.Unlock()

	s.countBind("bound")
	if s.metrics != nil {
		s.metrics.Connected.Set(1)
	}
	slog.InfoContext(ctx, "Session bound", "identity", identity)
	return nil
}

// Unbind disconnects the bound identity.
func (s *SessionManager) Unbind(ctx context.Context) error {
	s.mu.Lock()
	if s.identity == "" {
		s.mu.Unlock()
		return domain.ErrSessionNotBound
	}
	identity, conn := s.teardownLocked()
	s.mu.Unlock()

	// Closing outside the lock: the connection may be delivering an event that needs it.
	if err := conn.Close(); err != nil {
		slog.WarnContext(ctx, "Upstream close failed", "identity", identity, "error", err)
	}
	slog.InfoContext(ctx, "Session unbound", "identity", identity)
	return nil
}

// Status returns the current binding.
func (s *SessionManager) Status() domain.SessionStatus {
	s.mu.Lock()
	defer s.mu.Unlock()
	return domain.SessionStatus{Connected: s.identity != "", Identity: s.identity}
}

// Close unbinds if bound. Used at shutdown.
func (s *SessionManager) Close(ctx context.Context) error {
	if err := s.Unbind(ctx); err != nil && !errors.Is(err, domain.ErrSessionNotBound) {
		return err
	}
	return nil
}

// teardownLocked clears the binding and publishes the disconnected status. Caller holds mu
// and must close the returned connection after releasing it.
func (s *SessionManager) teardownLocked() (string, domain.FeedConnection) {
	identity, conn := s.identity, s.conn
	s.identity = ""
	s.conn = nil
	s.activeGen = 0
	s.gifters.Purge()
	s.publisher.SessionChanged(domain.SessionStatus{})

	if s.metrics != nil {
		s.metrics.Connected.Set(0)
	}
	return identity, conn
}

func (s *SessionManager) handlerFor(gen uint64) domain.FeedHandler {
	return domain.FeedHandler{
		OnChat:  func(ev domain.ChatEvent) { s.onChat(gen, ev) },
		OnGift:  func(ev domain.GiftEvent) { s.onGift(gen, ev) },
		OnError: func(err error) { s.onError(gen, err) },
	}
}

func (s *SessionManager) onChat(gen uint64, ev domain.ChatEvent) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if gen != s.activeGen {
		return
	}
	if s.metrics != nil {
		s.metrics.ChatEvents.Inc()
	}

	if ev.HasSentGift {
		s.gifters.Add(ev.AuthorID, struct{}{})
	} else if s.gifters.Contains(ev.AuthorID) {
		ev.HasSentGift = true
	}

	// Admitting under mu guarantees nothing from this connection lands after Unbind returns.
	ctx := correlation.WithID(context.Background(), correlation.NewID())
	c, err := s.admitter.Admit(ctx, ev)
	if err != nil {
		slog.DebugContext(ctx, "Chat message not admitted", "author_id", ev.AuthorID, "reason", domain.RejectReason(err))
		return
	}
	slog.DebugContext(ctx, "Chat message admitted", "comment_id", c.ID, "author_id", ev.AuthorID)
}

func (s *SessionManager) onGift(gen uint64, ev domain.GiftEvent) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if gen != s.activeGen || ev.AuthorID == "" {
		return
	}
	s.gifters.Add(ev.AuthorID, struct{}{})
	if s.metrics != nil {
		s.metrics.GiftEvents.Inc()
	}
}

// onError tears the session down. There is no automatic reconnect; an operator binds again.
func (s *SessionManager) onError(gen uint64, err error) {
	s.mu.Lock()
	if gen != s.activeGen {
		s.mu.Unlock()
		return
	}
	identity, conn := s.teardownLocked()
	s.mu.Unlock()

	if s.metrics != nil {
		s.metrics.UpstreamDrops.Inc()
	}
	slog.Error("Upstream feed failed, session unbound", "identity", identity, "error", err)

	// The error is delivered from the connection's own goroutine, which Close may wait on.
	go func() { _ = conn.Close() }()
}

func (s *SessionManager) countBind(result string) {
	if s.metrics != nil {
		s.metrics.BindAttempts.WithLabelValues(result).Inc()
	}
}
