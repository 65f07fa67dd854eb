package httpserver

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/jonboulle/clockwork"

	"github.com/Saileeich/Saileeich-TTS/internal/domain"
	"github.com/Saileeich/Saileeich-TTS/internal/platform/config"
)

// --- Mock implementations ---

type mockEngine struct {
	approveFn        func(ctx context.Context, id string) (domain.Comment, bool, error)
	denyFn           func(ctx context.Context, id string) (domain.Comment, error)
	retireFn         func(ctx context.Context, id string) bool
	clearFn          func(ctx context.Context) int
	updateSettingsFn func(ctx context.Context, u domain.SettingsUpdate) (domain.Settings, error)
	snapshot         domain.QueueSnapshot
	speech           []domain.Comment
}

func (m *mockEngine) Approve(ctx context.Context, id string) (domain.Comment, bool, error) {
	if m.approveFn != nil {
		return m.approveFn(ctx, id)
	}
	return domain.Comment{}, false, domain.ErrCommentNotFound
}

func (m *mockEngine) Deny(ctx context.Context, id string) (domain.Comment, error) {
	if m.denyFn != nil {
		return m.denyFn(ctx, id)
	}
	return domain.Comment{}, domain.ErrCommentNotFound
}

func (m *mockEngine) RetireFromSpeech(ctx context.Context, id string) bool {
	if m.retireFn != nil {
		return m.retireFn(ctx, id)
	}
	return false
}

func (m *mockEngine) ClearSpeechQueue(ctx context.Context) int {
	if m.clearFn != nil {
		return m.clearFn(ctx)
	}
	return 0
}

func (m *mockEngine) UpdateSettings(ctx context.Context, u domain.SettingsUpdate) (domain.Settings, error) {
	if m.updateSettingsFn != nil {
		return m.updateSettingsFn(ctx, u)
	}
	return domain.DefaultSettings(), nil
}

func (m *mockEngine) Snapshot() domain.QueueSnapshot { return m.snapshot }

func (m *mockEngine) SpeechQueue() []domain.Comment { return m.speech }

type mockSessions struct {
	bindFn   func(ctx context.Context, identity, token string) error
	unbindFn func(ctx context.Context) error
	status   domain.SessionStatus
}

func (m *mockSessions) Bind(ctx context.Context, identity, token string) error {
	if m.bindFn != nil {
		return m.bindFn(ctx, identity, token)
	}
	m.status = domain.SessionStatus{Connected: true, Identity: identity}
	return nil
}

func (m *mockSessions) Unbind(ctx context.Context) error {
	if m.unbindFn != nil {
		return m.unbindFn(ctx)
	}
	if !m.status.Connected {
		return domain.ErrSessionNotBound
	}
	m.status = domain.SessionStatus{}
	return nil
}

func (m *mockSessions) Status() domain.SessionStatus { return m.status }

type mockObservers struct {
	counts domain.ObserverCounts
}

func (m *mockObservers) Counts() domain.ObserverCounts { return m.counts }

// --- Test helpers ---

func testConfig() *config.Config {
	return &config.Config{
		AppEnv:       "development",
		Port:         "0",
		APIRateLimit: 1000,
		APIRateBurst: 1000,
	}
}

func newTestServer(t *testing.T, deps Deps, opts ...func(*config.Config)) *Server {
	t.Helper()

	cfg := testConfig()
	for _, opt := range opts {
		opt(cfg)
	}

	if deps.Engine == nil {
		deps.Engine = &mockEngine{}
	}
	if deps.Sessions == nil {
		deps.Sessions = &mockSessions{}
	}
	if deps.Observers == nil {
		deps.Observers = &mockObservers{}
	}
	if deps.Clock == nil {
		deps.Clock = clockwork.NewFakeClock()
	}

	return NewServer(cfg, deps)
}

// do runs a request through the full middleware chain.
func do(t *testing.T, srv *Server, method, target, body string) *httptest.ResponseRecorder {
	t.Helper()

	var reader io.Reader
	if body != "" {
		reader = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, target, reader)
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	req.RemoteAddr = testRemoteAddr
	rec := httptest.NewRecorder()
	srv.ServeHTTP(rec, req)
	return rec
}

var _ http.Handler = (*Server)(nil)
