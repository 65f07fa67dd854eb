package broadcast

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"runtime"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	ws "github.com/gorilla/websocket"
	"github.com/jonboulle/clockwork"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Saileeich/Saileeich-TTS/internal/adapter/metrics"
	"github.com/Saileeich/Saileeich-TTS/internal/domain"
)

func newTestConnPair(t *testing.T) (server *ws.Conn, client *ws.Conn) {
	t.Helper()
	upgrader := ws.Upgrader{CheckOrigin: func(r *http.Request) bool { return true }}
	ready := make(chan *ws.Conn, 1)

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			t.Errorf("upgrade failed: %v", err)
			return
		}
		ready <- conn
	}))
	t.Cleanup(func() { srv.Close() })

	url := "ws" + strings.TrimPrefix(srv.URL, "http")
	clientConn, _, err := ws.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	t.Cleanup(func() { clientConn.Close() })

	serverConn := <-ready
	t.Cleanup(func() { serverConn.Close() })

	return serverConn, clientConn
}

func newTestBroadcaster(t *testing.T) *Broadcaster {
	t.Helper()
	b := NewBroadcaster(clockwork.NewRealClock(), nil)
	t.Cleanup(b.Stop)
	return b
}

// register connects a new observer and returns its id and client side.
func register(t *testing.T, b *Broadcaster) (uuid.UUID, *ws.Conn) {
	t.Helper()
	server, client := newTestConnPair(t)
	id := uuid.New()
	require.NoError(t, b.Register(id, server))
	return id, client
}

type frame struct {
	Type     string           `json:"type"`
	Op       string           `json:"op"`
	Count    int              `json:"count"`
	Queue    []domain.Comment `json:"queue"`
	Comment  domain.Comment   `json:"comment"`
	Settings domain.Settings  `json:"settings"`
	Error    string           `json:"error"`

	Connected bool   `json:"connected"`
	Identity  string `json:"identity"`
}

func readFrame(t *testing.T, conn *ws.Conn) frame {
	t.Helper()
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	_, msg, err := conn.ReadMessage()
	require.NoError(t, err)
	var f frame
	require.NoError(t, json.Unmarshal(msg, &f))
	return f
}

func expectSilence(t *testing.T, conn *ws.Conn) {
	t.Helper()
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(100*time.Millisecond)))
	_, msg, err := conn.ReadMessage()
	assert.Error(t, err, "unexpected frame: %s", msg)
}

func waitForCounts(b *Broadcaster, want domain.ObserverCounts) bool {
	for iter := 0; iter < 200; iter++ {
		if b.Counts() == want {
			return true
		}
		time.Sleep(5 * time.Millisecond)
	}
	return false
}

func TestBroadcaster_RegisterIsUnclassified(t *testing.T) {
	b := newTestBroadcaster(t)
	_, client := register(t, b)

	assert.Equal(t, domain.ObserverCounts{Unclassified: 1}, b.Counts())

	b.CommentPending(domain.Comment{ID: "c1"}, 1)
	b.SettingsChanged(domain.DefaultSettings())
	expectSilence(t, client)
}

func TestBroadcaster_DuplicateRegister(t *testing.T) {
	b := newTestBroadcaster(t)
	id, _ := register(t, b)

	server, _ := newTestConnPair(t)
	assert.Error(t, b.Register(id, server))
}

func TestBroadcaster_ModeratorJoinSendsSnapshot(t *testing.T) {
	b := newTestBroadcaster(t)
	id, client := register(t, b)

	queue := []domain.Comment{{ID: "a", Text: "hello"}, {ID: "b", Text: "world"}}
	b.ModeratorJoined(id, queue)

	f := readFrame(t, client)
	assert.Equal(t, TypeModerationSnapshot, f.Type)
	require.Len(t, f.Queue, 2)
	assert.Equal(t, "a", f.Queue[0].ID)
	assert.Equal(t, "b", f.Queue[1].ID)
	assert.True(t, waitForCounts(b, domain.ObserverCounts{Moderators: 1}))
}

func TestBroadcaster_EmptySnapshotIsArray(t *testing.T) {
	b := newTestBroadcaster(t)
	id, client := register(t, b)

	b.ModeratorJoined(id, nil)

	require.NoError(t, client.SetReadDeadline(time.Now().Add(2*time.Second)))
	_, msg, err := client.ReadMessage()
	require.NoError(t, err)
	assert.JSONEq(t, `{"type":"moderation_snapshot","queue":[]}`, string(msg))
}

func TestBroadcaster_StreamerJoinSendsState(t *testing.T) {
	b := newTestBroadcaster(t)

	modID, _ := register(t, b)
	b.ModeratorJoined(modID, nil)
	b.SessionChanged(domain.SessionStatus{Connected: true, Identity: "somechannel"})

	streamerID, streamer := register(t, b)
	b.StreamerJoined(streamerID, domain.DefaultSettings(), 3)

	f := readFrame(t, streamer)
	assert.Equal(t, TypeSettingsSnapshot, f.Type)
	assert.Equal(t, domain.DefaultSettings(), f.Settings)

	f = readFrame(t, streamer)
	assert.Equal(t, TypeModerationCount, f.Type)
	assert.Equal(t, 3, f.Count)

	f = readFrame(t, streamer)
	assert.Equal(t, TypeModeratorCount, f.Type)
	assert.Equal(t, 1, f.Count)

	f = readFrame(t, streamer)
	assert.Equal(t, TypeSessionStatus, f.Type)
	assert.True(t, f.Connected)
	assert.Equal(t, "somechannel", f.Identity)
}

func TestBroadcaster_ModeratorCountFollowsJoinsAndLeaves(t *testing.T) {
	b := newTestBroadcaster(t)

	streamerID, streamer := register(t, b)
	b.StreamerJoined(streamerID, domain.DefaultSettings(), 0)
	for iter := 0; iter < 4; iter++ {
		readFrame(t, streamer)
	}

	modID, _ := register(t, b)
	b.ModeratorJoined(modID, nil)

	f := readFrame(t, streamer)
	assert.Equal(t, TypeModeratorCount, f.Type)
	assert.Equal(t, 1, f.Count)

	b.Unregister(modID)

	f = readFrame(t, streamer)
	assert.Equal(t, TypeModeratorCount, f.Type)
	assert.Equal(t, 0, f.Count)
	assert.True(t, waitForCounts(b, domain.ObserverCounts{Streamers: 1}))
}

func TestBroadcaster_FanOutByRole(t *testing.T) {
	b := newTestBroadcaster(t)

	modID, moderator := register(t, b)
	b.ModeratorJoined(modID, nil)
	readFrame(t, moderator)

	streamerID, streamer := register(t, b)
	b.StreamerJoined(streamerID, domain.DefaultSettings(), 0)
	for iter := 0; iter < 4; iter++ {
		readFrame(t, streamer)
	}

	c := domain.Comment{ID: "c1", Text: "hi", State: domain.CommentPending}
	b.CommentPending(c, 1)

	f := readFrame(t, moderator)
	assert.Equal(t, TypeModerationDelta, f.Type)
	assert.Equal(t, OpAdd, f.Op)
	assert.Equal(t, "c1", f.Comment.ID)

	f = readFrame(t, streamer)
	assert.Equal(t, TypeModerationCount, f.Type)
	assert.Equal(t, 1, f.Count)

	c.State = domain.CommentQueued
	b.CommentResolved(c, 0)
	b.CommentQueued(c)

	f = readFrame(t, moderator)
	assert.Equal(t, TypeModerationDelta, f.Type)
	assert.Equal(t, OpRemove, f.Op)

	f = readFrame(t, streamer)
	assert.Equal(t, TypeModerationCount, f.Type)
	assert.Equal(t, 0, f.Count)

	f = readFrame(t, streamer)
	assert.Equal(t, TypeSpeak, f.Type)
	assert.Equal(t, "c1", f.Comment.ID)

	b.SettingsChanged(domain.DefaultSettings())
	f = readFrame(t, streamer)
	assert.Equal(t, TypeSettingsChanged, f.Type)
	expectSilence(t, moderator)
}

func TestBroadcaster_ModerationReset(t *testing.T) {
	b := newTestBroadcaster(t)

	modID, moderator := register(t, b)
	b.ModeratorJoined(modID, []domain.Comment{{ID: "x"}})
	readFrame(t, moderator)

	b.ModerationReset(nil)

	f := readFrame(t, moderator)
	assert.Equal(t, TypeModerationSnapshot, f.Type)
	assert.Empty(t, f.Queue)
}

func TestBroadcaster_SecondJoinIgnored(t *testing.T) {
	b := newTestBroadcaster(t)
	id, client := register(t, b)

	b.ModeratorJoined(id, nil)
	readFrame(t, client)

	b.StreamerJoined(id, domain.DefaultSettings(), 0)
	expectSilence(t, client)
	assert.Equal(t, domain.ObserverCounts{Moderators: 1}, b.Counts())
}

func TestBroadcaster_SendDirect(t *testing.T) {
	b := newTestBroadcaster(t)
	id, client := register(t, b)

	b.Send(id, ErrorMessage("role already declared"))

	f := readFrame(t, client)
	assert.Equal(t, TypeError, f.Type)
	assert.Equal(t, "role already declared", f.Error)
}

func TestBroadcaster_SessionStatus(t *testing.T) {
	b := newTestBroadcaster(t)
	assert.Equal(t, domain.SessionStatus{}, b.Session())

	b.SessionChanged(domain.SessionStatus{Connected: true, Identity: "chan"})
	assert.Equal(t, domain.SessionStatus{Connected: true, Identity: "chan"}, b.Session())
}

func TestBroadcaster_SlowObserverEvicted(t *testing.T) {
	reg := prometheus.NewRegistry()
	wsMetrics := metrics.NewWebSocketMetrics(reg)
	b := NewBroadcaster(clockwork.NewRealClock(), wsMetrics)
	t.Cleanup(b.Stop)

	id, _ := register(t, b)
	b.StreamerJoined(id, domain.DefaultSettings(), 0)

	// The client never reads, so the writer blocks once the socket buffers fill up.
	payload := domain.Comment{ID: "c", Text: strings.Repeat("x", 64*1024)}
	for iter := 0; iter < 2000; iter++ {
		b.CommentQueued(payload)
		if b.Counts().Streamers == 0 {
			break
		}
	}

	assert.True(t, waitForCounts(b, domain.ObserverCounts{}))
	assert.GreaterOrEqual(t, testutil.ToFloat64(wsMetrics.SlowClientsEvicted), 1.0)
}

func TestBroadcaster_StopSendsCloseFrame(t *testing.T) {
	b := NewBroadcaster(clockwork.NewRealClock(), nil)

	id, client := register(t, b)
	b.ModeratorJoined(id, nil)
	readFrame(t, client)

	b.Stop()

	require.NoError(t, client.SetReadDeadline(time.Now().Add(2*time.Second)))
	_, _, err := client.ReadMessage()
	var closeErr *ws.CloseError
	if assert.ErrorAs(t, err, &closeErr) {
		assert.Equal(t, ws.CloseNormalClosure, closeErr.Code)
		assert.Contains(t, closeErr.Text, "shutting down")
	}
}

func TestBroadcaster_CallsAfterStopDoNotBlock(t *testing.T) {
	b := NewBroadcaster(clockwork.NewRealClock(), nil)
	b.Stop()

	done := make(chan struct{})
	go func() {
		defer close(done)
		for iter := 0; iter < commandBufferSize+10; iter++ {
			b.CommentQueued(domain.Comment{ID: "late"})
		}
		b.Stop()
		assert.Equal(t, domain.ObserverCounts{}, b.Counts())
	}()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("calls after Stop blocked")
	}
}

func TestBroadcaster_Ping(t *testing.T) {
	b := NewBroadcaster(clockwork.NewRealClock(), nil)

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	require.NoError(t, b.Ping(ctx))

	b.Stop()
	assert.ErrorIs(t, b.Ping(ctx), ErrStopped)
}

func TestBroadcaster_StopCleansUpGoroutines(t *testing.T) {
	runtime.GC()
	time.Sleep(50 * time.Millisecond)
	baseline := runtime.NumGoroutine()

	b := NewBroadcaster(clockwork.NewRealClock(), nil)
	clients := make([]*ws.Conn, 0, 5)
	for iter := 0; iter < 5; iter++ {
		id, client := register(t, b)
		b.ModeratorJoined(id, nil)
		clients = append(clients, client)
	}
	require.True(t, waitForCounts(b, domain.ObserverCounts{Moderators: 5}))

	b.Stop()
	for _, client := range clients {
		client.Close()
	}

	time.Sleep(300 * time.Millisecond)
	runtime.GC()
	time.Sleep(50 * time.Millisecond)

	leak := runtime.NumGoroutine() - baseline
	assert.Less(t, leak, 10, "excessive goroutine leak detected")
}
