package broadcast

import (
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/jonboulle/clockwork"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Saileeich/Saileeich-TTS/internal/adapter/metrics"
)

func TestClientWriter_WritesInOrder(t *testing.T) {
	reg := prometheus.NewRegistry()
	wsMetrics := metrics.NewWebSocketMetrics(reg)

	server, client := newTestConnPair(t)
	cw := newClientWriter(server, clockwork.NewRealClock(), wsMetrics)
	t.Cleanup(cw.stop)

	cw.sendChannel <- []byte(`{"n":1}`)
	cw.sendChannel <- []byte(`{"n":2}`)

	for _, want := range []string{`{"n":1}`, `{"n":2}`} {
		require.NoError(t, client.SetReadDeadline(time.Now().Add(2*time.Second)))
		_, msg, err := client.ReadMessage()
		require.NoError(t, err)
		assert.Equal(t, want, string(msg))
	}

	assert.Eventually(t, func() bool {
		return testutil.ToFloat64(wsMetrics.MessagesPublished) == 2
	}, time.Second, 10*time.Millisecond)
}

func TestClientWriter_GracefulStopFlushesThenCloses(t *testing.T) {
	server, client := newTestConnPair(t)
	cw := newClientWriter(server, clockwork.NewRealClock(), nil)

	// Stop the run loop first so the buffered frame is left for flush.
	close(cw.doneChannel)
	cw.wg.Wait()
	cw.sendChannel <- []byte(`{"type":"speak"}`)

	// Reopen the done channel guard so stopGraceful runs its full path.
	cw.doneChannel = make(chan struct{})
	cw.stopGraceful("Server shutting down")

	require.NoError(t, client.SetReadDeadline(time.Now().Add(2*time.Second)))
	_, msg, err := client.ReadMessage()
	require.NoError(t, err)
	assert.Equal(t, `{"type":"speak"}`, string(msg))

	_, _, err = client.ReadMessage()
	var closeErr *websocket.CloseError
	if assert.ErrorAs(t, err, &closeErr) {
		assert.Equal(t, websocket.CloseNormalClosure, closeErr.Code)
		assert.Equal(t, "Server shutting down", closeErr.Text)
	}
}

func TestClientWriter_StopIdempotent(t *testing.T) {
	server, _ := newTestConnPair(t)
	cw := newClientWriter(server, clockwork.NewRealClock(), nil)

	cw.stop()
	cw.stop()
	cw.stopGraceful("again")
}

func TestClientWriter_ConcurrentStop(t *testing.T) {
	server, _ := newTestConnPair(t)
	cw := newClientWriter(server, clockwork.NewRealClock(), nil)

	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		i := i
		wg.Add(1)
		go func() {
			defer wg.Done()
			if i%2 == 0 {
				cw.stop()
			} else {
				cw.stopGraceful("bye")
			}
		}()
	}

	done := make(chan struct{})
	go func() {
		wg.Wait()
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("concurrent stop calls deadlocked")
	}
}

func TestClientWriter_WriteErrorEndsRunLoop(t *testing.T) {
	server, client := newTestConnPair(t)
	cw := newClientWriter(server, clockwork.NewRealClock(), nil)
	t.Cleanup(cw.stop)

	require.NoError(t, server.Close())
	require.NoError(t, client.Close())
	cw.sendChannel <- []byte("x")

	exited := make(chan struct{})
	go func() {
		cw.wg.Wait()
		close(exited)
	}()

	select {
	case <-exited:
	case <-time.After(2 * time.Second):
		t.Fatal("writer kept running after write error")
	}
}
