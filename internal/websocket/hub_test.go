package websocket

import (
	"context"
	"errors"
	"net"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Krimson/heart-rhythm-day/internal/batch"
	"github.com/Krimson/heart-rhythm-day/internal/models"
)

func startHub(t *testing.T) (*Hub, *httptest.Server) {
	t.Helper()
	hub := NewHub()
	ctx, cancel := context.WithCancel(context.Background())
	go hub.Run(ctx)

	srv := httptest.NewServer(http.HandlerFunc(hub.HandleWebSocket))
	t.Cleanup(func() {
		srv.Close()
		cancel()
	})
	return hub, srv
}

func dial(t *testing.T, srv *httptest.Server, sessionID string) *websocket.Conn {
	t.Helper()
	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws"
	if sessionID != "" {
		url += "?session_id=" + sessionID
	}
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })
	return conn
}

func testBatch(session string, values ...float64) batch.Batch {
	b := batch.Batch{SessionID: session, T0MS: 1000, T1MS: 1000 + int64(len(values))}
	for i, v := range values {
		b.Points = append(b.Points, batch.Point{Tick: uint64(i + 1), Value: v, Cat: models.LightActivity})
	}
	return b
}

func TestHubDeliversOnlyMatchingSession(t *testing.T) {
	hub, srv := startHub(t)
	a := dial(t, srv, "a")
	b := dial(t, srv, "b")
	all := dial(t, srv, "")

	require.Eventually(t, func() bool { return hub.ClientCount() == 3 }, time.Second, 5*time.Millisecond)

	hub.UpdateBPM("a", 72)
	require.NoError(t, hub.Consume(context.Background(), testBatch("a", 1, 2, 3)))

	var msg TraceMessage
	require.NoError(t, a.SetReadDeadline(time.Now().Add(time.Second)))
	require.NoError(t, a.ReadJSON(&msg))
	assert.Equal(t, "trace", msg.Type)
	assert.Equal(t, "a", msg.SessionID)
	assert.Equal(t, []float64{1, 2, 3}, msg.Values)
	assert.Equal(t, "light-activity", msg.Category)
	assert.Equal(t, 72.0, msg.BPM)
	assert.Equal(t, uint64(1), msg.FirstTick)

	require.NoError(t, all.SetReadDeadline(time.Now().Add(time.Second)))
	require.NoError(t, all.ReadJSON(&msg))
	assert.Equal(t, "a", msg.SessionID)

	require.NoError(t, b.SetReadDeadline(time.Now().Add(100*time.Millisecond)))
	_, _, err := b.ReadMessage()
	assert.Error(t, err, "session b must not see session a")
}

func TestHubEvents(t *testing.T) {
	hub, srv := startHub(t)
	c := dial(t, srv, "s1")
	require.Eventually(t, func() bool { return hub.ClientCount() == 1 }, time.Second, 5*time.Millisecond)

	hub.BroadcastEvent("s1", "category", "anomalous")

	var ev EventMessage
	require.NoError(t, c.SetReadDeadline(time.Now().Add(time.Second)))
	require.NoError(t, c.ReadJSON(&ev))
	assert.Equal(t, EventMessage{Type: "event", SessionID: "s1", Event: "category", Detail: "anomalous"}, ev)
}

func TestHubUnregistersOnClose(t *testing.T) {
	hub, srv := startHub(t)
	c := dial(t, srv, "x")
	require.Eventually(t, func() bool { return hub.ClientCount() == 1 }, time.Second, 5*time.Millisecond)

	c.Close()
	require.Eventually(t, func() bool { return hub.ClientCount() == 0 }, 2*time.Second, 5*time.Millisecond)
}

func TestHubEmptyBatchIgnored(t *testing.T) {
	hub := NewHub()
	assert.NoError(t, hub.Consume(context.Background(), batch.Batch{SessionID: "x"}))
	assert.Zero(t, hub.GetLastBPM("x"))
	hub.UpdateBPM("x", 60)
	hub.ForgetSession("x")
	assert.Zero(t, hub.GetLastBPM("x"))
}

func TestHubStoppedDoesNotBlock(t *testing.T) {
	hub := NewHub()
	ctx, cancel := context.WithCancel(context.Background())
	stopped := make(chan struct{})
	go func() {
		hub.Run(ctx)
		close(stopped)
	}()
	cancel()
	select {
	case <-stopped:
	case <-time.After(time.Second):
		t.Fatal("Run did not return after cancel")
	}

	srv := httptest.NewServer(http.HandlerFunc(hub.HandleWebSocket))
	defer srv.Close()

	served := make(chan struct{})
	go func() {
		url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws?session_id=a"
		conn, _, err := websocket.DefaultDialer.Dial(url, nil)
		if err == nil {
			_ = conn.SetReadDeadline(time.Now().Add(time.Second))
			_, _, err = conn.ReadMessage()
			require.Error(t, err)
			var ne net.Error
			assert.False(t, errors.As(err, &ne) && ne.Timeout(), "connection must be closed, not left hanging")
			conn.Close()
		}
		close(served)
	}()
	select {
	case <-served:
	case <-time.After(2 * time.Second):
		t.Fatal("handler blocked on a stopped hub")
	}
	assert.Equal(t, 0, hub.ClientCount())

	left := make(chan struct{})
	go func() {
		hub.leave(&Client{hub: hub})
		close(left)
	}()
	select {
	case <-left:
	case <-time.After(time.Second):
		t.Fatal("unregister blocked on a stopped hub")
	}
}
