package feed_test

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"net/url"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	json "github.com/goccy/go-json"
	"github.com/stretchr/testify/require"

	"github.com/coder/websocket"

	"github.com/coachpo/observatory/internal/feed"
	"github.com/coachpo/observatory/internal/schema"
)

func toWebsocketURL(t *testing.T, raw string) string {
	t.Helper()
	u, err := url.Parse(raw)
	require.NoError(t, err)
	switch u.Scheme {
	case "http":
		u.Scheme = "ws"
	case "https":
		u.Scheme = "wss"
	}
	return u.String()
}

type stateRecorder struct {
	mu     sync.Mutex
	states []feed.State
}

func (r *stateRecorder) record(s feed.State) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.states = append(r.states, s)
}

func (r *stateRecorder) count(want feed.State) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	n := 0
	for _, s := range r.states {
		if s == want {
			n++
		}
	}
	return n
}

func TestConnectSendsRequestUpdateAndDispatchesInitialState(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	firstClientFrame := make(chan []byte, 1)

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/api/evolution/ws", r.URL.Path)
		conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{InsecureSkipVerify: true})
		require.NoError(t, err)
		defer conn.Close(websocket.StatusNormalClosure, "shutdown")

		readCtx, readCancel := context.WithTimeout(ctx, time.Second)
		_, data, err := conn.Read(readCtx)
		readCancel()
		require.NoError(t, err)
		firstClientFrame <- append([]byte(nil), data...)

		writeCtx, writeCancel := context.WithTimeout(ctx, time.Second)
		err = conn.Write(writeCtx, websocket.MessageText, []byte(
			`{"type":"initial_state","data":{"adaptive_improvements":[{"id":"x","fitness":0.5,"complexity":1,"species":"s"}],"active_experiments":[],"optimization_cycles_completed":1,"generation":0}}`))
		writeCancel()
		require.NoError(t, err)

		<-ctx.Done()
	}))
	t.Cleanup(server.Close)

	snapshots := make(chan *schema.Snapshot, 1)
	manager := feed.NewManager(ctx, feed.Options{
		URL:        toWebsocketURL(t, server.URL) + "/api/evolution/ws",
		OnSnapshot: func(s *schema.Snapshot) { snapshots <- s },
	})
	t.Cleanup(manager.Close)

	manager.Connect()

	select {
	case raw := <-firstClientFrame:
		var payload map[string]any
		require.NoError(t, json.Unmarshal(raw, &payload))
		require.Equal(t, "request_update", payload["type"])
	case <-time.After(2 * time.Second):
		t.Fatal("expected request_update after open")
	}

	select {
	case snap := <-snapshots:
		require.EqualValues(t, 0, snap.Generation)
		require.Len(t, snap.Strategies, 1)
		require.Equal(t, "x", snap.Strategies[0].ID)
		require.Equal(t, 0.5, snap.Strategies[0].Fitness)
	case <-time.After(2 * time.Second):
		t.Fatal("expected normalised initial state snapshot")
	}

	require.Equal(t, feed.StateOpen, manager.State())
}

func TestConnectIsIdempotentWhileConnectingOrOpen(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var accepts atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		accepts.Add(1)
		conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{InsecureSkipVerify: true})
		require.NoError(t, err)
		defer conn.Close(websocket.StatusNormalClosure, "shutdown")
		<-ctx.Done()
	}))
	t.Cleanup(server.Close)

	manager := feed.NewManager(ctx, feed.Options{URL: toWebsocketURL(t, server.URL)})
	t.Cleanup(manager.Close)

	for i := 0; i < 5; i++ {
		manager.Connect()
	}
	require.Eventually(t, func() bool { return manager.State() == feed.StateOpen },
		2*time.Second, 10*time.Millisecond)
	manager.Connect()
	manager.Connect()

	time.Sleep(100 * time.Millisecond)
	require.EqualValues(t, 1, accepts.Load(), "repeated Connect must not dial again")
}

func TestMalformedFramesAreDiscardedWithoutStateChange(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{InsecureSkipVerify: true})
		require.NoError(t, err)
		defer conn.Close(websocket.StatusNormalClosure, "shutdown")

		readCtx, readCancel := context.WithTimeout(ctx, time.Second)
		_, _, err = conn.Read(readCtx)
		readCancel()
		require.NoError(t, err)

		for _, frame := range []string{
			`{not valid json`,
			`{"type":"mystery_event"}`,
			`{"type":"evolution_update","data":{"generation":4}}`,
		} {
			writeCtx, writeCancel := context.WithTimeout(ctx, time.Second)
			err = conn.Write(writeCtx, websocket.MessageText, []byte(frame))
			writeCancel()
			require.NoError(t, err)
		}
		<-ctx.Done()
	}))
	t.Cleanup(server.Close)

	snapshots := make(chan *schema.Snapshot, 4)
	manager := feed.NewManager(ctx, feed.Options{
		URL:        toWebsocketURL(t, server.URL),
		OnSnapshot: func(s *schema.Snapshot) { snapshots <- s },
	})
	t.Cleanup(manager.Close)
	manager.Connect()

	select {
	case snap := <-snapshots:
		require.EqualValues(t, 4, snap.Generation)
	case <-time.After(2 * time.Second):
		t.Fatal("expected update after malformed frames were skipped")
	}
	require.Equal(t, feed.StateOpen, manager.State())
	require.Empty(t, snapshots, "malformed and unknown frames must not produce snapshots")
}

func TestServerCloseSchedulesSingleReconnect(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var accepts atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		n := accepts.Add(1)
		conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{InsecureSkipVerify: true})
		require.NoError(t, err)
		if n == 1 {
			// Drop the first connection immediately to force a reconnect.
			_ = conn.Close(websocket.StatusInternalError, "boom")
			return
		}
		defer conn.Close(websocket.StatusNormalClosure, "shutdown")
		<-ctx.Done()
	}))
	t.Cleanup(server.Close)

	recorder := new(stateRecorder)
	manager := feed.NewManager(ctx, feed.Options{
		URL:            toWebsocketURL(t, server.URL),
		ReconnectDelay: 100 * time.Millisecond,
		OnState:        recorder.record,
	})
	t.Cleanup(manager.Close)
	manager.Connect()

	require.Eventually(t, func() bool { return accepts.Load() == 2 },
		3*time.Second, 10*time.Millisecond, "exactly one reconnect expected")
	require.Eventually(t, func() bool { return manager.State() == feed.StateOpen },
		2*time.Second, 10*time.Millisecond)

	// Reconnecting happened once, and the retry produced exactly one new dial.
	time.Sleep(300 * time.Millisecond)
	require.EqualValues(t, 2, accepts.Load())
	require.Equal(t, 1, recorder.count(feed.StateReconnecting))
	require.Equal(t, 2, recorder.count(feed.StateConnecting))
}

func TestHeartbeatPingOnlyWhileOpen(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	frames := make(chan string, 16)
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{InsecureSkipVerify: true})
		require.NoError(t, err)
		defer conn.Close(websocket.StatusNormalClosure, "shutdown")
		for {
			readCtx, readCancel := context.WithTimeout(ctx, 5*time.Second)
			_, data, err := conn.Read(readCtx)
			readCancel()
			if err != nil {
				return
			}
			var payload map[string]any
			if err := json.Unmarshal(data, &payload); err == nil {
				if typ, ok := payload["type"].(string); ok {
					frames <- typ
				}
			}
		}
	}))
	t.Cleanup(server.Close)

	manager := feed.NewManager(ctx, feed.Options{
		URL:               toWebsocketURL(t, server.URL),
		HeartbeatInterval: 50 * time.Millisecond,
	})
	t.Cleanup(manager.Close)

	// Before the feed is open, sends are dropped rather than queued.
	manager.Send(schema.MessageTypePing)

	manager.Connect()

	var received []string
	deadline := time.After(2 * time.Second)
	for len(received) < 3 {
		select {
		case typ := <-frames:
			received = append(received, typ)
		case <-deadline:
			t.Fatalf("expected request_update plus pings, got %v", received)
		}
	}
	require.Equal(t, "request_update", received[0], "dropped pre-open ping must not arrive first")
	for _, typ := range received[1:] {
		require.Equal(t, "ping", typ)
	}
}

func TestCloseCancelsPendingReconnect(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var accepts atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		accepts.Add(1)
		conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{InsecureSkipVerify: true})
		require.NoError(t, err)
		_ = conn.Close(websocket.StatusInternalError, "boom")
	}))
	t.Cleanup(server.Close)

	manager := feed.NewManager(ctx, feed.Options{
		URL:            toWebsocketURL(t, server.URL),
		ReconnectDelay: 100 * time.Millisecond,
	})
	manager.Connect()

	require.Eventually(t, func() bool { return manager.State() == feed.StateReconnecting },
		2*time.Second, 10*time.Millisecond)
	dialed := accepts.Load()
	manager.Close()

	time.Sleep(300 * time.Millisecond)
	require.Equal(t, dialed, accepts.Load(), "no dial may happen after Close")
	require.Equal(t, feed.StateDisconnected, manager.State())
}

func TestStateStringCoversAllStates(t *testing.T) {
	for state, want := range map[feed.State]string{
		feed.StateDisconnected: "disconnected",
		feed.StateConnecting:   "connecting",
		feed.StateOpen:         "open",
		feed.StateReconnecting: "reconnecting",
		feed.State(99):         "unknown",
	} {
		require.Equal(t, want, fmt.Sprintf("%s", state))
	}
}
