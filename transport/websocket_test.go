package transport

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"github.com/jonwraymond/livequery/cache"
	"github.com/jonwraymond/livequery/query"
)

const testTimeout = 5 * time.Second

// frameHandler is called for each client frame on a test connection.
// conns counts connections, starting at 1.
type frameHandler func(conn *websocket.Conn, connNum int64, msg clientMessage)

func newTestServer(t *testing.T, handle frameHandler) *httptest.Server {
	t.Helper()
	upgrader := websocket.Upgrader{}
	var conns int64

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()
		num := atomic.AddInt64(&conns, 1)
		for {
			var msg clientMessage
			if err := conn.ReadJSON(&msg); err != nil {
				return
			}
			handle(conn, num, msg)
		}
	}))
	t.Cleanup(srv.Close)
	return srv
}

func wsURL(srv *httptest.Server) string {
	return "ws" + strings.TrimPrefix(srv.URL, "http")
}

func testSettings() *Settings {
	s := DefaultSettings()
	s.ReconnectInitialDelay = 10 * time.Millisecond
	s.ReconnectMaxDelay = 50 * time.Millisecond
	s.ReconnectJitter = false
	return s
}

func waitResult(t *testing.T, ch <-chan cache.Result) cache.Result {
	t.Helper()
	select {
	case r := <-ch:
		return r
	case <-time.After(testTimeout):
		t.Fatal("timed out waiting for a result")
		return cache.Absent()
	}
}

func TestNewClient_EmptyURL(t *testing.T) {
	_, err := NewClient(context.Background(), "", Options{})
	if !errors.Is(err, ErrEmptyURL) {
		t.Errorf("expected ErrEmptyURL, got %v", err)
	}
}

func TestClient_SubscribeReceivesUpdates(t *testing.T) {
	srv := newTestServer(t, func(conn *websocket.Conn, _ int64, msg clientMessage) {
		if msg.Type != msgSubscribe {
			return
		}
		if msg.Function != "messages:list" {
			t.Errorf("unexpected function ref %q", msg.Function)
		}
		_ = conn.WriteJSON(map[string]any{"type": "update", "id": msg.ID, "value": []any{"hello"}})
		_ = conn.WriteJSON(map[string]any{"type": "update", "id": msg.ID, "value": []any{"hello", "again"}})
	})

	client, err := NewClient(context.Background(), wsURL(srv), Options{Settings: testSettings()})
	if err != nil {
		t.Fatalf("NewClient failed: %v", err)
	}
	defer client.Close()

	updates := make(chan cache.Result, 4)
	sub := client.Subscribe("messages:list", query.NewArgs(map[string]any{"channel": "general"}), func(r cache.Result) {
		updates <- r
	})
	defer sub.Close()

	first := waitResult(t, updates)
	v, ok := first.Value()
	if !ok {
		t.Fatalf("first push was not a value: %+v", first)
	}
	if vs := v.([]any); len(vs) != 1 || vs[0] != "hello" {
		t.Errorf("unexpected first value: %v", v)
	}

	second := waitResult(t, updates)
	if v, _ := second.Value(); len(v.([]any)) != 2 {
		t.Errorf("unexpected second value: %v", v)
	}
}

func TestClient_ServerErrorBecomesErrorResult(t *testing.T) {
	srv := newTestServer(t, func(conn *websocket.Conn, _ int64, msg clientMessage) {
		if msg.Type == msgSubscribe {
			_ = conn.WriteJSON(map[string]any{"type": "error", "id": msg.ID, "message": "unknown function"})
		}
	})

	client, err := NewClient(context.Background(), wsURL(srv), Options{Settings: testSettings()})
	if err != nil {
		t.Fatalf("NewClient failed: %v", err)
	}
	defer client.Close()

	updates := make(chan cache.Result, 1)
	sub := client.Subscribe("nope", query.NewArgs(nil), func(r cache.Result) {
		updates <- r
	})
	defer sub.Close()

	res := waitResult(t, updates)
	var serverErr *ServerError
	if !errors.As(res.Err(), &serverErr) {
		t.Fatalf("expected ServerError result, got %+v", res)
	}
	if serverErr.Message != "unknown function" {
		t.Errorf("unexpected message: %q", serverErr.Message)
	}
}

func TestClient_UnsubscribeStopsDelivery(t *testing.T) {
	unsubscribed := make(chan uint64, 1)
	srv := newTestServer(t, func(conn *websocket.Conn, _ int64, msg clientMessage) {
		switch msg.Type {
		case msgSubscribe:
			_ = conn.WriteJSON(map[string]any{"type": "update", "id": msg.ID, "value": 1})
		case msgUnsubscribe:
			// a push racing the unsubscribe must be dropped client-side
			_ = conn.WriteJSON(map[string]any{"type": "update", "id": msg.ID, "value": 2})
			unsubscribed <- msg.ID
		}
	})

	client, err := NewClient(context.Background(), wsURL(srv), Options{Settings: testSettings()})
	if err != nil {
		t.Fatalf("NewClient failed: %v", err)
	}
	defer client.Close()

	updates := make(chan cache.Result, 4)
	sub := client.Subscribe("fn", query.NewArgs(nil), func(r cache.Result) {
		updates <- r
	})

	waitResult(t, updates)
	sub.Close()
	sub.Close() // idempotent

	select {
	case id := <-unsubscribed:
		if id == 0 {
			t.Error("unsubscribe frame carried no id")
		}
	case <-time.After(testTimeout):
		t.Fatal("server never saw the unsubscribe frame")
	}

	select {
	case r := <-updates:
		t.Errorf("push after unsubscribe was delivered: %+v", r)
	case <-time.After(200 * time.Millisecond):
	}
}

func TestClient_ResubscribesAfterReconnect(t *testing.T) {
	srv := newTestServer(t, func(conn *websocket.Conn, connNum int64, msg clientMessage) {
		if msg.Type != msgSubscribe {
			return
		}
		if connNum == 1 {
			// drop the first connection after acknowledging the subscribe
			_ = conn.WriteJSON(map[string]any{"type": "update", "id": msg.ID, "value": "first"})
			_ = conn.Close()
			return
		}
		_ = conn.WriteJSON(map[string]any{"type": "update", "id": msg.ID, "value": "second"})
	})

	client, err := NewClient(context.Background(), wsURL(srv), Options{Settings: testSettings()})
	if err != nil {
		t.Fatalf("NewClient failed: %v", err)
	}
	defer client.Close()

	updates := make(chan cache.Result, 4)
	sub := client.Subscribe("fn", query.NewArgs(nil), func(r cache.Result) {
		updates <- r
	})
	defer sub.Close()

	if v, _ := waitResult(t, updates).Value(); v != "first" {
		t.Fatalf("unexpected first value: %v", v)
	}

	// The replayed subscribe on the second connection resumes pushes
	// without any caller involvement.
	if v, _ := waitResult(t, updates).Value(); v != "second" {
		t.Errorf("expected replayed subscription value, got %v", v)
	}
}

func TestClient_SendsBearerToken(t *testing.T) {
	gotAuth := make(chan string, 1)
	upgrader := websocket.Upgrader{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case gotAuth <- r.Header.Get("Authorization"):
		default:
		}
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		_ = conn.Close()
	}))
	t.Cleanup(srv.Close)

	client, err := NewClient(context.Background(), wsURL(srv), Options{
		Settings:  testSettings(),
		AccessKey: "deploy-key-123",
	})
	if err != nil {
		t.Fatalf("NewClient failed: %v", err)
	}
	defer client.Close()

	select {
	case auth := <-gotAuth:
		if auth != "Bearer deploy-key-123" {
			t.Errorf("unexpected Authorization header: %q", auth)
		}
	case <-time.After(testTimeout):
		t.Fatal("server never saw the handshake")
	}
}

func TestClient_CloseIdempotent(t *testing.T) {
	srv := newTestServer(t, func(*websocket.Conn, int64, clientMessage) {})

	client, err := NewClient(context.Background(), wsURL(srv), Options{Settings: testSettings()})
	if err != nil {
		t.Fatalf("NewClient failed: %v", err)
	}

	if err := client.Close(); err != nil {
		t.Errorf("first Close failed: %v", err)
	}
	if err := client.Close(); err != nil {
		t.Errorf("second Close failed: %v", err)
	}
	if client.Connected() {
		t.Error("client still reports connected after Close")
	}
}

func TestClient_DialFailureBroadcastsError(t *testing.T) {
	settings := testSettings()
	settings.DialFailureThreshold = 2

	// no listener on this port
	client, err := NewClient(context.Background(), "ws://127.0.0.1:1", Options{Settings: settings})
	if err != nil {
		t.Fatalf("NewClient failed: %v", err)
	}
	defer client.Close()

	updates := make(chan cache.Result, 1)
	sub := client.Subscribe("fn", query.NewArgs(nil), func(r cache.Result) {
		select {
		case updates <- r:
		default:
		}
	})
	defer sub.Close()

	res := waitResult(t, updates)
	if !errors.Is(res.Err(), ErrUnreachable) {
		t.Errorf("expected ErrUnreachable result, got %+v", res)
	}
}
