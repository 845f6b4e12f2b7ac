package poller

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
)

func TestBuildWSSubscribeMessage(t *testing.T) {
	conn := testConn(60)
	conn.ConnectionType = "ws_json"

	t.Run("subscribe_payload_string_verbatim", func(t *testing.T) {
		conn.HeadersJSON = map[string]any{"subscribe_payload": `{"cmd":"listen"}`}
		got, err := buildWSSubscribeMessage(conn)
		if err != nil {
			t.Fatal(err)
		}
		if got != `{"cmd":"listen"}` {
			t.Errorf("got %q", got)
		}
	})

	t.Run("subscribe_message_object_serialized", func(t *testing.T) {
		conn.HeadersJSON = map[string]any{"subscribe_message": map[string]any{"cmd": "listen"}}
		got, err := buildWSSubscribeMessage(conn)
		if err != nil {
			t.Fatal(err)
		}
		var decoded map[string]any
		if err := json.Unmarshal([]byte(got), &decoded); err != nil || decoded["cmd"] != "listen" {
			t.Errorf("got %q", got)
		}
	})

	t.Run("service_id_hint", func(t *testing.T) {
		for _, key := range []string{"serviceId", "service_id"} {
			conn.HeadersJSON = map[string]any{key: "abc"}
			got, err := buildWSSubscribeMessage(conn)
			if err != nil {
				t.Fatal(err)
			}
			var decoded map[string]any
			if err := json.Unmarshal([]byte(got), &decoded); err != nil {
				t.Fatalf("%s: got %q", key, got)
			}
			if decoded["action"] != "subscribe" || decoded["serviceId"] != "abc" {
				t.Errorf("%s: got %q", key, got)
			}
		}
	})

	t.Run("missing_config_errors", func(t *testing.T) {
		conn.HeadersJSON = nil
		if _, err := buildWSSubscribeMessage(conn); err == nil {
			t.Error("expected an error")
		}
		conn.HeadersJSON = map[string]any{"unrelated": true}
		if _, err := buildWSSubscribeMessage(conn); err == nil {
			t.Error("expected an error")
		}
	})
}

var upgrader = websocket.Upgrader{}

func wsURL(srv *httptest.Server) string {
	return "ws" + strings.TrimPrefix(srv.URL, "http")
}

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatal("condition not met within deadline")
}

func TestWSListener(t *testing.T) {
	t.Run("subscribes_and_writes_pushed_events", func(t *testing.T) {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ws, err := upgrader.Upgrade(w, r, nil)
			if err != nil {
				return
			}
			defer ws.Close()

			// Expect the subscribe frame first.
			_, msg, err := ws.ReadMessage()
			if err != nil {
				return
			}
			var sub map[string]any
			if err := json.Unmarshal(msg, &sub); err != nil || sub["action"] != "subscribe" || sub["serviceId"] != "abc" {
				t.Errorf("unexpected subscribe frame: %s", msg)
				return
			}

			ws.WriteMessage(websocket.TextMessage, []byte(`{"artist":"Techno Animal","title":"Flight of the Hermaphrodite"}`))
			// Hold the connection open until the client goes away.
			for {
				if _, _, err := ws.ReadMessage(); err != nil {
					return
				}
			}
		}))
		defer srv.Close()

		store := newFakeStore()
		conn := testConn(60)
		conn.ConnectionType = "ws_json"
		conn.URL = wsURL(srv)
		conn.HeadersJSON = map[string]any{"serviceId": "abc"}
		store.addConnection(conn)

		w := &writer{store: store, log: zerolog.Nop()}
		l := &wsListener{store: store, writer: w, log: zerolog.Nop()}

		ctx, cancel := context.WithCancel(context.Background())
		done := make(chan error, 1)
		go func() { done <- l.Run(ctx, conn) }()

		waitFor(t, func() bool { return store.eventCount() == 1 })
		cancel()
		if err := <-done; err != nil {
			t.Errorf("listener returned %v", err)
		}

		statuses := store.statuses(conn.ID)
		if len(statuses) == 0 || statuses[0] != "WS_CONNECTED" {
			t.Errorf("statuses = %v", statuses)
		}
	})

	t.Run("reconnects_after_server_close", func(t *testing.T) {
		var upgrades atomic.Int64
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			n := upgrades.Add(1)
			ws, err := upgrader.Upgrade(w, r, nil)
			if err != nil {
				return
			}
			defer ws.Close()

			// Subscribe frame arrives first on every connection.
			if _, _, err := ws.ReadMessage(); err != nil {
				return
			}

			if n == 1 {
				ws.WriteMessage(websocket.TextMessage, []byte(`{"artist":"Oval","title":"Do While"}`))
				ws.WriteMessage(websocket.CloseMessage,
					websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
				return
			}
			ws.WriteMessage(websocket.TextMessage, []byte(`{"artist":"Microstoria","title":"Sleepy People"}`))
			for {
				if _, _, err := ws.ReadMessage(); err != nil {
					return
				}
			}
		}))
		defer srv.Close()

		store := newFakeStore()
		conn := testConn(60)
		conn.ConnectionType = "ws_json"
		conn.URL = wsURL(srv)
		conn.HeadersJSON = map[string]any{"serviceId": "abc"}
		store.addConnection(conn)

		w := &writer{store: store, log: zerolog.Nop()}
		l := &wsListener{store: store, writer: w, log: zerolog.Nop()}

		ctx, cancel := context.WithCancel(context.Background())
		done := make(chan error, 1)
		go func() { done <- l.Run(ctx, conn) }()

		// Both pushes must land: one before the close, one after the
		// listener reconnected and re-subscribed.
		waitFor(t, func() bool { return store.eventCount() == 2 })
		cancel()
		if err := <-done; err != nil {
			t.Errorf("listener returned %v", err)
		}

		if got := upgrades.Load(); got < 2 {
			t.Errorf("upgrades = %d, want a reconnect", got)
		}
		var sawClosed bool
		for _, s := range store.statuses(conn.ID) {
			if s == "WS_CLOSED" {
				sawClosed = true
			}
		}
		if !sawClosed {
			t.Errorf("statuses = %v, want WS_CLOSED recorded", store.statuses(conn.ID))
		}
	})

	t.Run("missing_subscribe_config_terminates", func(t *testing.T) {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ws, err := upgrader.Upgrade(w, r, nil)
			if err != nil {
				return
			}
			defer ws.Close()
			ws.ReadMessage()
		}))
		defer srv.Close()

		store := newFakeStore()
		conn := testConn(60)
		conn.ConnectionType = "ws_json"
		conn.URL = wsURL(srv)
		store.addConnection(conn)

		w := &writer{store: store, log: zerolog.Nop()}
		l := &wsListener{store: store, writer: w, log: zerolog.Nop()}

		if err := l.Run(context.Background(), conn); err == nil {
			t.Error("expected the listener to terminate with an error")
		}

		statuses := store.statuses(conn.ID)
		last := statuses[len(statuses)-1]
		if last != "WS_ERROR" {
			t.Errorf("last status = %q, statuses = %v", last, statuses)
		}
	})

	t.Run("disabled_connection_exits", func(t *testing.T) {
		store := newFakeStore()
		conn := testConn(60)
		conn.ConnectionType = "ws_json"
		conn.Enabled = false
		store.addConnection(conn)

		w := &writer{store: store, log: zerolog.Nop()}
		l := &wsListener{store: store, writer: w, log: zerolog.Nop()}

		if err := l.Run(context.Background(), conn); err != nil {
			t.Errorf("got %v", err)
		}
		statuses := store.statuses(conn.ID)
		if len(statuses) != 1 || statuses[0] != "DISABLED" {
			t.Errorf("statuses = %v", statuses)
		}
	})

	t.Run("missing_artist_push_is_rejected", func(t *testing.T) {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ws, err := upgrader.Upgrade(w, r, nil)
			if err != nil {
				return
			}
			defer ws.Close()
			ws.ReadMessage()
			ws.WriteMessage(websocket.TextMessage, []byte(`{"title":"No Artist Here"}`))
			for {
				if _, _, err := ws.ReadMessage(); err != nil {
					return
				}
			}
		}))
		defer srv.Close()

		store := newFakeStore()
		conn := testConn(60)
		conn.ConnectionType = "ws_json"
		conn.URL = wsURL(srv)
		conn.HeadersJSON = map[string]any{"serviceId": "abc"}
		store.addConnection(conn)

		w := &writer{store: store, log: zerolog.Nop()}
		l := &wsListener{store: store, writer: w, log: zerolog.Nop()}

		ctx, cancel := context.WithCancel(context.Background())
		done := make(chan error, 1)
		go func() { done <- l.Run(ctx, conn) }()

		waitFor(t, func() bool {
			c, _ := store.GetConnection(context.Background(), conn.ID)
			return c != nil && c.LastStatus != nil && *c.LastStatus == "INVALID_EVENT"
		})
		cancel()
		<-done

		if store.eventCount() != 0 {
			t.Errorf("expected no events, got %d", store.eventCount())
		}
	})
}
