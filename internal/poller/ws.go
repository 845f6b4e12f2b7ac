package poller

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
	"github.com/snarg/np-engine/internal/database"
	"github.com/snarg/np-engine/internal/mapping"
	"github.com/snarg/np-engine/internal/metrics"
)

const (
	wsHealthCheckInterval = 30 * time.Second
	wsMaxBackoff          = 60 * time.Second
)

// wsListener maintains one persistent WebSocket connection: connect,
// subscribe, feed pushed payloads through the writer, reconnect with
// doubling backoff on any break.
type wsListener struct {
	store  Store
	writer *writer
	log    zerolog.Logger
}

// Run loops until the connection is disabled, the subscribe message cannot
// be built, the store fails, or ctx is canceled.
func (l *wsListener) Run(ctx context.Context, conn *database.Connection) error {
	m, err := loadMapping(ctx, l.store, conn)
	if err != nil {
		return err
	}

	backoff := time.Second

	for {
		enabled, err := l.connectionEnabled(ctx, conn.ID)
		if err != nil {
			return err
		}
		if !enabled {
			return l.setStatus(ctx, conn.ID, statusDisabled, nil)
		}

		ws, resp, err := websocket.DefaultDialer.DialContext(ctx, conn.URL, nil)
		if resp != nil {
			resp.Body.Close()
		}
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			msg := err.Error()
			if err := l.setStatus(ctx, conn.ID, statusWSConnectError, &msg); err != nil {
				return err
			}
		} else {
			terminate, err := l.serve(ctx, conn, m, ws)
			ws.Close()
			if terminate || err != nil {
				return err
			}
			backoff = time.Second
		}

		select {
		case <-ctx.Done():
			return nil
		case <-time.After(backoff):
		}
		metrics.WSReconnectsTotal.Inc()
		backoff *= 2
		if backoff > wsMaxBackoff {
			backoff = wsMaxBackoff
		}
	}
}

// serve handles one established connection until it breaks. Returns
// terminate=true when the listener should exit instead of reconnecting.
func (l *wsListener) serve(ctx context.Context, conn *database.Connection, m *mapping.Mapping, ws *websocket.Conn) (bool, error) {
	if err := l.setStatus(ctx, conn.ID, statusWSConnected, nil); err != nil {
		return true, err
	}

	subscribe, err := buildWSSubscribeMessage(conn)
	if err != nil {
		msg := err.Error()
		_ = l.setStatus(ctx, conn.ID, statusWSError, &msg)
		return true, err
	}
	if err := ws.WriteMessage(websocket.TextMessage, []byte(subscribe)); err != nil {
		msg := err.Error()
		return false, l.setStatus(ctx, conn.ID, statusWSError, &msg)
	}

	// Reader goroutine; ping frames are answered with pongs by the
	// default handler inside ReadMessage.
	type frame struct {
		data []byte
		err  error
	}
	frames := make(chan frame)
	readerDone := make(chan struct{})
	defer close(readerDone)
	go func() {
		for {
			_, data, err := ws.ReadMessage()
			select {
			case frames <- frame{data: data, err: err}:
			case <-readerDone:
				return
			}
			if err != nil {
				return
			}
		}
	}()

	healthCheck := time.NewTicker(wsHealthCheckInterval)
	defer healthCheck.Stop()

	for {
		select {
		case <-ctx.Done():
			return true, nil

		case fr := <-frames:
			if fr.err != nil {
				return false, l.recordStreamBreak(ctx, conn.ID, fr.err)
			}
			var payload any
			if err := json.Unmarshal(fr.data, &payload); err != nil {
				continue
			}
			if err := l.handlePayload(ctx, conn, m, payload); err != nil {
				return true, err
			}

		case <-healthCheck.C:
			enabled, err := l.connectionEnabled(ctx, conn.ID)
			if err != nil {
				return true, err
			}
			if !enabled {
				return true, l.setStatus(ctx, conn.ID, statusDisabled, nil)
			}
		}
	}
}

// recordStreamBreak maps a read error to the connection status tag: close
// frames, end-of-stream and everything else are distinguished.
func (l *wsListener) recordStreamBreak(ctx context.Context, id uuid.UUID, readErr error) error {
	var closeErr *websocket.CloseError
	switch {
	case errors.As(readErr, &closeErr):
		return l.setStatus(ctx, id, statusWSClosed, nil)
	case errors.Is(readErr, io.EOF), errors.Is(readErr, io.ErrUnexpectedEOF):
		return l.setStatus(ctx, id, statusWSDisconnected, nil)
	default:
		msg := readErr.Error()
		return l.setStatus(ctx, id, statusWSError, &msg)
	}
}

// handlePayload feeds a pushed message through the deduplicating writer as
// a synthetic fetch result.
func (l *wsListener) handlePayload(ctx context.Context, conn *database.Connection, m *mapping.Mapping, payload any) error {
	now := time.Now().UTC()
	contentType := "application/json"
	result := &FetchResult{
		Status:      200,
		ContentType: &contentType,
		RawPayload:  payload,
		Fields:      mapping.Extract(payload, m, conn.ConnectionType),
	}
	return l.writer.Write(ctx, conn, result, now)
}

func (l *wsListener) connectionEnabled(ctx context.Context, id uuid.UUID) (bool, error) {
	conn, err := l.store.GetConnection(ctx, id)
	if errors.Is(err, database.ErrNotFound) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return conn.Enabled, nil
}

func (l *wsListener) setStatus(ctx context.Context, id uuid.UUID, status string, lastError *string) error {
	return l.store.UpdateConnectionStatus(ctx, id, &status, lastError)
}

// buildWSSubscribeMessage composes the post-connect frame from the
// connection's headers_json: an explicit subscribe_payload/subscribe_message
// wins; otherwise a serviceId/service_id hint produces the conventional
// {"action":"subscribe","serviceId":…} frame.
func buildWSSubscribeMessage(conn *database.Connection) (string, error) {
	obj := conn.HeadersJSON
	if obj != nil {
		for _, key := range []string{"subscribe_payload", "subscribe_message"} {
			if v, ok := obj[key]; ok {
				if text, ok := v.(string); ok {
					return text, nil
				}
				raw, err := json.Marshal(v)
				if err != nil {
					return "", err
				}
				return string(raw), nil
			}
		}

		for _, key := range []string{"serviceId", "service_id"} {
			if v, ok := obj[key]; ok {
				raw, err := json.Marshal(map[string]any{
					"action":    "subscribe",
					"serviceId": v,
				})
				if err != nil {
					return "", err
				}
				return string(raw), nil
			}
		}
	}

	return "", fmt.Errorf("missing subscribe_payload or serviceId in headers_json for ws_json connection")
}
