package poller

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/snarg/np-engine/internal/database"
	"github.com/snarg/np-engine/internal/mapping"
	"github.com/snarg/np-engine/internal/metrics"
)

// Connection status tags written by the engine.
const (
	statusOK             = "OK"
	statusFetchError     = "FETCH_ERROR"
	statusInvalidEvent   = "INVALID_EVENT"
	statusDisabled       = "DISABLED"
	statusWSConnected    = "WS_CONNECTED"
	statusWSConnectError = "WS_CONNECT_ERROR"
	statusWSClosed       = "WS_CLOSED"
	statusWSError        = "WS_ERROR"
	statusWSDisconnected = "WS_DISCONNECTED"
)

// writer deduplicates observations and persists events plus the resulting
// connection polling state.
type writer struct {
	store Store
	log   zerolog.Logger
}

// observe counts the write outcome. WS frames are pushed, not polled, so
// they go under their own counter instead of inflating the poll totals.
func observe(conn *database.Connection, status string) {
	if mapping.IsWSType(conn.ConnectionType) {
		metrics.WSMessagesTotal.WithLabelValues(status).Inc()
		return
	}
	metrics.PollsTotal.WithLabelValues(status).Inc()
}

// recordFetchFailure applies the error backoff after a failed fetch.
func (w *writer) recordFetchFailure(ctx context.Context, conn *database.Connection, now time.Time, fetchErr error) error {
	observe(conn, statusFetchError)
	msg := fetchErr.Error()
	backoff := nextErrorBackoffSeconds(conn.ErrorBackoffSeconds)
	return w.store.UpdateConnectionPollingState(ctx, conn.ID, database.PollingStateUpdate{
		LastPolledAt:           now,
		NextPollAt:             scheduleAfter(conn.ID, now, int64(backoff)),
		LastStatus:             statusFetchError,
		LastError:              &msg,
		ErrorBackoffSeconds:    backoff,
		SameSongBackoffSeconds: 0,
	})
}

// Write applies the artist gate, deduplicates against the connection's most
// recent event, inserts a new event when warranted, and computes the next
// poll time. Used by both the HTTP poll path and the WS listener.
func (w *writer) Write(ctx context.Context, conn *database.Connection, result *FetchResult, now time.Time) error {
	f := result.Fields

	if !hasArtist(f.Artist) {
		w.log.Error().
			Stringer("connection_id", conn.ID).
			Msg("skipping now-playing event: missing/empty artist")
		observe(conn, statusInvalidEvent)
		msg := "Missing artist"
		backoff := nextErrorBackoffSeconds(conn.ErrorBackoffSeconds)
		return w.store.UpdateConnectionPollingState(ctx, conn.ID, database.PollingStateUpdate{
			LastPolledAt:           now,
			NextPollAt:             scheduleAfter(conn.ID, now, int64(backoff)),
			LastStatus:             statusInvalidEvent,
			LastError:              &msg,
			ErrorBackoffSeconds:    backoff,
			SameSongBackoffSeconds: 0,
		})
	}

	// Serialize once: the same bytes feed the hash and the jsonb column.
	// String payloads (XML/RSS/text bodies) must arrive quoted, and pgx
	// passes a plain Go string through to jsonb verbatim, so the stored
	// value is always the pre-encoded form.
	serialized, err := json.Marshal(result.RawPayload)
	if err != nil {
		serialized = []byte("null")
	}
	hash := payloadHash(conn.StationID, conn.ID, serialized)

	lastEvent, err := w.store.LatestEventForConnection(ctx, conn.ID)
	if err != nil {
		return err
	}

	payloadDuplicate := lastEvent != nil && lastEvent.PayloadHash == hash
	contentDuplicate := lastEvent != nil &&
		eqOptStr(lastEvent.ReportedArtist, f.Artist) &&
		eqOptStr(lastEvent.ReportedTitle, f.Title)
	isDuplicate := payloadDuplicate || contentDuplicate

	if isDuplicate {
		kind := "content"
		if payloadDuplicate {
			kind = "payload"
		}
		metrics.DuplicateObservationsTotal.WithLabelValues(kind).Inc()
	} else {
		event := database.RawNowPlayingEvent{
			ID:             uuid.New(),
			StationID:      conn.StationID,
			ConnectionID:   conn.ID,
			ObservedAt:     now,
			ReportedAt:     f.ReportedAt,
			ReportedArtist: f.Artist,
			ReportedTitle:  f.Title,
			ReportedAlbum:  f.Album,
			RawPayload:     json.RawMessage(serialized),
			PayloadHash:    hash,
			HTTPStatus:     &result.Status,
			ContentType:    result.ContentType,
			CreatedAt:      now,
		}
		if err := w.store.InsertEvent(ctx, event); err != nil {
			return err
		}
		metrics.EventsInsertedTotal.Inc()
	}

	nextPollAt, sameSongBackoff := w.nextSchedule(conn, f, isDuplicate, now)

	observe(conn, statusOK)
	return w.store.UpdateConnectionPollingState(ctx, conn.ID, database.PollingStateUpdate{
		LastPolledAt:           now,
		NextPollAt:             nextPollAt,
		LastStatus:             statusOK,
		LastError:              nil,
		ErrorBackoffSeconds:    0,
		SameSongBackoffSeconds: sameSongBackoff,
	})
}

// nextSchedule picks the next poll time after a successful write: same-song
// backoff on duplicates, track-end alignment under duration polling, or the
// steady interval.
func (w *writer) nextSchedule(conn *database.Connection, f mapping.Fields, isDuplicate bool, now time.Time) (time.Time, int) {
	if isDuplicate {
		backoff := nextSameSongBackoffSeconds(conn.SameSongBackoffSeconds, conn.ID, now)
		return scheduleAfter(conn.ID, now, int64(backoff)), backoff
	}

	if conn.UseDurationPolling && f.ReportedAt != nil && f.DurationSeconds != nil {
		endsAt := f.ReportedAt.Add(time.Duration(*f.DurationSeconds) * time.Second)
		remaining := int64(endsAt.Sub(now) / time.Second)
		var base int64
		if remaining > 0 {
			// Poll shortly after the track is expected to end.
			base = remaining + 2
			if base < 5 {
				base = 5
			}
		} else {
			// Already past the expected end; poll again soon.
			base = 10 + jitterSeconds(conn.ID, now, 20)
		}
		return scheduleAfter(conn.ID, now, base), 0
	}

	return scheduleAfter(conn.ID, now, int64(conn.PollIntervalSeconds)), 0
}

// payloadHash is hex SHA-256 over the station id, connection id and the
// JSON-serialized payload. Scoping the hash by ids keeps identical bodies
// on different connections from colliding.
func payloadHash(stationID, connID uuid.UUID, serialized []byte) string {
	h := sha256.New()
	h.Write(stationID[:])
	h.Write(connID[:])
	h.Write(serialized)
	return hex.EncodeToString(h.Sum(nil))
}

func hasArtist(artist *string) bool {
	return artist != nil && strings.TrimSpace(*artist) != ""
}

func eqOptStr(a, b *string) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	return *a == *b
}
