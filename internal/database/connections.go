package database

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
)

// ErrNotFound is returned by single-row lookups that match nothing.
var ErrNotFound = errors.New("not found")

const connectionColumns = `id, station_id, payload_mapping_id, name, connection_type, url,
	poll_interval_seconds, headers_json, enabled, use_duration_polling,
	last_polled_at, next_poll_at, same_song_backoff_seconds, error_backoff_seconds,
	last_status, last_error, created_at, updated_at`

func scanConnection(row pgx.Row) (*Connection, error) {
	var c Connection
	err := row.Scan(
		&c.ID, &c.StationID, &c.PayloadMappingID, &c.Name, &c.ConnectionType, &c.URL,
		&c.PollIntervalSeconds, &c.HeadersJSON, &c.Enabled, &c.UseDurationPolling,
		&c.LastPolledAt, &c.NextPollAt, &c.SameSongBackoffSeconds, &c.ErrorBackoffSeconds,
		&c.LastStatus, &c.LastError, &c.CreatedAt, &c.UpdatedAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &c, nil
}

// ListEnabledConnections returns every connection with enabled=true.
// Called once per supervisor tick.
func (db *DB) ListEnabledConnections(ctx context.Context) ([]Connection, error) {
	rows, err := db.Pool.Query(ctx, `
		SELECT `+connectionColumns+`
		FROM now_playing_connections
		WHERE enabled = true
		ORDER BY created_at
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var conns []Connection
	for rows.Next() {
		c, err := scanConnection(rows)
		if err != nil {
			return nil, err
		}
		conns = append(conns, *c)
	}
	return conns, rows.Err()
}

// ListConnections returns all connections, optionally filtered by station.
func (db *DB) ListConnections(ctx context.Context, stationID *uuid.UUID) ([]Connection, error) {
	query := `SELECT ` + connectionColumns + ` FROM now_playing_connections`
	args := []any{}
	if stationID != nil {
		query += ` WHERE station_id = $1`
		args = append(args, *stationID)
	}
	query += ` ORDER BY created_at`

	rows, err := db.Pool.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var conns []Connection
	for rows.Next() {
		c, err := scanConnection(rows)
		if err != nil {
			return nil, err
		}
		conns = append(conns, *c)
	}
	return conns, rows.Err()
}

func (db *DB) GetConnection(ctx context.Context, id uuid.UUID) (*Connection, error) {
	return scanConnection(db.Pool.QueryRow(ctx, `
		SELECT `+connectionColumns+`
		FROM now_playing_connections
		WHERE id = $1
	`, id))
}

func (db *DB) InsertConnection(ctx context.Context, c *Connection) error {
	_, err := db.Pool.Exec(ctx, `
		INSERT INTO now_playing_connections (
			id, station_id, payload_mapping_id, name, connection_type, url,
			poll_interval_seconds, headers_json, enabled, use_duration_polling,
			same_song_backoff_seconds, error_backoff_seconds, created_at, updated_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, 0, 0, $11, $11)
	`, c.ID, c.StationID, c.PayloadMappingID, c.Name, c.ConnectionType, c.URL,
		c.PollIntervalSeconds, c.HeadersJSON, c.Enabled, c.UseDurationPolling, c.CreatedAt)
	return err
}

// UpdateConnection writes the admin-owned attributes only; engine-owned
// polling state is untouched.
func (db *DB) UpdateConnection(ctx context.Context, c *Connection) error {
	tag, err := db.Pool.Exec(ctx, `
		UPDATE now_playing_connections SET
			station_id = $2, payload_mapping_id = $3, name = $4, connection_type = $5,
			url = $6, poll_interval_seconds = $7, headers_json = $8, enabled = $9,
			use_duration_polling = $10, updated_at = now()
		WHERE id = $1
	`, c.ID, c.StationID, c.PayloadMappingID, c.Name, c.ConnectionType,
		c.URL, c.PollIntervalSeconds, c.HeadersJSON, c.Enabled, c.UseDurationPolling)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (db *DB) DeleteConnection(ctx context.Context, id uuid.UUID) error {
	tag, err := db.Pool.Exec(ctx, `DELETE FROM now_playing_connections WHERE id = $1`, id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// SetConnectionEnabled flips the enabled flag. Re-enabling clears any
// scheduled next_poll_at so the next supervisor tick polls immediately.
func (db *DB) SetConnectionEnabled(ctx context.Context, id uuid.UUID, enabled bool) error {
	tag, err := db.Pool.Exec(ctx, `
		UPDATE now_playing_connections
		SET enabled = $2,
		    next_poll_at = CASE WHEN $2 THEN NULL ELSE next_poll_at END,
		    updated_at = now()
		WHERE id = $1
	`, id, enabled)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// PollingStateUpdate is the engine-owned column set written after a poll
// outcome (success, fetch error, or rejected event).
type PollingStateUpdate struct {
	LastPolledAt           time.Time
	NextPollAt             time.Time
	LastStatus             string
	LastError              *string
	ErrorBackoffSeconds    int
	SameSongBackoffSeconds int
}

// UpdateConnectionPollingState writes the poll outcome for a connection.
// Concurrent pollers are last-write-wins at the row level.
func (db *DB) UpdateConnectionPollingState(ctx context.Context, id uuid.UUID, u PollingStateUpdate) error {
	_, err := db.Pool.Exec(ctx, `
		UPDATE now_playing_connections SET
			last_polled_at = $2, next_poll_at = $3, last_status = $4, last_error = $5,
			error_backoff_seconds = $6, same_song_backoff_seconds = $7, updated_at = now()
		WHERE id = $1
	`, id, u.LastPolledAt, u.NextPollAt, u.LastStatus, u.LastError,
		u.ErrorBackoffSeconds, u.SameSongBackoffSeconds)
	return err
}

// UpdateConnectionStatus writes only last_status/last_error. Used by the WS
// listener for connection lifecycle transitions.
func (db *DB) UpdateConnectionStatus(ctx context.Context, id uuid.UUID, status *string, lastError *string) error {
	_, err := db.Pool.Exec(ctx, `
		UPDATE now_playing_connections
		SET last_status = $2, last_error = $3, updated_at = now()
		WHERE id = $1
	`, id, status, lastError)
	return err
}
