package database

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
)

const eventColumns = `id, station_id, connection_id, observed_at, reported_at,
	reported_artist, reported_title, reported_album, raw_payload, payload_hash,
	http_status, content_type, created_at`

func scanEvent(row pgx.Row) (*RawNowPlayingEvent, error) {
	var e RawNowPlayingEvent
	err := row.Scan(
		&e.ID, &e.StationID, &e.ConnectionID, &e.ObservedAt, &e.ReportedAt,
		&e.ReportedArtist, &e.ReportedTitle, &e.ReportedAlbum, &e.RawPayload, &e.PayloadHash,
		&e.HTTPStatus, &e.ContentType, &e.CreatedAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &e, nil
}

// LatestEventForConnection returns the most recent event by observed_at,
// or nil when the connection has no events yet.
func (db *DB) LatestEventForConnection(ctx context.Context, connectionID uuid.UUID) (*RawNowPlayingEvent, error) {
	e, err := scanEvent(db.Pool.QueryRow(ctx, `
		SELECT `+eventColumns+`
		FROM raw_now_playing_events
		WHERE connection_id = $1
		ORDER BY observed_at DESC
		LIMIT 1
	`, connectionID))
	if errors.Is(err, ErrNotFound) {
		return nil, nil
	}
	return e, err
}

func (db *DB) InsertEvent(ctx context.Context, e RawNowPlayingEvent) error {
	_, err := db.Pool.Exec(ctx, `
		INSERT INTO raw_now_playing_events (
			id, station_id, connection_id, observed_at, reported_at,
			reported_artist, reported_title, reported_album, raw_payload, payload_hash,
			http_status, content_type, created_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)
	`, e.ID, e.StationID, e.ConnectionID, e.ObservedAt, e.ReportedAt,
		e.ReportedArtist, e.ReportedTitle, e.ReportedAlbum, e.RawPayload, e.PayloadHash,
		e.HTTPStatus, e.ContentType, e.CreatedAt)
	return err
}

// EventFilter narrows event listing and bulk deletion.
type EventFilter struct {
	StationID    *uuid.UUID
	ConnectionID *uuid.UUID
}

func (f EventFilter) where() (string, []any) {
	clause := ""
	var args []any
	add := func(cond string, val any) {
		args = append(args, val)
		if clause == "" {
			clause = " WHERE "
		} else {
			clause += " AND "
		}
		clause += fmt.Sprintf(cond, len(args))
	}
	if f.StationID != nil {
		add("station_id = $%d", *f.StationID)
	}
	if f.ConnectionID != nil {
		add("connection_id = $%d", *f.ConnectionID)
	}
	return clause, args
}

// ListEvents returns events newest-first, paginated.
func (db *DB) ListEvents(ctx context.Context, f EventFilter, limit, offset int) ([]RawNowPlayingEvent, error) {
	clause, args := f.where()
	args = append(args, limit, offset)
	query := fmt.Sprintf(`
		SELECT %s
		FROM raw_now_playing_events%s
		ORDER BY observed_at DESC
		LIMIT $%d OFFSET $%d
	`, eventColumns, clause, len(args)-1, len(args))

	rows, err := db.Pool.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var events []RawNowPlayingEvent
	for rows.Next() {
		e, err := scanEvent(rows)
		if err != nil {
			return nil, err
		}
		events = append(events, *e)
	}
	return events, rows.Err()
}

func (db *DB) GetEvent(ctx context.Context, id uuid.UUID) (*RawNowPlayingEvent, error) {
	return scanEvent(db.Pool.QueryRow(ctx, `
		SELECT `+eventColumns+`
		FROM raw_now_playing_events
		WHERE id = $1
	`, id))
}

// DeleteEvents bulk-deletes events matching the filter and returns the
// number of rows removed.
func (db *DB) DeleteEvents(ctx context.Context, f EventFilter) (int64, error) {
	clause, args := f.where()
	tag, err := db.Pool.Exec(ctx, `DELETE FROM raw_now_playing_events`+clause, args...)
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}
