package database

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
)

func (db *DB) ListStations(ctx context.Context) ([]Station, error) {
	rows, err := db.Pool.Query(ctx, `
		SELECT id, name, callsign, website_url, created_at, updated_at
		FROM stations
		ORDER BY name
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var stations []Station
	for rows.Next() {
		var s Station
		if err := rows.Scan(&s.ID, &s.Name, &s.Callsign, &s.WebsiteURL, &s.CreatedAt, &s.UpdatedAt); err != nil {
			return nil, err
		}
		stations = append(stations, s)
	}
	return stations, rows.Err()
}

func (db *DB) GetStation(ctx context.Context, id uuid.UUID) (*Station, error) {
	var s Station
	err := db.Pool.QueryRow(ctx, `
		SELECT id, name, callsign, website_url, created_at, updated_at
		FROM stations
		WHERE id = $1
	`, id).Scan(&s.ID, &s.Name, &s.Callsign, &s.WebsiteURL, &s.CreatedAt, &s.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &s, nil
}

func (db *DB) InsertStation(ctx context.Context, s *Station) error {
	_, err := db.Pool.Exec(ctx, `
		INSERT INTO stations (id, name, callsign, website_url, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $5)
	`, s.ID, s.Name, s.Callsign, s.WebsiteURL, s.CreatedAt)
	return err
}

func (db *DB) UpdateStation(ctx context.Context, s *Station) error {
	tag, err := db.Pool.Exec(ctx, `
		UPDATE stations
		SET name = $2, callsign = $3, website_url = $4, updated_at = now()
		WHERE id = $1
	`, s.ID, s.Name, s.Callsign, s.WebsiteURL)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// DeleteStation removes a station; connections and events cascade.
func (db *DB) DeleteStation(ctx context.Context, id uuid.UUID) error {
	tag, err := db.Pool.Exec(ctx, `DELETE FROM stations WHERE id = $1`, id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}
