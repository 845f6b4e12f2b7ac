package database

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
)

func (db *DB) ListMappings(ctx context.Context) ([]PayloadMapping, error) {
	rows, err := db.Pool.Query(ctx, `
		SELECT id, name, description, mapping_json, created_at, updated_at
		FROM payload_mappings
		ORDER BY name
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var mappings []PayloadMapping
	for rows.Next() {
		var m PayloadMapping
		if err := rows.Scan(&m.ID, &m.Name, &m.Description, &m.MappingJSON, &m.CreatedAt, &m.UpdatedAt); err != nil {
			return nil, err
		}
		mappings = append(mappings, m)
	}
	return mappings, rows.Err()
}

func (db *DB) GetMapping(ctx context.Context, id uuid.UUID) (*PayloadMapping, error) {
	var m PayloadMapping
	err := db.Pool.QueryRow(ctx, `
		SELECT id, name, description, mapping_json, created_at, updated_at
		FROM payload_mappings
		WHERE id = $1
	`, id).Scan(&m.ID, &m.Name, &m.Description, &m.MappingJSON, &m.CreatedAt, &m.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &m, nil
}

func (db *DB) InsertMapping(ctx context.Context, m *PayloadMapping) error {
	_, err := db.Pool.Exec(ctx, `
		INSERT INTO payload_mappings (id, name, description, mapping_json, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $5)
	`, m.ID, m.Name, m.Description, m.MappingJSON, m.CreatedAt)
	return err
}

func (db *DB) UpdateMapping(ctx context.Context, m *PayloadMapping) error {
	tag, err := db.Pool.Exec(ctx, `
		UPDATE payload_mappings
		SET name = $2, description = $3, mapping_json = $4, updated_at = now()
		WHERE id = $1
	`, m.ID, m.Name, m.Description, m.MappingJSON)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// DeleteMapping removes a mapping; referencing connections keep running
// with payload_mapping_id set to NULL (best-effort extraction).
func (db *DB) DeleteMapping(ctx context.Context, id uuid.UUID) error {
	tag, err := db.Pool.Exec(ctx, `DELETE FROM payload_mappings WHERE id = $1`, id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}
