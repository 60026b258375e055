package postgres

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"docgen/internal/model"
	"docgen/internal/repository"
)

// RegistryPostgres is a PostgreSQL implementation of repository.RegistryStore.
// The whole registry lives in one row of the registry_state key-value table.
type RegistryPostgres struct {
	db  *sql.DB
	key string
}

// NewRegistryPostgres creates a new RegistryPostgres store for the given logical key.
func NewRegistryPostgres(db *sql.DB, key string) *RegistryPostgres {
	if key == "" {
		key = repository.DefaultKey
	}
	return &RegistryPostgres{db: db, key: key}
}

var _ repository.RegistryStore = (*RegistryPostgres)(nil)

// Load reads the saved registry. A missing row is an empty registry.
func (r *RegistryPostgres) Load(ctx context.Context) ([]model.Document, error) {
	const q = `SELECT value FROM registry_state WHERE key = $1`
	var raw []byte
	if err := r.db.QueryRowContext(ctx, q, r.key).Scan(&raw); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return []model.Document{}, nil
		}
		return nil, err
	}
	return repository.DecodeDocuments(raw)
}

// Save upserts the registry row.
func (r *RegistryPostgres) Save(ctx context.Context, docs []model.Document) error {
	data, err := repository.EncodeDocuments(docs)
	if err != nil {
		return err
	}
	const q = `
		INSERT INTO registry_state (key, value, updated_at)
		VALUES ($1, $2, $3)
		ON CONFLICT (key) DO UPDATE SET value = EXCLUDED.value, updated_at = EXCLUDED.updated_at
	`
	_, err = r.db.ExecContext(ctx, q, r.key, data, time.Now().UTC())
	return err
}

// Ping checks database connectivity.
func (r *RegistryPostgres) Ping(ctx context.Context) error {
	return r.db.PingContext(ctx)
}
