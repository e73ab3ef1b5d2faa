// Package postgres backs the blob store contract with a single-table
// Postgres schema. Each blob lives in one row; Put upserts the whole value.
package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/jmoiron/sqlx"
	"github.com/vadimbarashkov/affiliate-publisher/internal/storage"
)

type Store struct {
	db *sqlx.DB
}

func New(db *sqlx.DB) *Store {
	return &Store{
		db: db,
	}
}

func (s *Store) Get(ctx context.Context, key string) ([]byte, error) {
	const op = "storage.postgres.Store.Get"

	var data []byte
	query := `SELECT data FROM blobs WHERE key = $1`

	err := s.db.GetContext(ctx, &data, query, key)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("%s: %w", op, storage.ErrNotFound)
		}

		return nil, fmt.Errorf("%s: failed to get blob: %w", op, err)
	}

	return data, nil
}

func (s *Store) Put(ctx context.Context, key string, data []byte) error {
	const op = "storage.postgres.Store.Put"

	query := `INSERT INTO blobs(key, data)
		VALUES ($1, $2)
		ON CONFLICT (key) DO UPDATE
		SET data = EXCLUDED.data, updated_at = now()`

	if _, err := s.db.ExecContext(ctx, query, key, data); err != nil {
		return fmt.Errorf("%s: failed to put blob: %w", op, err)
	}

	return nil
}

func (s *Store) Delete(ctx context.Context, key string) error {
	const op = "storage.postgres.Store.Delete"

	res, err := s.db.ExecContext(ctx, `DELETE FROM blobs WHERE key = $1`, key)
	if err != nil {
		return fmt.Errorf("%s: failed to delete blob: %w", op, err)
	}

	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("%s: failed to get affected rows: %w", op, err)
	}
	if affected == 0 {
		return fmt.Errorf("%s: %w", op, storage.ErrNotFound)
	}

	return nil
}
