package state

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
)

// PostgresStore keeps every group in a single state_entries table with a
// jsonb value column. It shares the process-wide *sql.DB opened in main.
type PostgresStore struct {
	db *sql.DB
}

func NewPostgresStore(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

func (s *PostgresStore) Get(ctx context.Context, group, key string) (json.RawMessage, error) {
	var value []byte
	err := s.db.QueryRowContext(ctx,
		`SELECT value FROM state_entries WHERE group_name = $1 AND key = $2`,
		group, key,
	).Scan(&value)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("state get %s/%s: %w", group, key, err)
	}
	return json.RawMessage(value), nil
}

func (s *PostgresStore) Set(ctx context.Context, group, key string, value any) error {
	b, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("state set %s/%s: encode: %w", group, key, err)
	}
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO state_entries (group_name, key, value, updated_at)
		 VALUES ($1, $2, $3, now())
		 ON CONFLICT (group_name, key)
		 DO UPDATE SET value = EXCLUDED.value, updated_at = now()`,
		group, key, b,
	)
	if err != nil {
		return fmt.Errorf("state set %s/%s: %w", group, key, err)
	}
	return nil
}

func (s *PostgresStore) Delete(ctx context.Context, group, key string) error {
	_, err := s.db.ExecContext(ctx,
		`DELETE FROM state_entries WHERE group_name = $1 AND key = $2`,
		group, key,
	)
	if err != nil {
		return fmt.Errorf("state delete %s/%s: %w", group, key, err)
	}
	return nil
}

func (s *PostgresStore) ListGroup(ctx context.Context, group string) (map[string]json.RawMessage, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT key, value FROM state_entries WHERE group_name = $1`,
		group,
	)
	if err != nil {
		return nil, fmt.Errorf("state list %s: %w", group, err)
	}
	defer rows.Close()

	out := make(map[string]json.RawMessage)
	for rows.Next() {
		var key string
		var value []byte
		if err := rows.Scan(&key, &value); err != nil {
			return nil, fmt.Errorf("state list %s: %w", group, err)
		}
		out[key] = json.RawMessage(value)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("state list %s: %w", group, err)
	}
	return out, nil
}
