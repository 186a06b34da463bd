package persistence

import (
	"context"
	"database/sql"
	"errors"
	"time"
)

// PostgresDedupStore is the second idempotency tier: it answers whether a
// composite command key was already accepted, from the input log.
type PostgresDedupStore struct {
	db      *sql.DB
	timeout time.Duration
}

func NewPostgresDedupStore(db *sql.DB) *PostgresDedupStore {
	return &PostgresDedupStore{db: db, timeout: 500 * time.Millisecond}
}

// IsDuplicate reports whether a command with compositeKey was accepted.
// Rejected commands are logged too but may be retried under the same key.
func (s *PostgresDedupStore) IsDuplicate(compositeKey string) (bool, error) {
	ctx, cancel := context.WithTimeout(context.Background(), s.timeout)
	defer cancel()

	var exists int
	err := s.db.QueryRowContext(ctx, `
		SELECT 1
		FROM event_log.commands
		WHERE command_key = $1 AND error IS NULL
		LIMIT 1
	`, compositeKey).Scan(&exists)

	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}
