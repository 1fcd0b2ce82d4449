package signature

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	id "cratekeeper/pkg/domain"
	"cratekeeper/pkg/platform/sentinel"
	"cratekeeper/pkg/platform/tx"
)

// PostgresCredentialStore reads password hashes from the users table.
type PostgresCredentialStore struct {
	db *sql.DB
}

func NewPostgresCredentialStore(db *sql.DB) *PostgresCredentialStore {
	return &PostgresCredentialStore{db: db}
}

func (s *PostgresCredentialStore) PasswordHash(ctx context.Context, userID id.UserID) (string, error) {
	q := tx.Resolve(ctx, s.db)
	var hash string
	err := q.QueryRowContext(ctx, `SELECT password_hash FROM users WHERE id = $1`, userID.String()).Scan(&hash)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return "", sentinel.ErrNotFound
		}
		return "", fmt.Errorf("load password hash: %w", err)
	}
	return hash, nil
}
