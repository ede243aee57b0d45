package store

import (
	"database/sql"
	"fmt"
	"time"

	"github.com/adrotate/suffixcore/internal/model"
)

// GetAPIKeyByHash resolves a presented Bearer token's SHA-256 hash to the
// enabled key that owns it (spec.md §6's auth requirement). Disabled keys
// never match, so revocation is a single UPDATE rather than a delete.
func (s *Store) GetAPIKeyByHash(keyHash string) (*model.ApiKey, error) {
	row := s.db.QueryRow(`
		SELECT id, user_id, key_hash, label, enabled, created_at, updated_at
		FROM api_keys WHERE key_hash = ? AND enabled = 1`, keyHash)

	var k model.ApiKey
	var enabled int
	if err := row.Scan(&k.ID, &k.UserID, &k.KeyHash, &k.Label, &enabled, &k.CreatedAt, &k.UpdatedAt); err != nil {
		if err == sql.ErrNoRows {
			return nil, ErrNotFound
		}
		return nil, err
	}
	k.Enabled = enabled != 0
	return &k, nil
}

// InsertAPIKey provisions a new hashed key for a user. There is no endpoint
// exposing this — it exists for operator-run bootstrap/seed tooling, since
// key issuance itself belongs to the out-of-scope account layer.
func (s *Store) InsertAPIKey(userID, keyHash, label string, now time.Time) (*model.ApiKey, error) {
	res, err := s.db.Exec(`
		INSERT INTO api_keys (user_id, key_hash, label, enabled, created_at, updated_at)
		VALUES (?, ?, ?, 1, ?, ?)`, userID, keyHash, label, now, now)
	if err != nil {
		return nil, fmt.Errorf("insert api key: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return nil, err
	}
	return &model.ApiKey{
		ID: id, UserID: userID, KeyHash: keyHash, Label: label,
		Enabled: true, CreatedAt: now, UpdatedAt: now,
	}, nil
}

// RevokeAPIKey disables a key so it can no longer authenticate requests.
func (s *Store) RevokeAPIKey(id int64, now time.Time) error {
	res, err := s.db.Exec(`UPDATE api_keys SET enabled = 0, updated_at = ? WHERE id = ?`, now, id)
	if err != nil {
		return fmt.Errorf("revoke api key: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}
