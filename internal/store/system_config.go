package store

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/adrotate/suffixcore/internal/config"
)

// GetSystemConfig loads the persisted runtime config and its optimistic-lock
// version. Returns nil config and version 0 if no row exists yet.
func (s *Store) GetSystemConfig() (*config.RuntimeConfig, int, error) {
	row := s.db.QueryRow(`SELECT config_json, version FROM system_config WHERE id = 1`)
	var configJSON string
	var version int
	if err := row.Scan(&configJSON, &version); err != nil {
		if err == sql.ErrNoRows {
			return nil, 0, nil
		}
		return nil, 0, fmt.Errorf("scan system_config: %w", err)
	}
	cfg := &config.RuntimeConfig{}
	if err := json.Unmarshal([]byte(configJSON), cfg); err != nil {
		return nil, 0, fmt.Errorf("unmarshal system_config: %w", err)
	}
	return cfg, version, nil
}

// SaveSystemConfig upserts the runtime config with a bumped version.
func (s *Store) SaveSystemConfig(cfg *config.RuntimeConfig, version int, now time.Time) error {
	data, err := json.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("marshal system_config: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	_, err = s.db.Exec(`
		INSERT INTO system_config (id, config_json, version, updated_at)
		VALUES (1, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			config_json = excluded.config_json,
			version     = excluded.version,
			updated_at  = excluded.updated_at`,
		string(data), version, now)
	return err
}
