package store

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/adrotate/suffixcore/internal/model"
)

// ListProxyProvidersForUser returns enabled providers assigned to userID (or
// assigned to no one, i.e. global), ordered by priority ascending (spec.md
// §4.B: "ordered by priority ascending", "lower wins").
func (s *Store) ListProxyProvidersForUser(userID string) ([]model.ProxyProvider, error) {
	rows, err := s.db.Query(`
		SELECT id, host, port, priority, username_template, password, enabled,
		       assigned_user_ids_json, created_at, updated_at
		FROM proxy_providers WHERE enabled = 1 ORDER BY priority ASC, id ASC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []model.ProxyProvider
	for rows.Next() {
		var p model.ProxyProvider
		var assignedJSON string
		if err := rows.Scan(&p.ID, &p.Host, &p.Port, &p.Priority, &p.UsernameTemplate,
			&p.Password, &p.Enabled, &assignedJSON, &p.CreatedAt, &p.UpdatedAt); err != nil {
			return nil, err
		}
		var assigned []string
		if err := json.Unmarshal([]byte(assignedJSON), &assigned); err != nil {
			return nil, fmt.Errorf("decode proxy %d assigned_user_ids: %w", p.ID, err)
		}
		p.AssignedUserIDs = assigned
		if len(assigned) == 0 || containsUser(assigned, userID) {
			out = append(out, p)
		}
	}
	return out, rows.Err()
}

func containsUser(ids []string, userID string) bool {
	for _, id := range ids {
		if id == userID {
			return true
		}
	}
	return false
}

// UpsertProxyProvider inserts or updates a provider by id (id=0 inserts).
func (s *Store) UpsertProxyProvider(p model.ProxyProvider, now time.Time) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	assignedJSON, err := json.Marshal(p.AssignedUserIDs)
	if err != nil {
		return 0, err
	}

	if p.ID == 0 {
		res, err := s.db.Exec(`
			INSERT INTO proxy_providers
			       (host, port, priority, username_template, password, enabled,
			        assigned_user_ids_json, created_at, updated_at)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			p.Host, p.Port, p.Priority, p.UsernameTemplate, p.Password, p.Enabled,
			string(assignedJSON), now, now)
		if err != nil {
			return 0, err
		}
		return res.LastInsertId()
	}

	_, err = s.db.Exec(`
		UPDATE proxy_providers SET host = ?, port = ?, priority = ?, username_template = ?,
		       password = ?, enabled = ?, assigned_user_ids_json = ?, updated_at = ?
		WHERE id = ?`,
		p.Host, p.Port, p.Priority, p.UsernameTemplate, p.Password, p.Enabled,
		string(assignedJSON), now, p.ID)
	return p.ID, err
}

// --- exit-IP dedup ledger ---

// IsExitIPUsed reports whether exitIP was recorded for (userId, campaignId)
// within the last 24h (spec.md §4.B step 4, §3 ProxyExitIpUsage invariant).
func (s *Store) IsExitIPUsed(userID, campaignID, exitIP string, now time.Time) (bool, error) {
	var n int
	err := s.db.QueryRow(`
		SELECT COUNT(*) FROM proxy_exit_ip_usages
		WHERE user_id = ? AND campaign_id = ? AND exit_ip = ? AND expires_at > ?`,
		userID, campaignID, exitIP, now).Scan(&n)
	return n > 0, err
}

// RecordExitIPUsage inserts a dedup row with a 24h expiry. The fallback
// connectivity-probe path must never call this (spec.md §4.B, §9 Open
// Questions) — its synthetic "unknown" exit IP is never passed here.
func (s *Store) RecordExitIPUsage(userID, campaignID, exitIP string, now time.Time, ttl time.Duration) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, err := s.db.Exec(`
		INSERT INTO proxy_exit_ip_usages (user_id, campaign_id, exit_ip, used_at, expires_at)
		VALUES (?, ?, ?, ?, ?)`, userID, campaignID, exitIP, now, now.Add(ttl))
	return err
}

// ReapExpiredExitIPUsages deletes usage rows past their expiry (spec.md
// §4.G exit-IP reaper).
func (s *Store) ReapExpiredExitIPUsages(now time.Time) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	res, err := s.db.Exec(`DELETE FROM proxy_exit_ip_usages WHERE expires_at < ?`, now)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}
