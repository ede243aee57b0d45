package store

import (
	"time"

	"github.com/adrotate/suffixcore/internal/model"
)

// InsertAlert persists one recovery-service finding (spec.md §4.G).
func (s *Store) InsertAlert(a model.Alert, now time.Time) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if a.MetadataJSON == "" {
		a.MetadataJSON = "{}"
	}
	res, err := s.db.Exec(`
		INSERT INTO alerts (type, level, title, message, metadata_json, acknowledged, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, 0, ?, ?)`,
		a.Type, a.Level, a.Title, a.Message, a.MetadataJSON, now, now)
	if err != nil {
		return 0, err
	}
	return res.LastInsertId()
}

// CountAuditActionSince counts audit-log rows of the given action at or
// after since, for the no_stock_frequent rule ("≥10 times in 24h").
func (s *Store) CountAuditActionSince(action string, since time.Time) (int, error) {
	var n int
	err := s.db.QueryRow(`
		SELECT COUNT(*) FROM production_audit_log WHERE action = ? AND started_at >= ?`,
		action, since).Scan(&n)
	return n, err
}

// ListUnacknowledgedAlerts returns open alerts, newest first.
func (s *Store) ListUnacknowledgedAlerts() ([]model.Alert, error) {
	rows, err := s.db.Query(`
		SELECT id, type, level, title, message, metadata_json, acknowledged, created_at, updated_at
		FROM alerts WHERE acknowledged = 0 ORDER BY created_at DESC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []model.Alert
	for rows.Next() {
		var a model.Alert
		if err := rows.Scan(&a.ID, &a.Type, &a.Level, &a.Title, &a.Message, &a.MetadataJSON,
			&a.Acknowledged, &a.CreatedAt, &a.UpdatedAt); err != nil {
			return nil, err
		}
		out = append(out, a)
	}
	return out, rows.Err()
}

// AcknowledgeAlert marks an alert acknowledged.
func (s *Store) AcknowledgeAlert(id int64, now time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	res, err := s.db.Exec(`UPDATE alerts SET acknowledged = 1, updated_at = ? WHERE id = ?`, now, id)
	if err != nil {
		return err
	}
	n, _ := res.RowsAffected()
	if n == 0 {
		return ErrNotFound
	}
	return nil
}
