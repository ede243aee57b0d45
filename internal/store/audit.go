package store

import (
	"github.com/adrotate/suffixcore/internal/model"
)

// InsertAuditEntry records one stock-producer run (spec.md §3.1 supplement).
func (s *Store) InsertAuditEntry(e model.ProductionAuditLogEntry) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, err := s.db.Exec(`
		INSERT INTO production_audit_log
		       (user_id, campaign_id, action, requested, produced, failed,
		        trigger_reason, started_at, finished_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		e.UserID, e.CampaignID, e.Action, e.Requested, e.Produced, e.Failed,
		e.TriggerReason, e.StartedAt, e.FinishedAt)
	return err
}
