package store

import (
	"database/sql"
	"time"

	"github.com/adrotate/suffixcore/internal/model"
)

// EffectiveAffiliateLink returns the highest-priority enabled non-deleted
// link for (userId, campaignId) — "the effective link" per spec.md §3.
func (s *Store) EffectiveAffiliateLink(userID, campaignID string) (*model.AffiliateLink, error) {
	row := s.db.QueryRow(`
		SELECT id, user_id, campaign_id, target_url, enabled, priority, deleted_at, created_at, updated_at
		FROM affiliate_links
		WHERE user_id = ? AND campaign_id = ? AND enabled = 1 AND deleted_at IS NULL
		ORDER BY priority DESC, id ASC LIMIT 1`, userID, campaignID)

	var l model.AffiliateLink
	if err := row.Scan(&l.ID, &l.UserID, &l.CampaignID, &l.TargetURL, &l.Enabled,
		&l.Priority, &l.DeletedAt, &l.CreatedAt, &l.UpdatedAt); err != nil {
		if err == sql.ErrNoRows {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return &l, nil
}

// InsertAffiliateLink inserts a new link for (userId, campaignId).
func (s *Store) InsertAffiliateLink(l model.AffiliateLink, now time.Time) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	res, err := s.db.Exec(`
		INSERT INTO affiliate_links (user_id, campaign_id, target_url, enabled, priority, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)`,
		l.UserID, l.CampaignID, l.TargetURL, l.Enabled, l.Priority, now, now)
	if err != nil {
		return 0, err
	}
	return res.LastInsertId()
}
