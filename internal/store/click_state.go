package store

import (
	"database/sql"
	"time"

	"github.com/adrotate/suffixcore/internal/model"
)

// GetClickState returns the click-state row for (userId, campaignId).
func (s *Store) GetClickState(userID, campaignID string) (*model.CampaignClickState, error) {
	row := s.db.QueryRow(`
		SELECT id, user_id, campaign_id, last_applied_clicks, last_observed_clicks,
		       last_observed_at, updated_at
		FROM campaign_click_states WHERE user_id = ? AND campaign_id = ?`, userID, campaignID)

	var c model.CampaignClickState
	if err := row.Scan(&c.ID, &c.UserID, &c.CampaignID, &c.LastAppliedClicks,
		&c.LastObservedClicks, &c.LastObservedAt, &c.UpdatedAt); err != nil {
		if err == sql.ErrNoRows {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return &c, nil
}

// CreateClickState creates the initial row for a campaign never seen before
// (spec.md §4.E step 3): lastAppliedClicks=0, lastObservedClicks=nowClicks.
func (s *Store) CreateClickState(userID, campaignID string, nowClicks int64, observedAt, now time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, err := s.db.Exec(`
		INSERT INTO campaign_click_states
		       (user_id, campaign_id, last_applied_clicks, last_observed_clicks, last_observed_at, updated_at)
		VALUES (?, ?, 0, ?, ?, ?)`,
		userID, campaignID, nowClicks, observedAt, now)
	return err
}

// RefreshObservation updates last_observed_clicks/last_observed_at without
// touching last_applied_clicks (the non-reset branch of step 3).
func (s *Store) RefreshObservation(userID, campaignID string, nowClicks int64, observedAt, now time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, err := s.db.Exec(`
		UPDATE campaign_click_states
		SET last_observed_clicks = ?, last_observed_at = ?, updated_at = ?
		WHERE user_id = ? AND campaign_id = ?`,
		nowClicks, observedAt, now, userID, campaignID)
	return err
}

// ResetDailyApplied zeroes last_applied_clicks on a detected new-day reset,
// alongside refreshing the observation fields.
func (s *Store) ResetDailyApplied(userID, campaignID string, nowClicks int64, observedAt, now time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, err := s.db.Exec(`
		UPDATE campaign_click_states
		SET last_applied_clicks = 0, last_observed_clicks = ?, last_observed_at = ?, updated_at = ?
		WHERE user_id = ? AND campaign_id = ?`,
		nowClicks, observedAt, now, userID, campaignID)
	return err
}

// BumpAppliedClicks sets last_applied_clicks = max(last_applied_clicks, nowClicks)
// using a single conditional UPDATE, the GREATEST-style monotone bump spec.md
// §5 requires so reordered concurrent commits can't move it backwards.
func (s *Store) BumpAppliedClicks(userID, campaignID string, nowClicks int64, now time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, err := s.db.Exec(`
		UPDATE campaign_click_states
		SET last_applied_clicks = MAX(last_applied_clicks, ?), updated_at = ?
		WHERE user_id = ? AND campaign_id = ?`,
		nowClicks, now, userID, campaignID)
	return err
}

// BumpAppliedClicksTx is BumpAppliedClicks run inside an existing
// transaction, for the lease engine's combined-commit policy (spec.md §4.E
// step 5) where the applied-clicks bump must land atomically with the lease
// insert and stock consume.
func BumpAppliedClicksTx(tx *sql.Tx, userID, campaignID string, nowClicks int64, now time.Time) error {
	_, err := tx.Exec(`
		UPDATE campaign_click_states
		SET last_applied_clicks = MAX(last_applied_clicks, ?), updated_at = ?
		WHERE user_id = ? AND campaign_id = ?`,
		nowClicks, now, userID, campaignID)
	return err
}
