package store

import (
	"database/sql"
	"fmt"
	"time"

	"github.com/adrotate/suffixcore/internal/model"
)

// GetCampaign returns the live (non-deleted) campaign for (userId, campaignId).
func (s *Store) GetCampaign(userID, campaignID string) (*model.Campaign, error) {
	row := s.db.QueryRow(`
		SELECT id, user_id, campaign_id, name, country_code, final_url,
		       external_cid, external_mccid, status, deleted_at, created_at, updated_at
		FROM campaigns WHERE user_id = ? AND campaign_id = ? AND deleted_at IS NULL`,
		userID, campaignID)
	return scanCampaign(row)
}

func scanCampaign(row *sql.Row) (*model.Campaign, error) {
	var c model.Campaign
	if err := row.Scan(&c.ID, &c.UserID, &c.CampaignID, &c.Name, &c.CountryCode,
		&c.FinalURL, &c.ExternalCID, &c.ExternalMCCID, &c.Status, &c.DeletedAt,
		&c.CreatedAt, &c.UpdatedAt); err != nil {
		if err == sql.ErrNoRows {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return &c, nil
}

// UpsertCampaignMeta creates the campaign if missing, or updates the fields
// supplied by a lease request's `meta` if present and different. Mirrors the
// lease engine's lazy-upsert step (spec.md §4.E step 2).
func (s *Store) UpsertCampaignMeta(userID, campaignID string, meta model.CampaignMeta, now time.Time) (*model.Campaign, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	existing, err := s.GetCampaign(userID, campaignID)
	if err != nil && err != ErrNotFound {
		return nil, false, err
	}

	now2 := now
	if existing == nil {
		_, err := s.db.Exec(`
			INSERT INTO campaigns (user_id, campaign_id, name, country_code, final_url,
			                        external_cid, external_mccid, status, created_at, updated_at)
			VALUES (?, ?, ?, ?, ?, ?, ?, 'active', ?, ?)`,
			userID, campaignID, meta.CampaignName, meta.Country, meta.FinalURL,
			meta.CID, meta.MCCID, now2, now2)
		if err != nil {
			return nil, false, fmt.Errorf("insert campaign: %w", err)
		}
		c, err := s.GetCampaign(userID, campaignID)
		return c, true, err
	}

	if existing.Name == meta.CampaignName && existing.CountryCode == meta.Country &&
		existing.FinalURL == meta.FinalURL && existing.ExternalCID == meta.CID &&
		existing.ExternalMCCID == meta.MCCID {
		return existing, false, nil
	}

	_, err = s.db.Exec(`
		UPDATE campaigns SET name = ?, country_code = ?, final_url = ?,
		       external_cid = ?, external_mccid = ?, updated_at = ?
		WHERE user_id = ? AND campaign_id = ? AND deleted_at IS NULL`,
		meta.CampaignName, meta.Country, meta.FinalURL, meta.CID, meta.MCCID, now2,
		userID, campaignID)
	if err != nil {
		return nil, false, fmt.Errorf("update campaign: %w", err)
	}
	c, err := s.GetCampaign(userID, campaignID)
	return c, false, err
}

// ListEligibleCampaigns enumerates campaigns eligible for stock production:
// active, non-empty country, with at least one enabled non-deleted link
// (spec.md §4.D's eligibility invariant).
func (s *Store) ListEligibleCampaigns() ([]model.Campaign, error) {
	rows, err := s.db.Query(`
		SELECT c.id, c.user_id, c.campaign_id, c.name, c.country_code, c.final_url,
		       c.external_cid, c.external_mccid, c.status, c.deleted_at, c.created_at, c.updated_at
		FROM campaigns c
		WHERE c.deleted_at IS NULL AND c.status = 'active' AND c.country_code <> ''
		AND EXISTS (
			SELECT 1 FROM affiliate_links l
			WHERE l.user_id = c.user_id AND l.campaign_id = c.campaign_id
			AND l.enabled = 1 AND l.deleted_at IS NULL
		)`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []model.Campaign
	for rows.Next() {
		var c model.Campaign
		if err := rows.Scan(&c.ID, &c.UserID, &c.CampaignID, &c.Name, &c.CountryCode,
			&c.FinalURL, &c.ExternalCID, &c.ExternalMCCID, &c.Status, &c.DeletedAt,
			&c.CreatedAt, &c.UpdatedAt); err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

// ListCampaigns returns the live campaigns for a user among the given ids
// (spec.md §4.I campaign lookup).
func (s *Store) ListCampaigns(userID string, campaignIDs []string) ([]model.Campaign, error) {
	if len(campaignIDs) == 0 {
		return nil, nil
	}
	placeholders := make([]byte, 0, len(campaignIDs)*2)
	args := make([]any, 0, len(campaignIDs)+1)
	args = append(args, userID)
	for i, id := range campaignIDs {
		if i > 0 {
			placeholders = append(placeholders, ',')
		}
		placeholders = append(placeholders, '?')
		args = append(args, id)
	}
	rows, err := s.db.Query(fmt.Sprintf(`
		SELECT id, user_id, campaign_id, name, country_code, final_url,
		       external_cid, external_mccid, status, deleted_at, created_at, updated_at
		FROM campaigns WHERE user_id = ? AND campaign_id IN (%s) AND deleted_at IS NULL`,
		string(placeholders)), args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []model.Campaign
	for rows.Next() {
		var c model.Campaign
		if err := rows.Scan(&c.ID, &c.UserID, &c.CampaignID, &c.Name, &c.CountryCode,
			&c.FinalURL, &c.ExternalCID, &c.ExternalMCCID, &c.Status, &c.DeletedAt,
			&c.CreatedAt, &c.UpdatedAt); err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	return out, rows.Err()
}
