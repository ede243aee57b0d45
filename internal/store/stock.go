package store

import (
	"database/sql"
	"fmt"
	"time"

	"github.com/adrotate/suffixcore/internal/model"
)

// CountAvailableStock returns the number of available, non-deleted stock
// items for (userId, campaignId).
func (s *Store) CountAvailableStock(userID, campaignID string) (int, error) {
	var n int
	err := s.db.QueryRow(`
		SELECT COUNT(*) FROM suffix_stock_items
		WHERE user_id = ? AND campaign_id = ? AND status = 'available' AND deleted_at IS NULL`,
		userID, campaignID).Scan(&n)
	return n, err
}

// CountConsumedSince returns the number of items consumed at or after since,
// feeding the dynamic-watermark C24 calculation (spec.md §4.D).
func (s *Store) CountConsumedSince(userID, campaignID string, since time.Time) (int, error) {
	var n int
	err := s.db.QueryRow(`
		SELECT COUNT(*) FROM suffix_stock_items
		WHERE user_id = ? AND campaign_id = ? AND status = 'consumed' AND consumed_at >= ?`,
		userID, campaignID, since).Scan(&n)
	return n, err
}

// InsertStockItems bulk-inserts newly produced items as available, inside
// one transaction (spec.md §4.D step 5).
func (s *Store) InsertStockItems(items []model.SuffixStockItem, now time.Time) error {
	if len(items) == 0 {
		return nil
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	tx, err := s.db.Begin()
	if err != nil {
		return err
	}
	defer tx.Rollback()

	stmt, err := tx.Prepare(`
		INSERT INTO suffix_stock_items
		       (user_id, campaign_id, suffix, status, exit_ip, source_link_id, created_at, updated_at)
		VALUES (?, ?, ?, 'available', ?, ?, ?, ?)`)
	if err != nil {
		return err
	}
	defer stmt.Close()

	for _, it := range items {
		if _, err := stmt.Exec(it.UserID, it.CampaignID, it.Suffix, it.ExitIP, it.SourceLinkID, now, now); err != nil {
			return fmt.Errorf("insert stock item: %w", err)
		}
	}
	return tx.Commit()
}

// AllocateOldestAvailable flips the oldest available item for (userId,
// campaignId) to leased and returns it, using a conditional UPDATE keyed on
// the row's current status so two concurrent allocations can't both win the
// same row (spec.md §5's double-allocation guard).
func (s *Store) AllocateOldestAvailable(userID, campaignID string, now time.Time) (*model.SuffixStockItem, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var id int64
	err := s.db.QueryRow(`
		SELECT id FROM suffix_stock_items
		WHERE user_id = ? AND campaign_id = ? AND status = 'available' AND deleted_at IS NULL
		ORDER BY created_at ASC, id ASC LIMIT 1`, userID, campaignID).Scan(&id)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}

	res, err := s.db.Exec(`
		UPDATE suffix_stock_items SET status = 'leased', leased_at = ?, updated_at = ?
		WHERE id = ? AND status = 'available'`, now, now, id)
	if err != nil {
		return nil, err
	}
	n, _ := res.RowsAffected()
	if n == 0 {
		// Lost the race to a concurrent allocation; reported like an
		// empty stock (the lease engine answers NO_STOCK).
		return nil, ErrNotFound
	}

	return s.getStockItemByID(id)
}

func (s *Store) getStockItemByID(id int64) (*model.SuffixStockItem, error) {
	row := s.db.QueryRow(`
		SELECT id, user_id, campaign_id, suffix, status, exit_ip, source_link_id,
		       leased_at, consumed_at, expired_at, deleted_at, created_at, updated_at
		FROM suffix_stock_items WHERE id = ?`, id)
	var it model.SuffixStockItem
	if err := row.Scan(&it.ID, &it.UserID, &it.CampaignID, &it.Suffix, &it.Status,
		&it.ExitIP, &it.SourceLinkID, &it.LeasedAt, &it.ConsumedAt, &it.ExpiredAt,
		&it.DeletedAt, &it.CreatedAt, &it.UpdatedAt); err != nil {
		if err == sql.ErrNoRows {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return &it, nil
}

// MarkStockConsumedTx flips a stock item to consumed, inside an existing
// transaction (used by the lease engine's atomic commit).
func MarkStockConsumedTx(tx *sql.Tx, stockItemID int64, now time.Time) error {
	_, err := tx.Exec(`
		UPDATE suffix_stock_items SET status = 'consumed', consumed_at = ?, updated_at = ?
		WHERE id = ?`, now, now, stockItemID)
	return err
}

// RecycleStockItemTx restores a stock item to available (ack-failure path),
// clearing leased_at, inside an existing transaction.
func RecycleStockItemTx(tx *sql.Tx, stockItemID int64, now time.Time) error {
	_, err := tx.Exec(`
		UPDATE suffix_stock_items SET status = 'available', leased_at = NULL, updated_at = ?
		WHERE id = ?`, now, stockItemID)
	return err
}

// ExpireAgedStock marks available stock older than cutoff as expired and
// soft-deletes it (spec.md §4.G stock aging, every hour, TTL 48h).
func (s *Store) ExpireAgedStock(cutoff, now time.Time) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	res, err := s.db.Exec(`
		UPDATE suffix_stock_items
		SET status = 'expired', expired_at = ?, deleted_at = ?, updated_at = ?
		WHERE status = 'available' AND created_at < ? AND deleted_at IS NULL`,
		now, now, now, cutoff)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

// BeginTx exposes the underlying *sql.DB's transaction boundary to callers
// (the lease engine) that must span two repository methods atomically.
func (s *Store) BeginTx() (*sql.Tx, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.db.Begin()
}
