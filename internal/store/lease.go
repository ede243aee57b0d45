package store

import (
	"database/sql"
	"time"

	"github.com/adrotate/suffixcore/internal/model"
)

// LeaseWithSuffix pairs a lease with its stock item's suffix text, the join
// the lease engine needs on both the idempotency short-circuit and the
// happy-path response (spec.md §4.E step 1, step 7).
type LeaseWithSuffix struct {
	model.SuffixLease
	Suffix string
}

func scanLeaseWithSuffix(row interface {
	Scan(dest ...any) error
}) (*LeaseWithSuffix, error) {
	var l LeaseWithSuffix
	if err := row.Scan(&l.ID, &l.UserID, &l.CampaignID, &l.StockItemID, &l.IdempotencyKey,
		&l.NowClicks, &l.WindowStartEpoch, &l.Status, &l.Applied, &l.ErrorMessage,
		&l.LeasedAt, &l.AckedAt, &l.ExpiredAt, &l.DeletedAt, &l.CreatedAt, &l.UpdatedAt,
		&l.Suffix); err != nil {
		if err == sql.ErrNoRows {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return &l, nil
}

const leaseJoinSuffixSelect = `
	SELECT sl.id, sl.user_id, sl.campaign_id, sl.stock_item_id, sl.idempotency_key,
	       sl.now_clicks, sl.window_start_epoch, sl.status, sl.applied, sl.error_message,
	       sl.leased_at, sl.acked_at, sl.expired_at, sl.deleted_at, sl.created_at, sl.updated_at,
	       si.suffix
	FROM suffix_leases sl JOIN suffix_stock_items si ON si.id = sl.stock_item_id`

// GetLeaseByIdempotencyKey implements the idempotency short-circuit: if a
// lease already exists for (userId, idempotencyKey), return it with its
// stock item's suffix.
func (s *Store) GetLeaseByIdempotencyKey(userID, key string) (*LeaseWithSuffix, error) {
	row := s.db.QueryRow(leaseJoinSuffixSelect+`
		WHERE sl.user_id = ? AND sl.idempotency_key = ? AND sl.deleted_at IS NULL`, userID, key)
	return scanLeaseWithSuffix(row)
}

// GetLease loads a lease by (id, userId, campaignId), live rows only.
func (s *Store) GetLease(id int64, userID, campaignID string) (*model.SuffixLease, error) {
	row := s.db.QueryRow(`
		SELECT id, user_id, campaign_id, stock_item_id, idempotency_key, now_clicks,
		       window_start_epoch, status, applied, error_message, leased_at, acked_at,
		       expired_at, deleted_at, created_at, updated_at
		FROM suffix_leases WHERE id = ? AND user_id = ? AND campaign_id = ? AND deleted_at IS NULL`,
		id, userID, campaignID)

	var l model.SuffixLease
	if err := row.Scan(&l.ID, &l.UserID, &l.CampaignID, &l.StockItemID, &l.IdempotencyKey,
		&l.NowClicks, &l.WindowStartEpoch, &l.Status, &l.Applied, &l.ErrorMessage,
		&l.LeasedAt, &l.AckedAt, &l.ExpiredAt, &l.DeletedAt, &l.CreatedAt, &l.UpdatedAt); err != nil {
		if err == sql.ErrNoRows {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return &l, nil
}

// InsertLeaseConsumedTx inserts a lease already in its terminal consumed
// state, the combined-commit policy's single-transaction write (spec.md
// §4.E step 5). Returns the new lease id.
func InsertLeaseConsumedTx(tx *sql.Tx, l model.SuffixLease, now time.Time) (int64, error) {
	res, err := tx.Exec(`
		INSERT INTO suffix_leases
		       (user_id, campaign_id, stock_item_id, idempotency_key, now_clicks,
		        window_start_epoch, status, applied, leased_at, acked_at, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, 'consumed', 1, ?, ?, ?, ?)`,
		l.UserID, l.CampaignID, l.StockItemID, l.IdempotencyKey, l.NowClicks,
		l.WindowStartEpoch, now, now, now, now)
	if err != nil {
		if isUniqueConstraint(err) {
			return 0, ErrConflict
		}
		return 0, err
	}
	return res.LastInsertId()
}

// InsertLeaseLeasedTx inserts a lease in the pending-ack `leased` state, the
// leave-leased-pending-ack policy variant.
func InsertLeaseLeasedTx(tx *sql.Tx, l model.SuffixLease, now time.Time) (int64, error) {
	res, err := tx.Exec(`
		INSERT INTO suffix_leases
		       (user_id, campaign_id, stock_item_id, idempotency_key, now_clicks,
		        window_start_epoch, status, applied, leased_at, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, 'leased', 0, ?, ?, ?)`,
		l.UserID, l.CampaignID, l.StockItemID, l.IdempotencyKey, l.NowClicks,
		l.WindowStartEpoch, now, now, now)
	if err != nil {
		if isUniqueConstraint(err) {
			return 0, ErrConflict
		}
		return 0, err
	}
	return res.LastInsertId()
}

// MarkLeaseConsumedTx flips a pending lease to consumed/applied (ack success
// path), inside an existing transaction.
func MarkLeaseConsumedTx(tx *sql.Tx, leaseID int64, now time.Time) error {
	_, err := tx.Exec(`
		UPDATE suffix_leases SET status = 'consumed', applied = 1, acked_at = ?, updated_at = ?
		WHERE id = ?`, now, now, leaseID)
	return err
}

// MarkLeaseFailedTx flips a pending lease to failed with a message (ack
// failure path), inside an existing transaction.
func MarkLeaseFailedTx(tx *sql.Tx, leaseID int64, message string, now time.Time) error {
	_, err := tx.Exec(`
		UPDATE suffix_leases SET status = 'failed', applied = 0, error_message = ?,
		       acked_at = ?, updated_at = ?
		WHERE id = ?`, message, now, now, leaseID)
	return err
}

// ExpireStaleLeases flips leases still `leased` past cutoff to `expired` and
// restores their stock items to available (spec.md §4.G lease expiry, every
// 5 minutes, TTL 15m). Each lease is handled in its own transaction so one
// failure doesn't block the rest of the sweep.
func (s *Store) ExpireStaleLeases(cutoff, now time.Time) (int, error) {
	ids, err := s.staleLeaseIDs(cutoff)
	if err != nil {
		return 0, err
	}

	expired := 0
	for _, id := range ids {
		if err := s.expireOneLease(id, now); err != nil {
			continue
		}
		expired++
	}
	return expired, nil
}

func (s *Store) staleLeaseIDs(cutoff time.Time) ([]int64, error) {
	rows, err := s.db.Query(`
		SELECT id FROM suffix_leases WHERE status = 'leased' AND leased_at < ? AND deleted_at IS NULL`, cutoff)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var ids []int64
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

func (s *Store) expireOneLease(leaseID int64, now time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	tx, err := s.db.Begin()
	if err != nil {
		return err
	}
	defer tx.Rollback()

	var stockItemID int64
	if err := tx.QueryRow(`SELECT stock_item_id FROM suffix_leases WHERE id = ? AND status = 'leased'`, leaseID).
		Scan(&stockItemID); err != nil {
		return err
	}

	if _, err := tx.Exec(`
		UPDATE suffix_leases SET status = 'expired', expired_at = ?, updated_at = ?
		WHERE id = ? AND status = 'leased'`, now, now, leaseID); err != nil {
		return err
	}
	if err := RecycleStockItemTx(tx, stockItemID, now); err != nil {
		return err
	}
	return tx.Commit()
}

// OldestLeasedAge returns the age of the oldest still-leased lease, used by
// the lease_timeout alert rule. Returns zero duration and false if none.
func (s *Store) OldestLeasedAge(now time.Time) (time.Duration, bool, error) {
	var leasedAt time.Time
	err := s.db.QueryRow(`
		SELECT leased_at FROM suffix_leases WHERE status = 'leased' AND deleted_at IS NULL
		ORDER BY leased_at ASC LIMIT 1`).Scan(&leasedAt)
	if err == sql.ErrNoRows {
		return 0, false, nil
	}
	if err != nil {
		return 0, false, err
	}
	return now.Sub(leasedAt), true, nil
}

// FailureRateSince returns failed/(consumed+failed) lease counts since cutoff,
// for the high_failure_rate alert rule.
func (s *Store) FailureRateSince(cutoff time.Time) (consumed, failed int, err error) {
	err = s.db.QueryRow(`
		SELECT
			COALESCE(SUM(CASE WHEN status = 'consumed' THEN 1 ELSE 0 END), 0),
			COALESCE(SUM(CASE WHEN status = 'failed' THEN 1 ELSE 0 END), 0)
		FROM suffix_leases WHERE updated_at >= ? AND deleted_at IS NULL`, cutoff).
		Scan(&consumed, &failed)
	return
}
