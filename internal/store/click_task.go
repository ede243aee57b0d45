package store

import (
	"database/sql"
	"time"

	"github.com/adrotate/suffixcore/internal/model"
)

// CreateClickTask inserts a running task with its scheduled items in one
// transaction (spec.md §4.F schedule generation feeds this).
func (s *Store) CreateClickTask(t model.ClickTask, scheduledAt []time.Time, now time.Time) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	tx, err := s.db.Begin()
	if err != nil {
		return 0, err
	}
	defer tx.Rollback()

	res, err := tx.Exec(`
		INSERT INTO click_tasks (user_id, campaign_id, target_clicks, status, created_at, updated_at)
		VALUES (?, ?, ?, 'running', ?, ?)`, t.UserID, t.CampaignID, t.TargetClicks, now, now)
	if err != nil {
		return 0, err
	}
	taskID, err := res.LastInsertId()
	if err != nil {
		return 0, err
	}

	stmt, err := tx.Prepare(`
		INSERT INTO click_task_items (task_id, scheduled_at, status, created_at, updated_at)
		VALUES (?, ?, 'pending', ?, ?)`)
	if err != nil {
		return 0, err
	}
	defer stmt.Close()

	for _, at := range scheduledAt {
		if _, err := stmt.Exec(taskID, at, now, now); err != nil {
			return 0, err
		}
	}

	if err := tx.Commit(); err != nil {
		return 0, err
	}
	return taskID, nil
}

// DueClickItems fetches up to limit pending items whose scheduledAt has
// passed, belonging to running tasks, oldest first (spec.md §4.F execution
// tick, "at most 20 items per tick").
func (s *Store) DueClickItems(now time.Time, limit int) ([]model.ClickTaskItem, error) {
	rows, err := s.db.Query(`
		SELECT i.id, i.task_id, i.scheduled_at, i.status, i.exit_ip, i.error_message,
		       i.duration_ms, i.executed_at, i.created_at, i.updated_at
		FROM click_task_items i JOIN click_tasks t ON t.id = i.task_id
		WHERE i.status = 'pending' AND i.scheduled_at <= ? AND t.status = 'running'
		ORDER BY i.scheduled_at ASC LIMIT ?`, now, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []model.ClickTaskItem
	for rows.Next() {
		var it model.ClickTaskItem
		if err := rows.Scan(&it.ID, &it.TaskID, &it.ScheduledAt, &it.Status, &it.ExitIP,
			&it.ErrorMessage, &it.DurationMs, &it.ExecutedAt, &it.CreatedAt, &it.UpdatedAt); err != nil {
			return nil, err
		}
		out = append(out, it)
	}
	return out, rows.Err()
}

// MarkItemExecuting flips a pending item to executing immediately before
// dispatch, so a crash mid-tick doesn't re-pick it as pending.
func (s *Store) MarkItemExecuting(itemID int64, now time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, err := s.db.Exec(`
		UPDATE click_task_items SET status = 'executing', updated_at = ? WHERE id = ?`, now, itemID)
	return err
}

// CompleteItem records a terminal item result and bumps the parent task's
// counters atomically.
func (s *Store) CompleteItem(itemID int64, success bool, exitIP, errMsg string, durationMs int64, now time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	tx, err := s.db.Begin()
	if err != nil {
		return err
	}
	defer tx.Rollback()

	status := "failed"
	if success {
		status = "success"
	}

	var taskID int64
	if err := tx.QueryRow(`SELECT task_id FROM click_task_items WHERE id = ?`, itemID).Scan(&taskID); err != nil {
		return err
	}

	if _, err := tx.Exec(`
		UPDATE click_task_items SET status = ?, exit_ip = ?, error_message = ?,
		       duration_ms = ?, executed_at = ?, updated_at = ? WHERE id = ?`,
		status, exitIP, errMsg, durationMs, now, now, itemID); err != nil {
		return err
	}

	col := "failed_clicks"
	if success {
		col = "completed_clicks"
	}
	if _, err := tx.Exec(`UPDATE click_tasks SET `+col+` = `+col+` + 1, updated_at = ? WHERE id = ?`, now, taskID); err != nil {
		return err
	}

	return tx.Commit()
}

// RemainingItems reports whether a task still has pending or executing items.
func (s *Store) RemainingItems(taskID int64) (bool, error) {
	var n int
	err := s.db.QueryRow(`
		SELECT COUNT(*) FROM click_task_items
		WHERE task_id = ? AND status IN ('pending', 'executing')`, taskID).Scan(&n)
	return n > 0, err
}

// FinalizeTaskIfDone transitions a task to completed (completedClicks>0) or
// failed once no pending/executing items remain (spec.md §4.F step 4).
func (s *Store) FinalizeTaskIfDone(taskID int64, now time.Time) error {
	remaining, err := s.RemainingItems(taskID)
	if err != nil || remaining {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	var completed int
	if err := s.db.QueryRow(`SELECT completed_clicks FROM click_tasks WHERE id = ?`, taskID).Scan(&completed); err != nil {
		return err
	}
	status := "failed"
	if completed > 0 {
		status = "completed"
	}
	_, err = s.db.Exec(`UPDATE click_tasks SET status = ?, updated_at = ? WHERE id = ? AND status = 'running'`,
		status, now, taskID)
	return err
}

// CancelTask flips a task and all its pending items to cancelled atomically.
// Executing items are left alone (spec.md §4.F cancellation semantics).
func (s *Store) CancelTask(taskID int64, now time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	tx, err := s.db.Begin()
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if _, err := tx.Exec(`
		UPDATE click_task_items SET status = 'cancelled', updated_at = ?
		WHERE task_id = ? AND status = 'pending'`, now, taskID); err != nil {
		return err
	}
	res, err := tx.Exec(`
		UPDATE click_tasks SET status = 'cancelled', updated_at = ?
		WHERE id = ? AND status = 'running'`, now, taskID)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return tx.Commit()
}

// GetClickTask loads one task by id.
func (s *Store) GetClickTask(taskID int64) (*model.ClickTask, error) {
	row := s.db.QueryRow(`
		SELECT id, user_id, campaign_id, target_clicks, completed_clicks, failed_clicks,
		       status, created_at, updated_at FROM click_tasks WHERE id = ?`, taskID)
	var t model.ClickTask
	if err := row.Scan(&t.ID, &t.UserID, &t.CampaignID, &t.TargetClicks, &t.CompletedClicks,
		&t.FailedClicks, &t.Status, &t.CreatedAt, &t.UpdatedAt); err != nil {
		if err == sql.ErrNoRows {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return &t, nil
}
