package api

import (
	"net/http"
	"strconv"
	"time"

	"github.com/adrotate/suffixcore/internal/clickscheduler"
	"github.com/adrotate/suffixcore/internal/model"
	"github.com/adrotate/suffixcore/internal/store"
)

// ClickTasksRepo is the subset of internal/store the click-tasks surface
// needs.
type ClickTasksRepo interface {
	CreateClickTask(t model.ClickTask, scheduledAt []time.Time, now time.Time) (int64, error)
	GetClickTask(taskID int64) (*model.ClickTask, error)
	CancelTask(taskID int64, now time.Time) error
}

type createClickTaskRequestDTO struct {
	CampaignID   string `json:"campaignId"`
	TargetClicks int    `json:"targetClicks"`
}

type clickTaskDTO struct {
	ID              int64  `json:"id"`
	CampaignID      string `json:"campaignId"`
	TargetClicks    int    `json:"targetClicks"`
	CompletedClicks int    `json:"completedClicks"`
	FailedClicks    int    `json:"failedClicks"`
	Status          string `json:"status"`
	CreatedAt       string `json:"createdAt"`
}

func clickTaskToDTO(t *model.ClickTask) clickTaskDTO {
	return clickTaskDTO{
		ID:              t.ID,
		CampaignID:      t.CampaignID,
		TargetClicks:    t.TargetClicks,
		CompletedClicks: t.CompletedClicks,
		FailedClicks:    t.FailedClicks,
		Status:          string(t.Status),
		CreatedAt:       t.CreatedAt.Format(time.RFC3339),
	}
}

// HandleCreateClickTask handles POST /api/v1/click-tasks: generates the
// diurnally-weighted schedule (spec.md §4.F) and persists a running task
// with its scheduled items.
func HandleCreateClickTask(repo ClickTasksRepo) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req createClickTaskRequestDTO
		if err := DecodeBody(r, &req); err != nil {
			writeDecodeBodyError(w, err)
			return
		}
		if req.CampaignID == "" {
			writeInvalidArgument(w, "campaignId: must be non-empty")
			return
		}
		if req.TargetClicks <= 0 {
			writeInvalidArgument(w, "targetClicks: must be > 0")
			return
		}

		userID := UserIDFromContext(r.Context())
		now := time.Now()
		schedule := clickscheduler.GenerateSchedule(now, req.TargetClicks)

		taskID, err := repo.CreateClickTask(model.ClickTask{
			UserID:       userID,
			CampaignID:   req.CampaignID,
			TargetClicks: req.TargetClicks,
			Status:       model.ClickTaskRunning,
		}, schedule, now)
		if err != nil {
			writeServiceError(w, err)
			return
		}

		task, err := repo.GetClickTask(taskID)
		if err != nil {
			writeServiceError(w, err)
			return
		}
		WriteJSON(w, http.StatusCreated, clickTaskToDTO(task))
	}
}

// HandleGetClickTask handles GET /api/v1/click-tasks/{id}.
func HandleGetClickTask(repo ClickTasksRepo) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, err := strconv.ParseInt(PathParam(r, "id"), 10, 64)
		if err != nil || id <= 0 {
			writeInvalidArgument(w, "id: must be a positive integer")
			return
		}
		task, err := repo.GetClickTask(id)
		if err != nil {
			if err == store.ErrNotFound {
				WriteError(w, http.StatusNotFound, "NOT_FOUND", "click task not found")
				return
			}
			writeServiceError(w, err)
			return
		}
		WriteJSON(w, http.StatusOK, clickTaskToDTO(task))
	}
}

// HandleCancelClickTask handles POST /api/v1/click-tasks/{id}/actions/cancel
// (spec.md §4.F cancellation semantics: pending items cancelled, executing
// items left alone).
func HandleCancelClickTask(repo ClickTasksRepo) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, err := strconv.ParseInt(PathParam(r, "id"), 10, 64)
		if err != nil || id <= 0 {
			writeInvalidArgument(w, "id: must be a positive integer")
			return
		}
		if err := repo.CancelTask(id, time.Now()); err != nil {
			if err == store.ErrNotFound {
				WriteError(w, http.StatusNotFound, "NOT_FOUND", "click task not found or not running")
				return
			}
			writeServiceError(w, err)
			return
		}
		WriteJSON(w, http.StatusOK, map[string]bool{"ok": true})
	}
}
