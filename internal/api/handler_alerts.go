package api

import (
	"net/http"
	"strconv"
	"time"

	"github.com/adrotate/suffixcore/internal/model"
	"github.com/adrotate/suffixcore/internal/store"
)

// AlertsRepo is the subset of internal/store the alerts surface needs.
type AlertsRepo interface {
	ListUnacknowledgedAlerts() ([]model.Alert, error)
	AcknowledgeAlert(id int64, now time.Time) error
}

type alertDTO struct {
	ID           int64  `json:"id"`
	Type         string `json:"type"`
	Level        string `json:"level"`
	Title        string `json:"title"`
	Message      string `json:"message"`
	MetadataJSON string `json:"metadata,omitempty"`
	Acknowledged bool   `json:"acknowledged"`
	CreatedAt    string `json:"createdAt"`
}

func alertToDTO(a model.Alert) alertDTO {
	return alertDTO{
		ID:           a.ID,
		Type:         string(a.Type),
		Level:        string(a.Level),
		Title:        a.Title,
		Message:      a.Message,
		MetadataJSON: a.MetadataJSON,
		Acknowledged: a.Acknowledged,
		CreatedAt:    a.CreatedAt.Format(time.RFC3339),
	}
}

// HandleListAlerts handles GET /api/v1/alerts — unacknowledged findings
// from the recovery alert evaluator (spec.md §4.G).
func HandleListAlerts(repo AlertsRepo) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		alerts, err := repo.ListUnacknowledgedAlerts()
		if err != nil {
			writeServiceError(w, err)
			return
		}
		out := make([]alertDTO, len(alerts))
		for i, a := range alerts {
			out[i] = alertToDTO(a)
		}
		WriteJSON(w, http.StatusOK, map[string]any{"alerts": out})
	}
}

// HandleAcknowledgeAlert handles POST /api/v1/alerts/{id}/actions/acknowledge
// (idempotent — SPEC_FULL.md §4.J).
func HandleAcknowledgeAlert(repo AlertsRepo) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, err := strconv.ParseInt(PathParam(r, "id"), 10, 64)
		if err != nil || id <= 0 {
			writeInvalidArgument(w, "id: must be a positive integer")
			return
		}
		if err := repo.AcknowledgeAlert(id, time.Now()); err != nil {
			if err == store.ErrNotFound {
				WriteError(w, http.StatusNotFound, "NOT_FOUND", "alert not found")
				return
			}
			writeServiceError(w, err)
			return
		}
		WriteJSON(w, http.StatusOK, map[string]bool{"ok": true})
	}
}
