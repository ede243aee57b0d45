package api

import (
	"net/http"

	"github.com/adrotate/suffixcore/internal/stock"
	"github.com/adrotate/suffixcore/internal/store"
)

type forceReplenishRequestDTO struct {
	CampaignID string `json:"campaignId"`
}

type forceReplenishResponseDTO struct {
	Action    string `json:"action"`
	Requested int    `json:"requested"`
	Produced  int    `json:"produced"`
	Failed    int    `json:"failed"`
}

// HandleForceReplenish handles POST /api/v1/stock/replenish — the
// single-campaign forced top-up (spec.md §4.D "Single-campaign replenish
// (userId, campaignId, force)"), the only path that can ever produce a
// ProductionAuditLogEntry with TriggerReason "forced".
func HandleForceReplenish(producer *stock.Producer, repo CampaignLookupRepo) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req forceReplenishRequestDTO
		if err := DecodeBody(r, &req); err != nil {
			writeDecodeBodyError(w, err)
			return
		}
		if req.CampaignID == "" {
			writeInvalidArgument(w, "campaignId: must be non-empty")
			return
		}

		userID := UserIDFromContext(r.Context())
		c, err := repo.GetCampaign(userID, req.CampaignID)
		if err == store.ErrNotFound {
			WriteError(w, http.StatusNotFound, "NOT_FOUND", "campaign not found")
			return
		}
		if err != nil {
			writeServiceError(w, err)
			return
		}

		res := producer.ProduceForCampaign(r.Context(), *c, "forced", true)
		if res.Err != nil {
			writeServiceError(w, res.Err)
			return
		}
		WriteJSON(w, http.StatusOK, forceReplenishResponseDTO{
			Action:    res.Action,
			Requested: res.Requested,
			Produced:  res.Produced,
			Failed:    res.Failed,
		})
	}
}
