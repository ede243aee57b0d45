package api

import (
	"net/http"

	"github.com/adrotate/suffixcore/internal/model"
	"github.com/adrotate/suffixcore/internal/store"
)

// maxCampaignLookup mirrors spec.md §4.I's "up to 500 campaign IDs" cap.
const maxCampaignLookup = 500

// CampaignLookupRepo is the subset of internal/store the lookup handler
// needs.
type CampaignLookupRepo interface {
	ListCampaigns(userID string, campaignIDs []string) ([]model.Campaign, error)
	EffectiveAffiliateLink(userID, campaignID string) (*model.AffiliateLink, error)
	GetCampaign(userID, campaignID string) (*model.Campaign, error)
}

type campaignLookupRequestItem struct {
	CampaignID string `json:"campaignId"`
}

type campaignLookupRequestDTO struct {
	Campaigns []campaignLookupRequestItem `json:"campaigns"`
}

type campaignLookupResult struct {
	TrackingURL string `json:"trackingUrl,omitempty"`
	Found       bool   `json:"found"`
}

type campaignLookupResponseDTO struct {
	Success         bool                             `json:"success"`
	CampaignResults map[string]campaignLookupResult `json:"campaignResults"`
	Stats           campaignLookupStats              `json:"stats"`
}

type campaignLookupStats struct {
	Requested int `json:"requested"`
	Found     int `json:"found"`
}

// HandleCampaignLookup handles POST /api/v1/campaigns/lookup (spec.md §4.I
// "Campaign lookup: ... return for each the current effective affiliate URL
// (highest-priority enabled) or null. Purely a read.").
func HandleCampaignLookup(repo CampaignLookupRepo) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req campaignLookupRequestDTO
		if err := DecodeBody(r, &req); err != nil {
			writeDecodeBodyError(w, err)
			return
		}
		if len(req.Campaigns) == 0 {
			writeInvalidArgument(w, "campaigns: must be non-empty")
			return
		}
		if len(req.Campaigns) > maxCampaignLookup {
			writeInvalidArgument(w, "campaigns: must contain at most 500 entries")
			return
		}

		userID := UserIDFromContext(r.Context())
		ids := make([]string, len(req.Campaigns))
		for i, c := range req.Campaigns {
			ids[i] = c.CampaignID
		}

		campaigns, err := repo.ListCampaigns(userID, ids)
		if err != nil {
			writeServiceError(w, err)
			return
		}
		known := make(map[string]model.Campaign, len(campaigns))
		for _, c := range campaigns {
			known[c.CampaignID] = c
		}

		results := make(map[string]campaignLookupResult, len(ids))
		found := 0
		for _, id := range ids {
			c, ok := known[id]
			if !ok {
				results[id] = campaignLookupResult{Found: false}
				continue
			}
			link, err := repo.EffectiveAffiliateLink(userID, c.CampaignID)
			if err == store.ErrNotFound {
				results[id] = campaignLookupResult{Found: false}
				continue
			}
			if err != nil {
				results[id] = campaignLookupResult{Found: false}
				continue
			}
			results[id] = campaignLookupResult{TrackingURL: link.TargetURL, Found: true}
			found++
		}

		WriteJSON(w, http.StatusOK, campaignLookupResponseDTO{
			Success:         true,
			CampaignResults: results,
			Stats:           campaignLookupStats{Requested: len(ids), Found: found},
		})
	}
}
