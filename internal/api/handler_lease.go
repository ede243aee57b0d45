package api

import (
	"net/http"
	"time"

	"github.com/adrotate/suffixcore/internal/lease"
	"github.com/adrotate/suffixcore/internal/model"
)

type leaseMetaDTO struct {
	CampaignName string `json:"campaignName"`
	Country      string `json:"country"`
	FinalURL     string `json:"finalUrl"`
	CID          string `json:"cid"`
	MCCID        string `json:"mccId"`
}

type leaseRequestDTO struct {
	CampaignID              string        `json:"campaignId"`
	NowClicks               int64         `json:"nowClicks"`
	ObservedAt              time.Time     `json:"observedAt"`
	WindowStartEpochSeconds int64         `json:"windowStartEpochSeconds"`
	IdempotencyKey          string        `json:"idempotencyKey"`
	Meta                    *leaseMetaDTO `json:"meta,omitempty"`
}

type leaseResponseDTO struct {
	Action         lease.Action `json:"action"`
	LeaseID        int64        `json:"leaseId,omitempty"`
	FinalURLSuffix string       `json:"finalUrlSuffix,omitempty"`
	Reason         string       `json:"reason,omitempty"`
}

func (d leaseRequestDTO) toRequest() lease.Request {
	req := lease.Request{
		CampaignID:       d.CampaignID,
		NowClicks:        d.NowClicks,
		ObservedAt:       d.ObservedAt,
		WindowStartEpoch: d.WindowStartEpochSeconds,
		IdempotencyKey:   d.IdempotencyKey,
	}
	if d.Meta != nil {
		req.Meta = &model.CampaignMeta{
			CampaignName: d.Meta.CampaignName,
			Country:      d.Meta.Country,
			FinalURL:     d.Meta.FinalURL,
			CID:          d.Meta.CID,
			MCCID:        d.Meta.MCCID,
		}
	}
	return req
}

func validateLeaseRequest(d leaseRequestDTO) string {
	switch {
	case d.CampaignID == "":
		return "campaignId: must be non-empty"
	case d.NowClicks < 0:
		return "nowClicks: must be >= 0"
	case d.WindowStartEpochSeconds <= 0:
		return "windowStartEpochSeconds: must be > 0"
	case d.IdempotencyKey == "":
		return "idempotencyKey: must be non-empty"
	default:
		return ""
	}
}

// HandleLease handles POST /api/v1/lease (spec.md §6).
func HandleLease(eng *lease.Engine) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req leaseRequestDTO
		if err := DecodeBody(r, &req); err != nil {
			writeDecodeBodyError(w, err)
			return
		}
		if msg := validateLeaseRequest(req); msg != "" {
			writeInvalidArgument(w, msg)
			return
		}

		userID := UserIDFromContext(r.Context())
		res, err := eng.Lease(r.Context(), userID, req.toRequest())
		if err != nil {
			writeServiceError(w, err)
			return
		}
		WriteJSON(w, http.StatusOK, leaseResponseDTO{
			Action:         res.Action,
			LeaseID:        res.LeaseID,
			FinalURLSuffix: res.FinalURLSuffix,
			Reason:         res.Reason,
		})
	}
}

type ackRequestDTO struct {
	LeaseID      int64     `json:"leaseId"`
	CampaignID   string    `json:"campaignId"`
	Applied      bool      `json:"applied"`
	AppliedAt    time.Time `json:"appliedAt"`
	ErrorMessage string    `json:"errorMessage,omitempty"`
}

type ackResponseDTO struct {
	OK             bool   `json:"ok"`
	PreviousStatus string `json:"previousStatus,omitempty"`
}

func (d ackRequestDTO) toRequest() lease.AckRequest {
	return lease.AckRequest{
		LeaseID:      d.LeaseID,
		CampaignID:   d.CampaignID,
		Applied:      d.Applied,
		AppliedAt:    d.AppliedAt,
		ErrorMessage: d.ErrorMessage,
	}
}

func validateAckRequest(d ackRequestDTO) string {
	switch {
	case d.LeaseID <= 0:
		return "leaseId: must be > 0"
	case d.CampaignID == "":
		return "campaignId: must be non-empty"
	default:
		return ""
	}
}

// HandleAck handles POST /api/v1/ack (spec.md §6).
func HandleAck(eng *lease.Engine) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req ackRequestDTO
		if err := DecodeBody(r, &req); err != nil {
			writeDecodeBodyError(w, err)
			return
		}
		if msg := validateAckRequest(req); msg != "" {
			writeInvalidArgument(w, msg)
			return
		}

		userID := UserIDFromContext(r.Context())
		res, err := eng.Ack(r.Context(), userID, req.toRequest())
		if err != nil {
			writeServiceError(w, err)
			return
		}
		resp := ackResponseDTO{OK: true}
		if res.Idempotent {
			resp.PreviousStatus = string(res.PreviousStatus)
		}
		WriteJSON(w, http.StatusOK, resp)
	}
}

// HandleLeaseBatch handles POST /api/v1/lease/batch (spec.md §6 "Batch
// variants wrap arrays of the above, max 500, returning a parallel result
// array").
func HandleLeaseBatch(eng *lease.Engine) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var reqs []leaseRequestDTO
		if err := DecodeBody(r, &reqs); err != nil {
			writeDecodeBodyError(w, err)
			return
		}
		for _, req := range reqs {
			if msg := validateLeaseRequest(req); msg != "" {
				writeInvalidArgument(w, msg)
				return
			}
		}

		domainReqs := make([]lease.Request, len(reqs))
		for i, req := range reqs {
			domainReqs[i] = req.toRequest()
		}

		userID := UserIDFromContext(r.Context())
		results := eng.LeaseBatch(r.Context(), userID, domainReqs)

		out := make([]any, len(results))
		for i, item := range results {
			if item.Err != nil {
				out[i] = errorDTOFor(item.Err)
				continue
			}
			out[i] = leaseResponseDTO{
				Action:         item.Result.Action,
				LeaseID:        item.Result.LeaseID,
				FinalURLSuffix: item.Result.FinalURLSuffix,
				Reason:         item.Result.Reason,
			}
		}
		WriteJSON(w, http.StatusOK, map[string]any{"results": out})
	}
}

// HandleAckBatch handles POST /api/v1/ack/batch.
func HandleAckBatch(eng *lease.Engine) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var reqs []ackRequestDTO
		if err := DecodeBody(r, &reqs); err != nil {
			writeDecodeBodyError(w, err)
			return
		}
		for _, req := range reqs {
			if msg := validateAckRequest(req); msg != "" {
				writeInvalidArgument(w, msg)
				return
			}
		}

		domainReqs := make([]lease.AckRequest, len(reqs))
		for i, req := range reqs {
			domainReqs[i] = req.toRequest()
		}

		userID := UserIDFromContext(r.Context())
		results := eng.AckBatch(r.Context(), userID, domainReqs)

		out := make([]any, len(results))
		for i, item := range results {
			if item.Err != nil {
				out[i] = errorDTOFor(item.Err)
				continue
			}
			resp := ackResponseDTO{OK: true}
			if item.Result.Idempotent {
				resp.PreviousStatus = string(item.Result.PreviousStatus)
			}
			out[i] = resp
		}
		WriteJSON(w, http.StatusOK, map[string]any{"results": out})
	}
}
