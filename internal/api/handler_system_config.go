package api

import (
	"net/http"

	"github.com/adrotate/suffixcore/internal/config"
)

// HandleSystemConfig handles GET /api/v1/system/config (SPEC_FULL.md §4.K).
func HandleSystemConfig(mgr *config.Manager) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		WriteJSON(w, http.StatusOK, mgr.Current())
	}
}

// HandlePatchSystemConfig handles PATCH /api/v1/system/config: a partial
// update that persists then hot-swaps the live atomic.Pointer (SPEC_FULL.md
// §4.K).
func HandlePatchSystemConfig(mgr *config.Manager) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var patch config.RuntimeConfigPatch
		if err := DecodeBody(r, &patch); err != nil {
			writeDecodeBodyError(w, err)
			return
		}

		updated, err := mgr.Patch(patch)
		if err != nil {
			writeServiceError(w, err)
			return
		}
		WriteJSON(w, http.StatusOK, updated)
	}
}
