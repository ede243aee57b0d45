package api

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/adrotate/suffixcore/internal/apierr"
)

func writeInvalidArgument(w http.ResponseWriter, message string) {
	WriteError(w, http.StatusBadRequest, apierr.ValidationError, message)
}

func writePayloadTooLarge(w http.ResponseWriter, limit int64) {
	msg := "request body too large"
	if limit > 0 {
		msg = "request body too large (max " + strconv.FormatInt(limit, 10) + " bytes)"
	}
	WriteError(w, http.StatusRequestEntityTooLarge, "PAYLOAD_TOO_LARGE", msg)
}

func writeDecodeBodyError(w http.ResponseWriter, err error) {
	var tooLarge *requestBodyTooLargeError
	if errors.As(err, &tooLarge) {
		writePayloadTooLarge(w, tooLarge.Limit)
		return
	}
	writeInvalidArgument(w, err.Error())
}

// writeServiceError maps the spec.md §7 error taxonomy to HTTP status codes.
func writeServiceError(w http.ResponseWriter, err error) {
	if err == nil {
		WriteError(w, http.StatusInternalServerError, apierr.InternalError, "internal server error")
		return
	}

	var svcErr *apierr.ServiceError
	if errors.As(err, &svcErr) {
		WriteError(w, statusForCode(svcErr.Code), svcErr.Code, svcErr.Message)
		return
	}
	WriteError(w, http.StatusInternalServerError, apierr.InternalError, "internal server error")
}

// errorDTOFor renders one batch item's failure as the same envelope shape
// HandleLease/HandleAck return for their single-item form, so batch callers
// can treat each slot identically whether or not it failed.
func errorDTOFor(err error) ErrorResponse {
	var svcErr *apierr.ServiceError
	if errors.As(err, &svcErr) {
		return ErrorResponse{Error: ErrorDetail{Code: svcErr.Code, Message: svcErr.Message}}
	}
	return ErrorResponse{Error: ErrorDetail{Code: apierr.InternalError, Message: "internal server error"}}
}

func statusForCode(code string) int {
	switch code {
	case apierr.ValidationError:
		return http.StatusBadRequest
	case apierr.Unauthorized:
		return http.StatusUnauthorized
	case apierr.Forbidden:
		return http.StatusForbidden
	case apierr.NotFound:
		return http.StatusNotFound
	case apierr.Conflict:
		return http.StatusConflict
	case apierr.PendingImport, apierr.NoStock, apierr.LeaseExpired,
		apierr.NoProxyAvailable, apierr.ProxyUnavailable,
		apierr.RedirectTrackFailed, apierr.TotalTimeout, apierr.Timeout:
		return http.StatusUnprocessableEntity
	default:
		return http.StatusInternalServerError
	}
}
