// Package apierr holds the stable error-code taxonomy shared across
// components (spec.md §7) and the ServiceError type the API layer maps to
// HTTP status codes.
package apierr

// Stable error codes. Tracker/producer/selector never raise these as Go
// errors across their own contracts (they return rich result tuples
// instead, per spec.md §9) — ServiceError is for the lease/ack/campaign
// surfaces that do return a Go error.
const (
	Unauthorized        = "UNAUTHORIZED"
	Forbidden           = "FORBIDDEN"
	ValidationError     = "VALIDATION_ERROR"
	PendingImport       = "PENDING_IMPORT"
	NoStock             = "NO_STOCK"
	LeaseExpired        = "LEASE_EXPIRED"
	NoProxyAvailable    = "NO_PROXY_AVAILABLE"
	ProxyUnavailable    = "PROXY_UNAVAILABLE"
	RedirectTrackFailed = "REDIRECT_TRACK_FAILED"
	TotalTimeout        = "TOTAL_TIMEOUT"
	Timeout             = "TIMEOUT"
	InternalError       = "INTERNAL_ERROR"
	NotFound            = "NOT_FOUND"
	Conflict            = "CONFLICT"
)

// ServiceError is a stable-coded error the API layer translates to an HTTP
// status (spec.md §7's propagation policy: "lease/ack translate internal
// failure into INTERNAL_ERROR without leaking stack").
type ServiceError struct {
	Code    string
	Message string
	Err     error
}

func (e *ServiceError) Error() string { return e.Message }
func (e *ServiceError) Unwrap() error { return e.Err }

func New(code, message string) *ServiceError {
	return &ServiceError{Code: code, Message: message}
}

func Wrap(code, message string, err error) *ServiceError {
	return &ServiceError{Code: code, Message: message, Err: err}
}

func Internal(err error) *ServiceError {
	return &ServiceError{Code: InternalError, Message: "internal server error", Err: err}
}
