package academic

import (
	"errors"
	"fmt"
)

// Reason classifies a failure for callers and for the HTTP layer's status
// mapping. Reasons are stable strings, safe to expose in responses.
type Reason string

const (
	// ReasonCredentialsRejected means the portal refused the login
	// credentials while being reachable.
	ReasonCredentialsRejected Reason = "credentials_rejected"

	// ReasonSessionInvalid means the presented session is unknown, expired,
	// or was silently invalidated upstream.
	ReasonSessionInvalid Reason = "session_invalid"

	// ReasonUpstreamUnreachable means the portal could not be reached and
	// no stored fallback was available.
	ReasonUpstreamUnreachable Reason = "upstream_unreachable"

	// ReasonExtractionDegraded means the portal answered but its page could
	// not be turned into a structured record.
	ReasonExtractionDegraded Reason = "extraction_degraded"

	// ReasonPersistenceWarning marks a durable-store failure after a
	// successful fetch. It is reported, never fatal.
	ReasonPersistenceWarning Reason = "persistence_warning"
)

// Error is a classified service failure.
type Error struct {
	Reason  Reason
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Reason, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Reason, e.Message)
}

func (e *Error) Unwrap() error { return e.Err }

// NewError builds a classified error wrapping cause (which may be nil).
func NewError(reason Reason, message string, cause error) *Error {
	return &Error{Reason: reason, Message: message, Err: cause}
}

// ReasonOf extracts the classification from err, or ok=false when err is
// not a service error.
func ReasonOf(err error) (Reason, bool) {
	var e *Error
	if errors.As(err, &e) {
		return e.Reason, true
	}
	return "", false
}
