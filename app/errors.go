// Package app implements the quota, search-proxy and payment HTTP surface.
package app

import (
	"errors"
	"fmt"
)

// Failure taxonomy shared by handlers and the store. Sentinels so callers can
// branch with errors.Is; handlers map them to status codes at the edge.
var (
	// ErrAuthRequired means the operation needs an authenticated identity.
	ErrAuthRequired = errors.New("authentication required")
	// ErrSignatureInvalid means a webhook failed its authenticity check.
	ErrSignatureInvalid = errors.New("invalid signature")
	// ErrUpstream means the backend or gateway was unreachable or non-2xx.
	ErrUpstream = errors.New("upstream unavailable")
	// ErrTimeout means a bounded wait elapsed; the operation may still be
	// working upstream, which is why it is distinct from ErrUpstream.
	ErrTimeout = errors.New("timed out")
	// ErrMalformed means an inbound payload was missing required fields.
	ErrMalformed = errors.New("malformed payload")
	// ErrUnknownIdentity means a mutation referenced an identity with no row.
	ErrUnknownIdentity = errors.New("unknown identity")
)

// QuotaExhaustedError signals a decrement attempt with zero remaining. The
// record is returned so callers can still surface role and ceiling.
type QuotaExhaustedError struct {
	Role  string
	Total int
}

func (e *QuotaExhaustedError) Error() string {
	return fmt.Sprintf("search quota exhausted (role=%s total=%d)", e.Role, e.Total)
}

// IsQuotaExhausted reports whether err is a quota exhaustion.
func IsQuotaExhausted(err error) bool {
	var qe *QuotaExhaustedError
	return errors.As(err, &qe)
}
