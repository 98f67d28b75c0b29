package apiclient

import (
	"errors"
	"fmt"
)

var (
	// ErrRefreshFailed means the refresh token was rejected. The session is
	// unrecoverable; callers should treat this as a forced logout.
	ErrRefreshFailed = errors.New("token refresh failed")

	// ErrNoSession means no persisted credentials exist for an operation
	// that requires them.
	ErrNoSession = errors.New("no active session")
)

// APIError carries a non-2xx backend response with its message passed
// through verbatim.
type APIError struct {
	Status  int
	Message string
}

func (e *APIError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("api error: status %d", e.Status)
	}
	return fmt.Sprintf("api error: status %d: %s", e.Status, e.Message)
}
