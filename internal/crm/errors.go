package crm

import (
	"errors"
	"fmt"
	"net/http"
)

var (
	// ErrAuthConfig marks a token refresh that cannot succeed without operator
	// action: missing OAuth credentials or a rejected refresh grant.
	ErrAuthConfig = errors.New("crm: oauth refresh failed")

	ErrMissingContactID = errors.New("crm: contact id is required")
)

// StatusError is returned for non-2xx CRM responses.
type StatusError struct {
	Method     string
	Path       string
	StatusCode int
	Body       string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("crm: %s %s: %d %s: %s", e.Method, e.Path, e.StatusCode, http.StatusText(e.StatusCode), e.Body)
}

// IsFatal reports whether err must propagate instead of being logged and skipped.
func IsFatal(err error) bool {
	return errors.Is(err, ErrAuthConfig)
}
