package api

import (
	"errors"
	"fmt"
	"net/http"
)

// Error is a failed REST call: either a non-2xx status or an envelope with
// success=false. Callers can use errors.As to inspect it:
//
//	var apiErr *api.Error
//	if errors.As(err, &apiErr) && apiErr.StatusCode == http.StatusConflict { ... }
type Error struct {
	StatusCode int
	Method     string
	Path       string
	// Message is the server's explanation, or the raw body when the
	// response was not an envelope.
	Message string
}

func (e *Error) Error() string {
	return fmt.Sprintf("api: %s %s (%d): %s", e.Method, e.Path, e.StatusCode, e.Message)
}

// IsUnauthorized reports whether err is a rejected or expired session.
func IsUnauthorized(err error) bool {
	return hasStatus(err, http.StatusUnauthorized)
}

// IsNotFound reports whether err names a missing resource.
func IsNotFound(err error) bool {
	return hasStatus(err, http.StatusNotFound)
}

func hasStatus(err error, status int) bool {
	var apiErr *Error
	if errors.As(err, &apiErr) {
		return apiErr.StatusCode == status
	}
	return false
}
