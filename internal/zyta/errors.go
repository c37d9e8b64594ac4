package zyta

import (
	"errors"
	"fmt"
	"net/http"
)

var (
	// ErrMissingBaseURL is returned when the backend URL is not configured.
	ErrMissingBaseURL = errors.New("zyta: backend base url is not configured")
	// ErrNotFound matches any 404 from the backend.
	ErrNotFound = errors.New("zyta: not found")
	// ErrUnauthorized matches any 401 from the backend. Callers redirect to
	// the identity provider instead of reporting it.
	ErrUnauthorized = errors.New("zyta: unauthorized")
)

// APIError is a non-2xx backend response.
type APIError struct {
	Status  int
	Message string
	Path    string
}

func (e *APIError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("zyta: backend returned %d for %s", e.Status, e.Path)
	}
	return fmt.Sprintf("zyta: backend returned %d for %s: %s", e.Status, e.Path, e.Message)
}

// Is lets errors.Is match the status sentinels.
func (e *APIError) Is(target error) bool {
	switch target {
	case ErrNotFound:
		return e.Status == http.StatusNotFound
	case ErrUnauthorized:
		return e.Status == http.StatusUnauthorized
	}
	return false
}

// UserMessage returns the backend-provided message or fallback when the error
// carries none.
func UserMessage(err error, fallback string) string {
	var apiErr *APIError
	if errors.As(err, &apiErr) && apiErr.Message != "" {
		return apiErr.Message
	}
	return fallback
}
