package catalog

import (
	"errors"
	"fmt"
	"net/http"

	"moviecatalog/internal/domain"
)

var ErrInvalidResponse = errors.New("invalid catalog response format")

// Error is a non-2xx answer from the catalog API.
type Error struct {
	Status  int
	Message string
}

func (e *Error) Error() string {
	switch e.Status {
	case http.StatusBadRequest:
		return "invalid request: " + e.Message
	case http.StatusNotFound:
		return "movie not found"
	case http.StatusInternalServerError:
		return "server error, try again later"
	case http.StatusServiceUnavailable:
		return "service temporarily unavailable"
	default:
		return fmt.Sprintf("catalog API error (%d): %s", e.Status, e.Message)
	}
}

// Unwrap lets callers match a 404 with domain.ErrNotFound.
func (e *Error) Unwrap() error {
	if e.Status == http.StatusNotFound {
		return domain.ErrNotFound
	}
	return nil
}

// Temporary reports whether the same request may succeed when retried.
func (e *Error) Temporary() bool {
	switch e.Status {
	case http.StatusTooManyRequests, http.StatusBadGateway, http.StatusServiceUnavailable, http.StatusGatewayTimeout:
		return true
	}
	return false
}
