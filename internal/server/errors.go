// Package server provides the HTTP API of the recruiting assistant.
package server

import (
	"errors"
	"fmt"
	"net/http"
)

// ErrRunNotFound indicates no stored run has the requested ID
type ErrRunNotFound struct {
	RunID string
}

func (e *ErrRunNotFound) Error() string {
	return fmt.Sprintf("run not found: %s", e.RunID)
}

// ErrStoreUnavailable indicates the server runs without a database
type ErrStoreUnavailable struct{}

func (e *ErrStoreUnavailable) Error() string {
	return "run history is not available: no database configured"
}

// ErrValidation indicates request validation failure
type ErrValidation struct {
	Field   string
	Message string
}

func (e *ErrValidation) Error() string {
	return fmt.Sprintf("validation error: %s - %s", e.Field, e.Message)
}

// HTTPStatus returns the appropriate HTTP status code for an error
func HTTPStatus(err error) int {
	var (
		notFound    *ErrRunNotFound
		unavailable *ErrStoreUnavailable
		validation  *ErrValidation
		tooLarge    *http.MaxBytesError
	)
	switch {
	case errors.As(err, &notFound):
		return http.StatusNotFound
	case errors.As(err, &unavailable):
		return http.StatusServiceUnavailable
	case errors.As(err, &validation):
		return http.StatusBadRequest
	case errors.As(err, &tooLarge):
		return http.StatusRequestEntityTooLarge
	default:
		return http.StatusInternalServerError
	}
}
