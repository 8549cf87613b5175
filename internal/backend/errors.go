package backend

import (
	"errors"
	"fmt"
	"net/http"
)

var (
	ErrUnauthorized        = errors.New("backend: unauthorized")
	ErrValidation          = errors.New("backend: validation failed")
	ErrUpstreamUnavailable = errors.New("backend: upstream unavailable")
)

// StatusError is a non-2xx response. The body is passed through untouched.
type StatusError struct {
	Status int
	Body   []byte
}

func (e *StatusError) Error() string {
	if len(e.Body) == 0 {
		return fmt.Sprintf("backend returned %d", e.Status)
	}
	return fmt.Sprintf("backend returned %d: %s", e.Status, truncate(e.Body, 200))
}

// Unwrap maps the status to one of the package sentinels.
func (e *StatusError) Unwrap() error {
	switch {
	case e.Status == http.StatusUnauthorized || e.Status == http.StatusForbidden:
		return ErrUnauthorized
	case e.Status == http.StatusBadRequest || e.Status == http.StatusUnprocessableEntity:
		return ErrValidation
	case e.Status >= 500:
		return ErrUpstreamUnavailable
	default:
		return nil
	}
}

// Retryable reports whether err is worth another attempt: network failures
// and 5xx responses.
func Retryable(err error) bool {
	return errors.Is(err, ErrUpstreamUnavailable)
}

type networkError struct {
	err error
}

func (e *networkError) Error() string { return e.err.Error() }

func (e *networkError) Unwrap() []error { return []error{ErrUpstreamUnavailable, e.err} }

func truncate(b []byte, n int) string {
	if len(b) <= n {
		return string(b)
	}
	return string(b[:n]) + "..."
}
