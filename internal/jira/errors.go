package jira

import (
	"errors"
	"fmt"
	"net/http"
)

// ErrMalformedResponse marks a response body that does not match the
// endpoint's schema. Callers treat it as a degraded, not fatal, outcome.
var ErrMalformedResponse = errors.New("jira: malformed response")

// StatusError is a non-2xx answer from Jira.
type StatusError struct {
	Endpoint   string
	StatusCode int
	Body       string
}

func (e *StatusError) Error() string {
	if e.Body == "" {
		return fmt.Sprintf("jira %s: status %d", e.Endpoint, e.StatusCode)
	}
	return fmt.Sprintf("jira %s: status %d: %s", e.Endpoint, e.StatusCode, e.Body)
}

// Throttled reports whether Jira asked us to back off.
func (e *StatusError) Throttled() bool {
	return e.StatusCode == http.StatusTooManyRequests
}

// DecodeError wraps a body that failed to decode or validate.
type DecodeError struct {
	Endpoint string
	Err      error
}

func (e *DecodeError) Error() string {
	return fmt.Sprintf("jira %s: malformed response: %v", e.Endpoint, e.Err)
}

func (e *DecodeError) Unwrap() []error { return []error{ErrMalformedResponse, e.Err} }

// IsStatus reports whether err is a StatusError carrying code.
func IsStatus(err error, code int) bool {
	var se *StatusError
	return errors.As(err, &se) && se.StatusCode == code
}
