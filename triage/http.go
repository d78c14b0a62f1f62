package triage

import (
	"errors"
	"fmt"
	"net/http"
	"net/url"
)

// HTTPError reports a non-success status from an HTTP collaborator
type HTTPError struct {
	StatusCode int
	URL        string
}

// NewHTTPError builds an HTTPError from a response. It returns nil for 2xx
// and 3xx responses.
func NewHTTPError(resp *http.Response) error {
	if resp == nil || resp.StatusCode < http.StatusBadRequest {
		return nil
	}
	e := &HTTPError{StatusCode: resp.StatusCode}
	if resp.Request != nil && resp.Request.URL != nil {
		e.URL = resp.Request.URL.Redacted()
	}
	return e
}

func (e *HTTPError) Error() string {
	if e.URL == "" {
		return fmt.Sprintf("http status %d %s", e.StatusCode, http.StatusText(e.StatusCode))
	}
	return fmt.Sprintf("http status %d %s from %s", e.StatusCode, http.StatusText(e.StatusCode), e.URL)
}

// Severity is Permanent for server errors and Transient for any other status
func (e *HTTPError) Severity() Severity {
	if e.StatusCode >= http.StatusInternalServerError {
		return Permanent
	}
	return Transient
}

// classifyHTTP handles transport failures reported by net/http clients
func classifyHTTP(err error) (Severity, bool) {
	var urlErr *url.Error
	if !errors.As(err, &urlErr) {
		return 0, false
	}
	if urlErr.Op == "parse" {
		return Permanent, true
	}
	return Transient, true
}
