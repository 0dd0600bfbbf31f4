package api

import (
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
)

var (
	// ErrUnauthorized indicates the API key or JWT was rejected (HTTP 401/403).
	ErrUnauthorized = errors.New("unauthorized client, double check you've supplied the correct API key and have the appropriate permissions")

	// ErrUnexpectedStatus indicates a non-2xx response other than 401/403.
	ErrUnexpectedStatus = errors.New("request failed")

	// ErrDeserialization indicates the response body did not match the expected schema.
	ErrDeserialization = errors.New("failed to parse API response")
)

// maxErrorBody bounds how much of a failed response body is kept for diagnosis.
const maxErrorBody = 64 << 10

// RequestError describes a failed call to the remote API.
type RequestError struct {
	Op         string // logical operation, e.g. "create run"
	StatusCode int    // 0 when the request never produced a response
	Body       string
	RequestID  string
	Err        error
}

func (e *RequestError) Error() string {
	var b strings.Builder
	b.WriteString(e.Op)
	if e.StatusCode != 0 {
		fmt.Fprintf(&b, ": status %d", e.StatusCode)
	}
	if e.Err != nil {
		b.WriteString(": ")
		b.WriteString(e.Err.Error())
	}
	if e.Body != "" {
		b.WriteString("\nbody = ")
		b.WriteString(e.Body)
	}
	return b.String()
}

func (e *RequestError) Unwrap() error {
	return e.Err
}

// InputError reports a local file that cannot be used for an upload.
type InputError struct {
	Path string
	Err  error
}

func (e *InputError) Error() string {
	return fmt.Sprintf("can't open file, double check you've supplied the correct path\npath = %s: %v", e.Path, e.Err)
}

func (e *InputError) Unwrap() error {
	return e.Err
}

// IsUnauthorized reports whether err was caused by rejected credentials.
func IsUnauthorized(err error) bool {
	return errors.Is(err, ErrUnauthorized)
}

func newStatusError(op, requestID string, code int, body []byte) *RequestError {
	cause := ErrUnexpectedStatus
	if code == http.StatusUnauthorized || code == http.StatusForbidden {
		cause = ErrUnauthorized
	}
	return &RequestError{
		Op:         op,
		StatusCode: code,
		Body:       strings.TrimSpace(string(body)),
		RequestID:  requestID,
		Err:        cause,
	}
}

// stripURL drops the request URL from transport errors so the api_key query
// parameter never reaches logs or the terminal.
func stripURL(err error) error {
	var ue *url.Error
	if errors.As(err, &ue) {
		return fmt.Errorf("%s: %w", ue.Op, ue.Err)
	}
	return err
}
