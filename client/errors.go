package client

import (
	"errors"
	"fmt"
)

// RequestFailedError reports a non-2xx response after any applicable retry.
// The body is kept verbatim so callers can surface backend error messages.
type RequestFailedError struct {
	StatusCode int
	Body       []byte
}

func (e *RequestFailedError) Error() string {
	if len(e.Body) == 0 {
		return fmt.Sprintf("request failed with status %d", e.StatusCode)
	}
	return fmt.Sprintf("request failed with status %d: %s", e.StatusCode, e.Body)
}

// StatusOf returns the HTTP status carried by err, or 0 when err is not a
// *RequestFailedError.
func StatusOf(err error) int {
	var reqErr *RequestFailedError
	if errors.As(err, &reqErr) {
		return reqErr.StatusCode
	}
	return 0
}
