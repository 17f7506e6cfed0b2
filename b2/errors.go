package b2

import (
	"errors"
	"fmt"
	"net/http"
)

// ErrNotAuthorized is returned when a call needs a session and none is held.
var ErrNotAuthorized = errors.New("b2: client not authorized")

// RequestError is a response with HTTP status >= 400. Code and Message are
// empty when the body could not be decoded.
type RequestError struct {
	Op      string `json:"-"`
	Status  int    `json:"status"`
	Code    string `json:"code"`
	Message string `json:"message"`
}

func (e *RequestError) Error() string {
	if e.Code == "" && e.Message == "" {
		return fmt.Sprintf("b2.%s: status %d", e.Op, e.Status)
	}
	return fmt.Sprintf("b2.%s: status %d %s: %s", e.Op, e.Status, e.Code, e.Message)
}

// SendError wraps a transport failure: the request could not be sent or the
// response could not be read.
type SendError struct {
	Op  string
	Err error
}

func (e *SendError) Error() string {
	return fmt.Sprintf("b2.%s: send request: %v", e.Op, e.Err)
}

func (e *SendError) Unwrap() error {
	return e.Err
}

// DecodeError is returned when a successful response body does not match
// the expected shape.
type DecodeError struct {
	Op  string
	Err error
}

func (e *DecodeError) Error() string {
	return fmt.Sprintf("b2.%s: decode response: %v", e.Op, e.Err)
}

func (e *DecodeError) Unwrap() error {
	return e.Err
}

// IsServiceBusy reports whether err is a 503 from the service.
func IsServiceBusy(err error) bool {
	return StatusCode(err) == http.StatusServiceUnavailable
}

// StatusCode returns the HTTP status carried by err, or 0.
func StatusCode(err error) int {
	var reqErr *RequestError
	if errors.As(err, &reqErr) {
		return reqErr.Status
	}
	return 0
}
