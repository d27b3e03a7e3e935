package backend

import (
	"errors"
	"fmt"
)

// ConnectionError means no response was received from the backend.
type ConnectionError struct {
	Op  string
	URL string
	Err error
}

func (e *ConnectionError) Error() string {
	return fmt.Sprintf("%s %s: %v", e.Op, e.URL, e.Err)
}

func (e *ConnectionError) Unwrap() error {
	return e.Err
}

// HTTPError carries a non-200 status and the response body verbatim.
type HTTPError struct {
	StatusCode int
	Body       string
}

func (e *HTTPError) Error() string {
	return fmt.Sprintf("Error: %d\n%s", e.StatusCode, e.Body)
}

// ParseError means a payload (uploaded file or response body) was not the expected JSON.
type ParseError struct {
	Source string
	Err    error
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("invalid %s: %v", e.Source, e.Err)
}

func (e *ParseError) Unwrap() error {
	return e.Err
}

func IsConnection(err error) bool {
	var target *ConnectionError
	return errors.As(err, &target)
}

// AsHTTPError returns the HTTPError wrapped in err, if any.
func AsHTTPError(err error) (*HTTPError, bool) {
	var target *HTTPError
	ok := errors.As(err, &target)
	return target, ok
}

func IsParse(err error) bool {
	var target *ParseError
	return errors.As(err, &target)
}
