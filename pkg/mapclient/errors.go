package mapclient

import (
	"errors"
	"fmt"
	"net/http"
)

var (
	// ErrInvalidObject: the server refused the request body or path.
	ErrInvalidObject = errors.New("invalid object")
	// ErrObjectConflict: the object already exists. It is also an ErrInvalidObject.
	ErrObjectConflict = fmt.Errorf("%w: object already exists", ErrInvalidObject)
	// ErrInvalidRange: the tree size asked for is not available or cannot be expressed.
	ErrInvalidRange = errors.New("invalid range")
	ErrUnauthorized = errors.New("unauthorized access")
	ErrNotFound     = errors.New("object not found")
	// ErrInternal: unexpected server status, or a response that cannot be decoded. Both
	// indicate a protocol mismatch and are never retried.
	ErrInternal = errors.New("internal error")
	// ErrInterrupted: a blocking wait was cancelled.
	ErrInterrupted = errors.New("interrupted")
	// ErrEntryFormat: downloaded bytes cannot be reconstructed with the requested format.
	ErrEntryFormat = errors.New("entry does not match requested format")
)

// RequestError is returned when the service answers a request with a non-OK status.
type RequestError struct {
	Op         string
	Method     string
	Path       string
	StatusCode int
	Err        error
}

func (e *RequestError) Error() string {
	return fmt.Sprintf("%s | %s %s | status %d: %v", e.Op, e.Method, e.Path, e.StatusCode, e.Err)
}

func (e *RequestError) Unwrap() error {
	return e.Err
}

// statusError maps a non-OK HTTP status to the error taxonomy. It returns nil for 200.
func statusError(op, method, path string, status int) error {
	var err error
	switch status {
	case http.StatusOK:
		return nil
	case http.StatusBadRequest:
		err = ErrInvalidObject
	case http.StatusForbidden:
		err = ErrUnauthorized
	case http.StatusNotFound:
		err = ErrNotFound
	case http.StatusConflict:
		err = ErrObjectConflict
	default:
		err = ErrInternal
	}
	return &RequestError{
		Op:         op,
		Method:     method,
		Path:       path,
		StatusCode: status,
		Err:        err,
	}
}
