package client

import (
	"errors"
	"fmt"
)

const (
	defaultErrorMessage  = "An error occurred"
	downloadErrorMessage = "Failed to download file"
	parseErrorMessage    = "Failed to parse response"
)

// RemoteError is returned when the store rejects a request or cannot be
// reached. Error returns the server's message verbatim.
type RemoteError struct {
	Op         string
	Path       string
	StatusCode int // 0 when the request never got a response
	Message    string
	Err        error // transport error, if any
}

func (e *RemoteError) Error() string {
	return e.Message
}

func (e *RemoteError) Unwrap() error {
	return e.Err
}

// Detail returns a log-friendly description including op and status.
func (e *RemoteError) Detail() string {
	if e.StatusCode == 0 {
		return fmt.Sprintf("%s %q: %s", e.Op, e.Path, e.Message)
	}
	return fmt.Sprintf("%s %q: status %d: %s", e.Op, e.Path, e.StatusCode, e.Message)
}

// AsRemote checks if an error is a RemoteError and returns it.
func AsRemote(err error) (*RemoteError, bool) {
	var re *RemoteError
	if errors.As(err, &re) {
		return re, true
	}
	return nil, false
}

// ParseError is returned when a success response body cannot be decoded.
type ParseError struct {
	Op   string
	Path string
	Err  error
}

func (e *ParseError) Error() string {
	return parseErrorMessage
}

func (e *ParseError) Unwrap() error {
	return e.Err
}

// AsParse checks if an error is a ParseError and returns it.
func AsParse(err error) (*ParseError, bool) {
	var pe *ParseError
	if errors.As(err, &pe) {
		return pe, true
	}
	return nil, false
}
