package models

import (
	"errors"
	"fmt"
)

// ErrorKind classifies a failed backend call.
type ErrorKind string

const (
	ErrNetwork ErrorKind = "network"
	ErrHTTP    ErrorKind = "http"
	ErrDecode  ErrorKind = "decode"
	ErrTimeout ErrorKind = "timeout"
)

// FetchError is the only error a slot ever holds.
type FetchError struct {
	Kind       ErrorKind `json:"kind"`
	StatusCode int       `json:"status_code,omitempty"`
	Op         Kind      `json:"op"`
	Message    string    `json:"message"`
	Err        error     `json:"-"`
}

func (e *FetchError) Error() string {
	if e.Kind == ErrHTTP {
		return fmt.Sprintf("%s: http %d: %s", e.Op, e.StatusCode, e.Message)
	}
	return fmt.Sprintf("%s: %s: %s", e.Op, e.Kind, e.Message)
}

func (e *FetchError) Unwrap() error { return e.Err }

// Transport reports whether the call never got a usable answer from the
// server. Timeouts count as transport failures.
func (e *FetchError) Transport() bool {
	return e.Kind == ErrNetwork || e.Kind == ErrTimeout
}

func newFetchError(kind ErrorKind, op Kind, status int, err error) *FetchError {
	msg := string(kind)
	if err != nil {
		msg = err.Error()
	}
	return &FetchError{Kind: kind, StatusCode: status, Op: op, Message: msg, Err: err}
}

// NetworkError wraps a connection level failure.
func NetworkError(op Kind, err error) *FetchError { return newFetchError(ErrNetwork, op, 0, err) }

// HTTPError wraps a non-2xx answer.
func HTTPError(op Kind, status int, err error) *FetchError {
	return newFetchError(ErrHTTP, op, status, err)
}

// DecodeError wraps a malformed or schema mismatched body.
func DecodeError(op Kind, err error) *FetchError { return newFetchError(ErrDecode, op, 0, err) }

// TimeoutError wraps an expired client deadline.
func TimeoutError(op Kind, err error) *FetchError { return newFetchError(ErrTimeout, op, 0, err) }

// AsFetchError extracts a FetchError from err. Unknown errors are reported as
// network failures of op so that slots never hold untyped errors.
func AsFetchError(op Kind, err error) *FetchError {
	if err == nil {
		return nil
	}
	var fe *FetchError
	if errors.As(err, &fe) {
		return fe
	}
	return NetworkError(op, err)
}
