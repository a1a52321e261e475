package domain

import (
	"errors"
	"fmt"
)

// ErrorCode classifies failures reported by memory-service collaborators.
type ErrorCode string

const (
	// CodeNotFound is an expected absence of data, not a fault.
	CodeNotFound ErrorCode = "NOT_FOUND"
	// CodeClientNotAvailable means the remote dependency was never initialized.
	CodeClientNotAvailable ErrorCode = "CLIENT_NOT_AVAILABLE"
	CodeStorageFailed      ErrorCode = "STORAGE_FAILED"
	CodeRetrievalFailed    ErrorCode = "RETRIEVAL_FAILED"
)

// ProviderError is the failure result of a provider call.
type ProviderError struct {
	Code ErrorCode
	Op   string
	Err  error
}

func (e *ProviderError) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("%s: %s", e.Op, e.Code)
	}
	return fmt.Sprintf("%s: %s: %v", e.Op, e.Code, e.Err)
}

func (e *ProviderError) Unwrap() error {
	return e.Err
}

// Is matches another ProviderError by code, so errors.Is(err, ErrNotFound) works.
func (e *ProviderError) Is(target error) bool {
	t, ok := target.(*ProviderError)
	if !ok {
		return false
	}
	return t.Code == e.Code && t.Op == ""
}

// Code-only sentinels for errors.Is checks.
var (
	ErrNotFound           = &ProviderError{Code: CodeNotFound}
	ErrClientNotAvailable = &ProviderError{Code: CodeClientNotAvailable}
	ErrStorageFailed      = &ProviderError{Code: CodeStorageFailed}
	ErrRetrievalFailed    = &ProviderError{Code: CodeRetrievalFailed}
)

func NewProviderError(code ErrorCode, op string, err error) *ProviderError {
	return &ProviderError{Code: code, Op: op, Err: err}
}

// CodeOf extracts the ErrorCode carried by err. Errors without one are reported
// as RETRIEVAL_FAILED.
func CodeOf(err error) ErrorCode {
	if err == nil {
		return ""
	}
	var pe *ProviderError
	if errors.As(err, &pe) {
		return pe.Code
	}
	return CodeRetrievalFailed
}

func IsNotFound(err error) bool {
	return CodeOf(err) == CodeNotFound
}
