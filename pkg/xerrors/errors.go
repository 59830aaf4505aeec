// Package xerrors defines the closed set of error kinds used across the
// grid core (spec §7): usage, resource, protocol, invariant,
// reference-collision and configuration errors.
package xerrors

import (
	"errors"
	"fmt"
)

// Error codes for the application.
const (
	CodeUnknown      = "UNKNOWN_ERROR"
	CodeUsage        = "USAGE_ERROR"
	CodeResource     = "RESOURCE_ERROR"
	CodeProtocol     = "PROTOCOL_ERROR"
	CodeInvariant    = "INVARIANT_ERROR"
	CodeRefCollision = "REF_COLLISION"
	CodeConfigError  = "CONFIG_ERROR"
)

// AppError represents an application error with a code and message.
type AppError struct {
	Code    string
	Message string
	Err     error
}

// Error implements the error interface.
func (e *AppError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("[%s] %s: %v", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

// Unwrap returns the underlying error.
func (e *AppError) Unwrap() error {
	return e.Err
}

// Is checks if the error matches the target by code.
func (e *AppError) Is(target error) bool {
	t, ok := target.(*AppError)
	if !ok {
		return false
	}
	return e.Code == t.Code
}

// New creates a new AppError.
func New(code string, message string) *AppError {
	return &AppError{Code: code, Message: message}
}

// Wrap wraps an existing error with an AppError.
func Wrap(code string, message string, err error) *AppError {
	return &AppError{Code: code, Message: message, Err: err}
}

// Sentinel errors, one family per spec §7 error kind.
var (
	// ErrNoMem is RET_ERROR_NOMEM: out-of-memory before the point of no
	// return during message planning/packing.
	ErrNoMem = New(CodeResource, "out of memory")
	// ErrBadMode is raised when an entry point is called in the wrong
	// XMODE_* state (e.g. XferEnd without a matching XferBegin).
	ErrBadMode = New(CodeUsage, "invalid transfer mode transition")
	// ErrSelfDest is raised when a coupling/copy targets the local
	// processor where that is disallowed.
	ErrSelfDest = New(CodeUsage, "destination processor is local processor")
	// ErrNoCoupling is raised by ModCoupling when no coupling exists for
	// the given (header, proc) pair.
	ErrNoCoupling = New(CodeInvariant, "no coupling to requested processor")
	// ErrProtocol marks a globally-known exception code that must shut
	// down the exchange symmetrically across all processors.
	ErrProtocol = New(CodeProtocol, "transfer protocol exception")
	ErrConfig   = New(CodeConfigError, "configuration error")
)

// GetErrorCode extracts the error code from an error.
func GetErrorCode(err error) string {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr.Code
	}
	return CodeUnknown
}

// GetErrorMessage extracts the error message from an error.
func GetErrorMessage(err error) string {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr.Message
	}
	if err != nil {
		return err.Error()
	}
	return ""
}

// IsResource reports whether err is a resource-class error (out of memory).
func IsResource(err error) bool {
	return errors.Is(err, ErrNoMem) || GetErrorCode(err) == CodeResource
}

// IsUsage reports whether err is a usage-class error.
func IsUsage(err error) bool {
	return GetErrorCode(err) == CodeUsage
}

// IsProtocol reports whether err is a protocol-class error.
func IsProtocol(err error) bool {
	return GetErrorCode(err) == CodeProtocol
}

// IsInvariant reports whether err is an invariant-class error.
func IsInvariant(err error) bool {
	return GetErrorCode(err) == CodeInvariant
}
