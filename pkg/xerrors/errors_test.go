package xerrors

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestAppError_Error(t *testing.T) {
	tests := []struct {
		name     string
		err      *AppError
		expected string
	}{
		{
			name:     "without underlying error",
			err:      New(CodeInvariant, "duplicate master copy"),
			expected: "[INVARIANT_ERROR] duplicate master copy",
		},
		{
			name:     "with underlying error",
			err:      Wrap(CodeResource, "message pack failed", errors.New("buffer exhausted")),
			expected: "[RESOURCE_ERROR] message pack failed: buffer exhausted",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, tt.err.Error())
		})
	}
}

func TestAppError_Unwrap(t *testing.T) {
	underlying := errors.New("underlying error")
	err := Wrap(CodeProtocol, "connect failed", underlying)

	unwrapped := err.Unwrap()
	assert.Equal(t, underlying, unwrapped)
}

func TestAppError_Is(t *testing.T) {
	err1 := New(CodeUsage, "error 1")
	err2 := New(CodeUsage, "error 2")
	err3 := New(CodeResource, "error 3")

	assert.True(t, errors.Is(err1, err2))
	assert.False(t, errors.Is(err1, err3))
}

func TestIsResource(t *testing.T) {
	tests := []struct {
		name     string
		err      error
		expected bool
	}{
		{name: "sentinel no-mem", err: ErrNoMem, expected: true},
		{name: "wrapped resource error", err: Wrap(CodeResource, "oom", errors.New("malloc failed")), expected: true},
		{name: "other error", err: ErrBadMode, expected: false},
		{name: "nil error", err: nil, expected: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, IsResource(tt.err))
		})
	}
}

func TestIsUsage(t *testing.T) {
	assert.True(t, IsUsage(ErrBadMode))
	assert.True(t, IsUsage(ErrSelfDest))
	assert.False(t, IsUsage(ErrNoMem))
}

func TestIsProtocol(t *testing.T) {
	assert.True(t, IsProtocol(ErrProtocol))
	assert.False(t, IsProtocol(ErrNoMem))
}

func TestIsInvariant(t *testing.T) {
	assert.True(t, IsInvariant(ErrNoCoupling))
	assert.False(t, IsInvariant(ErrNoMem))
}

func TestGetErrorCode(t *testing.T) {
	tests := []struct {
		name     string
		err      error
		expected string
	}{
		{
			name:     "app error",
			err:      New(CodeInvariant, "bad state"),
			expected: CodeInvariant,
		},
		{
			name:     "wrapped app error",
			err:      Wrap(CodeResource, "oom", errors.New("inner")),
			expected: CodeResource,
		},
		{
			name:     "standard error",
			err:      errors.New("standard error"),
			expected: CodeUnknown,
		},
		{
			name:     "nil error",
			err:      nil,
			expected: CodeUnknown,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, GetErrorCode(tt.err))
		})
	}
}

func TestGetErrorMessage(t *testing.T) {
	tests := []struct {
		name     string
		err      error
		expected string
	}{
		{
			name:     "app error",
			err:      New(CodeInvariant, "duplicate master"),
			expected: "duplicate master",
		},
		{
			name:     "standard error",
			err:      errors.New("standard error"),
			expected: "standard error",
		},
		{
			name:     "nil error",
			err:      nil,
			expected: "",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, GetErrorMessage(tt.err))
		})
	}
}
