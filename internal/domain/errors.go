package domain

import (
	"errors"
	"fmt"
)

// Category sentinels.
var (
	ErrNotFound     = fmt.Errorf("not found")
	ErrDuplicate    = fmt.Errorf("duplicate")
	ErrInvalidInput = fmt.Errorf("invalid input")
	ErrTimeout      = fmt.Errorf("operation timed out")
)

// Sentinel errors for the domain layer.
var (
	// ErrRecursionLimit is returned by an Engine whose node executions
	// exceeded RunOptions.RecursionLimit.
	ErrRecursionLimit = fmt.Errorf("engine recursion limit reached")

	ErrSessionNotFound = fmt.Errorf("session %w", ErrNotFound)
	ErrUserNotFound    = fmt.Errorf("user %w", ErrNotFound)
	ErrToolNotFound    = fmt.Errorf("tool %w", ErrNotFound)
	ErrStoreCorrupt    = fmt.Errorf("store data is corrupt")
	ErrConfigLoad      = fmt.Errorf("failed to load configuration")
	ErrToolFailure     = fmt.Errorf("tool execution failed")

	// LLM provider errors.
	ErrProviderError       = fmt.Errorf("provider error")
	ErrProviderUnavailable = fmt.Errorf("provider unavailable")
	ErrRateLimit           = fmt.Errorf("rate limit exceeded")
	ErrContextOverflow     = fmt.Errorf("context window exceeded")

	// Auth errors.
	ErrAuthInvalid        = fmt.Errorf("authentication failed")
	ErrInvalidCredentials = fmt.Errorf("invalid credentials: %w", ErrAuthInvalid)
	ErrTokenInvalid       = fmt.Errorf("invalid token: %w", ErrAuthInvalid)
	ErrUserDisabled       = fmt.Errorf("user is disabled")
	ErrForbidden          = fmt.Errorf("forbidden: insufficient permissions")
)

// DomainError wraps a sentinel error with context.
type DomainError struct {
	Op     string // operation name (e.g., "Store.Get")
	Err    error  // underlying sentinel or wrapped error
	Detail string // human-readable detail
}

func (e *DomainError) Error() string {
	if e.Detail != "" {
		return fmt.Sprintf("%s: %s: %s", e.Op, e.Detail, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Op, e.Err)
}

func (e *DomainError) Unwrap() error { return e.Err }

// NewDomainError creates a new DomainError.
func NewDomainError(op string, err error, detail string) *DomainError {
	return &DomainError{Op: op, Err: err, Detail: detail}
}

// WrapOp adds operation context to an error using fmt.Errorf wrapping.
// Returns nil if err is nil, enabling idiomatic use: return domain.WrapOp("op", err)
func WrapOp(op string, err error) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%s: %w", op, err)
}

// IsRetryableError reports whether err is a transient error that may succeed on retry.
func IsRetryableError(err error) bool {
	return errors.Is(err, ErrRateLimit) || errors.Is(err, ErrProviderUnavailable)
}

// ErrorCode is a machine-parseable error category for logs and API clients.
type ErrorCode string

const (
	CodeUnknown          ErrorCode = "UNKNOWN"
	CodeNotFound         ErrorCode = "NOT_FOUND"
	CodeDuplicate        ErrorCode = "DUPLICATE"
	CodeInvalidInput     ErrorCode = "INVALID_INPUT"
	CodeAuthInvalid      ErrorCode = "AUTH_INVALID"
	CodeUserDisabled     ErrorCode = "USER_DISABLED"
	CodeForbidden        ErrorCode = "FORBIDDEN"
	CodeRecursionLimit   ErrorCode = "RECURSION_LIMIT"
	CodeRateLimit        ErrorCode = "RATE_LIMIT"
	CodeProviderError    ErrorCode = "PROVIDER_ERROR"
	CodeStoreCorrupt     ErrorCode = "STORE_CORRUPT"
	CodeToolFailure      ErrorCode = "TOOL_FAILURE"
	CodeContextOverflow  ErrorCode = "CONTEXT_OVERFLOW"
	CodeTimeout          ErrorCode = "TIMEOUT"
	CodeProviderNotReady ErrorCode = "PROVIDER_UNAVAILABLE"
)

// errorCodes is checked in order; the first match wins.
var errorCodes = []struct {
	err  error
	code ErrorCode
}{
	{ErrRecursionLimit, CodeRecursionLimit},
	{ErrUserDisabled, CodeUserDisabled},
	{ErrForbidden, CodeForbidden},
	{ErrAuthInvalid, CodeAuthInvalid},
	{ErrNotFound, CodeNotFound},
	{ErrDuplicate, CodeDuplicate},
	{ErrInvalidInput, CodeInvalidInput},
	{ErrRateLimit, CodeRateLimit},
	{ErrProviderUnavailable, CodeProviderNotReady},
	{ErrContextOverflow, CodeContextOverflow},
	{ErrProviderError, CodeProviderError},
	{ErrStoreCorrupt, CodeStoreCorrupt},
	{ErrToolFailure, CodeToolFailure},
	{ErrTimeout, CodeTimeout},
}

// ErrorCodeOf returns the ErrorCode of the first known sentinel err wraps.
func ErrorCodeOf(err error) ErrorCode {
	if err == nil {
		return ""
	}
	for _, e := range errorCodes {
		if errors.Is(err, e.err) {
			return e.code
		}
	}
	return CodeUnknown
}
