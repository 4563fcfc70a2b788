package usecase

import (
	"context"
	"errors"
	"regexp"
	"strconv"
	"strings"

	"jarvis/internal/domain"
)

// ErrorCategory indicates whether an error is retryable or permanent.
type ErrorCategory int

const (
	ErrorCategoryUnknown   ErrorCategory = iota
	ErrorCategoryRetryable               // 429, 5xx, connection errors
	ErrorCategoryPermanent               // 4xx, auth, context overflow, open breaker
)

func (c ErrorCategory) String() string {
	switch c {
	case ErrorCategoryRetryable:
		return "retryable"
	case ErrorCategoryPermanent:
		return "permanent"
	default:
		return "unknown"
	}
}

// ClassifiedError holds the result of error classification.
type ClassifiedError struct {
	Original   error
	Category   ErrorCategory
	Sentinel   error // mapped domain sentinel (e.g. domain.ErrRateLimit), or nil
	StatusCode int   // extracted HTTP status, or 0 if unknown
}

// Retryable reports whether the call may succeed when repeated.
func (c ClassifiedError) Retryable() bool { return c.Category == ErrorCategoryRetryable }

// ErrorClassifier decides which LLM provider failures the engine retries.
type ErrorClassifier struct{}

// NewErrorClassifier creates a new classifier.
func NewErrorClassifier() *ErrorClassifier {
	return &ErrorClassifier{}
}

// apiErrorPattern matches "API error <status_code>:" produced by the LLM adapters.
var apiErrorPattern = regexp.MustCompile(`API error (\d+):`)

// sentinelRules are checked in order against errors.Is.
var sentinelRules = []struct {
	sentinel error
	category ErrorCategory
}{
	{domain.ErrRateLimit, ErrorCategoryRetryable},
	{domain.ErrProviderUnavailable, ErrorCategoryPermanent},
	{domain.ErrContextOverflow, ErrorCategoryPermanent},
	{domain.ErrAuthInvalid, ErrorCategoryPermanent},
}

// transientPatterns are lower-case substrings of network failures.
var transientPatterns = []string{
	"connection refused", "no such host", "timeout",
	"deadline exceeded", "connection reset", "unexpected eof",
}

// Classify inspects an error returned by an LLM provider.
func (c *ErrorClassifier) Classify(err error) ClassifiedError {
	if err == nil {
		return ClassifiedError{}
	}
	// The caller gave up; never retry.
	if errors.Is(err, context.Canceled) {
		return ClassifiedError{Original: err, Category: ErrorCategoryPermanent}
	}

	for _, r := range sentinelRules {
		if errors.Is(err, r.sentinel) {
			return ClassifiedError{Original: err, Category: r.category, Sentinel: r.sentinel}
		}
	}

	errStr := err.Error()
	if m := apiErrorPattern.FindStringSubmatch(errStr); len(m) == 2 {
		code, _ := strconv.Atoi(m[1])
		return classifyStatus(err, code)
	}

	lower := strings.ToLower(errStr)
	if strings.Contains(lower, "rate limit") || strings.Contains(lower, "too many requests") {
		return ClassifiedError{Original: err, Category: ErrorCategoryRetryable, Sentinel: domain.ErrRateLimit}
	}
	for _, p := range transientPatterns {
		if strings.Contains(lower, p) {
			return ClassifiedError{Original: err, Category: ErrorCategoryRetryable}
		}
	}
	return ClassifiedError{Original: err, Category: ErrorCategoryUnknown}
}

func classifyStatus(err error, code int) ClassifiedError {
	ce := ClassifiedError{Original: err, Category: ErrorCategoryPermanent, StatusCode: code}
	switch {
	case code == 429:
		ce.Category, ce.Sentinel = ErrorCategoryRetryable, domain.ErrRateLimit
	case code == 401 || code == 403:
		ce.Sentinel = domain.ErrAuthInvalid
	case code == 413:
		ce.Sentinel = domain.ErrContextOverflow
	case code == 408 || (code >= 500 && code < 600):
		ce.Category = ErrorCategoryRetryable
	}
	return ce
}
