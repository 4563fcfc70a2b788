package tool

import (
	"context"
	"errors"
	"net"
	"strings"
	"syscall"

	"jarvis/internal/domain"
)

// transientHints match error text from libraries that do not wrap a
// sentinel. Compared in lower case.
var transientHints = []string{"connection refused", "connection reset", "temporarily unavailable", "try again"}

// isTransient reports whether a failed tool call may succeed when repeated.
// Cancellation is never transient: the caller gave up.
func isTransient(err error) bool {
	switch {
	case err == nil, errors.Is(err, context.Canceled):
		return false
	case errors.Is(err, domain.ErrTimeout),
		errors.Is(err, domain.ErrRateLimit),
		errors.Is(err, context.DeadlineExceeded),
		errors.Is(err, syscall.ECONNREFUSED),
		errors.Is(err, syscall.ECONNRESET):
		return true
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return true
	}
	msg := strings.ToLower(err.Error())
	for _, hint := range transientHints {
		if strings.Contains(msg, hint) {
			return true
		}
	}
	return false
}
