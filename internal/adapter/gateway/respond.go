package gateway

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"

	"jarvis/internal/domain"
)

// maxBodyBytes bounds JSON request bodies.
const maxBodyBytes = 1 << 20

type errorBody struct {
	Detail string `json:"detail"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeDetail(w http.ResponseWriter, status int, detail string) {
	writeJSON(w, status, errorBody{Detail: detail})
}

// writeError maps err to a status code and a client-safe detail.
func (a *api) writeError(w http.ResponseWriter, r *http.Request, err error) {
	status := statusFor(err)
	if status >= http.StatusInternalServerError {
		a.deps.Logger.Error("request failed",
			"method", r.Method, "path", r.URL.Path, "status", status, "error", err)
	}
	writeDetail(w, status, detailFor(err, status))
}

func statusFor(err error) int {
	switch {
	case errors.Is(err, domain.ErrInvalidInput):
		return http.StatusBadRequest
	case errors.Is(err, domain.ErrAuthInvalid):
		return http.StatusUnauthorized
	case errors.Is(err, domain.ErrUserDisabled), errors.Is(err, domain.ErrForbidden):
		return http.StatusForbidden
	case errors.Is(err, domain.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, domain.ErrDuplicate):
		return http.StatusConflict
	case errors.Is(err, domain.ErrRateLimit):
		return http.StatusTooManyRequests
	case errors.Is(err, domain.ErrProviderUnavailable):
		return http.StatusServiceUnavailable
	case errors.Is(err, domain.ErrTimeout):
		return http.StatusGatewayTimeout
	case errors.Is(err, domain.ErrProviderError), errors.Is(err, domain.ErrContextOverflow):
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

// detailFor prefers the DomainError detail for client errors and never
// exposes internal error text for server errors.
func detailFor(err error, status int) string {
	switch status {
	case http.StatusUnauthorized:
		if errors.Is(err, domain.ErrInvalidCredentials) {
			return "Invalid credentials."
		}
		return "Invalid or expired token."
	case http.StatusForbidden:
		if errors.Is(err, domain.ErrUserDisabled) {
			return "User is disabled."
		}
		return "Insufficient permissions."
	case http.StatusNotFound:
		if errors.Is(err, domain.ErrUserNotFound) {
			return "User not found."
		}
		return "Not found."
	case http.StatusConflict:
		return "Username or email already exists."
	case http.StatusTooManyRequests:
		return "Model rate limit exceeded, try again later."
	case http.StatusServiceUnavailable:
		return "Model provider unavailable."
	case http.StatusGatewayTimeout:
		return "Model request timed out."
	case http.StatusBadGateway:
		return "Model provider error."
	case http.StatusInternalServerError:
		return "Internal server error."
	}
	var de *domain.DomainError
	if errors.As(err, &de) && de.Detail != "" {
		return de.Detail
	}
	return err.Error()
}

// decodeJSON reads a bounded JSON body into v. Unknown fields are rejected.
func decodeJSON(w http.ResponseWriter, r *http.Request, v any) error {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		if errors.Is(err, io.EOF) {
			return domain.NewDomainError("decode", domain.ErrInvalidInput, "request body is required")
		}
		return domain.NewDomainError("decode", domain.ErrInvalidInput, fmt.Sprintf("invalid JSON body: %v", err))
	}
	return nil
}
