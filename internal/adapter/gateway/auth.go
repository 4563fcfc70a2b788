package gateway

import (
	"net/http"
	"strings"

	"jarvis/internal/domain"
)

// bearerToken extracts the token from an "Authorization: Bearer" header.
func bearerToken(r *http.Request) string {
	h := r.Header.Get("Authorization")
	if len(h) > 7 && strings.EqualFold(h[:7], "Bearer ") {
		return strings.TrimSpace(h[7:])
	}
	return ""
}

// authed resolves the access token to an active user, checks perm against
// the user's role and stores the user in the request context.
func (a *api) authed(perm domain.Permission, next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		token := bearerToken(r)
		if token == "" {
			w.Header().Set("WWW-Authenticate", "Bearer")
			writeDetail(w, http.StatusUnauthorized, "Not authenticated.")
			return
		}
		u, err := a.deps.Auth.Authenticate(r.Context(), token)
		if err != nil {
			if statusFor(err) == http.StatusUnauthorized {
				w.Header().Set("WWW-Authenticate", "Bearer")
			}
			a.writeError(w, r, err)
			return
		}
		if err := a.deps.Authorizer.Authorize(r.Context(), []domain.AuthRole{u.Role}, perm); err != nil {
			a.deps.Logger.Info("access denied", "user_id", u.ID, "permission", perm)
			a.writeError(w, r, err)
			return
		}
		next(w, r.WithContext(domain.ContextWithUser(r.Context(), u)))
	}
}

type loginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

func (a *api) handleLogin(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if err := decodeJSON(w, r, &req); err != nil {
		a.writeError(w, r, err)
		return
	}
	pair, err := a.deps.Auth.Login(r.Context(), req.Username, req.Password)
	if err != nil {
		a.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, pair)
}

type refreshRequest struct {
	RefreshToken string `json:"refresh_token"`
}

func (a *api) handleRefresh(w http.ResponseWriter, r *http.Request) {
	var req refreshRequest
	if err := decodeJSON(w, r, &req); err != nil {
		a.writeError(w, r, err)
		return
	}
	pair, err := a.deps.Auth.Refresh(r.Context(), req.RefreshToken)
	if err != nil {
		a.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, pair)
}

type meResponse struct {
	ID       int64           `json:"id"`
	Username string          `json:"username"`
	Email    string          `json:"email"`
	Role     domain.AuthRole `json:"role"`
}

func (a *api) handleMe(w http.ResponseWriter, r *http.Request) {
	u := domain.UserFromContext(r.Context())
	writeJSON(w, http.StatusOK, meResponse{ID: u.ID, Username: u.Username, Email: u.Email, Role: u.Role})
}
