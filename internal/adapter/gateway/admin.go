package gateway

import (
	"net/http"
	"strconv"

	"jarvis/internal/domain"
	"jarvis/internal/usecase"
)

func (a *api) handleListUsers(w http.ResponseWriter, r *http.Request) {
	users, err := a.deps.Admin.ListUsers(r.Context())
	if err != nil {
		a.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, users)
}

func (a *api) handleCreateUser(w http.ResponseWriter, r *http.Request) {
	var in usecase.CreateUserInput
	if err := decodeJSON(w, r, &in); err != nil {
		a.writeError(w, r, err)
		return
	}
	u, err := a.deps.Admin.CreateUser(r.Context(), in)
	if err != nil {
		a.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, u)
}

func (a *api) handleGetUser(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		a.writeError(w, r, err)
		return
	}
	u, err := a.deps.Admin.GetUser(r.Context(), id)
	if err != nil {
		a.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, u)
}

func (a *api) handleUpdateUser(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		a.writeError(w, r, err)
		return
	}
	var upd domain.UserUpdate
	if err := decodeJSON(w, r, &upd); err != nil {
		a.writeError(w, r, err)
		return
	}
	u, err := a.deps.Admin.UpdateUser(r.Context(), id, upd)
	if err != nil {
		a.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, u)
}

func (a *api) handleDeleteUser(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		a.writeError(w, r, err)
		return
	}
	if err := a.deps.Admin.DeleteUser(r.Context(), id); err != nil {
		a.writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

type passwordRequest struct {
	Password string `json:"password"`
}

func (a *api) handleSetPassword(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		a.writeError(w, r, err)
		return
	}
	var req passwordRequest
	if err := decodeJSON(w, r, &req); err != nil {
		a.writeError(w, r, err)
		return
	}
	if err := a.deps.Admin.SetPassword(r.Context(), id, req.Password); err != nil {
		a.writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (a *api) handleGetGlobalConfig(w http.ResponseWriter, r *http.Request) {
	cfg, err := a.deps.Admin.GlobalConfig(r.Context())
	if err != nil {
		a.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, cfg)
}

func (a *api) handlePutGlobalConfig(w http.ResponseWriter, r *http.Request) {
	var upd domain.ConfigOverrides
	if err := decodeJSON(w, r, &upd); err != nil {
		a.writeError(w, r, err)
		return
	}
	cfg, err := a.deps.Admin.UpdateGlobalConfig(r.Context(), upd)
	if err != nil {
		a.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, cfg)
}

func (a *api) handleGetUserConfig(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		a.writeError(w, r, err)
		return
	}
	cfg, err := a.deps.Admin.UserConfig(r.Context(), id)
	if err != nil {
		a.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, cfg)
}

func (a *api) handlePutUserConfig(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		a.writeError(w, r, err)
		return
	}
	var upd domain.ConfigOverrides
	if err := decodeJSON(w, r, &upd); err != nil {
		a.writeError(w, r, err)
		return
	}
	cfg, err := a.deps.Admin.UpdateUserConfig(r.Context(), id, upd)
	if err != nil {
		a.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, cfg)
}

// queryInt parses an optional integer query parameter.
func queryInt(r *http.Request, name string, def int) (int, error) {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		return def, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n < 0 {
		return 0, domain.NewDomainError("query", domain.ErrInvalidInput, name+" must be a non-negative integer")
	}
	return n, nil
}

func (a *api) handleListThreads(w http.ResponseWriter, r *http.Request) {
	var in usecase.ListThreadsInput
	var err error
	if in.Limit, err = queryInt(r, "limit", 50); err != nil {
		a.writeError(w, r, err)
		return
	}
	if in.Offset, err = queryInt(r, "offset", 0); err != nil {
		a.writeError(w, r, err)
		return
	}
	if raw := r.URL.Query().Get("user_id"); raw != "" {
		uid, err := strconv.ParseInt(raw, 10, 64)
		if err != nil {
			a.writeError(w, r, domain.NewDomainError("query", domain.ErrInvalidInput, "user_id must be an integer"))
			return
		}
		in.UserID = &uid
	}

	list, err := a.deps.Admin.ListThreads(r.Context(), in)
	if err != nil {
		a.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, list)
}

type threadMessagesResponse struct {
	ThreadID string               `json:"thread_id"`
	Messages []usecase.LogMessage `json:"messages"`
}

func (a *api) handleThreadMessages(w http.ResponseWriter, r *http.Request) {
	threadID := r.PathValue("thread_id")
	msgs, err := a.deps.Admin.ThreadMessages(r.Context(), threadID)
	if err != nil {
		a.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, threadMessagesResponse{ThreadID: threadID, Messages: msgs})
}
