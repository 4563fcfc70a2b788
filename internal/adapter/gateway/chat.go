package gateway

import (
	"context"
	"net/http"
	"strings"

	"jarvis/internal/domain"
	"jarvis/internal/usecase"
)

type chatRequest struct {
	Message  string `json:"message"`
	ThreadID string `json:"thread_id,omitempty"`
}

type chatResponse struct {
	Response string `json:"response"`
	ThreadID string `json:"thread_id"`
}

// chatInput scopes the thread to the user and resolves their settings.
// It returns the client-facing thread name alongside the input.
func (a *api) chatInput(ctx context.Context, u *domain.User, req chatRequest) (usecase.ChatInput, string, error) {
	thread := strings.TrimSpace(req.ThreadID)
	if thread == "" {
		thread = a.deps.DefaultThread
	}
	settings, err := a.deps.Settings.Resolve(ctx, u.ID)
	if err != nil {
		return usecase.ChatInput{}, "", err
	}
	return usecase.ChatInput{
		SessionKey: usecase.ThreadKey(u.ID, thread),
		Text:       req.Message,
		Settings:   settings,
	}, thread, nil
}

func (a *api) handleChat(w http.ResponseWriter, r *http.Request) {
	var req chatRequest
	if err := decodeJSON(w, r, &req); err != nil {
		a.writeError(w, r, err)
		return
	}
	u := domain.UserFromContext(r.Context())
	in, thread, err := a.chatInput(r.Context(), u, req)
	if err != nil {
		a.writeError(w, r, err)
		return
	}

	result, err := a.deps.Chat.Send(r.Context(), in)
	if err != nil {
		a.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, chatResponse{Response: result.Answer, ThreadID: thread})
}
