package gateway

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/url"
	"strings"
	"time"

	"nhooyr.io/websocket"
	"nhooyr.io/websocket/wsjson"

	"jarvis/internal/domain"
)

// StatusAuthFailed closes connections whose token is missing or invalid.
const StatusAuthFailed websocket.StatusCode = 4001

const wsWriteTimeout = 10 * time.Second

// wsEvent is the wire form of one streamed event. Unlike domain.StreamEvent,
// every field of the event kind is always present.
type wsEvent map[string]string

func toWire(ev domain.StreamEvent) wsEvent {
	switch ev.Type {
	case domain.StreamEventToken:
		return wsEvent{"type": string(ev.Type), "content": ev.Content}
	case domain.StreamEventToolStart:
		return wsEvent{"type": string(ev.Type), "name": ev.Name, "call_id": ev.CallID}
	default:
		return wsEvent{"type": string(ev.Type), "name": ev.Name, "call_id": ev.CallID, "output": ev.Output}
	}
}

// originPatterns converts allowed origins to the host patterns expected by
// websocket.AcceptOptions.
func originPatterns(origins []string) []string {
	var out []string
	for _, o := range origins {
		if o == "*" {
			return []string{"*"}
		}
		if u, err := url.Parse(o); err == nil && u.Host != "" {
			out = append(out, u.Host)
		}
	}
	return out
}

// handleWebSocket runs the streaming chat loop. The connection is accepted
// before authentication so failures can be reported with a close code.
func (a *api) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		OriginPatterns: originPatterns(a.cfg.AllowedOrigins),
	})
	if err != nil {
		a.deps.Logger.Warn("websocket accept failed", "error", err)
		return
	}
	defer conn.CloseNow()

	ctx := r.Context()
	token := strings.TrimSpace(r.URL.Query().Get("token"))
	if token == "" {
		conn.Close(StatusAuthFailed, "Missing token.")
		return
	}
	u, err := a.deps.Auth.Authenticate(ctx, token)
	if err != nil {
		conn.Close(StatusAuthFailed, wsAuthReason(err))
		return
	}
	if err := a.deps.Authorizer.Authorize(ctx, []domain.AuthRole{u.Role}, domain.PermChatSend); err != nil {
		conn.Close(StatusAuthFailed, "Insufficient permissions.")
		return
	}

	logger := a.deps.Logger.With("user_id", u.ID)
	logger.Info("websocket connected")
	defer logger.Info("websocket disconnected")

	for {
		// wsjson.Read closes the connection on bad JSON, so frames are
		// decoded here.
		_, data, err := conn.Read(ctx)
		if err != nil {
			if websocket.CloseStatus(err) == -1 && ctx.Err() == nil {
				logger.Debug("websocket read failed", "error", err)
			}
			return
		}
		var req chatRequest
		if err := json.Unmarshal(data, &req); err != nil {
			if a.send(ctx, conn, wsEvent{"type": "error", "content": "Invalid JSON message."}) != nil {
				return
			}
			continue
		}

		if strings.TrimSpace(req.Message) == "" {
			if a.send(ctx, conn, wsEvent{"type": "error", "content": "Field 'message' is required."}) != nil {
				return
			}
			continue
		}
		if err := a.streamTurn(ctx, conn, u, req); err != nil {
			return
		}
	}
}

// streamTurn relays one turn. It returns an error only when the connection
// is no longer writable.
func (a *api) streamTurn(ctx context.Context, conn *websocket.Conn, u *domain.User, req chatRequest) error {
	in, _, err := a.chatInput(ctx, u, req)
	if err != nil {
		return a.send(ctx, conn, wsEvent{"type": "error", "content": detailFor(err, statusFor(err))})
	}

	for ev, err := range a.deps.Chat.Stream(ctx, in) {
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			status := statusFor(err)
			if status >= http.StatusInternalServerError {
				a.deps.Logger.Error("stream turn failed", "user_id", u.ID, "error", err)
			}
			return a.send(ctx, conn, wsEvent{"type": "error", "content": detailFor(err, status)})
		}
		if err := a.send(ctx, conn, toWire(ev)); err != nil {
			return err
		}
	}
	return a.send(ctx, conn, wsEvent{"type": "end"})
}

func (a *api) send(ctx context.Context, conn *websocket.Conn, v wsEvent) error {
	ctx, cancel := context.WithTimeout(ctx, wsWriteTimeout)
	defer cancel()
	return wsjson.Write(ctx, conn, v)
}

func wsAuthReason(err error) string {
	if errors.Is(err, domain.ErrUserDisabled) {
		return "User is disabled."
	}
	if errors.Is(err, domain.ErrAuthInvalid) {
		return "Invalid token."
	}
	return "Authentication failed."
}
