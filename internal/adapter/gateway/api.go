package gateway

import (
	"context"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"jarvis/internal/domain"
	"jarvis/internal/infra/config"
	"jarvis/internal/infra/middleware"
	"jarvis/internal/usecase"
)

// ToolLister reports the registered tool names.
type ToolLister interface {
	Names() []string
}

// EngineStats reports engine cache usage.
type EngineStats interface {
	Stats() usecase.EngineCacheStats
}

// HandlerDeps holds dependencies needed by the HTTP and WebSocket handlers.
type HandlerDeps struct {
	Auth       *usecase.AuthService
	Admin      *usecase.AdminService
	Chat       *usecase.ChatService
	Settings   *usecase.SettingsResolver
	Authorizer domain.Authorizer
	Tools      ToolLister           // can be nil
	Engines    EngineStats          // can be nil
	Metrics    *usecase.TurnMetrics // can be nil
	// DefaultThread names the thread used when a request omits thread_id.
	DefaultThread string
	Version       string
	Logger        *slog.Logger
}

type api struct {
	deps    HandlerDeps
	cfg     config.GatewayConfig
	started time.Time
}

// NewHandler builds the routed handler wrapped in the gateway middleware
// chain. ctx bounds background work such as rate limiter cleanup.
func NewHandler(ctx context.Context, deps HandlerDeps, cfg config.GatewayConfig) http.Handler {
	if deps.Logger == nil {
		deps.Logger = slog.Default()
	}
	if deps.Authorizer == nil {
		deps.Authorizer = &usecase.RBACAuthorizer{}
	}
	if deps.DefaultThread == "" {
		deps.DefaultThread = "default"
	}
	a := &api{deps: deps, cfg: cfg, started: time.Now()}

	mux := http.NewServeMux()
	mux.HandleFunc("GET /healthz", a.handleHealth)

	mux.HandleFunc("POST /auth/login", a.handleLogin)
	mux.HandleFunc("POST /auth/refresh", a.handleRefresh)
	mux.HandleFunc("GET /auth/me", a.authed(domain.PermProfileRead, a.handleMe))

	mux.HandleFunc("POST /chat", a.authed(domain.PermChatSend, a.handleChat))
	mux.HandleFunc("GET /ws", a.handleWebSocket)

	mux.HandleFunc("GET /admin/users", a.authed(domain.PermAdminUsers, a.handleListUsers))
	mux.HandleFunc("POST /admin/users", a.authed(domain.PermAdminUsers, a.handleCreateUser))
	mux.HandleFunc("GET /admin/users/{id}", a.authed(domain.PermAdminUsers, a.handleGetUser))
	mux.HandleFunc("PUT /admin/users/{id}", a.authed(domain.PermAdminUsers, a.handleUpdateUser))
	mux.HandleFunc("DELETE /admin/users/{id}", a.authed(domain.PermAdminUsers, a.handleDeleteUser))
	mux.HandleFunc("PUT /admin/users/{id}/password", a.authed(domain.PermAdminUsers, a.handleSetPassword))

	mux.HandleFunc("GET /admin/config", a.authed(domain.PermAdminConfig, a.handleGetGlobalConfig))
	mux.HandleFunc("PUT /admin/config", a.authed(domain.PermAdminConfig, a.handlePutGlobalConfig))
	mux.HandleFunc("GET /admin/users/{id}/config", a.authed(domain.PermAdminConfig, a.handleGetUserConfig))
	mux.HandleFunc("PUT /admin/users/{id}/config", a.authed(domain.PermAdminConfig, a.handlePutUserConfig))

	mux.HandleFunc("GET /admin/logs", a.authed(domain.PermAdminLogs, a.handleListThreads))
	mux.HandleFunc("GET /admin/logs/{thread_id}", a.authed(domain.PermAdminLogs, a.handleThreadMessages))

	mux.HandleFunc("GET /api/v1/status", a.authed(domain.PermAdminStatus, a.handleStatus))

	mws := []middleware.Middleware{
		middleware.Recover(deps.Logger),
		middleware.RequestID,
		middleware.AccessLog(deps.Logger),
		middleware.SecurityHeaders,
		middleware.CORS(cfg.AllowedOrigins),
	}
	if cfg.RateLimit.Enabled {
		mws = append(mws, middleware.RateLimit(ctx, middleware.RateLimitConfig{
			RequestsPerSecond: cfg.RateLimit.RequestsPerSecond,
			Burst:             cfg.RateLimit.Burst,
		}))
	}
	return middleware.Chain(mux, mws...)
}

func (a *api) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// pathID parses the {id} path value.
func pathID(r *http.Request) (int64, error) {
	id, err := strconv.ParseInt(r.PathValue("id"), 10, 64)
	if err != nil || id <= 0 {
		return 0, domain.NewDomainError("pathID", domain.ErrInvalidInput, "invalid user id")
	}
	return id, nil
}
