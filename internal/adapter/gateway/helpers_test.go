package gateway

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"iter"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"slices"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"jarvis/internal/adapter/auth"
	"jarvis/internal/adapter/store"
	"jarvis/internal/domain"
	"jarvis/internal/infra/config"
	"jarvis/internal/usecase"
)

const (
	adminUser     = "admin"
	adminPassword = "admin-secret"
)

// scriptedEngine answers Run with reply and Stream with frags.
type scriptedEngine struct {
	reply domain.Message
	frags []domain.Fragment
	err   error
}

func (e *scriptedEngine) Run(_ context.Context, state domain.EngineState, _ domain.RunOptions) (domain.EngineState, error) {
	if e.err != nil {
		return state, e.err
	}
	state.Messages = append(slices.Clone(state.Messages), e.reply)
	return state, nil
}

func (e *scriptedEngine) Stream(_ context.Context, _ domain.EngineState, _ domain.RunOptions) iter.Seq2[domain.Fragment, error] {
	return func(yield func(domain.Fragment, error) bool) {
		for _, f := range e.frags {
			if !yield(f, nil) {
				return
			}
		}
		if e.err != nil {
			yield(domain.Fragment{}, e.err)
		}
	}
}

type staticTools []string

func (s staticTools) Names() []string { return s }

type testEnv struct {
	srv      *httptest.Server
	engine   *scriptedEngine
	sessions *store.MemorySessionStore
	admin    *usecase.AdminService
	metrics  *usecase.TurnMetrics
}

func nopLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	logger := nopLogger()

	users, err := store.NewSQLiteUserStore(filepath.Join(t.TempDir(), "users.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = users.Close() })

	issuer, err := auth.NewJWTIssuer("test-secret", 15*time.Minute, time.Hour)
	require.NoError(t, err)
	hasher := auth.NewBcryptHasher(bcrypt.MinCost)

	sessions := store.NewMemorySessionStore()
	engine := &scriptedEngine{reply: domain.Message{Role: domain.RoleAI, Content: domain.Text("4")}}
	engines := usecase.NewEngineCache(func(usecase.EngineKey) (domain.Engine, error) { return engine, nil }, 4)
	metrics := &usecase.TurnMetrics{}

	authSvc := usecase.NewAuthService(usecase.AuthDeps{Users: users, Hasher: hasher, Tokens: issuer, Logger: logger})
	admin := usecase.NewAdminService(usecase.AdminDeps{
		Users: users, Configs: users, Sessions: sessions, Hasher: hasher, Logger: logger,
	})
	chat := usecase.NewChatService(usecase.ChatDeps{
		Sessions: sessions, Engines: engines, Logger: logger, Metrics: metrics,
	})
	settings := usecase.NewSettingsResolver(domain.ChatSettings{
		SystemPrompt: "You are Jarvis.", Model: "test-model", HistoryWindow: 5, MaxToolSteps: 2,
	}, users)

	_, err = authSvc.SeedAdmin(context.Background(), adminUser, "admin@example.com", adminPassword)
	require.NoError(t, err)

	h := NewHandler(context.Background(), HandlerDeps{
		Auth:     authSvc,
		Admin:    admin,
		Chat:     chat,
		Settings: settings,
		Tools:    staticTools{"calculator", "current_time"},
		Engines:  engines,
		Metrics:  metrics,
		Version:  "test",
		Logger:   logger,
	}, config.GatewayConfig{AllowedOrigins: []string{"*"}})

	srv := httptest.NewServer(h)
	t.Cleanup(srv.Close)
	return &testEnv{srv: srv, engine: engine, sessions: sessions, admin: admin, metrics: metrics}
}

// do sends a JSON request and decodes the response body into out when non-nil.
func (e *testEnv) do(t *testing.T, method, path, token string, body any, out any) *http.Response {
	t.Helper()
	var rdr io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		require.NoError(t, err)
		rdr = bytes.NewReader(raw)
	}
	req, err := http.NewRequest(method, e.srv.URL+path, rdr)
	require.NoError(t, err)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	resp, err := e.srv.Client().Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	if out != nil {
		require.NoError(t, json.NewDecoder(resp.Body).Decode(out))
	}
	return resp
}

func (e *testEnv) login(t *testing.T, username, password string) domain.TokenPair {
	t.Helper()
	var pair domain.TokenPair
	resp := e.do(t, http.MethodPost, "/auth/login", "", loginRequest{Username: username, Password: password}, &pair)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	return pair
}

func (e *testEnv) adminToken(t *testing.T) string {
	t.Helper()
	return e.login(t, adminUser, adminPassword).AccessToken
}

// userToken creates a regular user and returns its access token and id.
func (e *testEnv) userToken(t *testing.T, username string) (string, int64) {
	t.Helper()
	u, err := e.admin.CreateUser(context.Background(), usecase.CreateUserInput{
		Username: username, Email: username + "@example.com", Password: "password123",
	})
	require.NoError(t, err)
	return e.login(t, username, "password123").AccessToken, u.ID
}
