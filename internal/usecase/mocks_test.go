package usecase

import (
	"context"
	"encoding/json"
	"iter"
	"slices"
	"strconv"
	"strings"
	"sync"
	"time"

	"jarvis/internal/domain"
)

// --- Engine ---

// scriptedEngine replays fixed output for Run and Stream.
type scriptedEngine struct {
	reply    []domain.Message // appended to the input state by Run
	runErr   error
	frags    []domain.Fragment
	err      error // yielded after frags by Stream
	gotState domain.EngineState
	gotOpts  domain.RunOptions
	pulled   int
}

func (e *scriptedEngine) Run(_ context.Context, state domain.EngineState, opts domain.RunOptions) (domain.EngineState, error) {
	e.gotState, e.gotOpts = state, opts
	state.Messages = append(slices.Clone(state.Messages), e.reply...)
	return state, e.runErr
}

func (e *scriptedEngine) Stream(_ context.Context, state domain.EngineState, opts domain.RunOptions) iter.Seq2[domain.Fragment, error] {
	e.gotState, e.gotOpts = state, opts
	return func(yield func(domain.Fragment, error) bool) {
		for _, f := range e.frags {
			e.pulled++
			if !yield(f, nil) {
				return
			}
		}
		if e.err != nil {
			yield(domain.Fragment{}, e.err)
		}
	}
}

func aiText(text string) domain.Message {
	return domain.Message{Role: domain.RoleAI, Content: domain.Text(text)}
}

func aiCalls(ids ...string) domain.Message {
	m := domain.Message{Role: domain.RoleAI}
	for _, id := range ids {
		m.ToolCalls = append(m.ToolCalls, domain.ToolCall{ID: id, Name: "calculator", Arguments: json.RawMessage(`{}`)})
	}
	return m
}

func toolReply(id, output string) domain.Message {
	return domain.ToolMessage(domain.ToolCall{ID: id, Name: "calculator"}, output)
}

func tokenFrag(text string) domain.Fragment {
	return domain.Fragment{Node: domain.NodeAssistant, Message: aiText(text)}
}

func chunkFrag(chunks ...domain.ToolCallChunk) domain.Fragment {
	return domain.Fragment{Node: domain.NodeAssistant, ToolCallChunks: chunks}
}

func toolFrag(id, output string) domain.Fragment {
	return domain.Fragment{Node: domain.NodeTools, Message: toolReply(id, output), Complete: true}
}

func completeFrag(m domain.Message) domain.Fragment {
	return domain.Fragment{Node: domain.NodeAssistant, Message: m, Complete: true}
}

// --- LLM ---

// mockLLM returns scripted responses in order and records every request.
type mockLLM struct {
	mu        sync.Mutex
	responses []domain.Message
	errs      []error // consumed before responses, one per call
	requests  []domain.ChatRequest
}

func (m *mockLLM) Chat(_ context.Context, req domain.ChatRequest) (*domain.ChatResponse, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.requests = append(m.requests, req)
	if len(m.errs) > 0 {
		err := m.errs[0]
		m.errs = m.errs[1:]
		if err != nil {
			return nil, err
		}
	}
	if len(m.responses) == 0 {
		return &domain.ChatResponse{Message: aiText("fallback")}, nil
	}
	msg := m.responses[0]
	m.responses = m.responses[1:]
	return &domain.ChatResponse{Message: msg}, nil
}

func (m *mockLLM) Name() string { return "mock" }

func (m *mockLLM) calls() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.requests)
}

// mockStreamLLM streams scripted delta sequences, one per call.
type mockStreamLLM struct {
	mockLLM
	streams [][]domain.StreamDelta
}

func (m *mockStreamLLM) ChatStream(ctx context.Context, req domain.ChatRequest) (<-chan domain.StreamDelta, error) {
	m.mu.Lock()
	m.requests = append(m.requests, req)
	var deltas []domain.StreamDelta
	if len(m.streams) > 0 {
		deltas = m.streams[0]
		m.streams = m.streams[1:]
	}
	m.mu.Unlock()

	ch := make(chan domain.StreamDelta)
	go func() {
		defer close(ch)
		for _, d := range deltas {
			select {
			case ch <- d:
			case <-ctx.Done():
				return
			}
		}
	}()
	return ch, nil
}

// --- Tools ---

type mockToolExecutor struct {
	tools map[string]domain.Tool
}

func newToolExecutor(tools ...domain.Tool) *mockToolExecutor {
	m := &mockToolExecutor{tools: make(map[string]domain.Tool)}
	for _, t := range tools {
		m.tools[t.Name()] = t
	}
	return m
}

func (m *mockToolExecutor) Get(name string) (domain.Tool, error) {
	t, ok := m.tools[name]
	if !ok {
		return nil, domain.ErrToolNotFound
	}
	return t, nil
}

func (m *mockToolExecutor) Schemas() []domain.ToolSchema {
	out := make([]domain.ToolSchema, 0, len(m.tools))
	for _, t := range m.tools {
		out = append(out, t.Schema())
	}
	return out
}

type staticTool struct {
	name   string
	result string
	err    error
	mu     sync.Mutex
	params []string
}

func (t *staticTool) Name() string        { return t.name }
func (t *staticTool) Description() string { return "static test tool" }
func (t *staticTool) Schema() domain.ToolSchema {
	return domain.ToolSchema{Name: t.name, Description: t.Description(), Parameters: json.RawMessage(`{"type":"object"}`)}
}

func (t *staticTool) Execute(_ context.Context, params json.RawMessage) (*domain.ToolResult, error) {
	t.mu.Lock()
	t.params = append(t.params, string(params))
	t.mu.Unlock()
	if t.err != nil {
		return nil, t.err
	}
	return &domain.ToolResult{Content: t.result}, nil
}

// --- Stores ---

type memSessions struct {
	mu      sync.Mutex
	data    map[string][]domain.Message
	updated map[string]time.Time
	putErr  error
}

func newMemSessions() *memSessions {
	return &memSessions{data: make(map[string][]domain.Message), updated: make(map[string]time.Time)}
}

func (s *memSessions) Get(_ context.Context, key string) ([]domain.Message, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return slices.Clone(s.data[key]), nil
}

func (s *memSessions) Put(_ context.Context, key string, msgs []domain.Message) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.putErr != nil {
		return s.putErr
	}
	s.data[key] = slices.Clone(msgs)
	s.updated[key] = time.Now()
	return nil
}

func (s *memSessions) List(_ context.Context, opts domain.ListOptions) ([]domain.SessionSummary, int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var keys []string
	for k := range s.data {
		if strings.HasPrefix(k, opts.Prefix) {
			keys = append(keys, k)
		}
	}
	slices.Sort(keys)
	total := len(keys)
	keys = keys[min(opts.Offset, len(keys)):]
	if opts.Limit > 0 && len(keys) > opts.Limit {
		keys = keys[:opts.Limit]
	}
	out := make([]domain.SessionSummary, 0, len(keys))
	for _, k := range keys {
		out = append(out, domain.SessionSummary{Key: k, MessageCount: len(s.data[k]), UpdatedAt: s.updated[k]})
	}
	return out, total, nil
}

func (s *memSessions) Delete(_ context.Context, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.data, key)
	delete(s.updated, key)
	return nil
}

func (s *memSessions) Prune(_ context.Context, before time.Time) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for k, at := range s.updated {
		if at.Before(before) {
			delete(s.data, k)
			delete(s.updated, k)
			n++
		}
	}
	return n, nil
}

type memUsers struct {
	mu     sync.Mutex
	nextID int64
	users  map[int64]*domain.User
	global domain.ConfigOverrides
	config map[int64]domain.ConfigOverrides
}

func newMemUsers() *memUsers {
	return &memUsers{users: make(map[int64]*domain.User), config: make(map[int64]domain.ConfigOverrides)}
}

func (s *memUsers) CreateUser(_ context.Context, nu domain.NewUser) (*domain.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, u := range s.users {
		if u.Username == nu.Username || u.Email == nu.Email {
			return nil, domain.ErrDuplicate
		}
	}
	s.nextID++
	now := time.Now()
	u := &domain.User{
		ID: s.nextID, Username: nu.Username, Email: nu.Email, PasswordHash: nu.PasswordHash,
		Role: nu.Role, IsActive: true, CreatedAt: now, UpdatedAt: now,
	}
	s.users[u.ID] = u
	cp := *u
	return &cp, nil
}

func (s *memUsers) GetUser(_ context.Context, id int64) (*domain.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	u, ok := s.users[id]
	if !ok {
		return nil, domain.ErrUserNotFound
	}
	cp := *u
	return &cp, nil
}

func (s *memUsers) GetUserByUsername(_ context.Context, name string) (*domain.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, u := range s.users {
		if u.Username == name {
			cp := *u
			return &cp, nil
		}
	}
	return nil, domain.ErrUserNotFound
}

func (s *memUsers) ListUsers(_ context.Context) ([]domain.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]domain.User, 0, len(s.users))
	for id := int64(1); id <= s.nextID; id++ {
		if u, ok := s.users[id]; ok {
			out = append(out, *u)
		}
	}
	return out, nil
}

func (s *memUsers) UpdateUser(_ context.Context, id int64, upd domain.UserUpdate) (*domain.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	u, ok := s.users[id]
	if !ok {
		return nil, domain.ErrUserNotFound
	}
	if upd.Email != nil {
		u.Email = *upd.Email
	}
	if upd.Role != nil {
		u.Role = *upd.Role
	}
	if upd.IsActive != nil {
		u.IsActive = *upd.IsActive
	}
	cp := *u
	return &cp, nil
}

func (s *memUsers) UpdatePassword(_ context.Context, id int64, hash string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	u, ok := s.users[id]
	if !ok {
		return domain.ErrUserNotFound
	}
	u.PasswordHash = hash
	return nil
}

func (s *memUsers) DeleteUser(_ context.Context, id int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.users[id]; !ok {
		return domain.ErrUserNotFound
	}
	delete(s.users, id)
	delete(s.config, id)
	return nil
}

func (s *memUsers) CountAdmins(_ context.Context) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for _, u := range s.users {
		if u.Role == domain.AuthRoleAdmin {
			n++
		}
	}
	return n, nil
}

func (s *memUsers) GetGlobalConfig(_ context.Context) (domain.ConfigOverrides, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.global, nil
}

func (s *memUsers) MergeGlobalConfig(_ context.Context, upd domain.ConfigOverrides) (domain.ConfigOverrides, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.global = s.global.Merge(upd)
	return s.global, nil
}

func (s *memUsers) GetUserConfig(_ context.Context, id int64) (domain.ConfigOverrides, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.config[id], nil
}

func (s *memUsers) MergeUserConfig(_ context.Context, id int64, upd domain.ConfigOverrides) (domain.ConfigOverrides, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.config[id] = s.config[id].Merge(upd)
	return s.config[id], nil
}

// --- Auth ---

// plainHasher stores passwords with a fixed prefix.
type plainHasher struct{}

func (plainHasher) Hash(p string) (string, error) { return "hashed:" + p, nil }
func (plainHasher) Verify(hash, p string) bool    { return hash == "hashed:"+p }

// fakeTokens encodes claims as "type|role|id".
type fakeTokens struct{}

func (fakeTokens) Issue(id int64, role domain.AuthRole, typ domain.TokenType) (string, error) {
	return string(typ) + "|" + string(role) + "|" + strconv.FormatInt(id, 10), nil
}

func (fakeTokens) Verify(token string) (*domain.TokenClaims, error) {
	parts := strings.Split(token, "|")
	if len(parts) != 3 {
		return nil, domain.ErrTokenInvalid
	}
	id, err := strconv.ParseInt(parts[2], 10, 64)
	if err != nil {
		return nil, domain.ErrTokenInvalid
	}
	return &domain.TokenClaims{UserID: id, Role: domain.AuthRole(parts[1]), Type: domain.TokenType(parts[0])}, nil
}
