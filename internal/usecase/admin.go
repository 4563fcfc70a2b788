package usecase

import (
	"context"
	"errors"
	"log/slog"
	"strconv"
	"strings"

	"jarvis/internal/domain"
)

// AdminDeps holds injected dependencies for AdminService.
type AdminDeps struct {
	Users    domain.UserStore
	Configs  domain.ConfigStore
	Sessions domain.SessionStore
	Hasher   domain.PasswordHasher
	Logger   *slog.Logger
}

// AdminService implements user, configuration and conversation-log management.
type AdminService struct {
	deps AdminDeps
}

// NewAdminService creates an admin service.
func NewAdminService(deps AdminDeps) *AdminService {
	if deps.Logger == nil {
		deps.Logger = slog.Default()
	}
	return &AdminService{deps: deps}
}

// CreateUserInput is the payload for creating a user.
type CreateUserInput struct {
	Username string          `json:"username"`
	Email    string          `json:"email"`
	Password string          `json:"password"`
	Role     domain.AuthRole `json:"role"`
}

// ListUsers returns every user.
func (s *AdminService) ListUsers(ctx context.Context) ([]domain.User, error) {
	return s.deps.Users.ListUsers(ctx)
}

// GetUser returns one user.
func (s *AdminService) GetUser(ctx context.Context, id int64) (*domain.User, error) {
	return s.deps.Users.GetUser(ctx, id)
}

// CreateUser validates the input, hashes the password and stores the user.
// Duplicate usernames or emails fail with domain.ErrDuplicate.
func (s *AdminService) CreateUser(ctx context.Context, in CreateUserInput) (*domain.User, error) {
	in.Username = strings.TrimSpace(in.Username)
	in.Email = strings.TrimSpace(in.Email)
	if in.Role == "" {
		in.Role = domain.AuthRoleUser
	}
	switch {
	case in.Username == "":
		return nil, domain.NewDomainError("AdminService.CreateUser", domain.ErrInvalidInput, "username is required")
	case in.Email == "":
		return nil, domain.NewDomainError("AdminService.CreateUser", domain.ErrInvalidInput, "email is required")
	case in.Password == "":
		return nil, domain.NewDomainError("AdminService.CreateUser", domain.ErrInvalidInput, "password is required")
	case !in.Role.Valid():
		return nil, domain.NewDomainError("AdminService.CreateUser", domain.ErrInvalidInput, "unknown role "+string(in.Role))
	}

	hash, err := s.deps.Hasher.Hash(in.Password)
	if err != nil {
		return nil, domain.WrapOp("AdminService.CreateUser", err)
	}
	u, err := s.deps.Users.CreateUser(ctx, domain.NewUser{
		Username:     in.Username,
		Email:        in.Email,
		PasswordHash: hash,
		Role:         in.Role,
	})
	if err != nil {
		return nil, err
	}
	s.deps.Logger.Info("user created", "user_id", u.ID, "username", u.Username, "role", u.Role)
	return u, nil
}

// UpdateUser changes email, role or active flag.
func (s *AdminService) UpdateUser(ctx context.Context, id int64, upd domain.UserUpdate) (*domain.User, error) {
	if upd.Role != nil && !upd.Role.Valid() {
		return nil, domain.NewDomainError("AdminService.UpdateUser", domain.ErrInvalidInput, "unknown role "+string(*upd.Role))
	}
	return s.deps.Users.UpdateUser(ctx, id, upd)
}

// SetPassword replaces a user's password.
func (s *AdminService) SetPassword(ctx context.Context, id int64, password string) error {
	if password == "" {
		return domain.NewDomainError("AdminService.SetPassword", domain.ErrInvalidInput, "password is required")
	}
	hash, err := s.deps.Hasher.Hash(password)
	if err != nil {
		return domain.WrapOp("AdminService.SetPassword", err)
	}
	return s.deps.Users.UpdatePassword(ctx, id, hash)
}

// DeleteUser removes a user and its configuration.
func (s *AdminService) DeleteUser(ctx context.Context, id int64) error {
	if err := s.deps.Users.DeleteUser(ctx, id); err != nil {
		return err
	}
	s.deps.Logger.Info("user deleted", "user_id", id)
	return nil
}

// GlobalConfig returns the stored global overrides.
func (s *AdminService) GlobalConfig(ctx context.Context) (domain.ConfigOverrides, error) {
	return s.deps.Configs.GetGlobalConfig(ctx)
}

// UpdateGlobalConfig merges upd into the global overrides.
func (s *AdminService) UpdateGlobalConfig(ctx context.Context, upd domain.ConfigOverrides) (domain.ConfigOverrides, error) {
	if err := ValidateOverrides(upd); err != nil {
		return domain.ConfigOverrides{}, err
	}
	return s.deps.Configs.MergeGlobalConfig(ctx, upd)
}

// UserConfig returns the overrides stored for an existing user.
func (s *AdminService) UserConfig(ctx context.Context, id int64) (domain.ConfigOverrides, error) {
	if _, err := s.deps.Users.GetUser(ctx, id); err != nil {
		return domain.ConfigOverrides{}, err
	}
	return s.deps.Configs.GetUserConfig(ctx, id)
}

// UpdateUserConfig merges upd into an existing user's overrides.
func (s *AdminService) UpdateUserConfig(ctx context.Context, id int64, upd domain.ConfigOverrides) (domain.ConfigOverrides, error) {
	if err := ValidateOverrides(upd); err != nil {
		return domain.ConfigOverrides{}, err
	}
	if _, err := s.deps.Users.GetUser(ctx, id); err != nil {
		return domain.ConfigOverrides{}, err
	}
	return s.deps.Configs.MergeUserConfig(ctx, id, upd)
}

// ThreadSummary describes one stored conversation thread.
type ThreadSummary struct {
	ThreadID     string `json:"thread_id"`
	UserID       *int64 `json:"user_id"`
	Username     string `json:"username,omitempty"`
	MessageCount int    `json:"message_count"`
}

// ThreadList is a page of thread summaries.
type ThreadList struct {
	Threads []ThreadSummary `json:"threads"`
	Total   int             `json:"total"`
}

// ListThreadsInput filters the thread listing.
type ListThreadsInput struct {
	UserID *int64
	Limit  int
	Offset int
}

// ListThreads pages through stored threads, optionally for one user.
func (s *AdminService) ListThreads(ctx context.Context, in ListThreadsInput) (*ThreadList, error) {
	if in.Limit <= 0 {
		in.Limit = 50
	}
	opts := domain.ListOptions{Limit: in.Limit, Offset: max(in.Offset, 0)}
	if in.UserID != nil {
		opts.Prefix = ThreadKey(*in.UserID, "")
	}
	summaries, total, err := s.deps.Sessions.List(ctx, opts)
	if err != nil {
		return nil, domain.WrapOp("AdminService.ListThreads", err)
	}

	usernames := make(map[int64]string)
	out := &ThreadList{Threads: make([]ThreadSummary, 0, len(summaries)), Total: total}
	for _, sum := range summaries {
		ts := ThreadSummary{ThreadID: sum.Key, MessageCount: sum.MessageCount}
		if uid, ok := ThreadOwner(sum.Key); ok {
			ts.UserID = &uid
			name, cached := usernames[uid]
			if !cached {
				if u, err := s.deps.Users.GetUser(ctx, uid); err == nil {
					name = u.Username
				} else if !errors.Is(err, domain.ErrUserNotFound) {
					return nil, domain.WrapOp("AdminService.ListThreads", err)
				}
				usernames[uid] = name
			}
			ts.Username = name
		}
		out.Threads = append(out.Threads, ts)
	}
	return out, nil
}

// LogToolCall is a tool call as shown in conversation logs.
type LogToolCall struct {
	Name string `json:"name"`
	ID   string `json:"id"`
}

// LogMessage is a stored message rendered for conversation logs.
type LogMessage struct {
	Role       string        `json:"role"`
	Content    string        `json:"content"`
	ToolCalls  []LogToolCall `json:"tool_calls,omitempty"`
	ToolCallID string        `json:"tool_call_id,omitempty"`
	Name       string        `json:"name,omitempty"`
}

// ThreadMessages returns the log of a thread with user-facing role names.
func (s *AdminService) ThreadMessages(ctx context.Context, threadID string) ([]LogMessage, error) {
	msgs, err := s.deps.Sessions.Get(ctx, threadID)
	if err != nil {
		return nil, domain.WrapOp("AdminService.ThreadMessages", err)
	}
	out := make([]LogMessage, 0, len(msgs))
	for _, m := range msgs {
		lm := LogMessage{Content: m.Content.Flatten()}
		switch m.Role {
		case domain.RoleHuman:
			lm.Role = "user"
		case domain.RoleAI:
			lm.Role = "assistant"
			for _, tc := range m.ToolCalls {
				lm.ToolCalls = append(lm.ToolCalls, LogToolCall{Name: tc.Name, ID: tc.ID})
			}
		case domain.RoleTool:
			lm.Role = "tool"
			lm.ToolCallID = m.ToolCallID
			lm.Name = m.Name
		default:
			continue
		}
		out = append(out, lm)
	}
	return out, nil
}

// ThreadKey returns the session key of a user's thread.
func ThreadKey(userID int64, thread string) string {
	return strconv.FormatInt(userID, 10) + ":" + thread
}

// ThreadOwner extracts the user id prefix of a thread key.
func ThreadOwner(key string) (int64, bool) {
	prefix, _, found := strings.Cut(key, ":")
	if !found {
		return 0, false
	}
	id, err := strconv.ParseInt(prefix, 10, 64)
	if err != nil || id < 0 {
		return 0, false
	}
	return id, true
}
