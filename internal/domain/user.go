package domain

import "time"

// User is a registered account.
type User struct {
	ID           int64     `json:"id"`
	Username     string    `json:"username"`
	Email        string    `json:"email"`
	PasswordHash string    `json:"-"`
	Role         AuthRole  `json:"role"`
	IsActive     bool      `json:"is_active"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
}

// IsAdmin reports whether the user holds the admin role.
func (u *User) IsAdmin() bool { return u.Role == AuthRoleAdmin }

// NewUser holds the fields needed to create a user.
type NewUser struct {
	Username     string
	Email        string
	PasswordHash string
	Role         AuthRole
}

// UserUpdate lists the mutable user fields; nil fields are left unchanged.
type UserUpdate struct {
	Email    *string   `json:"email,omitempty"`
	Role     *AuthRole `json:"role,omitempty"`
	IsActive *bool     `json:"is_active,omitempty"`
}

// ChatSettings are the per-turn knobs of a conversation.
type ChatSettings struct {
	SystemPrompt  string `json:"system_prompt"`
	Model         string `json:"model_name"`
	HistoryWindow int    `json:"history_window"`
	MaxToolSteps  int    `json:"max_tool_steps"`
}

// ConfigOverrides is a partial ChatSettings; nil fields are not set.
type ConfigOverrides struct {
	SystemPrompt  *string `json:"system_prompt,omitempty"`
	Model         *string `json:"model_name,omitempty"`
	HistoryWindow *int    `json:"history_window,omitempty"`
	MaxToolSteps  *int    `json:"max_tool_steps,omitempty"`
}

// Merge returns o with every field set in upd replaced.
func (o ConfigOverrides) Merge(upd ConfigOverrides) ConfigOverrides {
	if upd.SystemPrompt != nil {
		o.SystemPrompt = upd.SystemPrompt
	}
	if upd.Model != nil {
		o.Model = upd.Model
	}
	if upd.HistoryWindow != nil {
		o.HistoryWindow = upd.HistoryWindow
	}
	if upd.MaxToolSteps != nil {
		o.MaxToolSteps = upd.MaxToolSteps
	}
	return o
}

// Apply overlays the set fields of o onto s.
func (o ConfigOverrides) Apply(s ChatSettings) ChatSettings {
	if o.SystemPrompt != nil {
		s.SystemPrompt = *o.SystemPrompt
	}
	if o.Model != nil {
		s.Model = *o.Model
	}
	if o.HistoryWindow != nil {
		s.HistoryWindow = *o.HistoryWindow
	}
	if o.MaxToolSteps != nil {
		s.MaxToolSteps = *o.MaxToolSteps
	}
	return s
}

// TokenType distinguishes access from refresh tokens.
type TokenType string

const (
	TokenAccess  TokenType = "access"
	TokenRefresh TokenType = "refresh"
)

// TokenClaims are the verified contents of an auth token.
type TokenClaims struct {
	UserID    int64
	Role      AuthRole
	Type      TokenType
	ExpiresAt time.Time
}

// TokenPair is returned on login and refresh.
type TokenPair struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token"`
	TokenType    string `json:"token_type"`
}

// TokenIssuer signs and verifies auth tokens.
type TokenIssuer interface {
	Issue(userID int64, role AuthRole, typ TokenType) (string, error)
	Verify(token string) (*TokenClaims, error)
}

// PasswordHasher hashes and checks passwords.
type PasswordHasher interface {
	Hash(password string) (string, error)
	Verify(hash, password string) bool
}
