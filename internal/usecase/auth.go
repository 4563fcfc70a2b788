package usecase

import (
	"context"
	"errors"
	"log/slog"
	"strings"

	"jarvis/internal/domain"
)

// RBACAuthorizer implements domain.Authorizer with the fixed role grants.
type RBACAuthorizer struct{}

// Authorize checks if any of the given roles grants the specified permission.
// Returns domain.ErrForbidden if none of the roles have the permission.
func (a *RBACAuthorizer) Authorize(_ context.Context, roles []domain.AuthRole, perm domain.Permission) error {
	for _, role := range roles {
		if role.Can(perm) {
			return nil
		}
	}
	return domain.ErrForbidden
}

// AuthDeps holds injected dependencies for AuthService.
type AuthDeps struct {
	Users  domain.UserStore
	Hasher domain.PasswordHasher
	Tokens domain.TokenIssuer
	Logger *slog.Logger
}

// AuthService handles login, token refresh and request authentication.
type AuthService struct {
	deps AuthDeps
}

// NewAuthService creates an auth service.
func NewAuthService(deps AuthDeps) *AuthService {
	if deps.Logger == nil {
		deps.Logger = slog.Default()
	}
	return &AuthService{deps: deps}
}

// Login verifies credentials and issues a token pair.
func (s *AuthService) Login(ctx context.Context, username, password string) (*domain.TokenPair, error) {
	u, err := s.deps.Users.GetUserByUsername(ctx, username)
	if errors.Is(err, domain.ErrUserNotFound) {
		return nil, domain.ErrInvalidCredentials
	}
	if err != nil {
		return nil, domain.WrapOp("AuthService.Login", err)
	}
	if !s.deps.Hasher.Verify(u.PasswordHash, password) {
		s.deps.Logger.Info("login rejected", "username", username)
		return nil, domain.ErrInvalidCredentials
	}
	if !u.IsActive {
		return nil, domain.ErrUserDisabled
	}
	return s.issuePair(u)
}

// Refresh exchanges a valid refresh token of an active user for a new pair.
func (s *AuthService) Refresh(ctx context.Context, refreshToken string) (*domain.TokenPair, error) {
	u, err := s.userFromToken(ctx, refreshToken, domain.TokenRefresh)
	if err != nil {
		return nil, err
	}
	return s.issuePair(u)
}

// Authenticate resolves an access token to its active user.
func (s *AuthService) Authenticate(ctx context.Context, accessToken string) (*domain.User, error) {
	return s.userFromToken(ctx, accessToken, domain.TokenAccess)
}

func (s *AuthService) userFromToken(ctx context.Context, token string, want domain.TokenType) (*domain.User, error) {
	if strings.TrimSpace(token) == "" {
		return nil, domain.NewDomainError("AuthService", domain.ErrTokenInvalid, "missing token")
	}
	claims, err := s.deps.Tokens.Verify(token)
	if err != nil {
		return nil, err
	}
	if claims.Type != want {
		return nil, domain.NewDomainError("AuthService", domain.ErrTokenInvalid, "want "+string(want)+" token")
	}
	u, err := s.deps.Users.GetUser(ctx, claims.UserID)
	if errors.Is(err, domain.ErrUserNotFound) {
		return nil, domain.NewDomainError("AuthService", domain.ErrTokenInvalid, "unknown user")
	}
	if err != nil {
		return nil, domain.WrapOp("AuthService.user", err)
	}
	if !u.IsActive {
		return nil, domain.ErrUserDisabled
	}
	return u, nil
}

func (s *AuthService) issuePair(u *domain.User) (*domain.TokenPair, error) {
	access, err := s.deps.Tokens.Issue(u.ID, u.Role, domain.TokenAccess)
	if err != nil {
		return nil, domain.WrapOp("AuthService.issue", err)
	}
	refresh, err := s.deps.Tokens.Issue(u.ID, u.Role, domain.TokenRefresh)
	if err != nil {
		return nil, domain.WrapOp("AuthService.issue", err)
	}
	return &domain.TokenPair{AccessToken: access, RefreshToken: refresh, TokenType: "bearer"}, nil
}

// SeedAdmin creates the given admin account when no admin exists yet.
// It reports whether a user was created.
func (s *AuthService) SeedAdmin(ctx context.Context, username, email, password string) (bool, error) {
	n, err := s.deps.Users.CountAdmins(ctx)
	if err != nil {
		return false, domain.WrapOp("AuthService.SeedAdmin", err)
	}
	if n > 0 {
		return false, nil
	}
	hash, err := s.deps.Hasher.Hash(password)
	if err != nil {
		return false, domain.WrapOp("AuthService.SeedAdmin", err)
	}
	if _, err := s.deps.Users.CreateUser(ctx, domain.NewUser{
		Username:     username,
		Email:        email,
		PasswordHash: hash,
		Role:         domain.AuthRoleAdmin,
	}); err != nil {
		return false, domain.WrapOp("AuthService.SeedAdmin", err)
	}
	s.deps.Logger.Info("seeded admin user", "username", username)
	return true, nil
}
