// Package auth implements token signing and password hashing.
package auth

import (
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"jarvis/internal/domain"
)

// Claims is the JWT payload. Subject holds the decimal user ID.
type Claims struct {
	jwt.RegisteredClaims
	Role domain.AuthRole  `json:"role"`
	Type domain.TokenType `json:"type"`
}

// JWTIssuer signs and verifies HS256 tokens. It implements domain.TokenIssuer.
type JWTIssuer struct {
	secret     []byte
	accessTTL  time.Duration
	refreshTTL time.Duration
	now        func() time.Time
}

// NewJWTIssuer creates an issuer. The secret must not be empty.
func NewJWTIssuer(secret string, accessTTL, refreshTTL time.Duration) (*JWTIssuer, error) {
	if secret == "" {
		return nil, errors.New("jwt secret must not be empty")
	}
	if accessTTL <= 0 || refreshTTL <= 0 {
		return nil, errors.New("token ttl must be positive")
	}
	return &JWTIssuer{
		secret:     []byte(secret),
		accessTTL:  accessTTL,
		refreshTTL: refreshTTL,
		now:        time.Now,
	}, nil
}

// Issue signs a token of the given type for the user.
func (j *JWTIssuer) Issue(userID int64, role domain.AuthRole, typ domain.TokenType) (string, error) {
	ttl := j.accessTTL
	switch typ {
	case domain.TokenAccess:
	case domain.TokenRefresh:
		ttl = j.refreshTTL
	default:
		return "", fmt.Errorf("unknown token type %q", typ)
	}

	now := j.now()
	claims := Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   strconv.FormatInt(userID, 10),
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
		Role: role,
		Type: typ,
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(j.secret)
	if err != nil {
		return "", fmt.Errorf("sign token: %w", err)
	}
	return signed, nil
}

// Verify parses and validates a token. Any failure wraps domain.ErrTokenInvalid.
func (j *JWTIssuer) Verify(token string) (*domain.TokenClaims, error) {
	var claims Claims
	_, err := jwt.ParseWithClaims(token, &claims,
		func(*jwt.Token) (any, error) { return j.secret, nil },
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithTimeFunc(j.now),
		jwt.WithExpirationRequired(),
	)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrTokenInvalid, err)
	}

	id, err := strconv.ParseInt(claims.Subject, 10, 64)
	if err != nil {
		return nil, fmt.Errorf("%w: bad subject", domain.ErrTokenInvalid)
	}
	if claims.Type != domain.TokenAccess && claims.Type != domain.TokenRefresh {
		return nil, fmt.Errorf("%w: bad token type", domain.ErrTokenInvalid)
	}
	return &domain.TokenClaims{
		UserID:    id,
		Role:      claims.Role,
		Type:      claims.Type,
		ExpiresAt: claims.ExpiresAt.Time,
	}, nil
}
