package auth

import (
	"context"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/cofferdb/coffer/pkg/errors"
)

// TokenService mints and validates HMAC bearer tokens over the user cache.
// A token is only as live as the account behind it: validation re-checks
// the cache so a deactivated or removed account invalidates its tokens.
type TokenService struct {
	manager *UserManager
	secret  []byte
	expiry  time.Duration
}

// TokenClaims are the registered claims plus the account name
type TokenClaims struct {
	Username string `json:"preferred_username"`
	jwt.RegisteredClaims
}

// NewTokenService creates a token service signing with secret
func NewTokenService(manager *UserManager, secret string, expiry time.Duration) (*TokenService, error) {
	if secret == "" {
		return nil, errors.NewValidationError("token secret must not be empty")
	}
	if expiry <= 0 {
		expiry = 24 * time.Hour
	}
	return &TokenService{manager: manager, secret: []byte(secret), expiry: expiry}, nil
}

// Issue authenticates the credentials and mints a signed token. Failures
// are uniform Auth errors regardless of cause.
func (t *TokenService) Issue(ctx context.Context, username, password string) (string, error) {
	if !t.manager.CheckPassword(ctx, username, password) {
		return "", errors.NewAuthError("invalid credentials")
	}

	now := time.Now()
	claims := TokenClaims{
		Username: username,
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    "coffer",
			Subject:   username,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(t.expiry)),
		},
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString(t.secret)
	if err != nil {
		return "", fmt.Errorf("failed to sign token: %w", err)
	}
	return signed, nil
}

// Validate parses a token and returns the account name it carries. The
// account must still exist and be active.
func (t *TokenService) Validate(ctx context.Context, tokenString string) (string, error) {
	token, err := jwt.ParseWithClaims(tokenString, &TokenClaims{}, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return t.secret, nil
	})
	if err != nil {
		return "", errors.NewInvalidTokenError()
	}
	claims, ok := token.Claims.(*TokenClaims)
	if !ok || !token.Valid || claims.Username == "" {
		return "", errors.NewInvalidTokenError()
	}

	active := false
	err = t.manager.AccessUser(ctx, claims.Username, func(u *User) error {
		active = u.IsActive()
		return nil
	})
	if err != nil || !active {
		return "", errors.NewAuthError("account is unknown or inactive")
	}
	return claims.Username, nil
}
