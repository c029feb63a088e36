package auth

import (
	"context"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cofferdb/coffer/pkg/errors"
)

func setupTokenService(t *testing.T, expiry time.Duration) (*TokenService, *UserManager) {
	t.Helper()
	m := setupManager(t, NewMemoryStore())
	require.NoError(t, m.StoreUser(context.Background(), false, "alice", "secret", true))
	svc, err := NewTokenService(m, "test-signing-secret", expiry)
	require.NoError(t, err)
	return svc, m
}

func TestTokenService_RequiresSecret(t *testing.T) {
	m := setupManager(t, NewMemoryStore())
	_, err := NewTokenService(m, "", time.Hour)
	assert.True(t, errors.IsValidation(err))
}

func TestTokenService_IssueAndValidate(t *testing.T) {
	ctx := context.Background()
	svc, _ := setupTokenService(t, time.Hour)

	token, err := svc.Issue(ctx, "alice", "secret")
	require.NoError(t, err)
	require.NotEmpty(t, token)

	username, err := svc.Validate(ctx, token)
	require.NoError(t, err)
	assert.Equal(t, "alice", username)
}

func TestTokenService_IssueRejectsBadCredentials(t *testing.T) {
	ctx := context.Background()
	svc, _ := setupTokenService(t, time.Hour)

	_, err := svc.Issue(ctx, "alice", "wrong")
	assert.True(t, errors.IsAuth(err))

	_, err = svc.Issue(ctx, "nobody", "secret")
	assert.True(t, errors.IsAuth(err))
}

func TestTokenService_ValidateRejectsGarbage(t *testing.T) {
	ctx := context.Background()
	svc, _ := setupTokenService(t, time.Hour)

	_, err := svc.Validate(ctx, "not-a-token")
	assert.True(t, errors.IsAuth(err))

	_, err = svc.Validate(ctx, "")
	assert.True(t, errors.IsAuth(err))
}

func TestTokenService_ValidateRejectsWrongSecret(t *testing.T) {
	ctx := context.Background()
	svc, m := setupTokenService(t, time.Hour)

	other, err := NewTokenService(m, "a-different-secret", time.Hour)
	require.NoError(t, err)

	token, err := other.Issue(ctx, "alice", "secret")
	require.NoError(t, err)

	_, err = svc.Validate(ctx, token)
	assert.True(t, errors.IsAuth(err))
}

func TestTokenService_ValidateRejectsExpired(t *testing.T) {
	ctx := context.Background()
	svc, _ := setupTokenService(t, time.Hour)

	claims := TokenClaims{
		Username: "alice",
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    "coffer",
			Subject:   "alice",
			IssuedAt:  jwt.NewNumericDate(time.Now().Add(-2 * time.Hour)),
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(-time.Hour)),
		},
	}
	expired, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).
		SignedString([]byte("test-signing-secret"))
	require.NoError(t, err)

	_, err = svc.Validate(ctx, expired)
	assert.True(t, errors.IsAuth(err))
}

func TestTokenService_ValidateRejectsUnsignedAlg(t *testing.T) {
	ctx := context.Background()
	svc, _ := setupTokenService(t, time.Hour)

	claims := TokenClaims{
		Username: "alice",
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
		},
	}
	unsigned, err := jwt.NewWithClaims(jwt.SigningMethodNone, claims).
		SignedString(jwt.UnsafeAllowNoneSignatureType)
	require.NoError(t, err)

	_, err = svc.Validate(ctx, unsigned)
	assert.True(t, errors.IsAuth(err))
}

func TestTokenService_DeactivationRevokesTokens(t *testing.T) {
	ctx := context.Background()
	svc, m := setupTokenService(t, time.Hour)

	token, err := svc.Issue(ctx, "alice", "secret")
	require.NoError(t, err)

	require.NoError(t, m.UpdateUser(ctx, "alice", func(u *User) error {
		u.SetActive(false)
		return nil
	}))

	_, err = svc.Validate(ctx, token)
	assert.True(t, errors.IsAuth(err))
}

func TestTokenService_RemovalRevokesTokens(t *testing.T) {
	ctx := context.Background()
	svc, m := setupTokenService(t, time.Hour)

	token, err := svc.Issue(ctx, "alice", "secret")
	require.NoError(t, err)

	require.NoError(t, m.RemoveUser(ctx, "alice"))

	_, err = svc.Validate(ctx, token)
	assert.True(t, errors.IsAuth(err))
}
