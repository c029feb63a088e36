package errors

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/cofferdb/coffer/pkg/types"
)

func TestErrorFormatting(t *testing.T) {
	err := NewValidationError("username must not be empty")
	assert.Contains(t, err.Error(), "VALIDATION_ERROR")
	assert.Contains(t, err.Error(), "username must not be empty")

	cause := errors.New("disk full")
	wrapped := NewPersistenceError("failed to save user", cause)
	assert.Contains(t, wrapped.Error(), "disk full")
	assert.Equal(t, cause, errors.Unwrap(wrapped))
}

func TestWithDetail(t *testing.T) {
	err := NewNotFoundError("user").WithDetail("username", "alice")
	assert.Equal(t, "alice", err.Details["username"])
	assert.Equal(t, "user", err.Details["resource"])
}

func TestTypePredicates(t *testing.T) {
	assert.True(t, IsNotFound(NewNotFoundError("user")))
	assert.True(t, IsConflict(NewConflictError("user exists")))
	assert.True(t, IsConflict(NewAlreadyExistsError("user")))
	assert.True(t, IsValidation(NewValidationError("bad input")))
	assert.True(t, IsValidation(NewMissingFieldError("user")))
	assert.True(t, IsPersistence(NewPersistenceError("oops", nil)))
	assert.True(t, IsAuth(NewAuthError("denied")))
	assert.True(t, IsAuth(NewInvalidTokenError()))

	assert.False(t, IsNotFound(NewConflictError("nope")))
	assert.False(t, IsNotFound(errors.New("plain error")))
	assert.False(t, IsNotFound(nil))
}

func TestPredicatesSeeThroughWrapping(t *testing.T) {
	inner := NewNotFoundError("user")
	outer := fmt.Errorf("during reload: %w", inner)

	assert.True(t, IsNotFound(outer))
	assert.Equal(t, ErrCodeNotFound, GetCode(outer))
}

func TestGetCode(t *testing.T) {
	assert.Equal(t, ErrCodeAlreadyExists, GetCode(NewAlreadyExistsError("user")))
	assert.Equal(t, ErrorCode(""), GetCode(errors.New("plain")))
	assert.Equal(t, ErrorCode(""), GetCode(nil))
}

func TestIsType(t *testing.T) {
	err := NewConnectionFailedError("sqlite", errors.New("locked"))
	assert.True(t, IsType(err, types.ErrorTypePersistence))
	assert.False(t, IsType(err, types.ErrorTypeAuth))
}
