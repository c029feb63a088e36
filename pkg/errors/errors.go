// Package errors provides structured error handling for Coffer
package errors

import (
	"errors"
	"fmt"

	"github.com/cofferdb/coffer/pkg/types"
)

// ErrorCode represents specific error codes
type ErrorCode string

const (
	// Validation errors
	ErrCodeValidation    ErrorCode = "VALIDATION_ERROR"
	ErrCodeInvalidInput  ErrorCode = "INVALID_INPUT"
	ErrCodeMissingField  ErrorCode = "MISSING_FIELD"
	ErrCodeInvalidFormat ErrorCode = "INVALID_FORMAT"

	// Resource errors
	ErrCodeNotFound      ErrorCode = "NOT_FOUND"
	ErrCodeAlreadyExists ErrorCode = "ALREADY_EXISTS"
	ErrCodeConflict      ErrorCode = "CONFLICT"

	// Persistence errors
	ErrCodePersistence       ErrorCode = "PERSISTENCE_ERROR"
	ErrCodeConnectionFailed  ErrorCode = "CONNECTION_FAILED"
	ErrCodeTransactionFailed ErrorCode = "TRANSACTION_FAILED"

	// Authentication errors
	ErrCodeAuthFailed   ErrorCode = "AUTH_FAILED"
	ErrCodeTokenExpired ErrorCode = "TOKEN_EXPIRED"
	ErrCodeInvalidToken ErrorCode = "INVALID_TOKEN"

	// System errors
	ErrCodeInternal ErrorCode = "INTERNAL_ERROR"
	ErrCodeExternal ErrorCode = "EXTERNAL_ERROR"

	// Configuration errors
	ErrCodeConfigInvalid ErrorCode = "CONFIG_INVALID"
)

// CofferError represents a structured error in Coffer
type CofferError struct {
	Type    types.ErrorType        `json:"type"`
	Code    ErrorCode              `json:"code"`
	Message string                 `json:"message"`
	Details map[string]interface{} `json:"details,omitempty"`
	Cause   error                  `json:"-"`
}

// Error implements the error interface
func (e *CofferError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("[%s] %s: %s (caused by: %v)", e.Code, e.Type, e.Message, e.Cause)
	}
	return fmt.Sprintf("[%s] %s: %s", e.Code, e.Type, e.Message)
}

// Unwrap returns the underlying error
func (e *CofferError) Unwrap() error {
	return e.Cause
}

// WithDetail adds a detail to the error
func (e *CofferError) WithDetail(key string, value interface{}) *CofferError {
	if e.Details == nil {
		e.Details = make(map[string]interface{})
	}
	e.Details[key] = value
	return e
}

// New creates a new Coffer error
func New(errType types.ErrorType, code ErrorCode, message string) *CofferError {
	return &CofferError{
		Type:    errType,
		Code:    code,
		Message: message,
	}
}

// NewWithCause creates a new Coffer error wrapping a cause
func NewWithCause(errType types.ErrorType, code ErrorCode, message string, cause error) *CofferError {
	return &CofferError{
		Type:    errType,
		Code:    code,
		Message: message,
		Cause:   cause,
	}
}

// Validation error constructors

func NewValidationError(message string) *CofferError {
	return New(types.ErrorTypeValidation, ErrCodeValidation, message)
}

func NewMissingFieldError(field string) *CofferError {
	return New(types.ErrorTypeValidation, ErrCodeMissingField,
		fmt.Sprintf("missing required field: %s", field)).WithDetail("field", field)
}

func NewInvalidFormatError(field, expectedFormat string) *CofferError {
	return New(types.ErrorTypeValidation, ErrCodeInvalidFormat,
		fmt.Sprintf("invalid format for field %s, expected: %s", field, expectedFormat)).
		WithDetail("field", field).WithDetail("expected_format", expectedFormat)
}

// Resource error constructors

func NewNotFoundError(resource string) *CofferError {
	return New(types.ErrorTypeNotFound, ErrCodeNotFound,
		fmt.Sprintf("%s not found", resource)).WithDetail("resource", resource)
}

func NewAlreadyExistsError(resource string) *CofferError {
	return New(types.ErrorTypeConflict, ErrCodeAlreadyExists,
		fmt.Sprintf("%s already exists", resource)).WithDetail("resource", resource)
}

func NewConflictError(message string) *CofferError {
	return New(types.ErrorTypeConflict, ErrCodeConflict, message)
}

// Persistence error constructors

func NewPersistenceError(message string, cause error) *CofferError {
	return NewWithCause(types.ErrorTypePersistence, ErrCodePersistence, message, cause)
}

func NewConnectionFailedError(target string, cause error) *CofferError {
	return NewWithCause(types.ErrorTypePersistence, ErrCodeConnectionFailed,
		fmt.Sprintf("failed to connect to %s", target), cause).WithDetail("target", target)
}

func NewTransactionFailedError(cause error) *CofferError {
	return NewWithCause(types.ErrorTypePersistence, ErrCodeTransactionFailed,
		"transaction failed", cause)
}

// Authentication error constructors

func NewAuthError(message string) *CofferError {
	return New(types.ErrorTypeAuth, ErrCodeAuthFailed, message)
}

func NewTokenExpiredError() *CofferError {
	return New(types.ErrorTypeAuth, ErrCodeTokenExpired, "token has expired")
}

func NewInvalidTokenError() *CofferError {
	return New(types.ErrorTypeAuth, ErrCodeInvalidToken, "invalid token")
}

// System error constructors

func NewInternalError(message string) *CofferError {
	return New(types.ErrorTypeInternal, ErrCodeInternal, message)
}

func NewExternalError(message string, cause error) *CofferError {
	return NewWithCause(types.ErrorTypeExternal, ErrCodeExternal, message, cause)
}

// Configuration error constructors

func NewConfigInvalidError(message string) *CofferError {
	return New(types.ErrorTypeValidation, ErrCodeConfigInvalid, message)
}

// Type predicate helpers

// IsType checks whether err is a CofferError of the given type
func IsType(err error, errType types.ErrorType) bool {
	var ce *CofferError
	if errors.As(err, &ce) {
		return ce.Type == errType
	}
	return false
}

// IsNotFound checks whether err represents a missing resource
func IsNotFound(err error) bool {
	return IsType(err, types.ErrorTypeNotFound)
}

// IsConflict checks whether err represents a resource conflict
func IsConflict(err error) bool {
	return IsType(err, types.ErrorTypeConflict)
}

// IsValidation checks whether err represents a validation failure
func IsValidation(err error) bool {
	return IsType(err, types.ErrorTypeValidation)
}

// IsPersistence checks whether err represents a store failure
func IsPersistence(err error) bool {
	return IsType(err, types.ErrorTypePersistence)
}

// IsAuth checks whether err represents an authentication failure
func IsAuth(err error) bool {
	return IsType(err, types.ErrorTypeAuth)
}

// GetCode extracts the error code from a Coffer error, or empty string
func GetCode(err error) ErrorCode {
	var ce *CofferError
	if errors.As(err, &ce) {
		return ce.Code
	}
	return ""
}
