// Package types defines shared types used across Coffer packages
package types

// Document is a schemaless JSON-like record as stored in a document
// collection. Keys are field names, values are the decoded JSON forms.
type Document = map[string]interface{}

// ErrorType represents different categories of errors
type ErrorType string

const (
	ErrorTypeValidation  ErrorType = "validation"
	ErrorTypeNotFound    ErrorType = "not_found"
	ErrorTypeConflict    ErrorType = "conflict"
	ErrorTypePersistence ErrorType = "persistence"
	ErrorTypeAuth        ErrorType = "auth"
	ErrorTypeInternal    ErrorType = "internal"
	ErrorTypeExternal    ErrorType = "external"
)

// String returns the string representation of ErrorType
func (e ErrorType) String() string {
	return string(e)
}
