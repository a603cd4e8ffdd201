// Package apperror provides structured error handling following RFC 7807 Problem Details.
// Every failure surfaced by the engine is an AppError so the HTTP layer renders it consistently.
package apperror

import (
	"errors"
	"fmt"
	"net/http"
	"strings"
)

// Error codes
const (
	// Infrastructure errors (5xx)
	CodeInternal       = "INTERNAL_ERROR"
	CodeQueryExecution = "QUERY_EXECUTION_ERROR"

	// Schema configuration errors
	CodeSchemaNotFound        = "SCHEMA_NOT_FOUND"
	CodeRelationNotConfigured = "RELATION_NOT_CONFIGURED"
	CodeMissingPivotMetadata  = "MISSING_PIVOT_METADATA"
	CodeSchemaInvalid         = "SCHEMA_INVALID"

	// Validation errors (400)
	CodeValidation   = "VALIDATION_ERROR"
	CodeInvalidInput = "INVALID_INPUT"

	// Authorization errors (401, 403)
	CodeUnauthorized = "UNAUTHORIZED"
	CodeForbidden    = "FORBIDDEN"
	CodeAccessDenied = "ACCESS_DENIED"

	// Not found (404)
	CodeNotFound = "NOT_FOUND"

	// Conflict (409)
	CodeConflict = "CONFLICT"
)

// AppError is the standard error type for the engine.
type AppError struct {
	// Code is a machine-readable error identifier
	Code string `json:"code"`

	// Message is a human-readable error description
	Message string `json:"message"`

	// Details contains additional context (model, field, rule, table...)
	Details map[string]any `json:"details,omitempty"`

	// HTTPStatus is the suggested HTTP status code
	HTTPStatus int `json:"-"`

	// Err is the underlying error (not exposed in JSON)
	Err error `json:"-"`
}

// Error implements error interface
func (e *AppError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s (caused by: %v)", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// Unwrap returns the underlying error for errors.Is/As support
func (e *AppError) Unwrap() error {
	return e.Err
}

// WithDetail adds a key-value pair to error details
func (e *AppError) WithDetail(key string, value any) *AppError {
	if e.Details == nil {
		e.Details = make(map[string]any)
	}
	e.Details[key] = value
	return e
}

// WithCause sets the underlying error
func (e *AppError) WithCause(err error) *AppError {
	e.Err = err
	return e
}

// --- Factory functions ---

// NewValidation creates a validation error (400)
func NewValidation(message string) *AppError {
	return &AppError{
		Code:       CodeValidation,
		Message:    message,
		HTTPStatus: http.StatusBadRequest,
	}
}

// NewFieldValidation creates a validation error bound to one field and the rule it broke.
func NewFieldValidation(model, field, rule, message string) *AppError {
	return &AppError{
		Code:       CodeValidation,
		Message:    fmt.Sprintf("Validation failed for field '%s' on model '%s': %s", field, model, message),
		HTTPStatus: http.StatusBadRequest,
		Details:    map[string]any{"model": model, "field": field, "rule": rule},
	}
}

// NewInvalidInput creates an input decoding error (400)
func NewInvalidInput(message string) *AppError {
	return &AppError{
		Code:       CodeInvalidInput,
		Message:    message,
		HTTPStatus: http.StatusBadRequest,
	}
}

// NewNotFound creates a not found error (404)
func NewNotFound(model string, id any) *AppError {
	return &AppError{
		Code:       CodeNotFound,
		Message:    fmt.Sprintf("Record %v of model '%s' not found", id, model),
		HTTPStatus: http.StatusNotFound,
		Details:    map[string]any{"model": model, "id": id},
	}
}

// NewSchemaNotFound is returned when no schema document is registered for a model.
func NewSchemaNotFound(model string) *AppError {
	return &AppError{
		Code:       CodeSchemaNotFound,
		Message:    fmt.Sprintf("Schema for model '%s' not found", model),
		HTTPStatus: http.StatusNotFound,
		Details:    map[string]any{"model": model},
	}
}

// NewRelationNotConfigured is returned when a relation name matches no details,
// relationship or nested relationship declaration of the source model.
func NewRelationNotConfigured(model, relation string) *AppError {
	return &AppError{
		Code:       CodeRelationNotConfigured,
		Message:    fmt.Sprintf("Relation '%s' is not configured on model '%s'", relation, model),
		HTTPStatus: http.StatusNotFound,
		Details:    map[string]any{"model": model, "relation": relation},
	}
}

// NewMissingPivotMetadata is returned when a relation declaration lacks the
// table or key names needed to join it.
func NewMissingPivotMetadata(model, relation, key string) *AppError {
	return &AppError{
		Code:       CodeMissingPivotMetadata,
		Message:    fmt.Sprintf("Relation '%s' on model '%s' declares no %s", relation, model, key),
		HTTPStatus: http.StatusInternalServerError,
		Details:    map[string]any{"model": model, "relation": relation, "missing": key},
	}
}

// NewSchemaInvalid reports a document that decoded but cannot drive a query.
func NewSchemaInvalid(model, message string) *AppError {
	return &AppError{
		Code:       CodeSchemaInvalid,
		Message:    fmt.Sprintf("Schema for model '%s' is invalid: %s", model, message),
		HTTPStatus: http.StatusInternalServerError,
		Details:    map[string]any{"model": model},
	}
}

// NewAccessDenied creates an authorization error (403) naming the action,
// the model and the permission that was required.
func NewAccessDenied(action, model, permission string) *AppError {
	return &AppError{
		Code: CodeAccessDenied,
		Message: fmt.Sprintf("Access denied for action '%s' on model '%s' (requires permission: '%s')",
			action, model, permission),
		HTTPStatus: http.StatusForbidden,
		Details:    map[string]any{"action": action, "model": model, "required_permission": permission},
	}
}

// NewQueryExecution wraps a data store failure with the model, table and columns involved.
func NewQueryExecution(model, table string, columns []string, err error) *AppError {
	ctx := table
	if len(columns) > 0 {
		ctx = fmt.Sprintf("%s(%s)", table, strings.Join(columns, ", "))
	}
	return &AppError{
		Code:       CodeQueryExecution,
		Message:    fmt.Sprintf("Query on model '%s' failed at %s", model, ctx),
		HTTPStatus: http.StatusInternalServerError,
		Details:    map[string]any{"model": model, "table": table, "columns": columns},
		Err:        err,
	}
}

// NewInternal creates an internal server error (hides details from client)
func NewInternal(err error) *AppError {
	return &AppError{
		Code:       CodeInternal,
		Message:    "Internal server error",
		HTTPStatus: http.StatusInternalServerError,
		Err:        err,
	}
}

// NewUnauthorized creates an authentication error (401)
func NewUnauthorized(message string) *AppError {
	return &AppError{
		Code:       CodeUnauthorized,
		Message:    message,
		HTTPStatus: http.StatusUnauthorized,
	}
}

// NewForbidden creates a route level authorization error (403)
func NewForbidden(message string) *AppError {
	return &AppError{
		Code:       CodeForbidden,
		Message:    message,
		HTTPStatus: http.StatusForbidden,
	}
}

// NewConflict creates a conflict error (409)
func NewConflict(message string) *AppError {
	return &AppError{
		Code:       CodeConflict,
		Message:    message,
		HTTPStatus: http.StatusConflict,
	}
}

// --- Helper functions ---

// AsAppError extracts AppError from error chain
func AsAppError(err error) (*AppError, bool) {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr, true
	}
	return nil, false
}

// GetHTTPStatus returns appropriate HTTP status for any error
func GetHTTPStatus(err error) int {
	if appErr, ok := AsAppError(err); ok {
		return appErr.HTTPStatus
	}
	return http.StatusInternalServerError
}

// HasCode reports whether err carries an AppError with the given code.
func HasCode(err error, code string) bool {
	if appErr, ok := AsAppError(err); ok {
		return appErr.Code == code
	}
	return false
}

// IsNotFound checks if error is CodeNotFound
func IsNotFound(err error) bool { return HasCode(err, CodeNotFound) }

// IsSchemaNotFound checks if error is CodeSchemaNotFound
func IsSchemaNotFound(err error) bool { return HasCode(err, CodeSchemaNotFound) }

// IsRelationNotConfigured checks if error is CodeRelationNotConfigured
func IsRelationNotConfigured(err error) bool { return HasCode(err, CodeRelationNotConfigured) }

// IsAccessDenied checks if error is CodeAccessDenied
func IsAccessDenied(err error) bool { return HasCode(err, CodeAccessDenied) }

// IsValidation checks if error is CodeValidation
func IsValidation(err error) bool { return HasCode(err, CodeValidation) }
