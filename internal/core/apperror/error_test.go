package apperror

import (
	"errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNewAccessDenied_MessageNamesActionModelPermission(t *testing.T) {
	err := NewAccessDenied("create", "users", "create_user")

	assert.Equal(t, "Access denied for action 'create' on model 'users' (requires permission: 'create_user')", err.Message)
	assert.Equal(t, http.StatusForbidden, err.HTTPStatus)
	assert.Equal(t, "create_user", err.Details["required_permission"])
}

func TestHasCode_ThroughWrapping(t *testing.T) {
	base := NewRelationNotConfigured("users", "teams")
	wrapped := fmt.Errorf("resolve: %w", base)

	assert.True(t, IsRelationNotConfigured(wrapped))
	assert.False(t, IsSchemaNotFound(wrapped))
	assert.Equal(t, http.StatusNotFound, GetHTTPStatus(wrapped))
	assert.Equal(t, http.StatusInternalServerError, GetHTTPStatus(errors.New("plain")))
}

func TestNewQueryExecution_CarriesTableContext(t *testing.T) {
	cause := errors.New("column \"nme\" does not exist")
	err := NewQueryExecution("users", "users", []string{"users.id", "users.nme"}, cause)

	assert.Contains(t, err.Message, "users(users.id, users.nme)")
	assert.Contains(t, err.Message, "'users'")
	assert.ErrorIs(t, err, cause)
}

func TestNewFieldValidation(t *testing.T) {
	err := NewFieldValidation("users", "email", "email", "must be a valid e-mail address")

	assert.True(t, IsValidation(err))
	assert.Equal(t, "email", err.Details["field"])
	assert.Equal(t, "email", err.Details["rule"])
	assert.Contains(t, err.Message, "'users'")
}
