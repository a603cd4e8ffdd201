package access_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"crudschema/internal/access"
	"crudschema/internal/core/apperror"
	"crudschema/internal/schema"
	"crudschema/internal/schema/schematest"
)

func TestAuthorize_DenyNamesActionModelPermission(t *testing.T) {
	users := schematest.MustDecode(t, schematest.UsersJSON)

	d := access.Authorize(users, access.ActionCreate, access.NewPermissionSet("view_user"))

	require.False(t, d.Allowed)
	assert.Equal(t, "Access denied for action 'create' on model 'users' (requires permission: 'create_user')", d.Reason())

	err := d.Err()
	require.Error(t, err)
	assert.True(t, apperror.IsAccessDenied(err))
	assert.Contains(t, err.Error(), "create")
	assert.Contains(t, err.Error(), "users")
	assert.Contains(t, err.Error(), "create_user")
}

func TestAuthorize_Allowed(t *testing.T) {
	users := schematest.MustDecode(t, schematest.UsersJSON)

	d := access.Authorize(users, access.ActionCreate, access.NewPermissionSet("create_user"))
	assert.True(t, d.Allowed)
	assert.NoError(t, d.Err())
	assert.Empty(t, d.Reason())
}

func TestAuthorize_UngatedActionIsAllowed(t *testing.T) {
	perms := schematest.MustDecode(t, schematest.PermissionsJSON)

	d := access.Authorize(perms, access.ActionDelete, nil)
	assert.True(t, d.Allowed)
	assert.Empty(t, d.Permission)
}

func TestAuthorize_FlatSchemaMatchesDocument(t *testing.T) {
	users := schematest.MustDecode(t, schematest.UsersJSON)
	flat := schema.Flatten(users, "list")

	for _, action := range []string{"view", "create", "update", "delete", "export"} {
		assert.Equal(t,
			access.Authorize(users, action, nil),
			access.Authorize(flat, action, nil), action)
	}
}

// Every denial, whatever the model and action, carries all three names.
func TestAuthorize_EveryDenialIsDetailed(t *testing.T) {
	for _, doc := range schematest.Docs(t) {
		for action := range doc.Permissions {
			d := access.Authorize(doc, action, access.NewPermissionSet())
			if d.Allowed {
				continue
			}
			msg := d.Err().Error()
			assert.Contains(t, msg, action)
			assert.Contains(t, msg, doc.Model)
			assert.Contains(t, msg, d.Permission)
		}
	}
}

func TestVisibleFields(t *testing.T) {
	users := schematest.MustDecode(t, schematest.UsersJSON)
	flat := schema.Flatten(users, "detail")

	assert.Equal(t, []string{"id", "name"}, access.VisibleFields(flat, "detail", nil))
	assert.Equal(t, []string{"id", "name", "email"},
		access.VisibleFields(flat, "detail", access.NewPermissionSet("view_user_email")))
	assert.Equal(t, map[string]bool{"email": true}, access.HiddenFields(flat, "detail", nil))
}

func TestVisibleFields_ShowInIsIndependentOfPermission(t *testing.T) {
	doc := schematest.MustDecode(t, `{"model":"m","primary_key":"id","contexts":{"list":{"fields":{
		"id":{"type":"integer"},
		"notes":{"type":"text","show_in":["detail"]}
	}}}}`)
	flat := schema.Flatten(doc, "list")

	assert.Equal(t, []string{"id"}, access.VisibleFields(flat, "list", access.NewPermissionSet("anything")))
}

func TestEditableFields(t *testing.T) {
	users := schematest.MustDecode(t, schematest.UsersJSON)
	flat := schema.Flatten(users, "form")

	got := access.EditableFields(flat, "form", nil)
	assert.Equal(t, []string{"name", "email", "password", "age", "balance", "status", "nickname"}, got)
	assert.NotContains(t, got, "created_at")
	assert.NotContains(t, got, "full_label")
	assert.NotContains(t, got, "secret", "editable:false wins over edit_permission")
}

func TestPermissionSet(t *testing.T) {
	set := access.NewPermissionSet("a", " ", "", "b")
	assert.Len(t, set, 2)
	assert.True(t, set.Has("a"))
	assert.False(t, set.Has(""))

	var none access.PermissionSet
	assert.False(t, none.Has("a"))
}
