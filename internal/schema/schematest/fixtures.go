// Package schematest provides a small user/role/permission model set for tests.
package schematest

import (
	"testing"

	"crudschema/internal/schema"
)

// UsersJSON has a direct detail (activities), a pivot relation (roles) and
// reaches permissions only by way of roles.
const UsersJSON = `{
  "model": "users",
  "primary_key": "id",
  "title": "Users",
  "title_field": "name",
  "permissions": {
    "view": "view_user",
    "read": "view_user",
    "create": "create_user",
    "update": "update_user",
    "delete": "delete_user"
  },
  "actions": [
    {"key": "create", "label": "New user", "permission": "create_user"},
    {"key": "delete", "label": "Delete", "permission": "delete_user", "confirm": true, "style": "danger"}
  ],
  "contexts": {
    "list": {
      "fields": {
        "id":         {"type": "integer", "sortable": true},
        "name":       {"type": "string", "sortable": true, "filterable": true},
        "email":      {"type": "email", "sortable": true, "filterable": true},
        "full_label": {"type": "computed", "sortable": true}
      },
      "default_sort": "-id"
    },
    "form": {
      "fields": {
        "name":       {"type": "string", "required": true, "validation": {"length": {"min": 2, "max": 64}}},
        "email":      {"type": "email", "validation": {"required": {}, "email": true}},
        "password":   {"type": "password"},
        "age":        {"type": "integer", "validation": {"range": {"min": 0, "max": 150}}},
        "balance":    {"type": "decimal", "validation": {"range": {"min": 0}}},
        "status":     {"type": "select", "options": ["active", {"value": "blocked", "label": "Blocked"}]},
        "nickname":   {"type": "string", "validation": {"expr": "size(value) <= 12 && value != record.name"}},
        "created_at": {"type": "datetime", "readonly": true},
        "full_label": {"type": "computed"},
        "secret":     {"type": "string", "editable": false, "edit_permission": "manage_secrets"}
      }
    },
    "detail": {
      "fields": {
        "id":    {"type": "integer"},
        "name":  {"type": "string"},
        "email": {"type": "email", "view_permission": "view_user_email"}
      }
    }
  },
  "details": [
    {"model": "activities", "foreign_key": "user_id", "title": "Activity"}
  ],
  "relationships": [
    {"name": "roles", "type": "many_to_many", "pivot_table": "role_user", "foreign_key": "user_id", "related_key": "role_id", "list_fields": ["id", "name", ""]}
  ]
}`

// RolesJSON grants permissions through permission_role.
const RolesJSON = `{
  "model": "roles",
  "primary_key": "id",
  "permissions": {"view": "view_role", "update": "update_role"},
  "contexts": {
    "list": {
      "fields": {
        "id":   {"type": "integer", "sortable": true},
        "name": {"type": "string", "sortable": true, "filterable": true}
      }
    }
  },
  "relationships": [
    {"name": "permissions", "type": "many_to_many", "pivot_table": "permission_role", "foreign_key": "role_id", "related_key": "permission_id"},
    {"name": "users", "type": "many_to_many", "pivot_table": "role_user", "foreign_key": "role_id", "related_key": "user_id"}
  ]
}`

// PermissionsJSON is the nested target.
const PermissionsJSON = `{
  "model": "permissions",
  "primary_key": "id",
  "contexts": {
    "list": {
      "fields": {
        "id":   {"type": "integer", "sortable": true},
        "name": {"type": "string", "sortable": true, "filterable": true},
        "slug": {"type": "string", "filterable": true}
      }
    }
  }
}`

// ActivitiesJSON is the direct detail target.
const ActivitiesJSON = `{
  "model": "activities",
  "primary_key": "id",
  "contexts": {
    "list": {
      "fields": {
        "id":      {"type": "integer", "sortable": true},
        "action":  {"type": "string", "filterable": true},
        "user_id": {"type": "integer"}
      },
      "default_sort": "created_at:desc"
    }
  }
}`

// All returns the raw documents keyed by model.
func All() map[string]string {
	return map[string]string{
		"users":       UsersJSON,
		"roles":       RolesJSON,
		"permissions": PermissionsJSON,
		"activities":  ActivitiesJSON,
	}
}

// MustDecode decodes a document or fails the test.
func MustDecode(t testing.TB, raw string) *schema.SchemaDoc {
	t.Helper()
	doc, err := schema.Decode([]byte(raw))
	if err != nil {
		t.Fatalf("decode fixture: %v", err)
	}
	return doc
}

// Docs decodes every fixture.
func Docs(t testing.TB) []*schema.SchemaDoc {
	t.Helper()
	return []*schema.SchemaDoc{
		MustDecode(t, UsersJSON),
		MustDecode(t, RolesJSON),
		MustDecode(t, PermissionsJSON),
		MustDecode(t, ActivitiesJSON),
	}
}

// Store returns a store holding every fixture, plus any extra documents.
func Store(t testing.TB, extra ...*schema.SchemaDoc) *schema.Store {
	t.Helper()
	st := schema.NewStore(nil)
	if err := st.Replace(append(Docs(t), extra...)...); err != nil {
		t.Fatalf("replace: %v", err)
	}
	return st
}
