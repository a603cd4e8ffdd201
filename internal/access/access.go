// Package access decides whether a caller may perform an action on a model
// and which fields the caller may see or change.
//
// Every function here is pure over (schema, action, permissions) so callers
// can check access without a request.
package access

import (
	"fmt"
	"strings"

	"crudschema/internal/core/apperror"
	"crudschema/internal/schema"
)

// Standard action names.
const (
	ActionView   = "view"
	ActionRead   = "read"
	ActionCreate = "create"
	ActionUpdate = "update"
	ActionDelete = "delete"
)

// PermissionSet is the set of permission keys a caller holds.
type PermissionSet map[string]struct{}

// NewPermissionSet builds a set, ignoring blank keys.
func NewPermissionSet(perms ...string) PermissionSet {
	set := make(PermissionSet, len(perms))
	for _, p := range perms {
		if p = strings.TrimSpace(p); p != "" {
			set[p] = struct{}{}
		}
	}
	return set
}

// Has reports whether the set holds perm.
func (s PermissionSet) Has(perm string) bool {
	_, ok := s[perm]
	return ok
}

// Subject is anything carrying a model name and an action→permission map.
// Both *schema.SchemaDoc and *schema.FlatSchema satisfy it.
type Subject interface {
	ModelName() string
	RequiredPermission(action string) (string, bool)
}

// Decision is the outcome of Authorize.
type Decision struct {
	Allowed    bool
	Action     string
	Model      string
	Permission string
}

// Reason describes a denial. It is empty for allowed decisions.
func (d Decision) Reason() string {
	if d.Allowed {
		return ""
	}
	return fmt.Sprintf("Access denied for action '%s' on model '%s' (requires permission: '%s')",
		d.Action, d.Model, d.Permission)
}

// Err returns nil when allowed and an ACCESS_DENIED error otherwise.
func (d Decision) Err() error {
	if d.Allowed {
		return nil
	}
	return apperror.NewAccessDenied(d.Action, d.Model, d.Permission)
}

// Authorize checks action against the subject's permission map. An action
// without a mapped permission is allowed.
func Authorize(s Subject, action string, caller PermissionSet) Decision {
	d := Decision{Allowed: true, Action: action, Model: s.ModelName()}
	perm, gated := s.RequiredPermission(action)
	if !gated {
		return d
	}
	d.Permission = perm
	d.Allowed = caller.Has(perm)
	return d
}

// VisibleFields returns the keys of context's fields the caller may see.
// A field must list the context in show_in and, when it declares a
// view_permission, the caller must hold it.
func VisibleFields(fs *schema.FlatSchema, context string, caller PermissionSet) []string {
	var keys []string
	for _, f := range fs.ContextFields(context) {
		if !f.ShownIn(context) {
			continue
		}
		if f.ViewPermission != "" && !caller.Has(f.ViewPermission) {
			continue
		}
		keys = append(keys, f.Key)
	}
	return keys
}

// EditableFields returns the keys of context's fields the caller may write.
// Computed, readonly and editable:false fields are never writable.
func EditableFields(fs *schema.FlatSchema, context string, caller PermissionSet) []string {
	var keys []string
	for _, f := range fs.ContextFields(context) {
		if !f.IsEditable() {
			continue
		}
		if f.EditPermission != "" && !caller.Has(f.EditPermission) {
			continue
		}
		keys = append(keys, f.Key)
	}
	return keys
}

// HiddenFields returns the declared fields of context that VisibleFields drops.
func HiddenFields(fs *schema.FlatSchema, context string, caller PermissionSet) map[string]bool {
	visible := make(map[string]bool)
	for _, k := range VisibleFields(fs, context, caller) {
		visible[k] = true
	}
	hidden := make(map[string]bool)
	for _, f := range fs.ContextFields(context) {
		if !visible[f.Key] {
			hidden[f.Key] = true
		}
	}
	return hidden
}
