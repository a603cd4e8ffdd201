// Package context provides request-scoped values extraction.
package context

import (
	"context"
	"slices"
)

// UserContext contains the authenticated caller.
// Permissions is the callerPermissions set consulted by access checks.
type UserContext struct {
	UserID      string
	Email       string
	Permissions []string
	SessionID   string
}

type userContextKey struct{}

// WithUser adds UserContext to context.
func WithUser(ctx context.Context, user *UserContext) context.Context {
	return context.WithValue(ctx, userContextKey{}, user)
}

// GetUser returns UserContext from context.
func GetUser(ctx context.Context) *UserContext {
	if v, ok := ctx.Value(userContextKey{}).(*UserContext); ok {
		return v
	}
	return nil
}

// GetUserID returns user ID from context or empty string.
func GetUserID(ctx context.Context) string {
	if u := GetUser(ctx); u != nil {
		return u.UserID
	}
	return ""
}

// GetPermissions returns the caller's permission keys, nil for anonymous callers.
func GetPermissions(ctx context.Context) []string {
	if u := GetUser(ctx); u != nil {
		return u.Permissions
	}
	return nil
}

// HasPermission checks if the caller holds a permission key.
func HasPermission(ctx context.Context, perm string) bool {
	return slices.Contains(GetPermissions(ctx), perm)
}
