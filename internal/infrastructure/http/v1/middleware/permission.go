// Package middleware provides HTTP middleware for the API.
package middleware

import (
	"slices"

	"github.com/gin-gonic/gin"

	"crudschema/internal/core/apperror"
	appctx "crudschema/internal/core/context"
)

// RequirePermission aborts unless the authenticated caller holds permission.
// Model actions are authorized by the engine; this guards the admin routes.
func RequirePermission(permission string) gin.HandlerFunc {
	return func(c *gin.Context) {
		user := appctx.GetUser(c.Request.Context())
		if user == nil {
			_ = c.Error(apperror.NewUnauthorized("authentication required"))
			c.Abort()
			return
		}

		if !slices.Contains(getUserPermissions(c), permission) {
			_ = c.Error(
				apperror.NewForbidden("insufficient permissions").
					WithDetail("required_permission", permission),
			)
			c.Abort()
			return
		}

		c.Next()
	}
}

// getUserPermissions extracts permissions stored by the Auth middleware.
func getUserPermissions(c *gin.Context) []string {
	if perms, exists := c.Get(KeyPermissions); exists {
		if p, ok := perms.([]string); ok {
			return p
		}
	}
	return nil
}
