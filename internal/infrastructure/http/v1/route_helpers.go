// Package v1 provides HTTP API version 1.
package v1

import (
	"github.com/gin-gonic/gin"
)

// CrudRouteHandler defines the handler set behind the generic model routes.
type CrudRouteHandler interface {
	List(c *gin.Context)
	Create(c *gin.Context)
	Get(c *gin.Context)
	Update(c *gin.Context)
	Delete(c *gin.Context)
	ListRelated(c *gin.Context)
	Attach(c *gin.Context)
	Detach(c *gin.Context)
}

// RegisterCrudRoutes registers the model and relation routes on group.
// Authorization happens per model inside the engine, so no permission
// middleware is attached here.
//
// Usage:
//
//	handler := handlers.NewCrudHandler(baseHandler, eng, cfg.DefaultPageSize)
//	RegisterCrudRoutes(v1.Group("/crud"), handler)
func RegisterCrudRoutes(group *gin.RouterGroup, handler CrudRouteHandler) {
	group.GET("/:model", handler.List)
	group.POST("/:model", handler.Create)
	group.GET("/:model/:id", handler.Get)
	group.PUT("/:model/:id", handler.Update)
	group.DELETE("/:model/:id", handler.Delete)
	group.GET("/:model/:id/:relation", handler.ListRelated)
	group.POST("/:model/:id/:relation", handler.Attach)
	group.DELETE("/:model/:id/:relation", handler.Detach)
}
