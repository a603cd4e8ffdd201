package handlers

import (
	"github.com/gin-gonic/gin"

	"crudschema/internal/infrastructure/http/v1/dto"
	"crudschema/internal/schema"
	"crudschema/pkg/logger"
)

// AdminHandler serves operator endpoints.
type AdminHandler struct {
	*BaseHandler
	engine Engine
}

// NewAdminHandler creates an admin handler.
func NewAdminHandler(base *BaseHandler, eng Engine) *AdminHandler {
	return &AdminHandler{BaseHandler: base, engine: eng}
}

// Reload handles POST /admin/schemas/reload
func (h *AdminHandler) Reload(c *gin.Context) {
	issues, err := h.engine.Reload(c.Request.Context())
	if err != nil {
		h.Error(c, err)
		return
	}
	if issues == nil {
		issues = []schema.Issue{}
	}
	logger.Info(c.Request.Context(), "schemas reloaded via api", "issues", len(issues))
	h.OK(c, dto.ReloadResponse{Models: h.engine.Models(), Issues: issues})
}
