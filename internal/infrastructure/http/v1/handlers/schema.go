package handlers

import (
	"github.com/gin-gonic/gin"

	"crudschema/internal/engine"
	"crudschema/internal/infrastructure/http/v1/dto"
)

// SchemaHandler exposes flattened schemas for form and table builders.
type SchemaHandler struct {
	*BaseHandler
	engine Engine
}

// NewSchemaHandler creates a schema handler.
func NewSchemaHandler(base *BaseHandler, eng Engine) *SchemaHandler {
	return &SchemaHandler{BaseHandler: base, engine: eng}
}

// Models handles GET /schema
func (h *SchemaHandler) Models(c *gin.Context) {
	h.OK(c, dto.ModelsResponse{Models: h.engine.Models()})
}

// Get handles GET /schema/:model?context=list,form&wrap=true
func (h *SchemaHandler) Get(c *gin.Context) {
	var q dto.SchemaQuery
	if !h.BindQuery(c, &q) {
		return
	}
	req := engine.Request{
		Model:       c.Param("model"),
		Context:     q.Context,
		Permissions: h.Permissions(c),
	}

	out, err := h.engine.Schema(c.Request.Context(), req, q.Wrap)
	if err != nil {
		h.Error(c, err)
		return
	}
	h.OK(c, out)
}
