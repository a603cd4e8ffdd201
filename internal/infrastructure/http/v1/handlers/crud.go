package handlers

import (
	"context"
	"math"

	"github.com/gin-gonic/gin"

	"crudschema/internal/engine"
	"crudschema/internal/infrastructure/http/v1/dto"
	"crudschema/internal/mutation"
	"crudschema/internal/query"
	"crudschema/internal/schema"
)

// Engine is the request engine the CRUD handlers delegate to.
type Engine interface {
	List(ctx context.Context, req engine.Request) (*engine.ListResult, error)
	Get(ctx context.Context, req engine.Request) (map[string]any, error)
	Schema(ctx context.Context, req engine.Request, wrap bool) (any, error)
	Create(ctx context.Context, req engine.Request, input map[string]any) (*mutation.Result, error)
	Update(ctx context.Context, req engine.Request, input map[string]any) (*mutation.Result, error)
	Delete(ctx context.Context, req engine.Request) (*mutation.Result, error)
	Attach(ctx context.Context, req engine.Request, ids []any) (*mutation.Result, error)
	Detach(ctx context.Context, req engine.Request, ids []any) (*mutation.Result, error)
	Reload(ctx context.Context) ([]schema.Issue, error)
	Models() []string
}

// CrudHandler serves every model through the schema engine.
type CrudHandler struct {
	*BaseHandler
	engine          Engine
	defaultPageSize int
}

// NewCrudHandler creates the generic CRUD handler.
func NewCrudHandler(base *BaseHandler, eng Engine, defaultPageSize int) *CrudHandler {
	if defaultPageSize <= 0 {
		defaultPageSize = 20
	}
	return &CrudHandler{BaseHandler: base, engine: eng, defaultPageSize: defaultPageSize}
}

func (h *CrudHandler) request(c *gin.Context) engine.Request {
	return engine.Request{
		Model:       c.Param("model"),
		Context:     c.Query("context"),
		Permissions: h.Permissions(c),
	}
}

func (h *CrudHandler) listRequest(c *gin.Context) (engine.Request, bool) {
	var q dto.ListQuery
	if !h.BindQuery(c, &q) {
		return engine.Request{}, false
	}
	size := h.defaultPageSize
	if q.Size != nil {
		size = *q.Size
	}
	req := h.request(c)
	req.Query = query.Params{Page: q.Page, Size: size, Sort: q.Sort, Search: q.Search}
	return req, true
}

// List handles GET /crud/:model
func (h *CrudHandler) List(c *gin.Context) {
	req, ok := h.listRequest(c)
	if !ok {
		return
	}
	res, err := h.engine.List(c.Request.Context(), req)
	if err != nil {
		h.Error(c, err)
		return
	}
	h.OK(c, res)
}

// Get handles GET /crud/:model/:id
func (h *CrudHandler) Get(c *gin.Context) {
	req := h.request(c)
	id, ok := h.ParseID(c, "id")
	if !ok {
		return
	}
	req.ID = id

	record, err := h.engine.Get(c.Request.Context(), req)
	if err != nil {
		h.Error(c, err)
		return
	}
	h.OK(c, record)
}

// Create handles POST /crud/:model
func (h *CrudHandler) Create(c *gin.Context) {
	var body map[string]any
	if !h.BindJSON(c, &body) {
		return
	}
	res, err := h.engine.Create(c.Request.Context(), h.request(c), body)
	if err != nil {
		h.Error(c, err)
		return
	}
	h.Created(c, res)
}

// Update handles PUT /crud/:model/:id
func (h *CrudHandler) Update(c *gin.Context) {
	req := h.request(c)
	id, ok := h.ParseID(c, "id")
	if !ok {
		return
	}
	req.ID = id

	var body map[string]any
	if !h.BindJSON(c, &body) {
		return
	}
	res, err := h.engine.Update(c.Request.Context(), req, body)
	if err != nil {
		h.Error(c, err)
		return
	}
	h.OK(c, res)
}

// Delete handles DELETE /crud/:model/:id
func (h *CrudHandler) Delete(c *gin.Context) {
	req := h.request(c)
	id, ok := h.ParseID(c, "id")
	if !ok {
		return
	}
	req.ID = id

	res, err := h.engine.Delete(c.Request.Context(), req)
	if err != nil {
		h.Error(c, err)
		return
	}
	h.OK(c, res)
}

// ListRelated handles GET /crud/:model/:id/:relation
func (h *CrudHandler) ListRelated(c *gin.Context) {
	req, ok := h.listRequest(c)
	if !ok {
		return
	}
	id, ok := h.ParseID(c, "id")
	if !ok {
		return
	}
	req.ID = id
	req.Relation = c.Param("relation")

	res, err := h.engine.List(c.Request.Context(), req)
	if err != nil {
		h.Error(c, err)
		return
	}
	h.OK(c, res)
}

// Attach handles POST /crud/:model/:id/:relation
func (h *CrudHandler) Attach(c *gin.Context) {
	h.pivot(c, h.engine.Attach)
}

// Detach handles DELETE /crud/:model/:id/:relation
func (h *CrudHandler) Detach(c *gin.Context) {
	h.pivot(c, h.engine.Detach)
}

func (h *CrudHandler) pivot(c *gin.Context, op func(context.Context, engine.Request, []any) (*mutation.Result, error)) {
	req := h.request(c)
	id, ok := h.ParseID(c, "id")
	if !ok {
		return
	}
	req.ID = id
	req.Relation = c.Param("relation")

	var body dto.IDsRequest
	if !h.BindJSON(c, &body) {
		return
	}
	res, err := op(c.Request.Context(), req, wholeNumbers(body.IDs))
	if err != nil {
		h.Error(c, err)
		return
	}
	h.OK(c, res)
}

// wholeNumbers turns integral JSON numbers into int64 so they bind to
// integer key columns.
func wholeNumbers(ids []any) []any {
	out := make([]any, len(ids))
	for i, id := range ids {
		if f, ok := id.(float64); ok && f == math.Trunc(f) && math.Abs(f) < 1<<53 {
			out[i] = int64(f)
			continue
		}
		out[i] = id
	}
	return out
}
