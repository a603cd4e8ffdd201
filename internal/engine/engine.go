// Package engine orchestrates a request: flatten the schema for the requested
// context, authorize the action, resolve a relation when one is named, then
// build and run the listing or hand the record to the mutation dispatcher.
package engine

import (
	"context"
	"slices"
	"strings"

	"crudschema/internal/access"
	"crudschema/internal/core/apperror"
	"crudschema/internal/listing"
	"crudschema/internal/mutation"
	"crudschema/internal/query"
	"crudschema/internal/relation"
	"crudschema/internal/schema"
	"crudschema/pkg/logger"
)

// Default contexts per operation when the request names none.
const (
	ListContext   = "list"
	FormContext   = "form"
	DetailContext = "detail"
)

// SchemaStore is the document source the engine reads from.
type SchemaStore interface {
	Get(model string) (*schema.SchemaDoc, error)
	Reload(ctx context.Context) ([]schema.Issue, error)
	Models() []string
}

// Options tune listing behavior.
type Options struct {
	// MaxPageSize clamps the requested page size. Zero disables clamping.
	MaxPageSize         int
	CaseSensitiveSearch bool
}

// Request is one call into the engine.
type Request struct {
	Model       string
	Context     string
	Relation    string
	ID          any
	Permissions access.PermissionSet
	Query       query.Params
}

func (r Request) contextOr(def string) string {
	if strings.TrimSpace(r.Context) == "" {
		return def
	}
	return r.Context
}

// ListResult is a listing page with the model it was taken from.
type ListResult struct {
	*listing.Page
	Model    string `json:"model"`
	Relation string `json:"relation,omitempty"`
	Kind     string `json:"kind,omitempty"`
	// Fallback is set when the relation was not configured and the page is
	// an unscoped listing instead.
	Fallback bool `json:"fallback,omitempty"`
}

// Engine wires the schema, access, relation, query, listing and mutation
// components together.
type Engine struct {
	schemas    SchemaStore
	resolver   *relation.Resolver
	listing    *listing.Engine
	dispatcher *mutation.Dispatcher
	opts       Options
}

// New creates an engine over a schema store and a database.
func New(schemas SchemaStore, db mutation.Store, validator *mutation.Validator, opts Options) *Engine {
	return &Engine{
		schemas:    schemas,
		resolver:   relation.NewResolver(schemas),
		listing:    listing.NewEngine(db),
		dispatcher: mutation.NewDispatcher(db, validator),
		opts:       opts,
	}
}

func (e *Engine) authorized(ctx context.Context, s access.Subject, action string, caller access.PermissionSet) error {
	d := access.Authorize(s, action, caller)
	if !d.Allowed {
		logger.Warn(ctx, "access denied", "model", d.Model, "action", d.Action, "permission", d.Permission)
		return d.Err()
	}
	return nil
}

func (e *Engine) params(req Request) query.Params {
	p := req.Query
	if e.opts.MaxPageSize > 0 && p.Size > e.opts.MaxPageSize {
		p.Size = e.opts.MaxPageSize
	}
	p.CaseSensitiveSearch = p.CaseSensitiveSearch || e.opts.CaseSensitiveSearch
	p.Permissions = req.Permissions
	return p
}

// target is what a listing request reads: the document to flatten and,
// when a configured relation was named, its plan.
type target struct {
	doc      *schema.SchemaDoc
	rel      *relation.Plan
	fallback bool
}

// resolve finds the listing target for req. A relation that matches no
// declaration resolves to the model named by the relation when it has a
// schema, otherwise to source, with fallback set.
func (e *Engine) resolve(ctx context.Context, source *schema.SchemaDoc, req Request) (target, error) {
	if strings.TrimSpace(req.Relation) == "" {
		return target{doc: source}, nil
	}
	rel, err := e.resolver.Resolve(source, req.ID, req.Relation)
	switch {
	case apperror.IsRelationNotConfigured(err):
		t := target{doc: source, fallback: true}
		if doc, lookupErr := e.schemas.Get(req.Relation); lookupErr == nil {
			t.doc = doc
		}
		logger.Warn(ctx, "relation not configured, listing unscoped",
			"model", source.Model, "relation", req.Relation, "fallback_model", t.doc.Model)
		return t, nil
	case err != nil:
		return target{}, err
	}
	return target{doc: rel.Target, rel: rel}, nil
}

// List returns a page of req.Model, or of the relation req.Relation of the
// record req.ID when a relation is named.
//
// A relation that matches no declaration does not fail the request: the
// model named by the relation is listed unscoped when it has a schema,
// otherwise req.Model is, and the result is marked as a fallback.
func (e *Engine) List(ctx context.Context, req Request) (*ListResult, error) {
	source, err := e.schemas.Get(req.Model)
	if err != nil {
		return nil, err
	}
	if err := e.authorized(ctx, source, access.ActionView, req.Permissions); err != nil {
		return nil, err
	}

	t, err := e.resolve(ctx, source, req)
	if err != nil {
		return nil, err
	}
	if t.doc != source {
		if err := e.authorized(ctx, t.doc, access.ActionView, req.Permissions); err != nil {
			return nil, err
		}
	}

	res, err := e.list(ctx, schema.Flatten(t.doc, req.contextOr(ListContext)), t.rel, req)
	if err != nil {
		return nil, err
	}
	switch {
	case t.rel != nil:
		res.Relation = t.rel.Name
		res.Kind = t.rel.Kind.String()
	case t.fallback:
		res.Relation = req.Relation
		res.Fallback = true
	}
	return res, nil
}

func (e *Engine) list(ctx context.Context, fs *schema.FlatSchema, rel *relation.Plan, req Request) (*ListResult, error) {
	plan, err := query.Build(fs, rel, e.params(req))
	if err != nil {
		return nil, err
	}
	for _, d := range plan.Diagnostics {
		logger.Warn(ctx, "unusable field names dropped",
			"model", d.Model, "source", d.Source, "dropped", d.Dropped)
	}
	page, err := e.listing.Execute(ctx, plan)
	if err != nil {
		return nil, err
	}
	return &ListResult{Page: page, Model: fs.Model}, nil
}

// Plan builds the listing query List would run, without executing it or
// checking model permissions. An unconfigured relation plans the same
// unscoped fallback List would serve.
func (e *Engine) Plan(ctx context.Context, req Request) (*query.Plan, error) {
	source, err := e.schemas.Get(req.Model)
	if err != nil {
		return nil, err
	}
	t, err := e.resolve(ctx, source, req)
	if err != nil {
		return nil, err
	}
	return query.Build(schema.Flatten(t.doc, req.contextOr(ListContext)), t.rel, e.params(req))
}

// Get loads one record with the fields of the detail context the caller may see.
func (e *Engine) Get(ctx context.Context, req Request) (map[string]any, error) {
	doc, err := e.schemas.Get(req.Model)
	if err != nil {
		return nil, err
	}
	if err := e.authorized(ctx, doc, access.ActionRead, req.Permissions); err != nil {
		return nil, err
	}

	fs := schema.Flatten(doc, req.contextOr(DetailContext))
	cols := []string{fs.PrimaryKey}
	for _, name := range fs.Requested {
		for _, key := range access.VisibleFields(fs, name, req.Permissions) {
			f, _ := fs.ContextFields(name).Lookup(key)
			if f.IsComputed() || f.Kind == schema.KindPassword || slices.Contains(cols, key) {
				continue
			}
			cols = append(cols, key)
		}
	}
	return e.dispatcher.Find(ctx, fs, req.ID, cols)
}

// Schema returns the flattened schema with the fields the caller may not see
// removed. wrap selects the {"schema": ...} shape.
func (e *Engine) Schema(ctx context.Context, req Request, wrap bool) (any, error) {
	doc, err := e.schemas.Get(req.Model)
	if err != nil {
		return nil, err
	}
	if err := e.authorized(ctx, doc, access.ActionView, req.Permissions); err != nil {
		return nil, err
	}

	fs := schema.Flatten(doc, req.Context)
	if fs.IsMulti() {
		contexts := make(map[string]schema.FlatContext, len(fs.Contexts))
		for name, c := range fs.Contexts {
			c.Fields = visible(c.Fields, req.Permissions)
			contexts[name] = c
		}
		fs.Contexts = contexts
	} else {
		fs.Fields = visible(fs.Fields, req.Permissions)
	}

	if wrap {
		return fs.Wrap(), nil
	}
	return fs, nil
}

// visible drops fields guarded by a view permission the caller lacks.
func visible(fields schema.Fields, caller access.PermissionSet) schema.Fields {
	out := make(schema.Fields, 0, len(fields))
	for _, f := range fields {
		if f.ViewPermission != "" && !caller.Has(f.ViewPermission) {
			continue
		}
		out = append(out, f)
	}
	return out
}

// Create inserts a record built from input.
func (e *Engine) Create(ctx context.Context, req Request, input map[string]any) (*mutation.Result, error) {
	fs, err := e.writable(ctx, req, access.ActionCreate)
	if err != nil {
		return nil, err
	}
	return e.dispatcher.Create(ctx, fs, input, req.Permissions)
}

// Update changes the record req.ID.
func (e *Engine) Update(ctx context.Context, req Request, input map[string]any) (*mutation.Result, error) {
	fs, err := e.writable(ctx, req, access.ActionUpdate)
	if err != nil {
		return nil, err
	}
	return e.dispatcher.Update(ctx, fs, req.ID, input, req.Permissions)
}

// Delete removes the record req.ID.
func (e *Engine) Delete(ctx context.Context, req Request) (*mutation.Result, error) {
	fs, err := e.writable(ctx, req, access.ActionDelete)
	if err != nil {
		return nil, err
	}
	return e.dispatcher.Delete(ctx, fs, req.ID)
}

func (e *Engine) writable(ctx context.Context, req Request, action string) (*schema.FlatSchema, error) {
	doc, err := e.schemas.Get(req.Model)
	if err != nil {
		return nil, err
	}
	if err := e.authorized(ctx, doc, action, req.Permissions); err != nil {
		return nil, err
	}
	return schema.Flatten(doc, req.contextOr(FormContext)), nil
}

// Attach links ids to req.ID through the pivot of req.Relation.
func (e *Engine) Attach(ctx context.Context, req Request, ids []any) (*mutation.Result, error) {
	rel, err := e.pivot(ctx, req)
	if err != nil {
		return nil, err
	}
	return e.dispatcher.Attach(ctx, rel, ids)
}

// Detach unlinks ids from req.ID.
func (e *Engine) Detach(ctx context.Context, req Request, ids []any) (*mutation.Result, error) {
	rel, err := e.pivot(ctx, req)
	if err != nil {
		return nil, err
	}
	return e.dispatcher.Detach(ctx, rel, ids)
}

func (e *Engine) pivot(ctx context.Context, req Request) (*relation.Plan, error) {
	source, err := e.schemas.Get(req.Model)
	if err != nil {
		return nil, err
	}
	if err := e.authorized(ctx, source, access.ActionUpdate, req.Permissions); err != nil {
		return nil, err
	}
	return e.resolver.Resolve(source, req.ID, req.Relation)
}

// Reload refreshes the schema store and logs lint issues.
func (e *Engine) Reload(ctx context.Context) ([]schema.Issue, error) {
	issues, err := e.schemas.Reload(ctx)
	if err != nil {
		logger.Error(ctx, "schema reload failed", "error", err)
		return nil, err
	}
	for _, is := range issues {
		logger.Warn(ctx, "schema lint", "model", is.Model, "field", is.Field, "code", is.Code, "message", is.Message)
	}
	logger.Info(ctx, "schemas reloaded", "models", len(e.schemas.Models()), "issues", len(issues))
	return issues, nil
}

// Models lists the loaded model names.
func (e *Engine) Models() []string { return e.schemas.Models() }
