package query

import (
	"fmt"
	"slices"
	"strings"

	"crudschema/internal/access"
	"crudschema/internal/core/apperror"
	"crudschema/internal/relation"
	"crudschema/internal/schema"
)

// Params are the request-controlled listing inputs. Page is zero based.
type Params struct {
	Page   int
	Size   int
	Sort   string
	Search string

	// CaseSensitiveSearch switches the search from ILIKE to LIKE.
	CaseSensitiveSearch bool

	// Permissions are the caller's. Fields guarded by a view_permission
	// outside the set are neither projected, sorted on nor searched.
	Permissions access.PermissionSet
}

func (p Params) sees(f schema.FieldDef) bool {
	return f.ViewPermission == "" || p.Permissions.Has(f.ViewPermission)
}

// Build plans a listing of fs. When rel is not nil, fs must be the flattened
// schema of rel's target and the plan is scoped to the relation.
func Build(fs *schema.FlatSchema, rel *relation.Plan, params Params) (*Plan, error) {
	if params.Size <= 0 {
		return nil, apperror.NewValidation("page size must be positive").
			WithDetail("model", fs.Model).WithDetail("size", params.Size)
	}
	if params.Page < 0 {
		return nil, apperror.NewValidation("page must not be negative").
			WithDetail("model", fs.Model).WithDetail("page", params.Page)
	}
	if rel != nil && rel.Target.Model != fs.Model {
		return nil, fmt.Errorf("relation %q targets %q, schema is %q", rel.Name, rel.Target.Model, fs.Model)
	}

	base := fs.Table
	if err := checkIdent(fs.Model, base, fs.PrimaryKey); err != nil {
		return nil, err
	}

	override := fs.PrimaryListFields()
	if rel != nil && len(rel.ListFields) > 0 {
		override = rel.ListFields
	}
	fields := fs.CombinedFields()
	sets := schema.DeriveFieldSets(fs.Model, fields, override, fs.DocFilter(params.sees))

	plan := &Plan{
		Model:      fs.Model,
		BaseTable:  base,
		PrimaryKey: fs.PrimaryKey,
		Limit:      uint64(params.Size),
		Offset:     uint64(params.Page) * uint64(params.Size),
	}
	plan.Diagnostics = append(plan.Diagnostics, fs.Diagnostics...)
	if rel != nil {
		plan.Diagnostics = append(plan.Diagnostics, rel.Diagnostics...)
	}
	plan.Diagnostics = append(plan.Diagnostics, sets.Diagnostics...)

	if rel != nil {
		if err := plan.applyRelation(rel); err != nil {
			return nil, err
		}
	}

	sort, err := resolveSort(fs, sets.Sortable, params.Sort)
	if err != nil {
		return nil, err
	}
	plan.Sort = Sort{Column: qualify(base, sort.Column), Desc: sort.Desc}

	cols := sets.Listable
	if !slices.Contains(cols, fs.PrimaryKey) {
		cols = append([]string{fs.PrimaryKey}, cols...)
	}
	if plan.Distinct && !slices.Contains(cols, sort.Column) {
		// SELECT DISTINCT requires ORDER BY columns in the select list.
		cols = append(cols, sort.Column)
	}
	plan.Projection = qualifyAll(base, cols)

	if term := strings.TrimSpace(params.Search); term != "" && len(sets.Filterable) > 0 {
		plan.Search = &Search{Term: term, CaseSensitive: params.CaseSensitiveSearch}
		for _, name := range sets.Filterable {
			f, _ := fields.Lookup(name)
			plan.Search.Columns = append(plan.Search.Columns, SearchColumn{
				Name: qualify(base, name),
				Cast: !f.Kind.IsText(),
			})
		}
	}

	return plan, nil
}

func (p *Plan) applyRelation(rel *relation.Plan) error {
	p.Relation = rel.Kind
	target := p.BaseTable
	pk := qualify(target, p.PrimaryKey)

	switch rel.Kind {
	case relation.KindDirect:
		if err := checkIdent(rel.Source.Model, rel.ForeignKey); err != nil {
			return err
		}
		p.WhereFK = &Predicate{Column: qualify(target, rel.ForeignKey), Value: rel.SourceID}

	case relation.KindPivot:
		if len(rel.Pivots) != 1 {
			return fmt.Errorf("pivot relation %q needs one hop, has %d", rel.Name, len(rel.Pivots))
		}
		hop := rel.Pivots[0]
		if err := checkIdent(rel.Source.Model, hop.Table, hop.ForeignKey, hop.RelatedKey); err != nil {
			return err
		}
		j := p.join(hop.Table)
		j.OnLeft, j.OnRight = pk, qualify(j.Name(), hop.RelatedKey)
		p.Joins = append(p.Joins, j)
		p.WhereFK = &Predicate{Column: qualify(j.Name(), hop.ForeignKey), Value: rel.SourceID}

	case relation.KindNestedPivot:
		if len(rel.Pivots) != 2 {
			return fmt.Errorf("nested relation %q needs two hops, has %d", rel.Name, len(rel.Pivots))
		}
		first, second := rel.Pivots[0], rel.Pivots[1]
		for _, h := range rel.Pivots {
			if err := checkIdent(rel.Source.Model, h.Table, h.ForeignKey, h.RelatedKey); err != nil {
				return err
			}
		}
		near := p.join(second.Table)
		near.OnLeft, near.OnRight = pk, qualify(near.Name(), second.RelatedKey)
		p.Joins = append(p.Joins, near)

		far := p.join(first.Table)
		far.OnLeft, far.OnRight = qualify(near.Name(), second.ForeignKey), qualify(far.Name(), first.RelatedKey)
		p.Joins = append(p.Joins, far)

		p.WhereFK = &Predicate{Column: qualify(far.Name(), first.ForeignKey), Value: rel.SourceID}
		p.Distinct = true

	default:
		return fmt.Errorf("unsupported relation kind %v for %q", rel.Kind, rel.Name)
	}

	p.Distinct = p.Distinct || rel.Distinct
	return nil
}

// join names a new join on table, aliasing it when the name is already bound.
func (p *Plan) join(table string) Join {
	bound := map[string]bool{p.BaseTable: true}
	for _, j := range p.Joins {
		bound[j.Name()] = true
	}
	j := Join{Table: table}
	if bound[table] {
		j.Alias = fmt.Sprintf("%s_%d", table, len(p.Joins)+1)
	}
	return j
}

type sortSpec struct {
	Column string
	Desc   bool
}

// parseSort accepts "col", "+col", "-col", "col:asc" and "col:desc".
func parseSort(expr string) (sortSpec, bool) {
	expr = strings.TrimSpace(expr)
	var s sortSpec
	switch {
	case strings.HasPrefix(expr, "-"):
		s.Desc = true
		expr = expr[1:]
	case strings.HasPrefix(expr, "+"):
		expr = expr[1:]
	}
	if col, dir, ok := strings.Cut(expr, ":"); ok {
		switch strings.ToLower(strings.TrimSpace(dir)) {
		case "desc":
			s.Desc = true
		case "asc":
		default:
			return sortSpec{}, false
		}
		expr = col
	}
	s.Column = strings.TrimSpace(expr)
	return s, schema.IsIdentifier(s.Column)
}

// resolveSort picks the explicit sort, then the context default_sort, then
// the primary key ascending. An explicit sort must name a sortable field or
// the primary key.
func resolveSort(fs *schema.FlatSchema, sortable []string, requested string) (sortSpec, error) {
	if strings.TrimSpace(requested) != "" {
		s, ok := parseSort(requested)
		if !ok || (!slices.Contains(sortable, s.Column) && s.Column != fs.PrimaryKey) {
			return sortSpec{}, apperror.NewValidation(
				fmt.Sprintf("Cannot sort model '%s' by '%s'", fs.Model, requested)).
				WithDetail("model", fs.Model).
				WithDetail("sort", requested).
				WithDetail("sortable", sortable)
		}
		return s, nil
	}
	if def := fs.PrimaryDefaultSort(); def != "" {
		if s, ok := parseSort(def); ok {
			return s, nil
		}
	}
	return sortSpec{Column: fs.PrimaryKey}, nil
}

func qualify(table, col string) string { return table + "." + col }

func qualifyAll(table string, cols []string) []string {
	out := make([]string, len(cols))
	for i, c := range cols {
		out[i] = qualify(table, c)
	}
	return out
}

func checkIdent(model string, names ...string) error {
	for _, n := range names {
		if !schema.IsIdentifier(n) {
			return apperror.NewSchemaInvalid(model, fmt.Sprintf("invalid identifier %q", n)).
				WithDetail("identifier", n)
		}
	}
	return nil
}
