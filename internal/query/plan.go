// Package query turns a flattened schema, an optional relation plan and
// request parameters into a listing query.
package query

import (
	"fmt"
	"strings"

	"github.com/Masterminds/squirrel"

	"crudschema/internal/relation"
	"crudschema/internal/schema"
)

// Join is an inner join whose left side is already bound when it is applied.
type Join struct {
	Table   string
	Alias   string
	OnLeft  string
	OnRight string
}

// Name is the identifier the join is referenced by.
func (j Join) Name() string {
	if j.Alias != "" {
		return j.Alias
	}
	return j.Table
}

// Clause renders the join for squirrel's Join.
func (j Join) Clause() string {
	target := j.Table
	if j.Alias != "" {
		target = j.Table + " AS " + j.Alias
	}
	return fmt.Sprintf("%s ON %s = %s", target, j.OnLeft, j.OnRight)
}

// Predicate is an equality filter on a qualified column.
type Predicate struct {
	Column string
	Value  any
}

// SearchColumn is a qualified column a search matches against. Cast columns
// hold non-character data and are compared through their text form.
type SearchColumn struct {
	Name string
	Cast bool
}

// Search is an OR of pattern matches over qualified columns.
type Search struct {
	Columns       []SearchColumn
	Term          string
	CaseSensitive bool
}

// Pattern is the escaped %term% pattern bound for every column.
func (s *Search) Pattern() string {
	return "%" + escapeLike(s.Term) + "%"
}

func (s *Search) predicate() squirrel.Sqlizer {
	pattern := s.Pattern()
	or := make(squirrel.Or, 0, len(s.Columns))
	op := "ILIKE"
	if s.CaseSensitive {
		op = "LIKE"
	}
	for _, col := range s.Columns {
		switch {
		case col.Cast:
			or = append(or, squirrel.Expr(col.Name+"::text "+op+" ?", pattern))
		case s.CaseSensitive:
			or = append(or, squirrel.Like{col.Name: pattern})
		default:
			or = append(or, squirrel.ILike{col.Name: pattern})
		}
	}
	return or
}

var likeEscaper = strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)

func escapeLike(s string) string { return likeEscaper.Replace(s) }

// Sort is a single ORDER BY term.
type Sort struct {
	Column string
	Desc   bool
}

// Clause renders the term.
func (s Sort) Clause() string {
	if s.Desc {
		return s.Column + " DESC"
	}
	return s.Column + " ASC"
}

// Plan is a fully resolved listing query. Every column it references is a
// qualified, non-empty identifier.
type Plan struct {
	Model      string
	BaseTable  string
	PrimaryKey string
	Relation   relation.Kind

	Joins      []Join
	WhereFK    *Predicate
	Search     *Search
	Sort       Sort
	Limit      uint64
	Offset     uint64
	Projection []string
	Distinct   bool

	Diagnostics []schema.Diagnostic
}

func builder() squirrel.StatementBuilderType {
	return squirrel.StatementBuilder.PlaceholderFormat(squirrel.Dollar)
}

// scoped selects the projection with joins and the foreign key filter.
func (p *Plan) scoped() squirrel.SelectBuilder {
	q := builder().Select(p.Projection...).From(p.BaseTable)
	if p.Distinct {
		q = q.Distinct()
	}
	for _, j := range p.Joins {
		q = q.Join(j.Clause())
	}
	if p.WhereFK != nil {
		q = q.Where(squirrel.Eq{p.WhereFK.Column: p.WhereFK.Value})
	}
	return q
}

func (p *Plan) filtered() squirrel.SelectBuilder {
	q := p.scoped()
	if p.Search != nil {
		q = q.Where(p.Search.predicate())
	}
	return q
}

// SelectBuilder returns the page query.
func (p *Plan) SelectBuilder() squirrel.SelectBuilder {
	q := p.filtered().OrderBy(p.Sort.Clause())
	if p.Limit > 0 {
		q = q.Limit(p.Limit)
	}
	if p.Offset > 0 {
		q = q.Offset(p.Offset)
	}
	return q
}

// SelectSQL renders the page query.
func (p *Plan) SelectSQL() (string, []any, error) {
	sql, args, err := p.SelectBuilder().ToSql()
	if err != nil {
		return "", nil, fmt.Errorf("build select: %w", err)
	}
	return sql, args, nil
}

// CountSQL counts the rows matching the search, ignoring pagination.
func (p *Plan) CountSQL() (string, []any, error) {
	return countOf(p.filtered())
}

// TotalSQL counts the rows in scope before the search is applied.
func (p *Plan) TotalSQL() (string, []any, error) {
	return countOf(p.scoped())
}

func countOf(q squirrel.SelectBuilder) (string, []any, error) {
	sql, args, err := builder().Select("COUNT(*)").FromSelect(q, "sub").ToSql()
	if err != nil {
		return "", nil, fmt.Errorf("build count query: %w", err)
	}
	return sql, args, nil
}

// Columns returns the projected column names without their table prefix.
func (p *Plan) Columns() []string {
	out := make([]string, len(p.Projection))
	for i, c := range p.Projection {
		if dot := strings.LastIndexByte(c, '.'); dot >= 0 {
			c = c[dot+1:]
		}
		out[i] = c
	}
	return out
}
