// Package relation classifies a named relation of a model and produces the
// join plan needed to list the related rows.
package relation

import (
	"strings"

	"crudschema/internal/core/apperror"
	"crudschema/internal/schema"
)

// Kind is the closed set of relation shapes the engine can query.
type Kind int

const (
	// KindDirect filters the target by a foreign key column. No joins.
	KindDirect Kind = iota + 1
	// KindPivot joins the target through one pivot table.
	KindPivot
	// KindNestedPivot joins the target through two pivot tables and
	// deduplicates on the target primary key.
	KindNestedPivot
)

func (k Kind) String() string {
	switch k {
	case KindDirect:
		return "direct"
	case KindPivot:
		return "pivot"
	case KindNestedPivot:
		return "nested_pivot"
	default:
		return "unknown"
	}
}

// Hop is one pivot table. ForeignKey points at the near side of the chain,
// RelatedKey at the far side.
type Hop struct {
	Table      string
	ForeignKey string
	RelatedKey string
}

// Plan is a resolved relation.
type Plan struct {
	Kind     Kind
	Name     string
	Source   *schema.SchemaDoc
	SourceID any
	Target   *schema.SchemaDoc

	// ForeignKey is the target column holding the source id (KindDirect).
	ForeignKey string

	// Pivots are ordered from the source outwards: Pivots[0] is bound to
	// the source id, the last one joins the target.
	Pivots []Hop

	// Via is the intermediate model of a nested traversal.
	Via string

	// ListFields is the relation's own list_fields override, sanitized.
	ListFields  []string
	Diagnostics []schema.Diagnostic

	Distinct bool
}

// TargetTable is the table the listing selects from.
func (p *Plan) TargetTable() string { return p.Target.TableName() }

// TargetKey is the target primary key column.
func (p *Plan) TargetKey() string { return p.Target.PrimaryKey }

// SchemaSource looks documents up by model name.
type SchemaSource interface {
	Get(model string) (*schema.SchemaDoc, error)
}

// Resolver classifies relations against a schema source.
type Resolver struct {
	schemas SchemaSource
}

// NewResolver creates a resolver.
func NewResolver(schemas SchemaSource) *Resolver {
	return &Resolver{schemas: schemas}
}

// Resolve classifies name as a relation of source. Tiers are tried in order:
// details and one_to_many relationships, then a many_to_many relationship,
// then a many_to_many reached through one of source's many_to_many
// relationships. The first match wins.
//
// An unmatched name yields RELATION_NOT_CONFIGURED, which callers may treat
// as a request to list the target model unfiltered.
func (r *Resolver) Resolve(source *schema.SchemaDoc, sourceID any, name string) (*Plan, error) {
	name = strings.TrimSpace(name)

	if plan, ok, err := r.direct(source, sourceID, name); ok || err != nil {
		return plan, err
	}
	if plan, ok, err := r.pivot(source, sourceID, name); ok || err != nil {
		return plan, err
	}
	if plan, ok, err := r.nested(source, sourceID, name); ok || err != nil {
		return plan, err
	}
	return nil, apperror.NewRelationNotConfigured(source.Model, name)
}

func (r *Resolver) direct(source *schema.SchemaDoc, id any, name string) (*Plan, bool, error) {
	var (
		target, fk string
		fields     schema.NameList
		found      bool
	)
	for _, d := range source.AllDetails() {
		if d.Model == name {
			target, fk, fields, found = d.Model, d.ForeignKey, d.ListFields, true
			break
		}
	}
	if !found {
		rel, ok := source.Relationship(name)
		if !ok || rel.Type != schema.OneToMany {
			return nil, false, nil
		}
		target, fk, fields = rel.TargetModel(), rel.ForeignKey, rel.ListFields
	}

	if strings.TrimSpace(fk) == "" {
		return nil, true, apperror.NewMissingPivotMetadata(source.Model, name, "foreign_key")
	}
	doc, err := r.schemas.Get(target)
	if err != nil {
		return nil, true, err
	}
	plan := &Plan{
		Kind:       KindDirect,
		Name:       name,
		Source:     source,
		SourceID:   id,
		Target:     doc,
		ForeignKey: strings.TrimSpace(fk),
	}
	plan.setListFields(fields)
	return plan, true, nil
}

func (r *Resolver) pivot(source *schema.SchemaDoc, id any, name string) (*Plan, bool, error) {
	rel, ok := source.Relationship(name)
	if !ok || rel.Type != schema.ManyToMany || rel.Through != "" {
		return nil, false, nil
	}
	hop, err := hopOf(source.Model, rel)
	if err != nil {
		return nil, true, err
	}
	doc, err := r.schemas.Get(rel.TargetModel())
	if err != nil {
		return nil, true, err
	}
	plan := &Plan{
		Kind:     KindPivot,
		Name:     name,
		Source:   source,
		SourceID: id,
		Target:   doc,
		Pivots:   []Hop{hop},
	}
	plan.setListFields(rel.ListFields)
	return plan, true, nil
}

func (r *Resolver) nested(source *schema.SchemaDoc, id any, name string) (*Plan, bool, error) {
	// A declared transitive relationship names its first hop explicitly.
	if rel, ok := source.Relationship(name); ok && rel.Through != "" {
		via, ok := source.Relationship(rel.Through)
		if !ok || via.Type != schema.ManyToMany {
			return nil, true, apperror.NewRelationNotConfigured(source.Model, rel.Through)
		}
		inter, err := r.schemas.Get(via.TargetModel())
		if err != nil {
			return nil, true, err
		}
		second, ok := inter.Relationship(name)
		if !ok || second.Type != schema.ManyToMany {
			return nil, true, apperror.NewRelationNotConfigured(inter.Model, name)
		}
		plan, err := r.chain(source, id, name, via, inter, second)
		if err != nil {
			return nil, true, err
		}
		if len(rel.ListFields) > 0 {
			plan.setListFields(rel.ListFields)
		}
		return plan, true, nil
	}

	for _, via := range source.Relationships {
		if via.Type != schema.ManyToMany || via.Through != "" {
			continue
		}
		inter, err := r.schemas.Get(via.TargetModel())
		if err != nil {
			if apperror.IsSchemaNotFound(err) {
				continue
			}
			return nil, true, err
		}
		second, ok := inter.Relationship(name)
		if !ok || second.Type != schema.ManyToMany || second.Through != "" {
			continue
		}
		plan, err := r.chain(source, id, name, via, inter, second)
		return plan, true, err
	}
	return nil, false, nil
}

func (r *Resolver) chain(source *schema.SchemaDoc, id any, name string, via schema.RelationshipDef,
	inter *schema.SchemaDoc, second schema.RelationshipDef) (*Plan, error) {
	first, err := hopOf(source.Model, via)
	if err != nil {
		return nil, err
	}
	last, err := hopOf(inter.Model, second)
	if err != nil {
		return nil, err
	}
	doc, err := r.schemas.Get(second.TargetModel())
	if err != nil {
		return nil, err
	}
	plan := &Plan{
		Kind:     KindNestedPivot,
		Name:     name,
		Source:   source,
		SourceID: id,
		Target:   doc,
		Pivots:   []Hop{first, last},
		Via:      inter.Model,
		Distinct: true,
	}
	plan.setListFields(second.ListFields)
	return plan, nil
}

func hopOf(model string, rel schema.RelationshipDef) (Hop, error) {
	if key := schema.MissingPivotKey(rel); key != "" {
		return Hop{}, apperror.NewMissingPivotMetadata(model, rel.Name, key)
	}
	return Hop{
		Table:      strings.TrimSpace(rel.PivotTable),
		ForeignKey: strings.TrimSpace(rel.ForeignKey),
		RelatedKey: strings.TrimSpace(rel.RelatedKey),
	}, nil
}

func (p *Plan) setListFields(in schema.NameList) {
	names, dropped := schema.SanitizeNames(in)
	p.ListFields = names
	p.Diagnostics = nil
	if dropped > 0 {
		p.Diagnostics = []schema.Diagnostic{{Model: p.Source.Model, Source: "relation " + p.Name + ".list_fields", Dropped: dropped}}
	}
}
