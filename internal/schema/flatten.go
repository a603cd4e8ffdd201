package schema

import (
	"encoding/json"
	"fmt"
	"strings"
)

// Shape identifies which of the three introspection layouts a payload uses.
type Shape int

const (
	ShapeUnknown Shape = iota
	// ShapeSingle carries root-level fields for one context.
	ShapeSingle
	// ShapeMulti carries a contexts map, one entry per requested context.
	ShapeMulti
	// ShapeWrapped nests either of the above under a schema key.
	ShapeWrapped
)

func (s Shape) String() string {
	switch s {
	case ShapeSingle:
		return "single"
	case ShapeMulti:
		return "multi"
	case ShapeWrapped:
		return "wrapped"
	default:
		return "unknown"
	}
}

// Diagnostic records names dropped while assembling a field list.
type Diagnostic struct {
	Model   string `json:"model"`
	Source  string `json:"source"`
	Dropped int    `json:"dropped"`
}

// FlatContext is the per-context payload of a multi-context schema.
type FlatContext struct {
	Fields      Fields   `json:"fields"`
	ListFields  []string `json:"list_fields,omitempty"`
	DefaultSort string   `json:"default_sort,omitempty"`
}

// FlatSchema is a schema document narrowed to the requested contexts.
// With one requested context the fields sit at the root; with more they are
// kept apart under Contexts.
type FlatSchema struct {
	Model       string
	Table       string
	Title       string
	Description string
	PrimaryKey  string
	TitleField  string
	Permissions map[string]string
	Actions     []ActionDef

	// Requested lists the selector's context names in order.
	Requested []string

	Fields      Fields
	ListFields  []string
	DefaultSort string

	Contexts map[string]FlatContext

	Diagnostics []Diagnostic

	doc *SchemaDoc
}

// ParseSelector splits a comma separated context selector, trimming and
// de-duplicating names.
func ParseSelector(selector string) []string {
	var out []string
	seen := make(map[string]bool)
	for _, part := range strings.Split(selector, ",") {
		part = strings.TrimSpace(part)
		if part == "" || seen[part] {
			continue
		}
		seen[part] = true
		out = append(out, part)
	}
	return out
}

// Flatten narrows doc to the contexts named by selector. An empty selector
// requests every declared context. Unknown context names contribute no fields.
func Flatten(doc *SchemaDoc, selector string) *FlatSchema {
	requested := ParseSelector(selector)
	if len(requested) == 0 {
		requested = doc.ContextNames()
	}

	fs := &FlatSchema{
		Model:       doc.Model,
		Table:       doc.TableName(),
		Title:       doc.Title,
		Description: doc.Description,
		PrimaryKey:  doc.PrimaryKey,
		TitleField:  doc.TitleField,
		Permissions: doc.Permissions,
		Actions:     doc.Actions,
		Requested:   requested,
		doc:         doc,
	}

	if len(requested) == 1 {
		c, ok := doc.Contexts[requested[0]]
		if !ok {
			fs.Fields = Fields{}
			return fs
		}
		fs.Fields = c.Fields
		fs.ListFields = fs.sanitize(requested[0]+".list_fields", c.ListFields)
		fs.DefaultSort = c.DefaultSort
		return fs
	}

	fs.Contexts = make(map[string]FlatContext, len(requested))
	for _, name := range requested {
		c, ok := doc.Contexts[name]
		if !ok {
			continue
		}
		fs.Contexts[name] = FlatContext{
			Fields:      c.Fields,
			ListFields:  fs.sanitize(name+".list_fields", c.ListFields),
			DefaultSort: c.DefaultSort,
		}
	}
	return fs
}

func (fs *FlatSchema) sanitize(source string, in NameList) []string {
	names, dropped := SanitizeNames(in)
	if dropped > 0 {
		fs.Diagnostics = append(fs.Diagnostics, Diagnostic{Model: fs.Model, Source: source, Dropped: dropped})
	}
	return names
}

// Doc returns the document the schema was flattened from.
func (fs *FlatSchema) Doc() *SchemaDoc { return fs.doc }

// ModelName implements access.Subject.
func (fs *FlatSchema) ModelName() string { return fs.Model }

// RequiredPermission returns the permission gating an action, if any.
func (fs *FlatSchema) RequiredPermission(action string) (string, bool) {
	p, ok := fs.Permissions[action]
	if !ok || strings.TrimSpace(p) == "" {
		return "", false
	}
	return p, true
}

// IsMulti reports whether the schema uses the multi-context shape.
func (fs *FlatSchema) IsMulti() bool { return fs.Contexts != nil }

// Shape returns the layout MarshalJSON produces.
func (fs *FlatSchema) Shape() Shape {
	if fs.IsMulti() {
		return ShapeMulti
	}
	return ShapeSingle
}

// CombinedFields returns the union of the fields of every flattened context,
// keyed by field key. First occurrence wins, in requested order.
func (fs *FlatSchema) CombinedFields() Fields {
	if !fs.IsMulti() {
		return fs.Fields
	}
	var out Fields
	seen := make(map[string]bool)
	for _, name := range fs.Requested {
		for _, f := range fs.Contexts[name].Fields {
			if seen[f.Key] {
				continue
			}
			seen[f.Key] = true
			out = append(out, f)
		}
	}
	return out
}

// ContextFields returns the fields of one flattened context.
func (fs *FlatSchema) ContextFields(context string) Fields {
	if !fs.IsMulti() {
		if len(fs.Requested) == 1 && fs.Requested[0] == context {
			return fs.Fields
		}
		return nil
	}
	return fs.Contexts[context].Fields
}

// PrimaryContext is the first requested context name.
func (fs *FlatSchema) PrimaryContext() string {
	if len(fs.Requested) == 0 {
		return ""
	}
	return fs.Requested[0]
}

// PrimaryDefaultSort returns default_sort of the primary context.
func (fs *FlatSchema) PrimaryDefaultSort() string {
	if !fs.IsMulti() {
		return fs.DefaultSort
	}
	return fs.Contexts[fs.PrimaryContext()].DefaultSort
}

// PrimaryListFields returns the list_fields override of the primary context.
func (fs *FlatSchema) PrimaryListFields() []string {
	if !fs.IsMulti() {
		return fs.ListFields
	}
	return fs.Contexts[fs.PrimaryContext()].ListFields
}

type flatJSON struct {
	Model       string            `json:"model"`
	Table       string            `json:"table,omitempty"`
	Title       string            `json:"title,omitempty"`
	Description string            `json:"description,omitempty"`
	PrimaryKey  string            `json:"primary_key"`
	TitleField  string            `json:"title_field,omitempty"`
	Permissions map[string]string `json:"permissions,omitempty"`
	Actions     []ActionDef       `json:"actions,omitempty"`
	Fields      json.RawMessage   `json:"fields,omitempty"`
	ListFields  []string          `json:"list_fields,omitempty"`
	DefaultSort string            `json:"default_sort,omitempty"`
	Contexts    json.RawMessage   `json:"contexts,omitempty"`
}

func (fs *FlatSchema) MarshalJSON() ([]byte, error) {
	out := flatJSON{
		Model:       fs.Model,
		Table:       fs.Table,
		Title:       fs.Title,
		Description: fs.Description,
		PrimaryKey:  fs.PrimaryKey,
		TitleField:  fs.TitleField,
		Permissions: fs.Permissions,
		Actions:     fs.Actions,
	}
	var err error
	if fs.IsMulti() {
		out.Contexts, err = json.Marshal(fs.Contexts)
	} else {
		out.Fields, err = json.Marshal(fs.Fields)
		out.ListFields = fs.ListFields
		out.DefaultSort = fs.DefaultSort
	}
	if err != nil {
		return nil, err
	}
	return json.Marshal(out)
}

// Wrapped is the {schema: ...} introspection layout.
type Wrapped struct {
	Schema *FlatSchema `json:"schema"`
}

// Wrap returns fs in the wrapped layout.
func (fs *FlatSchema) Wrap() Wrapped { return Wrapped{Schema: fs} }

// DetectShape classifies an encoded introspection payload.
func DetectShape(raw []byte) (Shape, error) {
	var top map[string]json.RawMessage
	if err := json.Unmarshal(raw, &top); err != nil {
		return ShapeUnknown, fmt.Errorf("detect schema shape: %w", err)
	}
	if _, ok := top["contexts"]; ok {
		return ShapeMulti, nil
	}
	if _, ok := top["fields"]; ok {
		return ShapeSingle, nil
	}
	if _, ok := top["schema"]; ok {
		return ShapeWrapped, nil
	}
	return ShapeUnknown, nil
}
