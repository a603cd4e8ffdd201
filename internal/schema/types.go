// Package schema holds the declarative model documents the engine interprets:
// decoding and validation, the in-memory store, and context flattening.
package schema

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"slices"
	"strings"
)

// ErrInvalid is wrapped by every decode or validation failure.
var ErrInvalid = errors.New("invalid schema document")

// FieldKind is the closed set of field types a document may declare.
type FieldKind string

const (
	KindString      FieldKind = "string"
	KindText        FieldKind = "text"
	KindEmail       FieldKind = "email"
	KindInteger     FieldKind = "integer"
	KindFloat       FieldKind = "float"
	KindDecimal     FieldKind = "decimal"
	KindBoolean     FieldKind = "boolean"
	KindDate        FieldKind = "date"
	KindDateTime    FieldKind = "datetime"
	KindPassword    FieldKind = "password"
	KindSelect      FieldKind = "select"
	KindMultiSelect FieldKind = "multiselect"
	KindJSON        FieldKind = "json"
	KindComputed    FieldKind = "computed"
)

var kindAliases = map[string]FieldKind{
	"int":     KindInteger,
	"bool":    KindBoolean,
	"number":  KindFloat,
	"numeric": KindDecimal,
}

var knownKinds = []FieldKind{
	KindString, KindText, KindEmail, KindInteger, KindFloat, KindDecimal, KindBoolean,
	KindDate, KindDateTime, KindPassword, KindSelect, KindMultiSelect, KindJSON, KindComputed,
}

// ParseFieldKind maps a declared type name onto a FieldKind.
// An empty name is a plain string field.
func ParseFieldKind(s string) (FieldKind, error) {
	s = strings.ToLower(strings.TrimSpace(s))
	if s == "" {
		return KindString, nil
	}
	if k, ok := kindAliases[s]; ok {
		return k, nil
	}
	k := FieldKind(s)
	if slices.Contains(knownKinds, k) {
		return k, nil
	}
	return "", fmt.Errorf("%w: unknown field type %q", ErrInvalid, s)
}

func (k *FieldKind) UnmarshalJSON(b []byte) error {
	var s string
	if err := json.Unmarshal(b, &s); err != nil {
		return fmt.Errorf("%w: field type must be a string", ErrInvalid)
	}
	parsed, err := ParseFieldKind(s)
	if err != nil {
		return err
	}
	*k = parsed
	return nil
}

// IsText reports whether columns of kind k hold character data that a LIKE
// pattern can match without a cast.
func (k FieldKind) IsText() bool {
	switch k {
	case KindString, KindText, KindEmail, KindSelect, KindPassword, "":
		return true
	}
	return false
}

// Rule is a validation flag. Documents write it as a boolean or as an
// object (possibly empty) whose presence enables the rule.
type Rule bool

func (r *Rule) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	switch {
	case bytes.Equal(b, []byte("true")):
		*r = true
	case bytes.Equal(b, []byte("false")), bytes.Equal(b, []byte("null")):
		*r = false
	case len(b) > 0 && b[0] == '{':
		*r = true
	default:
		return fmt.Errorf("%w: rule flag must be a boolean or an object, got %s", ErrInvalid, b)
	}
	return nil
}

// Bounds is an inclusive numeric interval; nil ends are open.
type Bounds struct {
	Min *float64 `json:"min,omitempty"`
	Max *float64 `json:"max,omitempty"`
}

// Validation lists the rules checked on create and update.
type Validation struct {
	Required Rule    `json:"required,omitempty"`
	Email    Rule    `json:"email,omitempty"`
	Length   *Bounds `json:"length,omitempty"`
	Range    *Bounds `json:"range,omitempty"`
	Regex    string  `json:"regex,omitempty"`
	// Expr is a CEL expression over `value` and `record` that must yield true.
	Expr string `json:"expr,omitempty"`
}

// Option is one choice of a select or multiselect field.
type Option struct {
	Value any    `json:"value"`
	Label string `json:"label,omitempty"`
}

func (o *Option) UnmarshalJSON(b []byte) error {
	var s string
	if err := json.Unmarshal(b, &s); err == nil {
		o.Value, o.Label = s, s
		return nil
	}
	type plain Option
	var p plain
	if err := json.Unmarshal(b, &p); err != nil {
		return fmt.Errorf("%w: option must be a string or {value,label}", ErrInvalid)
	}
	*o = Option(p)
	return nil
}

// FieldDef describes one field of a context.
type FieldDef struct {
	Key            string      `json:"-"`
	Kind           FieldKind   `json:"type"`
	Label          string      `json:"label,omitempty"`
	Sortable       bool        `json:"sortable,omitempty"`
	Filterable     bool        `json:"filterable,omitempty"`
	ShowIn         []string    `json:"show_in,omitempty"`
	Editable       *bool       `json:"editable,omitempty"`
	Readonly       bool        `json:"readonly,omitempty"`
	Computed       bool        `json:"computed,omitempty"`
	Required       bool        `json:"required,omitempty"`
	Default        any         `json:"default,omitempty"`
	Options        []Option    `json:"options,omitempty"`
	Validation     *Validation `json:"validation,omitempty"`
	ViewPermission string      `json:"view_permission,omitempty"`
	EditPermission string      `json:"edit_permission,omitempty"`
}

// IsComputed reports whether the field has no backing column.
func (f FieldDef) IsComputed() bool {
	return f.Computed || f.Kind == KindComputed
}

// IsEditable reports whether the field may appear in a persisted payload.
func (f FieldDef) IsEditable() bool {
	if f.IsComputed() || f.Readonly {
		return false
	}
	return f.Editable == nil || *f.Editable
}

// IsRequired merges the top-level flag with validation.required.
func (f FieldDef) IsRequired() bool {
	return f.Required || (f.Validation != nil && bool(f.Validation.Required))
}

// ShownIn reports whether show_in names the context.
func (f FieldDef) ShownIn(context string) bool {
	return slices.Contains(f.ShowIn, context)
}

// Fields is an ordered field map. It decodes from and encodes to a JSON
// object, keeping declaration order.
type Fields []FieldDef

// Lookup returns the field with the given key.
func (fs Fields) Lookup(key string) (FieldDef, bool) {
	for _, f := range fs {
		if f.Key == key {
			return f, true
		}
	}
	return FieldDef{}, false
}

// Keys returns the field keys in declaration order.
func (fs Fields) Keys() []string {
	keys := make([]string, len(fs))
	for i, f := range fs {
		keys[i] = f.Key
	}
	return keys
}

func (fs *Fields) UnmarshalJSON(b []byte) error {
	dec := json.NewDecoder(bytes.NewReader(b))
	dec.UseNumber()
	tok, err := dec.Token()
	if err != nil {
		return err
	}
	if tok == nil {
		*fs = nil
		return nil
	}
	if d, ok := tok.(json.Delim); !ok || d != '{' {
		return fmt.Errorf("%w: fields must be an object", ErrInvalid)
	}

	var out Fields
	index := make(map[string]int)
	for dec.More() {
		tok, err := dec.Token()
		if err != nil {
			return err
		}
		key := tok.(string)

		var raw json.RawMessage
		if err := dec.Decode(&raw); err != nil {
			return fmt.Errorf("field %q: %w", key, err)
		}
		if bytes.Equal(bytes.TrimSpace(raw), []byte("null")) {
			return fmt.Errorf("%w: field %q has an empty definition", ErrInvalid, key)
		}
		var def FieldDef
		if err := json.Unmarshal(raw, &def); err != nil {
			return fmt.Errorf("field %q: %w", key, err)
		}
		if def.Kind == "" {
			def.Kind = KindString
		}
		def.Key = key

		if i, dup := index[key]; dup {
			out[i] = def
			continue
		}
		index[key] = len(out)
		out = append(out, def)
	}
	if _, err := dec.Token(); err != nil {
		return err
	}
	*fs = out
	return nil
}

func (fs Fields) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte('{')
	for i, f := range fs {
		if i > 0 {
			buf.WriteByte(',')
		}
		k, err := json.Marshal(f.Key)
		if err != nil {
			return nil, err
		}
		v, err := json.Marshal(f)
		if err != nil {
			return nil, err
		}
		buf.Write(k)
		buf.WriteByte(':')
		buf.Write(v)
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}

// NameList is a list of column names as written by schema authors. Entries
// may be blank or not strings at all; SanitizeNames cleans them.
type NameList []any

// ContextDef is one named view of a model (list, form, detail...).
type ContextDef struct {
	Fields      Fields   `json:"fields"`
	ListFields  NameList `json:"list_fields,omitempty"`
	DefaultSort string   `json:"default_sort,omitempty"`
}

// ActionDef is a user-invocable action shown for the model.
type ActionDef struct {
	Key        string `json:"key"`
	Label      string `json:"label,omitempty"`
	Permission string `json:"permission,omitempty"`
	Confirm    bool   `json:"confirm,omitempty"`
	Style      string `json:"style,omitempty"`
}

// DetailDef declares a one-to-many child listing keyed by a foreign key on the child.
type DetailDef struct {
	Model      string   `json:"model"`
	ForeignKey string   `json:"foreign_key"`
	Title      string   `json:"title,omitempty"`
	ListFields NameList `json:"list_fields,omitempty"`
}

// RelationType is the declared cardinality of a relationship.
type RelationType string

const (
	OneToMany  RelationType = "one_to_many"
	ManyToMany RelationType = "many_to_many"
)

// RelationshipDef declares a named relation of the model.
type RelationshipDef struct {
	Name       string       `json:"name"`
	Type       RelationType `json:"type"`
	Model      string       `json:"model,omitempty"`
	PivotTable string       `json:"pivot_table,omitempty"`
	ForeignKey string       `json:"foreign_key,omitempty"`
	RelatedKey string       `json:"related_key,omitempty"`
	// Through names the many_to_many relationship of this model whose target
	// declares Name itself.
	Through    string   `json:"through,omitempty"`
	Title      string   `json:"title,omitempty"`
	ListFields NameList `json:"list_fields,omitempty"`
}

// TargetModel returns the related model, defaulting to the relation name.
func (r RelationshipDef) TargetModel() string {
	if r.Model != "" {
		return r.Model
	}
	return r.Name
}

// SchemaDoc is a decoded, validated model document.
// Documents held by a Store are shared between requests and must not be mutated.
type SchemaDoc struct {
	Model         string                `json:"model"`
	Table         string                `json:"table,omitempty"`
	Title         string                `json:"title,omitempty"`
	Description   string                `json:"description,omitempty"`
	PrimaryKey    string                `json:"primary_key"`
	TitleField    string                `json:"title_field,omitempty"`
	Permissions   map[string]string     `json:"permissions,omitempty"`
	Actions       []ActionDef           `json:"actions,omitempty"`
	Contexts      map[string]ContextDef `json:"contexts,omitempty"`
	Fields        Fields                `json:"fields,omitempty"`
	Details       []DetailDef           `json:"details,omitempty"`
	Detail        *DetailDef            `json:"detail,omitempty"`
	Relationships []RelationshipDef     `json:"relationships,omitempty"`
}

// TableName returns the backing table.
func (d *SchemaDoc) TableName() string {
	if d.Table != "" {
		return d.Table
	}
	return d.Model
}

// ModelName implements access.Subject.
func (d *SchemaDoc) ModelName() string { return d.Model }

// RequiredPermission returns the permission gating an action, if any.
func (d *SchemaDoc) RequiredPermission(action string) (string, bool) {
	p, ok := d.Permissions[action]
	if !ok || strings.TrimSpace(p) == "" {
		return "", false
	}
	return p, true
}

// ContextNames returns the declared context names sorted.
func (d *SchemaDoc) ContextNames() []string {
	names := make([]string, 0, len(d.Contexts))
	for name := range d.Contexts {
		names = append(names, name)
	}
	slices.Sort(names)
	return names
}

// AllDetails returns details followed by the legacy singular detail.
func (d *SchemaDoc) AllDetails() []DetailDef {
	if d.Detail == nil {
		return d.Details
	}
	out := make([]DetailDef, 0, len(d.Details)+1)
	out = append(out, d.Details...)
	return append(out, *d.Detail)
}

// Relationship finds a relationship by name.
func (d *SchemaDoc) Relationship(name string) (RelationshipDef, bool) {
	for _, r := range d.Relationships {
		if r.Name == name {
			return r, true
		}
	}
	return RelationshipDef{}, false
}

// Field finds a field by key across contexts, in context name order.
func (d *SchemaDoc) Field(key string) (FieldDef, bool) {
	for _, name := range d.ContextNames() {
		if f, ok := d.Contexts[name].Fields.Lookup(key); ok {
			return f, true
		}
	}
	return FieldDef{}, false
}
