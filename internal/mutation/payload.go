package mutation

import (
	"fmt"
	"slices"
	"sort"

	"golang.org/x/crypto/bcrypt"

	"crudschema/internal/access"
	"crudschema/internal/core/apperror"
	"crudschema/internal/schema"
)

// Mode distinguishes inserts from updates when preparing a payload.
type Mode int

const (
	ModeCreate Mode = iota + 1
	ModeUpdate
)

// Payload is an input record narrowed to the columns the caller may write.
type Payload struct {
	Values map[string]any
	// Stripped lists the input keys that were dropped, sorted.
	Stripped []string
}

// Columns returns the payload keys in sorted order.
func (p Payload) Columns() []string {
	cols := make([]string, 0, len(p.Values))
	for k := range p.Values {
		cols = append(cols, k)
	}
	sort.Strings(cols)
	return cols
}

// writable collects the editable fields of every flattened context the
// caller may change. First occurrence wins.
func writable(fs *schema.FlatSchema, caller access.PermissionSet) schema.Fields {
	var out schema.Fields
	for _, ctxName := range fs.Requested {
		keys := access.EditableFields(fs, ctxName, caller)
		for _, f := range fs.ContextFields(ctxName) {
			if !slices.Contains(keys, f.Key) {
				continue
			}
			if _, dup := out.Lookup(f.Key); dup {
				continue
			}
			out = append(out, f)
		}
	}
	return out
}

// Prepare strips input down to writable fields, coerces the values, applies
// defaults on create, validates every rule and hashes passwords.
func (v *Validator) Prepare(fs *schema.FlatSchema, input map[string]any, mode Mode, caller access.PermissionSet) (Payload, error) {
	fields := writable(fs, caller)
	p := Payload{Values: make(map[string]any, len(input))}

	for key := range input {
		if _, ok := fields.Lookup(key); !ok {
			p.Stripped = append(p.Stripped, key)
		}
	}
	sort.Strings(p.Stripped)

	for _, f := range fields {
		raw, present := input[f.Key]
		if !present && mode == ModeCreate && f.Default != nil {
			raw, present = f.Default, true
		}
		if f.Kind == schema.KindPassword && mode == ModeUpdate && isEmpty(raw) {
			// An empty password on update keeps the stored hash.
			continue
		}
		if !present {
			continue
		}
		val, err := coerce(f, raw)
		if err != nil {
			return Payload{}, apperror.NewFieldValidation(fs.Model, f.Key, RuleType, err.Error())
		}
		p.Values[f.Key] = val
	}

	for _, f := range fields {
		val, present := p.Values[f.Key]
		if !present && mode == ModeUpdate {
			continue
		}
		if err := v.Field(fs.Model, f, val, p.Values); err != nil {
			return Payload{}, err
		}
	}

	for _, f := range fields {
		if f.Kind != schema.KindPassword {
			continue
		}
		s, ok := p.Values[f.Key].(string)
		if !ok || s == "" {
			continue
		}
		hash, err := bcrypt.GenerateFromPassword([]byte(s), bcrypt.DefaultCost)
		if err != nil {
			return Payload{}, fmt.Errorf("hash %s: %w", f.Key, err)
		}
		p.Values[f.Key] = string(hash)
	}

	return p, nil
}

// redact removes password columns from a returned record.
func redact(fs *schema.FlatSchema, record map[string]any) map[string]any {
	if record == nil {
		return nil
	}
	doc := fs.Doc()
	if doc == nil {
		return record
	}
	for _, name := range doc.ContextNames() {
		for _, f := range doc.Contexts[name].Fields {
			if f.Kind == schema.KindPassword {
				delete(record, f.Key)
			}
		}
	}
	return record
}
