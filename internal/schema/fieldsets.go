package schema

// ListContext is the context whose show_in membership makes a field listable.
const ListContext = "list"

// FieldSets are the column names a listing may sort on, search in and project.
// Every name is a trimmed, non-empty identifier backed by a real column.
type FieldSets struct {
	Sortable    []string
	Filterable  []string
	Listable    []string
	Diagnostics []Diagnostic
}

// SetFilter narrows DeriveFieldSets.
type SetFilter struct {
	// Lookup resolves list_fields names that are not among the derived
	// fields, typically against every context of the document.
	Lookup func(key string) (FieldDef, bool)
	// Allow drops the fields it rejects from every set. Nil allows all.
	Allow func(FieldDef) bool
}

func (s SetFilter) allowed(f FieldDef) bool {
	if f.IsComputed() || f.Kind == KindPassword {
		return false
	}
	return s.Allow == nil || s.Allow(f)
}

func (s SetFilter) resolve(fields Fields, name string) (FieldDef, bool) {
	if f, ok := fields.Lookup(name); ok {
		return f, true
	}
	if s.Lookup != nil {
		return s.Lookup(name)
	}
	return FieldDef{}, false
}

// FieldSets derives the three name sets from the combined flattened fields.
// A list_fields override on the primary context replaces the show_in based
// listable set.
func (fs *FlatSchema) FieldSets() FieldSets {
	sets := DeriveFieldSets(fs.Model, fs.CombinedFields(), fs.PrimaryListFields(), fs.DocFilter(nil))
	sets.Diagnostics = append(append([]Diagnostic(nil), fs.Diagnostics...), sets.Diagnostics...)
	return sets
}

// DocFilter resolves list_fields names against the whole source document and
// applies allow to every field.
func (fs *FlatSchema) DocFilter(allow func(FieldDef) bool) SetFilter {
	f := SetFilter{Allow: allow}
	if fs.doc != nil {
		f.Lookup = fs.doc.Field
	}
	return f
}

// DeriveFieldSets computes the name sets for fields. Computed and password
// fields never enter any set. A list_fields name must resolve to a declared
// field; unresolved names are dropped and counted under "list_fields".
func DeriveFieldSets(model string, fields Fields, listOverride []string, filter SetFilter) FieldSets {
	var sortable, filterable, listable []string
	for _, f := range fields {
		if !filter.allowed(f) {
			continue
		}
		if f.Sortable {
			sortable = append(sortable, f.Key)
		}
		if f.Filterable {
			filterable = append(filterable, f.Key)
		}
		if f.ShownIn(ListContext) {
			listable = append(listable, f.Key)
		}
	}

	var sets FieldSets
	if len(listOverride) > 0 {
		listable = nil
		rejected := 0
		for _, name := range listOverride {
			f, ok := filter.resolve(fields, name)
			if !ok || !filter.allowed(f) {
				rejected++
				continue
			}
			listable = append(listable, name)
		}
		if rejected > 0 {
			sets.Diagnostics = append(sets.Diagnostics, Diagnostic{Model: model, Source: "list_fields", Dropped: rejected})
		}
	}

	sets.Sortable = sets.clean(model, "sortable", sortable)
	sets.Filterable = sets.clean(model, "filterable", filterable)
	sets.Listable = sets.clean(model, "listable", listable)
	return sets
}

func (s *FieldSets) clean(model, source string, in []string) []string {
	names, dropped := SanitizeNames(in)
	if dropped > 0 {
		s.Diagnostics = append(s.Diagnostics, Diagnostic{Model: model, Source: source, Dropped: dropped})
	}
	return names
}

// Dropped sums the dropped counts of all diagnostics.
func (s FieldSets) Dropped() int {
	n := 0
	for _, d := range s.Diagnostics {
		n += d.Dropped
	}
	return n
}
