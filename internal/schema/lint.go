package schema

import (
	"fmt"
	"strings"
)

// Lint issue codes.
const (
	IssueBlankListField    = "blank_list_field"
	IssueMissingTarget     = "missing_target"
	IssueMissingPivot      = "missing_pivot_metadata"
	IssueUnknownThrough    = "unknown_through"
	IssueComputedSortable  = "computed_sortable"
	IssueUnknownSortField  = "unknown_default_sort"
	IssueMissingForeignKey = "missing_foreign_key"
)

// Issue is a non-fatal authoring problem found in a document.
type Issue struct {
	Model   string `json:"model"`
	Field   string `json:"field,omitempty"`
	Code    string `json:"code"`
	Message string `json:"message"`
}

func (i Issue) String() string {
	if i.Field != "" {
		return fmt.Sprintf("%s.%s: %s: %s", i.Model, i.Field, i.Code, i.Message)
	}
	return fmt.Sprintf("%s: %s: %s", i.Model, i.Code, i.Message)
}

// Lint inspects a set of documents together so cross-model references can be checked.
func Lint(docs []*SchemaDoc) []Issue {
	known := make(map[string]*SchemaDoc, len(docs))
	for _, d := range docs {
		known[d.Model] = d
	}

	var issues []Issue
	add := func(model, field, code, format string, args ...any) {
		issues = append(issues, Issue{Model: model, Field: field, Code: code, Message: fmt.Sprintf(format, args...)})
	}

	for _, d := range docs {
		for _, name := range d.ContextNames() {
			c := d.Contexts[name]
			if _, dropped := SanitizeNames(c.ListFields); dropped > 0 {
				add(d.Model, "", IssueBlankListField, "context %q list_fields has %d unusable entries", name, dropped)
			}
			for _, f := range c.Fields {
				if f.IsComputed() && f.Sortable {
					add(d.Model, f.Key, IssueComputedSortable, "computed field in context %q is marked sortable", name)
				}
			}
			if c.DefaultSort != "" {
				col := SortColumn(c.DefaultSort)
				if _, ok := c.Fields.Lookup(col); !ok && col != d.PrimaryKey {
					add(d.Model, col, IssueUnknownSortField, "default_sort of context %q names an undeclared field", name)
				}
			}
		}

		for _, det := range d.AllDetails() {
			if _, ok := known[det.Model]; !ok {
				add(d.Model, "", IssueMissingTarget, "detail model %q has no schema", det.Model)
			}
			if strings.TrimSpace(det.ForeignKey) == "" {
				add(d.Model, "", IssueMissingForeignKey, "detail %q declares no foreign_key", det.Model)
			}
			if _, dropped := SanitizeNames(det.ListFields); dropped > 0 {
				add(d.Model, "", IssueBlankListField, "detail %q list_fields has %d unusable entries", det.Model, dropped)
			}
		}

		for _, r := range d.Relationships {
			if r.Through == "" {
				if _, ok := known[r.TargetModel()]; !ok {
					add(d.Model, "", IssueMissingTarget, "relationship %q targets model %q which has no schema", r.Name, r.TargetModel())
				}
			} else if via, ok := d.Relationship(r.Through); !ok || via.Type != ManyToMany {
				add(d.Model, "", IssueUnknownThrough, "relationship %q goes through %q which is not a many_to_many relationship", r.Name, r.Through)
			}
			if r.Type == ManyToMany && r.Through == "" {
				if key := MissingPivotKey(r); key != "" {
					add(d.Model, "", IssueMissingPivot, "relationship %q lacks %s", r.Name, key)
				}
			}
			if r.Type == OneToMany && strings.TrimSpace(r.ForeignKey) == "" {
				add(d.Model, "", IssueMissingForeignKey, "relationship %q declares no foreign_key", r.Name)
			}
			if _, dropped := SanitizeNames(r.ListFields); dropped > 0 {
				add(d.Model, "", IssueBlankListField, "relationship %q list_fields has %d unusable entries", r.Name, dropped)
			}
		}
	}
	return issues
}

// SortColumn strips direction markers from a sort expression.
func SortColumn(expr string) string {
	expr = strings.TrimSpace(expr)
	expr = strings.TrimLeft(expr, "+-")
	if i := strings.IndexByte(expr, ':'); i >= 0 {
		expr = expr[:i]
	}
	return strings.TrimSpace(expr)
}

// MissingPivotKey names the first pivot attribute a many_to_many
// relationship leaves blank, or returns "".
func MissingPivotKey(r RelationshipDef) string {
	switch {
	case strings.TrimSpace(r.PivotTable) == "":
		return "pivot_table"
	case strings.TrimSpace(r.ForeignKey) == "":
		return "foreign_key"
	case strings.TrimSpace(r.RelatedKey) == "":
		return "related_key"
	}
	return ""
}
