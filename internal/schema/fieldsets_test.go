package schema_test

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"crudschema/internal/schema"
	"crudschema/internal/schema/schematest"
)

func TestFieldSets_FromListContext(t *testing.T) {
	doc := schematest.MustDecode(t, schematest.UsersJSON)
	sets := schema.Flatten(doc, "list").FieldSets()

	assert.Equal(t, []string{"id", "name", "email"}, sets.Sortable, "computed fields are never sortable")
	assert.Equal(t, []string{"name", "email"}, sets.Filterable)
	assert.Equal(t, []string{"id", "name", "email"}, sets.Listable)
	assert.Zero(t, sets.Dropped())
}

func TestFieldSets_PasswordNeverListed(t *testing.T) {
	doc := schematest.MustDecode(t, `{"model":"m","primary_key":"id","contexts":{"list":{"fields":{
		"id":{"type":"integer"},
		"pw":{"type":"password","sortable":true,"filterable":true}
	}}}}`)
	sets := schema.Flatten(doc, "list").FieldSets()

	assert.Equal(t, []string{"id"}, sets.Listable)
	assert.Empty(t, sets.Sortable)
	assert.Empty(t, sets.Filterable)
}

func TestFieldSets_BlankNamesDropped(t *testing.T) {
	doc := schematest.MustDecode(t, `{"model":"m","primary_key":"id","contexts":{"list":{
		"fields":{
			"id":{"type":"integer","sortable":true},
			"":{"type":"string","filterable":true},
			"  ":{"type":"string","filterable":true,"sortable":true},
			"name":{"type":"string","filterable":true}
		},
		"list_fields":["id", "", 7, "name", "   ", "full_label"]
	}}}`)
	fs := schema.Flatten(doc, "list")
	sets := fs.FieldSets()

	assert.Equal(t, []string{"id"}, sets.Sortable)
	assert.Equal(t, []string{"name"}, sets.Filterable)
	assert.Equal(t, []string{"id", "name"}, sets.Listable, "full_label is not declared")
	assert.Equal(t, 3+1+2+1, sets.Dropped())

	sources := map[string]int{}
	for _, d := range sets.Diagnostics {
		sources[d.Source] = d.Dropped
		assert.Equal(t, "m", d.Model)
	}
	assert.Equal(t, map[string]int{"list.list_fields": 3, "list_fields": 1, "sortable": 1, "filterable": 2}, sources)
}

func TestDeriveFieldSets_OverrideSkipsComputed(t *testing.T) {
	doc := schematest.MustDecode(t, schematest.UsersJSON)
	fields := doc.Contexts["list"].Fields

	sets := schema.DeriveFieldSets("users", fields, []string{"name", "full_label"}, schema.SetFilter{})
	assert.Equal(t, []string{"name"}, sets.Listable)
}

func TestFieldSets_ListFieldsResolveAgainstDocument(t *testing.T) {
	doc := schematest.MustDecode(t, `{"model":"accounts","primary_key":"id","contexts":{
		"list":{"fields":{"id":{"type":"integer"},"name":{"type":"string"}},
			"list_fields":["id","name","password","ghost","created_at"]},
		"form":{"fields":{"password":{"type":"password"},"created_at":{"type":"datetime","show_in":["detail"]}}}
	}}`)
	sets := schema.Flatten(doc, "list").FieldSets()

	assert.Equal(t, []string{"id", "name", "created_at"}, sets.Listable,
		"declared in another context is fine; password and undeclared names are not")
	assert.Contains(t, sets.Diagnostics, schema.Diagnostic{Model: "accounts", Source: "list_fields", Dropped: 2})
}

func TestDeriveFieldSets_AllowHidesFields(t *testing.T) {
	doc := schematest.MustDecode(t, `{"model":"staff","primary_key":"id","contexts":{"list":{"fields":{
		"id":{"type":"integer","sortable":true},
		"name":{"type":"string","sortable":true,"filterable":true},
		"salary":{"type":"decimal","sortable":true,"filterable":true,"view_permission":"view_salary"}
	},"list_fields":["id","name","salary"]}}}`)
	fs := schema.Flatten(doc, "list")
	noSalary := func(f schema.FieldDef) bool { return f.ViewPermission == "" }

	sets := schema.DeriveFieldSets(fs.Model, fs.Fields, fs.ListFields, fs.DocFilter(noSalary))
	assert.Equal(t, []string{"id", "name"}, sets.Sortable)
	assert.Equal(t, []string{"name"}, sets.Filterable)
	assert.Equal(t, []string{"id", "name"}, sets.Listable)

	sets = schema.DeriveFieldSets(fs.Model, fs.Fields, fs.ListFields, fs.DocFilter(nil))
	assert.Equal(t, []string{"id", "name", "salary"}, sets.Listable)
}
