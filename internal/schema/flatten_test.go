package schema_test

import (
	"encoding/json"
	"sort"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"crudschema/internal/schema"
	"crudschema/internal/schema/schematest"
)

func TestParseSelector(t *testing.T) {
	assert.Equal(t, []string{"list", "form"}, schema.ParseSelector(" list, form ,list,"))
	assert.Empty(t, schema.ParseSelector(" , "))
}

func TestFlatten_SingleContext(t *testing.T) {
	doc := schematest.MustDecode(t, schematest.UsersJSON)
	fs := schema.Flatten(doc, "list")

	assert.False(t, fs.IsMulti())
	assert.Equal(t, schema.ShapeSingle, fs.Shape())
	assert.Equal(t, []string{"id", "name", "email", "full_label"}, fs.Fields.Keys())
	assert.Equal(t, "-id", fs.DefaultSort)
	assert.Equal(t, "users", fs.Model)
	assert.Equal(t, doc.Permissions, fs.Permissions)
	assert.Len(t, fs.Actions, 2)

	raw, err := json.Marshal(fs)
	require.NoError(t, err)
	shape, err := schema.DetectShape(raw)
	require.NoError(t, err)
	assert.Equal(t, schema.ShapeSingle, shape)
}

func TestFlatten_MultiContext(t *testing.T) {
	doc := schematest.MustDecode(t, schematest.UsersJSON)
	fs := schema.Flatten(doc, "list,form")

	require.True(t, fs.IsMulti())
	assert.Nil(t, fs.Fields, "multi shape keeps fields out of the root")
	assert.Len(t, fs.Contexts, 2)
	assert.Equal(t, []string{"id", "name", "email", "full_label"}, fs.Contexts["list"].Fields.Keys())

	raw, err := json.Marshal(fs)
	require.NoError(t, err)
	var top map[string]json.RawMessage
	require.NoError(t, json.Unmarshal(raw, &top))
	assert.Contains(t, top, "contexts")
	assert.NotContains(t, top, "fields")

	shape, err := schema.DetectShape(raw)
	require.NoError(t, err)
	assert.Equal(t, schema.ShapeMulti, shape)
}

func TestFlatten_UnknownContextContributesNothing(t *testing.T) {
	doc := schematest.MustDecode(t, schematest.UsersJSON)

	single := schema.Flatten(doc, "kanban")
	assert.False(t, single.IsMulti())
	assert.Empty(t, single.Fields)

	raw, err := json.Marshal(single)
	require.NoError(t, err)
	shape, _ := schema.DetectShape(raw)
	assert.Equal(t, schema.ShapeSingle, shape, "an empty field set still marshals as fields")

	multi := schema.Flatten(doc, "list,kanban")
	assert.True(t, multi.IsMulti())
	assert.Len(t, multi.Contexts, 1)
	assert.Contains(t, multi.Contexts, "list")
}

func TestFlatten_EmptySelectorMeansAllContexts(t *testing.T) {
	doc := schematest.MustDecode(t, schematest.UsersJSON)
	fs := schema.Flatten(doc, "")

	assert.Equal(t, []string{"detail", "form", "list"}, fs.Requested)
	assert.True(t, fs.IsMulti())

	one := schematest.MustDecode(t, schematest.PermissionsJSON)
	assert.False(t, schema.Flatten(one, "").IsMulti())
}

func TestFlatten_Wrapped(t *testing.T) {
	doc := schematest.MustDecode(t, schematest.UsersJSON)
	raw, err := json.Marshal(schema.Flatten(doc, "form").Wrap())
	require.NoError(t, err)

	shape, err := schema.DetectShape(raw)
	require.NoError(t, err)
	assert.Equal(t, schema.ShapeWrapped, shape)
}

func TestDetectShape(t *testing.T) {
	tests := []struct {
		raw  string
		want schema.Shape
	}{
		{`{"model":"m","fields":{}}`, schema.ShapeSingle},
		{`{"model":"m","contexts":{}}`, schema.ShapeMulti},
		{`{"schema":{"fields":{}}}`, schema.ShapeWrapped},
		{`{"model":"m"}`, schema.ShapeUnknown},
	}
	for _, tt := range tests {
		t.Run(tt.want.String(), func(t *testing.T) {
			got, err := schema.DetectShape([]byte(tt.raw))
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}

	_, err := schema.DetectShape([]byte(`[1]`))
	assert.Error(t, err)
}

// Flattening "list,form" combines exactly the fields seen when flattening
// each context on its own.
func TestFlatten_MultiContextUnionMatchesSingles(t *testing.T) {
	for _, raw := range schematest.All() {
		doc := schematest.MustDecode(t, raw)
		t.Run(doc.Model, func(t *testing.T) {
			combined := keySet(schema.Flatten(doc, "list,form").CombinedFields())

			union := map[string]bool{}
			for _, ctx := range []string{"list", "form"} {
				for k := range keySet(schema.Flatten(doc, ctx).Fields) {
					union[k] = true
				}
			}
			assert.Equal(t, sorted(union), sorted(combined))
		})
	}
}

func TestFlatSchema_ContextAccessors(t *testing.T) {
	doc := schematest.MustDecode(t, schematest.UsersJSON)

	multi := schema.Flatten(doc, "list,form")
	assert.Equal(t, "list", multi.PrimaryContext())
	assert.Equal(t, "-id", multi.PrimaryDefaultSort())
	assert.Contains(t, multi.ContextFields("form").Keys(), "password")

	single := schema.Flatten(doc, "form")
	assert.Nil(t, single.ContextFields("list"))
	assert.Same(t, doc, single.Doc())
}

func keySet(fs schema.Fields) map[string]bool {
	out := map[string]bool{}
	for _, k := range fs.Keys() {
		out[k] = true
	}
	return out
}

func sorted(m map[string]bool) []string {
	out := make([]string, 0, len(m))
	for k := range m {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}
