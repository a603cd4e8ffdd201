package relation_test

import (
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"crudschema/internal/core/apperror"
	"crudschema/internal/relation"
	"crudschema/internal/schema"
	"crudschema/internal/schema/schematest"
)

func setup(t *testing.T, extra ...*schema.SchemaDoc) (*relation.Resolver, *schema.Store) {
	t.Helper()
	st := schematest.Store(t, extra...)
	return relation.NewResolver(st), st
}

func mustGet(t *testing.T, st *schema.Store, model string) *schema.SchemaDoc {
	t.Helper()
	doc, err := st.Get(model)
	require.NoError(t, err)
	return doc
}

func TestResolve_DetailIsDirect(t *testing.T) {
	r, st := setup(t)

	plan, err := r.Resolve(mustGet(t, st, "users"), 1, "activities")
	require.NoError(t, err)

	assert.Equal(t, relation.KindDirect, plan.Kind)
	assert.Equal(t, "activities", plan.TargetTable())
	assert.Equal(t, "user_id", plan.ForeignKey)
	assert.Empty(t, plan.Pivots)
	assert.False(t, plan.Distinct)
	assert.Equal(t, 1, plan.SourceID)
}

func TestResolve_ManyToManyIsPivot(t *testing.T) {
	r, st := setup(t)

	plan, err := r.Resolve(mustGet(t, st, "users"), 1, "roles")
	require.NoError(t, err)

	assert.Equal(t, relation.KindPivot, plan.Kind)
	assert.Equal(t, []relation.Hop{{Table: "role_user", ForeignKey: "user_id", RelatedKey: "role_id"}}, plan.Pivots)
	assert.False(t, plan.Distinct)
	assert.Equal(t, []string{"id", "name"}, plan.ListFields)
	require.Len(t, plan.Diagnostics, 1)
	assert.Equal(t, 1, plan.Diagnostics[0].Dropped)
}

func TestResolve_ReachedThroughRolesIsNested(t *testing.T) {
	r, st := setup(t)

	plan, err := r.Resolve(mustGet(t, st, "users"), 1, "permissions")
	require.NoError(t, err)

	assert.Equal(t, relation.KindNestedPivot, plan.Kind)
	assert.Equal(t, "roles", plan.Via)
	assert.Equal(t, "permissions", plan.TargetTable())
	assert.Equal(t, []relation.Hop{
		{Table: "role_user", ForeignKey: "user_id", RelatedKey: "role_id"},
		{Table: "permission_role", ForeignKey: "role_id", RelatedKey: "permission_id"},
	}, plan.Pivots)
	assert.True(t, plan.Distinct)
}

func TestResolve_OneToManyRelationship(t *testing.T) {
	teams := schematest.MustDecode(t, `{"model":"teams","primary_key":"id","contexts":{"list":{"fields":{"id":{}}}},
		"relationships":[{"name":"members","type":"one_to_many","model":"users","foreign_key":"team_id"}]}`)
	r, _ := setup(t, teams)

	plan, err := r.Resolve(teams, 3, "members")
	require.NoError(t, err)
	assert.Equal(t, relation.KindDirect, plan.Kind)
	assert.Equal(t, "users", plan.TargetTable())
	assert.Equal(t, "team_id", plan.ForeignKey)
}

func TestResolve_DeclaredThrough(t *testing.T) {
	accounts := schematest.MustDecode(t, `{"model":"accounts","primary_key":"id","contexts":{"list":{"fields":{"id":{}}}},
		"relationships":[
			{"name":"owners","type":"many_to_many","model":"roles","pivot_table":"account_role","foreign_key":"account_id","related_key":"role_id"},
			{"name":"permissions","type":"many_to_many","through":"owners","list_fields":["name"]}
		]}`)
	r, _ := setup(t, accounts)

	plan, err := r.Resolve(accounts, 9, "permissions")
	require.NoError(t, err)
	assert.Equal(t, relation.KindNestedPivot, plan.Kind)
	assert.Equal(t, "account_role", plan.Pivots[0].Table)
	assert.Equal(t, "permission_role", plan.Pivots[1].Table)
	assert.Equal(t, []string{"name"}, plan.ListFields)
}

func TestResolve_NotConfigured(t *testing.T) {
	r, st := setup(t)

	_, err := r.Resolve(mustGet(t, st, "users"), 1, "invoices")
	require.Error(t, err)
	assert.True(t, apperror.IsRelationNotConfigured(err))
	assert.Contains(t, err.Error(), "invoices")
	assert.Contains(t, err.Error(), "users")
}

func TestResolve_MissingPivotMetadata(t *testing.T) {
	tests := []struct {
		name    string
		rel     string
		missing string
	}{
		{"no pivot table", `{"name":"roles","type":"many_to_many","foreign_key":"user_id","related_key":"role_id"}`, "pivot_table"},
		{"no related key", `{"name":"roles","type":"many_to_many","pivot_table":"role_user","foreign_key":"user_id"}`, "related_key"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			doc := schematest.MustDecode(t, `{"model":"members","primary_key":"id","contexts":{"list":{"fields":{"id":{}}}},
				"relationships":[`+tt.rel+`]}`)
			r, _ := setup(t, doc)

			_, err := r.Resolve(doc, 1, "roles")
			require.Error(t, err)
			appErr, ok := apperror.AsAppError(err)
			require.True(t, ok)
			assert.Equal(t, apperror.CodeMissingPivotMetadata, appErr.Code)
			assert.Equal(t, tt.missing, appErr.Details["missing"])
		})
	}
}

func TestResolve_MissingPivotOnSecondHop(t *testing.T) {
	groups := schematest.MustDecode(t, `{"model":"groups","primary_key":"id","contexts":{"list":{"fields":{"id":{}}}},
		"relationships":[{"name":"rights","type":"many_to_many","model":"permissions","foreign_key":"group_id","related_key":"permission_id"}]}`)
	owner := schematest.MustDecode(t, `{"model":"owners","primary_key":"id","contexts":{"list":{"fields":{"id":{}}}},
		"relationships":[{"name":"groups","type":"many_to_many","pivot_table":"group_owner","foreign_key":"owner_id","related_key":"group_id"}]}`)
	r, _ := setup(t, groups, owner)

	_, err := r.Resolve(owner, 1, "rights")
	assert.True(t, apperror.HasCode(err, apperror.CodeMissingPivotMetadata))
}

func TestResolve_DetailTargetWithoutSchema(t *testing.T) {
	doc := schematest.MustDecode(t, `{"model":"orders","primary_key":"id","contexts":{"list":{"fields":{"id":{}}}},
		"details":[{"model":"lines","foreign_key":"order_id"}]}`)
	r, _ := setup(t, doc)

	_, err := r.Resolve(doc, 1, "lines")
	assert.True(t, apperror.IsSchemaNotFound(err))
}

// The tier a name resolves to depends only on the schema, never on which
// relations were resolved before it.
func TestResolve_ClassificationIsStable(t *testing.T) {
	r, st := setup(t)
	users := mustGet(t, st, "users")
	names := []string{"activities", "roles", "permissions", "invoices"}

	want := map[string]relation.Kind{}
	for _, n := range names {
		plan, err := r.Resolve(users, 1, n)
		if err == nil {
			want[n] = plan.Kind
		}
	}

	rng := rand.New(rand.NewSource(7))
	for i := 0; i < 100; i++ {
		n := names[rng.Intn(len(names))]
		plan, err := r.Resolve(users, rng.Intn(10), n)
		if k, ok := want[n]; ok {
			require.NoError(t, err)
			assert.Equal(t, k, plan.Kind, n)
		} else {
			assert.True(t, apperror.IsRelationNotConfigured(err))
		}
	}
}

func TestKind_String(t *testing.T) {
	assert.Equal(t, "direct", relation.KindDirect.String())
	assert.Equal(t, "pivot", relation.KindPivot.String())
	assert.Equal(t, "nested_pivot", relation.KindNestedPivot.String())
	assert.Equal(t, "unknown", relation.Kind(0).String())
}
