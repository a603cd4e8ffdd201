package schema

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSanitizeNames(t *testing.T) {
	tests := []struct {
		name        string
		in          []any
		want        []string
		wantDropped int
	}{
		{"nil", nil, nil, 0},
		{"clean", []any{"name", "email"}, []string{"name", "email"}, 0},
		{"blanks", []any{"name", "", "email", "  "}, []string{"name", "email"}, 2},
		{"non strings", []any{"name", 5, nil, true}, []string{"name"}, 3},
		{"trimmed", []any{" name "}, []string{"name"}, 0},
		{"not identifiers", []any{`name"; drop`, "a b", "1abc", "ok_1"}, []string{"ok_1"}, 3},
		{"repeats", []any{"name", "name"}, []string{"name"}, 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, dropped := SanitizeNames(tt.in)
			if tt.want == nil {
				assert.Empty(t, got)
			} else {
				assert.Equal(t, tt.want, got)
			}
			assert.Equal(t, tt.wantDropped, dropped)
		})
	}
}

func TestSanitizeNames_StringSlice(t *testing.T) {
	got, dropped := SanitizeNames([]string{"name", "", "email", ""})
	assert.Equal(t, []string{"name", "email"}, got)
	assert.Equal(t, 2, dropped)
}

func TestSortColumn(t *testing.T) {
	assert.Equal(t, "id", SortColumn("-id"))
	assert.Equal(t, "id", SortColumn("+id"))
	assert.Equal(t, "created_at", SortColumn("created_at:desc"))
	assert.Equal(t, "name", SortColumn(" name "))
}
