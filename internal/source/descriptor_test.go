package source_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/atlekbai/source_registry/internal/source"
)

func TestFromRawConfiguration(t *testing.T) {
	tests := []struct {
		name string
		raw  source.Raw
	}{
		{"neither sql nor table", source.Raw{}},
		{"blank sql", source.Raw{SQL: "   "}},
		{"sql and table", source.Raw{SQL: "SELECT 1", Table: "t"}},
		{"table with params", source.Raw{Table: "t", Params: []any{1}}},
		{"too few params", source.Raw{SQL: "SELECT ? AS a, ? AS b", Params: []any{1}}},
		{"too many params", source.Raw{SQL: "SELECT 1 AS a", Params: []any{1}}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := source.FromRaw(tt.raw)
			require.ErrorIs(t, err, source.ErrConfiguration)
		})
	}
}

func TestFromRawAmbiguousTranslation(t *testing.T) {
	_, err := source.FromRaw(source.Raw{
		SQL:          "SELECT 1 AS a, 2 AS b",
		Translations: map[string]string{"a": "name", "b": "name"},
	})
	require.ErrorIs(t, err, source.ErrAmbiguousTranslation)

	_, err = source.FromRaw(source.Raw{
		SQL:          "SELECT 1 AS a",
		Translations: map[string]string{"a": "name"},
		NullColumns:  []string{"name"},
	})
	require.ErrorIs(t, err, source.ErrAmbiguousTranslation)
}

func TestFromRawWrapsText(t *testing.T) {
	d, err := source.FromRaw(source.Raw{SQL: "  SELECT ? AS name  ", Params: []any{"x"}})
	require.NoError(t, err)
	assert.Equal(t, "(SELECT ? AS name)", d.Text())
	assert.False(t, d.IsTable())
	assert.Equal(t, []any{"x"}, d.Params())

	d, err = source.FromRaw(source.Raw{Table: "archive.my_simple_model"})
	require.NoError(t, err)
	assert.Equal(t, "archive.my_simple_model", d.Text())
	assert.True(t, d.IsTable())
}

func TestDescriptorIsImmutable(t *testing.T) {
	params := []any{"hello"}
	translations := map[string]string{"title": "name"}
	d, err := source.FromRaw(source.Raw{
		SQL:          "SELECT ? AS title",
		Params:       params,
		Translations: translations,
	})
	require.NoError(t, err)

	params[0] = "changed"
	translations["title"] = "number"
	assert.Equal(t, []any{"hello"}, d.Params())
	assert.Equal(t, map[string]string{"title": "name"}, d.Translations())

	got := d.Params()
	got[0] = "mutated"
	assert.Equal(t, []any{"hello"}, d.Params())
}

func TestWithParamsClones(t *testing.T) {
	d, err := source.FromRaw(helloSource())
	require.NoError(t, err)

	other := d.WithParams("world")
	assert.Equal(t, []any{"hello"}, d.Params())
	assert.Equal(t, []any{"world"}, other.Params())
	assert.Equal(t, d.Text(), other.Text())
	assert.Equal(t, d.NullColumns(), other.NullColumns())

	// The count is not checked at this level.
	assert.Len(t, d.WithParams(1, 2, 3).Params(), 3)
}

func TestBindColumnMismatch(t *testing.T) {
	ent := simpleModel()

	tests := []struct {
		name string
		raw  source.Raw
	}{
		{
			"declared column not covered",
			source.Raw{SQL: "SELECT 1 AS id, 'a' AS name, 2 AS number", Columns: []string{"id", "name", "number"}},
		},
		{
			"translation target not declared",
			source.Raw{SQL: "SELECT 1 AS a", Translations: map[string]string{"a": "missing"}},
		},
		{
			"null column not declared",
			source.Raw{SQL: "SELECT 1 AS id", NullColumns: []string{"missing"}},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			d, err := source.FromRaw(tt.raw)
			require.NoError(t, err)
			_, err = d.Bind(ent)
			require.ErrorIs(t, err, source.ErrColumnMismatch)

			_, err = pgManager(ent).FromSource(d)
			require.ErrorIs(t, err, source.ErrColumnMismatch)
		})
	}
}

func TestBindTranslationOntoProducedColumn(t *testing.T) {
	d, err := source.FromRaw(source.Raw{
		SQL:          "SELECT 'a' AS name, 'b' AS title",
		Columns:      []string{"name", "title"},
		Translations: map[string]string{"title": "name"},
		NullColumns:  []string{"id", "number", "source_id"},
	})
	require.NoError(t, err)

	_, err = d.Bind(simpleModel())
	require.ErrorIs(t, err, source.ErrAmbiguousTranslation)
}

func TestBindCoverage(t *testing.T) {
	d, err := source.FromRaw(source.Raw{
		SQL:          "SELECT 'a' AS title, 1 AS number",
		Columns:      []string{"title", "number"},
		Translations: map[string]string{"title": "name"},
		NullColumns:  []string{"id", "source_id"},
	})
	require.NoError(t, err)

	bound, err := d.Bind(simpleModel())
	require.NoError(t, err)
	assert.Equal(t, []string{"id", "source_id"}, bound.NullColumns())
}

func TestFromRawPlaceholders(t *testing.T) {
	tests := []struct {
		sql    string
		params []any
	}{
		{"SELECT 1", nil},
		{"SELECT ? AS a, ? AS b", []any{1, 2}},
		{"SELECT '?' AS a, ? AS b", []any{1}},
		{"SELECT 'it''s ?' AS a", nil},
		{"SELECT data ?? 'key' AS a, ? AS b", []any{1}},
		{`SELECT 1 AS "why?"`, nil},
		{"SELECT 1 AS `why?`", nil},
		{"SELECT ? AS a -- why?\n", []any{1}},
		{"SELECT /* why? */ ? AS a", []any{1}},
	}
	for _, tt := range tests {
		t.Run(tt.sql, func(t *testing.T) {
			d, err := source.FromRaw(source.Raw{SQL: tt.sql, Params: tt.params})
			require.NoError(t, err)
			assert.Len(t, d.Params(), len(tt.params))
		})
	}
}

func TestBindWithoutColumnsIsOpaque(t *testing.T) {
	sqlText := "SELECT 'a' AS name, 1 AS number"

	d, err := source.FromRaw(source.Raw{SQL: sqlText})
	require.NoError(t, err)
	_, err = d.Bind(simpleModel())
	require.NoError(t, err)

	d, err = source.FromRaw(source.Raw{SQL: sqlText, Columns: []string{"name", "number"}})
	require.NoError(t, err)
	_, err = d.Bind(simpleModel())
	require.ErrorIs(t, err, source.ErrColumnMismatch)
}
