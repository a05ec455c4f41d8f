package cli

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const itemSources = `
entities:
  - name: item
    columns:
      - {name: id, type: integer}
      - {name: label, type: text}

sources:
  - entity: item
    name: literal
    default: true
    sql: SELECT 1 AS id, 'x' AS label

  - entity: item
    name: by_label
    sql: SELECT id, label FROM items WHERE label = ?
    args: [label]

  - entity: item
    name: archived
    table: archive.item
`

func writeSources(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "sources.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	buf := &bytes.Buffer{}
	cmd := NewRootCommand()
	cmd.SetOut(buf)
	cmd.SetErr(buf)
	cmd.SetArgs(args)
	err := cmd.Execute()
	return buf.String(), err
}

func TestCommandPresence(t *testing.T) {
	cmd := NewRootCommand()
	for _, name := range []string{"render", "check", "list"} {
		t.Run(name, func(t *testing.T) {
			sub, _, err := cmd.Find([]string{name})
			require.NoError(t, err)
			assert.Equal(t, name, sub.Name())
		})
	}

	flag := cmd.PersistentFlags().Lookup("sources")
	require.NotNil(t, flag)
	assert.Equal(t, "s", flag.Shorthand)
	assert.Equal(t, "sources.yaml", flag.DefValue)
}

func TestRender(t *testing.T) {
	path := writeSources(t, itemSources)

	out, err := execute(t, "render", "--sources", path, "item", "literal")
	require.NoError(t, err)
	assert.Contains(t, out, `SELECT "item"."id", "item"."label" FROM (SELECT 1 AS id, 'x' AS label) AS "item"`)
	assert.Contains(t, out, "-- params: []")
}

func TestRenderJSON(t *testing.T) {
	path := writeSources(t, itemSources)

	out, err := execute(t, "render", "--sources", path, "--format", "json",
		"item", "by_label", "x", "--filter", "id=gt.1", "--limit", "5")
	require.NoError(t, err)

	var res renderResult
	require.NoError(t, json.Unmarshal([]byte(out), &res))
	assert.Equal(t, `SELECT "item"."id", "item"."label" FROM (SELECT id, label FROM items WHERE label = $1) AS "item" WHERE "item"."id" > $2 LIMIT 5`, res.SQL)
	assert.Equal(t, []any{"x", float64(1)}, res.Params)
}

func TestRenderMySQLTable(t *testing.T) {
	path := writeSources(t, itemSources)

	out, err := execute(t, "render", "-s", path, "-d", "mysql", "item", "archived")
	require.NoError(t, err)
	assert.Contains(t, out, "SELECT `item`.`id`, `item`.`label` FROM `archive`.`item` AS `item`")
}

func TestRenderErrors(t *testing.T) {
	path := writeSources(t, itemSources)

	tests := []struct {
		name string
		args []string
		msg  string
	}{
		{"unknown entrypoint", []string{"render", "-s", path, "item", "nope"}, "nope"},
		{"missing call args", []string{"render", "-s", path, "item", "by_label"}, "missing argument"},
		{"args on eager", []string{"render", "-s", path, "item", "literal", "1"}, "not call-parameterized"},
		{"bad filter", []string{"render", "-s", path, "item", "literal", "--filter", "id"}, "col=op.value"},
		{"bad dialect", []string{"render", "-s", path, "-d", "oracle", "item", "literal"}, "oracle"},
		{"bad format", []string{"render", "-s", path, "--format", "xml", "item", "literal"}, "invalid format"},
		{"missing file", []string{"render", "-s", path + ".missing", "item", "literal"}, "read sources file"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := execute(t, tt.args...)
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.msg)
		})
	}
}

func TestCheck(t *testing.T) {
	path := writeSources(t, itemSources)

	out, err := execute(t, "check", "--sources", path)
	require.NoError(t, err)
	assert.Contains(t, out, "✓ item.literal")
	assert.Contains(t, out, "✓ item.archived")
	assert.Contains(t, out, "item.by_label (call-parameterized)")

	out, err = execute(t, "check", "--sources", path, "--format", "json")
	require.NoError(t, err)
	var results []checkResult
	require.NoError(t, json.Unmarshal([]byte(out), &results))
	require.Len(t, results, 3)
	assert.Equal(t, checkResult{Entrypoint: "item.archived", Status: "ok"}, results[0])
	assert.Equal(t, checkResult{Entrypoint: "item.by_label", Status: "deferred"}, results[1])
}

func TestCheckInvalidFile(t *testing.T) {
	path := writeSources(t, itemSources+`
  - entity: item
    name: broken
    sql: SELECT 1 AS id
    null_columns: [missing]
`)
	_, err := execute(t, "check", "--sources", path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "missing")
}

func TestList(t *testing.T) {
	path := writeSources(t, itemSources)

	out, err := execute(t, "list", "--sources", path, "--format", "json")
	require.NoError(t, err)
	var entries []listEntry
	require.NoError(t, json.Unmarshal([]byte(out), &entries))
	assert.Equal(t, []listEntry{
		{Entity: "item", Name: "archived"},
		{Entity: "item", Name: "by_label", CallParameterized: true},
		{Entity: "item", Name: "literal", Default: true},
	}, entries)
}
