package handler

import (
	"database/sql"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/atlekbai/source_registry/internal/dialect"
	"github.com/atlekbai/source_registry/internal/query"
	"github.com/atlekbai/source_registry/internal/runner"
	"github.com/atlekbai/source_registry/internal/schema"
	"github.com/atlekbai/source_registry/internal/source"
)

func newTestMux(t *testing.T, d dialect.Dialect) *http.ServeMux {
	t.Helper()

	db, err := sql.Open(dialect.SQLite.Driver, ":memory:")
	require.NoError(t, err)
	db.SetMaxOpenConns(1)
	t.Cleanup(func() { db.Close() })
	_, err = db.Exec(`CREATE TABLE my_simple_model (id INTEGER PRIMARY KEY, name TEXT, number INTEGER, source_id INTEGER)`)
	require.NoError(t, err)
	_, err = db.Exec(`INSERT INTO my_simple_model VALUES (1, 'a', 5, 1), (2, 'b', 10, 1), (3, 'c', 20, 2)`)
	require.NoError(t, err)

	ent := schema.NewEntity("my_simple_model", "my_simple_model",
		schema.ColumnDef{Name: "id", Type: schema.ColumnInteger},
		schema.ColumnDef{Name: "name", Type: schema.ColumnText},
		schema.ColumnDef{Name: "number", Type: schema.ColumnInteger},
		schema.ColumnDef{Name: "source_id", Type: schema.ColumnInteger},
	)
	reg := source.NewRegistry(d)

	greeting, err := source.Parameterized(source.Raw{
		SQL:         "SELECT ? AS name, 111 AS number",
		NullColumns: []string{"id", "source_id"},
	}, "name")
	require.NoError(t, err)
	_, err = reg.Register(ent, "greeting", greeting, true)
	require.NoError(t, err)

	origin := query.New(ent, d).Select("source_id").Annotate("_number", `sum("my_simple_model"."number")`).GroupBy("source_id")
	totals, err := source.FromQuery(origin, map[string]string{"_number": "number"})
	require.NoError(t, err)
	_, err = reg.Register(ent, "totals", source.Fixed(totals), false)
	require.NoError(t, err)

	mux := http.NewServeMux()
	New(reg, runner.NewSQLRunner(db)).Routes(mux)
	return mux
}

func get(t *testing.T, mux *http.ServeMux, target string, v any) int {
	t.Helper()
	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, target, nil))
	assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))
	if v != nil {
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), v))
	}
	return rec.Code
}

func TestExplain(t *testing.T) {
	mux := newTestMux(t, dialect.Postgres)

	var resp explainResponse
	code := get(t, mux, "/explain/my_simple_model/greeting?arg=hello&number=gte.10&limit=5", &resp)
	require.Equal(t, http.StatusOK, code)
	assert.Equal(t, `SELECT "my_simple_model"."id", "my_simple_model"."name", "my_simple_model"."number", "my_simple_model"."source_id" `+
		`FROM (SELECT NULL AS "id", "_wrapper"."name", "_wrapper"."number", NULL AS "source_id" FROM (SELECT $1 AS name, 111 AS number) AS "_wrapper") AS "my_simple_model" `+
		`WHERE "my_simple_model"."number" >= $2 LIMIT 5`, resp.SQL)
	assert.Equal(t, []any{"hello", float64(10)}, resp.Params)
}

func TestList(t *testing.T) {
	mux := newTestMux(t, dialect.SQLite)

	var resp struct {
		TotalCount int64            `json:"total_count"`
		Results    []map[string]any `json:"results"`
	}
	code := get(t, mux, "/api/my_simple_model/totals?order=source_id.desc&limit=1", &resp)
	require.Equal(t, http.StatusOK, code)
	assert.Equal(t, int64(2), resp.TotalCount)
	assert.Equal(t, []map[string]any{
		{"id": nil, "name": nil, "number": float64(20), "source_id": float64(2)},
	}, resp.Results)

	var count map[string]int64
	code = get(t, mux, "/api/my_simple_model/totals/count?source_id=gt.1", &count)
	require.Equal(t, http.StatusOK, code)
	assert.Equal(t, map[string]int64{"count": 1}, count)
}

func TestListEmpty(t *testing.T) {
	mux := newTestMux(t, dialect.SQLite)

	var resp map[string]any
	code := get(t, mux, "/api/my_simple_model/totals?number=gt.1000", &resp)
	require.Equal(t, http.StatusOK, code)
	assert.Equal(t, []any{}, resp["results"])
}

func TestErrors(t *testing.T) {
	mux := newTestMux(t, dialect.SQLite)

	tests := []struct {
		target string
		status int
		code   string
	}{
		{"/explain/nope/greeting", http.StatusNotFound, "SOURCE_NOT_FOUND"},
		{"/explain/my_simple_model/nope", http.StatusNotFound, "SOURCE_NOT_FOUND"},
		{"/explain/my_simple_model/greeting", http.StatusBadRequest, "INVALID_CALL"},
		{"/explain/my_simple_model/totals?arg=1", http.StatusBadRequest, "INVALID_CALL"},
		{"/explain/my_simple_model/totals?missing=eq.1", http.StatusBadRequest, "INVALID_PARAM"},
		{"/api/my_simple_model/totals?limit=zero", http.StatusBadRequest, "INVALID_PARAM"},
	}
	for _, tt := range tests {
		t.Run(tt.target, func(t *testing.T) {
			var resp ErrorResponse
			assert.Equal(t, tt.status, get(t, mux, tt.target, &resp))
			assert.Equal(t, tt.code, resp.Code)
		})
	}
}

func TestSources(t *testing.T) {
	mux := newTestMux(t, dialect.SQLite)

	var resp []entrypointResponse
	require.Equal(t, http.StatusOK, get(t, mux, "/sources", &resp))
	assert.Equal(t, []entrypointResponse{
		{Entity: "my_simple_model", Name: "greeting", CallParameterized: true},
		{Entity: "my_simple_model", Name: "totals"},
	}, resp)
}
