// Package runner executes compiled statements and returns rows keyed by
// column name.
package runner

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/jackc/pgx/v5/pgxpool"

	// database/sql drivers selectable through dialect.Dialect.Driver.
	_ "github.com/go-sql-driver/mysql"
	_ "github.com/lib/pq"
	_ "modernc.org/sqlite"
)

type Row = map[string]any

// Runner runs a SELECT and a count over the same source.
type Runner interface {
	Rows(ctx context.Context, sqlStr string, args []any) ([]Row, error)
	Count(ctx context.Context, sqlStr string, args []any) (int64, error)
}

// Estimator is implemented by runners that can ask the planner for a row
// estimate instead of counting.
type Estimator interface {
	Estimate(ctx context.Context, sqlStr string, args []any) (int64, error)
}

// PgxRunner runs statements on a pgx pool.
type PgxRunner struct {
	pool *pgxpool.Pool
}

func NewPgxRunner(pool *pgxpool.Pool) *PgxRunner {
	return &PgxRunner{pool: pool}
}

func (r *PgxRunner) Rows(ctx context.Context, sqlStr string, args []any) ([]Row, error) {
	rows, err := r.pool.Query(ctx, sqlStr, args...)
	if err != nil {
		return nil, fmt.Errorf("query: %w", err)
	}
	defer rows.Close()

	fields := rows.FieldDescriptions()
	var out []Row
	for rows.Next() {
		values, err := rows.Values()
		if err != nil {
			return nil, fmt.Errorf("scan: %w", err)
		}
		row := make(Row, len(fields))
		for i, f := range fields {
			row[f.Name] = Normalize(values[i])
		}
		out = append(out, row)
	}
	return out, rows.Err()
}

func (r *PgxRunner) Count(ctx context.Context, sqlStr string, args []any) (int64, error) {
	var n int64
	if err := r.pool.QueryRow(ctx, sqlStr, args...).Scan(&n); err != nil {
		return 0, fmt.Errorf("count: %w", err)
	}
	return n, nil
}

// Estimate returns the planner's row estimate for sqlStr.
func (r *PgxRunner) Estimate(ctx context.Context, sqlStr string, args []any) (int64, error) {
	var planJSON string
	if err := r.pool.QueryRow(ctx, "EXPLAIN (FORMAT JSON) "+sqlStr, args...).Scan(&planJSON); err != nil {
		return 0, fmt.Errorf("explain estimate: %w", err)
	}
	return parsePlanRows(planJSON), nil
}

// SQLRunner runs statements through database/sql.
type SQLRunner struct {
	db *sql.DB
}

func NewSQLRunner(db *sql.DB) *SQLRunner {
	return &SQLRunner{db: db}
}

// OpenSQL opens a database/sql handle for the given driver.
func OpenSQL(driver, dsn string) (*SQLRunner, error) {
	db, err := sql.Open(driver, dsn)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", driver, err)
	}
	return NewSQLRunner(db), nil
}

func (r *SQLRunner) DB() *sql.DB { return r.db }

func (r *SQLRunner) Close() error { return r.db.Close() }

func (r *SQLRunner) Rows(ctx context.Context, sqlStr string, args []any) ([]Row, error) {
	rows, err := r.db.QueryContext(ctx, sqlStr, args...)
	if err != nil {
		return nil, fmt.Errorf("query: %w", err)
	}
	defer rows.Close()

	cols, err := rows.Columns()
	if err != nil {
		return nil, fmt.Errorf("columns: %w", err)
	}

	var out []Row
	for rows.Next() {
		values := make([]any, len(cols))
		ptrs := make([]any, len(cols))
		for i := range values {
			ptrs[i] = &values[i]
		}
		if err := rows.Scan(ptrs...); err != nil {
			return nil, fmt.Errorf("scan: %w", err)
		}
		row := make(Row, len(cols))
		for i, c := range cols {
			row[c] = Normalize(values[i])
		}
		out = append(out, row)
	}
	return out, rows.Err()
}

func (r *SQLRunner) Count(ctx context.Context, sqlStr string, args []any) (int64, error) {
	var n int64
	if err := r.db.QueryRowContext(ctx, sqlStr, args...).Scan(&n); err != nil {
		return 0, fmt.Errorf("count: %w", err)
	}
	return n, nil
}

// Normalize converts driver values to the JSON-friendly types a
// structpb.Value accepts.
func Normalize(v any) any {
	switch x := v.(type) {
	case nil:
		return nil
	case []byte:
		return string(x)
	case time.Time:
		return x.UTC().Format(time.RFC3339Nano)
	case [16]byte:
		return uuid.UUID(x).String()
	case uuid.UUID:
		return x.String()
	case pgtype.Numeric:
		f, err := x.Float64Value()
		if err != nil || !f.Valid {
			return nil
		}
		return f.Float64
	case int8:
		return int64(x)
	case int16:
		return int64(x)
	case int32:
		return int64(x)
	case int:
		return int64(x)
	case float32:
		return float64(x)
	case string, bool, int64, float64:
		return x
	case map[string]any, []any:
		return x
	case fmt.Stringer:
		return x.String()
	default:
		return fmt.Sprint(x)
	}
}

func parsePlanRows(planJSON string) int64 {
	var plan []struct {
		Plan struct {
			PlanRows float64 `json:"Plan Rows"`
		} `json:"Plan"`
	}
	if err := json.Unmarshal([]byte(planJSON), &plan); err != nil || len(plan) == 0 {
		return 0
	}
	return int64(plan[0].Plan.PlanRows)
}
