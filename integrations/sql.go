package integrations

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/sirupsen/logrus"
)

// SQLExecutor implements interpreter.SQLExecutor against a single shared
// *sql.DB. It runs the query with exactly the positional params the flow
// supplies; the tenant id is used only in error messages. It does not bind
// the tenant id as a parameter and does not check that the query stays
// within the tenant's rows, so any tenant scoping depends on the query and
// params the flow author wrote. There is no query rewriting or schema
// introspection: this is a thin passthrough to the configured database,
// not a data layer of its own.
type SQLExecutor struct {
	DB  *sql.DB
	Log *logrus.Entry
}

func NewSQLExecutor(db *sql.DB, log *logrus.Entry) *SQLExecutor {
	if log == nil {
		log = logrus.NewEntry(logrus.StandardLogger())
	}
	return &SQLExecutor{DB: db, Log: log}
}

func (e *SQLExecutor) Query(ctx context.Context, tenantID, query string, params []any) ([]map[string]any, error) {
	rows, err := e.DB.QueryContext(ctx, query, params...)
	if err != nil {
		return nil, fmt.Errorf("integrations: sql query for tenant %s: %w", tenantID, err)
	}
	defer rows.Close()

	cols, err := rows.Columns()
	if err != nil {
		return nil, fmt.Errorf("integrations: sql columns: %w", err)
	}

	var out []map[string]any
	for rows.Next() {
		vals := make([]any, len(cols))
		ptrs := make([]any, len(cols))
		for i := range vals {
			ptrs[i] = &vals[i]
		}
		if err := rows.Scan(ptrs...); err != nil {
			return nil, fmt.Errorf("integrations: sql scan: %w", err)
		}
		row := make(map[string]any, len(cols))
		for i, c := range cols {
			row[c] = normalizeSQLValue(vals[i])
		}
		out = append(out, row)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("integrations: sql rows: %w", err)
	}
	return out, nil
}

func normalizeSQLValue(v any) any {
	if b, ok := v.([]byte); ok {
		return string(b)
	}
	return v
}
