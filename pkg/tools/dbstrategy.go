package tools

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"sync"
)

// DBStrategy executes one ToolTypeDB spec's backend call against whatever
// store the spec's Driver names. Strategies keep no per-call state: the
// only thing they hold is the connection pool or client they were built
// with, so the same strategy instance serves every spec that names its
// driver.
type DBStrategy interface {
	Execute(ctx context.Context, spec *ToolSpec, args map[string]interface{}) (interface{}, error)
}

// DBStrategyRegistry resolves a driver name to a DBStrategy. Lookups are
// case-insensitive.
type DBStrategyRegistry struct {
	mu         sync.RWMutex
	strategies map[string]DBStrategy
}

func NewDBStrategyRegistry() *DBStrategyRegistry {
	return &DBStrategyRegistry{strategies: make(map[string]DBStrategy)}
}

func (r *DBStrategyRegistry) Register(driver string, strategy DBStrategy) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.strategies[strings.ToLower(driver)] = strategy
}

func (r *DBStrategyRegistry) Get(driver string) (DBStrategy, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	s, ok := r.strategies[strings.ToLower(driver)]
	if ok {
		return s, nil
	}
	available := make([]string, 0, len(r.strategies))
	for name := range r.strategies {
		available = append(available, name)
	}
	return nil, NewToolError(CodeInvalidOperation,
		fmt.Sprintf("unsupported driver %q, available: %s", driver, strings.Join(available, ", ")))
}

// NewDefaultDBStrategyRegistry registers a relational strategy under each
// driver name in pools, wired to that pool, plus the dynamodb strategy
// when dynamo is non-nil.
func NewDefaultDBStrategyRegistry(pools map[string]*sql.DB, dynamo *DynamoDBStrategy) *DBStrategyRegistry {
	registry := NewDBStrategyRegistry()
	for name, pool := range pools {
		registry.Register(name, &SQLStrategy{DB: pool})
	}
	if dynamo != nil {
		registry.Register("dynamodb", dynamo)
	}
	return registry
}

// SQLStrategy executes parameterized SQL against any database/sql pool,
// serving postgresql/mysql/sqlite alike — the driver-specific behavior
// lives entirely in which *sql.DB the registry wired it to.
//
// args:
//   "sql"        string                required
//   "params"     []interface{}         positional bind parameters
//   "operation"  "select"|"execute"    defaults to inferring from the SQL text
type SQLStrategy struct {
	DB *sql.DB
}

func (s *SQLStrategy) Execute(ctx context.Context, spec *ToolSpec, args map[string]interface{}) (interface{}, error) {
	query, _ := args["sql"].(string)
	if query == "" {
		return nil, NewToolError(CodeValidationError, "db tool call is missing required \"sql\" argument").WithToolID(spec.ID)
	}
	params, _ := args["params"].([]interface{})

	op, _ := args["operation"].(string)
	if op == "" {
		op = inferSQLOperation(query)
	}

	switch op {
	case "execute", "exec":
		result, err := s.DB.ExecContext(ctx, query, params...)
		if err != nil {
			return nil, wrapSQLError(spec, err)
		}
		rows, _ := result.RowsAffected()
		return envelope("execute", map[string]interface{}{"rows_affected": rows}), nil
	default:
		rows, err := s.DB.QueryContext(ctx, query, params...)
		if err != nil {
			return nil, wrapSQLError(spec, err)
		}
		defer rows.Close()
		scanned, err := scanRows(rows)
		if err != nil {
			return nil, wrapSQLError(spec, err)
		}
		return envelope("select", map[string]interface{}{"rows": scanned, "row_count": len(scanned)}), nil
	}
}

func inferSQLOperation(query string) string {
	trimmed := strings.ToUpper(strings.TrimSpace(query))
	if strings.HasPrefix(trimmed, "SELECT") || strings.HasPrefix(trimmed, "WITH") {
		return "select"
	}
	return "execute"
}

func wrapSQLError(spec *ToolSpec, err error) error {
	return NewToolError(CodeToolError, err.Error()).WithToolID(spec.ID).WithCause(err)
}

func scanRows(rows *sql.Rows) ([]map[string]interface{}, error) {
	cols, err := rows.Columns()
	if err != nil {
		return nil, err
	}
	var out []map[string]interface{}
	for rows.Next() {
		values := make([]interface{}, len(cols))
		pointers := make([]interface{}, len(cols))
		for i := range values {
			pointers[i] = &values[i]
		}
		if err := rows.Scan(pointers...); err != nil {
			return nil, err
		}
		row := make(map[string]interface{}, len(cols))
		for i, col := range cols {
			row[col] = normalizeSQLValue(values[i])
		}
		out = append(out, row)
	}
	return out, rows.Err()
}

func normalizeSQLValue(v interface{}) interface{} {
	if b, ok := v.([]byte); ok {
		return string(b)
	}
	return v
}
