package rest

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"

	"github.com/sqlgate/sqlgate/pkg/pgpool"
	"github.com/sqlgate/sqlgate/pkg/registry"
	"github.com/sqlgate/sqlgate/pkg/sqlscan"
)

// Executor runs declared queries against their target pools. Every
// execution is one scoped acquire/execute/release cycle; the paginated path
// performs two independent cycles (data, count) with no shared transaction,
// so the two results can be mutually inconsistent under concurrent writes.
type Executor struct {
	pools  *pgpool.Manager
	logger *zap.Logger
}

func NewExecutor(pools *pgpool.Manager, logger *zap.Logger) *Executor {
	return &Executor{pools: pools, logger: logger}
}

// Rows executes the query and returns each row as a column-name → value map
// in result order.
func (e *Executor) Rows(ctx context.Context, q registry.QueryDefinition, params []BoundParam) ([]map[string]any, *StatusError) {
	conn, serr := e.acquire(ctx, q)
	if serr != nil {
		return nil, serr
	}
	defer conn.Release()

	rows, err := conn.Query(ctx, sqlscan.Rewrite(q.SQL), args(params)...)
	if err != nil {
		e.logger.Error("query failed", zap.String("query", q.Name), zap.Error(err))
		return nil, internalf("query %q failed", q.Name)
	}
	defer rows.Close()

	result, err := rowsToMaps(rows)
	if err != nil {
		e.logger.Error("row scan failed", zap.String("query", q.Name), zap.Error(err))
		return nil, internalf("query %q failed", q.Name)
	}
	return result, nil
}

// ScalarCount executes the query and returns the single integer it yields.
func (e *Executor) ScalarCount(ctx context.Context, q registry.QueryDefinition, params []BoundParam) (int64, *StatusError) {
	conn, serr := e.acquire(ctx, q)
	if serr != nil {
		return 0, serr
	}
	defer conn.Release()

	var count int64
	err := conn.QueryRow(ctx, sqlscan.Rewrite(q.SQL), args(params)...).Scan(&count)
	if err != nil {
		e.logger.Error("count query failed", zap.String("query", q.Name), zap.Error(err))
		return 0, internalf("count query %q failed", q.Name)
	}
	return count, nil
}

// Single implements the single-result shape: zero rows is NotFound, one row
// is SINGLE, more than one degrades to LIST without a pagination wrapper.
func (e *Executor) Single(ctx context.Context, q registry.QueryDefinition, params []BoundParam) (*Envelope, *StatusError) {
	rows, serr := e.Rows(ctx, q, params)
	if serr != nil {
		return nil, serr
	}
	return shapeSingle(rows)
}

// Paginated implements the paged shape: the data query runs with limit and
// offset bound, then the count query (if configured) runs with those
// parameters stripped and renumbered. Without a count query totalElements
// defaults to zero.
func (e *Executor) Paginated(ctx context.Context, q registry.QueryDefinition, countQ *registry.QueryDefinition, params []BoundParam, pr pageRequest) (*Envelope, *StatusError) {
	rows, serr := e.Rows(ctx, q, params)
	if serr != nil {
		return nil, serr
	}

	var total int64
	if countQ != nil {
		total, serr = e.ScalarCount(ctx, *countQ, stripParams(params, "limit", "offset"))
		if serr != nil {
			return nil, serr
		}
	}
	return shapePage(rows, pr, total), nil
}

// acquire resolves the query's pool. An unknown database here means a
// reference that passed load-time validation has vanished; that is a
// defensive internal error, not a caller mistake.
func (e *Executor) acquire(ctx context.Context, q registry.QueryDefinition) (*pgxpool.Conn, *StatusError) {
	c, err := e.pools.Acquire(ctx, q.Database)
	if err != nil {
		if errors.Is(err, pgpool.ErrUnknownDatabase) {
			return nil, internalf("query %q references database %q which is no longer configured", q.Name, q.Database)
		}
		e.logger.Error("connection acquisition failed",
			zap.String("database", q.Database), zap.Error(err))
		return nil, unavailablef("database %q is unavailable", q.Database)
	}
	return c, nil
}

func args(params []BoundParam) []any {
	out := make([]any, len(params))
	for i, p := range params {
		out[i] = p.Value
	}
	return out
}

func rowsToMaps(rows pgx.Rows) ([]map[string]any, error) {
	fields := rows.FieldDescriptions()
	columns := make([]string, len(fields))
	for i, fd := range fields {
		columns[i] = string(fd.Name)
	}

	// Never nil: an empty result must serialize as [] in the envelope.
	result := []map[string]any{}
	for rows.Next() {
		values := make([]any, len(columns))
		pointers := make([]any, len(columns))
		for i := range values {
			pointers[i] = &values[i]
		}
		if err := rows.Scan(pointers...); err != nil {
			return nil, err
		}
		row := make(map[string]any, len(columns))
		for i, name := range columns {
			row[name] = values[i]
		}
		result = append(result, row)
	}
	return result, rows.Err()
}

func shapeSingle(rows []map[string]any) (*Envelope, *StatusError) {
	switch len(rows) {
	case 0:
		return nil, notFoundf("no matching rows")
	case 1:
		return envelope(TypeSingle, rows[0]), nil
	default:
		return envelope(TypeList, rows), nil
	}
}

func shapePage(rows []map[string]any, pr pageRequest, total int64) *Envelope {
	size := int64(pr.size)
	totalPages := (total + size - 1) / size

	env := envelope(TypePaged, rows)
	env.Pagination = &Pagination{
		Page:          pr.page,
		Size:          pr.size,
		TotalElements: total,
		TotalPages:    totalPages,
		First:         pr.page == 0,
		Last:          int64(pr.page) >= totalPages-1,
	}
	return env
}
