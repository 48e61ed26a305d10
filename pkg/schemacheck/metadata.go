package schemacheck

import (
	"context"
	"fmt"

	"github.com/sqlgate/sqlgate/pkg/pgpool"
)

// metadataQuery pulls every visible column from the information schema,
// excluding the catalogs themselves.
const metadataQuery = `
SELECT table_schema, table_name, column_name
FROM information_schema.columns
WHERE table_schema NOT IN ('pg_catalog', 'information_schema')
ORDER BY table_schema, table_name, ordinal_position`

// dbMetadata indexes the live schema of one database. Tables are keyed both
// as schema.table and as the bare table name; a bare key that exists in more
// than one schema carries the union of their columns, which keeps the checks
// on the lenient side of the heuristic.
type dbMetadata struct {
	tables map[string]map[string]bool
}

func loadMetadata(ctx context.Context, pools *pgpool.Manager, database string) (*dbMetadata, error) {
	pool, err := pools.Pool(ctx, database)
	if err != nil {
		return nil, err
	}

	rows, err := pool.Query(ctx, metadataQuery)
	if err != nil {
		return nil, fmt.Errorf("read information_schema: %w", err)
	}
	defer rows.Close()

	md := &dbMetadata{tables: make(map[string]map[string]bool)}
	for rows.Next() {
		var schema, table, column string
		if err := rows.Scan(&schema, &table, &column); err != nil {
			return nil, err
		}
		md.add(schema+"."+table, column)
		md.add(table, column)
	}
	return md, rows.Err()
}

func (md *dbMetadata) add(table, column string) {
	cols, ok := md.tables[table]
	if !ok {
		cols = make(map[string]bool)
		md.tables[table] = cols
	}
	cols[column] = true
}

func (md *dbMetadata) hasTable(name string) bool {
	_, ok := md.tables[name]
	return ok
}

func (md *dbMetadata) hasColumn(table, column string) bool {
	cols, ok := md.tables[table]
	return ok && cols[column]
}
