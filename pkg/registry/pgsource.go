package registry

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"
)

// PGSource loads the three definition kinds from relational tables:
//
//	{schema}.databases(name, url, username, password, driver, pool, health_query)
//	{schema}.queries(name, sql, database_name, parameters)
//	{schema}.endpoints(name, method, path, query_name, count_query_name,
//	                   pagination, parameters, response)
//
// pool, pagination, and parameters columns are JSONB and go through the same
// decoding path as file documents.
type PGSource struct {
	pool   *pgxpool.Pool
	schema string
	logger *zap.Logger
}

func NewPGSource(ctx context.Context, connString, schema string, logger *zap.Logger) (*PGSource, error) {
	if schema == "" {
		schema = "sqlgate"
	}
	pool, err := pgxpool.New(ctx, connString)
	if err != nil {
		return nil, fmt.Errorf("configuration database: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("configuration database ping: %w", err)
	}
	return &PGSource{pool: pool, schema: schema, logger: logger}, nil
}

func (s *PGSource) Close() {
	s.pool.Close()
}

func (s *PGSource) Load(ctx context.Context) (*Definitions, error) {
	defs := NewDefinitions()
	source := "table " + s.schema

	if err := s.loadDatabases(ctx, defs, source); err != nil {
		return nil, err
	}
	if err := s.loadQueries(ctx, defs, source); err != nil {
		return nil, err
	}
	if err := s.loadEndpoints(ctx, defs, source); err != nil {
		return nil, err
	}

	if err := defs.checkComplete(); err != nil {
		return nil, err
	}
	s.logger.Info("loaded definitions from database",
		zap.Int("databases", len(defs.Databases)),
		zap.Int("queries", len(defs.Queries)),
		zap.Int("endpoints", len(defs.Endpoints)),
	)
	return defs, nil
}

func (s *PGSource) loadDatabases(ctx context.Context, defs *Definitions, source string) error {
	rows, err := s.pool.Query(ctx, fmt.Sprintf(
		`SELECT name, url, COALESCE(username,''), COALESCE(password,''),
		        COALESCE(driver,''), COALESCE(pool,'{}'::jsonb), COALESCE(health_query,'')
		 FROM %s.databases ORDER BY name`, s.schema))
	if err != nil {
		return fmt.Errorf("query %s.databases: %w", s.schema, err)
	}
	defer rows.Close()

	for rows.Next() {
		var def DatabaseDefinition
		var poolJSON []byte
		if err := rows.Scan(&def.Name, &def.URL, &def.Username, &def.Password,
			&def.Driver, &poolJSON, &def.HealthQuery); err != nil {
			return err
		}
		var raw map[string]any
		if err := json.Unmarshal(poolJSON, &raw); err != nil {
			return fmt.Errorf("database %q pool settings: %w", def.Name, err)
		}
		if err := decode(raw, &def.Pool); err != nil {
			return fmt.Errorf("database %q pool settings: %w", def.Name, err)
		}
		if err := defs.AddDatabase(source+".databases", def); err != nil {
			return err
		}
	}
	return rows.Err()
}

func (s *PGSource) loadQueries(ctx context.Context, defs *Definitions, source string) error {
	rows, err := s.pool.Query(ctx, fmt.Sprintf(
		`SELECT name, sql, database_name, COALESCE(parameters,'[]'::jsonb)
		 FROM %s.queries ORDER BY name`, s.schema))
	if err != nil {
		return fmt.Errorf("query %s.queries: %w", s.schema, err)
	}
	defer rows.Close()

	for rows.Next() {
		var def QueryDefinition
		var paramsJSON []byte
		if err := rows.Scan(&def.Name, &def.SQL, &def.Database, &paramsJSON); err != nil {
			return err
		}
		if err := json.Unmarshal(paramsJSON, &def.Parameters); err != nil {
			return fmt.Errorf("query %q parameters: %w", def.Name, err)
		}
		if err := defs.AddQuery(source+".queries", def); err != nil {
			return err
		}
	}
	return rows.Err()
}

func (s *PGSource) loadEndpoints(ctx context.Context, defs *Definitions, source string) error {
	rows, err := s.pool.Query(ctx, fmt.Sprintf(
		`SELECT name, method, path, query_name, COALESCE(count_query_name,''),
		        pagination, COALESCE(parameters,'[]'::jsonb), COALESCE(response,'')
		 FROM %s.endpoints ORDER BY name`, s.schema))
	if err != nil {
		return fmt.Errorf("query %s.endpoints: %w", s.schema, err)
	}
	defer rows.Close()

	for rows.Next() {
		var def EndpointDefinition
		var paginationJSON, paramsJSON []byte
		if err := rows.Scan(&def.Name, &def.Method, &def.Path, &def.Query,
			&def.CountQuery, &paginationJSON, &paramsJSON, &def.Response); err != nil {
			return err
		}
		if len(paginationJSON) > 0 {
			def.Pagination = &PaginationSpec{}
			if err := json.Unmarshal(paginationJSON, def.Pagination); err != nil {
				return fmt.Errorf("endpoint %q pagination: %w", def.Name, err)
			}
		}
		if err := json.Unmarshal(paramsJSON, &def.Parameters); err != nil {
			return fmt.Errorf("endpoint %q parameters: %w", def.Name, err)
		}
		if err := defs.AddEndpoint(source+".endpoints", def); err != nil {
			return err
		}
	}
	return rows.Err()
}
