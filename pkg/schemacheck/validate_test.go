package schemacheck

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/sqlgate/sqlgate/internal/testutil"
	"github.com/sqlgate/sqlgate/pkg/pgpool"
	"github.com/sqlgate/sqlgate/pkg/registry"
)

func brokenDefs(t *testing.T) *registry.Definitions {
	t.Helper()
	defs := registry.NewDefinitions()
	require.NoError(t, defs.AddDatabase("test", registry.DatabaseDefinition{
		Name: "warehouse",
		URL:  "postgres://localhost:5432/warehouse",
	}))
	require.NoError(t, defs.AddQuery("test", registry.QueryDefinition{
		Name:     "order-by-id",
		SQL:      "SELECT id FROM orders WHERE id = ?",
		Database: "nowhere", // dangling reference
		Parameters: []registry.ParameterSpec{
			{Name: "id", Type: registry.TypeLong, Required: true, Position: 1},
		},
	}))
	require.NoError(t, defs.AddEndpoint("test", registry.EndpointDefinition{
		Name:   "get-order",
		Method: "GET",
		Path:   "/orders/{id}",
		Query:  "order-by-id",
	}))
	return defs
}

func TestRunSkipsSchemaPhaseOnChainFailure(t *testing.T) {
	defs := brokenDefs(t)
	pools := pgpool.NewManager(defs.Databases, zap.NewNop())
	defer pools.Close()

	report := New(defs, pools, zap.NewNop()).Run(context.Background())

	assert.False(t, report.Valid)
	require.Len(t, report.Phases, 2)

	chain := report.Phases[0]
	assert.Equal(t, "configuration-chain", chain.Name)
	assert.Equal(t, StatusFailed, chain.Status)
	require.NotEmpty(t, chain.Checks)
	assert.Contains(t, chain.Checks[0].Message, "unknown database")

	schema := report.Phases[1]
	assert.Equal(t, "schema", schema.Name)
	assert.Equal(t, StatusSkipped, schema.Status)
	assert.Empty(t, schema.Checks)
}

func TestChainReport(t *testing.T) {
	t.Run("broken chain fails", func(t *testing.T) {
		report := ChainReport(brokenDefs(t))

		assert.False(t, report.Valid)
		require.Len(t, report.Phases, 1)
		assert.Equal(t, "configuration-chain", report.Phases[0].Name)
		assert.Equal(t, StatusFailed, report.Phases[0].Status)
		require.NotEmpty(t, report.Phases[0].Checks)
		assert.Contains(t, report.Phases[0].Checks[0].Message, "unknown database")
	})

	t.Run("valid chain passes", func(t *testing.T) {
		report := ChainReport(testutil.Definitions())

		assert.True(t, report.Valid)
		require.Len(t, report.Phases, 1)
		assert.Equal(t, StatusPassed, report.Phases[0].Status)
	})
}

func fixtureMetadata() *dbMetadata {
	md := &dbMetadata{tables: make(map[string]map[string]bool)}
	md.add("public.orders", "id")
	md.add("public.orders", "customer")
	md.add("public.orders", "total")
	md.add("orders", "id")
	md.add("orders", "customer")
	md.add("orders", "total")
	return md
}

func TestCheckQuery(t *testing.T) {
	md := fixtureMetadata()

	oneParam := []registry.ParameterSpec{
		{Name: "value", Type: registry.TypeLong, Required: true, Position: 1},
	}

	t.Run("clean query yields no findings", func(t *testing.T) {
		checks := checkQuery(registry.QueryDefinition{
			Name:       "order-by-id",
			SQL:        "SELECT id, customer FROM orders WHERE total > ?",
			Parameters: oneParam,
		}, md)
		assert.Empty(t, checks)
	})

	t.Run("schema-qualified table resolves", func(t *testing.T) {
		checks := checkQuery(registry.QueryDefinition{
			Name:       "order-by-id",
			SQL:        "SELECT id FROM public.orders WHERE id = ?",
			Parameters: oneParam,
		}, md)
		assert.Empty(t, checks)
	})

	t.Run("placeholder count mismatch is an error", func(t *testing.T) {
		checks := checkQuery(registry.QueryDefinition{
			Name: "mismatch",
			SQL:  "SELECT id FROM orders WHERE id = ? AND total > ?",
		}, md)
		require.Len(t, checks, 1)
		assert.Equal(t, LevelError, checks[0].Level)
		assert.Contains(t, checks[0].Message, "0 parameters")
		assert.Contains(t, checks[0].Message, "2 placeholders")
	})

	t.Run("missing table is an error", func(t *testing.T) {
		checks := checkQuery(registry.QueryDefinition{
			Name: "ghost",
			SQL:  "SELECT id FROM shipments",
		}, md)
		require.Len(t, checks, 1)
		assert.Equal(t, LevelError, checks[0].Level)
		assert.Contains(t, checks[0].Message, "shipments")
	})

	t.Run("missing column is a warning", func(t *testing.T) {
		checks := checkQuery(registry.QueryDefinition{
			Name: "typo",
			SQL:  "SELECT id, custmer FROM orders",
		}, md)
		require.Len(t, checks, 1)
		assert.Equal(t, LevelWarning, checks[0].Level)
		assert.Contains(t, checks[0].Message, "custmer")
	})

	t.Run("select star is never a finding", func(t *testing.T) {
		checks := checkQuery(registry.QueryDefinition{
			Name: "all",
			SQL:  "SELECT * FROM orders",
		}, md)
		assert.Empty(t, checks)
	})
}

func TestMetadataBareNameMergesSchemas(t *testing.T) {
	md := &dbMetadata{tables: make(map[string]map[string]bool)}
	md.add("sales.events", "region")
	md.add("events", "region")
	md.add("audit.events", "actor")
	md.add("events", "actor")

	assert.True(t, md.hasColumn("events", "region"))
	assert.True(t, md.hasColumn("events", "actor"))
	assert.False(t, md.hasColumn("events", "missing"))
	assert.False(t, md.hasTable("absent"))
}
