package pgpool

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/sqlgate/sqlgate/internal/testutil/pgtest"
	"github.com/sqlgate/sqlgate/pkg/registry"
)

func TestAcquireUnknownDatabase(t *testing.T) {
	m := NewManager(nil, zap.NewNop())
	defer m.Close()

	_, err := m.Acquire(context.Background(), "nowhere")
	require.ErrorIs(t, err, ErrUnknownDatabase)

	err = m.HealthCheck(context.Background(), "nowhere")
	require.ErrorIs(t, err, ErrUnknownDatabase)
}

func TestNames(t *testing.T) {
	m := NewManager(map[string]registry.DatabaseDefinition{
		"a": {Name: "a", URL: "postgres://localhost/a"},
		"b": {Name: "b", URL: "postgres://localhost/b"},
	}, zap.NewNop())
	defer m.Close()

	assert.ElementsMatch(t, []string{"a", "b"}, m.Names())
}

func TestResetReconcilesEntries(t *testing.T) {
	m := NewManager(map[string]registry.DatabaseDefinition{
		"keep":   {Name: "keep", URL: "postgres://localhost/keep"},
		"remove": {Name: "remove", URL: "postgres://localhost/remove"},
	}, zap.NewNop())
	defer m.Close()

	m.Reset(map[string]registry.DatabaseDefinition{
		"keep":  {Name: "keep", URL: "postgres://localhost/keep"},
		"added": {Name: "added", URL: "postgres://localhost/added"},
	})

	assert.ElementsMatch(t, []string{"keep", "added"}, m.Names())

	_, err := m.Acquire(context.Background(), "remove")
	assert.ErrorIs(t, err, ErrUnknownDatabase)
}

// Health checks and configuration reloads run on independent goroutines in
// the server; this only has to be clean under the race detector.
func TestHealthCheckConcurrentWithReset(t *testing.T) {
	def := registry.DatabaseDefinition{
		Name:        "flaky",
		URL:         "postgres://localhost:1/flaky",
		HealthQuery: "SELECT 1",
	}
	m := NewManager(map[string]registry.DatabaseDefinition{"flaky": def}, zap.NewNop())
	defer m.Close()

	// A canceled context keeps each probe fast: the health query is read,
	// then pool creation fails immediately.
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		for i := 0; i < 100; i++ {
			_ = m.HealthCheck(ctx, "flaky")
		}
	}()
	go func() {
		defer wg.Done()
		for i := 0; i < 100; i++ {
			next := def
			if i%2 == 0 {
				next.HealthQuery = "SELECT 2"
			}
			m.Reset(map[string]registry.DatabaseDefinition{"flaky": next})
		}
	}()
	wg.Wait()

	assert.ElementsMatch(t, []string{"flaky"}, m.Names())
}

func TestPoolAgainstLiveDatabase(t *testing.T) {
	cs := pgtest.ConnString(t)

	m := NewManager(map[string]registry.DatabaseDefinition{
		"test": {
			Name: "test",
			URL:  cs,
			Pool: registry.PoolSettings{MaxConns: 2, ConnTimeout: 5 * time.Second},
		},
	}, zap.NewNop())
	defer m.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	conn, err := m.Acquire(ctx, "test")
	require.NoError(t, err)
	defer conn.Release()

	var one int
	require.NoError(t, conn.QueryRow(ctx, "SELECT 1").Scan(&one))
	assert.Equal(t, 1, one)

	require.NoError(t, m.HealthCheck(ctx, "test"))
}
