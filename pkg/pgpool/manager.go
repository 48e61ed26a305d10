// Package pgpool manages one pooled connection source per named database.
// Pools are created lazily from their DatabaseDefinition tunables and are
// independent: exhaustion or failure of one database's pool never blocks
// acquisition from another.
package pgpool

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/cenkalti/backoff/v4"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"

	"github.com/sqlgate/sqlgate/pkg/registry"
)

var ErrUnknownDatabase = errors.New("pgpool: unknown database")

const defaultHealthQuery = "SELECT 1"

// Manager owns one *pgxpool.Pool per named database definition.
type Manager struct {
	mu      sync.RWMutex
	entries map[string]*entry
	logger  *zap.Logger
}

// entry carries its own lock so that a slow pool creation for one database
// cannot stall acquisitions against the others.
type entry struct {
	mu   sync.Mutex
	def  registry.DatabaseDefinition
	pool *pgxpool.Pool
}

func NewManager(defs map[string]registry.DatabaseDefinition, logger *zap.Logger) *Manager {
	m := &Manager{entries: make(map[string]*entry, len(defs)), logger: logger}
	for name, def := range defs {
		m.entries[name] = &entry{def: def}
	}
	return m
}

// Acquire returns a pooled connection for the named database, creating the
// pool on first use. The caller must Release the connection on every exit
// path; executor code does so with defer immediately after acquiring.
func (m *Manager) Acquire(ctx context.Context, name string) (*pgxpool.Conn, error) {
	pool, err := m.Pool(ctx, name)
	if err != nil {
		return nil, err
	}
	conn, err := pool.Acquire(ctx)
	if err != nil {
		return nil, fmt.Errorf("acquire %q: %w", name, err)
	}
	return conn, nil
}

// Pool returns the named database's pool, creating it if needed.
func (m *Manager) Pool(ctx context.Context, name string) (*pgxpool.Pool, error) {
	m.mu.RLock()
	e, ok := m.entries[name]
	m.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownDatabase, name)
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	if e.pool != nil {
		return e.pool, nil
	}

	pool, err := m.createPool(ctx, e.def)
	if err != nil {
		return nil, fmt.Errorf("create pool %q: %w", name, err)
	}
	e.pool = pool
	m.logger.Info("connection pool created",
		zap.String("database", name),
		zap.Int32("max_conns", pool.Config().MaxConns),
	)
	return pool, nil
}

func (m *Manager) createPool(ctx context.Context, def registry.DatabaseDefinition) (*pgxpool.Pool, error) {
	cfg, err := pgxpool.ParseConfig(def.ConnString())
	if err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}
	s := def.Pool
	if s.MaxConns > 0 {
		cfg.MaxConns = s.MaxConns
	}
	if s.MinIdle > 0 {
		cfg.MinConns = s.MinIdle
	}
	if s.ConnTimeout > 0 {
		cfg.ConnConfig.ConnectTimeout = s.ConnTimeout
	}
	if s.IdleTimeout > 0 {
		cfg.MaxConnIdleTime = s.IdleTimeout
	}
	if s.MaxLifetime > 0 {
		cfg.MaxConnLifetime = s.MaxLifetime
	}

	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, err
	}

	// First contact can race a database that is still coming up; retry the
	// ping a few times before giving up.
	ping := func() error { return pool.Ping(ctx) }
	bo := backoff.WithContext(backoff.WithMaxRetries(backoff.NewExponentialBackOff(), 3), ctx)
	if err := backoff.Retry(ping, bo); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping: %w", err)
	}
	return pool, nil
}

// HealthCheck runs the definition's lightweight test query against the named
// database. A nil return means UP.
func (m *Manager) HealthCheck(ctx context.Context, name string) error {
	m.mu.RLock()
	e, ok := m.entries[name]
	m.mu.RUnlock()
	if !ok {
		return fmt.Errorf("%w: %q", ErrUnknownDatabase, name)
	}

	// Reset rewrites e.def on configuration reloads, so snapshot the query
	// under the entry lock.
	e.mu.Lock()
	query := e.def.HealthQuery
	e.mu.Unlock()
	if query == "" {
		query = defaultHealthQuery
	}

	pool, err := m.Pool(ctx, name)
	if err != nil {
		return err
	}
	rows, err := pool.Query(ctx, query)
	if err != nil {
		return fmt.Errorf("health check %q: %w", name, err)
	}
	rows.Close()
	return rows.Err()
}

// Names returns the managed database names.
func (m *Manager) Names() []string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	names := make([]string, 0, len(m.entries))
	for name := range m.entries {
		names = append(names, name)
	}
	return names
}

// Reset reconciles the manager with a new definition set after a
// configuration reload. Pools for removed or changed databases are closed;
// unchanged pools keep serving.
func (m *Manager) Reset(defs map[string]registry.DatabaseDefinition) {
	m.mu.Lock()
	defer m.mu.Unlock()

	for name, e := range m.entries {
		def, ok := defs[name]
		if ok && def == e.def {
			continue
		}
		e.mu.Lock()
		if e.pool != nil {
			e.pool.Close()
			e.pool = nil
		}
		e.mu.Unlock()
		if !ok {
			delete(m.entries, name)
			m.logger.Info("connection pool removed", zap.String("database", name))
		}
	}
	for name, def := range defs {
		if e, ok := m.entries[name]; ok {
			e.mu.Lock()
			e.def = def
			e.mu.Unlock()
			continue
		}
		m.entries[name] = &entry{def: def}
	}
}

// Close closes every pool. Called once at process shutdown.
func (m *Manager) Close() {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, e := range m.entries {
		e.mu.Lock()
		if e.pool != nil {
			e.pool.Close()
			e.pool = nil
		}
		e.mu.Unlock()
	}
}
