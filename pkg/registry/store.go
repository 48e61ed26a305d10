package registry

import (
	"context"
	"sync"
	"sync/atomic"

	"go.uber.org/zap"
)

// Store holds the current registry snapshot. Request-path code reads the
// snapshot through Current; a reload builds a complete new Registry and
// swaps the pointer atomically, so readers never observe a half-built state.
type Store struct {
	current atomic.Pointer[Registry]
	source  Source
	logger  *zap.Logger

	mu     sync.Mutex // serializes reloads
	onSwap []func(*Registry)
}

func NewStore(reg *Registry, source Source, logger *zap.Logger) *Store {
	s := &Store{source: source, logger: logger}
	s.current.Store(reg)
	return s
}

// Current returns the live snapshot.
func (s *Store) Current() *Registry {
	return s.current.Load()
}

// OnSwap registers a callback invoked with each new snapshot after it has
// been published. Register callbacks before serving traffic.
func (s *Store) OnSwap(fn func(*Registry)) {
	s.onSwap = append(s.onSwap, fn)
}

// Reload loads the source again and swaps in the new snapshot. A load or
// validation failure leaves the previous snapshot in place.
func (s *Store) Reload(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	defs, err := s.source.Load(ctx)
	if err != nil {
		s.logger.Error("configuration reload failed, keeping previous snapshot", zap.Error(err))
		return err
	}
	reg, err := Build(defs)
	if err != nil {
		s.logger.Error("configuration reload invalid, keeping previous snapshot", zap.Error(err))
		return err
	}

	s.current.Store(reg)
	for _, fn := range s.onSwap {
		fn(reg)
	}
	s.logger.Info("configuration snapshot swapped",
		zap.Int("databases", reg.report.Databases),
		zap.Int("queries", reg.report.Queries),
		zap.Int("endpoints", reg.report.Endpoints),
		zap.Strings("warnings", reg.report.Warnings),
	)
	return nil
}
