package mutation

import (
	"context"
	"log/slog"
	"sync"

	"golang.org/x/sync/errgroup"

	"github.com/sakif/snippethub/internal/querycache"
)

// State of the most recent invocation of a Mutation.
type State int

const (
	StateIdle State = iota
	StatePending
	StateSuccess
	StateError
)

func (s State) String() string {
	switch s {
	case StatePending:
		return "pending"
	case StateSuccess:
		return "success"
	case StateError:
		return "error"
	default:
		return "idle"
	}
}

// Definition describes one kind of write. Only Name and Do are required.
type Definition[V, R any] struct {
	Name string

	// Do issues the network call.
	Do func(ctx context.Context, vars V) (R, error)

	// Optimistic patches the cache before Do runs. Every key it touches must
	// go through tx so that a failure can restore it.
	Optimistic func(tx *Transaction, vars V)

	// OnSuccess runs after Do succeeds and before invalidation, e.g. to
	// seed a detail key or replace the session user.
	OnSuccess func(ctx context.Context, vars V, result R)

	// Invalidate lists the keys and prefixes that depend on the write.
	Invalidate func(vars V, result R) []querycache.Key
}

// Mutation runs a Definition. A Mutation value may be invoked many times and from
// many goroutines; State reports the most recent invocation.
type Mutation[V, R any] struct {
	def    Definition[V, R]
	cache  *querycache.Cache
	logger *slog.Logger

	mu    sync.Mutex
	state State
	err   error
}

// New binds def to a cache.
func New[V, R any](c *querycache.Cache, logger *slog.Logger, def Definition[V, R]) *Mutation[V, R] {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Mutation[V, R]{def: def, cache: c, logger: logger}
}

// Run executes the mutation. On failure the optimistic patch is rolled back,
// no invalidation happens and Do's error is returned unchanged. On success
// the dependent keys are invalidated concurrently; their failures are logged
// and never returned. Mutations are not retried.
func (m *Mutation[V, R]) Run(ctx context.Context, vars V) (R, error) {
	m.setState(StatePending, nil)

	var tx *Transaction
	if m.def.Optimistic != nil {
		tx = Begin(m.cache)
		m.def.Optimistic(tx, vars)
	}

	result, err := m.def.Do(ctx, vars)
	if err != nil {
		if tx != nil {
			tx.Abort()
		}
		m.setState(StateError, err)
		m.logger.Debug("mutation failed",
			slog.String("mutation", m.def.Name),
			slog.String("error", err.Error()),
		)
		return result, err
	}

	if tx != nil {
		tx.Commit()
	}
	if m.def.OnSuccess != nil {
		m.def.OnSuccess(ctx, vars, result)
	}
	if m.def.Invalidate != nil {
		InvalidateAll(ctx, m.cache, m.logger, m.def.Invalidate(vars, result)...)
	}

	m.setState(StateSuccess, nil)
	return result, nil
}

// State returns the state of the latest invocation.
func (m *Mutation[V, R]) State() State {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state
}

// Err returns the error of the latest invocation, if it failed.
func (m *Mutation[V, R]) Err() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.err
}

func (m *Mutation[V, R]) setState(s State, err error) {
	m.mu.Lock()
	m.state, m.err = s, err
	m.mu.Unlock()
}

// InvalidateAll invalidates keys concurrently after dropping duplicates. It
// waits for every invalidation; failures are logged, not returned.
func InvalidateAll(ctx context.Context, c *querycache.Cache, logger *slog.Logger, keys ...querycache.Key) {
	var g errgroup.Group
	for _, key := range Dedupe(keys) {
		g.Go(func() error {
			if err := c.Invalidate(ctx, key); err != nil {
				logger.Warn("dependent invalidation failed",
					slog.String("key", key.String()),
					slog.String("error", err.Error()),
				)
			}
			return nil
		})
	}
	_ = g.Wait()
}

// Dedupe drops repeated keys, keeping the first occurrence.
func Dedupe(keys []querycache.Key) []querycache.Key {
	seen := make(map[string]bool, len(keys))
	out := make([]querycache.Key, 0, len(keys))
	for _, k := range keys {
		h := k.String()
		if seen[h] {
			continue
		}
		seen[h] = true
		out = append(out, k)
	}
	return out
}
