package mutation

import (
	"context"
	"errors"
	"log/slog"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sakif/snippethub/internal/querycache"
)

func newTestCache(t *testing.T) *querycache.Cache {
	t.Helper()
	c := querycache.New(querycache.Options{GCTime: -1}, slog.New(slog.DiscardHandler))
	t.Cleanup(c.Clear)
	return c
}

type counter struct {
	Likes int
}

var errNetwork = errors.New("network down")

// =========================================================================
// TRANSACTION
// =========================================================================

func TestTransaction_AbortRestoresVerbatim(t *testing.T) {
	c := newTestCache(t)
	present := querycache.K("snippets", "byId", 1)
	absent := querycache.K("snippets", "byId", 2)
	c.Write(present, counter{Likes: 3})

	tx := Begin(c, present)
	Patch(tx, present, func(v counter) counter { v.Likes++; return v })
	tx.Apply(absent, func(any, bool) (any, bool) { return counter{Likes: 1}, true })

	got, _ := querycache.GetData[counter](c, present)
	assert.Equal(t, 4, got.Likes)

	tx.Abort()

	got, _ = querycache.GetData[counter](c, present)
	assert.Equal(t, 3, got.Likes)
	_, ok := c.Get(absent)
	assert.False(t, ok, "a key created by the transaction is removed on abort")
}

func TestTransaction_CommitKeepsPatch(t *testing.T) {
	c := newTestCache(t)
	key := querycache.K("snippets", "byId", 1)
	c.Write(key, counter{Likes: 3})

	tx := Begin(c, key)
	Patch(tx, key, func(v counter) counter { v.Likes++; return v })
	tx.Commit()
	tx.Abort() // no-op after commit

	got, _ := querycache.GetData[counter](c, key)
	assert.Equal(t, 4, got.Likes)
}

func TestTransaction_TrackSnapshotsOnce(t *testing.T) {
	c := newTestCache(t)
	key := querycache.K("q", 1)
	c.Write(key, counter{Likes: 1})

	tx := Begin(c, key)
	Patch(tx, key, func(v counter) counter { v.Likes = 5; return v })
	Patch(tx, key, func(v counter) counter { v.Likes = 9; return v })
	assert.Len(t, tx.Keys(), 1)

	tx.Abort()
	got, _ := querycache.GetData[counter](c, key)
	assert.Equal(t, 1, got.Likes)
}

func TestTransaction_BeginCancelsInflightRead(t *testing.T) {
	c := newTestCache(t)
	key := querycache.K("snippets", "byId", 1)
	gate := make(chan struct{})
	c.Write(key, counter{Likes: 3})
	require.NoError(t, c.Invalidate(context.Background(), key))

	stop := c.Observe(key, func(context.Context) (any, error) {
		<-gate
		return counter{Likes: 100}, nil
	}, func(querycache.Snapshot) {})
	defer stop()
	require.Eventually(t, func() bool {
		s, _ := c.Snapshot(key)
		return s.Fetching
	}, time.Second, time.Millisecond)

	tx := Begin(c, key)
	Patch(tx, key, func(v counter) counter { v.Likes++; return v })
	close(gate)

	require.Never(t, func() bool {
		v, _ := querycache.GetData[counter](c, key)
		return v.Likes != 4
	}, 50*time.Millisecond, 5*time.Millisecond, "stale read must not clobber the optimistic value")
	tx.Commit()
}

// =========================================================================
// MUTATION
// =========================================================================

func TestMutation_OptimisticPatchVisibleDuringCall(t *testing.T) {
	c := newTestCache(t)
	key := querycache.K("snippets", "byId", 1)
	c.Write(key, counter{Likes: 3})

	var seen int
	m := New(c, nil, Definition[int, struct{}]{
		Name: "like",
		Do: func(context.Context, int) (struct{}, error) {
			v, _ := querycache.GetData[counter](c, key)
			seen = v.Likes
			return struct{}{}, nil
		},
		Optimistic: func(tx *Transaction, _ int) {
			Patch(tx, key, func(v counter) counter { v.Likes++; return v })
		},
	})

	_, err := m.Run(context.Background(), 1)
	require.NoError(t, err)
	assert.Equal(t, 4, seen)
	assert.Equal(t, StateSuccess, m.State())
}

func TestMutation_FailureRollsBackAndSkipsInvalidation(t *testing.T) {
	c := newTestCache(t)
	key := querycache.K("snippets", "byId", 1)
	c.Write(key, counter{Likes: 3})
	var invalidated atomic.Bool

	m := New(c, nil, Definition[int, struct{}]{
		Name: "like",
		Do: func(context.Context, int) (struct{}, error) {
			return struct{}{}, errNetwork
		},
		Optimistic: func(tx *Transaction, _ int) {
			Patch(tx, key, func(v counter) counter { v.Likes++; return v })
		},
		Invalidate: func(int, struct{}) []querycache.Key {
			invalidated.Store(true)
			return []querycache.Key{key}
		},
	})

	_, err := m.Run(context.Background(), 1)

	assert.Same(t, errNetwork, err, "original error is surfaced unchanged")
	assert.Equal(t, StateError, m.State())
	assert.Same(t, errNetwork, m.Err())
	assert.False(t, invalidated.Load())

	got, _ := querycache.GetData[counter](c, key)
	assert.Equal(t, 3, got.Likes)
}

func TestMutation_SuccessInvalidatesObservedKeys(t *testing.T) {
	c := newTestCache(t)
	key := querycache.K("users", 9, "statistic")
	var fetches atomic.Int32

	stop := c.Observe(key, func(context.Context) (any, error) {
		return int(fetches.Add(1)), nil
	}, func(querycache.Snapshot) {})
	defer stop()
	require.Eventually(t, func() bool { _, ok := c.Get(key); return ok }, time.Second, time.Millisecond)

	var order []string
	m := New(c, nil, Definition[int, int]{
		Name: "create",
		Do: func(context.Context, int) (int, error) {
			order = append(order, "do")
			return 7, nil
		},
		OnSuccess: func(context.Context, int, int) {
			order = append(order, "onSuccess")
		},
		Invalidate: func(int, int) []querycache.Key {
			order = append(order, "invalidate")
			return []querycache.Key{key, key, querycache.K("me")}
		},
	})

	_, err := m.Run(context.Background(), 1)
	require.NoError(t, err)

	assert.Equal(t, []string{"do", "onSuccess", "invalidate"}, order)
	assert.Equal(t, int32(2), fetches.Load(), "duplicate keys invalidate once")
	v, _ := c.Get(key)
	assert.Equal(t, 2, v)
}

func TestMutation_InvalidationFailureDoesNotFailMutation(t *testing.T) {
	c := newTestCache(t)
	key := querycache.K("me")
	var fetches atomic.Int32

	stop := c.Observe(key, func(context.Context) (any, error) {
		if fetches.Add(1) > 1 {
			return nil, errors.New("refetch failed")
		}
		return "me", nil
	}, func(querycache.Snapshot) {})
	defer stop()
	require.Eventually(t, func() bool { _, ok := c.Get(key); return ok }, time.Second, time.Millisecond)

	m := New(c, nil, Definition[struct{}, struct{}]{
		Name:       "rename",
		Do:         func(context.Context, struct{}) (struct{}, error) { return struct{}{}, nil },
		Invalidate: func(struct{}, struct{}) []querycache.Key { return []querycache.Key{key} },
	})

	_, err := m.Run(context.Background(), struct{}{})
	assert.NoError(t, err)
	assert.Equal(t, StateSuccess, m.State())
}

func TestMutation_NotRetried(t *testing.T) {
	c := newTestCache(t)
	var calls atomic.Int32

	m := New(c, nil, Definition[int, int]{
		Name: "delete",
		Do: func(context.Context, int) (int, error) {
			calls.Add(1)
			return 0, errNetwork
		},
	})

	_, err := m.Run(context.Background(), 1)
	require.Error(t, err)
	assert.Equal(t, int32(1), calls.Load())
}

func TestDedupe(t *testing.T) {
	keys := Dedupe([]querycache.Key{
		querycache.K("me"),
		querycache.K("users", 9, "statistic"),
		querycache.K("users", int64(9), "statistic"),
		querycache.K("me"),
	})

	assert.Equal(t, []querycache.Key{querycache.K("me"), querycache.K("users", 9, "statistic")}, keys)
}
