// Package mutation runs write operations against the backend with the
// optimistic-update protocol:
//
//  1. cancel in-flight reads of every key the mutation patches
//  2. snapshot those keys
//  3. apply the optimistic patch
//  4. issue the network call
//  5. success: drop the snapshots, then invalidate dependent keys concurrently
//  6. failure: restore every snapshot verbatim and return the original error
//
// Transaction implements steps 1-3 and 5-6 for any set of keys. Mutation
// wraps a Transaction around one network call and owns the state machine.
package mutation

import (
	"github.com/sakif/snippethub/internal/querycache"
)

type snapshot struct {
	key   querycache.Key
	value any
	had   bool
}

// Transaction is an optimistic patch over a set of cache keys that can be
// committed or rolled back as a unit. It is not safe for concurrent use;
// each mutation invocation owns its own transaction.
type Transaction struct {
	cache     *querycache.Cache
	snapshots []snapshot
	seen      map[string]bool
	finished  bool
}

// Begin cancels in-flight reads of keys and snapshots their current values.
// More keys can join later through Track or Patch.
func Begin(c *querycache.Cache, keys ...querycache.Key) *Transaction {
	tx := &Transaction{cache: c, seen: make(map[string]bool)}
	tx.Track(keys...)
	return tx
}

// Track adds keys to the transaction. Keys already tracked keep their first
// snapshot.
func (tx *Transaction) Track(keys ...querycache.Key) {
	for _, key := range keys {
		h := key.String()
		if tx.seen[h] {
			continue
		}
		tx.seen[h] = true
		tx.cache.Cancel(key)
		v, had := tx.cache.Get(key)
		tx.snapshots = append(tx.snapshots, snapshot{key: key, value: v, had: had})
	}
}

// Keys returns the tracked keys in the order they were added.
func (tx *Transaction) Keys() []querycache.Key {
	keys := make([]querycache.Key, len(tx.snapshots))
	for i, s := range tx.snapshots {
		keys[i] = s.key
	}
	return keys
}

// Apply rewrites a tracked key; see querycache.Cache.Update for fn.
func (tx *Transaction) Apply(key querycache.Key, fn func(old any, ok bool) (any, bool)) bool {
	tx.Track(key)
	return tx.cache.Update(key, fn)
}

// Patch is Apply for a typed value. Keys without a T are left alone.
func Patch[T any](tx *Transaction, key querycache.Key, fn func(T) T) bool {
	tx.Track(key)
	return querycache.UpdateData(tx.cache, key, fn)
}

// Commit discards the snapshots. The optimistic values stay until the
// dependent invalidations replace them.
func (tx *Transaction) Commit() {
	tx.finished = true
	tx.snapshots = nil
}

// Abort restores every snapshot. Keys that had no value before the
// transaction are removed again.
func (tx *Transaction) Abort() {
	if tx.finished {
		return
	}
	tx.finished = true
	for _, s := range tx.snapshots {
		tx.cache.Cancel(s.key)
		if s.had {
			tx.cache.Write(s.key, s.value)
		} else {
			tx.cache.Remove(s.key)
		}
	}
	tx.snapshots = nil
}
