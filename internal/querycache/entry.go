package querycache

import (
	"context"
	"sync"
	"time"
)

// Status is the lifecycle state of an entry.
type Status int

const (
	StatusPending Status = iota
	StatusSuccess
	StatusError
)

func (s Status) String() string {
	switch s {
	case StatusSuccess:
		return "success"
	case StatusError:
		return "error"
	default:
		return "pending"
	}
}

// Snapshot is a read-only copy of an entry at one point in time.
//
// Value may be set together with StatusError: a failed refetch keeps the
// previous value so callers can keep showing it.
type Snapshot struct {
	Key       Key
	Status    Status
	Value     any
	Err       error
	FetchedAt time.Time
	Fetching  bool
	Stale     bool
}

type entry struct {
	key  Key
	hash string

	status      Status
	value       any
	hasValue    bool
	err         error
	fetchedAt   time.Time
	staleAfter  time.Time
	invalidated bool

	fetch     FetchFunc
	staleTime time.Duration
	retry     int

	inflight  *call
	observers map[int]Listener
	gcTimer   *time.Timer
}

// stale reports whether a read of e must go to the network.
func (e *entry) stale(now time.Time) bool {
	return e.invalidated || e.status != StatusSuccess || !now.Before(e.staleAfter)
}

func (e *entry) snapshot(now time.Time) Snapshot {
	return Snapshot{
		Key:       e.key,
		Status:    e.status,
		Value:     e.value,
		Err:       e.err,
		FetchedAt: e.fetchedAt,
		Fetching:  e.inflight != nil,
		Stale:     e.stale(now),
	}
}

func (e *entry) listeners() []Listener {
	if len(e.observers) == 0 {
		return nil
	}
	ls := make([]Listener, 0, len(e.observers))
	for _, l := range e.observers {
		ls = append(ls, l)
	}
	return ls
}

func (e *entry) stopGC() {
	if e.gcTimer != nil {
		e.gcTimer.Stop()
		e.gcTimer = nil
	}
}

// call is one in-flight execution of a fetch function.
type call struct {
	done      chan struct{}
	closeOnce sync.Once
	cancel    context.CancelFunc

	// Guarded by Cache.mu.
	waiters   int
	value     any
	err       error
	cancelled bool
	next      *call
}

func (cl *call) close() {
	cl.closeOnce.Do(func() { close(cl.done) })
}
