package querycache

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sakif/snippethub/internal/model"
)

// pageServer serves numbered items, pageSize per page. Pages with a gate
// block until the gate is closed.
type pageServer struct {
	mu         sync.Mutex
	requested  []int
	gates      map[int]chan struct{}
	pageSize   int
	totalPages int
}

func newPageServer(totalPages int) *pageServer {
	return &pageServer{gates: make(map[int]chan struct{}), pageSize: 20, totalPages: totalPages}
}

func (s *pageServer) gate(page int) chan struct{} {
	s.mu.Lock()
	defer s.mu.Unlock()
	g := make(chan struct{})
	s.gates[page] = g
	return g
}

func (s *pageServer) fetch(ctx context.Context, page int) (model.Page[int], error) {
	s.mu.Lock()
	s.requested = append(s.requested, page)
	g := s.gates[page]
	s.mu.Unlock()

	if g != nil {
		select {
		case <-g:
		case <-ctx.Done():
			return model.Page[int]{}, ctx.Err()
		}
	}

	items := make([]int, s.pageSize)
	for i := range items {
		items[i] = (page-1)*s.pageSize + i + 1
	}
	p := model.Page[int]{
		Items:    items,
		Page:     page,
		PageSize: s.pageSize,
		Total:    s.pageSize * s.totalPages,
		HasMore:  page < s.totalPages,
	}
	if p.HasMore {
		p.NextPage = page + 1
	}
	return p, nil
}

func (s *pageServer) requests() []int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]int(nil), s.requested...)
}

func seq(from, to int) []int {
	out := make([]int, 0, to-from+1)
	for i := from; i <= to; i++ {
		out = append(out, i)
	}
	return out
}

func TestPages_WithOrdersByPageNumber(t *testing.T) {
	srv := newPageServer(2)
	p1, _ := srv.fetch(context.Background(), 1)
	p2, _ := srv.fetch(context.Background(), 2)

	// page 2 arrives first
	pages := Pages[int]{}.With(p2).With(p1)

	assert.Equal(t, seq(1, 40), pages.Items())
	assert.False(t, pages.HasMore())
}

func TestPages_WithReplacesSamePage(t *testing.T) {
	pages := Pages[int]{}.
		With(model.Page[int]{Page: 1, Items: []int{1, 2}, HasMore: true, NextPage: 2}).
		With(model.Page[int]{Page: 1, Items: []int{9}, HasMore: true, NextPage: 2})

	require.Len(t, pages.Pages, 1)
	assert.Equal(t, []int{9}, pages.Items())
	assert.Equal(t, 2, pages.NextPage())
}

func TestInfinite_FetchThenNextPage(t *testing.T) {
	c := newTestCache(t, Options{})
	srv := newPageServer(2)
	list := NewInfinite(c, K("snippets", "infinite", model.SnippetFilters{Limit: 20}), srv.fetch)

	first, err := list.Fetch(context.Background())
	require.NoError(t, err)
	assert.Equal(t, seq(1, 20), first.Items())

	all, err := list.FetchNextPage(context.Background())
	require.NoError(t, err)
	assert.Equal(t, seq(1, 40), all.Items())
	assert.Equal(t, []int{1, 2}, srv.requests())

	// last page reached: no further request
	again, err := list.FetchNextPage(context.Background())
	require.NoError(t, err)
	assert.Len(t, again.Items(), 40)
	assert.Equal(t, []int{1, 2}, srv.requests())
}

func TestInfinite_NextPageWaitsForFirstPage(t *testing.T) {
	c := newTestCache(t, Options{})
	srv := newPageServer(3)
	release := srv.gate(1)
	list := NewInfinite(c, K("snippets", "infinite"), srv.fetch)

	firstDone := make(chan Pages[int], 1)
	go func() {
		p, _ := list.Fetch(context.Background())
		firstDone <- p
	}()
	require.Eventually(t, func() bool { return len(srv.requests()) == 1 }, time.Second, time.Millisecond)

	nextDone := make(chan Pages[int], 1)
	go func() {
		p, _ := list.FetchNextPage(context.Background())
		nextDone <- p
	}()

	require.Never(t, func() bool { return len(srv.requests()) > 1 }, 30*time.Millisecond, 5*time.Millisecond,
		"page 2 must not be requested before page 1 resolves")

	close(release)
	<-firstDone
	<-nextDone

	pages, err := list.FetchNextPage(context.Background())
	require.NoError(t, err)
	assert.Equal(t, seq(1, 40), pages.Items())
	assert.Equal(t, []int{1, 2}, srv.requests())
}

func TestInfinite_NextPageIsNoopWhileInflight(t *testing.T) {
	c := newTestCache(t, Options{})
	srv := newPageServer(3)
	list := NewInfinite(c, K("questions", "infinite"), srv.fetch)

	_, err := list.Fetch(context.Background())
	require.NoError(t, err)

	release := srv.gate(2)
	done := make(chan Pages[int], 1)
	go func() {
		p, _ := list.FetchNextPage(context.Background())
		done <- p
	}()
	require.Eventually(t, func() bool { return len(srv.requests()) == 2 }, time.Second, time.Millisecond)

	same, err := list.FetchNextPage(context.Background())
	require.NoError(t, err)
	assert.Equal(t, seq(1, 20), same.Items())
	assert.Equal(t, []int{1, 2}, srv.requests())

	close(release)
	assert.Equal(t, seq(1, 40), (<-done).Items())
}

func TestInfinite_InvalidateReloadsLoadedPagesInOrder(t *testing.T) {
	c := newTestCache(t, Options{})
	srv := newPageServer(3)
	key := K("snippets", "infinite", model.SnippetFilters{Limit: 20})
	list := NewInfinite(c, key, srv.fetch)

	stop := list.Observe(func(Snapshot) {})
	defer stop()
	require.Eventually(t, func() bool { _, ok := list.Data(); return ok }, time.Second, time.Millisecond)
	_, err := list.FetchNextPage(context.Background())
	require.NoError(t, err)

	require.NoError(t, c.Invalidate(context.Background(), K("snippets")))

	assert.Equal(t, []int{1, 2, 1, 2}, srv.requests())
	pages, _ := list.Data()
	assert.Equal(t, seq(1, 40), pages.Items())
}

func TestPages_Map(t *testing.T) {
	pages := Pages[int]{}.With(model.Page[int]{Page: 1, Items: []int{1, 2}})

	doubled := pages.Map(func(n int) int { return n * 2 })

	assert.Equal(t, []int{2, 4}, doubled.Items())
	assert.Equal(t, []int{1, 2}, pages.Items())
}
