package querycache

import (
	"context"
	"sort"

	"github.com/sakif/snippethub/internal/model"
)

// Pages is the value stored under an infinite key: every loaded page, kept
// sorted by page number.
type Pages[T any] struct {
	Pages []model.Page[T]
}

// Items flattens the loaded pages in page order.
func (p Pages[T]) Items() []T {
	n := 0
	for _, pg := range p.Pages {
		n += len(pg.Items)
	}
	items := make([]T, 0, n)
	for _, pg := range p.Pages {
		items = append(items, pg.Items...)
	}
	return items
}

// HasMore reports whether the last loaded page announces another one.
func (p Pages[T]) HasMore() bool {
	if len(p.Pages) == 0 {
		return true
	}
	return p.Pages[len(p.Pages)-1].HasMore
}

// NextPage is the page number FetchNextPage would load.
func (p Pages[T]) NextPage() int {
	if len(p.Pages) == 0 {
		return 1
	}
	last := p.Pages[len(p.Pages)-1]
	if last.NextPage > 0 {
		return last.NextPage
	}
	return last.Page + 1
}

// With returns a copy of p that includes pg. A page with the same number
// replaces the old one; otherwise pg is inserted at its sorted position, so
// the arrival order of responses never affects Items.
func (p Pages[T]) With(pg model.Page[T]) Pages[T] {
	out := make([]model.Page[T], 0, len(p.Pages)+1)
	replaced := false
	for _, existing := range p.Pages {
		if existing.Page == pg.Page {
			out = append(out, pg)
			replaced = true
			continue
		}
		out = append(out, existing)
	}
	if !replaced {
		out = append(out, pg)
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Page < out[j].Page })
	return Pages[T]{Pages: out}
}

// Map returns a copy of p with fn applied to every item. Optimistic patches
// of list views go through it.
func (p Pages[T]) Map(fn func(T) T) Pages[T] {
	out := make([]model.Page[T], len(p.Pages))
	for i, pg := range p.Pages {
		items := make([]T, len(pg.Items))
		for j, it := range pg.Items {
			items[j] = fn(it)
		}
		pg.Items = items
		out[i] = pg
	}
	return Pages[T]{Pages: out}
}

// PageFetcher loads one page of a list.
type PageFetcher[T any] func(ctx context.Context, page int) (model.Page[T], error)

// Infinite accumulates the pages of one list key. Any number of Infinite
// values may exist for the same key; they share the cache entry and
// therefore its single in-flight call.
type Infinite[T any] struct {
	cache *Cache
	key   Key
	fetch PageFetcher[T]
	opts  []QueryOption
}

// NewInfinite binds a page fetcher to key.
func NewInfinite[T any](c *Cache, key Key, fetch PageFetcher[T], opts ...QueryOption) *Infinite[T] {
	return &Infinite[T]{cache: c, key: key, fetch: fetch, opts: opts}
}

func (in *Infinite[T]) Key() Key { return in.key }

// Fetch loads the first page, or reloads every loaded page when the entry
// is stale.
func (in *Infinite[T]) Fetch(ctx context.Context) (Pages[T], error) {
	return Query(ctx, in.cache, in.key, in.reload, in.opts...)
}

// Observe subscribes to the accumulated pages.
func (in *Infinite[T]) Observe(listener Listener) (stop func()) {
	return in.cache.Observe(in.key, Typed(in.reload), listener, in.opts...)
}

// Data returns the pages loaded so far.
func (in *Infinite[T]) Data() (Pages[T], bool) {
	return GetData[Pages[T]](in.cache, in.key)
}

// FetchNextPage appends the next page. It is a no-op when the last page has
// no successor or when any fetch for the key is in flight. Without loaded
// data it behaves like Fetch.
func (in *Infinite[T]) FetchNextPage(ctx context.Context) (Pages[T], error) {
	cur, ok := in.Data()
	if !ok {
		return in.Fetch(ctx)
	}
	if !cur.HasMore() {
		return cur, nil
	}

	v, err := in.cache.extend(ctx, in.key, func(ctx context.Context) (any, error) {
		prev, _ := GetData[Pages[T]](in.cache, in.key)
		if !prev.HasMore() {
			return prev, nil
		}
		pg, err := in.fetch(ctx, prev.NextPage())
		if err != nil {
			return nil, err
		}
		return prev.With(pg), nil
	})
	if err != nil {
		return Pages[T]{}, err
	}
	pages, _ := v.(Pages[T])
	return pages, nil
}

// reload fetches pages sequentially from page 1, as many as were loaded
// before, stopping early when the list got shorter.
func (in *Infinite[T]) reload(ctx context.Context) (Pages[T], error) {
	prev, _ := GetData[Pages[T]](in.cache, in.key)
	want := len(prev.Pages)
	if want == 0 {
		want = 1
	}

	var out Pages[T]
	page := 1
	for i := 0; i < want; i++ {
		pg, err := in.fetch(ctx, page)
		if err != nil {
			return Pages[T]{}, err
		}
		out = out.With(pg)
		if !pg.HasMore {
			break
		}
		page = out.NextPage()
	}
	return out, nil
}
