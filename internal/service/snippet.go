package service

import (
	"context"
	"log/slog"
	"time"

	"github.com/sakif/snippethub/internal/apperror"
	"github.com/sakif/snippethub/internal/auth"
	"github.com/sakif/snippethub/internal/model"
	"github.com/sakif/snippethub/internal/mutation"
	"github.com/sakif/snippethub/internal/querycache"
)

// LanguagesStaleTime is how long the language list is served from cache.
// It changes with backend deployments, not with user activity.
const LanguagesStaleTime = 5 * time.Minute

// SnippetService reads and writes snippets through the cache.
type SnippetService struct {
	api     SnippetAPI
	cache   *querycache.Cache
	session *auth.Session
	logger  *slog.Logger

	create *mutation.Mutation[model.SnippetInput, model.Snippet]
	update *mutation.Mutation[snippetEdit, int64]
	remove *mutation.Mutation[int64, model.Snippet]
	mark   *mutation.Mutation[markVars, struct{}]
}

type snippetEdit struct {
	id int64
	in model.SnippetInput
}

type markVars struct {
	id       int64
	authorID int64 // 0 when unknown
	kind     model.MarkKind
}

// NewSnippetService wires the snippet mutations to cache. session supplies
// the current user for statistic invalidation and may be nil.
func NewSnippetService(client SnippetAPI, cache *querycache.Cache, session *auth.Session, logger *slog.Logger) *SnippetService {
	s := &SnippetService{api: client, cache: cache, session: session, logger: orDiscard(logger)}

	s.create = mutation.New(cache, s.logger, mutation.Definition[model.SnippetInput, model.Snippet]{
		Name: "create snippet",
		Do: func(ctx context.Context, in model.SnippetInput) (model.Snippet, error) {
			return s.api.CreateSnippet(ctx, in)
		},
		OnSuccess: func(_ context.Context, _ model.SnippetInput, created model.Snippet) {
			querycache.SetData(s.cache, SnippetKey(created.ID), created)
		},
		Invalidate: func(model.SnippetInput, model.Snippet) []querycache.Key {
			return s.withMe(SnippetListsKey())
		},
	})

	s.update = mutation.New(cache, s.logger, mutation.Definition[snippetEdit, int64]{
		Name: "update snippet",
		Do: func(ctx context.Context, v snippetEdit) (int64, error) {
			return s.api.UpdateSnippet(ctx, v.id, v.in)
		},
		Invalidate: func(v snippetEdit, _ int64) []querycache.Key {
			return []querycache.Key{SnippetKey(v.id), SnippetListsKey()}
		},
	})

	s.remove = mutation.New(cache, s.logger, mutation.Definition[int64, model.Snippet]{
		Name: "delete snippet",
		Do: func(ctx context.Context, id int64) (model.Snippet, error) {
			return s.api.DeleteSnippet(ctx, id)
		},
		OnSuccess: func(_ context.Context, id int64, _ model.Snippet) {
			s.cache.Remove(SnippetKey(id))
		},
		Invalidate: func(int64, model.Snippet) []querycache.Key {
			keys := []querycache.Key{SnippetListsKey()}
			if me := meID(s.session); me != 0 {
				keys = append(keys, StatisticKey(me))
			}
			return keys
		},
	})

	s.mark = mutation.New(cache, s.logger, mutation.Definition[markVars, struct{}]{
		Name: "mark snippet",
		Do: func(ctx context.Context, v markVars) (struct{}, error) {
			return struct{}{}, s.api.MarkSnippet(ctx, v.id, v.kind)
		},
		Optimistic: s.patchMark,
		Invalidate: func(v markVars, _ struct{}) []querycache.Key {
			keys := []querycache.Key{SnippetKey(v.id), SnippetListsKey()}
			if v.authorID != 0 {
				keys = append(keys, StatisticKey(v.authorID))
			}
			return s.withMe(keys...)
		},
	})

	return s
}

// withMe appends the signed-in user's statistic and profile to keys.
func (s *SnippetService) withMe(keys ...querycache.Key) []querycache.Key {
	if me := meID(s.session); me != 0 {
		keys = append(keys, StatisticKey(me))
	}
	return append(keys, MeKey())
}

// =========================================================================
// READS
// =========================================================================

// List returns the paginated list for f. Lists share their cache entry, so
// two views of the same filters see the same pages.
func (s *SnippetService) List(f model.SnippetFilters) *querycache.Infinite[model.Snippet] {
	return querycache.NewInfinite(s.cache, SnippetListKey(f), func(ctx context.Context, page int) (model.Page[model.Snippet], error) {
		return s.api.ListSnippets(ctx, page, f)
	})
}

func (s *SnippetService) Get(ctx context.Context, id int64) (model.Snippet, error) {
	return querycache.Query(ctx, s.cache, SnippetKey(id), s.fetchSnippet(id))
}

// Observe subscribes to one snippet, fetching it when needed.
func (s *SnippetService) Observe(id int64, listener querycache.Listener) (stop func()) {
	return s.cache.Observe(SnippetKey(id), querycache.Typed(s.fetchSnippet(id)), listener)
}

// Refetch invalidates one snippet and waits for the new value.
func (s *SnippetService) Refetch(ctx context.Context, id int64) (model.Snippet, error) {
	if err := s.cache.Invalidate(ctx, SnippetKey(id)); err != nil {
		return model.Snippet{}, err
	}
	return s.Get(ctx, id)
}

func (s *SnippetService) fetchSnippet(id int64) func(context.Context) (model.Snippet, error) {
	return func(ctx context.Context) (model.Snippet, error) {
		return s.api.GetSnippet(ctx, id)
	}
}

// Languages lists the selectable languages. The list is cached for
// LanguagesStaleTime and retried once on failure.
func (s *SnippetService) Languages(ctx context.Context) ([]string, error) {
	return querycache.Query(ctx, s.cache, LanguagesKey(), s.api.Languages,
		querycache.WithStaleTime(LanguagesStaleTime),
		querycache.WithRetry(1),
	)
}

// =========================================================================
// WRITES
// =========================================================================

func validateSnippet(in model.SnippetInput) error {
	if err := required("code", in.Code, "code must not be empty"); err != nil {
		return err
	}
	return required("language", in.Language, "language must not be empty")
}

func (s *SnippetService) Create(ctx context.Context, in model.SnippetInput) (model.Snippet, error) {
	if err := validateSnippet(in); err != nil {
		return model.Snippet{}, err
	}
	created, err := s.create.Run(ctx, in)
	if err != nil {
		return model.Snippet{}, err
	}
	s.logger.Info("snippet created", slog.Int64("id", created.ID), slog.String("language", created.Language))
	return created, nil
}

func (s *SnippetService) Update(ctx context.Context, id int64, in model.SnippetInput) error {
	if err := validateSnippet(in); err != nil {
		return err
	}
	if _, err := s.update.Run(ctx, snippetEdit{id: id, in: in}); err != nil {
		return err
	}
	s.logger.Info("snippet updated", slog.Int64("id", id))
	return nil
}

func (s *SnippetService) Delete(ctx context.Context, id int64) error {
	if _, err := s.remove.Run(ctx, id); err != nil {
		return err
	}
	s.logger.Info("snippet deleted", slog.Int64("id", id))
	return nil
}

// Mark likes or dislikes a snippet. The counters of every cached copy of the
// snippet move immediately and move back if the backend rejects the mark.
// On success the snippet, the snippet lists, the author's statistic and the
// signed-in user's statistic and profile are refetched.
//
// authorID names the snippet's author. Zero means look it up in the cache;
// if the snippet is not cached either, the author's statistic is left alone.
func (s *SnippetService) Mark(ctx context.Context, id, authorID int64, kind model.MarkKind) error {
	if !kind.Valid() {
		return apperror.ValidationFailed("mark", `mark must be "like" or "dislike"`)
	}
	if authorID == 0 {
		authorID = s.authorOf(id)
	}
	_, err := s.mark.Run(ctx, markVars{id: id, authorID: authorID, kind: kind})
	return err
}

// MarkState reports the state of the most recent Mark call.
func (s *SnippetService) MarkState() mutation.State {
	return s.mark.State()
}

func (s *SnippetService) patchMark(tx *mutation.Transaction, v markVars) {
	mutation.Patch(tx, SnippetKey(v.id), func(sn model.Snippet) model.Snippet {
		return sn.WithMark(v.kind)
	})
	for _, key := range s.cache.Keys(SnippetListsKey()) {
		mutation.Patch(tx, key, func(pages querycache.Pages[model.Snippet]) querycache.Pages[model.Snippet] {
			return pages.Map(func(sn model.Snippet) model.Snippet {
				if sn.ID != v.id {
					return sn
				}
				return sn.WithMark(v.kind)
			})
		})
	}
}

// authorOf looks the snippet's author up in the cache: the detail entry
// first, then any loaded list page.
func (s *SnippetService) authorOf(id int64) int64 {
	if sn, ok := querycache.GetData[model.Snippet](s.cache, SnippetKey(id)); ok {
		return sn.Author.ID
	}
	for _, key := range s.cache.Keys(SnippetListsKey()) {
		pages, ok := querycache.GetData[querycache.Pages[model.Snippet]](s.cache, key)
		if !ok {
			continue
		}
		for _, sn := range pages.Items() {
			if sn.ID == id {
				return sn.Author.ID
			}
		}
	}
	return 0
}
