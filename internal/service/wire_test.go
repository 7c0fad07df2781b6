package service

import (
	"context"
	"errors"
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sakif/snippethub/internal/api"
	"github.com/sakif/snippethub/internal/apitest"
	"github.com/sakif/snippethub/internal/apperror"
	"github.com/sakif/snippethub/internal/auth"
	"github.com/sakif/snippethub/internal/live"
	"github.com/sakif/snippethub/internal/model"
	"github.com/sakif/snippethub/internal/querycache"
)

// =========================================================================
// AGAINST A REAL BACKEND
// =========================================================================

type wired struct {
	srv      *apitest.Server
	client   *api.Client
	cache    *querycache.Cache
	auth     *AuthService
	snippets *SnippetService
	users    *UserService
}

func newWired(t *testing.T) *wired {
	t.Helper()
	w := &wired{srv: apitest.New(t), cache: newTestCache(t)}
	client, err := api.New(api.Options{
		BaseURL:        w.srv.URL(),
		OnUnauthorized: func(path string) { w.auth.HandleUnauthorized(path) },
	})
	require.NoError(t, err)

	session := auth.NewSession(nil, "", nil)
	w.client = client
	w.auth = NewAuthService(client, w.cache, session, nil)
	w.snippets = NewSnippetService(client, w.cache, session, nil)
	w.users = NewUserService(client, w.cache)
	return w
}

func TestWire_MarkRefetchesEveryDependentRead(t *testing.T) {
	w := newWired(t)
	ctx := context.Background()
	alice := w.srv.SeedUser("alice", "secret1")
	bob := w.srv.SeedUser("bob", "secret2")
	id := w.srv.SeedSnippet(bob.ID, "go", "package main")

	_, err := w.auth.Login(ctx, model.Credentials{Username: "alice", Password: "secret1"})
	require.NoError(t, err)

	observe(t, w.cache, SnippetKey(id), func(l querycache.Listener) func() { return w.snippets.Observe(id, l) })
	observe(t, w.cache, SnippetListKey(model.SnippetFilters{}), w.snippets.List(model.SnippetFilters{}).Observe)
	observe(t, w.cache, StatisticKey(bob.ID), func(l querycache.Listener) func() { return w.users.ObserveStatistic(bob.ID, l) })
	observe(t, w.cache, StatisticKey(alice.ID), func(l querycache.Listener) func() { return w.users.ObserveStatistic(alice.ID, l) })
	observe(t, w.cache, MeKey(), w.users.ObserveMe)
	w.srv.ResetCalls()

	require.NoError(t, w.snippets.Mark(ctx, id, 0, model.MarkLike))

	assert.Equal(t, 1, w.srv.Calls("POST /snippets/{id}/mark"))
	assert.Equal(t, 1, w.srv.Calls("GET /snippets/{id}"))
	assert.Equal(t, 1, w.srv.Calls("GET /snippets"))
	assert.Equal(t, 2, w.srv.Calls("GET /users/{id}/statistic"), "author and current user")
	assert.Equal(t, 1, w.srv.Calls("GET /me"))

	sn, ok := querycache.GetData[model.Snippet](w.cache, SnippetKey(id))
	require.True(t, ok)
	assert.Equal(t, 1, sn.Likes)
}

func TestWire_ExpiredSessionSignsOut(t *testing.T) {
	w := newWired(t)
	ctx := context.Background()
	w.srv.SeedUser("alice", "secret1")
	_, err := w.auth.Login(ctx, model.Credentials{Username: "alice", Password: "secret1"})
	require.NoError(t, err)
	require.NotEmpty(t, w.client.Cookies())

	w.srv.Fail("GET /me", http.StatusUnauthorized, "token expired")
	_, err = w.users.Me(ctx)

	assert.True(t, errors.Is(err, apperror.ErrUnauthorized))
	assert.False(t, w.auth.Session().State().SignedIn())
	assert.Empty(t, w.client.Cookies())
}

func (w *wired) comments(t *testing.T) *CommentService {
	t.Helper()
	hub := live.NewHub(func() live.Transport {
		return live.NewWebSocketTransport(live.WebSocketOptions{
			URL:        w.srv.WSURL(),
			Cookies:    w.client.Cookies,
			MinBackoff: 10 * time.Millisecond,
			MaxBackoff: 50 * time.Millisecond,
		})
	}, nil)
	return NewCommentService(hub, w.snippets, w.auth.Session(), nil)
}

func TestWire_CommentThread(t *testing.T) {
	w := newWired(t)
	ctx := context.Background()
	w.srv.SeedUser("alice", "secret1")
	bob := w.srv.SeedUser("bob", "secret2")
	id := w.srv.SeedSnippet(bob.ID, "go", "package main")
	w.srv.SeedComment(id, bob.ID, "first")
	_, err := w.auth.Login(ctx, model.Credentials{Username: "alice", Password: "secret1"})
	require.NoError(t, err)

	thread, err := w.comments(t).Open(ctx, id, nil)
	require.NoError(t, err)
	t.Cleanup(thread.Close)
	require.Len(t, thread.Comments(), 1)
	require.Eventually(t, func() bool { return thread.State() == live.StateJoined }, 2*time.Second, time.Millisecond)

	_, err = thread.Post(ctx, "hi bob")
	require.NoError(t, err)
	require.Eventually(t, func() bool {
		cs := thread.Comments()
		return len(cs) == 2 && !cs[1].Pending
	}, 2*time.Second, time.Millisecond)
	assert.Equal(t, "alice", thread.Comments()[1].Author.Username)

	// a comment the room never heard about is picked up after a reconnect
	w.srv.SeedComment(id, bob.ID, "while you were away")
	w.srv.DropLive()
	require.Eventually(t, func() bool { return len(thread.Comments()) == 3 }, 2*time.Second, time.Millisecond)
	assert.Equal(t, "while you were away", thread.Comments()[2].Body)

	observe(t, w.cache, SnippetKey(id), func(l querycache.Listener) func() { return w.snippets.Observe(id, l) })
	w.srv.ResetCalls()
	thread.Close()
	assert.Equal(t, 1, w.srv.Calls("GET /snippets/{id}"))
}

func TestWire_PostNeedsSession(t *testing.T) {
	w := newWired(t)
	ctx := context.Background()
	bob := w.srv.SeedUser("bob", "secret2")
	id := w.srv.SeedSnippet(bob.ID, "go", "package main")
	_, err := w.auth.Login(ctx, model.Credentials{Username: "bob", Password: "secret2"})
	require.NoError(t, err)

	thread, err := w.comments(t).Open(ctx, id, nil)
	require.NoError(t, err)
	t.Cleanup(thread.Close)
	require.NoError(t, w.auth.Logout(ctx))

	_, err = thread.Post(ctx, "anyone?")
	assert.True(t, errors.Is(err, apperror.ErrUnauthorized))
}
