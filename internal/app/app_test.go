package app

import (
	"context"
	"net/http"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sakif/snippethub/internal/apitest"
	"github.com/sakif/snippethub/internal/config"
	"github.com/sakif/snippethub/internal/model"
)

func testConfig(srv *apitest.Server, dbPath string) *config.Config {
	return &config.Config{
		APIURL:     srv.URL(),
		WSURL:      srv.WSURL(),
		WSEnabled:  true,
		DBPath:     dbPath,
		LogLevel:   "debug",
		AuthCookie: "token",
	}
}

func newApp(t *testing.T, cfg *config.Config) *App {
	t.Helper()
	a, err := New(cfg, nil)
	require.NoError(t, err)
	t.Cleanup(func() { a.Close() })
	return a
}

func TestApp_SessionSurvivesRestart(t *testing.T) {
	srv := apitest.New(t)
	srv.SeedUser("alice", "secret1")
	cfg := testConfig(srv, filepath.Join(t.TempDir(), "nested", "snippethub.db"))
	ctx := context.Background()

	first, err := New(cfg, nil)
	require.NoError(t, err)
	_, err = first.Auth.Login(ctx, model.Credentials{Username: "alice", Password: "secret1"})
	require.NoError(t, err)
	require.NoError(t, first.Close())

	second := newApp(t, cfg)
	user, ok, err := second.Restore(ctx)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "alice", user.Username)

	me, err := second.Users.Me(ctx)
	require.NoError(t, err)
	assert.Equal(t, user.ID, me.ID)
}

func TestApp_UnauthorizedClearsSession(t *testing.T) {
	srv := apitest.New(t)
	srv.SeedUser("alice", "secret1")
	a := newApp(t, testConfig(srv, ":memory:"))
	ctx := context.Background()

	_, err := a.Auth.Login(ctx, model.Credentials{Username: "alice", Password: "secret1"})
	require.NoError(t, err)

	srv.Fail("GET /me", http.StatusUnauthorized, "token expired")
	_, err = a.Users.Me(ctx)
	require.Error(t, err)

	assert.False(t, a.Auth.Session().State().SignedIn())
	_, ok, err := a.Restore(ctx)
	require.NoError(t, err)
	assert.False(t, ok, "the persisted session is gone too")
}

func TestApp_LiveDisabled(t *testing.T) {
	srv := apitest.New(t)
	cfg := testConfig(srv, ":memory:")
	cfg.WSEnabled = false

	a := newApp(t, cfg)

	assert.Nil(t, a.Comments)
}

func TestApp_CommentThread(t *testing.T) {
	srv := apitest.New(t)
	alice := srv.SeedUser("alice", "secret1")
	id := srv.SeedSnippet(alice.ID, "go", "package main")
	a := newApp(t, testConfig(srv, ":memory:"))
	ctx := context.Background()
	_, err := a.Auth.Login(ctx, model.Credentials{Username: "alice", Password: "secret1"})
	require.NoError(t, err)

	thread, err := a.Comments.Open(ctx, id, nil)
	require.NoError(t, err)
	defer thread.Close()

	require.Eventually(t, func() bool { return srv.LiveMembers(apitest.RoomID(id)) == 1 }, 3*time.Second, 5*time.Millisecond)
}
