// Package app is the composition root: it builds every component from the
// configuration and hands them out as one value.
//
// DEPENDENCY FLOW:
//
//	config ─▶ sqlite.DB ─▶ auth.Session
//	       ─▶ api.Client (401 hook ─▶ AuthService.HandleUnauthorized)
//	       ─▶ querycache.Cache
//	       ─▶ services (snippets, questions, users, auth)
//	       ─▶ live.Hub (websocket transport, cookies from api.Client)
//	       ─▶ CommentService
//
// LIFECYCLE:
// New wires everything without touching the network. Restore puts the
// session of the previous run back. Close clears the cache, closes the
// live channel of any open thread and the database. Nothing here is a
// package-level singleton, so tests build as many Apps as they like.
package app

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/sakif/snippethub/internal/api"
	"github.com/sakif/snippethub/internal/auth"
	"github.com/sakif/snippethub/internal/config"
	"github.com/sakif/snippethub/internal/live"
	"github.com/sakif/snippethub/internal/model"
	"github.com/sakif/snippethub/internal/querycache"
	sqliteRepo "github.com/sakif/snippethub/internal/repository/sqlite"
	"github.com/sakif/snippethub/internal/service"
)

type App struct {
	Config *config.Config
	Logger *slog.Logger

	Client *api.Client
	Cache  *querycache.Cache

	Snippets  *service.SnippetService
	Questions *service.QuestionService
	Users     *service.UserService
	Auth      *service.AuthService
	// Comments is nil when the live channel is disabled.
	Comments *service.CommentService

	db *sqliteRepo.DB
}

// New builds the application. The caller must Close it.
func New(cfg *config.Config, logger *slog.Logger) (*App, error) {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}

	// === DATABASE ===
	if err := cfg.EnsureDir(); err != nil {
		return nil, fmt.Errorf("app: %w", err)
	}
	db, err := sqliteRepo.New(cfg.DBPath)
	if err != nil {
		return nil, fmt.Errorf("app: opening database: %w", err)
	}

	a := &App{Config: cfg, Logger: logger, db: db}
	session := auth.NewSession(db, cfg.AuthCookie, logger)

	// === API CLIENT ===
	// The hook runs only after a.Auth is set: no request is made before New
	// returns.
	client, err := api.New(api.Options{
		BaseURL: cfg.APIURL,
		Logger:  logger,
		OnUnauthorized: func(returnPath string) {
			a.Auth.HandleUnauthorized(returnPath)
		},
	})
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("app: %w", err)
	}
	a.Client = client

	// === CACHE + SERVICES ===
	opts := querycache.DefaultOptions()
	opts.StaleTime = cfg.StaleTime
	a.Cache = querycache.New(opts, logger)

	a.Snippets = service.NewSnippetService(client, a.Cache, session, logger)
	a.Questions = service.NewQuestionService(client, a.Cache, logger)
	a.Users = service.NewUserService(client, a.Cache)
	a.Auth = service.NewAuthService(client, a.Cache, session, logger)

	// === LIVE CHANNEL ===
	if cfg.WSEnabled {
		hub := live.NewHub(func() live.Transport {
			return live.NewWebSocketTransport(live.WebSocketOptions{
				URL:     cfg.WSURL,
				Cookies: client.Cookies,
				Logger:  logger,
			})
		}, logger)
		a.Comments = service.NewCommentService(hub, a.Snippets, session, logger)
	}

	return a, nil
}

// Restore brings back the session saved by an earlier run.
func (a *App) Restore(ctx context.Context) (model.User, bool, error) {
	return a.Auth.Restore(ctx)
}

// Close clears the cache and closes the database.
func (a *App) Close() error {
	a.Cache.Clear()
	if err := a.db.Close(); err != nil {
		return fmt.Errorf("app: closing database: %w", err)
	}
	return nil
}
