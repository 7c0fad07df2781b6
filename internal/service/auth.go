package service

// AuthService owns the session lifecycle:
//
//	Restore → put the persisted cookies back into the client at startup
//	Login   → replace the session, drop every cached read of the old one
//	Logout  → tell the backend (best effort), then forget everything locally
//
// The cache is cleared whenever the user changes so no view ever shows one
// user's data to another.

import (
	"context"
	"log/slog"

	"github.com/sakif/snippethub/internal/api"
	"github.com/sakif/snippethub/internal/apperror"
	"github.com/sakif/snippethub/internal/auth"
	"github.com/sakif/snippethub/internal/model"
	"github.com/sakif/snippethub/internal/mutation"
	"github.com/sakif/snippethub/internal/querycache"
)

type AuthService struct {
	api     AuthAPI
	cache   *querycache.Cache
	session *auth.Session
	logger  *slog.Logger

	login          *mutation.Mutation[model.Credentials, model.User]
	updateUsername *mutation.Mutation[string, model.User]
	updatePassword *mutation.Mutation[model.PasswordChange, struct{}]
	deleteAccount  *mutation.Mutation[struct{}, struct{}]
}

func NewAuthService(client AuthAPI, cache *querycache.Cache, session *auth.Session, logger *slog.Logger) *AuthService {
	s := &AuthService{api: client, cache: cache, session: session, logger: orDiscard(logger)}

	s.login = mutation.New(cache, s.logger, mutation.Definition[model.Credentials, model.User]{
		Name: "login",
		Do: func(ctx context.Context, creds model.Credentials) (model.User, error) {
			return s.api.Login(ctx, creds)
		},
		OnSuccess: func(ctx context.Context, _ model.Credentials, user model.User) {
			s.cache.Clear()
			s.saveSession(ctx, user)
			querycache.SetData(s.cache, MeKey(), user)
		},
	})

	s.updateUsername = mutation.New(cache, s.logger, mutation.Definition[string, model.User]{
		Name: "update username",
		Do: func(ctx context.Context, username string) (model.User, error) {
			return s.api.UpdateUsername(ctx, username)
		},
		OnSuccess: func(ctx context.Context, _ string, user model.User) {
			s.saveSession(ctx, user)
		},
		Invalidate: func(string, model.User) []querycache.Key {
			return []querycache.Key{MeKey(), UsersKey()}
		},
	})

	s.updatePassword = mutation.New(cache, s.logger, mutation.Definition[model.PasswordChange, struct{}]{
		Name: "update password",
		Do: func(ctx context.Context, in model.PasswordChange) (struct{}, error) {
			return struct{}{}, s.api.UpdatePassword(ctx, in)
		},
		Invalidate: func(model.PasswordChange, struct{}) []querycache.Key {
			return []querycache.Key{MeKey()}
		},
	})

	s.deleteAccount = mutation.New(cache, s.logger, mutation.Definition[struct{}, struct{}]{
		Name: "delete account",
		Do: func(ctx context.Context, _ struct{}) (struct{}, error) {
			return struct{}{}, s.api.DeleteAccount(ctx)
		},
		OnSuccess: func(ctx context.Context, _ struct{}, _ struct{}) {
			s.forgetLogged(ctx)
		},
	})

	return s
}

// Session returns the session cell this service writes.
func (s *AuthService) Session() *auth.Session {
	return s.session
}

// Restore brings back the session persisted by an earlier run. It reports
// the restored user, if any.
func (s *AuthService) Restore(ctx context.Context) (model.User, bool, error) {
	cookies, err := s.session.Restore(ctx)
	if err != nil {
		return model.User{}, false, err
	}
	if len(cookies) > 0 {
		s.api.SetCookies(cookies)
	}
	user, ok := s.session.User()
	return user, ok, nil
}

func validateCredentials(creds model.Credentials) error {
	if err := required("username", creds.Username, "username must not be empty"); err != nil {
		return err
	}
	if creds.Password == "" {
		return apperror.ValidationFailed("password", "password must not be empty")
	}
	return nil
}

func (s *AuthService) Login(ctx context.Context, creds model.Credentials) (model.User, error) {
	if err := validateCredentials(creds); err != nil {
		return model.User{}, err
	}
	user, err := s.login.Run(ctx, creds)
	if err != nil {
		return model.User{}, err
	}
	s.logger.Info("signed in", slog.Int64("user_id", user.ID), slog.String("username", user.Username))
	return user, nil
}

// Logout signs out. A failing backend logout is logged and otherwise
// ignored: the local session is cleared either way.
func (s *AuthService) Logout(ctx context.Context) error {
	if err := s.api.Logout(ctx); err != nil {
		s.logger.Warn("backend logout failed", slog.String("error", err.Error()))
	}
	return s.forget(ctx)
}

// Register creates an account without signing in.
func (s *AuthService) Register(ctx context.Context, creds model.Credentials) error {
	if err := validateCredentials(creds); err != nil {
		return err
	}
	if err := s.api.Register(ctx, creds); err != nil {
		return err
	}
	s.logger.Info("account registered", slog.String("username", creds.Username))
	return nil
}

// HandleUnauthorized is the api.Client hook for a 401 on an authenticated
// call: the session is gone server-side, so it is dropped here too. The
// cache is left alone because the failing fetch is still running inside it.
func (s *AuthService) HandleUnauthorized(returnPath string) {
	s.api.ClearCookies()
	if err := s.session.Clear(context.Background()); err != nil {
		s.logger.Warn("failed to clear session", slog.String("error", err.Error()))
	}
	s.logger.Info("session expired, sign in again", slog.String("login", api.LoginURL(returnPath)))
}

// saveSession replaces the session user and persists the current cookies.
// A persistence failure only costs the next run its session, so it is
// logged rather than returned.
func (s *AuthService) saveSession(ctx context.Context, user model.User) {
	if err := s.session.Save(ctx, user, s.api.Cookies()); err != nil {
		s.logger.Warn("failed to persist session", slog.String("error", err.Error()))
	}
}

func (s *AuthService) forget(ctx context.Context) error {
	s.api.ClearCookies()
	s.cache.Clear()
	return s.session.Clear(ctx)
}
