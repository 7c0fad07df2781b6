// Package service binds the resource clients to the request cache. It is the
// layer the CLI talks to.
//
// READS AND WRITES:
// Every read goes through the cache under a key from keys.go, so two callers
// asking for the same thing share one network call and see the same value.
// Every write is a mutation.Mutation with three parts:
//
//	Optimistic → patch the cached values the user is looking at right now
//	Do         → the network call
//	Invalidate → the keys whose server-side value the write changed
//
// A failed write rolls its patch back and returns the client's error as is.
// A successful one refetches every dependent key that is being observed.
//
// DEPENDENCIES:
// The services take the narrow interfaces below instead of *api.Client, so
// tests can hand them a fake backend that fails or blocks on demand.
package service

import (
	"context"
	"log/slog"
	"net/http"
	"strings"

	"github.com/sakif/snippethub/internal/api"
	"github.com/sakif/snippethub/internal/apperror"
	"github.com/sakif/snippethub/internal/auth"
	"github.com/sakif/snippethub/internal/model"
)

type SnippetAPI interface {
	ListSnippets(ctx context.Context, page int, f model.SnippetFilters) (model.Page[model.Snippet], error)
	GetSnippet(ctx context.Context, id int64) (model.Snippet, error)
	CreateSnippet(ctx context.Context, in model.SnippetInput) (model.Snippet, error)
	UpdateSnippet(ctx context.Context, id int64, in model.SnippetInput) (int64, error)
	DeleteSnippet(ctx context.Context, id int64) (model.Snippet, error)
	MarkSnippet(ctx context.Context, id int64, kind model.MarkKind) error
	Languages(ctx context.Context) ([]string, error)
}

type QuestionAPI interface {
	ListQuestions(ctx context.Context, page int, f model.QuestionFilters) (model.Page[model.Question], error)
	GetQuestion(ctx context.Context, id int64) (model.Question, error)
	CreateQuestion(ctx context.Context, in model.QuestionInput) (model.Question, error)
	UpdateQuestion(ctx context.Context, id int64, in model.QuestionInput) (int64, error)
	DeleteQuestion(ctx context.Context, id int64) error
	CreateAnswer(ctx context.Context, in model.AnswerInput) (model.Answer, error)
	SetAnswerState(ctx context.Context, answerID int64, correct bool) error
}

type UserAPI interface {
	ListUsers(ctx context.Context, page int, f model.UserFilters) (model.Page[model.User], error)
	GetUser(ctx context.Context, id int64) (model.User, error)
	UserStatistic(ctx context.Context, id int64) (model.UserStatistic, error)
	Me(ctx context.Context) (model.User, error)
}

// AuthAPI covers sign-in, the account endpoints and the cookie jar that
// carries the session between them.
type AuthAPI interface {
	Login(ctx context.Context, creds model.Credentials) (model.User, error)
	Logout(ctx context.Context) error
	Register(ctx context.Context, creds model.Credentials) error
	UpdateUsername(ctx context.Context, username string) (model.User, error)
	UpdatePassword(ctx context.Context, in model.PasswordChange) error
	DeleteAccount(ctx context.Context) error

	Cookies() []*http.Cookie
	SetCookies(cookies []*http.Cookie)
	ClearCookies()
}

var (
	_ SnippetAPI  = (*api.Client)(nil)
	_ QuestionAPI = (*api.Client)(nil)
	_ UserAPI     = (*api.Client)(nil)
	_ AuthAPI     = (*api.Client)(nil)
)

// required rejects blank input before any network call.
func required(field, value, message string) error {
	if strings.TrimSpace(value) == "" {
		return apperror.ValidationFailed(field, message)
	}
	return nil
}

// meID returns the signed-in user's id, or 0.
func meID(session *auth.Session) int64 {
	if session == nil {
		return 0
	}
	u, ok := session.User()
	if !ok {
		return 0
	}
	return u.ID
}

func orDiscard(logger *slog.Logger) *slog.Logger {
	if logger == nil {
		return slog.New(slog.DiscardHandler)
	}
	return logger
}
