package auth

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"sync/atomic"
	"time"

	"github.com/sakif/snippethub/internal/apperror"
	"github.com/sakif/snippethub/internal/model"
	"github.com/sakif/snippethub/internal/repository"
)

// DefaultCookieName is the cookie the backend stores its session token in.
const DefaultCookieName = "token"

// State is one immutable value of the session. A nil User means signed out.
type State struct {
	User *model.User
}

// SignedIn reports whether the state holds a user.
func (st *State) SignedIn() bool {
	return st != nil && st.User != nil
}

var signedOut = &State{}

// Session is the process-wide auth cell. Readers get a consistent State
// without locking; every writer replaces the whole State.
type Session struct {
	cur        atomic.Pointer[State]
	store      repository.SessionRepository
	cookieName string
	logger     *slog.Logger
}

// NewSession creates a signed-out session. store may be nil, in which case
// nothing survives the process.
func NewSession(store repository.SessionRepository, cookieName string, logger *slog.Logger) *Session {
	if cookieName == "" {
		cookieName = DefaultCookieName
	}
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	s := &Session{
		store:      store,
		cookieName: cookieName,
		logger:     logger,
	}
	s.cur.Store(signedOut)
	return s
}

// State returns the current state. It is never nil.
func (s *Session) State() *State {
	return s.cur.Load()
}

// User returns the signed-in user.
func (s *Session) User() (model.User, bool) {
	st := s.cur.Load()
	if !st.SignedIn() {
		return model.User{}, false
	}
	return *st.User, true
}

// Save replaces the session with user and persists it together with the
// cookies the backend set. The in-memory session is replaced even when
// persisting fails; the error is returned so the caller can report it.
func (s *Session) Save(ctx context.Context, user model.User, cookies []*http.Cookie) error {
	s.cur.Store(&State{User: &user})

	if s.store == nil {
		return nil
	}
	err := s.store.Save(ctx, &repository.StoredSession{User: user, Cookies: cookies})
	if err != nil {
		return fmt.Errorf("auth: persist session: %w", err)
	}
	return nil
}

// Clear signs out and forgets the persisted session.
func (s *Session) Clear(ctx context.Context) error {
	s.cur.Store(signedOut)

	if s.store == nil {
		return nil
	}
	if err := s.store.Clear(ctx); err != nil {
		return fmt.Errorf("auth: clear session: %w", err)
	}
	return nil
}

// Restore loads the persisted session and returns the cookies to put back
// into the API client's jar. A stored session whose token has expired is
// discarded. Nothing stored is not an error.
func (s *Session) Restore(ctx context.Context) ([]*http.Cookie, error) {
	if s.store == nil {
		return nil, nil
	}

	stored, err := s.store.Load(ctx)
	if errors.Is(err, apperror.ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("auth: restore session: %w", err)
	}

	if token, ok := FindCookie(stored.Cookies, s.cookieName); ok {
		info, err := Inspect(token)
		switch {
		case err != nil:
			// Not a JWT we can read; let the backend decide.
			s.logger.Debug("session token is opaque", slog.String("error", err.Error()))
		case info.Expired(time.Now()):
			s.logger.Info("stored session expired", slog.Int64("user_id", stored.User.ID))
			return nil, s.Clear(ctx)
		}
	}

	user := stored.User
	s.cur.Store(&State{User: &user})
	return stored.Cookies, nil
}

// FindCookie returns the value of the cookie called name.
func FindCookie(cookies []*http.Cookie, name string) (string, bool) {
	for _, c := range cookies {
		if c.Name == name {
			return c.Value, true
		}
	}
	return "", false
}
