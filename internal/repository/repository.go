// Package repository declares the storage interfaces of the client. The
// only thing the client keeps across restarts is the auth session.
package repository

import (
	"context"
	"net/http"
	"time"

	"github.com/sakif/snippethub/internal/model"
)

// StoredSession is the persisted form of a signed-in session: the user the
// backend returned at login and the cookies it set for the API host.
type StoredSession struct {
	User    model.User
	Cookies []*http.Cookie
	SavedAt time.Time
}

// SessionRepository holds at most one session.
//
// Load returns an apperror.ErrNotFound error when nothing is stored. Save
// replaces the stored session. Clear is a no-op when nothing is stored.
type SessionRepository interface {
	Load(ctx context.Context) (*StoredSession, error)
	Save(ctx context.Context, s *StoredSession) error
	Clear(ctx context.Context) error
}
