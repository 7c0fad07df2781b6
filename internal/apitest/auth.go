package apitest

import (
	"context"
	"net/http"
	"strings"
)

type contextKey string

const userIDKey contextKey = "userID"

// requireAuth reads the session token from the auth cookie or an
// "Authorization: Bearer" header, validates it and stores the user id in the
// request context. Missing, invalid or revoked tokens get a 401 and stop the
// chain.
func (s *Server) requireAuth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		userID, ok := s.authenticate(r)
		if !ok {
			writeError(w, http.StatusUnauthorized, "valid authentication required")
			return
		}
		ctx := context.WithValue(r.Context(), userIDKey, userID)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// optionalAuth identifies the user when it can but never blocks the request.
// Public lists use it.
func (s *Server) optionalAuth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if userID, ok := s.authenticate(r); ok {
			r = r.WithContext(context.WithValue(r.Context(), userIDKey, userID))
		}
		next.ServeHTTP(w, r)
	})
}

// userIDFromContext returns the authenticated user, or (0, false) for an
// anonymous request.
func userIDFromContext(ctx context.Context) (int64, bool) {
	id, ok := ctx.Value(userIDKey).(int64)
	return id, ok
}

// authenticate accepts a token only while its user still exists, so deleted
// accounts are logged out everywhere at once.
func (s *Server) authenticate(r *http.Request) (int64, bool) {
	token := ""
	if c, err := r.Cookie(s.cookieName); err == nil {
		token = c.Value
	} else if h := r.Header.Get("Authorization"); strings.HasPrefix(h, "Bearer ") {
		token = strings.TrimPrefix(h, "Bearer ")
	}
	if token == "" {
		return 0, false
	}

	userID, err := s.tokens.Validate(token)
	if err != nil {
		return 0, false
	}

	s.mu.Lock()
	_, exists := s.users[userID]
	s.mu.Unlock()
	return userID, exists
}
