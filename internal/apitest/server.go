// Package apitest is an in-memory stand-in for the snippets, Q&A and users
// backend. It serves the same HTTP endpoints and live-channel events the
// client consumes, so the client can be tested end to end without a real
// server.
//
// Besides the data, a Server records how often each route was called and can
// fail, hold or drop requests on demand:
//
//	srv := apitest.New(t)
//	srv.Fail("POST /snippets/{id}/mark", http.StatusInternalServerError, "boom")
//	release := srv.Hold("GET /snippets/{id}")
//	defer release()
//
// Routes are named "METHOD pattern" with chi patterns relative to /api.
package apitest

import (
	"net"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"golang.org/x/crypto/bcrypt"

	"github.com/sakif/snippethub/internal/auth"
)

// Secret signs the session tokens the fake backend issues.
const Secret = "apitest-secret-do-not-use-in-prod"

type fault struct {
	status    int
	message   string
	remaining int // negative: forever
	drop      bool
}

// Server is safe for concurrent use.
type Server struct {
	http       *httptest.Server
	router     *chi.Mux
	tokens     *auth.TokenService
	passwords  *auth.PasswordService
	cookieName string
	rooms      *roomHub

	// data, guarded by mu
	mu        sync.Mutex
	nextID    int64
	users     map[int64]*user
	snippets  map[int64]*snippet
	questions map[int64]*question
	answers   map[int64]*answer
	envelope  bool

	// instrumentation, guarded by imu
	imu    sync.Mutex
	calls  map[string]int
	faults map[string]*fault
	holds  map[string]chan struct{}
}

// New starts a server with enveloped responses and registers its shutdown
// with t.Cleanup.
func New(t testing.TB) *Server {
	t.Helper()

	tokens, err := auth.NewTokenService(Secret)
	if err != nil {
		t.Fatalf("apitest: token service: %v", err)
	}
	passwords, err := auth.NewPasswordService(bcrypt.MinCost)
	if err != nil {
		t.Fatalf("apitest: password service: %v", err)
	}

	s := &Server{
		router:     chi.NewRouter(),
		tokens:     tokens,
		passwords:  passwords,
		cookieName: auth.DefaultCookieName,
		users:      make(map[int64]*user),
		snippets:   make(map[int64]*snippet),
		questions:  make(map[int64]*question),
		answers:    make(map[int64]*answer),
		envelope:   true,
		calls:      make(map[string]int),
		faults:     make(map[string]*fault),
		holds:      make(map[string]chan struct{}),
	}
	s.rooms = newRoomHub(s)
	s.setupRoutes()

	s.http = httptest.NewServer(s.router)
	t.Cleanup(s.Close)
	return s
}

// URL is the API base, e.g. http://127.0.0.1:4711/api.
func (s *Server) URL() string {
	return s.http.URL + "/api"
}

// WSURL is the live-channel endpoint.
func (s *Server) WSURL() string {
	return "ws" + strings.TrimPrefix(s.http.URL, "http") + "/ws"
}

// Close drops live connections and shuts the server down.
func (s *Server) Close() {
	s.rooms.closeAll()
	s.http.Close()
}

// SetEnvelope turns {"data": ...} wrapping of success bodies on or off.
func (s *Server) SetEnvelope(on bool) {
	s.mu.Lock()
	s.envelope = on
	s.mu.Unlock()
}

func (s *Server) enveloped() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.envelope
}

// Token signs a session token for userID, as login would.
func (s *Server) Token(userID int64) string {
	token, _ := s.tokens.Generate(userID)
	return token
}

func (s *Server) setupRoutes() {
	s.router.Use(chimiddleware.Recoverer)

	s.router.Route("/api", func(r chi.Router) {
		r.Group(func(r chi.Router) {
			r.Use(s.optionalAuth)
			s.route(r, http.MethodGet, "/snippets", s.handleListSnippets)
			s.route(r, http.MethodPost, "/auth/login", s.handleLogin)
			s.route(r, http.MethodPost, "/auth/logout", s.handleLogout)
			s.route(r, http.MethodPost, "/register", s.handleRegister)
		})

		r.Group(func(r chi.Router) {
			r.Use(s.requireAuth)

			s.route(r, http.MethodGet, "/snippets/languages", s.handleLanguages)
			s.route(r, http.MethodGet, "/snippets/{id}", s.handleGetSnippet)
			s.route(r, http.MethodPost, "/snippets", s.handleCreateSnippet)
			s.route(r, http.MethodPatch, "/snippets/{id}", s.handleUpdateSnippet)
			s.route(r, http.MethodDelete, "/snippets/{id}", s.handleDeleteSnippet)
			s.route(r, http.MethodPost, "/snippets/{id}/mark", s.handleMarkSnippet)

			s.route(r, http.MethodGet, "/questions", s.handleListQuestions)
			s.route(r, http.MethodGet, "/questions/{id}", s.handleGetQuestion)
			s.route(r, http.MethodPost, "/questions", s.handleCreateQuestion)
			s.route(r, http.MethodPatch, "/questions/{id}", s.handleUpdateQuestion)
			s.route(r, http.MethodDelete, "/questions/{id}", s.handleDeleteQuestion)
			s.route(r, http.MethodPost, "/answers", s.handleCreateAnswer)
			s.route(r, http.MethodPut, "/answers/{id}/state/{state}", s.handleAnswerState)

			s.route(r, http.MethodGet, "/users", s.handleListUsers)
			s.route(r, http.MethodGet, "/users/{id}", s.handleGetUser)
			s.route(r, http.MethodGet, "/users/{id}/statistic", s.handleStatistic)

			s.route(r, http.MethodGet, "/me", s.handleMe)
			s.route(r, http.MethodPatch, "/me", s.handleUpdateMe)
			s.route(r, http.MethodDelete, "/me", s.handleDeleteMe)
			s.route(r, http.MethodPatch, "/me/password", s.handleUpdatePassword)
		})
	})

	s.router.With(s.requireAuth).Get("/ws", s.rooms.serveWS)
}

// route registers h under method+pattern with call counting and fault
// injection in front of it.
func (s *Server) route(r chi.Router, method, pattern string, h http.HandlerFunc) {
	name := method + " " + pattern
	r.Method(method, pattern, s.instrument(name, h))
}

func (s *Server) instrument(name string, next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		s.imu.Lock()
		s.calls[name]++
		gate := s.holds[name]
		f := s.faults[name]
		var hit *fault
		if f != nil && f.remaining != 0 {
			hit = f
			if f.remaining > 0 {
				f.remaining--
			}
		}
		s.imu.Unlock()

		if gate != nil {
			select {
			case <-gate:
			case <-r.Context().Done():
				return
			}
		}

		switch {
		case hit == nil:
			next(w, r)
		case hit.drop:
			dropConnection(w)
		default:
			writeError(w, hit.status, hit.message)
		}
	}
}

// dropConnection closes the TCP connection without answering, which the
// client sees as a transport failure.
func dropConnection(w http.ResponseWriter) {
	hj, ok := w.(http.Hijacker)
	if !ok {
		panic("apitest: response writer cannot be hijacked")
	}
	conn, _, err := hj.Hijack()
	if err != nil {
		return
	}
	if tcp, ok := conn.(*net.TCPConn); ok {
		_ = tcp.SetLinger(0)
	}
	conn.Close()
}

// =========================================================================
// INSTRUMENTATION
// =========================================================================

// Calls returns how many requests reached route.
func (s *Server) Calls(route string) int {
	s.imu.Lock()
	defer s.imu.Unlock()
	return s.calls[route]
}

// ResetCalls zeroes every call counter.
func (s *Server) ResetCalls() {
	s.imu.Lock()
	s.calls = make(map[string]int)
	s.imu.Unlock()
}

// Fail makes the next request to route answer status with message.
func (s *Server) Fail(route string, status int, message string) {
	s.FailTimes(route, 1, status, message)
}

// FailTimes fails the next n requests to route; n < 0 fails all of them
// until Recover.
func (s *Server) FailTimes(route string, n, status int, message string) {
	s.imu.Lock()
	s.faults[route] = &fault{status: status, message: message, remaining: n}
	s.imu.Unlock()
}

// Drop closes the connection of the next request to route without a
// response.
func (s *Server) Drop(route string) {
	s.imu.Lock()
	s.faults[route] = &fault{drop: true, remaining: 1}
	s.imu.Unlock()
}

// Recover removes any fault configured for route.
func (s *Server) Recover(route string) {
	s.imu.Lock()
	delete(s.faults, route)
	s.imu.Unlock()
}

// Hold blocks requests to route until the returned function is called.
// Requests already counted by Calls are the ones waiting.
func (s *Server) Hold(route string) (release func()) {
	gate := make(chan struct{})
	s.imu.Lock()
	s.holds[route] = gate
	s.imu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			s.imu.Lock()
			if s.holds[route] == gate {
				delete(s.holds, route)
			}
			s.imu.Unlock()
			close(gate)
		})
	}
}

// WaitCalls polls until route has been called at least n times or timeout
// passes. It reports whether the count was reached.
func (s *Server) WaitCalls(route string, n int, timeout time.Duration) bool {
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if s.Calls(route) >= n {
			return true
		}
		time.Sleep(2 * time.Millisecond)
	}
	return s.Calls(route) >= n
}
