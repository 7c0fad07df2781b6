// Package api contains the resource clients: one method per backend
// endpoint, grouped by family (snippets, questions, users, account, auth).
//
// Every call follows the same steps:
//
//  1. build the request against the configured base URL
//  2. send it through the session client (cookie jar) or the anonymous one
//  3. turn a non-2xx status into apperror.StatusFailure, carrying the
//     server's message when the body has one
//  4. hand the body to the mapper package, which unwraps the envelope,
//     validates the shape and maps it to model types
//
// Transport errors become apperror.NetworkFailure. A 401 on an
// authenticated call additionally triggers the OnUnauthorized hook.
package api

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/cookiejar"
	"net/url"
	"strings"
	"sync"

	"github.com/sakif/snippethub/internal/apperror"
	"github.com/sakif/snippethub/internal/mapper"
	"github.com/sakif/snippethub/internal/middleware"
)

// DefaultBaseURL is used when Options.BaseURL is empty.
const DefaultBaseURL = "http://localhost:3000/api"

type Options struct {
	BaseURL string
	// Transport is the innermost RoundTripper. Defaults to
	// http.DefaultTransport.
	Transport http.RoundTripper
	Logger    *slog.Logger
	// OnUnauthorized is called with the request path (and query) whenever an
	// authenticated call comes back 401.
	OnUnauthorized func(returnPath string)
}

// Client is safe for concurrent use.
type Client struct {
	base           *url.URL
	jar            *sessionJar
	session        *http.Client
	anon           *http.Client
	logger         *slog.Logger
	onUnauthorized func(string)
}

func New(opts Options) (*Client, error) {
	raw := opts.BaseURL
	if raw == "" {
		raw = DefaultBaseURL
	}
	base, err := url.Parse(strings.TrimSuffix(raw, "/"))
	if err != nil {
		return nil, fmt.Errorf("api: parse base url: %w", err)
	}
	if base.Scheme == "" || base.Host == "" {
		return nil, fmt.Errorf("api: base url %q must be absolute", raw)
	}

	logger := opts.Logger
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}

	jar, err := newSessionJar()
	if err != nil {
		return nil, err
	}
	transport := middleware.Chain(opts.Transport, middleware.RequestID, middleware.Logger(logger))

	return &Client{
		base:           base,
		jar:            jar,
		session:        &http.Client{Transport: transport, Jar: jar},
		anon:           &http.Client{Transport: transport},
		logger:         logger,
		onUnauthorized: opts.OnUnauthorized,
	}, nil
}

// BaseURL returns the configured API root.
func (c *Client) BaseURL() *url.URL {
	u := *c.base
	return &u
}

// Cookies returns the session cookies the backend has set for the API host.
func (c *Client) Cookies() []*http.Cookie {
	return c.jar.Cookies(c.base)
}

// SetCookies restores previously saved session cookies.
func (c *Client) SetCookies(cookies []*http.Cookie) {
	c.jar.SetCookies(c.base, cookies)
}

// ClearCookies forgets every session cookie.
func (c *Client) ClearCookies() {
	c.jar.reset()
}

// access selects which http.Client sends a request and whether a 401 is
// reported to the OnUnauthorized hook.
type access int

const (
	// anonymous sends no cookies.
	anonymous access = iota
	// credentialed sends and stores cookies but never triggers the hook.
	// Login, logout and register use it.
	credentialed
	// authenticated sends cookies and reports 401s.
	authenticated
)

type request struct {
	op     string // "load snippets", used in error messages
	method string
	path   string
	query  url.Values
	body   any
	access access
}

// do sends r and returns the raw body of a 2xx response.
func (c *Client) do(ctx context.Context, r request) ([]byte, error) {
	u := c.base.JoinPath(r.path)
	if len(r.query) > 0 {
		u.RawQuery = r.query.Encode()
	}

	var body io.Reader
	if r.body != nil {
		b, err := json.Marshal(r.body)
		if err != nil {
			return nil, fmt.Errorf("api: %s: encode body: %w", r.op, err)
		}
		body = bytes.NewReader(b)
	}

	req, err := http.NewRequestWithContext(ctx, r.method, u.String(), body)
	if err != nil {
		return nil, fmt.Errorf("api: %s: %w", r.op, err)
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	hc := c.anon
	if r.access != anonymous {
		hc = c.session
	}
	resp, err := hc.Do(req)
	if err != nil {
		return nil, apperror.NetworkFailure(r.op, err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, apperror.NetworkFailure(r.op, err)
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		if resp.StatusCode == http.StatusUnauthorized && r.access == authenticated && c.onUnauthorized != nil {
			c.onUnauthorized(returnPath(r))
		}
		return nil, apperror.StatusFailure(r.op, resp.StatusCode, mapper.ErrorMessage(raw))
	}
	return raw, nil
}

func returnPath(r request) string {
	if len(r.query) == 0 {
		return r.path
	}
	return r.path + "?" + r.query.Encode()
}

// LoginURL is the login entry point that brings the user back to from after
// signing in.
func LoginURL(from string) string {
	return "/login?from=" + url.QueryEscape(from)
}

// sessionJar is a cookie jar that can be emptied on logout. http.Client reads
// its Jar field on every request, so the field itself never changes.
type sessionJar struct {
	mu  sync.Mutex
	jar *cookiejar.Jar
}

func newSessionJar() (*sessionJar, error) {
	jar, err := cookiejar.New(nil)
	if err != nil {
		return nil, fmt.Errorf("api: cookie jar: %w", err)
	}
	return &sessionJar{jar: jar}, nil
}

func (j *sessionJar) SetCookies(u *url.URL, cookies []*http.Cookie) {
	j.mu.Lock()
	defer j.mu.Unlock()
	j.jar.SetCookies(u, cookies)
}

func (j *sessionJar) Cookies(u *url.URL) []*http.Cookie {
	j.mu.Lock()
	defer j.mu.Unlock()
	return j.jar.Cookies(u)
}

func (j *sessionJar) reset() {
	jar, _ := cookiejar.New(nil)
	j.mu.Lock()
	j.jar = jar
	j.mu.Unlock()
}
