// Package middleware contains http.RoundTripper decorators for the API client.
//
// WHAT IS A ROUNDTRIPPER MIDDLEWARE?
// On the server side middleware wraps an http.Handler. On the client side the
// same idea wraps the http.RoundTripper that sends every request:
//
//	func MyMiddleware(next http.RoundTripper) http.RoundTripper {
//	    return RoundTripperFunc(func(r *http.Request) (*http.Response, error) {
//	        // Do something BEFORE the request is sent
//	        resp, err := next.RoundTrip(r)
//	        // Do something AFTER the response headers arrive
//	        return resp, err
//	    })
//	}
//
// Chain composes them so that the first middleware listed runs first.
package middleware

import (
	"log/slog"
	"net/http"
	"time"
)

// RoundTripperFunc adapts a plain function to http.RoundTripper, the same way
// http.HandlerFunc adapts a function to http.Handler.
type RoundTripperFunc func(*http.Request) (*http.Response, error)

func (f RoundTripperFunc) RoundTrip(r *http.Request) (*http.Response, error) {
	return f(r)
}

// Chain wraps base with mws. Chain(base, A, B) sends a request through A,
// then B, then base.
func Chain(base http.RoundTripper, mws ...func(http.RoundTripper) http.RoundTripper) http.RoundTripper {
	if base == nil {
		base = http.DefaultTransport
	}
	for i := len(mws) - 1; i >= 0; i-- {
		base = mws[i](base)
	}
	return base
}

// Logger returns a middleware that logs each API call using slog.
//
// Each log line includes: method, path, status code, duration and the request
// id when RequestID ran first. Transport failures are logged at warn level;
// the error itself is still returned to the caller.
func Logger(logger *slog.Logger) func(http.RoundTripper) http.RoundTripper {
	return func(next http.RoundTripper) http.RoundTripper {
		return RoundTripperFunc(func(r *http.Request) (*http.Response, error) {
			start := time.Now()

			resp, err := next.RoundTrip(r)

			attrs := []any{
				slog.String("method", r.Method),
				slog.String("path", r.URL.Path),
				slog.Duration("duration", time.Since(start)),
			}
			if id := r.Header.Get(RequestIDHeader); id != "" {
				attrs = append(attrs, slog.String("request_id", id))
			}
			if err != nil {
				logger.Warn("api call failed", append(attrs, slog.String("error", err.Error()))...)
				return nil, err
			}

			logger.Debug("api call completed", append(attrs, slog.Int("status", resp.StatusCode))...)
			return resp, nil
		})
	}
}
