package middleware

import (
	"net/http"

	"github.com/rs/xid"
)

// RequestIDHeader carries a per-call id so client and server logs can be
// correlated.
const RequestIDHeader = "X-Request-ID"

// RequestID stamps every outgoing request with a fresh xid unless the caller
// already set one. The request is cloned; RoundTrippers must not modify the
// request they were given.
func RequestID(next http.RoundTripper) http.RoundTripper {
	return RoundTripperFunc(func(r *http.Request) (*http.Response, error) {
		if r.Header.Get(RequestIDHeader) != "" {
			return next.RoundTrip(r)
		}
		r2 := r.Clone(r.Context())
		r2.Header.Set(RequestIDHeader, xid.New().String())
		return next.RoundTrip(r2)
	})
}
