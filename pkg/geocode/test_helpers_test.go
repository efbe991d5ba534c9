package geocode

import (
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"golang.org/x/time/rate"
)

// newTestLimiter creates a rate limiter that effectively does not limit for tests.
func newTestLimiter() *rate.Limiter {
	return rate.NewLimiter(rate.Inf, 1)
}

// newTestClient points a Client at srv with rate limiting disabled.
func newTestClient(srv *httptest.Server, opts ...Option) *Client {
	c := NewClient(append([]Option{WithBaseURL(srv.URL), WithAPIKey("test-key")}, opts...)...)
	c.limiter = newTestLimiter()
	return c
}

// jsonServer returns a server that answers every request with body.
func jsonServer(t *testing.T, body string) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = io.WriteString(w, body)
	}))
	t.Cleanup(srv.Close)
	return srv
}
