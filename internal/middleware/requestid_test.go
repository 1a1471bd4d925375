package middleware

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/google/uuid"
)

func TestRequestID(t *testing.T) {
	var seen string
	h := RequestID(http.HandlerFunc(func(_ http.ResponseWriter, r *http.Request) {
		seen = RequestIDFromContext(r.Context())
	}))

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set(HeaderRequestID, "abc-123")
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, req)
	if seen != "abc-123" || rr.Header().Get(HeaderRequestID) != "abc-123" {
		t.Fatalf("request id not propagated: ctx=%q header=%q", seen, rr.Header().Get(HeaderRequestID))
	}

	for _, bad := range []string{"", strings.Repeat("x", 129), "line\nbreak", "quote\"d", "  "} {
		req = httptest.NewRequest(http.MethodGet, "/", nil)
		req.Header.Set(HeaderRequestID, bad)
		h.ServeHTTP(httptest.NewRecorder(), req)
		if _, err := uuid.Parse(seen); err != nil {
			t.Fatalf("id %q should be replaced with a uuid, got %q", bad, seen)
		}
	}
}

func TestRequestIDFromBareContext(t *testing.T) {
	if got := RequestIDFromContext(context.Background()); got != "" {
		t.Fatalf("RequestIDFromContext = %q", got)
	}
	if got := RequestIDFromContext(WithRequestID(context.Background(), "r-1")); got != "r-1" {
		t.Fatalf("RequestIDFromContext = %q", got)
	}
}
