package middleware

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/wudi/portway/internal/config"
)

func TestChainOrder(t *testing.T) {
	var order []string
	mw := func(name string) Middleware {
		return func(next http.Handler) http.Handler {
			return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				order = append(order, name)
				next.ServeHTTP(w, r)
			})
		}
	}

	h := NewChain(mw("first"), mw("second")).Append(mw("third")).ThenFunc(
		func(w http.ResponseWriter, r *http.Request) {
			order = append(order, "handler")
		})

	h.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/", nil))

	want := []string{"first", "second", "third", "handler"}
	if len(order) != len(want) {
		t.Fatalf("expected %v, got %v", want, order)
	}
	for i := range want {
		if order[i] != want[i] {
			t.Errorf("position %d: expected %s, got %s", i, want[i], order[i])
		}
	}
}

func TestRecovery(t *testing.T) {
	h := NewChain(Recovery()).ThenFunc(func(w http.ResponseWriter, r *http.Request) {
		panic("boom")
	})

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))

	if rec.Code != http.StatusInternalServerError {
		t.Errorf("expected status 500, got %d", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), "internal server error") {
		t.Errorf("expected JSON error body, got %s", rec.Body.String())
	}
}

func TestRequestIDGenerated(t *testing.T) {
	var seen string
	h := NewChain(RequestID()).ThenFunc(func(w http.ResponseWriter, r *http.Request) {
		seen = GetRequestID(r)
	})

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))

	if seen == "" {
		t.Fatal("expected request ID in context")
	}
	if rec.Header().Get(RequestIDHeader) != seen {
		t.Errorf("expected response header to echo ID %s, got %s",
			seen, rec.Header().Get(RequestIDHeader))
	}
}

func TestRequestIDTrusted(t *testing.T) {
	var seen string
	h := NewChain(RequestID()).ThenFunc(func(w http.ResponseWriter, r *http.Request) {
		seen = GetRequestID(r)
	})

	r := httptest.NewRequest(http.MethodGet, "/", nil)
	r.Header.Set(RequestIDHeader, "client-chosen")
	h.ServeHTTP(httptest.NewRecorder(), r)

	if seen != "client-chosen" {
		t.Errorf("expected incoming ID trusted, got %s", seen)
	}
}

func TestThrottle(t *testing.T) {
	h := NewChain(Throttle(config.GlobalRateLimit{Rate: 1, Burst: 2})).ThenFunc(
		func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusOK)
		})

	codes := make([]int, 0, 4)
	for i := 0; i < 4; i++ {
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
		codes = append(codes, rec.Code)
	}

	if codes[0] != 200 || codes[1] != 200 {
		t.Errorf("expected burst of 2 allowed, got %v", codes)
	}
	if codes[2] != 429 && codes[3] != 429 {
		t.Errorf("expected throttling after burst, got %v", codes)
	}
}

func TestThrottleDisabled(t *testing.T) {
	h := NewChain(Throttle(config.GlobalRateLimit{})).ThenFunc(
		func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusOK)
		})

	for i := 0; i < 50; i++ {
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
		if rec.Code != 200 {
			t.Fatalf("expected all requests allowed with zero rate, got %d", rec.Code)
		}
	}
}
