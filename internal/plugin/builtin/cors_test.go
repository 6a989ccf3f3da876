package builtin

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/wudi/portway/internal/plugin"
)

func corsPlugin(t *testing.T, options map[string]any) *CORS {
	t.Helper()
	p, err := NewCORS(options)
	if err != nil {
		t.Fatalf("failed to build cors: %v", err)
	}
	return p.(*CORS)
}

func TestCORSPreflightAllowed(t *testing.T) {
	p := corsPlugin(t, map[string]any{
		"origins": []any{"https://app.example.com"},
		"methods": []any{"GET", "POST"},
	})

	r := httptest.NewRequest(http.MethodOptions, "/api", nil)
	r.Header.Set("Origin", "https://app.example.com")
	r.Header.Set("Access-Control-Request-Method", "POST")
	r.Header.Set("Access-Control-Request-Headers", "X-Custom")
	ctx := &plugin.Context{Request: r}

	if err := p.Access(ctx); err != nil {
		t.Fatalf("unexpected access error: %v", err)
	}

	resp := ctx.ShortCircuited()
	if resp == nil {
		t.Fatal("expected preflight short-circuit")
	}
	if resp.StatusCode != 204 {
		t.Errorf("expected status 204, got %d", resp.StatusCode)
	}
	if resp.Header.Get("Access-Control-Allow-Origin") != "https://app.example.com" {
		t.Errorf("expected origin echoed, got %q", resp.Header.Get("Access-Control-Allow-Origin"))
	}
	if resp.Header.Get("Access-Control-Allow-Methods") != "GET, POST" {
		t.Errorf("unexpected methods %q", resp.Header.Get("Access-Control-Allow-Methods"))
	}
	if resp.Header.Get("Access-Control-Allow-Headers") != "X-Custom" {
		t.Errorf("expected requested headers echoed, got %q", resp.Header.Get("Access-Control-Allow-Headers"))
	}
	if resp.Header.Get("Access-Control-Max-Age") != "3600" {
		t.Errorf("expected default max age, got %q", resp.Header.Get("Access-Control-Max-Age"))
	}
}

func TestCORSPreflightDisallowedOrigin(t *testing.T) {
	p := corsPlugin(t, map[string]any{"origins": []any{"https://app.example.com"}})

	r := httptest.NewRequest(http.MethodOptions, "/api", nil)
	r.Header.Set("Origin", "https://evil.example.com")
	ctx := &plugin.Context{Request: r}

	if err := p.Access(ctx); err != nil {
		t.Fatalf("unexpected access error: %v", err)
	}
	resp := ctx.ShortCircuited()
	if resp == nil || resp.StatusCode != 403 {
		t.Fatalf("expected 403 short-circuit, got %+v", resp)
	}
}

func TestCORSNonPreflightPassesThrough(t *testing.T) {
	p := corsPlugin(t, nil)

	r := httptest.NewRequest(http.MethodGet, "/api", nil)
	r.Header.Set("Origin", "https://app.example.com")
	ctx := &plugin.Context{Request: r}

	if err := p.Access(ctx); err != nil {
		t.Fatalf("unexpected access error: %v", err)
	}
	if ctx.ShortCircuited() != nil {
		t.Error("expected plain GET not short-circuited")
	}
}

func TestCORSResponseHeaders(t *testing.T) {
	p := corsPlugin(t, map[string]any{
		"origins":         []any{"https://app.example.com"},
		"exposed_headers": []any{"X-Request-ID"},
		"credentials":     true,
	})

	r := httptest.NewRequest(http.MethodGet, "/api", nil)
	r.Header.Set("Origin", "https://app.example.com")
	ctx := &plugin.Context{Request: r}

	resp := plugin.NewResponse(200)
	if err := p.Respond(ctx, resp); err != nil {
		t.Fatalf("unexpected respond error: %v", err)
	}

	if resp.Header.Get("Access-Control-Allow-Origin") != "https://app.example.com" {
		t.Errorf("expected origin echoed, got %q", resp.Header.Get("Access-Control-Allow-Origin"))
	}
	if resp.Header.Get("Access-Control-Allow-Credentials") != "true" {
		t.Error("expected credentials header")
	}
	if resp.Header.Get("Access-Control-Expose-Headers") != "X-Request-ID" {
		t.Errorf("expected expose headers, got %q", resp.Header.Get("Access-Control-Expose-Headers"))
	}
	if resp.Header.Get("Vary") != "Origin" {
		t.Errorf("expected Vary: Origin, got %q", resp.Header.Get("Vary"))
	}
}

func TestCORSWildcardOrigin(t *testing.T) {
	p := corsPlugin(t, nil) // defaults to ["*"]

	r := httptest.NewRequest(http.MethodGet, "/api", nil)
	r.Header.Set("Origin", "https://anywhere.example.com")
	ctx := &plugin.Context{Request: r}

	resp := plugin.NewResponse(200)
	if err := p.Respond(ctx, resp); err != nil {
		t.Fatalf("unexpected respond error: %v", err)
	}
	if resp.Header.Get("Access-Control-Allow-Origin") != "*" {
		t.Errorf("expected wildcard allow origin, got %q", resp.Header.Get("Access-Control-Allow-Origin"))
	}
}

func TestCORSNoOriginNoHeaders(t *testing.T) {
	p := corsPlugin(t, nil)

	ctx := &plugin.Context{Request: httptest.NewRequest(http.MethodGet, "/api", nil)}
	resp := plugin.NewResponse(200)
	if err := p.Respond(ctx, resp); err != nil {
		t.Fatalf("unexpected respond error: %v", err)
	}
	if resp.Header.Get("Access-Control-Allow-Origin") != "" {
		t.Error("expected no CORS headers without an Origin")
	}
}
