package gateway

import (
	"bytes"
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strconv"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/klauspost/compress/gzip"

	"github.com/wudi/portway/internal/config"
	"github.com/wudi/portway/internal/metrics"
	_ "github.com/wudi/portway/internal/plugin/builtin"
)

func newTestGateway(t *testing.T, cfg *config.Config) *Gateway {
	t.Helper()
	g, err := New(cfg, metrics.New())
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	t.Cleanup(g.Close)
	return g
}

func baseConfig() *config.Config {
	cfg := config.DefaultConfig()
	cfg.Gateway.RequestTimeout = 5 * time.Second
	return cfg
}

func targetOf(t *testing.T, srv *httptest.Server) config.TargetConfig {
	t.Helper()
	u, err := url.Parse(srv.URL)
	if err != nil {
		t.Fatalf("parse backend URL: %v", err)
	}
	port, err := strconv.Atoi(u.Port())
	if err != nil {
		t.Fatalf("parse backend port: %v", err)
	}
	return config.TargetConfig{Host: u.Hostname(), Port: port}
}

func serve(g *Gateway, r *http.Request) *httptest.ResponseRecorder {
	w := httptest.NewRecorder()
	g.ServeHTTP(w, r)
	return w
}

func TestUnmatchedRouteReturns404(t *testing.T) {
	cfg := baseConfig()
	g := newTestGateway(t, cfg)

	w := serve(g, httptest.NewRequest(http.MethodGet, "/nope", nil))

	if w.Code != http.StatusNotFound {
		t.Errorf("expected status 404, got %d", w.Code)
	}
	if got := w.Body.String(); got != "{\"error\":\"route not found\"}\n" {
		t.Errorf("expected route not found body, got %q", got)
	}
	if ct := w.Header().Get("Content-Type"); ct != "application/json" {
		t.Errorf("expected application/json, got %q", ct)
	}
}

func TestAuthRejectionSkipsUpstream(t *testing.T) {
	var hits atomic.Int64
	backend := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
	}))
	defer backend.Close()

	cfg := baseConfig()
	cfg.Upstreams = []config.UpstreamConfig{{
		Name:    "api",
		Targets: []config.TargetConfig{targetOf(t, backend)},
	}}
	cfg.Services = []config.ServiceConfig{{
		Name:     "api",
		Upstream: "api",
		Routes: []config.RouteConfig{{
			Paths: []string{"/api/*"},
			Plugins: []config.PluginConfig{{
				Name:   "jwt-auth",
				Config: map[string]any{"secret": "s3cret"},
			}},
		}},
	}}
	g := newTestGateway(t, cfg)

	w := serve(g, httptest.NewRequest(http.MethodGet, "/api/users", nil))

	if w.Code != http.StatusUnauthorized {
		t.Errorf("expected status 401, got %d", w.Code)
	}
	if got := hits.Load(); got != 0 {
		t.Errorf("expected upstream untouched, got %d hits", got)
	}
	if h := w.Header().Get("WWW-Authenticate"); h == "" {
		t.Error("expected a WWW-Authenticate challenge")
	}
}

func TestRoundRobinAlternatesTargets(t *testing.T) {
	t1 := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("one"))
	}))
	defer t1.Close()
	t2 := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("two"))
	}))
	defer t2.Close()

	cfg := baseConfig()
	cfg.Upstreams = []config.UpstreamConfig{{
		Name:    "api",
		Targets: []config.TargetConfig{targetOf(t, t1), targetOf(t, t2)},
	}}
	cfg.Services = []config.ServiceConfig{{
		Name:     "api",
		Upstream: "api",
		Routes:   []config.RouteConfig{{Paths: []string{"/api/*"}}},
	}}
	g := newTestGateway(t, cfg)

	var bodies []string
	for i := 0; i < 4; i++ {
		w := serve(g, httptest.NewRequest(http.MethodGet, "/api/ping", nil))
		if w.Code != http.StatusOK {
			t.Fatalf("request %d: expected status 200, got %d", i, w.Code)
		}
		bodies = append(bodies, w.Body.String())
	}

	if bodies[0] == bodies[1] {
		t.Errorf("expected alternation, got %v", bodies)
	}
	if bodies[0] != bodies[2] || bodies[1] != bodies[3] {
		t.Errorf("expected strict rotation, got %v", bodies)
	}
}

func TestCircuitBreakerStopsFailingTarget(t *testing.T) {
	var hits atomic.Int64
	backend := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer backend.Close()

	cfg := baseConfig()
	cfg.Upstreams = []config.UpstreamConfig{{
		Name:    "api",
		Targets: []config.TargetConfig{targetOf(t, backend)},
		CircuitBreaker: config.CircuitBreakerConfig{
			FailureThreshold: 3,
			Timeout:          time.Minute,
		},
		Retry: config.RetryConfig{
			Enabled: config.Bool(false),
			RetryOn: []int{500},
		},
	}}
	cfg.Services = []config.ServiceConfig{{
		Name:     "api",
		Upstream: "api",
		Routes:   []config.RouteConfig{{Paths: []string{"/api/*"}}},
	}}
	g := newTestGateway(t, cfg)

	for i := 0; i < 3; i++ {
		w := serve(g, httptest.NewRequest(http.MethodGet, "/api/ping", nil))
		if w.Code != http.StatusInternalServerError {
			t.Fatalf("request %d: expected status 500, got %d", i, w.Code)
		}
	}
	if got := hits.Load(); got != 3 {
		t.Fatalf("expected 3 upstream hits, got %d", got)
	}

	w := serve(g, httptest.NewRequest(http.MethodGet, "/api/ping", nil))
	if w.Code != http.StatusServiceUnavailable {
		t.Errorf("expected status 503 after breaker opened, got %d", w.Code)
	}
	if !strings.Contains(w.Body.String(), "circuit breaker open") {
		t.Errorf("expected circuit breaker body, got %q", w.Body.String())
	}
	if got := hits.Load(); got != 3 {
		t.Errorf("expected no upstream contact while open, got %d hits", got)
	}
}

func TestRateLimitRejectsThirdRequest(t *testing.T) {
	backend := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	defer backend.Close()

	cfg := baseConfig()
	cfg.Upstreams = []config.UpstreamConfig{{
		Name:    "api",
		Targets: []config.TargetConfig{targetOf(t, backend)},
	}}
	cfg.Services = []config.ServiceConfig{{
		Name:     "api",
		Upstream: "api",
		Routes: []config.RouteConfig{{
			Paths: []string{"/api/*"},
			Plugins: []config.PluginConfig{{
				Name:   "rate-limiting",
				Config: map[string]any{"minute": 2},
			}},
		}},
	}}
	g := newTestGateway(t, cfg)

	for i := 0; i < 2; i++ {
		w := serve(g, httptest.NewRequest(http.MethodGet, "/api/ping", nil))
		if w.Code != http.StatusOK {
			t.Fatalf("request %d: expected status 200, got %d", i, w.Code)
		}
		if w.Header().Get("X-RateLimit-Limit-minute") != "2" {
			t.Errorf("request %d: expected limit header, got %q", i, w.Header().Get("X-RateLimit-Limit-minute"))
		}
	}

	w := serve(g, httptest.NewRequest(http.MethodGet, "/api/ping", nil))
	if w.Code != http.StatusTooManyRequests {
		t.Errorf("expected status 429, got %d", w.Code)
	}
	if w.Header().Get("Retry-After") == "" {
		t.Error("expected Retry-After on rejection")
	}
}

func TestTransformersRewriteBothDirections(t *testing.T) {
	var sawHeader atomic.Value
	backend := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		sawHeader.Store(r.Header.Get("X-Gateway-Tag"))
	}))
	defer backend.Close()

	cfg := baseConfig()
	cfg.Upstreams = []config.UpstreamConfig{{
		Name:    "api",
		Targets: []config.TargetConfig{targetOf(t, backend)},
	}}
	cfg.Services = []config.ServiceConfig{{
		Name:     "api",
		Upstream: "api",
		Routes: []config.RouteConfig{{
			Paths: []string{"/api/*"},
			Plugins: []config.PluginConfig{
				{
					Name: "request-transformer",
					Config: map[string]any{
						"add": map[string]any{"headers": []any{"X-Gateway-Tag:alpha"}},
					},
				},
				{
					Name: "response-transformer",
					Config: map[string]any{
						"add": map[string]any{"headers": []any{"X-Served-By:portway"}},
					},
				},
			},
		}},
	}}
	g := newTestGateway(t, cfg)

	w := serve(g, httptest.NewRequest(http.MethodGet, "/api/ping", nil))

	if w.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d", w.Code)
	}
	if got, _ := sawHeader.Load().(string); got != "alpha" {
		t.Errorf("expected upstream to see injected header, got %q", got)
	}
	if got := w.Header().Get("X-Served-By"); got != "portway" {
		t.Errorf("expected response header added, got %q", got)
	}
}

func TestRetryRelaysLastUpstreamResponse(t *testing.T) {
	var hits atomic.Int64
	backend := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		w.WriteHeader(http.StatusServiceUnavailable)
		w.Write([]byte("maintenance"))
	}))
	defer backend.Close()

	cfg := baseConfig()
	cfg.Upstreams = []config.UpstreamConfig{{
		Name:    "api",
		Targets: []config.TargetConfig{targetOf(t, backend)},
		Retry: config.RetryConfig{
			MaxRetries: 2,
			RetryOn:    []int{503},
			Backoff:    time.Millisecond,
		},
		CircuitBreaker: config.CircuitBreakerConfig{FailureThreshold: 100},
	}}
	cfg.Services = []config.ServiceConfig{{
		Name:     "api",
		Upstream: "api",
		Routes:   []config.RouteConfig{{Paths: []string{"/api/*"}}},
	}}
	g := newTestGateway(t, cfg)

	w := serve(g, httptest.NewRequest(http.MethodGet, "/api/ping", nil))

	if got := hits.Load(); got != 3 {
		t.Errorf("expected 3 attempts, got %d", got)
	}
	if w.Code != http.StatusServiceUnavailable {
		t.Errorf("expected relayed 503, got %d", w.Code)
	}
	if w.Body.String() != "maintenance" {
		t.Errorf("expected upstream body relayed, got %q", w.Body.String())
	}
}

func TestRetrySwitchesToHealthySecondTarget(t *testing.T) {
	bad := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer bad.Close()
	good := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("ok"))
	}))
	defer good.Close()

	cfg := baseConfig()
	cfg.Upstreams = []config.UpstreamConfig{{
		Name:    "api",
		Targets: []config.TargetConfig{targetOf(t, bad), targetOf(t, good)},
		Retry: config.RetryConfig{
			MaxRetries: 2,
			RetryOn:    []int{502},
			Backoff:    time.Millisecond,
		},
	}}
	cfg.Services = []config.ServiceConfig{{
		Name:     "api",
		Upstream: "api",
		Routes:   []config.RouteConfig{{Paths: []string{"/api/*"}}},
	}}
	g := newTestGateway(t, cfg)

	w := serve(g, httptest.NewRequest(http.MethodGet, "/api/ping", nil))

	if w.Code != http.StatusOK {
		t.Errorf("expected status 200 after retry, got %d", w.Code)
	}
	if w.Body.String() != "ok" {
		t.Errorf("expected healthy target body, got %q", w.Body.String())
	}
}

func TestForwardedHeaders(t *testing.T) {
	var xff, proto, fhost, host, proxyAuth atomic.Value
	backend := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		xff.Store(r.Header.Get("X-Forwarded-For"))
		proto.Store(r.Header.Get("X-Forwarded-Proto"))
		fhost.Store(r.Header.Get("X-Forwarded-Host"))
		host.Store(r.Host)
		proxyAuth.Store(r.Header.Get("Proxy-Authorization"))
	}))
	defer backend.Close()

	cfg := baseConfig()
	cfg.Upstreams = []config.UpstreamConfig{{
		Name:    "api",
		Targets: []config.TargetConfig{targetOf(t, backend)},
	}}
	cfg.Services = []config.ServiceConfig{{
		Name:     "api",
		Upstream: "api",
		Routes:   []config.RouteConfig{{Paths: []string{"/api/*"}}},
	}}
	g := newTestGateway(t, cfg)

	r := httptest.NewRequest(http.MethodGet, "/api/ping", nil)
	r.Host = "api.example.com"
	r.RemoteAddr = "192.0.2.7:4411"
	r.Header.Set("X-Forwarded-For", "10.0.0.1")
	r.Header.Set("Proxy-Authorization", "Basic abc")
	serve(g, r)

	if got, _ := xff.Load().(string); got != "10.0.0.1, 192.0.2.7" {
		t.Errorf("expected X-Forwarded-For chain, got %q", got)
	}
	if got, _ := proto.Load().(string); got != "http" {
		t.Errorf("expected proto http, got %q", got)
	}
	if got, _ := fhost.Load().(string); got != "api.example.com" {
		t.Errorf("expected forwarded host, got %q", got)
	}
	backendHost := strings.TrimPrefix(backend.URL, "http://")
	if got, _ := host.Load().(string); got != backendHost {
		t.Errorf("expected target Host %q, got %q", backendHost, got)
	}
	if got, _ := proxyAuth.Load().(string); got != "" {
		t.Errorf("expected Proxy-Authorization stripped, got %q", got)
	}
}

func TestPreserveHostForwardsClientHost(t *testing.T) {
	var host atomic.Value
	backend := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		host.Store(r.Host)
	}))
	defer backend.Close()

	cfg := baseConfig()
	cfg.Upstreams = []config.UpstreamConfig{{
		Name:    "api",
		Targets: []config.TargetConfig{targetOf(t, backend)},
	}}
	cfg.Services = []config.ServiceConfig{{
		Name:     "api",
		Upstream: "api",
		Routes: []config.RouteConfig{{
			Paths:        []string{"/api/*"},
			PreserveHost: true,
		}},
	}}
	g := newTestGateway(t, cfg)

	r := httptest.NewRequest(http.MethodGet, "/api/ping", nil)
	r.Host = "api.example.com"
	serve(g, r)

	if got, _ := host.Load().(string); got != "api.example.com" {
		t.Errorf("expected client Host forwarded, got %q", got)
	}
}

func TestZeroWeightTargetExcluded(t *testing.T) {
	var excludedHits atomic.Int64
	excluded := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		excludedHits.Add(1)
	}))
	defer excluded.Close()
	active := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	defer active.Close()

	excludedTarget := targetOf(t, excluded)
	excludedTarget.Weight = config.Int(0)
	activeTarget := targetOf(t, active)
	activeTarget.Weight = config.Int(10)

	cfg := baseConfig()
	cfg.Upstreams = []config.UpstreamConfig{{
		Name:      "api",
		Algorithm: "weighted",
		Targets:   []config.TargetConfig{excludedTarget, activeTarget},
	}}
	cfg.Services = []config.ServiceConfig{{
		Name:     "api",
		Upstream: "api",
		Routes:   []config.RouteConfig{{Paths: []string{"/api/*"}}},
	}}
	g := newTestGateway(t, cfg)

	for i := 0; i < 10; i++ {
		if w := serve(g, httptest.NewRequest(http.MethodGet, "/api/ping", nil)); w.Code != http.StatusOK {
			t.Fatalf("request %d: expected status 200, got %d", i, w.Code)
		}
	}
	if got := excludedHits.Load(); got != 0 {
		t.Errorf("expected zero-weight target to receive no traffic, got %d hits", got)
	}
}

func TestActiveConnectionsReleasedOnEveryPath(t *testing.T) {
	failing := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer failing.Close()

	cfg := baseConfig()
	cfg.Upstreams = []config.UpstreamConfig{{
		Name:    "api",
		Targets: []config.TargetConfig{targetOf(t, failing)},
		Retry: config.RetryConfig{
			MaxRetries: 2,
			RetryOn:    []int{502},
			Backoff:    time.Millisecond,
		},
		CircuitBreaker: config.CircuitBreakerConfig{FailureThreshold: 100},
	}}
	cfg.Services = []config.ServiceConfig{{
		Name:     "api",
		Upstream: "api",
		Routes:   []config.RouteConfig{{Paths: []string{"/api/*"}}},
	}}
	g := newTestGateway(t, cfg)

	serve(g, httptest.NewRequest(http.MethodGet, "/api/ping", nil))

	snap, ok := g.Upstreams().Snapshot("api")
	if !ok {
		t.Fatal("expected upstream snapshot")
	}
	for _, target := range snap.Targets {
		if target.Active != 0 {
			t.Errorf("target %s:%d: expected 0 active connections, got %d",
				target.Host, target.Port, target.Active)
		}
	}
}

func TestStripPathAndQueryForwarding(t *testing.T) {
	var path, query atomic.Value
	backend := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		path.Store(r.URL.Path)
		query.Store(r.URL.RawQuery)
	}))
	defer backend.Close()

	cfg := baseConfig()
	cfg.Upstreams = []config.UpstreamConfig{{
		Name:    "api",
		Targets: []config.TargetConfig{targetOf(t, backend)},
	}}
	cfg.Services = []config.ServiceConfig{{
		Name:     "api",
		Upstream: "api",
		Path:     "/v2",
		Routes:   []config.RouteConfig{{Paths: []string{"/api/*"}}},
	}}
	g := newTestGateway(t, cfg)

	serve(g, httptest.NewRequest(http.MethodGet, "/api/users/42?page=3", nil))

	if got, _ := path.Load().(string); got != "/v2/users/42" {
		t.Errorf("expected stripped prefixed path, got %q", got)
	}
	if got, _ := query.Load().(string); got != "page=3" {
		t.Errorf("expected query preserved, got %q", got)
	}
}

func TestCompressionNegotiation(t *testing.T) {
	payload := strings.Repeat("portway compresses repetitive payloads. ", 64)
	backend := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(payload))
	}))
	defer backend.Close()

	cfg := baseConfig()
	cfg.Gateway.Compression = config.CompressionConfig{Enabled: true, MinSize: 64, Level: 5}
	cfg.Upstreams = []config.UpstreamConfig{{
		Name:    "api",
		Targets: []config.TargetConfig{targetOf(t, backend)},
	}}
	cfg.Services = []config.ServiceConfig{{
		Name:     "api",
		Upstream: "api",
		Routes:   []config.RouteConfig{{Paths: []string{"/api/*"}}},
	}}
	g := newTestGateway(t, cfg)

	r := httptest.NewRequest(http.MethodGet, "/api/blob", nil)
	r.Header.Set("Accept-Encoding", "gzip")
	w := serve(g, r)

	if enc := w.Header().Get("Content-Encoding"); enc != "gzip" {
		t.Fatalf("expected gzip encoding, got %q", enc)
	}
	zr, err := gzip.NewReader(bytes.NewReader(w.Body.Bytes()))
	if err != nil {
		t.Fatalf("gzip reader: %v", err)
	}
	decoded, err := io.ReadAll(zr)
	if err != nil {
		t.Fatalf("gzip read: %v", err)
	}
	if string(decoded) != payload {
		t.Error("expected round-tripped body to match")
	}

	// A client that accepts no encodings gets the identity body.
	plainResp := serve(g, httptest.NewRequest(http.MethodGet, "/api/blob", nil))
	if enc := plainResp.Header().Get("Content-Encoding"); enc != "" {
		t.Errorf("expected identity body, got encoding %q", enc)
	}
	if plainResp.Body.String() != payload {
		t.Error("expected identity body to match")
	}
}

func TestReloadSwapsRouteTable(t *testing.T) {
	backend := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	defer backend.Close()

	cfg := baseConfig()
	cfg.Upstreams = []config.UpstreamConfig{{
		Name:    "api",
		Targets: []config.TargetConfig{targetOf(t, backend)},
	}}
	cfg.Services = []config.ServiceConfig{{
		Name:     "api",
		Upstream: "api",
		Routes:   []config.RouteConfig{{Paths: []string{"/old/*"}}},
	}}
	g := newTestGateway(t, cfg)

	if w := serve(g, httptest.NewRequest(http.MethodGet, "/old/ping", nil)); w.Code != http.StatusOK {
		t.Fatalf("expected status 200 before reload, got %d", w.Code)
	}

	next := baseConfig()
	next.Upstreams = cfg.Upstreams
	next.Services = []config.ServiceConfig{{
		Name:     "api",
		Upstream: "api",
		Routes:   []config.RouteConfig{{Paths: []string{"/new/*"}}},
	}}
	if err := g.Reload(next); err != nil {
		t.Fatalf("Reload: %v", err)
	}

	if w := serve(g, httptest.NewRequest(http.MethodGet, "/old/ping", nil)); w.Code != http.StatusNotFound {
		t.Errorf("expected old route gone, got %d", w.Code)
	}
	if w := serve(g, httptest.NewRequest(http.MethodGet, "/new/ping", nil)); w.Code != http.StatusOK {
		t.Errorf("expected new route live, got %d", w.Code)
	}
}

func TestNoHealthyTargetReturns503(t *testing.T) {
	cfg := baseConfig()
	cfg.Upstreams = []config.UpstreamConfig{{
		Name: "api",
		Retry: config.RetryConfig{
			Enabled: config.Bool(false),
		},
	}}
	cfg.Services = []config.ServiceConfig{{
		Name:     "api",
		Upstream: "api",
		Routes:   []config.RouteConfig{{Paths: []string{"/api/*"}}},
	}}
	g := newTestGateway(t, cfg)

	w := serve(g, httptest.NewRequest(http.MethodGet, "/api/ping", nil))
	if w.Code != http.StatusServiceUnavailable {
		t.Errorf("expected status 503, got %d", w.Code)
	}
	if !strings.Contains(w.Body.String(), "no healthy upstream target") {
		t.Errorf("expected no-healthy-target body, got %q", w.Body.String())
	}
}

func TestUpstreamTimeoutReturns504(t *testing.T) {
	backend := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		time.Sleep(200 * time.Millisecond)
	}))
	defer backend.Close()

	cfg := baseConfig()
	cfg.Upstreams = []config.UpstreamConfig{{
		Name:    "api",
		Timeout: 20 * time.Millisecond,
		Targets: []config.TargetConfig{targetOf(t, backend)},
		Retry: config.RetryConfig{
			Enabled: config.Bool(false),
		},
	}}
	cfg.Services = []config.ServiceConfig{{
		Name:     "api",
		Upstream: "api",
		Routes:   []config.RouteConfig{{Paths: []string{"/api/*"}}},
	}}
	g := newTestGateway(t, cfg)

	w := serve(g, httptest.NewRequest(http.MethodGet, "/api/slow", nil))
	if w.Code != http.StatusGatewayTimeout {
		t.Errorf("expected status 504, got %d", w.Code)
	}
}
