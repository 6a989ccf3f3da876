// Package gateway wires the router, plugin chains and upstream manager
// into the request path and hosts the ingress and admin servers.
package gateway

import (
	"io"
	"net"
	"net/http"
	"strconv"
	"strings"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"github.com/wudi/portway/internal/config"
	"github.com/wudi/portway/internal/errors"
	"github.com/wudi/portway/internal/logging"
	"github.com/wudi/portway/internal/metrics"
	"github.com/wudi/portway/internal/plugin"
	"github.com/wudi/portway/internal/router"
	"github.com/wudi/portway/internal/upstream"
)

// state is one immutable configuration generation. Reload builds a new
// state and swaps the pointer; in-flight requests keep the one they
// started with.
type state struct {
	cfg       *config.Config
	router    *router.Router
	chains    map[*router.Route]*plugin.Chain
	upstreams *upstream.Manager
}

// Gateway is the request-path core.
type Gateway struct {
	state   atomic.Pointer[state]
	metrics *metrics.Metrics
	client  *http.Client
}

// New builds the gateway from config. Health checkers start immediately.
func New(cfg *config.Config, m *metrics.Metrics) (*Gateway, error) {
	g := &Gateway{
		metrics: m,
		client: &http.Client{
			Transport: newTransport(),
			CheckRedirect: func(req *http.Request, via []*http.Request) error {
				// Redirects are relayed to the client, not followed
				return http.ErrUseLastResponse
			},
		},
	}

	st, err := g.buildState(cfg)
	if err != nil {
		return nil, err
	}
	g.state.Store(st)
	st.upstreams.Start()
	return g, nil
}

func (g *Gateway) buildState(cfg *config.Config) (*state, error) {
	manager, err := upstream.NewManager(cfg.Upstreams)
	if err != nil {
		return nil, err
	}
	manager.OnTargetHealthChange = func(name string, healthy int) {
		g.metrics.UpstreamHealthy.WithLabelValues(name).Set(float64(healthy))
	}

	rt := router.New(cfg)

	chains := make(map[*router.Route]*plugin.Chain)
	for _, svc := range rt.Services() {
		for _, route := range svc.Routes {
			chain, err := plugin.NewChain(route.Plugins)
			if err != nil {
				manager.Close()
				return nil, err
			}
			chains[route] = chain
		}
	}

	return &state{
		cfg:       cfg,
		router:    rt,
		chains:    chains,
		upstreams: manager,
	}, nil
}

// Reload swaps in a new configuration generation. The old upstream
// manager keeps serving in-flight requests and is closed afterwards.
func (g *Gateway) Reload(cfg *config.Config) error {
	st, err := g.buildState(cfg)
	if err != nil {
		return err
	}

	st.upstreams.Start()
	old := g.state.Swap(st)

	logging.Info("configuration reloaded",
		zap.Int("upstreams", len(cfg.Upstreams)),
		zap.Int("services", len(cfg.Services)))

	if old != nil {
		old.upstreams.Close()
	}
	return nil
}

// Close stops the current generation's health checkers.
func (g *Gateway) Close() {
	if st := g.state.Load(); st != nil {
		st.upstreams.Close()
	}
}

// Upstreams returns the live upstream manager (admin mutations apply to
// the current generation).
func (g *Gateway) Upstreams() *upstream.Manager {
	return g.state.Load().upstreams
}

// Config returns the current configuration generation.
func (g *Gateway) Config() *config.Config {
	return g.state.Load().cfg
}

// Router returns the current route table.
func (g *Gateway) Router() *router.Router {
	return g.state.Load().router
}

// ServeHTTP runs one request through match, access phase, forward,
// response phase, write, then the log phase.
func (g *Gateway) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	st := g.state.Load()
	received := time.Now()

	match, err := st.router.Match(r)
	if err != nil {
		pe, _ := errors.AsPortwayError(err)
		g.observe("", r.Method, pe.Status, received)
		pe.WriteJSON(w)
		return
	}

	body, err := io.ReadAll(r.Body)
	if err != nil {
		pe := errors.ErrBadRequest.WithDetail("failed to read request body")
		g.observe(match.Pattern, r.Method, pe.Status, received)
		pe.WriteJSON(w)
		return
	}
	r.Body.Close()

	ctx := &plugin.Context{
		Request:    r,
		Body:       body,
		ClientIP:   clientIP(r),
		RequestID:  r.Header.Get("X-Request-ID"),
		Match:      match,
		ReceivedAt: received,
	}

	chain := st.chains[match.Route]
	reached, accessErr := chain.RunAccess(ctx)

	var resp *plugin.Response
	switch {
	case accessErr != nil:
		resp = plugin.ErrorResponse(asPortwayError(accessErr))
	case ctx.ShortCircuited() != nil:
		resp = ctx.ShortCircuited()
	default:
		resp = g.forward(st, ctx)
	}

	chain.RunResponse(ctx, resp, reached)

	g.writeResponse(w, r, st, resp)
	ctx.FinishedAt = time.Now()

	g.observe(match.Pattern, r.Method, resp.StatusCode, received)
	if resp.StatusCode == http.StatusTooManyRequests {
		g.metrics.RateLimitRejected.WithLabelValues(match.Pattern).Inc()
	}

	go chain.RunLog(ctx, resp, reached)
}

func (g *Gateway) observe(route, method string, status int, start time.Time) {
	if route == "" {
		route = "unmatched"
	}
	g.metrics.RequestsTotal.WithLabelValues(route, method, strconv.Itoa(status)).Inc()
	g.metrics.RequestDuration.WithLabelValues(route, method).Observe(time.Since(start).Seconds())
}

// writeResponse copies the buffered record to the wire, compressing the
// body when configured and the client accepts it.
func (g *Gateway) writeResponse(w http.ResponseWriter, r *http.Request, st *state, resp *plugin.Response) {
	body := resp.Body

	for key, values := range resp.Header {
		w.Header()[key] = values
	}

	if encoding, compressed := g.compress(st.cfg.Gateway.Compression, r, resp); compressed != nil {
		body = compressed
		w.Header().Set("Content-Encoding", encoding)
		w.Header().Add("Vary", "Accept-Encoding")
	}

	w.Header().Set("Content-Length", strconv.Itoa(len(body)))
	w.WriteHeader(resp.StatusCode)
	w.Write(body)
}

func asPortwayError(err error) *errors.PortwayError {
	if pe, ok := errors.AsPortwayError(err); ok {
		return pe
	}
	return errors.ErrInternal.WithDetail(err.Error())
}

// clientIP returns the leftmost X-Forwarded-For entry, then X-Real-IP,
// then the socket address host.
func clientIP(r *http.Request) string {
	if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
		first, _, _ := strings.Cut(xff, ",")
		if ip := strings.TrimSpace(first); ip != "" {
			return ip
		}
	}
	if realIP := r.Header.Get("X-Real-IP"); realIP != "" {
		return realIP
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
