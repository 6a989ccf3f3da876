package gateway

import (
	"bytes"
	"context"
	stderrors "errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"time"

	"github.com/cenkalti/backoff/v4"
	"go.uber.org/zap"

	"github.com/wudi/portway/internal/errors"
	"github.com/wudi/portway/internal/loadbalancer"
	"github.com/wudi/portway/internal/logging"
	"github.com/wudi/portway/internal/plugin"
	"github.com/wudi/portway/internal/upstream"
)

// hopByHopHeaders are stripped in both directions. The outbound Host is
// the target's unless the route sets preserve_host.
var hopByHopHeaders = []string{
	"Connection",
	"Proxy-Connection",
	"Keep-Alive",
	"Proxy-Authenticate",
	"Proxy-Authorization",
	"Te",
	"Trailer",
	"Trailers",
	"Transfer-Encoding",
	"Upgrade",
}

func newTransport() *http.Transport {
	return &http.Transport{
		DialContext: (&net.Dialer{
			Timeout:   30 * time.Second,
			KeepAlive: 30 * time.Second,
		}).DialContext,
		MaxIdleConns:          256,
		MaxIdleConnsPerHost:   32,
		IdleConnTimeout:       90 * time.Second,
		ExpectContinueTimeout: time.Second,
	}
}

// forward runs the attempt loop: select a target, send, classify, retry
// with exponential backoff while the policy allows. On exhaustion the
// last real upstream response is relayed if one exists; otherwise the
// last failure is mapped to 503/504/502.
func (g *Gateway) forward(st *state, ctx *plugin.Context) *plugin.Response {
	name := ctx.Match.Service.Upstream
	u, ok := st.upstreams.Get(name)
	if !ok {
		return plugin.ErrorResponse(errors.ErrUpstream.WithDetail(
			fmt.Sprintf("unknown upstream %s", name)))
	}

	reqCtx := ctx.Request.Context()
	if overall := st.cfg.Gateway.RequestTimeout; overall > 0 {
		var cancel context.CancelFunc
		reqCtx, cancel = context.WithTimeout(reqCtx, overall)
		defer cancel()
	}

	retry := u.Retry()
	maxAttempts := 1
	if retry.IsEnabled() {
		maxAttempts = retry.MaxRetries + 1
	}
	retryOn := make(map[int]bool, len(retry.RetryOn))
	for _, code := range retry.RetryOn {
		retryOn[code] = true
	}

	expo := backoff.NewExponentialBackOff()
	expo.InitialInterval = retry.Backoff
	expo.Multiplier = 2
	expo.MaxElapsedTime = 0

	var lastResp *plugin.Response
	var lastErr error

	for attempt := 1; attempt <= maxAttempts; attempt++ {
		ctx.Attempts = attempt
		if attempt > 1 {
			g.metrics.UpstreamRetries.WithLabelValues(name).Inc()
			if !sleepBackoff(reqCtx, expo.NextBackOff()) {
				break
			}
		}

		target, err := st.upstreams.Select(name, ctx.ClientIP)
		if err != nil {
			lastErr = err
			if pe, ok := errors.AsPortwayError(err); ok && pe == errors.ErrCircuitOpen {
				g.metrics.CircuitBreakerOpened.WithLabelValues(name).Inc()
			}
			continue
		}

		resp, err := func() (*plugin.Response, error) {
			defer st.upstreams.Release(target)
			return g.attempt(reqCtx, ctx, u, target)
		}()

		switch {
		case err != nil:
			st.upstreams.Report(name, target, false)
			lastErr = err
			logging.Warn("upstream attempt failed",
				zap.String("upstream", name),
				zap.String("target", target.Name()),
				zap.Int("attempt", attempt),
				zap.Error(err))

		case retryOn[resp.StatusCode]:
			st.upstreams.Report(name, target, false)
			lastResp, lastErr = resp, nil

		default:
			st.upstreams.Report(name, target, true)
			return resp
		}

		if reqCtx.Err() != nil {
			break
		}
	}

	if lastResp != nil {
		return lastResp
	}
	return plugin.ErrorResponse(classifyFailure(reqCtx, lastErr))
}

// attempt sends the buffered request to one target and buffers the
// response.
func (g *Gateway) attempt(reqCtx context.Context, ctx *plugin.Context, u *upstream.Upstream, target *loadbalancer.Target) (*plugin.Response, error) {
	attemptCtx, cancel := context.WithTimeout(reqCtx, u.Timeout())
	defer cancel()

	outURL := target.URL() + ctx.Match.ForwardPath
	if rq := ctx.Request.URL.RawQuery; rq != "" {
		outURL += "?" + rq
	}

	out, err := http.NewRequestWithContext(attemptCtx, ctx.Request.Method, outURL,
		bytes.NewReader(ctx.Body))
	if err != nil {
		return nil, err
	}

	copyHeaders(out.Header, ctx.Request.Header)
	if ctx.Match.Route.PreserveHost {
		out.Host = ctx.Request.Host
	}
	setForwardedHeaders(out, ctx.Request)

	ctx.UpstreamAddr = target.Name()
	ctx.UpstreamSentAt = time.Now()

	res, err := g.client.Do(out)
	if err != nil {
		return nil, err
	}
	defer res.Body.Close()

	body, err := io.ReadAll(res.Body)
	ctx.UpstreamReceivedAt = time.Now()
	if err != nil {
		return nil, err
	}

	resp := plugin.NewResponse(res.StatusCode)
	copyHeaders(resp.Header, res.Header)
	resp.Body = body
	return resp, nil
}

func copyHeaders(dst, src http.Header) {
	for key, values := range src {
		dst[key] = append([]string(nil), values...)
	}
	for _, name := range hopByHopHeaders {
		dst.Del(name)
	}
}

// setForwardedHeaders appends the socket client IP to X-Forwarded-For
// and sets X-Forwarded-Proto and X-Forwarded-Host.
func setForwardedHeaders(out *http.Request, in *http.Request) {
	socketIP := in.RemoteAddr
	if host, _, err := net.SplitHostPort(in.RemoteAddr); err == nil {
		socketIP = host
	}

	if prior := in.Header.Get("X-Forwarded-For"); prior != "" {
		out.Header.Set("X-Forwarded-For", prior+", "+socketIP)
	} else {
		out.Header.Set("X-Forwarded-For", socketIP)
	}

	proto := "http"
	if in.TLS != nil {
		proto = "https"
	}
	out.Header.Set("X-Forwarded-Proto", proto)
	out.Header.Set("X-Forwarded-Host", in.Host)
}

// sleepBackoff waits for the delay or the request context, whichever
// ends first. Reports whether the wait completed.
func sleepBackoff(ctx context.Context, delay time.Duration) bool {
	if delay <= 0 {
		return ctx.Err() == nil
	}
	timer := time.NewTimer(delay)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return false
	case <-timer.C:
		return true
	}
}

// classifyFailure maps the terminal failure to a client error: select
// errors keep their own status, timeouts become 504, everything else 502.
func classifyFailure(reqCtx context.Context, err error) *errors.PortwayError {
	if err == nil {
		return errors.ErrUpstream
	}
	if pe, ok := errors.AsPortwayError(err); ok {
		return pe
	}
	if reqCtx.Err() == context.DeadlineExceeded || isTimeout(err) {
		return errors.ErrUpstreamTimeout
	}
	return errors.ErrUpstream.WithDetail(err.Error())
}

func isTimeout(err error) bool {
	if stderrors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var ne net.Error
	return stderrors.As(err, &ne) && ne.Timeout()
}
