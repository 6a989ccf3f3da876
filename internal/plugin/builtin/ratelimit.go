package builtin

import (
	"fmt"
	"strconv"
	"sync"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"

	"github.com/wudi/portway/internal/errors"
	"github.com/wudi/portway/internal/plugin"
)

const rateLimitHeadersKey = "rate-limiting.headers"

// counterStoreSize bounds each window's counter store; entries also
// expire shortly after their window closes.
const counterStoreSize = 16384

type rateWindow struct {
	name    string
	seconds int64
	limit   int

	mu    sync.Mutex
	store *expirable.LRU[string, *windowCounter]
}

type windowCounter struct {
	n int
}

// RateLimit enforces fixed-window request counters per client identity.
type RateLimit struct {
	windows           []*rateWindow
	limitBy           string
	headerName        string
	hideClientHeaders bool
}

func init() {
	plugin.Register("rate-limiting", NewRateLimit)
}

// NewRateLimit builds the plugin from config options. At least one of
// second/minute/hour/day must be set; only the local policy is supported.
func NewRateLimit(options map[string]any) (plugin.Plugin, error) {
	if policy := plugin.OptString(options, "policy", "local"); policy != "local" {
		return nil, fmt.Errorf("unsupported policy %q, only local is available", policy)
	}

	limitBy := plugin.OptString(options, "limit_by", "ip")
	switch limitBy {
	case "ip", "consumer", "credential", "header":
	default:
		return nil, fmt.Errorf("unknown limit_by %q", limitBy)
	}

	headerName := plugin.OptString(options, "header_name", "")
	if limitBy == "header" && headerName == "" {
		return nil, fmt.Errorf("header_name is required when limit_by is header")
	}

	rl := &RateLimit{
		limitBy:           limitBy,
		headerName:        headerName,
		hideClientHeaders: plugin.OptBool(options, "hide_client_headers", false),
	}

	for _, w := range []struct {
		name    string
		seconds int64
	}{
		{"second", 1},
		{"minute", 60},
		{"hour", 3600},
		{"day", 86400},
	} {
		limit := plugin.OptInt(options, w.name, 0)
		if limit <= 0 {
			continue
		}
		ttl := time.Duration(w.seconds)*time.Second + 5*time.Second
		rl.windows = append(rl.windows, &rateWindow{
			name:    w.name,
			seconds: w.seconds,
			limit:   limit,
			store:   expirable.NewLRU[string, *windowCounter](counterStoreSize, nil, ttl),
		})
	}

	if len(rl.windows) == 0 {
		return nil, fmt.Errorf("at least one of second, minute, hour, day is required")
	}
	return rl, nil
}

func (rl *RateLimit) Name() string { return "rate-limiting" }

// Access checks every window before counting: a rejected request never
// consumes quota. Check and consume happen under one critical section
// across all windows so concurrent requests at the limit cannot both
// pass the check before either increments.
func (rl *RateLimit) Access(ctx *plugin.Context) error {
	id := rl.identifier(ctx)
	now := time.Now().Unix()

	for _, w := range rl.windows {
		w.mu.Lock()
	}
	defer func() {
		for _, w := range rl.windows {
			w.mu.Unlock()
		}
	}()

	headers := make(map[string]string, len(rl.windows)*2)
	var exceeded *rateWindow
	retryAfter := int64(0)

	for _, w := range rl.windows {
		key := fmt.Sprintf("%s:%d", id, now-now%w.seconds)
		n := w.peek(key)

		remaining := w.limit - n
		if remaining < 0 {
			remaining = 0
		}
		headers["X-RateLimit-Limit-"+w.name] = strconv.Itoa(w.limit)
		headers["X-RateLimit-Remaining-"+w.name] = strconv.Itoa(remaining)

		if n >= w.limit {
			reset := (now - now%w.seconds) + w.seconds - now
			if exceeded == nil || reset < retryAfter {
				exceeded = w
				retryAfter = reset
			}
		}
	}

	if exceeded != nil {
		resp := plugin.ErrorResponse(errors.ErrRateLimited)
		resp.Header.Set("Retry-After", strconv.FormatInt(retryAfter, 10))
		if !rl.hideClientHeaders {
			for k, v := range headers {
				resp.Header.Set(k, v)
			}
		}
		ctx.ShortCircuit(resp)
		return nil
	}

	// All windows allow: consume one unit from each and restate remaining
	for _, w := range rl.windows {
		key := fmt.Sprintf("%s:%d", id, now-now%w.seconds)
		n := w.bump(key)

		remaining := w.limit - n
		if remaining < 0 {
			remaining = 0
		}
		headers["X-RateLimit-Remaining-"+w.name] = strconv.Itoa(remaining)
	}

	if !rl.hideClientHeaders {
		ctx.Set(rateLimitHeadersKey, headers)
	}
	return nil
}

// Respond attaches the limit headers to allowed responses.
func (rl *RateLimit) Respond(ctx *plugin.Context, resp *plugin.Response) error {
	headers, ok := ctx.Value(rateLimitHeadersKey).(map[string]string)
	if !ok {
		return nil
	}
	for k, v := range headers {
		resp.Header.Set(k, v)
	}
	return nil
}

func (rl *RateLimit) identifier(ctx *plugin.Context) string {
	switch rl.limitBy {
	case "consumer":
		if ctx.Consumer != nil {
			if ctx.Consumer.Username != "" {
				return "consumer:" + ctx.Consumer.Username
			}
			if ctx.Consumer.UserID != "" {
				return "consumer:" + ctx.Consumer.UserID
			}
		}
	case "credential":
		if ctx.Consumer != nil && ctx.Consumer.CustomID != "" {
			return "credential:" + ctx.Consumer.CustomID
		}
		if ctx.Consumer != nil && ctx.Consumer.UserID != "" {
			return "credential:" + ctx.Consumer.UserID
		}
	case "header":
		if v := ctx.Request.Header.Get(rl.headerName); v != "" {
			return "header:" + v
		}
	}
	return "ip:" + ctx.ClientIP
}

// peek and bump expect the caller to hold w.mu.

func (w *rateWindow) peek(key string) int {
	if c, ok := w.store.Get(key); ok {
		return c.n
	}
	return 0
}

func (w *rateWindow) bump(key string) int {
	c, ok := w.store.Get(key)
	if !ok {
		c = &windowCounter{}
		w.store.Add(key, c)
	}
	c.n++
	return c.n
}
