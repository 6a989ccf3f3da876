package plugin

import (
	"go.uber.org/zap"

	"github.com/wudi/portway/internal/config"
	"github.com/wudi/portway/internal/logging"
)

// Chain is a compiled plugin list for one route, in execution order.
// Chains are compiled at config load/reload so option errors never
// surface per request.
type Chain struct {
	plugins []Plugin
}

// NewChain builds the chain from merged plugin configs. Disabled
// entries are skipped.
func NewChain(cfgs []config.PluginConfig) (*Chain, error) {
	c := &Chain{}
	for i := range cfgs {
		if !cfgs[i].IsEnabled() {
			continue
		}
		p, err := Build(cfgs[i])
		if err != nil {
			return nil, err
		}
		c.plugins = append(c.plugins, p)
	}
	return c, nil
}

// Plugins returns the compiled plugins in execution order.
func (c *Chain) Plugins() []Plugin {
	return c.plugins
}

// RunAccess walks the access phase in order. It returns how many plugins
// the walk reached; the response and log phases run over exactly that
// prefix. A non-nil error or an installed short-circuit stops the walk.
func (c *Chain) RunAccess(ctx *Context) (int, error) {
	for i, p := range c.plugins {
		a, ok := p.(Accessor)
		if !ok {
			continue
		}
		if err := a.Access(ctx); err != nil {
			return i + 1, err
		}
		if ctx.ShortCircuited() != nil {
			return i + 1, nil
		}
	}
	return len(c.plugins), nil
}

// RunResponse walks the response phase in reverse over the reached
// prefix. Plugin errors are logged and do not stop the response.
func (c *Chain) RunResponse(ctx *Context, resp *Response, reached int) {
	if reached > len(c.plugins) {
		reached = len(c.plugins)
	}
	for i := reached - 1; i >= 0; i-- {
		r, ok := c.plugins[i].(Responder)
		if !ok {
			continue
		}
		if err := r.Respond(ctx, resp); err != nil {
			logging.Error("response plugin failed",
				zap.String("plugin", c.plugins[i].Name()),
				zap.String("request_id", ctx.RequestID),
				zap.Error(err))
		}
	}
}

// RunLog walks the log phase in order over the reached prefix. Panics
// are swallowed so logging can never affect the request.
func (c *Chain) RunLog(ctx *Context, resp *Response, reached int) {
	if reached > len(c.plugins) {
		reached = len(c.plugins)
	}
	for i := 0; i < reached; i++ {
		l, ok := c.plugins[i].(Logger)
		if !ok {
			continue
		}
		func() {
			defer func() {
				if r := recover(); r != nil {
					logging.Error("log plugin panicked",
						zap.String("plugin", c.plugins[i].Name()),
						zap.Any("panic", r))
				}
			}()
			l.Log(ctx, resp)
		}()
	}
}
