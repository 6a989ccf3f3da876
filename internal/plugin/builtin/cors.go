package builtin

import (
	"net/http"
	"strconv"
	"strings"

	"github.com/wudi/portway/internal/errors"
	"github.com/wudi/portway/internal/plugin"
)

// CORS answers preflight requests and decorates responses with
// cross-origin headers.
type CORS struct {
	origins        []string
	wildcard       bool
	methods        []string
	headers        []string
	exposedHeaders []string
	credentials    bool
	maxAge         int
}

func init() {
	plugin.Register("cors", NewCORS)
}

// NewCORS builds the plugin from config options.
func NewCORS(options map[string]any) (plugin.Plugin, error) {
	origins := plugin.OptStrings(options, "origins")
	if len(origins) == 0 {
		origins = []string{"*"}
	}

	wildcard := false
	for _, o := range origins {
		if o == "*" {
			wildcard = true
		}
	}

	methods := plugin.OptStrings(options, "methods")
	if len(methods) == 0 {
		methods = []string{"GET", "POST", "PUT", "DELETE", "PATCH", "OPTIONS"}
	}

	return &CORS{
		origins:        origins,
		wildcard:       wildcard,
		methods:        methods,
		headers:        plugin.OptStrings(options, "headers"),
		exposedHeaders: plugin.OptStrings(options, "exposed_headers"),
		credentials:    plugin.OptBool(options, "credentials", false),
		maxAge:         plugin.OptInt(options, "max_age", 3600),
	}, nil
}

func (c *CORS) Name() string { return "cors" }

// Access short-circuits preflight requests.
func (c *CORS) Access(ctx *plugin.Context) error {
	origin := ctx.Request.Header.Get("Origin")
	if origin == "" || ctx.Request.Method != http.MethodOptions {
		return nil
	}

	if !c.originAllowed(origin) {
		ctx.ShortCircuit(plugin.ErrorResponse(errors.ErrForbidden.WithDetail("origin not allowed")))
		return nil
	}

	resp := plugin.NewResponse(http.StatusNoContent)
	resp.Header.Set("Access-Control-Allow-Origin", c.allowOriginValue(origin))
	resp.Header.Set("Access-Control-Allow-Methods", strings.Join(c.methods, ", "))
	resp.Header.Set("Access-Control-Max-Age", strconv.Itoa(c.maxAge))
	resp.Header.Add("Vary", "Origin")

	if len(c.headers) > 0 {
		resp.Header.Set("Access-Control-Allow-Headers", strings.Join(c.headers, ", "))
	} else if requested := ctx.Request.Header.Get("Access-Control-Request-Headers"); requested != "" {
		resp.Header.Set("Access-Control-Allow-Headers", requested)
	}
	if c.credentials {
		resp.Header.Set("Access-Control-Allow-Credentials", "true")
	}

	ctx.ShortCircuit(resp)
	return nil
}

// Respond adds cross-origin headers to non-preflight responses.
func (c *CORS) Respond(ctx *plugin.Context, resp *plugin.Response) error {
	origin := ctx.Request.Header.Get("Origin")
	if origin == "" || !c.originAllowed(origin) {
		return nil
	}
	if resp.Header.Get("Access-Control-Allow-Origin") != "" {
		return nil
	}

	resp.Header.Set("Access-Control-Allow-Origin", c.allowOriginValue(origin))
	resp.Header.Add("Vary", "Origin")

	if c.credentials {
		resp.Header.Set("Access-Control-Allow-Credentials", "true")
	}
	if len(c.exposedHeaders) > 0 {
		resp.Header.Set("Access-Control-Expose-Headers", strings.Join(c.exposedHeaders, ", "))
	}
	return nil
}

func (c *CORS) originAllowed(origin string) bool {
	if c.wildcard {
		return true
	}
	for _, o := range c.origins {
		if o == origin {
			return true
		}
	}
	return false
}

// allowOriginValue echoes the origin when explicitly listed, or when
// credentials are on (a literal * is invalid with credentials).
func (c *CORS) allowOriginValue(origin string) string {
	if c.wildcard && !c.credentials {
		return "*"
	}
	return origin
}
