package plugin

import (
	"net/http"
	"time"

	"github.com/wudi/portway/internal/errors"
	"github.com/wudi/portway/internal/router"
)

// Consumer identifies the authenticated caller, set by auth plugins.
type Consumer struct {
	Username  string
	CustomID  string
	UserID    string
	Anonymous bool
}

// Context carries one request through the plugin chain and the forward
// path. The request body is buffered up front so plugins can inspect it
// and retries can replay it.
type Context struct {
	Request   *http.Request
	Body      []byte
	ClientIP  string
	RequestID string
	Match     *router.Match
	Consumer  *Consumer

	// Forwarding state, filled by the gateway core
	UpstreamAddr string
	Attempts     int

	// Timing marks for latency reporting
	ReceivedAt         time.Time
	UpstreamSentAt     time.Time
	UpstreamReceivedAt time.Time
	FinishedAt         time.Time

	shortCircuit *Response
	stash        map[string]any
}

// Set stashes a per-request value, used by plugins that compute state in
// the access phase and consume it in a later phase.
func (c *Context) Set(key string, v any) {
	if c.stash == nil {
		c.stash = make(map[string]any)
	}
	c.stash[key] = v
}

// Value returns a stashed value, or nil.
func (c *Context) Value(key string) any {
	return c.stash[key]
}

// ShortCircuit installs a response and stops the access walk; the
// upstream is skipped and the response phase runs over the plugins
// reached so far.
func (c *Context) ShortCircuit(resp *Response) {
	c.shortCircuit = resp
}

// ShortCircuited returns the installed short-circuit response, or nil.
func (c *Context) ShortCircuited() *Response {
	return c.shortCircuit
}

// Response is the buffered response record that flows through the
// response phase regardless of origin.
type Response struct {
	StatusCode int
	Header     http.Header
	Body       []byte
}

// NewResponse creates an empty response with the given status.
func NewResponse(status int) *Response {
	return &Response{
		StatusCode: status,
		Header:     make(http.Header),
	}
}

// ErrorResponse builds the JSON response record for a PortwayError.
func ErrorResponse(pe *errors.PortwayError) *Response {
	resp := NewResponse(pe.Status)
	resp.Header.Set("Content-Type", "application/json")
	resp.Body = pe.JSON()
	return resp
}
