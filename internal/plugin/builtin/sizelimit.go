package builtin

import (
	"github.com/wudi/portway/internal/errors"
	"github.com/wudi/portway/internal/plugin"
)

// SizeLimit rejects requests whose payload exceeds a configured size.
// The declared Content-Length is checked first; requests without one
// are judged by the buffered body.
type SizeLimit struct {
	limitBytes           int64
	requireContentLength bool
}

func init() {
	plugin.Register("request-size-limiting", NewSizeLimit)
}

// NewSizeLimit builds the plugin from config options.
// allowed_payload_size is in megabytes, default 128.
func NewSizeLimit(options map[string]any) (plugin.Plugin, error) {
	sizeMB := plugin.OptInt(options, "allowed_payload_size", 128)
	return &SizeLimit{
		limitBytes:           int64(sizeMB) * 1024 * 1024,
		requireContentLength: plugin.OptBool(options, "require_content_length", false),
	}, nil
}

func (p *SizeLimit) Name() string { return "request-size-limiting" }

// Access enforces the size limit.
func (p *SizeLimit) Access(ctx *plugin.Context) error {
	declared := ctx.Request.ContentLength

	if p.requireContentLength && declared < 0 {
		ctx.ShortCircuit(plugin.ErrorResponse(errors.New(411, "content length required")))
		return nil
	}

	if declared > p.limitBytes || int64(len(ctx.Body)) > p.limitBytes {
		resp := plugin.ErrorResponse(errors.ErrPayloadTooLarge)
		resp.Header.Set("Retry-After", "0")
		ctx.ShortCircuit(resp)
	}
	return nil
}
