package gateway

import (
	"bytes"
	"net/http"
	"strings"

	"github.com/andybalholm/brotli"
	"github.com/klauspost/compress/gzip"

	"github.com/wudi/portway/internal/config"
	"github.com/wudi/portway/internal/plugin"
)

// compress encodes the response body when compression is enabled, the
// body is large enough, not already encoded, and the client accepts
// brotli or gzip. Returns a nil slice when the body should go out as-is.
func (g *Gateway) compress(cfg config.CompressionConfig, r *http.Request, resp *plugin.Response) (string, []byte) {
	if !cfg.Enabled || len(resp.Body) < cfg.MinSize {
		return "", nil
	}
	if resp.Header.Get("Content-Encoding") != "" {
		return "", nil
	}

	accepted := r.Header.Get("Accept-Encoding")
	var out bytes.Buffer

	switch {
	case acceptsEncoding(accepted, "br"):
		w := brotli.NewWriterLevel(&out, brotliLevel(cfg.Level))
		if _, err := w.Write(resp.Body); err != nil {
			return "", nil
		}
		if err := w.Close(); err != nil {
			return "", nil
		}
		if out.Len() >= len(resp.Body) {
			return "", nil
		}
		return "br", out.Bytes()

	case acceptsEncoding(accepted, "gzip"):
		w, err := gzip.NewWriterLevel(&out, gzipLevel(cfg.Level))
		if err != nil {
			return "", nil
		}
		if _, err := w.Write(resp.Body); err != nil {
			return "", nil
		}
		if err := w.Close(); err != nil {
			return "", nil
		}
		if out.Len() >= len(resp.Body) {
			return "", nil
		}
		return "gzip", out.Bytes()
	}

	return "", nil
}

func acceptsEncoding(accepted, encoding string) bool {
	for _, part := range strings.Split(accepted, ",") {
		name, _, _ := strings.Cut(strings.TrimSpace(part), ";")
		if strings.TrimSpace(name) == encoding {
			return true
		}
	}
	return false
}

// brotliLevel clamps the configured level to brotli's 0..11 range.
func brotliLevel(level int) int {
	if level < brotli.BestSpeed {
		return brotli.DefaultCompression
	}
	if level > brotli.BestCompression {
		return brotli.BestCompression
	}
	return level
}

// gzipLevel clamps the configured level to gzip's 1..9 range.
func gzipLevel(level int) int {
	if level < gzip.BestSpeed {
		return gzip.DefaultCompression
	}
	if level > gzip.BestCompression {
		return gzip.BestCompression
	}
	return level
}
