package builtin

import (
	"bytes"
	"encoding/json"
	"net/http"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"github.com/wudi/portway/internal/logging"
	"github.com/wudi/portway/internal/plugin"
)

// HTTPLog emits a structured record per request via the gateway logger
// and, when configured, POSTs it to an external collector best-effort.
type HTTPLog struct {
	endpoint           string
	logRequestHeaders  bool
	logResponseHeaders bool

	client       *http.Client
	sendFailures atomic.Int64
}

type logRecord struct {
	Timestamp string           `json:"timestamp"`
	Request   logRecordRequest `json:"request"`
	Response  logRecordResp    `json:"response"`
	Latencies logRecordLatency `json:"latencies"`

	Consumer       string `json:"consumer,omitempty"`
	Service        string `json:"service,omitempty"`
	Route          string `json:"route,omitempty"`
	UpstreamTarget string `json:"upstream_target,omitempty"`
}

type logRecordRequest struct {
	ID       string      `json:"id"`
	Method   string      `json:"method"`
	Path     string      `json:"path"`
	Query    string      `json:"query,omitempty"`
	ClientIP string      `json:"client_ip"`
	Headers  http.Header `json:"headers,omitempty"`
}

type logRecordResp struct {
	Status  int         `json:"status"`
	Size    int         `json:"size"`
	Headers http.Header `json:"headers,omitempty"`
}

// Latencies in milliseconds: request is the full round trip, upstream the
// backend call, gateway the difference.
type logRecordLatency struct {
	Request  int64 `json:"request"`
	Upstream int64 `json:"upstream"`
	Gateway  int64 `json:"gateway"`
}

func init() {
	plugin.Register("logging", NewHTTPLog)
}

// NewHTTPLog builds the plugin from config options.
func NewHTTPLog(options map[string]any) (plugin.Plugin, error) {
	return &HTTPLog{
		endpoint:           plugin.OptString(options, "http_endpoint", ""),
		logRequestHeaders:  plugin.OptBool(options, "log_request_headers", false),
		logResponseHeaders: plugin.OptBool(options, "log_response_headers", false),
		client:             &http.Client{Timeout: 5 * time.Second},
	}, nil
}

func (p *HTTPLog) Name() string { return "logging" }

// Log builds the record, logs it, and ships it to the collector without
// ever affecting the request.
func (p *HTTPLog) Log(ctx *plugin.Context, resp *plugin.Response) {
	record := p.buildRecord(ctx, resp)

	logging.Info("request completed",
		zap.String("request_id", record.Request.ID),
		zap.String("method", record.Request.Method),
		zap.String("path", record.Request.Path),
		zap.String("client_ip", record.Request.ClientIP),
		zap.Int("status", record.Response.Status),
		zap.Int("size", record.Response.Size),
		zap.Int64("latency_ms", record.Latencies.Request),
		zap.String("service", record.Service),
		zap.String("upstream_target", record.UpstreamTarget))

	if p.endpoint != "" {
		go p.send(record)
	}
}

func (p *HTTPLog) buildRecord(ctx *plugin.Context, resp *plugin.Response) logRecord {
	finished := ctx.FinishedAt
	if finished.IsZero() {
		finished = time.Now()
	}

	record := logRecord{
		Timestamp: finished.UTC().Format(time.RFC3339Nano),
		Request: logRecordRequest{
			ID:       ctx.RequestID,
			Method:   ctx.Request.Method,
			Path:     ctx.Request.URL.Path,
			Query:    ctx.Request.URL.RawQuery,
			ClientIP: ctx.ClientIP,
		},
		Response: logRecordResp{
			Status: resp.StatusCode,
			Size:   len(resp.Body),
		},
		UpstreamTarget: ctx.UpstreamAddr,
	}

	if p.logRequestHeaders {
		record.Request.Headers = ctx.Request.Header
	}
	if p.logResponseHeaders {
		record.Response.Headers = resp.Header
	}

	record.Latencies.Request = finished.Sub(ctx.ReceivedAt).Milliseconds()
	if !ctx.UpstreamSentAt.IsZero() && !ctx.UpstreamReceivedAt.IsZero() {
		record.Latencies.Upstream = ctx.UpstreamReceivedAt.Sub(ctx.UpstreamSentAt).Milliseconds()
	}
	record.Latencies.Gateway = record.Latencies.Request - record.Latencies.Upstream

	if ctx.Consumer != nil {
		switch {
		case ctx.Consumer.Username != "":
			record.Consumer = ctx.Consumer.Username
		case ctx.Consumer.UserID != "":
			record.Consumer = ctx.Consumer.UserID
		}
	}
	if ctx.Match != nil {
		record.Service = ctx.Match.Service.Name
		record.Route = ctx.Match.Pattern
	}
	return record
}

// send posts the record to the collector. Failures are counted and
// logged, never surfaced.
func (p *HTTPLog) send(record logRecord) {
	body, err := json.Marshal(record)
	if err != nil {
		return
	}

	resp, err := p.client.Post(p.endpoint, "application/json", bytes.NewReader(body))
	if err != nil {
		p.sendFailures.Add(1)
		logging.Warn("log endpoint unreachable",
			zap.String("endpoint", p.endpoint),
			zap.Int64("failures", p.sendFailures.Load()),
			zap.Error(err))
		return
	}
	resp.Body.Close()

	if resp.StatusCode >= 400 {
		p.sendFailures.Add(1)
		logging.Warn("log endpoint rejected record",
			zap.String("endpoint", p.endpoint),
			zap.Int("status", resp.StatusCode),
			zap.Int64("failures", p.sendFailures.Load()))
	}
}
