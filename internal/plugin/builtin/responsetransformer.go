package builtin

import (
	"encoding/json"
	"strconv"
	"strings"

	"github.com/tidwall/gjson"
	"github.com/tidwall/sjson"

	"github.com/wudi/portway/internal/plugin"
)

// jsonOps holds one operation's json field entries alongside headers.
type jsonOps struct {
	headers []string
	json    []string
}

func jsonOpsFrom(options map[string]any, key string) jsonOps {
	nested := plugin.OptMap(options, key)
	if nested == nil {
		return jsonOps{}
	}
	return jsonOps{
		headers: plugin.OptStrings(nested, "headers"),
		json:    plugin.OptStrings(nested, "json"),
	}
}

// ResponseTransformer rewrites response headers and, when the body is
// JSON, top-level body fields. Order matches the request transformer:
// remove, rename, replace, add, append.
type ResponseTransformer struct {
	remove  jsonOps
	rename  jsonOps
	replace jsonOps
	add     jsonOps
	appends jsonOps
}

func init() {
	plugin.Register("response-transformer", NewResponseTransformer)
}

// NewResponseTransformer builds the plugin from config options.
func NewResponseTransformer(options map[string]any) (plugin.Plugin, error) {
	return &ResponseTransformer{
		remove:  jsonOpsFrom(options, "remove"),
		rename:  jsonOpsFrom(options, "rename"),
		replace: jsonOpsFrom(options, "replace"),
		add:     jsonOpsFrom(options, "add"),
		appends: jsonOpsFrom(options, "append"),
	}, nil
}

func (t *ResponseTransformer) Name() string { return "response-transformer" }

// Respond applies header and JSON body transformations.
func (t *ResponseTransformer) Respond(ctx *plugin.Context, resp *plugin.Response) error {
	t.transformHeaders(resp)
	t.transformBody(resp)
	return nil
}

func (t *ResponseTransformer) transformHeaders(resp *plugin.Response) {
	header := resp.Header

	for _, name := range t.remove.headers {
		header.Del(name)
	}
	for _, entry := range t.rename.headers {
		from, to := splitPair(entry)
		if values := header.Values(from); len(values) > 0 {
			header.Del(from)
			for _, v := range values {
				header.Add(to, v)
			}
		}
	}
	for _, entry := range t.replace.headers {
		name, value := splitPair(entry)
		if header.Get(name) != "" {
			header.Set(name, value)
		}
	}
	for _, entry := range t.add.headers {
		name, value := splitPair(entry)
		if header.Get(name) == "" {
			header.Set(name, value)
		}
	}
	for _, entry := range t.appends.headers {
		name, value := splitPair(entry)
		header.Add(name, value)
	}
}

func (t *ResponseTransformer) transformBody(resp *plugin.Response) {
	if len(resp.Body) == 0 || !isJSONContentType(resp.Header.Get("Content-Type")) {
		return
	}
	if len(t.remove.json) == 0 && len(t.rename.json) == 0 &&
		len(t.replace.json) == 0 && len(t.add.json) == 0 {
		return
	}

	body := resp.Body

	for _, field := range t.remove.json {
		body, _ = sjson.DeleteBytes(body, field)
	}
	for _, entry := range t.rename.json {
		from, to := splitPair(entry)
		if value := gjson.GetBytes(body, from); value.Exists() {
			body, _ = sjson.SetRawBytes(body, to, []byte(value.Raw))
			body, _ = sjson.DeleteBytes(body, from)
		}
	}
	for _, entry := range t.replace.json {
		field, value := splitPair(entry)
		if gjson.GetBytes(body, field).Exists() {
			body = setJSONField(body, field, value)
		}
	}
	for _, entry := range t.add.json {
		field, value := splitPair(entry)
		if !gjson.GetBytes(body, field).Exists() {
			body = setJSONField(body, field, value)
		}
	}

	resp.Body = body
	resp.Header.Set("Content-Length", strconv.Itoa(len(body)))
}

// setJSONField writes a scalar value, keeping JSON types when the value
// parses as JSON (numbers, booleans, null) and falling back to a string.
func setJSONField(body []byte, field, value string) []byte {
	if json.Valid([]byte(value)) {
		out, err := sjson.SetRawBytes(body, field, []byte(value))
		if err == nil {
			return out
		}
	}
	out, err := sjson.SetBytes(body, field, value)
	if err != nil {
		return body
	}
	return out
}

func isJSONContentType(ct string) bool {
	ct = strings.ToLower(ct)
	return strings.Contains(ct, "application/json") || strings.Contains(ct, "+json")
}
