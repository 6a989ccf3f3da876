package builtin

import (
	"strings"

	"github.com/wudi/portway/internal/plugin"
)

// transformOps holds one operation's header and querystring entries.
// add/replace/append entries are "name:value"; remove entries are names;
// rename entries are "old:new".
type transformOps struct {
	headers     []string
	querystring []string
}

func opsFrom(options map[string]any, key string) transformOps {
	nested := plugin.OptMap(options, key)
	if nested == nil {
		return transformOps{}
	}
	return transformOps{
		headers:     plugin.OptStrings(nested, "headers"),
		querystring: plugin.OptStrings(nested, "querystring"),
	}
}

func splitPair(entry string) (string, string) {
	name, value, _ := strings.Cut(entry, ":")
	return strings.TrimSpace(name), strings.TrimSpace(value)
}

// RequestTransformer rewrites request headers and query parameters
// before forwarding: remove, then rename, then replace, then add and
// append. add never overwrites an existing value; replace only
// overwrites.
type RequestTransformer struct {
	remove  transformOps
	rename  transformOps
	replace transformOps
	add     transformOps
	appends transformOps
}

func init() {
	plugin.Register("request-transformer", NewRequestTransformer)
}

// NewRequestTransformer builds the plugin from config options.
func NewRequestTransformer(options map[string]any) (plugin.Plugin, error) {
	return &RequestTransformer{
		remove:  opsFrom(options, "remove"),
		rename:  opsFrom(options, "rename"),
		replace: opsFrom(options, "replace"),
		add:     opsFrom(options, "add"),
		appends: opsFrom(options, "append"),
	}, nil
}

func (t *RequestTransformer) Name() string { return "request-transformer" }

// Access applies the transformations in order.
func (t *RequestTransformer) Access(ctx *plugin.Context) error {
	header := ctx.Request.Header
	query := ctx.Request.URL.Query()

	for _, name := range t.remove.headers {
		header.Del(name)
	}
	for _, name := range t.remove.querystring {
		query.Del(name)
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
	for _, entry := range t.rename.querystring {
		from, to := splitPair(entry)
		if values, ok := query[from]; ok {
			delete(query, from)
			query[to] = values
		}
	}

	for _, entry := range t.replace.headers {
		name, value := splitPair(entry)
		if header.Get(name) != "" {
			header.Set(name, value)
		}
	}
	for _, entry := range t.replace.querystring {
		name, value := splitPair(entry)
		if _, ok := query[name]; ok {
			query[name] = []string{value}
		}
	}

	for _, entry := range t.add.headers {
		name, value := splitPair(entry)
		if header.Get(name) == "" {
			header.Set(name, value)
		}
	}
	for _, entry := range t.add.querystring {
		name, value := splitPair(entry)
		if _, ok := query[name]; !ok {
			query.Set(name, value)
		}
	}

	for _, entry := range t.appends.headers {
		name, value := splitPair(entry)
		header.Add(name, value)
	}
	for _, entry := range t.appends.querystring {
		name, value := splitPair(entry)
		query.Add(name, value)
	}

	if len(query) == 0 {
		ctx.Request.URL.RawQuery = ""
	} else {
		ctx.Request.URL.RawQuery = query.Encode()
	}
	return nil
}
