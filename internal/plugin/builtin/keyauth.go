package builtin

import (
	"fmt"

	"github.com/wudi/portway/internal/errors"
	"github.com/wudi/portway/internal/plugin"
)

type keyConsumer struct {
	username string
	customID string
}

// KeyAuth authenticates requests by a static API key carried in a header
// or query parameter.
type KeyAuth struct {
	keys            map[string]keyConsumer
	keyNames        []string
	keyInQuery      bool
	hideCredentials bool
}

func init() {
	plugin.Register("key-auth", NewKeyAuth)
}

// NewKeyAuth builds the plugin from config options. The keys mapping
// accepts a scalar username or a {username, custom_id} mapping per key.
func NewKeyAuth(options map[string]any) (plugin.Plugin, error) {
	rawKeys := plugin.OptMap(options, "keys")
	if len(rawKeys) == 0 {
		return nil, fmt.Errorf("keys mapping is required")
	}

	keys := make(map[string]keyConsumer, len(rawKeys))
	for key, value := range rawKeys {
		switch v := value.(type) {
		case string:
			keys[key] = keyConsumer{username: v}
		case map[string]any:
			keys[key] = keyConsumer{
				username: plugin.OptString(v, "username", ""),
				customID: plugin.OptString(v, "custom_id", ""),
			}
		default:
			return nil, fmt.Errorf("key %q: expected username string or mapping", key)
		}
	}

	keyNames := plugin.OptStrings(options, "key_names")
	if len(keyNames) == 0 {
		keyNames = []string{"apikey", "X-API-Key"}
	}

	return &KeyAuth{
		keys:            keys,
		keyNames:        keyNames,
		keyInQuery:      plugin.OptBool(options, "key_in_query", true),
		hideCredentials: plugin.OptBool(options, "hide_credentials", true),
	}, nil
}

func (k *KeyAuth) Name() string { return "key-auth" }

// Access looks the key up and attaches the consumer identity.
func (k *KeyAuth) Access(ctx *plugin.Context) error {
	key, fromHeader, name := k.findKey(ctx)
	if key == "" {
		return errors.ErrUnauthorized.WithDetail("no API key found in request")
	}

	consumer, ok := k.keys[key]
	if !ok {
		return errors.ErrUnauthorized.WithDetail("invalid API key")
	}

	ctx.Consumer = &plugin.Consumer{
		Username: consumer.username,
		CustomID: consumer.customID,
	}
	if consumer.username != "" {
		ctx.Request.Header.Set("X-Consumer-Username", consumer.username)
	}
	if consumer.customID != "" {
		ctx.Request.Header.Set("X-Consumer-Custom-ID", consumer.customID)
	}

	if k.hideCredentials {
		if fromHeader {
			ctx.Request.Header.Del(name)
		} else {
			q := ctx.Request.URL.Query()
			q.Del(name)
			ctx.Request.URL.RawQuery = q.Encode()
		}
	}
	return nil
}

// findKey returns the key, whether it came from a header, and the
// header/parameter name it was found under.
func (k *KeyAuth) findKey(ctx *plugin.Context) (string, bool, string) {
	for _, name := range k.keyNames {
		if v := ctx.Request.Header.Get(name); v != "" {
			return v, true, name
		}
	}
	if k.keyInQuery {
		q := ctx.Request.URL.Query()
		for _, name := range k.keyNames {
			if v := q.Get(name); v != "" {
				return v, false, name
			}
		}
	}
	return "", false, ""
}
