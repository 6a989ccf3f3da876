// Package builtin registers the built-in plugins. Importing it for side
// effects makes every plugin available to the registry.
package builtin

import (
	"fmt"
	"strings"

	"github.com/golang-jwt/jwt/v5"

	"github.com/wudi/portway/internal/errors"
	"github.com/wudi/portway/internal/plugin"
)

// JWTAuth verifies bearer tokens signed with a shared HMAC secret.
type JWTAuth struct {
	secret         []byte
	algorithm      string
	headerNames    []string
	claimsToVerify []string
	anonymous      string

	parseOptions []jwt.ParserOption
}

func init() {
	plugin.Register("jwt-auth", NewJWTAuth)
}

// NewJWTAuth builds the plugin from config options.
func NewJWTAuth(options map[string]any) (plugin.Plugin, error) {
	secret := plugin.OptString(options, "secret", "")
	if secret == "" {
		return nil, fmt.Errorf("secret is required")
	}

	algorithm := plugin.OptString(options, "algorithm", "HS256")
	switch algorithm {
	case "HS256", "HS384", "HS512":
	default:
		return nil, fmt.Errorf("unsupported algorithm %q", algorithm)
	}

	headerNames := plugin.OptStrings(options, "header_names")
	if len(headerNames) == 0 {
		headerNames = []string{"Authorization"}
	}

	claimsToVerify := plugin.OptStrings(options, "claims_to_verify")
	if claimsToVerify == nil {
		claimsToVerify = []string{"exp"}
	}

	a := &JWTAuth{
		secret:         []byte(secret),
		algorithm:      algorithm,
		headerNames:    headerNames,
		claimsToVerify: claimsToVerify,
		anonymous:      plugin.OptString(options, "anonymous", ""),
	}

	a.parseOptions = []jwt.ParserOption{jwt.WithValidMethods([]string{algorithm})}
	for _, claim := range claimsToVerify {
		if claim == "exp" {
			a.parseOptions = append(a.parseOptions, jwt.WithExpirationRequired())
		}
	}

	return a, nil
}

func (a *JWTAuth) Name() string { return "jwt-auth" }

// Access verifies the token and attaches the consumer identity.
func (a *JWTAuth) Access(ctx *plugin.Context) error {
	tokenString := a.extractToken(ctx)
	if tokenString == "" {
		if a.anonymous != "" {
			ctx.Consumer = &plugin.Consumer{UserID: a.anonymous, Anonymous: true}
			return nil
		}

		resp := plugin.ErrorResponse(errors.New(401, "missing credentials"))
		resp.Header.Set("WWW-Authenticate", `Bearer realm="gateway"`)
		ctx.ShortCircuit(resp)
		return nil
	}

	token, err := jwt.Parse(tokenString, a.keyFunc, a.parseOptions...)
	if err != nil {
		return errors.ErrUnauthorized.WithDetail(fmt.Sprintf("invalid token: %v", err))
	}

	claims, ok := token.Claims.(jwt.MapClaims)
	if !ok {
		return errors.ErrUnauthorized.WithDetail("invalid token claims")
	}

	for _, claim := range a.claimsToVerify {
		if _, present := claims[claim]; !present {
			return errors.ErrUnauthorized.WithDetail(fmt.Sprintf("missing claim %s", claim))
		}
	}

	sub, _ := claims.GetSubject()
	ctx.Consumer = &plugin.Consumer{UserID: sub}
	if sub != "" {
		ctx.Request.Header.Set("X-User-ID", sub)
	}
	return nil
}

func (a *JWTAuth) keyFunc(token *jwt.Token) (any, error) {
	if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
		return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
	}
	return a.secret, nil
}

func (a *JWTAuth) extractToken(ctx *plugin.Context) string {
	for _, name := range a.headerNames {
		value := ctx.Request.Header.Get(name)
		if value == "" {
			continue
		}
		if token, found := strings.CutPrefix(value, "Bearer "); found {
			return token
		}
		if token, found := strings.CutPrefix(value, "bearer "); found {
			return token
		}
	}
	return ""
}
