package router

import (
	"net/http"
	"regexp"
	"sort"
	"strings"

	"github.com/wudi/portway/internal/config"
	"github.com/wudi/portway/internal/errors"
)

// Service is a compiled service: a group of routes forwarding to one
// upstream, optionally under a path prefix.
type Service struct {
	Name     string
	Upstream string
	Path     string
	Routes   []*Route
}

// Route is a compiled route. Plugins holds the merged plugin configs
// (global, then service, then route scope) in execution order.
type Route struct {
	Service      *Service
	Paths        []string
	Methods      map[string]bool
	Hosts        []string
	StripPath    bool
	PreserveHost bool
	Plugins      []config.PluginConfig

	headerRules []headerRule
}

// headerRule is one required request header. A value written as ~pattern
// matches by regexp anchored at the start, anything else exactly.
type headerRule struct {
	name  string
	value string
	re    *regexp.Regexp
}

// Match is the result of routing one request.
type Match struct {
	Service     *Service
	Route       *Route
	Pattern     string
	ForwardPath string
}

type entry struct {
	pattern  string
	prefix   string // pattern without the trailing /*
	wildcard bool
	route    *Route
}

// Router matches requests against the compiled route table. It is
// immutable after New; reload builds a fresh one.
type Router struct {
	entries  []entry
	services []*Service
}

// New compiles the route table from config. Disabled services are skipped.
// Entries are ordered longest pattern first so the most specific route
// wins; equal lengths keep declaration order.
func New(cfg *config.Config) *Router {
	r := &Router{}

	for i := range cfg.Services {
		sc := &cfg.Services[i]
		if !sc.IsEnabled() {
			continue
		}

		svc := &Service{
			Name:     sc.Name,
			Upstream: sc.Upstream,
			Path:     sc.Path,
		}

		for j := range sc.Routes {
			rc := &sc.Routes[j]

			methods := rc.Methods
			if len(methods) == 0 {
				methods = config.DefaultMethods
			}
			methodSet := make(map[string]bool, len(methods))
			for _, m := range methods {
				methodSet[strings.ToUpper(m)] = true
			}

			route := &Route{
				Service:      svc,
				Paths:        rc.Paths,
				Methods:      methodSet,
				Hosts:        rc.Hosts,
				StripPath:    rc.StripsPath(),
				PreserveHost: rc.PreserveHost,
				Plugins:      config.MergePlugins(cfg.Plugins, sc.Plugins, rc.Plugins),
				headerRules:  compileHeaderRules(rc.Headers),
			}
			svc.Routes = append(svc.Routes, route)

			for _, pattern := range rc.Paths {
				e := entry{pattern: pattern, prefix: pattern, route: route}
				if strings.HasSuffix(pattern, "/*") {
					e.wildcard = true
					e.prefix = strings.TrimSuffix(pattern, "/*")
				}
				r.entries = append(r.entries, e)
			}
		}

		r.services = append(r.services, svc)
	}

	sort.SliceStable(r.entries, func(i, j int) bool {
		return len(r.entries[i].pattern) > len(r.entries[j].pattern)
	})

	return r
}

// compileHeaderRules precompiles ~regexp values; the loader validates
// patterns, so a compile failure here leaves an exact-match rule.
func compileHeaderRules(headers map[string]string) []headerRule {
	if len(headers) == 0 {
		return nil
	}
	rules := make([]headerRule, 0, len(headers))
	for name, value := range headers {
		rule := headerRule{name: name, value: value}
		if strings.HasPrefix(value, "~") {
			if re, err := regexp.Compile("^(?:" + value[1:] + ")"); err == nil {
				rule.re = re
			}
		}
		rules = append(rules, rule)
	}
	return rules
}

// Services returns the compiled services in declaration order.
func (r *Router) Services() []*Service {
	return r.services
}

// Match routes a request by method, path, and the route's host and
// header constraints. Returns ErrRouteNotFound when no entry matches.
func (r *Router) Match(req *http.Request) (*Match, error) {
	path := req.URL.Path

	for i := range r.entries {
		e := &r.entries[i]

		if !e.route.Methods[req.Method] {
			continue
		}
		if !e.matches(path) {
			continue
		}
		if !e.route.matchHost(req.Host) {
			continue
		}
		if !e.route.matchHeaders(req.Header) {
			continue
		}

		return &Match{
			Service:     e.route.Service,
			Route:       e.route,
			Pattern:     e.pattern,
			ForwardPath: e.forwardPath(path),
		}, nil
	}

	return nil, errors.ErrRouteNotFound
}

func (e *entry) matches(path string) bool {
	if e.wildcard {
		return path == e.prefix || strings.HasPrefix(path, e.prefix+"/")
	}
	return path == e.pattern
}

// matchHost checks the request host (port stripped) against the route's
// host list. *.example.com matches any subdomain and the bare domain.
func (rt *Route) matchHost(host string) bool {
	if len(rt.Hosts) == 0 {
		return true
	}
	if i := strings.LastIndexByte(host, ':'); i >= 0 && !strings.Contains(host[i:], "]") {
		host = host[:i]
	}

	for _, allowed := range rt.Hosts {
		if suffix, ok := strings.CutPrefix(allowed, "*."); ok {
			if host == suffix || strings.HasSuffix(host, "."+suffix) {
				return true
			}
			continue
		}
		if host == allowed {
			return true
		}
	}
	return false
}

func (rt *Route) matchHeaders(header http.Header) bool {
	for _, rule := range rt.headerRules {
		got := header.Get(rule.name)
		if got == "" {
			return false
		}
		if rule.re != nil {
			if !rule.re.MatchString(got) {
				return false
			}
			continue
		}
		if got != rule.value {
			return false
		}
	}
	return true
}

// forwardPath applies strip_path and the service path prefix.
func (e *entry) forwardPath(path string) string {
	tail := path
	if e.route.StripPath {
		if e.wildcard {
			tail = path[len(e.prefix):]
		} else {
			tail = ""
		}
	}
	return joinPath(e.route.Service.Path, tail)
}

// joinPath joins a service prefix and a path tail with exactly one slash.
func joinPath(prefix, tail string) string {
	prefix = strings.TrimSuffix(prefix, "/")
	if tail != "" && !strings.HasPrefix(tail, "/") {
		tail = "/" + tail
	}

	joined := prefix + tail
	if joined == "" {
		return "/"
	}
	return joined
}
