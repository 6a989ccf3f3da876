package config

import (
	"fmt"
	"os"
	"regexp"
	"strings"

	"github.com/goccy/go-yaml"
)

// Loader handles configuration loading and parsing
type Loader struct {
	envPattern *regexp.Regexp
}

// NewLoader creates a new configuration loader
func NewLoader() *Loader {
	return &Loader{
		envPattern: regexp.MustCompile(`\$\{([A-Za-z_][A-Za-z0-9_]*)\}`),
	}
}

// Load reads and parses a configuration file
func (l *Loader) Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	return l.Parse(data)
}

// Parse parses configuration from YAML bytes
func (l *Loader) Parse(data []byte) (*Config, error) {
	// Expand environment variables
	expanded := l.expandEnvVars(string(data))

	// Start with defaults
	cfg := DefaultConfig()

	// Unmarshal YAML into config
	if err := yaml.Unmarshal([]byte(expanded), cfg); err != nil {
		return nil, fmt.Errorf("failed to parse YAML: %w", err)
	}

	l.applyDefaults(cfg)

	// Validate configuration
	if err := l.validate(cfg); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}

	return cfg, nil
}

// expandEnvVars replaces ${VAR_NAME} with environment variable values
func (l *Loader) expandEnvVars(input string) string {
	return l.envPattern.ReplaceAllStringFunc(input, func(match string) string {
		varName := strings.TrimPrefix(strings.TrimSuffix(match, "}"), "${")
		if value, exists := os.LookupEnv(varName); exists {
			return value
		}
		return match // Keep original if env var not set
	})
}

// applyDefaults fills zero fields of upstreams, targets, and routes
func (l *Loader) applyDefaults(cfg *Config) {
	for i := range cfg.Upstreams {
		ApplyUpstreamDefaults(&cfg.Upstreams[i])
	}
	for i := range cfg.Services {
		svc := &cfg.Services[i]
		for j := range svc.Routes {
			if len(svc.Routes[j].Methods) == 0 {
				svc.Routes[j].Methods = append([]string(nil), DefaultMethods...)
			}
		}
	}
}

// validate checks configuration for errors
func (l *Loader) validate(cfg *Config) error {
	if cfg.Gateway.Port <= 0 || cfg.Gateway.Port > 65535 {
		return fmt.Errorf("gateway: invalid port %d", cfg.Gateway.Port)
	}
	if cfg.Gateway.AdminPort < 0 || cfg.Gateway.AdminPort > 65535 {
		return fmt.Errorf("gateway: invalid admin_port %d", cfg.Gateway.AdminPort)
	}
	if cfg.Gateway.AdminPort != 0 && cfg.Gateway.AdminPort == cfg.Gateway.Port {
		return fmt.Errorf("gateway: admin_port must differ from port")
	}

	validAlgorithms := make(map[string]bool, len(Algorithms))
	for _, a := range Algorithms {
		validAlgorithms[a] = true
	}

	// Validate upstreams
	upstreamNames := make(map[string]bool)
	for i, u := range cfg.Upstreams {
		if u.Name == "" {
			return fmt.Errorf("upstream %d: name is required", i)
		}
		if upstreamNames[u.Name] {
			return fmt.Errorf("duplicate upstream name: %s", u.Name)
		}
		upstreamNames[u.Name] = true

		if !validAlgorithms[u.Algorithm] {
			return fmt.Errorf("upstream %s: invalid algorithm: %s", u.Name, u.Algorithm)
		}

		for j, t := range u.Targets {
			if t.Host == "" {
				return fmt.Errorf("upstream %s: target %d: host is required", u.Name, j)
			}
			if t.Port < 1 || t.Port > 65535 {
				return fmt.Errorf("upstream %s: target %d: invalid port %d", u.Name, j, t.Port)
			}
			if t.Weight != nil && *t.Weight < 0 {
				return fmt.Errorf("upstream %s: target %d: negative weight", u.Name, j)
			}
		}

		if hc := u.HealthCheck; hc.Enabled {
			if !strings.HasPrefix(hc.Path, "/") {
				return fmt.Errorf("upstream %s: health check path must start with /", u.Name)
			}
			if hc.Interval <= 0 || hc.Timeout <= 0 {
				return fmt.Errorf("upstream %s: health check interval and timeout must be positive", u.Name)
			}
		}
	}

	// Validate services and routes
	serviceNames := make(map[string]bool)
	for i, svc := range cfg.Services {
		if svc.Name == "" {
			return fmt.Errorf("service %d: name is required", i)
		}
		if serviceNames[svc.Name] {
			return fmt.Errorf("duplicate service name: %s", svc.Name)
		}
		serviceNames[svc.Name] = true

		if svc.Upstream == "" {
			return fmt.Errorf("service %s: upstream is required", svc.Name)
		}
		if !upstreamNames[svc.Upstream] {
			return fmt.Errorf("service %s: unknown upstream: %s", svc.Name, svc.Upstream)
		}
		if svc.Path != "" && !strings.HasPrefix(svc.Path, "/") {
			return fmt.Errorf("service %s: path must start with /", svc.Name)
		}

		for j, route := range svc.Routes {
			if len(route.Paths) == 0 {
				return fmt.Errorf("service %s: route %d: at least one path is required", svc.Name, j)
			}
			for _, p := range route.Paths {
				if !strings.HasPrefix(p, "/") {
					return fmt.Errorf("service %s: route %d: path must start with /: %s", svc.Name, j, p)
				}
				// The router only treats a trailing /* as a wildcard.
				if strings.Contains(p, "*") && (!strings.HasSuffix(p, "/*") || strings.Count(p, "*") > 1) {
					return fmt.Errorf("service %s: route %d: wildcard is only allowed as a trailing /*: %s", svc.Name, j, p)
				}
			}
			for _, h := range route.Hosts {
				if h == "" {
					return fmt.Errorf("service %s: route %d: empty host", svc.Name, j)
				}
			}
			for name, value := range route.Headers {
				if name == "" {
					return fmt.Errorf("service %s: route %d: empty header name", svc.Name, j)
				}
				if strings.HasPrefix(value, "~") {
					if _, err := regexp.Compile(value[1:]); err != nil {
						return fmt.Errorf("service %s: route %d: header %s: invalid pattern: %w", svc.Name, j, name, err)
					}
				}
			}
			if err := validatePlugins(route.Plugins, fmt.Sprintf("service %s: route %d", svc.Name, j)); err != nil {
				return err
			}
		}

		if err := validatePlugins(svc.Plugins, fmt.Sprintf("service %s", svc.Name)); err != nil {
			return err
		}
	}

	return validatePlugins(cfg.Plugins, "global plugins")
}

// PluginValidator is installed by the plugin registry so the loader can
// reject unknown plugin names and malformed options at load time.
var PluginValidator func(name string, options map[string]any) error

func validatePlugins(plugins []PluginConfig, scope string) error {
	for _, p := range plugins {
		if p.Name == "" {
			return fmt.Errorf("%s: plugin name is required", scope)
		}
		if PluginValidator != nil {
			if err := PluginValidator(p.Name, p.Config); err != nil {
				return fmt.Errorf("%s: plugin %s: %w", scope, p.Name, err)
			}
		}
	}
	return nil
}
