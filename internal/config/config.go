package config

import "time"

// Config is the root gateway configuration
type Config struct {
	Gateway   GatewayConfig    `yaml:"gateway" json:"gateway"`
	Logging   LoggingConfig    `yaml:"logging" json:"logging"`
	Upstreams []UpstreamConfig `yaml:"upstreams" json:"upstreams"`
	Services  []ServiceConfig  `yaml:"services" json:"services"`
	Plugins   []PluginConfig   `yaml:"plugins" json:"plugins"`
}

// GatewayConfig holds listener and request-path settings
type GatewayConfig struct {
	Host            string            `yaml:"host" json:"host"`
	Port            int               `yaml:"port" json:"port"`
	AdminPort       int               `yaml:"admin_port" json:"admin_port"` // 0 mounts admin under /admin on the main port
	RequestTimeout  time.Duration     `yaml:"request_timeout" json:"request_timeout"`
	ReadTimeout     time.Duration     `yaml:"read_timeout" json:"read_timeout"`
	WriteTimeout    time.Duration     `yaml:"write_timeout" json:"write_timeout"`
	GlobalRateLimit GlobalRateLimit   `yaml:"global_rate_limit" json:"global_rate_limit"`
	Compression     CompressionConfig `yaml:"compression" json:"compression"`
	WatchConfig     bool              `yaml:"watch_config" json:"watch_config"`
}

// GlobalRateLimit caps gateway-wide throughput. Zero rate disables the cap.
type GlobalRateLimit struct {
	Rate  float64 `yaml:"rate" json:"rate"` // requests per second
	Burst int     `yaml:"burst" json:"burst"`
}

// CompressionConfig controls response compression at the write path
type CompressionConfig struct {
	Enabled bool `yaml:"enabled" json:"enabled"`
	MinSize int  `yaml:"min_size" json:"min_size"`
	Level   int  `yaml:"level" json:"level"`
}

// LoggingConfig configures the zap logger
type LoggingConfig struct {
	Level    string         `yaml:"level" json:"level"`
	File     string         `yaml:"file" json:"file"` // stdout when empty
	Rotation RotationConfig `yaml:"rotation" json:"rotation"`
}

// RotationConfig holds lumberjack rotation settings for file logging
type RotationConfig struct {
	MaxSizeMB  int  `yaml:"max_size_mb" json:"max_size_mb"`
	MaxBackups int  `yaml:"max_backups" json:"max_backups"`
	MaxAgeDays int  `yaml:"max_age_days" json:"max_age_days"`
	Compress   bool `yaml:"compress" json:"compress"`
}

// UpstreamConfig defines a named pool of backend targets
type UpstreamConfig struct {
	Name           string               `yaml:"name" json:"name"`
	Algorithm      string               `yaml:"algorithm" json:"algorithm"`
	Timeout        time.Duration        `yaml:"timeout" json:"timeout"` // per-attempt timeout
	Targets        []TargetConfig       `yaml:"targets" json:"targets"`
	HealthCheck    HealthCheckConfig    `yaml:"health_check" json:"health_check"`
	CircuitBreaker CircuitBreakerConfig `yaml:"circuit_breaker" json:"circuit_breaker"`
	Retry          RetryConfig          `yaml:"retry" json:"retry"`
}

// TargetConfig defines a single backend endpoint.
// Weight nil defaults to 100; an explicit 0 keeps the target out of
// weighted selection.
type TargetConfig struct {
	Host   string `yaml:"host" json:"host"`
	Port   int    `yaml:"port" json:"port"`
	Weight *int   `yaml:"weight" json:"weight,omitempty"`
}

// HealthCheckConfig configures active probing for an upstream
type HealthCheckConfig struct {
	Enabled            bool          `yaml:"enabled" json:"enabled"`
	Path               string        `yaml:"path" json:"path"`
	Interval           time.Duration `yaml:"interval" json:"interval"`
	Timeout            time.Duration `yaml:"timeout" json:"timeout"`
	HealthyThreshold   int           `yaml:"healthy_threshold" json:"healthy_threshold"`
	UnhealthyThreshold int           `yaml:"unhealthy_threshold" json:"unhealthy_threshold"`
}

// CircuitBreakerConfig configures per-target circuit breakers.
// Enabled defaults to true; a disabled breaker is a permanently-closed no-op.
type CircuitBreakerConfig struct {
	Enabled          *bool         `yaml:"enabled" json:"enabled"`
	FailureThreshold int           `yaml:"failure_threshold" json:"failure_threshold"`
	SuccessThreshold int           `yaml:"success_threshold" json:"success_threshold"`
	Timeout          time.Duration `yaml:"timeout" json:"timeout"`
	HalfOpenRequests int           `yaml:"half_open_requests" json:"half_open_requests"`
}

// IsEnabled returns the breaker's enabled flag, defaulting to true.
func (c *CircuitBreakerConfig) IsEnabled() bool {
	return c.Enabled == nil || *c.Enabled
}

// RetryConfig configures forward retries for an upstream.
// Enabled defaults to true.
type RetryConfig struct {
	Enabled    *bool         `yaml:"enabled" json:"enabled"`
	MaxRetries int           `yaml:"max_retries" json:"max_retries"`
	RetryOn    []int         `yaml:"retry_on" json:"retry_on"`
	Backoff    time.Duration `yaml:"backoff" json:"backoff"`
}

// IsEnabled returns the retry enabled flag, defaulting to true.
func (c *RetryConfig) IsEnabled() bool {
	return c.Enabled == nil || *c.Enabled
}

// ServiceConfig binds routes to one upstream
type ServiceConfig struct {
	Name     string         `yaml:"name" json:"name"`
	Upstream string         `yaml:"upstream" json:"upstream"`
	Path     string         `yaml:"path" json:"path"` // optional forwarded-path prefix
	Enabled  *bool          `yaml:"enabled" json:"enabled"`
	Plugins  []PluginConfig `yaml:"plugins" json:"plugins"` // service-scoped, between global and route
	Routes   []RouteConfig  `yaml:"routes" json:"routes"`
}

// IsEnabled returns the service's enabled flag, defaulting to true.
func (s *ServiceConfig) IsEnabled() bool {
	return s.Enabled == nil || *s.Enabled
}

// RouteConfig defines a (methods, paths) selector with route-scoped plugins.
// Hosts and Headers further constrain matching: hosts by exact name or a
// leading *. wildcard, header values exactly or by ~regexp. StripPath
// defaults to true. PreserveHost forwards the client's Host header to the
// upstream instead of the target's address.
type RouteConfig struct {
	Paths        []string          `yaml:"paths" json:"paths"`
	Methods      []string          `yaml:"methods" json:"methods"`
	Hosts        []string          `yaml:"hosts" json:"hosts"`
	Headers      map[string]string `yaml:"headers" json:"headers"`
	StripPath    *bool             `yaml:"strip_path" json:"strip_path"`
	PreserveHost bool              `yaml:"preserve_host" json:"preserve_host"`
	Plugins      []PluginConfig    `yaml:"plugins" json:"plugins"`
}

// StripsPath returns the strip_path flag, defaulting to true.
func (r *RouteConfig) StripsPath() bool {
	return r.StripPath == nil || *r.StripPath
}

// DefaultMethods are the methods a route matches when none are configured
var DefaultMethods = []string{"GET", "POST", "PUT", "DELETE", "PATCH"}

// PluginConfig names a plugin and carries its options.
// Enabled defaults to true; disabled entries are skipped at chain compile.
type PluginConfig struct {
	Name    string         `yaml:"name" json:"name"`
	Enabled *bool          `yaml:"enabled" json:"enabled"`
	Config  map[string]any `yaml:"config" json:"config"`
}

// IsEnabled returns the plugin's enabled flag, defaulting to true.
func (p *PluginConfig) IsEnabled() bool {
	return p.Enabled == nil || *p.Enabled
}

// Bool returns a pointer to v, for filling optional boolean fields.
func Bool(v bool) *bool { return &v }

// Int returns a pointer to v, for filling optional integer fields.
func Int(v int) *int { return &v }

// Algorithms lists the supported load-balancing algorithms
var Algorithms = []string{"round-robin", "least-connections", "ip-hash", "weighted", "random"}

// DefaultConfig returns a configuration with defaults applied
func DefaultConfig() *Config {
	return &Config{
		Gateway: GatewayConfig{
			Host:           "0.0.0.0",
			Port:           8000,
			RequestTimeout: 60 * time.Second,
			ReadTimeout:    30 * time.Second,
			WriteTimeout:   30 * time.Second,
			Compression: CompressionConfig{
				MinSize: 1024,
				Level:   5,
			},
		},
		Logging: LoggingConfig{
			Level: "info",
			Rotation: RotationConfig{
				MaxSizeMB:  100,
				MaxBackups: 3,
				MaxAgeDays: 28,
				Compress:   true,
			},
		},
	}
}

// ApplyUpstreamDefaults fills zero fields of an upstream with defaults.
// Exported because the admin API creates upstreams outside the loader.
func ApplyUpstreamDefaults(u *UpstreamConfig) {
	if u.Algorithm == "" {
		u.Algorithm = "round-robin"
	}
	if u.Timeout == 0 {
		u.Timeout = 30 * time.Second
	}
	for i := range u.Targets {
		ApplyTargetDefaults(&u.Targets[i])
	}
	hc := &u.HealthCheck
	if hc.Path == "" {
		hc.Path = "/health"
	}
	if hc.Interval == 0 {
		hc.Interval = 10 * time.Second
	}
	if hc.Timeout == 0 {
		hc.Timeout = 5 * time.Second
	}
	if hc.HealthyThreshold == 0 {
		hc.HealthyThreshold = 2
	}
	if hc.UnhealthyThreshold == 0 {
		hc.UnhealthyThreshold = 3
	}
	cb := &u.CircuitBreaker
	if cb.FailureThreshold == 0 {
		cb.FailureThreshold = 5
	}
	if cb.SuccessThreshold == 0 {
		cb.SuccessThreshold = 2
	}
	if cb.Timeout == 0 {
		cb.Timeout = 30 * time.Second
	}
	if cb.HalfOpenRequests == 0 {
		cb.HalfOpenRequests = 1
	}
	r := &u.Retry
	if r.MaxRetries == 0 {
		r.MaxRetries = 3
	}
	if len(r.RetryOn) == 0 {
		r.RetryOn = []int{502, 503, 504}
	}
	if r.Backoff == 0 {
		r.Backoff = 500 * time.Millisecond
	}
}

// ApplyTargetDefaults fills absent fields of a target with defaults.
// An explicit weight, including 0, is preserved.
func ApplyTargetDefaults(t *TargetConfig) {
	if t.Port == 0 {
		t.Port = 80
	}
	if t.Weight == nil {
		t.Weight = Int(100)
	}
}
