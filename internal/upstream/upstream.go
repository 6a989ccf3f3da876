package upstream

import (
	"fmt"
	"sync"
	"time"

	"github.com/wudi/portway/internal/circuitbreaker"
	"github.com/wudi/portway/internal/config"
	"github.com/wudi/portway/internal/health"
	"github.com/wudi/portway/internal/loadbalancer"
)

// Upstream is a named pool of targets with a balancing algorithm, an
// optional active health checker, and one circuit breaker per target.
type Upstream struct {
	name       string
	algorithm  string
	timeout    time.Duration
	retry      config.RetryConfig
	breakerCfg config.CircuitBreakerConfig

	mu       sync.RWMutex
	targets  []*loadbalancer.Target
	breakers map[string]*circuitbreaker.Breaker

	balancer loadbalancer.Balancer
	checker  *health.Checker
}

func newUpstream(cfg config.UpstreamConfig) (*Upstream, error) {
	balancer, err := loadbalancer.New(cfg.Algorithm)
	if err != nil {
		return nil, fmt.Errorf("upstream %s: %w", cfg.Name, err)
	}

	u := &Upstream{
		name:       cfg.Name,
		algorithm:  cfg.Algorithm,
		timeout:    cfg.Timeout,
		retry:      cfg.Retry,
		breakerCfg: cfg.CircuitBreaker,
		breakers:   make(map[string]*circuitbreaker.Breaker),
		balancer:   balancer,
	}

	for _, tc := range cfg.Targets {
		u.addTarget(tc)
	}

	if cfg.HealthCheck.Enabled {
		u.checker = health.NewChecker(cfg.Name, cfg.HealthCheck, u.Targets)
	}

	return u, nil
}

// Name returns the upstream name.
func (u *Upstream) Name() string {
	return u.name
}

// Algorithm returns the balancing algorithm name.
func (u *Upstream) Algorithm() string {
	return u.algorithm
}

// Timeout returns the per-attempt forwarding timeout.
func (u *Upstream) Timeout() time.Duration {
	return u.timeout
}

// Retry returns the retry policy for this upstream.
func (u *Upstream) Retry() config.RetryConfig {
	return u.retry
}

// Targets returns a snapshot of the current target list.
func (u *Upstream) Targets() []*loadbalancer.Target {
	u.mu.RLock()
	defer u.mu.RUnlock()
	out := make([]*loadbalancer.Target, len(u.targets))
	copy(out, u.targets)
	return out
}

// healthyTargets returns the targets currently marked healthy, in
// declaration order.
func (u *Upstream) healthyTargets() []*loadbalancer.Target {
	u.mu.RLock()
	defer u.mu.RUnlock()

	healthy := make([]*loadbalancer.Target, 0, len(u.targets))
	for _, t := range u.targets {
		if t.Healthy() {
			healthy = append(healthy, t)
		}
	}
	return healthy
}

func (u *Upstream) addTarget(tc config.TargetConfig) {
	config.ApplyTargetDefaults(&tc)
	target := loadbalancer.NewTarget(tc.Host, tc.Port, *tc.Weight)

	u.mu.Lock()
	defer u.mu.Unlock()
	u.targets = append(u.targets, target)
	u.breakers[target.Name()] = circuitbreaker.NewBreaker(u.breakerCfg)
}

// removeTarget drops the target named host:port. Reports whether it existed.
func (u *Upstream) removeTarget(name string) bool {
	u.mu.Lock()
	defer u.mu.Unlock()

	for i, t := range u.targets {
		if t.Name() == name {
			u.targets = append(u.targets[:i], u.targets[i+1:]...)
			delete(u.breakers, name)
			return true
		}
	}
	return false
}

// breakerFor returns the breaker guarding a target. Targets added outside
// the normal path still get one lazily.
func (u *Upstream) breakerFor(target *loadbalancer.Target) *circuitbreaker.Breaker {
	u.mu.Lock()
	defer u.mu.Unlock()

	b, ok := u.breakers[target.Name()]
	if !ok {
		b = circuitbreaker.NewBreaker(u.breakerCfg)
		u.breakers[target.Name()] = b
	}
	return b
}

// Breakers returns a snapshot of breaker state keyed by target name.
func (u *Upstream) Breakers() map[string]circuitbreaker.BreakerSnapshot {
	u.mu.RLock()
	defer u.mu.RUnlock()

	out := make(map[string]circuitbreaker.BreakerSnapshot, len(u.breakers))
	for name, b := range u.breakers {
		out[name] = b.Snapshot()
	}
	return out
}

func (u *Upstream) start() {
	if u.checker != nil {
		u.checker.Start()
	}
}

func (u *Upstream) stop() {
	if u.checker != nil {
		u.checker.Stop()
	}
}
