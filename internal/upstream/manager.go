package upstream

import (
	"fmt"
	"sort"
	"sync"

	"go.uber.org/zap"

	"github.com/wudi/portway/internal/circuitbreaker"
	"github.com/wudi/portway/internal/config"
	"github.com/wudi/portway/internal/errors"
	"github.com/wudi/portway/internal/loadbalancer"
	"github.com/wudi/portway/internal/logging"
)

// Manager owns every configured upstream: target selection, health
// checking, per-target circuit breaking, and the runtime CRUD surface
// used by the admin API.
type Manager struct {
	mu        sync.RWMutex
	upstreams map[string]*Upstream

	// OnTargetHealthChange, when set, is called with the upstream name and
	// its current healthy target count after any health flip. Set before
	// Start.
	OnTargetHealthChange func(upstream string, healthyCount int)
}

// NewManager builds upstreams from config. Health checkers are created but
// not started; call Start.
func NewManager(cfgs []config.UpstreamConfig) (*Manager, error) {
	m := &Manager{
		upstreams: make(map[string]*Upstream, len(cfgs)),
	}

	for _, cfg := range cfgs {
		if err := m.add(cfg); err != nil {
			return nil, err
		}
	}
	return m, nil
}

func (m *Manager) add(cfg config.UpstreamConfig) error {
	config.ApplyUpstreamDefaults(&cfg)

	u, err := newUpstream(cfg)
	if err != nil {
		return err
	}
	if u.checker != nil {
		u.checker.OnChange = func(name string, _ *loadbalancer.Target, _ bool) {
			m.notifyHealth(name)
		}
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if _, exists := m.upstreams[cfg.Name]; exists {
		return fmt.Errorf("upstream %s: already exists", cfg.Name)
	}
	m.upstreams[cfg.Name] = u
	return nil
}

func (m *Manager) notifyHealth(name string) {
	if m.OnTargetHealthChange == nil {
		return
	}
	u, ok := m.Get(name)
	if !ok {
		return
	}
	m.OnTargetHealthChange(name, len(u.healthyTargets()))
}

// Start launches all health checkers.
func (m *Manager) Start() {
	m.mu.RLock()
	defer m.mu.RUnlock()
	for _, u := range m.upstreams {
		u.start()
	}
}

// Close stops all health checkers.
func (m *Manager) Close() {
	m.mu.RLock()
	defer m.mu.RUnlock()
	for _, u := range m.upstreams {
		u.stop()
	}
}

// Get returns the named upstream.
func (m *Manager) Get(name string) (*Upstream, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	u, ok := m.upstreams[name]
	return u, ok
}

// Names returns all upstream names, sorted.
func (m *Manager) Names() []string {
	m.mu.RLock()
	defer m.mu.RUnlock()

	names := make([]string, 0, len(m.upstreams))
	for name := range m.upstreams {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Select picks a target for one forwarding attempt. Only healthy targets
// are considered; a target whose breaker refuses is excluded and the
// balancer re-picks from the rest. The returned target has its active
// connection gauge incremented; the caller must pair it with Release.
func (m *Manager) Select(name, clientIP string) (*loadbalancer.Target, error) {
	u, ok := m.Get(name)
	if !ok {
		return nil, errors.ErrUpstream.WithDetail(fmt.Sprintf("unknown upstream %s", name))
	}

	candidates := u.healthyTargets()
	if len(candidates) == 0 {
		return nil, errors.ErrNoHealthyTarget
	}

	for len(candidates) > 0 {
		target := u.balancer.Pick(candidates, clientIP)
		if target == nil {
			// Balancer found no eligible candidate (e.g. all weights zero)
			return nil, errors.ErrNoHealthyTarget
		}

		if u.breakerFor(target).Allow() {
			target.Acquire()
			return target, nil
		}

		// Breaker refused; drop this target and re-pick from the rest
		next := candidates[:0:0]
		for _, t := range candidates {
			if t != target {
				next = append(next, t)
			}
		}
		candidates = next
	}

	return nil, errors.ErrCircuitOpen
}

// Release decrements the target's active connection gauge. Call exactly
// once per successful Select.
func (m *Manager) Release(target *loadbalancer.Target) {
	target.Release()
}

// Report records the outcome of a forwarding attempt with the target's
// circuit breaker.
func (m *Manager) Report(name string, target *loadbalancer.Target, success bool) {
	u, ok := m.Get(name)
	if !ok {
		return
	}
	b := u.breakerFor(target)
	if success {
		b.RecordSuccess()
	} else {
		b.RecordFailure()
	}
}

// AddUpstream registers a new upstream at runtime and starts its health
// checker.
func (m *Manager) AddUpstream(cfg config.UpstreamConfig) error {
	if cfg.Name == "" {
		return fmt.Errorf("upstream name is required")
	}
	if err := m.add(cfg); err != nil {
		return err
	}

	u, _ := m.Get(cfg.Name)
	u.start()

	logging.Info("upstream added",
		zap.String("upstream", cfg.Name),
		zap.Int("targets", len(cfg.Targets)))
	return nil
}

// RemoveUpstream unregisters an upstream and stops its health checker.
// Reports whether it existed.
func (m *Manager) RemoveUpstream(name string) bool {
	m.mu.Lock()
	u, ok := m.upstreams[name]
	if ok {
		delete(m.upstreams, name)
	}
	m.mu.Unlock()

	if !ok {
		return false
	}

	u.stop()
	logging.Info("upstream removed", zap.String("upstream", name))
	return true
}

// AddTarget adds a target to an existing upstream. The health checker
// picks it up on its next tick.
func (m *Manager) AddTarget(name string, tc config.TargetConfig) error {
	u, ok := m.Get(name)
	if !ok {
		return fmt.Errorf("upstream %s: not found", name)
	}
	if tc.Host == "" {
		return fmt.Errorf("target host is required")
	}

	u.addTarget(tc)
	logging.Info("target added",
		zap.String("upstream", name),
		zap.String("target", fmt.Sprintf("%s:%d", tc.Host, tc.Port)))
	return nil
}

// RemoveTarget removes the target named host:port from an upstream.
func (m *Manager) RemoveTarget(name, targetName string) error {
	u, ok := m.Get(name)
	if !ok {
		return fmt.Errorf("upstream %s: not found", name)
	}
	if !u.removeTarget(targetName) {
		return fmt.Errorf("upstream %s: target %s not found", name, targetName)
	}

	logging.Info("target removed",
		zap.String("upstream", name),
		zap.String("target", targetName))
	return nil
}

// TargetSnapshot is the admin view of one target.
type TargetSnapshot struct {
	Host    string `json:"host"`
	Port    int    `json:"port"`
	Weight  int    `json:"weight"`
	Healthy bool   `json:"healthy"`
	Active  int64  `json:"active_connections"`

	Breaker circuitbreaker.BreakerSnapshot `json:"circuit_breaker"`
}

// UpstreamSnapshot is the admin view of one upstream.
type UpstreamSnapshot struct {
	Name      string           `json:"name"`
	Algorithm string           `json:"algorithm"`
	Targets   []TargetSnapshot `json:"targets"`
}

// Snapshot returns the admin view of the named upstream.
func (m *Manager) Snapshot(name string) (UpstreamSnapshot, bool) {
	u, ok := m.Get(name)
	if !ok {
		return UpstreamSnapshot{}, false
	}
	return m.snapshotOf(u), true
}

// SnapshotAll returns the admin view of every upstream, sorted by name.
func (m *Manager) SnapshotAll() []UpstreamSnapshot {
	out := make([]UpstreamSnapshot, 0)
	for _, name := range m.Names() {
		if u, ok := m.Get(name); ok {
			out = append(out, m.snapshotOf(u))
		}
	}
	return out
}

func (m *Manager) snapshotOf(u *Upstream) UpstreamSnapshot {
	breakers := u.Breakers()

	snap := UpstreamSnapshot{
		Name:      u.name,
		Algorithm: u.algorithm,
	}
	for _, t := range u.Targets() {
		snap.Targets = append(snap.Targets, TargetSnapshot{
			Host:    t.Host,
			Port:    t.Port,
			Weight:  t.Weight,
			Healthy: t.Healthy(),
			Active:  t.Active(),
			Breaker: breakers[t.Name()],
		})
	}
	return snap
}
