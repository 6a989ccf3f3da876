package loadbalancer

import (
	"strconv"
	"sync/atomic"
)

// Target represents a single backend endpoint
type Target struct {
	Host   string
	Port   int
	Weight int

	healthy atomic.Bool
	active  atomic.Int64

	name string // host:port, precomputed
	url  string // http://host:port, precomputed
}

// NewTarget creates a target. Targets start healthy.
func NewTarget(host string, port, weight int) *Target {
	t := &Target{
		Host:   host,
		Port:   port,
		Weight: weight,
	}
	t.name = host + ":" + strconv.Itoa(port)
	t.url = "http://" + t.name
	t.healthy.Store(true)
	return t
}

// Name returns the host:port identifier.
func (t *Target) Name() string { return t.name }

// URL returns the precomputed base URL for forwarding.
func (t *Target) URL() string { return t.url }

// Healthy atomically reads the health flag.
func (t *Target) Healthy() bool { return t.healthy.Load() }

// SetHealthy atomically writes the health flag.
func (t *Target) SetHealthy(v bool) { t.healthy.Store(v) }

// Active atomically reads the active connection gauge.
func (t *Target) Active() int64 { return t.active.Load() }

// Acquire increments the active connection gauge.
func (t *Target) Acquire() { t.active.Add(1) }

// Release decrements the active connection gauge.
func (t *Target) Release() { t.active.Add(-1) }
