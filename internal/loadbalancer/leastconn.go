package loadbalancer

// LeastConnections picks the healthy target with the fewest active
// requests. Ties are broken by earliest list position.
type LeastConnections struct{}

// NewLeastConnections creates a new least-connections balancer.
func NewLeastConnections() *LeastConnections {
	return &LeastConnections{}
}

// Pick returns the healthy target with the lowest active connection count.
func (lc *LeastConnections) Pick(healthy []*Target, _ string) *Target {
	if len(healthy) == 0 {
		return nil
	}

	best := healthy[0]
	bestActive := best.Active()

	for _, t := range healthy[1:] {
		if active := t.Active(); active < bestActive {
			best = t
			bestActive = active
		}
	}

	return best
}
