package loadbalancer

import "sync/atomic"

// RoundRobin cycles through healthy targets with an atomic cursor.
type RoundRobin struct {
	current atomic.Uint64
}

// NewRoundRobin creates a new round-robin balancer
func NewRoundRobin() *RoundRobin {
	return &RoundRobin{}
}

// Pick returns the next healthy target. The first pick lands on the
// first target in the list.
func (rr *RoundRobin) Pick(healthy []*Target, _ string) *Target {
	if len(healthy) == 0 {
		return nil
	}

	idx := rr.current.Add(1)
	return healthy[(idx-1)%uint64(len(healthy))]
}
