package loadbalancer

import "sync"

// SmoothWeighted implements smooth weighted round-robin: each pick adds
// every candidate's weight to its current score, picks the highest score,
// then subtracts the total weight from the winner. The long-run share of
// picks for a target equals weight/Σweights. Targets with weight 0 are
// excluded.
type SmoothWeighted struct {
	mu      sync.Mutex
	current map[string]int
}

// NewSmoothWeighted creates a new smooth weighted round-robin balancer.
func NewSmoothWeighted() *SmoothWeighted {
	return &SmoothWeighted{
		current: make(map[string]int),
	}
}

// Pick returns the next target by smooth weighted round-robin.
func (sw *SmoothWeighted) Pick(healthy []*Target, _ string) *Target {
	if len(healthy) == 0 {
		return nil
	}

	sw.mu.Lock()
	defer sw.mu.Unlock()

	var best *Target
	bestScore := 0
	total := 0

	for _, t := range healthy {
		if t.Weight <= 0 {
			continue
		}
		total += t.Weight

		score := sw.current[t.Name()] + t.Weight
		sw.current[t.Name()] = score

		if best == nil || score > bestScore {
			best = t
			bestScore = score
		}
	}

	if best == nil {
		return nil
	}

	sw.current[best.Name()] = bestScore - total
	return best
}
