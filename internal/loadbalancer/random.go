package loadbalancer

import "math/rand/v2"

// Random picks uniformly over healthy targets, or proportionally to
// weight when any target carries a positive weight.
type Random struct{}

// NewRandom creates a new random balancer.
func NewRandom() *Random {
	return &Random{}
}

// Pick returns a randomly chosen target.
func (r *Random) Pick(healthy []*Target, _ string) *Target {
	if len(healthy) == 0 {
		return nil
	}

	total := 0
	for _, t := range healthy {
		if t.Weight > 0 {
			total += t.Weight
		}
	}

	if total == 0 {
		return healthy[rand.IntN(len(healthy))]
	}

	n := rand.IntN(total)
	for _, t := range healthy {
		if t.Weight <= 0 {
			continue
		}
		n -= t.Weight
		if n < 0 {
			return t
		}
	}
	return healthy[len(healthy)-1]
}
