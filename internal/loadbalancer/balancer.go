package loadbalancer

import "fmt"

// Balancer picks one target from a healthy set. Pick returns nil when
// the set is empty; callers map that to a no-healthy-target error.
type Balancer interface {
	Pick(healthy []*Target, clientIP string) *Target
}

// New creates a balancer for the given algorithm.
func New(algorithm string) (Balancer, error) {
	switch algorithm {
	case "round-robin":
		return NewRoundRobin(), nil
	case "least-connections":
		return NewLeastConnections(), nil
	case "ip-hash":
		return NewIPHash(), nil
	case "weighted":
		return NewSmoothWeighted(), nil
	case "random":
		return NewRandom(), nil
	default:
		return nil, fmt.Errorf("unknown load balancing algorithm: %s", algorithm)
	}
}
