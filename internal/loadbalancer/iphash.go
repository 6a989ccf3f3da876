package loadbalancer

import "github.com/cespare/xxhash/v2"

// IPHash pins each client IP to one target. The hash is deterministic
// across process restarts for the same IP and the same ordered target list.
type IPHash struct{}

// NewIPHash creates a new ip-hash balancer.
func NewIPHash() *IPHash {
	return &IPHash{}
}

// Pick returns the target the client IP hashes to.
func (ih *IPHash) Pick(healthy []*Target, clientIP string) *Target {
	if len(healthy) == 0 {
		return nil
	}

	return healthy[xxhash.Sum64String(clientIP)%uint64(len(healthy))]
}
