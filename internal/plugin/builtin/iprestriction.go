package builtin

import (
	"fmt"
	"net"
	"strings"

	"github.com/wudi/portway/internal/errors"
	"github.com/wudi/portway/internal/plugin"
)

// IPRestriction filters clients by allow and deny lists of addresses
// and CIDR ranges. A deny match always rejects, even when the allow
// list also matches.
type IPRestriction struct {
	allow   []*net.IPNet
	deny    []*net.IPNet
	status  int
	message string
}

func init() {
	plugin.Register("ip-restriction", NewIPRestriction)
}

// NewIPRestriction builds the plugin from config options. Entries may be
// single addresses or CIDR ranges; invalid entries fail at load.
func NewIPRestriction(options map[string]any) (plugin.Plugin, error) {
	allow, err := parseNets(plugin.OptStrings(options, "allow"))
	if err != nil {
		return nil, fmt.Errorf("allow: %w", err)
	}
	deny, err := parseNets(plugin.OptStrings(options, "deny"))
	if err != nil {
		return nil, fmt.Errorf("deny: %w", err)
	}
	if len(allow) == 0 && len(deny) == 0 {
		return nil, fmt.Errorf("at least one of allow, deny is required")
	}

	return &IPRestriction{
		allow:   allow,
		deny:    deny,
		status:  plugin.OptInt(options, "status", 403),
		message: plugin.OptString(options, "message", "forbidden"),
	}, nil
}

func parseNets(entries []string) ([]*net.IPNet, error) {
	nets := make([]*net.IPNet, 0, len(entries))
	for _, entry := range entries {
		if !strings.Contains(entry, "/") {
			ip := net.ParseIP(entry)
			if ip == nil {
				return nil, fmt.Errorf("invalid IP %q", entry)
			}
			bits := 32
			if ip.To4() == nil {
				bits = 128
			}
			nets = append(nets, &net.IPNet{IP: ip, Mask: net.CIDRMask(bits, bits)})
			continue
		}

		_, ipNet, err := net.ParseCIDR(entry)
		if err != nil {
			return nil, fmt.Errorf("invalid CIDR %q", entry)
		}
		nets = append(nets, ipNet)
	}
	return nets, nil
}

func (p *IPRestriction) Name() string { return "ip-restriction" }

// Access rejects denied clients; with a non-empty allow list, clients
// outside it are rejected too.
func (p *IPRestriction) Access(ctx *plugin.Context) error {
	ip := net.ParseIP(ctx.ClientIP)
	if ip == nil {
		p.reject(ctx)
		return nil
	}

	if matchAny(ip, p.deny) {
		p.reject(ctx)
		return nil
	}
	if len(p.allow) > 0 && !matchAny(ip, p.allow) {
		p.reject(ctx)
		return nil
	}
	return nil
}

func (p *IPRestriction) reject(ctx *plugin.Context) {
	ctx.ShortCircuit(plugin.ErrorResponse(errors.New(p.status, p.message)))
}

func matchAny(ip net.IP, nets []*net.IPNet) bool {
	for _, n := range nets {
		if n.Contains(ip) {
			return true
		}
	}
	return false
}
