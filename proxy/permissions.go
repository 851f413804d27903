package proxy

import (
	"fmt"
	"net/netip"
	"strings"

	"github.com/bernd/novpn/blocklist"
)

// grant is one permission's holders: IPv4 ranges plus exact addresses (any
// family).
type grant struct {
	ranges []blocklist.RangeMatcher
	exact  map[netip.Addr]struct{}
}

// Permissions maps permission names to the peers holding them. It is
// immutable after construction.
type Permissions struct {
	grants map[string]grant
}

// NewPermissions parses grant entries of the form "A.B.C.D", "A.B.C.D/N" or
// an IPv6 literal. Invalid entries are rejected.
func NewPermissions(grants map[string][]string) (*Permissions, error) {
	p := &Permissions{grants: make(map[string]grant, len(grants))}
	for name, entries := range grants {
		g := grant{exact: make(map[netip.Addr]struct{})}
		for _, entry := range entries {
			entry = strings.TrimSpace(entry)
			if strings.Contains(entry, "/") {
				r, ok := blocklist.ParseRange(entry)
				if !ok {
					return nil, fmt.Errorf("grant %s: invalid CIDR %q", name, entry)
				}
				g.ranges = append(g.ranges, r)
				continue
			}
			addr, err := netip.ParseAddr(entry)
			if err != nil {
				return nil, fmt.Errorf("grant %s: invalid address %q", name, entry)
			}
			g.exact[addr.Unmap()] = struct{}{}
		}
		p.grants[name] = g
	}
	return p, nil
}

// HasPermission reports whether addr holds the named permission.
func (p *Permissions) HasPermission(addr netip.Addr, name string) bool {
	if p == nil || name == "" || !addr.IsValid() {
		return false
	}
	g, ok := p.grants[name]
	if !ok {
		return false
	}
	addr = addr.Unmap()
	if _, ok := g.exact[addr]; ok {
		return true
	}
	for _, r := range g.ranges {
		if r.ContainsAddr(addr) {
			return true
		}
	}
	return false
}
