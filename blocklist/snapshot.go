package blocklist

import (
	"net/netip"
	"time"

	"github.com/rs/xid"
)

// Snapshot is an immutable view of all loaded lists. A reader holding a
// *Snapshot always sees a consistent set of exact IPs and ranges.
type Snapshot struct {
	ips    map[string]struct{}
	ranges []RangeMatcher

	// ID identifies the refresh that produced the snapshot.
	ID       xid.ID
	LoadedAt time.Time
}

var emptySnapshot = &Snapshot{ips: map[string]struct{}{}}

// NewSnapshot copies ips and ranges into a new snapshot identified by id.
func NewSnapshot(id xid.ID, ips []string, ranges []RangeMatcher) *Snapshot {
	set := make(map[string]struct{}, len(ips))
	for _, ip := range ips {
		set[ip] = struct{}{}
	}
	rs := make([]RangeMatcher, len(ranges))
	copy(rs, ranges)
	return &Snapshot{ips: set, ranges: rs, ID: id, LoadedAt: time.Now()}
}

// Contains reports whether raw is flagged: a verbatim exact-IP hit, or an
// IPv4 literal inside any loaded range. Anything unparsable is not flagged.
func (s *Snapshot) Contains(raw string) bool {
	if _, ok := s.ips[raw]; ok {
		return true
	}
	if len(s.ranges) == 0 {
		return false
	}

	addr, err := netip.ParseAddr(raw)
	if err != nil || !addr.Is4() {
		return false
	}
	ip := addrToUint32(addr)
	for _, r := range s.ranges {
		if r.Contains(ip) {
			return true
		}
	}
	return false
}

func (s *Snapshot) IPCount() int    { return len(s.ips) }
func (s *Snapshot) RangeCount() int { return len(s.ranges) }

// Ranges returns a copy of the loaded ranges in insertion order.
func (s *Snapshot) Ranges() []RangeMatcher {
	out := make([]RangeMatcher, len(s.ranges))
	copy(out, s.ranges)
	return out
}
