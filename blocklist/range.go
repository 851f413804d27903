package blocklist

import (
	"encoding/binary"
	"fmt"
	"net/netip"
	"strconv"
	"strings"
)

// RangeMatcher is a single IPv4 CIDR block. The network address is kept as
// given in the source, host bits included, so Contains masks both sides.
type RangeMatcher struct {
	network uint32
	prefix  int
	mask    uint32
}

// ParseRange parses "A.B.C.D/N". The host part must be a literal IPv4
// address and N must be in [0, 32].
func ParseRange(text string) (RangeMatcher, bool) {
	host, bits, ok := strings.Cut(text, "/")
	if !ok {
		return RangeMatcher{}, false
	}
	if len(bits) == 0 || len(bits) > 2 || !isNumeric(bits) {
		return RangeMatcher{}, false
	}
	prefix, err := strconv.Atoi(bits)
	if err != nil || prefix < 0 || prefix > 32 {
		return RangeMatcher{}, false
	}

	addr, err := netip.ParseAddr(host)
	if err != nil || !addr.Is4() {
		return RangeMatcher{}, false
	}
	return newRange(addrToUint32(addr), prefix), true
}

// MustParseRange is like ParseRange but panics on invalid input.
func MustParseRange(text string) RangeMatcher {
	r, ok := ParseRange(text)
	if !ok {
		panic(fmt.Sprintf("blocklist: invalid CIDR %q", text))
	}
	return r
}

func newRange(network uint32, prefix int) RangeMatcher {
	var mask uint32
	if prefix > 0 {
		mask = 0xFFFFFFFF << (32 - prefix)
	}
	return RangeMatcher{network: network, prefix: prefix, mask: mask}
}

// Contains reports whether the big-endian IPv4 address falls in the block.
func (r RangeMatcher) Contains(addr uint32) bool {
	return r.network&r.mask == addr&r.mask
}

// ContainsAddr is Contains for a netip.Addr. Non-IPv4 addresses never match.
func (r RangeMatcher) ContainsAddr(addr netip.Addr) bool {
	if !addr.Is4() {
		return false
	}
	return r.Contains(addrToUint32(addr))
}

func (r RangeMatcher) String() string {
	var b [4]byte
	binary.BigEndian.PutUint32(b[:], r.network)
	return netip.AddrFrom4(b).String() + "/" + strconv.Itoa(r.prefix)
}

func addrToUint32(addr netip.Addr) uint32 {
	b := addr.As4()
	return binary.BigEndian.Uint32(b[:])
}

func isNumeric(s string) bool {
	if s == "" {
		return false
	}
	for _, c := range s {
		if c < '0' || c > '9' {
			return false
		}
	}
	return true
}
