package proxy

import (
	"context"
	"fmt"
	"net"
	"net/netip"
	"strings"

	mdns "github.com/miekg/dns"
)

const (
	dnsblTTL = 60
	// maxTXTString is the RFC 1035 limit for one character-string.
	maxTXTString = 255
)

// dnsblListed is the conventional answer for a listed address.
var dnsblListed = net.IPv4(127, 0, 0, 2)

// DNSBL answers reverse-octet block-list queries (D.C.B.A.<zone>) so mail
// servers and firewalls can consult the cache without the admin API.
type DNSBL struct {
	gate *Gate
	zone string
}

func NewDNSBL(gate *Gate, zone string) *DNSBL {
	return &DNSBL{gate: gate, zone: mdns.Fqdn(strings.ToLower(zone))}
}

func (s *DNSBL) reply(w mdns.ResponseWriter, r *mdns.Msg, rcode int) {
	_ = w.WriteMsg(new(mdns.Msg).SetRcode(r, rcode))
}

func (s *DNSBL) handler() mdns.Handler {
	return mdns.HandlerFunc(func(w mdns.ResponseWriter, r *mdns.Msg) {
		if len(r.Question) == 0 {
			s.reply(w, r, mdns.RcodeFormatError)
			return
		}

		q := r.Question[0]
		name := strings.ToLower(q.Name)
		if !mdns.IsSubDomain(s.zone, name) {
			s.reply(w, r, mdns.RcodeRefused)
			return
		}

		addr, ok := reverseIPv4(strings.TrimSuffix(strings.TrimSuffix(name, s.zone), "."))
		if !ok {
			s.reply(w, r, mdns.RcodeNameError)
			return
		}
		if !s.gate.Check(addr, SourceDNS, "").Blocked() {
			s.reply(w, r, mdns.RcodeNameError)
			return
		}

		m := new(mdns.Msg)
		m.SetReply(r)
		m.Authoritative = true
		hdr := mdns.RR_Header{Name: q.Name, Class: mdns.ClassINET, Ttl: dnsblTTL}
		if q.Qtype == mdns.TypeA || q.Qtype == mdns.TypeANY {
			h := hdr
			h.Rrtype = mdns.TypeA
			m.Answer = append(m.Answer, &mdns.A{Hdr: h, A: dnsblListed})
		}
		if q.Qtype == mdns.TypeTXT || q.Qtype == mdns.TypeANY {
			h := hdr
			h.Rrtype = mdns.TypeTXT
			m.Answer = append(m.Answer, &mdns.TXT{Hdr: h, Txt: chunk(s.gate.KickMessage(), maxTXTString)})
		}
		_ = w.WriteMsg(m)
	})
}

// reverseIPv4 turns "4.3.2.1" into 1.2.3.4.
func reverseIPv4(label string) (netip.Addr, bool) {
	parts := strings.Split(label, ".")
	if len(parts) != 4 {
		return netip.Addr{}, false
	}
	for i, j := 0, len(parts)-1; i < j; i, j = i+1, j-1 {
		parts[i], parts[j] = parts[j], parts[i]
	}
	addr, err := netip.ParseAddr(strings.Join(parts, "."))
	if err != nil || !addr.Is4() {
		return netip.Addr{}, false
	}
	return addr, true
}

func chunk(s string, size int) []string {
	if s == "" {
		return []string{""}
	}
	var out []string
	for len(s) > size {
		out = append(out, s[:size])
		s = s[size:]
	}
	return append(out, s)
}

// ListenAndServe serves UDP and TCP on addr (e.g. ":5353") until ctx is
// canceled or either listener fails.
func (s *DNSBL) ListenAndServe(ctx context.Context, addr string) error {
	udpServer := &mdns.Server{Addr: addr, Net: "udp", Handler: s.handler()}
	tcpServer := &mdns.Server{Addr: addr, Net: "tcp", Handler: s.handler()}

	errCh := make(chan error, 2)
	go func() { errCh <- udpServer.ListenAndServe() }()
	go func() { errCh <- tcpServer.ListenAndServe() }()

	select {
	case <-ctx.Done():
		udpServer.Shutdown()
		tcpServer.Shutdown()
		return ctx.Err()
	case err := <-errCh:
		udpServer.Shutdown()
		tcpServer.Shutdown()
		return err
	}
}

// ListenAndServeTest starts a UDP server on a random port for testing.
// Returns the address and a cleanup function.
func (s *DNSBL) ListenAndServeTest() (string, func()) {
	pc, err := net.ListenPacket("udp", "127.0.0.1:0")
	if err != nil {
		panic(fmt.Sprintf("listen: %v", err))
	}
	addr := pc.LocalAddr().String()

	started := make(chan struct{})
	srv := &mdns.Server{PacketConn: pc, Handler: s.handler(), NotifyStartedFunc: func() { close(started) }}
	go srv.ActivateAndServe()
	<-started

	return addr, func() { srv.Shutdown() }
}
