package proxy

import (
	"net"
	"net/netip"
	"regexp"
	"strings"
	"sync/atomic"
	"time"

	"github.com/bernd/novpn/config"
	"github.com/charmbracelet/log"
)

const LogBufferCapacity = 10000

// Checker answers block-list lookups; *blocklist.Cache implements it.
type Checker interface {
	IsBlocked(addr string) bool
}

// Settings exposes the live configuration; *config.Manager implements it.
type Settings interface {
	Get() *config.Config
}

// Decision is the outcome of a gate check.
type Decision struct {
	Action Action
	Addr   string
	Reason string
}

func (d Decision) Blocked() bool { return d.Action == ActionBlock }

// Gate decides whether a connecting peer may pass. The TCP, HTTP and DNS
// front ends all call Check so the policy lives in one place.
type Gate struct {
	checker  Checker
	settings Settings
	perms    atomic.Pointer[Permissions]
	log      *LogBuffer
	logger   *log.Logger
}

func NewGate(checker Checker, settings Settings, perms *Permissions, buf *LogBuffer, logger *log.Logger) *Gate {
	if logger == nil {
		logger = log.Default()
	}
	g := &Gate{checker: checker, settings: settings, log: buf, logger: logger}
	g.perms.Store(perms)
	return g
}

// SetPermissions swaps the grant table after a config reload.
func (g *Gate) SetPermissions(p *Permissions) {
	g.perms.Store(p)
}

func (g *Gate) Permissions() *Permissions {
	return g.perms.Load()
}

// Check evaluates a connecting peer and records the decision. IPv4-mapped
// IPv6 peers are checked by their IPv4 address.
func (g *Gate) Check(addr netip.Addr, source Source, conn string) Decision {
	cfg := g.settings.Get()
	addr = addr.Unmap()
	d := Decision{Action: ActionAllow, Addr: addr.String()}

	switch {
	case g.perms.Load().HasPermission(addr, cfg.BypassPermission):
		d.Action = ActionBypass
		d.Reason = cfg.BypassPermission
	case g.checker.IsBlocked(d.Addr):
		d.Action = ActionBlock
		d.Reason = "VPN/proxy detected"
		if cfg.LogBlocked {
			g.logger.Info("Blocked connection, VPN/proxy detected", "addr", d.Addr, "source", source, "conn", conn)
		}
	}

	g.log.Add(LogEntry{
		Time:   time.Now(),
		Addr:   d.Addr,
		Action: d.Action,
		Source: source,
		Conn:   conn,
		Reason: d.Reason,
	})
	return d
}

// KickMessage returns the configured kick message without markup tags.
func (g *Gate) KickMessage() string {
	return PlainText(g.settings.Get().KickMessage)
}

var markupTag = regexp.MustCompile(`</?[a-zA-Z_#:!][^<>]*>`)

// PlainText strips MiniMessage-style tags such as <red> or </bold>.
func PlainText(s string) string {
	return strings.TrimSpace(markupTag.ReplaceAllString(s, ""))
}

// remoteAddr extracts the peer IP from a net.Addr or "host:port" string.
func remoteAddr(a string) (netip.Addr, bool) {
	if ap, err := netip.ParseAddrPort(a); err == nil {
		return ap.Addr(), true
	}
	host, _, err := net.SplitHostPort(a)
	if err != nil {
		host = a
	}
	addr, err := netip.ParseAddr(host)
	if err != nil {
		return netip.Addr{}, false
	}
	return addr, true
}
