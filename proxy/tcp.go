package proxy

import (
	"context"
	"errors"
	"io"
	"net"
	"time"

	"github.com/charmbracelet/log"
	"github.com/rs/xid"
)

const (
	upstreamDialTimeout = 10 * time.Second
	kickWriteTimeout    = 5 * time.Second
)

// TCPGate checks every accepted connection and splices allowed ones to the
// upstream server. Blocked peers receive the kick message and are closed.
type TCPGate struct {
	gate     *Gate
	upstream string
	logger   *log.Logger
}

func NewTCPGate(gate *Gate, upstream string, logger *log.Logger) *TCPGate {
	if logger == nil {
		logger = log.Default()
	}
	return &TCPGate{gate: gate, upstream: upstream, logger: logger}
}

func (t *TCPGate) ListenAndServe(ctx context.Context, addr string) error {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return err
	}
	return t.Serve(ctx, ln)
}

// Serve accepts on ln until ctx is canceled or Accept fails permanently.
func (t *TCPGate) Serve(ctx context.Context, ln net.Listener) error {
	stop := context.AfterFunc(ctx, func() { ln.Close() })
	defer stop()

	for {
		conn, err := ln.Accept()
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			var ne net.Error
			if errors.As(err, &ne) && ne.Timeout() {
				continue
			}
			return err
		}
		go t.handle(ctx, conn)
	}
}

func (t *TCPGate) handle(ctx context.Context, conn net.Conn) {
	defer conn.Close()

	id := xid.New().String()
	addr, ok := remoteAddr(conn.RemoteAddr().String())
	if !ok {
		t.logger.Warn("Unparsable peer address", "conn", id, "remote", conn.RemoteAddr())
		return
	}

	if d := t.gate.Check(addr, SourceTCP, id); d.Blocked() {
		conn.SetWriteDeadline(time.Now().Add(kickWriteTimeout))
		io.WriteString(conn, t.gate.KickMessage()+"\n")
		return
	}

	dialer := &net.Dialer{Timeout: upstreamDialTimeout}
	up, err := dialer.DialContext(ctx, "tcp", t.upstream)
	if err != nil {
		t.logger.Warn("Upstream dial failed", "conn", id, "upstream", t.upstream, "error", err)
		return
	}
	defer up.Close()

	splice(conn, up)
}

// splice copies in both directions and returns once either side is done;
// the deferred closes in the caller unblock the other copy.
func splice(a, b net.Conn) {
	done := make(chan struct{}, 2)
	cp := func(dst, src net.Conn) {
		io.Copy(dst, src)
		done <- struct{}{}
	}
	go cp(a, b)
	go cp(b, a)
	<-done
}
