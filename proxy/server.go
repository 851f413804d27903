package proxy

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/bernd/novpn/blocklist"
	"github.com/bernd/novpn/config"
	"github.com/bernd/novpn/version"
	"github.com/charmbracelet/log"
	"golang.org/x/sync/singleflight"
)

var ErrNoUpstream = errors.New("listen.tcp requires listen.upstream")

// Server wires the block-list cache to the TCP gate, HTTP gate, DNSBL and
// admin API.
type Server struct {
	settings *config.Manager
	cache    *blocklist.Cache
	gate     *Gate
	log      *LogBuffer
	logger   *log.Logger

	reloads singleflight.Group

	mu   sync.Mutex
	last *blocklist.RefreshOutcome
}

// NewServer builds the service from the manager's current config. Load the
// manager first; NewServer does not read the file.
func NewServer(settings *config.Manager, logger *log.Logger) (*Server, error) {
	if logger == nil {
		logger = log.Default()
	}
	cfg := settings.Get()

	perms, err := NewPermissions(cfg.Grants)
	if err != nil {
		return nil, fmt.Errorf("grants: %w", err)
	}

	cache := blocklist.NewCache(
		blocklist.WithLogger(logger),
		blocklist.WithRetainOnFailure(cfg.RetainOnFailure),
	)
	buf := NewLogBuffer(LogBufferCapacity)

	return &Server{
		settings: settings,
		cache:    cache,
		gate:     NewGate(cache, settings, perms, buf, logger),
		log:      buf,
		logger:   logger,
	}, nil
}

func (s *Server) Gate() *Gate { return s.gate }

func (s *Server) Cache() *blocklist.Cache { return s.cache }

func (s *Server) IsBlocked(addr string) bool { return s.cache.IsBlocked(addr) }

func (s *Server) Permissions() *Permissions { return s.gate.Permissions() }

// Info reports the version and the current cache state.
func (s *Server) Info() Info {
	sources := s.settings.Get().SourceList()
	s.mu.Lock()
	last := s.last
	s.mu.Unlock()
	return Info{
		Version:     version.Get(),
		IPs:         s.cache.IPCount(),
		Ranges:      s.cache.RangeCount(),
		Sources:     len(sources.URLs),
		Interval:    sources.Interval,
		Scheduled:   s.cache.Scheduled(),
		LastRefresh: last,
	}
}

func (s *Server) setLast(o blocklist.RefreshOutcome) {
	s.mu.Lock()
	s.last = &o
	s.mu.Unlock()
}

// Reload re-reads the config file, swaps the grant table, refreshes the
// lists and re-arms the schedule. Concurrent calls share one reload. A
// config error still refreshes, using the built-in defaults, and is
// returned alongside the outcome.
func (s *Server) Reload(ctx context.Context) (blocklist.RefreshOutcome, error) {
	v, err, _ := s.reloads.Do("reload", func() (any, error) {
		var errs []error
		if err := s.settings.Load(); err != nil {
			errs = append(errs, err)
		}
		cfg := s.settings.Get()

		if perms, err := NewPermissions(cfg.Grants); err != nil {
			s.logger.Error("Invalid grants, keeping previous permissions", "error", err)
			errs = append(errs, fmt.Errorf("grants: %w", err))
		} else {
			s.gate.SetPermissions(perms)
		}

		s.cache.SetRetainOnFailure(cfg.RetainOnFailure)
		sources := cfg.SourceList()
		outcome := s.cache.Refresh(context.WithoutCancel(ctx), sources)
		s.cache.Reconfigure(sources)
		s.setLast(outcome)
		return outcome, errors.Join(errs...)
	})
	return v.(blocklist.RefreshOutcome), err
}

// Run performs the initial refresh, arms the schedule and serves every
// configured listener until ctx is canceled or a listener fails. Listen
// addresses are read once; changing them requires a restart.
func (s *Server) Run(ctx context.Context) error {
	cfg := s.settings.Get()
	if cfg.Listen.TCP != "" && cfg.Listen.Upstream == "" {
		return ErrNoUpstream
	}

	var adminTLS *tls.Config
	if cfg.Listen.Admin != "" && cfg.Listen.TLSDir != "" {
		var err error
		if adminTLS, err = LoadServerTLSConfig(cfg.Listen.TLSDir); err != nil {
			return fmt.Errorf("admin API TLS: %w", err)
		}
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	s.setLast(s.cache.Start(ctx, cfg.SourceList()))
	defer s.cache.Shutdown()

	errCh := make(chan error, 4)

	if addr := cfg.Listen.TCP; addr != "" {
		tcpGate := NewTCPGate(s.gate, cfg.Listen.Upstream, s.logger)
		go func() {
			s.logger.Info("TCP gate listening", "addr", addr, "upstream", cfg.Listen.Upstream)
			errCh <- tcpGate.ListenAndServe(ctx, addr)
		}()
	}

	if addr := cfg.Listen.HTTP; addr != "" {
		srv := &http.Server{
			Addr:              addr,
			Handler:           NewHTTPGate(s.gate).Handler(),
			ReadHeaderTimeout: 30 * time.Second,
		}
		go func() {
			s.logger.Info("HTTP gate listening", "addr", addr)
			errCh <- serveHTTP(ctx, srv, nil)
		}()
	}

	if addr := cfg.Listen.DNS; addr != "" {
		dnsbl := NewDNSBL(s.gate, cfg.Listen.DNSZone)
		go func() {
			s.logger.Info("DNSBL listening", "addr", addr, "zone", cfg.Listen.DNSZone)
			errCh <- dnsbl.ListenAndServe(ctx, addr)
		}()
	}

	if addr := cfg.Listen.Admin; addr != "" {
		srv := &http.Server{
			Addr:         addr,
			Handler:      NewControlAPI(s, s.log),
			ReadTimeout:  30 * time.Second,
			WriteTimeout: 5 * time.Minute,
			IdleTimeout:  60 * time.Second,
		}
		go func() {
			s.logger.Info("Admin API listening", "addr", addr, "mtls", adminTLS != nil)
			errCh <- serveHTTP(ctx, srv, adminTLS)
		}()
	}

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}

// serveHTTP runs srv until ctx is canceled, with TLS when tlsCfg is set.
func serveHTTP(ctx context.Context, srv *http.Server, tlsCfg *tls.Config) error {
	ln, err := net.Listen("tcp", srv.Addr)
	if err != nil {
		return err
	}
	if tlsCfg != nil {
		ln = tls.NewListener(ln, tlsCfg)
	}

	stop := context.AfterFunc(ctx, func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		srv.Shutdown(shutdownCtx)
	})
	defer stop()

	if err := srv.Serve(ln); !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return ctx.Err()
}
