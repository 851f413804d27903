package blocklist

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/charmbracelet/log"
	"github.com/rs/xid"
	"golang.org/x/sync/errgroup"
)

const defaultConcurrency = 4

// SourceList is the per-refresh input: feed URLs in priority order, the
// per-source connect/read timeout and the periodic refresh interval.
// An Interval <= 0 disables periodic refresh.
type SourceList struct {
	URLs     []string
	Timeout  time.Duration
	Interval time.Duration
}

type SourceFailure struct {
	URL   string `json:"url"`
	Error string `json:"error"`
}

// RefreshOutcome summarizes one Refresh call.
type RefreshOutcome struct {
	ID       xid.ID          `json:"id"`
	Sources  int             `json:"sources"`
	IPs      int             `json:"ips"`
	Ranges   int             `json:"ranges"`
	Failed   int             `json:"failed"`
	Failures []SourceFailure `json:"failures,omitempty"`
	Duration time.Duration   `json:"duration"`
	// Retained is set when every source failed and the previous snapshot
	// was kept (WithRetainOnFailure).
	Retained bool `json:"retained,omitempty"`
}

// Cache is the single authority for the published block-list snapshot.
// IsBlocked, IPCount and RangeCount are safe for concurrent use with each
// other and with Refresh. Start, Reconfigure and Shutdown are meant to be
// called from one administrative goroutine.
type Cache struct {
	current atomic.Pointer[Snapshot]

	log             *log.Logger
	retainOnFailure atomic.Bool
	concurrency     int

	mu         sync.Mutex
	base       context.Context
	stopTicker context.CancelFunc
}

type Option func(*Cache)

func WithLogger(l *log.Logger) Option {
	return func(c *Cache) { c.log = l }
}

// WithRetainOnFailure keeps the previously published snapshot when every
// configured source fails, instead of publishing the empty result.
func WithRetainOnFailure(retain bool) Option {
	return func(c *Cache) { c.retainOnFailure.Store(retain) }
}

// SetRetainOnFailure changes the all-sources-failed policy for later
// refreshes, e.g. after a config reload.
func (c *Cache) SetRetainOnFailure(retain bool) {
	c.retainOnFailure.Store(retain)
}

// WithConcurrency bounds how many sources are fetched at once.
func WithConcurrency(n int) Option {
	return func(c *Cache) {
		if n > 0 {
			c.concurrency = n
		}
	}
}

func NewCache(opts ...Option) *Cache {
	c := &Cache{
		log:         log.Default(),
		concurrency: defaultConcurrency,
	}
	for _, opt := range opts {
		opt(c)
	}
	c.current.Store(emptySnapshot)
	return c
}

// IsBlocked reports whether raw is flagged by the current snapshot. It never
// blocks and never performs I/O; unparsable and IPv6 input is not blocked.
func (c *Cache) IsBlocked(raw string) bool {
	return c.current.Load().Contains(raw)
}

func (c *Cache) IPCount() int    { return c.current.Load().IPCount() }
func (c *Cache) RangeCount() int { return c.current.Load().RangeCount() }

// Snapshot returns the currently published snapshot.
func (c *Cache) Snapshot() *Snapshot { return c.current.Load() }

type sourceResult struct {
	entries Entries
	err     error
}

// Refresh downloads every source, merges the results in source order and
// publishes them as one new snapshot. A failing source is counted and
// skipped; it never aborts the refresh or discards other sources.
func (c *Cache) Refresh(ctx context.Context, sources SourceList) RefreshOutcome {
	start := time.Now()
	id := xid.New()
	logger := c.log.With("refresh", id.String())
	logger.Info("Refreshing IP lists", "sources", len(sources.URLs))

	fetcher := NewFetcher(sources.Timeout)
	defer fetcher.Close()

	results := make([]sourceResult, len(sources.URLs))
	var g errgroup.Group
	g.SetLimit(c.concurrency)
	for i, src := range sources.URLs {
		g.Go(func() error {
			entries, err := fetcher.Fetch(ctx, src)
			results[i] = sourceResult{entries: entries, err: err}
			return nil
		})
	}
	_ = g.Wait()

	outcome := RefreshOutcome{ID: id, Sources: len(sources.URLs)}
	var merged Entries
	for i, res := range results {
		if res.err != nil {
			outcome.Failed++
			outcome.Failures = append(outcome.Failures, SourceFailure{URL: sources.URLs[i], Error: res.err.Error()})
			logger.Debug("Failed to fetch list", "source", sources.URLs[i], "error", res.err)
			continue
		}
		merged.merge(res.entries)
	}

	snap := NewSnapshot(id, merged.IPs, merged.Ranges)

	if c.retainOnFailure.Load() && outcome.Sources > 0 && outcome.Failed == outcome.Sources {
		snap = c.current.Load()
		outcome.Retained = true
		logger.Warn("Every source failed, keeping previous lists", "snapshot", snap.ID.String())
	} else {
		c.current.Store(snap)
	}

	outcome.IPs = snap.IPCount()
	outcome.Ranges = snap.RangeCount()
	outcome.Duration = time.Since(start)

	logger.Info("IP lists refreshed",
		"ips", outcome.IPs,
		"ranges", outcome.Ranges,
		"failed", outcome.Failed,
		"took", outcome.Duration.Round(time.Millisecond),
	)
	return outcome
}

// Start performs one synchronous refresh so lookups are served from a
// populated snapshot, then arms the periodic refresh. ctx bounds every
// refresh started by the schedule.
func (c *Cache) Start(ctx context.Context, sources SourceList) RefreshOutcome {
	outcome := c.Refresh(ctx, sources)

	c.mu.Lock()
	c.base = ctx
	c.mu.Unlock()

	c.Reconfigure(sources)
	return outcome
}

// Reconfigure cancels the pending periodic refresh and re-arms it with the
// new interval and sources. It does not refresh immediately.
func (c *Cache) Reconfigure(sources SourceList) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.cancelTickerLocked()
	if sources.Interval <= 0 {
		c.log.Info("Periodic refresh disabled")
		return
	}

	base := c.base
	if base == nil {
		base = context.Background()
	}
	tickerCtx, cancel := context.WithCancel(base)
	c.stopTicker = cancel
	go c.runTicker(tickerCtx, base, sources)
}

// Shutdown cancels the periodic refresh. A refresh already in progress
// still completes and publishes.
func (c *Cache) Shutdown() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.cancelTickerLocked()
}

// Scheduled reports whether a periodic refresh is armed.
func (c *Cache) Scheduled() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.stopTicker != nil
}

func (c *Cache) cancelTickerLocked() {
	if c.stopTicker != nil {
		c.stopTicker()
		c.stopTicker = nil
	}
}

// runTicker refreshes every sources.Interval until tickerCtx is canceled.
// Refreshes run under refreshCtx so canceling the ticker does not abort one
// that has already started.
func (c *Cache) runTicker(tickerCtx, refreshCtx context.Context, sources SourceList) {
	ticker := time.NewTicker(sources.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-tickerCtx.Done():
			return
		case <-ticker.C:
			c.Refresh(refreshCtx, sources)
		}
	}
}
