package blocklist

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/bernd/novpn/version"
)

const (
	// MaxFeedBytes caps a single feed body.
	MaxFeedBytes = 32 << 20

	DefaultTimeout = 10 * time.Second
)

var (
	ErrUnexpectedStatus  = errors.New("unexpected status")
	ErrUnsupportedScheme = errors.New("unsupported scheme")
	ErrFeedTooLarge      = errors.New("feed exceeds size limit")
)

// Fetcher downloads feed bodies. The zero value is not usable; use NewFetcher.
type Fetcher struct {
	client    *http.Client
	timeout   time.Duration
	userAgent string
	maxBytes  int
}

// NewFetcher returns a fetcher whose connect, TLS handshake, response header
// and idle read timeouts all equal timeout.
func NewFetcher(timeout time.Duration) *Fetcher {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	dialer := &net.Dialer{Timeout: timeout, KeepAlive: 30 * time.Second}
	transport := &http.Transport{
		Proxy:                 http.ProxyFromEnvironment,
		DialContext:           dialer.DialContext,
		TLSHandshakeTimeout:   timeout,
		ResponseHeaderTimeout: timeout,
		MaxIdleConnsPerHost:   2,
		IdleConnTimeout:       90 * time.Second,
	}
	return &Fetcher{
		client:    &http.Client{Transport: transport},
		timeout:   timeout,
		userAgent: version.UserAgent(),
		maxBytes:  MaxFeedBytes,
	}
}

// Close drops idle keep-alive connections.
func (f *Fetcher) Close() {
	f.client.CloseIdleConnections()
}

// Fetch downloads and parses one feed.
func (f *Fetcher) Fetch(ctx context.Context, source string) (Entries, error) {
	u, err := url.Parse(source)
	if err != nil {
		return Entries{}, fmt.Errorf("parse url: %w", err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return Entries{}, fmt.Errorf("%w %q", ErrUnsupportedScheme, u.Scheme)
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return Entries{}, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("User-Agent", f.userAgent)

	resp, err := f.client.Do(req)
	if err != nil {
		return Entries{}, fmt.Errorf("execute request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 256))
		return Entries{}, fmt.Errorf("%w %d: %s", ErrUnexpectedStatus, resp.StatusCode, strings.TrimSpace(string(body)))
	}

	// A cut-off last line could parse as a wider block, so an oversized body
	// fails the whole source.
	body := newIdleReader(&cappedReader{r: resp.Body, n: int64(f.maxBytes)}, f.timeout, cancel)
	defer body.stop()

	entries, err := Parse(body, f.maxBytes)
	if err != nil {
		return Entries{}, fmt.Errorf("read response: %w", err)
	}
	return entries, nil
}

// cappedReader fails with ErrFeedTooLarge once more than n bytes arrive.
type cappedReader struct {
	r io.Reader
	n int64
}

func (c *cappedReader) Read(p []byte) (int, error) {
	if int64(len(p)) > c.n+1 {
		p = p[:c.n+1]
	}
	n, err := c.r.Read(p)
	if int64(n) > c.n {
		return 0, ErrFeedTooLarge
	}
	c.n -= int64(n)
	return n, err
}

// idleReader cancels the request when no bytes arrive for d.
type idleReader struct {
	r     io.Reader
	d     time.Duration
	timer *time.Timer
}

func newIdleReader(r io.Reader, d time.Duration, cancel context.CancelFunc) *idleReader {
	return &idleReader{r: r, d: d, timer: time.AfterFunc(d, cancel)}
}

func (r *idleReader) Read(p []byte) (int, error) {
	n, err := r.r.Read(p)
	if n > 0 {
		r.timer.Reset(r.d)
	}
	return n, err
}

func (r *idleReader) stop() { r.timer.Stop() }
