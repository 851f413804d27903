//go:build integration

package main

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/http/httptest"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/bernd/novpn/cmd"
	"github.com/bernd/novpn/config"
	"github.com/bernd/novpn/proxy"
	"github.com/charmbracelet/log"
	mdns "github.com/miekg/dns"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func mustGetFreePort(t *testing.T) int {
	t.Helper()

	for range 10 {
		tcpLn, err := net.Listen("tcp", "127.0.0.1:0")
		require.NoError(t, err)
		port := tcpLn.Addr().(*net.TCPAddr).Port
		_ = tcpLn.Close()

		udpLn, err := net.ListenPacket("udp", fmt.Sprintf("127.0.0.1:%d", port))
		if err != nil {
			continue
		}
		_ = udpLn.Close()
		return port
	}

	t.Fatalf("allocate free port for both tcp+udp: exhausted retries")
	return 0
}

func startEchoUpstream(t *testing.T) string {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	t.Cleanup(func() { ln.Close() })
	go func() {
		for {
			conn, err := ln.Accept()
			if err != nil {
				return
			}
			go func() {
				defer conn.Close()
				io.Copy(conn, conn)
			}()
		}
	}()
	return ln.Addr().String()
}

// TestServiceIntegration starts every listener against a local feed and
// drives it through the admin API client.
// Run with: go test -tags=integration -v -run TestServiceIntegration
func TestServiceIntegration(t *testing.T) {
	var body atomic.Value
	body.Store("# exits\n198.51.100.7\n203.0.113.0/24\n")
	feed := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		io.WriteString(w, body.Load().(string))
	}))
	t.Cleanup(feed.Close)

	origin := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		io.WriteString(w, "hello from origin")
	}))
	t.Cleanup(origin.Close)

	tlsDir := t.TempDir()
	creds, err := proxy.GenerateMTLSCredentials(10 * time.Minute)
	require.NoError(t, err)
	require.NoError(t, creds.WriteFiles(tlsDir))

	tcpAddr := fmt.Sprintf("127.0.0.1:%d", mustGetFreePort(t))
	httpAddr := fmt.Sprintf("127.0.0.1:%d", mustGetFreePort(t))
	dnsAddr := fmt.Sprintf("127.0.0.1:%d", mustGetFreePort(t))
	adminAddr := fmt.Sprintf("127.0.0.1:%d", mustGetFreePort(t))

	path := filepath.Join(t.TempDir(), "config.toml")
	cfg := fmt.Sprintf(`kick-message = "<red>No VPNs here"
presets = []
refresh-interval-minutes = 0
lists = [%q]

[listen]
tcp = %q
upstream = %q
http = %q
dns = %q
dns-zone = "bl.test"
admin = %q
tls-dir = %q
`, feed.URL+"/list.txt", tcpAddr, startEchoUpstream(t), httpAddr, dnsAddr, adminAddr, tlsDir)
	require.NoError(t, os.WriteFile(path, []byte(cfg), 0o644))

	logger := log.New(io.Discard)
	settings := config.NewManager(path, logger)
	require.NoError(t, settings.Load())
	srv, err := proxy.NewServer(settings, logger)
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- srv.Run(ctx) }()
	t.Cleanup(func() {
		cancel()
		select {
		case <-done:
		case <-time.After(5 * time.Second):
			t.Error("service did not stop")
		}
	})

	client, err := cmd.NewControlClient(adminAddr, tlsDir)
	require.NoError(t, err)
	require.Eventually(t, func() bool {
		_, err := client.Info()
		return err == nil
	}, 10*time.Second, 50*time.Millisecond, "admin API did not come up")

	t.Run("admin API over mTLS", func(t *testing.T) {
		info, err := client.Info()
		require.NoError(t, err)
		assert.Equal(t, 1, info.IPs)
		assert.Equal(t, 1, info.Ranges)

		blocked, err := client.Check("203.0.113.99")
		require.NoError(t, err)
		assert.True(t, blocked)

		plain := &http.Client{Timeout: 2 * time.Second}
		if resp, err := plain.Get("http://" + adminAddr + "/info"); err == nil {
			resp.Body.Close()
			assert.NotEqual(t, http.StatusOK, resp.StatusCode, "plain HTTP is rejected")
		}
	})

	t.Run("DNSBL answers for listed addresses", func(t *testing.T) {
		c := new(mdns.Client)

		m := new(mdns.Msg)
		m.SetQuestion("7.100.51.198.bl.test.", mdns.TypeA)
		resp, _, err := c.Exchange(m, dnsAddr)
		require.NoError(t, err)
		require.Equal(t, mdns.RcodeSuccess, resp.Rcode)
		require.Len(t, resp.Answer, 1)
		assert.Equal(t, "127.0.0.2", resp.Answer[0].(*mdns.A).A.String())

		m.SetQuestion("1.0.0.10.bl.test.", mdns.TypeA)
		resp, _, err = c.Exchange(m, dnsAddr)
		require.NoError(t, err)
		assert.Equal(t, mdns.RcodeNameError, resp.Rcode)
	})

	t.Run("TCP gate splices clean peers", func(t *testing.T) {
		conn, err := net.DialTimeout("tcp", tcpAddr, 2*time.Second)
		require.NoError(t, err)
		defer conn.Close()
		conn.SetDeadline(time.Now().Add(5 * time.Second))

		_, err = io.WriteString(conn, "ping\n")
		require.NoError(t, err)
		line, err := bufio.NewReader(conn).ReadString('\n')
		require.NoError(t, err)
		assert.Equal(t, "ping\n", line)
	})

	t.Run("HTTP gate forwards clean peers", func(t *testing.T) {
		httpClient := &http.Client{
			Timeout:   5 * time.Second,
			Transport: &http.Transport{Proxy: http.ProxyURL(&url.URL{Scheme: "http", Host: httpAddr})},
		}
		resp, err := httpClient.Get(origin.URL)
		require.NoError(t, err)
		defer resp.Body.Close()
		data, _ := io.ReadAll(resp.Body)
		assert.Equal(t, http.StatusOK, resp.StatusCode)
		assert.Equal(t, "hello from origin", string(data))
	})

	// List loopback and reload: every gate now refuses this host.
	body.Store("127.0.0.1\n")
	outcome, err := client.Reload(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, outcome.IPs)
	assert.Zero(t, outcome.Ranges)

	t.Run("TCP gate kicks blocked peers", func(t *testing.T) {
		conn, err := net.DialTimeout("tcp", tcpAddr, 2*time.Second)
		require.NoError(t, err)
		defer conn.Close()
		conn.SetDeadline(time.Now().Add(5 * time.Second))

		data, err := io.ReadAll(conn)
		require.NoError(t, err)
		assert.Equal(t, "No VPNs here\n", string(data))
	})

	t.Run("HTTP gate rejects blocked peers", func(t *testing.T) {
		httpClient := &http.Client{
			Timeout:   5 * time.Second,
			Transport: &http.Transport{Proxy: http.ProxyURL(&url.URL{Scheme: "http", Host: httpAddr})},
		}
		resp, err := httpClient.Get(origin.URL)
		require.NoError(t, err)
		defer resp.Body.Close()
		data, _ := io.ReadAll(resp.Body)
		assert.Equal(t, http.StatusForbidden, resp.StatusCode)
		assert.Contains(t, string(data), "No VPNs here")
	})

	t.Run("decisions are logged", func(t *testing.T) {
		entries, err := client.Logs()
		require.NoError(t, err)

		var sources []string
		for _, e := range entries {
			if e.Action == proxy.ActionBlock {
				sources = append(sources, string(e.Source))
			}
		}
		joined := strings.Join(sources, ",")
		assert.Contains(t, joined, "tcp")
		assert.Contains(t, joined, "http")
		assert.Contains(t, joined, "dns")
	})
}
