package proxy

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/bernd/novpn/config"
	"github.com/charmbracelet/log"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func feed(t *testing.T, body string) string {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		io.WriteString(w, body)
	}))
	t.Cleanup(srv.Close)
	return srv.URL + "/list.txt"
}

// freeAddr returns a loopback address that was free a moment ago.
func freeAddr(t *testing.T) string {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	addr := ln.Addr().String()
	ln.Close()
	return addr
}

func writeConfig(t *testing.T, path, body string) {
	t.Helper()
	require.NoError(t, os.WriteFile(path, []byte("presets = []\nrefresh-interval-minutes = 0\n"+body), 0o644))
}

func newTestServer(t *testing.T, body string) (*Server, string) {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.toml")
	writeConfig(t, path, body)

	logger := log.New(io.Discard)
	m := config.NewManager(path, logger)
	require.NoError(t, m.Load())

	s, err := NewServer(m, logger)
	require.NoError(t, err)
	return s, path
}

func TestServerReload(t *testing.T) {
	first := feed(t, "1.2.3.4\n10.0.0.0/8\n")
	second := feed(t, "5.6.7.8\n")

	s, path := newTestServer(t, fmt.Sprintf("lists = [%q]\n", first))
	assert.Zero(t, s.Info().IPs, "nothing fetched before reload")
	assert.Nil(t, s.Info().LastRefresh)

	out, err := s.Reload(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, out.IPs)
	assert.Equal(t, 1, out.Ranges)
	assert.True(t, s.IsBlocked("10.9.9.9"))

	info := s.Info()
	assert.Equal(t, 1, info.IPs)
	assert.Equal(t, 1, info.Sources)
	assert.False(t, info.Scheduled)
	require.NotNil(t, info.LastRefresh)
	assert.Equal(t, out.ID, info.LastRefresh.ID)

	writeConfig(t, path, fmt.Sprintf("lists = [%q]\nrefresh-interval-minutes = 5\n[grants]\n\"novpn.bypass\" = [\"192.0.2.1\"]\n", second))
	_, err = s.Reload(context.Background())
	require.NoError(t, err)
	defer s.Cache().Shutdown()

	assert.False(t, s.IsBlocked("1.2.3.4"))
	assert.True(t, s.IsBlocked("5.6.7.8"))
	assert.True(t, s.Info().Scheduled)
	assert.Equal(t, 5*time.Minute, s.Info().Interval)
	assert.Equal(t, ActionBypass, s.Gate().Check(mustAddr("192.0.2.1"), SourceTCP, "").Action)
}

func TestServerReloadKeepsPermissionsOnBadGrants(t *testing.T) {
	s, path := newTestServer(t, "[grants]\n\"novpn.bypass\" = [\"192.0.2.1\"]\n")
	before := s.Permissions()

	writeConfig(t, path, "[grants]\n\"novpn.bypass\" = [\"not-an-ip\"]\n")
	_, err := s.Reload(context.Background())
	assert.Error(t, err)
	assert.Same(t, before, s.Permissions())
}

func TestServerConcurrentReloads(t *testing.T) {
	s, _ := newTestServer(t, fmt.Sprintf("lists = [%q]\n", feed(t, "1.2.3.4\n")))

	var wg sync.WaitGroup
	for range 8 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			out, err := s.Reload(context.Background())
			assert.NoError(t, err)
			assert.Equal(t, 1, out.IPs)
		}()
	}
	wg.Wait()
	assert.Equal(t, 1, s.Info().IPs)
}

func TestNewServerRejectsInvalidGrants(t *testing.T) {
	m := config.NewManager(filepath.Join(t.TempDir(), "config.toml"), log.New(io.Discard))
	m.Get().Grants["novpn.bypass"] = []string{"10.0.0.0/40"}
	_, err := NewServer(m, nil)
	assert.Error(t, err)
}

func TestServerRun(t *testing.T) {
	t.Run("tcp gate needs an upstream", func(t *testing.T) {
		s, _ := newTestServer(t, "[listen]\ntcp = \"127.0.0.1:0\"\nadmin = \"\"\n")
		assert.ErrorIs(t, s.Run(context.Background()), ErrNoUpstream)
	})

	t.Run("serves admin API until canceled", func(t *testing.T) {
		admin := freeAddr(t)
		s, _ := newTestServer(t, fmt.Sprintf("lists = [%q]\n[listen]\nadmin = %q\n", feed(t, "1.2.3.4\n"), admin))

		ctx, cancel := context.WithCancel(context.Background())
		done := make(chan error, 1)
		go func() { done <- s.Run(ctx) }()

		var res CheckResult
		require.Eventually(t, func() bool {
			resp, err := http.Get("http://" + admin + "/check?ip=1.2.3.4")
			if err != nil {
				return false
			}
			defer resp.Body.Close()
			return json.NewDecoder(resp.Body).Decode(&res) == nil
		}, 5*time.Second, 20*time.Millisecond)
		assert.True(t, res.Blocked)

		cancel()
		select {
		case err := <-done:
			assert.ErrorIs(t, err, context.Canceled)
		case <-time.After(5 * time.Second):
			t.Fatal("Run did not return after cancel")
		}
	})
}
