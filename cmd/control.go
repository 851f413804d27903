package cmd

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/bernd/novpn/blocklist"
	"github.com/bernd/novpn/config"
	"github.com/bernd/novpn/proxy"
	"github.com/urfave/cli/v3"
)

// ControlClient talks to a running service's admin API, over mTLS when
// credentials are configured.
type ControlClient struct {
	http    *http.Client
	baseURL string
}

// NewControlClient connects to addr. With a non-empty tlsDir the client
// presents the certificates generated by `novpn certs`.
func NewControlClient(addr, tlsDir string) (*ControlClient, error) {
	if addr == "" {
		return nil, fmt.Errorf("admin API is disabled (listen.admin is empty)")
	}
	c := &ControlClient{
		http:    &http.Client{Timeout: 5 * time.Second},
		baseURL: "http://" + addr,
	}
	if tlsDir != "" {
		tlsCfg, err := proxy.LoadClientTLSConfig(tlsDir)
		if err != nil {
			return nil, fmt.Errorf("load TLS credentials: %w", err)
		}
		c.http.Transport = &http.Transport{TLSClientConfig: tlsCfg}
		c.baseURL = "https://" + addr
	}
	return c, nil
}

// clientFromCommand builds a client from --admin and the config file.
// A missing config file falls back to the defaults.
func clientFromCommand(cmd *cli.Command) (*ControlClient, error) {
	cfg, err := config.Load(cmd.String(configFlag))
	if err != nil {
		if !errors.Is(err, fs.ErrNotExist) {
			return nil, err
		}
		cfg = config.Default()
	}
	addr := cfg.Listen.Admin
	if a := cmd.String(adminFlag); a != "" {
		addr = a
	}
	return NewControlClient(addr, cfg.Listen.TLSDir)
}

func (c *ControlClient) Info() (*proxy.Info, error) {
	var info proxy.Info
	if err := c.get("/info", &info); err != nil {
		return nil, err
	}
	return &info, nil
}

func (c *ControlClient) Check(ip string) (bool, error) {
	var res proxy.CheckResult
	if err := c.get("/check?ip="+url.QueryEscape(ip), &res); err != nil {
		return false, err
	}
	return res.Blocked, nil
}

func (c *ControlClient) Logs() ([]proxy.LogEntry, error) {
	return c.LogsAfter(0)
}

func (c *ControlClient) LogsAfter(afterID uint64) ([]proxy.LogEntry, error) {
	var entries []proxy.LogEntry
	if err := c.get(fmt.Sprintf("/logs?after=%d", afterID), &entries); err != nil {
		return nil, err
	}
	return entries, nil
}

func (c *ControlClient) Stats() (map[string]proxy.AddrStats, error) {
	var stats map[string]proxy.AddrStats
	if err := c.get("/stats", &stats); err != nil {
		return nil, err
	}
	return stats, nil
}

// Reload asks the service to reload its config and refresh the lists. The
// call waits for the refresh, so it is not bound by the default timeout.
func (c *ControlClient) Reload(ctx context.Context) (*blocklist.RefreshOutcome, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/reload", nil)
	if err != nil {
		return nil, err
	}
	client := *c.http
	client.Timeout = 0
	resp, err := client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("POST /reload: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusInternalServerError {
		var body struct {
			Error   string                   `json:"error"`
			Outcome blocklist.RefreshOutcome `json:"outcome"`
		}
		if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
			return nil, fmt.Errorf("POST /reload: %s", resp.Status)
		}
		return &body.Outcome, fmt.Errorf("reload: %s", body.Error)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("POST /reload: %s", statusText(resp))
	}

	var outcome blocklist.RefreshOutcome
	if err := json.NewDecoder(resp.Body).Decode(&outcome); err != nil {
		return nil, fmt.Errorf("decode reload response: %w", err)
	}
	return &outcome, nil
}

func (c *ControlClient) get(path string, dest any) error {
	resp, err := c.http.Get(c.baseURL + path)
	if err != nil {
		return fmt.Errorf("GET %s: %w", path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("GET %s: %s", path, statusText(resp))
	}
	return json.NewDecoder(resp.Body).Decode(dest)
}

func statusText(resp *http.Response) string {
	body, _ := io.ReadAll(io.LimitReader(resp.Body, 256))
	if msg := strings.TrimSpace(string(body)); msg != "" {
		return resp.Status + ": " + msg
	}
	return resp.Status
}
