package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/adrg/xdg"
	"github.com/bernd/novpn/blocklist"
	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"
)

const (
	AppDirName     = "novpn"
	ConfigFileName = "config.toml"

	AdminPermission  = "novpn.admin"
	BypassPermission = "novpn.bypass"

	DefaultKickMessage = "<red>You are not allowed to connect using a VPN or proxy."
	DefaultAdminAddr   = "127.0.0.1:7780"
	DefaultDNSZone     = "dnsbl.novpn.local."
)

type Config struct {
	KickMessage            string              `koanf:"kick-message"`
	BypassPermission       string              `koanf:"bypass-permission"`
	LogBlocked             bool                `koanf:"log-blocked"`
	RefreshIntervalMinutes int                 `koanf:"refresh-interval-minutes"`
	ConnectTimeoutSeconds  int                 `koanf:"connect-timeout-seconds"`
	Lists                  []string            `koanf:"lists"`
	Presets                []string            `koanf:"presets"`
	RetainOnFailure        bool                `koanf:"retain-on-failure"`
	Grants                 map[string][]string `koanf:"grants"`
	Listen                 ListenConfig        `koanf:"listen"`
}

// ListenConfig holds the service addresses. An empty address disables the
// corresponding listener.
type ListenConfig struct {
	TCP      string `koanf:"tcp"`
	Upstream string `koanf:"upstream"`
	HTTP     string `koanf:"http"`
	DNS      string `koanf:"dns"`
	DNSZone  string `koanf:"dns-zone"`
	Admin    string `koanf:"admin"`
	TLSDir   string `koanf:"tls-dir"`
}

// Default returns the built-in configuration used for keys missing from the
// file and as a fallback when the file cannot be parsed.
func Default() *Config {
	return &Config{
		KickMessage:            DefaultKickMessage,
		BypassPermission:       BypassPermission,
		LogBlocked:             true,
		RefreshIntervalMinutes: 60,
		ConnectTimeoutSeconds:  10,
		Lists:                  []string{},
		Grants: map[string][]string{
			AdminPermission: {"127.0.0.1", "::1"},
		},
		Listen: ListenConfig{
			DNSZone: DefaultDNSZone,
			Admin:   DefaultAdminAddr,
		},
	}
}

// Load reads a TOML or YAML file, chosen by extension, over the defaults.
func Load(path string) (*Config, error) {
	cfg := Default()

	// Grant names contain dots, so keys are split on "::" instead.
	k := koanf.New("::")
	if err := k.Load(file.Provider(path), parserFor(path)); err != nil {
		return nil, fmt.Errorf("load %s: %w", path, err)
	}
	if err := k.Unmarshal("", cfg); err != nil {
		return nil, fmt.Errorf("decode %s: %w", path, err)
	}
	cfg.normalize()
	return cfg, nil
}

func parserFor(path string) koanf.Parser {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		return yaml.Parser()
	default:
		return TOMLParser()
	}
}

func (c *Config) normalize() {
	if c.ConnectTimeoutSeconds <= 0 {
		c.ConnectTimeoutSeconds = 10
	}
	if c.Listen.DNSZone == "" {
		c.Listen.DNSZone = DefaultDNSZone
	}
	if !strings.HasSuffix(c.Listen.DNSZone, ".") {
		c.Listen.DNSZone += "."
	}
}

// SourceList converts the feed settings for the block-list cache. Preset
// feeds come first, followed by explicit lists; duplicates are removed.
func (c *Config) SourceList() blocklist.SourceList {
	presets := blocklist.NewPresetRegistry().Expand(c.Presets)
	return blocklist.SourceList{
		URLs:     dedup(presets, c.Lists),
		Timeout:  time.Duration(c.ConnectTimeoutSeconds) * time.Second,
		Interval: time.Duration(c.RefreshIntervalMinutes) * time.Minute,
	}
}

// dedup merges multiple string slices, removing duplicates while preserving order.
func dedup(slices ...[]string) []string {
	seen := make(map[string]bool)
	result := []string{}
	for _, s := range slices {
		for _, e := range s {
			e = strings.TrimSpace(e)
			if e == "" || seen[e] {
				continue
			}
			seen[e] = true
			result = append(result, e)
		}
	}
	return result
}

// DefaultPath returns $XDG_CONFIG_HOME/novpn/config.toml.
func DefaultPath() string {
	return filepath.Join(xdg.ConfigHome, AppDirName, ConfigFileName)
}

// DefaultTLSDir returns the directory admin mTLS credentials are written to
// when none is configured.
func DefaultTLSDir() string {
	return filepath.Join(xdg.DataHome, AppDirName, "tls")
}

// EnsureDefault writes the bundled, documented config to path if nothing
// exists there yet. It reports whether a file was written.
func EnsureDefault(path string) (bool, error) {
	if _, err := os.Stat(path); err == nil {
		return false, nil
	} else if !os.IsNotExist(err) {
		return false, err
	}

	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return false, fmt.Errorf("create config dir: %w", err)
	}
	if err := os.WriteFile(path, defaultTOML, 0o644); err != nil {
		return false, fmt.Errorf("write default config: %w", err)
	}
	return true, nil
}
