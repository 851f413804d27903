package config

import (
	"sync/atomic"

	"github.com/charmbracelet/log"
)

// Manager owns the active configuration. Get is lock-free so the connection
// path can read settings like the kick message on every accept.
type Manager struct {
	path    string
	log     *log.Logger
	current atomic.Pointer[Config]
}

func NewManager(path string, logger *log.Logger) *Manager {
	if logger == nil {
		logger = log.Default()
	}
	m := &Manager{path: path, log: logger}
	m.current.Store(Default())
	return m
}

func (m *Manager) Path() string { return m.path }

func (m *Manager) Get() *Config { return m.current.Load() }

// Load reads the file, extracting the bundled default first if it does not
// exist. On any error the built-in defaults are activated and the error is
// returned for the caller to report.
func (m *Manager) Load() error {
	if written, err := EnsureDefault(m.path); err != nil {
		m.log.Warn("Could not extract default config", "path", m.path, "error", err)
	} else if written {
		m.log.Info("Wrote default config", "path", m.path)
	}

	cfg, err := Load(m.path)
	if err != nil {
		m.log.Error("Failed to load config, using built-in defaults", "path", m.path, "error", err)
		m.current.Store(Default())
		return err
	}
	m.current.Store(cfg)
	return nil
}
