package config

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"reflect"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/sirupsen/logrus"

	"github.com/dyike/ArenaGo/internal/logging"
)

const configFileName = "config.json"

// Manager owns the arena's JSON config file. The file holds what an
// operator edits; ARENA_* variables are overlaid in memory and never
// written back, so secrets passed through the environment stay out of it.
//
// Components read Get per use, so a change picked up by Watch reaches the
// next tick without a restart.
type Manager struct {
	path     string
	debounce time.Duration
	log      *logrus.Entry

	mu       sync.RWMutex
	cfg      Config
	onChange func(Config)
	watching bool
}

type ManagerOption func(*Manager)

func WithConfigPath(path string) ManagerOption {
	return func(m *Manager) {
		if path != "" {
			m.path = path
		}
	}
}

func WithConfigDir(dir string) ManagerOption {
	return func(m *Manager) {
		if dir != "" {
			m.path = filepath.Join(dir, configFileName)
		}
	}
}

// WithDebounce sets how long Watch waits after the last file event before
// re-reading. Editors often write a file in several steps.
func WithDebounce(d time.Duration) ManagerOption {
	return func(m *Manager) {
		if d > 0 {
			m.debounce = d
		}
	}
}

// NewManager loads the config file, writing the defaults on first run.
func NewManager(opts ...ManagerOption) (*Manager, error) {
	m := &Manager{debounce: 300 * time.Millisecond, log: logging.For("config")}
	for _, opt := range opts {
		opt(m)
	}
	if m.path == "" {
		p, err := defaultConfigPath()
		if err != nil {
			return nil, err
		}
		m.path = p
	}

	cfg, err := loadConfigFromFile(m.path)
	if errors.Is(err, os.ErrNotExist) {
		cfg = *DefaultConfigWithRoot(filepath.Dir(m.path))
		if err := writeConfigFile(m.path, cfg); err != nil {
			return nil, fmt.Errorf("write initial config: %w", err)
		}
		m.log.WithField("path", m.path).Info("created default config")
	} else if err != nil {
		return nil, err
	}

	if err := loadDotEnv(); err != nil {
		m.log.WithError(err).Warn("ignoring unreadable .env")
	}
	cfg.loadFromEnv()
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config %s: %w", m.path, err)
	}
	m.cfg = cfg
	return m, nil
}

func (m *Manager) Get() Config {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.cfg
}

func (m *Manager) Path() string { return m.path }

// Update validates cfg, persists it and applies it with the environment
// overlay.
func (m *Manager) Update(cfg Config) error {
	if err := cfg.Validate(); err != nil {
		return err
	}
	if err := writeConfigFile(m.path, cfg); err != nil {
		return err
	}
	cfg.loadFromEnv()
	m.apply(cfg)
	return nil
}

// Watch re-reads the file whenever it changes and calls onChange with every
// accepted version. Invalid edits are logged and ignored. A second call only
// replaces the callback.
func (m *Manager) Watch(ctx context.Context, onChange func(Config)) error {
	m.mu.Lock()
	m.onChange = onChange
	started := m.watching
	m.watching = true
	m.mu.Unlock()
	if started {
		return nil
	}

	w, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("config watcher: %w", err)
	}
	// editors replace the file by rename, so the directory is watched
	if err := w.Add(filepath.Dir(m.path)); err != nil {
		_ = w.Close()
		return fmt.Errorf("watch %s: %w", filepath.Dir(m.path), err)
	}
	go m.watch(ctx, w)
	return nil
}

func (m *Manager) watch(ctx context.Context, w *fsnotify.Watcher) {
	defer w.Close()

	pending := time.NewTimer(m.debounce)
	pending.Stop()
	defer pending.Stop()

	target := filepath.Clean(m.path)
	for {
		select {
		case <-ctx.Done():
			return
		case evt, ok := <-w.Events:
			if !ok {
				return
			}
			if filepath.Clean(evt.Name) != target || evt.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename) == 0 {
				continue
			}
			pending.Reset(m.debounce)
		case err, ok := <-w.Errors:
			if !ok {
				return
			}
			m.log.WithError(err).Warn("config watcher error")
		case <-pending.C:
			m.reload()
		}
	}
}

func (m *Manager) reload() {
	cfg, err := loadConfigFromFile(m.path)
	if err != nil {
		m.log.WithError(err).Warn("config reload failed, keeping previous config")
		return
	}
	cfg.loadFromEnv()
	if err := cfg.Validate(); err != nil {
		m.log.WithError(err).Warn("config change rejected, keeping previous config")
		return
	}
	if m.apply(cfg) {
		m.log.WithField("path", m.path).Info("config reloaded")
	}
}

// apply swaps in cfg and notifies the watcher callback. It reports false
// when nothing changed.
func (m *Manager) apply(cfg Config) bool {
	m.mu.Lock()
	if reflect.DeepEqual(m.cfg, cfg) {
		m.mu.Unlock()
		return false
	}
	m.cfg = cfg
	cb := m.onChange
	m.mu.Unlock()

	if cb != nil {
		cb(cfg)
	}
	return true
}

func defaultConfigPath() (string, error) {
	dir, err := os.UserConfigDir()
	if err != nil {
		if dir, err = os.Getwd(); err != nil {
			return "", err
		}
	}
	return filepath.Join(dir, "ArenaGo", configFileName), nil
}

// loadConfigFromFile starts from the built-in defaults so that keys missing
// from an older file keep their default values.
func loadConfigFromFile(path string) (Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Config{}, err
	}
	cfg := *DefaultConfigWithRoot(filepath.Dir(path))
	if err := json.Unmarshal(data, &cfg); err != nil {
		return Config{}, fmt.Errorf("parse %s: %w", path, err)
	}
	return cfg, nil
}

// writeConfigFile replaces path atomically. The file may hold API keys and
// is written owner-only.
func writeConfigFile(path string, cfg Config) error {
	data, err := json.MarshalIndent(cfg, "", "  ")
	if err != nil {
		return fmt.Errorf("encode config: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("create config dir: %w", err)
	}
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, append(data, '\n'), 0o600); err != nil {
		return fmt.Errorf("write config: %w", err)
	}
	if err := os.Rename(tmp, path); err != nil {
		_ = os.Remove(tmp)
		return fmt.Errorf("replace config: %w", err)
	}
	return nil
}
