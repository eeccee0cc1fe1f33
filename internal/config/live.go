package config

import (
	"fmt"
	"sync"
)

// Live holds the active configuration and swaps it on reload. Readers get a
// snapshot; a snapshot is never mutated after it is published.
type Live struct {
	mu   sync.RWMutex
	cfg  *Config
	path string
}

// NewLive wraps an already loaded configuration.
func NewLive(cfg *Config, path string) *Live {
	return &Live{cfg: cfg, path: path}
}

// Current returns the most recently loaded configuration.
func (l *Live) Current() *Config {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.cfg
}

// Path returns the file the configuration was loaded from.
func (l *Live) Path() string {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.path
}

// Reload re-reads the configuration file. A file that fails to parse or
// validate leaves the current configuration in place.
func (l *Live) Reload() (*Config, error) {
	l.mu.RLock()
	path := l.path
	l.mu.RUnlock()

	next, _, _, err := Load(path)
	if err != nil {
		return nil, fmt.Errorf("reload config: %w", err)
	}

	l.mu.Lock()
	l.cfg = next
	l.mu.Unlock()
	return next, nil
}
