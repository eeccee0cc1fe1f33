package main

import (
	"strings"
	"sync"

	"github.com/spf13/cobra"

	"timelapse/internal/config"
)

// loadedConfig is the result of resolving --config once per invocation.
type loadedConfig struct {
	cfg *config.Config
	// path is empty when no file existed and defaults were used; the daemon
	// then has nothing to re-read on SIGHUP.
	path string
}

type commandContext struct {
	configFlag *string
	load       func() (loadedConfig, error)
}

func newCommandContext(configFlag *string) *commandContext {
	c := &commandContext{configFlag: configFlag}
	c.load = sync.OnceValues(func() (loadedConfig, error) {
		cfg, path, exists, err := config.Load(c.flagPath())
		if err != nil {
			return loadedConfig{}, err
		}
		if !exists {
			path = ""
		}
		return loadedConfig{cfg: cfg, path: path}, nil
	})
	return c
}

func (c *commandContext) flagPath() string {
	if c.configFlag == nil {
		return ""
	}
	return strings.TrimSpace(*c.configFlag)
}

func (c *commandContext) ensureConfig() (*config.Config, error) {
	loaded, err := c.load()
	return loaded.cfg, err
}

// configValue is for commands that run after PersistentPreRunE has loaded
// the configuration successfully.
func (c *commandContext) configValue() *config.Config {
	loaded, _ := c.load()
	return loaded.cfg
}

func (c *commandContext) configPath() string {
	loaded, _ := c.load()
	return loaded.path
}

func shouldSkipConfig(cmd *cobra.Command) bool {
	for c := cmd; c != nil; c = c.Parent() {
		if c.Annotations["skipConfigLoad"] == "true" {
			return true
		}
	}
	return false
}
