// Package config loads the YAML-driven defaults for dispatchers and scopes,
// grounded on internal/cli.Config: the same "one struct, yaml tags, sane
// zero-value defaults applied after load" shape, generalized from a job
// queue's worker/WAL/snapshot/metrics sections to a coroutine runtime's
// dispatcher/metrics sections.
package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the complete on-disk configuration for a gocoro runtime binary.
type Config struct {
	Dispatcher struct {
		PooledWorkers int `yaml:"pooled_workers"`
		PooledQueue   int `yaml:"pooled_queue"`
		IOQueue       int `yaml:"io_queue"`
		SingleThreadQ int `yaml:"single_thread_queue"`
	} `yaml:"dispatcher"`

	Scope struct {
		JoinTimeout time.Duration `yaml:"join_timeout"`
	} `yaml:"scope"`

	Metrics struct {
		Enabled bool `yaml:"enabled"`
		Port    int  `yaml:"port"`
	} `yaml:"metrics"`
}

// Defaults returns the configuration used when no file is given.
func Defaults() Config {
	var c Config
	c.Dispatcher.PooledWorkers = 8
	c.Dispatcher.PooledQueue = 256
	c.Dispatcher.IOQueue = 1024
	c.Dispatcher.SingleThreadQ = 64
	c.Scope.JoinTimeout = 30 * time.Second
	c.Metrics.Enabled = true
	c.Metrics.Port = 9090
	return c
}

// Load reads and parses a YAML config file at path, filling any field the
// file omits with Defaults's value.
func Load(path string) (Config, error) {
	c := Defaults()
	raw, err := os.ReadFile(path)
	if err != nil {
		return Config{}, fmt.Errorf("config: read %s: %w", path, err)
	}
	if err := yaml.Unmarshal(raw, &c); err != nil {
		return Config{}, fmt.Errorf("config: parse %s: %w", path, err)
	}
	return c, nil
}
