package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sync"
	"time"

	"gopkg.in/yaml.v3"
)

// FileName is the config file name inside the git directory
const FileName = "gitgate.yaml"

// Defaults
const (
	DefaultRecheckInterval = 100 * time.Millisecond
	DefaultCommandTimeout  = 5 * time.Minute
	DefaultStashPrefix     = "_tmp_"
	DefaultGitHubHost      = "github.com"
)

// LogConfig controls the rotated log file
type LogConfig struct {
	File       string `yaml:"file,omitempty"`
	MaxSize    int    `yaml:"max_size,omitempty"` // megabytes
	MaxBackups int    `yaml:"max_backups,omitempty"`
	MaxAge     int    `yaml:"max_age,omitempty"` // days
}

// GitHubConfig selects the hosting service used by publish
type GitHubConfig struct {
	Host         string `yaml:"host,omitempty"`
	Organization string `yaml:"organization,omitempty"` // empty publishes under the user
}

// Config models <gitdir>/gitgate.yaml
type Config struct {
	RecheckInterval time.Duration   `yaml:"recheck_interval"`
	CommandTimeout  time.Duration   `yaml:"command_timeout"`
	AutoStash       bool            `yaml:"auto_stash"`
	StashPrefix     string          `yaml:"stash_prefix"`
	Watch           bool            `yaml:"watch"`
	Prompts         map[string]bool `yaml:"prompts,omitempty"`
	Log             LogConfig       `yaml:"log,omitempty"`
	GitHub          GitHubConfig    `yaml:"github,omitempty"`

	path string
	mu   sync.Mutex
}

// Default returns a config with every default applied
func Default() *Config {
	c := &Config{Watch: true}
	c.applyDefaults()
	return c
}

// Path returns the config file path for a git directory
func Path(gitDir string) string {
	return filepath.Join(gitDir, FileName)
}

// Load reads the config of the repository whose control directory is gitDir.
// A missing file yields the defaults.
func Load(gitDir string) (*Config, error) {
	cfg := Default()
	cfg.path = Path(gitDir)

	data, err := os.ReadFile(cfg.path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return cfg, nil
		}
		return nil, fmt.Errorf("failed to read config: %w", err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse %s: %w", cfg.path, err)
	}
	cfg.applyDefaults()
	return cfg, nil
}

func (c *Config) applyDefaults() {
	if c.RecheckInterval <= 0 {
		c.RecheckInterval = DefaultRecheckInterval
	}
	if c.CommandTimeout <= 0 {
		c.CommandTimeout = DefaultCommandTimeout
	}
	if c.StashPrefix == "" {
		c.StashPrefix = DefaultStashPrefix
	}
	if c.GitHub.Host == "" {
		c.GitHub.Host = DefaultGitHubHost
	}
	if c.Prompts == nil {
		c.Prompts = make(map[string]bool)
	}
}

// File returns the path the config was loaded from, empty for Default()
func (c *Config) File() string {
	return c.path
}

// Save writes the config back to the file it was loaded from
func (c *Config) Save() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.saveLocked()
}

func (c *Config) saveLocked() error {
	if c.path == "" {
		return fmt.Errorf("config has no file to save to")
	}

	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(c.path), 0755); err != nil {
		return err
	}
	return os.WriteFile(c.path, data, 0600)
}

// Remembered returns a stored "don't ask again" answer
func (c *Config) Remembered(id string) (bool, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	value, ok := c.Prompts[id]
	return value, ok
}

// Remember stores an answer and persists the file when there is one
func (c *Config) Remember(id string, value bool) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.Prompts == nil {
		c.Prompts = make(map[string]bool)
	}
	c.Prompts[id] = value
	if c.path == "" {
		return nil
	}
	return c.saveLocked()
}

// Forget clears remembered answers. With no ids every answer is cleared.
func (c *Config) Forget(ids ...string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if len(ids) == 0 {
		c.Prompts = make(map[string]bool)
	}
	for _, id := range ids {
		delete(c.Prompts, id)
	}
	if c.path == "" {
		return nil
	}
	return c.saveLocked()
}
