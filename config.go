package svcinit

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// ChainLoad defers loading a directory until a capability comes online,
// e.g. the services of a filesystem that must be mounted first.
type ChainLoad struct {
	// Provides is the service name or capability tag to wait for
	Provides string `yaml:"provides"`
	// Dir is the descriptor directory loaded and started afterwards
	Dir string `yaml:"dir"`
}

// Config is the supervisor configuration.
type Config struct {
	// Dirs are the boot descriptor directories, loaded as one batch
	Dirs []string `yaml:"dirs"`
	// Chain lists directories loaded once a capability is online
	Chain []ChainLoad `yaml:"chain,omitempty"`
	// StateFile, when set, receives a snapshot after every state change
	StateFile string `yaml:"state_file,omitempty"`
	// Concurrency bounds parallel starts within one dependency group
	Concurrency int `yaml:"concurrency"`
	// StartTimeout is the default deadline of a start attempt
	StartTimeout time.Duration `yaml:"start_timeout"`
	// Watch keeps loading descriptors added to Dirs after boot
	Watch bool `yaml:"watch"`
	// LogLevel is one of debug, info, warn, error
	LogLevel string `yaml:"log_level"`
	// Env is exported into the supervisor's environment before loading
	Env map[string]string `yaml:"env,omitempty"`
}

// DefaultConfig returns the configuration used when no file exists.
func DefaultConfig() *Config {
	return &Config{
		Dirs:         []string{DefaultServiceDir},
		Concurrency:  DefaultConcurrency,
		StartTimeout: DefaultStartTimeout,
		LogLevel:     DefaultLogLevel,
	}
}

// LoadConfig reads the configuration at path on top of DefaultConfig. An
// empty path or a missing file yields the defaults.
func LoadConfig(path string) (*Config, error) {
	cfg := DefaultConfig()
	if path == "" {
		return cfg, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return cfg, nil
		}
		return nil, &ConfigError{Path: path, Err: err}
	}

	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil && !errors.Is(err, io.EOF) {
		return nil, &ConfigError{Path: path, Err: err}
	}

	if err := cfg.Validate(); err != nil {
		return nil, &ConfigError{Path: path, Err: err}
	}
	return cfg, nil
}

// Validate checks the configuration for values the supervisor cannot use.
func (c *Config) Validate() error {
	if c.Concurrency < 1 {
		return fmt.Errorf("concurrency must be at least 1, got %d", c.Concurrency)
	}
	if c.StartTimeout < 0 {
		return fmt.Errorf("start_timeout must not be negative, got %s", c.StartTimeout)
	}
	for i, ch := range c.Chain {
		if ch.Provides == "" || ch.Dir == "" {
			return fmt.Errorf("chain[%d]: provides and dir are required", i)
		}
	}
	if _, err := c.Level(); err != nil {
		return err
	}
	return nil
}

// Level returns LogLevel as a slog.Level.
func (c *Config) Level() (slog.Level, error) {
	var level slog.Level
	if c.LogLevel == "" {
		return slog.LevelInfo, nil
	}
	if err := level.UnmarshalText([]byte(strings.ToLower(c.LogLevel))); err != nil {
		return slog.LevelInfo, fmt.Errorf("log_level: %w", err)
	}
	return level, nil
}

// ParseChain parses a "provides=dir" flag value.
func ParseChain(s string) (ChainLoad, error) {
	provides, dir, ok := strings.Cut(s, "=")
	if !ok || provides == "" || dir == "" {
		return ChainLoad{}, fmt.Errorf("chain %q: want provides=dir", s)
	}
	return ChainLoad{Provides: provides, Dir: dir}, nil
}
