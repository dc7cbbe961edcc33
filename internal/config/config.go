// Package config handles loading and validating the tool configuration.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"
)

// ErrConflictingModes is returned when more than one run-mode flag is set.
var ErrConflictingModes = errors.New("config: conflicting run modes")

// Duration wraps time.Duration to accept "3s"/"10m" strings in YAML.
// Bare integers are taken as seconds.
type Duration time.Duration

func (d *Duration) UnmarshalYAML(value *yaml.Node) error {
	var s string
	if err := value.Decode(&s); err == nil {
		parsed, err := time.ParseDuration(s)
		if err != nil {
			return fmt.Errorf("config: bad duration %q: %w", s, err)
		}
		*d = Duration(parsed)
		return nil
	}
	var n int64
	if err := value.Decode(&n); err != nil {
		return fmt.Errorf("config: bad duration: %w", err)
	}
	*d = Duration(time.Duration(n) * time.Second)
	return nil
}

// Std returns the wrapped time.Duration.
func (d Duration) Std() time.Duration { return time.Duration(d) }

// Retry is the collaborator call policy.
type Retry struct {
	Attempts     int      `yaml:"attempts"`
	InitialDelay Duration `yaml:"initial_delay"`
	Timeout      Duration `yaml:"timeout"`
}

// Repository configures the repository validator.
type Repository struct {
	Token          string `yaml:"token"`
	CacheDir       string `yaml:"cache_dir"`
	ReferenceModel string `yaml:"reference_model"`
}

// Config is the full tool configuration.
type Config struct {
	Model       string     `yaml:"model"`
	Temperature float64    `yaml:"temperature"`
	MaxTokens   int        `yaml:"max_tokens"`
	Retry       Retry      `yaml:"retry"`
	Parallel    int        `yaml:"parallel"`
	ReportsDir  string     `yaml:"reports_dir"`
	StateDir    string     `yaml:"state_dir"`
	Repository  Repository `yaml:"repository"`
}

// Default returns the built-in configuration.
func Default() *Config {
	return &Config{
		Retry: Retry{
			Attempts:     5,
			InitialDelay: Duration(3 * time.Second),
			Timeout:      Duration(10 * time.Minute),
		},
		Parallel:   1,
		ReportsDir: "reports",
		StateDir:   filepath.Join(".cotcritic", "state"),
		Repository: Repository{
			CacheDir: filepath.Join(".cotcritic", "repos"),
		},
	}
}

// Load reads a YAML configuration file and merges it over the defaults.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("config.Load: %w", err)
	}
	cfg := Default()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("config.Load: parse %s: %w", path, err)
	}
	applyEnv(cfg)
	return cfg, nil
}

// LoadDefault searches standard locations and loads the first config found.
// Search order: ./cotcritic.yaml, ~/.cotcritic/config.yaml. A missing file
// is not an error; the defaults are returned.
func LoadDefault() (*Config, error) {
	candidates := []string{"cotcritic.yaml"}
	home, err := os.UserHomeDir()
	if err == nil {
		candidates = append(candidates, filepath.Join(home, ".cotcritic", "config.yaml"))
	}
	for _, path := range candidates {
		if _, err := os.Stat(path); err == nil {
			return Load(path)
		}
	}
	cfg := Default()
	applyEnv(cfg)
	return cfg, nil
}

func applyEnv(cfg *Config) {
	if v := os.Getenv("COTCRITIC_MODEL"); v != "" {
		cfg.Model = v
	}
	if v := os.Getenv("COTCRITIC_REPORTS_DIR"); v != "" {
		cfg.ReportsDir = v
	}
	if cfg.Repository.Token == "" {
		cfg.Repository.Token = os.Getenv("GITHUB_TOKEN")
	}
}

// Validate checks the configuration for semantic errors.
func (c *Config) Validate() error {
	if c.Retry.Attempts < 1 {
		return fmt.Errorf("config: retry.attempts must be >= 1, got %d", c.Retry.Attempts)
	}
	if c.Retry.InitialDelay.Std() <= 0 {
		return fmt.Errorf("config: retry.initial_delay must be positive")
	}
	if c.Retry.Timeout.Std() <= 0 {
		return fmt.Errorf("config: retry.timeout must be positive")
	}
	if c.Parallel < 1 {
		return fmt.Errorf("config: parallel must be >= 1, got %d", c.Parallel)
	}
	if c.Temperature < 0 || c.Temperature > 2 {
		return fmt.Errorf("config: temperature must be in [0, 2], got %g", c.Temperature)
	}
	if c.ReportsDir == "" {
		return fmt.Errorf("config: reports_dir must not be empty")
	}
	if c.StateDir == "" {
		return fmt.Errorf("config: state_dir must not be empty")
	}
	return nil
}
