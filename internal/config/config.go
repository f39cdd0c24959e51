// Package config loads and validates the sampler's YAML configuration.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

// Config holds all sampler configuration.
type Config struct {
	// Output locations
	Output OutputConfig `yaml:"output"`

	// External sampling engine
	Engine EngineConfig `yaml:"engine"`

	// Standard (fixed live count) sampling settings
	Sampling SamplingConfig `yaml:"sampling"`

	// Dynamic allocation settings
	Dynamic DynamicConfig `yaml:"dynamic"`

	// Run registry
	Store StoreConfig `yaml:"store"`

	// Logging
	Logging LoggingConfig `yaml:"logging"`
}

// OutputConfig sets where run files are written.
type OutputConfig struct {
	BaseDir  string `yaml:"base_dir"`
	FileRoot string `yaml:"file_root"` // empty: derived via SettingsRoot
}

// EngineConfig configures the compiled sampling engine.
type EngineConfig struct {
	ExecPath   string   `yaml:"exec_path"`
	Prior      PriorCfg `yaml:"prior"`
	DerivedStr string   `yaml:"derived_str"`
	Timeout    string   `yaml:"timeout"`
}

// PriorCfg names the engine-side prior and its parameters.
type PriorCfg struct {
	Name   string    `yaml:"name"`
	Params []float64 `yaml:"params"`
	NParam int       `yaml:"nparam"`
}

// SamplingConfig holds the engine settings shared by every invocation.
type SamplingConfig struct {
	NLive    int   `yaml:"nlive"`
	NRepeats int   `yaml:"nrepeats"`
	MaxNDead int   `yaml:"max_ndead"`
	Seed     int64 `yaml:"seed"`
}

// DynamicConfig holds the dynamic allocation settings.
type DynamicConfig struct {
	Goal              float64 `yaml:"goal"`
	NInit             int     `yaml:"ninit"`
	InitStep          int     `yaml:"init_step"`
	Stride            int     `yaml:"stride"`
	MaxInitIterations int     `yaml:"max_init_iterations"`
	Repeats           int     `yaml:"repeats"`
	Parallel          int     `yaml:"parallel"`
}

// StoreConfig configures the SQLite run registry.
type StoreConfig struct {
	DatabasePath string `yaml:"database_path"`
}

// LoggingConfig configures logging.
type LoggingConfig struct {
	Level  string `yaml:"level"`  // debug, info, warn, error
	Format string `yaml:"format"` // json, text
	File   string `yaml:"file"`
}

// DefaultConfig returns the default configuration.
func DefaultConfig() *Config {
	return &Config{
		Output: OutputConfig{
			BaseDir: "chains",
		},
		Engine: EngineConfig{
			Prior: PriorCfg{
				Name:   "uniform",
				Params: []float64{-10, 10},
				NParam: 2,
			},
			Timeout: "1h",
		},
		Sampling: SamplingConfig{
			NLive:    500,
			NRepeats: 10,
			MaxNDead: 0,
			Seed:     -1,
		},
		Dynamic: DynamicConfig{
			Goal:              1,
			NInit:             100,
			InitStep:          100,
			Stride:            5,
			MaxInitIterations: 1000,
			Repeats:           1,
			Parallel:          1,
		},
		Store: StoreConfig{
			DatabasePath: "data/runs.db",
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "text",
		},
	}
}

// Load loads configuration from a YAML file.
func Load(path string) (*Config, error) {
	cfg := DefaultConfig()

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			// Missing file means defaults, but env overrides still apply
			cfg.applyEnvOverrides()
			return cfg, nil
		}
		return nil, fmt.Errorf("failed to read config: %w", err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}

	cfg.applyEnvOverrides()

	return cfg, nil
}

// Save saves configuration to a YAML file.
func (c *Config) Save(path string) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("failed to write config: %w", err)
	}

	return nil
}

// applyEnvOverrides applies environment variable overrides.
func (c *Config) applyEnvOverrides() {
	if p := os.Getenv("DYPOLYCHORD_EXEC"); p != "" {
		c.Engine.ExecPath = p
	}
	if d := os.Getenv("DYPOLYCHORD_BASE_DIR"); d != "" {
		c.Output.BaseDir = d
	}
	if p := os.Getenv("DYPOLYCHORD_DB"); p != "" {
		c.Store.DatabasePath = p
	}
}

// GetEngineTimeout returns the engine timeout as a duration.
func (c *Config) GetEngineTimeout() time.Duration {
	d, err := time.ParseDuration(c.Engine.Timeout)
	if err != nil {
		return time.Hour
	}
	return d
}

// Validate validates the configuration.
func (c *Config) Validate() error {
	if c.Output.BaseDir == "" {
		return fmt.Errorf("output.base_dir not configured")
	}
	if c.Sampling.NLive <= 0 {
		return fmt.Errorf("sampling.nlive must be positive, got %d", c.Sampling.NLive)
	}
	d := c.Dynamic
	if d.Goal < 0 || d.Goal > 1 {
		return fmt.Errorf("dynamic.goal must be in [0, 1], got %v", d.Goal)
	}
	if d.NInit <= 0 || d.Stride <= 0 {
		return fmt.Errorf("dynamic.ninit and dynamic.stride must be positive, got %d and %d",
			d.NInit, d.Stride)
	}
	if d.Goal != 0 && d.InitStep <= 0 {
		return fmt.Errorf("dynamic.init_step must be positive when resuming, got %d", d.InitStep)
	}
	if d.Repeats < 0 || d.Parallel < 0 {
		return fmt.Errorf("dynamic.repeats and dynamic.parallel must not be negative")
	}
	return nil
}

// SettingsRoot derives a file root that encodes the run's settings, so
// output files from different configurations never collide. The dynamic
// fields are only included when the run is dynamic.
func (c *Config) SettingsRoot(likelihoodName string, ndims int, dynamic bool) string {
	root := likelihoodName + "_" + c.Engine.Prior.Name
	if dynamic {
		root += "_dg" + trimFloat(c.Dynamic.Goal)
		root += "_" + strconv.Itoa(c.Dynamic.NInit) + "init"
		if c.Dynamic.Goal != 0 {
			root += "_" + strconv.Itoa(c.Dynamic.InitStep) + "is"
		}
	}
	root += "_" + strconv.Itoa(ndims) + "d"
	root += "_" + strconv.Itoa(c.Sampling.NLive) + "nlive"
	root += "_" + strconv.Itoa(c.Sampling.NRepeats) + "nrepeats"
	return root
}

func trimFloat(v float64) string {
	return strconv.FormatFloat(v, 'g', -1, 64)
}
