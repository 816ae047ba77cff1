// ABOUTME: Configuration loading and parsing for the onloc agent
// ABOUTME: Supports YAML files with environment variable expansion and duration parsing

package config

import (
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"time"

	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"
)

// Config represents the complete agent configuration
type Config struct {
	Server      ServerConfig      `yaml:"server"`
	Control     ControlConfig     `yaml:"control"`
	Storage     StorageConfig     `yaml:"storage"`
	Provider    ProviderConfig    `yaml:"provider"`
	Permissions PermissionsConfig `yaml:"permissions"`
	Logging     LoggingConfig     `yaml:"logging"`
}

// ServerConfig holds the default tracking server address. The address the
// agent actually posts to lives in the settings store (it is user-settable at
// runtime via login); this value only seeds a fresh install.
type ServerConfig struct {
	Endpoint string `yaml:"endpoint" validate:"omitempty,url"`
}

// ControlConfig holds the local control API listener address
type ControlConfig struct {
	Addr string `yaml:"addr" validate:"required,hostname_port"`
}

// StorageConfig holds the data directory for the settings store and vault
type StorageConfig struct {
	Dir string `yaml:"dir" validate:"required"`
}

// ProviderConfig selects and configures the location source
type ProviderConfig struct {
	Source   string `yaml:"source" validate:"required,oneof=gpsd replay"`
	GpsdAddr string `yaml:"gpsd_addr" validate:"required_if=Source gpsd,omitempty,hostname_port"`

	// Replay source settings
	RouteFile string        `yaml:"route_file" validate:"required_if=Source replay"`
	Interval  time.Duration `yaml:"-"`

	// Raw string value for YAML unmarshaling
	IntervalRaw string `yaml:"interval"`
}

// PermissionsConfig holds the location of the externally editable grants file
type PermissionsConfig struct {
	GrantsFile string `yaml:"grants_file" validate:"required"`
}

// LoggingConfig holds logging configuration
type LoggingConfig struct {
	Level  string `yaml:"level" validate:"omitempty,oneof=debug info warn error"`
	Format string `yaml:"format" validate:"omitempty,oneof=text json"`
}

// Load reads a configuration file from the given path and returns a parsed Config.
// Environment variables in the format ${VAR_NAME} are expanded.
// Duration strings are parsed into time.Duration values.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	// Expand environment variables in the raw YAML content
	expandedData := expandEnvVars(string(data))

	var cfg Config
	if err := yaml.Unmarshal([]byte(expandedData), &cfg); err != nil {
		return nil, fmt.Errorf("parsing config file: %w", err)
	}

	cfg.applyDefaults()

	if err := parseDurations(&cfg); err != nil {
		return nil, fmt.Errorf("parsing durations: %w", err)
	}

	if err := validator.New().Struct(&cfg); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}

	return &cfg, nil
}

// DefaultPath returns the path to the agent config file.
// Priority: ONLOC_CONFIG env var > XDG_CONFIG_HOME/onloc/agent.yaml > ~/.config/onloc/agent.yaml
func DefaultPath() string {
	if envPath := os.Getenv("ONLOC_CONFIG"); envPath != "" {
		return envPath
	}

	configDir := os.Getenv("XDG_CONFIG_HOME")
	if configDir == "" {
		homeDir, err := os.UserHomeDir()
		if err != nil {
			return "agent.yaml" // fallback
		}
		configDir = filepath.Join(homeDir, ".config")
	}

	return filepath.Join(configDir, "onloc", "agent.yaml")
}

func (c *Config) applyDefaults() {
	if c.Control.Addr == "" {
		c.Control.Addr = "127.0.0.1:8847"
	}
	if c.Storage.Dir == "" {
		if dataDir := os.Getenv("XDG_DATA_HOME"); dataDir != "" {
			c.Storage.Dir = filepath.Join(dataDir, "onloc")
		} else if homeDir, err := os.UserHomeDir(); err == nil {
			c.Storage.Dir = filepath.Join(homeDir, ".local", "share", "onloc")
		}
	}
	if c.Provider.Source == "" {
		c.Provider.Source = "gpsd"
	}
	if c.Provider.Source == "gpsd" && c.Provider.GpsdAddr == "" {
		c.Provider.GpsdAddr = "127.0.0.1:2947"
	}
	if c.Permissions.GrantsFile == "" && c.Storage.Dir != "" {
		c.Permissions.GrantsFile = filepath.Join(c.Storage.Dir, "grants.json")
	}
	if c.Logging.Level == "" {
		c.Logging.Level = "info"
	}
	if c.Logging.Format == "" {
		c.Logging.Format = "text"
	}
}

// expandEnvVars replaces ${VAR_NAME} patterns with the corresponding environment variable values.
// If the environment variable is not set, it is replaced with an empty string.
func expandEnvVars(s string) string {
	// Match ${VAR_NAME} pattern
	re := regexp.MustCompile(`\$\{([^}]+)\}`)

	return re.ReplaceAllStringFunc(s, func(match string) string {
		// Extract variable name from ${VAR_NAME}
		varName := re.FindStringSubmatch(match)[1]
		return os.Getenv(varName)
	})
}

// parseDurations converts the raw duration strings into time.Duration values
func parseDurations(cfg *Config) error {
	var err error

	if cfg.Provider.IntervalRaw != "" {
		cfg.Provider.Interval, err = time.ParseDuration(cfg.Provider.IntervalRaw)
		if err != nil {
			return fmt.Errorf("parsing provider interval %q: %w", cfg.Provider.IntervalRaw, err)
		}
	}
	if cfg.Provider.Interval == 0 {
		cfg.Provider.Interval = 5 * time.Second
	}

	return nil
}
