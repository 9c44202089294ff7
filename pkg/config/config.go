package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"reflect"
	"strings"
	"time"

	"github.com/Ravioli45/CNT3004-file-sharing/pkg/adapter/fileshare"
	"github.com/Ravioli45/CNT3004-file-sharing/pkg/gc"
	"github.com/go-viper/mapstructure/v2"
	"github.com/spf13/viper"
)

// EnvPrefix is the prefix of environment variable overrides.
const EnvPrefix = "FILESHARE"

// Config represents the complete fileshare server configuration.
//
// This structure captures all configurable aspects of the server:
//   - Logging configuration
//   - Server-wide settings (shutdown, metrics endpoint)
//   - Storage root (the only directory tree clients can reach)
//   - Protocol adapter configurations
//
// Configuration sources (in order of precedence):
//  1. CLI flags (highest priority)
//  2. Environment variables (FILESHARE_*)
//  3. Configuration file (YAML)
//  4. Default values (lowest priority)
type Config struct {
	// Logging controls log output behavior
	Logging LoggingConfig `mapstructure:"logging" yaml:"logging"`

	// Server contains server-wide settings
	Server ServerConfig `mapstructure:"server" yaml:"server"`

	// Storage locates the shared directory tree
	Storage StorageConfig `mapstructure:"storage" yaml:"storage"`

	// Adapters contains protocol adapter configurations
	Adapters AdaptersConfig `mapstructure:"adapters" yaml:"adapters"`
}

// LoggingConfig controls logging behavior.
type LoggingConfig struct {
	// Level is the minimum log level to output
	// Valid values: DEBUG, INFO, WARN, ERROR (case-insensitive, normalized to uppercase)
	Level string `mapstructure:"level" yaml:"level" validate:"required,oneof=DEBUG INFO WARN ERROR debug info warn error" jsonschema:"enum=DEBUG,enum=INFO,enum=WARN,enum=ERROR"`

	// Format specifies the log output format
	// Valid values: text, json
	Format string `mapstructure:"format" yaml:"format" validate:"required,oneof=text json" jsonschema:"enum=text,enum=json"`

	// Output specifies where logs are written
	// Valid values: stdout, stderr, or a file path
	Output string `mapstructure:"output" yaml:"output" validate:"required"`
}

// ServerConfig contains server-wide settings.
type ServerConfig struct {
	// ShutdownTimeout is the maximum time to wait for graceful shutdown
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout" yaml:"shutdown_timeout" validate:"required,gt=0"`

	// Metrics configures the Prometheus endpoint
	Metrics MetricsConfig `mapstructure:"metrics" yaml:"metrics"`
}

// MetricsConfig configures the Prometheus metrics HTTP server.
type MetricsConfig struct {
	// Enabled turns metrics collection and the /metrics endpoint on
	Enabled bool `mapstructure:"enabled" yaml:"enabled"`

	// BindAddress is the interface the endpoint listens on (empty: all)
	BindAddress string `mapstructure:"bind_address" yaml:"bind_address" validate:"omitempty,ip"`

	// Port is the HTTP port of the endpoint
	Port int `mapstructure:"port" yaml:"port" validate:"min=0,max=65535"`
}

// StorageConfig locates the shared directory tree.
type StorageConfig struct {
	// Root is the directory clients are confined to. It is created at
	// startup if missing.
	Root string `mapstructure:"root" yaml:"root" validate:"required"`

	// GC removes upload temp files left behind by a crash
	GC gc.Config `mapstructure:"gc" yaml:"gc"`
}

// AdaptersConfig contains all protocol adapter configurations.
type AdaptersConfig struct {
	// Fileshare contains the fileshare protocol configuration.
	// Uses the fileshare.FileshareConfig type directly to avoid duplication.
	Fileshare fileshare.FileshareConfig `mapstructure:"fileshare" yaml:"fileshare"`
}

// Load loads configuration from file, environment, and defaults.
//
// Configuration precedence (highest to lowest):
//  1. Environment variables (FILESHARE_*)
//  2. Configuration file
//  3. Default values
//
// A missing config file is not an error: defaults and environment apply.
//
// Parameters:
//   - configPath: Path to config file (empty string uses default location)
//
// Returns:
//   - *Config: Loaded and validated configuration
//   - error: Configuration loading or validation error
func Load(configPath string) (*Config, error) {
	v := viper.New()

	setupViper(v, configPath)

	if _, err := readConfigFile(v); err != nil {
		return nil, err
	}

	var cfg Config
	if err := v.Unmarshal(&cfg, viper.DecodeHook(configDecodeHooks())); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	ApplyDefaults(&cfg)

	if err := Validate(&cfg); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}

	return &cfg, nil
}

// MustLoad loads configuration with helpful error messages.
// Unlike Load, it requires the config file to exist.
func MustLoad(configPath string) (*Config, error) {
	if configPath == "" {
		if !DefaultConfigExists() {
			return nil, fmt.Errorf("no configuration file found at default location: %s\n\n"+
				"Please initialize a configuration file first:\n"+
				"  fileshare init\n\n"+
				"Or specify a custom config file:\n"+
				"  fileshare <command> --config /path/to/config.yaml",
				GetDefaultConfigPath())
		}
		configPath = GetDefaultConfigPath()
	} else if _, err := os.Stat(configPath); os.IsNotExist(err) {
		return nil, fmt.Errorf("configuration file not found: %s\n\n"+
			"Please create the configuration file:\n"+
			"  fileshare init --config %s",
			configPath, configPath)
	}

	cfg, err := Load(configPath)
	if err != nil {
		return nil, fmt.Errorf("failed to load configuration: %w", err)
	}
	return cfg, nil
}

// setupViper configures viper with environment variables and config file settings.
func setupViper(v *viper.Viper, configPath string) {
	// Environment variables use the FILESHARE_ prefix and underscores
	// Example: FILESHARE_ADAPTERS_FILESHARE_PORT=3301
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// AutomaticEnv only sees keys viper already knows about.
	bindEnvKeys(v, reflect.TypeOf(Config{}), "")

	// An explicit false in the file or environment must survive defaults.
	v.SetDefault("adapters.fileshare.enabled", true)
	v.SetDefault("storage.gc.enabled", true)

	if configPath != "" {
		v.SetConfigFile(configPath)
	} else {
		v.AddConfigPath(getConfigDir())
		v.SetConfigName("config")
		v.SetConfigType("yaml")
	}
}

// bindEnvKeys registers every leaf key of t with viper's environment lookup.
func bindEnvKeys(v *viper.Viper, t reflect.Type, prefix string) {
	for i := 0; i < t.NumField(); i++ {
		field := t.Field(i)
		name := field.Tag.Get("mapstructure")
		if name == "" || name == "-" {
			continue
		}
		key := name
		if prefix != "" {
			key = prefix + "." + name
		}

		if field.Type.Kind() == reflect.Struct && field.Type != reflect.TypeOf(time.Time{}) {
			bindEnvKeys(v, field.Type, key)
			continue
		}
		_ = v.BindEnv(key)
	}
}

// readConfigFile reads the configuration file if it exists.
// Returns (fileFound, error) where fileFound indicates if a config file was found.
func readConfigFile(v *viper.Viper) (bool, error) {
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if errors.As(err, &notFound) || os.IsNotExist(err) {
			return false, nil
		}
		return false, fmt.Errorf("failed to read config file: %w", err)
	}
	return true, nil
}

// configDecodeHooks returns the combined decode hook for custom types:
// human-readable durations ("30s", "5m") and comma-separated lists.
func configDecodeHooks() mapstructure.DecodeHookFunc {
	return mapstructure.ComposeDecodeHookFunc(
		mapstructure.StringToTimeDurationHookFunc(),
		mapstructure.StringToSliceHookFunc(","),
	)
}

// getConfigDir returns the configuration directory path.
//
// Uses XDG_CONFIG_HOME if set, otherwise ~/.config, or falls back to current
// directory (.) if home directory cannot be determined.
func getConfigDir() string {
	if xdgConfig := os.Getenv("XDG_CONFIG_HOME"); xdgConfig != "" {
		return filepath.Join(xdgConfig, "fileshare")
	}

	home, err := os.UserHomeDir()
	if err != nil {
		return "."
	}

	return filepath.Join(home, ".config", "fileshare")
}

// GetDefaultConfigPath returns the default configuration file path.
func GetDefaultConfigPath() string {
	return filepath.Join(getConfigDir(), "config.yaml")
}

// DefaultConfigExists checks if a config file exists at the default location.
func DefaultConfigExists() bool {
	_, err := os.Stat(GetDefaultConfigPath())
	return err == nil
}

// GetConfigDir returns the configuration directory path (exposed for init command).
func GetConfigDir() string {
	return getConfigDir()
}
