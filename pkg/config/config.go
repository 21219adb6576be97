package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/packrat/davgate/pkg/adapter/webdav"
	"github.com/packrat/davgate/pkg/gc"
	"github.com/packrat/davgate/pkg/vocabulary"
	"github.com/spf13/viper"
)

// Config represents the complete davgate configuration.
//
// Configuration sources (in order of precedence):
//  1. CLI flags (highest priority)
//  2. Environment variables (DAVGATE_*)
//  3. Configuration file (YAML)
//  4. Default values (lowest priority)
//
// Store Configuration Pattern:
// The repository and storage sections carry a Type plus one map per
// implementation. Only the map matching Type is decoded, by the factory for
// that implementation.
type Config struct {
	// Logging controls log output behavior
	Logging LoggingConfig `mapstructure:"logging" yaml:"logging"`

	// Server contains process-wide settings
	Server ServerConfig `mapstructure:"server" yaml:"server"`

	// Metrics controls the Prometheus endpoint
	Metrics MetricsConfig `mapstructure:"metrics" yaml:"metrics"`

	// Repository selects the asset repository implementation
	Repository RepositoryConfig `mapstructure:"repository" yaml:"repository"`

	// Storage selects where asset version bytes are kept
	Storage StorageConfig `mapstructure:"storage" yaml:"storage"`

	// Vocabulary maps file classifications to asset type ids
	Vocabulary vocabulary.Config `mapstructure:"vocabulary" yaml:"vocabulary"`

	// Gateway tunes the virtual filesystem
	Gateway GatewayConfig `mapstructure:"gateway" yaml:"gateway"`

	// Tokens tunes the capability token store
	Tokens TokensConfig `mapstructure:"tokens" yaml:"tokens"`

	// GC controls the orphan blob collector
	GC gc.Config `mapstructure:"gc" yaml:"gc"`

	// Adapters contains protocol adapter configurations
	Adapters AdaptersConfig `mapstructure:"adapters" yaml:"adapters"`
}

// LoggingConfig controls logging behavior.
type LoggingConfig struct {
	// Level is the minimum log level to output
	// Valid values: DEBUG, INFO, WARN, ERROR (case-insensitive, normalized to uppercase)
	Level string `mapstructure:"level" yaml:"level" validate:"required,oneof=DEBUG INFO WARN ERROR debug info warn error"`

	// Format specifies the log output format
	// Valid values: text, json
	Format string `mapstructure:"format" yaml:"format" validate:"required,oneof=text json"`

	// Output specifies where logs are written
	// Valid values: stdout, stderr, or a file path
	Output string `mapstructure:"output" yaml:"output" validate:"required"`
}

// ServerConfig contains process-wide settings.
type ServerConfig struct {
	// ShutdownTimeout is the maximum time to wait for graceful shutdown
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout" yaml:"shutdown_timeout" validate:"required,gt=0"`
}

// MetricsConfig controls the Prometheus metrics endpoint.
type MetricsConfig struct {
	Enabled bool `mapstructure:"enabled" yaml:"enabled"`

	// Port of the /metrics listener
	Port int `mapstructure:"port" yaml:"port" validate:"min=0,max=65535"`
}

// RepositoryConfig specifies the asset repository.
type RepositoryConfig struct {
	// Type specifies which repository implementation to use
	// Valid values: memory, badger
	Type string `mapstructure:"type" yaml:"type" validate:"required,oneof=memory badger"`

	// Badger contains BadgerDB-specific configuration
	// Only used when Type = "badger"
	Badger map[string]any `mapstructure:"badger" yaml:"badger"`
}

// StorageConfig specifies the blob store behind the storage engine.
type StorageConfig struct {
	// Type specifies which blob store implementation to use
	// Valid values: memory, filesystem, s3, minio
	Type string `mapstructure:"type" yaml:"type" validate:"required,oneof=memory filesystem s3 minio"`

	// Filesystem contains filesystem-specific configuration
	// Only used when Type = "filesystem"
	Filesystem map[string]any `mapstructure:"filesystem" yaml:"filesystem"`

	// S3 contains S3-specific configuration
	// Only used when Type = "s3"
	S3 map[string]any `mapstructure:"s3" yaml:"s3"`

	// Minio contains MinIO-specific configuration
	// Only used when Type = "minio"
	Minio map[string]any `mapstructure:"minio" yaml:"minio"`
}

// GatewayConfig tunes the virtual filesystem.
type GatewayConfig struct {
	// FileTTL is how long file metadata is served from cache
	FileTTL time.Duration `mapstructure:"file_ttl" yaml:"file_ttl" validate:"gt=0"`

	// MaxUploadBytes bounds one buffered upload
	MaxUploadBytes int64 `mapstructure:"max_upload_bytes" yaml:"max_upload_bytes" validate:"gt=0"`

	// Comment is recorded on every version created through the gateway
	Comment string `mapstructure:"comment" yaml:"comment"`
}

// TokensConfig tunes the capability token store.
type TokensConfig struct {
	// TTL is the sliding idle expiry of a token
	TTL time.Duration `mapstructure:"ttl" yaml:"ttl" validate:"gt=0"`

	// MaxEntries triggers an expiry sweep when exceeded
	MaxEntries int `mapstructure:"max_entries" yaml:"max_entries" validate:"gt=0"`
}

// AdaptersConfig contains all protocol adapter configurations.
type AdaptersConfig struct {
	// HTTP is the WebDAV, download and token surface.
	// Uses the webdav.Config type directly to avoid duplication.
	HTTP webdav.Config `mapstructure:"http" yaml:"http"`
}

// EnvPrefix prefixes every environment override, e.g.
// DAVGATE_LOGGING_LEVEL=DEBUG.
const EnvPrefix = "DAVGATE"

// Load loads configuration from file, environment, and defaults.
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

	if err := readConfigFile(v); err != nil {
		return nil, err
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	ApplyDefaults(&cfg)

	if err := Validate(&cfg); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}

	return &cfg, nil
}

// setupViper configures viper with environment variables and config file settings.
func setupViper(v *viper.Viper, configPath string) {
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// AutomaticEnv only consults keys viper already knows about, so an
	// override for a key absent from the file needs an explicit binding.
	for _, key := range envKeys {
		_ = v.BindEnv(key)
	}

	// Booleans that default to true must be viper defaults: after Unmarshal
	// an omitted key and an explicit false are both false.
	v.SetDefault("adapters.http.enabled", true)

	if configPath != "" {
		v.SetConfigFile(configPath)
		return
	}

	v.AddConfigPath(getConfigDir())
	v.SetConfigName("config")
	v.SetConfigType("yaml")
}

// envKeys are the scalar settings that can be set from the environment
// without a config file.
var envKeys = []string{
	"logging.level",
	"logging.format",
	"logging.output",
	"server.shutdown_timeout",
	"metrics.enabled",
	"metrics.port",
	"repository.type",
	"storage.type",
	"gateway.file_ttl",
	"gateway.max_upload_bytes",
	"tokens.ttl",
	"gc.enabled",
	"gc.interval",
	"adapters.http.enabled",
	"adapters.http.port",
	"adapters.http.allow_anonymous",
}

// readConfigFile reads the configuration file if it exists.
func readConfigFile(v *viper.Viper) error {
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if errors.As(err, &notFound) {
			return nil
		}
		return fmt.Errorf("failed to read config file: %w", err)
	}

	return nil
}

// getConfigDir returns the configuration directory path.
//
// Uses XDG_CONFIG_HOME if set, otherwise ~/.config, or falls back to current
// directory (.) if home directory cannot be determined.
func getConfigDir() string {
	if xdgConfig := os.Getenv("XDG_CONFIG_HOME"); xdgConfig != "" {
		return filepath.Join(xdgConfig, "davgate")
	}

	home, err := os.UserHomeDir()
	if err != nil {
		return "."
	}

	return filepath.Join(home, ".config", "davgate")
}

// GetDefaultConfigPath returns the default configuration file path.
func GetDefaultConfigPath() string {
	return filepath.Join(getConfigDir(), "config.yaml")
}

// ConfigExists checks if a config file exists at the default location.
func ConfigExists() bool {
	_, err := os.Stat(GetDefaultConfigPath())
	return err == nil
}

// GetConfigDir returns the configuration directory path.
func GetConfigDir() string {
	return getConfigDir()
}
