package config

import (
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/packrat/davgate/pkg/adapter/webdav"
	"github.com/packrat/davgate/pkg/gc"
	"github.com/packrat/davgate/pkg/metrics"
	"github.com/packrat/davgate/pkg/token"
	"github.com/packrat/davgate/pkg/vfs"
	"github.com/packrat/davgate/pkg/vocabulary"
)

// Defaults that have no owning package.
const (
	DefaultFileTTL         = 10 * time.Second
	DefaultShutdownTimeout = 30 * time.Second
)

// ApplyDefaults sets default values for any unspecified configuration fields.
//
// Default Strategy:
//   - Zero values (0, "", false, nil) are replaced with defaults
//   - Explicit values are preserved
//   - Store-specific defaults are written into the store maps so that a
//     generated config file documents them
func ApplyDefaults(cfg *Config) {
	applyLoggingDefaults(&cfg.Logging)
	applyServerDefaults(&cfg.Server)
	applyMetricsDefaults(&cfg.Metrics)
	applyRepositoryDefaults(&cfg.Repository)
	applyStorageDefaults(&cfg.Storage)
	applyVocabularyDefaults(&cfg.Vocabulary)
	applyGatewayDefaults(&cfg.Gateway)
	applyTokensDefaults(&cfg.Tokens)
	applyGCDefaults(&cfg.GC)
	applyAdaptersDefaults(&cfg.Adapters)
}

// applyLoggingDefaults sets logging defaults and normalizes values.
func applyLoggingDefaults(cfg *LoggingConfig) {
	if cfg.Level == "" {
		cfg.Level = "INFO"
	}
	cfg.Level = strings.ToUpper(cfg.Level)

	if cfg.Format == "" {
		cfg.Format = "text"
	}
	if cfg.Output == "" {
		cfg.Output = "stdout"
	}
}

func applyServerDefaults(cfg *ServerConfig) {
	if cfg.ShutdownTimeout == 0 {
		cfg.ShutdownTimeout = DefaultShutdownTimeout
	}
}

func applyMetricsDefaults(cfg *MetricsConfig) {
	if cfg.Port == 0 {
		cfg.Port = metrics.DefaultPort
	}
}

func applyRepositoryDefaults(cfg *RepositoryConfig) {
	if cfg.Type == "" {
		cfg.Type = "memory"
	}
	if cfg.Badger == nil {
		cfg.Badger = make(map[string]any)
	}
	if _, ok := cfg.Badger["db_path"]; !ok {
		cfg.Badger["db_path"] = filepath.Join(defaultDataDir(), "repository")
	}
}

func applyStorageDefaults(cfg *StorageConfig) {
	if cfg.Type == "" {
		cfg.Type = "memory"
	}
	if cfg.Filesystem == nil {
		cfg.Filesystem = make(map[string]any)
	}
	if cfg.S3 == nil {
		cfg.S3 = make(map[string]any)
	}
	if cfg.Minio == nil {
		cfg.Minio = make(map[string]any)
	}

	if _, ok := cfg.Filesystem["path"]; !ok {
		cfg.Filesystem["path"] = filepath.Join(defaultDataDir(), "blobs")
	}
	if _, ok := cfg.S3["region"]; !ok {
		cfg.S3["region"] = "us-east-1"
	}
	if _, ok := cfg.Minio["endpoint"]; !ok {
		cfg.Minio["endpoint"] = "localhost:9000"
	}
}

func applyVocabularyDefaults(cfg *vocabulary.Config) {
	if cfg.SceneSuffix == "" {
		cfg.SceneSuffix = vocabulary.DefaultSceneSuffix
	}
	if len(cfg.ModelExtensions) == 0 {
		cfg.ModelExtensions = append([]string(nil), vocabulary.DefaultModelExtensions...)
	}
	// AssetTypes has no default: the ids belong to the deployment's
	// vocabulary and a guessed id would mislabel every upload.
	if cfg.AssetTypes == nil {
		cfg.AssetTypes = make(map[string]int64)
	}
}

func applyGatewayDefaults(cfg *GatewayConfig) {
	if cfg.FileTTL == 0 {
		cfg.FileTTL = DefaultFileTTL
	}
	if cfg.MaxUploadBytes == 0 {
		cfg.MaxUploadBytes = vfs.DefaultMaxUploadBytes
	}
}

func applyTokensDefaults(cfg *TokensConfig) {
	if cfg.TTL == 0 {
		cfg.TTL = token.DefaultTTL
	}
	if cfg.MaxEntries == 0 {
		cfg.MaxEntries = token.DefaultMaxEntries
	}
}

func applyGCDefaults(cfg *gc.Config) {
	if cfg.Interval == 0 {
		cfg.Interval = gc.DefaultInterval
	}
	if cfg.Concurrency == 0 {
		cfg.Concurrency = gc.DefaultConcurrency
	}
}

// applyAdaptersDefaults sets adapter defaults. Enabled is left alone: Load
// defaults it to true through viper, and a Config built in code states it.
func applyAdaptersDefaults(cfg *AdaptersConfig) {
	applyHTTPDefaults(&cfg.HTTP)
}

func applyHTTPDefaults(cfg *webdav.Config) {
	cfg.ApplyDefaults()
}

// defaultDataDir is $XDG_DATA_HOME/davgate or ~/.local/share/davgate.
func defaultDataDir() string {
	if xdgData := os.Getenv("XDG_DATA_HOME"); xdgData != "" {
		return filepath.Join(xdgData, "davgate")
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return filepath.Join(".", "data")
	}
	return filepath.Join(home, ".local", "share", "davgate")
}

// GetDefaultConfig returns a Config struct with all default values applied.
//
// This is useful for:
//   - Generating sample configuration files
//   - Testing
//   - Documentation
func GetDefaultConfig() *Config {
	cfg := &Config{
		Metrics: MetricsConfig{
			Enabled: true,
		},
		Vocabulary: vocabulary.Config{
			AssetTypes: map[string]int64{},
		},
		GC: gc.Config{
			Enabled: true,
		},
		Adapters: AdaptersConfig{
			HTTP: webdav.Config{
				Enabled: true,
			},
		},
	}

	ApplyDefaults(cfg)
	return cfg
}
