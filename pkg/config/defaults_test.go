package config

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/packrat/davgate/pkg/adapter/webdav"
	"github.com/packrat/davgate/pkg/gc"
	"github.com/packrat/davgate/pkg/token"
	"github.com/packrat/davgate/pkg/vfs"
	"github.com/packrat/davgate/pkg/vocabulary"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestApplyDefaults_Logging(t *testing.T) {
	cfg := &Config{Logging: LoggingConfig{Level: "warn"}}
	ApplyDefaults(cfg)

	assert.Equal(t, "WARN", cfg.Logging.Level)
	assert.Equal(t, "text", cfg.Logging.Format)
	assert.Equal(t, "stdout", cfg.Logging.Output)
}

func TestApplyDefaults_Stores(t *testing.T) {
	t.Setenv("XDG_DATA_HOME", "/data")

	cfg := &Config{}
	ApplyDefaults(cfg)

	assert.Equal(t, "memory", cfg.Repository.Type)
	assert.Equal(t, filepath.Join("/data", "davgate", "repository"), cfg.Repository.Badger["db_path"])
	assert.Equal(t, "memory", cfg.Storage.Type)
	assert.Equal(t, filepath.Join("/data", "davgate", "blobs"), cfg.Storage.Filesystem["path"])
	assert.Equal(t, "us-east-1", cfg.Storage.S3["region"])
	assert.Equal(t, "localhost:9000", cfg.Storage.Minio["endpoint"])
}

func TestApplyDefaults_Components(t *testing.T) {
	cfg := &Config{}
	ApplyDefaults(cfg)

	assert.Equal(t, DefaultShutdownTimeout, cfg.Server.ShutdownTimeout)
	assert.Equal(t, 9090, cfg.Metrics.Port)
	assert.False(t, cfg.Metrics.Enabled)
	assert.Equal(t, vocabulary.DefaultSceneSuffix, cfg.Vocabulary.SceneSuffix)
	assert.Equal(t, vocabulary.DefaultModelExtensions, cfg.Vocabulary.ModelExtensions)
	assert.Empty(t, cfg.Vocabulary.AssetTypes)
	assert.Equal(t, DefaultFileTTL, cfg.Gateway.FileTTL)
	assert.Equal(t, vfs.DefaultMaxUploadBytes, cfg.Gateway.MaxUploadBytes)
	assert.Equal(t, token.DefaultTTL, cfg.Tokens.TTL)
	assert.Equal(t, token.DefaultMaxEntries, cfg.Tokens.MaxEntries)
	assert.Equal(t, gc.DefaultInterval, cfg.GC.Interval)
	assert.Equal(t, gc.DefaultConcurrency, cfg.GC.Concurrency)
}

func TestApplyDefaults_HTTP(t *testing.T) {
	cfg := &Config{}
	ApplyDefaults(cfg)

	http := cfg.Adapters.HTTP
	assert.False(t, http.Enabled, "enabling is the loader's job")
	assert.Equal(t, 8080, http.Port)
	assert.Equal(t, "/webdav", http.WebDAVPrefix)
	assert.Equal(t, "/download", http.DownloadPrefix)
	assert.Equal(t, "/auth/token", http.TokenPath)
	assert.Equal(t, "X-User-Id", http.UserHeader)
	assert.Equal(t, 30*time.Second, http.ShutdownTimeout)
}

func TestApplyDefaults_HTTPEnabledIsUntouched(t *testing.T) {
	for _, enabled := range []bool{true, false} {
		cfg := &Config{Adapters: AdaptersConfig{HTTP: webdav.Config{Enabled: enabled, Port: 8081}}}
		ApplyDefaults(cfg)

		assert.Equal(t, enabled, cfg.Adapters.HTTP.Enabled)
		assert.Equal(t, 8081, cfg.Adapters.HTTP.Port)
	}
}

func TestApplyDefaults_PreservesExplicitValues(t *testing.T) {
	cfg := &Config{
		Logging:    LoggingConfig{Level: "ERROR", Format: "json", Output: "/var/log/davgate.log"},
		Server:     ServerConfig{ShutdownTimeout: time.Minute},
		Repository: RepositoryConfig{Type: "badger", Badger: map[string]any{"db_path": "/srv/db"}},
		Storage:    StorageConfig{Type: "filesystem", Filesystem: map[string]any{"path": "/srv/blobs"}},
		Vocabulary: vocabulary.Config{SceneSuffix: ".scene.json", ModelExtensions: []string{".obj"}},
		Gateway:    GatewayConfig{FileTTL: time.Second, MaxUploadBytes: 42},
		Tokens:     TokensConfig{TTL: time.Minute, MaxEntries: 3},
		Adapters:   AdaptersConfig{HTTP: webdav.Config{Enabled: true, Port: 9000, DownloadPrefix: "files"}},
	}
	ApplyDefaults(cfg)

	assert.Equal(t, "json", cfg.Logging.Format)
	assert.Equal(t, "/var/log/davgate.log", cfg.Logging.Output)
	assert.Equal(t, time.Minute, cfg.Server.ShutdownTimeout)
	assert.Equal(t, "/srv/db", cfg.Repository.Badger["db_path"])
	assert.Equal(t, "/srv/blobs", cfg.Storage.Filesystem["path"])
	assert.Equal(t, ".scene.json", cfg.Vocabulary.SceneSuffix)
	assert.Equal(t, []string{".obj"}, cfg.Vocabulary.ModelExtensions)
	assert.Equal(t, time.Second, cfg.Gateway.FileTTL)
	assert.Equal(t, int64(42), cfg.Gateway.MaxUploadBytes)
	assert.Equal(t, 3, cfg.Tokens.MaxEntries)
	assert.Equal(t, 9000, cfg.Adapters.HTTP.Port)
	assert.Equal(t, "/files", cfg.Adapters.HTTP.DownloadPrefix)
}

func TestApplyDefaults_DoesNotShareDefaultExtensions(t *testing.T) {
	cfg := &Config{}
	ApplyDefaults(cfg)
	cfg.Vocabulary.ModelExtensions[0] = ".changed"

	assert.NotEqual(t, ".changed", vocabulary.DefaultModelExtensions[0])
}

func TestGetDefaultConfig_IsValid(t *testing.T) {
	cfg := GetDefaultConfig()
	require.NoError(t, Validate(cfg))

	assert.True(t, cfg.Metrics.Enabled)
	assert.True(t, cfg.GC.Enabled)
	assert.True(t, cfg.Adapters.HTTP.Enabled)
}
