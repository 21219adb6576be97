package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func TestLoad_DefaultConfig(t *testing.T) {
	tmpDir := t.TempDir()
	configPath := filepath.Join(tmpDir, "config.yaml")

	configContent := `
logging:
  level: "info"

storage:
  type: "memory"

adapters:
  http:
    enabled: true
`
	if err := os.WriteFile(configPath, []byte(configContent), 0644); err != nil {
		t.Fatalf("Failed to write config file: %v", err)
	}

	cfg, err := Load(configPath)
	if err != nil {
		t.Fatalf("Failed to load config: %v", err)
	}

	if cfg.Logging.Level != "INFO" {
		t.Errorf("Expected normalized level 'INFO', got %q", cfg.Logging.Level)
	}
	if cfg.Logging.Format != "text" {
		t.Errorf("Expected default format 'text', got %q", cfg.Logging.Format)
	}
	if cfg.Server.ShutdownTimeout != 30*time.Second {
		t.Errorf("Expected default shutdown_timeout 30s, got %v", cfg.Server.ShutdownTimeout)
	}
	if cfg.Adapters.HTTP.Port != 8080 {
		t.Errorf("Expected default HTTP port 8080, got %d", cfg.Adapters.HTTP.Port)
	}
	if cfg.Adapters.HTTP.WebDAVPrefix != "/webdav" {
		t.Errorf("Expected default webdav prefix, got %q", cfg.Adapters.HTTP.WebDAVPrefix)
	}
	if cfg.Gateway.FileTTL != 10*time.Second {
		t.Errorf("Expected default file_ttl 10s, got %v", cfg.Gateway.FileTTL)
	}
	if cfg.Tokens.TTL != time.Hour {
		t.Errorf("Expected default token ttl 1h, got %v", cfg.Tokens.TTL)
	}
}

func TestLoad_FullConfig(t *testing.T) {
	tmpDir := t.TempDir()
	configPath := filepath.Join(tmpDir, "config.yaml")

	configContent := `
logging:
  level: DEBUG
  format: json
repository:
  type: badger
  badger:
    db_path: /var/lib/davgate/repo
storage:
  type: s3
  s3:
    bucket: assets
    region: eu-west-1
    key_prefix: blobs/
vocabulary:
  scene_suffix: .svx.json
  model_extensions: [".obj", "glb"]
  asset_types:
    scene: 137
    model_geometry: 135
    other: 140
gateway:
  file_ttl: 5s
  max_upload_bytes: 1048576
  comment: "Created by davgate"
tokens:
  ttl: 30m
  max_entries: 500
gc:
  enabled: true
  interval: 15m
adapters:
  http:
    enabled: true
    port: 8443
    webdav_prefix: /dav/
    allow_anonymous: true
`
	if err := os.WriteFile(configPath, []byte(configContent), 0644); err != nil {
		t.Fatalf("Failed to write config file: %v", err)
	}

	cfg, err := Load(configPath)
	if err != nil {
		t.Fatalf("Failed to load config: %v", err)
	}

	if cfg.Repository.Type != "badger" || cfg.Repository.Badger["db_path"] != "/var/lib/davgate/repo" {
		t.Errorf("Unexpected repository section: %+v", cfg.Repository)
	}
	if cfg.Storage.Type != "s3" || cfg.Storage.S3["bucket"] != "assets" {
		t.Errorf("Unexpected storage section: %+v", cfg.Storage)
	}
	if cfg.Vocabulary.AssetTypes["scene"] != 137 {
		t.Errorf("Expected scene asset type 137, got %d", cfg.Vocabulary.AssetTypes["scene"])
	}
	if len(cfg.Vocabulary.ModelExtensions) != 2 {
		t.Errorf("Expected configured extensions to replace defaults, got %v", cfg.Vocabulary.ModelExtensions)
	}
	if cfg.Gateway.FileTTL != 5*time.Second || cfg.Gateway.MaxUploadBytes != 1048576 {
		t.Errorf("Unexpected gateway section: %+v", cfg.Gateway)
	}
	if cfg.Tokens.TTL != 30*time.Minute || cfg.Tokens.MaxEntries != 500 {
		t.Errorf("Unexpected tokens section: %+v", cfg.Tokens)
	}
	if cfg.GC.Interval != 15*time.Minute {
		t.Errorf("Expected gc interval 15m, got %v", cfg.GC.Interval)
	}
	if cfg.Adapters.HTTP.Port != 8443 || cfg.Adapters.HTTP.WebDAVPrefix != "/dav" || !cfg.Adapters.HTTP.AllowAnonymous {
		t.Errorf("Unexpected http section: %+v", cfg.Adapters.HTTP)
	}
}

func TestLoad_NoConfigFile(t *testing.T) {
	tmpDir := t.TempDir()
	nonExistentPath := filepath.Join(tmpDir, "nonexistent.yaml")

	cfg, err := Load(nonExistentPath)
	if err == nil {
		// an explicit path that does not exist is reported by viper as a
		// plain read error, so either outcome must leave defaults intact
		if cfg.Repository.Type != "memory" {
			t.Errorf("Expected default repository type 'memory', got %q", cfg.Repository.Type)
		}
		return
	}
	if !strings.Contains(err.Error(), "failed to read config file") {
		t.Fatalf("Unexpected error: %v", err)
	}
}

func TestLoad_DefaultLocationMissing(t *testing.T) {
	t.Setenv("XDG_CONFIG_HOME", t.TempDir())

	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Expected no error without a config file, got: %v", err)
	}
	if cfg.Logging.Level != "INFO" {
		t.Errorf("Expected default level 'INFO', got %q", cfg.Logging.Level)
	}
	if cfg.Storage.Type != "memory" {
		t.Errorf("Expected default storage type 'memory', got %q", cfg.Storage.Type)
	}
	if !cfg.Adapters.HTTP.Enabled {
		t.Error("Expected HTTP adapter to be enabled by default")
	}
}

func TestLoad_InvalidYAML(t *testing.T) {
	tmpDir := t.TempDir()
	configPath := filepath.Join(tmpDir, "invalid.yaml")

	configContent := `
logging:
  level: INFO
  invalid yaml here [[[
`
	if err := os.WriteFile(configPath, []byte(configContent), 0644); err != nil {
		t.Fatalf("Failed to write config file: %v", err)
	}

	if _, err := Load(configPath); err == nil {
		t.Fatal("Expected error with invalid YAML, got nil")
	}
}

func TestLoad_ValidationFailure(t *testing.T) {
	tmpDir := t.TempDir()
	configPath := filepath.Join(tmpDir, "config.yaml")

	configContent := `
storage:
  type: tape
`
	if err := os.WriteFile(configPath, []byte(configContent), 0644); err != nil {
		t.Fatalf("Failed to write config file: %v", err)
	}

	_, err := Load(configPath)
	if err == nil {
		t.Fatal("Expected validation error for unknown storage type")
	}
	if !strings.Contains(err.Error(), "configuration validation failed") {
		t.Errorf("Unexpected error: %v", err)
	}
}

func TestLoad_EnvironmentVariables(t *testing.T) {
	t.Setenv("XDG_CONFIG_HOME", t.TempDir())
	t.Setenv("DAVGATE_LOGGING_LEVEL", "WARN")
	t.Setenv("DAVGATE_ADAPTERS_HTTP_PORT", "9999")
	t.Setenv("DAVGATE_TOKENS_TTL", "2h")

	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Failed to load config: %v", err)
	}

	if cfg.Logging.Level != "WARN" {
		t.Errorf("Expected level from env 'WARN', got %q", cfg.Logging.Level)
	}
	if cfg.Adapters.HTTP.Port != 9999 {
		t.Errorf("Expected port from env 9999, got %d", cfg.Adapters.HTTP.Port)
	}
	if cfg.Tokens.TTL != 2*time.Hour {
		t.Errorf("Expected token ttl from env 2h, got %v", cfg.Tokens.TTL)
	}
	if !cfg.Adapters.HTTP.Enabled {
		t.Error("Setting only the port must leave the HTTP adapter enabled")
	}
}

func TestLoad_HTTPPortWithoutEnabled(t *testing.T) {
	configPath := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(configPath, []byte("adapters:\n  http:\n    port: 9000\n"), 0644); err != nil {
		t.Fatalf("Failed to write config file: %v", err)
	}

	cfg, err := Load(configPath)
	if err != nil {
		t.Fatalf("Failed to load config: %v", err)
	}
	if !cfg.Adapters.HTTP.Enabled {
		t.Error("Expected HTTP adapter enabled when only the port is set")
	}
	if cfg.Adapters.HTTP.Port != 9000 {
		t.Errorf("Expected port 9000, got %d", cfg.Adapters.HTTP.Port)
	}
}

func TestLoad_HTTPExplicitlyDisabled(t *testing.T) {
	configPath := filepath.Join(t.TempDir(), "config.yaml")
	content := "adapters:\n  http:\n    enabled: false\n"
	if err := os.WriteFile(configPath, []byte(content), 0644); err != nil {
		t.Fatalf("Failed to write config file: %v", err)
	}

	_, err := Load(configPath)
	if err == nil {
		t.Fatal("Expected an explicitly disabled HTTP adapter to fail validation")
	}
	if !strings.Contains(err.Error(), "at least one adapter") {
		t.Errorf("Unexpected error: %v", err)
	}
}

func TestLoad_EnvironmentOverridesFile(t *testing.T) {
	tmpDir := t.TempDir()
	configPath := filepath.Join(tmpDir, "config.yaml")
	if err := os.WriteFile(configPath, []byte("logging:\n  level: ERROR\n"), 0644); err != nil {
		t.Fatalf("Failed to write config file: %v", err)
	}
	t.Setenv("DAVGATE_LOGGING_LEVEL", "debug")

	cfg, err := Load(configPath)
	if err != nil {
		t.Fatalf("Failed to load config: %v", err)
	}
	if cfg.Logging.Level != "DEBUG" {
		t.Errorf("Expected env to win with 'DEBUG', got %q", cfg.Logging.Level)
	}
}

func TestGetDefaultConfigPath(t *testing.T) {
	dir := t.TempDir()
	t.Setenv("XDG_CONFIG_HOME", dir)

	want := filepath.Join(dir, "davgate", "config.yaml")
	if got := GetDefaultConfigPath(); got != want {
		t.Errorf("Expected %q, got %q", want, got)
	}
	if got := GetConfigDir(); got != filepath.Join(dir, "davgate") {
		t.Errorf("Unexpected config dir %q", got)
	}
}

func TestConfigExists(t *testing.T) {
	dir := t.TempDir()
	t.Setenv("XDG_CONFIG_HOME", dir)

	if ConfigExists() {
		t.Fatal("Expected no config in a fresh directory")
	}
	if _, err := InitConfig(false); err != nil {
		t.Fatalf("InitConfig failed: %v", err)
	}
	if !ConfigExists() {
		t.Error("Expected config to exist after InitConfig")
	}
}
