package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"gopkg.in/yaml.v3"
)

func TestInitConfig_Success(t *testing.T) {
	t.Setenv("XDG_CONFIG_HOME", t.TempDir())

	configPath, err := InitConfig(false)
	if err != nil {
		t.Fatalf("InitConfig failed: %v", err)
	}

	content, err := os.ReadFile(configPath)
	if err != nil {
		t.Fatalf("Failed to read config file: %v", err)
	}

	contentStr := string(content)
	expectedSections := []string{
		"# davgate Configuration File",
		"logging:",
		"repository:",
		"storage:",
		"vocabulary:",
		"gateway:",
		"tokens:",
		"adapters:",
	}
	for _, section := range expectedSections {
		if !strings.Contains(contentStr, section) {
			t.Errorf("Config file missing section: %s", section)
		}
	}

	var cfg Config
	if err := yaml.Unmarshal(content, &cfg); err != nil {
		t.Fatalf("Generated config is not valid YAML: %v", err)
	}

	info, err := os.Stat(configPath)
	if err != nil {
		t.Fatalf("Stat failed: %v", err)
	}
	if info.Mode().Perm() != 0600 {
		t.Errorf("Expected mode 0600, got %v", info.Mode().Perm())
	}
}

func TestInitConfig_AlreadyExists(t *testing.T) {
	t.Setenv("XDG_CONFIG_HOME", t.TempDir())

	if _, err := InitConfig(false); err != nil {
		t.Fatalf("First InitConfig failed: %v", err)
	}

	_, err := InitConfig(false)
	if err == nil {
		t.Fatal("Expected error when config already exists")
	}
	if !strings.Contains(err.Error(), "already exists") {
		t.Errorf("Unexpected error: %v", err)
	}
}

func TestInitConfigToPath_ForceOverwrite(t *testing.T) {
	configPath := filepath.Join(t.TempDir(), "nested", "config.yaml")

	if err := os.MkdirAll(filepath.Dir(configPath), 0755); err != nil {
		t.Fatalf("MkdirAll failed: %v", err)
	}
	if err := os.WriteFile(configPath, []byte("existing"), 0644); err != nil {
		t.Fatalf("WriteFile failed: %v", err)
	}

	if err := InitConfigToPath(configPath, false); err == nil {
		t.Fatal("Expected error without force")
	}

	if err := InitConfigToPath(configPath, true); err != nil {
		t.Fatalf("Force InitConfigToPath failed: %v", err)
	}

	content, err := os.ReadFile(configPath)
	if err != nil {
		t.Fatalf("Failed to read config: %v", err)
	}
	if string(content) == "existing" {
		t.Error("File was not overwritten")
	}
}

func TestGenerateYAMLWithComments_ValidConfig(t *testing.T) {
	out, err := generateYAMLWithComments(GetDefaultConfig())
	if err != nil {
		t.Fatalf("generateYAMLWithComments failed: %v", err)
	}

	for key, comment := range sectionComments {
		firstLine := strings.SplitN(comment, "\n", 2)[0]
		if !strings.Contains(out, "# "+firstLine) {
			t.Errorf("Section %s is missing its comment", key)
		}
	}

	for _, want := range []string{"INFO", "8080", "/webdav", "webdav_prefix:", "file_ttl: 10s", ".svx.json"} {
		if !strings.Contains(out, want) {
			t.Errorf("Generated YAML should contain %q", want)
		}
	}
}

func TestGeneratedConfigIsLoadable(t *testing.T) {
	configPath := filepath.Join(t.TempDir(), "config.yaml")
	if err := InitConfigToPath(configPath, false); err != nil {
		t.Fatalf("InitConfigToPath failed: %v", err)
	}

	cfg, err := Load(configPath)
	if err != nil {
		t.Fatalf("Failed to load generated config: %v", err)
	}

	want := GetDefaultConfig()
	if cfg.Logging != want.Logging {
		t.Errorf("Logging mismatch: got %+v, want %+v", cfg.Logging, want.Logging)
	}
	if cfg.Adapters.HTTP != want.Adapters.HTTP {
		t.Errorf("HTTP adapter mismatch: got %+v, want %+v", cfg.Adapters.HTTP, want.Adapters.HTTP)
	}
	if cfg.Gateway != want.Gateway {
		t.Errorf("Gateway mismatch: got %+v, want %+v", cfg.Gateway, want.Gateway)
	}
	if cfg.Tokens.TTL != time.Hour {
		t.Errorf("Expected token ttl 1h, got %v", cfg.Tokens.TTL)
	}
	if !cfg.Metrics.Enabled || !cfg.GC.Enabled {
		t.Error("Expected metrics and gc enabled in the generated file")
	}
	if cfg.Storage.Filesystem["path"] != want.Storage.Filesystem["path"] {
		t.Errorf("Storage path mismatch: got %v", cfg.Storage.Filesystem["path"])
	}
}

func TestSectionDescription(t *testing.T) {
	if got := SectionDescription("server"); got != "Grace period for adapters and in-flight ingestions on shutdown" {
		t.Errorf("Unexpected server description: %q", got)
	}
	if got := SectionDescription("nope"); got != "" {
		t.Errorf("Expected empty description for unknown key, got %q", got)
	}
	for key := range sectionComments {
		if strings.Contains(SectionDescription(key), "\n") {
			t.Errorf("Description of %s spans lines", key)
		}
	}
}
