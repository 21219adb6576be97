package config

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"
)

const fileHeader = `# davgate Configuration File
#
# Every value below is the default. Any key can be overridden from the
# environment with the DAVGATE_ prefix, e.g. DAVGATE_LOGGING_LEVEL=DEBUG.
`

// sectionComments document each top-level section of a generated file.
var sectionComments = map[string]string{
	"logging":    "Log level (DEBUG, INFO, WARN, ERROR), format (text, json) and output (stdout, stderr or a file path)",
	"server":     "Grace period for adapters and in-flight ingestions on shutdown",
	"metrics":    "Prometheus endpoint served at GET /metrics",
	"repository": "Asset repository: memory (ephemeral) or badger (persistent, uses repository.badger)",
	"storage":    "Blob store for asset version bytes: memory, filesystem, s3 or minio.\nOnly the section matching type is read.",
	"vocabulary": "Upload classification. asset_types maps scene, model_geometry and other\nto vocabulary ids; a class without an id cannot be uploaded.",
	"gateway":    "Virtual filesystem: file metadata cache lifetime, upload size bound and version comment",
	"tokens":     "Capability tokens: sliding idle expiry and the size that triggers an expiry sweep",
	"gc":         "Removal of blobs left behind by failed ingestions",
	"adapters":   "Protocol adapters. http serves WebDAV, downloads, uploads and token issuance.",
}

// SectionDescription returns the first line of the documentation of a
// top-level config section, or "" for an unknown key.
func SectionDescription(key string) string {
	comment, ok := sectionComments[key]
	if !ok {
		return ""
	}
	first, _, _ := strings.Cut(comment, "\n")
	return first
}

// InitConfig writes a default config file to the default location.
//
// Returns the path written, or an error if the file exists and force is
// false.
func InitConfig(force bool) (string, error) {
	path := GetDefaultConfigPath()
	if err := InitConfigToPath(path, force); err != nil {
		return "", err
	}
	return path, nil
}

// InitConfigToPath writes a default config file to path, creating parent
// directories as needed.
func InitConfigToPath(path string, force bool) error {
	if !force {
		if _, err := os.Stat(path); err == nil {
			return fmt.Errorf("config file already exists at %s (use --force to overwrite)", path)
		}
	}

	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	content, err := generateYAMLWithComments(GetDefaultConfig())
	if err != nil {
		return fmt.Errorf("failed to generate config: %w", err)
	}

	// The file may hold storage credentials once edited.
	if err := os.WriteFile(path, []byte(content), 0600); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	return nil
}

// generateYAMLWithComments renders cfg as YAML with a head comment on each
// top-level section.
func generateYAMLWithComments(cfg *Config) (string, error) {
	var doc yaml.Node
	if err := doc.Encode(cfg); err != nil {
		return "", fmt.Errorf("failed to encode config: %w", err)
	}

	// doc is a mapping node: keys at even indexes, values at odd ones.
	for i := 0; i+1 < len(doc.Content); i += 2 {
		key := doc.Content[i]
		if comment, ok := sectionComments[key.Value]; ok {
			key.HeadComment = comment
		}
	}

	var buf bytes.Buffer
	buf.WriteString(fileHeader)
	buf.WriteString("\n")

	enc := yaml.NewEncoder(&buf)
	enc.SetIndent(2)
	if err := enc.Encode(&doc); err != nil {
		return "", fmt.Errorf("failed to marshal config: %w", err)
	}
	if err := enc.Close(); err != nil {
		return "", err
	}

	return buf.String(), nil
}
