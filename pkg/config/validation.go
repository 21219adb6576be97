package config

import (
	"errors"
	"fmt"
	"strings"

	"github.com/go-playground/validator/v10"
)

// validate is the singleton validator instance
var validate *validator.Validate

func init() {
	validate = validator.New()
}

// assetTypeKeys are the classification keys accepted under
// vocabulary.asset_types.
var assetTypeKeys = map[string]struct{}{
	"scene":          {},
	"model_geometry": {},
	"other":          {},
}

// Validate validates the configuration using struct tags and custom rules.
//
// Note: Log level normalization is handled in ApplyDefaults, not here.
// Validation accepts both uppercase and lowercase log levels.
func Validate(cfg *Config) error {
	if err := validate.Struct(cfg); err != nil {
		return formatValidationError(err)
	}

	if err := validateCustomRules(cfg); err != nil {
		return err
	}

	return nil
}

// validateCustomRules performs validation beyond struct tags.
func validateCustomRules(cfg *Config) error {
	if !cfg.Adapters.HTTP.Enabled {
		return fmt.Errorf("adapters: at least one adapter must be enabled")
	}
	if err := cfg.Adapters.HTTP.Validate(); err != nil {
		return fmt.Errorf("adapters.http: %w", err)
	}

	if cfg.Metrics.Enabled && cfg.Metrics.Port == cfg.Adapters.HTTP.Port {
		return fmt.Errorf("metrics.port: %d is already used by adapters.http", cfg.Metrics.Port)
	}

	for key, id := range cfg.Vocabulary.AssetTypes {
		if _, ok := assetTypeKeys[strings.ToLower(key)]; !ok {
			return fmt.Errorf("vocabulary.asset_types: unknown classification %q (valid: scene, model_geometry, other)", key)
		}
		if id <= 0 {
			return fmt.Errorf("vocabulary.asset_types.%s: id must be positive, got %d", key, id)
		}
	}
	if !strings.HasPrefix(cfg.Vocabulary.SceneSuffix, ".") {
		return fmt.Errorf("vocabulary.scene_suffix: must start with '.', got %q", cfg.Vocabulary.SceneSuffix)
	}

	return nil
}

// formatValidationError converts validator errors into user-friendly messages.
func formatValidationError(err error) error {
	var validationErrs validator.ValidationErrors
	if errors.As(err, &validationErrs) && len(validationErrs) > 0 {
		e := validationErrs[0]
		return fmt.Errorf("%s: validation failed on '%s' tag (value: %v)",
			e.Namespace(), e.Tag(), e.Value())
	}
	return err
}
