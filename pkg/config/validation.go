package config

import (
	"errors"
	"fmt"

	"github.com/go-playground/validator/v10"
)

// validate is the singleton validator instance
var validate *validator.Validate

func init() {
	validate = validator.New()
}

// Validate validates the configuration using struct tags and custom rules.
//
// Log level normalization is handled in ApplyDefaults, not here.
// Validation accepts both uppercase and lowercase log levels.
//
// Returns an error describing validation failures.
func Validate(cfg *Config) error {
	if err := validate.Struct(cfg); err != nil {
		return formatValidationError(err)
	}

	if err := validateCustomRules(cfg); err != nil {
		return err
	}

	return nil
}

// validateCustomRules performs custom validation beyond struct tags.
func validateCustomRules(cfg *Config) error {
	fs := &cfg.Adapters.Fileshare

	if !fs.Enabled {
		return fmt.Errorf("adapters: at least one adapter must be enabled")
	}

	if err := fs.Validate(); err != nil {
		return fmt.Errorf("adapters.fileshare: %w", err)
	}

	if cfg.Storage.GC.Enabled && cfg.Storage.GC.MinAge <= fs.TransferTimeout {
		return fmt.Errorf("storage.gc.min_age: %v must exceed adapters.fileshare.transfer_timeout (%v)",
			cfg.Storage.GC.MinAge, fs.TransferTimeout)
	}

	if cfg.Server.Metrics.Enabled && cfg.Server.Metrics.Port == fs.Port {
		return fmt.Errorf("server.metrics.port: %d is already used by adapters.fileshare.port", fs.Port)
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
