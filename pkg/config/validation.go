package config

import (
	"fmt"
	"strings"

	"github.com/go-playground/validator/v10"
)

// validate is the singleton validator instance
var validate *validator.Validate

func init() {
	validate = validator.New()
}

// Validate validates the configuration using struct tags and custom rules.
//
// Struct tags carry the declarative checks; validateCustomRules covers the
// constraints tags cannot express (key-embeddability of the environment
// name, store-specific requirements).
func Validate(cfg *Config) error {
	if err := validate.Struct(cfg); err != nil {
		return formatValidationError(err)
	}
	return validateCustomRules(cfg)
}

// validateCustomRules performs custom validation beyond struct tags.
func validateCustomRules(cfg *Config) error {
	// The environment name becomes the first object key segment, so it must
	// be separator-free.
	if strings.ContainsAny(cfg.Storage.Environment, "/\x00") {
		return fmt.Errorf("storage.environment: %q cannot be embedded in object keys", cfg.Storage.Environment)
	}

	if cfg.Metadata.Type == "badger" {
		inMemory, _ := cfg.Metadata.Badger["in_memory"].(bool)
		dbPath, _ := cfg.Metadata.Badger["db_path"].(string)
		if !inMemory && dbPath == "" {
			return fmt.Errorf("metadata.badger: db_path is required unless in_memory is set")
		}
	}

	if cfg.Server.RateLimit.Enabled && cfg.Server.RateLimit.RequestsPerSecond <= 0 {
		return fmt.Errorf("server.rate_limit: requests_per_second must be positive when enabled")
	}

	return nil
}

// formatValidationError converts validator errors into readable messages.
func formatValidationError(err error) error {
	validationErrors, ok := err.(validator.ValidationErrors)
	if !ok {
		return err
	}

	var messages []string
	for _, fieldErr := range validationErrors {
		messages = append(messages, fmt.Sprintf("%s: failed %q validation (value: %v)",
			fieldErr.Namespace(), fieldErr.Tag(), fieldErr.Value()))
	}
	return fmt.Errorf("invalid configuration: %s", strings.Join(messages, "; "))
}
