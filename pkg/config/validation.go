package config

import (
	"fmt"

	"github.com/go-playground/validator/v10"
)

var validate = validator.New()

// Validate checks cfg against its struct tags and the cross-field rules
// that validator tags alone can't express.
func Validate(cfg *Config) error {
	if err := validate.Struct(cfg); err != nil {
		return fmt.Errorf("%w", err)
	}

	if cfg.Nvr.BaseURL != "" && cfg.Nvr.Camera == "" {
		return fmt.Errorf("config: nvr.camera is required when nvr.base_url is set")
	}

	return nil
}
