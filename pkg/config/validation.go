package config

import (
	"errors"
	"fmt"

	"github.com/bmatcuk/doublestar/v4"
	"github.com/go-playground/validator/v10"
)

var validate = validator.New()

// Validate checks struct tags plus the rules tags cannot express.
func Validate(cfg Config) error {
	if err := validate.Struct(cfg); err != nil {
		return formatValidationError(err)
	}

	for i, pattern := range cfg.Storage.Exclude {
		if !doublestar.ValidatePattern(pattern) {
			return fmt.Errorf("storage.exclude[%d]: invalid pattern %q", i, pattern)
		}
	}

	for _, reserved := range []string{".", ".."} {
		if cfg.Storage.StagingDir == reserved || cfg.Storage.RecycleDir == reserved {
			return fmt.Errorf("storage: %q is not a valid directory name", reserved)
		}
	}

	return nil
}

// formatValidationError reports the first failing field.
func formatValidationError(err error) error {
	var validationErrs validator.ValidationErrors
	if errors.As(err, &validationErrs) && len(validationErrs) > 0 {
		e := validationErrs[0]
		return fmt.Errorf("%s: validation failed on '%s' tag (value: %v)",
			e.Namespace(), e.Tag(), e.Value())
	}
	return err
}
