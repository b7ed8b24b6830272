package config

import (
	"fmt"

	"github.com/go-playground/validator/v10"
)

// validate is the singleton validator instance
var validate *validator.Validate

func init() {
	validate = validator.New()
}

// Validate validates the configuration using struct tags plus custom
// rules that tags cannot express.
func Validate(cfg *Config) error {
	if err := validate.Struct(cfg); err != nil {
		return formatValidationError(err)
	}
	return validateCustomRules(cfg)
}

// validateCustomRules checks cross-field rules.
func validateCustomRules(cfg *Config) error {
	names := make(map[string]bool)
	for i, task := range cfg.Mirror.Tasks {
		if names[task.Name] {
			return fmt.Errorf("mirror.tasks[%d]: duplicate task name %q", i, task.Name)
		}
		names[task.Name] = true

		switch task.Sink.Type {
		case "local":
			if task.Sink.Path == "" {
				return fmt.Errorf("mirror.tasks[%d]: sink type local needs a path", i)
			}
		case "s3":
			if task.Sink.S3.Bucket == "" {
				return fmt.Errorf("mirror.tasks[%d]: sink type s3 needs a bucket", i)
			}
		}
	}

	if cfg.Host.TLSSkipVerify && !cfg.Host.TLS {
		return fmt.Errorf("host: tls_skip_verify requires tls")
	}

	return nil
}

// formatValidationError converts validator errors into user-friendly
// messages.
func formatValidationError(err error) error {
	if validationErrs, ok := err.(validator.ValidationErrors); ok {
		if len(validationErrs) > 0 {
			e := validationErrs[0]
			return fmt.Errorf("%s: validation failed on '%s' tag (value: %v)",
				e.Namespace(), e.Tag(), e.Value())
		}
	}
	return err
}
