// Package validation checks configuration values and reports failures as
// CONFIGURATION_ERROR application errors.
//
// # Struct Tag Validation
//
//	type Config struct {
//	    Driver string `mapstructure:"driver" validate:"required"`
//	}
//	err := validation.Validate(cfg)
//
// # Programmatic Validation
//
//	v := validation.New()
//	v.Required("connections.test.dsn", dsn).OneOf("output", out, []string{"text", "yaml"})
//	err := v.Validate()
package validation
