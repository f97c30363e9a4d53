// Package config handles YAML configuration loading with environment variable substitution.
//
// Configuration files support ${VAR} syntax for environment variable interpolation.
// Loading is Load -> applyDefaults -> Validate; LoadAndValidate does all three.
// The loaded Config is read-only for the rest of the process.
package config
