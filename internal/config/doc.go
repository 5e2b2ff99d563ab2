// Package config loads YAML configuration with ${VAR} environment
// expansion, default values, and validation.
package config
