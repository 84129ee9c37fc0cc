package nn

import (
	"errors"
	"fmt"
)

// Common errors.
var (
	ErrConfiguration    = errors.New("invalid layer configuration")
	ErrNotInitialized   = errors.New("layer not initialized")
	ErrLabelOutOfRange  = errors.New("label out of range")
	ErrNoLabels         = errors.New("labels not set")
	ErrNetworkNotBuilt  = errors.New("network not built")
	ErrNetworkEmpty     = errors.New("network has no layers")
	ErrMissingParameter = errors.New("missing parameter in state dict")
)

// ConfigError provides detailed information about a rejected configuration.
type ConfigError struct {
	Layer   string // Layer kind or name (e.g. "conv", "layer3.pool")
	Field   string // Offending field, if any
	Details string // Human readable description
}

// Error implements the error interface.
func (e *ConfigError) Error() string {
	if e.Field != "" {
		return fmt.Sprintf("%s: %s: field %s: %s", e.Layer, ErrConfiguration, e.Field, e.Details)
	}
	return fmt.Sprintf("%s: %s: %s", e.Layer, ErrConfiguration, e.Details)
}

// Unwrap makes errors.Is(err, ErrConfiguration) work.
func (e *ConfigError) Unwrap() error {
	return ErrConfiguration
}

func configError(layer, field, format string, args ...any) error {
	return &ConfigError{Layer: layer, Field: field, Details: fmt.Sprintf(format, args...)}
}

func notInitialized(layer string) error {
	return fmt.Errorf("%s: %w", layer, ErrNotInitialized)
}
