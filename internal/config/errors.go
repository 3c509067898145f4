package config

import "errors"

// ErrUnknownConfigField classifies strict YAML parse failures caused by
// unknown keys, so callers can distinguish a typo'd key from a missing
// file. Use errors.Is, not string matching.
var ErrUnknownConfigField = errors.New("config: unknown field in config file")

// ErrInvalidConfig is returned by Validate when a required field is
// missing or out of range.
var ErrInvalidConfig = errors.New("config: invalid configuration")
