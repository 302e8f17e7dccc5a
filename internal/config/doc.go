// Package config loads, normalizes, and validates tapedeck configuration data.
//
// It supplies repository defaults, expands user paths (including tilde
// shortcuts), resolves relative paths against the project root, reads TOML
// files, and honours environment overrides such as TAPEDECK_RECORDER. The
// Config type centralizes every knob the pipeline and CLI need so tape
// discovery, scratch allocation, and the recorder invocation are configured
// in one pass.
//
// Always obtain settings through this package so downstream code receives
// absolute paths, canonical log formats, and clear validation errors.
package config
