// Package config loads, normalizes, and validates vidqueue configuration data.
//
// It supplies repository defaults, expands user paths (including tilde
// shortcuts), and reads TOML files. The Config type centralizes every knob the
// daemon and CLI need: execution mode, chunking thresholds, codec family
// worker pools, hardware encoder policy, and watch-folder behaviour.
//
// Always obtain settings through this package so downstream code receives
// sanitized paths, canonical enum values, and clear validation errors.
package config
