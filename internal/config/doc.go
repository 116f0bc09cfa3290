// Package config loads fleetwire configuration: built-in defaults, then an
// optional JSON or YAML file, then FLEETWIRE_* environment overrides, in
// that order.
package config
