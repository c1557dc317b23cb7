// Package config loads application configuration from built-in defaults,
// an optional YAML file and STALLGATE_* environment variables, with each
// layer overriding the previous one.
package config
