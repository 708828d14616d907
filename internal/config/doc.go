// Package config loads quorum's layered configuration: built-in defaults, the
// config file, QUORUM_* environment variables, and command-line overrides, in
// increasing order of precedence.
package config
