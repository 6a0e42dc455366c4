// Package config provides configuration structures and utilities for gridwatch.
// It defines the runtime options for rendering and checking monitored tables,
// retention, delivery credentials and report output, plus the per-target
// settings read from the YAML configuration file.
package config
