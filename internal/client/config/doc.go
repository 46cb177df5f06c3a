// Package config loads runtime configuration for the Aegis-Link CLI.
//
// Sources & precedence
//
//  1. Built-in defaults (see (*Config).LoadDefaults).
//  2. Optional JSON file (see parseJson) selected via flags: -c or -config.
//  3. Command-line flags (see parseFlags), which override earlier values.
//
// Supported flags
//
//	-d string   vault database DSN or file path
//	-t int      idle lock timeout (seconds)
//	-l string   log level
//
// # JSON schema
//
// The idle timeout is a timex.Duration, so it can be a string like "5m" or
// integer nanoseconds. Absent keys keep their current value:
//
//	{
//	  "database_dsn": "vault.db",
//	  "idle_timeout": "5m",
//	  "log_level": "info"
//	}
package config
