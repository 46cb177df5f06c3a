package config

import "time"

// Config holds runtime settings for the Aegis-Link CLI.
//
// Fields:
//   - DatabaseDSN: SQLite DSN or file path of the local vault.
//   - IdleTimeout: inactivity period after which an unlocked session locks.
//   - LogLevel: debug, info, warn or error.
//   - LinkSocket: Unix socket the local participants meet at. Empty means
//     next to the vault file (see filex.LinkPath).
type Config struct {
	DatabaseDSN string
	IdleTimeout time.Duration
	LogLevel    string
	LinkSocket  string
}

// LoadDefaults populates c with sensible defaults.
func (c *Config) LoadDefaults() {
	c.DatabaseDSN = "vault.db"
	c.IdleTimeout = 5 * time.Minute
	c.LogLevel = "info"
}

// LoadConfig constructs a Config, applies defaults, then overlays values from
// JSON (if present) and command-line flags (if present). Later sources take
// precedence over earlier ones.
func LoadConfig() *Config {
	cfg := &Config{}
	cfg.LoadDefaults()
	parseJson(cfg)
	parseFlags(cfg)
	return cfg
}
