package config

import (
	"flag"
	"os"
	"time"

	"github.com/dmitrijs2005/aegislink/internal/flagx"
)

// parseFlags populates selected Config fields from command-line flags.
//
//	-d string   vault database DSN (default from Config)
//	-t int      idle lock timeout in seconds (default from Config)
//	-l string   log level (default from Config)
//	-s string   link socket path (default next to the vault)
//
// os.Args is filtered with flagx.FilterArgs first, so flags owned by other
// components (-c) do not break parsing.
func parseFlags(cfg *Config) {
	args := flagx.FilterArgs(os.Args[1:], []string{"-d", "-t", "-l", "-s"})

	fs := flag.NewFlagSet("main", flag.ContinueOnError)

	fs.StringVar(&cfg.DatabaseDSN, "d", cfg.DatabaseDSN, "vault database DSN")
	idleTimeout := fs.Int("t", int(cfg.IdleTimeout.Seconds()), "idle lock timeout (in seconds)")
	fs.StringVar(&cfg.LogLevel, "l", cfg.LogLevel, "log level (debug, info, warn, error)")
	fs.StringVar(&cfg.LinkSocket, "s", cfg.LinkSocket, "link socket path")

	if err := fs.Parse(args); err != nil {
		panic(err)
	}

	cfg.IdleTimeout = time.Duration(*idleTimeout) * time.Second
}
