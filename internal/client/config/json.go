package config

import (
	"encoding/json"
	"os"

	"github.com/dmitrijs2005/aegislink/internal/flagx"
	"github.com/dmitrijs2005/aegislink/internal/timex"
)

// JsonConfig is a DTO used exclusively for JSON unmarshalling.
type JsonConfig struct {
	DatabaseDSN string         `json:"database_dsn"`
	IdleTimeout timex.Duration `json:"idle_timeout"`
	LogLevel    string         `json:"log_level"`
	LinkSocket  string         `json:"link_socket"`
}

// parseJson overlays cfg with the non-empty values of the JSON file named by
// -c or -config. Without either flag it does nothing. Read and unmarshal
// errors panic.
func parseJson(cfg *Config) {
	jsonConfigFile := flagx.JsonConfigFlags()
	if jsonConfigFile == "" {
		return
	}

	var jc JsonConfig

	data, err := os.ReadFile(jsonConfigFile)
	if err != nil {
		panic(err)
	}
	if err := json.Unmarshal(data, &jc); err != nil {
		panic(err)
	}

	if jc.DatabaseDSN != "" {
		cfg.DatabaseDSN = jc.DatabaseDSN
	}
	if jc.IdleTimeout.Duration > 0 {
		cfg.IdleTimeout = jc.IdleTimeout.Duration
	}
	if jc.LogLevel != "" {
		cfg.LogLevel = jc.LogLevel
	}
	if jc.LinkSocket != "" {
		cfg.LinkSocket = jc.LinkSocket
	}
}
