package config

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeTempJSON(t *testing.T, dir, name string, data map[string]any) string {
	t.Helper()
	if dir == "" {
		dir = t.TempDir()
	}
	if name == "" {
		name = "cfg.json"
	}
	path := filepath.Join(dir, name)
	b, err := json.Marshal(data)
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(path, b, 0o600))
	return path
}

func Test_parseJson_SourcesAndPrecedence(t *testing.T) {
	origArgs := os.Args
	t.Cleanup(func() { os.Args = origArgs })

	dir := t.TempDir()
	pathFlag := writeTempJSON(t, dir, "flag.json", map[string]any{
		"database_dsn": "/var/lib/aegis/vault.db",
		"idle_timeout": "90s",
		"log_level":    "debug",
		"link_socket":  "/run/aegis/vault.link",
	})
	pathPartial := writeTempJSON(t, dir, "partial.json", map[string]any{
		"idle_timeout": 1_000_000_000,
	})

	t.Run("loads from flags", func(t *testing.T) {
		os.Args = []string{"testbin", "-config", pathFlag}

		cfg := &Config{}
		parseJson(cfg)

		assert.Equal(t, "/var/lib/aegis/vault.db", cfg.DatabaseDSN)
		assert.Equal(t, 90*time.Second, cfg.IdleTimeout)
		assert.Equal(t, "debug", cfg.LogLevel)
		assert.Equal(t, "/run/aegis/vault.link", cfg.LinkSocket)
	})

	t.Run("absent keys keep values", func(t *testing.T) {
		os.Args = []string{"testbin", "-c", pathPartial}

		cfg := &Config{}
		cfg.LoadDefaults()
		parseJson(cfg)

		assert.Equal(t, "vault.db", cfg.DatabaseDSN)
		assert.Equal(t, time.Second, cfg.IdleTimeout)
		assert.Equal(t, "info", cfg.LogLevel)
		assert.Empty(t, cfg.LinkSocket)
	})

	t.Run("no flags → no changes", func(t *testing.T) {
		os.Args = []string{"testbin"}

		cfg := &Config{DatabaseDSN: "keep.db", IdleTimeout: 42 * time.Second}
		parseJson(cfg)

		assert.Equal(t, "keep.db", cfg.DatabaseDSN)
		assert.Equal(t, 42*time.Second, cfg.IdleTimeout)
	})

	t.Run("missing file → panics", func(t *testing.T) {
		os.Args = []string{"testbin", "-c", filepath.Join(dir, "nope.json")}
		require.Panics(t, func() { parseJson(&Config{}) })
	})

	t.Run("invalid JSON → panics", func(t *testing.T) {
		bad := filepath.Join(dir, "bad.json")
		require.NoError(t, os.WriteFile(bad, []byte(`{ this is not valid json`), 0o600))

		os.Args = []string{"testbin", "-config", bad}

		require.Panics(t, func() { parseJson(&Config{}) })
	})
}
