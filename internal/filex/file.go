// Package filex holds filesystem helpers for the local vault.
package filex

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// VaultPath returns the filesystem path behind a SQLite DSN, or "" when the
// DSN does not name a plain file (":memory:", "file:" URIs).
func VaultPath(dsn string) string {
	if dsn == "" || dsn == ":memory:" || strings.HasPrefix(dsn, "file:") {
		return ""
	}
	return dsn
}

// LinkPath returns the socket path the processes sharing the vault at dsn
// meet at, or "" when the DSN does not name a plain file.
func LinkPath(dsn string) string {
	path := VaultPath(dsn)
	if path == "" {
		return ""
	}
	return path + ".link"
}

// EnsureParentDir creates the directory that will hold path, owner-only.
// An existing directory is left as it is.
func EnsureParentDir(path string) (string, error) {
	dir := filepath.Dir(path)

	if err := os.MkdirAll(dir, 0o700); err != nil {
		return "", fmt.Errorf("mkdir %s: %w", dir, err)
	}

	return dir, nil
}
