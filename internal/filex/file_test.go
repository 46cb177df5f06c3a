package filex

import (
	"os"
	"path/filepath"
	"runtime"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestVaultPath(t *testing.T) {
	tests := []struct {
		dsn  string
		want string
	}{
		{"vault.db", "vault.db"},
		{"/var/lib/aegis/vault.db", "/var/lib/aegis/vault.db"},
		{":memory:", ""},
		{"file:vault.db?mode=ro", ""},
		{"", ""},
	}
	for _, tt := range tests {
		require.Equal(t, tt.want, VaultPath(tt.dsn), tt.dsn)
	}
}

func TestLinkPath(t *testing.T) {
	require.Equal(t, "vault.db.link", LinkPath("vault.db"))
	require.Equal(t, "/var/lib/aegis/vault.db.link", LinkPath("/var/lib/aegis/vault.db"))
	require.Equal(t, "", LinkPath(":memory:"))
	require.Equal(t, "", LinkPath("file:vault.db?mode=ro"))
}

func TestEnsureParentDir_CreatesDirectory(t *testing.T) {
	tmp := t.TempDir()
	path := filepath.Join(tmp, "aegis", "state", "vault.db")

	got, err := EnsureParentDir(path)
	require.NoError(t, err)

	want := filepath.Join(tmp, "aegis", "state")
	require.Equal(t, want, got)

	fi, err := os.Stat(want)
	require.NoError(t, err)
	require.True(t, fi.IsDir(), "should create a directory")

	if runtime.GOOS != "windows" {
		require.Equal(t, os.FileMode(0o700), fi.Mode().Perm()&0o700)
	}
}

func TestEnsureParentDir_Idempotent(t *testing.T) {
	path := filepath.Join(t.TempDir(), "state", "vault.db")

	first, err := EnsureParentDir(path)
	require.NoError(t, err)

	second, err := EnsureParentDir(path)
	require.NoError(t, err)

	require.Equal(t, first, second)
}

func TestEnsureParentDir_FailsIfFileWithSameNameExists(t *testing.T) {
	tmp := t.TempDir()
	blocker := filepath.Join(tmp, "state")
	require.NoError(t, os.WriteFile(blocker, []byte("x"), 0o600))

	_, err := EnsureParentDir(filepath.Join(blocker, "vault.db"))
	require.Error(t, err, "should fail when a file exists where the directory should be")
}
