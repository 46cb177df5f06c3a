package credentials

import (
	"context"
	"database/sql"
	"path/filepath"
	"testing"

	"github.com/dmitrijs2005/aegislink/internal/client/models"
	"github.com/dmitrijs2005/aegislink/internal/common"
	"github.com/dmitrijs2005/aegislink/internal/cryptox"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	_ "modernc.org/sqlite"
)

func setupDB(t *testing.T) *sql.DB {
	t.Helper()
	db, err := sql.Open("sqlite", filepath.Join(t.TempDir(), "creds.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	_, err = db.Exec(`
CREATE TABLE metadata (
  key   TEXT PRIMARY KEY,
  value BLOB NOT NULL
);`)
	require.NoError(t, err)
	return db
}

func TestPin_SetGetUpsert(t *testing.T) {
	r := NewSQLiteRepository(setupDB(t))
	ctx := context.Background()

	require.NoError(t, r.SetPin(ctx, models.RoleUserA, "0000"))
	require.NoError(t, r.SetPin(ctx, models.RoleUserB, "1111"))

	pin, err := r.GetPin(ctx, models.RoleUserA)
	require.NoError(t, err)
	assert.Equal(t, "0000", pin)

	require.NoError(t, r.SetPin(ctx, models.RoleUserA, "5678"))
	pin, err = r.GetPin(ctx, models.RoleUserA)
	require.NoError(t, err)
	assert.Equal(t, "5678", pin)

	pin, err = r.GetPin(ctx, models.RoleUserB)
	require.NoError(t, err)
	assert.Equal(t, "1111", pin, "roles are stored independently")
}

func TestPin_StoredUnderRoleQualifiedKey(t *testing.T) {
	db := setupDB(t)
	r := NewSQLiteRepository(db)
	require.NoError(t, r.SetPin(context.Background(), models.RoleUserB, "4242"))

	var v []byte
	require.NoError(t, db.QueryRow(`SELECT value FROM metadata WHERE key = 'aegis_pin_USER_B'`).Scan(&v))
	assert.Equal(t, []byte("4242"), v)
}

func TestGetPin_Absent_ReturnsNotFound(t *testing.T) {
	r := NewSQLiteRepository(setupDB(t))

	_, err := r.GetPin(context.Background(), models.RoleUserA)
	require.ErrorIs(t, err, common.ErrorNotFound)
}

func TestUnknownRole_Rejected(t *testing.T) {
	r := NewSQLiteRepository(setupDB(t))
	ctx := context.Background()

	_, err := r.GetPin(ctx, "USER_C")
	require.ErrorIs(t, err, common.ErrUnknownRole)
	require.ErrorIs(t, r.SetPin(ctx, "USER_C", "0000"), common.ErrUnknownRole)
	_, err = r.GetWrappedKey(ctx, "")
	require.ErrorIs(t, err, common.ErrUnknownRole)
	require.ErrorIs(t, r.SetWrappedKey(ctx, "", &WrappedKey{}), common.ErrUnknownRole)
}

func TestWrappedKey_RoundTrip(t *testing.T) {
	r := NewSQLiteRepository(setupDB(t))
	ctx := context.Background()

	want := &WrappedKey{
		Salt: []byte{1, 2, 3, 4},
		Key:  cryptox.Envelope{Data: "ZGF0YQ==", IV: "aXZpdml2aXZpdml2"},
	}
	require.NoError(t, r.SetWrappedKey(ctx, models.RoleUserA, want))

	got, err := r.GetWrappedKey(ctx, models.RoleUserA)
	require.NoError(t, err)
	assert.Equal(t, want, got)

	_, err = r.GetWrappedKey(ctx, models.RoleUserB)
	require.ErrorIs(t, err, common.ErrorNotFound)
}

func TestGetWrappedKey_CorruptValue(t *testing.T) {
	db := setupDB(t)
	_, err := db.Exec(`INSERT INTO metadata(key, value) VALUES ('aegis_wrapped_key_USER_A', x'ff00')`)
	require.NoError(t, err)

	_, err = NewSQLiteRepository(db).GetWrappedKey(context.Background(), models.RoleUserA)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to decode wrapped key")
}

func TestDBErrorsAreWrapped(t *testing.T) {
	db := setupDB(t)
	r := NewSQLiteRepository(db)
	ctx := context.Background()
	require.NoError(t, db.Close())

	_, err := r.GetPin(ctx, models.RoleUserA)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to get metadata[aegis_pin_USER_A]")

	err = r.SetPin(ctx, models.RoleUserA, "0000")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to set metadata[aegis_pin_USER_A]")
}
