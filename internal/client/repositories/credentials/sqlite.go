package credentials

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/dmitrijs2005/aegislink/internal/client/models"
	"github.com/dmitrijs2005/aegislink/internal/common"
	"github.com/dmitrijs2005/aegislink/internal/dbx"
	"github.com/fxamacker/cbor/v2"
)

type SQLiteRepository struct {
	db dbx.DBTX
}

// NewSQLiteRepository binds the repository to db, which may be a *sql.DB or
// a *sql.Tx.
func NewSQLiteRepository(db dbx.DBTX) *SQLiteRepository {
	return &SQLiteRepository{db: db}
}

func pinKey(role models.Role) string {
	return common.PinKeyPrefix + string(role)
}

func wrappedKeyKey(role models.Role) string {
	return common.WrappedKeyKeyPrefix + string(role)
}

func (r *SQLiteRepository) get(ctx context.Context, key string) ([]byte, error) {
	var value []byte
	err := r.db.QueryRowContext(ctx, `SELECT value FROM metadata WHERE key = ?`, key).Scan(&value)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, common.ErrorNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get metadata[%s]: %w", key, err)
	}
	return value, nil
}

func (r *SQLiteRepository) set(ctx context.Context, key string, value []byte) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO metadata (key, value) VALUES (?, ?)
		ON CONFLICT(key) DO UPDATE SET value = excluded.value
	`, key, value)
	if err != nil {
		return fmt.Errorf("failed to set metadata[%s]: %w", key, err)
	}
	return nil
}

func (r *SQLiteRepository) GetPin(ctx context.Context, role models.Role) (string, error) {
	if !role.Valid() {
		return "", common.ErrUnknownRole
	}
	v, err := r.get(ctx, pinKey(role))
	if err != nil {
		return "", err
	}
	return string(v), nil
}

func (r *SQLiteRepository) SetPin(ctx context.Context, role models.Role, pin string) error {
	if !role.Valid() {
		return common.ErrUnknownRole
	}
	return r.set(ctx, pinKey(role), []byte(pin))
}

func (r *SQLiteRepository) GetWrappedKey(ctx context.Context, role models.Role) (*WrappedKey, error) {
	if !role.Valid() {
		return nil, common.ErrUnknownRole
	}
	v, err := r.get(ctx, wrappedKeyKey(role))
	if err != nil {
		return nil, err
	}
	var wk WrappedKey
	if err := cbor.Unmarshal(v, &wk); err != nil {
		return nil, fmt.Errorf("failed to decode wrapped key for %s: %w", role, err)
	}
	return &wk, nil
}

func (r *SQLiteRepository) SetWrappedKey(ctx context.Context, role models.Role, wk *WrappedKey) error {
	if !role.Valid() {
		return common.ErrUnknownRole
	}
	v, err := cbor.Marshal(wk)
	if err != nil {
		return fmt.Errorf("failed to encode wrapped key for %s: %w", role, err)
	}
	return r.set(ctx, wrappedKeyKey(role), v)
}
