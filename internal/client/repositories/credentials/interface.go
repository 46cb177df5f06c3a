package credentials

import (
	"context"

	"github.com/dmitrijs2005/aegislink/internal/client/models"
	"github.com/dmitrijs2005/aegislink/internal/cryptox"
	"github.com/dmitrijs2005/aegislink/internal/dbx"
)

// WrappedKey is the channel key sealed under DeriveWrappingKey(pin, Salt).
type WrappedKey struct {
	Salt []byte           `cbor:"salt"`
	Key  cryptox.Envelope `cbor:"key"`
}

// Repository stores the PIN and wrapped channel key of each role. Records
// are only ever written, never deleted.
type Repository interface {
	GetPin(ctx context.Context, role models.Role) (string, error)
	SetPin(ctx context.Context, role models.Role, pin string) error
	GetWrappedKey(ctx context.Context, role models.Role) (*WrappedKey, error)
	SetWrappedKey(ctx context.Context, role models.Role, wk *WrappedKey) error
}

// Factory binds a Repository to a database handle or transaction.
type Factory func(db dbx.DBTX) Repository

// NewSQLiteFactory is the Factory of SQLiteRepository.
func NewSQLiteFactory() Factory {
	return func(db dbx.DBTX) Repository { return NewSQLiteRepository(db) }
}
