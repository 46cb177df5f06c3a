package client

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/dmitrijs2005/aegislink/internal/client/migrations"
	"github.com/dmitrijs2005/aegislink/internal/filex"
	"github.com/pressly/goose/v3"

	_ "modernc.org/sqlite"
)

// RunMigrations applies the embedded schema to db. Running it again on an
// up-to-date database is a no-op.
func RunMigrations(ctx context.Context, db *sql.DB) error {
	goose.SetBaseFS(migrations.Migrations)
	goose.SetLogger(goose.NopLogger())

	if err := goose.SetDialect("sqlite3"); err != nil {
		return fmt.Errorf("failed to set goose dialect: %w", err)
	}

	return goose.UpContext(ctx, db, ".")
}

// InitDatabase opens the SQLite vault database at dsn and migrates it.
// The pool is limited to one connection: SQLite allows a single writer and
// credential updates run as read-compare-write transactions.
func InitDatabase(ctx context.Context, dsn string) (*sql.DB, error) {
	if path := filex.VaultPath(dsn); path != "" {
		if _, err := filex.EnsureParentDir(path); err != nil {
			return nil, err
		}
	}

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, err
	}
	db.SetMaxOpenConns(1)

	if err := RunMigrations(ctx, db); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("migrations: %w", err)
	}
	return db, nil
}
