// Package repomanager vends dialect-specific repository implementations
// bound to a DBTX and runs the embedded goose migrations.
package repomanager

import (
	"context"
	"database/sql"
	"fmt"
	"io/fs"

	"github.com/dmitrijs2005/reservation/internal/dbx"
	"github.com/dmitrijs2005/reservation/internal/server/repositories/onetimetokens"
	"github.com/dmitrijs2005/reservation/internal/server/repositories/refreshtokens"
	"github.com/dmitrijs2005/reservation/internal/server/repositories/users"
	"github.com/pressly/goose/v3"
)

// RepositoryManager builds repositories over either the pool or an open
// transaction, so one unit of work can span several repositories.
type RepositoryManager interface {
	RunMigrations(context.Context, *sql.DB) error
	Users(db dbx.DBTX) users.Repository
	RefreshTokens(db dbx.DBTX) refreshtokens.Repository
	OneTimeTokens(db dbx.DBTX) onetimetokens.Repository
}

// gooseUp is a seam for testing the goose provider.
var gooseUp = func(ctx context.Context, dialect goose.Dialect, db *sql.DB, fsys fs.FS) error {
	provider, err := goose.NewProvider(dialect, db, fsys)
	if err != nil {
		return fmt.Errorf("goose provider: %w", err)
	}
	_, err = provider.Up(ctx)
	return err
}

// New returns the manager for a configured database driver
// ("postgres" or "sqlite").
func New(driver string) (RepositoryManager, error) {
	switch driver {
	case "postgres":
		return NewPostgresRepositoryManager(), nil
	case "sqlite":
		return NewSQLiteRepositoryManager(), nil
	default:
		return nil, fmt.Errorf("unsupported database driver %q", driver)
	}
}

// DriverName maps a configured driver to the database/sql driver
// registered for it.
func DriverName(driver string) (string, error) {
	switch driver {
	case "postgres":
		return "pgx", nil
	case "sqlite":
		return "sqlite", nil
	default:
		return "", fmt.Errorf("unsupported database driver %q", driver)
	}
}
