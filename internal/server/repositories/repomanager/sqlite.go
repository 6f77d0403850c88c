package repomanager

import (
	"context"
	"database/sql"

	"github.com/dmitrijs2005/reservation/internal/dbx"
	"github.com/dmitrijs2005/reservation/internal/server/migrations"
	"github.com/dmitrijs2005/reservation/internal/server/repositories/onetimetokens"
	"github.com/dmitrijs2005/reservation/internal/server/repositories/refreshtokens"
	"github.com/dmitrijs2005/reservation/internal/server/repositories/users"
	"github.com/pressly/goose/v3"
	_ "modernc.org/sqlite"
)

// SQLiteRepositoryManager is used for local runs and tests. Callers should
// cap the pool at one connection; see sqlitetest.Open.
type SQLiteRepositoryManager struct{}

func (m *SQLiteRepositoryManager) Users(db dbx.DBTX) users.Repository {
	return users.NewSQLiteRepository(db)
}

func (m *SQLiteRepositoryManager) RefreshTokens(db dbx.DBTX) refreshtokens.Repository {
	return refreshtokens.NewSQLiteRepository(db)
}

func (m *SQLiteRepositoryManager) OneTimeTokens(db dbx.DBTX) onetimetokens.Repository {
	return onetimetokens.NewSQLiteRepository(db)
}

func (m *SQLiteRepositoryManager) RunMigrations(ctx context.Context, db *sql.DB) error {
	return gooseUp(ctx, goose.DialectSQLite3, db, migrations.SQLite())
}

func NewSQLiteRepositoryManager() *SQLiteRepositoryManager {
	return &SQLiteRepositoryManager{}
}
