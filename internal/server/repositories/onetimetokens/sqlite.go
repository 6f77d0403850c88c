package onetimetokens

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/dmitrijs2005/reservation/internal/common"
	"github.com/dmitrijs2005/reservation/internal/dbx"
	"github.com/dmitrijs2005/reservation/internal/server/models"
)

// SQLiteRepository binds times in UTC; see DeleteExpired.
type SQLiteRepository struct {
	db dbx.DBTX
}

func NewSQLiteRepository(db dbx.DBTX) *SQLiteRepository {
	return &SQLiteRepository{db: db}
}

func (r *SQLiteRepository) Create(ctx context.Context, token *models.OneTimeToken) error {
	query := `
		INSERT INTO one_time_tokens (code_hash, email, purpose, created_at)
		VALUES (?, ?, ?, ?)
	`
	if _, err := r.db.ExecContext(ctx, query, token.CodeHash, token.Email, token.Purpose, token.CreatedAt.UTC()); err != nil {
		if dbx.IsUniqueViolation(err) {
			return common.ErrConflict
		}
		return fmt.Errorf("db error: %w", err)
	}
	return nil
}

func (r *SQLiteRepository) Find(ctx context.Context, codeHash, purpose string) (*models.OneTimeToken, error) {
	query := `
		SELECT code_hash, email, purpose, created_at
		FROM one_time_tokens
		WHERE code_hash = ? AND purpose = ?
	`
	t := &models.OneTimeToken{}
	if err := r.db.QueryRowContext(ctx, query, codeHash, purpose).Scan(&t.CodeHash, &t.Email, &t.Purpose, &t.CreatedAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, common.ErrorNotFound
		}
		return nil, fmt.Errorf("db error: %w", err)
	}
	return t, nil
}

func (r *SQLiteRepository) Delete(ctx context.Context, codeHash string) error {
	query := `
		DELETE FROM one_time_tokens
		WHERE code_hash = ?
	`
	res, err := r.db.ExecContext(ctx, query, codeHash)
	if err != nil {
		return fmt.Errorf("db error: %w", err)
	}
	_, err = dbx.RowsAffected(res, common.ErrorNotFound)
	return err
}

func (r *SQLiteRepository) DeleteByEmail(ctx context.Context, email, purpose string) (int64, error) {
	query := `
		DELETE FROM one_time_tokens
		WHERE email = ? AND purpose = ?
	`
	res, err := r.db.ExecContext(ctx, query, email, purpose)
	if err != nil {
		return 0, fmt.Errorf("db error: %w", err)
	}
	return dbx.RowsAffected(res, nil)
}

func (r *SQLiteRepository) DeleteExpired(ctx context.Context, createdBefore time.Time) (int64, error) {
	query := `
		DELETE FROM one_time_tokens
		WHERE created_at < ?
	`
	res, err := r.db.ExecContext(ctx, query, createdBefore.UTC())
	if err != nil {
		return 0, fmt.Errorf("db error: %w", err)
	}
	return dbx.RowsAffected(res, nil)
}
