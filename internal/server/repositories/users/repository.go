// Package users declares the account store and its PostgreSQL and SQLite
// implementations.
package users

import (
	"context"
	"database/sql"
	"time"

	"github.com/dmitrijs2005/reservation/internal/server/models"
)

// Repository persists accounts. Lookups return common.ErrorNotFound when no
// row matches; Create returns common.ErrConflict on a duplicate email.
type Repository interface {
	Create(ctx context.Context, user *models.User) (*models.User, error)
	GetByEmail(ctx context.Context, email string) (*models.User, error)
	GetByID(ctx context.Context, id int64) (*models.User, error)
	UpdatePassword(ctx context.Context, id int64, passwordHash string) error
}

const userColumns = `id, email, password_hash, first_name, last_name, phone_number, admin, property_id, created_at, updated_at`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanUser(row rowScanner) (*models.User, error) {
	user := &models.User{}
	var propertyID sql.NullInt64
	if err := row.Scan(
		&user.ID, &user.Email, &user.PasswordHash,
		&user.FirstName, &user.LastName, &user.PhoneNumber,
		&user.Admin, &propertyID, &user.CreatedAt, &user.UpdatedAt,
	); err != nil {
		return nil, err
	}
	if propertyID.Valid {
		id := propertyID.Int64
		user.PropertyID = &id
	}
	return user, nil
}

func nullableID(id *int64) sql.NullInt64 {
	if id == nil {
		return sql.NullInt64{}
	}
	return sql.NullInt64{Int64: *id, Valid: true}
}

func stampCreated(user *models.User) {
	if user.CreatedAt.IsZero() {
		user.CreatedAt = time.Now().UTC()
	}
	if user.UpdatedAt.IsZero() {
		user.UpdatedAt = user.CreatedAt
	}
}
