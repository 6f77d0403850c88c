// Package onetimetokens stores single-use codes (password reset links) by
// the sha256 hash of the code.
package onetimetokens

import (
	"context"
	"time"

	"github.com/dmitrijs2005/reservation/internal/server/models"
)

// Repository defines operations on one-time codes.
type Repository interface {
	// Create stores the code record; a duplicate hash is common.ErrConflict.
	Create(ctx context.Context, token *models.OneTimeToken) error

	// Find returns the record matching codeHash and purpose or
	// common.ErrorNotFound.
	Find(ctx context.Context, codeHash, purpose string) (*models.OneTimeToken, error)

	// Delete consumes the code. Deleting nothing is common.ErrorNotFound, so
	// two concurrent consumers cannot both succeed.
	Delete(ctx context.Context, codeHash string) error

	// DeleteByEmail drops every outstanding code of purpose issued to email.
	DeleteByEmail(ctx context.Context, email, purpose string) (int64, error)

	// DeleteExpired purges codes created before the cutoff.
	DeleteExpired(ctx context.Context, createdBefore time.Time) (int64, error)
}
