// Package refreshtokens declares the server-side store of issued refresh
// tokens. Tokens are addressed by their sha256 hash.
package refreshtokens

import (
	"context"
	"time"

	"github.com/dmitrijs2005/reservation/internal/server/models"
)

// Repository defines operations for recording, retrieving, and revoking refresh tokens.
type Repository interface {
	// Create records a token hash for userID valid until expiresAt.
	Create(ctx context.Context, userID int64, tokenHash string, expiresAt time.Time) error

	// Find returns the record for tokenHash or common.ErrorNotFound.
	Find(ctx context.Context, tokenHash string) (*models.RefreshToken, error)

	// Delete removes the record for tokenHash. Deleting nothing is reported
	// as common.ErrorNotFound: rotation relies on it to detect a token that
	// a concurrent request already consumed.
	Delete(ctx context.Context, tokenHash string) error

	// DeleteByUser revokes every token of userID and returns how many went.
	DeleteByUser(ctx context.Context, userID int64) (int64, error)

	// DeleteExpired purges tokens expired at now.
	DeleteExpired(ctx context.Context, now time.Time) (int64, error)
}
