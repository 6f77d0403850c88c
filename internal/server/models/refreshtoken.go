package models

import "time"

// RefreshToken is the server-side record of an issued refresh token. Only
// the sha256 of the signed token is kept.
type RefreshToken struct {
	ID        int64
	UserID    int64
	TokenHash string
	Expires   time.Time
	CreatedAt time.Time
}

// IsExpired reports whether the record can no longer be presented.
func (t *RefreshToken) IsExpired(now time.Time) bool {
	return !now.Before(t.Expires)
}
