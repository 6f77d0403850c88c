package models

import "time"

// PurposePasswordReset tags codes mailed by the forgot-password flow.
const PurposePasswordReset = "reset"

// OneTimeToken is a single-use code bound to an email address.
type OneTimeToken struct {
	CodeHash  string
	Email     string
	Purpose   string
	CreatedAt time.Time
}

// IsExpired reports whether the code is older than validity.
func (t *OneTimeToken) IsExpired(now time.Time, validity time.Duration) bool {
	return !now.Before(t.CreatedAt.Add(validity))
}
