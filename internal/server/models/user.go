// Package models holds the records persisted by the credential store.
package models

import "time"

// User is an account. PasswordHash is never serialised by the API layer.
type User struct {
	ID           int64
	Email        string
	PasswordHash string
	FirstName    string
	LastName     string
	PhoneNumber  string
	Admin        bool
	// PropertyID links a tenant to the property they rent, if any.
	PropertyID *int64
	CreatedAt  time.Time
	UpdatedAt  time.Time
}
