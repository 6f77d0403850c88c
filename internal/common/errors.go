// Package common defines the error taxonomy and constants shared by the
// reservation auth core. Callers should use errors.Is to match these values.
package common

import "errors"

var (
	// repository specific errors
	ErrorNotFound = errors.New("not found")
	ErrConflict   = errors.New("already exists")

	// service specific errors
	ErrInvalidInput   = errors.New("invalid input")
	ErrorUnauthorized = errors.New("unauthorized")

	// ErrInvalidToken marks an unknown, expired or already consumed one-time
	// token. Session token failures surface as ErrorUnauthorized instead.
	ErrInvalidToken = errors.New("invalid token")

	// ErrorInternal covers infrastructure failures (store, hashing, signing)
	// that are not the caller's fault.
	ErrorInternal = errors.New("internal error")
)
