package services

import (
	"fmt"

	"github.com/dmitrijs2005/reservation/internal/common"
	"github.com/samber/oops"
)

// Error codes carried by every error the auth service returns. The wrapped
// sentinel from package common decides the HTTP status; the code decides
// the message shown to the caller.
const (
	CodeInvalidInput        = "AUTH_INVALID_INPUT"
	CodeEmailTaken          = "AUTH_EMAIL_TAKEN"
	CodeInvalidCredentials  = "AUTH_INVALID_CREDENTIALS"
	CodeInvalidRefreshToken = "AUTH_INVALID_REFRESH_TOKEN"
	CodeRotationFailed      = "AUTH_ROTATION_FAILED"
	CodeInvalidSession      = "AUTH_INVALID_SESSION"
	CodeUserNotFound        = "AUTH_USER_NOT_FOUND"
	CodeInvalidResetToken   = "AUTH_INVALID_RESET_TOKEN"
	CodeInternal            = "AUTH_INTERNAL"
)

const internalMessage = "Internal server error"

func errInvalidInput(reason string) error {
	return oops.Code(CodeInvalidInput).With("reason", reason).Wrap(common.ErrInvalidInput)
}

func errEmailTaken() error {
	return oops.Code(CodeEmailTaken).Wrap(common.ErrConflict)
}

func errInvalidCredentials() error {
	return oops.Code(CodeInvalidCredentials).Wrap(common.ErrorUnauthorized)
}

func errInvalidRefreshToken(reason string) error {
	return oops.Code(CodeInvalidRefreshToken).With("reason", reason).Wrap(common.ErrorUnauthorized)
}

// errRotationFailed reports a rotation that did not commit. A lost rotation
// means the token was already rotated, so it reads the same as any other
// unknown refresh token.
func errRotationFailed(outcome RotationOutcome, cause error) error {
	code := CodeRotationFailed
	if outcome == RotationLost {
		code = CodeInvalidRefreshToken
	}
	b := oops.Code(code).With("rotation", outcome.String())
	if cause != nil {
		return b.Wrap(fmt.Errorf("%w: %w", common.ErrorUnauthorized, cause))
	}
	return b.Wrap(common.ErrorUnauthorized)
}

func errInvalidSession() error {
	return oops.Code(CodeInvalidSession).Wrap(common.ErrorUnauthorized)
}

func errUserNotFound() error {
	return oops.Code(CodeUserNotFound).Wrap(common.ErrorNotFound)
}

func errInvalidResetToken(reason string) error {
	return oops.Code(CodeInvalidResetToken).With("reason", reason).Wrap(common.ErrInvalidToken)
}

// errInternal keeps the cause for logs; callers only ever see internalMessage.
func errInternal(op string, cause error) error {
	return oops.Code(CodeInternal).With("op", op).Wrap(fmt.Errorf("%w: %w", common.ErrorInternal, cause))
}

// PublicMessage returns the caller-facing message for an error returned by
// AuthService. Unknown errors get a fixed message so internal detail never
// leaks.
func PublicMessage(err error) string {
	oopsErr, ok := oops.AsOops(err)
	if !ok {
		return internalMessage
	}

	switch fmt.Sprint(oopsErr.Code()) {
	case CodeInvalidInput:
		if reason, ok := oopsErr.Context()["reason"].(string); ok && reason != "" {
			return reason
		}
		return "Invalid input"
	case CodeEmailTaken:
		return "Email already exists"
	case CodeInvalidCredentials:
		return "Invalid email or password"
	case CodeInvalidRefreshToken:
		return "Invalid refresh token"
	case CodeRotationFailed:
		return "Session expired, please log in again"
	case CodeInvalidSession:
		return "Invalid or expired session"
	case CodeUserNotFound:
		return "User not found"
	case CodeInvalidResetToken:
		return "Invalid token"
	default:
		return internalMessage
	}
}

// RotationOutcomeOf extracts the rotation result recorded on a failed
// RefreshToken call.
func RotationOutcomeOf(err error) (RotationOutcome, bool) {
	oopsErr, ok := oops.AsOops(err)
	if !ok {
		return 0, false
	}
	name, ok := oopsErr.Context()["rotation"].(string)
	if !ok {
		return 0, false
	}
	for _, o := range []RotationOutcome{RotationCommitted, RotationLost, RotationAborted} {
		if o.String() == name {
			return o, true
		}
	}
	return 0, false
}
