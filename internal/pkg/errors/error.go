package xerrors

import (
	"errors"
	"fmt"
)

// Error taxonomy shared by the auth core. Handlers map these to HTTP status
// codes; services wrap them with context via fmt.Errorf("%w").
var (
	ErrNotFound     = errors.New("resource not found")
	ErrUnauthorized = errors.New("unauthorized access")
	ErrForbidden    = errors.New("forbidden")
	ErrInvalidInput = errors.New("invalid input")
	ErrConflict     = errors.New("conflict: resource already exists")
	ErrInternal     = errors.New("internal server error")

	// ErrNotVerified is returned on sign-in when neither email nor phone has
	// been verified, so the caller can resume verification.
	ErrNotVerified = errors.New("account_not_verified")

	// ErrOAuthOnly distinguishes credentials without a password hash so the
	// client can redirect to the OAuth flow instead of retrying a password.
	ErrOAuthOnly = errors.New("password login unavailable for this account")

	// ErrInvalidRefresh covers every refresh failure: cache miss, phantom
	// entry, revoked or expired session. Deliberately indistinguishable.
	ErrInvalidRefresh = errors.New("invalid_refresh")
)

// Wrap adds context to an error while keeping the sentinel matchable.
func Wrap(err error, message string) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%s: %w", message, err)
}

// Is reports whether an error matches a specific sentinel error.
func Is(err, target error) bool {
	return errors.Is(err, target)
}

// MessageOrDefault returns err.Error() or a fallback message if err is nil.
func MessageOrDefault(err error, fallback string) string {
	if err != nil {
		return err.Error()
	}
	return fallback
}
