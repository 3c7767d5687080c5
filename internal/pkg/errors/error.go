package xerrors

import (
	"errors"
	"fmt"
)

// Common reusable application errors
var (
	ErrNotFound         = errors.New("resource not found")
	ErrUnauthorized     = errors.New("unauthorized access")
	ErrForbidden        = errors.New("forbidden")
	ErrInvalidInput     = errors.New("invalid input")
	ErrInternal         = errors.New("internal server error")
	ErrRateLimited      = errors.New("too many requests")
	ErrIdentityNotFound = errors.New("identity not found")

	// ErrInvalidSession is the single failure all session-validation
	// paths collapse into. Tampering, expiry and malformed payloads are
	// indistinguishable from the outside.
	ErrInvalidSession = errors.New("session invalid or expired")

	// ErrNoUsableIdentity means the provider returned a profile without
	// any verified email address to anchor a local account to.
	ErrNoUsableIdentity = errors.New("no usable identity from provider")

	// ErrUnsupportedOperation marks a provider capability (refresh,
	// revoke) the specific provider's protocol does not offer.
	ErrUnsupportedOperation = errors.New("operation not supported by provider")
)

// Wrap adds context to an error (similar to fmt.Errorf("%w")).
func Wrap(err error, message string) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%s: %w", message, err)
}

// Is allows checking whether an error is a specific sentinel error.
func Is(err, target error) bool {
	return errors.Is(err, target)
}

// Unwrap extracts the underlying wrapped error.
func Unwrap(err error) error {
	return errors.Unwrap(err)
}

// MessageOrDefault returns err.Error() or a fallback message if err is nil.
func MessageOrDefault(err error, fallback string) string {
	if err != nil {
		return err.Error()
	}
	return fallback
}
