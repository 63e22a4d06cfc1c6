// Package common defines shared constants and sentinel errors used across
// the client, the server and the sync engine. Callers should use errors.Is
// to match these values.
package common

import "errors"

var (
	// Store-level errors.
	ErrNotFound      = errors.New("not found")
	ErrSchemaMissing = errors.New("schema missing")
	ErrUUIDConflict  = errors.New("uuid conflict")

	// Version chain invariant violations.
	ErrBrokenChain             = errors.New("broken version chain")
	ErrMultipleCurrentVersions = errors.New("multiple current versions")

	// Logical-clock outcomes.
	ErrCausallyBehind = errors.New("causally behind remote")
	ErrClockConflict  = errors.New("logical clock conflict")

	// Round flow control.
	ErrRoundInProgress  = errors.New("sync round already in progress")
	ErrDependencyFailed = errors.New("dependency failed in this round")
	ErrUnknownKind      = errors.New("unknown entity kind")
	ErrInvalidEntity    = errors.New("invalid entity")

	// Transport and auth errors.
	ErrUnauthorized = errors.New("unauthorized")
	ErrInvalidToken = errors.New("invalid token")
	ErrUnavailable  = errors.New("remote store unavailable")
	ErrInternal     = errors.New("internal error")
)

// IsInvariantViolation reports whether err is one of the errors that abort
// processing of an entity and everything depending on it.
func IsInvariantViolation(err error) bool {
	return errors.Is(err, ErrBrokenChain) ||
		errors.Is(err, ErrMultipleCurrentVersions) ||
		errors.Is(err, ErrUUIDConflict)
}
