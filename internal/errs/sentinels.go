// Package errs contains sentinel errors used across layers for stable error mapping.
package errs

import "errors"

// Common sentinels across repo/service/transport layers.
var (
	// ErrNotFound indicates the requested entity does not exist or does not belong to the caller.
	ErrNotFound = errors.New("not found")

	// ErrForbidden indicates the caller may not perform the operation
	// (tier too low, not a participant, self-like, blocked pair).
	ErrForbidden = errors.New("forbidden")

	// ErrUnauthenticated indicates a missing or invalid caller identity.
	ErrUnauthenticated = errors.New("unauthenticated")

	// ErrInvalidOperation indicates a structurally invalid request (e.g., blocking oneself).
	ErrInvalidOperation = errors.New("invalid operation")

	// ErrValidation indicates malformed input.
	ErrValidation = errors.New("validation")

	// ErrAlreadyExists indicates a unique constraint violation. Services resolve it
	// by re-reading; it is not surfaced to callers of idempotent operations.
	ErrAlreadyExists = errors.New("already exists")

	// ErrUnavailable indicates the store is temporarily unreachable.
	ErrUnavailable = errors.New("unavailable")

	// ErrRateLimited indicates the caller sent too much and must wait.
	ErrRateLimited = errors.New("rate limited")
)
