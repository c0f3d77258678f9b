// Package common defines shared constants and sentinel errors used across
// sshkeeper components. Callers should use errors.Is to match these values.
package common

import "errors"

var (
	// Account lifecycle errors.
	ErrNotFound      = errors.New("not found")
	ErrAlreadyExists = errors.New("already exists")

	// Authorization errors.
	ErrUnauthorized = errors.New("unauthorized")

	// Argument validation errors.
	ErrInvalidUsername = errors.New("invalid username")
	ErrInvalidGroup    = errors.New("invalid group")
	ErrInvalidDate     = errors.New("invalid expiry date")
	ErrInvalidDuration = errors.New("invalid duration")

	// ErrExhaustedNamespace is returned when automatic username generation
	// runs out of collision-retry attempts.
	ErrExhaustedNamespace = errors.New("username namespace exhausted")

	// Codec errors (malformed token, corrupt stream, version mismatch).
	ErrCodec = errors.New("malformed credential token")

	// ErrTokenTooLong is returned when a token exceeds barcode capacity.
	ErrTokenTooLong = errors.New("token too long for barcode")

	// ErrUnderlyingSystem wraps failures of the host's user-management
	// tooling that are opaque to the caller (including timeouts).
	ErrUnderlyingSystem = errors.New("underlying system failure")
)
