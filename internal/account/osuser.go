package account

import (
	"context"
	"time"
)

// OSUserService abstracts manipulation of the host's user database so the
// engine's transition logic stays unit-testable with a fake implementation.
//
// Error contract: a missing account is reported as common.ErrNotFound; any
// opaque host failure, including a timed-out call, as
// common.ErrUnderlyingSystem. The two must stay distinguishable.
type OSUserService interface {
	// CreateAccount provisions a login with the given group, secret and
	// expiry date.
	CreateAccount(ctx context.Context, username, group, secret string, expiry time.Time) error

	// DeleteAccount removes the login and releases its resources.
	DeleteAccount(ctx context.Context, username string) error

	// SetLocked locks or unlocks authentication for the login.
	SetLocked(ctx context.Context, username string, locked bool) error

	// SetPassword replaces the login's secret.
	SetPassword(ctx context.Context, username, secret string) error

	// SetExpiry sets the date after which authentication fails.
	SetExpiry(ctx context.Context, username string, expiry time.Time) error

	// SetGroup moves the login to another group.
	SetGroup(ctx context.Context, username, group string) error

	// Exists reports whether the login is present.
	Exists(ctx context.Context, username string) (bool, error)

	// Locked reports whether the login is currently locked.
	Locked(ctx context.Context, username string) (bool, error)

	// Expiry returns the login's expiry date. A zero time means the
	// account never expires.
	Expiry(ctx context.Context, username string) (time.Time, error)
}
