// Package account implements the account lifecycle engine: the state machine
// governing admission, expiry, locking and deletion of managed shell logins.
//
// The engine owns the decision logic only. Account storage belongs to the
// host's user database, reached through the OSUserService capability; the
// engine never retains a secret past the operation that set it.
package account

import (
	"context"
	"errors"
	"fmt"
	"io"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/dmitrijs2005/sshkeeper/internal/common"
)

// Clock is the single source of "today". Every date comparison and every
// piece of date arithmetic in the engine goes through it, so reads and
// writes cannot disagree about time zones.
type Clock interface {
	// Today returns the current calendar date at local midnight.
	Today() time.Time
}

type systemClock struct{}

func (systemClock) Today() time.Time {
	y, m, d := time.Now().Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.Local)
}

const (
	// autoSuffixLen is the length of the random username suffix; 6
	// lowercase alphanumerics give ~2e9 names per prefix.
	autoSuffixLen = 6

	// secretLen over common.AlphabetSecret yields ~125 bits of entropy,
	// comfortably above the 60-bit floor for offline-guessing resistance.
	secretLen = 20

	// maxNameAttempts bounds collision retries during auto-creation.
	maxNameAttempts = 10

	autoSuffixAlphabet = "abcdefghijklmnopqrstuvwxyz0123456789"
)

// usernameRe matches the host's login naming rules.
var usernameRe = regexp.MustCompile(`^[a-z_][a-z0-9_-]{0,31}$`)

// Account is the result of a creation operation. Secret is plaintext and
// only transits to the caller; nothing downstream stores it.
type Account struct {
	Username string
	Group    string
	Expiry   time.Time
	Secret   string
}

// Status reports the outcome of a lock-state transition.
type Status struct {
	Username string
	State    string
}

// Credentials is the result of a password change.
type Credentials struct {
	Username string
	Secret   string
}

// GroupInfo is the result of a group change. MaxLogins is derived from the
// "maxN" group naming convention; 0 when the group does not follow it.
type GroupInfo struct {
	Username  string
	Group     string
	MaxLogins int
}

// ExpiryInfo reports an account's expiry date.
type ExpiryInfo struct {
	Username string
	Expiry   time.Time
}

// Engine validates and executes lifecycle transitions. Mutations on the same
// username are serialized through a per-username lock arena; operations on
// distinct usernames run concurrently.
type Engine struct {
	svc    OSUserService
	groups map[string]struct{}
	prefix string
	clock  Clock
	random io.Reader
	locks  keyedLocks
}

// NewEngine constructs an Engine over the given OS user service. groups is
// the closed set of admissible account groups and prefix seeds auto-generated
// usernames. The engine uses the system clock and crypto/rand; tests inject
// replacements via the unexported fields.
func NewEngine(svc OSUserService, groups []string, prefix string) *Engine {
	g := make(map[string]struct{}, len(groups))
	for _, name := range groups {
		g[name] = struct{}{}
	}
	return &Engine{
		svc:    svc,
		groups: g,
		prefix: prefix,
		clock:  systemClock{},
		random: nil, // common.MakeRandString falls back to crypto/rand
	}
}

// Create provisions a new account. The username must be absent; a duplicate
// fails with ErrAlreadyExists and leaves the existing account untouched.
func (e *Engine) Create(ctx context.Context, username, group string, expiry time.Time, secret string) (*Account, error) {
	if !usernameRe.MatchString(username) {
		return nil, fmt.Errorf("%w: %q", common.ErrInvalidUsername, username)
	}
	if err := e.checkGroup(group); err != nil {
		return nil, err
	}
	expiry = dateOnly(expiry)

	mu := e.locks.of(username)
	mu.Lock()
	defer mu.Unlock()

	exists, err := e.svc.Exists(ctx, username)
	if err != nil {
		return nil, err
	}
	if exists {
		return nil, fmt.Errorf("%w: %s", common.ErrAlreadyExists, username)
	}
	if err := e.svc.CreateAccount(ctx, username, group, secret, expiry); err != nil {
		return nil, err
	}
	return &Account{Username: username, Group: group, Expiry: expiry, Secret: secret}, nil
}

// AutoCreate generates a unique username and a random secret, then creates
// the account with expiry = today + days. Collisions on the generated name
// are retried up to a fixed budget before failing with ErrExhaustedNamespace.
func (e *Engine) AutoCreate(ctx context.Context, group string, days int) (*Account, error) {
	if err := e.checkGroup(group); err != nil {
		return nil, err
	}
	if days <= 0 {
		return nil, fmt.Errorf("%w: %d days", common.ErrInvalidDuration, days)
	}

	secret, err := common.MakeRandString(e.random, secretLen, common.AlphabetSecret)
	if err != nil {
		return nil, fmt.Errorf("generating secret: %w", err)
	}
	expiry := e.clock.Today().AddDate(0, 0, days)

	for attempt := 0; attempt < maxNameAttempts; attempt++ {
		suffix, err := common.MakeRandString(e.random, autoSuffixLen, autoSuffixAlphabet)
		if err != nil {
			return nil, fmt.Errorf("generating username: %w", err)
		}
		acc, err := e.Create(ctx, e.prefix+suffix, group, expiry, secret)
		if errors.Is(err, common.ErrAlreadyExists) {
			continue
		}
		return acc, err
	}
	return nil, fmt.Errorf("%w: %d attempts with prefix %q", common.ErrExhaustedNamespace, maxNameAttempts, e.prefix)
}

// Delete removes an account in any present state.
func (e *Engine) Delete(ctx context.Context, username string) (*Status, error) {
	mu := e.locks.of(username)
	mu.Lock()
	defer mu.Unlock()

	if err := e.requireExists(ctx, username); err != nil {
		return nil, err
	}
	if err := e.svc.DeleteAccount(ctx, username); err != nil {
		return nil, err
	}
	return &Status{Username: username, State: "deleted"}, nil
}

// Lock denies authentication for the account. Locking an already locked
// account is a reported no-op, not an error.
func (e *Engine) Lock(ctx context.Context, username string) (*Status, error) {
	return e.setLocked(ctx, username, true)
}

// Unlock restores authentication for the account. Unlocking an already
// active account is a reported no-op, not an error.
func (e *Engine) Unlock(ctx context.Context, username string) (*Status, error) {
	return e.setLocked(ctx, username, false)
}

func (e *Engine) setLocked(ctx context.Context, username string, locked bool) (*Status, error) {
	mu := e.locks.of(username)
	mu.Lock()
	defer mu.Unlock()

	if err := e.requireExists(ctx, username); err != nil {
		return nil, err
	}
	current, err := e.svc.Locked(ctx, username)
	if err != nil {
		return nil, err
	}
	if current == locked {
		if locked {
			return &Status{Username: username, State: "already locked"}, nil
		}
		return &Status{Username: username, State: "already unlocked"}, nil
	}
	if err := e.svc.SetLocked(ctx, username, locked); err != nil {
		return nil, err
	}
	if locked {
		return &Status{Username: username, State: "locked"}, nil
	}
	return &Status{Username: username, State: "unlocked"}, nil
}

// ChangePassword replaces the account's secret. The prior secret is gone the
// moment the host accepts the new one; the engine keeps neither.
func (e *Engine) ChangePassword(ctx context.Context, username, secret string) (*Credentials, error) {
	mu := e.locks.of(username)
	mu.Lock()
	defer mu.Unlock()

	if err := e.requireExists(ctx, username); err != nil {
		return nil, err
	}
	if err := e.svc.SetPassword(ctx, username, secret); err != nil {
		return nil, err
	}
	return &Credentials{Username: username, Secret: secret}, nil
}

// ChangeGroup moves the account to another admissible group.
func (e *Engine) ChangeGroup(ctx context.Context, username, group string) (*GroupInfo, error) {
	if err := e.checkGroup(group); err != nil {
		return nil, err
	}

	mu := e.locks.of(username)
	mu.Lock()
	defer mu.Unlock()

	if err := e.requireExists(ctx, username); err != nil {
		return nil, err
	}
	if err := e.svc.SetGroup(ctx, username, group); err != nil {
		return nil, err
	}
	return &GroupInfo{Username: username, Group: group, MaxLogins: maxLoginsFor(group)}, nil
}

// ChangeExpiry sets the expiry date exactly to the given date. Dates before
// today are rejected; today itself is within tolerance (it expires the
// account at the next midnight).
func (e *Engine) ChangeExpiry(ctx context.Context, username string, date time.Time) (*ExpiryInfo, error) {
	date = dateOnly(date)
	if date.Before(e.clock.Today()) {
		return nil, fmt.Errorf("%w: %s is in the past", common.ErrInvalidDate, date.Format(time.DateOnly))
	}

	mu := e.locks.of(username)
	mu.Lock()
	defer mu.Unlock()

	if err := e.requireExists(ctx, username); err != nil {
		return nil, err
	}
	if err := e.svc.SetExpiry(ctx, username, date); err != nil {
		return nil, err
	}
	return &ExpiryInfo{Username: username, Expiry: date}, nil
}

// Renew extends the expiry by the given number of days, anchored at
// max(today, current expiry). Renewal never shortens an account, and an
// already expired account restarts from today.
func (e *Engine) Renew(ctx context.Context, username string, days int) (*ExpiryInfo, error) {
	if days <= 0 {
		return nil, fmt.Errorf("%w: %d days", common.ErrInvalidDuration, days)
	}

	mu := e.locks.of(username)
	mu.Lock()
	defer mu.Unlock()

	if err := e.requireExists(ctx, username); err != nil {
		return nil, err
	}
	current, err := e.svc.Expiry(ctx, username)
	if err != nil {
		return nil, err
	}

	anchor := e.clock.Today()
	if current.After(anchor) {
		anchor = dateOnly(current)
	}
	date := anchor.AddDate(0, 0, days)

	if err := e.svc.SetExpiry(ctx, username, date); err != nil {
		return nil, err
	}
	return &ExpiryInfo{Username: username, Expiry: date}, nil
}

// Expiry returns the account's current expiry date. Reads share the
// per-username lock so they always see the last fully committed state.
func (e *Engine) Expiry(ctx context.Context, username string) (*ExpiryInfo, error) {
	mu := e.locks.of(username)
	mu.RLock()
	defer mu.RUnlock()

	if err := e.requireExists(ctx, username); err != nil {
		return nil, err
	}
	date, err := e.svc.Expiry(ctx, username)
	if err != nil {
		return nil, err
	}
	return &ExpiryInfo{Username: username, Expiry: date}, nil
}

func (e *Engine) requireExists(ctx context.Context, username string) error {
	exists, err := e.svc.Exists(ctx, username)
	if err != nil {
		return err
	}
	if !exists {
		return fmt.Errorf("%w: %s", common.ErrNotFound, username)
	}
	return nil
}

func (e *Engine) checkGroup(group string) error {
	if _, ok := e.groups[group]; !ok {
		return fmt.Errorf("%w: %q", common.ErrInvalidGroup, group)
	}
	return nil
}

// maxLoginsFor derives the concurrent-login cap from the "maxN" group naming
// convention.
func maxLoginsFor(group string) int {
	n, err := strconv.Atoi(strings.TrimPrefix(group, "max"))
	if err != nil {
		return 0
	}
	return n
}

func dateOnly(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.Local)
}
