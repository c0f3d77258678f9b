// Package osuser implements account.OSUserService by shelling out to the
// host's shadow-utils tools (useradd, usermod, userdel, chage, passwd).
// Every call runs under a bounded timeout; an expired deadline surfaces as
// common.ErrUnderlyingSystem rather than an indefinite hang.
package osuser

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os/exec"
	"regexp"
	"strings"
	"time"

	"github.com/dmitrijs2005/sshkeeper/internal/common"
)

// loginShell restricts created accounts to a restricted shell; the accounts
// exist for port forwarding, not interactive use.
const loginShell = "/bin/rbash"

type runResult struct {
	stdout   []byte
	exitCode int
}

// runner is a test seam over process execution.
type runner func(ctx context.Context, name string, args ...string) (runResult, error)

func execRun(ctx context.Context, name string, args ...string) (runResult, error) {
	cmd := exec.CommandContext(ctx, name, args...)
	var stdout bytes.Buffer
	cmd.Stdout = &stdout
	if err := cmd.Run(); err != nil {
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			return runResult{stdout: stdout.Bytes(), exitCode: exitErr.ExitCode()}, nil
		}
		return runResult{}, err
	}
	return runResult{stdout: stdout.Bytes()}, nil
}

// Service shells out to the host's user-management commands.
type Service struct {
	timeout time.Duration
	run     runner
}

func New(timeout time.Duration) *Service {
	return &Service{timeout: timeout, run: execRun}
}

func (s *Service) CreateAccount(ctx context.Context, username, group, secret string, expiry time.Time) error {
	hash, err := hashSecret(secret)
	if err != nil {
		return err
	}
	args := []string{"-p", hash, "-s", loginShell, "-g", group}
	if !expiry.IsZero() {
		args = append(args, "-e", expiry.Format(time.DateOnly))
	}
	args = append(args, username)
	_, err = s.exec(ctx, "useradd", args...)
	return err
}

func (s *Service) DeleteAccount(ctx context.Context, username string) error {
	_, err := s.exec(ctx, "userdel", username)
	return err
}

func (s *Service) SetLocked(ctx context.Context, username string, locked bool) error {
	flag := "-U"
	if locked {
		flag = "-L"
	}
	_, err := s.exec(ctx, "usermod", flag, username)
	return err
}

func (s *Service) SetPassword(ctx context.Context, username, secret string) error {
	hash, err := hashSecret(secret)
	if err != nil {
		return err
	}
	_, err = s.exec(ctx, "usermod", "-p", hash, username)
	return err
}

func (s *Service) SetExpiry(ctx context.Context, username string, expiry time.Time) error {
	date := "-1" // chage's spelling of "never"
	if !expiry.IsZero() {
		date = expiry.Format(time.DateOnly)
	}
	_, err := s.exec(ctx, "chage", "-E", date, username)
	return err
}

func (s *Service) SetGroup(ctx context.Context, username, group string) error {
	_, err := s.exec(ctx, "usermod", "-g", group, username)
	return err
}

func (s *Service) Exists(ctx context.Context, username string) (bool, error) {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	// id exits non-zero for an unknown user; that is an answer, not a failure.
	res, err := s.run(ctx, "id", "-u", username)
	if err != nil {
		return false, s.runErr(ctx, "id", err)
	}
	return res.exitCode == 0, nil
}

// passwdStatusRe captures the status field of `passwd -S`:
// "alice L 2024-01-05 0 99999 7 -1".
var passwdStatusRe = regexp.MustCompile(`^\S+\s+(\S+)`)

func (s *Service) Locked(ctx context.Context, username string) (bool, error) {
	out, err := s.exec(ctx, "passwd", "-S", username)
	if err != nil {
		return false, err
	}
	m := passwdStatusRe.FindStringSubmatch(strings.TrimSpace(string(out)))
	if m == nil {
		return false, fmt.Errorf("%w: unexpected passwd -S output", common.ErrUnderlyingSystem)
	}
	// "L" = locked, "NP" = no password, "P" = usable password.
	return m[1] == "L" || m[1] == "LK", nil
}

// chageExpiresRe captures the human-readable expiry line of `chage -l`.
var chageExpiresRe = regexp.MustCompile(`Account expires\s*:\s*(.+)`)

func (s *Service) Expiry(ctx context.Context, username string) (time.Time, error) {
	out, err := s.exec(ctx, "chage", "-l", username)
	if err != nil {
		return time.Time{}, err
	}
	m := chageExpiresRe.FindStringSubmatch(string(out))
	if m == nil {
		return time.Time{}, fmt.Errorf("%w: unexpected chage -l output", common.ErrUnderlyingSystem)
	}
	value := strings.TrimSpace(m[1])
	if value == "never" {
		return time.Time{}, nil
	}
	date, err := time.ParseInLocation("Jan 02, 2006", value, time.Local)
	if err != nil {
		return time.Time{}, fmt.Errorf("%w: cannot parse expiry %q", common.ErrUnderlyingSystem, value)
	}
	return date, nil
}

// exec runs one tool under the configured timeout and maps its exit code to
// the error taxonomy.
func (s *Service) exec(ctx context.Context, name string, args ...string) ([]byte, error) {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	res, err := s.run(ctx, name, args...)
	if err != nil {
		return nil, s.runErr(ctx, name, err)
	}
	if res.exitCode != 0 {
		return nil, exitCodeErr(name, res.exitCode)
	}
	return res.stdout, nil
}

func (s *Service) runErr(ctx context.Context, name string, err error) error {
	if errors.Is(ctx.Err(), context.DeadlineExceeded) {
		return fmt.Errorf("%w: %s timed out after %s", common.ErrUnderlyingSystem, name, s.timeout)
	}
	return fmt.Errorf("%w: running %s: %v", common.ErrUnderlyingSystem, name, err)
}

// exitCodeErr translates shadow-utils exit codes. The values are shared
// across useradd, usermod, userdel and chage.
func exitCodeErr(name string, code int) error {
	switch code {
	case 1:
		return fmt.Errorf("%w: %s: permission denied", common.ErrUnderlyingSystem, name)
	case 3:
		return fmt.Errorf("%w: %s: invalid argument", common.ErrUnderlyingSystem, name)
	case 6:
		return fmt.Errorf("%w: user or group does not exist", common.ErrNotFound)
	case 9:
		return fmt.Errorf("%w: username already in use", common.ErrAlreadyExists)
	default:
		return fmt.Errorf("%w: %s exited with code %d", common.ErrUnderlyingSystem, name, code)
	}
}
