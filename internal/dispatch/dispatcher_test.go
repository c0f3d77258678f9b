package dispatch

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dmitrijs2005/sshkeeper/internal/account"
	"github.com/dmitrijs2005/sshkeeper/internal/common"
	"github.com/dmitrijs2005/sshkeeper/internal/logging"
)

// --- stubs ---

// stubEngine records every call and answers from scripted fields.
type stubEngine struct {
	calls []string

	account *account.Account
	status  *account.Status
	creds   *account.Credentials
	group   *account.GroupInfo
	expiry  *account.ExpiryInfo
	err     error
}

func (s *stubEngine) called(format string, args ...any) {
	s.calls = append(s.calls, fmt.Sprintf(format, args...))
}

func (s *stubEngine) Create(_ context.Context, username, group string, expiry time.Time, secret string) (*account.Account, error) {
	s.called("create %s %s", username, group)
	return s.account, s.err
}

func (s *stubEngine) AutoCreate(_ context.Context, group string, days int) (*account.Account, error) {
	s.called("autocreate %s %d", group, days)
	return s.account, s.err
}

func (s *stubEngine) Delete(_ context.Context, username string) (*account.Status, error) {
	s.called("delete %s", username)
	return s.status, s.err
}

func (s *stubEngine) Lock(_ context.Context, username string) (*account.Status, error) {
	s.called("lock %s", username)
	return s.status, s.err
}

func (s *stubEngine) Unlock(_ context.Context, username string) (*account.Status, error) {
	s.called("unlock %s", username)
	return s.status, s.err
}

func (s *stubEngine) ChangePassword(_ context.Context, username, secret string) (*account.Credentials, error) {
	s.called("changepass %s", username)
	return s.creds, s.err
}

func (s *stubEngine) ChangeGroup(_ context.Context, username, group string) (*account.GroupInfo, error) {
	s.called("changegroup %s %s", username, group)
	return s.group, s.err
}

func (s *stubEngine) ChangeExpiry(_ context.Context, username string, date time.Time) (*account.ExpiryInfo, error) {
	s.called("changeexp %s %s", username, date.Format(time.DateOnly))
	return s.expiry, s.err
}

func (s *stubEngine) Renew(_ context.Context, username string, days int) (*account.ExpiryInfo, error) {
	s.called("renew %s %d", username, days)
	return s.expiry, s.err
}

func (s *stubEngine) Expiry(_ context.Context, username string) (*account.ExpiryInfo, error) {
	s.called("expiry %s", username)
	return s.expiry, s.err
}

type allowGate map[int64]bool

func (g allowGate) IsAdmin(id int64) bool { return g[id] }

type auditEntry struct {
	op, username, outcome string
}

type recordingSink struct {
	entries []auditEntry
}

func (r *recordingSink) Record(_ context.Context, op, username, outcome string) {
	r.entries = append(r.entries, auditEntry{op, username, outcome})
}

const (
	adminID    = int64(111)
	strangerID = int64(999)
)

func newTestDispatcher(e *stubEngine, sink *recordingSink) *Dispatcher {
	log := logging.NewSlogLogger(slog.New(slog.NewTextHandler(os.Stderr, nil)))
	d := New(e, allowGate{adminID: true}, sink, log, ServerInfo{
		Address:  "host.example",
		Ports:    []uint16{22, 2222},
		Location: "Helsinki",
	})
	d.render = func(token string) ([]byte, error) { return []byte("png:" + token), nil }
	return d
}

// --- tests ---

func TestHandle_UnauthorizedNeverTouchesEngine(t *testing.T) {
	e := &stubEngine{}
	sink := &recordingSink{}
	d := newTestDispatcher(e, sink)

	reply := d.Handle(context.Background(), Command{Name: "userdel", Args: []string{"alice"}, From: strangerID})

	assert.Equal(t, "unauthorized", reply.Text)
	assert.Nil(t, reply.PNG)
	assert.Empty(t, e.calls, "engine must not be reached on denial")

	require.Len(t, sink.entries, 1)
	assert.Equal(t, auditEntry{"userdel", "", "unauthorized"}, sink.entries[0])
}

func TestHandle_UnauthorizedReplyIdenticalForAnyTarget(t *testing.T) {
	e := &stubEngine{}
	d := newTestDispatcher(e, &recordingSink{})

	a := d.Handle(context.Background(), Command{Name: "userdel", Args: []string{"present-user"}, From: strangerID})
	b := d.Handle(context.Background(), Command{Name: "userdel", Args: []string{"absent-user"}, From: strangerID})

	assert.Equal(t, a, b, "denial must not reveal whether the account exists")
}

func TestHandle_HelpIsOpenToEveryone(t *testing.T) {
	e := &stubEngine{}
	sink := &recordingSink{}
	d := newTestDispatcher(e, sink)

	reply := d.Handle(context.Background(), Command{Name: "help", From: strangerID})

	assert.Contains(t, reply.Text, "/autoadd")
	assert.Empty(t, e.calls)
	assert.Empty(t, sink.entries)
}

func TestHandle_ArityErrorsSkipEngine(t *testing.T) {
	tests := []struct {
		name string
		cmd  Command
	}{
		{"getexp no args", Command{Name: "getexp", From: adminID}},
		{"lock extra args", Command{Name: "lock", Args: []string{"a", "b"}, From: adminID}},
		{"useradd three args", Command{Name: "useradd", Args: []string{"a", "max1", "2024-01-01"}, From: adminID}},
		{"autoadd one arg", Command{Name: "autoadd", Args: []string{"max1"}, From: adminID}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			e := &stubEngine{}
			d := newTestDispatcher(e, &recordingSink{})

			reply := d.Handle(context.Background(), tt.cmd)

			assert.Contains(t, reply.Text, "usage:")
			assert.Empty(t, e.calls)
		})
	}
}

func TestHandle_BadArgumentTypesSkipEngine(t *testing.T) {
	tests := []struct {
		name string
		cmd  Command
		want string
	}{
		{"renew non-numeric days", Command{Name: "renew", Args: []string{"alice", "soon"}, From: adminID}, "invalid number of days"},
		{"changeexp bad date", Command{Name: "changeexp", Args: []string{"alice", "01/02/2024"}, From: adminID}, "invalid expiry date"},
		{"useradd bad date", Command{Name: "useradd", Args: []string{"alice", "max1", "tomorrow", "pw"}, From: adminID}, "invalid expiry date"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			e := &stubEngine{}
			d := newTestDispatcher(e, &recordingSink{})

			reply := d.Handle(context.Background(), tt.cmd)

			assert.Contains(t, reply.Text, tt.want)
			assert.Empty(t, e.calls)
		})
	}
}

func TestHandle_GetExpiry(t *testing.T) {
	e := &stubEngine{expiry: &account.ExpiryInfo{Username: "alice", Expiry: time.Date(2024, 2, 9, 0, 0, 0, 0, time.Local)}}
	d := newTestDispatcher(e, &recordingSink{})

	reply := d.Handle(context.Background(), Command{Name: "getexp", Args: []string{"alice"}, From: adminID})

	assert.Equal(t, "username: alice\nexpiry date: 2024-02-09", reply.Text)
	assert.Nil(t, reply.PNG)
}

func TestHandle_GetExpiry_Never(t *testing.T) {
	e := &stubEngine{expiry: &account.ExpiryInfo{Username: "alice"}}
	d := newTestDispatcher(e, &recordingSink{})

	reply := d.Handle(context.Background(), Command{Name: "getexp", Args: []string{"alice"}, From: adminID})

	assert.Contains(t, reply.Text, "expiry date: never")
}

func TestHandle_DeleteSuccessAudited(t *testing.T) {
	e := &stubEngine{status: &account.Status{Username: "alice", State: "deleted"}}
	sink := &recordingSink{}
	d := newTestDispatcher(e, sink)

	reply := d.Handle(context.Background(), Command{Name: "userdel", Args: []string{"alice"}, From: adminID})

	assert.Equal(t, "username: alice\nstatus: deleted", reply.Text)
	require.Len(t, sink.entries, 1)
	assert.Equal(t, auditEntry{"userdel", "alice", "ok"}, sink.entries[0])
}

func TestHandle_DeleteFailureAudited(t *testing.T) {
	e := &stubEngine{err: common.ErrNotFound}
	sink := &recordingSink{}
	d := newTestDispatcher(e, sink)

	reply := d.Handle(context.Background(), Command{Name: "userdel", Args: []string{"ghost"}, From: adminID})

	assert.Equal(t, "user not found", reply.Text)
	require.Len(t, sink.entries, 1)
	assert.Equal(t, "user not found", sink.entries[0].outcome)
}

func TestHandle_UserAddAttachesBundle(t *testing.T) {
	e := &stubEngine{account: &account.Account{
		Username: "alice",
		Group:    "max2",
		Expiry:   time.Date(2024, 1, 10, 0, 0, 0, 0, time.Local),
		Secret:   "s3cr3t",
	}}
	sink := &recordingSink{}
	d := newTestDispatcher(e, sink)

	reply := d.Handle(context.Background(), Command{
		Name: "useradd",
		Args: []string{"alice", "max2", "2024-01-10", "s3cr3t"},
		From: adminID,
	})

	assert.Contains(t, reply.Text, "username: alice")
	assert.Contains(t, reply.Text, "max logins: 2")
	assert.Contains(t, reply.Text, "host: host.example")
	assert.Contains(t, reply.Text, "token:")
	require.NotNil(t, reply.PNG)

	// the attached image encodes the token from the reply text
	token := reply.Text[strings.LastIndex(reply.Text, "\n")+1:]
	assert.Equal(t, "png:"+token, string(reply.PNG))
}

func TestHandle_AutoAddRendersBundle(t *testing.T) {
	e := &stubEngine{account: &account.Account{
		Username: "ssh4x7k2p",
		Group:    "max1",
		Expiry:   time.Date(2024, 2, 4, 0, 0, 0, 0, time.Local),
		Secret:   "generated-secret",
	}}
	d := newTestDispatcher(e, &recordingSink{})

	reply := d.Handle(context.Background(), Command{Name: "autoadd", Args: []string{"max1", "30"}, From: adminID})

	assert.Equal(t, []string{"autocreate max1 30"}, e.calls)
	require.NotNil(t, reply.PNG)
}

func TestHandle_RenderFailureDegradesToText(t *testing.T) {
	e := &stubEngine{account: &account.Account{
		Username: "alice",
		Group:    "max1",
		Expiry:   time.Date(2024, 1, 10, 0, 0, 0, 0, time.Local),
		Secret:   "pw",
	}}
	d := newTestDispatcher(e, &recordingSink{})
	d.render = func(string) ([]byte, error) {
		return nil, fmt.Errorf("%w: 5000 chars", common.ErrTokenTooLong)
	}

	reply := d.Handle(context.Background(), Command{
		Name: "useradd",
		Args: []string{"alice", "max1", "2024-01-10", "pw"},
		From: adminID,
	})

	assert.Nil(t, reply.PNG, "a cropped or partial image must never be attached")
	assert.Contains(t, reply.Text, "do not fit into a QR code")
	assert.Contains(t, reply.Text, "username: alice", "the account was still created")
}

func TestHandle_ShareUsesLiveExpiry(t *testing.T) {
	e := &stubEngine{expiry: &account.ExpiryInfo{Username: "alice", Expiry: time.Date(2024, 6, 1, 0, 0, 0, 0, time.Local)}}
	d := newTestDispatcher(e, &recordingSink{})

	reply := d.Handle(context.Background(), Command{Name: "share", Args: []string{"alice", "pw"}, From: adminID})

	assert.Equal(t, []string{"expiry alice"}, e.calls)
	require.NotNil(t, reply.PNG)
}

func TestHandle_AuditNeverSeesSecrets(t *testing.T) {
	const secret = "super-secret-pw"

	e := &stubEngine{creds: &account.Credentials{Username: "alice", Secret: secret},
		expiry: &account.ExpiryInfo{Username: "alice", Expiry: time.Date(2024, 6, 1, 0, 0, 0, 0, time.Local)}}
	sink := &recordingSink{}
	d := newTestDispatcher(e, sink)

	d.Handle(context.Background(), Command{Name: "changepass", Args: []string{"alice", secret}, From: adminID})

	require.NotEmpty(t, sink.entries)
	for _, entry := range sink.entries {
		assert.NotContains(t, entry.op, secret)
		assert.NotContains(t, entry.username, secret)
		assert.NotContains(t, entry.outcome, secret)
	}
}

func TestHandle_UnknownCommand(t *testing.T) {
	e := &stubEngine{}
	d := newTestDispatcher(e, &recordingSink{})

	reply := d.Handle(context.Background(), Command{Name: "frobnicate", From: adminID})

	assert.Contains(t, reply.Text, "unknown command")
	assert.Empty(t, e.calls)
}
