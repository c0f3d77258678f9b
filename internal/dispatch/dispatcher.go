// Package dispatch maps parsed chat commands onto account lifecycle calls.
// It is the only layer that translates typed errors into user-facing text
// and the only one that decides what reaches the audit sink.
package dispatch

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/dmitrijs2005/sshkeeper/internal/account"
	"github.com/dmitrijs2005/sshkeeper/internal/audit"
	"github.com/dmitrijs2005/sshkeeper/internal/bundle"
	"github.com/dmitrijs2005/sshkeeper/internal/common"
	"github.com/dmitrijs2005/sshkeeper/internal/logging"
)

// Command is one already-tokenized chat command with its requester identity.
type Command struct {
	Name string
	Args []string
	From int64
}

// Reply is what goes back to the chat transport. PNG is non-nil only for
// commands that hand a credential bundle to an end user.
type Reply struct {
	Text string
	PNG  []byte
}

// lifecycle is the engine surface the dispatcher needs. *account.Engine
// satisfies it; tests provide a stub.
type lifecycle interface {
	Create(ctx context.Context, username, group string, expiry time.Time, secret string) (*account.Account, error)
	AutoCreate(ctx context.Context, group string, days int) (*account.Account, error)
	Delete(ctx context.Context, username string) (*account.Status, error)
	Lock(ctx context.Context, username string) (*account.Status, error)
	Unlock(ctx context.Context, username string) (*account.Status, error)
	ChangePassword(ctx context.Context, username, secret string) (*account.Credentials, error)
	ChangeGroup(ctx context.Context, username, group string) (*account.GroupInfo, error)
	ChangeExpiry(ctx context.Context, username string, date time.Time) (*account.ExpiryInfo, error)
	Renew(ctx context.Context, username string, days int) (*account.ExpiryInfo, error)
	Expiry(ctx context.Context, username string) (*account.ExpiryInfo, error)
}

type adminChecker interface {
	IsAdmin(id int64) bool
}

// ServerInfo is the connection detail embedded into credential bundles.
type ServerInfo struct {
	Address  string
	Ports    []uint16
	Location string
}

// Dispatcher wires the gate, the engine, the codec and the audit sink into
// one Handle call per inbound command.
type Dispatcher struct {
	engine lifecycle
	gate   adminChecker
	sink   audit.Sink
	log    logging.Logger
	server ServerInfo

	// render is a seam for tests; defaults to bundle.RenderQR.
	render func(token string) ([]byte, error)
}

func New(engine lifecycle, gate adminChecker, sink audit.Sink, log logging.Logger, server ServerInfo) *Dispatcher {
	return &Dispatcher{
		engine: engine,
		gate:   gate,
		sink:   sink,
		log:    log,
		server: server,
		render: bundle.RenderQR,
	}
}

const helpText = `supported commands:
/help - show this text
/getexp <username> - get user's expiry date
/lock <username> - lock user
/unlock <username> - unlock user
/userdel <username> - delete user
/changemax <username> <group> - change user's max logins
/changepass <username> <password> - change user's password
/changeexp <username> <YYYY-MM-DD> - change user's expiry date
/renew <username> <days> - extend user's expiry date
/useradd <username> <group> <YYYY-MM-DD> <password> - add user manually
/autoadd <group> <days> - add user automatically
/share <username> <password> - render a credential QR for an existing user`

// Handle executes one command to completion and returns the reply. The gate
// is checked before anything else: an unauthorized requester gets a fixed
// reply that reveals nothing, and the engine is never touched. Argument
// arity and types are validated next, also before any engine call.
func (d *Dispatcher) Handle(ctx context.Context, cmd Command) Reply {
	if cmd.Name == "help" {
		return Reply{Text: helpText}
	}

	if !d.gate.IsAdmin(cmd.From) {
		d.sink.Record(ctx, cmd.Name, "", "unauthorized")
		return Reply{Text: "unauthorized"}
	}

	switch cmd.Name {
	case "getexp":
		return d.getExpiry(ctx, cmd.Args)
	case "lock":
		return d.lockUnlock(ctx, "lock", cmd.Args)
	case "unlock":
		return d.lockUnlock(ctx, "unlock", cmd.Args)
	case "userdel":
		return d.delete(ctx, cmd.Args)
	case "changemax":
		return d.changeGroup(ctx, cmd.Args)
	case "changepass":
		return d.changePassword(ctx, cmd.Args)
	case "changeexp":
		return d.changeExpiry(ctx, cmd.Args)
	case "renew":
		return d.renew(ctx, cmd.Args)
	case "useradd":
		return d.create(ctx, cmd.Args)
	case "autoadd":
		return d.autoCreate(ctx, cmd.Args)
	case "share":
		return d.share(ctx, cmd.Args)
	default:
		return Reply{Text: fmt.Sprintf("unknown command %q, see /help", cmd.Name)}
	}
}

func (d *Dispatcher) getExpiry(ctx context.Context, args []string) Reply {
	if len(args) != 1 {
		return usage("/getexp <username>")
	}
	info, err := d.engine.Expiry(ctx, args[0])
	if err != nil {
		return Reply{Text: errText(err)}
	}
	return Reply{Text: fmt.Sprintf("username: %s\nexpiry date: %s", info.Username, formatDate(info.Expiry))}
}

func (d *Dispatcher) lockUnlock(ctx context.Context, op string, args []string) Reply {
	if len(args) != 1 {
		return usage("/" + op + " <username>")
	}
	username := args[0]

	var st *account.Status
	var err error
	if op == "lock" {
		st, err = d.engine.Lock(ctx, username)
	} else {
		st, err = d.engine.Unlock(ctx, username)
	}
	d.audit(ctx, op, username, err)
	if err != nil {
		return Reply{Text: errText(err)}
	}
	return Reply{Text: fmt.Sprintf("username: %s\nstatus: %s", st.Username, st.State)}
}

func (d *Dispatcher) delete(ctx context.Context, args []string) Reply {
	if len(args) != 1 {
		return usage("/userdel <username>")
	}
	st, err := d.engine.Delete(ctx, args[0])
	d.audit(ctx, "userdel", args[0], err)
	if err != nil {
		return Reply{Text: errText(err)}
	}
	return Reply{Text: fmt.Sprintf("username: %s\nstatus: %s", st.Username, st.State)}
}

func (d *Dispatcher) changeGroup(ctx context.Context, args []string) Reply {
	if len(args) != 2 {
		return usage("/changemax <username> <group>")
	}
	gi, err := d.engine.ChangeGroup(ctx, args[0], args[1])
	d.audit(ctx, "changemax", args[0], err)
	if err != nil {
		return Reply{Text: errText(err)}
	}
	return Reply{Text: fmt.Sprintf("username: %s\nmax logins: %d", gi.Username, gi.MaxLogins)}
}

func (d *Dispatcher) changePassword(ctx context.Context, args []string) Reply {
	if len(args) != 2 {
		return usage("/changepass <username> <password>")
	}
	creds, err := d.engine.ChangePassword(ctx, args[0], args[1])
	d.audit(ctx, "changepass", args[0], err)
	if err != nil {
		return Reply{Text: errText(err)}
	}

	expiry := time.Time{}
	if info, err := d.engine.Expiry(ctx, creds.Username); err == nil {
		expiry = info.Expiry
	}
	header := fmt.Sprintf("username: %s\npassword: %s", creds.Username, creds.Secret)
	return d.credentialReply(ctx, header, creds.Username, creds.Secret, expiry)
}

func (d *Dispatcher) changeExpiry(ctx context.Context, args []string) Reply {
	if len(args) != 2 {
		return usage("/changeexp <username> <YYYY-MM-DD>")
	}
	date, err := time.ParseInLocation(time.DateOnly, args[1], time.Local)
	if err != nil {
		return Reply{Text: errText(fmt.Errorf("%w: %q", common.ErrInvalidDate, args[1]))}
	}
	info, err := d.engine.ChangeExpiry(ctx, args[0], date)
	d.audit(ctx, "changeexp", args[0], err)
	if err != nil {
		return Reply{Text: errText(err)}
	}
	return Reply{Text: fmt.Sprintf("username: %s\nexpiry date: %s", info.Username, formatDate(info.Expiry))}
}

func (d *Dispatcher) renew(ctx context.Context, args []string) Reply {
	if len(args) != 2 {
		return usage("/renew <username> <days>")
	}
	days, err := strconv.Atoi(args[1])
	if err != nil {
		return Reply{Text: errText(fmt.Errorf("%w: %q", common.ErrInvalidDuration, args[1]))}
	}
	info, err := d.engine.Renew(ctx, args[0], days)
	d.audit(ctx, "renew", args[0], err)
	if err != nil {
		return Reply{Text: errText(err)}
	}
	return Reply{Text: fmt.Sprintf("username: %s\nexpiry date: %s", info.Username, formatDate(info.Expiry))}
}

func (d *Dispatcher) create(ctx context.Context, args []string) Reply {
	if len(args) != 4 {
		return usage("/useradd <username> <group> <YYYY-MM-DD> <password>")
	}
	date, err := time.ParseInLocation(time.DateOnly, args[2], time.Local)
	if err != nil {
		return Reply{Text: errText(fmt.Errorf("%w: %q", common.ErrInvalidDate, args[2]))}
	}
	acc, err := d.engine.Create(ctx, args[0], args[1], date, args[3])
	d.audit(ctx, "useradd", args[0], err)
	if err != nil {
		return Reply{Text: errText(err)}
	}
	return d.credentialReply(ctx, d.accountHeader(acc), acc.Username, acc.Secret, acc.Expiry)
}

func (d *Dispatcher) autoCreate(ctx context.Context, args []string) Reply {
	if len(args) != 2 {
		return usage("/autoadd <group> <days>")
	}
	days, err := strconv.Atoi(args[1])
	if err != nil {
		return Reply{Text: errText(fmt.Errorf("%w: %q", common.ErrInvalidDuration, args[1]))}
	}
	acc, err := d.engine.AutoCreate(ctx, args[0], days)
	d.audit(ctx, "autoadd", "", err)
	if err != nil {
		return Reply{Text: errText(err)}
	}
	return d.credentialReply(ctx, d.accountHeader(acc), acc.Username, acc.Secret, acc.Expiry)
}

// share renders a credential bundle for an existing account without mutating
// it. The engine never retains secrets, so the operator supplies the
// password; the expiry date comes from the live account.
func (d *Dispatcher) share(ctx context.Context, args []string) Reply {
	if len(args) != 2 {
		return usage("/share <username> <password>")
	}
	info, err := d.engine.Expiry(ctx, args[0])
	d.audit(ctx, "share", args[0], err)
	if err != nil {
		return Reply{Text: errText(err)}
	}
	header := fmt.Sprintf("username: %s", info.Username)
	return d.credentialReply(ctx, header, info.Username, args[1], info.Expiry)
}

// credentialReply composes the bundle, encodes it and attaches a QR image.
// Encoding or rendering failures degrade to a text-only reply that still
// reports the operation's success; data is never silently truncated to fit.
func (d *Dispatcher) credentialReply(ctx context.Context, header, username, secret string, expiry time.Time) Reply {
	b := &bundle.Bundle{
		ServerAddress: d.server.Address,
		Location:      d.server.Location,
		Username:      username,
		Secret:        secret,
		Ports:         d.server.Ports,
		Expiry:        expiry,
	}

	text := header + "\n\n" + d.serverInfoText()

	token, err := bundle.Encode(b)
	if err != nil {
		d.log.Error(ctx, "bundle encode failed", "username", username, "err", err)
		return Reply{Text: text + "\n\n" + errText(err)}
	}
	png, err := d.render(token)
	if err != nil {
		d.log.Error(ctx, "bundle render failed", "username", username, "err", err)
		return Reply{Text: text + "\n\n" + errText(err)}
	}

	d.log.Info(ctx, "credential bundle rendered", "username", username)
	return Reply{Text: text + "\n\ntoken:\n" + token, PNG: png}
}

func (d *Dispatcher) accountHeader(acc *account.Account) string {
	return fmt.Sprintf("username: %s\npassword: %s\nmax logins: %s\nexpiry date: %s",
		acc.Username, acc.Secret, strings.TrimPrefix(acc.Group, "max"), formatDate(acc.Expiry))
}

func (d *Dispatcher) serverInfoText() string {
	ports := make([]string, len(d.server.Ports))
	for i, p := range d.server.Ports {
		ports[i] = strconv.Itoa(int(p))
	}
	return fmt.Sprintf("host: %s\nlocation: %s\nports: %s",
		d.server.Address, d.server.Location, strings.Join(ports, ", "))
}

// audit records every mutating attempt, success or failure. The username and
// outcome label carry no secret material.
func (d *Dispatcher) audit(ctx context.Context, op, username string, err error) {
	outcome := "ok"
	if err != nil {
		outcome = errText(err)
	}
	d.sink.Record(ctx, op, username, outcome)
}

func usage(u string) Reply {
	return Reply{Text: "usage: " + u}
}

func formatDate(t time.Time) string {
	if t.IsZero() {
		return "never"
	}
	return t.Format(time.DateOnly)
}

// errText translates a typed failure into user-facing text. It is the single
// place where errors become words; nothing here ever includes a secret.
func errText(err error) string {
	switch {
	case errors.Is(err, common.ErrNotFound):
		return "user not found"
	case errors.Is(err, common.ErrAlreadyExists):
		return "user already exists"
	case errors.Is(err, common.ErrInvalidUsername):
		return "invalid username"
	case errors.Is(err, common.ErrInvalidGroup):
		return "unknown group"
	case errors.Is(err, common.ErrInvalidDate):
		return "invalid expiry date, expected YYYY-MM-DD"
	case errors.Is(err, common.ErrInvalidDuration):
		return "invalid number of days"
	case errors.Is(err, common.ErrExhaustedNamespace):
		return "could not generate a unique username, try again"
	case errors.Is(err, common.ErrTokenTooLong):
		return "credentials do not fit into a QR code"
	case errors.Is(err, common.ErrCodec):
		return "could not encode credentials"
	case errors.Is(err, common.ErrUnderlyingSystem):
		return "host user management failed, check server logs"
	default:
		return "unexpected error"
	}
}
