// Package cli is a local administration console over the same command
// dispatcher the Telegram transport uses. It runs on the managed host
// itself, so the authorization gate is replaced with a local-operator
// allow-all: whoever can run the binary as root already owns the user
// database.
package cli

import (
	"bufio"
	"context"
	"log/slog"
	"os"

	"github.com/dmitrijs2005/sshkeeper/internal/account"
	"github.com/dmitrijs2005/sshkeeper/internal/audit"
	"github.com/dmitrijs2005/sshkeeper/internal/config"
	"github.com/dmitrijs2005/sshkeeper/internal/dispatch"
	"github.com/dmitrijs2005/sshkeeper/internal/logging"
	"github.com/dmitrijs2005/sshkeeper/internal/osuser"
)

type localGate struct{}

func (localGate) IsAdmin(int64) bool { return true }

type App struct {
	dispatcher *dispatch.Dispatcher
}

func NewApp(c *config.Config) *App {

	sl := slog.New(slog.NewTextHandler(os.Stderr, nil))
	logger := logging.NewSlogLogger(sl)

	svc := osuser.New(c.OSTimeout)
	engine := account.NewEngine(svc, c.Groups, c.UserPrefix)
	sink := audit.NewLogSink(logger)

	dispatcher := dispatch.New(engine, localGate{}, sink, logger, dispatch.ServerInfo{
		Address:  c.ServerAddress,
		Ports:    c.Ports,
		Location: c.Location,
	})

	return &App{dispatcher: dispatcher}
}

func (app *App) Run(ctx context.Context) {
	runREPL(ctx, app.dispatcher, bufio.NewScanner(os.Stdin), os.Stdout)
}
