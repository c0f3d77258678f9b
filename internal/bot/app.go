// Package bot runs the Telegram-facing application: it wires the engine,
// gate, audit sink and dispatcher together, long-polls for updates, and
// handles graceful shutdown.
package bot

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"sync"
	"syscall"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"github.com/dmitrijs2005/sshkeeper/internal/account"
	"github.com/dmitrijs2005/sshkeeper/internal/audit"
	"github.com/dmitrijs2005/sshkeeper/internal/authz"
	"github.com/dmitrijs2005/sshkeeper/internal/config"
	"github.com/dmitrijs2005/sshkeeper/internal/dispatch"
	"github.com/dmitrijs2005/sshkeeper/internal/logging"
	"github.com/dmitrijs2005/sshkeeper/internal/osuser"
)

type App struct {
	config     *config.Config
	logger     logging.Logger
	gate       *authz.Gate
	dispatcher *dispatch.Dispatcher
}

func NewApp(c *config.Config) (*App, error) {

	sl := slog.New(slog.NewJSONHandler(os.Stdout, nil))
	logger := logging.NewSlogLogger(sl)

	svc := osuser.New(c.OSTimeout)
	engine := account.NewEngine(svc, c.Groups, c.UserPrefix)
	gate := authz.NewGate(c.AdminIDs)
	sink := audit.NewLogSink(logger)

	dispatcher := dispatch.New(engine, gate, sink, logger, dispatch.ServerInfo{
		Address:  c.ServerAddress,
		Ports:    c.Ports,
		Location: c.Location,
	})

	return &App{config: c, logger: logger, gate: gate, dispatcher: dispatcher}, nil
}

func (app *App) initSignalHandler(cancelFunc context.CancelFunc) {
	// Channel to catch OS signals.
	sigs := make(chan os.Signal, 1)
	signal.Notify(sigs, syscall.SIGINT, syscall.SIGTERM, syscall.SIGQUIT)

	go func() {
		<-sigs
		cancelFunc()
	}()
}

// Run long-polls Telegram until the context is cancelled or a signal
// arrives. Each command message is handled in its own goroutine: the engine
// serializes operations per username, so independent accounts proceed
// concurrently while same-account commands queue up.
func (app *App) Run(ctx context.Context) error {

	ctx, cancelFunc := context.WithCancel(ctx)
	defer cancelFunc()

	app.logger.Info(ctx, "Starting bot...")

	app.initSignalHandler(cancelFunc)

	api, err := tgbotapi.NewBotAPI(app.config.BotToken)
	if err != nil {
		return fmt.Errorf("telegram init error: %w", err)
	}
	app.logger.Info(ctx, "authorized", "bot", api.Self.UserName)

	u := tgbotapi.NewUpdate(0)
	u.Timeout = 30
	updates := api.GetUpdatesChan(u)

	var wg sync.WaitGroup
	for {
		select {
		case <-ctx.Done():
			api.StopReceivingUpdates()
			wg.Wait()
			return nil
		case update, ok := <-updates:
			if !ok {
				wg.Wait()
				return nil
			}
			msg := update.Message
			if msg == nil || !msg.IsCommand() {
				continue
			}
			wg.Add(1)
			go func(msg *tgbotapi.Message) {
				defer wg.Done()
				app.handleMessage(ctx, api, msg)
			}(msg)
		}
	}
}

func (app *App) handleMessage(ctx context.Context, api *tgbotapi.BotAPI, msg *tgbotapi.Message) {
	cmd := dispatch.Command{
		Name: msg.Command(),
		Args: strings.Fields(msg.CommandArguments()),
		From: msg.Chat.ID,
	}

	reply := app.dispatcher.Handle(ctx, cmd)

	if reply.PNG != nil {
		photo := tgbotapi.NewPhoto(msg.Chat.ID, tgbotapi.FileBytes{
			Name:  "credentials.png",
			Bytes: reply.PNG,
		})
		photo.Caption = reply.Text
		if _, err := api.Send(photo); err != nil {
			app.logger.Error(ctx, "sending photo reply", "chat", msg.Chat.ID, "err", err)
		}
	} else if _, err := api.Send(tgbotapi.NewMessage(msg.Chat.ID, reply.Text)); err != nil {
		app.logger.Error(ctx, "sending reply", "chat", msg.Chat.ID, "err", err)
	}

	// Keep an operator-visible trail: forward handled admin commands to the
	// log chat. The forwarded message holds the command only, never the
	// generated credentials.
	if app.config.LogChatID != 0 && app.gate.IsAdmin(msg.Chat.ID) {
		forward := tgbotapi.NewForward(app.config.LogChatID, msg.Chat.ID, msg.MessageID)
		if _, err := api.Send(forward); err != nil {
			app.logger.Warn(ctx, "forwarding to log chat", "err", err)
		}
	}
}
