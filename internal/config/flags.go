package config

import (
	"flag"
	"os"
	"time"

	"github.com/dmitrijs2005/sshkeeper/internal/flagx"
)

// parseFlags populates selected Config fields from command-line flags.
//
// Supported flags (short forms):
//
//	-t string   Telegram bot token
//	-a string   server address embedded in credential bundles
//	-l string   server location label
//	-p string   auto-generated username prefix
//	-g int      log chat id
//	-o int      OS call timeout, seconds
//
// List-valued settings (ports, admin ids, groups) come from the JSON file
// only. The function filters os.Args to the flags it recognizes using
// flagx.FilterArgs, avoiding collisions with other components.
func parseFlags(config *Config) {
	args := flagx.FilterArgs(os.Args[1:], []string{"-t", "-a", "-l", "-p", "-g", "-o"})

	fs := flag.NewFlagSet("main", flag.ContinueOnError)

	fs.StringVar(&config.BotToken, "t", config.BotToken, "telegram bot token")
	fs.StringVar(&config.ServerAddress, "a", config.ServerAddress, "server address for credential bundles")
	fs.StringVar(&config.Location, "l", config.Location, "server location label")
	fs.StringVar(&config.UserPrefix, "p", config.UserPrefix, "auto-generated username prefix")
	fs.Int64Var(&config.LogChatID, "g", config.LogChatID, "log chat id")

	osTimeout := fs.Int("o", int(config.OSTimeout.Seconds()), "OS call timeout (in seconds)")

	if err := fs.Parse(args); err != nil {
		panic(err)
	}

	config.OSTimeout = time.Duration(*osTimeout) * time.Second
}
