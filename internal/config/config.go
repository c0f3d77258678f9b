// Package config handles configuration for the sshkeeper bot, including
// defaults, JSON overlay, and command-line flags.
package config

import "time"

// Config holds runtime settings for the account-management bot.
//
// Fields:
//   - BotToken: Telegram bot API token.
//   - ServerAddress: host end users connect to; embedded in credential bundles.
//   - Ports: SSH ports offered to end users (first one is the advertised default).
//   - Location: free-text server location label shown to end users.
//   - AdminIDs: chat ids allowed to run account commands.
//   - LogChatID: chat that receives a forwarded copy of every handled command.
//   - UserPrefix: prefix for automatically generated usernames.
//   - Groups: OS groups accounts may belong to; group "maxN" caps logins at N.
//   - OSTimeout: upper bound on any single host user-management call.
type Config struct {
	BotToken      string
	ServerAddress string
	Ports         []uint16
	Location      string
	AdminIDs      []int64
	LogChatID     int64
	UserPrefix    string
	Groups        []string
	OSTimeout     time.Duration
}

// LoadDefaults populates Config with development defaults.
// NOTE: The bot token and admin list must be overridden for any real host.
func (c *Config) LoadDefaults() {
	c.BotToken = ""
	c.ServerAddress = "127.0.0.1"
	c.Ports = []uint16{22}
	c.Location = "local"
	c.AdminIDs = nil
	c.LogChatID = 0
	c.UserPrefix = "ssh"
	c.Groups = []string{"max1", "max2", "max3"}
	c.OSTimeout = 10 * time.Second
}

// LoadConfig builds a Config by applying defaults, then overlaying values
// from an optional JSON file and finally from command-line flags.
func LoadConfig() *Config {
	cfg := &Config{}
	cfg.LoadDefaults()
	parseJson(cfg)
	parseFlags(cfg)
	return cfg
}
