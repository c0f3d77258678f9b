package config

import (
	"encoding/json"
	"os"
	"time"

	"github.com/dmitrijs2005/sshkeeper/internal/flagx"
)

// JsonConfig defines a configuration structure tailored for JSON
// unmarshalling. It is an intermediate DTO used only for reading the config
// file; after unmarshalling, its fields are copied into the runtime Config.
//
// The file layout matches the original /etc/sshkeeper.json shape:
//
//	{
//	  "bot_token": "...",
//	  "server_address": "host.example",
//	  "ports": [22, 2222],
//	  "location": "Helsinki",
//	  "admin_list": [111, 222],
//	  "log_chat": -100123,
//	  "prefix": "ssh",
//	  "groups": ["max1", "max2"],
//	  "os_timeout_seconds": 10
//	}
type JsonConfig struct {
	BotToken         string   `json:"bot_token"`
	ServerAddress    string   `json:"server_address"`
	Ports            []uint16 `json:"ports"`
	Location         string   `json:"location"`
	AdminList        []int64  `json:"admin_list"`
	LogChat          int64    `json:"log_chat"`
	Prefix           string   `json:"prefix"`
	Groups           []string `json:"groups"`
	OSTimeoutSeconds int      `json:"os_timeout_seconds"`
}

// parseJson loads configuration values from a JSON file into the provided
// Config instance. The file path comes from the -c or -config flags; when
// neither is set, no JSON file is loaded. An unreadable or invalid file
// panics, since the process cannot run on a half-applied config.
func parseJson(config *Config) {

	jsonConfigFile := flagx.JsonConfigFlags()

	// nothing to load
	if jsonConfigFile == "" {
		return
	}

	c := &JsonConfig{}

	file, err := os.ReadFile(jsonConfigFile)
	if err != nil {
		panic(err)
	}

	if err := json.Unmarshal(file, c); err != nil {
		panic(err)
	}

	config.BotToken = c.BotToken
	config.ServerAddress = c.ServerAddress
	if len(c.Ports) > 0 {
		config.Ports = c.Ports
	}
	config.Location = c.Location
	config.AdminIDs = c.AdminList
	config.LogChatID = c.LogChat
	if c.Prefix != "" {
		config.UserPrefix = c.Prefix
	}
	if len(c.Groups) > 0 {
		config.Groups = c.Groups
	}
	if c.OSTimeoutSeconds > 0 {
		config.OSTimeout = time.Duration(c.OSTimeoutSeconds) * time.Second
	}
}
