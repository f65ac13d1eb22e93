// Package bot posts ledger event notifications to a Slack channel. The
// notifier subscribes to the in-process event bus and writes one message
// per event; when unconfigured it stays disabled and drops everything.
package bot

import (
	"fmt"
	"os"
)

// Config holds the notifier settings.
type Config struct {
	BotToken string
	Channel  string

	// Enabled is derived: both token and channel must be set.
	Enabled bool
}

// LoadFromEnv loads notifier configuration from environment variables.
// A missing token and channel is not an error; the notifier is optional.
// Setting one without the other is a misconfiguration.
func LoadFromEnv() (*Config, error) {
	cfg := &Config{
		BotToken: os.Getenv("SLACK_BOT_TOKEN"),
		Channel:  os.Getenv("SLACK_CHANNEL"),
	}

	if cfg.BotToken != "" && cfg.Channel == "" {
		return nil, fmt.Errorf("SLACK_CHANNEL is required when SLACK_BOT_TOKEN is set")
	}
	if cfg.Channel != "" && cfg.BotToken == "" {
		return nil, fmt.Errorf("SLACK_BOT_TOKEN is required when SLACK_CHANNEL is set")
	}

	cfg.Enabled = cfg.BotToken != "" && cfg.Channel != ""
	return cfg, nil
}
