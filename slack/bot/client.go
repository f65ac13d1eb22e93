package bot

import (
	"context"
	"log/slog"

	"github.com/slack-go/slack"
)

// Client wraps the Slack API client.
type Client struct {
	api       *slack.Client
	botUserID string
	log       *slog.Logger
}

// NewClient creates a new Slack client
func NewClient(botToken string, log *slog.Logger) *Client {
	return &Client{
		api: slack.New(botToken),
		log: log,
	}
}

// API returns the underlying Slack API client
func (c *Client) API() *slack.Client {
	return c.api
}

// Initialize performs initial setup like auth test and returns the bot user ID
func (c *Client) Initialize(ctx context.Context) (string, error) {
	authTest, err := c.api.AuthTestContext(ctx)
	if err != nil {
		c.log.Warn("slack auth test failed", "error", err)
		return "", err
	}

	c.botUserID = authTest.UserID
	c.log.Info("slack auth test successful", "user_id", authTest.UserID, "team", authTest.Team, "bot_id", authTest.BotID)
	return c.botUserID, nil
}

// BotUserID returns the bot's user ID
func (c *Client) BotUserID() string {
	return c.botUserID
}
