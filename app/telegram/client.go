package telegram

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
)

var ErrDelivery = errors.New("message delivery failed")

type Config struct {
	BotToken    string
	APIEndpoint string
	GrantChatID int64
	HTTPTimeout time.Duration
}

// Client wraps the Bot API calls the payment flow needs.
type Client struct {
	api         *tgbotapi.BotAPI
	grantChatID int64
}

func NewClient(cfg Config) (*Client, error) {
	endpoint := strings.TrimSpace(cfg.APIEndpoint)
	if endpoint == "" {
		endpoint = tgbotapi.APIEndpoint
	}
	timeout := cfg.HTTPTimeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}

	api, err := tgbotapi.NewBotAPIWithClient(cfg.BotToken, endpoint, &http.Client{Timeout: timeout})
	if err != nil {
		return nil, fmt.Errorf("telegram bot init failed: %w", err)
	}

	return &Client{api: api, grantChatID: cfg.GrantChatID}, nil
}

func (c *Client) API() *tgbotapi.BotAPI {
	return c.api
}

func (c *Client) Username() string {
	return c.api.Self.UserName
}

// Notify sends a plain text message to a private chat.
func (c *Client) Notify(ctx context.Context, userID int64, text string) error {
	return c.Send(ctx, tgbotapi.NewMessage(userID, text))
}

func (c *Client) Send(ctx context.Context, msg tgbotapi.Chattable) error {
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("%w: %v", ErrDelivery, err)
	}
	if _, err := c.api.Send(msg); err != nil {
		return fmt.Errorf("%w: %v", ErrDelivery, err)
	}
	return nil
}

// IsMember reports whether the user currently belongs to the channel, which
// may be given as a numeric chat id or an @username.
func (c *Client) IsMember(ctx context.Context, channelID string, userID int64) (bool, error) {
	type result struct {
		member tgbotapi.ChatMember
		err    error
	}

	cfg := tgbotapi.GetChatMemberConfig{ChatConfigWithUser: chatConfigWithUser(channelID, userID)}
	done := make(chan result, 1)
	go func() {
		member, err := c.api.GetChatMember(cfg)
		done <- result{member: member, err: err}
	}()

	select {
	case <-ctx.Done():
		return false, ctx.Err()
	case res := <-done:
		if res.err != nil {
			return false, res.err
		}
		return isActiveMember(res.member), nil
	}
}

// GrantAccess creates a single-use invite link to the paid chat and sends it to
// the user. It does nothing when no paid chat is configured.
func (c *Client) GrantAccess(ctx context.Context, userID int64) error {
	if c.grantChatID == 0 {
		return nil
	}

	resp, err := c.api.Request(tgbotapi.CreateChatInviteLinkConfig{
		ChatConfig:  tgbotapi.ChatConfig{ChatID: c.grantChatID},
		Name:        "payment-" + strconv.FormatInt(userID, 10),
		ExpireDate:  int(time.Now().Add(24 * time.Hour).Unix()),
		MemberLimit: 1,
	})
	if err != nil {
		return fmt.Errorf("create invite link failed: %w", err)
	}

	var link tgbotapi.ChatInviteLink
	if err := json.Unmarshal(resp.Result, &link); err != nil {
		return fmt.Errorf("decode invite link failed: %w", err)
	}
	if link.InviteLink == "" {
		return errors.New("telegram returned an empty invite link")
	}

	return c.Notify(ctx, userID, "Here is your access link (valid for 24 hours, single use): "+link.InviteLink)
}

func (c *Client) SetWebhook(webhookURL string) error {
	wh, err := tgbotapi.NewWebhook(webhookURL)
	if err != nil {
		return fmt.Errorf("invalid webhook url: %w", err)
	}
	wh.AllowedUpdates = []string{"message"}

	if _, err := c.api.Request(wh); err != nil {
		return fmt.Errorf("set webhook failed: %w", err)
	}
	return nil
}

func (c *Client) DeleteWebhook() error {
	if _, err := c.api.Request(tgbotapi.DeleteWebhookConfig{}); err != nil {
		return fmt.Errorf("delete webhook failed: %w", err)
	}
	return nil
}

func (c *Client) WebhookInfo() (tgbotapi.WebhookInfo, error) {
	return c.api.GetWebhookInfo()
}

func chatConfigWithUser(channelID string, userID int64) tgbotapi.ChatConfigWithUser {
	channelID = strings.TrimSpace(channelID)
	if id, err := strconv.ParseInt(channelID, 10, 64); err == nil {
		return tgbotapi.ChatConfigWithUser{ChatID: id, UserID: userID}
	}
	if !strings.HasPrefix(channelID, "@") {
		channelID = "@" + channelID
	}
	return tgbotapi.ChatConfigWithUser{SuperGroupUsername: channelID, UserID: userID}
}

func isActiveMember(member tgbotapi.ChatMember) bool {
	switch member.Status {
	case "creator", "administrator", "member":
		return true
	case "restricted":
		return member.IsMember
	default:
		return false
	}
}
