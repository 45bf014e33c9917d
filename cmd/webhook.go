package cmd

import (
	"fmt"
	"net/url"
	"strings"

	"github.com/KipkuruiYegon/MPESA-Telegram-Bot/app/telegram"
	"github.com/KipkuruiYegon/MPESA-Telegram-Bot/config"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
)

var webhookCmd = &cobra.Command{
	Use:   "webhook",
	Short: "Manage the Telegram webhook registration",
}

var webhookSetCmd = &cobra.Command{
	Use:   "set",
	Short: "Point Telegram at this service's webhook endpoint",
	Run: func(_ *cobra.Command, _ []string) {
		cfg := mustLoadConfig()
		client := mustCreateTelegramClient(cfg)

		webhookURL, err := telegramWebhookURL(cfg.Telegram.WebhookURL, cfg.Telegram.WebhookSecret)
		if err != nil {
			logrus.WithError(err).Fatal("Invalid webhook configuration")
		}
		if err := client.SetWebhook(webhookURL); err != nil {
			logrus.WithError(err).Fatal("Failed to register webhook")
		}
		logrus.WithField("url", redactWebhookSecret(webhookURL)).Info("Webhook registered")
	},
}

var webhookDeleteCmd = &cobra.Command{
	Use:   "delete",
	Short: "Remove the Telegram webhook registration",
	Run: func(_ *cobra.Command, _ []string) {
		client := mustCreateTelegramClient(mustLoadConfig())
		if err := client.DeleteWebhook(); err != nil {
			logrus.WithError(err).Fatal("Failed to delete webhook")
		}
		logrus.Info("Webhook deleted")
	},
}

var webhookInfoCmd = &cobra.Command{
	Use:   "info",
	Short: "Show the webhook status reported by Telegram",
	Run: func(_ *cobra.Command, _ []string) {
		client := mustCreateTelegramClient(mustLoadConfig())
		info, err := client.WebhookInfo()
		if err != nil {
			logrus.WithError(err).Fatal("Failed to fetch webhook info")
		}
		logrus.WithFields(logrus.Fields{
			"url":                  redactWebhookSecret(info.URL),
			"pending_update_count": info.PendingUpdateCount,
			"last_error_message":   info.LastErrorMessage,
		}).Info("Webhook info")
	},
}

func init() {
	rootCmd.AddCommand(webhookCmd)
	webhookCmd.AddCommand(webhookSetCmd)
	webhookCmd.AddCommand(webhookDeleteCmd)
	webhookCmd.AddCommand(webhookInfoCmd)
}

func mustCreateTelegramClient(cfg *config.Config) *telegram.Client {
	client, err := telegram.NewClient(telegram.Config{
		BotToken:    cfg.Telegram.BotToken,
		APIEndpoint: cfg.Telegram.APIEndpoint,
		GrantChatID: cfg.Telegram.GrantChatID,
		HTTPTimeout: cfg.Telegram.HTTPTimeout,
	})
	if err != nil {
		logrus.WithError(err).Fatal("Failed to initialize Telegram client")
	}
	return client
}

// telegramWebhookURL joins the public base URL with the secret webhook path.
func telegramWebhookURL(baseURL, secret string) (string, error) {
	baseURL = strings.TrimRight(strings.TrimSpace(baseURL), "/")
	secret = strings.TrimSpace(secret)
	if baseURL == "" {
		return "", fmt.Errorf("TELEGRAM_WEBHOOK_URL is required")
	}
	if secret == "" {
		return "", fmt.Errorf("TELEGRAM_WEBHOOK_SECRET is required")
	}

	parsed, err := url.Parse(baseURL)
	if err != nil {
		return "", fmt.Errorf("invalid TELEGRAM_WEBHOOK_URL: %w", err)
	}
	if parsed.Scheme != "https" {
		return "", fmt.Errorf("TELEGRAM_WEBHOOK_URL must use https")
	}

	return baseURL + "/webhooks/telegram/" + url.PathEscape(secret), nil
}
