package cmd

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/KipkuruiYegon/MPESA-Telegram-Bot/config"
	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
)

const (
	maxLongPollSeconds = 50
	longPollMargin     = 10 * time.Second
)

var pollTimeoutSeconds int

var pollCmd = &cobra.Command{
	Use:   "poll",
	Short: "Receive Telegram updates through long polling",
	Long:  "Receive Telegram updates through long polling instead of the webhook. Removes any registered webhook first.",
	Run:   runPoll,
}

func init() {
	rootCmd.AddCommand(pollCmd)
	pollCmd.Flags().IntVar(&pollTimeoutSeconds, "timeout", 30, "Long polling timeout in seconds")
}

func runPoll(_ *cobra.Command, _ []string) {
	longPoll := clampLongPoll(pollTimeoutSeconds)
	app, cleanup := mustCreateApplication(func(cfg *config.Config) {
		cfg.Telegram.HTTPTimeout = pollHTTPTimeout(longPoll, cfg.Telegram.HTTPTimeout)
	})
	defer cleanup()

	if err := app.telegram.DeleteWebhook(); err != nil {
		logrus.WithError(err).Fatal("Failed to delete webhook before polling")
	}

	api := app.telegram.API()
	u := tgbotapi.NewUpdate(0)
	u.Timeout = longPoll
	u.AllowedUpdates = []string{"message"}
	updates := api.GetUpdatesChan(u)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	logrus.WithField("bot", app.telegram.Username()).Info("Polling for updates")
	for {
		select {
		case <-quit:
			logrus.Info("Polling shutdown requested")
			api.StopReceivingUpdates()
			return
		case update, ok := <-updates:
			if !ok {
				return
			}
			app.router.HandleUpdate(ctx, update)
		}
	}
}

// clampLongPoll keeps the getUpdates timeout within what the Bot API accepts.
func clampLongPoll(seconds int) int {
	if seconds < 0 {
		return 0
	}
	if seconds > maxLongPollSeconds {
		return maxLongPollSeconds
	}
	return seconds
}

// pollHTTPTimeout returns a client timeout that outlasts an idle long poll.
func pollHTTPTimeout(longPollSeconds int, configured time.Duration) time.Duration {
	minimum := time.Duration(longPollSeconds)*time.Second + longPollMargin
	if configured > minimum {
		return configured
	}
	return minimum
}
