package cmd

import (
	"testing"

	"github.com/KipkuruiYegon/MPESA-Telegram-Bot/config"
	"github.com/sirupsen/logrus"
)

func TestConfigureLogging(t *testing.T) {
	defer logrus.SetLevel(logrus.InfoLevel)

	if err := configureLogging(&config.Config{Log: config.LogConfig{Level: "debug"}}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if logrus.GetLevel() != logrus.DebugLevel {
		t.Fatalf("expected debug level, got %s", logrus.GetLevel())
	}
	if _, ok := logrus.StandardLogger().Formatter.(*logrus.JSONFormatter); !ok {
		t.Fatalf("expected JSON formatter")
	}

	if err := configureLogging(&config.Config{Log: config.LogConfig{Level: "loud"}}); err == nil {
		t.Fatal("expected invalid level error")
	}
}
