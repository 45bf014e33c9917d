package config

import (
	"os"
	"testing"
	"time"
)

func setEnv(t *testing.T, key, value string) {
	t.Helper()
	old, had := os.LookupEnv(key)
	if err := os.Setenv(key, value); err != nil {
		t.Fatalf("setenv %s failed: %v", key, err)
	}
	t.Cleanup(func() {
		if had {
			_ = os.Setenv(key, old)
		} else {
			_ = os.Unsetenv(key)
		}
	})
}

func unsetEnv(t *testing.T, key string) {
	t.Helper()
	old, had := os.LookupEnv(key)
	_ = os.Unsetenv(key)
	t.Cleanup(func() {
		if had {
			_ = os.Setenv(key, old)
		}
	})
}

func setRequiredEnv(t *testing.T) {
	t.Helper()
	setEnv(t, "MYSQL_DSN", "root:root@tcp(localhost:3306)/payments?parseTime=true")
	setEnv(t, "TELEGRAM_BOT_TOKEN", "123:abc")
	setEnv(t, "MPESA_CONSUMER_KEY", "key")
	setEnv(t, "MPESA_CONSUMER_SECRET", "secret")
	setEnv(t, "MPESA_SHORTCODE", "174379")
	setEnv(t, "MPESA_PASSKEY", "passkey")
	setEnv(t, "MPESA_CALLBACK_BASE_URL", "https://bot.example/webhooks/providers/mpesa")
}

func TestLoadRequiresMySQLDSN(t *testing.T) {
	unsetEnv(t, "MYSQL_DSN")
	_, err := Load()
	if err == nil {
		t.Fatal("expected error for missing MYSQL_DSN")
	}
}

func TestLoadRequiresGatewayCredentials(t *testing.T) {
	setRequiredEnv(t)
	unsetEnv(t, "MPESA_PASSKEY")
	_, err := Load()
	if err == nil {
		t.Fatal("expected error for missing MPESA_PASSKEY")
	}
}

func TestLoadDefaultsAndOverrides(t *testing.T) {
	setRequiredEnv(t)
	unsetEnv(t, "PAYMENT_PLANS")
	unsetEnv(t, "MPESA_BASE_URL")
	setEnv(t, "APP_SERVICE_NAME", "payments-bot-test")
	setEnv(t, "HTTP_PORT", "8181")
	setEnv(t, "MYSQL_MAX_OPEN_CONNS", "20")
	setEnv(t, "MYSQL_CONN_MAX_LIFETIME_MINUTES", "40")
	setEnv(t, "MPESA_TOKEN_SAFETY_MARGIN_SECONDS", "45")
	setEnv(t, "TELEGRAM_GRANT_CHAT_ID", "-1001234567890")
	setEnv(t, "KAFKA_BROKERS", "kafka-1:9092, kafka-2:9092")
	setEnv(t, "PAYMENTS_PENDING_TIMEOUT_MINUTES", "11")
	setEnv(t, "PAYMENTS_JOB_BATCH_SIZE", "99")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}

	if cfg.App.ServiceName != "payments-bot-test" {
		t.Fatalf("unexpected app service name: %s", cfg.App.ServiceName)
	}
	if cfg.HTTP.Port != "8181" || cfg.GRPC.Port != "9090" {
		t.Fatalf("unexpected ports: http=%s grpc=%s", cfg.HTTP.Port, cfg.GRPC.Port)
	}
	if cfg.MySQL.MaxOpenConns != 20 || cfg.MySQL.ConnMaxLifetime != 40*time.Minute {
		t.Fatalf("unexpected mysql config: %+v", cfg.MySQL)
	}
	if cfg.Mpesa.BaseURL != "https://sandbox.safaricom.co.ke" {
		t.Fatalf("unexpected mpesa base url: %s", cfg.Mpesa.BaseURL)
	}
	if cfg.Mpesa.TokenSafetyMargin != 45*time.Second {
		t.Fatalf("unexpected token safety margin: %v", cfg.Mpesa.TokenSafetyMargin)
	}
	if cfg.Mpesa.TransactionType != "CustomerPayBillOnline" {
		t.Fatalf("unexpected transaction type: %s", cfg.Mpesa.TransactionType)
	}
	if cfg.Telegram.HTTPTimeout != 10*time.Second {
		t.Fatalf("unexpected telegram http timeout: %v", cfg.Telegram.HTTPTimeout)
	}
	if cfg.Telegram.GrantChatID != -1001234567890 {
		t.Fatalf("unexpected grant chat id: %d", cfg.Telegram.GrantChatID)
	}
	if len(cfg.Kafka.Brokers) != 2 || cfg.Kafka.Brokers[1] != "kafka-2:9092" {
		t.Fatalf("unexpected kafka brokers: %v", cfg.Kafka.Brokers)
	}
	if cfg.Payments.PendingTimeout != 11*time.Minute {
		t.Fatalf("unexpected pending timeout: %v", cfg.Payments.PendingTimeout)
	}
	if cfg.Payments.JobBatchSize != 99 {
		t.Fatalf("unexpected job batch size: %d", cfg.Payments.JobBatchSize)
	}
	if len(cfg.Payments.Plans) != 3 || cfg.Payments.Plans[0].Price.String() != "1000" {
		t.Fatalf("unexpected default plans: %+v", cfg.Payments.Plans)
	}
}

func TestLoadRejectsInvalidGrantChatID(t *testing.T) {
	setRequiredEnv(t)
	setEnv(t, "TELEGRAM_GRANT_CHAT_ID", "@vip")
	if _, err := Load(); err == nil {
		t.Fatal("expected error for non-numeric grant chat id")
	}
}

func TestParsePlans(t *testing.T) {
	plans, err := ParsePlans("a:Basic:100; b:Pro:250.00")
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if len(plans) != 2 || plans[1].Code != "b" || plans[1].Name != "Pro" || plans[1].Price.String() != "250" {
		t.Fatalf("unexpected plans: %+v", plans)
	}

	for _, raw := range []string{"", "a:Basic", "a:Basic:0", "a:Basic:abc", "a:Basic:1;a:Other:2"} {
		if _, err := ParsePlans(raw); err == nil {
			t.Fatalf("expected error for %q", raw)
		}
	}
}
