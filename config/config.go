package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/shopspring/decimal"
)

const defaultPlans = "1:Weight Loss Plan:1000;2:Muscle Gain Plan:1200;3:Balanced Diet Plan:900"

type Config struct {
	App               AppConfig
	HTTP              ServerConfig
	GRPC              ServerConfig
	MySQL             MySQLConfig
	Redis             RedisConfig
	Kafka             KafkaConfig
	Log               LogConfig
	InternalEndpoints InternalEndpointsConfig
	Mpesa             MpesaConfig
	Telegram          TelegramConfig
	Payments          PaymentsConfig
	Jobs              JobsConfig
}

type AppConfig struct {
	ServiceName string
}

type ServerConfig struct {
	Host string
	Port string
}

type MySQLConfig struct {
	DSN             string
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
}

type RedisConfig struct {
	Addr     string
	Password string
	DB       int
}

type KafkaConfig struct {
	Brokers []string
	Topic   string
}

type LogConfig struct {
	Level string
}

type InternalEndpointsConfig struct {
	AuthGRPCAddr string
}

type MpesaConfig struct {
	BaseURL           string
	ConsumerKey       string
	ConsumerSecret    string
	ShortCode         string
	PassKey           string
	TransactionType   string
	AccountReference  string
	TransactionDesc   string
	CallbackBaseURL   string
	HTTPTimeout       time.Duration
	TokenSafetyMargin time.Duration
}

type TelegramConfig struct {
	BotToken        string
	APIEndpoint     string
	ChannelID       string
	GrantChatID     int64
	WebhookURL      string
	WebhookSecret   string
	MembershipCheck time.Duration
	HTTPTimeout     time.Duration
}

type Plan struct {
	Code  string
	Name  string
	Price decimal.Decimal
}

type PaymentsConfig struct {
	Plans               []Plan
	PendingTimeout      time.Duration
	ReconcileStaleAfter time.Duration
	SessionTTL          time.Duration
	JobBatchSize        int32
}

type JobsConfig struct {
	ReconcileInterval     time.Duration
	ExpirePendingInterval time.Duration
}

func Load() (*Config, error) {
	_ = godotenv.Load()

	mysqlDSN := os.Getenv("MYSQL_DSN")
	if mysqlDSN == "" {
		return nil, errors.New("MYSQL_DSN environment variable is required")
	}

	for _, key := range []string{
		"TELEGRAM_BOT_TOKEN",
		"MPESA_CONSUMER_KEY",
		"MPESA_CONSUMER_SECRET",
		"MPESA_SHORTCODE",
		"MPESA_PASSKEY",
		"MPESA_CALLBACK_BASE_URL",
	} {
		if strings.TrimSpace(os.Getenv(key)) == "" {
			return nil, fmt.Errorf("%s environment variable is required", key)
		}
	}

	plans, err := ParsePlans(getEnv("PAYMENT_PLANS", defaultPlans))
	if err != nil {
		return nil, err
	}

	grantChatID, err := getInt64Env("TELEGRAM_GRANT_CHAT_ID", 0)
	if err != nil {
		return nil, err
	}

	return &Config{
		App: AppConfig{
			ServiceName: getEnv("APP_SERVICE_NAME", "payments-bot"),
		},
		HTTP: ServerConfig{
			Host: getEnv("HTTP_HOST", "0.0.0.0"),
			Port: getEnv("HTTP_PORT", "8080"),
		},
		GRPC: ServerConfig{
			Host: getEnv("GRPC_HOST", "0.0.0.0"),
			Port: getEnv("GRPC_PORT", "9090"),
		},
		MySQL: MySQLConfig{
			DSN:             mysqlDSN,
			MaxOpenConns:    getIntEnv("MYSQL_MAX_OPEN_CONNS", 10),
			MaxIdleConns:    getIntEnv("MYSQL_MAX_IDLE_CONNS", 5),
			ConnMaxLifetime: getMinutesEnv("MYSQL_CONN_MAX_LIFETIME_MINUTES", 30*time.Minute),
		},
		Redis: RedisConfig{
			Addr:     getEnv("REDIS_ADDR", ""),
			Password: getEnv("REDIS_PASSWORD", ""),
			DB:       getIntEnv("REDIS_DB", 0),
		},
		Kafka: KafkaConfig{
			Brokers: splitList(getEnv("KAFKA_BROKERS", "")),
			Topic:   getEnv("KAFKA_PAYMENTS_TOPIC", "payments.resolved"),
		},
		Log: LogConfig{
			Level: getEnv("LOG_LEVEL", "info"),
		},
		InternalEndpoints: InternalEndpointsConfig{
			AuthGRPCAddr: getEnv("AUTH_SERVICE_GRPC_ADDR", "localhost:9090"),
		},
		Mpesa: MpesaConfig{
			BaseURL:           strings.TrimRight(getEnv("MPESA_BASE_URL", "https://sandbox.safaricom.co.ke"), "/"),
			ConsumerKey:       os.Getenv("MPESA_CONSUMER_KEY"),
			ConsumerSecret:    os.Getenv("MPESA_CONSUMER_SECRET"),
			ShortCode:         os.Getenv("MPESA_SHORTCODE"),
			PassKey:           os.Getenv("MPESA_PASSKEY"),
			TransactionType:   getEnv("MPESA_TRANSACTION_TYPE", "CustomerPayBillOnline"),
			AccountReference:  getEnv("MPESA_ACCOUNT_REFERENCE", "Subscription"),
			TransactionDesc:   getEnv("MPESA_TRANSACTION_DESC", "Subscription Payment"),
			CallbackBaseURL:   os.Getenv("MPESA_CALLBACK_BASE_URL"),
			HTTPTimeout:       getSecondsEnv("MPESA_HTTP_TIMEOUT_SECONDS", 15*time.Second),
			TokenSafetyMargin: getSecondsEnv("MPESA_TOKEN_SAFETY_MARGIN_SECONDS", 30*time.Second),
		},
		Telegram: TelegramConfig{
			BotToken:        os.Getenv("TELEGRAM_BOT_TOKEN"),
			APIEndpoint:     getEnv("TELEGRAM_API_ENDPOINT", ""),
			ChannelID:       getEnv("TELEGRAM_CHANNEL_ID", ""),
			GrantChatID:     grantChatID,
			WebhookURL:      getEnv("TELEGRAM_WEBHOOK_URL", ""),
			WebhookSecret:   getEnv("TELEGRAM_WEBHOOK_SECRET", ""),
			MembershipCheck: getSecondsEnv("TELEGRAM_MEMBERSHIP_TIMEOUT_SECONDS", 5*time.Second),
			HTTPTimeout:     getSecondsEnv("TELEGRAM_HTTP_TIMEOUT_SECONDS", 10*time.Second),
		},
		Payments: PaymentsConfig{
			Plans:               plans,
			PendingTimeout:      getMinutesEnv("PAYMENTS_PENDING_TIMEOUT_MINUTES", 15*time.Minute),
			ReconcileStaleAfter: getMinutesEnv("PAYMENTS_RECONCILE_STALE_AFTER_MINUTES", 3*time.Minute),
			SessionTTL:          getMinutesEnv("PAYMENTS_SESSION_TTL_MINUTES", 60*time.Minute),
			JobBatchSize:        int32(getIntEnv("PAYMENTS_JOB_BATCH_SIZE", 100)),
		},
		Jobs: JobsConfig{
			ReconcileInterval:     getMinutesEnv("PAYMENTS_RECONCILE_INTERVAL_MINUTES", 2*time.Minute),
			ExpirePendingInterval: getMinutesEnv("PAYMENTS_EXPIRE_PENDING_INTERVAL_MINUTES", 5*time.Minute),
		},
	}, nil
}

// ParsePlans reads "code:name:price" entries separated by ';'.
func ParsePlans(raw string) ([]Plan, error) {
	plans := make([]Plan, 0, 3)
	seen := make(map[string]struct{})
	for _, entry := range strings.Split(raw, ";") {
		entry = strings.TrimSpace(entry)
		if entry == "" {
			continue
		}
		parts := strings.Split(entry, ":")
		if len(parts) != 3 {
			return nil, fmt.Errorf("invalid plan entry %q", entry)
		}
		code := strings.TrimSpace(parts[0])
		name := strings.TrimSpace(parts[1])
		price, err := decimal.NewFromString(strings.TrimSpace(parts[2]))
		if err != nil {
			return nil, fmt.Errorf("invalid plan price %q: %w", parts[2], err)
		}
		if code == "" || name == "" || !price.IsPositive() {
			return nil, fmt.Errorf("invalid plan entry %q", entry)
		}
		if _, ok := seen[code]; ok {
			return nil, fmt.Errorf("duplicate plan code %q", code)
		}
		seen[code] = struct{}{}
		plans = append(plans, Plan{Code: code, Name: name, Price: price})
	}
	if len(plans) == 0 {
		return nil, errors.New("at least one payment plan is required")
	}
	return plans, nil
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getIntEnv(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if n, err := strconv.Atoi(value); err == nil {
			return n
		}
	}
	return defaultValue
}

func getInt64Env(key string, defaultValue int64) (int64, error) {
	value := strings.TrimSpace(os.Getenv(key))
	if value == "" {
		return defaultValue, nil
	}
	n, err := strconv.ParseInt(value, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("%s must be an integer chat id: %w", key, err)
	}
	return n, nil
}

func getMinutesEnv(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if minutes, err := strconv.Atoi(value); err == nil {
			return time.Duration(minutes) * time.Minute
		}
	}
	return defaultValue
}

func getSecondsEnv(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if seconds, err := strconv.Atoi(value); err == nil {
			return time.Duration(seconds) * time.Second
		}
	}
	return defaultValue
}

func splitList(raw string) []string {
	items := make([]string, 0)
	for _, part := range strings.Split(raw, ",") {
		if part = strings.TrimSpace(part); part != "" {
			items = append(items, part)
		}
	}
	return items
}
