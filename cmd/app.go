package cmd

import (
	"context"
	"database/sql"
	"time"

	"github.com/KipkuruiYegon/MPESA-Telegram-Bot/app/bot"
	"github.com/KipkuruiYegon/MPESA-Telegram-Bot/app/events"
	"github.com/KipkuruiYegon/MPESA-Telegram-Bot/app/provider"
	"github.com/KipkuruiYegon/MPESA-Telegram-Bot/app/repository"
	"github.com/KipkuruiYegon/MPESA-Telegram-Bot/app/service"
	"github.com/KipkuruiYegon/MPESA-Telegram-Bot/app/session"
	"github.com/KipkuruiYegon/MPESA-Telegram-Bot/app/telegram"
	"github.com/KipkuruiYegon/MPESA-Telegram-Bot/config"

	_ "github.com/go-sql-driver/mysql"
	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"
)

// application holds the wired dependencies shared by every command.
type application struct {
	cfg            *config.Config
	paymentService *service.PaymentService
	telegram       *telegram.Client
	router         *bot.Router
}

func mustLoadConfig() *config.Config {
	cfg, err := config.Load()
	if err != nil {
		logrus.WithError(err).Fatal("Failed to load configuration")
	}
	if err := configureLogging(cfg); err != nil {
		logrus.WithError(err).Fatal("Failed to configure logging")
	}
	return cfg
}

func mustOpenDatabase(cfg *config.Config) *sql.DB {
	db, err := sql.Open("mysql", cfg.MySQL.DSN)
	if err != nil {
		logrus.WithError(err).Fatal("Failed to connect to database")
	}

	db.SetMaxOpenConns(cfg.MySQL.MaxOpenConns)
	db.SetMaxIdleConns(cfg.MySQL.MaxIdleConns)
	db.SetConnMaxLifetime(cfg.MySQL.ConnMaxLifetime)

	if err := db.Ping(); err != nil {
		_ = db.Close()
		logrus.WithError(err).Fatal("Failed to ping database")
	}
	return db
}

// appOption adjusts the loaded configuration before anything is wired.
type appOption func(cfg *config.Config)

func mustCreateApplication(opts ...appOption) (*application, func()) {
	cfg := mustLoadConfig()
	for _, opt := range opts {
		opt(cfg)
	}
	db := mustOpenDatabase(cfg)
	cleanups := []func(){func() {
		if err := db.Close(); err != nil {
			logrus.WithError(err).Warn("Failed to close database")
		}
	}}
	cleanup := func() {
		for i := len(cleanups) - 1; i >= 0; i-- {
			cleanups[i]()
		}
	}

	tgClient := mustCreateTelegramClient(cfg)
	logrus.WithField("bot", tgClient.Username()).Info("Telegram client ready")

	sessions, closeSessions := mustCreateSessionStore(cfg)
	cleanups = append(cleanups, closeSessions)

	publisher, closePublisher := createPublisher(cfg)
	cleanups = append(cleanups, closePublisher)

	paymentRepo := repository.NewPaymentRequestRepository(db)
	userRepo := repository.NewChatUserRepository(db)
	eventRepo := repository.NewPaymentEventRepository(db)
	callbackRepo := repository.NewPaymentCallbackRepository(db)

	credentials := provider.NewCredentialCache(provider.CredentialConfig{
		BaseURL:        cfg.Mpesa.BaseURL,
		ConsumerKey:    cfg.Mpesa.ConsumerKey,
		ConsumerSecret: cfg.Mpesa.ConsumerSecret,
		SafetyMargin:   cfg.Mpesa.TokenSafetyMargin,
	}, nil)
	mpesaProvider := provider.NewMpesaProvider(provider.MpesaConfig{
		BaseURL:                 cfg.Mpesa.BaseURL,
		ShortCode:               cfg.Mpesa.ShortCode,
		PassKey:                 cfg.Mpesa.PassKey,
		TransactionType:         cfg.Mpesa.TransactionType,
		AccountReference:        cfg.Mpesa.AccountReference,
		TransactionDesc:         cfg.Mpesa.TransactionDesc,
		ProviderCallbackBaseURL: cfg.Mpesa.CallbackBaseURL,
		HTTPTimeout:             cfg.Mpesa.HTTPTimeout,
	}, credentials)

	paymentService := service.NewPaymentService(
		paymentRepo,
		userRepo,
		eventRepo,
		callbackRepo,
		provider.NewRegistry(mpesaProvider),
		cfg.Payments,
		service.ResolutionHooks{
			Notifier:  tgClient,
			Granter:   tgClient,
			Sessions:  sessions,
			Publisher: publisher,
		},
	)

	gate := service.NewAccessGate(tgClient, userRepo, cfg.Telegram.ChannelID, cfg.Telegram.MembershipCheck)
	if !gate.Enabled() {
		logrus.Warn("TELEGRAM_CHANNEL_ID is empty, channel membership is not enforced")
	}

	router := bot.NewRouter(bot.DefaultCommands(), paymentService, gate, sessions, tgClient, cfg.Payments.Plans)

	return &application{
		cfg:            cfg,
		paymentService: paymentService,
		telegram:       tgClient,
		router:         router,
	}, cleanup
}

func mustCreateSessionStore(cfg *config.Config) (session.Store, func()) {
	if cfg.Redis.Addr == "" {
		logrus.Info("REDIS_ADDR is empty, conversation state is kept in memory")
		return session.NewMemoryStore(cfg.Payments.SessionTTL), func() {}
	}

	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		logrus.WithError(err).Fatal("Failed to ping Redis")
	}

	return session.NewRedisStore(client, cfg.Payments.SessionTTL), func() {
		if err := client.Close(); err != nil {
			logrus.WithError(err).Warn("Failed to close Redis client")
		}
	}
}

func createPublisher(cfg *config.Config) (service.EventPublisher, func()) {
	if len(cfg.Kafka.Brokers) == 0 {
		return events.NoopPublisher{}, func() {}
	}

	publisher := events.NewKafkaPublisher(events.NewKafkaWriter(cfg.Kafka.Brokers, cfg.Kafka.Topic))
	logrus.WithField("topic", cfg.Kafka.Topic).Info("Publishing payment events to Kafka")
	return publisher, func() {
		if err := publisher.Close(); err != nil {
			logrus.WithError(err).Warn("Failed to close Kafka writer")
		}
	}
}
