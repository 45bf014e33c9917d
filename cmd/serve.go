package cmd

import (
	"context"
	"net"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/KipkuruiYegon/MPESA-Telegram-Bot/app/controller"
	paymentgrpc "github.com/KipkuruiYegon/MPESA-Telegram-Bot/app/grpc"
	"github.com/KipkuruiYegon/MPESA-Telegram-Bot/app/metrics"
	"github.com/KipkuruiYegon/MPESA-Telegram-Bot/app/types"
	"github.com/KipkuruiYegon/MPESA-Telegram-Bot/config"
	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
	echomiddleware "github.com/labstack/echo/v4/middleware"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	authclient "github.com/vibast-solutions/lib-go-auth/client"
	authmiddleware "github.com/vibast-solutions/lib-go-auth/middleware"
	authlibservice "github.com/vibast-solutions/lib-go-auth/service"
	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the HTTP and gRPC servers",
	Long:  "Start the HTTP server (Telegram and M-Pesa webhooks, admin API, metrics) and the gRPC ledger API.",
	Run:   runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)
}

func runServe(_ *cobra.Command, _ []string) {
	app, cleanup := mustCreateApplication()
	defer cleanup()
	cfg := app.cfg

	paymentController := controller.NewPaymentController(app.paymentService)
	telegramController := controller.NewTelegramController(app.router, cfg.Telegram.WebhookSecret)
	grpcLedgerServer := paymentgrpc.NewServer(app.paymentService)

	if strings.TrimSpace(cfg.Telegram.WebhookSecret) == "" {
		logrus.Warn("TELEGRAM_WEBHOOK_SECRET is empty, the Telegram webhook rejects every update")
	}

	authGRPCClient, err := authclient.NewGRPCClientFromAddr(context.Background(), cfg.InternalEndpoints.AuthGRPCAddr)
	if err != nil {
		logrus.WithError(err).Fatal("Failed to initialize auth gRPC client")
	}
	defer authGRPCClient.Close()

	internalAuthService := authlibservice.NewInternalAuthService(authGRPCClient)
	echoInternalAuthMiddleware := authmiddleware.NewEchoInternalAuthMiddleware(internalAuthService)
	grpcInternalAuthMiddleware := authmiddleware.NewGRPCInternalAuthMiddleware(internalAuthService)

	e := setupHTTPServer(paymentController, telegramController, echoInternalAuthMiddleware, cfg.App.ServiceName)
	grpcSrv, healthSrv, lis := setupGRPCServer(cfg, grpcLedgerServer, grpcInternalAuthMiddleware, cfg.App.ServiceName)

	go func() {
		httpAddr := net.JoinHostPort(cfg.HTTP.Host, cfg.HTTP.Port)
		logrus.WithField("addr", httpAddr).Info("Starting HTTP server")
		if err := e.Start(httpAddr); err != nil && err != http.ErrServerClosed {
			logrus.WithError(err).Fatal("HTTP server error")
		}
	}()

	go func() {
		logrus.WithField("addr", lis.Addr().String()).Info("Starting gRPC server")
		if err := grpcSrv.Serve(lis); err != nil {
			logrus.WithError(err).Fatal("gRPC server error")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	logrus.Info("Shutting down...")

	healthSrv.Shutdown()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := e.Shutdown(shutdownCtx); err != nil {
		logrus.WithError(err).Warn("HTTP shutdown error")
	}
	grpcSrv.GracefulStop()

	logrus.Info("Server stopped")
}

func setupHTTPServer(
	paymentController *controller.PaymentController,
	telegramController *controller.TelegramController,
	internalAuthMiddleware *authmiddleware.EchoInternalAuthMiddleware,
	appServiceName string,
) *echo.Echo {
	e := echo.New()
	e.HideBanner = true

	e.Use(echomiddleware.RequestIDWithConfig(echomiddleware.RequestIDConfig{
		Generator: uuid.NewString,
	}))
	e.Use(echomiddleware.RequestLoggerWithConfig(echomiddleware.RequestLoggerConfig{
		LogURI:       true,
		LogStatus:    true,
		LogMethod:    true,
		LogRemoteIP:  true,
		LogLatency:   true,
		LogUserAgent: true,
		LogError:     true,
		HandleError:  true,
		LogRequestID: true,
		LogValuesFunc: func(_ echo.Context, v echomiddleware.RequestLoggerValues) error {
			fields := logrus.Fields{
				"remote_ip":  v.RemoteIP,
				"host":       v.Host,
				"method":     v.Method,
				"uri":        redactWebhookSecret(v.URI),
				"status":     v.Status,
				"latency":    v.Latency.String(),
				"latency_ns": v.Latency.Nanoseconds(),
				"user_agent": v.UserAgent,
				"request_id": v.RequestID,
			}
			entry := logrus.WithFields(fields)
			if v.Error != nil {
				entry = entry.WithError(v.Error)
			}
			entry.Info("http_request")
			return nil
		},
	}))
	e.Use(echomiddleware.Recover())

	e.GET("/health", paymentController.Health)
	e.GET("/metrics", echo.WrapHandler(metrics.Handler()))

	webhooks := e.Group("/webhooks")
	webhooks.POST("/telegram/:secret", telegramController.HandleWebhook)
	webhooks.POST("/providers/:provider/:hash", paymentController.HandleProviderCallback)

	payments := e.Group("/payments", requireRequestID(), internalAuthMiddleware.RequireInternalAccess(appServiceName))
	payments.GET("", paymentController.ListPayments)
	payments.GET("/:requestId", paymentController.GetPayment)

	return e
}

func requireRequestID() echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(ctx echo.Context) error {
			requestID := strings.TrimSpace(ctx.Request().Header.Get(echo.HeaderXRequestID))
			if requestID == "" {
				return ctx.JSON(http.StatusBadRequest, &types.ErrorResponse{Error: "x-request-id header is required"})
			}
			ctx.Response().Header().Set(echo.HeaderXRequestID, requestID)
			return next(ctx)
		}
	}
}

// redactWebhookSecret keeps the Telegram path secret out of logs.
func redactWebhookSecret(uri string) string {
	const marker = "/webhooks/telegram/"
	if idx := strings.Index(uri, marker); idx >= 0 {
		return uri[:idx] + marker + "[redacted]"
	}
	return uri
}

func setupGRPCServer(
	cfg *config.Config,
	ledgerServer *paymentgrpc.Server,
	internalAuthMiddleware *authmiddleware.GRPCInternalAuthMiddleware,
	appServiceName string,
) (*grpc.Server, *health.Server, net.Listener) {
	grpcAddr := net.JoinHostPort(cfg.GRPC.Host, cfg.GRPC.Port)
	lis, err := net.Listen("tcp", grpcAddr)
	if err != nil {
		logrus.WithError(err).Fatal("Failed to listen on gRPC port")
	}

	grpcSrv := grpc.NewServer(
		grpc.ChainUnaryInterceptor(
			paymentgrpc.RecoveryInterceptor(),
			paymentgrpc.SkipHealth(paymentgrpc.RequestIDInterceptor()),
			paymentgrpc.LoggingInterceptor(),
			paymentgrpc.SkipHealth(internalAuthMiddleware.UnaryRequireInternalAccess(appServiceName)),
		),
	)
	paymentgrpc.RegisterLedgerServer(grpcSrv, ledgerServer)

	healthSrv := health.NewServer()
	healthSrv.SetServingStatus(paymentgrpc.LedgerServiceName, healthpb.HealthCheckResponse_SERVING)
	healthpb.RegisterHealthServer(grpcSrv, healthSrv)

	return grpcSrv, healthSrv, lis
}
