package cmd

import (
	"context"
	"os/signal"
	"syscall"
	"time"

	"github.com/KipkuruiYegon/MPESA-Telegram-Bot/app/metrics"
	"github.com/KipkuruiYegon/MPESA-Telegram-Bot/app/service"
	"github.com/KipkuruiYegon/MPESA-Telegram-Bot/config"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
)

var workerMode bool

type batchJob struct {
	name     string
	interval func(cfg *config.Config) time.Duration
	run      func(ctx context.Context, s *service.PaymentService) error
}

var reconcileJob = batchJob{
	name:     "reconcile",
	interval: func(cfg *config.Config) time.Duration { return cfg.Jobs.ReconcileInterval },
	run: func(ctx context.Context, s *service.PaymentService) error {
		return s.RunReconcileBatch(ctx)
	},
}

var expirePendingJob = batchJob{
	name:     "expire_pending",
	interval: func(cfg *config.Config) time.Duration { return cfg.Jobs.ExpirePendingInterval },
	run: func(ctx context.Context, s *service.PaymentService) error {
		return s.RunExpirePendingBatch(ctx)
	},
}

var reconcileCmd = &cobra.Command{
	Use:   "reconcile",
	Short: "Query M-Pesa for payment requests still awaiting a callback",
	Run: func(_ *cobra.Command, _ []string) {
		runBatchJob(reconcileJob)
	},
}

var expireCmd = &cobra.Command{
	Use:   "expire",
	Short: "Run expiration-related commands",
}

var expirePendingCmd = &cobra.Command{
	Use:   "pending",
	Short: "Fail payment requests that never received a callback",
	Run: func(_ *cobra.Command, _ []string) {
		runBatchJob(expirePendingJob)
	},
}

func init() {
	rootCmd.AddCommand(reconcileCmd)
	rootCmd.AddCommand(expireCmd)
	expireCmd.AddCommand(expirePendingCmd)

	rootCmd.PersistentFlags().BoolVar(&workerMode, "worker", false, "Run continuously using configured interval")
}

// runBatchJob runs the job once, or on a ticker in worker mode until SIGINT or SIGTERM.
func runBatchJob(job batchJob) {
	app, cleanup := mustCreateApplication()
	defer cleanup()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if !workerMode {
		runJob(ctx, job, app.paymentService)
		return
	}

	interval := job.interval(app.cfg)
	if interval <= 0 {
		logrus.WithField("job", job.name).Fatal("invalid worker interval")
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	logger := logrus.WithFields(logrus.Fields{"job": job.name, "interval": interval.String()})
	logger.Info("Worker started")

	runJob(ctx, job, app.paymentService)
	for {
		select {
		case <-ctx.Done():
			logger.Info("Worker shutdown requested")
			return
		case <-ticker.C:
			runJob(ctx, job, app.paymentService)
		}
	}
}

func runJob(ctx context.Context, job batchJob, paymentService *service.PaymentService) {
	start := time.Now()
	err := job.run(ctx, paymentService)
	metrics.ObserveJob(job.name, start, err)

	entry := logrus.WithFields(logrus.Fields{
		"job":     job.name,
		"latency": time.Since(start).String(),
	})
	if err != nil {
		entry.WithError(err).Error("job_failed")
		return
	}
	entry.Info("job_completed")
}
