package cmd

import (
	"database/sql"

	"github.com/KipkuruiYegon/MPESA-Telegram-Bot/app/repository"
	"github.com/pressly/goose/v3"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
)

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Manage the database schema",
}

var migrateUpCmd = &cobra.Command{
	Use:   "up",
	Short: "Apply all pending migrations",
	Run: func(_ *cobra.Command, _ []string) {
		runMigration("up", repository.Migrate)
	},
}

var migrateStatusCmd = &cobra.Command{
	Use:   "status",
	Short: "Print the status of every migration",
	Run: func(_ *cobra.Command, _ []string) {
		runMigration("status", repository.MigrationStatus)
	},
}

func init() {
	rootCmd.AddCommand(migrateCmd)
	migrateCmd.AddCommand(migrateUpCmd)
	migrateCmd.AddCommand(migrateStatusCmd)
}

func runMigration(name string, fn func(db *sql.DB) error) {
	cfg := mustLoadConfig()
	goose.SetLogger(logrus.StandardLogger())

	db := mustOpenDatabase(cfg)
	defer db.Close()

	if err := fn(db); err != nil {
		logrus.WithError(err).WithField("command", name).Fatal("Migration failed")
	}
	logrus.WithField("command", name).Info("Migration finished")
}
