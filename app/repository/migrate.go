package repository

import (
	"database/sql"

	"github.com/KipkuruiYegon/MPESA-Telegram-Bot/migrations"
	"github.com/pressly/goose/v3"
)

func init() {
	goose.SetBaseFS(migrations.FS)
}

func Migrate(db *sql.DB) error {
	if err := goose.SetDialect("mysql"); err != nil {
		return err
	}
	return goose.Up(db, ".")
}

func MigrationStatus(db *sql.DB) error {
	if err := goose.SetDialect("mysql"); err != nil {
		return err
	}
	return goose.Status(db, ".")
}
