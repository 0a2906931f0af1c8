package app

import (
	"context"
	"fmt"

	"github.com/kursadbilgin/notification-platform/internal/config"
	"github.com/kursadbilgin/notification-platform/internal/infra/postgresql"
	"github.com/kursadbilgin/notification-platform/internal/infra/postgresql/migrations"
	"github.com/kursadbilgin/notification-platform/internal/observability"
	"go.uber.org/zap"
)

// RunMigrations applies ("up") or reverts the last ("down") schema migration.
func RunMigrations(ctx context.Context, cfg *config.Config, action string) error {
	if err := cfg.RequireDatabase(); err != nil {
		return err
	}

	logger, err := observability.NewLogger(cfg.LogLevel, "migrate")
	if err != nil {
		return err
	}
	defer logger.Sync() //nolint:errcheck

	db, err := postgresql.NewPostgres(ctx, cfg.DatabaseDSN, 1)
	if err != nil {
		return fmt.Errorf("postgres initialization failed: %w", err)
	}
	if sqlDB, err := db.DB(); err == nil {
		defer sqlDB.Close() //nolint:errcheck
	}

	switch action {
	case "up":
		err = migrations.Migrate(db)
	case "down":
		err = migrations.RollbackLast(db)
	default:
		return fmt.Errorf("unknown migrate action %q: want up or down", action)
	}
	if err != nil {
		return fmt.Errorf("migrate %s failed: %w", action, err)
	}

	logger.Info("database migrations finished", zap.String("action", action))
	return nil
}
