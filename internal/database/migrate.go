package database

import (
	"context"
	"database/sql"
	"embed"
	"fmt"

	"github.com/pressly/goose/v3"
	"go.uber.org/zap"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

func runMigrations(ctx context.Context, db *sql.DB) error {
	goose.SetLogger(gooseLogger{zap.S()})
	goose.SetBaseFS(migrationsFS)
	if err := goose.SetDialect("sqlite3"); err != nil {
		return err
	}

	if err := goose.UpContext(ctx, db, "migrations"); err != nil {
		return classifyError(fmt.Errorf("failed to apply migrations: %w", err))
	}

	version, err := goose.GetDBVersionContext(ctx, db)
	if err != nil {
		return classifyError(fmt.Errorf("failed to read schema version: %w", err))
	}
	zap.L().Info("Schema migrated", zap.Int64("version", version))
	return nil
}

// gooseLogger routes goose output through the global zap logger.
type gooseLogger struct {
	sugar *zap.SugaredLogger
}

func (l gooseLogger) Printf(format string, v ...interface{}) {
	l.sugar.Debugf(format, v...)
}

func (l gooseLogger) Fatalf(format string, v ...interface{}) {
	l.sugar.Fatalf(format, v...)
}
