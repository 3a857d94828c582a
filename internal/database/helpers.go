package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"fund-session-engine/internal/store"

	"go.uber.org/zap"
)

func closeRows(rows *sql.Rows) {
	if err := rows.Close(); err != nil {
		zap.L().Warn("Failed to close rows", zap.Error(err))
	}
}

// execCount runs a statement and returns the number of affected rows.
func execCount(ctx context.Context, tx *sql.Tx, query string, args ...any) (int64, error) {
	result, err := tx.ExecContext(ctx, query, args...)
	if err != nil {
		return 0, err
	}
	return result.RowsAffected()
}

// execOne runs a statement that must touch exactly one row identified by
// what; zero rows means the row does not exist.
func execOne(ctx context.Context, tx *sql.Tx, what string, query string, args ...any) error {
	n, err := execCount(ctx, tx, query, args...)
	if err != nil {
		return err
	}
	if n == 0 {
		return fmt.Errorf("%w: %s", store.ErrNotFound, what)
	}
	return nil
}

// requireRow fails with ErrNotFound unless the existence query returns a row.
func requireRow(ctx context.Context, tx *sql.Tx, what string, query string, args ...any) error {
	var one int
	err := tx.QueryRowContext(ctx, query, args...).Scan(&one)
	if errors.Is(err, sql.ErrNoRows) {
		return fmt.Errorf("%w: %s", store.ErrNotFound, what)
	}
	return err
}
