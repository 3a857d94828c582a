package database

import (
	"context"
	"database/sql"
	"database/sql/driver"
	"errors"
	"fmt"
	"strings"

	"fund-session-engine/internal/store"

	"github.com/mattn/go-sqlite3"
)

var domainErrors = []error{
	store.ErrNotFound,
	store.ErrDuplicateUUID,
	store.ErrDuplicateUsername,
	store.ErrDuplicateEmail,
	store.ErrDuplicatePublicKey,
	store.ErrInvalidFormat,
	store.ErrAlreadyClosed,
	store.ErrAlreadyRevoked,
	store.ErrConstraintViolation,
	store.ErrStorageUnavailable,
}

// uniqueColumns maps "table.column" from a UNIQUE failure to its sentinel.
var uniqueColumns = map[string]error{
	"nodes.uuid":         store.ErrDuplicateUUID,
	"users.username":     store.ErrDuplicateUsername,
	"users.email":        store.ErrDuplicateEmail,
	"wallets.public_key": store.ErrDuplicatePublicKey,
}

// classifyError translates driver failures into the store taxonomy. Errors
// that already carry a store sentinel and context errors pass through.
func classifyError(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return err
	}
	for _, sentinel := range domainErrors {
		if errors.Is(err, sentinel) {
			return err
		}
	}

	var sqliteErr sqlite3.Error
	if errors.As(err, &sqliteErr) {
		switch sqliteErr.Code {
		case sqlite3.ErrConstraint:
			return classifyConstraint(err, sqliteErr)
		case sqlite3.ErrIoErr, sqlite3.ErrCorrupt, sqlite3.ErrFull, sqlite3.ErrCantOpen,
			sqlite3.ErrNotADB, sqlite3.ErrBusy, sqlite3.ErrLocked, sqlite3.ErrReadonly,
			sqlite3.ErrProtocol, sqlite3.ErrNoLFS, sqlite3.ErrPerm:
			return fmt.Errorf("%w: %w", store.ErrStorageUnavailable, err)
		}
		return err
	}

	if errors.Is(err, sql.ErrConnDone) || errors.Is(err, driver.ErrBadConn) {
		return fmt.Errorf("%w: %w", store.ErrStorageUnavailable, err)
	}
	return err
}

func classifyConstraint(err error, sqliteErr sqlite3.Error) error {
	switch sqliteErr.ExtendedCode {
	case sqlite3.ErrConstraintUnique, sqlite3.ErrConstraintPrimaryKey:
		msg := sqliteErr.Error()
		for column, sentinel := range uniqueColumns {
			if strings.Contains(msg, column) {
				return fmt.Errorf("%w: %w", sentinel, err)
			}
		}
	}
	return fmt.Errorf("%w: %w", store.ErrConstraintViolation, err)
}

// isUniqueViolation reports whether err is a UNIQUE failure on table.column.
func isUniqueViolation(err error, column string) bool {
	var sqliteErr sqlite3.Error
	if !errors.As(err, &sqliteErr) {
		return false
	}
	return sqliteErr.ExtendedCode == sqlite3.ErrConstraintUnique && strings.Contains(sqliteErr.Error(), column)
}
