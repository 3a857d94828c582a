package database

import (
	"context"
	"database/sql"
	"database/sql/driver"
	"errors"
	"fmt"
	"testing"

	"fund-session-engine/internal/store"

	"github.com/mattn/go-sqlite3"
	"github.com/stretchr/testify/assert"
)

func TestClassifyError(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want error
	}{
		{"busy", sqlite3.Error{Code: sqlite3.ErrBusy}, store.ErrStorageUnavailable},
		{"io", fmt.Errorf("wrapped: %w", sqlite3.Error{Code: sqlite3.ErrIoErr}), store.ErrStorageUnavailable},
		{"readonly", sqlite3.Error{Code: sqlite3.ErrReadonly}, store.ErrStorageUnavailable},
		{"check constraint", sqlite3.Error{Code: sqlite3.ErrConstraint, ExtendedCode: sqlite3.ErrConstraintCheck}, store.ErrConstraintViolation},
		{"foreign key", sqlite3.Error{Code: sqlite3.ErrConstraint, ExtendedCode: sqlite3.ErrConstraintForeignKey}, store.ErrConstraintViolation},
		{"conn done", sql.ErrConnDone, store.ErrStorageUnavailable},
		{"bad conn", driver.ErrBadConn, store.ErrStorageUnavailable},
		{"already classified", fmt.Errorf("%w: node 3", store.ErrNotFound), store.ErrNotFound},
		{"cancelled", context.Canceled, context.Canceled},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := classifyError(tt.err)
			assert.ErrorIs(t, got, tt.want)
			assert.ErrorIs(t, got, tt.err)
		})
	}

	assert.NoError(t, classifyError(nil))

	plain := errors.New("boom")
	assert.Equal(t, plain, classifyError(plain))
}

func TestClassifyError_SentinelsDoNotLeak(t *testing.T) {
	err := classifyError(sqlite3.Error{Code: sqlite3.ErrBusy})
	assert.NotErrorIs(t, err, store.ErrConstraintViolation)
	assert.NotErrorIs(t, err, store.ErrNotFound)
}
