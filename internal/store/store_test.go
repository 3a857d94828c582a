package store

import (
	"errors"
	"fmt"
	"testing"
)

// Compile-time checks that the interface is importable and usable.
func TestEngineInterfaceExists(t *testing.T) {
	var _ Engine
	var _ KeyGenerator
	var _ EventPublisher
	_ = NodeCascade{}
	_ = UserCascade{}
}

func TestSentinelErrorsAreDistinct(t *testing.T) {
	sentinels := []error{
		ErrNotFound, ErrDuplicateUUID, ErrDuplicateUsername, ErrDuplicateEmail,
		ErrDuplicatePublicKey, ErrInvalidFormat, ErrAlreadyClosed, ErrAlreadyRevoked,
		ErrConstraintViolation, ErrStorageUnavailable,
	}

	for i, a := range sentinels {
		wrapped := fmt.Errorf("operation failed: %w", a)
		for j, b := range sentinels {
			if got := errors.Is(wrapped, b); got != (i == j) {
				t.Errorf("errors.Is(%v, %v) = %v", wrapped, b, got)
			}
		}
	}
}
