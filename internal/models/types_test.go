package models

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRoleFromName(t *testing.T) {
	tests := []struct {
		name     string
		expected NodeRole
	}{
		{"fund-core", NodeRoleParent},
		{"fund-child", NodeRoleChild},
		{"fund-edge", NodeRoleParent},
		{"", NodeRoleParent},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, RoleFromName(tt.name))
		})
	}
}

func TestLevelsAtOrAbove(t *testing.T) {
	assert.Equal(t, []LogLevel{LogLevelWarn, LogLevelError, LogLevelFatal}, LevelsAtOrAbove(LogLevelWarn))
	assert.Len(t, LevelsAtOrAbove(LogLevelDebug), 5)
	assert.Equal(t, []LogLevel{LogLevelFatal}, LevelsAtOrAbove(LogLevelFatal))
	assert.Empty(t, LevelsAtOrAbove(LogLevel("TRACE")))
}

func TestParseLogLevel(t *testing.T) {
	level, err := ParseLogLevel(" warn ")
	require.NoError(t, err)
	assert.Equal(t, LogLevelWarn, level)

	_, err = ParseLogLevel("TRACE")
	assert.Error(t, err)
}

func TestFailureRate(t *testing.T) {
	assert.Equal(t, 0.0, FailureRate{}.Rate())
	assert.Equal(t, 0.5, FailureRate{Attempts: 2, Failures: 1}.Rate())
}

func TestHoldingsValidate(t *testing.T) {
	assert.NoError(t, Holdings{"BTC": decimal.NewFromInt(1)}.Validate())
	assert.Error(t, Holdings{" ": decimal.NewFromInt(1)}.Validate())
}

func TestBlobOrEmpty(t *testing.T) {
	assert.Equal(t, EmptyBlob, Blob(nil).OrEmpty())
	assert.Equal(t, Blob(`{"a":1}`), Blob(`{"a":1}`).OrEmpty())
}
