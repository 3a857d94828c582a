package models

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

type NodeRole string

const (
	NodeRoleParent NodeRole = "parent"
	NodeRoleChild  NodeRole = "child"
)

func (r NodeRole) Valid() bool {
	return r == NodeRoleParent || r == NodeRoleChild
}

// RoleFromName derives a node role from its package name: names ending in
// "core" are parents, names ending in "child" are children, anything else
// falls back to parent.
func RoleFromName(name string) NodeRole {
	switch {
	case strings.HasSuffix(name, "core"):
		return NodeRoleParent
	case strings.HasSuffix(name, "child"):
		return NodeRoleChild
	default:
		return NodeRoleParent
	}
}

type NodeStatus string

const (
	NodeStatusActive      NodeStatus = "active"
	NodeStatusInactive    NodeStatus = "inactive"
	NodeStatusMaintenance NodeStatus = "maintenance"
	NodeStatusError       NodeStatus = "error"
)

func (s NodeStatus) Valid() bool {
	switch s {
	case NodeStatusActive, NodeStatusInactive, NodeStatusMaintenance, NodeStatusError:
		return true
	}
	return false
}

type LogLevel string

const (
	LogLevelDebug LogLevel = "DEBUG"
	LogLevelInfo  LogLevel = "INFO"
	LogLevelWarn  LogLevel = "WARN"
	LogLevelError LogLevel = "ERROR"
	LogLevelFatal LogLevel = "FATAL"
)

var logSeverity = map[LogLevel]int{
	LogLevelDebug: 0,
	LogLevelInfo:  1,
	LogLevelWarn:  2,
	LogLevelError: 3,
	LogLevelFatal: 4,
}

func (l LogLevel) Valid() bool {
	_, ok := logSeverity[l]
	return ok
}

// Severity orders levels from DEBUG (0) to FATAL (4); unknown levels return -1.
func (l LogLevel) Severity() int {
	if s, ok := logSeverity[l]; ok {
		return s
	}
	return -1
}

// LevelsAtOrAbove lists the levels whose severity is at least floor's
func LevelsAtOrAbove(floor LogLevel) []LogLevel {
	if !floor.Valid() {
		return nil
	}
	var levels []LogLevel
	for _, l := range []LogLevel{LogLevelDebug, LogLevelInfo, LogLevelWarn, LogLevelError, LogLevelFatal} {
		if l.Severity() >= floor.Severity() {
			levels = append(levels, l)
		}
	}
	return levels
}

// ParseLogLevel accepts a level name in any case
func ParseLogLevel(s string) (LogLevel, error) {
	l := LogLevel(strings.ToUpper(strings.TrimSpace(s)))
	if !l.Valid() {
		return "", fmt.Errorf("unknown log level %q", s)
	}
	return l, nil
}

// Blob is an opaque structured payload. The engine stores and returns it
// byte for byte and never looks inside.
type Blob []byte

// EmptyBlob is stored when a caller supplies no content
var EmptyBlob = Blob("{}")

// JSONBlob serialises v into a Blob
func JSONBlob(v any) (Blob, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("unable to encode blob: %w", err)
	}
	return Blob(data), nil
}

// OrEmpty returns EmptyBlob for a nil blob
func (b Blob) OrEmpty() Blob {
	if b == nil {
		return EmptyBlob
	}
	return b
}

// Holdings maps an instrument symbol to the held quantity
type Holdings map[string]decimal.Decimal

func (h Holdings) Validate() error {
	for instrument := range h {
		if strings.TrimSpace(instrument) == "" {
			return fmt.Errorf("holdings contain an empty instrument symbol")
		}
	}
	return nil
}

// TimeWindow is the half-open interval [From, To). A zero bound is unbounded.
type TimeWindow struct {
	From time.Time
	To   time.Time
}

// FailureRate summarises authentication outcomes over a window
type FailureRate struct {
	Attempts int64
	Failures int64
}

// Rate is Failures/Attempts, or 0 when nothing was attempted
func (f FailureRate) Rate() float64 {
	if f.Attempts == 0 {
		return 0
	}
	return float64(f.Failures) / float64(f.Attempts)
}

// LogFilter narrows an audit log query. Nil fields are ignored.
type LogFilter struct {
	MinLevel *LogLevel
	Since    *time.Time
}
