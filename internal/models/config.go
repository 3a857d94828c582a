package models

import "time"

// Config represents the application configuration
type Config struct {
	Database DatabaseConfig
	Node     NodeConfig
	Events   EventsConfig
	Monitor  MonitorConfig
	HTTP     HTTPConfig
}

// DatabaseConfig holds database connection settings
type DatabaseConfig struct {
	Path            string
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
	ConnMaxIdleTime time.Duration
	PingTimeout     time.Duration
	BusyTimeout     time.Duration
}

// NodeConfig holds settings for node self-registration
type NodeConfig struct {
	ManifestFile string
}

// EventsConfig holds settings for post-commit event fan-out.
// An empty RedisURL disables publishing.
type EventsConfig struct {
	RedisURL      string
	ChannelPrefix string
}

// MonitorConfig holds settings for the node health monitor
type MonitorConfig struct {
	PollingInterval  time.Duration
	LookbackWindow   time.Duration
	FailureThreshold float64
	MinAttempts      int
}

// HTTPConfig holds settings for the read-only node HTTP surface
type HTTPConfig struct {
	Addr string
}
