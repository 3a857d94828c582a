package models

import (
	"time"
)

// Node is a registered server instance
type Node struct {
	Id        int64      `db:"id"`
	Name      string     `db:"name"`
	Role      NodeRole   `db:"role"`
	UUID      string     `db:"uuid"`
	Status    NodeStatus `db:"status"`
	State     Blob       `db:"state"`
	CreatedAt time.Time  `db:"created_at"`
}

// Connection is one network session between a peer and a node
type Connection struct {
	Id       int64      `db:"id"`
	NodeId   int64      `db:"node_id"`
	Address  string     `db:"address"`
	OpenedAt time.Time  `db:"opened_at"`
	ClosedAt *time.Time `db:"closed_at"`
	Active   bool       `db:"active"`
}

// AuthRequest is an immutable authentication attempt. Address and NodeId are
// copied from the connection when the attempt is recorded and never re-synced.
type AuthRequest struct {
	Id           int64     `db:"id"`
	ConnectionId int64     `db:"connection_id"`
	Address      string    `db:"address"`
	NodeId       int64     `db:"node_id"`
	Success      bool      `db:"result"`
	Content      Blob      `db:"content"`
	CreatedAt    time.Time `db:"created_at"`
}

// LogEntry is an append-only audit record scoped to a node
type LogEntry struct {
	Id        int64     `db:"id"`
	NodeId    int64     `db:"node_id"`
	Level     LogLevel  `db:"level"`
	Message   string    `db:"message"`
	Content   Blob      `db:"content"`
	CreatedAt time.Time `db:"created_at"`
}

// User represents a platform account
type User struct {
	Id             int64     `db:"id"`
	Username       string    `db:"username"`
	Email          string    `db:"email"`
	Verified       bool      `db:"verified"`
	CredentialHash string    `db:"credential_hash"`
	Birthday       time.Time `db:"birthday"`
	DevStatus      bool      `db:"dev_status"`
	TradeStatus    bool      `db:"trade_status"`
	CreatedAt      time.Time `db:"created_at"`
}

// NewUser carries the fields supplied at registration
type NewUser struct {
	Username       string
	Email          string
	CredentialHash string
	Birthday       time.Time
}

// DevKey is a developer API key owned by a user
type DevKey struct {
	Id          int64     `db:"id"`
	UserId      int64     `db:"user_id"`
	KeyMaterial string    `db:"key_material"`
	Revoked     bool      `db:"revoked"`
	CreatedAt   time.Time `db:"created_at"`
}

// Wallet is a key pair owned by a user. Internal wallets carry platform generated keys.
type Wallet struct {
	Id         int64  `db:"id"`
	UserId     int64  `db:"user_id"`
	Internal   bool   `db:"internal"`
	PublicKey  string `db:"public_key"`
	PrivateKey string `db:"private_key"`
}

// NewWallet carries the fields supplied when provisioning a wallet
type NewWallet struct {
	UserId     int64
	Internal   bool
	PublicKey  string
	PrivateKey string
}

// Portfolio is a per-user holdings snapshot
type Portfolio struct {
	Id        int64     `db:"id"`
	UserId    int64     `db:"user_id"`
	Holdings  Holdings  `db:"holdings"`
	CreatedAt time.Time `db:"created_at"`
	UpdatedAt time.Time `db:"updated_at"`
}
