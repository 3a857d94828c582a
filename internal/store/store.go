package store

import (
	"context"
	"errors"
	"iter"
	"time"

	"fund-session-engine/internal/models"
)

// Sentinel errors shared across all backend implementations.
var (
	ErrNotFound            = errors.New("not found")
	ErrDuplicateUUID       = errors.New("duplicate node uuid")
	ErrDuplicateUsername   = errors.New("duplicate username")
	ErrDuplicateEmail      = errors.New("duplicate email")
	ErrDuplicatePublicKey  = errors.New("duplicate public key")
	ErrInvalidFormat       = errors.New("invalid format")
	ErrAlreadyClosed       = errors.New("connection already closed")
	ErrAlreadyRevoked      = errors.New("dev key already revoked")
	ErrConstraintViolation = errors.New("constraint violation")
	ErrStorageUnavailable  = errors.New("storage unavailable")
)

// NodeCascade reports what a node deregistration removed.
type NodeCascade struct {
	Connections  int64
	AuthRequests int64
	LogEntries   int64
}

// UserCascade reports what a user deletion removed.
type UserCascade struct {
	DevKeys    int64
	Wallets    int64
	Portfolios int64
}

// TopologyRegistry tracks registered server nodes.
type TopologyRegistry interface {
	RegisterNode(ctx context.Context, name string, role models.NodeRole, nodeUUID string) (int64, error)
	EnsureNode(ctx context.Context, name string, role models.NodeRole, nodeUUID string, state models.Blob) (*models.Node, bool, error)
	GetNode(ctx context.Context, nodeId int64) (*models.Node, error)
	GetNodeByUUID(ctx context.Context, nodeUUID string) (*models.Node, error)
	ListNodes(ctx context.Context) ([]models.Node, error)
	SetNodeStatus(ctx context.Context, nodeId int64, status models.NodeStatus) error
	UpdateNodeState(ctx context.Context, nodeId int64, state models.Blob) error
	DeregisterNode(ctx context.Context, nodeId int64) (NodeCascade, error)
}

// ConnectionTracker tracks per-node network sessions.
type ConnectionTracker interface {
	OpenConnection(ctx context.Context, nodeId int64, address string) (int64, error)
	CloseConnection(ctx context.Context, connectionId int64) error
	GetConnection(ctx context.Context, connectionId int64) (*models.Connection, error)
	// ListActiveConnections yields the node's active connections ordered by
	// open time. Each range over the sequence runs a fresh query.
	ListActiveConnections(ctx context.Context, nodeId int64) iter.Seq2[models.Connection, error]
}

// AuthFlowEngine records authentication attempts against connections.
type AuthFlowEngine interface {
	RecordAttempt(ctx context.Context, connectionId int64, success bool, content models.Blob) (int64, error)
	GetAuthRequest(ctx context.Context, authRequestId int64) (*models.AuthRequest, error)
	ListAuthRequests(ctx context.Context, connectionId int64) ([]models.AuthRequest, error)
	FailureRate(ctx context.Context, nodeId int64, window models.TimeWindow) (models.FailureRate, error)
}

// AuditLog is an append-only log scoped to nodes.
type AuditLog interface {
	AppendLog(ctx context.Context, nodeId int64, level models.LogLevel, message string, content models.Blob) (int64, error)
	// QueryLogs yields entries ordered by (timestamp, id), bounded by what is
	// stored when iteration starts.
	QueryLogs(ctx context.Context, nodeId int64, filter models.LogFilter) iter.Seq2[models.LogEntry, error]
}

// IdentityStore manages user accounts.
type IdentityStore interface {
	CreateUser(ctx context.Context, user models.NewUser) (int64, error)
	GetUser(ctx context.Context, userId int64) (*models.User, error)
	GetUserByUsername(ctx context.Context, username string) (*models.User, error)
	GetUserByEmail(ctx context.Context, email string) (*models.User, error)
	SetVerified(ctx context.Context, userId int64, verified bool) error
	SetDevStatus(ctx context.Context, userId int64, devStatus bool) error
	SetTradeStatus(ctx context.Context, userId int64, tradeStatus bool) error
	DeleteUser(ctx context.Context, userId int64) (UserCascade, error)
}

// CredentialStore manages developer keys and wallets.
type CredentialStore interface {
	IssueDevKey(ctx context.Context, userId int64) (int64, string, error)
	RevokeDevKey(ctx context.Context, devKeyId int64) error
	GetDevKey(ctx context.Context, devKeyId int64) (*models.DevKey, error)
	ListDevKeys(ctx context.Context, userId int64) ([]models.DevKey, error)
	ProvisionWallet(ctx context.Context, wallet models.NewWallet) (int64, error)
	ProvisionInternalWallet(ctx context.Context, userId int64) (int64, error)
	GetWallet(ctx context.Context, walletId int64) (*models.Wallet, error)
	ListWallets(ctx context.Context, userId int64) ([]models.Wallet, error)
}

// PortfolioStore manages holdings snapshots.
type PortfolioStore interface {
	CreatePortfolio(ctx context.Context, userId int64) (int64, error)
	UpsertHoldings(ctx context.Context, userId int64, holdings models.Holdings) (*models.Portfolio, error)
	GetPortfolio(ctx context.Context, userId int64) (*models.Portfolio, error)
	ListPortfolios(ctx context.Context, userId int64) ([]models.Portfolio, error)
}

// Engine is the full contract every backend must satisfy.
type Engine interface {
	TopologyRegistry
	ConnectionTracker
	AuthFlowEngine
	AuditLog
	IdentityStore
	CredentialStore
	PortfolioStore

	Close()
}

// KeyGenerator supplies key material. The engine only checks its shape and uniqueness.
type KeyGenerator interface {
	DevKey() (string, error)
	WalletKeyPair() (publicKey, privateKey string, err error)
}

// Event kinds published after a commit.
const (
	EventNodeRegistered   = "node.registered"
	EventNodeStatus       = "node.status"
	EventNodeDeregistered = "node.deregistered"
	EventConnectionOpened = "connection.opened"
	EventConnectionClosed = "connection.closed"
	EventAuthAttempt      = "auth.attempt"
	EventLogAppended      = "log.appended"
)

// Event describes a committed change to the topology side of the engine.
type Event struct {
	Kind     string      `json:"kind"`
	NodeId   int64       `json:"node_id"`
	EntityId int64       `json:"entity_id"`
	Detail   string      `json:"detail,omitempty"`
	Content  models.Blob `json:"content,omitempty"`
	At       time.Time   `json:"at"`
}

// EventPublisher fans committed events out to observers. Implementations log
// their own failures; publishing never fails an engine operation.
type EventPublisher interface {
	Publish(ctx context.Context, event Event)
}
