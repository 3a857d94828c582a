package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"fund-session-engine/internal/models"
	"fund-session-engine/internal/store"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

type rowScanner interface {
	Scan(dest ...any) error
}

func scanNode(row rowScanner) (*models.Node, error) {
	var node models.Node
	var state []byte
	if err := row.Scan(&node.Id, &node.Name, &node.Role, &node.UUID, &node.Status, &state, &node.CreatedAt); err != nil {
		return nil, err
	}
	node.State = models.Blob(state)
	return &node, nil
}

// canonicalUUID parses any spelling uuid.Parse accepts and returns the
// lower-case dashed form that is stored and compared.
func canonicalUUID(nodeUUID string) (string, error) {
	parsed, err := uuid.Parse(nodeUUID)
	if err != nil {
		return "", fmt.Errorf("%w: node uuid %q: %v", store.ErrInvalidFormat, nodeUUID, err)
	}
	return parsed.String(), nil
}

func validateNode(name string, role models.NodeRole, nodeUUID string) (string, error) {
	if strings.TrimSpace(name) == "" {
		return "", fmt.Errorf("%w: node name cannot be empty", store.ErrInvalidFormat)
	}
	if !role.Valid() {
		return "", fmt.Errorf("%w: unknown node role %q", store.ErrInvalidFormat, role)
	}
	return canonicalUUID(nodeUUID)
}

// RegisterNode adds a node in the inactive status with an empty state blob.
func (s *Service) RegisterNode(ctx context.Context, name string, role models.NodeRole, nodeUUID string) (int64, error) {
	node, err := s.insertNode(ctx, name, role, nodeUUID, nil)
	if err != nil {
		return 0, err
	}
	return node.Id, nil
}

func (s *Service) insertNode(ctx context.Context, name string, role models.NodeRole, nodeUUID string, state models.Blob) (*models.Node, error) {
	nodeUUID, err := validateNode(name, role, nodeUUID)
	if err != nil {
		return nil, err
	}

	node := &models.Node{
		Name:      name,
		Role:      role,
		UUID:      nodeUUID,
		Status:    models.NodeStatusInactive,
		State:     state.OrEmpty(),
		CreatedAt: s.clock(),
	}

	err = s.withTx(ctx, func(tx *sql.Tx) error {
		result, err := tx.ExecContext(ctx, queryInsertNode,
			node.Name, string(node.Role), node.UUID, string(node.Status), []byte(node.State), node.CreatedAt)
		if err != nil {
			return fmt.Errorf("unable to insert node: %w", err)
		}
		node.Id, err = result.LastInsertId()
		return err
	})
	if err != nil {
		if errors.Is(err, store.ErrDuplicateUUID) {
			zap.L().Warn("Node uuid already registered", zap.String("uuid", nodeUUID))
		} else {
			zap.L().Error("Failed to register node", zap.String("uuid", nodeUUID), zap.Error(err))
		}
		return nil, err
	}

	zap.L().Info("Registered node",
		zap.Int64("node_id", node.Id),
		zap.String("name", name),
		zap.String("role", string(role)),
		zap.String("uuid", nodeUUID))
	s.publish(ctx, store.Event{Kind: store.EventNodeRegistered, NodeId: node.Id, EntityId: node.Id, Detail: string(role)})
	return node, nil
}

// EnsureNode returns the node registered under nodeUUID, registering it with
// the given state when absent. The boolean reports whether it was created.
// Existing registrations are returned untouched.
func (s *Service) EnsureNode(ctx context.Context, name string, role models.NodeRole, nodeUUID string, state models.Blob) (*models.Node, bool, error) {
	existing, err := s.GetNodeByUUID(ctx, nodeUUID)
	if err == nil {
		zap.L().Info("Node already registered",
			zap.Int64("node_id", existing.Id),
			zap.String("name", existing.Name))
		return existing, false, nil
	}
	if !errors.Is(err, store.ErrNotFound) {
		return nil, false, err
	}

	node, err := s.insertNode(ctx, name, role, nodeUUID, state)
	if errors.Is(err, store.ErrDuplicateUUID) {
		// Lost a race with another registrant.
		existing, err := s.GetNodeByUUID(ctx, nodeUUID)
		return existing, false, err
	}
	if err != nil {
		return nil, false, err
	}
	return node, true, nil
}

func (s *Service) GetNode(ctx context.Context, nodeId int64) (*models.Node, error) {
	zap.L().Debug("Querying node by ID", zap.Int64("node_id", nodeId))

	node, err := scanNode(s.db.QueryRowContext(ctx, queryGetNodeById, nodeId))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("%w: node %d", store.ErrNotFound, nodeId)
		}
		return nil, classifyError(fmt.Errorf("unable to query node by ID: %w", err))
	}
	return node, nil
}

// GetNodeByUUID looks a node up by any accepted spelling of its uuid.
func (s *Service) GetNodeByUUID(ctx context.Context, nodeUUID string) (*models.Node, error) {
	nodeUUID, err := canonicalUUID(nodeUUID)
	if err != nil {
		return nil, err
	}
	zap.L().Debug("Querying node by uuid", zap.String("uuid", nodeUUID))

	node, err := scanNode(s.db.QueryRowContext(ctx, queryGetNodeByUUID, nodeUUID))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("%w: node %s", store.ErrNotFound, nodeUUID)
		}
		return nil, classifyError(fmt.Errorf("unable to query node by uuid: %w", err))
	}
	return node, nil
}

func (s *Service) ListNodes(ctx context.Context) ([]models.Node, error) {
	rows, err := s.db.QueryContext(ctx, queryListNodes)
	if err != nil {
		zap.L().Error("Failed to query nodes", zap.Error(err))
		return nil, classifyError(fmt.Errorf("unable to query nodes: %w", err))
	}
	defer closeRows(rows)

	var nodes []models.Node
	for rows.Next() {
		node, err := scanNode(rows)
		if err != nil {
			return nil, classifyError(fmt.Errorf("unable to scan node row: %w", err))
		}
		nodes = append(nodes, *node)
	}

	// Check for errors during iteration
	if err := rows.Err(); err != nil {
		return nil, classifyError(fmt.Errorf("error iterating node rows: %w", err))
	}

	zap.L().Debug("Retrieved nodes", zap.Int("count", len(nodes)))
	return nodes, nil
}

// SetNodeStatus moves a node to any status; no transition is forbidden.
func (s *Service) SetNodeStatus(ctx context.Context, nodeId int64, status models.NodeStatus) error {
	if !status.Valid() {
		return fmt.Errorf("%w: unknown node status %q", store.ErrInvalidFormat, status)
	}

	err := s.withTx(ctx, func(tx *sql.Tx) error {
		return execOne(ctx, tx, fmt.Sprintf("node %d", nodeId), queryUpdateNodeStatus, string(status), nodeId)
	})
	if err != nil {
		return err
	}

	zap.L().Info("Node status set", zap.Int64("node_id", nodeId), zap.String("status", string(status)))
	s.publish(ctx, store.Event{Kind: store.EventNodeStatus, NodeId: nodeId, EntityId: nodeId, Detail: string(status)})
	return nil
}

// UpdateNodeState overwrites the node's opaque state blob.
func (s *Service) UpdateNodeState(ctx context.Context, nodeId int64, state models.Blob) error {
	err := s.withTx(ctx, func(tx *sql.Tx) error {
		return execOne(ctx, tx, fmt.Sprintf("node %d", nodeId), queryUpdateNodeState, []byte(state.OrEmpty()), nodeId)
	})
	if err != nil {
		return err
	}

	zap.L().Debug("Node state updated", zap.Int64("node_id", nodeId), zap.Int("bytes", len(state)))
	return nil
}

// DeregisterNode deletes the node together with its connections, auth
// requests and logs. Dependents are removed first, all in one transaction.
func (s *Service) DeregisterNode(ctx context.Context, nodeId int64) (store.NodeCascade, error) {
	var cascade store.NodeCascade

	err := s.withTx(ctx, func(tx *sql.Tx) error {
		if err := requireRow(ctx, tx, fmt.Sprintf("node %d", nodeId), queryNodeExists, nodeId); err != nil {
			return err
		}

		var err error
		if cascade.AuthRequests, err = execCount(ctx, tx, queryDeleteNodeAuthRequests, nodeId, nodeId); err != nil {
			return fmt.Errorf("unable to delete auth requests: %w", err)
		}
		if cascade.Connections, err = execCount(ctx, tx, queryDeleteNodeConnections, nodeId); err != nil {
			return fmt.Errorf("unable to delete connections: %w", err)
		}
		if cascade.LogEntries, err = execCount(ctx, tx, queryDeleteNodeLogs, nodeId); err != nil {
			return fmt.Errorf("unable to delete logs: %w", err)
		}
		return execOne(ctx, tx, fmt.Sprintf("node %d", nodeId), queryDeleteNode, nodeId)
	})
	if err != nil {
		zap.L().Error("Failed to deregister node", zap.Int64("node_id", nodeId), zap.Error(err))
		return store.NodeCascade{}, err
	}

	zap.L().Info("Node deregistered",
		zap.Int64("node_id", nodeId),
		zap.Int64("connections", cascade.Connections),
		zap.Int64("auth_requests", cascade.AuthRequests),
		zap.Int64("log_entries", cascade.LogEntries))
	s.publish(ctx, store.Event{Kind: store.EventNodeDeregistered, NodeId: nodeId, EntityId: nodeId})
	return cascade, nil
}
