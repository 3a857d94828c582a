package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"iter"
	"strings"

	"fund-session-engine/internal/models"
	"fund-session-engine/internal/store"

	"go.uber.org/zap"
)

func scanConnection(row rowScanner) (*models.Connection, error) {
	var conn models.Connection
	var closedAt sql.NullTime
	if err := row.Scan(&conn.Id, &conn.NodeId, &conn.Address, &conn.OpenedAt, &closedAt, &conn.Active); err != nil {
		return nil, err
	}
	if closedAt.Valid {
		t := closedAt.Time
		conn.ClosedAt = &t
	}
	return &conn, nil
}

// OpenConnection records a new active session against an existing node.
func (s *Service) OpenConnection(ctx context.Context, nodeId int64, address string) (int64, error) {
	if strings.TrimSpace(address) == "" {
		return 0, fmt.Errorf("%w: connection address cannot be empty", store.ErrInvalidFormat)
	}

	var connectionId int64
	err := s.withTx(ctx, func(tx *sql.Tx) error {
		if err := requireRow(ctx, tx, fmt.Sprintf("node %d", nodeId), queryNodeExists, nodeId); err != nil {
			return err
		}

		result, err := tx.ExecContext(ctx, queryInsertConnection, nodeId, address, s.clock())
		if err != nil {
			return fmt.Errorf("unable to insert connection: %w", err)
		}
		connectionId, err = result.LastInsertId()
		return err
	})
	if err != nil {
		zap.L().Warn("Failed to open connection", zap.Int64("node_id", nodeId), zap.String("address", address), zap.Error(err))
		return 0, err
	}

	zap.L().Info("Connection opened",
		zap.Int64("connection_id", connectionId),
		zap.Int64("node_id", nodeId),
		zap.String("address", address))
	s.publish(ctx, store.Event{Kind: store.EventConnectionOpened, NodeId: nodeId, EntityId: connectionId, Detail: address})
	return connectionId, nil
}

// CloseConnection flips an active connection to closed exactly once. A
// second close fails with ErrAlreadyClosed.
func (s *Service) CloseConnection(ctx context.Context, connectionId int64) error {
	var nodeId int64
	err := s.withTx(ctx, func(tx *sql.Tx) error {
		n, err := execCount(ctx, tx, queryCloseConnection, s.clock(), connectionId)
		if err != nil {
			return fmt.Errorf("unable to close connection: %w", err)
		}

		var address string
		err = tx.QueryRowContext(ctx, queryGetConnectionSnapshot, connectionId).Scan(&nodeId, &address)
		if errors.Is(err, sql.ErrNoRows) {
			return fmt.Errorf("%w: connection %d", store.ErrNotFound, connectionId)
		}
		if err != nil {
			return err
		}
		if n == 0 {
			return fmt.Errorf("%w: connection %d", store.ErrAlreadyClosed, connectionId)
		}
		return nil
	})
	if err != nil {
		zap.L().Warn("Failed to close connection", zap.Int64("connection_id", connectionId), zap.Error(err))
		return err
	}

	zap.L().Info("Connection closed", zap.Int64("connection_id", connectionId), zap.Int64("node_id", nodeId))
	s.publish(ctx, store.Event{Kind: store.EventConnectionClosed, NodeId: nodeId, EntityId: connectionId})
	return nil
}

func (s *Service) GetConnection(ctx context.Context, connectionId int64) (*models.Connection, error) {
	zap.L().Debug("Querying connection by ID", zap.Int64("connection_id", connectionId))

	conn, err := scanConnection(s.db.QueryRowContext(ctx, queryGetConnectionById, connectionId))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("%w: connection %d", store.ErrNotFound, connectionId)
		}
		return nil, classifyError(fmt.Errorf("unable to query connection: %w", err))
	}
	return conn, nil
}

// ListActiveConnections streams the node's active connections ordered by
// open time. Rows are read as the caller ranges; ranging again re-queries.
func (s *Service) ListActiveConnections(ctx context.Context, nodeId int64) iter.Seq2[models.Connection, error] {
	return func(yield func(models.Connection, error) bool) {
		rows, err := s.db.QueryContext(ctx, queryListActiveConnections, nodeId)
		if err != nil {
			yield(models.Connection{}, classifyError(fmt.Errorf("unable to query active connections: %w", err)))
			return
		}
		defer closeRows(rows)

		for rows.Next() {
			conn, err := scanConnection(rows)
			if err != nil {
				yield(models.Connection{}, classifyError(fmt.Errorf("unable to scan connection row: %w", err)))
				return
			}
			if !yield(*conn, nil) {
				return
			}
		}

		if err := rows.Err(); err != nil {
			yield(models.Connection{}, classifyError(fmt.Errorf("error iterating connection rows: %w", err)))
		}
	}
}
