package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"fund-session-engine/internal/models"
	"fund-session-engine/internal/store"

	"go.uber.org/zap"
)

func scanAuthRequest(row rowScanner) (*models.AuthRequest, error) {
	var req models.AuthRequest
	var content []byte
	if err := row.Scan(&req.Id, &req.ConnectionId, &req.Address, &req.NodeId, &req.Success, &content, &req.CreatedAt); err != nil {
		return nil, err
	}
	req.Content = models.Blob(content)
	return &req, nil
}

// RecordAttempt stores one immutable authentication outcome. The
// connection's node and address are copied at this moment and are never
// re-derived later.
func (s *Service) RecordAttempt(ctx context.Context, connectionId int64, success bool, content models.Blob) (int64, error) {
	var req models.AuthRequest
	err := s.withTx(ctx, func(tx *sql.Tx) error {
		err := tx.QueryRowContext(ctx, queryGetConnectionSnapshot, connectionId).Scan(&req.NodeId, &req.Address)
		if errors.Is(err, sql.ErrNoRows) {
			return fmt.Errorf("%w: connection %d", store.ErrNotFound, connectionId)
		}
		if err != nil {
			return fmt.Errorf("unable to read connection: %w", err)
		}

		req.ConnectionId = connectionId
		req.Success = success
		req.Content = content.OrEmpty()
		req.CreatedAt = s.clock()

		result, err := tx.ExecContext(ctx, queryInsertAuthRequest,
			req.ConnectionId, req.Address, req.NodeId, req.Success, []byte(req.Content), req.CreatedAt)
		if err != nil {
			return fmt.Errorf("unable to insert auth request: %w", err)
		}
		req.Id, err = result.LastInsertId()
		return err
	})
	if err != nil {
		zap.L().Warn("Failed to record auth attempt", zap.Int64("connection_id", connectionId), zap.Error(err))
		return 0, err
	}

	zap.L().Info("Auth attempt recorded",
		zap.Int64("auth_request_id", req.Id),
		zap.Int64("connection_id", connectionId),
		zap.Int64("node_id", req.NodeId),
		zap.Bool("success", success))
	s.publish(ctx, store.Event{
		Kind:     store.EventAuthAttempt,
		NodeId:   req.NodeId,
		EntityId: req.Id,
		Detail:   fmt.Sprintf("success=%t", success),
	})
	return req.Id, nil
}

func (s *Service) GetAuthRequest(ctx context.Context, authRequestId int64) (*models.AuthRequest, error) {
	req, err := scanAuthRequest(s.db.QueryRowContext(ctx, queryGetAuthRequestById, authRequestId))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("%w: auth request %d", store.ErrNotFound, authRequestId)
		}
		return nil, classifyError(fmt.Errorf("unable to query auth request: %w", err))
	}
	return req, nil
}

// ListAuthRequests returns a connection's attempts in insertion order.
func (s *Service) ListAuthRequests(ctx context.Context, connectionId int64) ([]models.AuthRequest, error) {
	rows, err := s.db.QueryContext(ctx, queryListAuthRequests, connectionId)
	if err != nil {
		return nil, classifyError(fmt.Errorf("unable to query auth requests: %w", err))
	}
	defer closeRows(rows)

	var requests []models.AuthRequest
	for rows.Next() {
		req, err := scanAuthRequest(rows)
		if err != nil {
			return nil, classifyError(fmt.Errorf("unable to scan auth request row: %w", err))
		}
		requests = append(requests, *req)
	}

	if err := rows.Err(); err != nil {
		return nil, classifyError(fmt.Errorf("error iterating auth request rows: %w", err))
	}
	return requests, nil
}

// FailureRate counts failed and total attempts against a node inside the window.
func (s *Service) FailureRate(ctx context.Context, nodeId int64, window models.TimeWindow) (models.FailureRate, error) {
	var query strings.Builder
	query.WriteString(queryFailureRate)
	args := []any{nodeId}
	if !window.From.IsZero() {
		query.WriteString(" AND created_at >= ?")
		args = append(args, window.From.UTC())
	}
	if !window.To.IsZero() {
		query.WriteString(" AND created_at < ?")
		args = append(args, window.To.UTC())
	}

	var rate models.FailureRate
	if err := s.db.QueryRowContext(ctx, query.String(), args...).Scan(&rate.Attempts, &rate.Failures); err != nil {
		return models.FailureRate{}, classifyError(fmt.Errorf("unable to compute failure rate: %w", err))
	}

	zap.L().Debug("Computed auth failure rate",
		zap.Int64("node_id", nodeId),
		zap.Int64("attempts", rate.Attempts),
		zap.Int64("failures", rate.Failures))
	return rate, nil
}
