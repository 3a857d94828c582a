package database

import (
	"context"
	"database/sql"
	"fmt"
	"iter"
	"strings"

	"fund-session-engine/internal/models"
	"fund-session-engine/internal/store"

	"go.uber.org/zap"
)

func scanLogEntry(row rowScanner) (*models.LogEntry, error) {
	var entry models.LogEntry
	var content []byte
	if err := row.Scan(&entry.Id, &entry.NodeId, &entry.Level, &entry.Message, &content, &entry.CreatedAt); err != nil {
		return nil, err
	}
	entry.Content = models.Blob(content)
	return &entry, nil
}

// AppendLog adds an audit entry for a node. Entries are never updated.
func (s *Service) AppendLog(ctx context.Context, nodeId int64, level models.LogLevel, message string, content models.Blob) (int64, error) {
	if !level.Valid() {
		return 0, fmt.Errorf("%w: unknown log level %q", store.ErrInvalidFormat, level)
	}

	var entryId int64
	err := s.withTx(ctx, func(tx *sql.Tx) error {
		if err := requireRow(ctx, tx, fmt.Sprintf("node %d", nodeId), queryNodeExists, nodeId); err != nil {
			return err
		}

		result, err := tx.ExecContext(ctx, queryInsertLog, nodeId, string(level), message, []byte(content.OrEmpty()), s.clock())
		if err != nil {
			return fmt.Errorf("unable to insert log entry: %w", err)
		}
		entryId, err = result.LastInsertId()
		return err
	})
	if err != nil {
		zap.L().Warn("Failed to append log entry", zap.Int64("node_id", nodeId), zap.Error(err))
		return 0, err
	}

	zap.L().Debug("Log entry appended",
		zap.Int64("log_id", entryId),
		zap.Int64("node_id", nodeId),
		zap.String("level", string(level)))
	s.publish(ctx, store.Event{
		Kind:     store.EventLogAppended,
		NodeId:   nodeId,
		EntityId: entryId,
		Detail:   fmt.Sprintf("%s %s", level, message),
		Content:  content,
	})
	return entryId, nil
}

// QueryLogs streams a node's entries ordered by (timestamp, id).
func (s *Service) QueryLogs(ctx context.Context, nodeId int64, filter models.LogFilter) iter.Seq2[models.LogEntry, error] {
	query, args := buildLogQuery(nodeId, filter)

	return func(yield func(models.LogEntry, error) bool) {
		rows, err := s.db.QueryContext(ctx, query, args...)
		if err != nil {
			yield(models.LogEntry{}, classifyError(fmt.Errorf("unable to query logs: %w", err)))
			return
		}
		defer closeRows(rows)

		for rows.Next() {
			entry, err := scanLogEntry(rows)
			if err != nil {
				yield(models.LogEntry{}, classifyError(fmt.Errorf("unable to scan log row: %w", err)))
				return
			}
			if !yield(*entry, nil) {
				return
			}
		}

		if err := rows.Err(); err != nil {
			yield(models.LogEntry{}, classifyError(fmt.Errorf("error iterating log rows: %w", err)))
		}
	}
}

func buildLogQuery(nodeId int64, filter models.LogFilter) (string, []any) {
	var query strings.Builder
	query.WriteString(queryListLogs)
	args := []any{nodeId}

	if filter.MinLevel != nil {
		levels := models.LevelsAtOrAbove(*filter.MinLevel)
		if len(levels) == 0 {
			// Unknown level matches nothing.
			query.WriteString(" AND 0")
		} else {
			query.WriteString(" AND level IN (?" + strings.Repeat(", ?", len(levels)-1) + ")")
			for _, level := range levels {
				args = append(args, string(level))
			}
		}
	}
	if filter.Since != nil {
		query.WriteString(" AND created_at >= ?")
		args = append(args, filter.Since.UTC())
	}

	query.WriteString(" ORDER BY created_at, id")
	return query.String(), args
}
