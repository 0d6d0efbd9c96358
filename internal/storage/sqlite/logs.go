package sqlite

import (
	"context"
	"fmt"
	"time"

	"github.com/mandalnilabja/chatgate/internal/types"
)

// LogRequest stores a request log entry
func (s *Storage) LogRequest(ctx context.Context, log *types.RequestLog) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return ErrStorageClosed
	}

	if log.ID == "" {
		log.ID = generateID("log")
	}
	if log.CreatedAt.IsZero() {
		log.CreatedAt = time.Now().UTC()
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO request_logs (id, request_id, model, family,
			input_tokens, output_tokens, cost_usd, status_code,
			finish_reason, error_message, dropped_attachments, duration_ms, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, log.ID, log.RequestID, log.Model, log.Family,
		log.InputTokens, log.OutputTokens, log.CostUSD, log.StatusCode,
		log.FinishReason, log.ErrorMessage, log.DroppedAttachments, log.DurationMs, log.CreatedAt)

	return err
}

// GetRequestLogs retrieves request logs with filtering, newest first
func (s *Storage) GetRequestLogs(ctx context.Context, filter types.LogFilter) ([]*types.RequestLog, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.closed {
		return nil, ErrStorageClosed
	}

	query := `SELECT id, request_id, model, family,
		input_tokens, output_tokens, cost_usd, status_code,
		COALESCE(finish_reason, ''), COALESCE(error_message, ''),
		dropped_attachments, duration_ms, created_at
		FROM request_logs WHERE 1=1`

	var args []interface{}

	if filter.Model != "" {
		query += " AND model = ?"
		args = append(args, filter.Model)
	}

	query += " ORDER BY created_at DESC"

	if filter.Limit > 0 {
		query += fmt.Sprintf(" LIMIT %d", filter.Limit)
	}
	if filter.Offset > 0 {
		if filter.Limit <= 0 {
			query += " LIMIT -1"
		}
		query += fmt.Sprintf(" OFFSET %d", filter.Offset)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var logs []*types.RequestLog
	for rows.Next() {
		var log types.RequestLog

		err := rows.Scan(&log.ID, &log.RequestID, &log.Model, &log.Family,
			&log.InputTokens, &log.OutputTokens, &log.CostUSD, &log.StatusCode,
			&log.FinishReason, &log.ErrorMessage, &log.DroppedAttachments, &log.DurationMs, &log.CreatedAt)
		if err != nil {
			return nil, err
		}

		logs = append(logs, &log)
	}

	return logs, rows.Err()
}
