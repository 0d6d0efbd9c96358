package redis

import (
	"context"
	"encoding/json"
	"time"

	"github.com/google/uuid"

	"github.com/mandalnilabja/chatgate/internal/types"
)

// LogRequest prepends a request log entry, keeping the newest maxLogs entries.
func (s *Storage) LogRequest(ctx context.Context, log *types.RequestLog) error {
	if log.ID == "" {
		log.ID = "log_" + uuid.New().String()[:8]
	}
	if log.CreatedAt.IsZero() {
		log.CreatedAt = time.Now().UTC()
	}

	data, err := json.Marshal(log)
	if err != nil {
		return err
	}

	pipe := s.rdb.TxPipeline()
	pipe.LPush(ctx, logsKey, data)
	pipe.LTrim(ctx, logsKey, 0, maxLogs-1)
	_, err = pipe.Exec(ctx)
	return err
}

// GetRequestLogs returns request logs newest first.
func (s *Storage) GetRequestLogs(ctx context.Context, filter types.LogFilter) ([]*types.RequestLog, error) {
	raw, err := s.rdb.LRange(ctx, logsKey, 0, -1).Result()
	if err != nil {
		return nil, err
	}
	return filterLogs(raw, filter), nil
}

// filterLogs decodes entries and applies the model filter, offset and limit.
// Undecodable entries are skipped.
func filterLogs(raw []string, filter types.LogFilter) []*types.RequestLog {
	var logs []*types.RequestLog
	skipped := 0
	for _, entry := range raw {
		var log types.RequestLog
		if err := json.Unmarshal([]byte(entry), &log); err != nil {
			continue
		}
		if filter.Model != "" && log.Model != filter.Model {
			continue
		}
		if skipped < filter.Offset {
			skipped++
			continue
		}
		logs = append(logs, &log)
		if filter.Limit > 0 && len(logs) == filter.Limit {
			break
		}
	}
	return logs
}
