package redis

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/redis/go-redis/v9"

	"github.com/mandalnilabja/chatgate/internal/types"
)

// ErrInvalidInput is returned for records or deltas that cannot be stored.
var ErrInvalidInput = errors.New("invalid input")

// Hash fields of a usage record. Daily buckets use "<prefix><YYYY-MM-DD>".
const (
	fieldYearMonth    = "year_month"
	fieldTotalCost    = "total_cost"
	fieldTotalInput   = "total_input_tokens"
	fieldTotalOutput  = "total_output_tokens"
	fieldLastUpdated  = "last_updated"
	dailyCostPrefix   = "cost:"
	dailyInputPrefix  = "in:"
	dailyOutputPrefix = "out:"
)

func usageKey(modelID string) string {
	return usagePrefix + modelID
}

// Get returns the usage record of a model, or nil if none is stored.
func (s *Storage) Get(ctx context.Context, modelID string) (*types.UsageRecord, error) {
	fields, err := s.rdb.HGetAll(ctx, usageKey(modelID)).Result()
	if err != nil {
		return nil, err
	}
	if len(fields) == 0 {
		return nil, nil
	}
	return decodeRecord(modelID, fields)
}

// Set replaces the usage record of a model.
func (s *Storage) Set(ctx context.Context, rec *types.UsageRecord) error {
	if rec == nil || rec.ModelID == "" {
		return ErrInvalidInput
	}

	key := usageKey(rec.ModelID)
	_, err := s.rdb.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Del(ctx, key)
		pipe.HSet(ctx, key, encodeRecord(rec))
		return nil
	})
	return err
}

// Increment adds delta to the model's totals and to the delta's day.
// A missing record is created for the month of the delta's day.
func (s *Storage) Increment(ctx context.Context, modelID string, delta types.UsageDelta) error {
	if modelID == "" || len(delta.Day) < len(types.YearMonthLayout) {
		return ErrInvalidInput
	}

	key := usageKey(modelID)
	_, err := s.rdb.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.HSetNX(ctx, key, fieldYearMonth, delta.Day[:len(types.YearMonthLayout)])
		pipe.HIncrByFloat(ctx, key, fieldTotalCost, delta.CostUSD)
		pipe.HIncrBy(ctx, key, fieldTotalInput, delta.InputTokens)
		pipe.HIncrBy(ctx, key, fieldTotalOutput, delta.OutputTokens)
		pipe.HIncrByFloat(ctx, key, dailyCostPrefix+delta.Day, delta.CostUSD)
		pipe.HIncrBy(ctx, key, dailyInputPrefix+delta.Day, delta.InputTokens)
		pipe.HIncrBy(ctx, key, dailyOutputPrefix+delta.Day, delta.OutputTokens)
		if delta.LastUpdated != "" {
			pipe.HSet(ctx, key, fieldLastUpdated, delta.LastUpdated)
		}
		return nil
	})
	return err
}

// encodeRecord flattens a record into hash fields.
func encodeRecord(rec *types.UsageRecord) map[string]any {
	fields := map[string]any{
		fieldYearMonth:   rec.YearMonth,
		fieldTotalCost:   strconv.FormatFloat(rec.TotalCostUSD, 'f', -1, 64),
		fieldTotalInput:  rec.TotalInputTokens,
		fieldTotalOutput: rec.TotalOutputTokens,
		fieldLastUpdated: rec.LastUpdated,
	}
	for day, v := range rec.DailyCosts {
		fields[dailyCostPrefix+day] = strconv.FormatFloat(v, 'f', -1, 64)
	}
	for day, v := range rec.DailyInputTokens {
		fields[dailyInputPrefix+day] = v
	}
	for day, v := range rec.DailyOutputTokens {
		fields[dailyOutputPrefix+day] = v
	}
	return fields
}

// decodeRecord rebuilds a record from hash fields.
func decodeRecord(modelID string, fields map[string]string) (*types.UsageRecord, error) {
	rec := types.NewUsageRecord(modelID, fields[fieldYearMonth])
	rec.LastUpdated = fields[fieldLastUpdated]

	var err error
	parseFloat := func(s string) float64 {
		v, perr := strconv.ParseFloat(s, 64)
		if perr != nil && err == nil {
			err = fmt.Errorf("parse %q: %w", s, perr)
		}
		return v
	}
	parseInt := func(s string) int64 {
		v, perr := strconv.ParseInt(s, 10, 64)
		if perr != nil && err == nil {
			err = fmt.Errorf("parse %q: %w", s, perr)
		}
		return v
	}

	for name, value := range fields {
		switch {
		case name == fieldTotalCost:
			rec.TotalCostUSD = parseFloat(value)
		case name == fieldTotalInput:
			rec.TotalInputTokens = parseInt(value)
		case name == fieldTotalOutput:
			rec.TotalOutputTokens = parseInt(value)
		case strings.HasPrefix(name, dailyCostPrefix):
			rec.DailyCosts[strings.TrimPrefix(name, dailyCostPrefix)] = parseFloat(value)
		case strings.HasPrefix(name, dailyInputPrefix):
			rec.DailyInputTokens[strings.TrimPrefix(name, dailyInputPrefix)] = parseInt(value)
		case strings.HasPrefix(name, dailyOutputPrefix):
			rec.DailyOutputTokens[strings.TrimPrefix(name, dailyOutputPrefix)] = parseInt(value)
		}
	}
	if err != nil {
		return nil, fmt.Errorf("decode usage record for %s: %w", modelID, err)
	}
	return rec, nil
}
