package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/mandalnilabja/chatgate/internal/types"
)

// Get returns the usage record of a model, or nil if none is stored.
func (s *Storage) Get(ctx context.Context, modelID string) (*types.UsageRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.closed {
		return nil, ErrStorageClosed
	}

	rec := &types.UsageRecord{ModelID: modelID}
	err := s.db.QueryRowContext(ctx, `
		SELECT year_month, total_cost, total_input_tokens, total_output_tokens, last_updated
		FROM usage_months WHERE model_id = ?
	`, modelID).Scan(&rec.YearMonth, &rec.TotalCostUSD, &rec.TotalInputTokens,
		&rec.TotalOutputTokens, &rec.LastUpdated)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT day, cost, input_tokens, output_tokens
		FROM usage_days WHERE model_id = ? ORDER BY day
	`, modelID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	rec.DailyCosts = map[string]float64{}
	rec.DailyInputTokens = map[string]int64{}
	rec.DailyOutputTokens = map[string]int64{}
	for rows.Next() {
		var day string
		var cost float64
		var in, out int64
		if err := rows.Scan(&day, &cost, &in, &out); err != nil {
			return nil, err
		}
		rec.DailyCosts[day] = cost
		rec.DailyInputTokens[day] = in
		rec.DailyOutputTokens[day] = out
	}

	return rec, rows.Err()
}

// Set replaces the usage record of a model, including its daily buckets.
func (s *Storage) Set(ctx context.Context, rec *types.UsageRecord) error {
	if rec == nil || rec.ModelID == "" {
		return ErrInvalidInput
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return ErrStorageClosed
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	_, err = tx.ExecContext(ctx, `
		INSERT INTO usage_months (model_id, year_month, total_cost,
			total_input_tokens, total_output_tokens, last_updated)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT(model_id) DO UPDATE SET
			year_month = excluded.year_month,
			total_cost = excluded.total_cost,
			total_input_tokens = excluded.total_input_tokens,
			total_output_tokens = excluded.total_output_tokens,
			last_updated = excluded.last_updated
	`, rec.ModelID, rec.YearMonth, rec.TotalCostUSD, rec.TotalInputTokens,
		rec.TotalOutputTokens, rec.LastUpdated)
	if err != nil {
		return fmt.Errorf("write usage month: %w", err)
	}

	if _, err := tx.ExecContext(ctx, `DELETE FROM usage_days WHERE model_id = ?`, rec.ModelID); err != nil {
		return fmt.Errorf("clear usage days: %w", err)
	}

	for day, cost := range rec.DailyCosts {
		_, err := tx.ExecContext(ctx, `
			INSERT INTO usage_days (model_id, day, cost, input_tokens, output_tokens)
			VALUES (?, ?, ?, ?, ?)
		`, rec.ModelID, day, cost, rec.DailyInputTokens[day], rec.DailyOutputTokens[day])
		if err != nil {
			return fmt.Errorf("write usage day: %w", err)
		}
	}

	return tx.Commit()
}

// Increment adds delta to the model's totals and to the delta's day.
// A missing record is created for the month of the delta's day.
func (s *Storage) Increment(ctx context.Context, modelID string, delta types.UsageDelta) error {
	if modelID == "" || len(delta.Day) < len(types.YearMonthLayout) {
		return ErrInvalidInput
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return ErrStorageClosed
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	_, err = tx.ExecContext(ctx, `
		INSERT INTO usage_months (model_id, year_month, total_cost,
			total_input_tokens, total_output_tokens, last_updated)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT(model_id) DO UPDATE SET
			total_cost = total_cost + excluded.total_cost,
			total_input_tokens = total_input_tokens + excluded.total_input_tokens,
			total_output_tokens = total_output_tokens + excluded.total_output_tokens,
			last_updated = excluded.last_updated
	`, modelID, delta.Day[:len(types.YearMonthLayout)], delta.CostUSD, delta.InputTokens,
		delta.OutputTokens, delta.LastUpdated)
	if err != nil {
		return fmt.Errorf("increment usage month: %w", err)
	}

	_, err = tx.ExecContext(ctx, `
		INSERT INTO usage_days (model_id, day, cost, input_tokens, output_tokens)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(model_id, day) DO UPDATE SET
			cost = cost + excluded.cost,
			input_tokens = input_tokens + excluded.input_tokens,
			output_tokens = output_tokens + excluded.output_tokens
	`, modelID, delta.Day, delta.CostUSD, delta.InputTokens, delta.OutputTokens)
	if err != nil {
		return fmt.Errorf("increment usage day: %w", err)
	}

	return tx.Commit()
}
