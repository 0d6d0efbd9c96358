package usage

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/mandalnilabja/chatgate/internal/metrics"
	"github.com/mandalnilabja/chatgate/internal/types"
)

// Ledger records usage cost per model and month.
type Ledger struct {
	store   Store
	pricing PricingSource
	logger  *slog.Logger
	now     func() time.Time
}

// NewLedger creates a Ledger.
func NewLedger(store Store, pricing PricingSource, logger *slog.Logger) *Ledger {
	if logger == nil {
		logger = slog.Default()
	}
	return &Ledger{store: store, pricing: pricing, logger: logger, now: time.Now}
}

// Update adds the cost of one call to the model's record for the current month.
//
// A record from an earlier month is replaced with a zeroed record before the
// increment. The read and the reset are separate store calls, so two updates
// racing across a month boundary can both reset and lose one increment.
//
// Models without pricing are skipped with a warning and their record is left untouched.
func (l *Ledger) Update(ctx context.Context, modelID string, inputTokens, outputTokens int) error {
	pricing, ok := l.pricing.Pricing(modelID)
	if !ok {
		l.logger.Warn("no pricing for model, skipping usage update", "model", modelID)
		return nil
	}

	now := l.now()
	month := types.YearMonth(now)
	lastUpdated := now.Local().Format(types.LastUpdatedLayout)

	rec, err := l.store.Get(ctx, modelID)
	if err != nil {
		return fmt.Errorf("read usage for %s: %w", modelID, err)
	}
	if rec == nil || rec.YearMonth != month {
		fresh := types.NewUsageRecord(modelID, month)
		fresh.LastUpdated = lastUpdated
		if err := l.store.Set(ctx, fresh); err != nil {
			return fmt.Errorf("reset usage for %s: %w", modelID, err)
		}
	}

	cost := pricing.Cost(inputTokens, outputTokens)
	delta := types.UsageDelta{
		Day:          types.Day(now),
		CostUSD:      cost,
		InputTokens:  int64(inputTokens),
		OutputTokens: int64(outputTokens),
		LastUpdated:  lastUpdated,
	}
	if err := l.store.Increment(ctx, modelID, delta); err != nil {
		return fmt.Errorf("increment usage for %s: %w", modelID, err)
	}

	metrics.UsageTokensTotal.WithLabelValues(modelID, "input").Add(float64(inputTokens))
	metrics.UsageTokensTotal.WithLabelValues(modelID, "output").Add(float64(outputTokens))
	metrics.UsageCostTotal.WithLabelValues(modelID).Add(cost)
	return nil
}

// Current returns the model's record for the current month without writing.
// A missing or stale record reads as a zeroed record for this month.
func (l *Ledger) Current(ctx context.Context, modelID string) (*types.UsageRecord, error) {
	month := types.YearMonth(l.now())

	rec, err := l.store.Get(ctx, modelID)
	if err != nil {
		return nil, fmt.Errorf("read usage for %s: %w", modelID, err)
	}
	if rec == nil || rec.YearMonth != month {
		return types.NewUsageRecord(modelID, month), nil
	}
	return rec, nil
}
