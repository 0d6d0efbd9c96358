// Package usage meters per-model spend and enforces monthly limits.
package usage

import (
	"context"

	"github.com/mandalnilabja/chatgate/internal/types"
)

// Store is the durable per-model document store behind the ledger.
type Store interface {
	// Get returns the stored record, or nil when none exists.
	Get(ctx context.Context, modelID string) (*types.UsageRecord, error)

	// Set replaces the record wholesale.
	Set(ctx context.Context, rec *types.UsageRecord) error

	// Increment adds delta to the totals and the delta's day buckets.
	Increment(ctx context.Context, modelID string, delta types.UsageDelta) error
}

// LogStore keeps request metadata for the logs endpoint.
type LogStore interface {
	LogRequest(ctx context.Context, log *types.RequestLog) error
	GetRequestLogs(ctx context.Context, filter types.LogFilter) ([]*types.RequestLog, error)
}

// PricingSource provides per-model pricing.
type PricingSource interface {
	Pricing(modelID string) (types.Pricing, bool)
}

// LimitSource provides per-model monthly limits in USD.
type LimitSource interface {
	MonthlyLimit(modelID string) (float64, bool)
}
