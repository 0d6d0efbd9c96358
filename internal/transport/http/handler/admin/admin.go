// Package admin serves the read-only usage, model and log endpoints.
package admin

import (
	"context"
	"time"

	"github.com/mandalnilabja/chatgate/internal/config"
	"github.com/mandalnilabja/chatgate/internal/types"
)

// UsageReader returns a model's record for the current month.
type UsageReader interface {
	Current(ctx context.Context, modelID string) (*types.UsageRecord, error)
}

// LogReader lists request metadata.
type LogReader interface {
	GetRequestLogs(ctx context.Context, filter types.LogFilter) ([]*types.RequestLog, error)
}

// Handlers holds the dependencies for admin HTTP handlers.
type Handlers struct {
	Usage     UsageReader
	Catalog   *config.Catalog
	Logs      LogReader
	StartTime time.Time
}

// New creates a new instance of admin handlers.
func New(usage UsageReader, catalog *config.Catalog, logs LogReader, startTime time.Time) *Handlers {
	return &Handlers{
		Usage:     usage,
		Catalog:   catalog,
		Logs:      logs,
		StartTime: startTime,
	}
}
