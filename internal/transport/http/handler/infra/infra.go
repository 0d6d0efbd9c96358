package infra

import (
	"context"
	"time"

	"github.com/dgraph-io/ristretto/v2"

	"github.com/mandalnilabja/chatgate/internal/types"
)

// Pinger reports whether a backing store is reachable.
type Pinger interface {
	Ping(ctx context.Context) error
}

// Handlers holds the dependencies for infrastructure HTTP handlers.
type Handlers struct {
	Store     Pinger
	Cache     *ristretto.Cache[string, types.Part]
	StartTime time.Time
}

// New creates a new instance of infrastructure handlers. store and cache may be nil.
func New(store Pinger, cache *ristretto.Cache[string, types.Part], startTime time.Time) *Handlers {
	return &Handlers{
		Store:     store,
		Cache:     cache,
		StartTime: startTime,
	}
}
