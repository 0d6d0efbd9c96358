package handler

import (
	"log/slog"
	"time"

	"github.com/dgraph-io/ristretto/v2"
	"github.com/mandalnilabja/chatgate/internal/config"
	"github.com/mandalnilabja/chatgate/internal/transport/http/handler/admin"
	"github.com/mandalnilabja/chatgate/internal/transport/http/handler/chat"
	"github.com/mandalnilabja/chatgate/internal/transport/http/handler/infra"
	"github.com/mandalnilabja/chatgate/internal/types"
)

// Deps are the services the handlers are built from.
type Deps struct {
	Dispatcher chat.Dispatcher
	Usage      admin.UsageReader
	Logs       admin.LogReader
	Store      infra.Pinger
	Catalog    *config.Catalog
	Cache      *ristretto.Cache[string, types.Part]
	Logger     *slog.Logger
}

// Repo composes all domain-specific handlers.
type Repo struct {
	Chat  *chat.Handlers
	Admin *admin.Handlers
	Infra *infra.Handlers
}

// NewRepo creates a new instance of the composed handler repository.
func NewRepo(d Deps) *Repo {
	startTime := time.Now()
	return &Repo{
		Chat:  chat.New(d.Dispatcher, d.Logger),
		Admin: admin.New(d.Usage, d.Catalog, d.Logs, startTime),
		Infra: infra.New(d.Store, d.Cache, startTime),
	}
}
