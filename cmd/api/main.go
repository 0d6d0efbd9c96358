package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/mandalnilabja/chatgate/internal/app"
	"github.com/mandalnilabja/chatgate/internal/blob"
	"github.com/mandalnilabja/chatgate/internal/config"
	"github.com/mandalnilabja/chatgate/internal/gateway"
	"github.com/mandalnilabja/chatgate/internal/preprocess"
	"github.com/mandalnilabja/chatgate/internal/provider"
	"github.com/mandalnilabja/chatgate/internal/provider/anthropic"
	"github.com/mandalnilabja/chatgate/internal/provider/openai"
	"github.com/mandalnilabja/chatgate/internal/provider/responses"
	"github.com/mandalnilabja/chatgate/internal/provider/vertex"
	"github.com/mandalnilabja/chatgate/internal/storage/redis"
	"github.com/mandalnilabja/chatgate/internal/storage/sqlite"
	"github.com/mandalnilabja/chatgate/internal/transport/http/handler"
	"github.com/mandalnilabja/chatgate/internal/transport/http/middleware"
	"github.com/mandalnilabja/chatgate/internal/usage"
)

const (
	// attachmentCacheBytes bounds the resolved-attachment cache.
	attachmentCacheBytes = 256 << 20

	recorderQueueSize = 256
	recorderWorkers   = 2
	recorderDrain     = 10 * time.Second
)

// store is what both usage backends provide.
type store interface {
	usage.Store
	usage.LogStore
	Ping(ctx context.Context) error
	io.Closer
}

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	cfg := config.Load()

	logger, logCloser := setupLogger(cfg)
	defer logCloser.Close()
	slog.SetDefault(logger)

	if err := config.EnsureDataDir(); err != nil {
		return fmt.Errorf("failed to create data directory: %w", err)
	}

	catalog, err := loadCatalog(cfg)
	if err != nil {
		return err
	}

	st, err := openStore(cfg)
	if err != nil {
		return err
	}
	defer st.Close()

	ledger := usage.NewLedger(st, catalog, logger)
	guard := usage.NewGuard(ledger, catalog)
	recorder := usage.NewRecorder(ledger, logger, recorderQueueSize, recorderWorkers)

	blobs := blob.NewMux()
	blobs.Handle("file", blob.NewFileStore(cfg.BlobRoot))
	if len(cfg.BlobAllowedHosts) > 0 {
		httpBlobs := blob.NewHTTPStore(provider.NewHTTPClient(), cfg.BlobAllowedHosts)
		blobs.Handle("http", httpBlobs)
		blobs.Handle("https", httpBlobs)
	} else {
		logger.Info("remote attachments disabled, no blob_allowed_hosts configured")
	}

	cache, err := preprocess.NewCache(attachmentCacheBytes)
	if err != nil {
		return fmt.Errorf("failed to create attachment cache: %w", err)
	}
	defer cache.Close()

	registry := buildRegistry(ctx, cfg, logger)

	dispatcher := gateway.New(gateway.Config{
		Catalog:    catalog,
		Registry:   registry,
		Guard:      guard,
		Normalizer: preprocess.New(blobs, cache, logger),
		Recorder:   recorder,
		Logs:       st,
		Logger:     logger,
		RequestID:  middleware.GetRequestID,
	})

	repo := handler.NewRepo(handler.Deps{
		Dispatcher: dispatcher,
		Usage:      ledger,
		Logs:       st,
		Store:      st,
		Catalog:    catalog,
		Cache:      cache,
		Logger:     logger,
	})
	router := app.NewRouter(repo, &app.RouterOptions{Logger: logger})

	printStartupBanner(cfg)

	srv := app.NewServer(cfg, router, logger)
	serveErr := srv.Run(ctx)

	drainCtx, drainCancel := context.WithTimeout(context.Background(), recorderDrain)
	defer drainCancel()
	if err := recorder.Close(drainCtx); err != nil {
		logger.Warn("usage recorder did not drain", "error", err)
	}

	if serveErr != nil {
		return serveErr
	}
	logger.Info("server exited")
	return nil
}

func loadCatalog(cfg *config.Config) (*config.Catalog, error) {
	catalog := config.DefaultCatalog()
	if cfg.ModelsFile != "" {
		loaded, err := config.LoadCatalog(cfg.ModelsFile)
		if err != nil {
			return nil, fmt.Errorf("failed to load model catalog: %w", err)
		}
		catalog = loaded
	}
	if err := catalog.Validate(provider.ResolveName); err != nil {
		return nil, fmt.Errorf("invalid model catalog: %w", err)
	}
	return catalog, nil
}

func openStore(cfg *config.Config) (store, error) {
	switch cfg.UsageBackend {
	case config.BackendRedis:
		st, err := redis.New(redis.Options{
			Addr:     cfg.RedisAddr,
			Password: cfg.RedisPassword,
			DB:       cfg.RedisDB,
		})
		if err != nil {
			return nil, fmt.Errorf("failed to connect to redis: %w", err)
		}
		return st, nil
	case config.BackendSQLite, "":
		st, err := sqlite.New(cfg.DBPath)
		if err != nil {
			return nil, fmt.Errorf("failed to initialize storage: %w", err)
		}
		return st, nil
	default:
		return nil, fmt.Errorf("unknown usage backend %q", cfg.UsageBackend)
	}
}

// buildRegistry creates one adapter per family. Missing credentials are
// reported by the adapter at request time, not here.
func buildRegistry(ctx context.Context, cfg *config.Config, logger *slog.Logger) *provider.Registry {
	client := provider.NewHTTPClient()

	openAI := openai.New(openai.Config{
		APIKey:  cfg.OpenAI.APIKey,
		BaseURL: cfg.OpenAI.BaseURL,
		Client:  client,
		Logger:  logger,
	})
	resp := responses.New(responses.Config{
		APIKey:  cfg.OpenAI.APIKey,
		BaseURL: cfg.OpenAI.BaseURL,
		Client:  client,
		Logger:  logger,
	})

	anthropicCfg := anthropic.Config{
		APIKey:  cfg.Anthropic.APIKey,
		BaseURL: cfg.Anthropic.BaseURL,
		Client:  client,
		Logger:  logger,
	}

	tokens, err := vertex.NewTokenSource(ctx, cfg.Vertex.AccessToken)
	if err != nil {
		logger.Warn("vertex credentials unavailable; gemini models will fail", "error", err)
	}
	vertexCfg := vertex.Config{
		ProjectID:   cfg.Vertex.ProjectID,
		Location:    cfg.Vertex.Location,
		TokenSource: tokens,
		Client:      client,
		Logger:      logger,
	}

	return provider.NewRegistry(
		openAI,
		resp,
		anthropic.New(anthropicCfg),
		anthropic.NewSonnet45(anthropicCfg),
		vertex.New(vertexCfg),
		vertex.NewGemini3(vertexCfg),
	)
}
