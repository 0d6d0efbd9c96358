package usage

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/mandalnilabja/chatgate/internal/metrics"
)

// updateTimeout bounds a single ledger update.
const updateTimeout = 10 * time.Second

type job struct {
	modelID      string
	inputTokens  int
	outputTokens int
}

// Recorder applies ledger updates in the background so the response is never
// held up by accounting. Failed updates are logged and counted, not retried.
type Recorder struct {
	ledger *Ledger
	logger *slog.Logger
	jobs   chan job
	wg     sync.WaitGroup

	mu     sync.RWMutex
	closed bool
}

// NewRecorder starts a recorder with the given queue size and worker count.
func NewRecorder(ledger *Ledger, logger *slog.Logger, queueSize, workers int) *Recorder {
	if logger == nil {
		logger = slog.Default()
	}
	if queueSize <= 0 {
		queueSize = 256
	}
	if workers <= 0 {
		workers = 2
	}

	r := &Recorder{
		ledger: ledger,
		logger: logger,
		jobs:   make(chan job, queueSize),
	}
	for range workers {
		r.wg.Add(1)
		go r.run()
	}
	return r
}

// Submit queues an update. It never blocks; a full or closed queue drops the update.
func (r *Recorder) Submit(modelID string, inputTokens, outputTokens int) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if r.closed {
		r.logger.Warn("usage recorder closed, dropping update", "model", modelID)
		metrics.UsageUpdateFailuresTotal.Inc()
		return false
	}

	select {
	case r.jobs <- job{modelID: modelID, inputTokens: inputTokens, outputTokens: outputTokens}:
		return true
	default:
		r.logger.Error("usage queue full, dropping update",
			"model", modelID,
			"input_tokens", inputTokens,
			"output_tokens", outputTokens,
		)
		metrics.UsageUpdateFailuresTotal.Inc()
		return false
	}
}

func (r *Recorder) run() {
	defer r.wg.Done()
	for j := range r.jobs {
		ctx, cancel := context.WithTimeout(context.Background(), updateTimeout)
		if err := r.ledger.Update(ctx, j.modelID, j.inputTokens, j.outputTokens); err != nil {
			r.logger.Error("usage update failed",
				"model", j.modelID,
				"input_tokens", j.inputTokens,
				"output_tokens", j.outputTokens,
				"error", err,
			)
			metrics.UsageUpdateFailuresTotal.Inc()
		}
		cancel()
	}
}

// Close stops accepting updates and waits for queued ones until ctx is done.
func (r *Recorder) Close(ctx context.Context) error {
	r.mu.Lock()
	if !r.closed {
		r.closed = true
		close(r.jobs)
	}
	r.mu.Unlock()

	done := make(chan struct{})
	go func() {
		r.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
