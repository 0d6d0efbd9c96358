// Package gateway drives a chat request through limit checking, content
// normalization, the provider adapter and the stream encoder.
package gateway

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/mandalnilabja/chatgate/internal/config"
	"github.com/mandalnilabja/chatgate/internal/metrics"
	"github.com/mandalnilabja/chatgate/internal/provider"
	"github.com/mandalnilabja/chatgate/internal/stream"
	"github.com/mandalnilabja/chatgate/internal/types"
	"github.com/mandalnilabja/chatgate/internal/usage"
)

// UsageWarningHeader carries the percentage of the monthly limit already spent
// when it is at or above the warning threshold.
const UsageWarningHeader = "X-Usage-Warning"

const logTimeout = 5 * time.Second

// Normalizer resolves attachments and produces provider-neutral messages.
// dropped is the number of attachments left out because they failed to resolve.
type Normalizer interface {
	Normalize(ctx context.Context, messages []types.Message, att types.Attachments) (out []types.NormalizedMessage, dropped int, err error)
}

// LimitChecker reports whether a model may be used.
type LimitChecker interface {
	Check(ctx context.Context, modelID string) (usage.Verdict, error)
}

// UsageRecorder accepts ledger updates for asynchronous application.
type UsageRecorder interface {
	Submit(modelID string, inputTokens, outputTokens int) bool
}

// RequestLogger persists request metadata.
type RequestLogger interface {
	LogRequest(ctx context.Context, log *types.RequestLog) error
}

// Config holds the dispatcher collaborators. Logs and RequestID are optional.
type Config struct {
	Catalog    *config.Catalog
	Registry   *provider.Registry
	Guard      LimitChecker
	Normalizer Normalizer
	Recorder   UsageRecorder
	Logs       RequestLogger
	Logger     *slog.Logger

	// RequestID extracts the tracing id set by the HTTP middleware.
	RequestID func(ctx context.Context) string
}

// Dispatcher is the entry point for POST /chat.
type Dispatcher struct {
	catalog    *config.Catalog
	registry   *provider.Registry
	guard      LimitChecker
	normalizer Normalizer
	recorder   UsageRecorder
	logs       RequestLogger
	logger     *slog.Logger
	requestID  func(ctx context.Context) string
	now        func() time.Time
}

// New creates a Dispatcher.
func New(cfg Config) *Dispatcher {
	d := &Dispatcher{
		catalog:    cfg.Catalog,
		registry:   cfg.Registry,
		guard:      cfg.Guard,
		normalizer: cfg.Normalizer,
		recorder:   cfg.Recorder,
		logs:       cfg.Logs,
		logger:     cfg.Logger,
		requestID:  cfg.RequestID,
		now:        time.Now,
	}
	if d.logger == nil {
		d.logger = slog.Default()
	}
	if d.requestID == nil {
		d.requestID = func(context.Context) string { return "" }
	}
	return d
}

// outcome collects what happened to one request for logging and metrics.
type outcome struct {
	family       provider.Family
	status       int
	finishReason string
	inputTokens  int
	outputTokens int
	usageSeen    bool
	dropped      int
	err          error
}

// Handle serves one chat request. An error is returned only when nothing has
// been written to w yet; the caller reports it as a JSON error with the status
// from types.StatusFor. Once streaming has started, failures are sent in-band.
func (d *Dispatcher) Handle(ctx context.Context, req *types.ChatRequest, w http.ResponseWriter) error {
	start := d.now()
	out := outcome{status: http.StatusOK}
	defer func() { d.finish(ctx, req, start, &out) }()

	if err := req.Validate(); err != nil {
		return out.fail(err)
	}

	family, err := d.family(req.ModelID)
	if err != nil {
		return out.fail(err)
	}
	out.family = family

	adapter, ok := d.registry.Get(family)
	if !ok {
		return out.fail(types.NewUnsupportedModel(req.ModelID))
	}

	messages, verdict, err := d.admit(ctx, req, &out)
	if err != nil {
		return out.fail(err)
	}

	preq := d.buildRequest(req, family, messages)
	if p, ok := adapter.(provider.Preparer); ok {
		if err := p.Prepare(preq); err != nil {
			return out.fail(err)
		}
	}

	if verdict.WarningPercent != nil {
		w.Header().Set(UsageWarningHeader, strconv.Itoa(*verdict.WarningPercent))
		d.logger.Warn("model is close to its monthly limit",
			"model", req.ModelID,
			"percent", *verdict.WarningPercent,
			"total_cost_usd", verdict.TotalCostUSD,
			"limit_usd", verdict.LimitUSD,
		)
	}

	d.stream(ctx, adapter, preq, w, &out)
	return nil
}

// family resolves the adapter family. A catalog entry with an explicit family wins;
// the catalog was validated against the dispatch table at startup.
func (d *Dispatcher) family(modelID string) (provider.Family, error) {
	if d.catalog != nil {
		if entry, ok := d.catalog.Lookup(modelID); ok && entry.Family != "" {
			return provider.Family(entry.Family), nil
		}
	}
	return provider.Resolve(modelID)
}

// admit runs the limit check and attachment normalization concurrently.
// A blocked model fails the group and cancels normalization.
func (d *Dispatcher) admit(ctx context.Context, req *types.ChatRequest, out *outcome) ([]types.NormalizedMessage, usage.Verdict, error) {
	var (
		messages []types.NormalizedMessage
		verdict  usage.Verdict
	)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		v, err := d.guard.Check(gctx, req.ModelID)
		if err != nil {
			return fmt.Errorf("check usage limit: %w", err)
		}
		if v.Blocked {
			return types.NewUsageLimitExceeded(req.ModelID, v.LimitUSD)
		}
		verdict = v
		return nil
	})
	g.Go(func() error {
		m, dropped, err := d.normalizer.Normalize(gctx, req.Messages, req.Attachments())
		if err != nil {
			return err
		}
		messages = m
		out.dropped = dropped
		return nil
	})

	if err := g.Wait(); err != nil {
		return nil, usage.Verdict{}, err
	}
	return messages, verdict, nil
}

func (d *Dispatcher) buildRequest(req *types.ChatRequest, family provider.Family, messages []types.NormalizedMessage) *provider.Request {
	cfg := provider.GenerationConfig{
		MaxTokens:       req.MaxTokens,
		ReasoningEffort: req.ReasoningEffort,
		Verbosity:       req.Verbosity,
		ThinkingLevel:   req.ThinkingLevel,
	}
	if t, ok := types.PresetTemperature(req.TemperaturePreset); ok {
		cfg.Temperature = &t
	}
	switch family {
	case provider.FamilyOpenAIResponses:
		cfg.Grounding = req.GPT5GroundingEnabled
	case provider.FamilyGemini, provider.FamilyGemini3:
		cfg.Grounding = req.GeminiGroundingEnabled
	}

	preq := &provider.Request{
		ModelID:        req.ModelID,
		Messages:       messages,
		SystemPrompt:   req.SystemPrompt,
		LastUserPrompt: req.LastMessageText(),
		Config:         cfg,
	}
	if d.catalog != nil {
		if entry, ok := d.catalog.Lookup(req.ModelID); ok {
			preq.UpstreamModel = entry.UpstreamModel
		}
	}
	return preq
}

// stream relays adapter events to the client in order and records usage once the
// terminal event has been seen. A usage report is recorded even when the client
// went away afterwards, since the upstream call has already been billed.
func (d *Dispatcher) stream(ctx context.Context, adapter provider.Adapter, preq *provider.Request, w http.ResponseWriter, out *outcome) {
	w.Header().Set("Content-Type", stream.ContentType)
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("X-Content-Type-Options", "nosniff")
	w.WriteHeader(http.StatusOK)

	sw := stream.NewWriter(w)
	streamStart := d.now()
	aborted := false

	for ev := range adapter.Stream(ctx, preq) {
		switch ev.Kind {
		case types.EventUsage:
			out.usageSeen = true
			out.inputTokens = ev.InputTokens
			out.outputTokens = ev.OutputTokens
		case types.EventError:
			out.err = ev.Err
			out.finishReason = types.FinishError
			ev.Text = provider.UserMessage(ev.Err)
			d.logger.Error("upstream stream failed",
				"model", preq.ModelID,
				"family", adapter.Family(),
				"error", ev.Err,
			)
		case types.EventFinish:
			out.finishReason = ev.Reason
		}

		if err := sw.Write(ev); err != nil {
			if errors.Is(err, stream.ErrAfterTerminal) || errors.Is(err, stream.ErrDuplicateUsage) {
				d.logger.Error("adapter broke event ordering", "family", adapter.Family(), "event", ev.Kind, "error", err)
				continue
			}
			d.logger.Info("client write failed, aborting stream", "model", preq.ModelID, "error", err)
			if out.err == nil {
				out.err = err
			}
			aborted = true
			break
		}
	}

	switch {
	case ctx.Err() != nil && out.err == nil:
		out.err = ctx.Err()
	case !sw.Done() && !aborted:
		// The adapter ended without a terminal event.
		_ = sw.Write(types.FinishEvent(types.FinishStop))
		out.finishReason = types.FinishStop
	}
	metrics.ChatStreamDuration.WithLabelValues(string(adapter.Family())).Observe(d.now().Sub(streamStart).Seconds())

	if out.usageSeen {
		d.recordUsage(preq.ModelID, out.inputTokens, out.outputTokens)
	}
}

func (d *Dispatcher) recordUsage(modelID string, inputTokens, outputTokens int) {
	if d.catalog != nil {
		if _, ok := d.catalog.Pricing(modelID); !ok {
			d.logger.Warn("no pricing configured, skipping usage update", "model", modelID)
			return
		}
	}
	d.recorder.Submit(modelID, inputTokens, outputTokens)
}

// fail records a pre-stream error.
func (o *outcome) fail(err error) error {
	o.err = err
	o.status = types.StatusFor(err)
	return err
}

// finish writes the request log and the request metrics.
func (d *Dispatcher) finish(ctx context.Context, req *types.ChatRequest, start time.Time, out *outcome) {
	result := outcomeLabel(ctx, out)
	metrics.ChatRequestsTotal.WithLabelValues(req.ModelID, string(out.family), result).Inc()

	var cost float64
	if out.usageSeen && d.catalog != nil {
		if pricing, ok := d.catalog.Pricing(req.ModelID); ok {
			cost = pricing.Cost(out.inputTokens, out.outputTokens)
		}
	}

	entry := &types.RequestLog{
		ID:                 uuid.New().String(),
		RequestID:          d.requestID(ctx),
		Model:              req.ModelID,
		Family:             string(out.family),
		InputTokens:        out.inputTokens,
		OutputTokens:       out.outputTokens,
		CostUSD:            cost,
		StatusCode:         out.status,
		FinishReason:       out.finishReason,
		DroppedAttachments: out.dropped,
		DurationMs:         d.now().Sub(start).Milliseconds(),
		CreatedAt:          start,
	}
	if out.err != nil {
		entry.ErrorMessage = out.err.Error()
	}

	d.logger.Info("chat request",
		"request_id", entry.RequestID,
		"model", entry.Model,
		"family", entry.Family,
		"outcome", result,
		"status", entry.StatusCode,
		"input_tokens", entry.InputTokens,
		"output_tokens", entry.OutputTokens,
		"dropped_attachments", entry.DroppedAttachments,
		"duration_ms", entry.DurationMs,
	)

	if d.logs == nil {
		return
	}
	logCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), logTimeout)
	defer cancel()
	if err := d.logs.LogRequest(logCtx, entry); err != nil {
		d.logger.Error("failed to write request log", "request_id", entry.RequestID, "error", err)
	}
}

func outcomeLabel(ctx context.Context, out *outcome) string {
	switch {
	case out.err == nil:
		return metrics.OutcomeOK
	case ctx.Err() != nil || errors.Is(out.err, context.Canceled):
		return metrics.OutcomeCancelled
	case errors.Is(out.err, types.ErrUsageLimitExceeded):
		return metrics.OutcomeLimited
	case errors.Is(out.err, types.ErrUnsupportedModel):
		return metrics.OutcomeUnsupported
	case errors.Is(out.err, types.ErrInvalidRequest):
		return metrics.OutcomeInvalid
	default:
		return metrics.OutcomeUpstream
	}
}
