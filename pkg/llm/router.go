package llm

import (
	"context"
	"fmt"
	"math"
	"sync"
	"time"

	"github.com/harun/agentforge/internal/observability"
	"github.com/harun/agentforge/internal/tracing"
	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel/attribute"
	"golang.org/x/time/rate"
)

const (
	defaultModel       = "openai/gpt-4o-mini"
	defaultMaxAttempts = 3
	defaultBaseDelay   = time.Second
)

// RouterConfig holds router configuration
type RouterConfig struct {
	// DefaultModel is used when a request names no model.
	DefaultModel string
	// Providers maps a provider prefix ("openai", "anthropic", "ollama") to its client.
	Providers map[string]Provider
	// MaxAttempts per candidate model. Defaults to 3.
	MaxAttempts int
	// BaseDelay for exponential backoff: BaseDelay * 2^attempt. Defaults to 1s.
	BaseDelay time.Duration
	// RequestsPerSecond paces calls per model when > 0.
	RequestsPerSecond float64
	// Pricing prices usage when a provider does not report cost. Defaults to DefaultPricing().
	Pricing Pricing
	// DisableCost turns cost accounting off; token accounting is unaffected.
	DisableCost bool
	Logger      zerolog.Logger
}

// CallRecord is the log entry for one model call attempt.
type CallRecord struct {
	Model        string        `json:"model"`
	InputTokens  int           `json:"input_tokens"`
	OutputTokens int           `json:"output_tokens"`
	Cost         float64       `json:"cost"`
	Latency      time.Duration `json:"latency"`
	Success      bool          `json:"success"`
	Error        string        `json:"error,omitempty"`
}

// ModelCost aggregates the calls made to one model.
type ModelCost struct {
	Cost   float64    `json:"cost"`
	Tokens TokenUsage `json:"tokens"`
	Calls  int        `json:"calls"`
}

// CostSummary is a snapshot of router totals.
type CostSummary struct {
	TotalCost   float64              `json:"total_cost"`
	TotalTokens TokenUsage           `json:"total_tokens"`
	ByModel     map[string]ModelCost `json:"by_model"`
	CallCount   int                  `json:"call_count"`
}

// Router sends requests through an ordered primary/fallback model chain.
// It is safe for concurrent use by parallel workflow steps.
type Router struct {
	cfg    RouterConfig
	logger zerolog.Logger

	mu          sync.Mutex
	totalTokens TokenUsage
	totalCost   float64
	callLog     []CallRecord
	limiters    map[string]*rate.Limiter
}

// NewRouter creates a new router
func NewRouter(cfg RouterConfig) *Router {
	observability.EnsureRegistered()

	if cfg.DefaultModel == "" {
		cfg.DefaultModel = defaultModel
	}
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = defaultMaxAttempts
	}
	if cfg.BaseDelay <= 0 {
		cfg.BaseDelay = defaultBaseDelay
	}
	if cfg.Pricing == nil {
		cfg.Pricing = DefaultPricing()
	}
	if cfg.Providers == nil {
		cfg.Providers = map[string]Provider{}
	}

	return &Router{
		cfg:      cfg,
		logger:   cfg.Logger,
		limiters: make(map[string]*rate.Limiter),
	}
}

// Complete tries req.Model (or the default model) then each fallback in order
// and returns the first successful response.
func (r *Router) Complete(ctx context.Context, req CompletionRequest) (*Response, error) {
	primary := req.Model
	if primary == "" {
		primary = r.cfg.DefaultModel
	}
	candidates := append([]string{primary}, req.Fallbacks...)

	ctx, span := tracing.StartSpan(ctx, "agentforge.llm", "llm.complete",
		attribute.String("llm.model", primary),
		attribute.Int("llm.candidates", len(candidates)),
	)
	defer span.End()
	logger := tracing.LoggerFromContext(ctx, r.logger)

	var attempts []AttemptError

	for _, model := range candidates {
		for attempt := 0; attempt < r.cfg.MaxAttempts; attempt++ {
			if err := ctx.Err(); err != nil {
				tracing.FailSpan(span, err)
				return nil, fmt.Errorf("model call to %s cancelled: %w", model, err)
			}

			resp, err := r.call(ctx, model, req)
			if err == nil {
				span.SetAttributes(attribute.String("llm.model_used", model))
				return resp, nil
			}

			attempts = append(attempts, AttemptError{Model: model, Attempt: attempt + 1, Err: err})
			if ctx.Err() != nil {
				tracing.FailSpan(span, err)
				return nil, fmt.Errorf("model call to %s cancelled: %w", model, ctx.Err())
			}

			if !IsRetryableError(err) || attempt == r.cfg.MaxAttempts-1 {
				logger.Warn().Err(err).Str("model", model).Int("attempt", attempt+1).Msg("Model failed, moving to next candidate")
				break
			}

			wait := r.cfg.BaseDelay * time.Duration(math.Pow(2, float64(attempt)))
			logger.Debug().Err(err).Str("model", model).Dur("backoff", wait).Msg("Transient model error, retrying")
			observability.RecordModelRetry(model)

			select {
			case <-time.After(wait):
			case <-ctx.Done():
				tracing.FailSpan(span, ctx.Err())
				return nil, fmt.Errorf("model call to %s cancelled: %w", model, ctx.Err())
			}
		}
		observability.RecordModelFallback(model)
	}

	exhausted := &ModelExhaustedError{Candidates: candidates, Attempts: attempts}
	tracing.FailSpan(span, exhausted)
	return nil, exhausted
}

func (r *Router) call(ctx context.Context, model string, req CompletionRequest) (*Response, error) {
	providerName, name := SplitModel(model)

	provider, ok := r.cfg.Providers[providerName]
	if !ok {
		err := fmt.Errorf("%w for %q", ErrNoProvider, providerName)
		r.record(CallRecord{Model: model, Error: err.Error()})
		return nil, err
	}

	if limiter := r.limiter(model); limiter != nil {
		if err := limiter.Wait(ctx); err != nil {
			return nil, err
		}
	}

	start := time.Now()
	resp, err := provider.Call(ctx, Request{
		Model:       name,
		Messages:    req.Messages,
		Tools:       req.Tools,
		Temperature: req.Temperature,
		MaxTokens:   req.MaxTokens,
	})
	latency := time.Since(start)

	if err != nil {
		r.record(CallRecord{Model: model, Latency: latency, Error: err.Error()})
		observability.RecordModelCall(model, latency, 0, 0, 0, false)
		return nil, err
	}

	cost := 0.0
	if !r.cfg.DisableCost {
		cost = resp.Cost
		if cost == 0 {
			cost = r.cfg.Pricing.Cost(model, resp.Usage)
		}
	}

	out := *resp
	out.Model = model
	out.Cost = cost
	out.Latency = latency

	r.record(CallRecord{
		Model:        model,
		InputTokens:  resp.Usage.InputTokens,
		OutputTokens: resp.Usage.OutputTokens,
		Cost:         cost,
		Latency:      latency,
		Success:      true,
	})
	observability.RecordModelCall(model, latency, resp.Usage.InputTokens, resp.Usage.OutputTokens, cost, true)

	return &out, nil
}

func (r *Router) record(rec CallRecord) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.callLog = append(r.callLog, rec)
	if rec.Success {
		r.totalTokens = r.totalTokens.Add(TokenUsage{InputTokens: rec.InputTokens, OutputTokens: rec.OutputTokens})
		r.totalCost += rec.Cost
	}
}

func (r *Router) limiter(model string) *rate.Limiter {
	if r.cfg.RequestsPerSecond <= 0 {
		return nil
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	l, ok := r.limiters[model]
	if !ok {
		burst := int(math.Ceil(r.cfg.RequestsPerSecond))
		l = rate.NewLimiter(rate.Limit(r.cfg.RequestsPerSecond), burst)
		r.limiters[model] = l
	}
	return l
}

// CallLog returns a copy of every recorded call attempt.
func (r *Router) CallLog() []CallRecord {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]CallRecord(nil), r.callLog...)
}

// TotalTokens returns accumulated token usage of successful calls.
func (r *Router) TotalTokens() TokenUsage {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.totalTokens
}

// TotalCost returns accumulated cost of successful calls.
func (r *Router) TotalCost() float64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.totalCost
}

// CostSummary returns totals and a per-model breakdown.
func (r *Router) CostSummary() CostSummary {
	r.mu.Lock()
	defer r.mu.Unlock()

	byModel := make(map[string]ModelCost)
	for _, rec := range r.callLog {
		mc := byModel[rec.Model]
		mc.Cost += rec.Cost
		mc.Tokens = mc.Tokens.Add(TokenUsage{InputTokens: rec.InputTokens, OutputTokens: rec.OutputTokens})
		mc.Calls++
		byModel[rec.Model] = mc
	}

	return CostSummary{
		TotalCost:   r.totalCost,
		TotalTokens: r.totalTokens,
		ByModel:     byModel,
		CallCount:   len(r.callLog),
	}
}

// HasProvider reports whether a provider is registered for model's prefix.
func (r *Router) HasProvider(model string) bool {
	p, _ := SplitModel(model)
	_, ok := r.cfg.Providers[p]
	return ok
}
