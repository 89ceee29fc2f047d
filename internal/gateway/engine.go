package gateway

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"
	"unicode/utf8"

	"github.com/nulzo/capability-router/internal/core/domain"
	"github.com/nulzo/capability-router/internal/llm"
	"github.com/nulzo/capability-router/internal/platform/metrics"
	"github.com/nulzo/capability-router/internal/platform/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
)

const (
	// retryCeiling bounds retry_count even if a policy slipped past the store's clamp.
	retryCeiling = 10
	// defaultAttemptTimeout applies when a policy carries a non-positive timeout.
	defaultAttemptTimeout = 60 * time.Second
	maxErrorMessageLen    = 1024
)

var errAdapterUnavailable = errors.New("provider adapter unavailable")

// ProviderSource hands out the provider snapshot used for one route call.
type ProviderSource interface {
	Snapshot() *Snapshot
}

// PolicySource returns a copy of the policy for a capability.
type PolicySource interface {
	Get(capability domain.Capability) (domain.Policy, bool)
}

// AttemptRecorder durably appends one attempt log row.
type AttemptRecorder interface {
	Append(ctx context.Context, entry *domain.AttemptLog) error
}

// Request is one logical routed call.
type Request struct {
	Capability domain.Capability
	SessionID  string
	Payload    json.RawMessage
}

// Response is the winning upstream result plus the attempt trace.
type Response struct {
	Capability   domain.Capability
	SessionID    string
	ProviderID   string
	Model        string
	ProtocolType domain.ProtocolType
	Result       *llm.Result
	Attempts     []domain.AttemptLog
}

type candidate struct {
	provider domain.ProviderConfig
	adapter  llm.Adapter
	model    string
}

// Engine walks a capability's policy chain sequentially with per attempt
// timeouts and retries, logging every attempt.
type Engine struct {
	logger    *zap.Logger
	providers ProviderSource
	policies  PolicySource
	recorder  AttemptRecorder
	metrics   *metrics.Metrics
	tracer    trace.Tracer
	now       func() time.Time
}

type EngineOption func(*Engine)

func WithMetrics(m *metrics.Metrics) EngineOption {
	return func(e *Engine) { e.metrics = m }
}

func WithTracer(t trace.Tracer) EngineOption {
	return func(e *Engine) { e.tracer = t }
}

func WithClock(now func() time.Time) EngineOption {
	return func(e *Engine) { e.now = now }
}

func NewEngine(logger *zap.Logger, providers ProviderSource, policies PolicySource, recorder AttemptRecorder, opts ...EngineOption) *Engine {
	e := &Engine{
		logger:    logger,
		providers: providers,
		policies:  policies,
		recorder:  recorder,
		tracer:    otel.NoopTracer(),
		now:       time.Now,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Route serves one request for a capability.
func (e *Engine) Route(ctx context.Context, req Request) (*Response, error) {
	ctx, span := e.tracer.Start(ctx, "gateway.route", trace.WithAttributes(
		attribute.String("router.capability", string(req.Capability)),
		attribute.String("router.session_id", req.SessionID),
	))
	defer span.End()

	resp, err := e.route(ctx, req)

	outcome := routeOutcome(err)
	e.metrics.RecordRoute(string(req.Capability), outcome)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, outcome)
		return nil, err
	}

	span.SetAttributes(
		attribute.String("router.provider_id", resp.ProviderID),
		attribute.Int("router.attempts", len(resp.Attempts)),
	)
	return resp, nil
}

func (e *Engine) route(ctx context.Context, req Request) (*Response, error) {
	policy, ok := e.policies.Get(req.Capability)
	if !ok || !policy.Enabled {
		return nil, fmt.Errorf("%w: %s", ErrPolicyUnavailable, req.Capability)
	}

	log := e.logger.With(
		zap.String("capability", string(req.Capability)),
		zap.String("session_id", req.SessionID),
	)

	candidates := eligible(e.providers.Snapshot(), policy, log)
	if len(candidates) == 0 {
		entry := &domain.AttemptLog{
			SessionID:    req.SessionID,
			Capability:   req.Capability,
			ErrorKind:    domain.ErrorKindNoProvider,
			ErrorMessage: "no enabled provider in routing chain",
			CreatedAt:    e.now().UTC(),
		}
		if err := e.record(ctx, entry); err != nil {
			return nil, err
		}
		log.Warn("No eligible provider for capability")
		return nil, fmt.Errorf("%w: %s", ErrNoEligibleProvider, req.Capability)
	}

	retries := policy.RetryCount
	if retries < 0 {
		retries = 0
	}
	if retries > retryCeiling {
		retries = retryCeiling
	}
	timeout := policy.Timeout()
	if timeout <= 0 {
		timeout = defaultAttemptTimeout
	}

	var (
		attempts     []domain.AttemptLog
		last         *AttemptError
		attemptIndex int
	)

	for _, c := range candidates {
		for retry := 0; retry <= retries; retry++ {
			if err := ctx.Err(); err != nil {
				return nil, fmt.Errorf("route %s abandoned: %w", req.Capability, err)
			}

			result, entry, attemptErr := e.attempt(ctx, req, c, attemptIndex, retry, timeout)
			attemptIndex++

			if err := e.record(ctx, entry); err != nil {
				return nil, err
			}
			attempts = append(attempts, *entry)

			if attemptErr == nil {
				log.Debug("Route served",
					zap.String("provider_id", c.provider.ID),
					zap.String("model", c.model),
					zap.Int("attempts", len(attempts)),
				)
				return &Response{
					Capability:   req.Capability,
					SessionID:    req.SessionID,
					ProviderID:   c.provider.ID,
					Model:        c.model,
					ProtocolType: c.provider.ProtocolType,
					Result:       result,
					Attempts:     attempts,
				}, nil
			}

			last = attemptErr
			log.Debug("Attempt failed",
				zap.String("provider_id", c.provider.ID),
				zap.String("model", c.model),
				zap.Int("attempt_index", entry.AttemptIndex),
				zap.Int("retry_index", entry.RetryIndex),
				zap.String("error_kind", string(entry.ErrorKind)),
				zap.Error(attemptErr.Err),
			)

			if err := ctx.Err(); err != nil {
				return nil, fmt.Errorf("route %s abandoned: %w", req.Capability, err)
			}
		}
	}

	exhausted := &ExhaustedError{Capability: req.Capability, Attempts: attemptIndex, Last: last, Trace: attempts}
	log.Warn("All providers exhausted",
		zap.Int("attempts", attemptIndex),
		zap.String("last_error_kind", string(exhausted.LastErrorKind())),
	)
	return nil, exhausted
}

// eligible filters the policy chain down to present, enabled providers, keeping order.
func eligible(snap *Snapshot, policy domain.Policy, log *zap.Logger) []candidate {
	var out []candidate
	for _, c := range policy.Candidates() {
		p, adapter, ok := snap.Lookup(c.ProviderID)
		if !ok {
			log.Debug("Skipping missing provider", zap.String("provider_id", c.ProviderID))
			continue
		}
		if !p.Enabled {
			log.Debug("Skipping disabled provider", zap.String("provider_id", c.ProviderID))
			continue
		}
		out = append(out, candidate{provider: p, adapter: adapter, model: c.Model})
	}
	return out
}

// attempt runs one bounded call. A result arriving after the deadline is dropped.
func (e *Engine) attempt(ctx context.Context, req Request, c candidate, attemptIndex, retryIndex int, timeout time.Duration) (*llm.Result, *domain.AttemptLog, *AttemptError) {
	ctx, span := e.tracer.Start(ctx, "gateway.attempt", trace.WithAttributes(
		attribute.String("router.provider_id", c.provider.ID),
		attribute.String("router.model", c.model),
		attribute.Int("router.attempt_index", attemptIndex),
		attribute.Int("router.retry_index", retryIndex),
	))
	defer span.End()

	attemptCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	start := e.now()
	result, err := invoke(attemptCtx, c.adapter, llm.Invocation{
		Capability: req.Capability,
		Model:      c.model,
		Payload:    req.Payload,
	})
	latency := e.now().Sub(start)

	entry := &domain.AttemptLog{
		SessionID:    req.SessionID,
		Capability:   req.Capability,
		ProtocolType: c.provider.ProtocolType,
		ProviderID:   c.provider.ID,
		ModelName:    c.model,
		AttemptIndex: attemptIndex,
		RetryIndex:   retryIndex,
		LatencyMS:    latency.Milliseconds(),
		CreatedAt:    e.now().UTC(),
	}

	if err == nil {
		entry.Success = true
		e.metrics.RecordAttempt(string(req.Capability), c.provider.ID, domain.OutcomeSuccess, latency.Seconds())
		return result, entry, nil
	}

	kind := Classify(err)
	switch {
	case errors.Is(ctx.Err(), context.Canceled):
		kind = domain.ErrorKindUnknown
		err = fmt.Errorf("request cancelled: %w", err)
	case errors.Is(attemptCtx.Err(), context.DeadlineExceeded):
		kind = domain.ErrorKindTimeout
		err = fmt.Errorf("attempt exceeded %s: %w", timeout, err)
	}

	entry.ErrorKind = kind
	entry.ErrorMessage = truncate(err.Error(), maxErrorMessageLen)

	span.RecordError(err)
	span.SetStatus(codes.Error, string(kind))
	e.metrics.RecordAttempt(string(req.Capability), c.provider.ID, string(kind), latency.Seconds())

	return nil, entry, &AttemptError{Kind: kind, ProviderID: c.provider.ID, Model: c.model, Err: err}
}

func invoke(ctx context.Context, adapter llm.Adapter, inv llm.Invocation) (*llm.Result, error) {
	if adapter == nil {
		return nil, errAdapterUnavailable
	}

	type outcome struct {
		result *llm.Result
		err    error
	}
	done := make(chan outcome, 1)
	go func() {
		result, err := adapter.Invoke(ctx, inv)
		done <- outcome{result: result, err: err}
	}()

	select {
	case o := <-done:
		return o.result, o.err
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// record appends an entry even when the caller has gone away.
func (e *Engine) record(ctx context.Context, entry *domain.AttemptLog) error {
	if err := e.recorder.Append(context.WithoutCancel(ctx), entry); err != nil {
		e.logger.Error("Failed to record attempt",
			zap.String("capability", string(entry.Capability)),
			zap.String("session_id", entry.SessionID),
			zap.Int("attempt_index", entry.AttemptIndex),
			zap.Error(err),
		)
		return fmt.Errorf("record attempt: %w", err)
	}
	return nil
}

func routeOutcome(err error) string {
	var exhausted *ExhaustedError
	switch {
	case err == nil:
		return domain.OutcomeSuccess
	case errors.Is(err, ErrPolicyUnavailable):
		return "policy_unavailable"
	case errors.Is(err, ErrNoEligibleProvider):
		return "no_eligible_provider"
	case errors.As(err, &exhausted):
		return "exhausted"
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return "abandoned"
	default:
		return "error"
	}
}

// truncate cuts s to at most n bytes without splitting a rune.
func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	for n > 0 && !utf8.RuneStart(s[n]) {
		n--
	}
	return s[:n]
}
