package health

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/nulzo/capability-router/internal/core/domain"
	"github.com/nulzo/capability-router/internal/gateway"
	"github.com/nulzo/capability-router/internal/llm"
	"github.com/nulzo/capability-router/internal/platform/metrics"
	"github.com/nulzo/capability-router/internal/store/cache"
	"go.uber.org/zap"
)

const (
	DefaultProbeTimeout = 10 * time.Second
	latestKey           = "health:latest"
)

// Report is the result of one ProbeAll run.
type Report struct {
	CheckedAt time.Time           `json:"checked_at"`
	Results   []domain.HealthInfo `json:"results"`
}

// Prober runs out-of-band reachability checks against providers. It never
// touches the attempt log.
type Prober struct {
	logger    *zap.Logger
	providers gateway.ProviderSource
	timeout   time.Duration

	cache    cache.CacheService
	cacheTTL time.Duration
	metrics  *metrics.Metrics
	now      func() time.Time
}

type Option func(*Prober)

func WithTimeout(d time.Duration) Option {
	return func(p *Prober) {
		if d > 0 {
			p.timeout = d
		}
	}
}

// WithCache stores the latest ProbeAll report in c for ttl.
func WithCache(c cache.CacheService, ttl time.Duration) Option {
	return func(p *Prober) {
		p.cache = c
		p.cacheTTL = ttl
	}
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(p *Prober) { p.metrics = m }
}

func NewProber(logger *zap.Logger, providers gateway.ProviderSource, opts ...Option) *Prober {
	p := &Prober{
		logger:    logger,
		providers: providers,
		timeout:   DefaultProbeTimeout,
		now:       time.Now,
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Probe checks a single provider regardless of whether it is enabled.
func (p *Prober) Probe(ctx context.Context, id string) (domain.HealthInfo, error) {
	cfg, adapter, ok := p.providers.Snapshot().Lookup(id)
	if !ok {
		return domain.HealthInfo{}, fmt.Errorf("%w: %s", gateway.ErrProviderNotFound, id)
	}
	return p.probe(ctx, cfg, adapter), nil
}

// ProbeAll checks every enabled provider concurrently. The result has one
// entry per enabled provider in declaration order; a slow provider only
// delays its own slot.
func (p *Prober) ProbeAll(ctx context.Context) Report {
	snap := p.providers.Snapshot()
	enabled := snap.Enabled()

	results := make([]domain.HealthInfo, len(enabled))
	var wg sync.WaitGroup
	for i, cfg := range enabled {
		_, adapter, _ := snap.Lookup(cfg.ID)
		wg.Add(1)
		go func(i int, cfg domain.ProviderConfig, adapter llm.Adapter) {
			defer wg.Done()
			results[i] = p.probe(ctx, cfg, adapter)
		}(i, cfg, adapter)
	}
	wg.Wait()

	report := Report{CheckedAt: p.now().UTC(), Results: results}
	if p.cache != nil {
		if err := p.cache.Set(context.WithoutCancel(ctx), latestKey, report, p.cacheTTL); err != nil {
			p.logger.Warn("Failed to cache health report", zap.Error(err))
		}
	}

	healthy := 0
	for _, r := range results {
		if r.OK {
			healthy++
		}
	}
	p.logger.Info("Provider health probed",
		zap.Int("providers", len(results)),
		zap.Int("healthy", healthy),
	)
	return report
}

// Latest returns the most recent cached ProbeAll report.
func (p *Prober) Latest(ctx context.Context) (Report, error) {
	if p.cache == nil {
		return Report{}, cache.ErrCacheMiss
	}
	var report Report
	if err := p.cache.Get(ctx, latestKey, &report); err != nil {
		return Report{}, err
	}
	return report, nil
}

type pingResult struct {
	err error
}

func (p *Prober) probe(ctx context.Context, cfg domain.ProviderConfig, adapter llm.Adapter) domain.HealthInfo {
	info := domain.HealthInfo{
		ProviderID:   cfg.ID,
		ProtocolType: cfg.ProtocolType,
	}

	start := p.now()
	err := p.ping(ctx, adapter)
	info.LatencyMS = p.now().Sub(start).Milliseconds()
	info.CheckedAt = p.now().UTC()

	if err == nil {
		info.OK = true
		info.Message = "ok"
	} else {
		info.ErrorKind = gateway.Classify(err)
		info.Message = err.Error()
		p.logger.Debug("Provider probe failed",
			zap.String("provider_id", cfg.ID),
			zap.String("error_kind", string(info.ErrorKind)),
			zap.Error(err),
		)
	}
	p.metrics.UpdateHealth(cfg.ID, info.OK)
	return info
}

var errNoAdapter = errors.New("no adapter configured for provider")

// ping bounds the adapter call by the probe timeout even if the adapter ignores ctx.
func (p *Prober) ping(ctx context.Context, adapter llm.Adapter) error {
	if adapter == nil {
		return errNoAdapter
	}

	probeCtx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()

	done := make(chan pingResult, 1)
	go func() {
		done <- pingResult{err: adapter.Ping(probeCtx)}
	}()

	select {
	case res := <-done:
		return res.err
	case <-probeCtx.Done():
		return fmt.Errorf("probe aborted: %w", probeCtx.Err())
	}
}
