package health

import (
	"context"
	"errors"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/nulzo/capability-router/internal/core/domain"
	"github.com/nulzo/capability-router/internal/gateway"
	"github.com/nulzo/capability-router/internal/httpclient"
	"github.com/nulzo/capability-router/internal/llm"
	"github.com/nulzo/capability-router/internal/platform/metrics"
	"github.com/nulzo/capability-router/internal/store/cache"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type pingAdapter struct {
	id    string
	delay time.Duration
	err   error
	calls atomic.Int32
}

func (a *pingAdapter) ProviderID() string              { return a.id }
func (a *pingAdapter) Protocol() domain.ProtocolType { return domain.ProtocolOpenAI }

func (a *pingAdapter) Invoke(context.Context, llm.Invocation) (*llm.Result, error) {
	return nil, errors.New("probes must not invoke")
}

func (a *pingAdapter) Ping(ctx context.Context) error {
	a.calls.Add(1)
	if a.delay > 0 {
		select {
		case <-time.After(a.delay):
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	return a.err
}

type staticSource struct{ snap *gateway.Snapshot }

func (s staticSource) Snapshot() *gateway.Snapshot { return s.snap }

func provider(id string, enabled bool) domain.ProviderConfig {
	return domain.ProviderConfig{ID: id, ProviderKey: id, ProtocolType: domain.ProtocolOpenAI, Enabled: enabled}
}

func source(adapters map[string]llm.Adapter, providers ...domain.ProviderConfig) staticSource {
	return staticSource{snap: gateway.NewSnapshot(providers, adapters)}
}

func TestProbeAll_OrderAndIsolation(t *testing.T) {
	a := &pingAdapter{id: "A", delay: time.Hour}
	b := &pingAdapter{id: "B"}
	c := &pingAdapter{id: "C"}
	src := source(map[string]llm.Adapter{"A": a, "B": b, "C": c},
		provider("A", true), provider("B", true), provider("C", false))

	m := metrics.New()
	p := NewProber(zap.NewNop(), src, WithTimeout(100*time.Millisecond), WithMetrics(m))

	start := time.Now()
	report := p.ProbeAll(context.Background())
	elapsed := time.Since(start)

	require.Len(t, report.Results, 2)
	assert.Equal(t, "A", report.Results[0].ProviderID)
	assert.Equal(t, "B", report.Results[1].ProviderID)

	assert.False(t, report.Results[0].OK)
	assert.Equal(t, domain.ErrorKindTimeout, report.Results[0].ErrorKind)
	assert.True(t, report.Results[1].OK)
	assert.Equal(t, "ok", report.Results[1].Message)

	assert.Less(t, elapsed, time.Second, "a hanging provider is bounded by the probe timeout")
	assert.Zero(t, c.calls.Load(), "disabled providers are not probed")

	expected := `
# HELP capability_router_provider_health Provider health from the latest probe (1=ok, 0=failed)
# TYPE capability_router_provider_health gauge
capability_router_provider_health{provider="A"} 0
capability_router_provider_health{provider="B"} 1
`
	assert.NoError(t, testutil.GatherAndCompare(m.Registry(), strings.NewReader(expected), "capability_router_provider_health"))
}

func TestProbeAll_SlowProviderDoesNotDelayOthers(t *testing.T) {
	slow := &pingAdapter{id: "A", delay: 300 * time.Millisecond}
	fast := &pingAdapter{id: "B"}
	src := source(map[string]llm.Adapter{"A": slow, "B": fast}, provider("A", true), provider("B", true))
	p := NewProber(zap.NewNop(), src, WithTimeout(time.Second))

	start := time.Now()
	report := p.ProbeAll(context.Background())
	elapsed := time.Since(start)

	require.Len(t, report.Results, 2)
	assert.True(t, report.Results[0].OK)
	assert.True(t, report.Results[1].OK)
	assert.GreaterOrEqual(t, report.Results[0].LatencyMS, int64(300))
	assert.Less(t, report.Results[1].LatencyMS, int64(200))
	assert.Less(t, elapsed, 600*time.Millisecond, "probes run concurrently")
}

func TestProbe_SingleProvider(t *testing.T) {
	upstream := &httpclient.UpstreamError{StatusCode: 401, Body: []byte(`{"error":{"message":"bad key"}}`)}
	a := &pingAdapter{id: "A", err: upstream}
	off := &pingAdapter{id: "OFF"}
	src := source(map[string]llm.Adapter{"A": a, "OFF": off}, provider("A", true), provider("OFF", false))
	p := NewProber(zap.NewNop(), src)

	info, err := p.Probe(context.Background(), "A")
	require.NoError(t, err)
	assert.False(t, info.OK)
	assert.Equal(t, domain.ErrorKindAuth, info.ErrorKind)
	assert.Equal(t, domain.ProtocolOpenAI, info.ProtocolType)

	info, err = p.Probe(context.Background(), "OFF")
	require.NoError(t, err)
	assert.True(t, info.OK)

	_, err = p.Probe(context.Background(), "missing")
	assert.ErrorIs(t, err, gateway.ErrProviderNotFound)
}

func TestProbe_MissingAdapter(t *testing.T) {
	src := source(nil, provider("A", true))
	p := NewProber(zap.NewNop(), src)

	info, err := p.Probe(context.Background(), "A")
	require.NoError(t, err)
	assert.False(t, info.OK)
	assert.Equal(t, domain.ErrorKindUnknown, info.ErrorKind)
}

func TestLatest_CachesReport(t *testing.T) {
	src := source(map[string]llm.Adapter{"A": &pingAdapter{id: "A"}}, provider("A", true))
	p := NewProber(zap.NewNop(), src, WithCache(cache.NewMemoryCache(), time.Minute))

	_, err := p.Latest(context.Background())
	assert.ErrorIs(t, err, cache.ErrCacheMiss)

	report := p.ProbeAll(context.Background())
	latest, err := p.Latest(context.Background())
	require.NoError(t, err)
	require.Len(t, latest.Results, 1)
	assert.Equal(t, report.Results[0].ProviderID, latest.Results[0].ProviderID)
	assert.True(t, latest.CheckedAt.Equal(report.CheckedAt))

	uncached := NewProber(zap.NewNop(), src)
	_, err = uncached.Latest(context.Background())
	assert.ErrorIs(t, err, cache.ErrCacheMiss)
}

func TestScheduler(t *testing.T) {
	src := source(map[string]llm.Adapter{"A": &pingAdapter{id: "A"}}, provider("A", true))
	p := NewProber(zap.NewNop(), src)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	empty := NewScheduler(zap.NewNop(), p, "")
	require.NoError(t, empty.Start(ctx))
	assert.False(t, empty.IsRunning())
	assert.Nil(t, empty.NextRun())

	bad := NewScheduler(zap.NewNop(), p, "not a cron")
	assert.Error(t, bad.Start(ctx))

	s := NewScheduler(zap.NewNop(), p, "*/5 * * * *")
	require.NoError(t, s.Start(ctx))
	assert.True(t, s.IsRunning())
	require.NotNil(t, s.NextRun())

	cancel()
	assert.Eventually(t, func() bool { return !s.IsRunning() }, time.Second, 10*time.Millisecond)
}
