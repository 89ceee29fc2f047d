package gateway

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"

	"github.com/nulzo/capability-router/internal/core/domain"
	"github.com/nulzo/capability-router/internal/llm"
)

// fakeAdapter replays scripted outcomes; the last one repeats.
type fakeAdapter struct {
	id     string
	mu     sync.Mutex
	script []func(ctx context.Context) (*llm.Result, error)
	calls  atomic.Int32
}

func (f *fakeAdapter) ProviderID() string            { return f.id }
func (f *fakeAdapter) Protocol() domain.ProtocolType { return domain.ProtocolOpenAI }
func (f *fakeAdapter) Ping(context.Context) error    { return nil }

func (f *fakeAdapter) Invoke(ctx context.Context, _ llm.Invocation) (*llm.Result, error) {
	n := int(f.calls.Add(1)) - 1
	f.mu.Lock()
	step := f.script[len(f.script)-1]
	if n < len(f.script) {
		step = f.script[n]
	}
	f.mu.Unlock()
	return step(ctx)
}

func succeed(body string) func(context.Context) (*llm.Result, error) {
	return func(context.Context) (*llm.Result, error) {
		return &llm.Result{StatusCode: 200, ContentType: "application/json", Body: []byte(body)}, nil
	}
}

func fail(err error) func(context.Context) (*llm.Result, error) {
	return func(context.Context) (*llm.Result, error) { return nil, err }
}

func hang() func(context.Context) (*llm.Result, error) {
	return func(ctx context.Context) (*llm.Result, error) {
		<-ctx.Done()
		return nil, ctx.Err()
	}
}

type staticPolicies map[domain.Capability]domain.Policy

func (s staticPolicies) Get(c domain.Capability) (domain.Policy, bool) {
	p, ok := s[c]
	return p.Clone(), ok
}

type staticProviders struct{ snap *Snapshot }

func (s staticProviders) Snapshot() *Snapshot { return s.snap }

type memoryRecorder struct {
	mu      sync.Mutex
	entries []domain.AttemptLog
	err     error
}

func (m *memoryRecorder) Append(_ context.Context, entry *domain.AttemptLog) error {
	if m.err != nil {
		return m.err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	entry.ID = int64(len(m.entries) + 1)
	m.entries = append(m.entries, *entry)
	return nil
}

func (m *memoryRecorder) all() []domain.AttemptLog {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]domain.AttemptLog, len(m.entries))
	copy(out, m.entries)
	return out
}

func provider(id string, enabled bool) domain.ProviderConfig {
	return domain.ProviderConfig{ID: id, ProviderKey: id, ProtocolType: domain.ProtocolOpenAI, Enabled: enabled}
}

var errRateLimited = errors.New("429")
