package gateway

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/nulzo/capability-router/internal/core/domain"
	"github.com/nulzo/capability-router/internal/llm"
	_ "github.com/nulzo/capability-router/internal/llm/anthropic"
	_ "github.com/nulzo/capability-router/internal/llm/openai"
	"github.com/nulzo/capability-router/internal/platform/secrets"
	"github.com/nulzo/capability-router/internal/store/sqlite"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func newTestRegistry(t *testing.T) (*Registry, *sqlite.SqliteRepository) {
	t.Helper()
	repo, err := sqlite.NewSQLiteStorage(":memory:", zap.NewNop())
	require.NoError(t, err)
	t.Cleanup(func() { _ = repo.Close() })

	return NewRegistry(zap.NewNop(), repo, secrets.NewBox("test"), llm.NewProviderFactory(nil)), repo
}

func TestRegistry_SaveSealsCredentialAndBuildsAdapter(t *testing.T) {
	ctx := context.Background()
	reg, repo := newTestRegistry(t)

	saved, err := reg.Save(ctx, domain.ProviderConfig{
		ID:           "deepseek",
		ProviderKey:  "deepseek",
		ProtocolType: domain.ProtocolOpenAI,
		BaseURL:      "https://api.deepseek.com/v1",
		Credential:   "sk-secret",
		Enabled:      true,
	})
	require.NoError(t, err)
	assert.Equal(t, "sk-secret", saved.Credential)
	assert.Equal(t, 0, saved.Position)

	row, err := repo.Providers().Get(ctx, "deepseek")
	require.NoError(t, err)
	assert.NotContains(t, row.CredentialEnc, "sk-secret")

	_, adapter, ok := reg.Snapshot().Lookup("deepseek")
	require.True(t, ok)
	require.NotNil(t, adapter)
	assert.Equal(t, domain.ProtocolOpenAI, adapter.Protocol())
}

func TestRegistry_UpdateKeepsCredentialAndPosition(t *testing.T) {
	ctx := context.Background()
	reg, _ := newTestRegistry(t)

	_, err := reg.Save(ctx, domain.ProviderConfig{ID: "a", ProviderKey: "qwen", ProtocolType: domain.ProtocolOpenAI, Credential: "k1", Enabled: true})
	require.NoError(t, err)
	_, err = reg.Save(ctx, domain.ProviderConfig{ID: "b", ProviderKey: "anthropic", ProtocolType: domain.ProtocolAnthropic, Enabled: true})
	require.NoError(t, err)

	updated, err := reg.Save(ctx, domain.ProviderConfig{ID: "a", ProviderKey: "qwen", DisplayName: "Qwen", ProtocolType: domain.ProtocolOpenAI, Enabled: false})
	require.NoError(t, err)
	assert.Equal(t, "k1", updated.Credential)
	assert.Equal(t, 0, updated.Position)
	assert.False(t, updated.Enabled)

	list := reg.List()
	require.Len(t, list, 2)
	assert.Equal(t, []string{"a", "b"}, []string{list[0].ID, list[1].ID})
	assert.Len(t, reg.Snapshot().Enabled(), 1)
}

func TestRegistry_ValidationAndDelete(t *testing.T) {
	ctx := context.Background()
	reg, _ := newTestRegistry(t)

	_, err := reg.Save(ctx, domain.ProviderConfig{ProviderKey: "x", ProtocolType: "grpc"})
	assert.Error(t, err)

	saved, err := reg.Save(ctx, domain.ProviderConfig{ProviderKey: "moonshot", ProtocolType: domain.ProtocolOpenAI})
	require.NoError(t, err)
	assert.NotEmpty(t, saved.ID)

	require.NoError(t, reg.Delete(ctx, saved.ID))
	_, err = reg.Get(saved.ID)
	assert.ErrorIs(t, err, ErrProviderNotFound)
	assert.ErrorIs(t, reg.Delete(ctx, saved.ID), ErrProviderNotFound)
}

func TestRegistry_SnapshotIsolation(t *testing.T) {
	ctx := context.Background()
	reg, _ := newTestRegistry(t)

	_, err := reg.Save(ctx, domain.ProviderConfig{ID: "a", ProviderKey: "qwen", ProtocolType: domain.ProtocolOpenAI, Enabled: true, Extra: map[string]any{"k": "v"}})
	require.NoError(t, err)

	before := reg.Snapshot()
	got, _, _ := before.Lookup("a")
	got.Extra["k"] = "mutated"

	_, err = reg.Save(ctx, domain.ProviderConfig{ID: "a", ProviderKey: "qwen", ProtocolType: domain.ProtocolOpenAI, Enabled: false})
	require.NoError(t, err)

	p, _, _ := before.Lookup("a")
	assert.True(t, p.Enabled, "old snapshot must not change")
	assert.Equal(t, "v", p.Extra["k"])
}

func TestBootstrapProviders_StoredWins(t *testing.T) {
	ctx := context.Background()
	reg, _ := newTestRegistry(t)

	_, err := reg.Save(ctx, domain.ProviderConfig{ID: "deepseek", ProviderKey: "deepseek", ProtocolType: domain.ProtocolOpenAI, Enabled: false})
	require.NoError(t, err)

	seeded, err := BootstrapProviders(ctx, reg, []domain.ProviderConfig{
		{ID: "deepseek", ProviderKey: "deepseek", ProtocolType: domain.ProtocolOpenAI, Enabled: true},
		{ProviderKey: "qwen", ProtocolType: domain.ProtocolOpenAI, Enabled: true},
		{ProviderKey: "broken", ProtocolType: "soap"},
	}, zap.NewNop())
	require.NoError(t, err)
	assert.Equal(t, 1, seeded)

	p, err := reg.Get("deepseek")
	require.NoError(t, err)
	assert.False(t, p.Enabled)

	_, err = reg.Get("qwen")
	assert.NoError(t, err)
}

func TestRegistry_UnreadableCredentialSurvivesUpdate(t *testing.T) {
	ctx := context.Background()
	repo, err := sqlite.NewSQLiteStorage(":memory:", zap.NewNop())
	require.NoError(t, err)
	t.Cleanup(func() { _ = repo.Close() })

	oldReg := NewRegistry(zap.NewNop(), repo, secrets.NewBox("old"), llm.NewProviderFactory(nil))
	_, err = oldReg.Save(ctx, domain.ProviderConfig{ID: "a", ProviderKey: "qwen", ProtocolType: domain.ProtocolOpenAI, Credential: "sk-a", Enabled: true})
	require.NoError(t, err)
	before, err := repo.Providers().Get(ctx, "a")
	require.NoError(t, err)

	rotated := NewRegistry(zap.NewNop(), repo, secrets.NewBox("new"), llm.NewProviderFactory(nil))
	require.NoError(t, rotated.Reload(ctx))
	p, err := rotated.Get("a")
	require.NoError(t, err)
	assert.Empty(t, p.Credential)

	_, err = rotated.Save(ctx, domain.ProviderConfig{ID: "a", ProviderKey: "qwen", ProtocolType: domain.ProtocolOpenAI, Enabled: false})
	require.NoError(t, err)

	after, err := repo.Providers().Get(ctx, "a")
	require.NoError(t, err)
	assert.Equal(t, before.CredentialEnc, after.CredentialEnc)
	assert.False(t, after.IsEnabled)

	restored := NewRegistry(zap.NewNop(), repo, secrets.NewBox("old"), llm.NewProviderFactory(nil))
	require.NoError(t, restored.Reload(ctx))
	p, err = restored.Get("a")
	require.NoError(t, err)
	assert.Equal(t, "sk-a", p.Credential)
}

func TestRegistry_CreateRejectsTakenID(t *testing.T) {
	ctx := context.Background()
	reg, _ := newTestRegistry(t)

	const workers = 8
	var wg sync.WaitGroup
	var created atomic.Int32
	errs := make(chan error, workers)
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, err := reg.Create(ctx, domain.ProviderConfig{
				ID:           "dup",
				ProviderKey:  "qwen",
				DisplayName:  fmt.Sprintf("worker-%d", i),
				ProtocolType: domain.ProtocolOpenAI,
				Enabled:      true,
			})
			if err == nil {
				created.Add(1)
				return
			}
			errs <- err
		}(i)
	}
	wg.Wait()
	close(errs)

	assert.Equal(t, int32(1), created.Load())
	for err := range errs {
		assert.ErrorIs(t, err, ErrProviderExists)
	}
	assert.Len(t, reg.List(), 1)
}
