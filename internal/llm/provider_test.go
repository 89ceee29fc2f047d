package llm

import (
	"testing"

	"github.com/nulzo/capability-router/internal/core/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWithModel(t *testing.T) {
	out, err := WithModel([]byte(`{"model":"old","n":1}`), "new")
	require.NoError(t, err)
	assert.JSONEq(t, `{"model":"new","n":1}`, string(out))

	out, err = WithModel(nil, "m")
	require.NoError(t, err)
	assert.JSONEq(t, `{"model":"m"}`, string(out))

	_, err = WithModel([]byte(`[`), "m")
	assert.Error(t, err)
}

func TestExtraHeaders(t *testing.T) {
	cfg := domain.ProviderConfig{Extra: map[string]any{
		"headers":           map[string]any{"X-A": "1", "X-B": 2},
		"anthropic_version": "2024-01-01",
	}}
	assert.Equal(t, map[string]string{"X-A": "1"}, ExtraHeaders(cfg))
	assert.Equal(t, "2024-01-01", ExtraString(cfg, "anthropic_version"))
	assert.Empty(t, ExtraHeaders(domain.ProviderConfig{}))
}

func TestFactory_UnknownProtocol(t *testing.T) {
	_, err := NewProviderFactory(nil).Create(domain.ProviderConfig{ID: "x", ProtocolType: "grpc"})
	assert.Error(t, err)
}
