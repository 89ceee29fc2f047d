package server

import (
	"bytes"
	"context"
	"encoding/csv"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/nulzo/capability-router/internal/analytics"
	"github.com/nulzo/capability-router/internal/config"
	"github.com/nulzo/capability-router/internal/core/domain"
	"github.com/nulzo/capability-router/internal/gateway"
	"github.com/nulzo/capability-router/internal/health"
	"github.com/nulzo/capability-router/internal/llm"
	_ "github.com/nulzo/capability-router/internal/llm/openai"
	"github.com/nulzo/capability-router/internal/platform/metrics"
	"github.com/nulzo/capability-router/internal/platform/secrets"
	"github.com/nulzo/capability-router/internal/policy"
	"github.com/nulzo/capability-router/internal/store/cache"
	"github.com/nulzo/capability-router/internal/store/sqlite"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

const (
	routeKey = "route-key"
	adminKey = "admin-key"
)

type testEnv struct {
	handler  http.Handler
	registry *gateway.Registry
	policies *policy.Store
}

// upstream fakes an OpenAI compatible provider.
func upstream(t *testing.T, chatStatus, modelsStatus int) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		switch r.URL.Path {
		case "/chat/completions":
			var body map[string]any
			_ = json.NewDecoder(r.Body).Decode(&body)
			w.WriteHeader(chatStatus)
			if chatStatus >= 300 {
				_, _ = w.Write([]byte(`{"error":{"message":"upstream said no"}}`))
				return
			}
			_ = json.NewEncoder(w).Encode(map[string]any{"model": body["model"], "choices": []any{}})
		case "/models":
			w.WriteHeader(modelsStatus)
			_, _ = w.Write([]byte(`{"data":[]}`))
		default:
			w.WriteHeader(http.StatusNotFound)
		}
	}))
	t.Cleanup(srv.Close)
	return srv
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	gin.SetMode(gin.TestMode)
	ctx := context.Background()
	logger := zap.NewNop()

	repo, err := sqlite.NewSQLiteStorage(":memory:", logger)
	require.NoError(t, err)
	t.Cleanup(func() { _ = repo.Close() })

	registry := gateway.NewRegistry(logger, repo, secrets.NewBox("test-secret"), llm.NewProviderFactory(nil))
	for _, p := range []struct {
		id, key string
		chat    int
		models  int
	}{
		{"p1", "deepseek", http.StatusTooManyRequests, http.StatusUnauthorized},
		{"p2", "qwen", http.StatusOK, http.StatusOK},
	} {
		srv := upstream(t, p.chat, p.models)
		_, err := registry.Save(ctx, domain.ProviderConfig{
			ID: p.id, ProviderKey: p.key, ProtocolType: domain.ProtocolOpenAI,
			BaseURL: srv.URL, Credential: "sk-" + p.id, Enabled: true,
		})
		require.NoError(t, err)
	}

	store := policy.NewStore(logger, repo, 2)
	catalog, err := policy.NewCatalog(logger, "")
	require.NoError(t, err)
	provisioner := policy.NewProvisioner(catalog, store, registry, nil)
	attempts := analytics.NewService(logger, repo)
	m := metrics.New()

	engine := gateway.NewEngine(logger, registry, store, attempts, gateway.WithMetrics(m))
	prober := health.NewProber(logger, registry, health.WithTimeout(2*time.Second), health.WithCache(cache.NewMemoryCache(), time.Minute))

	adminHash, err := secrets.HashToken(adminKey)
	require.NoError(t, err)

	cfg := &config.Config{}
	cfg.Server.Env = "test"
	cfg.Server.APIKeys = []string{routeKey}
	cfg.Server.AdminKeys = []string{adminHash}
	cfg.Routing.MaxTimeoutMS = 600000

	srv := New(cfg, logger, Services{
		Engine:      engine,
		Registry:    registry,
		Policies:    store,
		Catalog:     catalog,
		Provisioner: provisioner,
		Attempts:    attempts,
		Prober:      prober,
		Metrics:     m,
	})
	return &testEnv{handler: srv.Handler(), registry: registry, policies: store}
}

func (e *testEnv) do(t *testing.T, method, path, key string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	if key != "" {
		req.Header.Set("Authorization", "Bearer "+key)
	}
	w := httptest.NewRecorder()
	e.handler.ServeHTTP(w, req)
	return w
}

func decode(t *testing.T, w *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var out map[string]any
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &out), w.Body.String())
	return out
}

func (e *testEnv) putChatPolicy(t *testing.T, fallback ...map[string]string) {
	t.Helper()
	w := e.do(t, http.MethodPut, "/v1/admin/policies/chat", adminKey, map[string]any{
		"primary_provider_id": "p1",
		"primary_model":       "deepseek-chat",
		"fallback_chain":      fallback,
		"timeout_ms":          5000,
		"retry_count":         1,
		"enabled":             true,
	})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
}

func TestHealthAndMetrics(t *testing.T) {
	env := newTestEnv(t)

	w := env.do(t, http.MethodGet, "/health", "", nil)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "ok", decode(t, w)["status"])
	assert.NotEmpty(t, w.Header().Get("X-Request-ID"))

	w = env.do(t, http.MethodGet, "/metrics", "", nil)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "go_goroutines")
}

func TestRoute_FailoverAndStats(t *testing.T) {
	env := newTestEnv(t)
	env.putChatPolicy(t, map[string]string{"provider_id": "p2", "model": "qwen-plus"})

	w := env.do(t, http.MethodPost, "/v1/route/chat", "", map[string]any{"payload": map[string]any{"messages": []any{}}})
	assert.Equal(t, http.StatusUnauthorized, w.Code)
	assert.Equal(t, "Unauthorized", decode(t, w)["title"])

	w = env.do(t, http.MethodPost, "/v1/route/chat", routeKey, map[string]any{
		"session_id": "sess-1",
		"payload":    map[string]any{"messages": []any{}},
	})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	body := decode(t, w)
	assert.Equal(t, "p2", body["provider_id"])
	assert.Equal(t, "sess-1", body["session_id"])
	assert.Equal(t, "qwen-plus", body["data"].(map[string]any)["model"])

	attempts := body["attempts"].([]any)
	require.Len(t, attempts, 3)
	for i, a := range attempts {
		assert.EqualValues(t, i, a.(map[string]any)["attempt_index"])
	}
	assert.Equal(t, "rate_limit", attempts[0].(map[string]any)["error_kind"])
	assert.Equal(t, true, attempts[2].(map[string]any)["success"])

	w = env.do(t, http.MethodGet, "/v1/admin/attempts/stats?hours=24&capability=chat", adminKey, nil)
	require.Equal(t, http.StatusOK, w.Code)
	counts := map[string]float64{}
	for _, s := range decode(t, w)["data"].([]any) {
		st := s.(map[string]any)
		counts[st["error_kind"].(string)] = st["count"].(float64)
	}
	assert.Equal(t, map[string]float64{"rate_limit": 2, "success": 1}, counts)

	w = env.do(t, http.MethodGet, "/v1/admin/attempts?session_id=sess-1&success=false", adminKey, nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Len(t, decode(t, w)["data"].([]any), 2)

	w = env.do(t, http.MethodGet, "/v1/admin/attempts/export?session_id=sess-1", adminKey, nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.True(t, strings.HasPrefix(w.Header().Get("Content-Type"), "text/csv"))
	records, err := csv.NewReader(w.Body).ReadAll()
	require.NoError(t, err)
	assert.Len(t, records, 4)
	assert.Equal(t, "id", records[0][0])
}

func TestAttempts_RejectsOversizedWindow(t *testing.T) {
	env := newTestEnv(t)

	for _, path := range []string{
		"/v1/admin/attempts/stats?hours=9223372036854775807",
		"/v1/admin/attempts/stats?hours=87601",
		"/v1/admin/attempts?hours=100000000",
		"/v1/admin/attempts/export?hours=100000000",
	} {
		w := env.do(t, http.MethodGet, path, adminKey, nil)
		assert.Equal(t, http.StatusBadRequest, w.Code, path)
	}

	w := env.do(t, http.MethodGet, "/v1/admin/attempts/stats?hours=87600", adminKey, nil)
	assert.Equal(t, http.StatusOK, w.Code)
}

func TestRoute_Exhausted(t *testing.T) {
	env := newTestEnv(t)
	env.putChatPolicy(t)

	w := env.do(t, http.MethodPost, "/v1/route/chat", routeKey, map[string]any{"payload": map[string]any{}})
	require.Equal(t, http.StatusBadGateway, w.Code, w.Body.String())

	body := decode(t, w)
	assert.Equal(t, "rate_limit", body["last_error_kind"])
	assert.Len(t, body["attempts"].([]any), 2)
	assert.Equal(t, "/problems/all-providers-exhausted", body["type"])
}

func TestRoute_ConfigurationErrors(t *testing.T) {
	env := newTestEnv(t)

	w := env.do(t, http.MethodPost, "/v1/route/vision", routeKey, map[string]any{"payload": map[string]any{}})
	assert.Equal(t, http.StatusConflict, w.Code)
	assert.Equal(t, "/problems/policy-unavailable", decode(t, w)["type"])

	w = env.do(t, http.MethodPut, "/v1/admin/policies/vision", adminKey, map[string]any{
		"primary_provider_id": "ghost",
		"primary_model":       "m",
		"timeout_ms":          1000,
		"enabled":             true,
	})
	require.Equal(t, http.StatusOK, w.Code)

	w = env.do(t, http.MethodPost, "/v1/route/vision", routeKey, map[string]any{"payload": map[string]any{}})
	assert.Equal(t, http.StatusConflict, w.Code)
	assert.Equal(t, "/problems/no-eligible-provider", decode(t, w)["type"])

	w = env.do(t, http.MethodPost, "/v1/route/telepathy", routeKey, map[string]any{"payload": map[string]any{}})
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = env.do(t, http.MethodPost, "/v1/route/chat", routeKey, map[string]any{})
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestPolicies_VersioningAndValidation(t *testing.T) {
	env := newTestEnv(t)
	env.putChatPolicy(t)

	w := env.do(t, http.MethodGet, "/v1/admin/policies/chat", adminKey, nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.EqualValues(t, 1, decode(t, w)["version"])

	w = env.do(t, http.MethodPut, "/v1/admin/policies/chat", adminKey, map[string]any{
		"primary_provider_id": "p2", "primary_model": "qwen-plus",
		"timeout_ms": 5000, "enabled": true, "version": 7,
	})
	assert.Equal(t, http.StatusConflict, w.Code)

	w = env.do(t, http.MethodPut, "/v1/admin/policies/chat", adminKey, map[string]any{
		"primary_provider_id": "p2", "primary_model": "qwen-plus",
		"timeout_ms": 0, "enabled": true,
	})
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Contains(t, decode(t, w)["errors"], "timeout_ms")

	w = env.do(t, http.MethodPut, "/v1/admin/policies/chat", adminKey, map[string]any{
		"primary_provider_id": "p2", "primary_model": "qwen-plus",
		"timeout_ms": 5000, "retry_count": 9, "enabled": true, "version": 1,
	})
	require.Equal(t, http.StatusOK, w.Code)
	body := decode(t, w)
	assert.EqualValues(t, 2, body["retry_count"])
	assert.EqualValues(t, 2, body["version"])

	w = env.do(t, http.MethodGet, "/v1/admin/policies/image_gen/defaults", adminKey, nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.EqualValues(t, 120000, decode(t, w)["timeout_ms"])

	w = env.do(t, http.MethodGet, "/v1/admin/policies", adminKey, nil)
	assert.Len(t, decode(t, w)["data"].([]any), 1)

	w = env.do(t, http.MethodDelete, "/v1/admin/policies/chat", adminKey, nil)
	assert.Equal(t, http.StatusNoContent, w.Code)
	w = env.do(t, http.MethodGet, "/v1/admin/policies/chat", adminKey, nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestTemplates_ApplyAndResolutionError(t *testing.T) {
	env := newTestEnv(t)

	w := env.do(t, http.MethodGet, "/v1/admin/templates?capability=chat", adminKey, nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.NotEmpty(t, decode(t, w)["data"])

	w = env.do(t, http.MethodPost, "/v1/admin/policies/chat/apply-template", adminKey, map[string]any{"template_id": "china-first-p0"})
	require.Equal(t, http.StatusUnprocessableEntity, w.Code, w.Body.String())
	assert.Equal(t, []any{[]any{"moonshot"}}, decode(t, w)["missing_requirement_keys"])

	_, ok := env.policies.Get(domain.CapabilityChat)
	assert.False(t, ok, "nothing is saved on resolution failure")

	w = env.do(t, http.MethodPost, "/v1/admin/policies/audio_tts/apply-template", adminKey, map[string]any{"template_id": "china-first-p0"})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	body := decode(t, w)
	assert.Equal(t, "p2", body["primary_provider_id"])
	assert.Equal(t, "cosyvoice-v1", body["primary_model"])

	w = env.do(t, http.MethodGet, "/v1/admin/templates/chat/nope/preview", adminKey, nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestProviders_CRUD(t *testing.T) {
	env := newTestEnv(t)

	w := env.do(t, http.MethodGet, "/v1/admin/providers", "wrong", nil)
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	w = env.do(t, http.MethodPost, "/v1/admin/providers", adminKey, map[string]any{
		"id": "ms", "provider_key": "moonshot", "protocol_type": "openai",
		"base_url": "https://api.moonshot.cn/v1", "credential": "sk-secret",
	})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	body := decode(t, w)
	assert.Equal(t, true, body["credential_set"])
	assert.Equal(t, true, body["enabled"])
	assert.NotContains(t, w.Body.String(), "sk-secret")
	assert.EqualValues(t, 2, body["position"])

	w = env.do(t, http.MethodPost, "/v1/admin/providers", adminKey, map[string]any{
		"id": "ms", "provider_key": "moonshot", "protocol_type": "openai",
	})
	assert.Equal(t, http.StatusConflict, w.Code)

	w = env.do(t, http.MethodPost, "/v1/admin/providers", adminKey, map[string]any{
		"provider_key": "x", "protocol_type": "grpc",
	})
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = env.do(t, http.MethodPut, "/v1/admin/providers/ms", adminKey, map[string]any{
		"provider_key": "moonshot", "protocol_type": "openai", "enabled": false,
	})
	require.Equal(t, http.StatusOK, w.Code)
	body = decode(t, w)
	assert.Equal(t, false, body["enabled"])
	assert.Equal(t, true, body["credential_set"], "empty credential keeps the stored one")

	w = env.do(t, http.MethodGet, "/v1/admin/providers", adminKey, nil)
	require.Len(t, decode(t, w)["data"].([]any), 3)

	w = env.do(t, http.MethodDelete, "/v1/admin/providers/ms", adminKey, nil)
	assert.Equal(t, http.StatusNoContent, w.Code)
	w = env.do(t, http.MethodGet, "/v1/admin/providers/ms", adminKey, nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestHealthProbes(t *testing.T) {
	env := newTestEnv(t)

	w := env.do(t, http.MethodGet, "/v1/admin/health/providers/latest", adminKey, nil)
	assert.Equal(t, http.StatusNotFound, w.Code)

	w = env.do(t, http.MethodPost, "/v1/admin/health/providers", adminKey, nil)
	require.Equal(t, http.StatusOK, w.Code)
	results := decode(t, w)["results"].([]any)
	require.Len(t, results, 2)
	assert.Equal(t, "p1", results[0].(map[string]any)["provider_id"])
	assert.Equal(t, false, results[0].(map[string]any)["ok"])
	assert.Equal(t, "auth", results[0].(map[string]any)["error_kind"])
	assert.Equal(t, true, results[1].(map[string]any)["ok"])

	w = env.do(t, http.MethodPost, "/v1/admin/health/providers/p2", adminKey, nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, true, decode(t, w)["ok"])

	w = env.do(t, http.MethodPost, "/v1/admin/health/providers/ghost", adminKey, nil)
	assert.Equal(t, http.StatusNotFound, w.Code)

	w = env.do(t, http.MethodGet, "/v1/admin/health/providers/latest", adminKey, nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Len(t, decode(t, w)["results"].([]any), 2)

	w = env.do(t, http.MethodGet, "/v1/admin/attempts", adminKey, nil)
	assert.Empty(t, decode(t, w)["data"], "probes never write the attempt log")
}
