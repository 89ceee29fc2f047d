package middleware

import (
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/nulzo/capability-router/internal/core/domain"
	"github.com/nulzo/capability-router/internal/gateway"
	"github.com/nulzo/capability-router/internal/platform/secrets"
	"github.com/nulzo/capability-router/internal/policy"
	"github.com/nulzo/capability-router/pkg/api"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func newEngine(mw ...gin.HandlerFunc) *gin.Engine {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.Use(ErrorHandler(zap.NewNop()))
	r.Use(mw...)
	r.GET("/", func(c *gin.Context) { c.String(http.StatusOK, "ok") })
	return r
}

func get(r http.Handler, auth string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	if auth != "" {
		req.Header.Set("Authorization", auth)
	}
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func TestAuth(t *testing.T) {
	hash, err := secrets.HashToken("hashed-key")
	require.NoError(t, err)
	r := newEngine(Auth([]string{"plain-key", hash, " "}))

	tests := []struct {
		name   string
		header string
		want   int
	}{
		{"missing", "", http.StatusUnauthorized},
		{"bad format", "Token plain-key", http.StatusUnauthorized},
		{"wrong key", "Bearer nope", http.StatusUnauthorized},
		{"plain", "Bearer plain-key", http.StatusOK},
		{"bcrypt", "Bearer hashed-key", http.StatusOK},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, get(r, tt.header).Code)
		})
	}
}

func TestAuth_OpenWhenNoKeys(t *testing.T) {
	r := newEngine(Auth(nil))
	assert.Equal(t, http.StatusOK, get(r, "").Code)
}

func TestRateLimiter(t *testing.T) {
	rl := NewRateLimiter(0.001, 2, zap.NewNop())
	r := newEngine(rl.Middleware())

	assert.Equal(t, http.StatusOK, get(r, "").Code)
	assert.Equal(t, http.StatusOK, get(r, "").Code)
	w := get(r, "")
	assert.Equal(t, http.StatusTooManyRequests, w.Code)
	assert.Equal(t, "1", w.Header().Get("Retry-After"))
}

func TestRequestID(t *testing.T) {
	r := newEngine(RequestID())

	w := get(r, "")
	assert.Len(t, w.Header().Get(HeaderRequestID), 36)

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set(HeaderRequestID, "abc")
	w = httptest.NewRecorder()
	r.ServeHTTP(w, req)
	assert.Equal(t, "abc", w.Header().Get(HeaderRequestID))
}

func TestToProblem(t *testing.T) {
	last := &gateway.AttemptError{Kind: domain.ErrorKindNetwork, ProviderID: "p2", Model: "m2", Err: errors.New("reset")}
	exhausted := &gateway.ExhaustedError{
		Capability: domain.CapabilityChat,
		Attempts:   1,
		Last:       last,
		Trace:      []domain.AttemptLog{{ProviderID: "p2", ModelName: "m2", ErrorKind: domain.ErrorKindNetwork}},
	}

	tests := []struct {
		name   string
		err    error
		status int
		ext    string
	}{
		{"problem passthrough", api.NotFoundError("x"), http.StatusNotFound, ""},
		{"exhausted", exhausted, http.StatusBadGateway, "last_error_kind"},
		{"policy unavailable", fmt.Errorf("%w: chat", gateway.ErrPolicyUnavailable), http.StatusConflict, ""},
		{"no eligible", fmt.Errorf("%w: chat", gateway.ErrNoEligibleProvider), http.StatusConflict, ""},
		{"template", &policy.TemplateResolutionError{Missing: [][]string{{"qwen"}}}, http.StatusUnprocessableEntity, "missing_requirement_keys"},
		{"version", policy.ErrVersionConflict, http.StatusConflict, ""},
		{"provider not found", gateway.ErrProviderNotFound, http.StatusNotFound, ""},
		{"provider exists", fmt.Errorf("%w: a", gateway.ErrProviderExists), http.StatusConflict, ""},
		{"template not found", policy.ErrTemplateNotFound, http.StatusNotFound, ""},
		{"validation", domain.NewValidator().Struct(domain.Policy{Capability: "chat"}), http.StatusBadRequest, "errors"},
		{"unknown", errors.New("boom"), http.StatusInternalServerError, ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := ToProblem(tt.err)
			assert.Equal(t, tt.status, p.Status)
			if tt.ext != "" {
				assert.Contains(t, p.Extensions, tt.ext)
			}
		})
	}

	p := ToProblem(exhausted)
	assert.Equal(t, domain.ErrorKindNetwork, p.Extensions["last_error_kind"])
	require.Len(t, p.Extensions["attempts"], 1)
	assert.NotNil(t, ToProblem(errors.New("boom")).Log)
}
