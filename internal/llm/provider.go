package llm

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/nulzo/capability-router/internal/core/domain"
	"github.com/tidwall/sjson"
)

// Adapter speaks one wire protocol to one configured provider.
type Adapter interface {
	ProviderID() string
	Protocol() domain.ProtocolType
	// Invoke performs a single upstream call. The deadline comes from ctx.
	Invoke(ctx context.Context, inv Invocation) (*Result, error)
	// Ping is a cheap authenticated reachability check used by the health prober.
	Ping(ctx context.Context) error
}

// Invocation is one call against one model. Payload is forwarded untouched
// except for the model field.
type Invocation struct {
	Capability domain.Capability
	Model      string
	Payload    json.RawMessage
}

// Result is the raw upstream response.
type Result struct {
	StatusCode  int
	ContentType string
	Body        []byte
}

// IsJSON reports whether the body can be embedded as JSON.
func (r *Result) IsJSON() bool {
	return strings.Contains(r.ContentType, "json") && json.Valid(r.Body)
}

// UnsupportedCapabilityError is returned when a protocol has no endpoint for a capability.
type UnsupportedCapabilityError struct {
	Protocol   domain.ProtocolType
	Capability domain.Capability
}

func (e *UnsupportedCapabilityError) Error() string {
	return fmt.Sprintf("%s protocol does not support capability %s", e.Protocol, e.Capability)
}

// WithModel returns payload with its "model" field set. An empty payload becomes an object.
func WithModel(payload json.RawMessage, model string) ([]byte, error) {
	if len(payload) == 0 {
		payload = json.RawMessage(`{}`)
	}
	if !json.Valid(payload) {
		return nil, fmt.Errorf("payload is not valid JSON")
	}
	out, err := sjson.SetBytes(payload, "model", model)
	if err != nil {
		return nil, fmt.Errorf("set model: %w", err)
	}
	return out, nil
}

// ExtraHeaders reads the optional "headers" object from a provider's extra settings.
func ExtraHeaders(cfg domain.ProviderConfig) map[string]string {
	out := map[string]string{}
	raw, ok := cfg.Extra["headers"].(map[string]any)
	if !ok {
		return out
	}
	for k, v := range raw {
		if s, ok := v.(string); ok {
			out[k] = s
		}
	}
	return out
}

// ExtraString reads a string setting from a provider's extra settings.
func ExtraString(cfg domain.ProviderConfig, key string) string {
	if s, ok := cfg.Extra[key].(string); ok {
		return s
	}
	return ""
}
