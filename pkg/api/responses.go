package api

import (
	"encoding/json"
	"time"

	"github.com/nulzo/capability-router/internal/core/domain"
)

// ListResponse wraps collections the same way across every endpoint.
type ListResponse struct {
	Object string      `json:"object"`
	Data   interface{} `json:"data"`
}

func List(data interface{}) ListResponse {
	return ListResponse{Object: "list", Data: data}
}

// ProviderView is the read shape of a provider; it never carries the credential.
type ProviderView struct {
	ID            string         `json:"id"`
	ProviderKey   string         `json:"provider_key"`
	DisplayName   string         `json:"display_name"`
	ProtocolType  string         `json:"protocol_type"`
	BaseURL       string         `json:"base_url"`
	AuthType      string         `json:"auth_type"`
	CredentialSet bool           `json:"credential_set"`
	OrgID         string         `json:"org_id,omitempty"`
	Extra         map[string]any `json:"extra,omitempty"`
	Enabled       bool           `json:"enabled"`
	Position      int            `json:"position"`
	CreatedAt     time.Time      `json:"created_at"`
	UpdatedAt     time.Time      `json:"updated_at"`
}

// AttemptView is one entry of a route trace.
type AttemptView struct {
	AttemptIndex int    `json:"attempt_index"`
	RetryIndex   int    `json:"retry_index"`
	ProviderID   string `json:"provider_id"`
	Model        string `json:"model"`
	Success      bool   `json:"success"`
	ErrorKind    string `json:"error_kind,omitempty"`
	LatencyMS    int64  `json:"latency_ms"`
}

// RouteResponse carries the upstream body plus the trace of what was tried.
// JSON bodies are embedded in Data; anything else (e.g. audio) goes to Body as base64.
type RouteResponse struct {
	Capability   string          `json:"capability"`
	SessionID    string          `json:"session_id"`
	ProviderID   string          `json:"provider_id"`
	Model        string          `json:"model"`
	ProtocolType string          `json:"protocol_type"`
	StatusCode   int             `json:"status_code"`
	ContentType  string          `json:"content_type"`
	Data         json.RawMessage `json:"data,omitempty"`
	Body         []byte          `json:"body,omitempty"`
	Attempts     []AttemptView   `json:"attempts"`
}

func AttemptViewFrom(a domain.AttemptLog) AttemptView {
	return AttemptView{
		AttemptIndex: a.AttemptIndex,
		RetryIndex:   a.RetryIndex,
		ProviderID:   a.ProviderID,
		Model:        a.ModelName,
		Success:      a.Success,
		ErrorKind:    string(a.ErrorKind),
		LatencyMS:    a.LatencyMS,
	}
}

func ProviderViewFrom(p domain.ProviderConfig) ProviderView {
	return ProviderView{
		ID:            p.ID,
		ProviderKey:   p.ProviderKey,
		DisplayName:   p.DisplayName,
		ProtocolType:  string(p.ProtocolType),
		BaseURL:       p.BaseURL,
		AuthType:      p.AuthType,
		CredentialSet: p.HasCredential(),
		OrgID:         p.OrgID,
		Extra:         p.Extra,
		Enabled:       p.Enabled,
		Position:      p.Position,
		CreatedAt:     p.CreatedAt,
		UpdatedAt:     p.UpdatedAt,
	}
}
