package api

import "encoding/json"

// RouteRequest is the body of POST /v1/route/:capability.
// Payload is forwarded to the provider untouched apart from the model field.
type RouteRequest struct {
	SessionID string          `json:"session_id"`
	Payload   json.RawMessage `json:"payload" binding:"required"`
}

// ProviderRequest creates or updates a provider. An empty Credential on update
// keeps the stored one.
type ProviderRequest struct {
	// ID is honoured on create only; a new uuid is assigned when empty.
	ID           string         `json:"id"`
	ProviderKey  string         `json:"provider_key" binding:"required"`
	DisplayName  string         `json:"display_name"`
	ProtocolType string         `json:"protocol_type" binding:"required,oneof=openai anthropic"`
	BaseURL      string         `json:"base_url" binding:"omitempty,url"`
	AuthType     string         `json:"auth_type"`
	Credential   string         `json:"credential"`
	OrgID        string         `json:"org_id"`
	Extra        map[string]any `json:"extra"`
	Enabled      *bool          `json:"enabled"`
}

type CandidateRequest struct {
	ProviderID string `json:"provider_id" binding:"required"`
	Model      string `json:"model" binding:"required"`
}

// PolicyRequest fully replaces the policy of a capability. When Version is set
// the write only succeeds if the stored policy still has that version.
type PolicyRequest struct {
	PrimaryProviderID string             `json:"primary_provider_id" binding:"required_with=PrimaryModel"`
	PrimaryModel      string             `json:"primary_model" binding:"required_with=PrimaryProviderID"`
	FallbackChain     []CandidateRequest `json:"fallback_chain" binding:"dive"`
	TimeoutMS         int                `json:"timeout_ms" binding:"required,gt=0"`
	RetryCount        int                `json:"retry_count" binding:"gte=0"`
	Enabled           bool               `json:"enabled"`
	Version           *int64             `json:"version"`
}

type ApplyTemplateRequest struct {
	TemplateID string `json:"template_id" binding:"required"`
}
