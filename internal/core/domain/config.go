package domain

import "time"

// ProtocolType selects the wire protocol adapter used to talk to a provider.
type ProtocolType string

const (
	ProtocolOpenAI    ProtocolType = "openai"
	ProtocolAnthropic ProtocolType = "anthropic"
)

// ProviderConfig represents a single upstream provider registration.
// Credential is write-only: it is accepted on save and never serialized back out.
type ProviderConfig struct {
	ID           string         `json:"id" yaml:"id" mapstructure:"id"`
	ProviderKey  string         `json:"provider_key" yaml:"provider_key" mapstructure:"provider_key" validate:"required"`
	DisplayName  string         `json:"display_name" yaml:"display_name" mapstructure:"display_name"`
	ProtocolType ProtocolType   `json:"protocol_type" yaml:"protocol_type" mapstructure:"protocol_type" validate:"required,oneof=openai anthropic"`
	BaseURL      string         `json:"base_url" yaml:"base_url" mapstructure:"base_url" validate:"omitempty,url"`
	AuthType     string         `json:"auth_type" yaml:"auth_type" mapstructure:"auth_type"`
	Credential   string         `json:"-" yaml:"credential" mapstructure:"credential"`
	OrgID        string         `json:"org_id,omitempty" yaml:"org_id" mapstructure:"org_id"`
	Extra        map[string]any `json:"extra,omitempty" yaml:"extra" mapstructure:"extra"`
	Enabled      bool           `json:"enabled" yaml:"enabled" mapstructure:"enabled"`

	// Position is the declaration order; probe-all results follow it.
	Position  int       `json:"position" yaml:"-" mapstructure:"-"`
	CreatedAt time.Time `json:"created_at" yaml:"-" mapstructure:"-"`
	UpdatedAt time.Time `json:"updated_at" yaml:"-" mapstructure:"-"`
}

// HasCredential reports whether a credential is configured.
func (p ProviderConfig) HasCredential() bool {
	return p.Credential != ""
}

// Name returns the display name, falling back to the provider key.
func (p ProviderConfig) Name() string {
	if p.DisplayName != "" {
		return p.DisplayName
	}
	return p.ProviderKey
}

// Clone returns a copy that shares no mutable state with p.
func (p ProviderConfig) Clone() ProviderConfig {
	if p.Extra != nil {
		extra := make(map[string]any, len(p.Extra))
		for k, v := range p.Extra {
			extra[k] = v
		}
		p.Extra = extra
	}
	return p
}
