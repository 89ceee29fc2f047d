package model

import (
	"database/sql"
	"encoding/json"
	"time"

	"github.com/nulzo/capability-router/internal/core/domain"
)

// Provider is a persisted provider registration. The credential is sealed.
type Provider struct {
	ID            string    `db:"id"`
	ProviderKey   string    `db:"provider_key"`
	DisplayName   string    `db:"display_name"`
	ProtocolType  string    `db:"protocol_type"`
	BaseURL       string    `db:"base_url"`
	AuthType      string    `db:"auth_type"`
	CredentialEnc string    `db:"credential_enc"`
	OrgID         string    `db:"org_id"`
	ExtraJSON     string    `db:"extra_json"`
	IsEnabled     bool      `db:"is_enabled"`
	Position      int       `db:"position"`
	CreatedAt     time.Time `db:"created_at"`
	UpdatedAt     time.Time `db:"updated_at"`
}

// ProviderFromDomain builds a row; sealed is the already encrypted credential.
func ProviderFromDomain(p domain.ProviderConfig, sealed string) (*Provider, error) {
	extra := "{}"
	if len(p.Extra) > 0 {
		b, err := json.Marshal(p.Extra)
		if err != nil {
			return nil, err
		}
		extra = string(b)
	}
	return &Provider{
		ID:            p.ID,
		ProviderKey:   p.ProviderKey,
		DisplayName:   p.DisplayName,
		ProtocolType:  string(p.ProtocolType),
		BaseURL:       p.BaseURL,
		AuthType:      p.AuthType,
		CredentialEnc: sealed,
		OrgID:         p.OrgID,
		ExtraJSON:     extra,
		IsEnabled:     p.Enabled,
		Position:      p.Position,
		CreatedAt:     p.CreatedAt,
		UpdatedAt:     p.UpdatedAt,
	}, nil
}

// ToDomain converts the row; credential is the opened plaintext.
func (p Provider) ToDomain(credential string) (domain.ProviderConfig, error) {
	var extra map[string]any
	if p.ExtraJSON != "" && p.ExtraJSON != "{}" {
		if err := json.Unmarshal([]byte(p.ExtraJSON), &extra); err != nil {
			return domain.ProviderConfig{}, err
		}
	}
	return domain.ProviderConfig{
		ID:           p.ID,
		ProviderKey:  p.ProviderKey,
		DisplayName:  p.DisplayName,
		ProtocolType: domain.ProtocolType(p.ProtocolType),
		BaseURL:      p.BaseURL,
		AuthType:     p.AuthType,
		Credential:   credential,
		OrgID:        p.OrgID,
		Extra:        extra,
		Enabled:      p.IsEnabled,
		Position:     p.Position,
		CreatedAt:    p.CreatedAt,
		UpdatedAt:    p.UpdatedAt,
	}, nil
}

// Policy is a persisted routing policy. The fallback chain is stored as JSON.
type Policy struct {
	Capability        string    `db:"capability"`
	PrimaryProviderID string    `db:"primary_provider_id"`
	PrimaryModel      string    `db:"primary_model"`
	FallbackJSON      string    `db:"fallback_json"`
	TimeoutMS         int       `db:"timeout_ms"`
	RetryCount        int       `db:"retry_count"`
	IsEnabled         bool      `db:"is_enabled"`
	Version           int64     `db:"version"`
	UpdatedAt         time.Time `db:"updated_at"`
}

func PolicyFromDomain(p domain.Policy) (*Policy, error) {
	chain := p.FallbackChain
	if chain == nil {
		chain = []domain.Candidate{}
	}
	b, err := json.Marshal(chain)
	if err != nil {
		return nil, err
	}
	return &Policy{
		Capability:        string(p.Capability),
		PrimaryProviderID: p.PrimaryProviderID,
		PrimaryModel:      p.PrimaryModel,
		FallbackJSON:      string(b),
		TimeoutMS:         p.TimeoutMS,
		RetryCount:        p.RetryCount,
		IsEnabled:         p.Enabled,
		Version:           p.Version,
		UpdatedAt:         p.UpdatedAt,
	}, nil
}

func (p Policy) ToDomain() (domain.Policy, error) {
	var chain []domain.Candidate
	if p.FallbackJSON != "" {
		if err := json.Unmarshal([]byte(p.FallbackJSON), &chain); err != nil {
			return domain.Policy{}, err
		}
	}
	return domain.Policy{
		Capability:        domain.Capability(p.Capability),
		PrimaryProviderID: p.PrimaryProviderID,
		PrimaryModel:      p.PrimaryModel,
		FallbackChain:     chain,
		TimeoutMS:         p.TimeoutMS,
		RetryCount:        p.RetryCount,
		Enabled:           p.IsEnabled,
		Version:           p.Version,
		UpdatedAt:         p.UpdatedAt,
	}, nil
}

// Attempt is one attempt log row.
type Attempt struct {
	ID           int64          `db:"id"`
	SessionID    string         `db:"session_id"`
	Capability   string         `db:"capability"`
	ProtocolType string         `db:"protocol_type"`
	ProviderID   string         `db:"provider_id"`
	ModelName    string         `db:"model_name"`
	AttemptIndex int            `db:"attempt_index"`
	RetryIndex   int            `db:"retry_index"`
	Success      bool           `db:"success"`
	ErrorKind    sql.NullString `db:"error_kind"`
	ErrorMessage sql.NullString `db:"error_message"`
	LatencyMS    int64          `db:"latency_ms"`
	CreatedAt    time.Time      `db:"created_at"`
}

func AttemptFromDomain(a domain.AttemptLog) *Attempt {
	return &Attempt{
		ID:           a.ID,
		SessionID:    a.SessionID,
		Capability:   string(a.Capability),
		ProtocolType: string(a.ProtocolType),
		ProviderID:   a.ProviderID,
		ModelName:    a.ModelName,
		AttemptIndex: a.AttemptIndex,
		RetryIndex:   a.RetryIndex,
		Success:      a.Success,
		ErrorKind:    sql.NullString{String: string(a.ErrorKind), Valid: a.ErrorKind != ""},
		ErrorMessage: sql.NullString{String: a.ErrorMessage, Valid: a.ErrorMessage != ""},
		LatencyMS:    a.LatencyMS,
		CreatedAt:    a.CreatedAt,
	}
}

func (a Attempt) ToDomain() domain.AttemptLog {
	return domain.AttemptLog{
		ID:           a.ID,
		SessionID:    a.SessionID,
		Capability:   domain.Capability(a.Capability),
		ProtocolType: domain.ProtocolType(a.ProtocolType),
		ProviderID:   a.ProviderID,
		ModelName:    a.ModelName,
		AttemptIndex: a.AttemptIndex,
		RetryIndex:   a.RetryIndex,
		Success:      a.Success,
		ErrorKind:    domain.ErrorKind(a.ErrorKind.String),
		ErrorMessage: a.ErrorMessage.String,
		LatencyMS:    a.LatencyMS,
		CreatedAt:    a.CreatedAt,
	}
}

// AttemptStat is one grouped count row.
type AttemptStat struct {
	Capability string `db:"capability"`
	Success    bool   `db:"success"`
	ErrorKind  string `db:"error_kind"`
	Count      int64  `db:"count"`
}

func (s AttemptStat) ToDomain() domain.AttemptStat {
	return domain.AttemptStat{
		Capability: domain.Capability(s.Capability),
		ErrorKind:  s.ErrorKind,
		Success:    s.Success,
		Count:      s.Count,
	}
}
