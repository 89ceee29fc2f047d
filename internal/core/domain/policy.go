package domain

import "time"

// Candidate is a concrete (provider, model) pair.
type Candidate struct {
	ProviderID string `json:"provider_id" yaml:"provider_id" mapstructure:"provider_id" validate:"required"`
	Model      string `json:"model" yaml:"model" mapstructure:"model" validate:"required"`
}

// Policy is the routing policy for one capability.
// Values handed out by the policy store are copies; mutating them never affects routing.
type Policy struct {
	Capability        Capability  `json:"capability" mapstructure:"capability" validate:"required,capability"`
	PrimaryProviderID string      `json:"primary_provider_id" mapstructure:"primary_provider_id" validate:"required_with=PrimaryModel"`
	PrimaryModel      string      `json:"primary_model" mapstructure:"primary_model" validate:"required_with=PrimaryProviderID"`
	FallbackChain     []Candidate `json:"fallback_chain" mapstructure:"fallback_chain" validate:"dive"`
	TimeoutMS         int         `json:"timeout_ms" mapstructure:"timeout_ms" validate:"gt=0"`
	RetryCount        int         `json:"retry_count" mapstructure:"retry_count" validate:"gte=0"`
	Enabled           bool        `json:"enabled" mapstructure:"enabled"`

	Version   int64     `json:"version" mapstructure:"-"`
	UpdatedAt time.Time `json:"updated_at" mapstructure:"-"`
}

// Candidates returns primary followed by the fallback chain, in declaration order.
// An unset primary contributes nothing.
func (p Policy) Candidates() []Candidate {
	out := make([]Candidate, 0, 1+len(p.FallbackChain))
	if p.PrimaryProviderID != "" {
		out = append(out, Candidate{ProviderID: p.PrimaryProviderID, Model: p.PrimaryModel})
	}
	return append(out, p.FallbackChain...)
}

// Timeout converts TimeoutMS into a duration.
func (p Policy) Timeout() time.Duration {
	return time.Duration(p.TimeoutMS) * time.Millisecond
}

// Clone deep-copies the fallback chain.
func (p Policy) Clone() Policy {
	if p.FallbackChain != nil {
		chain := make([]Candidate, len(p.FallbackChain))
		copy(chain, p.FallbackChain)
		p.FallbackChain = chain
	}
	return p
}

// Equal compares the routing-relevant fields, ignoring Version and UpdatedAt.
func (p Policy) Equal(o Policy) bool {
	if p.Capability != o.Capability ||
		p.PrimaryProviderID != o.PrimaryProviderID ||
		p.PrimaryModel != o.PrimaryModel ||
		p.TimeoutMS != o.TimeoutMS ||
		p.RetryCount != o.RetryCount ||
		p.Enabled != o.Enabled ||
		len(p.FallbackChain) != len(o.FallbackChain) {
		return false
	}
	for i := range p.FallbackChain {
		if p.FallbackChain[i] != o.FallbackChain[i] {
			return false
		}
	}
	return true
}
