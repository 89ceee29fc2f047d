package policy

import (
	"strings"

	"github.com/nulzo/capability-router/internal/core/domain"
)

// Resolve turns a template into a concrete policy against the given providers.
// It has no side effects; a nil error means every requirement was satisfied.
func Resolve(t domain.RouteTemplate, providers []domain.ProviderConfig, defaults domain.CapabilityDefaults) (domain.Policy, *TemplateResolutionError) {
	var (
		chain   []domain.Candidate
		missing [][]string
	)

	for _, req := range t.Chain {
		p, ok := firstEnabled(providers, req.ProviderKeys)
		if !ok {
			keys := make([]string, len(req.ProviderKeys))
			copy(keys, req.ProviderKeys)
			missing = append(missing, keys)
			continue
		}
		chain = append(chain, domain.Candidate{ProviderID: p.ID, Model: req.Model})
	}

	if len(missing) > 0 {
		return domain.Policy{}, &TemplateResolutionError{TemplateID: t.ID, Capability: t.Capability, Missing: missing}
	}

	policy := domain.Policy{
		Capability: t.Capability,
		TimeoutMS:  defaults.TimeoutMS,
		RetryCount: defaults.RetryCount,
		Enabled:    true,
	}
	if t.TimeoutMS > 0 {
		policy.TimeoutMS = t.TimeoutMS
	}
	if t.RetryCount != nil {
		policy.RetryCount = *t.RetryCount
	}
	if len(chain) > 0 {
		policy.PrimaryProviderID = chain[0].ProviderID
		policy.PrimaryModel = chain[0].Model
		policy.FallbackChain = chain[1:]
	}
	return policy, nil
}

// firstEnabled picks the first enabled provider in declaration order whose key is acceptable.
func firstEnabled(providers []domain.ProviderConfig, keys []string) (domain.ProviderConfig, bool) {
	for _, p := range providers {
		if !p.Enabled {
			continue
		}
		for _, k := range keys {
			if strings.EqualFold(p.ProviderKey, k) {
				return p, true
			}
		}
	}
	return domain.ProviderConfig{}, false
}
