package policy

import (
	"context"
	"fmt"

	"github.com/nulzo/capability-router/internal/core/domain"
)

// ProviderLister returns the current providers in declaration order.
type ProviderLister interface {
	List() []domain.ProviderConfig
}

// DefaultsFunc returns the timeout and retry defaults for a capability.
type DefaultsFunc func(domain.Capability) domain.CapabilityDefaults

// Provisioner applies catalog templates to the policy store.
type Provisioner struct {
	catalog   *Catalog
	store     *Store
	providers ProviderLister
	defaults  DefaultsFunc
}

func NewProvisioner(catalog *Catalog, store *Store, providers ProviderLister, defaults DefaultsFunc) *Provisioner {
	if defaults == nil {
		defaults = domain.RecommendedDefaults
	}
	return &Provisioner{catalog: catalog, store: store, providers: providers, defaults: defaults}
}

// Preview resolves a template without saving anything.
func (p *Provisioner) Preview(capability domain.Capability, templateID string) (domain.Policy, error) {
	t, ok := p.catalog.Get(capability, templateID)
	if !ok {
		return domain.Policy{}, fmt.Errorf("%w: %s/%s", ErrTemplateNotFound, capability, templateID)
	}

	policy, resErr := Resolve(t, p.providers.List(), p.defaults(capability))
	if resErr != nil {
		return domain.Policy{}, resErr
	}
	return policy, nil
}

// Apply resolves the template and saves the result in a single Set.
// Nothing is saved when any requirement is unsatisfied.
func (p *Provisioner) Apply(ctx context.Context, capability domain.Capability, templateID string) (domain.Policy, error) {
	policy, err := p.Preview(capability, templateID)
	if err != nil {
		return domain.Policy{}, err
	}
	return p.store.Set(ctx, policy)
}
