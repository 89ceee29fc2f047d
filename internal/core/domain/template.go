package domain

// Requirement is satisfied by the first enabled provider whose key is in ProviderKeys.
type Requirement struct {
	ProviderKeys []string `json:"provider_keys" yaml:"provider_keys"`
	Model        string   `json:"model" yaml:"model"`
}

// RouteTemplate is a portable policy blueprint. Chain[0] becomes the primary
// candidate and the rest become the fallback chain.
type RouteTemplate struct {
	ID          string        `json:"template_id" yaml:"id"`
	Name        string        `json:"name" yaml:"name"`
	Description string        `json:"description" yaml:"description"`
	Capability  Capability    `json:"capability" yaml:"capability"`
	Chain       []Requirement `json:"chain" yaml:"chain"`
	TimeoutMS   int           `json:"timeout_ms,omitempty" yaml:"timeout_ms"`
	RetryCount  *int          `json:"retry_count,omitempty" yaml:"retry_count"`
}
