package policy

import (
	_ "embed"
	"fmt"
	"os"
	"sync"

	"github.com/nulzo/capability-router/internal/core/domain"
	"go.uber.org/zap"
	"gopkg.in/yaml.v3"
)

//go:embed templates.yaml
var builtinTemplates []byte

type templateFile struct {
	Templates []domain.RouteTemplate `yaml:"templates"`
}

type templateKey struct {
	capability domain.Capability
	id         string
}

// Catalog serves route templates. Template ids are scoped per capability;
// entries from the external file override built-in ones with the same key.
type Catalog struct {
	logger *zap.Logger
	file   string

	mu       sync.RWMutex
	builtin  []domain.RouteTemplate
	external []domain.RouteTemplate
}

// NewCatalog loads the built-in templates and, if file is set, the external ones.
func NewCatalog(logger *zap.Logger, file string) (*Catalog, error) {
	builtin, err := ParseTemplates(builtinTemplates)
	if err != nil {
		return nil, fmt.Errorf("built-in templates: %w", err)
	}

	c := &Catalog{logger: logger, file: file, builtin: builtin}
	if file != "" {
		if err := c.ReloadFile(); err != nil {
			return nil, err
		}
	}
	return c, nil
}

// ParseTemplates decodes and validates a templates document.
func ParseTemplates(data []byte) ([]domain.RouteTemplate, error) {
	var doc templateFile
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("parse templates: %w", err)
	}

	seen := make(map[templateKey]bool, len(doc.Templates))
	for i, t := range doc.Templates {
		if t.ID == "" {
			return nil, fmt.Errorf("template %d: missing id", i)
		}
		if !t.Capability.Valid() {
			return nil, fmt.Errorf("template %s: unknown capability %q", t.ID, t.Capability)
		}
		if len(t.Chain) == 0 {
			return nil, fmt.Errorf("template %s/%s: empty chain", t.Capability, t.ID)
		}
		for j, req := range t.Chain {
			if len(req.ProviderKeys) == 0 || req.Model == "" {
				return nil, fmt.Errorf("template %s/%s: requirement %d needs provider_keys and model", t.Capability, t.ID, j)
			}
		}
		if t.RetryCount != nil && *t.RetryCount < 0 {
			return nil, fmt.Errorf("template %s/%s: negative retry_count", t.Capability, t.ID)
		}
		key := templateKey{t.Capability, t.ID}
		if seen[key] {
			return nil, fmt.Errorf("template %s/%s: duplicate", t.Capability, t.ID)
		}
		seen[key] = true
	}
	return doc.Templates, nil
}

// ReloadFile re-reads the external templates file. On error the previous set is kept.
func (c *Catalog) ReloadFile() error {
	data, err := os.ReadFile(c.file)
	if err != nil {
		return fmt.Errorf("read templates file: %w", err)
	}
	templates, err := ParseTemplates(data)
	if err != nil {
		return err
	}

	c.mu.Lock()
	c.external = templates
	c.mu.Unlock()

	c.logger.Info("Route templates loaded", zap.String("file", c.file), zap.Int("templates", len(templates)))
	return nil
}

// File returns the external templates path, if any.
func (c *Catalog) File() string {
	return c.file
}

func (c *Catalog) merged() []domain.RouteTemplate {
	c.mu.RLock()
	defer c.mu.RUnlock()

	overridden := make(map[templateKey]bool, len(c.external))
	for _, t := range c.external {
		overridden[templateKey{t.Capability, t.ID}] = true
	}

	out := make([]domain.RouteTemplate, 0, len(c.builtin)+len(c.external))
	for _, t := range c.builtin {
		if !overridden[templateKey{t.Capability, t.ID}] {
			out = append(out, t)
		}
	}
	return append(out, c.external...)
}

// List returns templates for a capability, or all templates when capability is empty.
func (c *Catalog) List(capability domain.Capability) []domain.RouteTemplate {
	var out []domain.RouteTemplate
	for _, t := range c.merged() {
		if capability == "" || t.Capability == capability {
			out = append(out, cloneTemplate(t))
		}
	}
	return out
}

// Get finds a template by capability and id.
func (c *Catalog) Get(capability domain.Capability, id string) (domain.RouteTemplate, bool) {
	for _, t := range c.merged() {
		if t.Capability == capability && t.ID == id {
			return cloneTemplate(t), true
		}
	}
	return domain.RouteTemplate{}, false
}

func cloneTemplate(t domain.RouteTemplate) domain.RouteTemplate {
	chain := make([]domain.Requirement, len(t.Chain))
	for i, r := range t.Chain {
		keys := make([]string, len(r.ProviderKeys))
		copy(keys, r.ProviderKeys)
		chain[i] = domain.Requirement{ProviderKeys: keys, Model: r.Model}
	}
	t.Chain = chain
	if t.RetryCount != nil {
		n := *t.RetryCount
		t.RetryCount = &n
	}
	return t
}
