package policy

import (
	"errors"
	"fmt"
	"strings"

	"github.com/nulzo/capability-router/internal/core/domain"
)

var (
	ErrPolicyNotFound   = errors.New("policy not found")
	ErrVersionConflict  = errors.New("policy version conflict")
	ErrTemplateNotFound = errors.New("route template not found")
)

// TemplateResolutionError lists every requirement that matched no enabled provider.
type TemplateResolutionError struct {
	TemplateID string
	Capability domain.Capability
	// Missing holds the provider_keys of each unsatisfied requirement, in chain order.
	Missing [][]string
}

func (e *TemplateResolutionError) Error() string {
	parts := make([]string, len(e.Missing))
	for i, keys := range e.Missing {
		parts[i] = "{" + strings.Join(keys, ",") + "}"
	}
	return fmt.Sprintf("template %s for %s has unsatisfied requirements: %s", e.TemplateID, e.Capability, strings.Join(parts, " "))
}
