package gateway

import (
	"errors"
	"fmt"

	"github.com/nulzo/capability-router/internal/core/domain"
)

var (
	// ErrPolicyUnavailable means the capability has no enabled policy. Nothing is attempted.
	ErrPolicyUnavailable = errors.New("no enabled routing policy for capability")
	// ErrNoEligibleProvider means every candidate in the chain is missing or disabled.
	ErrNoEligibleProvider = errors.New("no eligible provider in routing chain")
	ErrProviderNotFound   = errors.New("provider not found")
	ErrProviderExists     = errors.New("provider already exists")
)

// AttemptError is one classified attempt failure.
type AttemptError struct {
	Kind       domain.ErrorKind
	ProviderID string
	Model      string
	Err        error
}

func (e *AttemptError) Error() string {
	return fmt.Sprintf("%s/%s: %s: %v", e.ProviderID, e.Model, e.Kind, e.Err)
}

func (e *AttemptError) Unwrap() error {
	return e.Err
}

// ExhaustedError is returned when every candidate and retry failed.
type ExhaustedError struct {
	Capability domain.Capability
	Attempts   int
	Last       *AttemptError
	// Trace holds every logged attempt in order.
	Trace []domain.AttemptLog
}

func (e *ExhaustedError) Error() string {
	return fmt.Sprintf("all providers exhausted for %s after %d attempts, last error: %v", e.Capability, e.Attempts, e.Last)
}

func (e *ExhaustedError) Unwrap() error {
	if e.Last == nil {
		return nil
	}
	return e.Last
}

// LastErrorKind is the classification of the final failed attempt.
func (e *ExhaustedError) LastErrorKind() domain.ErrorKind {
	if e.Last == nil {
		return domain.ErrorKindUnknown
	}
	return e.Last.Kind
}
