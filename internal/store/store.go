package store

import (
	"context"
	"errors"
	"time"

	"github.com/nulzo/capability-router/internal/core/domain"
	"github.com/nulzo/capability-router/internal/store/model"
)

// ErrNotFound is returned when a keyed row does not exist.
var ErrNotFound = errors.New("store: not found")

// Repository is the main contract for the data layer.
type Repository interface {
	Providers() ProviderRepository
	Policies() PolicyRepository
	Attempts() AttemptRepository

	// transaction support
	WithTx(ctx context.Context, fn func(repo Repository) error) error

	Close() error
}

type ProviderRepository interface {
	// List returns all providers ordered by position.
	List(ctx context.Context) ([]model.Provider, error)
	Get(ctx context.Context, id string) (*model.Provider, error)
	// Upsert inserts or replaces a provider row.
	Upsert(ctx context.Context, p *model.Provider) error
	Delete(ctx context.Context, id string) error
}

type PolicyRepository interface {
	List(ctx context.Context) ([]model.Policy, error)
	Get(ctx context.Context, capability string) (*model.Policy, error)
	Upsert(ctx context.Context, p *model.Policy) error
	Delete(ctx context.Context, capability string) error
}

type AttemptRepository interface {
	// Insert appends one row and sets its ID.
	Insert(ctx context.Context, a *model.Attempt) error
	// Query returns matching rows, newest first.
	Query(ctx context.Context, f domain.AttemptFilter) ([]model.Attempt, error)
	// Stats groups rows created at or after since by capability and outcome.
	Stats(ctx context.Context, since time.Time, capability string) ([]model.AttemptStat, error)
}
