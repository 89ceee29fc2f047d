package gateway

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/nulzo/capability-router/internal/core/domain"
	"github.com/nulzo/capability-router/internal/llm"
	"github.com/nulzo/capability-router/internal/platform/secrets"
	"github.com/nulzo/capability-router/internal/store"
	"github.com/nulzo/capability-router/internal/store/model"
	"go.uber.org/zap"
)

// Snapshot is an immutable view of the provider set. Routing and probing
// read one snapshot for their whole run.
type Snapshot struct {
	providers []domain.ProviderConfig
	index     map[string]int
	adapters  map[string]llm.Adapter
}

// NewSnapshot builds a snapshot from providers in declaration order.
func NewSnapshot(providers []domain.ProviderConfig, adapters map[string]llm.Adapter) *Snapshot {
	s := &Snapshot{
		providers: make([]domain.ProviderConfig, len(providers)),
		index:     make(map[string]int, len(providers)),
		adapters:  make(map[string]llm.Adapter, len(adapters)),
	}
	for i, p := range providers {
		s.providers[i] = p.Clone()
		s.index[p.ID] = i
	}
	for id, a := range adapters {
		s.adapters[id] = a
	}
	return s
}

// Lookup returns a provider and its adapter. The adapter may be nil if it failed to build.
func (s *Snapshot) Lookup(id string) (domain.ProviderConfig, llm.Adapter, bool) {
	i, ok := s.index[id]
	if !ok {
		return domain.ProviderConfig{}, nil, false
	}
	return s.providers[i].Clone(), s.adapters[id], true
}

// Providers returns copies of all providers in declaration order.
func (s *Snapshot) Providers() []domain.ProviderConfig {
	out := make([]domain.ProviderConfig, len(s.providers))
	for i, p := range s.providers {
		out[i] = p.Clone()
	}
	return out
}

// Enabled returns copies of the enabled providers in declaration order.
func (s *Snapshot) Enabled() []domain.ProviderConfig {
	var out []domain.ProviderConfig
	for _, p := range s.providers {
		if p.Enabled {
			out = append(out, p.Clone())
		}
	}
	return out
}

// Registry owns the provider set. Writes go through the repository and then
// swap in a fresh snapshot; readers never take a lock.
type Registry struct {
	logger   *zap.Logger
	repo     store.Repository
	box      *secrets.Box
	factory  *llm.ProviderFactory
	validate *validator.Validate

	writeMu sync.Mutex
	current atomic.Pointer[Snapshot]
	now     func() time.Time
}

func NewRegistry(logger *zap.Logger, repo store.Repository, box *secrets.Box, factory *llm.ProviderFactory) *Registry {
	r := &Registry{
		logger:   logger,
		repo:     repo,
		box:      box,
		factory:  factory,
		validate: domain.NewValidator(),
		now:      time.Now,
	}
	r.current.Store(NewSnapshot(nil, nil))
	return r
}

// Snapshot returns the current provider snapshot.
func (r *Registry) Snapshot() *Snapshot {
	return r.current.Load()
}

func (r *Registry) List() []domain.ProviderConfig {
	return r.Snapshot().Providers()
}

func (r *Registry) Get(id string) (domain.ProviderConfig, error) {
	p, _, ok := r.Snapshot().Lookup(id)
	if !ok {
		return domain.ProviderConfig{}, fmt.Errorf("%w: %s", ErrProviderNotFound, id)
	}
	return p, nil
}

// Reload rebuilds the snapshot from the repository.
func (r *Registry) Reload(ctx context.Context) error {
	r.writeMu.Lock()
	defer r.writeMu.Unlock()
	return r.reloadLocked(ctx)
}

func (r *Registry) reloadLocked(ctx context.Context) error {
	rows, err := r.repo.Providers().List(ctx)
	if err != nil {
		return fmt.Errorf("list providers: %w", err)
	}

	providers := make([]domain.ProviderConfig, 0, len(rows))
	adapters := make(map[string]llm.Adapter, len(rows))
	for _, row := range rows {
		credential, err := r.box.Open(row.CredentialEnc)
		if err != nil {
			// a rotated secret should not take the whole registry down
			r.logger.Warn("Cannot open provider credential", zap.String("provider_id", row.ID), zap.Error(err))
			credential = ""
		}

		cfg, err := row.ToDomain(credential)
		if err != nil {
			return fmt.Errorf("decode provider %s: %w", row.ID, err)
		}
		providers = append(providers, cfg)

		adapter, err := r.factory.Create(cfg)
		if err != nil {
			r.logger.Warn("Cannot build provider adapter", zap.String("provider_id", cfg.ID), zap.Error(err))
			continue
		}
		adapters[cfg.ID] = adapter
	}

	r.current.Store(NewSnapshot(providers, adapters))
	r.logger.Debug("Provider registry reloaded", zap.Int("providers", len(providers)))
	return nil
}

// Save creates or updates a provider. An empty credential on update keeps the
// stored ciphertext as is, even when it cannot be opened with the current secret.
func (r *Registry) Save(ctx context.Context, cfg domain.ProviderConfig) (domain.ProviderConfig, error) {
	return r.save(ctx, cfg, false)
}

// Create saves a new provider and fails with ErrProviderExists if the id is taken.
func (r *Registry) Create(ctx context.Context, cfg domain.ProviderConfig) (domain.ProviderConfig, error) {
	return r.save(ctx, cfg, true)
}

func (r *Registry) save(ctx context.Context, cfg domain.ProviderConfig, createOnly bool) (domain.ProviderConfig, error) {
	if err := r.validate.Struct(cfg); err != nil {
		return domain.ProviderConfig{}, err
	}

	r.writeMu.Lock()
	defer r.writeMu.Unlock()

	now := r.now().UTC()
	snap := r.Snapshot()

	if cfg.ID == "" {
		cfg.ID = uuid.NewString()
	}

	var sealed string
	existing, _, exists := snap.Lookup(cfg.ID)
	if exists && createOnly {
		return domain.ProviderConfig{}, fmt.Errorf("%w: %s", ErrProviderExists, cfg.ID)
	}
	if exists {
		cfg.CreatedAt = existing.CreatedAt
		cfg.Position = existing.Position
		if cfg.Credential == "" {
			row, err := r.repo.Providers().Get(ctx, cfg.ID)
			if err != nil {
				return domain.ProviderConfig{}, fmt.Errorf("load provider %s: %w", cfg.ID, err)
			}
			sealed = row.CredentialEnc
		}
	} else {
		cfg.CreatedAt = now
		cfg.Position = nextPosition(snap)
	}
	cfg.UpdatedAt = now

	if sealed == "" {
		var err error
		if sealed, err = r.box.Seal(cfg.Credential); err != nil {
			return domain.ProviderConfig{}, err
		}
	}
	row, err := model.ProviderFromDomain(cfg, sealed)
	if err != nil {
		return domain.ProviderConfig{}, err
	}
	if err := r.repo.Providers().Upsert(ctx, row); err != nil {
		return domain.ProviderConfig{}, fmt.Errorf("save provider: %w", err)
	}

	if err := r.reloadLocked(ctx); err != nil {
		return domain.ProviderConfig{}, err
	}

	r.logger.Info("Provider saved",
		zap.String("provider_id", cfg.ID),
		zap.String("provider_key", cfg.ProviderKey),
		zap.Bool("enabled", cfg.Enabled),
	)
	return r.Get(cfg.ID)
}

// Delete removes a provider. Policies referencing it keep the dangling id;
// the engine skips it.
func (r *Registry) Delete(ctx context.Context, id string) error {
	r.writeMu.Lock()
	defer r.writeMu.Unlock()

	if err := r.repo.Providers().Delete(ctx, id); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return fmt.Errorf("%w: %s", ErrProviderNotFound, id)
		}
		return fmt.Errorf("delete provider: %w", err)
	}

	r.logger.Info("Provider deleted", zap.String("provider_id", id))
	return r.reloadLocked(ctx)
}

func nextPosition(s *Snapshot) int {
	next := 0
	for _, p := range s.providers {
		if p.Position >= next {
			next = p.Position + 1
		}
	}
	return next
}
