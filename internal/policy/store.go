package policy

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/nulzo/capability-router/internal/core/domain"
	"github.com/nulzo/capability-router/internal/store"
	"github.com/nulzo/capability-router/internal/store/model"
	"go.uber.org/zap"
)

type snapshot map[domain.Capability]domain.Policy

// Store holds one policy per capability. Readers load an immutable map;
// writers persist first and then swap the map, so a half-written policy is
// never visible.
type Store struct {
	logger        *zap.Logger
	repo          store.Repository
	validate      *validator.Validate
	maxRetryCount int

	writeMu sync.Mutex
	current atomic.Pointer[snapshot]
	now     func() time.Time
}

func NewStore(logger *zap.Logger, repo store.Repository, maxRetryCount int) *Store {
	s := &Store{
		logger:        logger,
		repo:          repo,
		validate:      domain.NewValidator(),
		maxRetryCount: maxRetryCount,
		now:           time.Now,
	}
	empty := snapshot{}
	s.current.Store(&empty)
	return s
}

// Load replaces the in-memory policies with the persisted ones.
func (s *Store) Load(ctx context.Context) error {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	rows, err := s.repo.Policies().List(ctx)
	if err != nil {
		return fmt.Errorf("list policies: %w", err)
	}

	next := make(snapshot, len(rows))
	for _, row := range rows {
		p, err := row.ToDomain()
		if err != nil {
			return fmt.Errorf("decode policy %s: %w", row.Capability, err)
		}
		next[p.Capability] = p
	}
	s.current.Store(&next)
	return nil
}

// Get returns a copy of the policy for capability.
func (s *Store) Get(capability domain.Capability) (domain.Policy, bool) {
	p, ok := (*s.current.Load())[capability]
	if !ok {
		return domain.Policy{}, false
	}
	return p.Clone(), true
}

// List returns copies of all policies in capability display order.
func (s *Store) List() []domain.Policy {
	snap := *s.current.Load()
	out := make([]domain.Policy, 0, len(snap))
	for _, p := range snap {
		out = append(out, p.Clone())
	}
	order := make(map[domain.Capability]int, len(domain.Capabilities))
	for i, c := range domain.Capabilities {
		order[c] = i
	}
	sort.Slice(out, func(i, j int) bool { return order[out[i].Capability] < order[out[j].Capability] })
	return out
}

// Set fully replaces the policy for p.Capability.
func (s *Store) Set(ctx context.Context, p domain.Policy) (domain.Policy, error) {
	return s.Update(ctx, p.Capability, func(domain.Policy, bool) (domain.Policy, error) {
		return p, nil
	})
}

// SetIfVersion replaces the policy only if the stored version still equals expected.
// An expected version of 0 means "must not exist yet".
func (s *Store) SetIfVersion(ctx context.Context, p domain.Policy, expected int64) (domain.Policy, error) {
	return s.Update(ctx, p.Capability, func(current domain.Policy, _ bool) (domain.Policy, error) {
		if current.Version != expected {
			return domain.Policy{}, fmt.Errorf("%w: %s is at version %d, expected %d", ErrVersionConflict, p.Capability, current.Version, expected)
		}
		return p, nil
	})
}

// Update is a versioned read-modify-write. fn receives a copy of the current
// policy and returns the replacement. Writes that change nothing keep the
// current version.
func (s *Store) Update(ctx context.Context, capability domain.Capability, fn func(current domain.Policy, exists bool) (domain.Policy, error)) (domain.Policy, error) {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	snap := *s.current.Load()
	current, exists := snap[capability]

	next, err := fn(current.Clone(), exists)
	if err != nil {
		return domain.Policy{}, err
	}
	next.Capability = capability
	next = s.normalize(next)

	if err := s.validate.Struct(next); err != nil {
		return domain.Policy{}, err
	}

	if exists && current.Equal(next) {
		return current.Clone(), nil
	}

	next.Version = current.Version + 1
	next.UpdatedAt = s.now().UTC()

	row, err := model.PolicyFromDomain(next)
	if err != nil {
		return domain.Policy{}, err
	}
	if err := s.repo.Policies().Upsert(ctx, row); err != nil {
		return domain.Policy{}, fmt.Errorf("save policy: %w", err)
	}

	updated := make(snapshot, len(snap)+1)
	for k, v := range snap {
		updated[k] = v
	}
	updated[capability] = next.Clone()
	s.current.Store(&updated)

	s.logger.Info("Routing policy updated",
		zap.String("capability", string(capability)),
		zap.Int64("version", next.Version),
		zap.Int("candidates", len(next.Candidates())),
		zap.Bool("enabled", next.Enabled),
	)
	return next.Clone(), nil
}

// Delete removes the policy; routing for the capability then fails with policy unavailable.
func (s *Store) Delete(ctx context.Context, capability domain.Capability) error {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	if err := s.repo.Policies().Delete(ctx, string(capability)); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return fmt.Errorf("%w: %s", ErrPolicyNotFound, capability)
		}
		return fmt.Errorf("delete policy: %w", err)
	}

	snap := *s.current.Load()
	updated := make(snapshot, len(snap))
	for k, v := range snap {
		if k != capability {
			updated[k] = v
		}
	}
	s.current.Store(&updated)
	return nil
}

// Seed stores the given policies for capabilities that have none yet.
func (s *Store) Seed(ctx context.Context, seeds []domain.Policy) (int, error) {
	seeded := 0
	for _, p := range seeds {
		if _, ok := s.Get(p.Capability); ok {
			continue
		}
		if _, err := s.Set(ctx, p); err != nil {
			return seeded, fmt.Errorf("seed policy %s: %w", p.Capability, err)
		}
		seeded++
	}
	return seeded, nil
}

// normalize clamps retry_count into [0, maxRetryCount].
func (s *Store) normalize(p domain.Policy) domain.Policy {
	p = p.Clone()
	if p.RetryCount < 0 {
		p.RetryCount = 0
	}
	if s.maxRetryCount >= 0 && p.RetryCount > s.maxRetryCount {
		p.RetryCount = s.maxRetryCount
	}
	if len(p.FallbackChain) == 0 {
		p.FallbackChain = nil
	}
	return p
}
