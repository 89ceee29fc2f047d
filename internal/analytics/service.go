package analytics

import (
	"context"
	"fmt"
	"io"
	"time"

	"github.com/nulzo/capability-router/internal/core/domain"
	"github.com/nulzo/capability-router/internal/store"
	"github.com/nulzo/capability-router/internal/store/model"
	"go.uber.org/zap"
)

// DefaultWindow is used when a stats request carries no window.
const DefaultWindow = 24 * time.Hour

// Service is the attempt log: synchronous appends plus read-side queries.
type Service interface {
	// Append persists one attempt before returning. It satisfies gateway.AttemptRecorder.
	Append(ctx context.Context, entry *domain.AttemptLog) error
	Query(ctx context.Context, filter domain.AttemptFilter) ([]domain.AttemptLog, error)
	Stats(ctx context.Context, window time.Duration, capability domain.Capability) ([]domain.AttemptStat, error)
	ExportCSV(ctx context.Context, w io.Writer, filter domain.AttemptFilter) (int, error)
}

type service struct {
	logger *zap.Logger
	repo   store.Repository
	now    func() time.Time
}

func NewService(logger *zap.Logger, repo store.Repository) Service {
	return &service{
		logger: logger,
		repo:   repo,
		now:    time.Now,
	}
}

func (s *service) Append(ctx context.Context, entry *domain.AttemptLog) error {
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = s.now().UTC()
	}
	if entry.Success {
		entry.ErrorKind = ""
		entry.ErrorMessage = ""
	}

	row := model.AttemptFromDomain(*entry)
	if err := s.repo.Attempts().Insert(ctx, row); err != nil {
		return fmt.Errorf("insert attempt: %w", err)
	}
	entry.ID = row.ID
	return nil
}

func (s *service) Query(ctx context.Context, filter domain.AttemptFilter) ([]domain.AttemptLog, error) {
	rows, err := s.repo.Attempts().Query(ctx, filter)
	if err != nil {
		return nil, fmt.Errorf("query attempts: %w", err)
	}
	out := make([]domain.AttemptLog, len(rows))
	for i, row := range rows {
		out[i] = row.ToDomain()
	}
	return out, nil
}

// Stats counts attempts created within window, grouped by capability and outcome.
// Successful attempts are reported under the "success" error kind.
func (s *service) Stats(ctx context.Context, window time.Duration, capability domain.Capability) ([]domain.AttemptStat, error) {
	if window <= 0 {
		window = DefaultWindow
	}
	since := s.now().Add(-window)

	rows, err := s.repo.Attempts().Stats(ctx, since, string(capability))
	if err != nil {
		return nil, fmt.Errorf("attempt stats: %w", err)
	}

	out := make([]domain.AttemptStat, 0, len(rows))
	for _, row := range rows {
		stat := row.ToDomain()
		if stat.Success {
			stat.ErrorKind = domain.OutcomeSuccess
		} else if stat.ErrorKind == "" {
			stat.ErrorKind = string(domain.ErrorKindUnknown)
		}
		out = append(out, stat)
	}
	return mergeStats(out), nil
}

// mergeStats folds rows that map onto the same (capability, kind) bucket.
func mergeStats(stats []domain.AttemptStat) []domain.AttemptStat {
	type key struct {
		capability domain.Capability
		kind       string
	}
	index := make(map[key]int, len(stats))
	out := stats[:0]
	for _, st := range stats {
		k := key{st.Capability, st.ErrorKind}
		if i, ok := index[k]; ok {
			out[i].Count += st.Count
			continue
		}
		index[k] = len(out)
		out = append(out, st)
	}
	return out
}
