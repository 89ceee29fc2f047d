package health

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"
)

// Scheduler runs ProbeAll on a cron schedule.
type Scheduler struct {
	logger   *zap.Logger
	prober   *Prober
	schedule string

	mu      sync.Mutex
	cron    *cron.Cron
	running bool
}

func NewScheduler(logger *zap.Logger, prober *Prober, schedule string) *Scheduler {
	return &Scheduler{
		logger:   logger,
		prober:   prober,
		schedule: schedule,
		cron:     cron.New(cron.WithChain(cron.SkipIfStillRunning(cron.DiscardLogger))),
	}
}

// Start registers the job and returns immediately. An empty schedule is a no-op.
// The scheduler stops when ctx is done.
func (s *Scheduler) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.schedule == "" {
		s.logger.Info("Health probe schedule not configured, skipping scheduler")
		return nil
	}
	if _, err := cron.ParseStandard(s.schedule); err != nil {
		return fmt.Errorf("invalid cron schedule %q: %w", s.schedule, err)
	}

	if _, err := s.cron.AddFunc(s.schedule, func() { s.run(ctx) }); err != nil {
		return fmt.Errorf("failed to schedule health probes: %w", err)
	}

	s.cron.Start()
	s.running = true
	s.logger.Info("Health probe scheduler started", zap.String("schedule", s.schedule))

	go func() {
		<-ctx.Done()
		s.Stop()
	}()
	return nil
}

func (s *Scheduler) run(ctx context.Context) {
	if ctx.Err() != nil {
		return
	}
	report := s.prober.ProbeAll(ctx)
	for _, r := range report.Results {
		if !r.OK {
			s.logger.Warn("Provider unhealthy",
				zap.String("provider_id", r.ProviderID),
				zap.String("error_kind", string(r.ErrorKind)),
				zap.String("message", r.Message),
			)
		}
	}
}

// Stop halts the scheduler and waits for a running probe to finish.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.running {
		return
	}
	<-s.cron.Stop().Done()
	s.running = false
	s.logger.Info("Health probe scheduler stopped")
}

func (s *Scheduler) IsRunning() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.running
}

// NextRun returns the next scheduled probe time, or nil when not scheduled.
func (s *Scheduler) NextRun() *time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()

	entries := s.cron.Entries()
	if len(entries) == 0 {
		return nil
	}
	next := entries[0].Next
	return &next
}
