package staleness

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/go-co-op/gocron/v2"

	"git.home.luguber.info/inful/docregistry/internal/catalog"
	"git.home.luguber.info/inful/docregistry/internal/foundation/errors"
	"git.home.luguber.info/inful/docregistry/internal/logfields"
	"git.home.luguber.info/inful/docregistry/internal/retry"
)

// Enqueuer hands a stale batch to the rebuild queue.
type Enqueuer interface {
	Enqueue(ctx context.Context, batch []catalog.StaleRelease) error
}

// Scheduler wraps gocron for periodic staleness scans. Each tick queries the
// detector and enqueues the resulting batch for external build workers.
//
// The scheduler does not enforce mutual exclusion between instances; callers
// wanting a single active scanner must arrange that externally.
type Scheduler struct {
	scheduler gocron.Scheduler
	detector  *Detector
	enqueuer  Enqueuer
	policy    retry.Policy

	mu     sync.RWMutex
	cutoff time.Time
	limit  int
}

// NewScheduler creates a scheduler around the detector.
func NewScheduler(detector *Detector, enqueuer Enqueuer, policy retry.Policy) (*Scheduler, error) {
	s, err := gocron.NewScheduler()
	if err != nil {
		return nil, fmt.Errorf("failed to create gocron scheduler: %w", err)
	}
	return &Scheduler{
		scheduler: s,
		detector:  detector,
		enqueuer:  enqueuer,
		policy:    policy,
	}, nil
}

// SetScanParams updates the cutoff and batch limit used by subsequent ticks.
// Called at startup and by the config watcher on reload.
func (s *Scheduler) SetScanParams(cutoff time.Time, limit int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.cutoff = cutoff
	s.limit = limit
}

func (s *Scheduler) scanParams() (time.Time, int) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.cutoff, s.limit
}

// SchedulePeriodicScan registers the recurring scan job.
// Returns the job ID for later management.
func (s *Scheduler) SchedulePeriodicScan(interval time.Duration) (string, error) {
	job, err := s.scheduler.NewJob(
		gocron.DurationJob(interval),
		gocron.NewTask(s.executeScan),
		gocron.WithName("stale-scan"),
	)
	if err != nil {
		return "", fmt.Errorf("failed to create periodic scan job: %w", err)
	}
	return job.ID().String(), nil
}

// Start begins the scheduler.
func (s *Scheduler) Start(ctx context.Context) {
	slog.Info("Starting staleness scheduler")
	s.scheduler.Start()
}

// Stop gracefully shuts down the scheduler.
func (s *Scheduler) Stop(ctx context.Context) error {
	slog.Info("Stopping staleness scheduler")
	return s.scheduler.Shutdown()
}

// executeScan is called by gocron on every tick.
func (s *Scheduler) executeScan() {
	ctx := context.Background()
	if err := s.ScanOnce(ctx); err != nil {
		slog.Error("Stale scan failed", logfields.Error(err))
	}
}

// ScanOnce runs a single detect-and-enqueue cycle, retrying transient store
// errors with backoff. A scan that cannot complete enqueues nothing: partial
// batches are never forwarded.
func (s *Scheduler) ScanOnce(ctx context.Context) error {
	cutoff, limit := s.scanParams()
	if limit <= 0 {
		return errors.SchedulerError("scan parameters not configured").Build()
	}

	var batch []catalog.StaleRelease
	var err error
	for attempt := 0; ; attempt++ {
		batch, err = s.detector.FindStale(ctx, cutoff, limit)
		if err == nil {
			break
		}
		if !errors.IsTransient(err) || attempt >= s.policy.MaxRetries {
			return err
		}
		delay := s.policy.Delay(attempt + 1)
		slog.Warn("Stale scan transient failure, retrying",
			logfields.Error(err),
			slog.Int("attempt", attempt+1),
			slog.Duration("delay", delay))
		select {
		case <-time.After(delay):
		case <-ctx.Done():
			return ctx.Err()
		}
	}

	if len(batch) == 0 {
		return nil
	}
	if err := s.enqueuer.Enqueue(ctx, batch); err != nil {
		return errors.WrapError(err, errors.CategoryScheduler, "enqueue stale batch").
			WithContext("batch_size", len(batch)).Build()
	}
	slog.Info("Stale batch enqueued",
		logfields.BatchSize(len(batch)),
		logfields.Cutoff(catalog.FormatNightlyDate(cutoff)))
	return nil
}
