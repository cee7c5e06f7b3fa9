// Package scheduler runs the lazy rotation lifecycle in the background: it rotates
// cells whose CellKey outlived its interval, migrates their DataKeys onto the new
// version and retires old versions nothing references anymore.
package scheduler

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/google/uuid"
	"github.com/robfig/cron/v3"
	"golang.org/x/sync/errgroup"

	cellUsecase "github.com/allisson/cellvault/internal/cell/usecase"
	apperrors "github.com/allisson/cellvault/internal/errors"
)

// SweepReport summarizes one pass over the cells that needed maintenance.
type SweepReport struct {
	Cells    int
	Rotated  int
	Migrated int
	Retired  int
	Failed   int
}

// Scheduler drives cellUsecase.Maintainer on a cron schedule and drains the queue of
// cells rotated on demand.
type Scheduler struct {
	maintainer cellUsecase.Maintainer
	settings   Settings
	schedule   cron.Schedule
	logger     *slog.Logger

	mu      sync.Mutex
	cron    *cron.Cron
	cancel  context.CancelFunc
	done    chan struct{}
	initial sync.WaitGroup

	// backlog holds cells whose last maintenance failed; the next sweep retries them.
	backlogMu sync.Mutex
	backlog   map[uuid.UUID]struct{}
}

// New validates the schedule and creates a Scheduler.
func New(maintainer cellUsecase.Maintainer, settings Settings, logger *slog.Logger) (*Scheduler, error) {
	defaults := DefaultSettings()
	if settings.Schedule == "" {
		settings.Schedule = defaults.Schedule
	}
	if settings.Concurrency <= 0 {
		settings.Concurrency = defaults.Concurrency
	}
	if settings.RetryMaxAttempts == 0 {
		settings.RetryMaxAttempts = defaults.RetryMaxAttempts
	}
	if settings.RetryInitialInterval <= 0 {
		settings.RetryInitialInterval = defaults.RetryInitialInterval
	}
	if settings.Now == nil {
		settings.Now = time.Now
	}

	schedule, err := cron.ParseStandard(settings.Schedule)
	if err != nil {
		return nil, fmt.Errorf("parse rotation schedule %q: %w", settings.Schedule, err)
	}

	return &Scheduler{
		maintainer: maintainer,
		settings:   settings,
		schedule:   schedule,
		logger:     logger,
		backlog:    make(map[uuid.UUID]struct{}),
	}, nil
}

// Start launches the cron loop and the pending migrations consumer.
func (s *Scheduler) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.done != nil {
		return errors.New("scheduler already started")
	}

	runCtx, cancel := context.WithCancel(ctx)
	logger := cronLogger{logger: s.logger}
	c := cron.New(cron.WithLocation(time.UTC), cron.WithLogger(logger))
	// One wrapped job so the initial sweep and scheduled sweeps never overlap.
	job := cron.NewChain(cron.Recover(logger), cron.SkipIfStillRunning(logger)).
		Then(cron.FuncJob(func() { s.runSweep(runCtx) }))
	c.Schedule(s.schedule, job)

	s.cron = c
	s.cancel = cancel
	s.done = make(chan struct{})

	go s.drainPending(runCtx, s.done)
	c.Start()
	if s.settings.RunOnStart {
		s.initial.Add(1)
		go func() {
			defer s.initial.Done()
			job.Run()
		}()
	}

	s.logger.Info("rotation scheduler started", slog.String("schedule", s.settings.Schedule))
	return nil
}

// Stop cancels running work and waits for every goroutine to return.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.cancel == nil {
		return
	}

	s.cancel()
	<-s.cron.Stop().Done()
	s.initial.Wait()
	<-s.done
	s.cron = nil
	s.cancel = nil
	s.done = nil

	s.logger.Info("rotation scheduler stopped")
}

func (s *Scheduler) runSweep(ctx context.Context) {
	if _, err := s.Sweep(ctx); err != nil && ctx.Err() == nil {
		s.logger.Error("rotation sweep failed", slog.Any("error", err))
	}
}

// drainPending migrates cells as RotateCell enqueues them.
func (s *Scheduler) drainPending(ctx context.Context, done chan<- struct{}) {
	defer close(done)

	pending := s.maintainer.PendingMigrations()
	for {
		select {
		case <-ctx.Done():
			return
		case cellID, ok := <-pending:
			if !ok {
				return
			}
			var report SweepReport
			s.maintain(ctx, cellID, false, &report)
		}
	}
}

// Sweep maintains every cell due for rotation, every cell still holding Retiring key
// versions and the backlog of failed cells. Only due cells are rotated.
func (s *Scheduler) Sweep(ctx context.Context) (*SweepReport, error) {
	start := s.settings.Now()

	due, err := retry(ctx, s, func() ([]uuid.UUID, error) {
		return s.maintainer.DueForRotation(ctx, s.settings.Now())
	})
	if err != nil {
		return nil, err
	}
	awaiting, err := retry(ctx, s, func() ([]uuid.UUID, error) {
		return s.maintainer.AwaitingMigration(ctx)
	})
	if err != nil {
		return nil, err
	}

	work := make(map[uuid.UUID]bool, len(due)+len(awaiting))
	for _, cellID := range due {
		work[cellID] = true
	}
	for _, cellID := range awaiting {
		if _, ok := work[cellID]; !ok {
			work[cellID] = false
		}
	}
	s.backlogMu.Lock()
	for cellID := range s.backlog {
		if _, ok := work[cellID]; !ok {
			work[cellID] = false
		}
	}
	s.backlog = make(map[uuid.UUID]struct{})
	s.backlogMu.Unlock()

	var (
		mu     sync.Mutex
		report = &SweepReport{Cells: len(work)}
		g      errgroup.Group
	)
	g.SetLimit(s.settings.Concurrency)
	for cellID, rotate := range work {
		g.Go(func() error {
			var cell SweepReport
			s.maintain(ctx, cellID, rotate, &cell)

			mu.Lock()
			defer mu.Unlock()
			report.Rotated += cell.Rotated
			report.Migrated += cell.Migrated
			report.Retired += cell.Retired
			report.Failed += cell.Failed
			return nil
		})
	}
	_ = g.Wait()

	s.logger.Info("rotation sweep completed",
		slog.Int("cells", report.Cells),
		slog.Int("rotated", report.Rotated),
		slog.Int("migrated", report.Migrated),
		slog.Int("retired", report.Retired),
		slog.Int("failed", report.Failed),
		slog.Duration("duration", s.settings.Now().Sub(start)),
	)
	return report, nil
}

// maintain runs rotate (optionally), migrate and retire for one cell. A failed step
// stops the cell and puts it on the backlog.
func (s *Scheduler) maintain(ctx context.Context, cellID uuid.UUID, rotate bool, report *SweepReport) {
	logger := s.logger.With(slog.String("cell_id", cellID.String()))

	if rotate {
		version, err := retry(ctx, s, func() (uint, error) {
			return s.maintainer.RotateDue(ctx, cellID)
		})
		if err != nil {
			s.failed(ctx, logger, cellID, "rotate", err, report)
			return
		}
		report.Rotated++
		logger.Info("cell rotated", slog.Uint64("version", uint64(version)))
	}

	migration, err := retry(ctx, s, func() (*cellUsecase.MigrationReport, error) {
		return s.maintainer.Migrate(ctx, cellID)
	})
	if err != nil {
		s.failed(ctx, logger, cellID, "migrate", err, report)
		return
	}
	report.Migrated += migration.Migrated
	if migration.Failed > 0 {
		// Versions that failed integrity keep the old key in use; retrying won't help.
		logger.Warn("data keys left on old key versions", slog.Int("failed", migration.Failed))
	}

	retired, err := retry(ctx, s, func() ([]uint, error) {
		return s.maintainer.RetireStale(ctx, cellID)
	})
	report.Retired += len(retired)
	if err != nil {
		s.failed(ctx, logger, cellID, "retire", err, report)
	}
}

func (s *Scheduler) failed(
	ctx context.Context,
	logger *slog.Logger,
	cellID uuid.UUID,
	step string,
	err error,
	report *SweepReport,
) {
	report.Failed++
	if ctx.Err() != nil {
		return
	}
	logger.Error("cell maintenance failed", slog.String("step", step), slog.Any("error", err))

	s.backlogMu.Lock()
	s.backlog[cellID] = struct{}{}
	s.backlogMu.Unlock()
}

// Backlog returns the cells the next sweep will retry.
func (s *Scheduler) Backlog() []uuid.UUID {
	s.backlogMu.Lock()
	defer s.backlogMu.Unlock()

	ids := make([]uuid.UUID, 0, len(s.backlog))
	for cellID := range s.backlog {
		ids = append(ids, cellID)
	}
	return ids
}

// retry runs op with exponential backoff while it fails with a transient error.
func retry[T any](ctx context.Context, s *Scheduler, op func() (T, error)) (T, error) {
	policy := backoff.NewExponentialBackOff()
	policy.InitialInterval = s.settings.RetryInitialInterval
	policy.MaxElapsedTime = 0

	v, err := backoff.RetryNotifyWithData(
		func() (T, error) {
			v, err := op()
			if err != nil && !apperrors.IsTransient(err) {
				return v, backoff.Permanent(err)
			}
			return v, err
		},
		backoff.WithContext(backoff.WithMaxRetries(policy, s.settings.RetryMaxAttempts-1), ctx),
		func(err error, wait time.Duration) {
			s.logger.Warn("transient failure, retrying", slog.Any("error", err), slog.Duration("wait", wait))
		},
	)
	return v, apperrors.FromContext(err)
}
