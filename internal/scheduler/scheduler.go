package scheduler

import (
	"context"
	"log/slog"
	"time"

	"github.com/go-co-op/gocron"

	"github.com/i474232898/wind-timeseries/internal/logging"
)

// Refresher reloads the dataset context.
type Refresher interface {
	Refresh(ctx context.Context) error
}

// Purger drops cached results.
type Purger interface {
	Purge()
}

// Scheduler periodically reloads the dataset context and, after a successful
// reload, drops results computed against the previous one.
type Scheduler struct {
	scheduler *gocron.Scheduler
	refresher Refresher
	cache     Purger
	interval  time.Duration
	timeout   time.Duration
	logger    *slog.Logger
}

// New creates a new Scheduler. cache may be nil.
func New(refresher Refresher, cache Purger, interval, timeout time.Duration, logger *slog.Logger) *Scheduler {
	s := gocron.NewScheduler(time.UTC)
	if timeout <= 0 {
		timeout = 2 * time.Minute
	}
	return &Scheduler{
		scheduler: s,
		refresher: refresher,
		cache:     cache,
		interval:  interval,
		timeout:   timeout,
		logger:    logger,
	}
}

// Start schedules the periodic job and starts the underlying scheduler.
func (s *Scheduler) Start() error {
	if s.interval <= 0 {
		s.logger.Info("scheduler: refresh disabled")
		return nil
	}

	minutes := int(s.interval.Minutes())
	if minutes <= 0 {
		minutes = 15
	}

	_, err := s.scheduler.Every(minutes).Minutes().WaitForSchedule().SingletonMode().Do(s.run)
	if err != nil {
		return err
	}

	s.scheduler.StartAsync()
	return nil
}

func (s *Scheduler) run() {
	ctx, cancel := context.WithTimeout(context.Background(), s.timeout)
	defer cancel()
	ctx = logging.WithContext(ctx, s.logger.With("job", "refresh"))

	s.logger.Info("scheduler: refreshing dataset context")
	if err := s.refresher.Refresh(ctx); err != nil {
		s.logger.Error("scheduler: refresh failed; keeping previous context", "error", err)
		return
	}
	if s.cache != nil {
		s.cache.Purge()
	}
	s.logger.Info("scheduler: refresh completed")
}

// Stop stops the scheduler and cancels any future jobs.
func (s *Scheduler) Stop() {
	if s.scheduler != nil {
		s.scheduler.Stop()
	}
}
