package worker

import (
	"context"
	"fmt"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog"
)

// Cleaner deletes rows older than a retention period.
type Cleaner interface {
	Cleanup(ctx context.Context, retention time.Duration) (int64, error)
}

// RetentionJob prunes one table on a cron schedule.
type RetentionJob struct {
	Name      string
	Schedule  string
	Retention time.Duration
	Cleaner   Cleaner
}

// RetentionWorker runs retention jobs until its context is cancelled.
type RetentionWorker struct {
	cron   *cron.Cron
	jobs   []RetentionJob
	logger zerolog.Logger
}

func NewRetentionWorker(logger zerolog.Logger, jobs ...RetentionJob) (*RetentionWorker, error) {
	w := &RetentionWorker{
		jobs:   jobs,
		logger: logger.With().Str("component", "retention").Logger(),
	}
	cl := cronLogger{w.logger}
	w.cron = cron.New(cron.WithChain(cron.Recover(cl), cron.SkipIfStillRunning(cl)), cron.WithLogger(cl))

	for _, job := range jobs {
		if job.Retention <= 0 {
			return nil, fmt.Errorf("job %s: retention must be positive", job.Name)
		}
		job := job
		if _, err := w.cron.AddFunc(job.Schedule, func() { w.run(context.Background(), job) }); err != nil {
			return nil, fmt.Errorf("job %s: invalid schedule %q: %w", job.Name, job.Schedule, err)
		}
	}
	return w, nil
}

// Start schedules the jobs and blocks until ctx is done. Running jobs are
// allowed to finish.
func (w *RetentionWorker) Start(ctx context.Context) error {
	w.cron.Start()
	w.logger.Info().Int("jobs", len(w.jobs)).Msg("Retention worker started")

	<-ctx.Done()
	<-w.cron.Stop().Done()
	w.logger.Info().Msg("Retention worker stopped")
	return nil
}

// RunOnce executes every job immediately.
func (w *RetentionWorker) RunOnce(ctx context.Context) {
	for _, job := range w.jobs {
		w.run(ctx, job)
	}
}

func (w *RetentionWorker) run(ctx context.Context, job RetentionJob) {
	start := time.Now()
	n, err := job.Cleaner.Cleanup(ctx, job.Retention)
	if err != nil {
		w.logger.Error().Err(err).Str("job", job.Name).Msg("Retention cleanup failed")
		return
	}
	w.logger.Info().
		Str("job", job.Name).
		Int64("deleted", n).
		Dur("took", time.Since(start)).
		Msg("Retention cleanup finished")
}

type cronLogger struct {
	logger zerolog.Logger
}

func (l cronLogger) Info(msg string, keysAndValues ...interface{}) {
	l.logger.Debug().Fields(keysAndValues).Msg(msg)
}

func (l cronLogger) Error(err error, msg string, keysAndValues ...interface{}) {
	l.logger.Error().Err(err).Fields(keysAndValues).Msg(msg)
}
