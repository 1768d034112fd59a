package scheduler

import (
	"context"
	"fmt"
	"time"

	"DualSignal/internal/usecase"
	applogger "DualSignal/pkg/logger"

	"github.com/robfig/cron/v3"
)

// Job is one scheduled worker invocation.
type Job interface {
	Name() string
	Run(ctx context.Context, now time.Time) error
}

type jobFunc struct {
	name string
	fn   func(ctx context.Context, now time.Time) error
}

func (j jobFunc) Name() string                                 { return j.name }
func (j jobFunc) Run(ctx context.Context, now time.Time) error { return j.fn(ctx, now) }

// ComputeJob adapts the compute worker to a Job.
func ComputeJob(w *usecase.ComputeWorker) Job {
	return jobFunc{name: "compute", fn: func(ctx context.Context, now time.Time) error {
		_, err := w.Run(ctx, now)
		return err
	}}
}

// LearningJob adapts the learning worker to a Job.
func LearningJob(w *usecase.LearningWorker) Job {
	return jobFunc{name: "learning", fn: func(ctx context.Context, now time.Time) error {
		_, err := w.Run(ctx, now)
		return err
	}}
}

// Scheduler triggers workers on cron specs. A trigger that fires while the previous
// run of the same job is still going is skipped.
type Scheduler struct {
	cron *cron.Cron
	log  *applogger.Logger
	now  func() time.Time
	ctx  context.Context
}

func New(log *applogger.Logger, loc *time.Location) *Scheduler {
	if loc == nil {
		loc = time.UTC
	}
	log = log.Named("scheduler")
	cl := cronLogger{log: log}
	return &Scheduler{
		cron: cron.New(
			cron.WithLocation(loc),
			cron.WithLogger(cl),
			cron.WithChain(cron.Recover(cl), cron.SkipIfStillRunning(cl)),
		),
		log: log,
		now: time.Now,
		ctx: context.Background(),
	}
}

// Add registers job under a standard cron expression or descriptor such as "@every 5m".
func (s *Scheduler) Add(spec string, job Job) error {
	_, err := s.cron.AddFunc(spec, func() { s.runJob(job) })
	if err != nil {
		return fmt.Errorf("schedule %s %q: %w", job.Name(), spec, err)
	}
	s.log.Info("job scheduled", applogger.String("job", job.Name()), applogger.String("spec", spec))
	return nil
}

func (s *Scheduler) runJob(job Job) {
	start := time.Now()
	if err := job.Run(s.ctx, s.now()); err != nil {
		// the next trigger retries
		s.log.Error("job failed", applogger.String("job", job.Name()), applogger.Error(err))
		return
	}
	s.log.Debug("job done", applogger.String("job", job.Name()), applogger.Duration("duration_ms", time.Since(start)))
}

// Run starts the cron loop and blocks until ctx is done, then waits for running jobs.
func (s *Scheduler) Run(ctx context.Context) error {
	s.ctx = ctx
	s.cron.Start()
	<-ctx.Done()
	s.log.Info("stopping, waiting for running jobs")
	<-s.cron.Stop().Done()
	return nil
}

// cronLogger routes cron's logging into the application logger.
type cronLogger struct {
	log *applogger.Logger
}

func (l cronLogger) Info(msg string, keysAndValues ...interface{}) {
	l.log.Debug(msg, kvFields(keysAndValues)...)
}

func (l cronLogger) Error(err error, msg string, keysAndValues ...interface{}) {
	l.log.Error(msg, append(kvFields(keysAndValues), applogger.Error(err))...)
}

func kvFields(kv []interface{}) []applogger.Field {
	fields := make([]applogger.Field, 0, len(kv)/2)
	for i := 0; i+1 < len(kv); i += 2 {
		fields = append(fields, applogger.Any(fmt.Sprint(kv[i]), kv[i+1]))
	}
	return fields
}
