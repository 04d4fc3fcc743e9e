package system

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/brandloom/storefront/internal/app/metrics"
	"github.com/brandloom/storefront/internal/logging"
)

var _ Service = (*Scheduler)(nil)

// JobFunc is one run of a scheduled job.
type JobFunc func(ctx context.Context) error

// Scheduler runs named jobs on cron specs. Runs of the same job never overlap.
type Scheduler struct {
	cron    *cron.Cron
	log     *logging.Logger
	timeout time.Duration

	mu      sync.Mutex
	ctx     context.Context
	cancel  context.CancelFunc
	running bool
}

// NewScheduler creates a scheduler whose job runs are bounded by timeout.
func NewScheduler(timeout time.Duration, log *logging.Logger) *Scheduler {
	if log == nil {
		log = logging.NewDefault("scheduler")
	}
	if timeout <= 0 {
		timeout = time.Minute
	}
	return &Scheduler{
		cron:    cron.New(cron.WithChain(cron.Recover(cronLogger{log}))),
		log:     log,
		timeout: timeout,
		ctx:     context.Background(),
	}
}

// Add registers job under a standard five-field spec or a descriptor such as
// "@every 1m".
func (s *Scheduler) Add(name, spec string, job JobFunc) error {
	wrapped := cron.NewChain(cron.SkipIfStillRunning(cronLogger{s.log})).Then(cron.FuncJob(func() {
		s.run(name, job)
	}))
	if _, err := s.cron.AddJob(spec, wrapped); err != nil {
		return fmt.Errorf("schedule %s: %w", name, err)
	}
	return nil
}

// RunNow runs job once on the caller's goroutine with the same bookkeeping
// as a scheduled run.
func (s *Scheduler) RunNow(name string, job JobFunc) error {
	return s.run(name, job)
}

func (s *Scheduler) run(name string, job JobFunc) error {
	s.mu.Lock()
	parent := s.ctx
	s.mu.Unlock()

	ctx, cancel := context.WithTimeout(parent, s.timeout)
	defer cancel()

	start := time.Now()
	err := job(ctx)
	metrics.RecordJobRun(name, time.Since(start), err == nil)
	if err != nil {
		s.log.WithField("job", name).WithError(err).Warn("scheduled job failed")
	}
	return err
}

func (s *Scheduler) Name() string { return "scheduler" }

func (s *Scheduler) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.running {
		return nil
	}
	s.ctx, s.cancel = context.WithCancel(context.WithoutCancel(ctx))
	s.running = true
	s.cron.Start()
	s.log.WithField("jobs", len(s.cron.Entries())).Info("scheduler started")
	return nil
}

// Stop halts scheduling and waits for running jobs or ctx, whichever is first.
func (s *Scheduler) Stop(ctx context.Context) error {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return nil
	}
	s.running = false
	cancel := s.cancel
	s.mu.Unlock()

	done := s.cron.Stop()
	select {
	case <-done.Done():
	case <-ctx.Done():
		cancel()
		return ctx.Err()
	}
	cancel()
	s.log.Info("scheduler stopped")
	return nil
}

// cronLogger adapts the logger to cron's logging interface.
type cronLogger struct {
	log *logging.Logger
}

func (l cronLogger) Info(msg string, keysAndValues ...interface{}) {
	l.log.WithFields(kv(keysAndValues)).Debug(msg)
}

func (l cronLogger) Error(err error, msg string, keysAndValues ...interface{}) {
	l.log.WithFields(kv(keysAndValues)).WithError(err).Error(msg)
}

func kv(pairs []interface{}) map[string]interface{} {
	fields := make(map[string]interface{}, len(pairs)/2)
	for i := 0; i+1 < len(pairs); i += 2 {
		fields[fmt.Sprint(pairs[i])] = pairs[i+1]
	}
	return fields
}
