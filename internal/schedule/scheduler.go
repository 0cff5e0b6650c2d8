package schedule

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
)

// cronFields is the five-field layout job schedules are written in.
var cronFields = cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow)

// ParseCron parses a five-field cron expression.
func ParseCron(expr string) (cron.Schedule, error) {
	return cronFields.Parse(expr)
}

// RunFunc executes one due job. The context carries the job's deadline.
type RunFunc func(ctx context.Context, job JobConfig) error

// Scheduler drives documentation jobs from their cron expressions. Each
// job is its own cron entry; a job whose previous run is still in flight
// when the next tick fires is skipped for that tick, never queued.
type Scheduler struct {
	cron   *cron.Cron
	jobs   map[string]JobConfig
	logger *slog.Logger

	mu      sync.Mutex
	running map[string]bool
}

// NewScheduler validates the job configs and prepares a scheduler.
func NewScheduler(configs []JobConfig, logger *slog.Logger) (*Scheduler, error) {
	if logger == nil {
		logger = slog.Default()
	}
	s := &Scheduler{
		cron:    cron.New(cron.WithParser(cronFields)),
		jobs:    make(map[string]JobConfig, len(configs)),
		logger:  logger,
		running: make(map[string]bool),
	}
	for i := range configs {
		if err := configs[i].Validate(); err != nil {
			return nil, err
		}
		if _, dup := s.jobs[configs[i].Name]; dup {
			return nil, fmt.Errorf("duplicate job name %q", configs[i].Name)
		}
		s.jobs[configs[i].Name] = configs[i]
	}
	return s, nil
}

// Jobs returns the configured jobs sorted by name.
func (s *Scheduler) Jobs() []JobConfig {
	names := make([]string, 0, len(s.jobs))
	for name := range s.jobs {
		names = append(names, name)
	}
	sort.Strings(names)

	jobs := make([]JobConfig, 0, len(names))
	for _, name := range names {
		jobs = append(jobs, s.jobs[name])
	}
	return jobs
}

// NextRun returns when a job is next due, or the zero time for an
// unknown job.
func (s *Scheduler) NextRun(name string) time.Time {
	job, ok := s.jobs[name]
	if !ok {
		return time.Time{}
	}
	sched, err := ParseCron(job.Cron)
	if err != nil {
		return time.Time{}
	}
	return sched.Next(time.Now())
}

// Run registers every job with the cron runner and blocks until ctx is
// cancelled, then waits for in-flight jobs to drain.
func (s *Scheduler) Run(ctx context.Context, run RunFunc) error {
	for _, job := range s.Jobs() {
		job := job
		if _, err := s.cron.AddFunc(job.Cron, func() { s.launch(ctx, job, run) }); err != nil {
			return fmt.Errorf("scheduling %s: %w", job.Name, err)
		}
		s.logger.Info("job scheduled", "job", job.Name, "cron", job.Cron, "next", s.NextRun(job.Name))
	}

	s.cron.Start()
	<-ctx.Done()

	stopped := s.cron.Stop()
	<-stopped.Done()
	return nil
}

// launch runs one due job under its configured deadline.
func (s *Scheduler) launch(ctx context.Context, job JobConfig, run RunFunc) {
	if !s.tryAcquire(job.Name) {
		s.logger.Warn("previous run still active, skipping tick", "job", job.Name)
		return
	}
	defer s.release(job.Name)

	jobCtx, cancel := context.WithTimeout(ctx, job.MaxDuration)
	defer cancel()

	s.logger.Info("job starting", "job", job.Name, "command", job.Command)
	start := time.Now()
	if err := run(jobCtx, job); err != nil {
		s.logger.Error("job failed", "job", job.Name, "error", err)
		return
	}
	s.logger.Info("job finished", "job", job.Name, "duration", time.Since(start).Round(time.Second))
}

func (s *Scheduler) tryAcquire(name string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.running[name] {
		return false
	}
	s.running[name] = true
	return true
}

func (s *Scheduler) release(name string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.running[name] = false
}
