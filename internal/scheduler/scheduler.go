// Package scheduler runs the periodic sync jobs.
package scheduler

import (
	"context"
	"io"
	"log/slog"
	"sync"
	"time"
)

// Job is a task repeated every Interval. Fn is never run concurrently with
// itself; a tick that fires while Fn is still running is dropped.
type Job struct {
	Name     string
	Interval time.Duration
	Fn       func(ctx context.Context)
}

type Scheduler struct {
	jobs   []Job
	logger *slog.Logger
}

func New(logger *slog.Logger) *Scheduler {
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return &Scheduler{logger: logger}
}

// Add registers a job. Jobs with a non-positive interval are ignored.
func (s *Scheduler) Add(job Job) {
	if job.Interval <= 0 || job.Fn == nil {
		s.logger.Warn("ignoring job without interval", "name", job.Name)
		return
	}
	s.jobs = append(s.jobs, job)
}

// Run starts every job immediately and then on its interval. It blocks until
// ctx is cancelled and every in-flight run has returned.
func (s *Scheduler) Run(ctx context.Context) {
	s.logger.Info("scheduler started", "jobs", len(s.jobs))
	var wg sync.WaitGroup
	for _, job := range s.jobs {
		wg.Add(1)
		go func() {
			defer wg.Done()
			s.loop(ctx, job)
		}()
	}
	wg.Wait()
	s.logger.Info("scheduler stopped")
}

func (s *Scheduler) loop(ctx context.Context, job Job) {
	ticker := time.NewTicker(job.Interval)
	defer ticker.Stop()

	s.runOnce(ctx, job)
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.runOnce(ctx, job)
		}
	}
}

func (s *Scheduler) runOnce(ctx context.Context, job Job) {
	if ctx.Err() != nil {
		return
	}
	start := time.Now()
	s.logger.Debug("job started", "name", job.Name)
	defer func() {
		if r := recover(); r != nil {
			s.logger.Error("job panicked", "name", job.Name, "panic", r)
		}
	}()
	job.Fn(ctx)
	s.logger.Debug("job completed", "name", job.Name, "duration", time.Since(start))
}
