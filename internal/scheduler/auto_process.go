// Package scheduler runs the periodic auto-process tick.
package scheduler

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/oggyb/muzz-introductions/internal/service/matching"
)

// Processor is the part of the coordinator the job needs.
type Processor interface {
	AutoProcess(ctx context.Context, now time.Time) (matching.AutoReport, error)
}

// AutoProcessScheduler fails stale waiting requests and completes pairs whose
// date has passed, on a cron expression with a seconds field.
type AutoProcessScheduler struct {
	cron    *cron.Cron
	proc    Processor
	expr    string
	timeout time.Duration
	log     *slog.Logger

	mu      sync.Mutex
	running bool
}

// NewAutoProcessScheduler creates a scheduler; nothing runs until Start.
func NewAutoProcessScheduler(proc Processor, expr string, log *slog.Logger) *AutoProcessScheduler {
	if log == nil {
		log = slog.Default()
	}
	return &AutoProcessScheduler{
		cron:    cron.New(cron.WithSeconds()),
		proc:    proc,
		expr:    expr,
		timeout: time.Minute,
		log:     log.With("component", "scheduler"),
	}
}

// Start registers the job and starts the cron loop.
func (s *AutoProcessScheduler) Start() error {
	if _, err := s.cron.AddFunc(s.expr, s.tick); err != nil {
		return err
	}
	s.cron.Start()
	s.log.Info("auto process scheduler started", "cron", s.expr)
	return nil
}

// Stop waits for a running tick to finish.
func (s *AutoProcessScheduler) Stop() {
	ctx := s.cron.Stop()
	<-ctx.Done()
	s.log.Info("auto process scheduler stopped")
}

func (s *AutoProcessScheduler) tick() {
	ctx, cancel := context.WithTimeout(context.Background(), s.timeout)
	defer cancel()
	if _, err := s.RunOnce(ctx); err != nil {
		s.log.Error("auto process tick failed", "err", err)
	}
}

// RunOnce runs a single tick now. Overlapping ticks are skipped.
func (s *AutoProcessScheduler) RunOnce(ctx context.Context) (matching.AutoReport, error) {
	s.mu.Lock()
	if s.running {
		s.mu.Unlock()
		s.log.Warn("auto process still running, tick skipped")
		return matching.AutoReport{}, nil
	}
	s.running = true
	s.mu.Unlock()

	defer func() {
		s.mu.Lock()
		s.running = false
		s.mu.Unlock()
	}()
	return s.proc.AutoProcess(ctx, time.Now())
}
