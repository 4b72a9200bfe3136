// Package scheduler drives the engine's tick loop and retention pruning
// on a cron schedule, so wall-clock passage (and its multiplier) is
// translated into periodic Engine.Tick/PruneRetention calls rather than
// every caller having to remember to do so themselves.
package scheduler

import (
	"context"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog/log"
)

// TickSource is the subset of *engine.Engine the scheduler drives. Kept
// as an interface so tests can fake it without constructing a full
// engine.
type TickSource interface {
	Tick(ctx context.Context, now time.Time) error
}

// RetentionSource is the subset of *engine.Engine the retention job
// drives.
type RetentionSource interface {
	PruneRetention(ctx context.Context, olderThan time.Time) (int64, error)
}

// JobResult records one job invocation's outcome, surfaced through
// Status for the HTTP health/ops endpoints.
type JobResult struct {
	Name      string
	RanAt     time.Time
	Duration  time.Duration
	Err       error
	RowsAffected int64
}

// JobConfig describes one scheduled job's cron spec.
type JobConfig struct {
	Name string
	Spec string // standard 5-field cron expression
}

// Config bundles every job this scheduler knows how to run.
type Config struct {
	TickJob      JobConfig
	RetentionJob JobConfig
	RetentionAge time.Duration // prune rows older than now-RetentionAge
}

// DefaultConfig ticks every second of wall-clock time (the Clock's
// multiplier, not this interval, controls in-sim speed) and prunes
// retention monthly at 03:17 local on the 1st, off the top of the hour to
// avoid herding with other cron-driven jobs.
func DefaultConfig() Config {
	return Config{
		TickJob:      JobConfig{Name: "tick", Spec: "@every 1s"},
		RetentionJob: JobConfig{Name: "retention-prune", Spec: "17 3 1 * *"},
		RetentionAge: 365 * 24 * time.Hour,
	}
}

// Scheduler wraps a robfig/cron/v3 runner bound to an engine's tick and
// retention-prune entry points.
type Scheduler struct {
	cr     *cron.Cron
	cfg    Config
	ticks  TickSource
	ret    RetentionSource
	nowFn  func() time.Time

	mu      sync.Mutex
	lastRun map[string]JobResult
}

// New constructs a Scheduler. nowFn supplies the "now" passed to Tick on
// every firing — callers should pass their clock's Now so ticks advance
// sim time at whatever multiplier is currently set, not wall-clock 1x.
func New(cfg Config, ticks TickSource, ret RetentionSource, nowFn func() time.Time) *Scheduler {
	return &Scheduler{
		cr:      cron.New(cron.WithSeconds()),
		cfg:     cfg,
		ticks:   ticks,
		ret:     ret,
		nowFn:   nowFn,
		lastRun: make(map[string]JobResult),
	}
}

// Start registers every configured job and starts the cron runner in its
// own goroutine. Returns an error if a cron spec fails to parse.
func (s *Scheduler) Start(ctx context.Context) error {
	if _, err := s.cr.AddFunc(normalizeSpec(s.cfg.TickJob.Spec), s.runTick(ctx)); err != nil {
		return err
	}
	if _, err := s.cr.AddFunc(normalizeSpec(s.cfg.RetentionJob.Spec), s.runRetention(ctx)); err != nil {
		return err
	}
	s.cr.Start()
	return nil
}

// normalizeSpec adapts a standard 5-field cron expression to the
// 6-field (seconds-first) parser this Scheduler uses, since
// cron.WithSeconds changes the expected arity; "@every" specs pass
// through untouched.
func normalizeSpec(spec string) string {
	if len(spec) >= 1 && spec[0] == '@' {
		return spec
	}
	return "0 " + spec
}

func (s *Scheduler) runTick(ctx context.Context) func() {
	return func() {
		start := time.Now()
		now := s.nowFn()
		err := s.ticks.Tick(ctx, now)
		s.record(JobResult{Name: s.cfg.TickJob.Name, RanAt: start, Duration: time.Since(start), Err: err})
		if err != nil {
			log.Error().Err(err).Msg("scheduler: tick failed")
		}
	}
}

func (s *Scheduler) runRetention(ctx context.Context) func() {
	return func() {
		start := time.Now()
		cutoff := s.nowFn().Add(-s.cfg.RetentionAge)
		n, err := s.ret.PruneRetention(ctx, cutoff)
		s.record(JobResult{Name: s.cfg.RetentionJob.Name, RanAt: start, Duration: time.Since(start), Err: err, RowsAffected: n})
		if err != nil {
			log.Error().Err(err).Msg("scheduler: retention prune failed")
		} else {
			log.Info().Int64("rows_pruned", n).Msg("scheduler: retention prune complete")
		}
	}
}

func (s *Scheduler) record(r JobResult) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.lastRun[r.Name] = r
}

// Status returns the most recent result for each job, keyed by name.
func (s *Scheduler) Status() map[string]JobResult {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make(map[string]JobResult, len(s.lastRun))
	for k, v := range s.lastRun {
		out[k] = v
	}
	return out
}

// Stop drains in-flight jobs and stops the cron runner.
func (s *Scheduler) Stop(ctx context.Context) {
	stopCtx := s.cr.Stop()
	select {
	case <-stopCtx.Done():
	case <-ctx.Done():
	}
}
