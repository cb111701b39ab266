// Package scheduler drives the watch pipeline on a fixed interval.
//
// Registration is idempotent: replacing a task by name removes its
// prior cron entry instead of stacking a second schedule. Overlap is
// prevented at the scheduling layer (skip-if-still-running); a tick
// that errors or panics is recorded and reported, never propagated.
package scheduler

import (
	"context"
	"fmt"
	"runtime/debug"
	"strings"
	"sync"
	"time"

	"github.com/robfig/cron/v3"

	logx "manawatch/pkg/logx"
)

type Config struct {
	DefaultTimeout time.Duration // 0 disables per-tick timeouts
	HistorySize    int           // bounded tick history, default 50
	Timezone       string        // IANA TZ; empty means local
}

// TickResult is one completed (or failed) tick, kept for status
// introspection.
type TickResult struct {
	Name     string
	Started  time.Time
	Duration time.Duration
	Error    string
}

type Service struct {
	mu  sync.Mutex
	log logx.Logger
	cfg Config

	c       *cron.Cron
	entries map[string]cron.EntryID
	started bool

	runCtx context.Context

	// reporter surfaces tick failures to the operator (best effort).
	reporter func(ctx context.Context, err error)

	hmu     sync.Mutex
	history []TickResult
}

func New(cfg Config, log logx.Logger) *Service {
	if log.IsZero() {
		log = logx.Nop()
	}
	if cfg.HistorySize <= 0 {
		cfg.HistorySize = 50
	}
	s := &Service{
		log:     log,
		cfg:     cfg,
		entries: map[string]cron.EntryID{},
		runCtx:  context.Background(),
	}
	s.c = cron.New(
		cron.WithLocation(s.loadLocation()),
		cron.WithChain(cron.SkipIfStillRunning(cronLogger{log: log})),
	)
	return s
}

// SetReporter installs the best-effort operator report hook for failed
// ticks.
func (s *Service) SetReporter(fn func(ctx context.Context, err error)) {
	s.mu.Lock()
	s.reporter = fn
	s.mu.Unlock()
}

// Replace registers (or re-registers) a recurring task. Re-registering
// the same name swaps the interval in place rather than duplicating the
// schedule.
func (s *Service) Replace(name string, every time.Duration, job func(ctx context.Context) error) error {
	if every <= 0 {
		return fmt.Errorf("scheduler: interval must be > 0, got %v", every)
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	if id, ok := s.entries[name]; ok {
		s.c.Remove(id)
		delete(s.entries, name)
	}

	spec := fmt.Sprintf("@every %s", every)
	id, err := s.c.AddFunc(spec, func() { s.execute(name, job) })
	if err != nil {
		return fmt.Errorf("scheduler: register %q: %w", name, err)
	}
	s.entries[name] = id
	s.log.Info("task scheduled", logx.String("task", name), logx.Duration("every", every))
	return nil
}

// Remove drops a registered task. Unknown names are a no-op.
func (s *Service) Remove(name string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if id, ok := s.entries[name]; ok {
		s.c.Remove(id)
		delete(s.entries, name)
	}
}

// TaskCount reports how many schedules are currently registered.
func (s *Service) TaskCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.entries)
}

func (s *Service) Start(ctx context.Context) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.started {
		return
	}
	s.started = true
	s.runCtx = ctx
	s.c.Start()
	s.log.Info("scheduler started", logx.Int("tasks", len(s.entries)))
}

func (s *Service) Stop(ctx context.Context) {
	s.mu.Lock()
	if !s.started {
		s.mu.Unlock()
		return
	}
	s.started = false
	c := s.c
	s.mu.Unlock()

	// Wait for in-flight ticks, bounded by the caller's ctx.
	select {
	case <-c.Stop().Done():
	case <-ctx.Done():
	}
	s.log.Info("scheduler stopped")
}

// execute runs one tick with timeout, panic recovery, history, and
// failure reporting. Errors stop here: a failed tick must never take
// the schedule down with it.
func (s *Service) execute(name string, job func(ctx context.Context) error) {
	s.mu.Lock()
	ctx := s.runCtx
	reporter := s.reporter
	timeout := s.cfg.DefaultTimeout
	s.mu.Unlock()

	var cancel context.CancelFunc
	if timeout > 0 {
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	start := time.Now()
	err := s.runRecovered(ctx, job)

	item := TickResult{Name: name, Started: start, Duration: time.Since(start)}
	if err != nil {
		item.Error = err.Error()
		s.log.Warn("tick failed", logx.String("task", name), logx.Duration("took", item.Duration), logx.Err(err))
		if reporter != nil {
			reporter(ctx, err)
		}
	} else {
		s.log.Info("tick ok", logx.String("task", name), logx.Duration("took", item.Duration))
	}
	s.appendHistory(item)
}

func (s *Service) runRecovered(ctx context.Context, job func(ctx context.Context) error) (err error) {
	defer func() {
		if rec := recover(); rec != nil {
			err = fmt.Errorf("tick panicked: %v\n%s", rec, debug.Stack())
		}
	}()
	return job(ctx)
}

func (s *Service) appendHistory(item TickResult) {
	s.hmu.Lock()
	defer s.hmu.Unlock()
	s.history = append(s.history, item)
	if len(s.history) > s.cfg.HistorySize {
		s.history = s.history[len(s.history)-s.cfg.HistorySize:]
	}
}

// History returns a copy of the recorded ticks, oldest first.
func (s *Service) History() []TickResult {
	s.hmu.Lock()
	defer s.hmu.Unlock()
	out := make([]TickResult, len(s.history))
	copy(out, s.history)
	return out
}

func (s *Service) loadLocation() *time.Location {
	tz := strings.TrimSpace(s.cfg.Timezone)
	if tz == "" {
		return time.Local
	}
	loc, err := time.LoadLocation(tz)
	if err != nil {
		s.log.Warn("invalid timezone, falling back to Local", logx.String("tz", tz), logx.Err(err))
		return time.Local
	}
	return loc
}

// cronLogger adapts logx to cron's logger so skipped overlapping runs
// show up in our logs.
type cronLogger struct{ log logx.Logger }

func (l cronLogger) Info(msg string, kv ...interface{}) {
	l.log.Debug("cron: "+msg, logx.Any("kv", kv))
}

func (l cronLogger) Error(err error, msg string, kv ...interface{}) {
	l.log.Warn("cron: "+msg, logx.Err(err), logx.Any("kv", kv))
}
