package scheduler

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"
)

// Task runs fn every interval. A firing that arrives while the previous run
// is still in flight is skipped.
type Task struct {
	name     string
	interval time.Duration
	fn       func(ctx context.Context)
	running  atomic.Bool
	skipped  atomic.Int64
	wg       sync.WaitGroup
	logger   zerolog.Logger
}

func NewTask(name string, interval time.Duration, fn func(ctx context.Context), logger zerolog.Logger) *Task {
	return &Task{
		name:     name,
		interval: interval,
		fn:       fn,
		logger:   logger.With().Str("task", name).Logger(),
	}
}

func (t *Task) Name() string {
	return t.name
}

// Skipped reports how many firings were dropped because a run was in flight.
func (t *Task) Skipped() int64 {
	return t.skipped.Load()
}

// Run blocks until ctx is cancelled, then waits for an in-flight run.
func (t *Task) Run(ctx context.Context) error {
	ticker := time.NewTicker(t.interval)
	defer ticker.Stop()

	t.logger.Info().Dur("interval", t.interval).Msg("periodic task started")
	for {
		select {
		case <-ctx.Done():
			t.wg.Wait()
			t.logger.Info().Msg("periodic task stopped")
			return nil
		case <-ticker.C:
			t.fire(ctx)
		}
	}
}

func (t *Task) fire(ctx context.Context) {
	if !t.running.CompareAndSwap(false, true) {
		t.skipped.Add(1)
		t.logger.Debug().Msg("previous run still in flight, skipping")
		return
	}

	t.wg.Add(1)
	go func() {
		defer t.wg.Done()
		defer t.running.Store(false)
		t.execute(ctx)
	}()
}

// RunOnce executes fn synchronously unless a run is already in flight. It
// reports whether fn ran.
func (t *Task) RunOnce(ctx context.Context) bool {
	if !t.running.CompareAndSwap(false, true) {
		t.skipped.Add(1)
		return false
	}
	defer t.running.Store(false)
	t.execute(ctx)
	return true
}

func (t *Task) execute(ctx context.Context) {
	defer func() {
		if r := recover(); r != nil {
			t.logger.Error().Interface("panic", r).Msg("periodic task panicked")
		}
	}()

	start := time.Now()
	t.fn(ctx)
	t.logger.Debug().Dur("duration", time.Since(start)).Msg("periodic task run finished")
}
