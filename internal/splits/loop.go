package splits

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"
)

// DefaultTriggerBuffer is how many advance triggers may wait for the loop.
const DefaultTriggerBuffer = 8

// LoopMetrics is satisfied by *metrics.Metrics.
type LoopMetrics interface {
	IncIgnored(reason string)
}

// Loop consumes advance triggers on a single goroutine. Triggers come from
// signals, HTTP and the keyboard; delivery is best effort and a trigger that
// finds the buffer full is dropped.
type Loop struct {
	timer    *Timer
	triggers chan struct{}
	log      *slog.Logger
	metrics  LoopMetrics
}

// NewLoop returns a Loop feeding timer. If buffer <= 0, DefaultTriggerBuffer
// is used. m may be nil.
func NewLoop(timer *Timer, buffer int, log *slog.Logger, m LoopMetrics) *Loop {
	if buffer <= 0 {
		buffer = DefaultTriggerBuffer
	}
	if log == nil {
		log = slog.New(slog.DiscardHandler)
	}
	return &Loop{
		timer:    timer,
		triggers: make(chan struct{}, buffer),
		log:      log,
		metrics:  m,
	}
}

// Trigger queues one advance without blocking. It reports false when the
// trigger was dropped.
func (l *Loop) Trigger() bool {
	select {
	case l.triggers <- struct{}{}:
		return true
	default:
		l.log.Warn("advance trigger dropped, loop busy")
		if l.metrics != nil {
			l.metrics.IncIgnored("dropped")
		}
		return false
	}
}

// Run applies queued triggers until ctx is done. A trigger that finishes a
// run hands the run to a persisting goroutine, so the loop keeps draining
// triggers meanwhile and the timer ignores them as stray. Persistence
// failures are logged; the timer keeps the finished run for a retry. Run
// waits for an in-flight persist before returning.
func (l *Loop) Run(ctx context.Context) {
	var wg sync.WaitGroup
	defer wg.Wait()

	for {
		select {
		case <-ctx.Done():
			return
		case <-l.triggers:
			ev, job := l.timer.advance()
			l.log.Debug("advance", slog.String("event", ev.String()))
			if job == nil {
				continue
			}
			wg.Add(1)
			go func(job finishedRun) {
				defer wg.Done()
				// A run finished just before shutdown is still saved.
				if err := l.timer.finalize(context.WithoutCancel(ctx), job); err != nil {
					l.log.Error("advance failed",
						slog.String("event", ev.String()),
						slog.String("error", err.Error()))
				}
			}(*job)
		}
	}
}

// RenderLoop drives the timer at a fixed tick: every frame refreshes the live
// section and hands the board to frame, which may be nil. It returns when ctx
// is done.
func RenderLoop(ctx context.Context, timer *Timer, interval time.Duration, frame func(Board)) error {
	if interval <= 0 {
		return errors.New("render interval must be positive")
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			timer.Refresh()
			if frame != nil {
				frame(timer.Board())
			}
		}
	}
}
