package splits

import (
	"context"
	"fmt"
	"log/slog"
	"slices"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Event tells what an advance trigger did to the timer.
type Event int

const (
	EventIgnored Event = iota
	EventStarted
	EventSplit
	EventFinished
)

func (e Event) String() string {
	switch e {
	case EventStarted:
		return "started"
	case EventSplit:
		return "split"
	case EventFinished:
		return "finished"
	default:
		return "ignored"
	}
}

// TimerMetrics is the subset of metrics the timer reports to. It is
// satisfied by *metrics.Metrics.
type TimerMetrics interface {
	IncRunsStarted()
	IncSplits()
	IncGoldSplits()
	IncIgnored(reason string)
	SetCurrentSection(i int)
}

// TimerConfig configures a Timer. Game, Sequence and Engine are required.
type TimerConfig struct {
	Game      string
	Sequence  SectionSequence
	Engine    *Engine
	PB        *Record
	SumOfBest *Record
	Clock     Clock
	Log       *slog.Logger
	Metrics   TimerMetrics
	// Now supplies the wall clock start timestamp of a run. Defaults to time.Now.
	Now func() time.Time
}

// Snapshot is a deep copy of the timer state, safe to read without locking.
type Snapshot struct {
	Game      string
	Status    Status
	Current   int
	Run       Record
	PB        *Record
	SumOfBest *Record
	// LastResult is the merge of the most recently persisted run.
	LastResult *MergeResult
	// PersistErr is set while a finished run is waiting for a successful retry.
	PersistErr error
}

// Timer is the split timing state machine. All state sits behind one mutex;
// the event driver and the render driver interleave at whole operations.
// Persisting a finished run happens outside the lock, so rendering keeps
// going while records are written.
type Timer struct {
	mu      sync.RWMutex
	game    string
	seq     SectionSequence
	clock   Clock
	engine  *Engine
	log     *slog.Logger
	metrics TimerMetrics
	now     func() time.Time

	status     Status
	current    int
	run        Record
	pb         *Record
	sob        *Record
	finalizing bool
	persistErr error
	last       *MergeResult
	// pending is the merge of a finished run whose persistence failed;
	// written accumulates the record kinds that reached the store anyway.
	pending *MergeResult
	written []string
}

type finishedRun struct {
	run Record
	pb  *Record
	sob *Record
}

// NewTimer returns an idle Timer. PB and SumOfBest, when present, must match
// the configured sequence.
func NewTimer(cfg TimerConfig) (*Timer, error) {
	if err := cfg.Sequence.Validate(); err != nil {
		return nil, err
	}
	if cfg.Engine == nil {
		return nil, fmt.Errorf("timer for %s: no merge engine", cfg.Game)
	}
	pb, err := CheckLoaded(KindPB, cloneRecord(cfg.PB), cfg.Sequence)
	if err != nil {
		return nil, err
	}
	sob, err := CheckLoaded(KindSumOfBest, cloneRecord(cfg.SumOfBest), cfg.Sequence)
	if err != nil {
		return nil, err
	}

	t := &Timer{
		game:    cfg.Game,
		seq:     append(SectionSequence(nil), cfg.Sequence...),
		clock:   cfg.Clock,
		engine:  cfg.Engine,
		log:     cfg.Log,
		metrics: cfg.Metrics,
		now:     cfg.Now,
		pb:      pb,
		sob:     sob,
	}
	if t.clock == nil {
		t.clock = NewMonotonicClock()
	}
	if t.log == nil {
		t.log = slog.New(slog.DiscardHandler)
	}
	if t.now == nil {
		t.now = time.Now
	}
	t.run = NewRecord(t.game, t.seq)
	return t, nil
}

// Advance is the single external trigger: it starts a run when idle, splits
// when running and is ignored when a finished run is still pending.
func (t *Timer) Advance(ctx context.Context) (Event, error) {
	ev, job := t.advance()
	if job == nil {
		return ev, nil
	}
	return ev, t.finalize(ctx, *job)
}

// advance applies one trigger and returns the finished run to persist, if
// the trigger completed the last section. Until that run is finalized the
// timer stays Finished and further triggers are ignored.
func (t *Timer) advance() (Event, *finishedRun) {
	t.mu.Lock()
	defer t.mu.Unlock()

	switch t.status {
	case Idle:
		if t.startLocked() {
			return EventStarted, nil
		}
		return EventIgnored, nil
	case Running:
		return t.splitLocked()
	default:
		t.ignoredLocked("advance")
		return EventIgnored, nil
	}
}

// Start begins a new run. It is a no-op unless the timer is idle.
func (t *Timer) Start() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.startLocked()
}

// Split commits the current section. It is a no-op unless a run is in
// progress. Completing the last section merges the run into the records
// before Split returns; the state lock is not held meanwhile.
func (t *Timer) Split(ctx context.Context) (Event, error) {
	t.mu.Lock()
	ev, job := t.splitLocked()
	t.mu.Unlock()

	if job == nil {
		return ev, nil
	}
	return ev, t.finalize(ctx, *job)
}

// Refresh writes the live, provisional time of the current section. Only the
// next Split makes it permanent. It reports whether anything was updated.
func (t *Timer) Refresh() bool {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.status != Running || t.current >= len(t.run.Sections) {
		return false
	}
	t.run.Sections[t.current].Time = Millis(t.elapsedLocked())
	return true
}

// Reset abandons the run in progress and returns to idle. Nothing is persisted.
func (t *Timer) Reset() bool {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.status != Running {
		return false
	}
	t.log.Info("run abandoned",
		slog.String("game", t.game),
		slog.String("run_id", t.run.ID),
		slog.Int("section", t.current))
	t.status = Idle
	t.current = 0
	t.run = NewRecord(t.game, t.seq)
	t.setSectionGauge(-1)
	return true
}

// Retry persists a finished run whose earlier finalization failed.
func (t *Timer) Retry(ctx context.Context) error {
	t.mu.Lock()
	if t.status != Finished {
		t.mu.Unlock()
		return ErrNotFinished
	}
	if t.finalizing {
		t.mu.Unlock()
		return ErrFinalizing
	}
	t.finalizing = true
	job := t.finishedLocked()
	t.mu.Unlock()

	return t.finalize(ctx, job)
}

// Discard drops a finished run that could not be persisted and returns to idle.
// Records the failed finalization did manage to write become the timer's
// records, so later runs compare and merge against what is stored.
func (t *Timer) Discard() error {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.status != Finished {
		return ErrNotFinished
	}
	if t.finalizing {
		return ErrFinalizing
	}
	t.log.Warn("finished run discarded",
		slog.String("game", t.game),
		slog.String("run_id", t.run.ID))
	if p := t.pending; p != nil {
		if p.NewPB && slices.Contains(t.written, KindPB) {
			t.pb = cloneRecord(p.PB)
		}
		if slices.Contains(t.written, KindSumOfBest) {
			sob := p.SumOfBest.Clone()
			t.sob = &sob
		}
	}
	t.status = Idle
	t.persistErr = nil
	t.pending = nil
	t.written = nil
	t.setSectionGauge(-1)
	return nil
}

// Status returns the current lifecycle state.
func (t *Timer) Status() Status {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.status
}

// Sequence returns the configured section names.
func (t *Timer) Sequence() SectionSequence {
	return append(SectionSequence(nil), t.seq...)
}

// Snapshot returns a deep copy of the timer state.
func (t *Timer) Snapshot() Snapshot {
	t.mu.RLock()
	defer t.mu.RUnlock()

	snap := Snapshot{
		Game:       t.game,
		Status:     t.status,
		Current:    t.current,
		Run:        t.run.Clone(),
		PB:         cloneRecord(t.pb),
		SumOfBest:  cloneRecord(t.sob),
		PersistErr: t.persistErr,
	}
	if t.last != nil {
		res := *t.last
		res.PB = cloneRecord(t.last.PB)
		res.SumOfBest = t.last.SumOfBest.Clone()
		res.Golds = append([]int(nil), t.last.Golds...)
		res.Persisted = append([]string(nil), t.last.Persisted...)
		snap.LastResult = &res
	}
	return snap
}

// Board returns the display values for every section.
func (t *Timer) Board() Board {
	return Compare(t.Snapshot())
}

// startLocked requires t.mu held for writing.
func (t *Timer) startLocked() bool {
	if t.status != Idle {
		t.ignoredLocked("start")
		return false
	}

	t.clock.Reset()
	t.current = 0
	t.run = NewRecord(t.game, t.seq)
	t.run.ID = uuid.NewString()
	t.run.StartedAt = t.now()
	t.status = Running
	t.persistErr = nil
	t.last = nil
	t.pending = nil
	t.written = nil

	t.log.Info("run started",
		slog.String("game", t.game),
		slog.String("run_id", t.run.ID))
	if t.metrics != nil {
		t.metrics.IncRunsStarted()
	}
	t.setSectionGauge(0)
	return true
}

// splitLocked requires t.mu held for writing. It returns the finished run to
// persist when the last section was committed.
func (t *Timer) splitLocked() (Event, *finishedRun) {
	if t.status != Running {
		t.ignoredLocked("split")
		return EventIgnored, nil
	}

	i := t.current
	elapsed := t.elapsedLocked()
	t.run.Sections[i].Time = Millis(elapsed)
	t.current++

	gold := IsGold(t.run, t.sob, i)
	t.log.Info("split",
		slog.String("game", t.game),
		slog.String("run_id", t.run.ID),
		slog.String("section", t.run.Sections[i].Name),
		slog.Int64("time_ms", elapsed),
		slog.Bool("gold", gold))
	if t.metrics != nil {
		t.metrics.IncSplits()
		if gold {
			t.metrics.IncGoldSplits()
		}
	}

	if t.current < len(t.run.Sections) {
		t.setSectionGauge(t.current)
		return EventSplit, nil
	}

	t.status = Finished
	t.finalizing = true
	job := t.finishedLocked()
	return EventFinished, &job
}

// elapsedLocked reads the clock, never returning less than the previous
// committed time so cumulative times stay non-decreasing.
func (t *Timer) elapsedLocked() int64 {
	ms := t.clock.Elapsed()
	if t.current > 0 {
		if prev, ok := t.run.Time(t.current - 1); ok && ms < prev {
			ms = prev
		}
	}
	return ms
}

func (t *Timer) finishedLocked() finishedRun {
	return finishedRun{
		run: t.run.Clone(),
		pb:  cloneRecord(t.pb),
		sob: cloneRecord(t.sob),
	}
}

func (t *Timer) ignoredLocked(event string) {
	t.log.Debug("event ignored",
		slog.String("game", t.game),
		slog.String("event", event),
		slog.String("status", t.status.String()))
	if t.metrics != nil {
		t.metrics.IncIgnored("stray")
	}
}

func (t *Timer) setSectionGauge(i int) {
	if t.metrics != nil {
		t.metrics.SetCurrentSection(i)
	}
}

// finalize runs the merge engine without holding the lock, then moves the
// timer back to idle. On failure the finished run stays in place for Retry.
func (t *Timer) finalize(ctx context.Context, job finishedRun) error {
	res, err := t.engine.Finalize(ctx, job.run, job.pb, job.sob)

	t.mu.Lock()
	defer t.mu.Unlock()
	t.finalizing = false

	if err != nil {
		t.persistErr = err
		if res.SumOfBest.Sections != nil {
			t.pending = &res
			for _, kind := range res.Persisted {
				if !slices.Contains(t.written, kind) {
					t.written = append(t.written, kind)
				}
			}
		}
		return fmt.Errorf("finalize run %s: %w", job.run.ID, err)
	}

	t.pb = cloneRecord(res.PB)
	sob := res.SumOfBest.Clone()
	t.sob = &sob
	t.last = &res
	t.persistErr = nil
	t.pending = nil
	t.written = nil
	t.status = Idle
	t.setSectionGauge(-1)
	return nil
}

func cloneRecord(r *Record) *Record {
	if r == nil {
		return nil
	}
	c := r.Clone()
	return &c
}
