package splits

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
)

// MergeResult is the outcome of merging one finished run into the records.
type MergeResult struct {
	NewPB bool
	// PB is the personal best after the merge: the run itself when NewPB,
	// otherwise the previous personal best.
	PB *Record
	// SumOfBest is the rebuilt sum of best.
	SumOfBest Record
	// Golds lists the indices where the run beat the previous sum of best.
	Golds []int
	// Persisted lists the record kinds Finalize wrote successfully.
	Persisted []string
}

// IsNewPB reports whether run beats pb. Ties are not a new personal best.
// A missing personal best, or one without a final time, is always beaten.
func IsNewPB(run Record, pb *Record) bool {
	final, ok := run.Final()
	if !ok {
		return false
	}
	if pb == nil {
		return true
	}
	pbFinal, ok := pb.Final()
	if !ok {
		return true
	}
	return final < pbFinal
}

// MergeSumOfBest rebuilds the sum of best from the previous one (may be nil)
// and a complete run. Every segment becomes the minimum of the run's segment
// and the previous best segment; a previous segment with no data counts as
// infinitely slow. Cumulative times are the running total of those segments.
func MergeSumOfBest(run Record, sob *Record) (Record, []int) {
	out := NewRecord(run.Game, run.Sequence())
	out.StartedAt = run.StartedAt

	var total int64
	var golds []int
	for i := range run.Sections {
		seg, _ := run.Segment(i)
		if sob != nil {
			if old, ok := sob.Segment(i); ok {
				if old <= seg {
					seg = old
				} else {
					golds = append(golds, i)
				}
			}
		}
		total += seg
		out.Sections[i].Time = Millis(total)
	}
	return out, golds
}

// Merge computes the new records for a finished run without touching storage.
func Merge(run Record, pb, sob *Record) (MergeResult, error) {
	if err := run.CheckComplete(); err != nil {
		return MergeResult{}, err
	}
	seq := run.Sequence()
	if pb != nil {
		if err := pb.Validate(seq); err != nil {
			return MergeResult{}, fmt.Errorf("personal best: %w", err)
		}
	}
	if sob != nil {
		if err := sob.Validate(seq); err != nil {
			return MergeResult{}, fmt.Errorf("sum of best: %w", err)
		}
	}

	res := MergeResult{NewPB: IsNewPB(run, pb), PB: pb}
	if res.NewPB {
		c := run.Clone()
		res.PB = &c
	}
	res.SumOfBest, res.Golds = MergeSumOfBest(run, sob)
	return res, nil
}

// MergeMetrics is the subset of metrics the engine reports to. It is
// satisfied by *metrics.Metrics.
type MergeMetrics interface {
	IncRunsFinished()
	IncPersonalBests()
	IncPersistFailures(record string)
}

// Engine merges finished runs into the stored records.
type Engine struct {
	store   RecordStore
	log     *slog.Logger
	metrics MergeMetrics
}

// NewEngine returns an Engine persisting to store. m may be nil.
func NewEngine(store RecordStore, log *slog.Logger, m MergeMetrics) *Engine {
	if log == nil {
		log = slog.New(slog.DiscardHandler)
	}
	return &Engine{store: store, log: log, metrics: m}
}

// Finalize merges run into pb and sob and writes the personal best (when
// beaten), the history entry and the sum of best. All three writes are
// attempted; their failures are joined and returned with the computed result,
// whose Persisted field names the writes that did land, so the caller keeps
// the run and may call Finalize again. Rewriting is
// idempotent because history is keyed by the run's start time.
func (e *Engine) Finalize(ctx context.Context, run Record, pb, sob *Record) (MergeResult, error) {
	res, err := Merge(run, pb, sob)
	if err != nil {
		return MergeResult{}, err
	}

	var errs []error
	write := func(kind string, err error) {
		if err != nil {
			errs = append(errs, e.persistFailed(kind, run, err))
			return
		}
		res.Persisted = append(res.Persisted, kind)
	}
	if res.NewPB {
		write(KindPB, e.store.PersistPB(ctx, run))
	}
	write(KindHistory, e.store.PersistHistory(ctx, run))
	write(KindSumOfBest, e.store.PersistSumOfBest(ctx, res.SumOfBest))
	if len(errs) > 0 {
		return res, errors.Join(errs...)
	}

	final, _ := run.Final()
	e.log.Info("run finalized",
		slog.String("game", run.Game),
		slog.String("run_id", run.ID),
		slog.Int64("final_ms", final),
		slog.Bool("new_pb", res.NewPB),
		slog.Int("golds", len(res.Golds)))
	if e.metrics != nil {
		e.metrics.IncRunsFinished()
		if res.NewPB {
			e.metrics.IncPersonalBests()
		}
	}
	return res, nil
}

func (e *Engine) persistFailed(kind string, run Record, err error) error {
	e.log.Error("persist failed",
		slog.String("record", kind),
		slog.String("game", run.Game),
		slog.String("run_id", run.ID),
		slog.String("error", err.Error()))
	if e.metrics != nil {
		e.metrics.IncPersistFailures(kind)
	}
	return fmt.Errorf("persist %s: %w", kind, err)
}
