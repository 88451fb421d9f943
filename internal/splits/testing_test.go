package splits

import (
	"testing"
	"time"
)

var testSeq = SectionSequence{"A", "B", "C"}

// recordWith builds a record for testSeq; a negative value leaves the time absent.
func recordWith(game string, times ...int64) *Record {
	rec := NewRecord(game, testSeq)
	for i, ms := range times {
		if ms >= 0 {
			rec.Sections[i].Time = Millis(ms)
		}
	}
	return &rec
}

func times(r *Record) []int64 {
	out := make([]int64, len(r.Sections))
	for i, s := range r.Sections {
		if s.Time == nil {
			out[i] = -1
			continue
		}
		out[i] = *s.Time
	}
	return out
}

func newTestTimer(t *testing.T, pb, sob *Record) (*Timer, *ManualClock, *InMemoryStore) {
	t.Helper()
	store := NewInMemoryStore()
	clock := &ManualClock{}
	start := time.Date(2026, 10, 17, 12, 0, 0, 0, time.UTC)
	timer, err := NewTimer(TimerConfig{
		Game:      "g",
		Sequence:  testSeq,
		Engine:    NewEngine(store, nil, nil),
		PB:        pb,
		SumOfBest: sob,
		Clock:     clock,
		Now: func() time.Time {
			start = start.Add(time.Minute)
			return start
		},
	})
	if err != nil {
		t.Fatalf("NewTimer: %v", err)
	}
	return timer, clock, store
}
