package splits

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
)

// Record kinds, used in logs, metrics and store layouts.
const (
	KindPB        = "pb"
	KindSumOfBest = "sum_of_best"
	KindHistory   = "history"
)

// RecordStore is the persistence abstraction for a game's records.
// Implementations can be in-memory, file-based, or a database.
//
// Load validates each record against seq and reports ErrConfigMismatch or
// ErrMalformedRecord per record: a bad personal best does not prevent the sum
// of best from loading. Missing records are not errors; they come back nil.
type RecordStore interface {
	LoadSequence(ctx context.Context, game string) (SectionSequence, error)
	SaveSequence(ctx context.Context, game string, seq SectionSequence) error
	Games(ctx context.Context) ([]string, error)

	Load(ctx context.Context, game string, seq SectionSequence) (pb, sumOfBest *Record, err error)
	PersistHistory(ctx context.Context, run Record) error
	PersistPB(ctx context.Context, run Record) error
	PersistSumOfBest(ctx context.Context, sob Record) error

	// History returns the finished runs of game, newest first.
	History(ctx context.Context, game string) ([]Record, error)
}

// CheckLoaded validates a freshly read record against seq, returning nil for
// a nil record. kind names the record in the error.
func CheckLoaded(kind string, rec *Record, seq SectionSequence) (*Record, error) {
	if rec == nil {
		return nil, nil
	}
	if err := rec.Validate(seq); err != nil {
		return nil, fmt.Errorf("load %s: %w", kind, err)
	}
	return rec, nil
}

// InMemoryStore is an in-memory implementation of RecordStore.
type InMemoryStore struct {
	mu        sync.Mutex
	sequences map[string]SectionSequence
	pbs       map[string]Record
	sobs      map[string]Record
	history   map[string][]Record
	writeErrs map[string]error
}

// NewInMemoryStore returns a new empty in-memory store.
func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{
		sequences: make(map[string]SectionSequence),
		pbs:       make(map[string]Record),
		sobs:      make(map[string]Record),
		history:   make(map[string][]Record),
		writeErrs: make(map[string]error),
	}
}

// FailWrites makes every write of kind return err until cleared with a nil err.
func (s *InMemoryStore) FailWrites(kind string, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err == nil {
		delete(s.writeErrs, kind)
		return
	}
	s.writeErrs[kind] = err
}

// LoadSequence implements RecordStore.LoadSequence.
func (s *InMemoryStore) LoadSequence(_ context.Context, game string) (SectionSequence, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	seq, ok := s.sequences[game]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownGame, game)
	}
	return append(SectionSequence(nil), seq...), nil
}

// SaveSequence implements RecordStore.SaveSequence.
func (s *InMemoryStore) SaveSequence(_ context.Context, game string, seq SectionSequence) error {
	if err := seq.Validate(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sequences[game] = append(SectionSequence(nil), seq...)
	return nil
}

// Games implements RecordStore.Games.
func (s *InMemoryStore) Games(_ context.Context) ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	games := make([]string, 0, len(s.sequences))
	for g := range s.sequences {
		games = append(games, g)
	}
	sort.Strings(games)
	return games, nil
}

// Load implements RecordStore.Load.
func (s *InMemoryStore) Load(_ context.Context, game string, seq SectionSequence) (*Record, *Record, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var pb, sob *Record
	if r, ok := s.pbs[game]; ok {
		c := r.Clone()
		pb = &c
	}
	if r, ok := s.sobs[game]; ok {
		c := r.Clone()
		sob = &c
	}

	pb, pbErr := CheckLoaded(KindPB, pb, seq)
	sob, sobErr := CheckLoaded(KindSumOfBest, sob, seq)
	return pb, sob, errors.Join(pbErr, sobErr)
}

// PersistHistory implements RecordStore.PersistHistory. A run with the same
// start time replaces the earlier entry.
func (s *InMemoryStore) PersistHistory(_ context.Context, run Record) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.writeErrs[KindHistory]; err != nil {
		return err
	}
	runs := s.history[run.Game]
	for i, r := range runs {
		if r.StartedAt.Equal(run.StartedAt) {
			runs[i] = run.Clone()
			return nil
		}
	}
	s.history[run.Game] = append(runs, run.Clone())
	return nil
}

// PersistPB implements RecordStore.PersistPB.
func (s *InMemoryStore) PersistPB(_ context.Context, run Record) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.writeErrs[KindPB]; err != nil {
		return err
	}
	s.pbs[run.Game] = run.Clone()
	return nil
}

// PersistSumOfBest implements RecordStore.PersistSumOfBest.
func (s *InMemoryStore) PersistSumOfBest(_ context.Context, sob Record) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.writeErrs[KindSumOfBest]; err != nil {
		return err
	}
	s.sobs[sob.Game] = sob.Clone()
	return nil
}

// History implements RecordStore.History.
func (s *InMemoryStore) History(_ context.Context, game string) ([]Record, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	runs := make([]Record, 0, len(s.history[game]))
	for _, r := range s.history[game] {
		runs = append(runs, r.Clone())
	}
	sort.Slice(runs, func(i, j int) bool { return runs[i].StartedAt.After(runs[j].StartedAt) })
	return runs, nil
}
