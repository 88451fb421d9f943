package splits

import (
	"fmt"
	"time"
)

// SectionSequence is the ordered list of checkpoint names that defines a
// game's run shape. Records are only comparable when their sequences are Equal.
type SectionSequence []string

// Equal reports whether both sequences have the same names in the same order.
func (s SectionSequence) Equal(other SectionSequence) bool {
	if len(s) != len(other) {
		return false
	}
	for i := range s {
		if s[i] != other[i] {
			return false
		}
	}
	return true
}

// Validate rejects empty sequences, blank names and duplicate names.
func (s SectionSequence) Validate() error {
	if len(s) == 0 {
		return fmt.Errorf("%w: no sections", ErrInvalidSequence)
	}
	seen := make(map[string]struct{}, len(s))
	for i, name := range s {
		if name == "" {
			return fmt.Errorf("%w: section %d has no name", ErrInvalidSequence, i)
		}
		if _, dup := seen[name]; dup {
			return fmt.Errorf("%w: duplicate section %q", ErrInvalidSequence, name)
		}
		seen[name] = struct{}{}
	}
	return nil
}

// Section is one checkpoint of a record. Time is the cumulative elapsed time
// in milliseconds from run start; nil means not reached or no data.
type Section struct {
	Name string `json:"name" yaml:"name"`
	Time *int64 `json:"time,omitempty" yaml:"time,omitempty"`
}

// Record is the persisted shape shared by the personal best, the sum of best
// and history entries.
type Record struct {
	Game      string    `json:"game" yaml:"game"`
	ID        string    `json:"id,omitempty" yaml:"id,omitempty"`
	StartedAt time.Time `json:"started_at" yaml:"started_at"`
	Sections  []Section `json:"sections" yaml:"sections"`
}

// NewRecord returns a record for seq with every time absent.
func NewRecord(game string, seq SectionSequence) Record {
	secs := make([]Section, len(seq))
	for i, name := range seq {
		secs[i] = Section{Name: name}
	}
	return Record{Game: game, Sections: secs}
}

// Sequence derives the section names of r.
func (r Record) Sequence() SectionSequence {
	seq := make(SectionSequence, len(r.Sections))
	for i, s := range r.Sections {
		seq[i] = s.Name
	}
	return seq
}

// Validate returns ErrConfigMismatch if r does not have exactly the sections of seq.
func (r Record) Validate(seq SectionSequence) error {
	if len(r.Sections) != len(seq) {
		return fmt.Errorf("%w: record has %d sections, configured %d",
			ErrConfigMismatch, len(r.Sections), len(seq))
	}
	for i, s := range r.Sections {
		if s.Name != seq[i] {
			return fmt.Errorf("%w: section %d is %q, configured %q",
				ErrConfigMismatch, i, s.Name, seq[i])
		}
	}
	return nil
}

// Time returns the cumulative time at i.
func (r Record) Time(i int) (int64, bool) {
	if i < 0 || i >= len(r.Sections) || r.Sections[i].Time == nil {
		return 0, false
	}
	return *r.Sections[i].Time, true
}

// Segment returns the time spent in section i alone. The cumulative time
// before section 0 is zero.
func (r Record) Segment(i int) (int64, bool) {
	cur, ok := r.Time(i)
	if !ok {
		return 0, false
	}
	if i == 0 {
		return cur, true
	}
	prev, ok := r.Time(i - 1)
	if !ok {
		return 0, false
	}
	return cur - prev, true
}

// Final returns the cumulative time of the last section.
func (r Record) Final() (int64, bool) {
	return r.Time(len(r.Sections) - 1)
}

// CheckComplete returns ErrIncompleteRun unless every section has a time and
// the times never decrease.
func (r Record) CheckComplete() error {
	if len(r.Sections) == 0 {
		return fmt.Errorf("%w: no sections", ErrIncompleteRun)
	}
	var prev int64
	for i, s := range r.Sections {
		if s.Time == nil {
			return fmt.Errorf("%w: section %q has no time", ErrIncompleteRun, s.Name)
		}
		if *s.Time < prev {
			return fmt.Errorf("%w: section %d time %d before previous %d", ErrIncompleteRun, i, *s.Time, prev)
		}
		prev = *s.Time
	}
	return nil
}

// Clone returns a deep copy; time pointers are not shared.
func (r Record) Clone() Record {
	out := r
	out.Sections = make([]Section, len(r.Sections))
	for i, s := range r.Sections {
		out.Sections[i] = Section{Name: s.Name}
		if s.Time != nil {
			out.Sections[i].Time = Millis(*s.Time)
		}
	}
	return out
}

// Millis returns a pointer to ms, for building Section values.
func Millis(ms int64) *int64 {
	return &ms
}

// Status is the lifecycle state of the current run.
type Status int

const (
	Idle Status = iota
	Running
	Finished
)

func (s Status) String() string {
	switch s {
	case Idle:
		return "idle"
	case Running:
		return "running"
	case Finished:
		return "finished"
	default:
		return fmt.Sprintf("status(%d)", int(s))
	}
}

// MarshalText lets Status appear by name in JSON.
func (s Status) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}
