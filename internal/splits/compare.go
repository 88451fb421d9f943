package splits

import "fmt"

// Placeholders for values that should exist but do not.
const (
	MissingTime  = "--:--"
	MissingDelta = "(--:--)"
)

// Indicator classifies a row for colour selection by the presentation layer.
type Indicator int

const (
	Normal Indicator = iota
	// AheadOfBest marks a gold segment: faster than the sum of best segment.
	AheadOfBest
	// Behind marks a cumulative time slower than the personal best.
	Behind
)

func (i Indicator) String() string {
	switch i {
	case AheadOfBest:
		return "ahead-of-best"
	case Behind:
		return "behind"
	default:
		return "normal"
	}
}

// MarshalText lets Indicator appear by name in JSON.
func (i Indicator) MarshalText() ([]byte, error) {
	return []byte(i.String()), nil
}

// Row is the display data of one section.
type Row struct {
	Name         string    `json:"name"`
	PB           string    `json:"pb"`
	Total        string    `json:"total"`
	TotalDelta   string    `json:"total_delta"`
	Section      string    `json:"section"`
	SectionDelta string    `json:"section_delta"`
	Projected    string    `json:"projected"`
	Indicator    Indicator `json:"indicator"`

	TotalDeltaMS   *int64 `json:"total_delta_ms,omitempty"`
	SectionDeltaMS *int64 `json:"section_delta_ms,omitempty"`
}

// Board is everything a presentation adapter needs for one frame.
type Board struct {
	Game      string `json:"game"`
	Status    Status `json:"status"`
	Current   int    `json:"current"`
	LossSoFar int64  `json:"loss_so_far_ms"`
	Rows      []Row  `json:"rows"`
}

// FormatTime renders ms as M:SS. Minutes are unpadded and the sub-second
// part is truncated.
func FormatTime(ms int64) string {
	if ms < 0 {
		return "-" + FormatTime(-ms)
	}
	return fmt.Sprintf("%d:%02d", ms/60000, (ms/1000)%60)
}

// FormatDelta renders a signed difference as (+M:SS) or (-M:SS).
func FormatDelta(ms int64) string {
	sign := "+"
	if ms < 0 {
		sign = "-"
		ms = -ms
	}
	return fmt.Sprintf("(%s%d:%02d)", sign, ms/60000, (ms/1000)%60)
}

// DeltaTotal is the current cumulative time at i minus the personal best's.
func DeltaTotal(cur Record, pb *Record, i int) (int64, bool) {
	if pb == nil {
		return 0, false
	}
	c, ok := cur.Time(i)
	if !ok {
		return 0, false
	}
	p, ok := pb.Time(i)
	if !ok {
		return 0, false
	}
	return c - p, true
}

// DeltaSection is the current segment time at i minus the personal best's.
func DeltaSection(cur Record, pb *Record, i int) (int64, bool) {
	if pb == nil {
		return 0, false
	}
	c, ok := cur.Segment(i)
	if !ok {
		return 0, false
	}
	p, ok := pb.Segment(i)
	if !ok {
		return 0, false
	}
	return c - p, true
}

// IsGold reports whether the current segment at i is strictly faster than
// the sum of best segment.
func IsGold(cur Record, sob *Record, i int) bool {
	if sob == nil {
		return false
	}
	c, ok := cur.Segment(i)
	if !ok {
		return false
	}
	s, ok := sob.Segment(i)
	return ok && c < s
}

// LossSoFar is the largest deficit against the sum of best over the
// committed sections before current. It starts at zero and only grows: a
// later fast section does not give back time already lost.
func LossSoFar(cur Record, sob *Record, current int) int64 {
	if sob == nil {
		return 0
	}
	var loss int64
	for j := 0; j < current && j < len(cur.Sections); j++ {
		c, ok := cur.Time(j)
		if !ok {
			continue
		}
		s, ok := sob.Time(j)
		if !ok {
			continue
		}
		if d := c - s; d > loss {
			loss = d
		}
	}
	return loss
}

// Compare derives the display board from a timer snapshot.
func Compare(snap Snapshot) Board {
	cur := snap.Run
	loss := LossSoFar(cur, snap.SumOfBest, snap.Current)

	b := Board{
		Game:      snap.Game,
		Status:    snap.Status,
		Current:   snap.Current,
		LossSoFar: loss,
		Rows:      make([]Row, len(cur.Sections)),
	}

	for i, s := range cur.Sections {
		row := Row{Name: s.Name}

		var pbTime *int64
		if snap.PB != nil {
			if t, ok := snap.PB.Time(i); ok {
				pbTime = &t
			}
		}
		row.PB = formatAt(i, snap.Current, pbTime, FormatTime, MissingTime)
		row.Total = formatAt(i, snap.Current, s.Time, FormatTime, MissingTime)

		var seg *int64
		if v, ok := cur.Segment(i); ok {
			seg = &v
		}
		row.Section = formatAt(i, snap.Current, seg, FormatTime, MissingTime)

		if d, ok := DeltaTotal(cur, snap.PB, i); ok {
			row.TotalDeltaMS = &d
		}
		row.TotalDelta = formatAt(i, snap.Current, row.TotalDeltaMS, FormatDelta, MissingDelta)

		if d, ok := DeltaSection(cur, snap.PB, i); ok {
			row.SectionDeltaMS = &d
		}
		row.SectionDelta = formatAt(i, snap.Current, row.SectionDeltaMS, FormatDelta, MissingDelta)

		if i >= snap.Current && snap.SumOfBest != nil {
			if t, ok := snap.SumOfBest.Time(i); ok {
				row.Projected = FormatTime(t + loss)
			}
		}

		switch {
		case IsGold(cur, snap.SumOfBest, i):
			row.Indicator = AheadOfBest
		case row.TotalDeltaMS != nil && *row.TotalDeltaMS > 0:
			row.Indicator = Behind
		}

		b.Rows[i] = row
	}
	return b
}

// formatAt renders v, or for a missing value: blank when the section has not
// been reached and the placeholder when it should have data.
func formatAt(i, current int, v *int64, format func(int64) string, missing string) string {
	if v != nil {
		return format(*v)
	}
	if i < current {
		return missing
	}
	return ""
}
