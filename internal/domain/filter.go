package domain

import (
	"errors"
	"time"
)

// QuickRange is a named rolling date range.
type QuickRange string

const (
	QuickRangeToday      QuickRange = "today"
	QuickRangeYesterday  QuickRange = "yesterday"
	QuickRangeLast7Days  QuickRange = "last_7_days"
	QuickRangeLast30Days QuickRange = "last_30_days"
	QuickRangeThisMonth  QuickRange = "this_month"
	QuickRangeLastMonth  QuickRange = "last_month"
	QuickRangeThisYear   QuickRange = "this_year"
)

// QuickRanges lists the accepted quick range tokens.
var QuickRanges = []QuickRange{
	QuickRangeToday, QuickRangeYesterday, QuickRangeLast7Days, QuickRangeLast30Days,
	QuickRangeThisMonth, QuickRangeLastMonth, QuickRangeThisYear,
}

// ErrUnknownQuickRange is returned for tokens outside QuickRanges.
var ErrUnknownQuickRange = errors.New("unknown quick range")

// Valid reports whether q is a known token.
func (q QuickRange) Valid() bool {
	for _, known := range QuickRanges {
		if q == known {
			return true
		}
	}
	return false
}

// Resolve returns the inclusive day range for q relative to now in loc.
func (q QuickRange) Resolve(now time.Time, loc *time.Location) (start, end time.Time, err error) {
	if loc == nil {
		loc = time.UTC
	}
	today := StartOfDay(now, loc)
	firstOfMonth := time.Date(today.Year(), today.Month(), 1, 0, 0, 0, 0, loc)

	switch q {
	case QuickRangeToday:
		return today, today, nil
	case QuickRangeYesterday:
		y := today.AddDate(0, 0, -1)
		return y, y, nil
	case QuickRangeLast7Days:
		return today.AddDate(0, 0, -6), today, nil
	case QuickRangeLast30Days:
		return today.AddDate(0, 0, -29), today, nil
	case QuickRangeThisMonth:
		return firstOfMonth, today, nil
	case QuickRangeLastMonth:
		return firstOfMonth.AddDate(0, -1, 0), firstOfMonth.AddDate(0, 0, -1), nil
	case QuickRangeThisYear:
		return time.Date(today.Year(), time.January, 1, 0, 0, 0, 0, loc), today, nil
	default:
		return time.Time{}, time.Time{}, ErrUnknownQuickRange
	}
}

// StartOfDay truncates t to midnight in loc.
func StartOfDay(t time.Time, loc *time.Location) time.Time {
	if loc == nil {
		loc = time.UTC
	}
	t = t.In(loc)
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, loc)
}

// FilterState is the ledger filter. Start and End are inclusive calendar
// days; a nil bound is unbounded. QuickRange and a manual range are
// mutually exclusive.
type FilterState struct {
	Start      *time.Time `json:"start,omitempty"`
	End        *time.Time `json:"end,omitempty"`
	QuickRange QuickRange `json:"quickRange,omitempty"`
	Types      []Category `json:"types"`
	Search     string     `json:"search"`
}

// HasDateRange reports whether either bound is set.
func (f FilterState) HasDateRange() bool {
	return f.Start != nil || f.End != nil
}

// Clone returns a deep copy.
func (f FilterState) Clone() FilterState {
	out := f
	if f.Start != nil {
		s := *f.Start
		out.Start = &s
	}
	if f.End != nil {
		e := *f.End
		out.End = &e
	}
	out.Types = append([]Category(nil), f.Types...)
	return out
}

// SetDateRange applies a manual range and clears the quick range token.
func (f *FilterState) SetDateRange(start, end *time.Time) {
	f.Start = copyTime(start)
	f.End = copyTime(end)
	f.QuickRange = ""
}

// SetQuickRange replaces the range with the resolved token. Unknown
// tokens leave the state untouched.
func (f *FilterState) SetQuickRange(q QuickRange, now time.Time, loc *time.Location) error {
	start, end, err := q.Resolve(now, loc)
	if err != nil {
		return err
	}
	f.Start = &start
	f.End = &end
	f.QuickRange = q
	return nil
}

// SetTypes replaces the selected categories, dropping duplicates.
func (f *FilterState) SetTypes(types []Category) {
	seen := make(map[Category]bool, len(types))
	out := make([]Category, 0, len(types))
	for _, t := range types {
		if seen[t] {
			continue
		}
		seen[t] = true
		out = append(out, t)
	}
	f.Types = out
}

// SetSearchText replaces the free-text term.
func (f *FilterState) SetSearchText(text string) {
	f.Search = text
}

// ApplyFilter returns the rows passing every predicate of state. The input
// slice is never modified. Rows without a timestamp pass the date filter.
func ApplyFilter(rows []DerivedTransactionRow, state FilterState, loc *time.Location) []DerivedTransactionRow {
	if loc == nil {
		loc = time.UTC
	}
	var types map[Category]bool
	if len(state.Types) > 0 {
		types = make(map[Category]bool, len(state.Types))
		for _, t := range state.Types {
			types[t] = true
		}
	}
	var startDay, endDay *time.Time
	if state.Start != nil {
		d := StartOfDay(*state.Start, loc)
		startDay = &d
	}
	if state.End != nil {
		d := StartOfDay(*state.End, loc)
		endDay = &d
	}

	out := make([]DerivedTransactionRow, 0, len(rows))
	for _, row := range rows {
		if types != nil && !types[row.Category] {
			continue
		}
		if !row.Contains(state.Search) {
			continue
		}
		if row.Timestamp != nil {
			day := StartOfDay(*row.Timestamp, loc)
			if startDay != nil && day.Before(*startDay) {
				continue
			}
			if endDay != nil && day.After(*endDay) {
				continue
			}
		}
		out = append(out, row)
	}
	return out
}

func copyTime(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	c := *t
	return &c
}
