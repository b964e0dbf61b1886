package audit

import (
	"cmp"
	"slices"
	"time"
)

// Filter narrows a trail. An empty filter matches everything.
type Filter struct {
	EventTypes []EventType
}

func (f Filter) Match(e Event) bool {
	return len(f.EventTypes) == 0 || slices.Contains(f.EventTypes, e.Type)
}

// NewestFirst returns a copy ordered by descending sequence.
func NewestFirst(events []Event) []Event {
	out := slices.Clone(events)
	slices.SortStableFunc(out, func(a, b Event) int { return cmp.Compare(b.Sequence, a.Sequence) })
	return out
}

// Oldest returns a copy ordered by ascending sequence.
func Oldest(events []Event) []Event {
	out := slices.Clone(events)
	slices.SortStableFunc(out, func(a, b Event) int { return cmp.Compare(a.Sequence, b.Sequence) })
	return out
}

// View applies f and returns the matching events newest-first.
func View(events []Event, f Filter) []Event {
	out := make([]Event, 0, len(events))
	for _, e := range events {
		if f.Match(e) {
			out = append(out, e)
		}
	}
	return NewestFirst(out)
}

// DayGroup is the events of one UTC calendar day.
type DayGroup struct {
	Date   string  `json:"date"`
	Events []Event `json:"events"`
}

// GroupByDate buckets events by UTC day, keeping the input order both across
// and within groups.
func GroupByDate(events []Event) []DayGroup {
	var groups []DayGroup
	index := make(map[string]int)
	for _, e := range events {
		day := e.Timestamp.UTC().Format(time.DateOnly)
		i, ok := index[day]
		if !ok {
			i = len(groups)
			index[day] = i
			groups = append(groups, DayGroup{Date: day})
		}
		groups[i].Events = append(groups[i].Events, e)
	}
	return groups
}
