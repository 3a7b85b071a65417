// Package timeline lays out same-day events as horizontal bars: events are
// packed into the fewest lanes such that no two events in a lane overlap, and
// each event gets a percentage position inside a display window.
package timeline

import (
	"cmp"
	"math"
	"slices"
)

// Event is one schedulable occurrence on a single day.
type Event struct {
	// ID is opaque and only used to key the output.
	ID string `json:"id"`
	// Start is minutes since 00:00.
	Start int `json:"start"`
	// Duration is in minutes and may be fractional.
	Duration float64 `json:"duration"`
}

// End returns Start + Duration in minutes.
func (e Event) End() float64 {
	return float64(e.Start) + e.Duration
}

// Geometry is the horizontal placement of an event inside the window,
// both values in percent of the window width.
type Geometry struct {
	StartPct float64 `json:"start_pct"`
	WidthPct float64 `json:"width_pct"`
}

// Layout is the result of Pack. Map iteration order carries no meaning;
// consumers index by event id.
type Layout struct {
	LaneOf    map[string]int      `json:"lane_of"`
	LaneCount int                 `json:"lane_count"`
	Geometry  map[string]Geometry `json:"geometry"`

	// order is the placement order (start asc, id asc).
	order []string
}

// Lanes returns event ids grouped by lane index, each lane in placement order.
func (l Layout) Lanes() [][]string {
	lanes := make([][]string, l.LaneCount)
	for _, id := range l.order {
		lane := l.LaneOf[id]
		lanes[lane] = append(lanes[lane], id)
	}
	return lanes
}

// Pack assigns every event to a lane with greedy first-fit over events sorted
// by start time, and computes its geometry inside [windowStart, windowEnd).
//
// Two events share a lane only when one ends at or before the other starts;
// touching endpoints are not an overlap. Because interval overlap graphs are
// perfect, LaneCount always equals the largest number of events running at
// the same instant, so the result uses the minimum possible number of lanes.
//
// Events that fall partly or fully outside the window are clamped in
// Geometry only; lane placement always uses their true interval.
//
// Pack never coerces bad input: it fails with *InvalidWindowError,
// *InvalidEventError or *DuplicateEventIDError.
func Pack(events []Event, windowStart, windowEnd int) (Layout, error) {
	if windowStart >= windowEnd {
		return Layout{}, &InvalidWindowError{Start: windowStart, End: windowEnd}
	}

	seen := make(map[string]struct{}, len(events))
	for _, ev := range events {
		if err := validateEvent(ev); err != nil {
			return Layout{}, err
		}
		if _, dup := seen[ev.ID]; dup {
			return Layout{}, &DuplicateEventIDError{ID: ev.ID}
		}
		seen[ev.ID] = struct{}{}
	}

	sorted := slices.Clone(events)
	slices.SortFunc(sorted, func(a, b Event) int {
		if c := cmp.Compare(a.Start, b.Start); c != 0 {
			return c
		}
		return cmp.Compare(a.ID, b.ID)
	})

	out := Layout{
		LaneOf:   make(map[string]int, len(sorted)),
		Geometry: make(map[string]Geometry, len(sorted)),
		order:    make([]string, 0, len(sorted)),
	}

	// laneEnds[i] is the end of the last event placed in lane i.
	laneEnds := make([]float64, 0, 4)
	for _, ev := range sorted {
		lane := -1
		for i, end := range laneEnds {
			if end <= float64(ev.Start) {
				lane = i
				break
			}
		}
		if lane < 0 {
			lane = len(laneEnds)
			laneEnds = append(laneEnds, 0)
		}
		laneEnds[lane] = ev.End()

		out.LaneOf[ev.ID] = lane
		out.Geometry[ev.ID] = geometryOf(ev, windowStart, windowEnd)
		out.order = append(out.order, ev.ID)
	}
	out.LaneCount = len(laneEnds)

	return out, nil
}

func validateEvent(ev Event) error {
	switch {
	case ev.ID == "":
		return &InvalidEventError{Reason: "missing id"}
	case ev.Start < 0:
		return &InvalidEventError{ID: ev.ID, Reason: "start must be >= 0"}
	case math.IsNaN(ev.Duration) || math.IsInf(ev.Duration, 0):
		return &InvalidEventError{ID: ev.ID, Reason: "duration is not a finite number"}
	case ev.Duration <= 0:
		return &InvalidEventError{ID: ev.ID, Reason: "duration must be > 0"}
	}
	return nil
}

// geometryOf maps an event onto the window as percentages.
func geometryOf(ev Event, windowStart, windowEnd int) Geometry {
	span := float64(windowEnd - windowStart)
	start := float64(ev.Start)

	startPct := clamp((start-float64(windowStart))/span*100, 0, 100)
	visibleFrom := math.Max(start, float64(windowStart))
	widthPct := clamp((ev.End()-visibleFrom)/span*100, 0, 100-startPct)

	return Geometry{StartPct: startPct, WidthPct: widthPct}
}

func clamp(v, lo, hi float64) float64 {
	return math.Min(math.Max(v, lo), hi)
}
