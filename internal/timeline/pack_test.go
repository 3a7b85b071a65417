package timeline

import (
	"errors"
	"fmt"
	"math/rand"
	"reflect"
	"sort"
	"testing"
)

func TestPack_scenarios(t *testing.T) {
	tests := []struct {
		name          string
		events        []Event
		ws, we        int
		wantLaneCount int
		wantLanes     [][]string
	}{
		{
			name:          "empty input",
			ws:            0,
			we:            840,
			wantLaneCount: 0,
			wantLanes:     [][]string{},
		},
		{
			name: "touching endpoints share a lane",
			events: []Event{
				{ID: "A", Start: 60, Duration: 60},
				{ID: "B", Start: 90, Duration: 60},
				{ID: "C", Start: 120, Duration: 60},
			},
			ws:            0,
			we:            840,
			wantLaneCount: 2,
			wantLanes:     [][]string{{"A", "C"}, {"B"}},
		},
		{
			name: "unordered input",
			events: []Event{
				{ID: "C", Start: 120, Duration: 60},
				{ID: "B", Start: 90, Duration: 60},
				{ID: "A", Start: 60, Duration: 60},
			},
			ws:            0,
			we:            840,
			wantLaneCount: 2,
			wantLanes:     [][]string{{"A", "C"}, {"B"}},
		},
		{
			name: "same start ties broken by id",
			events: []Event{
				{ID: "b", Start: 600, Duration: 30},
				{ID: "a", Start: 600, Duration: 90},
				{ID: "c", Start: 630, Duration: 30},
			},
			ws:            480,
			we:            1320,
			wantLaneCount: 2,
			wantLanes:     [][]string{{"a"}, {"b", "c"}},
		},
		{
			name: "first-fit reuses lowest free lane",
			events: []Event{
				{ID: "1", Start: 0, Duration: 100},
				{ID: "2", Start: 10, Duration: 20},
				{ID: "3", Start: 20, Duration: 100},
				{ID: "4", Start: 40, Duration: 10},
			},
			ws:            0,
			we:            200,
			wantLaneCount: 3,
			wantLanes:     [][]string{{"1"}, {"2", "4"}, {"3"}},
		},
		{
			name: "fractional durations",
			events: []Event{
				{ID: "x", Start: 540, Duration: 45.5},
				{ID: "y", Start: 585, Duration: 30},
			},
			ws:            480,
			we:            1320,
			wantLaneCount: 2,
			wantLanes:     [][]string{{"x"}, {"y"}},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := Pack(tt.events, tt.ws, tt.we)
			if err != nil {
				t.Fatalf("Pack() error = %v", err)
			}
			if got.LaneCount != tt.wantLaneCount {
				t.Errorf("LaneCount = %d, want %d", got.LaneCount, tt.wantLaneCount)
			}
			if lanes := got.Lanes(); !reflect.DeepEqual(lanes, tt.wantLanes) {
				t.Errorf("Lanes() = %v, want %v", lanes, tt.wantLanes)
			}
			if len(got.LaneOf) != len(tt.events) || len(got.Geometry) != len(tt.events) {
				t.Errorf("map sizes = %d/%d, want %d", len(got.LaneOf), len(got.Geometry), len(tt.events))
			}
		})
	}
}

func TestPack_emptyMapsNotNil(t *testing.T) {
	got, err := Pack(nil, 480, 1320)
	if err != nil {
		t.Fatalf("Pack() error = %v", err)
	}
	if got.LaneOf == nil || got.Geometry == nil {
		t.Fatalf("Pack(nil) returned nil maps: %+v", got)
	}
}

func TestPack_geometry(t *testing.T) {
	const ws, we = 480, 1320 // 08:00-22:00
	tests := []struct {
		name  string
		event Event
		want  Geometry
	}{
		{name: "whole window", event: Event{ID: "w", Start: ws, Duration: we - ws}, want: Geometry{StartPct: 0, WidthPct: 100}},
		{name: "first hour", event: Event{ID: "h", Start: ws, Duration: 84}, want: Geometry{StartPct: 0, WidthPct: 10}},
		{name: "mid window", event: Event{ID: "m", Start: ws + 420, Duration: 84}, want: Geometry{StartPct: 50, WidthPct: 10}},
		{name: "starts before window", event: Event{ID: "b", Start: ws - 60, Duration: 144}, want: Geometry{StartPct: 0, WidthPct: 10}},
		{name: "ends after window", event: Event{ID: "e", Start: we - 84, Duration: 240}, want: Geometry{StartPct: 90, WidthPct: 10}},
		{name: "covers more than window", event: Event{ID: "c", Start: 0, Duration: 1440}, want: Geometry{StartPct: 0, WidthPct: 100}},
		{name: "after window", event: Event{ID: "a", Start: we + 30, Duration: 60}, want: Geometry{StartPct: 100, WidthPct: 0}},
		{name: "before window", event: Event{ID: "p", Start: 60, Duration: 60}, want: Geometry{StartPct: 0, WidthPct: 0}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := Pack([]Event{tt.event}, ws, we)
			if err != nil {
				t.Fatalf("Pack() error = %v", err)
			}
			g := got.Geometry[tt.event.ID]
			if !almostEqual(g.StartPct, tt.want.StartPct) || !almostEqual(g.WidthPct, tt.want.WidthPct) {
				t.Errorf("Geometry = %+v, want %+v", g, tt.want)
			}
		})
	}
}

func TestPack_outsideWindowStillOccupiesLane(t *testing.T) {
	events := []Event{
		{ID: "late", Start: 1380, Duration: 60},
		{ID: "later", Start: 1400, Duration: 20},
	}
	got, err := Pack(events, 480, 1320)
	if err != nil {
		t.Fatalf("Pack() error = %v", err)
	}
	if got.LaneCount != 2 {
		t.Fatalf("LaneCount = %d, want 2", got.LaneCount)
	}
	if got.LaneOf["late"] == got.LaneOf["later"] {
		t.Errorf("overlapping events outside the window share lane %d", got.LaneOf["late"])
	}
	for id, g := range got.Geometry {
		if g.WidthPct != 0 {
			t.Errorf("Geometry[%s].WidthPct = %v, want 0", id, g.WidthPct)
		}
	}
}

func TestPack_errors(t *testing.T) {
	tests := []struct {
		name    string
		events  []Event
		ws, we  int
		wantErr any
		wantID  string
	}{
		{name: "window start equals end", ws: 600, we: 600, wantErr: new(*InvalidWindowError)},
		{name: "window reversed", ws: 900, we: 600, wantErr: new(*InvalidWindowError)},
		{name: "zero duration", events: []Event{{ID: "z", Start: 600}}, ws: 0, we: 1440, wantErr: new(*InvalidEventError), wantID: "z"},
		{name: "negative duration", events: []Event{{ID: "n", Start: 600, Duration: -5}}, ws: 0, we: 1440, wantErr: new(*InvalidEventError), wantID: "n"},
		{name: "negative start", events: []Event{{ID: "s", Start: -1, Duration: 5}}, ws: 0, we: 1440, wantErr: new(*InvalidEventError), wantID: "s"},
		{name: "missing id", events: []Event{{Start: 1, Duration: 5}}, ws: 0, we: 1440, wantErr: new(*InvalidEventError)},
		{
			name:    "duplicate id",
			events:  []Event{{ID: "d", Start: 0, Duration: 5}, {ID: "d", Start: 100, Duration: 5}},
			ws:      0,
			we:      1440,
			wantErr: new(*DuplicateEventIDError),
			wantID:  "d",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Pack(tt.events, tt.ws, tt.we)
			if err == nil {
				t.Fatal("Pack() error = nil, want error")
			}
			if !errors.As(err, tt.wantErr) {
				t.Fatalf("Pack() error = %T %v, want %T", err, err, tt.wantErr)
			}
			switch e := err.(type) {
			case *InvalidEventError:
				if e.ID != tt.wantID {
					t.Errorf("InvalidEventError.ID = %q, want %q", e.ID, tt.wantID)
				}
			case *DuplicateEventIDError:
				if e.ID != tt.wantID {
					t.Errorf("DuplicateEventIDError.ID = %q, want %q", e.ID, tt.wantID)
				}
			}
		})
	}
}

// Random interval sets: no lane holds overlapping events, lane count equals
// the brute-force maximum overlap, geometry stays inside the window and the
// output does not depend on input order.
func TestPack_randomProperties(t *testing.T) {
	rnd := rand.New(rand.NewSource(42))
	const ws, we = 480, 1320

	for round := 0; round < 300; round++ {
		n := rnd.Intn(25)
		events := make([]Event, n)
		for i := range events {
			events[i] = Event{
				ID:       fmt.Sprintf("e%02d", i),
				Start:    rnd.Intn(1440),
				Duration: float64(1 + rnd.Intn(180)),
			}
		}

		got, err := Pack(events, ws, we)
		if err != nil {
			t.Fatalf("round %d: Pack() error = %v", round, err)
		}

		if want := maxOverlap(events); got.LaneCount != want {
			t.Fatalf("round %d: LaneCount = %d, brute-force max overlap = %d", round, got.LaneCount, want)
		}

		byID := make(map[string]Event, n)
		for _, ev := range events {
			byID[ev.ID] = ev
		}
		for _, lane := range got.Lanes() {
			for i := 0; i < len(lane); i++ {
				for j := i + 1; j < len(lane); j++ {
					a, b := byID[lane[i]], byID[lane[j]]
					if float64(a.Start) < b.End() && float64(b.Start) < a.End() {
						t.Fatalf("round %d: %v and %v overlap in the same lane", round, a, b)
					}
				}
			}
		}

		for id, g := range got.Geometry {
			if g.StartPct < 0 || g.StartPct > 100 || g.WidthPct < 0 || g.StartPct+g.WidthPct > 100+1e-9 {
				t.Fatalf("round %d: Geometry[%s] = %+v out of bounds", round, id, g)
			}
		}

		shuffled := append([]Event(nil), events...)
		rnd.Shuffle(len(shuffled), func(i, j int) { shuffled[i], shuffled[j] = shuffled[j], shuffled[i] })
		again, err := Pack(shuffled, ws, we)
		if err != nil {
			t.Fatalf("round %d: Pack(shuffled) error = %v", round, err)
		}
		if !reflect.DeepEqual(got.LaneOf, again.LaneOf) || !reflect.DeepEqual(got.Geometry, again.Geometry) {
			t.Fatalf("round %d: Pack is not deterministic under reordering", round)
		}
	}
}

// maxOverlap counts the largest number of half-open intervals covering any
// single point. It only needs to look at event start points.
func maxOverlap(events []Event) int {
	best := 0
	for _, p := range events {
		at := float64(p.Start)
		n := 0
		for _, ev := range events {
			if float64(ev.Start) <= at && at < ev.End() {
				n++
			}
		}
		if n > best {
			best = n
		}
	}
	return best
}

func TestLayout_Lanes(t *testing.T) {
	events := []Event{
		{ID: "m", Start: 600, Duration: 60},
		{ID: "k", Start: 540, Duration: 120},
		{ID: "z", Start: 660, Duration: 30},
	}
	got, err := Pack(events, 480, 1320)
	if err != nil {
		t.Fatalf("Pack() error = %v", err)
	}
	lanes := got.Lanes()
	var flat []string
	for _, l := range lanes {
		flat = append(flat, l...)
	}
	sort.Strings(flat)
	if !reflect.DeepEqual(flat, []string{"k", "m", "z"}) {
		t.Errorf("Lanes() lost events: %v", lanes)
	}
	if !reflect.DeepEqual(lanes, [][]string{{"k", "z"}, {"m"}}) {
		t.Errorf("Lanes() = %v", lanes)
	}
}

func almostEqual(a, b float64) bool {
	d := a - b
	return d < 1e-9 && d > -1e-9
}
