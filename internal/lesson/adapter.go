// Package lesson converts API lessons into timeline events and computes the
// day-level aggregates shown next to the timeline.
package lesson

import (
	"math"
	"strconv"

	"tutorcal/internal/model"
	"tutorcal/internal/timeline"
)

// EventID returns the timeline event id used for a lesson.
func EventID(l model.Lesson) string {
	return strconv.Itoa(l.ID)
}

// Window returns the lesson's [start, end) in minutes since 00:00.
func Window(l model.Lesson) (start int, end float64, err error) {
	if l.StartTime == "" {
		return 0, 0, &timeline.InvalidEventError{ID: EventID(l), Reason: "missing start_time"}
	}
	start, err = timeline.ParseClock(l.StartTime)
	if err != nil {
		return 0, 0, &timeline.InvalidEventError{ID: EventID(l), Reason: err.Error()}
	}
	return start, float64(start) + DurationMinutes(l), nil
}

// DurationMinutes converts the lesson's decimal hours into minutes.
func DurationMinutes(l model.Lesson) float64 {
	return float64(l.Duration) * 60
}

// ToEvent normalizes a lesson into a timeline.Event. It rejects lessons the
// packer could not place instead of guessing a start time.
func ToEvent(l model.Lesson) (timeline.Event, error) {
	start, _, err := Window(l)
	if err != nil {
		return timeline.Event{}, err
	}
	dur := DurationMinutes(l)
	if math.IsNaN(dur) || dur <= 0 {
		return timeline.Event{}, &timeline.InvalidEventError{ID: EventID(l), Reason: "duration must be > 0"}
	}
	return timeline.Event{
		ID:       EventID(l),
		Start:    start,
		Duration: dur,
	}, nil
}

// ToEvents converts every lesson, stopping at the first invalid one.
func ToEvents(lessons []model.Lesson) ([]timeline.Event, error) {
	out := make([]timeline.Event, 0, len(lessons))
	for _, l := range lessons {
		ev, err := ToEvent(l)
		if err != nil {
			return nil, err
		}
		out = append(out, ev)
	}
	return out, nil
}
