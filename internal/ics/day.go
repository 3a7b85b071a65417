package ics

import (
	"math"
	"time"

	"tutorcal/internal/model"
	"tutorcal/internal/timeline"
)

const minutesPerDay = 24 * 60

// DayEvent pairs a timeline event with the occurrence it came from.
type DayEvent struct {
	Event      timeline.Event
	Occurrence model.Occurrence
}

// EventID returns the timeline id of an occurrence: source/uid/instance.
func EventID(o model.Occurrence) string {
	return o.SourceID + "/" + o.UID + "/" + o.InstanceKey
}

// DayEvents converts the timed occurrences intersecting day into timeline
// events. Occurrences crossing midnight are clipped to the day; all-day
// occurrences are skipped because they have no place on a time axis.
func DayEvents(occs []model.Occurrence, day time.Time, loc *time.Location) []DayEvent {
	if loc == nil {
		loc = time.Local
	}
	d := day.In(loc)
	dayStart := time.Date(d.Year(), d.Month(), d.Day(), 0, 0, 0, 0, loc)
	dayEnd := dayStart.AddDate(0, 0, 1)

	out := make([]DayEvent, 0)
	for _, o := range occs {
		if o.AllDay || !overlaps(o.Start, o.End, dayStart, dayEnd) {
			continue
		}
		start := o.Start
		if start.Before(dayStart) {
			start = dayStart
		}
		end := o.End
		if end.After(dayEnd) {
			end = dayEnd
		}

		startMin := int(math.Floor(clockMinutes(start.In(loc))))
		endMin := float64(minutesPerDay)
		if end.Before(dayEnd) {
			endMin = clockMinutes(end.In(loc))
		}
		dur := endMin - float64(startMin)
		if dur <= 0 {
			continue
		}
		out = append(out, DayEvent{
			Event:      timeline.Event{ID: EventID(o), Start: startMin, Duration: dur},
			Occurrence: o,
		})
	}
	return out
}

// clockMinutes is the wall-clock time of t in minutes since midnight, so
// calendar bars line up with lessons on days with a DST change.
func clockMinutes(t time.Time) float64 {
	return float64(t.Hour()*60+t.Minute()) + float64(t.Second())/60
}
