package lesson

import (
	"time"

	"tutorcal/internal/model"
)

// OnDay returns the lessons whose date equals day's calendar date in loc.
// Lessons with an unparseable date are dropped.
func OnDay(lessons []model.Lesson, day time.Time, loc *time.Location) []model.Lesson {
	return InRange(lessons, day, day, loc)
}

// InRange returns lessons dated between from and to, both inclusive and
// compared by calendar date in loc.
func InRange(lessons []model.Lesson, from, to time.Time, loc *time.Location) []model.Lesson {
	if loc == nil {
		loc = time.Local
	}
	lo := truncateDay(from, loc)
	hi := truncateDay(to, loc)

	out := make([]model.Lesson, 0)
	for _, l := range lessons {
		d, err := l.Day(loc)
		if err != nil {
			continue
		}
		if d.Before(lo) || d.After(hi) {
			continue
		}
		out = append(out, l)
	}
	return out
}

func truncateDay(t time.Time, loc *time.Location) time.Time {
	t = t.In(loc)
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, loc)
}
