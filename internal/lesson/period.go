package lesson

import (
	"cmp"
	"slices"
	"time"

	"tutorcal/internal/model"
)

// ProfessorPeriod is one professor's activity over a week or month.
type ProfessorPeriod struct {
	ProfessorID    int            `json:"professor_id"`
	Name           string         `json:"name,omitempty"`
	Lessons        []model.Lesson `json:"lessons"`
	TotalPayment   float64        `json:"total_payment"`
	LastLessonDate string         `json:"last_lesson_date"`
}

// PeriodReport groups the lessons of a date range by professor.
type PeriodReport struct {
	From                   string            `json:"from"`
	To                     string            `json:"to"`
	Professors             []ProfessorPeriod `json:"professors"`
	TotalProfessorPayments float64           `json:"total_professor_payments"`
}

// ProfessorPeriods reports, per professor with at least one lesson between
// from and to (inclusive, calendar dates in loc), the lessons, the sum of
// their payments and the latest lesson date. Professors are ordered by id.
func ProfessorPeriods(lessons []model.Lesson, professors []model.Professor, from, to time.Time, loc *time.Location) PeriodReport {
	if loc == nil {
		loc = time.Local
	}
	names := make(map[int]string, len(professors))
	for _, p := range professors {
		names[p.ID] = p.FullName()
	}

	byProf := make(map[int]*ProfessorPeriod)
	lastDay := make(map[int]time.Time)
	for _, l := range InRange(lessons, from, to, loc) {
		pp, ok := byProf[l.ProfessorID]
		if !ok {
			pp = &ProfessorPeriod{ProfessorID: l.ProfessorID, Name: names[l.ProfessorID]}
			byProf[l.ProfessorID] = pp
		}
		pp.Lessons = append(pp.Lessons, l)
		pp.TotalPayment += float64(l.TotalPayment)

		// InRange only keeps lessons whose date parses.
		d, _ := l.Day(loc)
		if d.After(lastDay[l.ProfessorID]) {
			lastDay[l.ProfessorID] = d
			pp.LastLessonDate = d.Format(model.DateLayout)
		}
	}

	report := PeriodReport{
		From:       truncateDay(from, loc).Format(model.DateLayout),
		To:         truncateDay(to, loc).Format(model.DateLayout),
		Professors: make([]ProfessorPeriod, 0, len(byProf)),
	}
	for _, pp := range byProf {
		report.Professors = append(report.Professors, *pp)
		report.TotalProfessorPayments += pp.TotalPayment
	}
	slices.SortFunc(report.Professors, func(a, b ProfessorPeriod) int {
		return cmp.Compare(a.ProfessorID, b.ProfessorID)
	})
	return report
}
