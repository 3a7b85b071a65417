package lesson

import (
	"cmp"
	"slices"

	"tutorcal/internal/model"
	"tutorcal/internal/timeline"
)

// ProfessorSchedule summarizes one professor's lessons on a single day.
type ProfessorSchedule struct {
	ProfessorID int            `json:"professor_id"`
	Name        string         `json:"name,omitempty"`
	Lessons     []model.Lesson `json:"lessons"`
	// StartTime is the start of the first lesson, EndTime the end of the
	// last-starting one, both "HH:MM".
	StartTime  string  `json:"start_time"`
	EndTime    string  `json:"end_time"`
	TotalHours float64 `json:"total_hours"`
}

// ProfessorSchedules groups one day's lessons by professor. Results are
// ordered by professor id; names are filled from professors when known.
func ProfessorSchedules(lessons []model.Lesson, professors []model.Professor) []ProfessorSchedule {
	names := make(map[int]string, len(professors))
	for _, p := range professors {
		names[p.ID] = p.FullName()
	}

	byProf := make(map[int][]model.Lesson)
	for _, l := range lessons {
		byProf[l.ProfessorID] = append(byProf[l.ProfessorID], l)
	}

	out := make([]ProfessorSchedule, 0, len(byProf))
	for id, ls := range byProf {
		sorted := slices.Clone(ls)
		slices.SortStableFunc(sorted, func(a, b model.Lesson) int {
			return cmp.Compare(startOrMidnight(a), startOrMidnight(b))
		})

		ps := ProfessorSchedule{
			ProfessorID: id,
			Name:        names[id],
			Lessons:     sorted,
			StartTime:   "00:00",
			EndTime:     "00:00",
		}
		for _, l := range sorted {
			ps.TotalHours += float64(l.Duration)
		}
		if first := sorted[0]; first.StartTime != "" {
			ps.StartTime = timeline.FormatClock(float64(startOrMidnight(first)))
		}
		if _, end, err := Window(sorted[len(sorted)-1]); err == nil {
			ps.EndTime = timeline.FormatClock(end)
		}
		out = append(out, ps)
	}

	slices.SortFunc(out, func(a, b ProfessorSchedule) int {
		return cmp.Compare(a.ProfessorID, b.ProfessorID)
	})
	return out
}

func startOrMidnight(l model.Lesson) int {
	start, _, err := Window(l)
	if err != nil {
		return 0
	}
	return start
}

// Summary holds aggregate figures for a set of lessons.
type Summary struct {
	Lessons      int     `json:"lessons"`
	Hours        float64 `json:"hours"`
	PackageHours float64 `json:"package_hours"`
	SingleHours  float64 `json:"single_hours"`
	TotalPayment float64 `json:"total_payment"`
	PackageShare float64 `json:"package_share_pct"`
	Professors   int     `json:"professors"`
	Students     int     `json:"students"`
}

// Summarize recomputes dashboard totals from an already-fetched list.
func Summarize(lessons []model.Lesson) Summary {
	var s Summary
	profs := make(map[int]struct{})
	students := make(map[int]struct{})

	for _, l := range lessons {
		h := float64(l.Duration)
		s.Lessons++
		s.Hours += h
		if l.IsPackage {
			s.PackageHours += h
		} else {
			s.SingleHours += h
		}
		s.TotalPayment += float64(l.TotalPayment)
		profs[l.ProfessorID] = struct{}{}
		students[l.StudentID] = struct{}{}
	}
	if s.Hours > 0 {
		s.PackageShare = s.PackageHours / s.Hours * 100
	}
	s.Professors = len(profs)
	s.Students = len(students)
	return s
}
