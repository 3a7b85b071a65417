package schedule

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"tutorcal/internal/model"
	"tutorcal/internal/timeline"
)

type fakeLessons struct {
	lessons    []model.Lesson
	professors []model.Professor
	profErr    error
	err        error
	calls      atomic.Int32
}

func (f *fakeLessons) Lessons(context.Context) ([]model.Lesson, error) {
	f.calls.Add(1)
	return f.lessons, f.err
}

func (f *fakeLessons) Professors(context.Context) ([]model.Professor, error) {
	return f.professors, f.profErr
}

type fakePackages []model.Package

func (f fakePackages) Packages(context.Context) ([]model.Package, error) { return f, nil }

type fakeCalendar struct {
	occs []model.Occurrence
	err  error
}

func (f fakeCalendar) Occurrences(context.Context, time.Time, time.Time) ([]model.Occurrence, error) {
	return f.occs, f.err
}

func lessonAt(id, prof int, date, start string, hours float64) model.Lesson {
	return model.Lesson{
		ID:          id,
		ProfessorID: prof,
		StudentID:   100 + id,
		LessonDate:  date,
		StartTime:   start,
		Duration:    model.Decimal(hours),
	}
}

func newService(t *testing.T, ls LessonSource, cal CalendarSource, ttl time.Duration) *Service {
	t.Helper()
	s, err := New(Options{
		Lessons:     ls,
		Calendars:   cal,
		Location:    time.UTC,
		WindowStart: 480,
		WindowEnd:   1320,
		CacheTTL:    ttl,
	})
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	return s
}

func TestService_Day(t *testing.T) {
	day := time.Date(2025, 3, 4, 15, 0, 0, 0, time.UTC)
	src := &fakeLessons{
		lessons: []model.Lesson{
			lessonAt(1, 1, "2025-03-04", "09:00:00", 1),
			lessonAt(2, 2, "2025-03-04", "09:30:00", 1),
			lessonAt(3, 1, "2025-03-04", "10:00:00", 1),
			lessonAt(4, 1, "2025-03-05", "10:00:00", 1),
			lessonAt(5, 2, "2025-03-04", "", 1),
		},
		professors: []model.Professor{{ID: 1, FirstName: "Anna", LastName: "Neri"}},
	}
	cal := fakeCalendar{occs: []model.Occurrence{{
		SourceID:    "anna",
		UID:         "meeting",
		InstanceKey: "k",
		Summary:     "Staff meeting",
		Start:       time.Date(2025, 3, 4, 21, 0, 0, 0, time.UTC),
		End:         time.Date(2025, 3, 4, 23, 0, 0, 0, time.UTC),
	}}}

	s := newService(t, src, cal, 0)
	view, err := s.Day(context.Background(), day)
	if err != nil {
		t.Fatalf("Day() error = %v", err)
	}

	if view.Date != "2025-03-04" || view.WindowStart != "08:00" || view.WindowEnd != "22:00" {
		t.Errorf("view header = %+v", view)
	}
	if view.LaneCount != 2 {
		t.Errorf("LaneCount = %d, want 2", view.LaneCount)
	}
	if len(view.Skipped) != 1 || view.Skipped[0] != "5" {
		t.Errorf("Skipped = %v, want [5]", view.Skipped)
	}
	if len(view.Bars) != 4 {
		t.Fatalf("Bars = %+v, want 4 bars", view.Bars)
	}

	byID := make(map[string]Bar)
	for _, b := range view.Bars {
		byID[b.ID] = b
	}
	if byID["1"].Lane != 0 || byID["2"].Lane != 1 || byID["3"].Lane != 0 {
		t.Errorf("lanes = %d %d %d, want 0 1 0", byID["1"].Lane, byID["2"].Lane, byID["3"].Lane)
	}
	if byID["1"].Label != "Anna Neri" || byID["2"].Label != "Professor #2" {
		t.Errorf("labels = %q, %q", byID["1"].Label, byID["2"].Label)
	}
	meeting := byID["anna/meeting/k"]
	if meeting.Kind != KindCalendar || meeting.Start != "21:00" || meeting.End != "23:00" {
		t.Errorf("calendar bar = %+v", meeting)
	}
	if meeting.StartPct+meeting.WidthPct > 100+1e-9 {
		t.Errorf("calendar bar exceeds window: %+v", meeting)
	}
	if view.Bars[0].ID != "1" {
		t.Errorf("bars not in start order: %+v", view.Bars)
	}

	if len(view.Professors) != 2 || view.Summary.Lessons != 4 {
		t.Errorf("aggregates = %+v / %+v", view.Professors, view.Summary)
	}
}

func TestService_Week(t *testing.T) {
	src := &fakeLessons{lessons: []model.Lesson{
		lessonAt(1, 1, "2025-03-03", "09:00", 2),
		lessonAt(2, 1, "2025-03-03", "10:00", 1),
		lessonAt(3, 1, "2025-03-09", "18:00", 1),
		lessonAt(4, 1, "2025-03-10", "18:00", 1),
	}}
	s := newService(t, src, nil, time.Minute)

	week, err := s.Week(context.Background(), time.Date(2025, 3, 3, 0, 0, 0, 0, time.UTC))
	if err != nil {
		t.Fatalf("Week() error = %v", err)
	}
	if len(week) != 7 {
		t.Fatalf("len(Week()) = %d, want 7", len(week))
	}
	if week[0].Date != "2025-03-03" || week[0].LaneCount != 2 {
		t.Errorf("monday = %+v", week[0])
	}
	if week[6].Date != "2025-03-09" || len(week[6].Bars) != 1 {
		t.Errorf("sunday = %+v", week[6])
	}
	for _, d := range week[1:6] {
		if d.LaneCount != 0 || len(d.Bars) != 0 {
			t.Errorf("%s should be empty: %+v", d.Date, d)
		}
	}
	if src.calls.Load() != 1 {
		t.Errorf("lesson source called %d times, want 1", src.calls.Load())
	}

	// A day inside the week is now served from cache.
	if _, err := s.Day(context.Background(), time.Date(2025, 3, 5, 0, 0, 0, 0, time.UTC)); err != nil {
		t.Fatalf("Day() error = %v", err)
	}
	if src.calls.Load() != 1 {
		t.Errorf("cached day refetched lessons (%d calls)", src.calls.Load())
	}
}

func TestService_cacheExpiry(t *testing.T) {
	src := &fakeLessons{}
	s := newService(t, src, nil, 30*time.Second)
	now := time.Date(2025, 3, 4, 12, 0, 0, 0, time.UTC)
	s.now = func() time.Time { return now }

	ctx := context.Background()
	for range 2 {
		if _, err := s.Day(ctx, now); err != nil {
			t.Fatal(err)
		}
	}
	if src.calls.Load() != 1 {
		t.Fatalf("calls = %d, want 1", src.calls.Load())
	}

	now = now.Add(31 * time.Second)
	if _, err := s.Day(ctx, now); err != nil {
		t.Fatal(err)
	}
	if src.calls.Load() != 2 {
		t.Errorf("calls after expiry = %d, want 2", src.calls.Load())
	}

	if err := s.Refresh(ctx); err != nil {
		t.Fatal(err)
	}
	if src.calls.Load() != 3 {
		t.Errorf("calls after Refresh = %d, want 3", src.calls.Load())
	}
}

func TestService_sourceErrors(t *testing.T) {
	day := time.Date(2025, 3, 4, 0, 0, 0, 0, time.UTC)

	t.Run("lesson source fails", func(t *testing.T) {
		s := newService(t, &fakeLessons{err: errors.New("api down")}, nil, 0)
		if _, err := s.Day(context.Background(), day); err == nil {
			t.Fatal("Day() error = nil, want error")
		}
	})

	t.Run("optional sources degrade", func(t *testing.T) {
		src := &fakeLessons{
			lessons: []model.Lesson{lessonAt(1, 9, "2025-03-04", "09:00", 1)},
			profErr: errors.New("forbidden"),
		}
		s := newService(t, src, fakeCalendar{err: errors.New("feed down")}, 0)
		view, err := s.Day(context.Background(), day)
		if err != nil {
			t.Fatalf("Day() error = %v", err)
		}
		if len(view.Bars) != 1 || view.Bars[0].Label != "Professor #9" {
			t.Errorf("Bars = %+v", view.Bars)
		}
	})
}

func TestService_duplicateLessonSkipped(t *testing.T) {
	src := &fakeLessons{lessons: []model.Lesson{
		lessonAt(1, 1, "2025-03-04", "09:00", 1),
		lessonAt(1, 1, "2025-03-04", "11:00", 1),
	}}
	s := newService(t, src, nil, 0)
	view, err := s.Day(context.Background(), time.Date(2025, 3, 4, 0, 0, 0, 0, time.UTC))
	if err != nil {
		t.Fatalf("Day() error = %v", err)
	}
	if len(view.Bars) != 1 || len(view.Skipped) != 1 {
		t.Errorf("view = %+v", view)
	}
}

func TestNew_invalidWindow(t *testing.T) {
	_, err := New(Options{WindowStart: 600, WindowEnd: 600})
	var we *timeline.InvalidWindowError
	if !errors.As(err, &we) {
		t.Fatalf("New() error = %v, want *timeline.InvalidWindowError", err)
	}
}

func TestService_Period(t *testing.T) {
	paid := func(l model.Lesson, amount float64) model.Lesson {
		l.TotalPayment = model.Decimal(amount)
		return l
	}
	src := &fakeLessons{
		lessons: []model.Lesson{
			paid(lessonAt(1, 1, "2025-03-01", "09:00", 1), 20),
			paid(lessonAt(2, 1, "2025-03-31", "09:00", 1), 20),
			paid(lessonAt(3, 2, "2025-04-01", "09:00", 1), 20),
		},
		professors: []model.Professor{{ID: 1, FirstName: "Anna", LastName: "Neri"}},
	}
	s := newService(t, src, nil, time.Minute)
	ctx := context.Background()

	report, err := s.Period(ctx, time.Date(2025, 3, 1, 0, 0, 0, 0, time.UTC), time.Date(2025, 3, 31, 0, 0, 0, 0, time.UTC))
	if err != nil {
		t.Fatalf("Period() error = %v", err)
	}
	if len(report.Professors) != 1 || report.Professors[0].Name != "Anna Neri" || report.TotalProfessorPayments != 40 {
		t.Errorf("Period() = %+v", report)
	}
	if report.Professors[0].LastLessonDate != "2025-03-31" {
		t.Errorf("LastLessonDate = %q, want 2025-03-31", report.Professors[0].LastLessonDate)
	}

	if _, err := s.Period(ctx, time.Date(2025, 3, 2, 0, 0, 0, 0, time.UTC), time.Date(2025, 3, 1, 0, 0, 0, 0, time.UTC)); err == nil {
		t.Error("Period(reversed) error = nil")
	}

	src.err = errors.New("api down")
	if _, err := s.Period(ctx, time.Date(2025, 3, 1, 0, 0, 0, 0, time.UTC), time.Date(2025, 3, 31, 0, 0, 0, 0, time.UTC)); err == nil {
		t.Error("Period() with failing source error = nil")
	}
}

func TestService_CheckLesson(t *testing.T) {
	pkgID := 7
	inPkg := func(l model.Lesson) model.Lesson {
		l.IsPackage = true
		l.PackageID = &pkgID
		return l
	}
	stored := inPkg(lessonAt(1, 1, "2025-03-04", "09:00", 3))
	src := &fakeLessons{lessons: []model.Lesson{stored}}
	s, err := New(Options{
		Lessons:     src,
		Packages:    fakePackages{{ID: 7, StudentID: stored.StudentID, TotalHours: 5}},
		Location:    time.UTC,
		WindowStart: 480,
		WindowEnd:   1320,
	})
	if err != nil {
		t.Fatal(err)
	}
	ctx := context.Background()

	tests := []struct {
		name         string
		candidate    model.Lesson
		wantOverlap  int
		wantOverflow float64
	}{
		{name: "fits after", candidate: inPkg(lessonAt(0, 2, "2025-03-04", "12:00", 2))},
		{name: "overflows", candidate: inPkg(lessonAt(0, 2, "2025-03-04", "12:00", 2.5)), wantOverflow: 0.5},
		{name: "overlaps and overflows", candidate: inPkg(lessonAt(0, 2, "2025-03-04", "11:00", 3)), wantOverlap: 1, wantOverflow: 1},
		{name: "edit credits back", candidate: inPkg(lessonAt(1, 1, "2025-03-04", "09:00", 4.5))},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			// lessonAt derives the student from the lesson id; pin it so
			// every candidate belongs to the stored lesson's student.
			tt.candidate.StudentID = stored.StudentID
			check, err := s.CheckLesson(ctx, tt.candidate)
			if err != nil {
				t.Fatalf("CheckLesson() error = %v", err)
			}
			gotOverlap := 0
			if check.Overlap != nil {
				gotOverlap = check.Overlap.ID
			}
			if gotOverlap != tt.wantOverlap {
				t.Errorf("overlap = %d, want %d", gotOverlap, tt.wantOverlap)
			}
			gotOverflow := 0.0
			if check.Overflow != nil {
				gotOverflow = check.Overflow.OverflowHours
			}
			if gotOverflow != tt.wantOverflow {
				t.Errorf("overflow = %v, want %v", gotOverflow, tt.wantOverflow)
			}
		})
	}

	_, err = s.CheckLesson(ctx, lessonAt(0, 2, "2025-03-04", "", 1))
	var ie *timeline.InvalidEventError
	if !errors.As(err, &ie) {
		t.Errorf("CheckLesson(no start) error = %v, want *timeline.InvalidEventError", err)
	}
}
