// Package schedule builds day timelines: it gathers a day's lessons and
// calendar occurrences, packs them into lanes and decorates the bars with
// the labels and aggregates shown beside the timeline.
package schedule

import (
	"cmp"
	"context"
	"fmt"
	"slices"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"tutorcal/internal/ics"
	"tutorcal/internal/lesson"
	appLog "tutorcal/internal/log"
	"tutorcal/internal/model"
	"tutorcal/internal/timeline"
)

// LessonSource provides lessons and professors, normally the REST API.
type LessonSource interface {
	Lessons(ctx context.Context) ([]model.Lesson, error)
	Professors(ctx context.Context) ([]model.Professor, error)
}

// PackageSource provides prepaid hour packages.
type PackageSource interface {
	Packages(ctx context.Context) ([]model.Package, error)
}

// CalendarSource provides calendar occurrences, normally ICS feeds.
type CalendarSource interface {
	Occurrences(ctx context.Context, from, to time.Time) ([]model.Occurrence, error)
}

const (
	KindLesson   = "lesson"
	KindCalendar = "calendar"
)

// Bar is one event positioned on the day timeline.
type Bar struct {
	ID       string  `json:"id"`
	Kind     string  `json:"kind"`
	Label    string  `json:"label"`
	Lane     int     `json:"lane"`
	StartPct float64 `json:"start_pct"`
	WidthPct float64 `json:"width_pct"`
	Start    string  `json:"start"`
	End      string  `json:"end"`

	ProfessorID int `json:"professor_id,omitempty"`
	StudentID   int `json:"student_id,omitempty"`
}

// DayView is everything needed to render one day.
type DayView struct {
	Date        string                     `json:"date"`
	WindowStart string                     `json:"window_start"`
	WindowEnd   string                     `json:"window_end"`
	LaneCount   int                        `json:"lane_count"`
	Bars        []Bar                      `json:"bars"`
	Professors  []lesson.ProfessorSchedule `json:"professors"`
	Summary     lesson.Summary             `json:"summary"`
	// Skipped lists ids of events that could not be placed.
	Skipped []string `json:"skipped,omitempty"`
}

// Options configures a Service. Every source may be nil.
type Options struct {
	Lessons     LessonSource
	Calendars   CalendarSource
	Packages    PackageSource
	Location    *time.Location
	WindowStart int
	WindowEnd   int
	CacheTTL    time.Duration
}

// Service builds and caches day views.
type Service struct {
	lessons     LessonSource
	calendars   CalendarSource
	packages    PackageSource
	loc         *time.Location
	windowStart int
	windowEnd   int
	ttl         time.Duration
	now         func() time.Time

	mu    sync.RWMutex
	cache map[string]cachedDay
}

type cachedDay struct {
	view      DayView
	updatedAt time.Time
}

// New validates the window and returns a Service.
func New(opts Options) (*Service, error) {
	if opts.WindowStart >= opts.WindowEnd {
		return nil, &timeline.InvalidWindowError{Start: opts.WindowStart, End: opts.WindowEnd}
	}
	if opts.Location == nil {
		opts.Location = time.Local
	}
	return &Service{
		lessons:     opts.Lessons,
		calendars:   opts.Calendars,
		packages:    opts.Packages,
		loc:         opts.Location,
		windowStart: opts.WindowStart,
		windowEnd:   opts.WindowEnd,
		ttl:         opts.CacheTTL,
		now:         time.Now,
		cache:       make(map[string]cachedDay),
	}, nil
}

// Location returns the timezone days are interpreted in.
func (s *Service) Location() *time.Location {
	return s.loc
}

// Today returns midnight of the current day in the service location.
func (s *Service) Today() time.Time {
	return startOfDay(s.now(), s.loc)
}

// Day returns the packed view of day.
func (s *Service) Day(ctx context.Context, day time.Time) (DayView, error) {
	views, err := s.days(ctx, startOfDay(day, s.loc), 1)
	if err != nil {
		return DayView{}, err
	}
	return views[0], nil
}

// Week returns seven consecutive day views starting at start. Days are
// packed concurrently, one Pack call per day column.
func (s *Service) Week(ctx context.Context, start time.Time) ([]DayView, error) {
	return s.days(ctx, startOfDay(start, s.loc), 7)
}

// Refresh drops cached views and rebuilds today's.
func (s *Service) Refresh(ctx context.Context) error {
	s.mu.Lock()
	s.cache = make(map[string]cachedDay)
	s.mu.Unlock()

	_, err := s.Day(ctx, s.Today())
	return err
}

// Period reports per-professor lessons and payments between from and to,
// both inclusive. It always reads fresh lessons.
func (s *Service) Period(ctx context.Context, from, to time.Time) (lesson.PeriodReport, error) {
	from, to = startOfDay(from, s.loc), startOfDay(to, s.loc)
	if to.Before(from) {
		return lesson.PeriodReport{}, fmt.Errorf("schedule: period ends %s before it starts %s", dateKey(to), dateKey(from))
	}

	var (
		lessons    []model.Lesson
		professors []model.Professor
	)
	if s.lessons != nil {
		ls, err := s.lessons.Lessons(ctx)
		if err != nil {
			return lesson.PeriodReport{}, fmt.Errorf("schedule: lessons: %w", err)
		}
		lessons = ls
		if profs, err := s.lessons.Professors(ctx); err != nil {
			appLog.Warn("schedule: professors unavailable, period will use ids", "err", err)
		} else {
			professors = profs
		}
	}
	return lesson.ProfessorPeriods(lessons, professors, from, to, s.loc), nil
}

// LessonCheck is the result of validating a lesson before it is saved.
type LessonCheck struct {
	Overlap   *model.Lesson    `json:"overlap,omitempty"`
	Overflow  *lesson.Overflow `json:"overflow,omitempty"`
	StartTime string           `json:"start_time"`
	EndTime   string           `json:"end_time"`
}

// CheckLesson looks for a same-student overlap and a package overflow for
// candidate. A non-zero candidate.ID marks an edit of the stored lesson with
// that id, which is excluded from the overlap and credited back to its
// package. Candidates without a usable start time or duration are rejected
// with *timeline.InvalidEventError.
func (s *Service) CheckLesson(ctx context.Context, candidate model.Lesson) (LessonCheck, error) {
	ev, err := lesson.ToEvent(candidate)
	if err != nil {
		return LessonCheck{}, err
	}
	check := LessonCheck{
		StartTime: timeline.FormatClock(float64(ev.Start)),
		EndTime:   timeline.FormatClock(ev.End()),
	}

	var lessons []model.Lesson
	if s.lessons != nil {
		if lessons, err = s.lessons.Lessons(ctx); err != nil {
			return LessonCheck{}, fmt.Errorf("schedule: lessons: %w", err)
		}
	}

	other, found, err := lesson.CheckOverlap(candidate, lessons, candidate.ID)
	if err != nil {
		return LessonCheck{}, &timeline.InvalidEventError{ID: lesson.EventID(candidate), Reason: err.Error()}
	}
	if found {
		check.Overlap = &other
	}

	if s.packages == nil || !candidate.IsPackage {
		return check, nil
	}
	pkgs, err := s.packages.Packages(ctx)
	if err != nil {
		return LessonCheck{}, fmt.Errorf("schedule: packages: %w", err)
	}
	var editing *model.Lesson
	if candidate.ID != 0 {
		for i := range lessons {
			if lessons[i].ID == candidate.ID {
				editing = &lessons[i]
				break
			}
		}
	}
	if o, over := lesson.CheckPackageOverflow(candidate, pkgs, lessons, editing); over {
		check.Overflow = &o
	}
	return check, nil
}

func (s *Service) days(ctx context.Context, first time.Time, n int) ([]DayView, error) {
	out := make([]DayView, n)
	missing := make([]int, 0, n)
	for i := range n {
		if v, ok := s.cached(dateKey(first.AddDate(0, 0, i))); ok {
			out[i] = v
			continue
		}
		missing = append(missing, i)
	}
	if len(missing) == 0 {
		return out, nil
	}

	in, err := s.gather(ctx, first, first.AddDate(0, 0, n))
	if err != nil {
		return nil, err
	}

	g, gctx := errgroup.WithContext(ctx)
	for _, i := range missing {
		day := first.AddDate(0, 0, i)
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			v, err := s.build(day, in)
			if err != nil {
				return fmt.Errorf("schedule: %s: %w", dateKey(day), err)
			}
			out[i] = v
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	s.mu.Lock()
	for _, i := range missing {
		s.cache[out[i].Date] = cachedDay{view: out[i], updatedAt: s.now()}
	}
	s.mu.Unlock()

	return out, nil
}

func (s *Service) cached(key string) (DayView, bool) {
	if s.ttl <= 0 {
		return DayView{}, false
	}
	s.mu.RLock()
	c, ok := s.cache[key]
	s.mu.RUnlock()
	if !ok || s.now().Sub(c.updatedAt) >= s.ttl {
		return DayView{}, false
	}
	return c.view, true
}

// inputs is the raw material fetched once per request and shared, read-only,
// by the per-day builders.
type inputs struct {
	lessons     []model.Lesson
	professors  []model.Professor
	occurrences []model.Occurrence
}

func (s *Service) gather(ctx context.Context, from, to time.Time) (inputs, error) {
	var in inputs
	if s.lessons != nil {
		ls, err := s.lessons.Lessons(ctx)
		if err != nil {
			return in, fmt.Errorf("schedule: lessons: %w", err)
		}
		in.lessons = lesson.InRange(ls, from, to.AddDate(0, 0, -1), s.loc)

		// Names are decoration only.
		if profs, err := s.lessons.Professors(ctx); err != nil {
			appLog.Warn("schedule: professors unavailable, bars will use ids", "err", err)
		} else {
			in.professors = profs
		}
	}
	if s.calendars != nil {
		occs, err := s.calendars.Occurrences(ctx, from, to)
		if err != nil {
			// Calendar overlays are optional; lessons still render.
			appLog.Error("schedule: calendar occurrences unavailable", err)
		} else {
			in.occurrences = occs
		}
	}
	return in, nil
}

// build packs one day. Events the adapter rejects are logged and listed in
// Skipped; an error from Pack itself is returned.
func (s *Service) build(day time.Time, in inputs) (DayView, error) {
	dayLessons := lesson.OnDay(in.lessons, day, s.loc)

	names := make(map[int]string, len(in.professors))
	for _, p := range in.professors {
		names[p.ID] = p.FullName()
	}

	view := DayView{
		Date:        dateKey(day),
		WindowStart: timeline.FormatClock(float64(s.windowStart)),
		WindowEnd:   timeline.FormatClock(float64(s.windowEnd)),
		Bars:        []Bar{},
		Professors:  lesson.ProfessorSchedules(dayLessons, in.professors),
		Summary:     lesson.Summarize(dayLessons),
	}

	events := make([]timeline.Event, 0, len(dayLessons))
	bars := make(map[string]Bar, len(dayLessons))
	add := func(ev timeline.Event, b Bar) {
		if _, dup := bars[ev.ID]; dup {
			appLog.Warn("schedule: duplicate event skipped", "date", view.Date, "id", ev.ID)
			view.Skipped = append(view.Skipped, ev.ID)
			return
		}
		events = append(events, ev)
		bars[ev.ID] = b
	}

	for _, l := range dayLessons {
		ev, err := lesson.ToEvent(l)
		if err != nil {
			appLog.Warn("schedule: lesson skipped", "date", view.Date, "id", l.ID, "reason", err.Error())
			view.Skipped = append(view.Skipped, lesson.EventID(l))
			continue
		}
		label := names[l.ProfessorID]
		if label == "" {
			label = fmt.Sprintf("Professor #%d", l.ProfessorID)
		}
		add(ev, Bar{
			Kind:        KindLesson,
			Label:       label,
			ProfessorID: l.ProfessorID,
			StudentID:   l.StudentID,
		})
	}

	for _, de := range ics.DayEvents(in.occurrences, day, s.loc) {
		label := de.Occurrence.Summary
		if label == "" {
			label = de.Occurrence.SourceID
		}
		add(de.Event, Bar{Kind: KindCalendar, Label: label})
	}

	layout, err := timeline.Pack(events, s.windowStart, s.windowEnd)
	if err != nil {
		return DayView{}, err
	}
	view.LaneCount = layout.LaneCount

	slices.SortFunc(events, func(a, b timeline.Event) int {
		if c := cmp.Compare(a.Start, b.Start); c != 0 {
			return c
		}
		return cmp.Compare(a.ID, b.ID)
	})
	for _, ev := range events {
		b := bars[ev.ID]
		g := layout.Geometry[ev.ID]
		b.ID = ev.ID
		b.Lane = layout.LaneOf[ev.ID]
		b.StartPct = g.StartPct
		b.WidthPct = g.WidthPct
		b.Start = timeline.FormatClock(float64(ev.Start))
		b.End = timeline.FormatClock(ev.End())
		view.Bars = append(view.Bars, b)
	}

	appLog.Debug("schedule: day packed", "date", view.Date, "events", len(events), "lanes", layout.LaneCount)
	return view, nil
}

func startOfDay(t time.Time, loc *time.Location) time.Time {
	t = t.In(loc)
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, loc)
}

func dateKey(t time.Time) string {
	return t.Format(model.DateLayout)
}
