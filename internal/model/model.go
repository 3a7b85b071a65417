package model

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"
	"time"
)

// DateLayout is the wire format of lesson dates ("2006-01-02").
const DateLayout = "2006-01-02"

// Lesson mirrors the lesson resource of the school's REST API.
type Lesson struct {
	ID          int     `json:"id"`
	ProfessorID int     `json:"professor_id"`
	StudentID   int     `json:"student_id"`
	LessonDate  string  `json:"lesson_date"`
	StartTime   string  `json:"start_time"`
	Duration    Decimal `json:"duration"` // hours
	IsPackage   bool    `json:"is_package"`
	PackageID   *int    `json:"package_id,omitempty"`

	HourlyRate   Decimal `json:"hourly_rate"`
	TotalPayment Decimal `json:"total_payment"`
}

// Day parses LessonDate as a calendar date in loc.
func (l Lesson) Day(loc *time.Location) (time.Time, error) {
	if loc == nil {
		loc = time.Local
	}
	// The API sometimes sends full timestamps; only the date part matters.
	s := l.LessonDate
	if len(s) > len(DateLayout) {
		s = s[:len(DateLayout)]
	}
	return time.ParseInLocation(DateLayout, s, loc)
}

// Professor mirrors the professor resource of the REST API.
type Professor struct {
	ID        int    `json:"id"`
	FirstName string `json:"first_name"`
	LastName  string `json:"last_name"`
	Username  string `json:"username"`
	IsAdmin   bool   `json:"is_admin"`
}

// FullName returns "First Last".
func (p Professor) FullName() string {
	switch {
	case p.FirstName == "":
		return p.LastName
	case p.LastName == "":
		return p.FirstName
	}
	return p.FirstName + " " + p.LastName
}

// Package mirrors the package resource: a block of prepaid hours bought by
// one student.
type Package struct {
	ID             int     `json:"id"`
	StudentID      int     `json:"student_id"`
	StartDate      string  `json:"start_date"`
	TotalHours     Decimal `json:"total_hours"`
	PackageCost    Decimal `json:"package_cost"`
	Status         string  `json:"status"`
	IsPaid         bool    `json:"is_paid"`
	RemainingHours Decimal `json:"remaining_hours"`
}

// Decimal is a numeric API field. The API serializes decimals as JSON
// strings ("1.50") but numbers are accepted as well.
type Decimal float64

// UnmarshalJSON accepts 1.5, "1.5" and null.
func (d *Decimal) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	if len(b) == 0 || bytes.Equal(b, []byte("null")) {
		*d = 0
		return nil
	}
	if b[0] == '"' {
		var s string
		if err := json.Unmarshal(b, &s); err != nil {
			return err
		}
		if s == "" {
			*d = 0
			return nil
		}
		b = []byte(s)
	}
	f, err := strconv.ParseFloat(string(b), 64)
	if err != nil {
		return fmt.Errorf("model: invalid decimal %q: %w", b, err)
	}
	*d = Decimal(f)
	return nil
}

// Occurrence represents a single concrete instance of a calendar event
// (after recurrence expansion and timezone normalization).
type Occurrence struct {
	SourceID string // calendar source ID
	UID      string // iCalendar UID

	// InstanceKey uniquely identifies a single occurrence of a recurring
	// event, derived from the local start time.
	InstanceKey string

	Summary     string
	Description string
	Location    string

	AllDay bool

	// Start / End are in the configured display timezone.
	Start time.Time
	End   time.Time
}
