package lesson

import (
	"time"

	"tutorcal/internal/model"
)

// CheckOverlap reports the first existing lesson of the same student on the
// same day whose time range intersects the candidate's. excludeID skips the
// lesson being edited; pass 0 when creating a new lesson.
//
// Ranges are half-open, so back-to-back lessons do not conflict.
func CheckOverlap(candidate model.Lesson, existing []model.Lesson, excludeID int) (model.Lesson, bool, error) {
	if candidate.StudentID == 0 {
		return model.Lesson{}, false, nil
	}

	day, err := candidate.Day(time.UTC)
	if err != nil {
		return model.Lesson{}, false, err
	}
	start, end, err := Window(candidate)
	if err != nil {
		return model.Lesson{}, false, err
	}

	for _, other := range existing {
		if other.StudentID != candidate.StudentID {
			continue
		}
		if excludeID != 0 && other.ID == excludeID {
			continue
		}
		otherDay, err := other.Day(time.UTC)
		if err != nil || !otherDay.Equal(day) {
			continue
		}
		otherStart, otherEnd, err := Window(other)
		if err != nil {
			continue
		}
		if float64(start) < otherEnd && end > float64(otherStart) {
			return other, true, nil
		}
	}
	return model.Lesson{}, false, nil
}
