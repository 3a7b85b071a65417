package timeline

import "fmt"

// InvalidEventError reports a malformed input event (non-positive duration,
// negative start, missing id).
type InvalidEventError struct {
	ID     string
	Reason string
}

func (e *InvalidEventError) Error() string {
	if e.ID == "" {
		return "timeline: invalid event: " + e.Reason
	}
	return fmt.Sprintf("timeline: invalid event %q: %s", e.ID, e.Reason)
}

// InvalidWindowError reports display window bounds with Start >= End.
type InvalidWindowError struct {
	Start int
	End   int
}

func (e *InvalidWindowError) Error() string {
	return fmt.Sprintf("timeline: invalid window [%d, %d): start must be before end", e.Start, e.End)
}

// DuplicateEventIDError reports two input events sharing the same id. Layout
// maps are keyed by id and cannot hold both.
type DuplicateEventIDError struct {
	ID string
}

func (e *DuplicateEventIDError) Error() string {
	return fmt.Sprintf("timeline: duplicate event id %q", e.ID)
}
