package lesson

import (
	"tutorcal/internal/model"
)

// PackageUsage is how many hours of a package are spent and left.
type PackageUsage struct {
	UsedHours      float64 `json:"used_hours"`
	AvailableHours float64 `json:"available_hours"`
	// TotalAvailable adds back the hours of the lesson being edited when it
	// already draws from this package.
	TotalAvailable float64 `json:"total_available"`
}

// PackageHours sums the lessons booked on pkg. editing is the stored
// version of a lesson being modified, or nil when creating one.
func PackageHours(pkg model.Package, lessons []model.Lesson, editing *model.Lesson) PackageUsage {
	if pkg.ID == 0 || pkg.TotalHours == 0 {
		return PackageUsage{}
	}

	var u PackageUsage
	for _, l := range lessons {
		if inPackage(l, pkg.ID) {
			u.UsedHours += float64(l.Duration)
		}
	}
	u.AvailableHours = float64(pkg.TotalHours) - u.UsedHours
	u.TotalAvailable = u.AvailableHours
	if editing != nil && inPackage(*editing, pkg.ID) {
		u.TotalAvailable += float64(editing.Duration)
	}
	return u
}

// Overflow describes a lesson longer than what its package has left.
type Overflow struct {
	RequestedHours float64 `json:"requested_hours"`
	RemainingHours float64 `json:"remaining_hours"`
	OverflowHours  float64 `json:"overflow_hours"`
}

// CheckPackageOverflow reports whether candidate needs more hours than its
// package still holds. Lessons outside a package, or pointing at an unknown
// package, never overflow.
func CheckPackageOverflow(candidate model.Lesson, packages []model.Package, lessons []model.Lesson, editing *model.Lesson) (Overflow, bool) {
	if !candidate.IsPackage || candidate.PackageID == nil {
		return Overflow{}, false
	}

	var (
		pkg   model.Package
		found bool
	)
	for _, p := range packages {
		if p.ID == *candidate.PackageID {
			pkg, found = p, true
			break
		}
	}
	if !found {
		return Overflow{}, false
	}

	u := PackageHours(pkg, lessons, editing)
	remaining := u.AvailableHours
	if editing != nil {
		remaining = u.TotalAvailable
	}

	requested := float64(candidate.Duration)
	if requested <= remaining {
		return Overflow{}, false
	}
	return Overflow{
		RequestedHours: requested,
		RemainingHours: remaining,
		OverflowHours:  requested - remaining,
	}, true
}

func inPackage(l model.Lesson, packageID int) bool {
	return l.IsPackage && l.PackageID != nil && *l.PackageID == packageID
}
