/*
availability.go - Teaching windows, blackout periods, calendar-day cache

PURPOSE:
  Models per-child per-day availability: which days are teachable, which
  are off, and the window of the day teaching happens in. Availability is
  derived by merging raw calendar-day cache rows with blackout periods;
  a blackout always wins.

INVARIANTS:
  - A day with status "off" has zero windows.
  - A date is blacked out for a child if it falls inside any period whose
    child scope is empty (whole family) or matches the child.
  - A missing cache row resolves to "off" (fail closed: no proposed time
    is better than an over-scheduled time the system cannot verify).

SEE ALSO:
  - context.go: Uses DeriveAvailability while building the context
*/
package planning

// =============================================================================
// DAY STATUS & AVAILABILITY WINDOW
// =============================================================================

type DayStatus string

const (
	DayTeach   DayStatus = "teach"
	DayOff     DayStatus = "off"
	DayPartial DayStatus = "partial"
)

// AvailabilityWindow is one teachable span on a child's day.
// Start/End are wall-clock times in HH:MM form, as cached upstream.
type AvailabilityWindow struct {
	Start  string    `json:"start"`
	End    string    `json:"end"`
	Status DayStatus `json:"status"`
}

// DayAvailability is the resolved view of one (child, date) pair.
type DayAvailability struct {
	ChildID ChildID              `json:"child_id"`
	Date    Date                 `json:"date"`
	Status  DayStatus            `json:"status"`
	Windows []AvailabilityWindow `json:"windows"`
}

// =============================================================================
// CALENDAR-DAY CACHE ROW - raw upstream materialization
// =============================================================================

// CalendarDay is a row of the upstream per-day cache. FirstBlockStart and
// LastBlockEnd bound the day's teaching blocks; either may be empty.
type CalendarDay struct {
	FamilyID        FamilyID
	ChildID         ChildID
	Date            Date
	Status          DayStatus
	FirstBlockStart string
	LastBlockEnd    string
	Frozen          bool
}

// =============================================================================
// BLACKOUT PERIODS
// =============================================================================

// BlackoutPeriod is a date range with no teaching time, scoped to the
// whole family (ChildID empty) or one child. Immutable once created
// except by explicit deletion.
type BlackoutPeriod struct {
	ID       string   `json:"id"`
	FamilyID FamilyID `json:"family_id"`
	ChildID  ChildID  `json:"child_id,omitempty"` // empty = applies to all children
	StartsOn Date     `json:"starts_on"`
	EndsOn   Date     `json:"ends_on"`
	Label    string   `json:"label,omitempty"`
}

// AppliesTo reports whether the period blacks out the given child/date.
func (b BlackoutPeriod) AppliesTo(child ChildID, date Date) bool {
	if b.ChildID != "" && b.ChildID != child {
		return false
	}
	return !date.Before(b.StartsOn) && !date.After(b.EndsOn)
}

// BlackoutCalendar answers blackout lookups over a loaded set of periods.
type BlackoutCalendar []BlackoutPeriod

func (c BlackoutCalendar) IsBlackedOut(child ChildID, date Date) bool {
	for _, b := range c {
		if b.AppliesTo(child, date) {
			return true
		}
	}
	return false
}

// =============================================================================
// DERIVATION - cache row + blackouts -> resolved availability
// =============================================================================

// DeriveAvailability resolves one (child, date) pair. The cache row may be
// nil (no row for that date). Blackout dominance: a blacked-out day is
// "off" regardless of what the cache says.
func DeriveAvailability(child ChildID, date Date, row *CalendarDay, blackouts BlackoutCalendar) DayAvailability {
	status := DayOff
	first, last := "", ""
	if row != nil {
		if row.Status != "" {
			status = row.Status
		}
		first, last = row.FirstBlockStart, row.LastBlockEnd
	}

	if blackouts.IsBlackedOut(child, date) {
		status = DayOff
	}

	day := DayAvailability{ChildID: child, Date: date, Status: status}
	if status != DayOff && first != "" && last != "" {
		day.Windows = []AvailabilityWindow{{Start: first, End: last, Status: status}}
	}
	return day
}
