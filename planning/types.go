/*
Package planning provides the core scheduling engine.

PURPOSE:
  This package contains the domain types and algorithms for
  constraint-validated scheduling: the availability model, the planning
  context builder that assembles a normalized view of a family's
  calendar, the daily-cap validator that filters proposed schedule
  mutations, and the plan-change ledger that tracks approval and
  application of those mutations.

KEY CONCEPTS IN THIS FILE (types.go):
  - ScheduledEvent: A session on a child's calendar
  - Child: A family member events are scheduled for
  - RequiredMinutes / Velocity / OutcomeRecord: planning signals
  - Typed identifiers (FamilyID, ChildID, ...) to prevent mixing

DESIGN PRINCIPLES:
  1. Fail closed: a day the system cannot verify is a day nothing gets
     scheduled on.
  2. Order matters: batch proposals are validated with running totals so
     individually-small items cannot collectively blow the daily cap.
  3. Partial context beats no context: every sub-load except blackouts
     may degrade to empty, logged, never raised.

SEE ALSO:
  - availability.go: Windows, blackouts, calendar-day cache rows
  - context.go: PlanningContext and its builder
  - validator.go: Daily-cap validation
  - plan.go: Plan-change ledger and apply lifecycle
*/
package planning

import (
	"time"

	"github.com/shopspring/decimal"
)

// =============================================================================
// IDENTIFIERS
// =============================================================================

type FamilyID string
type ChildID string
type SubjectID string
type EventID string
type PlanID string
type ChangeID string

// =============================================================================
// SCHEDULED EVENT - A session on the calendar
// =============================================================================

type EventStatus string

const (
	EventScheduled EventStatus = "scheduled"
	EventDone      EventStatus = "done"
	EventMissed    EventStatus = "missed"
)

type EventSource string

const (
	SourceManual       EventSource = "manual"
	SourceAI           EventSource = "ai"
	SourceYearPlanSeed EventSource = "year_plan_seed"
)

// ScheduledEvent is exclusively owned by its family; the child reference
// is informational, not an ownership boundary.
type ScheduledEvent struct {
	ID        EventID     `json:"id"`
	FamilyID  FamilyID    `json:"family_id"`
	ChildID   ChildID     `json:"child_id"`
	SubjectID SubjectID   `json:"subject_id,omitempty"` // empty = no subject
	Title     string      `json:"title"`
	Start     time.Time   `json:"start_ts"`
	End       time.Time   `json:"end_ts"`
	Status    EventStatus `json:"status"`
	Source    EventSource `json:"source"`

	// Reschedule audit trail. Set when Start/End are mutated in place.
	RescheduleOrigin string `json:"reschedule_origin,omitempty"`
	RescheduleReason string `json:"reschedule_reason,omitempty"`

	CreatedAt time.Time `json:"created_at,omitempty"`
}

// DurationMinutes computes the event's length from its stored bounds.
func (e ScheduledEvent) DurationMinutes() int {
	if e.End.Before(e.Start) {
		return 0
	}
	return int(e.End.Sub(e.Start).Minutes())
}

// Date returns the local calendar day the event starts on.
func (e ScheduledEvent) Date() Date {
	return DateOf(e.Start)
}

// =============================================================================
// CHILD
// =============================================================================

type Child struct {
	ID       ChildID
	FamilyID FamilyID
	Name     string
	Grade    string
	Archived bool
}

// =============================================================================
// PLANNING SIGNALS - external aggregations attached to the context as-is
// =============================================================================

// RequiredMinutes is a per-child per-subject weekly teaching target.
type RequiredMinutes struct {
	ChildID   ChildID   `json:"child_id"`
	SubjectID SubjectID `json:"subject_id"`
	WeekStart Date      `json:"week_start"`
	Minutes   int       `json:"minutes"`
}

// Velocity captures how fast a child moves through a subject relative
// to plan. Multiplier 1 = on pace; below 1 = slower, allocate more time.
type Velocity struct {
	ChildID    ChildID         `json:"child_id"`
	SubjectID  SubjectID       `json:"subject_id"`
	Multiplier decimal.Decimal `json:"multiplier"`
}

// OutcomeRecord is a parent/tutor report attached to a completed session.
type OutcomeRecord struct {
	ChildID   ChildID
	SubjectID SubjectID
	Struggles []string
	Strengths []string
	Rating    decimal.Decimal // 0 = unrated
	CreatedAt time.Time
}

// StandardsPreference marks a curriculum standard set a child is tracked
// against.
type StandardsPreference struct {
	ChildID    ChildID
	StateCode  string
	GradeLevel string
	SubjectID  SubjectID // empty = all subjects
	Active     bool
}

// StandardsGap is a standard not yet evidenced as covered.
type StandardsGap struct {
	Code        string `json:"code"`
	Subject     string `json:"subject"`
	Description string `json:"description"`
}
