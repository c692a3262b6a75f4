/*
store.go - Persistence interfaces between the engine and the datastore

PURPOSE:
  The hosted datastore is an external collaborator. The engine consumes
  a set of read operations (children, calendar-day cache, blackouts,
  events, outcomes, standards) and produces a set of write operations
  (insert/update/delete events, plan + plan-change bookkeeping,
  best-effort cache refresh). These interfaces are that boundary.

IMPLEMENTATIONS:
  - store/sqlite: production SQLite store
  - planning/store: in-memory store for tests and dev

SEE ALSO:
  - context.go: reads through CalendarStore/EventStore/InsightStore
  - plan.go: writes through PlanStore/EventStore
*/
package planning

import (
	"context"
	"time"
)

// =============================================================================
// READS
// =============================================================================

// CalendarStore serves the calendar-shaped reads the context builder needs.
type CalendarStore interface {
	// Children returns all children of a family, archived included.
	Children(ctx context.Context, family FamilyID) ([]Child, error)

	// CalendarDays returns cache rows for a family over a window.
	CalendarDays(ctx context.Context, family FamilyID, window DateRange) ([]CalendarDay, error)

	// Blackouts returns periods overlapping the window for the family,
	// family-wide and child-scoped alike.
	Blackouts(ctx context.Context, family FamilyID, window DateRange) ([]BlackoutPeriod, error)
}

// InsightStore serves the softer planning signals. Each of these loads
// may fail without sinking a context build.
type InsightStore interface {
	RequiredMinutes(ctx context.Context, family FamilyID, child ChildID, weekStart Date, weeks int) ([]RequiredMinutes, error)
	Velocities(ctx context.Context, family FamilyID, children []ChildID) ([]Velocity, error)

	// Outcomes returns outcome records for the children created at or
	// after the given time.
	Outcomes(ctx context.Context, family FamilyID, children []ChildID, since time.Time) ([]OutcomeRecord, error)

	StandardsPreferences(ctx context.Context, child ChildID) ([]StandardsPreference, error)
	StandardsGaps(ctx context.Context, child ChildID, pref StandardsPreference, limit int) ([]StandardsGap, error)
}

// =============================================================================
// WRITES
// =============================================================================

// EventStore reads and mutates scheduled events.
type EventStore interface {
	// EventsInWindow returns events for the given children whose start
	// falls inside the window. An empty child set means all children.
	EventsInWindow(ctx context.Context, family FamilyID, children []ChildID, window DateRange) ([]ScheduledEvent, error)

	// EventsByID returns the family's events matching ids; unknown ids
	// are silently omitted.
	EventsByID(ctx context.Context, family FamilyID, ids []EventID) ([]ScheduledEvent, error)

	InsertEvent(ctx context.Context, ev ScheduledEvent) (ScheduledEvent, error)

	// UpdateEventTimes mutates start/end in place and sets the status,
	// recording the origin/reason pair for the audit trail.
	UpdateEventTimes(ctx context.Context, id EventID, start, end time.Time, status EventStatus, origin, reason string) error

	DeleteEvent(ctx context.Context, id EventID) error
}

// PlanStore persists plans and their changes.
type PlanStore interface {
	InsertPlan(ctx context.Context, plan Plan) error
	Plan(ctx context.Context, id PlanID) (Plan, error)
	InsertChanges(ctx context.Context, changes []PlanChange) error
	Changes(ctx context.Context, plan PlanID) ([]PlanChange, error)

	// MarkChangeApplied flips applied=true (and approved=true) on one
	// change. The applied flag is the unit of atomicity for the apply
	// loop.
	MarkChangeApplied(ctx context.Context, change ChangeID) error

	UpdatePlanStatus(ctx context.Context, plan PlanID, status PlanStatus, appliedAt time.Time) error
}

// TaskRunStore records the audit trail of strategy invocations.
type TaskRunStore interface {
	InsertTaskRun(ctx context.Context, run TaskRun) error
	UpdateTaskRun(ctx context.Context, run TaskRun) error
}

// CacheRefresher triggers a best-effort rematerialization of the
// calendar-day cache for a window. Failures are non-fatal and logged only.
type CacheRefresher interface {
	RefreshWindow(ctx context.Context, family FamilyID, window DateRange) error
}

// =============================================================================
// TASK RUN - audit record for one strategy invocation
// =============================================================================

type TaskStatus string

const (
	TaskPending   TaskStatus = "pending"
	TaskRunning   TaskStatus = "running"
	TaskSucceeded TaskStatus = "succeeded"
	TaskFailed    TaskStatus = "failed"
)

type TaskRun struct {
	ID          string
	FamilyID    FamilyID
	Kind        string // "pack_week", "catch_up", "suggest_plan"
	Params      map[string]any
	Status      TaskStatus
	Result      map[string]any
	Error       string
	CreatedAt   time.Time
	StartedAt   time.Time
	CompletedAt time.Time
}
