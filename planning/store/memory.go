// Package store provides in-memory implementations of the planning
// persistence interfaces (for testing/dev).
package store

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/hearthplan/planner-engine/planning"
)

// =============================================================================
// MEMORY STORE - In-memory implementation (for testing/dev)
// =============================================================================

// Memory implements every planning store interface over process-local
// maps. The Fail* fields inject errors per read so degraded-load paths
// can be exercised.
type Memory struct {
	mu sync.RWMutex

	children  map[planning.FamilyID][]planning.Child
	days      map[planning.FamilyID][]planning.CalendarDay
	blackouts map[planning.FamilyID][]planning.BlackoutPeriod
	events    map[planning.EventID]planning.ScheduledEvent
	required  map[planning.ChildID][]planning.RequiredMinutes
	velocity  map[planning.FamilyID][]planning.Velocity
	outcomes  map[planning.FamilyID][]planning.OutcomeRecord
	prefs     map[planning.ChildID][]planning.StandardsPreference
	gaps      map[planning.ChildID][]planning.StandardsGap
	plans     map[planning.PlanID]planning.Plan
	changes   map[planning.PlanID][]planning.PlanChange
	taskRuns  map[string]planning.TaskRun

	refreshed []planning.DateRange

	FailChildren     error
	FailCalendarDays error
	FailBlackouts    error
	FailEvents       error
	FailRequired     error
	FailVelocities   error
	FailOutcomes     error
	FailStandards    error
	FailRefresh      error
}

func NewMemory() *Memory {
	return &Memory{
		children:  make(map[planning.FamilyID][]planning.Child),
		days:      make(map[planning.FamilyID][]planning.CalendarDay),
		blackouts: make(map[planning.FamilyID][]planning.BlackoutPeriod),
		events:    make(map[planning.EventID]planning.ScheduledEvent),
		required:  make(map[planning.ChildID][]planning.RequiredMinutes),
		velocity:  make(map[planning.FamilyID][]planning.Velocity),
		outcomes:  make(map[planning.FamilyID][]planning.OutcomeRecord),
		prefs:     make(map[planning.ChildID][]planning.StandardsPreference),
		gaps:      make(map[planning.ChildID][]planning.StandardsGap),
		plans:     make(map[planning.PlanID]planning.Plan),
		changes:   make(map[planning.PlanID][]planning.PlanChange),
		taskRuns:  make(map[string]planning.TaskRun),
	}
}

// =============================================================================
// SEEDING
// =============================================================================

func (m *Memory) AddChild(c planning.Child) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.children[c.FamilyID] = append(m.children[c.FamilyID], c)
}

func (m *Memory) AddCalendarDay(d planning.CalendarDay) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.days[d.FamilyID] = append(m.days[d.FamilyID], d)
}

func (m *Memory) AddBlackout(b planning.BlackoutPeriod) planning.BlackoutPeriod {
	m.mu.Lock()
	defer m.mu.Unlock()
	if b.ID == "" {
		b.ID = uuid.NewString()
	}
	m.blackouts[b.FamilyID] = append(m.blackouts[b.FamilyID], b)
	return b
}

func (m *Memory) AddRequiredMinutes(r planning.RequiredMinutes) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.required[r.ChildID] = append(m.required[r.ChildID], r)
}

func (m *Memory) AddVelocity(family planning.FamilyID, v planning.Velocity) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.velocity[family] = append(m.velocity[family], v)
}

func (m *Memory) AddOutcome(family planning.FamilyID, o planning.OutcomeRecord) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.outcomes[family] = append(m.outcomes[family], o)
}

func (m *Memory) AddStandardsPreference(p planning.StandardsPreference) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.prefs[p.ChildID] = append(m.prefs[p.ChildID], p)
}

func (m *Memory) AddStandardsGaps(child planning.ChildID, gaps ...planning.StandardsGap) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.gaps[child] = append(m.gaps[child], gaps...)
}

// RefreshedWindows returns the cache-refresh calls recorded so far.
func (m *Memory) RefreshedWindows() []planning.DateRange {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]planning.DateRange, len(m.refreshed))
	copy(out, m.refreshed)
	return out
}

// =============================================================================
// CALENDAR STORE
// =============================================================================

func (m *Memory) Children(_ context.Context, family planning.FamilyID) ([]planning.Child, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.FailChildren != nil {
		return nil, m.FailChildren
	}
	out := make([]planning.Child, len(m.children[family]))
	copy(out, m.children[family])
	return out, nil
}

func (m *Memory) Families(_ context.Context) ([]planning.FamilyID, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]planning.FamilyID, 0, len(m.children))
	for family := range m.children {
		out = append(out, family)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out, nil
}

func (m *Memory) CalendarDays(_ context.Context, family planning.FamilyID, window planning.DateRange) ([]planning.CalendarDay, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.FailCalendarDays != nil {
		return nil, m.FailCalendarDays
	}
	var out []planning.CalendarDay
	for _, d := range m.days[family] {
		if window.Contains(d.Date) {
			out = append(out, d)
		}
	}
	return out, nil
}

func (m *Memory) Blackouts(_ context.Context, family planning.FamilyID, window planning.DateRange) ([]planning.BlackoutPeriod, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.FailBlackouts != nil {
		return nil, m.FailBlackouts
	}
	var out []planning.BlackoutPeriod
	for _, b := range m.blackouts[family] {
		if !b.EndsOn.Before(window.Start) && !b.StartsOn.After(window.End) {
			out = append(out, b)
		}
	}
	return out, nil
}

// SetFrozen flips the frozen flag on the family's cache rows for the
// given dates.
func (m *Memory) SetFrozen(_ context.Context, family planning.FamilyID, dates []planning.Date, frozen bool) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	want := make(map[planning.Date]bool, len(dates))
	for _, d := range dates {
		want[d] = true
	}
	rows := m.days[family]
	for i := range rows {
		if want[rows[i].Date] {
			rows[i].Frozen = frozen
		}
	}
	return nil
}

// DeleteBlackout removes a blackout period by id.
func (m *Memory) DeleteBlackout(_ context.Context, family planning.FamilyID, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	list := m.blackouts[family]
	for i, b := range list {
		if b.ID == id {
			m.blackouts[family] = append(list[:i], list[i+1:]...)
			return nil
		}
	}
	return fmt.Errorf("blackout %s not found", id)
}

// InsertBlackout stores a new blackout period.
func (m *Memory) InsertBlackout(_ context.Context, b planning.BlackoutPeriod) (planning.BlackoutPeriod, error) {
	return m.AddBlackout(b), nil
}

// =============================================================================
// INSIGHT STORE
// =============================================================================

func (m *Memory) RequiredMinutes(_ context.Context, _ planning.FamilyID, child planning.ChildID, weekStart planning.Date, weeks int) ([]planning.RequiredMinutes, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.FailRequired != nil {
		return nil, m.FailRequired
	}
	end := weekStart.AddDays(7 * weeks)
	var out []planning.RequiredMinutes
	for _, r := range m.required[child] {
		if !r.WeekStart.Before(weekStart) && r.WeekStart.Before(end) {
			out = append(out, r)
		}
	}
	return out, nil
}

func (m *Memory) Velocities(_ context.Context, family planning.FamilyID, children []planning.ChildID) ([]planning.Velocity, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.FailVelocities != nil {
		return nil, m.FailVelocities
	}
	want := childSet(children)
	var out []planning.Velocity
	for _, v := range m.velocity[family] {
		if len(want) == 0 || want[v.ChildID] {
			out = append(out, v)
		}
	}
	return out, nil
}

func (m *Memory) Outcomes(_ context.Context, family planning.FamilyID, children []planning.ChildID, since time.Time) ([]planning.OutcomeRecord, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.FailOutcomes != nil {
		return nil, m.FailOutcomes
	}
	want := childSet(children)
	var out []planning.OutcomeRecord
	for _, o := range m.outcomes[family] {
		if o.CreatedAt.Before(since) {
			continue
		}
		if len(want) == 0 || want[o.ChildID] {
			out = append(out, o)
		}
	}
	return out, nil
}

func (m *Memory) StandardsPreferences(_ context.Context, child planning.ChildID) ([]planning.StandardsPreference, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.FailStandards != nil {
		return nil, m.FailStandards
	}
	out := make([]planning.StandardsPreference, len(m.prefs[child]))
	copy(out, m.prefs[child])
	return out, nil
}

func (m *Memory) StandardsGaps(_ context.Context, child planning.ChildID, _ planning.StandardsPreference, limit int) ([]planning.StandardsGap, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.FailStandards != nil {
		return nil, m.FailStandards
	}
	gaps := m.gaps[child]
	if limit > 0 && len(gaps) > limit {
		gaps = gaps[:limit]
	}
	out := make([]planning.StandardsGap, len(gaps))
	copy(out, gaps)
	return out, nil
}

// =============================================================================
// EVENT STORE
// =============================================================================

func (m *Memory) EventsInWindow(_ context.Context, family planning.FamilyID, children []planning.ChildID, window planning.DateRange) ([]planning.ScheduledEvent, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.FailEvents != nil {
		return nil, m.FailEvents
	}
	want := childSet(children)
	var out []planning.ScheduledEvent
	for _, ev := range m.events {
		if ev.FamilyID != family || !window.Contains(ev.Date()) {
			continue
		}
		if len(want) == 0 || want[ev.ChildID] {
			out = append(out, ev)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Start.Before(out[j].Start) })
	return out, nil
}

func (m *Memory) EventsByID(_ context.Context, family planning.FamilyID, ids []planning.EventID) ([]planning.ScheduledEvent, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.FailEvents != nil {
		return nil, m.FailEvents
	}
	var out []planning.ScheduledEvent
	for _, id := range ids {
		if ev, ok := m.events[id]; ok && ev.FamilyID == family {
			out = append(out, ev)
		}
	}
	return out, nil
}

func (m *Memory) InsertEvent(_ context.Context, ev planning.ScheduledEvent) (planning.ScheduledEvent, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if ev.ID == "" {
		ev.ID = planning.EventID(uuid.NewString())
	}
	if ev.CreatedAt.IsZero() {
		ev.CreatedAt = time.Now().UTC()
	}
	m.events[ev.ID] = ev
	return ev, nil
}

func (m *Memory) UpdateEventTimes(_ context.Context, id planning.EventID, start, end time.Time, status planning.EventStatus, origin, reason string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	ev, ok := m.events[id]
	if !ok {
		return fmt.Errorf("%w: %s", planning.ErrEventNotFound, id)
	}
	ev.Start = start
	ev.End = end
	ev.Status = status
	ev.RescheduleOrigin = origin
	ev.RescheduleReason = reason
	m.events[id] = ev
	return nil
}

func (m *Memory) DeleteEvent(_ context.Context, id planning.EventID) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.events[id]; !ok {
		return fmt.Errorf("%w: %s", planning.ErrEventNotFound, id)
	}
	delete(m.events, id)
	return nil
}

// Event returns one event by id (test helper).
func (m *Memory) Event(id planning.EventID) (planning.ScheduledEvent, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	ev, ok := m.events[id]
	return ev, ok
}

// =============================================================================
// PLAN STORE
// =============================================================================

func (m *Memory) InsertPlan(_ context.Context, plan planning.Plan) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.plans[plan.ID] = plan
	return nil
}

func (m *Memory) Plan(_ context.Context, id planning.PlanID) (planning.Plan, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	plan, ok := m.plans[id]
	if !ok {
		return planning.Plan{}, fmt.Errorf("%w: %s", planning.ErrPlanNotFound, id)
	}
	return plan, nil
}

func (m *Memory) InsertChanges(_ context.Context, changes []planning.PlanChange) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, ch := range changes {
		m.changes[ch.PlanID] = append(m.changes[ch.PlanID], ch)
	}
	return nil
}

func (m *Memory) Changes(_ context.Context, plan planning.PlanID) ([]planning.PlanChange, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]planning.PlanChange, len(m.changes[plan]))
	copy(out, m.changes[plan])
	return out, nil
}

func (m *Memory) MarkChangeApplied(_ context.Context, change planning.ChangeID) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for plan, list := range m.changes {
		for i, ch := range list {
			if ch.ID == change {
				list[i].Approved = true
				list[i].Applied = true
				m.changes[plan] = list
				return nil
			}
		}
	}
	return fmt.Errorf("change %s not found", change)
}

func (m *Memory) UpdatePlanStatus(_ context.Context, plan planning.PlanID, status planning.PlanStatus, appliedAt time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.plans[plan]
	if !ok {
		return fmt.Errorf("%w: %s", planning.ErrPlanNotFound, plan)
	}
	p.Status = status
	p.AppliedAt = appliedAt
	m.plans[plan] = p
	return nil
}

// =============================================================================
// TASK RUNS & CACHE REFRESH
// =============================================================================

func (m *Memory) InsertTaskRun(_ context.Context, run planning.TaskRun) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.taskRuns[run.ID] = run
	return nil
}

func (m *Memory) UpdateTaskRun(_ context.Context, run planning.TaskRun) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.taskRuns[run.ID]; !ok {
		return fmt.Errorf("task run %s not found", run.ID)
	}
	m.taskRuns[run.ID] = run
	return nil
}

// TaskRuns returns every recorded task run (test helper).
func (m *Memory) TaskRuns() []planning.TaskRun {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]planning.TaskRun, 0, len(m.taskRuns))
	for _, run := range m.taskRuns {
		out = append(out, run)
	}
	return out
}

// TaskRun returns one task run by id (test helper).
func (m *Memory) TaskRun(id string) (planning.TaskRun, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	run, ok := m.taskRuns[id]
	return run, ok
}

func (m *Memory) RefreshWindow(_ context.Context, _ planning.FamilyID, window planning.DateRange) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.FailRefresh != nil {
		return m.FailRefresh
	}
	m.refreshed = append(m.refreshed, window)
	return nil
}

func childSet(children []planning.ChildID) map[planning.ChildID]bool {
	set := make(map[planning.ChildID]bool, len(children))
	for _, c := range children {
		set[c] = true
	}
	return set
}
