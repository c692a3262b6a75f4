/*
context.go - Planning context assembly

PURPOSE:
  Builds the PlanningContext: the single normalized view of a family's
  calendar handed to the LLM and consulted by the daily-cap validator.
  Availability, events, blackouts, per-day minute totals, struggle tags
  and standards gaps are assembled for a (family, window, children)
  tuple.

LOAD POLICY:
  Blackouts load first and their failure is fatal - there is no safe
  default for blackout handling. Every other sub-load degrades to empty
  with a logged component name. Frozen days are a hard exclusion applied
  after availability and events are loaded.

FAIL-CLOSED:
  A date with no calendar-day cache row resolves to "off". No proposed
  time is better than an over-scheduled time the system cannot verify.

SEE ALSO:
  - availability.go: DeriveAvailability
  - validator.go: consumes CurrentMinutesByDay
*/
package planning

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"time"

	"go.uber.org/zap"

	"github.com/hearthplan/planner-engine/telemetry"
)

// DefaultMaxMinutesPerDay is the per-child daily scheduling cap.
// Family-configurable in principle, a fixed default in practice.
const DefaultMaxMinutesPerDay = 240

// struggleWindowDays bounds how far back outcome records are scanned
// for struggle tags.
const struggleWindowDays = 30

// maxGapsPerChild caps standards gaps attached per child.
const maxGapsPerChild = 10

// =============================================================================
// PLANNING CONTEXT
// =============================================================================

// MinuteLedger maps date -> child -> total scheduled minutes. Derived,
// never stored; it exists only to validate proposals against the cap.
type MinuteLedger map[Date]map[ChildID]int

func (l MinuteLedger) Clone() MinuteLedger {
	out := make(MinuteLedger, len(l))
	for d, byChild := range l {
		m := make(map[ChildID]int, len(byChild))
		for c, mins := range byChild {
			m[c] = mins
		}
		out[d] = m
	}
	return out
}

func (l MinuteLedger) Minutes(d Date, c ChildID) int {
	return l[d][c]
}

func (l MinuteLedger) Add(d Date, c ChildID, minutes int) {
	byChild, ok := l[d]
	if !ok {
		byChild = make(map[ChildID]int)
		l[d] = byChild
	}
	byChild[c] += minutes
}

// PlanningContext is an ephemeral aggregate: the sole input handed to
// the LLM and the sole input the validator consults.
type PlanningContext struct {
	FamilyID FamilyID  `json:"family_id"`
	Window   DateRange `json:"window"`
	Children []ChildID `json:"children"`

	Availability []DayAvailability `json:"availability"`
	Events       []ScheduledEvent  `json:"events"`
	Blackouts    []BlackoutPeriod  `json:"blackouts"`

	RequiredMinutes []RequiredMinutes `json:"required_minutes"`
	Velocities      []Velocity        `json:"velocities"`

	// RecentStruggles groups deduplicated struggle tags by a
	// "child:subject" key ("none" when the subject is unset).
	RecentStruggles map[string][]string `json:"recent_struggles"`

	StandardsGaps map[ChildID][]StandardsGap `json:"standards_gaps"`

	MaxMinutesPerDay    int          `json:"max_minutes_per_day"`
	CurrentMinutesByDay MinuteLedger `json:"current_minutes_by_day"`
}

// StruggleKey builds the RecentStruggles map key.
func StruggleKey(child ChildID, subject SubjectID) string {
	if subject == "" {
		return string(child) + ":none"
	}
	return string(child) + ":" + string(subject)
}

// =============================================================================
// CONTEXT BUILDER
// =============================================================================

type ContextBuilder struct {
	Calendar CalendarStore
	Events   EventStore
	Insights InsightStore

	// Gaps is an optional cache for standards-gap lookups, the one
	// genuinely expensive external aggregation. Nil disables caching.
	Gaps telemetry.Cache

	// MaxMinutesPerDay overrides the default cap when positive.
	MaxMinutesPerDay int

	Log *zap.Logger
}

func (b *ContextBuilder) logger() *zap.Logger {
	if b.Log == nil {
		return zap.NewNop()
	}
	return b.Log
}

func (b *ContextBuilder) cap() int {
	if b.MaxMinutesPerDay > 0 {
		return b.MaxMinutesPerDay
	}
	return DefaultMaxMinutesPerDay
}

// Build assembles a complete PlanningContext. The child set must be
// non-empty; callers resolve "all children" before calling.
func (b *ContextBuilder) Build(ctx context.Context, family FamilyID, weekStart Date, children []ChildID, horizonWeeks int) (*PlanningContext, error) {
	if family == "" {
		return nil, fmt.Errorf("%w: family id required", ErrConfiguration)
	}
	if len(children) == 0 {
		return nil, fmt.Errorf("%w: child set must be non-empty", ErrConfiguration)
	}
	if horizonWeeks < 1 {
		return nil, fmt.Errorf("%w: horizon must be at least one week", ErrConfiguration)
	}

	window := Window(weekStart, horizonWeeks)
	log := b.logger().With(
		zap.String("family_id", string(family)),
		zap.String("window", window.String()),
	)
	log.Info("planning.load.start", zap.Int("children", len(children)))

	// Blackouts first: their failure is the one fatal sub-load.
	blackouts, err := b.Calendar.Blackouts(ctx, family, window)
	if err != nil {
		log.Error("planning.blackouts.error", zap.Error(err))
		return nil, &ContextBuildError{Component: "blackouts", Err: err}
	}
	calendar := BlackoutCalendar(blackouts)

	days, err := b.Calendar.CalendarDays(ctx, family, window)
	if err != nil {
		log.Warn("planning.cache.error", zap.Error(err))
		days = nil // degraded: every day resolves to off
	}
	dayRows := make(map[Date]map[ChildID]*CalendarDay, len(days))
	frozen := make(map[Date]bool)
	for i := range days {
		row := &days[i]
		byChild, ok := dayRows[row.Date]
		if !ok {
			byChild = make(map[ChildID]*CalendarDay)
			dayRows[row.Date] = byChild
		}
		byChild[row.ChildID] = row
		if row.Frozen {
			frozen[row.Date] = true
		}
	}

	var availability []DayAvailability
	for _, child := range children {
		for _, date := range window.Days() {
			availability = append(availability, DeriveAvailability(child, date, dayRows[date][child], calendar))
		}
	}

	events, err := b.Events.EventsInWindow(ctx, family, children, window)
	if err != nil {
		log.Warn("planning.events.error", zap.Error(err))
		events = nil
	}

	// Frozen days are a hard exclusion: no availability, no events.
	availability = dropFrozenAvailability(availability, frozen)
	events = dropFrozenEvents(events, frozen)
	if len(frozen) > 0 {
		log.Info("planning.frozen.filtered", zap.Int("frozen_days", len(frozen)))
	}

	pctx := &PlanningContext{
		FamilyID:            family,
		Window:              window,
		Children:            children,
		Availability:        availability,
		Events:              events,
		Blackouts:           blackouts,
		RecentStruggles:     map[string][]string{},
		StandardsGaps:       map[ChildID][]StandardsGap{},
		MaxMinutesPerDay:    b.cap(),
		CurrentMinutesByDay: ledgerFromEvents(events),
	}

	b.loadRequiredMinutes(ctx, pctx, weekStart, horizonWeeks, log)
	b.loadVelocities(ctx, pctx, log)
	b.loadStruggles(ctx, pctx, weekStart, log)
	b.loadStandardsGaps(ctx, pctx, log)

	log.Info("planning.load.complete",
		zap.Int("availability", len(pctx.Availability)),
		zap.Int("events", len(pctx.Events)),
		zap.Int("blackouts", len(pctx.Blackouts)),
		zap.Int("struggle_keys", len(pctx.RecentStruggles)),
	)
	return pctx, nil
}

// BuildBasic assembles a degraded-but-functional context from the
// calendar-day cache and events alone. Strategies fall back to it when
// the full build fails.
func (b *ContextBuilder) BuildBasic(ctx context.Context, family FamilyID, weekStart Date, children []ChildID, horizonWeeks int) (*PlanningContext, error) {
	if family == "" || len(children) == 0 {
		return nil, fmt.Errorf("%w: family and children required", ErrConfiguration)
	}
	window := Window(weekStart, horizonWeeks)

	days, err := b.Calendar.CalendarDays(ctx, family, window)
	if err != nil {
		return nil, &ContextBuildError{Component: "calendar_days", Err: err}
	}
	dayRows := make(map[Date]map[ChildID]*CalendarDay, len(days))
	for i := range days {
		row := &days[i]
		if dayRows[row.Date] == nil {
			dayRows[row.Date] = make(map[ChildID]*CalendarDay)
		}
		dayRows[row.Date][row.ChildID] = row
	}

	var availability []DayAvailability
	for _, child := range children {
		for _, date := range window.Days() {
			availability = append(availability, DeriveAvailability(child, date, dayRows[date][child], nil))
		}
	}

	events, err := b.Events.EventsInWindow(ctx, family, children, window)
	if err != nil {
		b.logger().Warn("planning.basic.events.error", zap.Error(err))
		events = nil
	}

	return &PlanningContext{
		FamilyID:            family,
		Window:              window,
		Children:            children,
		Availability:        availability,
		Events:              events,
		RecentStruggles:     map[string][]string{},
		StandardsGaps:       map[ChildID][]StandardsGap{},
		MaxMinutesPerDay:    b.cap(),
		CurrentMinutesByDay: ledgerFromEvents(events),
	}, nil
}

// =============================================================================
// SUB-LOADS - each degrades to empty, logged, never fatal
// =============================================================================

func (b *ContextBuilder) loadRequiredMinutes(ctx context.Context, pctx *PlanningContext, weekStart Date, weeks int, log *zap.Logger) {
	for _, child := range pctx.Children {
		rows, err := b.Insights.RequiredMinutes(ctx, pctx.FamilyID, child, weekStart, weeks)
		if err != nil {
			log.Warn("planning.required_minutes.error", zap.String("child_id", string(child)), zap.Error(err))
			continue
		}
		pctx.RequiredMinutes = append(pctx.RequiredMinutes, rows...)
	}
}

func (b *ContextBuilder) loadVelocities(ctx context.Context, pctx *PlanningContext, log *zap.Logger) {
	rows, err := b.Insights.Velocities(ctx, pctx.FamilyID, pctx.Children)
	if err != nil {
		log.Warn("planning.velocity.error", zap.Error(err))
		return
	}
	pctx.Velocities = rows
}

func (b *ContextBuilder) loadStruggles(ctx context.Context, pctx *PlanningContext, weekStart Date, log *zap.Logger) {
	since := weekStart.AddDays(-struggleWindowDays).Time()
	outcomes, err := b.Insights.Outcomes(ctx, pctx.FamilyID, pctx.Children, since)
	if err != nil {
		log.Warn("planning.struggles.error", zap.Error(err))
		return
	}

	seen := map[string]map[string]bool{}
	for _, o := range outcomes {
		if len(o.Struggles) == 0 {
			continue
		}
		key := StruggleKey(o.ChildID, o.SubjectID)
		if seen[key] == nil {
			seen[key] = map[string]bool{}
		}
		for _, tag := range o.Struggles {
			seen[key][tag] = true
		}
	}
	for key, tags := range seen {
		list := make([]string, 0, len(tags))
		for tag := range tags {
			list = append(list, tag)
		}
		sort.Strings(list)
		pctx.RecentStruggles[key] = list
	}
}

func (b *ContextBuilder) loadStandardsGaps(ctx context.Context, pctx *PlanningContext, log *zap.Logger) {
	for _, child := range pctx.Children {
		if gaps, ok := b.cachedGaps(ctx, child); ok {
			if len(gaps) > 0 {
				pctx.StandardsGaps[child] = gaps
			}
			continue
		}

		prefs, err := b.Insights.StandardsPreferences(ctx, child)
		if err != nil {
			log.Warn("planning.standards_gaps.error", zap.String("child_id", string(child)), zap.Error(err))
			continue
		}

		var gaps []StandardsGap
		for _, pref := range prefs {
			if !pref.Active {
				continue
			}
			rows, err := b.Insights.StandardsGaps(ctx, child, pref, maxGapsPerChild)
			if err != nil {
				log.Warn("planning.standards_gaps.rpc.error", zap.String("child_id", string(child)), zap.Error(err))
				continue
			}
			gaps = append(gaps, rows...)
		}
		if len(gaps) > maxGapsPerChild {
			gaps = gaps[:maxGapsPerChild]
		}
		b.storeGaps(ctx, child, gaps)
		if len(gaps) > 0 {
			pctx.StandardsGaps[child] = gaps
		}
	}
}

// =============================================================================
// GAP CACHE
// =============================================================================

const gapCacheTTL = 5 * time.Minute

func gapCacheKey(child ChildID) string { return "stdgaps:" + string(child) }

func (b *ContextBuilder) cachedGaps(ctx context.Context, child ChildID) ([]StandardsGap, bool) {
	if b.Gaps == nil {
		return nil, false
	}
	raw, ok, err := b.Gaps.Get(ctx, gapCacheKey(child))
	if err != nil || !ok {
		return nil, false
	}
	var gaps []StandardsGap
	if err := json.Unmarshal([]byte(raw), &gaps); err != nil {
		return nil, false
	}
	return gaps, true
}

func (b *ContextBuilder) storeGaps(ctx context.Context, child ChildID, gaps []StandardsGap) {
	if b.Gaps == nil {
		return
	}
	raw, err := json.Marshal(gaps)
	if err != nil {
		return
	}
	// Best effort: a cache miss next time is the worst outcome.
	_ = b.Gaps.Set(ctx, gapCacheKey(child), string(raw), gapCacheTTL)
}

// =============================================================================
// HELPERS
// =============================================================================

func ledgerFromEvents(events []ScheduledEvent) MinuteLedger {
	ledger := MinuteLedger{}
	for _, ev := range events {
		mins := ev.DurationMinutes()
		if ev.ChildID == "" || mins <= 0 {
			continue
		}
		ledger.Add(ev.Date(), ev.ChildID, mins)
	}
	return ledger
}

func dropFrozenAvailability(entries []DayAvailability, frozen map[Date]bool) []DayAvailability {
	if len(frozen) == 0 {
		return entries
	}
	out := entries[:0]
	for _, a := range entries {
		if !frozen[a.Date] {
			out = append(out, a)
		}
	}
	return out
}

func dropFrozenEvents(events []ScheduledEvent, frozen map[Date]bool) []ScheduledEvent {
	if len(frozen) == 0 {
		return events
	}
	out := events[:0]
	for _, ev := range events {
		if !frozen[ev.Date()] {
			out = append(out, ev)
		}
	}
	return out
}
