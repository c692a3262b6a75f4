package planning_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hearthplan/planner-engine/planning"
)

// =============================================================================
// TEST SETUP
// =============================================================================

func ts(day, hour, min int) time.Time {
	return time.Date(2026, time.March, day, hour, min, 0, 0, time.UTC)
}

func session(child string, day, hour, durationMin int) planning.ProposedSession {
	start := ts(day, hour, 0)
	return planning.ProposedSession{
		ChildID: planning.ChildID(child),
		Title:   "Math",
		Start:   start,
		End:     start.Add(time.Duration(durationMin) * time.Minute),
	}
}

func contextWithLedger(ledger planning.MinuteLedger) *planning.PlanningContext {
	return &planning.PlanningContext{
		MaxMinutesPerDay:    planning.DefaultMaxMinutesPerDay,
		CurrentMinutesByDay: ledger,
	}
}

// =============================================================================
// RUNNING-TOTAL TESTS
// =============================================================================

func TestValidate_BatchRunningTotal(t *testing.T) {
	// GIVEN: An empty day and three 100-minute sessions for one child
	pctx := contextWithLedger(planning.MinuteLedger{})
	batch := []planning.ProposedSession{
		session("c1", 2, 9, 100),
		session("c1", 2, 11, 100),
		session("c1", 2, 14, 100),
	}

	// WHEN: Validating against the 240-minute cap
	accepted, res := planning.DailyCapValidator{}.Validate(pctx, batch)

	// THEN: Only the first two fit; the third would push the day to 300
	require.Len(t, accepted, 2)
	assert.Equal(t, 2, res.Accepted)
	assert.Equal(t, 1, res.Rejected)
	assert.Equal(t, []int{0, 1}, res.AcceptedIndexes)
}

func TestValidate_SeededFromExistingMinutes(t *testing.T) {
	// GIVEN: A child already has 200 minutes scheduled on the day
	ledger := planning.MinuteLedger{}
	ledger.Add(planning.NewDate(2026, time.March, 2), "c1", 200)
	pctx := contextWithLedger(ledger)

	// WHEN: Proposing a 60-minute session on that day
	accepted, res := planning.DailyCapValidator{}.Validate(pctx, []planning.ProposedSession{
		session("c1", 2, 9, 60),
	})

	// THEN: Rejected; 200 + 60 exceeds the cap
	assert.Empty(t, accepted)
	assert.Equal(t, 1, res.Rejected)
}

func TestValidate_FullDayRejectsWholeBatch(t *testing.T) {
	// GIVEN: 200 minutes already scheduled and three 60-minute proposals
	ledger := planning.MinuteLedger{}
	ledger.Add(planning.NewDate(2026, time.March, 2), "c1", 200)
	pctx := contextWithLedger(ledger)

	accepted, res := planning.DailyCapValidator{}.Validate(pctx, []planning.ProposedSession{
		session("c1", 2, 9, 60),
		session("c1", 2, 11, 60),
		session("c1", 2, 13, 60),
	})

	// THEN: Even the first would push the day to 260; all three go
	assert.Empty(t, accepted)
	assert.Equal(t, 3, res.Rejected)
	assert.Contains(t, res.Note, "3 event(s)")
	assert.Contains(t, res.Note, "daily cap of 240")
}

func TestValidate_MaximalPrefixOnEmptyDay(t *testing.T) {
	// GIVEN: An empty day and sessions of 60, 90, 60, 60 minutes in order
	pctx := contextWithLedger(planning.MinuteLedger{})

	accepted, res := planning.DailyCapValidator{}.Validate(pctx, []planning.ProposedSession{
		session("c1", 2, 9, 60),
		session("c1", 2, 10, 90),
		session("c1", 2, 12, 60),
		session("c1", 2, 13, 60),
	})

	// THEN: Running totals 60, 150, 210 fit; the fourth would reach 270
	require.Len(t, accepted, 3)
	assert.Equal(t, []int{0, 1, 2}, res.AcceptedIndexes)
	assert.Equal(t, 1, res.Rejected)
}

func TestValidate_PerChildBudgets(t *testing.T) {
	// GIVEN: Two children proposing 240 minutes each on the same day
	pctx := contextWithLedger(planning.MinuteLedger{})
	batch := []planning.ProposedSession{
		session("c1", 2, 9, 240),
		session("c2", 2, 9, 240),
	}

	// WHEN: Validating
	accepted, res := planning.DailyCapValidator{}.Validate(pctx, batch)

	// THEN: Budgets are per child; both fit
	assert.Len(t, accepted, 2)
	assert.Zero(t, res.Rejected)
}

func TestValidate_OrderDependence(t *testing.T) {
	// GIVEN: A 200-minute session before a 60-minute one
	pctx := contextWithLedger(planning.MinuteLedger{})
	accepted, _ := planning.DailyCapValidator{}.Validate(pctx, []planning.ProposedSession{
		session("c1", 2, 9, 200),
		session("c1", 2, 13, 60),
	})

	// THEN: The large session claimed the budget first
	require.Len(t, accepted, 1)
	assert.Equal(t, 200, accepted[0].Minutes())
}

// =============================================================================
// FAIL-CLOSED TESTS
// =============================================================================

func TestValidate_UnpriceableItemsRejected(t *testing.T) {
	pctx := contextWithLedger(planning.MinuteLedger{})

	missingChild := session("", 2, 9, 60)
	zeroStart := planning.ProposedSession{ChildID: "c1", Title: "Math", End: ts(2, 10, 0)}
	backwards := planning.ProposedSession{ChildID: "c1", Title: "Math", Start: ts(2, 10, 0), End: ts(2, 9, 0)}

	accepted, res := planning.DailyCapValidator{}.Validate(pctx, []planning.ProposedSession{
		missingChild, zeroStart, backwards, session("c1", 2, 9, 60),
	})

	require.Len(t, accepted, 1)
	assert.Equal(t, 3, res.Rejected)
	assert.Equal(t, []int{3}, res.AcceptedIndexes)
}

func TestValidate_NilContextUsesDefaultCap(t *testing.T) {
	accepted, res := planning.DailyCapValidator{}.Validate(nil, []planning.ProposedSession{
		session("c1", 2, 9, 240),
		session("c1", 2, 14, 1),
	})

	require.Len(t, accepted, 1)
	assert.Equal(t, 1, res.Rejected)
}

// =============================================================================
// MOVE CREDIT-BACK TESTS
// =============================================================================

func TestValidate_MoveCreditsBackOldSlot(t *testing.T) {
	// GIVEN: A child's day is full with one 240-minute block
	day := planning.NewDate(2026, time.March, 2)
	ledger := planning.MinuteLedger{}
	ledger.Add(day, "c1", 240)
	pctx := contextWithLedger(ledger)

	// WHEN: Moving that block to a later slot on the same day
	move := session("c1", 2, 13, 240)
	move.ReleaseStart = ts(2, 8, 0)
	move.ReleaseEnd = ts(2, 12, 0)
	accepted, res := planning.DailyCapValidator{}.Validate(pctx, []planning.ProposedSession{move})

	// THEN: The old slot's minutes are credited back before charging
	require.Len(t, accepted, 1)
	assert.Zero(t, res.Rejected)
}

func TestValidate_MoveToFullTargetDayRejected(t *testing.T) {
	// GIVEN: The target day is already at cap
	target := planning.NewDate(2026, time.March, 3)
	ledger := planning.MinuteLedger{}
	ledger.Add(target, "c1", 240)
	pctx := contextWithLedger(ledger)

	// WHEN: Moving a 60-minute block from March 2 onto March 3
	move := session("c1", 3, 9, 60)
	move.ReleaseStart = ts(2, 9, 0)
	move.ReleaseEnd = ts(2, 10, 0)
	accepted, res := planning.DailyCapValidator{}.Validate(pctx, []planning.ProposedSession{move})

	// THEN: Credit lands on the old day and doesn't help the new one
	assert.Empty(t, accepted)
	assert.Equal(t, 1, res.Rejected)
}

func TestValidate_RejectedMoveLeavesNoCredit(t *testing.T) {
	// GIVEN: Target day full, then a small add on the source day
	source := planning.NewDate(2026, time.March, 2)
	target := planning.NewDate(2026, time.March, 3)
	ledger := planning.MinuteLedger{}
	ledger.Add(source, "c1", 240)
	ledger.Add(target, "c1", 240)
	pctx := contextWithLedger(ledger)

	move := session("c1", 3, 9, 60)
	move.ReleaseStart = ts(2, 9, 0)
	move.ReleaseEnd = ts(2, 10, 0)

	// WHEN: The move is rejected and a source-day add follows
	accepted, _ := planning.DailyCapValidator{}.Validate(pctx, []planning.ProposedSession{
		move,
		session("c1", 2, 13, 30),
	})

	// THEN: The rejected move's credit never reached the shared ledger
	assert.Empty(t, accepted)
}

// =============================================================================
// RESULT NOTE
// =============================================================================

func TestValidate_NoteOnlyWhenFiltered(t *testing.T) {
	pctx := contextWithLedger(planning.MinuteLedger{})

	_, clean := planning.DailyCapValidator{}.Validate(pctx, []planning.ProposedSession{
		session("c1", 2, 9, 60),
	})
	assert.Empty(t, clean.Note)

	_, filtered := planning.DailyCapValidator{}.Validate(pctx, []planning.ProposedSession{
		session("c1", 2, 9, 240),
		session("c1", 2, 14, 60),
	})
	assert.Equal(t,
		"Note: 1 event(s) were filtered out to respect daily cap of 240 minutes per day per child",
		filtered.Note)
}

func TestValidate_ContextNotMutated(t *testing.T) {
	day := planning.NewDate(2026, time.March, 2)
	ledger := planning.MinuteLedger{}
	ledger.Add(day, "c1", 100)
	pctx := contextWithLedger(ledger)

	_, _ = planning.DailyCapValidator{}.Validate(pctx, []planning.ProposedSession{
		session("c1", 2, 9, 60),
	})

	assert.Equal(t, 100, pctx.CurrentMinutesByDay.Minutes(day, "c1"))
}
