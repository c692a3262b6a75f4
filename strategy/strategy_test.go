package strategy_test

import (
	"context"
	"testing"
	"time"

	"github.com/hearthplan/planner-engine/llm"
	"github.com/hearthplan/planner-engine/planning"
	"github.com/hearthplan/planner-engine/planning/store"
	"github.com/hearthplan/planner-engine/strategy"
	"github.com/hearthplan/planner-engine/telemetry"
)

// =============================================================================
// SHARED TEST SETUP - see packweek_test.go, catchup_test.go, suggest_test.go
// =============================================================================

const testFamily = planning.FamilyID("fam-1")

var monday = planning.NewDate(2026, time.March, 2)

// fakeClient returns canned proposals.
type fakeClient struct {
	packWeek *llm.PackWeekProposal
	catchUp  *llm.CatchUpProposal
	suggest  *llm.PlanProposal
	err      error

	// lastContext captures what the strategy handed to the model.
	lastContext *planning.PlanningContext
}

func (f *fakeClient) PackWeek(_ context.Context, pctx *planning.PlanningContext) (*llm.PackWeekProposal, error) {
	f.lastContext = pctx
	return f.packWeek, f.err
}

func (f *fakeClient) CatchUp(_ context.Context, pctx *planning.PlanningContext, _ []planning.ScheduledEvent) (*llm.CatchUpProposal, error) {
	f.lastContext = pctx
	return f.catchUp, f.err
}

func (f *fakeClient) SuggestPlan(_ context.Context, pctx *planning.PlanningContext) (*llm.PlanProposal, error) {
	f.lastContext = pctx
	return f.suggest, f.err
}

func newDeps(mem *store.Memory, client strategy.ProposalClient) strategy.Deps {
	return strategy.Deps{
		Builder:   &planning.ContextBuilder{Calendar: mem, Events: mem, Insights: mem},
		Validator: planning.DailyCapValidator{},
		Calendar:  mem,
		Events:    mem,
		Plans:     mem,
		TaskRuns:  mem,
		Client:    client,
		Metrics:   telemetry.NewMemorySink(),
	}
}

// seedFamily registers children with teach days covering a week back
// and three weeks forward of the test Monday.
func seedFamily(t *testing.T, mem *store.Memory, children ...string) {
	t.Helper()
	for _, c := range children {
		mem.AddChild(planning.Child{ID: planning.ChildID(c), FamilyID: testFamily, Name: c})
		for d := -7; d < 21; d++ {
			mem.AddCalendarDay(planning.CalendarDay{
				FamilyID:        testFamily,
				ChildID:         planning.ChildID(c),
				Date:            monday.AddDays(d),
				Status:          planning.DayTeach,
				FirstBlockStart: "09:00",
				LastBlockEnd:    "15:00",
			})
		}
	}
}

func ts(day, hour int) time.Time {
	return time.Date(2026, time.March, day, hour, 0, 0, 0, time.UTC)
}

func lastRun(t *testing.T, mem *store.Memory, kind string) planning.TaskRun {
	t.Helper()
	for _, run := range mem.TaskRuns() {
		if run.Kind == kind {
			return run
		}
	}
	t.Fatalf("no task run of kind %s", kind)
	return planning.TaskRun{}
}
