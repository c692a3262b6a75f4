package strategy_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hearthplan/planner-engine/llm"
	"github.com/hearthplan/planner-engine/planning"
	"github.com/hearthplan/planner-engine/planning/store"
	"github.com/hearthplan/planner-engine/strategy"
	"github.com/hearthplan/planner-engine/telemetry"
)

func proposedEvent(child string, start time.Time, minutes int, title string) llm.ProposedEvent {
	return llm.ProposedEvent{
		ChildID: planning.ChildID(child),
		Title:   title,
		Start:   start,
		End:     start.Add(time.Duration(minutes) * time.Minute),
	}
}

func TestPackWeek_InsertsAcceptedEvents(t *testing.T) {
	// GIVEN: A family and a proposal of two valid sessions
	mem := store.NewMemory()
	seedFamily(t, mem, "c1")
	client := &fakeClient{packWeek: &llm.PackWeekProposal{
		Events: []llm.ProposedEvent{
			proposedEvent("c1", ts(3, 9), 60, "Math"),
			proposedEvent("c1", ts(4, 9), 45, "Reading"),
		},
		Rationale: []string{"spread subjects across the week"},
	}}
	d := newDeps(mem, client)

	// WHEN: Packing the week
	res, err := strategy.PackWeek(context.Background(), d, strategy.PackWeekRequest{
		Family:    testFamily,
		WeekStart: monday,
	})
	require.NoError(t, err)

	// THEN: Both sessions landed as AI-sourced scheduled events
	require.Len(t, res.Inserted, 2)
	for _, ev := range res.Inserted {
		assert.Equal(t, planning.SourceAI, ev.Source)
		assert.Equal(t, planning.EventScheduled, ev.Status)
		assert.NotEmpty(t, ev.ID)
	}
	assert.Zero(t, res.Filtered)
	assert.Empty(t, res.Note)
	assert.Equal(t, []string{"spread subjects across the week"}, res.Rationale)

	// One-week horizon handed to the model
	assert.Equal(t, monday.AddDays(7), client.lastContext.Window.End)

	run := lastRun(t, mem, "pack_week")
	assert.Equal(t, planning.TaskSucceeded, run.Status)
}

func TestPackWeek_CapFiltersOverProposal(t *testing.T) {
	// GIVEN: Three 100-minute sessions on one day for one child
	mem := store.NewMemory()
	seedFamily(t, mem, "c1")
	client := &fakeClient{packWeek: &llm.PackWeekProposal{
		Events: []llm.ProposedEvent{
			proposedEvent("c1", ts(3, 9), 100, "Math"),
			proposedEvent("c1", ts(3, 11), 100, "Reading"),
			proposedEvent("c1", ts(3, 13), 100, "Science"),
		},
	}}
	d := newDeps(mem, client)

	res, err := strategy.PackWeek(context.Background(), d, strategy.PackWeekRequest{
		Family:    testFamily,
		WeekStart: monday,
	})
	require.NoError(t, err)

	// THEN: The third session blew the cap and was filtered
	assert.Len(t, res.Inserted, 2)
	assert.Equal(t, 1, res.Filtered)
	assert.Contains(t, res.Note, "daily cap of 240")

	sink := d.Metrics.(*telemetry.MemorySink)
	assert.Equal(t, 1, sink.Filtered["pack_week"])
}

func TestPackWeek_ExistingEventsConsumeBudget(t *testing.T) {
	// GIVEN: The child already has 200 minutes on Tuesday
	mem := store.NewMemory()
	seedFamily(t, mem, "c1")
	_, err := mem.InsertEvent(context.Background(), planning.ScheduledEvent{
		FamilyID: testFamily, ChildID: "c1", Title: "Co-op",
		Start: ts(3, 9), End: ts(3, 9).Add(200 * time.Minute),
		Status: planning.EventScheduled, Source: planning.SourceManual,
	})
	require.NoError(t, err)

	client := &fakeClient{packWeek: &llm.PackWeekProposal{
		Events: []llm.ProposedEvent{proposedEvent("c1", ts(3, 13), 60, "Math")},
	}}
	d := newDeps(mem, client)

	res, err := strategy.PackWeek(context.Background(), d, strategy.PackWeekRequest{
		Family:    testFamily,
		WeekStart: monday,
	})
	require.NoError(t, err)

	// THEN: 200 + 60 > 240, so nothing was inserted
	assert.Empty(t, res.Inserted)
	assert.Equal(t, 1, res.Filtered)
}

func TestPackWeek_ResolvesAllActiveChildren(t *testing.T) {
	// GIVEN: Two active children and one archived
	mem := store.NewMemory()
	seedFamily(t, mem, "c1", "c2")
	mem.AddChild(planning.Child{ID: "c3", FamilyID: testFamily, Archived: true})
	client := &fakeClient{packWeek: &llm.PackWeekProposal{}}
	d := newDeps(mem, client)

	// WHEN: Requesting with no explicit child list
	_, err := strategy.PackWeek(context.Background(), d, strategy.PackWeekRequest{
		Family:    testFamily,
		WeekStart: monday,
	})
	require.NoError(t, err)

	// THEN: The context covers the active children only
	assert.ElementsMatch(t, []planning.ChildID{"c1", "c2"}, client.lastContext.Children)
}

func TestPackWeek_NoChildrenIsConfigurationError(t *testing.T) {
	mem := store.NewMemory()
	d := newDeps(mem, &fakeClient{})

	_, err := strategy.PackWeek(context.Background(), d, strategy.PackWeekRequest{
		Family:    testFamily,
		WeekStart: monday,
	})
	assert.ErrorIs(t, err, planning.ErrConfiguration)
}

func TestPackWeek_ModelFailureIsProposalError(t *testing.T) {
	mem := store.NewMemory()
	seedFamily(t, mem, "c1")
	client := &fakeClient{err: errors.New("rate limited")}
	d := newDeps(mem, client)

	_, err := strategy.PackWeek(context.Background(), d, strategy.PackWeekRequest{
		Family:    testFamily,
		WeekStart: monday,
	})

	require.Error(t, err)
	assert.ErrorIs(t, err, planning.ErrProposal)

	run := lastRun(t, mem, "pack_week")
	assert.Equal(t, planning.TaskFailed, run.Status)
	assert.Contains(t, run.Error, "rate limited")

	sink := d.Metrics.(*telemetry.MemorySink)
	assert.Equal(t, 1, sink.Finished["pack_week/failed"])
}

func TestPackWeek_NoClientConfigured(t *testing.T) {
	mem := store.NewMemory()
	seedFamily(t, mem, "c1")
	d := newDeps(mem, nil)

	_, err := strategy.PackWeek(context.Background(), d, strategy.PackWeekRequest{
		Family:    testFamily,
		WeekStart: monday,
	})
	assert.ErrorIs(t, err, planning.ErrProposal)
}

func TestPackWeek_ConcurrentRunForFamilyConflicts(t *testing.T) {
	mem := store.NewMemory()
	seedFamily(t, mem, "c1")
	d := newDeps(mem, &fakeClient{packWeek: &llm.PackWeekProposal{}})
	d.Locks = planning.NewFamilyLocks()

	// Another run holds the family's lock.
	release, err := d.Locks.Acquire(testFamily)
	require.NoError(t, err)
	defer release()

	_, err = strategy.PackWeek(context.Background(), d, strategy.PackWeekRequest{
		Family:    testFamily,
		WeekStart: monday,
	})
	assert.ErrorIs(t, err, planning.ErrPlanningBusy)

	// The lock is released again after a completed run.
	release()
	res, err := strategy.PackWeek(context.Background(), d, strategy.PackWeekRequest{
		Family:    testFamily,
		WeekStart: monday,
	})
	require.NoError(t, err)
	assert.Empty(t, res.Inserted)
}

func TestPackWeek_FallsBackToBasicContext(t *testing.T) {
	// GIVEN: The insight loads are fine but blackouts are down, which
	// fails the full build
	mem := store.NewMemory()
	seedFamily(t, mem, "c1")
	mem.FailBlackouts = errors.New("blackouts down")
	client := &fakeClient{packWeek: &llm.PackWeekProposal{
		Events: []llm.ProposedEvent{proposedEvent("c1", ts(3, 9), 60, "Math")},
	}}
	d := newDeps(mem, client)

	// WHEN: Packing the week
	res, err := strategy.PackWeek(context.Background(), d, strategy.PackWeekRequest{
		Family:    testFamily,
		WeekStart: monday,
	})

	// THEN: The basic context still produced a run
	require.NoError(t, err)
	assert.Len(t, res.Inserted, 1)
	assert.Empty(t, client.lastContext.Blackouts)
}
