package llm_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hearthplan/planner-engine/llm"
)

var (
	slotStart = time.Date(2026, time.March, 4, 9, 0, 0, 0, time.UTC)
	slotEnd   = slotStart.Add(time.Hour)
)

func TestPackWeekProposal_Valid(t *testing.T) {
	p := &llm.PackWeekProposal{
		Events: []llm.ProposedEvent{{
			ChildID: "c1", Title: "Math", Start: slotStart, End: slotEnd,
		}},
	}
	assert.NoError(t, p.Validate())
}

func TestPackWeekProposal_RejectsMissingFields(t *testing.T) {
	missingTitle := &llm.PackWeekProposal{
		Events: []llm.ProposedEvent{{ChildID: "c1", Start: slotStart, End: slotEnd}},
	}
	assert.Error(t, missingTitle.Validate())

	missingChild := &llm.PackWeekProposal{
		Events: []llm.ProposedEvent{{Title: "Math", Start: slotStart, End: slotEnd}},
	}
	assert.Error(t, missingChild.Validate())
}

func TestPackWeekProposal_RejectsEndBeforeStart(t *testing.T) {
	p := &llm.PackWeekProposal{
		Events: []llm.ProposedEvent{{
			ChildID: "c1", Title: "Math", Start: slotEnd, End: slotStart,
		}},
	}
	require.Error(t, p.Validate())
}

func TestCatchUpProposal_Validation(t *testing.T) {
	good := &llm.CatchUpProposal{
		Rescheduled: []llm.ProposedReschedule{{
			EventID: "ev-1", NewStart: slotStart, NewEnd: slotEnd,
		}},
	}
	assert.NoError(t, good.Validate())

	zeroLength := &llm.CatchUpProposal{
		Rescheduled: []llm.ProposedReschedule{{
			EventID: "ev-1", NewStart: slotStart, NewEnd: slotStart,
		}},
	}
	assert.Error(t, zeroLength.Validate())

	noEvent := &llm.CatchUpProposal{
		Rescheduled: []llm.ProposedReschedule{{NewStart: slotStart, NewEnd: slotEnd}},
	}
	assert.Error(t, noEvent.Validate())
}

func TestPlanProposal_Validation(t *testing.T) {
	good := &llm.PlanProposal{
		Adds: []llm.ProposedEvent{{ChildID: "c1", Title: "Math", Start: slotStart, End: slotEnd}},
		Moves: []llm.ProposedMove{{
			EventID: "ev-1", ToStart: slotStart, ToEnd: slotEnd,
		}},
		Deletes: []llm.ProposedDelete{{EventID: "ev-2", Reason: "duplicate"}},
	}
	assert.NoError(t, good.Validate())

	badMove := &llm.PlanProposal{
		Moves: []llm.ProposedMove{{EventID: "ev-1", ToStart: slotEnd, ToEnd: slotStart}},
	}
	assert.Error(t, badMove.Validate())

	badDelete := &llm.PlanProposal{
		Deletes: []llm.ProposedDelete{{Reason: "duplicate"}},
	}
	assert.Error(t, badDelete.Validate())
}

func TestProposals_EmptyAreValid(t *testing.T) {
	assert.NoError(t, (&llm.PackWeekProposal{}).Validate())
	assert.NoError(t, (&llm.CatchUpProposal{}).Validate())
	assert.NoError(t, (&llm.PlanProposal{}).Validate())
}
