/*
validator.go - Daily-cap validation of proposed schedule mutations

PURPOSE:
  Filters a batch of proposed sessions so that no child's scheduled
  minutes on any single day exceed the cap. Validation runs against a
  running total seeded from the context's minute ledger: each accepted
  item consumes budget the next item sees, so a batch of individually
  small items cannot collectively blow the cap.

ORDER MATTERS:
  Items are considered in batch order and the accepted set is the
  maximal prefix-respecting subset: an item is accepted iff it fits
  given everything accepted before it. Reordering a batch can change
  which items survive; callers own the ordering.

FAIL-CLOSED:
  An item the validator cannot price (no child, no start, non-positive
  duration) is rejected, not waved through.

SEE ALSO:
  - context.go: MinuteLedger, the seed for the running total
*/
package planning

import (
	"fmt"
	"time"
)

// =============================================================================
// PROPOSED SESSION
// =============================================================================

// ProposedSession is one schedule mutation awaiting validation: a new
// block of time for a child. When the session replaces an existing
// block (a move or a reschedule), ReleaseStart/ReleaseEnd carry the old
// bounds so the old day's minutes are credited back before the new
// day's are charged.
type ProposedSession struct {
	ChildID   ChildID
	SubjectID SubjectID
	Title     string
	Start     time.Time
	End       time.Time

	ReleaseStart time.Time
	ReleaseEnd   time.Time
}

func (s ProposedSession) Minutes() int {
	if s.End.Before(s.Start) {
		return 0
	}
	return int(s.End.Sub(s.Start).Minutes())
}

func (s ProposedSession) replaces() bool {
	return !s.ReleaseStart.IsZero() && !s.ReleaseEnd.IsZero()
}

// =============================================================================
// VALIDATION RESULT
// =============================================================================

type ValidationResult struct {
	Accepted int
	Rejected int

	// AcceptedIndexes are the positions (in the input batch) of the
	// sessions that survived, in order. Callers that carry per-item
	// side data keyed by batch position align on these.
	AcceptedIndexes []int

	// Note is a human-readable annotation for the caller's response
	// when anything was filtered; empty otherwise.
	Note string
}

// =============================================================================
// DAILY-CAP VALIDATOR
// =============================================================================

type DailyCapValidator struct {
	// MaxMinutesPerDay overrides the context's cap when positive.
	MaxMinutesPerDay int
}

func (v DailyCapValidator) capFor(pctx *PlanningContext) int {
	if v.MaxMinutesPerDay > 0 {
		return v.MaxMinutesPerDay
	}
	if pctx != nil && pctx.MaxMinutesPerDay > 0 {
		return pctx.MaxMinutesPerDay
	}
	return DefaultMaxMinutesPerDay
}

// Validate filters sessions against the context's minute ledger and
// returns the surviving subset in original order. The context is not
// mutated; the running total lives on a cloned ledger.
func (v DailyCapValidator) Validate(pctx *PlanningContext, sessions []ProposedSession) ([]ProposedSession, ValidationResult) {
	capMinutes := v.capFor(pctx)

	ledger := MinuteLedger{}
	if pctx != nil && pctx.CurrentMinutesByDay != nil {
		ledger = pctx.CurrentMinutesByDay.Clone()
	}

	var accepted []ProposedSession
	var acceptedIdx []int
	rejected := 0
	for i, s := range sessions {
		mins := s.Minutes()
		if s.ChildID == "" || s.Start.IsZero() || mins <= 0 {
			rejected++
			continue
		}

		// Credit back the block this session replaces before charging
		// the new one, so a same-day move of a long session still fits.
		trial := ledger
		if s.replaces() {
			trial = ledger.Clone()
			oldMins := int(s.ReleaseEnd.Sub(s.ReleaseStart).Minutes())
			if oldMins > 0 {
				trial.Add(DateOf(s.ReleaseStart), s.ChildID, -oldMins)
			}
		}

		day := DateOf(s.Start)
		if trial.Minutes(day, s.ChildID)+mins > capMinutes {
			rejected++
			continue
		}

		trial.Add(day, s.ChildID, mins)
		ledger = trial
		accepted = append(accepted, s)
		acceptedIdx = append(acceptedIdx, i)
	}

	res := ValidationResult{Accepted: len(accepted), Rejected: rejected, AcceptedIndexes: acceptedIdx}
	if rejected > 0 {
		res.Note = fmt.Sprintf(
			"Note: %d event(s) were filtered out to respect daily cap of %d minutes per day per child",
			rejected, capMinutes,
		)
	}
	return accepted, res
}
