/*
proposal.go - Shapes the model must return, and their validation

PURPOSE:
  Each strategy expects one proposal shape back from the model. The
  shapes are strict: unknown or missing required fields fail validation
  and the response is retried or rejected, never partially trusted.
*/
package llm

import (
	"fmt"
	"time"

	"github.com/go-playground/validator/v10"

	"github.com/hearthplan/planner-engine/planning"
)

var validate = validator.New(validator.WithRequiredStructEnabled())

// ProposedEvent is one new session the model wants on the calendar.
type ProposedEvent struct {
	ChildID   planning.ChildID   `json:"child_id" validate:"required"`
	SubjectID planning.SubjectID `json:"subject_id"`
	Title     string             `json:"title" validate:"required"`
	Start     time.Time          `json:"start" validate:"required"`
	End       time.Time          `json:"end" validate:"required,gtfield=Start"`
	Minutes   int                `json:"minutes"`
}

// PackWeekProposal fills a week with new sessions.
type PackWeekProposal struct {
	Events    []ProposedEvent `json:"events" validate:"dive"`
	Rationale []string        `json:"rationale"`
}

// ProposedReschedule rebounds one missed event.
type ProposedReschedule struct {
	EventID       planning.EventID `json:"event_id" validate:"required"`
	OriginalStart time.Time        `json:"original_start"`
	NewStart      time.Time        `json:"new_start" validate:"required"`
	NewEnd        time.Time        `json:"new_end" validate:"required,gtfield=NewStart"`
	Reason        string           `json:"reason"`
}

// CatchUpProposal reschedules missed events into future slots.
type CatchUpProposal struct {
	Rescheduled []ProposedReschedule `json:"rescheduled" validate:"dive"`
	Rationale   []string             `json:"rationale"`
}

// ProposedMove rebounds an existing (not missed) event.
type ProposedMove struct {
	EventID   planning.EventID `json:"event_id" validate:"required"`
	FromStart time.Time        `json:"from_start"`
	FromEnd   time.Time        `json:"from_end"`
	ToStart   time.Time        `json:"to_start" validate:"required"`
	ToEnd     time.Time        `json:"to_end" validate:"required,gtfield=ToStart"`
	Reason    string           `json:"reason"`
}

// ProposedDelete removes a duplicate event. Deletion is meant to be rare;
// the prompt restricts it to true duplicates.
type ProposedDelete struct {
	EventID planning.EventID `json:"event_id" validate:"required"`
	Reason  string           `json:"reason"`
}

// PlanProposal is the unified suggest-plan shape: adds, moves and
// deletes in one batch.
type PlanProposal struct {
	Adds      []ProposedEvent  `json:"adds" validate:"dive"`
	Moves     []ProposedMove   `json:"moves" validate:"dive"`
	Deletes   []ProposedDelete `json:"deletes" validate:"dive"`
	Rationale []string         `json:"rationale"`
}

func (p *PackWeekProposal) Validate() error {
	if err := validate.Struct(p); err != nil {
		return fmt.Errorf("pack week proposal: %w", err)
	}
	return nil
}

func (p *CatchUpProposal) Validate() error {
	if err := validate.Struct(p); err != nil {
		return fmt.Errorf("catch up proposal: %w", err)
	}
	return nil
}

func (p *PlanProposal) Validate() error {
	if err := validate.Struct(p); err != nil {
		return fmt.Errorf("plan proposal: %w", err)
	}
	return nil
}
