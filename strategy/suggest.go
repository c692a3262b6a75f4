/*
suggest.go - Draft plan of adds, moves and deletes for human approval

PIPELINE:
  1. Build the planning context over a two-week horizon.
  2. Ask the model for a unified change proposal.
  3. Validate adds and moves against the daily cap in one batch (moves
     credit back their old slot), drop deletes whose event doesn't
     exist, and persist the survivors as a draft plan. Nothing touches
     the calendar until the plan is applied.
*/
package strategy

import (
	"context"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/hearthplan/planner-engine/planning"
)

const (
	suggestStrategy     = "suggest_plan"
	suggestHorizonWeeks = 2
)

type SuggestRequest struct {
	Family    planning.FamilyID
	WeekStart planning.Date
	Children  []planning.ChildID
}

type SuggestResult struct {
	PlanID    planning.PlanID       `json:"plan_id"`
	Changes   []planning.PlanChange `json:"changes"`
	Rationale []string              `json:"rationale"`
	Filtered  int                   `json:"filtered"`
	Note      string                `json:"note,omitempty"`
}

func SuggestPlan(ctx context.Context, d Deps, req SuggestRequest) (*SuggestResult, error) {
	d.runStarted(suggestStrategy)
	log := d.logger().With(
		zap.String("strategy", suggestStrategy),
		zap.String("family_id", string(req.Family)),
		zap.String("week_start", req.WeekStart.String()),
	)

	release, err := d.acquire(req.Family)
	if err != nil {
		d.runFinished(suggestStrategy, "failed")
		return nil, err
	}
	defer release()

	children, err := resolveChildren(ctx, d, req.Family, req.Children)
	if err != nil {
		d.runFinished(suggestStrategy, "failed")
		return nil, err
	}

	run := beginRun(ctx, d, req.Family, suggestStrategy, map[string]any{
		"week_start": req.WeekStart.String(),
		"children":   len(children),
	})

	pctx, err := buildContext(ctx, d, req.Family, req.WeekStart, children, suggestHorizonWeeks)
	if err != nil {
		finishRun(ctx, d, run, nil, err)
		d.runFinished(suggestStrategy, "failed")
		return nil, err
	}

	client, err := d.proposals(suggestStrategy)
	if err != nil {
		finishRun(ctx, d, run, nil, err)
		d.runFinished(suggestStrategy, "failed")
		return nil, err
	}

	proposal, err := client.SuggestPlan(ctx, pctx)
	if err != nil {
		perr := &planning.ProposalError{Strategy: suggestStrategy, Err: err}
		finishRun(ctx, d, run, nil, perr)
		d.runFinished(suggestStrategy, "failed")
		return nil, perr
	}

	// Moves and deletes must reference real events; anything else is
	// dropped before validation.
	var moveIDs []planning.EventID
	for _, mv := range proposal.Moves {
		moveIDs = append(moveIDs, mv.EventID)
	}
	for _, del := range proposal.Deletes {
		moveIDs = append(moveIDs, del.EventID)
	}
	known := map[planning.EventID]planning.ScheduledEvent{}
	if len(moveIDs) > 0 {
		existing, err := d.Events.EventsByID(ctx, req.Family, moveIDs)
		if err != nil {
			finishRun(ctx, d, run, nil, err)
			d.runFinished(suggestStrategy, "failed")
			return nil, err
		}
		for _, ev := range existing {
			known[ev.ID] = ev
		}
	}

	// One batch, adds before moves, so the running totals see both.
	var sessions []planning.ProposedSession
	var payloads []planning.ChangePayload
	var types []planning.ChangeType
	unknown := 0

	for _, add := range proposal.Adds {
		sessions = append(sessions, planning.ProposedSession{
			ChildID:   add.ChildID,
			SubjectID: add.SubjectID,
			Title:     add.Title,
			Start:     add.Start,
			End:       add.End,
		})
		types = append(types, planning.ChangeAdd)
		payloads = append(payloads, planning.ChangePayload{Add: &planning.AddPayload{
			ChildID:   add.ChildID,
			SubjectID: add.SubjectID,
			Title:     add.Title,
			Start:     add.Start,
			End:       add.End,
		}})
	}
	for _, mv := range proposal.Moves {
		ev, ok := known[mv.EventID]
		if !ok {
			unknown++
			log.Warn("suggest.unknown_move_event", zap.String("event_id", string(mv.EventID)))
			continue
		}
		sessions = append(sessions, planning.ProposedSession{
			ChildID:      ev.ChildID,
			SubjectID:    ev.SubjectID,
			Title:        ev.Title,
			Start:        mv.ToStart,
			End:          mv.ToEnd,
			ReleaseStart: ev.Start,
			ReleaseEnd:   ev.End,
		})
		types = append(types, planning.ChangeMove)
		payloads = append(payloads, planning.ChangePayload{Move: &planning.MovePayload{
			EventID: mv.EventID,
			Start:   mv.ToStart,
			End:     mv.ToEnd,
		}})
	}

	_, vres := d.Validator.Validate(pctx, sessions)

	planID := planning.PlanID(uuid.NewString())
	now := time.Now().UTC()
	var changes []planning.PlanChange
	for _, i := range vres.AcceptedIndexes {
		changes = append(changes, planning.PlanChange{
			ID:        planning.ChangeID(uuid.NewString()),
			PlanID:    planID,
			FamilyID:  req.Family,
			Type:      types[i],
			Payload:   payloads[i],
			CreatedAt: now,
		})
	}
	for _, del := range proposal.Deletes {
		if _, ok := known[del.EventID]; !ok {
			unknown++
			log.Warn("suggest.unknown_delete_event", zap.String("event_id", string(del.EventID)))
			continue
		}
		changes = append(changes, planning.PlanChange{
			ID:        planning.ChangeID(uuid.NewString()),
			PlanID:    planID,
			FamilyID:  req.Family,
			Type:      planning.ChangeDelete,
			Payload:   planning.ChangePayload{Delete: &planning.DeletePayload{EventID: del.EventID}},
			CreatedAt: now,
		})
	}
	filtered := vres.Rejected + unknown
	d.itemsFiltered(suggestStrategy, filtered)

	plan := planning.Plan{
		ID:        planID,
		FamilyID:  req.Family,
		WeekStart: req.WeekStart,
		Strategy:  suggestStrategy,
		Rationale: strings.Join(proposal.Rationale, "; "),
		Status:    planning.PlanDraft,
		CreatedAt: now,
	}
	if err := d.Plans.InsertPlan(ctx, plan); err != nil {
		finishRun(ctx, d, run, nil, err)
		d.runFinished(suggestStrategy, "failed")
		return nil, err
	}
	if len(changes) > 0 {
		if err := d.Plans.InsertChanges(ctx, changes); err != nil {
			finishRun(ctx, d, run, nil, err)
			d.runFinished(suggestStrategy, "failed")
			return nil, err
		}
	}

	finishRun(ctx, d, run, map[string]any{
		"plan_id":  string(planID),
		"changes":  len(changes),
		"filtered": filtered,
	}, nil)
	d.runFinished(suggestStrategy, "succeeded")
	log.Info("suggest.complete",
		zap.String("plan_id", string(planID)),
		zap.Int("changes", len(changes)),
		zap.Int("filtered", filtered),
	)
	return &SuggestResult{
		PlanID:    planID,
		Changes:   changes,
		Rationale: proposal.Rationale,
		Filtered:  filtered,
		Note:      vres.Note,
	}, nil
}
