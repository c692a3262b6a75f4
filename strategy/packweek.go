/*
packweek.go - Fill a week with new sessions

PIPELINE:
  1. Build the planning context for (family, week, children).
  2. Ask the model for new events meeting weekly targets.
  3. Validate proposed events against the daily cap with running
     totals and insert the survivors as source="ai" events.
*/
package strategy

import (
	"context"

	"go.uber.org/zap"

	"github.com/hearthplan/planner-engine/planning"
)

const packWeekStrategy = "pack_week"

type PackWeekRequest struct {
	Family    planning.FamilyID
	WeekStart planning.Date
	Children  []planning.ChildID
}

type PackWeekResult struct {
	Inserted  []planning.ScheduledEvent `json:"inserted"`
	Rationale []string                  `json:"rationale"`
	Filtered  int                       `json:"filtered"`
	Note      string                    `json:"note,omitempty"`
}

func PackWeek(ctx context.Context, d Deps, req PackWeekRequest) (*PackWeekResult, error) {
	d.runStarted(packWeekStrategy)
	log := d.logger().With(
		zap.String("strategy", packWeekStrategy),
		zap.String("family_id", string(req.Family)),
		zap.String("week_start", req.WeekStart.String()),
	)

	release, err := d.acquire(req.Family)
	if err != nil {
		d.runFinished(packWeekStrategy, "failed")
		return nil, err
	}
	defer release()

	children, err := resolveChildren(ctx, d, req.Family, req.Children)
	if err != nil {
		d.runFinished(packWeekStrategy, "failed")
		return nil, err
	}

	run := beginRun(ctx, d, req.Family, packWeekStrategy, map[string]any{
		"week_start": req.WeekStart.String(),
		"children":   len(children),
	})

	pctx, err := buildContext(ctx, d, req.Family, req.WeekStart, children, 1)
	if err != nil {
		finishRun(ctx, d, run, nil, err)
		d.runFinished(packWeekStrategy, "failed")
		return nil, err
	}

	client, err := d.proposals(packWeekStrategy)
	if err != nil {
		finishRun(ctx, d, run, nil, err)
		d.runFinished(packWeekStrategy, "failed")
		return nil, err
	}

	proposal, err := client.PackWeek(ctx, pctx)
	if err != nil {
		perr := &planning.ProposalError{Strategy: packWeekStrategy, Err: err}
		finishRun(ctx, d, run, nil, perr)
		d.runFinished(packWeekStrategy, "failed")
		return nil, perr
	}

	sessions := make([]planning.ProposedSession, 0, len(proposal.Events))
	for _, ev := range proposal.Events {
		sessions = append(sessions, planning.ProposedSession{
			ChildID:   ev.ChildID,
			SubjectID: ev.SubjectID,
			Title:     ev.Title,
			Start:     ev.Start,
			End:       ev.End,
		})
	}
	accepted, vres := d.Validator.Validate(pctx, sessions)
	d.itemsFiltered(packWeekStrategy, vres.Rejected)

	res := &PackWeekResult{
		Rationale: proposal.Rationale,
		Filtered:  vres.Rejected,
		Note:      vres.Note,
	}
	for _, s := range accepted {
		ev, err := d.Events.InsertEvent(ctx, planning.ScheduledEvent{
			FamilyID:  req.Family,
			ChildID:   s.ChildID,
			SubjectID: s.SubjectID,
			Title:     s.Title,
			Start:     s.Start,
			End:       s.End,
			Status:    planning.EventScheduled,
			Source:    planning.SourceAI,
		})
		if err != nil {
			log.Warn("pack_week.insert_failed", zap.String("title", s.Title), zap.Error(err))
			continue
		}
		res.Inserted = append(res.Inserted, ev)
	}

	finishRun(ctx, d, run, map[string]any{
		"inserted": len(res.Inserted),
		"filtered": res.Filtered,
	}, nil)
	d.runFinished(packWeekStrategy, "succeeded")
	log.Info("pack_week.complete",
		zap.Int("proposed", len(proposal.Events)),
		zap.Int("inserted", len(res.Inserted)),
		zap.Int("filtered", res.Filtered),
	)
	return res, nil
}
