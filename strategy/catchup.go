/*
catchup.go - Rebound missed sessions into future slots

PIPELINE:
  1. Find missed events: status "missed", or still "scheduled" with an
     end already in the past, over the trailing four weeks.
  2. Build the planning context for today plus a four-week horizon and
     ask the model for new slots.
  3. Validate each reschedule against the daily cap (crediting back the
     old slot) and update the surviving events in place, resetting
     their status to "scheduled".
*/
package strategy

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/hearthplan/planner-engine/planning"
)

const (
	catchUpStrategy = "catch_up"

	// catchUpHorizonWeeks bounds how far ahead missed work may land.
	catchUpHorizonWeeks = 4

	// catchUpLookbackDays bounds how far back missed work is collected.
	catchUpLookbackDays = 28
)

type CatchUpRequest struct {
	Family   planning.FamilyID
	Children []planning.ChildID

	// Now is swappable for tests; zero means time.Now.
	Now time.Time
}

type CatchUpResult struct {
	Rescheduled []planning.ScheduledEvent `json:"rescheduled"`
	Missed      int                       `json:"missed"`
	Rationale   []string                  `json:"rationale"`
	Filtered    int                       `json:"filtered"`
	Note        string                    `json:"note,omitempty"`
}

func CatchUp(ctx context.Context, d Deps, req CatchUpRequest) (*CatchUpResult, error) {
	d.runStarted(catchUpStrategy)
	now := req.Now
	if now.IsZero() {
		now = time.Now().UTC()
	}
	today := planning.DateOf(now)
	log := d.logger().With(
		zap.String("strategy", catchUpStrategy),
		zap.String("family_id", string(req.Family)),
	)

	release, err := d.acquire(req.Family)
	if err != nil {
		d.runFinished(catchUpStrategy, "failed")
		return nil, err
	}
	defer release()

	children, err := resolveChildren(ctx, d, req.Family, req.Children)
	if err != nil {
		d.runFinished(catchUpStrategy, "failed")
		return nil, err
	}

	run := beginRun(ctx, d, req.Family, catchUpStrategy, map[string]any{
		"children": len(children),
	})

	missed, err := findMissed(ctx, d, req.Family, children, today, now)
	if err != nil {
		finishRun(ctx, d, run, nil, err)
		d.runFinished(catchUpStrategy, "failed")
		return nil, err
	}
	if len(missed) == 0 {
		finishRun(ctx, d, run, map[string]any{"missed": 0}, nil)
		d.runFinished(catchUpStrategy, "succeeded")
		log.Info("catch_up.nothing_to_do")
		return &CatchUpResult{}, nil
	}

	pctx, err := buildContext(ctx, d, req.Family, today, children, catchUpHorizonWeeks)
	if err != nil {
		finishRun(ctx, d, run, nil, err)
		d.runFinished(catchUpStrategy, "failed")
		return nil, err
	}

	client, err := d.proposals(catchUpStrategy)
	if err != nil {
		finishRun(ctx, d, run, nil, err)
		d.runFinished(catchUpStrategy, "failed")
		return nil, err
	}

	proposal, err := client.CatchUp(ctx, pctx, missed)
	if err != nil {
		perr := &planning.ProposalError{Strategy: catchUpStrategy, Err: err}
		finishRun(ctx, d, run, nil, perr)
		d.runFinished(catchUpStrategy, "failed")
		return nil, perr
	}

	missedByID := make(map[planning.EventID]planning.ScheduledEvent, len(missed))
	for _, ev := range missed {
		missedByID[ev.ID] = ev
	}

	// A reschedule referencing an event that isn't actually missed is
	// dropped outright; it can't be priced against the cap.
	var sessions []planning.ProposedSession
	var targets []planning.EventID
	var reasons []string
	unknown := 0
	for _, r := range proposal.Rescheduled {
		ev, ok := missedByID[r.EventID]
		if !ok {
			unknown++
			log.Warn("catch_up.unknown_event", zap.String("event_id", string(r.EventID)))
			continue
		}
		sessions = append(sessions, planning.ProposedSession{
			ChildID:      ev.ChildID,
			SubjectID:    ev.SubjectID,
			Title:        ev.Title,
			Start:        r.NewStart,
			End:          r.NewEnd,
			ReleaseStart: ev.Start,
			ReleaseEnd:   ev.End,
		})
		targets = append(targets, r.EventID)
		reasons = append(reasons, r.Reason)
	}

	accepted, vres := d.Validator.Validate(pctx, sessions)
	filtered := vres.Rejected + unknown
	d.itemsFiltered(catchUpStrategy, filtered)

	res := &CatchUpResult{
		Missed:    len(missed),
		Rationale: proposal.Rationale,
		Filtered:  filtered,
		Note:      vres.Note,
	}
	for ai, i := range vres.AcceptedIndexes {
		s := accepted[ai]
		id := targets[i]
		if err := d.Events.UpdateEventTimes(ctx, id, s.Start, s.End, planning.EventScheduled, catchUpStrategy, reasons[i]); err != nil {
			log.Warn("catch_up.update_failed", zap.String("event_id", string(id)), zap.Error(err))
			continue
		}
		ev := missedByID[id]
		ev.Start, ev.End = s.Start, s.End
		ev.Status = planning.EventScheduled
		res.Rescheduled = append(res.Rescheduled, ev)
	}

	finishRun(ctx, d, run, map[string]any{
		"missed":      len(missed),
		"rescheduled": len(res.Rescheduled),
		"filtered":    filtered,
	}, nil)
	d.runFinished(catchUpStrategy, "succeeded")
	log.Info("catch_up.complete",
		zap.Int("missed", len(missed)),
		zap.Int("rescheduled", len(res.Rescheduled)),
		zap.Int("filtered", filtered),
	)
	return res, nil
}

func findMissed(ctx context.Context, d Deps, family planning.FamilyID, children []planning.ChildID, today planning.Date, now time.Time) ([]planning.ScheduledEvent, error) {
	lookback := planning.DateRange{Start: today.AddDays(-catchUpLookbackDays), End: today}
	events, err := d.Events.EventsInWindow(ctx, family, children, lookback)
	if err != nil {
		return nil, err
	}
	var missed []planning.ScheduledEvent
	for _, ev := range events {
		switch {
		case ev.Status == planning.EventMissed:
			missed = append(missed, ev)
		case ev.Status == planning.EventScheduled && ev.End.Before(now):
			missed = append(missed, ev)
		}
	}
	return missed, nil
}
