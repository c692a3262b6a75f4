/*
plan.go - Plan-change ledger and the apply lifecycle

PURPOSE:
  A Plan is a persisted batch of proposed schedule changes awaiting
  human approval. Each change is an add, move, or delete with a typed
  payload. Applying a plan walks its changes: approved-and-unapplied
  changes commit individually (continue on error), already-applied
  changes count as applied without re-executing, and the plan's final
  status is "applied" only when every approved change committed.

APPROVAL EDITS:
  An approval may carry field-level edits (a nudged start time, a
  changed title). Edits merge into the stored payload before the change
  executes; the stored payload itself is never rewritten.

SEE ALSO:
  - store.go: PlanStore / EventStore
  - validator.go: where draft changes were filtered before persisting
*/
package planning

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"go.uber.org/zap"
)

// =============================================================================
// PLAN & CHANGES
// =============================================================================

type PlanStatus string

const (
	PlanDraft   PlanStatus = "draft"
	PlanApplied PlanStatus = "applied"
	PlanPartial PlanStatus = "partial"
)

type Plan struct {
	ID        PlanID     `json:"id"`
	FamilyID  FamilyID   `json:"family_id"`
	WeekStart Date       `json:"week_start"`
	Strategy  string     `json:"strategy"`
	Rationale string     `json:"rationale,omitempty"`
	Status    PlanStatus `json:"status"`
	CreatedAt time.Time  `json:"created_at"`
	AppliedAt time.Time  `json:"applied_at,omitempty"`
}

type ChangeType string

const (
	ChangeAdd    ChangeType = "add"
	ChangeMove   ChangeType = "move"
	ChangeDelete ChangeType = "delete"
)

// AddPayload schedules a new event.
type AddPayload struct {
	ChildID   ChildID   `json:"child_id"`
	SubjectID SubjectID `json:"subject_id,omitempty"`
	Title     string    `json:"title"`
	Start     time.Time `json:"start_ts"`
	End       time.Time `json:"end_ts"`
}

// MovePayload rebounds an existing event.
type MovePayload struct {
	EventID EventID   `json:"event_id"`
	Start   time.Time `json:"start_ts"`
	End     time.Time `json:"end_ts"`
}

// DeletePayload removes an existing event.
type DeletePayload struct {
	EventID EventID `json:"event_id"`
}

// ChangePayload is a tagged union; exactly one member is non-nil and it
// must match the change's Type.
type ChangePayload struct {
	Add    *AddPayload    `json:"add,omitempty"`
	Move   *MovePayload   `json:"move,omitempty"`
	Delete *DeletePayload `json:"delete,omitempty"`
}

type PlanChange struct {
	ID        ChangeID      `json:"id"`
	PlanID    PlanID        `json:"plan_id"`
	FamilyID  FamilyID      `json:"family_id"`
	Type      ChangeType    `json:"type"`
	Payload   ChangePayload `json:"payload"`
	Approved  bool          `json:"approved"`
	Applied   bool          `json:"applied"`
	CreatedAt time.Time     `json:"created_at"`
}

// mergeEdits overlays approval edits onto a payload member via a JSON
// round trip, so callers edit with the same field names the payload
// serializes with.
func mergeEdits[T any](base *T, edits map[string]any) (*T, error) {
	if len(edits) == 0 {
		return base, nil
	}
	raw, err := json.Marshal(base)
	if err != nil {
		return nil, err
	}
	var flat map[string]any
	if err := json.Unmarshal(raw, &flat); err != nil {
		return nil, err
	}
	for k, v := range edits {
		flat[k] = v
	}
	merged, err := json.Marshal(flat)
	if err != nil {
		return nil, err
	}
	out := new(T)
	if err := json.Unmarshal(merged, out); err != nil {
		return nil, fmt.Errorf("edits do not fit payload: %w", err)
	}
	return out, nil
}

// =============================================================================
// APPLY
// =============================================================================

// Approval is the caller's verdict on one change, optionally with
// field-level edits to the payload.
type Approval struct {
	ChangeID ChangeID       `json:"change_id"`
	Approved bool           `json:"approved"`
	Edits    map[string]any `json:"edits,omitempty"`
}

type ApplyResult struct {
	PlanID   PlanID     `json:"plan_id"`
	Status   PlanStatus `json:"status"`
	Approved int        `json:"approved"`
	Applied  int        `json:"applied"`
	Failed   int        `json:"failed"`
	Errors   []string   `json:"errors,omitempty"`
}

type PlanApplier struct {
	Plans  PlanStore
	Events EventStore

	// Refresher is optional; when set, a successful apply triggers a
	// best-effort cache refresh over the plan's fortnight.
	Refresher CacheRefresher

	Log *zap.Logger
}

func (a *PlanApplier) logger() *zap.Logger {
	if a.Log == nil {
		return zap.NewNop()
	}
	return a.Log
}

// ApplyPlan executes the approved changes of a plan. Individual change
// failures do not abort the walk; they are collected and reflected in
// the plan's final status ("partial" unless every approved change
// committed).
func (a *PlanApplier) ApplyPlan(ctx context.Context, family FamilyID, planID PlanID, approvals []Approval) (ApplyResult, error) {
	plan, err := a.Plans.Plan(ctx, planID)
	if err != nil {
		return ApplyResult{}, err
	}
	if plan.FamilyID != family {
		return ApplyResult{}, fmt.Errorf("%w: %s", ErrPlanNotFound, planID)
	}

	changes, err := a.Plans.Changes(ctx, planID)
	if err != nil {
		return ApplyResult{}, err
	}

	verdicts := make(map[ChangeID]Approval, len(approvals))
	for _, ap := range approvals {
		verdicts[ap.ChangeID] = ap
	}

	log := a.logger().With(
		zap.String("family_id", string(family)),
		zap.String("plan_id", string(planID)),
	)

	res := ApplyResult{PlanID: planID}
	for _, ch := range changes {
		verdict, hasVerdict := verdicts[ch.ID]
		approved := ch.Approved || (hasVerdict && verdict.Approved)
		if !approved {
			continue
		}
		res.Approved++

		// Re-applying a plan must not duplicate work: a change that
		// already committed counts as applied and is skipped.
		if ch.Applied {
			res.Applied++
			continue
		}

		if err := a.applyChange(ctx, family, ch, verdict.Edits); err != nil {
			res.Failed++
			res.Errors = append(res.Errors, err.Error())
			log.Warn("plan.apply.change_failed",
				zap.String("change_id", string(ch.ID)),
				zap.String("change_type", string(ch.Type)),
				zap.Error(err),
			)
			continue
		}
		if err := a.Plans.MarkChangeApplied(ctx, ch.ID); err != nil {
			res.Failed++
			res.Errors = append(res.Errors, err.Error())
			log.Warn("plan.apply.mark_failed", zap.String("change_id", string(ch.ID)), zap.Error(err))
			continue
		}
		res.Applied++
	}

	res.Status = PlanPartial
	if res.Applied == res.Approved {
		res.Status = PlanApplied
	}
	if err := a.Plans.UpdatePlanStatus(ctx, planID, res.Status, time.Now().UTC()); err != nil {
		log.Warn("plan.apply.status_update_failed", zap.Error(err))
	}

	a.refresh(ctx, family, plan.WeekStart, log)

	log.Info("plan.apply.complete",
		zap.Int("approved", res.Approved),
		zap.Int("applied", res.Applied),
		zap.Int("failed", res.Failed),
		zap.String("status", string(res.Status)),
	)
	return res, nil
}

func (a *PlanApplier) applyChange(ctx context.Context, family FamilyID, ch PlanChange, edits map[string]any) error {
	wrap := func(err error) error {
		return &ApplyChangeError{ChangeID: ch.ID, ChangeType: ch.Type, Err: err}
	}

	switch ch.Type {
	case ChangeAdd:
		if ch.Payload.Add == nil {
			return wrap(fmt.Errorf("add change has no add payload"))
		}
		p, err := mergeEdits(ch.Payload.Add, edits)
		if err != nil {
			return wrap(err)
		}
		_, err = a.Events.InsertEvent(ctx, ScheduledEvent{
			FamilyID:  family,
			ChildID:   p.ChildID,
			SubjectID: p.SubjectID,
			Title:     p.Title,
			Start:     p.Start,
			End:       p.End,
			Status:    EventScheduled,
			Source:    SourceAI,
		})
		if err != nil {
			return wrap(err)
		}
		return nil

	case ChangeMove:
		if ch.Payload.Move == nil {
			return wrap(fmt.Errorf("move change has no move payload"))
		}
		p, err := mergeEdits(ch.Payload.Move, edits)
		if err != nil {
			return wrap(err)
		}
		if err := a.Events.UpdateEventTimes(ctx, p.EventID, p.Start, p.End, EventScheduled, "ai_plan", "plan change applied"); err != nil {
			return wrap(err)
		}
		return nil

	case ChangeDelete:
		if ch.Payload.Delete == nil {
			return wrap(fmt.Errorf("delete change has no delete payload"))
		}
		if err := a.Events.DeleteEvent(ctx, ch.Payload.Delete.EventID); err != nil {
			return wrap(err)
		}
		return nil

	default:
		return wrap(fmt.Errorf("unknown change type %q", ch.Type))
	}
}

func (a *PlanApplier) refresh(ctx context.Context, family FamilyID, weekStart Date, log *zap.Logger) {
	if a.Refresher == nil {
		return
	}
	window := DateRange{Start: weekStart, End: weekStart.AddDays(14)}
	if err := a.Refresher.RefreshWindow(ctx, family, window); err != nil {
		log.Warn("plan.apply.cache_refresh_failed", zap.Error(err))
	}
}
