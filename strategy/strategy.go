/*
Package strategy implements the scheduling strategies.

PURPOSE:
  Each strategy is a three-phase pipeline over the same machinery:
  build a planning context, ask the model for a proposal, validate the
  proposal against the daily cap and commit what survives. The phases
  live in the planning and llm packages; this package orders them and
  owns the side effects (inserts, updates, draft plans, task runs,
  metrics).

STRATEGIES:
  - packweek.go: fill a week with new sessions
  - catchup.go:  rebound missed sessions into future slots
  - suggest.go:  propose a draft plan of adds/moves/deletes for approval
*/
package strategy

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/hearthplan/planner-engine/llm"
	"github.com/hearthplan/planner-engine/planning"
	"github.com/hearthplan/planner-engine/telemetry"
)

// ProposalClient is the slice of the model client the strategies use.
type ProposalClient interface {
	PackWeek(ctx context.Context, pctx *planning.PlanningContext) (*llm.PackWeekProposal, error)
	CatchUp(ctx context.Context, pctx *planning.PlanningContext, missed []planning.ScheduledEvent) (*llm.CatchUpProposal, error)
	SuggestPlan(ctx context.Context, pctx *planning.PlanningContext) (*llm.PlanProposal, error)
}

// Deps carries everything a strategy invocation needs. Metrics and Log
// may be nil; TaskRuns may be nil to disable the audit trail.
type Deps struct {
	Builder   *planning.ContextBuilder
	Validator planning.DailyCapValidator

	Calendar planning.CalendarStore
	Events   planning.EventStore
	Plans    planning.PlanStore
	TaskRuns planning.TaskRunStore

	Client  ProposalClient
	Metrics telemetry.MetricsSink
	Log     *zap.Logger

	// Locks serializes runs per family; nil disables locking.
	Locks *planning.FamilyLocks
}

func (d Deps) logger() *zap.Logger {
	if d.Log == nil {
		return zap.NewNop()
	}
	return d.Log
}

func (d Deps) runStarted(strategy string) {
	if d.Metrics != nil {
		d.Metrics.RunStarted(strategy)
	}
}

func (d Deps) runFinished(strategy, outcome string) {
	if d.Metrics != nil {
		d.Metrics.RunFinished(strategy, outcome)
	}
}

func (d Deps) itemsFiltered(strategy string, n int) {
	if d.Metrics != nil && n > 0 {
		d.Metrics.ItemsFiltered(strategy, n)
	}
}

// proposals returns the model client, or a proposal error when none
// was configured (e.g. missing API key at startup).
func (d Deps) proposals(strategy string) (ProposalClient, error) {
	if d.Client == nil {
		return nil, &planning.ProposalError{Strategy: strategy, Err: errors.New("model client not configured")}
	}
	return d.Client, nil
}

// acquire takes the family's advisory lock. A concurrent run for the
// same family fails with ErrPlanningBusy rather than double-booking.
func (d Deps) acquire(family planning.FamilyID) (func(), error) {
	if d.Locks == nil {
		return func() {}, nil
	}
	return d.Locks.Acquire(family)
}

// resolveChildren expands an empty child list to every non-archived
// child of the family.
func resolveChildren(ctx context.Context, d Deps, family planning.FamilyID, explicit []planning.ChildID) ([]planning.ChildID, error) {
	if len(explicit) > 0 {
		return explicit, nil
	}
	children, err := d.Calendar.Children(ctx, family)
	if err != nil {
		return nil, fmt.Errorf("resolve children: %w", err)
	}
	var out []planning.ChildID
	for _, c := range children {
		if !c.Archived {
			out = append(out, c.ID)
		}
	}
	if len(out) == 0 {
		return nil, fmt.Errorf("%w: family has no active children", planning.ErrConfiguration)
	}
	return out, nil
}

// buildContext tries the full context build and falls back to the
// basic availability-only build when the full one fails for any reason
// other than caller error.
func buildContext(ctx context.Context, d Deps, family planning.FamilyID, weekStart planning.Date, children []planning.ChildID, horizonWeeks int) (*planning.PlanningContext, error) {
	pctx, err := d.Builder.Build(ctx, family, weekStart, children, horizonWeeks)
	if err == nil {
		return pctx, nil
	}
	if errors.Is(err, planning.ErrConfiguration) {
		return nil, err
	}

	d.logger().Warn("strategy.context.fallback",
		zap.String("family_id", string(family)),
		zap.Error(err),
	)
	return d.Builder.BuildBasic(ctx, family, weekStart, children, horizonWeeks)
}
