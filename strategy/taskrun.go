/*
taskrun.go - Audit trail for strategy invocations

PURPOSE:
  Every strategy invocation records a task run: pending on creation,
  running once underway, succeeded or failed at the end with a result
  or error attached. Bookkeeping is best effort; a broken audit trail
  never sinks the run it describes.
*/
package strategy

import (
	"context"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/hearthplan/planner-engine/planning"
)

func beginRun(ctx context.Context, d Deps, family planning.FamilyID, kind string, params map[string]any) *planning.TaskRun {
	if d.TaskRuns == nil {
		return nil
	}
	now := time.Now().UTC()
	run := &planning.TaskRun{
		ID:        uuid.NewString(),
		FamilyID:  family,
		Kind:      kind,
		Params:    params,
		Status:    planning.TaskPending,
		CreatedAt: now,
	}
	if err := d.TaskRuns.InsertTaskRun(ctx, *run); err != nil {
		d.logger().Warn("taskrun.insert_failed", zap.String("kind", kind), zap.Error(err))
		return nil
	}

	run.Status = planning.TaskRunning
	run.StartedAt = time.Now().UTC()
	if err := d.TaskRuns.UpdateTaskRun(ctx, *run); err != nil {
		d.logger().Warn("taskrun.start_failed", zap.String("run_id", run.ID), zap.Error(err))
	}
	return run
}

func finishRun(ctx context.Context, d Deps, run *planning.TaskRun, result map[string]any, runErr error) {
	if run == nil || d.TaskRuns == nil {
		return
	}
	run.CompletedAt = time.Now().UTC()
	if runErr != nil {
		run.Status = planning.TaskFailed
		run.Error = runErr.Error()
	} else {
		run.Status = planning.TaskSucceeded
		run.Result = result
	}
	if err := d.TaskRuns.UpdateTaskRun(ctx, *run); err != nil {
		d.logger().Warn("taskrun.finish_failed", zap.String("run_id", run.ID), zap.Error(err))
	}
}
