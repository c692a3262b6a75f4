/*
errors.go - Centralized error types for the scheduling engine

PURPOSE:
  All error types in one place for consistency and discoverability.
  The taxonomy mirrors how failures propagate through a strategy run:

  - ErrConfiguration: invalid caller input, fatal, never retried
  - ErrContextBuild:  the context builder could not assemble a usable
                      context (only the blackout load is fatal; every
                      other sub-load degrades to empty and is logged)
  - ErrProposal:      the LLM call failed after retries, or returned a
                      shape that failed validation after one repair
  - ErrApplyPartial:  one plan change failed to commit; siblings continue

  Validation rejections by the daily-cap validator are data (a count and
  a note), never errors.

USAGE:
  if errors.Is(err, planning.ErrProposal) {
      // surface "AI service unavailable" to the caller
  }
*/
package planning

import (
	"errors"
	"fmt"
)

// =============================================================================
// SENTINEL ERRORS - Use with errors.Is()
// =============================================================================

var (
	// ErrConfiguration is returned for invalid caller input: no family
	// resolved, malformed dates, an empty child set.
	ErrConfiguration = errors.New("invalid configuration")

	// ErrContextBuild is returned when the planning context cannot be
	// assembled. Only the blackout load raises this; there is no safe
	// default for blackout handling.
	ErrContextBuild = errors.New("context build failed")

	// ErrProposal is returned when the external proposal call failed
	// after retries or produced an unusable shape.
	ErrProposal = errors.New("proposal failed")

	// ErrApplyPartial marks a single plan change that failed to commit.
	ErrApplyPartial = errors.New("change apply failed")

	// ErrPlanNotFound is returned when a referenced plan doesn't exist.
	ErrPlanNotFound = errors.New("plan not found")

	// ErrEventNotFound is returned when a referenced event doesn't exist.
	ErrEventNotFound = errors.New("event not found")

	// ErrPlanningBusy is returned when another run already holds the
	// family's planning lock. Retryable.
	ErrPlanningBusy = errors.New("planning already in progress for family")
)

// =============================================================================
// STRUCTURED ERRORS - Carry additional context
// =============================================================================

// ContextBuildError reports which component of the context failed.
type ContextBuildError struct {
	Component string // e.g. "blackouts"
	Err       error
}

func (e *ContextBuildError) Error() string {
	return fmt.Sprintf("context build: %s: %v", e.Component, e.Err)
}

func (e *ContextBuildError) Unwrap() error { return ErrContextBuild }

// ProposalError reports which strategy's proposal call failed and why.
type ProposalError struct {
	Strategy string // "pack_week", "catch_up", "suggest_plan"
	Err      error
}

func (e *ProposalError) Error() string {
	return fmt.Sprintf("%s proposal: %v", e.Strategy, e.Err)
}

func (e *ProposalError) Unwrap() error { return ErrProposal }

// ApplyChangeError carries enough context to retry a failed change.
type ApplyChangeError struct {
	ChangeID   ChangeID
	ChangeType ChangeType
	Err        error
}

func (e *ApplyChangeError) Error() string {
	return fmt.Sprintf("apply %s change %s: %v", e.ChangeType, e.ChangeID, e.Err)
}

func (e *ApplyChangeError) Unwrap() error { return ErrApplyPartial }

// =============================================================================
// ERROR HELPERS
// =============================================================================

// IsFatal reports whether the error aborts a strategy invocation.
func IsFatal(err error) bool {
	return errors.Is(err, ErrConfiguration) ||
		errors.Is(err, ErrContextBuild) ||
		errors.Is(err, ErrProposal)
}

// IsClientError reports whether the error is due to invalid caller input.
func IsClientError(err error) bool {
	return errors.Is(err, ErrConfiguration)
}

// IsNotFound reports whether the error indicates a missing resource.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrPlanNotFound) || errors.Is(err, ErrEventNotFound)
}
