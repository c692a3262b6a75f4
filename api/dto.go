/*
dto.go - Data Transfer Objects for API requests and responses

PURPOSE:
  Defines the JSON structures for API communication. These types decouple
  the internal domain model from the external API contract, allowing:
  - Field renaming without breaking clients
  - API-specific validation
  - Version evolution

NAMING CONVENTION:
  - *Request:  Request body types from clients
  - *Response: Response wrappers returned to clients

VALIDATION:
  Request structs carry validator tags; handlers run them through the
  shared validator before touching domain logic.

SEE ALSO:
  - handlers.go: Uses these types
*/
package api

import (
	"github.com/hearthplan/planner-engine/planning"
	"github.com/hearthplan/planner-engine/strategy"
)

// =============================================================================
// STRATEGY REQUESTS
// =============================================================================

// PackWeekRequest triggers the pack-week strategy.
type PackWeekRequest struct {
	FamilyID  string   `json:"family_id" validate:"required"`
	WeekStart string   `json:"week_start" validate:"required"` // YYYY-MM-DD
	ChildIDs  []string `json:"child_ids"`                      // empty = all active children
}

// CatchUpRequest triggers the catch-up strategy.
type CatchUpRequest struct {
	FamilyID string   `json:"family_id" validate:"required"`
	ChildIDs []string `json:"child_ids"`
}

// SuggestPlanRequest triggers the suggest-plan strategy.
type SuggestPlanRequest struct {
	FamilyID  string   `json:"family_id" validate:"required"`
	WeekStart string   `json:"week_start" validate:"required"`
	ChildIDs  []string `json:"child_ids"`
}

// ApplyPlanRequest carries per-change verdicts for a draft plan.
type ApplyPlanRequest struct {
	FamilyID  string              `json:"family_id" validate:"required"`
	Approvals []planning.Approval `json:"approvals"`
}

// =============================================================================
// STRATEGY RESPONSES
// =============================================================================

// PackWeekResponse wraps a pack-week run.
type PackWeekResponse struct {
	*strategy.PackWeekResult
	TaskStatus string `json:"task_status"`
}

// CatchUpResponse wraps a catch-up run.
type CatchUpResponse struct {
	*strategy.CatchUpResult
	TaskStatus string `json:"task_status"`
}

// SuggestPlanResponse wraps a suggest-plan run.
type SuggestPlanResponse struct {
	*strategy.SuggestResult
	TaskStatus string `json:"task_status"`
}

// =============================================================================
// CALENDAR REQUESTS
// =============================================================================

// CreateBlackoutRequest adds a blackout period.
type CreateBlackoutRequest struct {
	FamilyID string `json:"family_id" validate:"required"`
	ChildID  string `json:"child_id"` // empty = whole family
	StartsOn string `json:"starts_on" validate:"required"`
	EndsOn   string `json:"ends_on" validate:"required"`
	Label    string `json:"label"`
}

// FreezeWeekRequest freezes or unfreezes a week of the calendar.
type FreezeWeekRequest struct {
	FamilyID  string `json:"family_id" validate:"required"`
	WeekStart string `json:"week_start" validate:"required"`
	Frozen    *bool  `json:"frozen"` // nil = freeze
}

// RescheduleEventRequest rebounds one event manually.
type RescheduleEventRequest struct {
	FamilyID string `json:"family_id" validate:"required"`
	Start    string `json:"start" validate:"required"` // RFC3339
	End      string `json:"end" validate:"required"`
	Reason   string `json:"reason"`
}

// =============================================================================
// ERROR RESPONSE
// =============================================================================

// ErrorResponse is the uniform error body.
type ErrorResponse struct {
	Error  string `json:"error"`
	Detail string `json:"detail,omitempty"`
}
