/*
handlers.go - HTTP API handlers for the scheduling assistant

PURPOSE:
  Exposes the scheduling engine via REST API. Handles HTTP
  request/response, JSON serialization, and delegates to domain logic.

ENDPOINTS:
  Strategies:
    POST   /api/ai/pack_week             Fill a week with new sessions
    POST   /api/ai/catch_up              Rebound missed sessions
    POST   /api/ai/suggest_plan          Draft a plan for approval
    POST   /api/ai/plans/{id}/apply      Apply approved plan changes

  Calendar:
    POST   /api/planner/blackouts        Create blackout period
    DELETE /api/planner/blackouts/{id}   Delete blackout period
    POST   /api/planner/freeze_week      Freeze/unfreeze a week
    POST   /api/events/{id}/reschedule   Manually rebound one event

REQUEST FLOW:
  1. Parse HTTP request
  2. Validate input
  3. Call domain logic (strategy, applier, store)
  4. Serialize response
  5. Handle errors

ERROR HANDLING:
  Errors are returned as JSON with appropriate HTTP status:
  - 400: Validation errors, invalid input
  - 404: Resource not found
  - 502: The model call failed after retries
  - 500: Internal errors

SECURITY NOTE:
  Currently NO authentication or authorization. All endpoints are public.

SEE ALSO:
  - dto.go: Request/response data structures
  - server.go: Router setup and middleware
*/
package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/hearthplan/planner-engine/planning"
	"github.com/hearthplan/planner-engine/strategy"
)

// =============================================================================
// HANDLER CONTEXT
// =============================================================================

// BlackoutStore is the blackout CRUD surface the API needs beyond the
// planning read interfaces.
type BlackoutStore interface {
	InsertBlackout(ctx context.Context, b planning.BlackoutPeriod) (planning.BlackoutPeriod, error)
	DeleteBlackout(ctx context.Context, family planning.FamilyID, id string) error
}

// CalendarFreezer flips the frozen flag on calendar days.
type CalendarFreezer interface {
	SetFrozen(ctx context.Context, family planning.FamilyID, dates []planning.Date, frozen bool) error
}

// Handler holds all dependencies for HTTP handlers.
type Handler struct {
	Deps      strategy.Deps
	Applier   *planning.PlanApplier
	Blackouts BlackoutStore
	Freezer   CalendarFreezer
	Log       *zap.Logger

	validate *validator.Validate
}

// NewHandler creates a new handler.
func NewHandler(deps strategy.Deps, applier *planning.PlanApplier, blackouts BlackoutStore, freezer CalendarFreezer, log *zap.Logger) *Handler {
	if log == nil {
		log = zap.NewNop()
	}
	return &Handler{
		Deps:      deps,
		Applier:   applier,
		Blackouts: blackouts,
		Freezer:   freezer,
		Log:       log,
		validate:  validator.New(validator.WithRequiredStructEnabled()),
	}
}

// =============================================================================
// STRATEGY HANDLERS
// =============================================================================

func (h *Handler) PackWeek(w http.ResponseWriter, r *http.Request) {
	var req PackWeekRequest
	if !h.decode(w, r, &req) {
		return
	}
	weekStart, err := planning.ParseDate(req.WeekStart)
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid week_start (use YYYY-MM-DD)", err)
		return
	}

	result, err := strategy.PackWeek(r.Context(), h.Deps, strategy.PackWeekRequest{
		Family:    planning.FamilyID(req.FamilyID),
		WeekStart: weekStart,
		Children:  childIDs(req.ChildIDs),
	})
	if err != nil {
		h.writeDomainError(w, "Pack week failed", err)
		return
	}
	writeJSON(w, http.StatusOK, PackWeekResponse{PackWeekResult: result, TaskStatus: string(planning.TaskSucceeded)})
}

func (h *Handler) CatchUp(w http.ResponseWriter, r *http.Request) {
	var req CatchUpRequest
	if !h.decode(w, r, &req) {
		return
	}

	result, err := strategy.CatchUp(r.Context(), h.Deps, strategy.CatchUpRequest{
		Family:   planning.FamilyID(req.FamilyID),
		Children: childIDs(req.ChildIDs),
	})
	if err != nil {
		h.writeDomainError(w, "Catch up failed", err)
		return
	}
	writeJSON(w, http.StatusOK, CatchUpResponse{CatchUpResult: result, TaskStatus: string(planning.TaskSucceeded)})
}

func (h *Handler) SuggestPlan(w http.ResponseWriter, r *http.Request) {
	var req SuggestPlanRequest
	if !h.decode(w, r, &req) {
		return
	}
	weekStart, err := planning.ParseDate(req.WeekStart)
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid week_start (use YYYY-MM-DD)", err)
		return
	}

	result, err := strategy.SuggestPlan(r.Context(), h.Deps, strategy.SuggestRequest{
		Family:    planning.FamilyID(req.FamilyID),
		WeekStart: weekStart,
		Children:  childIDs(req.ChildIDs),
	})
	if err != nil {
		h.writeDomainError(w, "Suggest plan failed", err)
		return
	}
	writeJSON(w, http.StatusOK, SuggestPlanResponse{SuggestResult: result, TaskStatus: string(planning.TaskSucceeded)})
}

func (h *Handler) ApplyPlan(w http.ResponseWriter, r *http.Request) {
	planID := planning.PlanID(chi.URLParam(r, "id"))
	var req ApplyPlanRequest
	if !h.decode(w, r, &req) {
		return
	}

	result, err := h.Applier.ApplyPlan(r.Context(), planning.FamilyID(req.FamilyID), planID, req.Approvals)
	if err != nil {
		h.writeDomainError(w, "Apply plan failed", err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

// =============================================================================
// CALENDAR HANDLERS
// =============================================================================

func (h *Handler) CreateBlackout(w http.ResponseWriter, r *http.Request) {
	var req CreateBlackoutRequest
	if !h.decode(w, r, &req) {
		return
	}
	startsOn, err := planning.ParseDate(req.StartsOn)
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid starts_on (use YYYY-MM-DD)", err)
		return
	}
	endsOn, err := planning.ParseDate(req.EndsOn)
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid ends_on (use YYYY-MM-DD)", err)
		return
	}
	if endsOn.Before(startsOn) {
		writeError(w, http.StatusBadRequest, "ends_on must not precede starts_on", nil)
		return
	}

	blackout, err := h.Blackouts.InsertBlackout(r.Context(), planning.BlackoutPeriod{
		FamilyID: planning.FamilyID(req.FamilyID),
		ChildID:  planning.ChildID(req.ChildID),
		StartsOn: startsOn,
		EndsOn:   endsOn,
		Label:    req.Label,
	})
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to create blackout", err)
		return
	}
	writeJSON(w, http.StatusCreated, blackout)
}

func (h *Handler) DeleteBlackout(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	family := planning.FamilyID(r.URL.Query().Get("family_id"))
	if family == "" {
		writeError(w, http.StatusBadRequest, "family_id query parameter required", nil)
		return
	}

	if err := h.Blackouts.DeleteBlackout(r.Context(), family, id); err != nil {
		writeError(w, http.StatusNotFound, "Blackout not found", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "deleted"})
}

func (h *Handler) FreezeWeek(w http.ResponseWriter, r *http.Request) {
	var req FreezeWeekRequest
	if !h.decode(w, r, &req) {
		return
	}
	weekStart, err := planning.ParseDate(req.WeekStart)
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid week_start (use YYYY-MM-DD)", err)
		return
	}
	frozen := true
	if req.Frozen != nil {
		frozen = *req.Frozen
	}

	var dates []planning.Date
	for i := 0; i < 7; i++ {
		dates = append(dates, weekStart.AddDays(i))
	}
	if err := h.Freezer.SetFrozen(r.Context(), planning.FamilyID(req.FamilyID), dates, frozen); err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to update frozen flag", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"week_start": weekStart.String(),
		"frozen":     frozen,
	})
}

func (h *Handler) RescheduleEvent(w http.ResponseWriter, r *http.Request) {
	id := planning.EventID(chi.URLParam(r, "id"))
	var req RescheduleEventRequest
	if !h.decode(w, r, &req) {
		return
	}
	start, err := time.Parse(time.RFC3339, req.Start)
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid start (use RFC3339)", err)
		return
	}
	end, err := time.Parse(time.RFC3339, req.End)
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid end (use RFC3339)", err)
		return
	}
	if !end.After(start) {
		writeError(w, http.StatusBadRequest, "end must be after start", nil)
		return
	}

	// Verify family ownership before mutating.
	events, err := h.Deps.Events.EventsByID(r.Context(), planning.FamilyID(req.FamilyID), []planning.EventID{id})
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to load event", err)
		return
	}
	if len(events) == 0 {
		writeError(w, http.StatusNotFound, "Event not found", nil)
		return
	}

	if err := h.Deps.Events.UpdateEventTimes(r.Context(), id, start, end, planning.EventScheduled, "manual", req.Reason); err != nil {
		h.writeDomainError(w, "Failed to reschedule event", err)
		return
	}

	// Best-effort cache refresh over the old and new dates.
	if h.Applier != nil && h.Applier.Refresher != nil {
		oldDate := planning.DateOf(events[0].Start)
		newDate := planning.DateOf(start)
		window := planning.DateRange{Start: oldDate, End: newDate}
		if newDate.Before(oldDate) {
			window = planning.DateRange{Start: newDate, End: oldDate}
		}
		if err := h.Applier.Refresher.RefreshWindow(r.Context(), planning.FamilyID(req.FamilyID), window); err != nil {
			h.Log.Warn("api.reschedule_refresh_failed", zap.Error(err))
		}
	}

	updated, _ := h.Deps.Events.EventsByID(r.Context(), planning.FamilyID(req.FamilyID), []planning.EventID{id})
	if len(updated) == 1 {
		writeJSON(w, http.StatusOK, updated[0])
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "rescheduled"})
}

func (h *Handler) Health(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// =============================================================================
// HELPERS
// =============================================================================

func (h *Handler) decode(w http.ResponseWriter, r *http.Request, into any) bool {
	if err := json.NewDecoder(r.Body).Decode(into); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return false
	}
	if err := h.validate.Struct(into); err != nil {
		writeError(w, http.StatusBadRequest, "Validation failed", err)
		return false
	}
	return true
}

func (h *Handler) writeDomainError(w http.ResponseWriter, message string, err error) {
	h.Log.Warn("api.request_failed", zap.String("message", message), zap.Error(err))
	switch {
	case planning.IsClientError(err):
		writeError(w, http.StatusBadRequest, message, err)
	case planning.IsNotFound(err):
		writeError(w, http.StatusNotFound, message, err)
	case errors.Is(err, planning.ErrPlanningBusy):
		writeError(w, http.StatusConflict, "Planning already in progress; retry shortly", err)
	case errors.Is(err, planning.ErrProposal):
		writeError(w, http.StatusBadGateway, "AI service unavailable", err)
	default:
		writeError(w, http.StatusInternalServerError, message, err)
	}
}

func childIDs(ids []string) []planning.ChildID {
	out := make([]planning.ChildID, 0, len(ids))
	for _, id := range ids {
		out = append(out, planning.ChildID(id))
	}
	return out
}

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if data != nil {
		_ = json.NewEncoder(w).Encode(data)
	}
}

func writeError(w http.ResponseWriter, status int, message string, err error) {
	resp := ErrorResponse{Error: message}
	if err != nil {
		resp.Detail = err.Error()
	}
	writeJSON(w, status, resp)
}
