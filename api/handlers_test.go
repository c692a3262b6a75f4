/*
handlers_test.go - Unit tests for API handlers

Tests drive the full router with an in-memory store and a canned
proposal client, covering:
- Strategy endpoints (pack_week, suggest_plan, apply)
- Calendar endpoints (blackouts, freeze_week, reschedule)
- Error mapping (validation, not-found, model failures)
*/
package api_test

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hearthplan/planner-engine/api"
	"github.com/hearthplan/planner-engine/llm"
	"github.com/hearthplan/planner-engine/planning"
	"github.com/hearthplan/planner-engine/planning/store"
	"github.com/hearthplan/planner-engine/strategy"
)

// =============================================================================
// TEST SETUP
// =============================================================================

const testFamily = "fam-1"

var monday = planning.NewDate(2026, time.March, 2)

type fakeClient struct {
	packWeek *llm.PackWeekProposal
	suggest  *llm.PlanProposal
	err      error
}

func (f *fakeClient) PackWeek(context.Context, *planning.PlanningContext) (*llm.PackWeekProposal, error) {
	return f.packWeek, f.err
}

func (f *fakeClient) CatchUp(context.Context, *planning.PlanningContext, []planning.ScheduledEvent) (*llm.CatchUpProposal, error) {
	return &llm.CatchUpProposal{}, f.err
}

func (f *fakeClient) SuggestPlan(context.Context, *planning.PlanningContext) (*llm.PlanProposal, error) {
	return f.suggest, f.err
}

func newTestRouter(mem *store.Memory, client strategy.ProposalClient) http.Handler {
	deps := strategy.Deps{
		Builder:   &planning.ContextBuilder{Calendar: mem, Events: mem, Insights: mem},
		Validator: planning.DailyCapValidator{},
		Calendar:  mem,
		Events:    mem,
		Plans:     mem,
		TaskRuns:  mem,
		Client:    client,
	}
	applier := &planning.PlanApplier{Plans: mem, Events: mem, Refresher: mem}
	h := api.NewHandler(deps, applier, mem, mem, nil)
	return api.NewRouter(h, nil)
}

func seedFamily(t *testing.T, mem *store.Memory) {
	t.Helper()
	mem.AddChild(planning.Child{ID: "c1", FamilyID: testFamily, Name: "Ada"})
	for d := 0; d < 14; d++ {
		mem.AddCalendarDay(planning.CalendarDay{
			FamilyID:        testFamily,
			ChildID:         "c1",
			Date:            monday.AddDays(d),
			Status:          planning.DayTeach,
			FirstBlockStart: "09:00",
			LastBlockEnd:    "15:00",
		})
	}
}

func doJSON(t *testing.T, router http.Handler, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	return rec
}

// =============================================================================
// STRATEGY ENDPOINTS
// =============================================================================

func TestPackWeekEndpoint_Success(t *testing.T) {
	// GIVEN: A family and a model that proposes one session
	mem := store.NewMemory()
	seedFamily(t, mem)
	start := time.Date(2026, time.March, 4, 9, 0, 0, 0, time.UTC)
	router := newTestRouter(mem, &fakeClient{packWeek: &llm.PackWeekProposal{
		Events: []llm.ProposedEvent{{
			ChildID: "c1", Title: "Math", Start: start, End: start.Add(time.Hour),
		}},
	}})

	// WHEN: Posting a pack-week request
	rec := doJSON(t, router, http.MethodPost, "/api/ai/pack_week", map[string]any{
		"family_id":  testFamily,
		"week_start": "2026-03-02",
	})

	// THEN: The inserted event comes back with task status
	require.Equal(t, http.StatusOK, rec.Code)
	var resp struct {
		Inserted   []planning.ScheduledEvent `json:"inserted"`
		TaskStatus string                    `json:"task_status"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	require.Len(t, resp.Inserted, 1)
	assert.Equal(t, "succeeded", resp.TaskStatus)
}

func TestPackWeekEndpoint_MissingFields(t *testing.T) {
	router := newTestRouter(store.NewMemory(), &fakeClient{})

	rec := doJSON(t, router, http.MethodPost, "/api/ai/pack_week", map[string]any{
		"family_id": testFamily, // no week_start
	})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = doJSON(t, router, http.MethodPost, "/api/ai/pack_week", map[string]any{
		"family_id":  testFamily,
		"week_start": "03/02/2026",
	})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestPackWeekEndpoint_ModelFailureIs502(t *testing.T) {
	mem := store.NewMemory()
	seedFamily(t, mem)
	router := newTestRouter(mem, &fakeClient{err: errors.New("rate limited")})

	rec := doJSON(t, router, http.MethodPost, "/api/ai/pack_week", map[string]any{
		"family_id":  testFamily,
		"week_start": "2026-03-02",
	})

	require.Equal(t, http.StatusBadGateway, rec.Code)
	var resp api.ErrorResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "AI service unavailable", resp.Error)
}

func TestSuggestThenApplyPlan(t *testing.T) {
	// GIVEN: A suggested plan with one add
	mem := store.NewMemory()
	seedFamily(t, mem)
	start := time.Date(2026, time.March, 4, 9, 0, 0, 0, time.UTC)
	router := newTestRouter(mem, &fakeClient{suggest: &llm.PlanProposal{
		Adds: []llm.ProposedEvent{{
			ChildID: "c1", Title: "Math", Start: start, End: start.Add(time.Hour),
		}},
	}})

	rec := doJSON(t, router, http.MethodPost, "/api/ai/suggest_plan", map[string]any{
		"family_id":  testFamily,
		"week_start": "2026-03-02",
	})
	require.Equal(t, http.StatusOK, rec.Code)
	var suggested struct {
		PlanID  string                `json:"plan_id"`
		Changes []planning.PlanChange `json:"changes"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &suggested))
	require.NotEmpty(t, suggested.PlanID)
	require.Len(t, suggested.Changes, 1)

	// WHEN: Approving and applying the change
	rec = doJSON(t, router, http.MethodPost, "/api/ai/plans/"+suggested.PlanID+"/apply", map[string]any{
		"family_id": testFamily,
		"approvals": []map[string]any{{
			"change_id": string(suggested.Changes[0].ID),
			"approved":  true,
		}},
	})

	// THEN: The plan applies and the event exists
	require.Equal(t, http.StatusOK, rec.Code)
	var applied planning.ApplyResult
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &applied))
	assert.Equal(t, planning.PlanApplied, applied.Status)
	assert.Equal(t, 1, applied.Applied)

	events, err := mem.EventsInWindow(context.Background(), testFamily, nil,
		planning.DateRange{Start: monday, End: monday.AddDays(7)})
	require.NoError(t, err)
	assert.Len(t, events, 1)
}

func TestApplyPlanEndpoint_UnknownPlanIs404(t *testing.T) {
	router := newTestRouter(store.NewMemory(), &fakeClient{})

	rec := doJSON(t, router, http.MethodPost, "/api/ai/plans/nope/apply", map[string]any{
		"family_id": testFamily,
	})
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

// =============================================================================
// CALENDAR ENDPOINTS
// =============================================================================

func TestBlackoutEndpoints(t *testing.T) {
	mem := store.NewMemory()
	router := newTestRouter(mem, &fakeClient{})

	// Create
	rec := doJSON(t, router, http.MethodPost, "/api/planner/blackouts", map[string]any{
		"family_id": testFamily,
		"starts_on": "2026-03-05",
		"ends_on":   "2026-03-07",
		"label":     "Trip",
	})
	require.Equal(t, http.StatusCreated, rec.Code)
	var created planning.BlackoutPeriod
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &created))
	require.NotEmpty(t, created.ID)

	// Inverted range rejected
	rec = doJSON(t, router, http.MethodPost, "/api/planner/blackouts", map[string]any{
		"family_id": testFamily,
		"starts_on": "2026-03-07",
		"ends_on":   "2026-03-05",
	})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	// Delete requires family_id
	rec = doJSON(t, router, http.MethodDelete, "/api/planner/blackouts/"+created.ID, nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = doJSON(t, router, http.MethodDelete, "/api/planner/blackouts/"+created.ID+"?family_id="+testFamily, nil)
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = doJSON(t, router, http.MethodDelete, "/api/planner/blackouts/"+created.ID+"?family_id="+testFamily, nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestFreezeWeekEndpoint(t *testing.T) {
	// GIVEN: A seeded week
	mem := store.NewMemory()
	seedFamily(t, mem)
	router := newTestRouter(mem, &fakeClient{})

	// WHEN: Freezing it
	rec := doJSON(t, router, http.MethodPost, "/api/planner/freeze_week", map[string]any{
		"family_id":  testFamily,
		"week_start": "2026-03-02",
	})
	require.Equal(t, http.StatusOK, rec.Code)

	// THEN: All seven days are frozen
	days, err := mem.CalendarDays(context.Background(), testFamily,
		planning.DateRange{Start: monday, End: monday.AddDays(6)})
	require.NoError(t, err)
	require.Len(t, days, 7)
	for _, d := range days {
		assert.True(t, d.Frozen, d.Date.String())
	}

	// Unfreeze via explicit flag
	rec = doJSON(t, router, http.MethodPost, "/api/planner/freeze_week", map[string]any{
		"family_id":  testFamily,
		"week_start": "2026-03-02",
		"frozen":     false,
	})
	require.Equal(t, http.StatusOK, rec.Code)
	days, err = mem.CalendarDays(context.Background(), testFamily,
		planning.DateRange{Start: monday, End: monday.AddDays(6)})
	require.NoError(t, err)
	for _, d := range days {
		assert.False(t, d.Frozen)
	}
}

func TestRescheduleEventEndpoint(t *testing.T) {
	mem := store.NewMemory()
	seedFamily(t, mem)
	ev, err := mem.InsertEvent(context.Background(), planning.ScheduledEvent{
		FamilyID: testFamily, ChildID: "c1", Title: "Math",
		Start:  time.Date(2026, time.March, 3, 9, 0, 0, 0, time.UTC),
		End:    time.Date(2026, time.March, 3, 10, 0, 0, 0, time.UTC),
		Status: planning.EventMissed, Source: planning.SourceManual,
	})
	require.NoError(t, err)
	router := newTestRouter(mem, &fakeClient{})

	rec := doJSON(t, router, http.MethodPost, "/api/events/"+string(ev.ID)+"/reschedule", map[string]any{
		"family_id": testFamily,
		"start":     "2026-03-05T09:00:00Z",
		"end":       "2026-03-05T10:00:00Z",
		"reason":    "sick day",
	})

	require.Equal(t, http.StatusOK, rec.Code)
	var updated planning.ScheduledEvent
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &updated))
	assert.Equal(t, planning.EventScheduled, updated.Status)
	assert.Equal(t, "manual", updated.RescheduleOrigin)
	assert.Equal(t, "sick day", updated.RescheduleReason)

	// Cache refreshed best-effort over old and new dates
	windows := mem.RefreshedWindows()
	require.Len(t, windows, 1)
	assert.Equal(t, planning.NewDate(2026, time.March, 3), windows[0].Start)
	assert.Equal(t, planning.NewDate(2026, time.March, 5), windows[0].End)
}

func TestRescheduleEventEndpoint_Validation(t *testing.T) {
	mem := store.NewMemory()
	router := newTestRouter(mem, &fakeClient{})

	// Unknown event
	rec := doJSON(t, router, http.MethodPost, "/api/events/ghost/reschedule", map[string]any{
		"family_id": testFamily,
		"start":     "2026-03-05T09:00:00Z",
		"end":       "2026-03-05T10:00:00Z",
	})
	assert.Equal(t, http.StatusNotFound, rec.Code)

	// End before start
	rec = doJSON(t, router, http.MethodPost, "/api/events/ghost/reschedule", map[string]any{
		"family_id": testFamily,
		"start":     "2026-03-05T10:00:00Z",
		"end":       "2026-03-05T09:00:00Z",
	})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestHealthEndpoint(t *testing.T) {
	router := newTestRouter(store.NewMemory(), &fakeClient{})
	rec := doJSON(t, router, http.MethodGet, "/healthz", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
}
