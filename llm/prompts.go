/*
prompts.go - Prompt construction per strategy

PURPOSE:
  Builds the system/user message pairs for each strategy. The planning
  context is serialized to JSON and appended verbatim; the constraint
  text tells the model about the daily cap and the per-day running
  totals (current_minutes_by_day), but enforcement stays server-side.
*/
package llm

import (
	"encoding/json"
	"fmt"

	"github.com/hearthplan/planner-engine/planning"
)

const (
	packWeekSystem = "You are a week packing assistant. Return only valid JSON."
	catchUpSystem  = "You are a catch-up scheduling assistant. Return only valid JSON."
	suggestSystem  = "You are a scheduling assistant. Return only valid JSON."
)

const packWeekInstructions = `You are an intelligent scheduling assistant for homeschooling families.
Pack a week (Monday to Sunday) with optimal event placement based on weekly targets and availability.

Constraints:
- CRITICAL: Do not exceed per-day cap of %d minutes per day per child
- For each day, check current_minutes_by_day to see how many minutes are already scheduled
- Only add events if the total (existing + new) does not exceed the cap
- Prefer 45-60 minute blocks (max 90 minutes)
- Avoid blackout days and times outside teaching windows
- Meet the weekly targets in required_minutes
- Balance subjects across the week (don't pack everything on one day)
- Respect existing events (don't create duplicates)
- Consider learning velocity if provided (below 1 = slower, allocate more time)
- If recent_struggles list a child/subject, prefer shorter, more frequent sessions (30-45 min instead of 60)
- If standards_gaps are provided for a child, prioritize events that address uncovered standards and reference the standard in the title (e.g. "Math - Fractions (VA 4.3)")

Return ONLY valid JSON with this structure:
{
  "events": [
    {"child_id": "uuid", "subject_id": "uuid", "title": "Subject - Session", "start": "2025-11-06T09:00:00Z", "end": "2025-11-06T10:00:00Z", "minutes": 60}
  ],
  "rationale": ["Added Math sessions to meet weekly target"]
}`

const catchUpInstructions = `You are an intelligent scheduling assistant for homeschooling families.
Reschedule missed events to optimal future time slots.

Constraints:
- CRITICAL: Do not exceed per-day cap of %d minutes per day per child
- For each day, check current_minutes_by_day to see how many minutes are already scheduled
- Find available windows in the next 2-4 weeks
- Avoid blackout days and times outside teaching windows
- Don't create conflicts with existing scheduled events
- Preserve each event's duration
- Prefer earlier slots (catch up sooner) and spread catch-up across days
- If recent_struggles list a child/subject, prefer splitting long sessions into shorter ones
- If standards_gaps are provided, prioritize rescheduling events that address uncovered standards

Return ONLY valid JSON with this structure:
{
  "rescheduled": [
    {"event_id": "uuid", "original_start": "2025-11-05T10:00:00Z", "new_start": "2025-11-10T09:00:00Z", "new_end": "2025-11-10T10:00:00Z", "reason": "Moved to next available window"}
  ],
  "rationale": ["Rescheduled 3 Math sessions to next week"]
}`

const suggestInstructions = `You are an intelligent scheduling assistant for homeschooling families.
Propose schedule changes for the coming weeks.

IMPORTANT: Only propose moves for events that actually conflict with blackouts or need rescheduling.
Do not propose moves for events that are already in valid time slots.

Constraints:
- Do not exceed the per-day cap of %d minutes per day per child
- Prefer 45-60 minute blocks (max 90 minutes)
- Avoid blackout days and times outside teach windows
- Balance subjects across the week
- Consider learning velocity (if a child is slower, allocate more time)

IMPORTANT DELETION RULES:
- ONLY delete events that are TRUE DUPLICATES (same time, same subject, same child)
- NEVER delete events just to free up space - use moves instead
- If an event conflicts with a blackout, MOVE it, don't delete it
- Preserve all scheduled learning time - deletion should be extremely rare

Return ONLY valid JSON with this structure:
{
  "adds": [
    {"child_id": "uuid", "subject_id": "uuid", "title": "Math - Chapter 5", "start": "2025-11-06T09:00:00Z", "end": "2025-11-06T10:00:00Z", "minutes": 60}
  ],
  "moves": [
    {"event_id": "uuid", "from_start": "2025-11-05T14:00:00Z", "from_end": "2025-11-05T15:00:00Z", "to_start": "2025-11-07T09:00:00Z", "to_end": "2025-11-07T10:00:00Z", "reason": "Avoid blackout"}
  ],
  "deletes": [
    {"event_id": "uuid", "reason": "EXACT DUPLICATE: same event scheduled twice"}
  ],
  "rationale": ["Moved Math to avoid blackout period"]
}`

// catchUpPayload wraps the context with the missed events the model is
// asked to rebound.
type catchUpPayload struct {
	*planning.PlanningContext
	MissedEvents []planning.ScheduledEvent `json:"missed_events"`
}

func packWeekPrompt(pctx *planning.PlanningContext) (string, error) {
	return renderPrompt(packWeekInstructions, pctx.MaxMinutesPerDay, pctx)
}

func catchUpPrompt(pctx *planning.PlanningContext, missed []planning.ScheduledEvent) (string, error) {
	payload := catchUpPayload{PlanningContext: pctx, MissedEvents: missed}
	return renderPrompt(catchUpInstructions, pctx.MaxMinutesPerDay, payload)
}

func suggestPrompt(pctx *planning.PlanningContext) (string, error) {
	return renderPrompt(suggestInstructions, pctx.MaxMinutesPerDay, pctx)
}

func renderPrompt(instructions string, capMinutes int, payload any) (string, error) {
	raw, err := json.MarshalIndent(payload, "", "  ")
	if err != nil {
		return "", fmt.Errorf("serialize context: %w", err)
	}
	return fmt.Sprintf(instructions, capMinutes) + "\n\nCONTEXT:\n" + string(raw) + "\n", nil
}
