/*
Package sqlite provides a SQLite-backed implementation of the storage interfaces.

PURPOSE:
  Implements all planning persistence interfaces (CalendarStore,
  InsightStore, EventStore, PlanStore, TaskRunStore, CacheRefresher)
  using SQLite. In production, the same patterns apply to PostgreSQL -
  only minor SQL dialect differences.

KEY TABLES:
  children:              Family members events are scheduled for
  calendar_days_cache:   Materialized per-(child, date) availability
  blackout_periods:      Date ranges with no teaching time
  events:                Scheduled sessions (the calendar itself)
  event_outcomes:        Parent/tutor reports on completed sessions
  learning_velocity:     Pace multipliers per child/subject
  required_minutes:      Weekly teaching targets per child/subject
  standards_preferences: Standard sets a child is tracked against
  standards_gaps:        Standards not yet evidenced as covered
  ai_plans:              Draft plans awaiting approval
  ai_plan_changes:       The add/move/delete ledger of each plan
  ai_task_runs:          Audit trail of strategy invocations

DATES & TIMES:
  Calendar dates are stored as YYYY-MM-DD text; timestamps as RFC3339
  UTC text. String comparison therefore orders correctly.

WAL MODE:
  SQLite is opened with WAL (Write-Ahead Logging) for better concurrency:
  - Multiple readers don't block
  - Single writer at a time
  - Better crash recovery

USAGE:
  store, err := sqlite.New("./data/planner.db")
  if err != nil {
      log.Fatal(err)
  }
  defer store.Close()

MIGRATION:
  Schema is auto-migrated on New(). For production, use a proper
  migration tool (golang-migrate, goose) with versioned migrations.

SEE ALSO:
  - planning/store.go: Interface definitions
  - planning/store/memory.go: In-memory implementation for testing
*/
package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	_ "github.com/mattn/go-sqlite3"
	"github.com/shopspring/decimal"

	"github.com/hearthplan/planner-engine/planning"
)

// Store implements all storage interfaces using SQLite.
type Store struct {
	db *sql.DB
	mu sync.RWMutex
}

// New creates a new SQLite store with the given database path.
// Use ":memory:" for an in-memory database.
func New(dbPath string) (*Store, error) {
	db, err := sql.Open("sqlite3", dbPath+"?_foreign_keys=on&_journal_mode=WAL")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	store := &Store{db: db}
	if err := store.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}

	return store, nil
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// migrate creates the database schema.
func (s *Store) migrate() error {
	schema := `
	CREATE TABLE IF NOT EXISTS children (
		id TEXT PRIMARY KEY,
		family_id TEXT NOT NULL,
		name TEXT NOT NULL,
		grade TEXT,
		archived INTEGER NOT NULL DEFAULT 0
	);

	CREATE INDEX IF NOT EXISTS idx_children_family
		ON children(family_id);

	CREATE TABLE IF NOT EXISTS calendar_days_cache (
		family_id TEXT NOT NULL,
		child_id TEXT NOT NULL,
		date TEXT NOT NULL,
		status TEXT NOT NULL DEFAULT 'off',
		first_block_start TEXT,
		last_block_end TEXT,
		is_frozen INTEGER NOT NULL DEFAULT 0,
		PRIMARY KEY (family_id, child_id, date)
	);

	CREATE INDEX IF NOT EXISTS idx_calendar_days_family_date
		ON calendar_days_cache(family_id, date);

	CREATE TABLE IF NOT EXISTS blackout_periods (
		id TEXT PRIMARY KEY,
		family_id TEXT NOT NULL,
		child_id TEXT,
		starts_on TEXT NOT NULL,
		ends_on TEXT NOT NULL,
		label TEXT
	);

	CREATE INDEX IF NOT EXISTS idx_blackouts_family
		ON blackout_periods(family_id, starts_on, ends_on);

	CREATE TABLE IF NOT EXISTS events (
		id TEXT PRIMARY KEY,
		family_id TEXT NOT NULL,
		child_id TEXT NOT NULL,
		subject_id TEXT,
		title TEXT NOT NULL,
		start_ts TEXT NOT NULL,
		end_ts TEXT NOT NULL,
		status TEXT NOT NULL DEFAULT 'scheduled',
		source TEXT NOT NULL DEFAULT 'manual',
		reschedule_origin TEXT,
		reschedule_reason TEXT,
		created_at TEXT NOT NULL
	);

	-- Hot path: window queries for context building
	CREATE INDEX IF NOT EXISTS idx_events_family_start
		ON events(family_id, start_ts);
	CREATE INDEX IF NOT EXISTS idx_events_child_start
		ON events(child_id, start_ts);

	CREATE TABLE IF NOT EXISTS event_outcomes (
		id TEXT PRIMARY KEY,
		family_id TEXT NOT NULL,
		child_id TEXT NOT NULL,
		subject_id TEXT,
		struggles_json TEXT,
		strengths_json TEXT,
		rating TEXT,
		created_at TEXT NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_outcomes_family_created
		ON event_outcomes(family_id, created_at);

	CREATE TABLE IF NOT EXISTS learning_velocity (
		family_id TEXT NOT NULL,
		child_id TEXT NOT NULL,
		subject_id TEXT NOT NULL,
		multiplier TEXT NOT NULL,
		PRIMARY KEY (child_id, subject_id)
	);

	CREATE TABLE IF NOT EXISTS required_minutes (
		child_id TEXT NOT NULL,
		subject_id TEXT NOT NULL,
		week_start TEXT NOT NULL,
		minutes INTEGER NOT NULL,
		PRIMARY KEY (child_id, subject_id, week_start)
	);

	CREATE TABLE IF NOT EXISTS standards_preferences (
		child_id TEXT NOT NULL,
		state_code TEXT NOT NULL,
		grade_level TEXT NOT NULL,
		subject_id TEXT NOT NULL DEFAULT '',
		active INTEGER NOT NULL DEFAULT 1,
		PRIMARY KEY (child_id, state_code, grade_level, subject_id)
	);

	CREATE TABLE IF NOT EXISTS standards_gaps (
		child_id TEXT NOT NULL,
		code TEXT NOT NULL,
		subject TEXT,
		description TEXT,
		PRIMARY KEY (child_id, code)
	);

	CREATE TABLE IF NOT EXISTS ai_plans (
		id TEXT PRIMARY KEY,
		family_id TEXT NOT NULL,
		week_start TEXT NOT NULL,
		strategy TEXT NOT NULL,
		rationale TEXT,
		status TEXT NOT NULL DEFAULT 'draft',
		created_at TEXT NOT NULL,
		applied_at TEXT
	);

	CREATE INDEX IF NOT EXISTS idx_plans_family
		ON ai_plans(family_id, created_at);

	CREATE TABLE IF NOT EXISTS ai_plan_changes (
		id TEXT PRIMARY KEY,
		plan_id TEXT NOT NULL,
		family_id TEXT NOT NULL,
		change_type TEXT NOT NULL,
		payload_json TEXT NOT NULL,
		approved INTEGER NOT NULL DEFAULT 0,
		applied INTEGER NOT NULL DEFAULT 0,
		created_at TEXT NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_plan_changes_plan
		ON ai_plan_changes(plan_id);

	CREATE TABLE IF NOT EXISTS ai_task_runs (
		id TEXT PRIMARY KEY,
		family_id TEXT NOT NULL,
		kind TEXT NOT NULL,
		params_json TEXT,
		status TEXT NOT NULL DEFAULT 'pending',
		result_json TEXT,
		error TEXT,
		created_at TEXT NOT NULL,
		started_at TEXT,
		completed_at TEXT
	);

	CREATE INDEX IF NOT EXISTS idx_task_runs_family
		ON ai_task_runs(family_id, created_at);
	`

	_, err := s.db.Exec(schema)
	return err
}

// =============================================================================
// CALENDAR STORE
// =============================================================================

func (s *Store) Children(ctx context.Context, family planning.FamilyID) ([]planning.Child, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.QueryContext(ctx, `
		SELECT id, family_id, name, COALESCE(grade, ''), archived
		FROM children WHERE family_id = ? ORDER BY name`, family)
	if err != nil {
		return nil, fmt.Errorf("failed to query children: %w", err)
	}
	defer rows.Close()

	var out []planning.Child
	for rows.Next() {
		var c planning.Child
		var archived int
		if err := rows.Scan(&c.ID, &c.FamilyID, &c.Name, &c.Grade, &archived); err != nil {
			return nil, err
		}
		c.Archived = archived != 0
		out = append(out, c)
	}
	return out, rows.Err()
}

// Families returns every family that has at least one child on file.
func (s *Store) Families(ctx context.Context) ([]planning.FamilyID, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.QueryContext(ctx, `
		SELECT DISTINCT family_id FROM children ORDER BY family_id`)
	if err != nil {
		return nil, fmt.Errorf("failed to query families: %w", err)
	}
	defer rows.Close()

	var out []planning.FamilyID
	for rows.Next() {
		var f planning.FamilyID
		if err := rows.Scan(&f); err != nil {
			return nil, err
		}
		out = append(out, f)
	}
	return out, rows.Err()
}

// InsertChild stores a new child.
func (s *Store) InsertChild(ctx context.Context, c planning.Child) (planning.Child, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if c.ID == "" {
		c.ID = planning.ChildID(uuid.NewString())
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO children (id, family_id, name, grade, archived)
		VALUES (?, ?, ?, ?, ?)`,
		c.ID, c.FamilyID, c.Name, c.Grade, boolInt(c.Archived))
	if err != nil {
		return planning.Child{}, fmt.Errorf("failed to insert child: %w", err)
	}
	return c, nil
}

func (s *Store) CalendarDays(ctx context.Context, family planning.FamilyID, window planning.DateRange) ([]planning.CalendarDay, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.QueryContext(ctx, `
		SELECT family_id, child_id, date, status,
		       COALESCE(first_block_start, ''), COALESCE(last_block_end, ''), is_frozen
		FROM calendar_days_cache
		WHERE family_id = ? AND date >= ? AND date <= ?
		ORDER BY date, child_id`,
		family, window.Start.String(), window.End.String())
	if err != nil {
		return nil, fmt.Errorf("failed to query calendar days: %w", err)
	}
	defer rows.Close()

	var out []planning.CalendarDay
	for rows.Next() {
		var d planning.CalendarDay
		var date string
		var frozen int
		if err := rows.Scan(&d.FamilyID, &d.ChildID, &date, &d.Status, &d.FirstBlockStart, &d.LastBlockEnd, &frozen); err != nil {
			return nil, err
		}
		if d.Date, err = planning.ParseDate(date); err != nil {
			return nil, err
		}
		d.Frozen = frozen != 0
		out = append(out, d)
	}
	return out, rows.Err()
}

// UpsertCalendarDay writes one cache row, replacing any existing row
// for the same (family, child, date). The frozen flag of an existing
// row is preserved.
func (s *Store) UpsertCalendarDay(ctx context.Context, d planning.CalendarDay) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO calendar_days_cache
			(family_id, child_id, date, status, first_block_start, last_block_end, is_frozen)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(family_id, child_id, date) DO UPDATE SET
			status = excluded.status,
			first_block_start = excluded.first_block_start,
			last_block_end = excluded.last_block_end`,
		d.FamilyID, d.ChildID, d.Date.String(), d.Status,
		nullString(d.FirstBlockStart), nullString(d.LastBlockEnd), boolInt(d.Frozen))
	if err != nil {
		return fmt.Errorf("failed to upsert calendar day: %w", err)
	}
	return nil
}

// SetFrozen flips the frozen flag on every cache row of a family for
// the given dates. Freezing creates missing rows as "off" days so the
// freeze sticks; unfreezing a missing row is already a no-op.
func (s *Store) SetFrozen(ctx context.Context, family planning.FamilyID, dates []planning.Date, frozen bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	for _, date := range dates {
		res, err := tx.ExecContext(ctx, `
			UPDATE calendar_days_cache SET is_frozen = ?
			WHERE family_id = ? AND date = ?`,
			boolInt(frozen), family, date.String())
		if err != nil {
			return fmt.Errorf("failed to set frozen: %w", err)
		}
		n, _ := res.RowsAffected()
		if n == 0 && frozen {
			_, err = tx.ExecContext(ctx, `
				INSERT INTO calendar_days_cache (family_id, child_id, date, status, is_frozen)
				SELECT ?, id, ?, 'off', 1 FROM children WHERE family_id = ?`,
				family, date.String(), family)
			if err != nil {
				return fmt.Errorf("failed to freeze missing rows: %w", err)
			}
		}
	}
	return tx.Commit()
}

func (s *Store) Blackouts(ctx context.Context, family planning.FamilyID, window planning.DateRange) ([]planning.BlackoutPeriod, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.QueryContext(ctx, `
		SELECT id, family_id, COALESCE(child_id, ''), starts_on, ends_on, COALESCE(label, '')
		FROM blackout_periods
		WHERE family_id = ? AND ends_on >= ? AND starts_on <= ?
		ORDER BY starts_on`,
		family, window.Start.String(), window.End.String())
	if err != nil {
		return nil, fmt.Errorf("failed to query blackouts: %w", err)
	}
	defer rows.Close()

	var out []planning.BlackoutPeriod
	for rows.Next() {
		var b planning.BlackoutPeriod
		var startsOn, endsOn string
		if err := rows.Scan(&b.ID, &b.FamilyID, &b.ChildID, &startsOn, &endsOn, &b.Label); err != nil {
			return nil, err
		}
		if b.StartsOn, err = planning.ParseDate(startsOn); err != nil {
			return nil, err
		}
		if b.EndsOn, err = planning.ParseDate(endsOn); err != nil {
			return nil, err
		}
		out = append(out, b)
	}
	return out, rows.Err()
}

// InsertBlackout stores a new blackout period.
func (s *Store) InsertBlackout(ctx context.Context, b planning.BlackoutPeriod) (planning.BlackoutPeriod, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if b.ID == "" {
		b.ID = uuid.NewString()
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO blackout_periods (id, family_id, child_id, starts_on, ends_on, label)
		VALUES (?, ?, ?, ?, ?, ?)`,
		b.ID, b.FamilyID, nullString(string(b.ChildID)),
		b.StartsOn.String(), b.EndsOn.String(), nullString(b.Label))
	if err != nil {
		return planning.BlackoutPeriod{}, fmt.Errorf("failed to insert blackout: %w", err)
	}
	return b, nil
}

// DeleteBlackout removes a blackout period owned by the family.
func (s *Store) DeleteBlackout(ctx context.Context, family planning.FamilyID, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	res, err := s.db.ExecContext(ctx,
		`DELETE FROM blackout_periods WHERE id = ? AND family_id = ?`, id, family)
	if err != nil {
		return fmt.Errorf("failed to delete blackout: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("blackout %s not found", id)
	}
	return nil
}

// =============================================================================
// INSIGHT STORE
// =============================================================================

func (s *Store) RequiredMinutes(ctx context.Context, _ planning.FamilyID, child planning.ChildID, weekStart planning.Date, weeks int) ([]planning.RequiredMinutes, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	end := weekStart.AddDays(7 * weeks)
	rows, err := s.db.QueryContext(ctx, `
		SELECT child_id, subject_id, week_start, minutes
		FROM required_minutes
		WHERE child_id = ? AND week_start >= ? AND week_start < ?
		ORDER BY week_start, subject_id`,
		child, weekStart.String(), end.String())
	if err != nil {
		return nil, fmt.Errorf("failed to query required minutes: %w", err)
	}
	defer rows.Close()

	var out []planning.RequiredMinutes
	for rows.Next() {
		var r planning.RequiredMinutes
		var ws string
		if err := rows.Scan(&r.ChildID, &r.SubjectID, &ws, &r.Minutes); err != nil {
			return nil, err
		}
		if r.WeekStart, err = planning.ParseDate(ws); err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

// UpsertRequiredMinutes writes one weekly target row.
func (s *Store) UpsertRequiredMinutes(ctx context.Context, r planning.RequiredMinutes) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO required_minutes (child_id, subject_id, week_start, minutes)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(child_id, subject_id, week_start) DO UPDATE SET minutes = excluded.minutes`,
		r.ChildID, r.SubjectID, r.WeekStart.String(), r.Minutes)
	if err != nil {
		return fmt.Errorf("failed to upsert required minutes: %w", err)
	}
	return nil
}

func (s *Store) Velocities(ctx context.Context, family planning.FamilyID, children []planning.ChildID) ([]planning.Velocity, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	query, args := inQuery(`
		SELECT child_id, subject_id, multiplier
		FROM learning_velocity WHERE family_id = ?`, "child_id", family, children)
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query velocities: %w", err)
	}
	defer rows.Close()

	var out []planning.Velocity
	for rows.Next() {
		var v planning.Velocity
		var mult string
		if err := rows.Scan(&v.ChildID, &v.SubjectID, &mult); err != nil {
			return nil, err
		}
		if v.Multiplier, err = decimal.NewFromString(mult); err != nil {
			return nil, err
		}
		out = append(out, v)
	}
	return out, rows.Err()
}

func (s *Store) Outcomes(ctx context.Context, family planning.FamilyID, children []planning.ChildID, since time.Time) ([]planning.OutcomeRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	query, args := inQuery(`
		SELECT child_id, COALESCE(subject_id, ''), COALESCE(struggles_json, '[]'),
		       COALESCE(strengths_json, '[]'), COALESCE(rating, '0'), created_at
		FROM event_outcomes WHERE family_id = ? AND created_at >= ?`,
		"child_id", family, children, since.UTC().Format(time.RFC3339))
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query outcomes: %w", err)
	}
	defer rows.Close()

	var out []planning.OutcomeRecord
	for rows.Next() {
		var o planning.OutcomeRecord
		var struggles, strengths, rating, created string
		if err := rows.Scan(&o.ChildID, &o.SubjectID, &struggles, &strengths, &rating, &created); err != nil {
			return nil, err
		}
		if err := json.Unmarshal([]byte(struggles), &o.Struggles); err != nil {
			return nil, fmt.Errorf("bad struggles json: %w", err)
		}
		if err := json.Unmarshal([]byte(strengths), &o.Strengths); err != nil {
			return nil, fmt.Errorf("bad strengths json: %w", err)
		}
		if o.Rating, err = decimal.NewFromString(rating); err != nil {
			return nil, err
		}
		if o.CreatedAt, err = time.Parse(time.RFC3339, created); err != nil {
			return nil, err
		}
		out = append(out, o)
	}
	return out, rows.Err()
}

// InsertOutcome stores a parent/tutor report.
func (s *Store) InsertOutcome(ctx context.Context, family planning.FamilyID, o planning.OutcomeRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	struggles, _ := json.Marshal(o.Struggles)
	strengths, _ := json.Marshal(o.Strengths)
	if o.CreatedAt.IsZero() {
		o.CreatedAt = time.Now().UTC()
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO event_outcomes
			(id, family_id, child_id, subject_id, struggles_json, strengths_json, rating, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		uuid.NewString(), family, o.ChildID, nullString(string(o.SubjectID)),
		string(struggles), string(strengths), o.Rating.String(),
		o.CreatedAt.Format(time.RFC3339))
	if err != nil {
		return fmt.Errorf("failed to insert outcome: %w", err)
	}
	return nil
}

func (s *Store) StandardsPreferences(ctx context.Context, child planning.ChildID) ([]planning.StandardsPreference, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.QueryContext(ctx, `
		SELECT child_id, state_code, grade_level, subject_id, active
		FROM standards_preferences WHERE child_id = ?`, child)
	if err != nil {
		return nil, fmt.Errorf("failed to query standards preferences: %w", err)
	}
	defer rows.Close()

	var out []planning.StandardsPreference
	for rows.Next() {
		var p planning.StandardsPreference
		var active int
		if err := rows.Scan(&p.ChildID, &p.StateCode, &p.GradeLevel, &p.SubjectID, &active); err != nil {
			return nil, err
		}
		p.Active = active != 0
		out = append(out, p)
	}
	return out, rows.Err()
}

func (s *Store) StandardsGaps(ctx context.Context, child planning.ChildID, pref planning.StandardsPreference, limit int) ([]planning.StandardsGap, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	query := `
		SELECT code, COALESCE(subject, ''), COALESCE(description, '')
		FROM standards_gaps WHERE child_id = ?`
	args := []any{child}
	if pref.SubjectID != "" {
		query += ` AND subject = ?`
		args = append(args, string(pref.SubjectID))
	}
	query += ` ORDER BY code LIMIT ?`
	args = append(args, limit)

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query standards gaps: %w", err)
	}
	defer rows.Close()

	var out []planning.StandardsGap
	for rows.Next() {
		var g planning.StandardsGap
		if err := rows.Scan(&g.Code, &g.Subject, &g.Description); err != nil {
			return nil, err
		}
		out = append(out, g)
	}
	return out, rows.Err()
}

// =============================================================================
// EVENT STORE
// =============================================================================

const eventColumns = `id, family_id, child_id, COALESCE(subject_id, ''), title,
	start_ts, end_ts, status, source,
	COALESCE(reschedule_origin, ''), COALESCE(reschedule_reason, ''), created_at`

func (s *Store) EventsInWindow(ctx context.Context, family planning.FamilyID, children []planning.ChildID, window planning.DateRange) ([]planning.ScheduledEvent, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	// The window's end date is inclusive, so bound by the start of the
	// following day.
	query, args := inQuery(`
		SELECT `+eventColumns+`
		FROM events WHERE family_id = ? AND start_ts >= ? AND start_ts < ?`,
		"child_id", family, children,
		window.Start.Time().Format(time.RFC3339),
		window.End.AddDays(1).Time().Format(time.RFC3339))
	query += ` ORDER BY start_ts`

	return s.queryEvents(ctx, query, args...)
}

func (s *Store) EventsByID(ctx context.Context, family planning.FamilyID, ids []planning.EventID) ([]planning.ScheduledEvent, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if len(ids) == 0 {
		return nil, nil
	}
	query := `SELECT ` + eventColumns + ` FROM events WHERE family_id = ? AND id IN (` + placeholders(len(ids)) + `)`
	args := []any{family}
	for _, id := range ids {
		args = append(args, id)
	}
	return s.queryEvents(ctx, query, args...)
}

func (s *Store) queryEvents(ctx context.Context, query string, args ...any) ([]planning.ScheduledEvent, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query events: %w", err)
	}
	defer rows.Close()

	var out []planning.ScheduledEvent
	for rows.Next() {
		var ev planning.ScheduledEvent
		var start, end, created string
		if err := rows.Scan(&ev.ID, &ev.FamilyID, &ev.ChildID, &ev.SubjectID, &ev.Title,
			&start, &end, &ev.Status, &ev.Source,
			&ev.RescheduleOrigin, &ev.RescheduleReason, &created); err != nil {
			return nil, err
		}
		if ev.Start, err = time.Parse(time.RFC3339, start); err != nil {
			return nil, err
		}
		if ev.End, err = time.Parse(time.RFC3339, end); err != nil {
			return nil, err
		}
		if ev.CreatedAt, err = time.Parse(time.RFC3339, created); err != nil {
			return nil, err
		}
		out = append(out, ev)
	}
	return out, rows.Err()
}

func (s *Store) InsertEvent(ctx context.Context, ev planning.ScheduledEvent) (planning.ScheduledEvent, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if ev.ID == "" {
		ev.ID = planning.EventID(uuid.NewString())
	}
	if ev.CreatedAt.IsZero() {
		ev.CreatedAt = time.Now().UTC()
	}
	if ev.Status == "" {
		ev.Status = planning.EventScheduled
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO events
			(id, family_id, child_id, subject_id, title, start_ts, end_ts,
			 status, source, reschedule_origin, reschedule_reason, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		ev.ID, ev.FamilyID, ev.ChildID, nullString(string(ev.SubjectID)), ev.Title,
		ev.Start.UTC().Format(time.RFC3339), ev.End.UTC().Format(time.RFC3339),
		ev.Status, ev.Source,
		nullString(ev.RescheduleOrigin), nullString(ev.RescheduleReason),
		ev.CreatedAt.Format(time.RFC3339))
	if err != nil {
		return planning.ScheduledEvent{}, fmt.Errorf("failed to insert event: %w", err)
	}
	return ev, nil
}

func (s *Store) UpdateEventTimes(ctx context.Context, id planning.EventID, start, end time.Time, status planning.EventStatus, origin, reason string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	res, err := s.db.ExecContext(ctx, `
		UPDATE events SET start_ts = ?, end_ts = ?, status = ?,
			reschedule_origin = ?, reschedule_reason = ?
		WHERE id = ?`,
		start.UTC().Format(time.RFC3339), end.UTC().Format(time.RFC3339),
		status, nullString(origin), nullString(reason), id)
	if err != nil {
		return fmt.Errorf("failed to update event: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("%w: %s", planning.ErrEventNotFound, id)
	}
	return nil
}

func (s *Store) DeleteEvent(ctx context.Context, id planning.EventID) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	res, err := s.db.ExecContext(ctx, `DELETE FROM events WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("failed to delete event: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("%w: %s", planning.ErrEventNotFound, id)
	}
	return nil
}

// =============================================================================
// PLAN STORE
// =============================================================================

func (s *Store) InsertPlan(ctx context.Context, plan planning.Plan) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO ai_plans (id, family_id, week_start, strategy, rationale, status, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)`,
		plan.ID, plan.FamilyID, plan.WeekStart.String(), plan.Strategy,
		nullString(plan.Rationale), plan.Status, plan.CreatedAt.UTC().Format(time.RFC3339))
	if err != nil {
		return fmt.Errorf("failed to insert plan: %w", err)
	}
	return nil
}

func (s *Store) Plan(ctx context.Context, id planning.PlanID) (planning.Plan, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var plan planning.Plan
	var weekStart, created string
	var applied sql.NullString
	err := s.db.QueryRowContext(ctx, `
		SELECT id, family_id, week_start, strategy, COALESCE(rationale, ''), status, created_at, applied_at
		FROM ai_plans WHERE id = ?`, id).
		Scan(&plan.ID, &plan.FamilyID, &weekStart, &plan.Strategy, &plan.Rationale,
			&plan.Status, &created, &applied)
	if err == sql.ErrNoRows {
		return planning.Plan{}, fmt.Errorf("%w: %s", planning.ErrPlanNotFound, id)
	}
	if err != nil {
		return planning.Plan{}, fmt.Errorf("failed to load plan: %w", err)
	}
	if plan.WeekStart, err = planning.ParseDate(weekStart); err != nil {
		return planning.Plan{}, err
	}
	if plan.CreatedAt, err = time.Parse(time.RFC3339, created); err != nil {
		return planning.Plan{}, err
	}
	if applied.Valid && applied.String != "" {
		if plan.AppliedAt, err = time.Parse(time.RFC3339, applied.String); err != nil {
			return planning.Plan{}, err
		}
	}
	return plan, nil
}

func (s *Store) InsertChanges(ctx context.Context, changes []planning.PlanChange) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	for _, ch := range changes {
		payload, err := json.Marshal(ch.Payload)
		if err != nil {
			return fmt.Errorf("failed to serialize change payload: %w", err)
		}
		_, err = tx.ExecContext(ctx, `
			INSERT INTO ai_plan_changes
				(id, plan_id, family_id, change_type, payload_json, approved, applied, created_at)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
			ch.ID, ch.PlanID, ch.FamilyID, ch.Type, string(payload),
			boolInt(ch.Approved), boolInt(ch.Applied), ch.CreatedAt.UTC().Format(time.RFC3339))
		if err != nil {
			return fmt.Errorf("failed to insert change: %w", err)
		}
	}
	return tx.Commit()
}

func (s *Store) Changes(ctx context.Context, plan planning.PlanID) ([]planning.PlanChange, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.QueryContext(ctx, `
		SELECT id, plan_id, family_id, change_type, payload_json, approved, applied, created_at
		FROM ai_plan_changes WHERE plan_id = ? ORDER BY created_at, id`, plan)
	if err != nil {
		return nil, fmt.Errorf("failed to query changes: %w", err)
	}
	defer rows.Close()

	var out []planning.PlanChange
	for rows.Next() {
		var ch planning.PlanChange
		var payload, created string
		var approved, applied int
		if err := rows.Scan(&ch.ID, &ch.PlanID, &ch.FamilyID, &ch.Type, &payload, &approved, &applied, &created); err != nil {
			return nil, err
		}
		if err := json.Unmarshal([]byte(payload), &ch.Payload); err != nil {
			return nil, fmt.Errorf("bad change payload: %w", err)
		}
		ch.Approved = approved != 0
		ch.Applied = applied != 0
		if ch.CreatedAt, err = time.Parse(time.RFC3339, created); err != nil {
			return nil, err
		}
		out = append(out, ch)
	}
	return out, rows.Err()
}

func (s *Store) MarkChangeApplied(ctx context.Context, change planning.ChangeID) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	res, err := s.db.ExecContext(ctx,
		`UPDATE ai_plan_changes SET approved = 1, applied = 1 WHERE id = ?`, change)
	if err != nil {
		return fmt.Errorf("failed to mark change applied: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("change %s not found", change)
	}
	return nil
}

func (s *Store) UpdatePlanStatus(ctx context.Context, plan planning.PlanID, status planning.PlanStatus, appliedAt time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	res, err := s.db.ExecContext(ctx,
		`UPDATE ai_plans SET status = ?, applied_at = ? WHERE id = ?`,
		status, appliedAt.UTC().Format(time.RFC3339), plan)
	if err != nil {
		return fmt.Errorf("failed to update plan status: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("%w: %s", planning.ErrPlanNotFound, plan)
	}
	return nil
}

// =============================================================================
// TASK RUNS
// =============================================================================

func (s *Store) InsertTaskRun(ctx context.Context, run planning.TaskRun) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	params, _ := json.Marshal(run.Params)
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO ai_task_runs (id, family_id, kind, params_json, status, created_at)
		VALUES (?, ?, ?, ?, ?, ?)`,
		run.ID, run.FamilyID, run.Kind, string(params), run.Status,
		run.CreatedAt.UTC().Format(time.RFC3339))
	if err != nil {
		return fmt.Errorf("failed to insert task run: %w", err)
	}
	return nil
}

func (s *Store) UpdateTaskRun(ctx context.Context, run planning.TaskRun) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	result, _ := json.Marshal(run.Result)
	res, err := s.db.ExecContext(ctx, `
		UPDATE ai_task_runs
		SET status = ?, result_json = ?, error = ?, started_at = ?, completed_at = ?
		WHERE id = ?`,
		run.Status, string(result), nullString(run.Error),
		nullTime(run.StartedAt), nullTime(run.CompletedAt), run.ID)
	if err != nil {
		return fmt.Errorf("failed to update task run: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("task run %s not found", run.ID)
	}
	return nil
}

// =============================================================================
// CACHE REFRESH
// =============================================================================

// RefreshWindow rematerializes calendar-day cache rows over a window
// from the events table: a day's first/last block bounds come from its
// scheduled events. The frozen flag and status of existing rows are
// preserved; rows are only created for days that have events.
func (s *Store) RefreshWindow(ctx context.Context, family planning.FamilyID, window planning.DateRange) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	rows, err := s.db.QueryContext(ctx, `
		SELECT child_id, DATE(start_ts), MIN(TIME(start_ts)), MAX(TIME(end_ts))
		FROM events
		WHERE family_id = ? AND status = 'scheduled' AND start_ts >= ? AND start_ts < ?
		GROUP BY child_id, DATE(start_ts)`,
		family,
		window.Start.Time().Format(time.RFC3339),
		window.End.AddDays(1).Time().Format(time.RFC3339))
	if err != nil {
		return fmt.Errorf("failed to aggregate events: %w", err)
	}

	type block struct {
		child       planning.ChildID
		date        string
		first, last string
	}
	var blocks []block
	for rows.Next() {
		var b block
		if err := rows.Scan(&b.child, &b.date, &b.first, &b.last); err != nil {
			rows.Close()
			return err
		}
		// TIME() yields HH:MM:SS; the cache stores HH:MM.
		if len(b.first) >= 5 {
			b.first = b.first[:5]
		}
		if len(b.last) >= 5 {
			b.last = b.last[:5]
		}
		blocks = append(blocks, b)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return err
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	for _, b := range blocks {
		_, err := tx.ExecContext(ctx, `
			INSERT INTO calendar_days_cache
				(family_id, child_id, date, status, first_block_start, last_block_end, is_frozen)
			VALUES (?, ?, ?, 'teach', ?, ?, 0)
			ON CONFLICT(family_id, child_id, date) DO UPDATE SET
				first_block_start = excluded.first_block_start,
				last_block_end = excluded.last_block_end`,
			family, b.child, b.date, b.first, b.last)
		if err != nil {
			return fmt.Errorf("failed to refresh cache row: %w", err)
		}
	}
	return tx.Commit()
}

// =============================================================================
// HELPERS
// =============================================================================

func nullString(s string) any {
	if s == "" {
		return nil
	}
	return s
}

func nullTime(t time.Time) any {
	if t.IsZero() {
		return nil
	}
	return t.UTC().Format(time.RFC3339)
}

func boolInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

func placeholders(n int) string {
	out := make([]byte, 0, 2*n)
	for i := 0; i < n; i++ {
		if i > 0 {
			out = append(out, ',')
		}
		out = append(out, '?')
	}
	return string(out)
}

// inQuery appends an optional IN clause for a child filter to a query
// whose leading placeholders are bound by family plus extra.
func inQuery(base, column string, family planning.FamilyID, children []planning.ChildID, extra ...any) (string, []any) {
	args := []any{family}
	args = append(args, extra...)
	if len(children) == 0 {
		return base, args
	}
	query := base + ` AND ` + column + ` IN (` + placeholders(len(children)) + `)`
	for _, c := range children {
		args = append(args, c)
	}
	return query, args
}
