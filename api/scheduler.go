/*
scheduler.go - Background calendar cache refresher

PURPOSE:
  Periodically rematerializes the calendar day-bounds cache for every
  family so that drift between the events table and the cached bounds
  (e.g. after a crash mid-apply, or external writes) heals on its own.

DESIGN:
  - Runs a background goroutine with a configurable refresh interval
  - Each pass refreshes a rolling window: one week back through two
    weeks ahead of today, per family
  - Refresh failures are logged and skipped; the cache is advisory and
    the next pass retries

CONFIGURATION:
  - Interval: How often to refresh (default: 1 hour)

USAGE:
  sched := api.NewRefreshScheduler(store, store, log)
  sched.Start()
  // ... later
  sched.Stop()

SEE ALSO:
  - store/sqlite/sqlite.go: RefreshWindow, Families
  - planning/plan.go: per-apply refresh over the plan's own window
*/
package api

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/hearthplan/planner-engine/planning"
)

// FamilySource enumerates the families whose caches get refreshed.
type FamilySource interface {
	Families(ctx context.Context) ([]planning.FamilyID, error)
}

// RefreshScheduler keeps the calendar day-bounds cache in sync with
// the events table on a fixed interval.
type RefreshScheduler struct {
	Families  FamilySource
	Refresher planning.CacheRefresher
	Interval  time.Duration
	Log       *zap.Logger

	// Now is a test hook; defaults to time.Now.
	Now func() time.Time

	ticker *time.Ticker
	stop   chan struct{}
	wg     sync.WaitGroup
	mu     sync.Mutex
}

// NewRefreshScheduler creates a scheduler with the default interval.
func NewRefreshScheduler(families FamilySource, refresher planning.CacheRefresher, log *zap.Logger) *RefreshScheduler {
	if log == nil {
		log = zap.NewNop()
	}
	return &RefreshScheduler{
		Families:  families,
		Refresher: refresher,
		Interval:  1 * time.Hour,
		Log:       log,
	}
}

// Start begins the background refresh loop. The first pass runs
// immediately.
func (rs *RefreshScheduler) Start() {
	rs.mu.Lock()
	defer rs.mu.Unlock()

	if rs.ticker != nil {
		return
	}
	rs.ticker = time.NewTicker(rs.Interval)
	rs.stop = make(chan struct{})
	rs.wg.Add(1)
	go rs.run()

	rs.Log.Info("scheduler.started", zap.Duration("interval", rs.Interval))
}

// Stop halts the loop and waits for an in-flight pass to finish.
func (rs *RefreshScheduler) Stop() {
	rs.mu.Lock()
	defer rs.mu.Unlock()

	if rs.ticker != nil {
		rs.ticker.Stop()
		close(rs.stop)
		rs.wg.Wait()
		rs.ticker = nil
		rs.Log.Info("scheduler.stopped")
	}
}

func (rs *RefreshScheduler) run() {
	defer rs.wg.Done()

	rs.RunNow()
	for {
		select {
		case <-rs.ticker.C:
			rs.RunNow()
		case <-rs.stop:
			return
		}
	}
}

// RunNow performs a single refresh pass over all families.
func (rs *RefreshScheduler) RunNow() {
	ctx := context.Background()

	now := time.Now()
	if rs.Now != nil {
		now = rs.Now()
	}
	today := planning.DateOf(now)
	window := planning.DateRange{Start: today.AddDays(-7), End: today.AddDays(14)}

	families, err := rs.Families.Families(ctx)
	if err != nil {
		rs.Log.Warn("scheduler.list_families_failed", zap.Error(err))
		return
	}

	refreshed := 0
	for _, family := range families {
		if err := rs.Refresher.RefreshWindow(ctx, family, window); err != nil {
			rs.Log.Warn("scheduler.refresh_failed",
				zap.String("family_id", string(family)),
				zap.Error(err))
			continue
		}
		refreshed++
	}

	if refreshed > 0 {
		rs.Log.Debug("scheduler.pass_complete",
			zap.Int("families", refreshed),
			zap.String("window", window.String()))
	}
}
