/*
locks.go - Per-family advisory locking for scheduling runs

PURPOSE:
  Two overlapping runs for the same family would both price proposals
  against the same minute-ledger snapshot and double-book the calendar.
  FamilyLocks serializes them: the second caller gets ErrPlanningBusy,
  a retryable conflict, instead of a silently corrupted schedule.

SEE ALSO:
  - errors.go: ErrPlanningBusy
  - strategy package: acquires the lock around each run
*/
package planning

import (
	"fmt"
	"sync"
)

// FamilyLocks is an in-process advisory lock keyed by family. Runs in
// other processes are not excluded; that limitation is deliberate and
// matches the single-writer deployment shape.
type FamilyLocks struct {
	mu   sync.Mutex
	held map[FamilyID]struct{}
}

func NewFamilyLocks() *FamilyLocks {
	return &FamilyLocks{held: make(map[FamilyID]struct{})}
}

// Acquire takes the family's lock or fails with ErrPlanningBusy when a
// run already holds it. The returned release func is safe to call more
// than once.
func (l *FamilyLocks) Acquire(family FamilyID) (func(), error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if _, busy := l.held[family]; busy {
		return nil, fmt.Errorf("%w: %s", ErrPlanningBusy, family)
	}
	l.held[family] = struct{}{}

	var once sync.Once
	release := func() {
		once.Do(func() {
			l.mu.Lock()
			delete(l.held, family)
			l.mu.Unlock()
		})
	}
	return release, nil
}
