package planning_test

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/hearthplan/planner-engine/planning"
)

func TestFamilyLocks_SerializesPerFamily(t *testing.T) {
	locks := planning.NewFamilyLocks()

	release, err := locks.Acquire("fam-1")
	require.NoError(t, err)

	// Same family is busy; an unrelated family is not.
	_, err = locks.Acquire("fam-1")
	require.ErrorIs(t, err, planning.ErrPlanningBusy)
	other, err := locks.Acquire("fam-2")
	require.NoError(t, err)
	other()

	// Release reopens the family; calling release twice is harmless.
	release()
	release()
	again, err := locks.Acquire("fam-1")
	require.NoError(t, err)
	again()
}
