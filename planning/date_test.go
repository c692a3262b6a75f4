package planning_test

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hearthplan/planner-engine/planning"
)

func TestDateOf_TruncatesToUTCDay(t *testing.T) {
	// 23:30 in UTC-5 is already the next day in UTC
	est := time.FixedZone("EST", -5*3600)
	d := planning.DateOf(time.Date(2026, time.March, 2, 23, 30, 0, 0, est))
	assert.Equal(t, planning.NewDate(2026, time.March, 3), d)
}

func TestWindow_EndIsStartPlusSevenTimesHorizon(t *testing.T) {
	w := planning.Window(monday, 2)
	assert.Equal(t, monday, w.Start)
	assert.Equal(t, monday.AddDays(14), w.End)
	assert.Len(t, w.Days(), 15) // inclusive bounds
}

func TestDate_JSONObjectKey(t *testing.T) {
	// The minute ledger serializes with Date keys; both directions
	// must round-trip through YYYY-MM-DD text.
	ledger := planning.MinuteLedger{}
	ledger.Add(monday, "c1", 90)

	raw, err := json.Marshal(ledger)
	require.NoError(t, err)
	assert.Contains(t, string(raw), `"2026-03-02"`)

	var back planning.MinuteLedger
	require.NoError(t, json.Unmarshal(raw, &back))
	assert.Equal(t, 90, back.Minutes(monday, "c1"))
}

func TestParseDate_Invalid(t *testing.T) {
	_, err := planning.ParseDate("03/02/2026")
	assert.Error(t, err)
}
