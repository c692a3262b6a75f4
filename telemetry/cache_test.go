package telemetry

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemoryCache_SetGet(t *testing.T) {
	c := NewMemoryCache()
	ctx := context.Background()

	_, ok, err := c.Get(ctx, "missing")
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, c.Set(ctx, "k", "v", time.Minute))
	val, ok, err := c.Get(ctx, "k")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, "v", val)
}

func TestMemoryCache_TTLExpiry(t *testing.T) {
	// GIVEN: An entry with a five-minute TTL
	c := NewMemoryCache()
	ctx := context.Background()
	base := time.Date(2026, time.March, 2, 12, 0, 0, 0, time.UTC)
	c.now = func() time.Time { return base }
	require.NoError(t, c.Set(ctx, "k", "v", 5*time.Minute))

	// WHEN: Reading just before and just after expiry
	c.now = func() time.Time { return base.Add(4 * time.Minute) }
	_, ok, _ := c.Get(ctx, "k")
	assert.True(t, ok)

	c.now = func() time.Time { return base.Add(6 * time.Minute) }
	_, ok, _ = c.Get(ctx, "k")

	// THEN: The entry is gone, and stays gone
	assert.False(t, ok)
	c.now = func() time.Time { return base }
	_, ok, _ = c.Get(ctx, "k")
	assert.False(t, ok)
}

func TestMemoryCache_Overwrite(t *testing.T) {
	c := NewMemoryCache()
	ctx := context.Background()
	require.NoError(t, c.Set(ctx, "k", "old", time.Minute))
	require.NoError(t, c.Set(ctx, "k", "new", time.Minute))

	val, ok, _ := c.Get(ctx, "k")
	assert.True(t, ok)
	assert.Equal(t, "new", val)
}

func TestMemorySink_Counters(t *testing.T) {
	s := NewMemorySink()
	s.RunStarted("pack_week")
	s.RunStarted("pack_week")
	s.RunFinished("pack_week", "succeeded")
	s.RunFinished("pack_week", "failed")
	s.ItemsFiltered("pack_week", 3)
	s.ItemsFiltered("pack_week", 2)

	assert.Equal(t, 2, s.Started["pack_week"])
	assert.Equal(t, 1, s.Finished["pack_week/succeeded"])
	assert.Equal(t, 1, s.Finished["pack_week/failed"])
	assert.Equal(t, 5, s.Filtered["pack_week"])
}
