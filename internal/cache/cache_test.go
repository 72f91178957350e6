package cache

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fireflyresponse/perimeter/internal/lib/geo"
	"github.com/fireflyresponse/perimeter/internal/lib/perimeter"
	"github.com/fireflyresponse/perimeter/internal/lib/waypoints"
)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (f *fakeClock) Now() time.Time {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.now
}

func (f *fakeClock) Advance(d time.Duration) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.now = f.now.Add(d)
}

func newTestCache() (*Cache, *fakeClock) {
	clock := &fakeClock{now: time.Date(2024, 8, 14, 21, 0, 0, 0, time.UTC)}
	c := NewCacheWithClock(clock.Now)
	return c, clock
}

func TestCache_SetGet(t *testing.T) {
	c, clock := newTestCache()

	require.NoError(t, c.Set("k", map[string]int{"points": 4}, time.Minute, "test"))

	var got map[string]int
	found, err := c.Get("k", &got)
	require.NoError(t, err)
	assert.True(t, found)
	assert.Equal(t, 4, got["points"])

	clock.Advance(61 * time.Second)
	found, err = c.Get("k", &got)
	require.NoError(t, err)
	assert.False(t, found)
	assert.True(t, c.IsStale("k"))
	assert.False(t, c.IsVeryStale("k"))

	clock.Advance(time.Minute)
	assert.True(t, c.IsVeryStale("k"))

	found, err = c.Get("missing", &got)
	require.NoError(t, err)
	assert.False(t, found)
	assert.True(t, c.IsStale("missing"))
	assert.True(t, c.IsVeryStale("missing"))
}

func TestCache_SetRejectsUnmarshalable(t *testing.T) {
	c, _ := newTestCache()
	assert.Error(t, c.Set("k", make(chan int), time.Minute, "test"))
}

func TestCache_GetWithMetadataServesStale(t *testing.T) {
	c, clock := newTestCache()
	require.NoError(t, c.Set("k", "value", time.Minute, "test"))
	clock.Advance(time.Hour)

	var got string
	entry, found, err := c.GetWithMetadata("k", &got)
	require.NoError(t, err)
	assert.True(t, found)
	assert.Equal(t, "value", got)
	assert.Equal(t, "test", entry.Source)
	assert.Equal(t, time.Minute, entry.RefreshInterval)

	entry, found, err = c.GetWithMetadata("missing", &got)
	require.NoError(t, err)
	assert.False(t, found)
	assert.Nil(t, entry)
}

func TestCache_StatsAndCleanup(t *testing.T) {
	c, clock := newTestCache()
	require.NoError(t, c.Set("old", 1, time.Minute, "test"))
	clock.Advance(2 * time.Minute)
	require.NoError(t, c.Set("new", 2, time.Minute, "test"))
	require.NoError(t, c.Set("pinned", 3, time.Second, "test"))
	clock.Advance(2 * time.Second)

	stats := c.Stats()
	assert.Equal(t, 3, stats.TotalEntries)
	assert.Equal(t, 1, stats.FreshEntries)
	assert.Equal(t, 2, stats.StaleEntries)
	assert.True(t, stats.OldestEntry.Before(stats.NewestEntry))

	assert.Equal(t, 1, c.CleanupStale("pinned"))
	assert.ElementsMatch(t, []string{"new", "pinned"}, c.Keys())

	c.Delete("new")
	assert.Equal(t, []string{"pinned"}, c.Keys())

	c.Clear()
	assert.Empty(t, c.Keys())
}

func TestCache_LatestEstimate(t *testing.T) {
	c, clock := newTestCache()

	_, _, found, err := c.LatestEstimate()
	require.NoError(t, err)
	assert.False(t, found)

	e := perimeter.NewEstimator(waypoints.NewGenerator(geo.WGS84, nil))
	e.Now = clock.Now
	estimate, err := e.Estimate([]geo.Point{
		{Latitude: 38.10, Longitude: -120.46},
		{Latitude: 38.12, Longitude: -120.44},
	})
	require.NoError(t, err)

	require.NoError(t, c.SetLatestEstimate(estimate, time.Minute))
	clock.Advance(5 * time.Minute)

	got, entry, found, err := c.LatestEstimate()
	require.NoError(t, err)
	assert.True(t, found)
	assert.Equal(t, estimate, got)
	assert.True(t, clock.Now().After(entry.ExpiresAt))
	assert.True(t, c.IsVeryStale(LatestEstimateKey))
}

func TestCache_StartPeriodicCleanup(t *testing.T) {
	c := NewCache()
	require.NoError(t, c.Set("expired", 1, -time.Second, "test"))
	require.NoError(t, c.Set(LatestEstimateKey, 2, -time.Second, "test"))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	c.StartPeriodicCleanup(ctx, 5*time.Millisecond, LatestEstimateKey)

	assert.Eventually(t, func() bool {
		return len(c.Keys()) == 1
	}, time.Second, 5*time.Millisecond)
	assert.Equal(t, []string{LatestEstimateKey}, c.Keys())
}
