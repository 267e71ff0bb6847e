package cache

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"grosirpos/backend/internal/analytics"
	"grosirpos/backend/internal/domain"
)

var (
	_ CartStore   = (*MemoryCartStore)(nil)
	_ CartStore   = (*RedisCache)(nil)
	_ ReportCache = (*MemoryReportCache)(nil)
	_ ReportCache = (*RedisCache)(nil)
	_ ReportCache = NoopReportCache{}
)

func sampleCart(terminal string, at time.Time) domain.CartState {
	return domain.CartState{
		TerminalID: terminal,
		Channel:    domain.ChannelWholesale,
		UpdatedAt:  at,
		Lines: []domain.CartLine{
			{ProductID: "prd-rice", ProductName: "Rice", RetailPriceCents: 1000, WholesalePriceCents: 700, Quantity: 2, UnitPriceCents: 700, SubtotalCents: 1400},
		},
	}
}

func TestMemoryCartStoreRoundTrip(t *testing.T) {
	ctx := context.Background()
	carts := NewMemoryCartStore(time.Hour)

	_, found, err := carts.Load(ctx, "t1")
	require.NoError(t, err)
	assert.False(t, found)

	state := sampleCart("t1", time.Now())
	require.NoError(t, carts.Save(ctx, state))

	loaded, found, err := carts.Load(ctx, "t1")
	require.NoError(t, err)
	require.True(t, found)
	assert.Equal(t, state.Lines, loaded.Lines)

	loaded.Lines[0].Quantity = 99
	again, _, _ := carts.Load(ctx, "t1")
	assert.Equal(t, 2, again.Lines[0].Quantity, "loaded state must be a copy")

	require.NoError(t, carts.Delete(ctx, "t1"))
	_, found, _ = carts.Load(ctx, "t1")
	assert.False(t, found)
}

func TestMemoryCartStoreExpiresIdleCarts(t *testing.T) {
	ctx := context.Background()
	carts := NewMemoryCartStore(time.Minute)
	now := time.Date(2026, 2, 1, 9, 0, 0, 0, time.UTC)
	carts.now = func() time.Time { return now }

	require.NoError(t, carts.Save(ctx, sampleCart("t1", now)))
	now = now.Add(2 * time.Minute)

	_, found, err := carts.Load(ctx, "t1")
	require.NoError(t, err)
	assert.False(t, found)
}

func TestMemoryReportCacheTTLAndPurge(t *testing.T) {
	ctx := context.Background()
	reports := NewMemoryReportCache()
	now := time.Date(2026, 2, 1, 9, 0, 0, 0, time.UTC)
	reports.now = func() time.Time { return now }

	d := &analytics.Dashboard{Revenue: analytics.RevenueSummary{TotalCents: 1400}}
	require.NoError(t, reports.Set(ctx, "all", d, 30*time.Second))

	got, found, err := reports.Get(ctx, "all")
	require.NoError(t, err)
	require.True(t, found)
	assert.Equal(t, int64(1400), got.Revenue.TotalCents)

	now = now.Add(31 * time.Second)
	_, found, _ = reports.Get(ctx, "all")
	assert.False(t, found, "entry should expire")

	require.NoError(t, reports.Set(ctx, "all", d, time.Minute))
	require.NoError(t, reports.Purge(ctx))
	_, found, _ = reports.Get(ctx, "all")
	assert.False(t, found, "purge should drop entries")
}

func TestMemoryReportCachePurgeAdvancesGeneration(t *testing.T) {
	ctx := context.Background()
	reports := NewMemoryReportCache()

	before, err := reports.Generation(ctx)
	require.NoError(t, err)
	require.NoError(t, reports.Purge(ctx))
	after, err := reports.Generation(ctx)
	require.NoError(t, err)
	assert.Greater(t, after, before)

	var noop NoopReportCache
	gen, err := noop.Generation(ctx)
	require.NoError(t, err)
	assert.Zero(t, gen)
}

func TestRedisCacheIntegration(t *testing.T) {
	addr := os.Getenv("GROSIRPOS_TEST_REDIS_ADDR")
	if addr == "" {
		t.Skip("GROSIRPOS_TEST_REDIS_ADDR is not set")
	}
	ctx := context.Background()
	c := NewRedisCache(addr, os.Getenv("GROSIRPOS_TEST_REDIS_PASSWORD"), 0, time.Minute)
	t.Cleanup(func() { _ = c.Close() })
	require.NoError(t, c.Ping(ctx))

	terminal := "it-" + time.Now().Format("150405.000000")
	require.NoError(t, c.Save(ctx, sampleCart(terminal, time.Now().UTC())))
	loaded, found, err := c.Load(ctx, terminal)
	require.NoError(t, err)
	require.True(t, found)
	assert.Equal(t, domain.ChannelWholesale, loaded.Channel)
	require.NoError(t, c.Delete(ctx, terminal))

	genBefore, err := c.Generation(ctx)
	require.NoError(t, err)
	require.NoError(t, c.Set(ctx, terminal, &analytics.Dashboard{}, time.Minute))
	require.NoError(t, c.Purge(ctx))
	_, found, err = c.Get(ctx, terminal)
	require.NoError(t, err)
	assert.False(t, found)
	genAfter, err := c.Generation(ctx)
	require.NoError(t, err)
	assert.Greater(t, genAfter, genBefore)
}
