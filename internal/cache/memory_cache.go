package cache

import (
	"context"
	"slices"
	"sync"
	"time"

	"grosirpos/backend/internal/analytics"
	"grosirpos/backend/internal/domain"
)

// MemoryCartStore keeps carts in process. Carts idle longer than ttl are
// dropped on the next load; ttl <= 0 keeps them forever.
type MemoryCartStore struct {
	mu    sync.Mutex
	ttl   time.Duration
	now   func() time.Time
	carts map[string]domain.CartState
}

func NewMemoryCartStore(ttl time.Duration) *MemoryCartStore {
	return &MemoryCartStore{
		ttl:   ttl,
		now:   time.Now,
		carts: make(map[string]domain.CartState),
	}
}

func (c *MemoryCartStore) Load(_ context.Context, terminalID string) (*domain.CartState, bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	state, ok := c.carts[terminalID]
	if !ok {
		return nil, false, nil
	}
	if c.ttl > 0 && c.now().Sub(state.UpdatedAt) > c.ttl {
		delete(c.carts, terminalID)
		return nil, false, nil
	}
	state.Lines = slices.Clone(state.Lines)
	return &state, true, nil
}

func (c *MemoryCartStore) Save(_ context.Context, state domain.CartState) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	state.Lines = slices.Clone(state.Lines)
	c.carts[state.TerminalID] = state
	return nil
}

func (c *MemoryCartStore) Delete(_ context.Context, terminalID string) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	delete(c.carts, terminalID)
	return nil
}

type reportEntry struct {
	value     analytics.Dashboard
	expiresAt time.Time
}

type MemoryReportCache struct {
	mu         sync.Mutex
	now        func() time.Time
	generation int64
	entries    map[string]reportEntry
}

func NewMemoryReportCache() *MemoryReportCache {
	return &MemoryReportCache{now: time.Now, entries: make(map[string]reportEntry)}
}

func (c *MemoryReportCache) Generation(_ context.Context) (int64, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	return c.generation, nil
}

func (c *MemoryReportCache) Get(_ context.Context, key string) (*analytics.Dashboard, bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	entry, ok := c.entries[key]
	if !ok {
		return nil, false, nil
	}
	if !c.now().Before(entry.expiresAt) {
		delete(c.entries, key)
		return nil, false, nil
	}
	value := entry.value
	return &value, true, nil
}

func (c *MemoryReportCache) Set(_ context.Context, key string, value *analytics.Dashboard, ttl time.Duration) error {
	if value == nil || ttl <= 0 {
		return nil
	}
	c.mu.Lock()
	defer c.mu.Unlock()

	c.entries[key] = reportEntry{value: *value, expiresAt: c.now().Add(ttl)}
	return nil
}

func (c *MemoryReportCache) Purge(_ context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.generation++
	clear(c.entries)
	return nil
}
