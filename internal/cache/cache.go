package cache

import (
	"context"
	"time"

	"grosirpos/backend/internal/analytics"
	"grosirpos/backend/internal/domain"
)

// CartStore keeps the open cart of each terminal between requests.
type CartStore interface {
	Load(ctx context.Context, terminalID string) (*domain.CartState, bool, error)
	Save(ctx context.Context, state domain.CartState) error
	Delete(ctx context.Context, terminalID string) error
}

// ReportCache holds assembled dashboards for a short time. Purge drops every
// entry and advances the generation; it is called after any stock or sale
// mutation. Callers key entries by the generation read before computing them,
// so a value computed before a purge is never served after it.
type ReportCache interface {
	Generation(ctx context.Context) (int64, error)
	Get(ctx context.Context, key string) (*analytics.Dashboard, bool, error)
	Set(ctx context.Context, key string, value *analytics.Dashboard, ttl time.Duration) error
	Purge(ctx context.Context) error
}

type NoopReportCache struct{}

func (NoopReportCache) Generation(_ context.Context) (int64, error) {
	return 0, nil
}

func (NoopReportCache) Get(_ context.Context, _ string) (*analytics.Dashboard, bool, error) {
	return nil, false, nil
}

func (NoopReportCache) Set(_ context.Context, _ string, _ *analytics.Dashboard, _ time.Duration) error {
	return nil
}

func (NoopReportCache) Purge(_ context.Context) error {
	return nil
}
