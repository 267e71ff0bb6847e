package service

import (
	"context"
	"errors"
	"log"
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"grosirpos/backend/internal/cache"
	"grosirpos/backend/internal/domain"
	"grosirpos/backend/internal/store"
)

var ErrForbidden = errors.New("admin role required")

type actorContextKey struct{}

func WithActor(ctx context.Context, actor domain.Actor) context.Context {
	return context.WithValue(ctx, actorContextKey{}, actor)
}

func ActorFromContext(ctx context.Context) (domain.Actor, bool) {
	actor, ok := ctx.Value(actorContextKey{}).(domain.Actor)
	return actor, ok
}

type Options struct {
	DefaultTaxRate      decimal.Decimal
	EnforceWholesaleMin bool
	ReportLocation      *time.Location
	ReportCacheTTL      time.Duration
	TopProducts         int
	TopCustomers        int
}

type Service struct {
	repo    store.Repository
	carts   cache.CartStore
	reports cache.ReportCache
	opts    Options
	now     func() time.Time

	lockMu    sync.Mutex
	terminals map[string]*sync.Mutex
}

func New(repo store.Repository, carts cache.CartStore, reports cache.ReportCache, opts Options) *Service {
	if carts == nil {
		carts = cache.NewMemoryCartStore(0)
	}
	if reports == nil {
		reports = cache.NoopReportCache{}
	}
	if opts.ReportLocation == nil {
		opts.ReportLocation = time.Local
	}
	if opts.TopProducts < 1 {
		opts.TopProducts = 10
	}
	if opts.TopCustomers < 1 {
		opts.TopCustomers = 5
	}

	return &Service{
		repo:      repo,
		carts:     carts,
		reports:   reports,
		opts:      opts,
		now:       func() time.Time { return time.Now().UTC() },
		terminals: make(map[string]*sync.Mutex),
	}
}

func requireAdmin(ctx context.Context) (domain.Actor, error) {
	actor, ok := ActorFromContext(ctx)
	if !ok || actor.Role != domain.RoleAdmin {
		return domain.Actor{}, ErrForbidden
	}
	return actor, nil
}

func actorName(ctx context.Context) string {
	if actor, ok := ActorFromContext(ctx); ok {
		return actor.Username
	}
	return ""
}

// lockTerminal serialises cart read-modify-write cycles per terminal.
func (s *Service) lockTerminal(terminalID string) func() {
	s.lockMu.Lock()
	mu, ok := s.terminals[terminalID]
	if !ok {
		mu = &sync.Mutex{}
		s.terminals[terminalID] = mu
	}
	s.lockMu.Unlock()

	mu.Lock()
	return mu.Unlock
}

// invalidateReports runs after every stock, sale or customer mutation. A failed purge
// only leaves dashboards stale until their TTL runs out.
func (s *Service) invalidateReports(ctx context.Context) {
	if err := s.reports.Purge(ctx); err != nil {
		log.Printf("[service] WARN: failed to purge report cache: %v", err)
	}
}

func (s *Service) logAudit(ctx context.Context, action string, entityType string, entityID string, detail string) {
	actor, ok := ActorFromContext(ctx)
	if !ok {
		actor = domain.Actor{Username: "system", Role: "system"}
	}

	if err := s.repo.CreateAuditLog(ctx, domain.AuditLog{
		ActorUsername: actor.Username,
		ActorRole:     actor.Role,
		Action:        action,
		EntityType:    entityType,
		EntityID:      entityID,
		Detail:        detail,
		CreatedAt:     s.now(),
	}); err != nil {
		log.Printf("[audit] WARN: failed to write audit log action=%s entity=%s/%s: %v", action, entityType, entityID, err)
	}
}

func (s *Service) ListAuditLogs(ctx context.Context, date string, limit int) ([]domain.AuditLog, error) {
	if _, err := requireAdmin(ctx); err != nil {
		return nil, err
	}
	if limit < 1 {
		limit = 100
	}
	var from, to time.Time
	if date == "" {
		to = s.now()
		from = to.Add(-24 * time.Hour)
	} else {
		day, err := s.parseDay("date", date)
		if err != nil {
			return nil, err
		}
		from, to = day, day.AddDate(0, 0, 1)
	}
	return s.repo.ListAuditLogs(ctx, from, to, limit)
}
