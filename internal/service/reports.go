package service

import (
	"context"
	"fmt"
	"log"
	"strings"
	"time"

	"grosirpos/backend/internal/analytics"
	"grosirpos/backend/internal/domain"
)

const dateLayout = "2006-01-02"

// Dashboard computes every analytics metric over one snapshot. Results are
// cached per date range until the next stock or sale mutation.
func (s *Service) Dashboard(ctx context.Context, fromDate string, toDate string) (analytics.Dashboard, error) {
	if _, err := requireAdmin(ctx); err != nil {
		return analytics.Dashboard{}, err
	}
	from, to, err := s.parseRange(fromDate, toDate)
	if err != nil {
		return analytics.Dashboard{}, err
	}

	// The generation is read before the snapshot; a mutation that purges in
	// between moves readers to a new key and strands this entry.
	useCache := s.opts.ReportCacheTTL > 0
	gen, err := s.reports.Generation(ctx)
	if err != nil {
		log.Printf("[service] WARN: report cache generation read failed: %v", err)
		useCache = false
	}
	key := fmt.Sprintf("dashboard:%d:%s:%s", gen, strings.TrimSpace(fromDate), strings.TrimSpace(toDate))
	if useCache {
		if cached, found, err := s.reports.Get(ctx, key); err != nil {
			log.Printf("[service] WARN: report cache read failed key=%s: %v", key, err)
		} else if found {
			return *cached, nil
		}
	}

	snap, err := s.repo.Snapshot(ctx, from, to)
	if err != nil {
		return analytics.Dashboard{}, err
	}
	dashboard := analytics.Build(analytics.Input{
		From:      from,
		To:        to,
		Sales:     snap.Sales,
		Products:  snap.Products,
		Customers: snap.Customers,
		TakenAt:   snap.TakenAt,
	}, s.opts.TopProducts, s.opts.TopCustomers)

	if useCache {
		if err := s.reports.Set(ctx, key, &dashboard, s.opts.ReportCacheTTL); err != nil {
			log.Printf("[service] WARN: report cache write failed key=%s: %v", key, err)
		}
	}
	return dashboard, nil
}

// DailySeries returns completed-sale totals per calendar day in the report
// location, oldest first.
func (s *Service) DailySeries(ctx context.Context, fromDate string, toDate string) ([]analytics.DailyStat, error) {
	if _, err := requireAdmin(ctx); err != nil {
		return nil, err
	}
	from, to, err := s.parseRange(fromDate, toDate)
	if err != nil {
		return nil, err
	}
	snap, err := s.repo.Snapshot(ctx, from, to)
	if err != nil {
		return nil, err
	}
	return analytics.DailySeries(analytics.Completed(snap.Sales), s.opts.ReportLocation), nil
}

func (s *Service) LowStock(ctx context.Context) ([]domain.Product, error) {
	if _, err := requireAdmin(ctx); err != nil {
		return nil, err
	}
	products, err := s.repo.ListProducts(ctx)
	if err != nil {
		return nil, err
	}
	return analytics.LowStock(products), nil
}

func (s *Service) parseDay(field string, raw string) (time.Time, error) {
	day, err := time.ParseInLocation(dateLayout, strings.TrimSpace(raw), s.opts.ReportLocation)
	if err != nil {
		return time.Time{}, domain.Invalid(field, "invalid_date")
	}
	return day, nil
}

// parseRange turns inclusive calendar dates into a half-open [from, to)
// window. Either bound may be empty.
func (s *Service) parseRange(fromDate string, toDate string) (time.Time, time.Time, error) {
	var from, to time.Time
	if strings.TrimSpace(fromDate) != "" {
		day, err := s.parseDay("from", fromDate)
		if err != nil {
			return time.Time{}, time.Time{}, err
		}
		from = day
	}
	if strings.TrimSpace(toDate) != "" {
		day, err := s.parseDay("to", toDate)
		if err != nil {
			return time.Time{}, time.Time{}, err
		}
		to = day.AddDate(0, 0, 1)
	}
	if !from.IsZero() && !to.IsZero() && !from.Before(to) {
		return time.Time{}, time.Time{}, domain.Invalid("to", "before_from")
	}
	return from, to, nil
}
