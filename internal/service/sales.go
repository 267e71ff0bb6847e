package service

import (
	"context"
	"fmt"
	"strings"

	"grosirpos/backend/internal/domain"
)

func (s *Service) GetSale(ctx context.Context, id string) (domain.Sale, error) {
	sale, err := s.repo.FindSaleByID(ctx, strings.TrimSpace(id))
	if err != nil {
		return domain.Sale{}, err
	}
	return *sale, nil
}

// ListSales returns sales newest first. Dates are inclusive calendar days in
// the report location; empty bounds are open.
func (s *Service) ListSales(ctx context.Context, fromDate string, toDate string, limit int) ([]domain.Sale, error) {
	if _, err := requireAdmin(ctx); err != nil {
		return nil, err
	}
	from, to, err := s.parseRange(fromDate, toDate)
	if err != nil {
		return nil, err
	}
	if limit < 1 {
		limit = 100
	}
	return s.repo.ListSales(ctx, from, to, limit)
}

// RefundSale reverses a completed sale and puts its quantities back on the
// shelf. The caller has already checked the manager PIN.
func (s *Service) RefundSale(ctx context.Context, id string, reason string) (domain.Sale, error) {
	if _, err := requireAdmin(ctx); err != nil {
		return domain.Sale{}, err
	}
	refunded, err := s.repo.RefundSale(ctx, strings.TrimSpace(id), reason, s.now())
	if err != nil {
		return domain.Sale{}, err
	}
	s.invalidateReports(ctx)

	s.logAudit(ctx, "sale_refund", "sale", refunded.ID, fmt.Sprintf("amount_due=%d,reason=%s", refunded.AmountDueCents(), refunded.RefundReason))
	return *refunded, nil
}
