package service

import (
	"context"
	"fmt"
	"strings"
	"time"

	"grosirpos/backend/internal/domain"
)

// ReceiveStock books goods received from a vendor, or own production when no
// vendor is given.
func (s *Service) ReceiveStock(ctx context.Context, req domain.ReceiveStockRequest) (domain.ReceiveStockResponse, error) {
	actor, err := requireAdmin(ctx)
	if err != nil {
		return domain.ReceiveStockResponse{}, err
	}

	receipt := domain.InventoryReceipt{
		ProductID:     strings.TrimSpace(req.ProductID),
		VendorID:      strings.TrimSpace(req.VendorID),
		Quantity:      req.Quantity,
		UnitCostCents: req.UnitCostCents,
		BatchNumber:   strings.TrimSpace(req.BatchNumber),
		ReceivedBy:    actor.Username,
		ReceivedAt:    s.now(),
	}
	if raw := strings.TrimSpace(req.ExpiryDate); raw != "" {
		parsed, err := time.Parse(dateLayout, raw)
		if err != nil {
			return domain.ReceiveStockResponse{}, domain.Invalid("expiry_date", "invalid_date")
		}
		expiry := parsed.UTC()
		receipt.ExpiryDate = &expiry
	}

	saved, product, err := s.repo.ReceiveStock(ctx, receipt)
	if err != nil {
		return domain.ReceiveStockResponse{}, err
	}
	s.invalidateReports(ctx)

	s.logAudit(ctx, "stock_receive", "product", product.ID, fmt.Sprintf("qty=%d,unit_cost=%d,vendor=%s,stock=%d", saved.Quantity, saved.UnitCostCents, saved.VendorID, product.StockLevel))
	return domain.ReceiveStockResponse{Receipt: *saved, Product: *product}, nil
}

// ListReceipts returns receipts newest first, for one product or for the
// whole ledger when productID is empty.
func (s *Service) ListReceipts(ctx context.Context, productID string, limit int) ([]domain.InventoryReceipt, error) {
	if _, err := requireAdmin(ctx); err != nil {
		return nil, err
	}
	productID = strings.TrimSpace(productID)
	if productID != "" {
		if _, err := s.repo.GetProduct(ctx, productID); err != nil {
			return nil, err
		}
	}
	if limit < 1 {
		limit = 50
	}
	return s.repo.ListReceipts(ctx, productID, limit)
}
