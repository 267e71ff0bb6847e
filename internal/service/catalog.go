package service

import (
	"context"
	"fmt"
	"strings"

	"grosirpos/backend/internal/domain"
)

func (s *Service) ListProducts(ctx context.Context) ([]domain.Product, error) {
	return s.repo.ListProducts(ctx)
}

func (s *Service) GetProduct(ctx context.Context, id string) (domain.Product, error) {
	product, err := s.repo.GetProduct(ctx, strings.TrimSpace(id))
	if err != nil {
		return domain.Product{}, err
	}
	return *product, nil
}

func (s *Service) GetProductByCode(ctx context.Context, code string) (domain.Product, error) {
	product, err := s.repo.GetProductByCode(ctx, strings.TrimSpace(code))
	if err != nil {
		return domain.Product{}, err
	}
	return *product, nil
}

// CreateProduct adds a catalog entry. Initial stock is booked as an
// own-production receipt so the ledger explains every unit on hand.
func (s *Service) CreateProduct(ctx context.Context, req domain.ProductCreateRequest) (domain.Product, error) {
	actor, err := requireAdmin(ctx)
	if err != nil {
		return domain.Product{}, err
	}
	if req.InitialStock < 0 {
		return domain.Product{}, domain.Invalid("initial_stock", "must_not_be_negative")
	}

	var opening *domain.InventoryReceipt
	if req.InitialStock > 0 {
		opening = &domain.InventoryReceipt{
			Quantity:      req.InitialStock,
			UnitCostCents: req.CostPriceCents,
			BatchNumber:   "OPENING",
			ReceivedBy:    actor.Username,
		}
	}
	created, err := s.repo.CreateProduct(ctx, domain.Product{
		SKU:                 strings.ToUpper(strings.TrimSpace(req.SKU)),
		Barcode:             strings.TrimSpace(req.Barcode),
		Name:                strings.TrimSpace(req.Name),
		Category:            strings.TrimSpace(req.Category),
		Description:         strings.TrimSpace(req.Description),
		Unit:                defaultString(req.Unit, "pcs"),
		CostPriceCents:      req.CostPriceCents,
		RetailPriceCents:    req.RetailPriceCents,
		WholesalePriceCents: req.WholesalePriceCents,
		MinWholesaleQty:     req.MinWholesaleQty,
		AlertLevel:          req.AlertLevel,
	}, opening)
	if err != nil {
		return domain.Product{}, err
	}
	if opening != nil {
		s.invalidateReports(ctx)
	}

	s.logAudit(ctx, "product_create", "product", created.ID, fmt.Sprintf("sku=%s,retail=%d,wholesale=%d,stock=%d", created.SKU, created.RetailPriceCents, created.WholesalePriceCents, created.StockLevel))
	return *created, nil
}

func (s *Service) UpdateProduct(ctx context.Context, id string, req domain.ProductUpdateRequest) (domain.Product, error) {
	if _, err := requireAdmin(ctx); err != nil {
		return domain.Product{}, err
	}

	existing, err := s.repo.GetProduct(ctx, strings.TrimSpace(id))
	if err != nil {
		return domain.Product{}, err
	}

	updated := *existing
	if req.SKU != nil {
		updated.SKU = strings.ToUpper(strings.TrimSpace(*req.SKU))
	}
	if req.Barcode != nil {
		updated.Barcode = strings.TrimSpace(*req.Barcode)
	}
	if req.Name != nil {
		updated.Name = strings.TrimSpace(*req.Name)
	}
	if req.Category != nil {
		updated.Category = strings.TrimSpace(*req.Category)
	}
	if req.Description != nil {
		updated.Description = strings.TrimSpace(*req.Description)
	}
	if req.Unit != nil {
		updated.Unit = defaultString(*req.Unit, existing.Unit)
	}
	if req.RetailPriceCents != nil {
		updated.RetailPriceCents = *req.RetailPriceCents
	}
	if req.WholesalePriceCents != nil {
		updated.WholesalePriceCents = *req.WholesalePriceCents
	}
	if req.MinWholesaleQty != nil {
		updated.MinWholesaleQty = *req.MinWholesaleQty
	}
	if req.AlertLevel != nil {
		updated.AlertLevel = *req.AlertLevel
	}

	saved, err := s.repo.UpdateProduct(ctx, updated)
	if err != nil {
		return domain.Product{}, err
	}
	if saved.AlertLevel != existing.AlertLevel {
		s.invalidateReports(ctx)
	}

	s.logAudit(ctx, "product_update", "product", saved.ID, fmt.Sprintf("retail=%d,wholesale=%d,min_wholesale=%d", saved.RetailPriceCents, saved.WholesalePriceCents, saved.MinWholesaleQty))
	return *saved, nil
}

func defaultString(value string, fallback string) string {
	if strings.TrimSpace(value) == "" {
		return fallback
	}
	return strings.TrimSpace(value)
}
