// Package stock is the only code allowed to change a product's stock level
// or cost basis. Stores load the row under their own lock or transaction,
// apply one of these functions, then write the product back.
package stock

import (
	"slices"
	"strings"
	"time"

	"grosirpos/backend/internal/domain"
)

// Receive books a goods-received quantity: stock grows by quantity and the
// cost basis becomes the latest received unit cost.
func Receive(p *domain.Product, quantity int, unitCostCents int64) error {
	v := domain.Violations{}
	v.Positive("quantity", int64(quantity))
	v.NonNegative("unit_cost_cents", unitCostCents)
	if err := v.Err(); err != nil {
		return err
	}
	p.StockLevel += quantity
	p.CostPriceCents = unitCostCents
	return nil
}

// Deduct removes sold units. Overselling is rejected; stock never goes negative.
func Deduct(p *domain.Product, quantity int) error {
	if quantity <= 0 {
		return domain.Invalid("quantity", "must_be_positive")
	}
	if quantity > p.StockLevel {
		return &domain.InsufficientStockError{ProductID: p.ID, Requested: quantity, Available: p.StockLevel}
	}
	p.StockLevel -= quantity
	return nil
}

// Return puts refunded units back on the shelf without touching cost basis.
func Return(p *domain.Product, quantity int) error {
	if quantity <= 0 {
		return domain.Invalid("quantity", "must_be_positive")
	}
	p.StockLevel += quantity
	return nil
}

// ValidateReceipt checks a receipt before any row is touched.
func ValidateReceipt(r domain.InventoryReceipt) error {
	v := domain.Violations{}
	v.Required("product_id", r.ProductID)
	v.Positive("quantity", int64(r.Quantity))
	v.NonNegative("unit_cost_cents", r.UnitCostCents)
	if r.ExpiryDate != nil && !r.ReceivedAt.IsZero() && r.ExpiryDate.Before(truncateDay(r.ReceivedAt)) {
		v.Add("expiry_date", "before_received_date")
	}
	return v.Err()
}

// Movement is the net quantity change for one product within a sale.
type Movement struct {
	ProductID string
	Quantity  int
}

// Plan folds sale lines into one movement per product, sorted by product id
// so every backend locks rows in the same order.
func Plan(items []domain.SaleItem) ([]Movement, error) {
	if len(items) == 0 {
		return nil, domain.Invalid("items", "required")
	}
	byProduct := make(map[string]int, len(items))
	for _, item := range items {
		if strings.TrimSpace(item.ProductID) == "" {
			return nil, domain.Invalid("items.product_id", "required")
		}
		if item.Quantity < 1 {
			return nil, domain.Invalid("items.quantity", "must_be_positive")
		}
		byProduct[item.ProductID] += item.Quantity
	}
	moves := make([]Movement, 0, len(byProduct))
	for id, qty := range byProduct {
		moves = append(moves, Movement{ProductID: id, Quantity: qty})
	}
	slices.SortFunc(moves, func(a, b Movement) int {
		return strings.Compare(a.ProductID, b.ProductID)
	})
	return moves, nil
}

// ProductIDs returns the ids of a plan in lock order.
func ProductIDs(moves []Movement) []string {
	ids := make([]string, 0, len(moves))
	for _, m := range moves {
		ids = append(ids, m.ProductID)
	}
	return ids
}

func truncateDay(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, t.Location())
}
