package store

import (
	"strings"
	"time"

	"grosirpos/backend/internal/domain"
	"grosirpos/backend/internal/stock"
	"grosirpos/backend/internal/xid"
)

// Rules shared by every backend. Each backend loads rows under its own lock
// or transaction and runs them through these helpers before writing back.

// PrepareProduct validates a new catalog entry and fills its identity.
// Stock always starts at zero; opening stock is booked as a receipt.
func PrepareProduct(p *domain.Product, now time.Time) error {
	if err := ValidateProduct(*p); err != nil {
		return err
	}
	if p.ID == "" {
		p.ID = xid.New("prd")
	}
	p.StockLevel = 0
	p.CreatedAt = now
	p.UpdatedAt = now
	return nil
}

func ValidateProduct(p domain.Product) error {
	v := domain.Violations{}
	v.Required("sku", p.SKU)
	v.Required("name", p.Name)
	v.NonNegative("cost_price_cents", p.CostPriceCents)
	v.NonNegative("retail_price_cents", p.RetailPriceCents)
	v.NonNegative("wholesale_price_cents", p.WholesalePriceCents)
	v.NonNegative("min_wholesale_qty", int64(p.MinWholesaleQty))
	v.NonNegative("alert_level", int64(p.AlertLevel))
	return v.Err()
}

// MergeProductUpdate copies the editable fields of next onto current,
// keeping current's stock level, cost basis and identity.
func MergeProductUpdate(current domain.Product, next domain.Product, now time.Time) (domain.Product, error) {
	if err := ValidateProduct(next); err != nil {
		return domain.Product{}, err
	}
	current.SKU = next.SKU
	current.Barcode = next.Barcode
	current.Name = next.Name
	current.Category = next.Category
	current.Description = next.Description
	current.Unit = next.Unit
	current.RetailPriceCents = next.RetailPriceCents
	current.WholesalePriceCents = next.WholesalePriceCents
	current.MinWholesaleQty = next.MinWholesaleQty
	current.AlertLevel = next.AlertLevel
	current.UpdatedAt = now
	return current, nil
}

// PrepareSale checks that a sale is internally consistent and fills its
// identity before any stock is touched.
func PrepareSale(sale *domain.Sale, now time.Time) error {
	v := domain.Violations{}
	v.Required("idempotency_key", sale.IdempotencyKey)
	v.Check("channel", sale.Channel.Valid(), "unsupported")
	v.Check("payment_method", sale.PaymentMethod.Valid(), "unsupported")
	if sale.PaymentMethod == domain.PaymentCredit && strings.TrimSpace(sale.CustomerID) == "" {
		v.Add("customer_id", "required_for_credit")
	}
	if err := v.Err(); err != nil {
		return err
	}
	if err := sale.Reconcile(); err != nil {
		return err
	}
	if sale.ID == "" {
		sale.ID = xid.New("sale")
	}
	if sale.CreatedAt.IsZero() {
		sale.CreatedAt = now
	}
	sale.Status = domain.SaleStatusCompleted
	sale.RefundReason = ""
	sale.RefundedAt = nil
	return nil
}

// ChargeCustomer books a completed sale against its customer. Credit sales
// grow the outstanding balance and may not pass a positive credit limit.
func ChargeCustomer(c *domain.Customer, sale *domain.Sale) error {
	due := sale.AmountDueCents()
	if sale.PaymentMethod == domain.PaymentCredit {
		next := c.OutstandingBalanceCents + due
		if c.CreditLimitCents > 0 && next > c.CreditLimitCents {
			return domain.Invalid("customer_id", "credit_limit_exceeded")
		}
		c.OutstandingBalanceCents = next
	}
	c.TotalSpentCents += due
	sale.CustomerName = c.Name
	return nil
}

// PrepareRefund moves a completed sale to refunded. Stock is returned by the
// caller through the stock package.
func PrepareRefund(sale *domain.Sale, reason string, at time.Time) error {
	if strings.TrimSpace(reason) == "" {
		return domain.Invalid("reason", "required")
	}
	if sale.Status != domain.SaleStatusCompleted {
		return domain.Invalid("status", "not_refundable")
	}
	sale.Status = domain.SaleStatusRefunded
	sale.RefundReason = strings.TrimSpace(reason)
	sale.RefundedAt = &at
	return nil
}

func PrepareReceipt(r *domain.InventoryReceipt, now time.Time) {
	if r.ID == "" {
		r.ID = xid.New("rcv")
	}
	if r.ReceivedAt.IsZero() {
		r.ReceivedAt = now
	}
}

// PrepareOpeningStock books opening as the first receipt of p, a product
// already run through PrepareProduct. Opening stock is own production, dated
// at the product's creation, and goes through the stock mutator like any
// other receipt.
func PrepareOpeningStock(p *domain.Product, opening *domain.InventoryReceipt) error {
	if opening.VendorID != "" {
		return domain.Invalid("vendor_id", "not_allowed")
	}
	opening.ProductID = p.ID
	PrepareReceipt(opening, p.CreatedAt)
	if err := stock.ValidateReceipt(*opening); err != nil {
		return err
	}
	return stock.Receive(p, opening.Quantity, opening.UnitCostCents)
}

func PrepareCustomer(c *domain.Customer, now time.Time) error {
	v := domain.Violations{}
	v.Required("name", c.Name)
	v.Required("phone", c.Phone)
	if c.Type == "" {
		c.Type = domain.ChannelRetail
	}
	v.Check("type", c.Type.Valid(), "unsupported")
	v.NonNegative("credit_limit_cents", c.CreditLimitCents)
	if err := v.Err(); err != nil {
		return err
	}
	if c.ID == "" {
		c.ID = xid.New("cus")
	}
	c.TotalSpentCents = 0
	c.OutstandingBalanceCents = 0
	c.CreatedAt = now
	return nil
}

func PrepareVendor(vd *domain.Vendor, now time.Time) error {
	v := domain.Violations{}
	v.Required("name", vd.Name)
	v.Required("contact_person", vd.ContactPerson)
	v.Required("phone", vd.Phone)
	if err := v.Err(); err != nil {
		return err
	}
	if vd.ID == "" {
		vd.ID = xid.New("ven")
	}
	vd.CreatedAt = now
	return nil
}

// NormalizeUsername is the canonical key for operator accounts.
func NormalizeUsername(username string) string {
	return strings.ToLower(strings.TrimSpace(username))
}

func PrepareUser(u *domain.UserAccount, now time.Time) error {
	u.Username = NormalizeUsername(u.Username)
	v := domain.Violations{}
	v.Required("username", u.Username)
	v.Required("password", u.Password)
	if err := v.Err(); err != nil {
		return err
	}
	if u.Role == "" {
		u.Role = domain.RoleCashier
	}
	if u.CreatedAt.IsZero() {
		u.CreatedAt = now
	}
	u.Active = true
	return nil
}

func PrepareAuditLog(entry *domain.AuditLog, now time.Time) {
	if entry.ID == "" {
		entry.ID = xid.New("audit")
	}
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = now
	}
}

// InRange reports from <= t < to, treating zero bounds as open.
func InRange(t time.Time, from time.Time, to time.Time) bool {
	if !from.IsZero() && t.Before(from) {
		return false
	}
	if !to.IsZero() && !t.Before(to) {
		return false
	}
	return true
}
