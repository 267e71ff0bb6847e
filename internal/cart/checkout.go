package cart

import (
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"grosirpos/backend/internal/domain"
)

type CheckoutOptions struct {
	PaymentMethod       domain.PaymentMethod
	DiscountCents       int64
	CashReceivedCents   int64
	TaxRatePercent      decimal.Decimal
	Customer            *domain.Customer
	IdempotencyKey      string
	CreatedBy           string
	EnforceWholesaleMin bool
	Now                 time.Time
}

// BuildSale turns the cart into a completed Sale whose items are a snapshot of
// the current lines. It does not persist anything or clear the cart.
func (c *Cart) BuildSale(opts CheckoutOptions) (domain.Sale, error) {
	if c.IsEmpty() {
		return domain.Sale{}, domain.Invalid("cart", "empty")
	}
	v := domain.Violations{}
	v.Check("payment_method", opts.PaymentMethod.Valid(), "unsupported")
	v.NonNegative("discount_cents", opts.DiscountCents)
	v.Check("tax_rate_percent", domain.ValidTaxRate(opts.TaxRatePercent), "out_of_range")
	v.Required("idempotency_key", opts.IdempotencyKey)
	if opts.PaymentMethod == domain.PaymentCredit && opts.Customer == nil {
		v.Add("customer_id", "required_for_credit")
	}
	if opts.EnforceWholesaleMin && len(c.Warnings()) > 0 {
		v.Add("items", WarningBelowWholesaleMin)
	}
	if err := v.Err(); err != nil {
		return domain.Sale{}, err
	}

	subtotal := c.Total()
	if opts.DiscountCents > subtotal {
		return domain.Sale{}, domain.Invalid("discount_cents", "exceeds_subtotal")
	}
	total := subtotal - opts.DiscountCents
	tax := domain.ComputeTax(total, opts.TaxRatePercent)

	items := make([]domain.SaleItem, 0, len(c.lines))
	for _, line := range c.lines {
		items = append(items, domain.SaleItem{
			ProductID:      line.ProductID,
			ProductName:    line.ProductName,
			Quantity:       line.Quantity,
			UnitPriceCents: line.UnitPriceCents,
			SubtotalCents:  line.SubtotalCents,
		})
	}

	now := opts.Now
	if now.IsZero() {
		now = time.Now().UTC()
	}
	sale := domain.Sale{
		IdempotencyKey: strings.TrimSpace(opts.IdempotencyKey),
		TerminalID:     c.terminalID,
		Channel:        c.channel,
		Items:          items,
		SubtotalCents:  subtotal,
		DiscountCents:  opts.DiscountCents,
		TaxRatePercent: opts.TaxRatePercent,
		TaxCents:       tax,
		TotalCents:     total,
		PaymentMethod:  opts.PaymentMethod,
		Status:         domain.SaleStatusCompleted,
		CreatedBy:      opts.CreatedBy,
		CreatedAt:      now,
	}
	if opts.Customer != nil {
		sale.CustomerID = opts.Customer.ID
		sale.CustomerName = opts.Customer.Name
	}
	if opts.PaymentMethod == domain.PaymentCash {
		due := sale.AmountDueCents()
		if opts.CashReceivedCents < due {
			return domain.Sale{}, domain.Invalid("cash_received_cents", "less_than_amount_due")
		}
		sale.CashReceivedCents = opts.CashReceivedCents
		sale.ChangeCents = opts.CashReceivedCents - due
	}

	if err := sale.Reconcile(); err != nil {
		return domain.Sale{}, err
	}
	return sale, nil
}
