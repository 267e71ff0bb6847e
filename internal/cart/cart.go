// Package cart is the per-terminal draft order: lines keyed by product in
// insertion order, priced by the active channel.
package cart

import (
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"grosirpos/backend/internal/domain"
)

const WarningBelowWholesaleMin = "below_wholesale_min"

// Bounds on a cart. Every subtotal and the cart total stay within
// MaxAmountCents, so tax and change arithmetic cannot overflow int64.
const (
	MaxLineQuantity = 1_000_000
	MaxAmountCents  = int64(1) << 50
)

func lineSubtotal(quantity int, unitPriceCents int64) (int64, error) {
	if quantity < 1 || quantity > MaxLineQuantity {
		return 0, domain.Invalid("quantity", "out_of_range")
	}
	if unitPriceCents > 0 && int64(quantity) > MaxAmountCents/unitPriceCents {
		return 0, domain.Invalid("quantity", "out_of_range")
	}
	return int64(quantity) * unitPriceCents, nil
}

// checkTotal reports whether replacing a subtotal of old with next keeps the
// cart total within MaxAmountCents.
func (c *Cart) checkTotal(old int64, next int64) error {
	if c.Total()-old > MaxAmountCents-next {
		return domain.Invalid("quantity", "out_of_range")
	}
	return nil
}

type Cart struct {
	terminalID string
	channel    domain.Channel
	lines      []domain.CartLine
	index      map[string]int
	updatedAt  time.Time
}

func New(terminalID string) *Cart {
	return &Cart{
		terminalID: terminalID,
		channel:    domain.ChannelRetail,
		index:      make(map[string]int),
	}
}

// FromState rebuilds a cart from its persisted form. Lines that no longer fit
// the cart bounds are dropped.
func FromState(state domain.CartState) *Cart {
	c := New(state.TerminalID)
	if state.Channel.Valid() {
		c.channel = state.Channel
	}
	for _, line := range state.Lines {
		if line.ProductID == "" || line.Quantity < 1 || line.Quantity > MaxLineQuantity {
			continue
		}
		if _, dup := c.index[line.ProductID]; dup {
			continue
		}
		c.index[line.ProductID] = len(c.lines)
		c.lines = append(c.lines, line)
	}
	if err := c.repriceFor(c.channel); err != nil {
		c.lines = nil
		c.index = make(map[string]int)
	}
	c.updatedAt = state.UpdatedAt
	return c
}

func (c *Cart) State() domain.CartState {
	lines := make([]domain.CartLine, len(c.lines))
	copy(lines, c.lines)
	return domain.CartState{
		TerminalID: c.terminalID,
		Channel:    c.channel,
		Lines:      lines,
		UpdatedAt:  c.updatedAt,
	}
}

func (c *Cart) TerminalID() string      { return c.terminalID }
func (c *Cart) Channel() domain.Channel { return c.channel }
func (c *Cart) IsEmpty() bool           { return len(c.lines) == 0 }

func (c *Cart) Lines() []domain.CartLine {
	return c.State().Lines
}

// AddItem adds one unit of the product. A new line is priced at the active
// channel's price at the moment of addition.
func (c *Cart) AddItem(p domain.Product) error {
	if strings.TrimSpace(p.ID) == "" {
		return domain.Invalid("product_id", "required")
	}
	if i, ok := c.index[p.ID]; ok {
		line := &c.lines[i]
		subtotal, err := lineSubtotal(line.Quantity+1, line.UnitPriceCents)
		if err != nil {
			return err
		}
		if err := c.checkTotal(line.SubtotalCents, subtotal); err != nil {
			return err
		}
		line.Quantity++
		line.SubtotalCents = subtotal
		c.touch()
		return nil
	}
	if p.RetailPriceCents < 0 || p.WholesalePriceCents < 0 ||
		p.RetailPriceCents > MaxAmountCents || p.WholesalePriceCents > MaxAmountCents {
		return domain.Invalid("price", "out_of_range")
	}
	line := domain.CartLine{
		ProductID:           p.ID,
		SKU:                 p.SKU,
		ProductName:         p.Name,
		RetailPriceCents:    p.RetailPriceCents,
		WholesalePriceCents: p.WholesalePriceCents,
		MinWholesaleQty:     p.MinWholesaleQty,
		Quantity:            1,
		UnitPriceCents:      p.PriceFor(c.channel),
	}
	line.SubtotalCents = line.UnitPriceCents
	if err := c.checkTotal(0, line.SubtotalCents); err != nil {
		return err
	}
	c.index[p.ID] = len(c.lines)
	c.lines = append(c.lines, line)
	c.touch()
	return nil
}

// UpdateQuantity applies delta and floors the result at 1; removal is explicit.
// A quantity above MaxLineQuantity, or one that would push an amount past
// MaxAmountCents, is rejected and leaves the line unchanged.
func (c *Cart) UpdateQuantity(productID string, delta int) error {
	i, ok := c.index[productID]
	if !ok {
		return domain.NotFound("cart line", productID)
	}
	if delta > MaxLineQuantity {
		return domain.Invalid("quantity", "out_of_range")
	}
	line := &c.lines[i]
	quantity := 1
	if delta > -line.Quantity {
		quantity = line.Quantity + delta
	}
	subtotal, err := lineSubtotal(quantity, line.UnitPriceCents)
	if err != nil {
		return err
	}
	if err := c.checkTotal(line.SubtotalCents, subtotal); err != nil {
		return err
	}
	line.Quantity = quantity
	line.SubtotalCents = subtotal
	c.touch()
	return nil
}

func (c *Cart) RemoveItem(productID string) error {
	i, ok := c.index[productID]
	if !ok {
		return domain.NotFound("cart line", productID)
	}
	c.lines = append(c.lines[:i], c.lines[i+1:]...)
	c.reindex()
	c.touch()
	return nil
}

// SwitchChannel re-prices every line from the new channel's price field.
func (c *Cart) SwitchChannel(channel domain.Channel) error {
	if !channel.Valid() {
		return domain.Invalid("channel", "unsupported")
	}
	if err := c.repriceFor(channel); err != nil {
		return err
	}
	c.channel = channel
	c.touch()
	return nil
}

// Total is the sum of line subtotals, before discount and tax.
func (c *Cart) Total() int64 {
	total := int64(0)
	for _, line := range c.lines {
		total += line.SubtotalCents
	}
	return total
}

func (c *Cart) Clear() {
	c.lines = nil
	c.index = make(map[string]int)
	c.touch()
}

// Warnings flags wholesale lines under the product's minimum wholesale quantity.
func (c *Cart) Warnings() []domain.CartWarning {
	warnings := make([]domain.CartWarning, 0)
	if c.channel != domain.ChannelWholesale {
		return warnings
	}
	for _, line := range c.lines {
		if line.MinWholesaleQty > 0 && line.Quantity < line.MinWholesaleQty {
			warnings = append(warnings, domain.CartWarning{
				ProductID: line.ProductID,
				Code:      WarningBelowWholesaleMin,
				Message:   fmt.Sprintf("%s needs at least %d units for wholesale price", line.ProductName, line.MinWholesaleQty),
			})
		}
	}
	return warnings
}

func (c *Cart) View(taxRatePercent decimal.Decimal) domain.CartView {
	subtotal := c.Total()
	tax := domain.ComputeTax(subtotal, taxRatePercent)
	return domain.CartView{
		CartState:      c.State(),
		SubtotalCents:  subtotal,
		TaxRatePercent: taxRatePercent,
		TaxCents:       tax,
		AmountDueCents: subtotal + tax,
		Warnings:       c.Warnings(),
	}
}

// repriceFor re-resolves every line at channel's price. Nothing changes unless
// every new subtotal and the new total are in range.
func (c *Cart) repriceFor(channel domain.Channel) error {
	prices := make([]int64, len(c.lines))
	subtotals := make([]int64, len(c.lines))
	total := int64(0)
	for i, line := range c.lines {
		prices[i] = line.RetailPriceCents
		if channel == domain.ChannelWholesale {
			prices[i] = line.WholesalePriceCents
		}
		subtotal, err := lineSubtotal(line.Quantity, prices[i])
		if err != nil {
			return err
		}
		if total > MaxAmountCents-subtotal {
			return domain.Invalid("quantity", "out_of_range")
		}
		subtotals[i] = subtotal
		total += subtotal
	}
	for i := range c.lines {
		c.lines[i].UnitPriceCents = prices[i]
		c.lines[i].SubtotalCents = subtotals[i]
	}
	return nil
}

func (c *Cart) reindex() {
	c.index = make(map[string]int, len(c.lines))
	for i, line := range c.lines {
		c.index[line.ProductID] = i
	}
}

func (c *Cart) touch() {
	c.updatedAt = time.Now().UTC()
}
