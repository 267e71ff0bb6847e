package service

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"

	"grosirpos/backend/internal/cart"
	"grosirpos/backend/internal/domain"
	"grosirpos/backend/internal/xid"
)

func (s *Service) loadCart(ctx context.Context, terminalID string) (*cart.Cart, error) {
	state, found, err := s.carts.Load(ctx, terminalID)
	if err != nil {
		return nil, fmt.Errorf("load cart: %w", err)
	}
	if !found {
		return cart.New(terminalID), nil
	}
	state.TerminalID = terminalID
	return cart.FromState(*state), nil
}

func (s *Service) view(ctx context.Context, c *cart.Cart) (domain.CartView, error) {
	settings, err := s.effectiveSettings(ctx)
	if err != nil {
		return domain.CartView{}, err
	}
	return c.View(settings.TaxRatePercent), nil
}

// mutateCart loads the terminal's cart, applies fn and saves the result.
// A failing fn leaves the stored cart untouched.
func (s *Service) mutateCart(ctx context.Context, terminalID string, fn func(c *cart.Cart) error) (domain.CartView, error) {
	terminalID = strings.TrimSpace(terminalID)
	if terminalID == "" {
		return domain.CartView{}, domain.Invalid("terminal_id", "required")
	}
	unlock := s.lockTerminal(terminalID)
	defer unlock()

	c, err := s.loadCart(ctx, terminalID)
	if err != nil {
		return domain.CartView{}, err
	}
	if err := fn(c); err != nil {
		return domain.CartView{}, err
	}
	if err := s.carts.Save(ctx, c.State()); err != nil {
		return domain.CartView{}, fmt.Errorf("save cart: %w", err)
	}
	return s.view(ctx, c)
}

func (s *Service) GetCart(ctx context.Context, terminalID string) (domain.CartView, error) {
	terminalID = strings.TrimSpace(terminalID)
	if terminalID == "" {
		return domain.CartView{}, domain.Invalid("terminal_id", "required")
	}
	c, err := s.loadCart(ctx, terminalID)
	if err != nil {
		return domain.CartView{}, err
	}
	return s.view(ctx, c)
}

// AddToCart resolves the product by id or scanned barcode and adds one unit.
func (s *Service) AddToCart(ctx context.Context, terminalID string, req domain.CartAddRequest) (domain.CartView, error) {
	var product *domain.Product
	var err error
	switch {
	case strings.TrimSpace(req.ProductID) != "":
		product, err = s.repo.GetProduct(ctx, strings.TrimSpace(req.ProductID))
	case strings.TrimSpace(req.Barcode) != "":
		product, err = s.repo.GetProductByCode(ctx, strings.TrimSpace(req.Barcode))
	default:
		err = domain.Invalid("product_id", "required")
	}
	if err != nil {
		return domain.CartView{}, err
	}
	return s.mutateCart(ctx, terminalID, func(c *cart.Cart) error {
		return c.AddItem(*product)
	})
}

func (s *Service) UpdateCartQuantity(ctx context.Context, terminalID string, productID string, delta int) (domain.CartView, error) {
	return s.mutateCart(ctx, terminalID, func(c *cart.Cart) error {
		return c.UpdateQuantity(strings.TrimSpace(productID), delta)
	})
}

func (s *Service) RemoveFromCart(ctx context.Context, terminalID string, productID string) (domain.CartView, error) {
	return s.mutateCart(ctx, terminalID, func(c *cart.Cart) error {
		return c.RemoveItem(strings.TrimSpace(productID))
	})
}

func (s *Service) SwitchChannel(ctx context.Context, terminalID string, channel domain.Channel) (domain.CartView, error) {
	return s.mutateCart(ctx, terminalID, func(c *cart.Cart) error {
		return c.SwitchChannel(channel)
	})
}

func (s *Service) ClearCart(ctx context.Context, terminalID string) error {
	terminalID = strings.TrimSpace(terminalID)
	if terminalID == "" {
		return domain.Invalid("terminal_id", "required")
	}
	unlock := s.lockTerminal(terminalID)
	defer unlock()
	return s.carts.Delete(ctx, terminalID)
}

// Checkout turns the terminal's cart into a committed sale. Stock deduction,
// customer charge and the sale row succeed or fail together; on failure the
// cart is kept so the cashier can adjust and retry.
func (s *Service) Checkout(ctx context.Context, terminalID string, req domain.CheckoutRequest) (domain.CheckoutResponse, error) {
	terminalID = strings.TrimSpace(terminalID)
	if terminalID == "" {
		return domain.CheckoutResponse{}, domain.Invalid("terminal_id", "required")
	}
	req.IdempotencyKey = strings.TrimSpace(req.IdempotencyKey)
	if req.IdempotencyKey == "" {
		req.IdempotencyKey = xid.New("idem")
	}
	if req.PaymentMethod == "" {
		req.PaymentMethod = domain.PaymentCash
	}

	unlock := s.lockTerminal(terminalID)
	defer unlock()

	if existing, err := s.repo.FindSaleByIdempotency(ctx, req.IdempotencyKey); err == nil {
		return toCheckoutResponse(existing, true), nil
	} else if !errors.Is(err, domain.ErrNotFound) {
		return domain.CheckoutResponse{}, err
	}

	c, err := s.loadCart(ctx, terminalID)
	if err != nil {
		return domain.CheckoutResponse{}, err
	}
	settings, err := s.effectiveSettings(ctx)
	if err != nil {
		return domain.CheckoutResponse{}, err
	}

	var customer *domain.Customer
	if id := strings.TrimSpace(req.CustomerID); id != "" {
		customer, err = s.repo.GetCustomer(ctx, id)
		if err != nil {
			return domain.CheckoutResponse{}, err
		}
	}

	sale, err := c.BuildSale(cart.CheckoutOptions{
		PaymentMethod:       req.PaymentMethod,
		DiscountCents:       req.DiscountCents,
		CashReceivedCents:   req.CashReceivedCents,
		TaxRatePercent:      settings.TaxRatePercent,
		Customer:            customer,
		IdempotencyKey:      req.IdempotencyKey,
		CreatedBy:           actorName(ctx),
		EnforceWholesaleMin: s.opts.EnforceWholesaleMin,
		Now:                 s.now(),
	})
	if err != nil {
		return domain.CheckoutResponse{}, err
	}

	committed, replayed, err := s.repo.CommitSale(ctx, sale)
	if err != nil {
		return domain.CheckoutResponse{}, err
	}

	if err := s.carts.Delete(ctx, terminalID); err != nil {
		log.Printf("[service] WARN: failed to clear cart terminal=%s after sale %s: %v", terminalID, committed.ID, err)
	}
	if replayed {
		return toCheckoutResponse(committed, true), nil
	}
	s.invalidateReports(ctx)

	s.logAudit(ctx, "checkout", "sale", committed.ID, fmt.Sprintf(
		"channel=%s,total=%d,tax=%d,discount=%d,payment=%s,customer=%s",
		committed.Channel, committed.TotalCents, committed.TaxCents, committed.DiscountCents, committed.PaymentMethod, committed.CustomerID,
	))
	return toCheckoutResponse(committed, false), nil
}

func toCheckoutResponse(sale *domain.Sale, duplicate bool) domain.CheckoutResponse {
	return domain.CheckoutResponse{
		Sale:           *sale,
		AmountDueCents: sale.AmountDueCents(),
		Duplicate:      duplicate,
	}
}
