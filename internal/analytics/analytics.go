// Package analytics folds over sale, product and customer collections. Every
// function is pure: same input, same output, no I/O. Empty input yields zero
// values rather than errors.
package analytics

import (
	"fmt"
	"slices"
	"time"

	"github.com/shopspring/decimal"

	"grosirpos/backend/internal/domain"
)

type ChannelRevenue struct {
	RetailCents    int64 `json:"retail_cents"`
	WholesaleCents int64 `json:"wholesale_cents"`
}

type ChannelCount struct {
	Retail    int `json:"retail"`
	Wholesale int `json:"wholesale"`
}

type ProductSales struct {
	ProductID         string `json:"product_id"`
	ProductName       string `json:"product_name"`
	TotalQuantitySold int    `json:"total_quantity_sold"`
	RevenueCents      int64  `json:"revenue_cents"`
}

type PaymentBreakdown struct {
	CashCents   int64 `json:"cash_cents"`
	CardCents   int64 `json:"card_cents"`
	SplitCents  int64 `json:"split_cents"`
	CreditCents int64 `json:"credit_cents"`
}

// Completed keeps only sales that count toward revenue.
func Completed(sales []domain.Sale) []domain.Sale {
	out := make([]domain.Sale, 0, len(sales))
	for _, s := range sales {
		if s.Status == domain.SaleStatusCompleted {
			out = append(out, s)
		}
	}
	return out
}

func TotalRevenue(sales []domain.Sale) int64 {
	total := int64(0)
	for _, s := range sales {
		total += s.TotalCents
	}
	return total
}

func RevenueByChannel(sales []domain.Sale) ChannelRevenue {
	var out ChannelRevenue
	for _, s := range sales {
		if s.Channel == domain.ChannelWholesale {
			out.WholesaleCents += s.TotalCents
		} else {
			out.RetailCents += s.TotalCents
		}
	}
	return out
}

func RetailRevenue(sales []domain.Sale) int64 {
	return RevenueByChannel(sales).RetailCents
}

func WholesaleRevenue(sales []domain.Sale) int64 {
	return RevenueByChannel(sales).WholesaleCents
}

func SalesCountByChannel(sales []domain.Sale) ChannelCount {
	var out ChannelCount
	for _, s := range sales {
		if s.Channel == domain.ChannelWholesale {
			out.Wholesale++
		} else {
			out.Retail++
		}
	}
	return out
}

// AverageSaleValue is revenue / count in cents, 0 for no sales.
func AverageSaleValue(sales []domain.Sale) float64 {
	return ratio(TotalRevenue(sales), int64(len(sales)), 1)
}

// CostOfGoodsSold prices each sold unit at the product's current cost, not the
// cost at sale time. Lines whose product left the catalog contribute 0.
func CostOfGoodsSold(sales []domain.Sale, products []domain.Product) int64 {
	costs := make(map[string]int64, len(products))
	for _, p := range products {
		costs[p.ID] = p.CostPriceCents
	}
	total := int64(0)
	for _, s := range sales {
		for _, item := range s.Items {
			total += costs[item.ProductID] * int64(item.Quantity)
		}
	}
	return total
}

func GrossProfit(sales []domain.Sale, products []domain.Product) int64 {
	return TotalRevenue(sales) - CostOfGoodsSold(sales, products)
}

// GrossProfitMargin is profit / revenue * 100, unrounded; 0 when revenue is 0.
func GrossProfitMargin(sales []domain.Sale, products []domain.Product) float64 {
	revenue := TotalRevenue(sales)
	if revenue == 0 {
		return 0
	}
	return decimal.NewFromInt(GrossProfit(sales, products)).
		Mul(decimal.NewFromInt(100)).
		Div(decimal.NewFromInt(revenue)).
		InexactFloat64()
}

func TotalDiscounts(sales []domain.Sale) int64 {
	total := int64(0)
	for _, s := range sales {
		total += s.DiscountCents
	}
	return total
}

func AverageDiscount(sales []domain.Sale) float64 {
	return ratio(TotalDiscounts(sales), int64(len(sales)), 1)
}

func TotalTax(sales []domain.Sale) int64 {
	total := int64(0)
	for _, s := range sales {
		total += s.TaxCents
	}
	return total
}

// PaymentMethodBreakdown sums net totals per payment method. Sales are
// validated on write, so an unknown method here is a bug.
func PaymentMethodBreakdown(sales []domain.Sale) PaymentBreakdown {
	var out PaymentBreakdown
	for _, s := range sales {
		switch s.PaymentMethod {
		case domain.PaymentCash:
			out.CashCents += s.TotalCents
		case domain.PaymentCard:
			out.CardCents += s.TotalCents
		case domain.PaymentSplit:
			out.SplitCents += s.TotalCents
		case domain.PaymentCredit:
			out.CreditCents += s.TotalCents
		default:
			panic(fmt.Sprintf("analytics: sale %s has unknown payment method %q", s.ID, s.PaymentMethod))
		}
	}
	return out
}

// MostSold ranks products by quantity sold, descending. Ties keep the order
// in which products were first seen in sales. limit <= 0 returns all.
func MostSold(sales []domain.Sale, limit int) []ProductSales {
	index := make(map[string]int)
	ranked := make([]ProductSales, 0)
	for _, s := range sales {
		for _, item := range s.Items {
			i, ok := index[item.ProductID]
			if !ok {
				i = len(ranked)
				index[item.ProductID] = i
				ranked = append(ranked, ProductSales{ProductID: item.ProductID, ProductName: item.ProductName})
			}
			ranked[i].TotalQuantitySold += item.Quantity
			ranked[i].RevenueCents += item.SubtotalCents
		}
	}
	slices.SortStableFunc(ranked, func(a, b ProductSales) int {
		return b.TotalQuantitySold - a.TotalQuantitySold
	})
	if limit > 0 && len(ranked) > limit {
		ranked = ranked[:limit]
	}
	return ranked
}

// SalesInRange keeps sales with from <= CreatedAt < to. A zero bound is open.
func SalesInRange(sales []domain.Sale, from time.Time, to time.Time) []domain.Sale {
	out := make([]domain.Sale, 0, len(sales))
	for _, s := range sales {
		if !from.IsZero() && s.CreatedAt.Before(from) {
			continue
		}
		if !to.IsZero() && !s.CreatedAt.Before(to) {
			continue
		}
		out = append(out, s)
	}
	return out
}

func InventoryValue(products []domain.Product) int64 {
	total := int64(0)
	for _, p := range products {
		total += p.CostPriceCents * int64(p.StockLevel)
	}
	return total
}

func TotalStockQuantity(products []domain.Product) int {
	total := 0
	for _, p := range products {
		total += p.StockLevel
	}
	return total
}

// LowStock returns products at or below their alert level, in input order.
func LowStock(products []domain.Product) []domain.Product {
	out := make([]domain.Product, 0)
	for _, p := range products {
		if p.StockLevel <= p.AlertLevel {
			out = append(out, p)
		}
	}
	return out
}

// OutOfStock returns products with nothing on hand, in input order.
func OutOfStock(products []domain.Product) []domain.Product {
	out := make([]domain.Product, 0)
	for _, p := range products {
		if p.StockLevel == 0 {
			out = append(out, p)
		}
	}
	return out
}

func TotalCustomerSpent(customers []domain.Customer) int64 {
	total := int64(0)
	for _, c := range customers {
		total += c.TotalSpentCents
	}
	return total
}

func TotalOutstandingBalance(customers []domain.Customer) int64 {
	total := int64(0)
	for _, c := range customers {
		total += c.OutstandingBalanceCents
	}
	return total
}

func CustomersByType(customers []domain.Customer, channel domain.Channel) []domain.Customer {
	out := make([]domain.Customer, 0)
	for _, c := range customers {
		if c.Type == channel {
			out = append(out, c)
		}
	}
	return out
}

// TopCustomers orders by total spent, descending, stable on input order.
func TopCustomers(customers []domain.Customer, limit int) []domain.Customer {
	out := slices.Clone(customers)
	slices.SortStableFunc(out, func(a, b domain.Customer) int {
		switch {
		case a.TotalSpentCents > b.TotalSpentCents:
			return -1
		case a.TotalSpentCents < b.TotalSpentCents:
			return 1
		}
		return 0
	})
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out
}

func ratio(num int64, den int64, scale int64) float64 {
	if den == 0 {
		return 0
	}
	return decimal.NewFromInt(num).
		Mul(decimal.NewFromInt(scale)).
		Div(decimal.NewFromInt(den)).
		Round(2).
		InexactFloat64()
}
