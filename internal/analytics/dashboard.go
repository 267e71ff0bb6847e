package analytics

import (
	"time"

	"grosirpos/backend/internal/domain"
)

// Input is one consistent read of the ledger. Sales may include refunded
// entries; Build filters to completed ones.
type Input struct {
	From      time.Time
	To        time.Time
	Sales     []domain.Sale
	Products  []domain.Product
	Customers []domain.Customer
	TakenAt   time.Time
}

type RevenueSummary struct {
	TotalCents        int64          `json:"total_cents"`
	ByChannel         ChannelRevenue `json:"by_channel"`
	SalesCount        int            `json:"sales_count"`
	CountByChannel    ChannelCount   `json:"count_by_channel"`
	AverageSaleCents  float64        `json:"average_sale_cents"`
	DiscountCents     int64          `json:"discount_cents"`
	AverageDiscount   float64        `json:"average_discount_cents"`
	TaxCollectedCents int64          `json:"tax_collected_cents"`
}

type MarginSummary struct {
	COGSCents        int64   `json:"cogs_cents"`
	GrossProfitCents int64   `json:"gross_profit_cents"`
	MarginPercent    float64 `json:"margin_percent"`
}

type InventorySummary struct {
	ValueCents int64            `json:"value_cents"`
	TotalUnits int              `json:"total_units"`
	LowStock   []domain.Product `json:"low_stock"`
	OutOfStock []domain.Product `json:"out_of_stock"`
}

type CustomerSummary struct {
	TotalSpentCents    int64             `json:"total_spent_cents"`
	OutstandingCents   int64             `json:"outstanding_cents"`
	RetailCustomers    int               `json:"retail_customers"`
	WholesaleCustomers int               `json:"wholesale_customers"`
	Top                []domain.Customer `json:"top"`
}

type Dashboard struct {
	From        *time.Time       `json:"from,omitempty"`
	To          *time.Time       `json:"to,omitempty"`
	GeneratedAt time.Time        `json:"generated_at"`
	Revenue     RevenueSummary   `json:"revenue"`
	Margin      MarginSummary    `json:"margin"`
	Inventory   InventorySummary `json:"inventory"`
	TopProducts []ProductSales   `json:"top_products"`
	Payments    PaymentBreakdown `json:"payments"`
	Customers   CustomerSummary  `json:"customers"`
}

// Build assembles every dashboard metric from one snapshot.
func Build(in Input, topProducts int, topCustomers int) Dashboard {
	sales := Completed(SalesInRange(in.Sales, in.From, in.To))

	d := Dashboard{
		GeneratedAt: in.TakenAt,
		Revenue: RevenueSummary{
			TotalCents:        TotalRevenue(sales),
			ByChannel:         RevenueByChannel(sales),
			SalesCount:        len(sales),
			CountByChannel:    SalesCountByChannel(sales),
			AverageSaleCents:  AverageSaleValue(sales),
			DiscountCents:     TotalDiscounts(sales),
			AverageDiscount:   AverageDiscount(sales),
			TaxCollectedCents: TotalTax(sales),
		},
		Margin: MarginSummary{
			COGSCents:        CostOfGoodsSold(sales, in.Products),
			GrossProfitCents: GrossProfit(sales, in.Products),
			MarginPercent:    GrossProfitMargin(sales, in.Products),
		},
		Inventory: InventorySummary{
			ValueCents: InventoryValue(in.Products),
			TotalUnits: TotalStockQuantity(in.Products),
			LowStock:   LowStock(in.Products),
			OutOfStock: OutOfStock(in.Products),
		},
		TopProducts: MostSold(sales, topProducts),
		Payments:    PaymentMethodBreakdown(sales),
		Customers: CustomerSummary{
			TotalSpentCents:    TotalCustomerSpent(in.Customers),
			OutstandingCents:   TotalOutstandingBalance(in.Customers),
			RetailCustomers:    len(CustomersByType(in.Customers, domain.ChannelRetail)),
			WholesaleCustomers: len(CustomersByType(in.Customers, domain.ChannelWholesale)),
			Top:                TopCustomers(in.Customers, topCustomers),
		},
	}
	if !in.From.IsZero() {
		from := in.From
		d.From = &from
	}
	if !in.To.IsZero() {
		to := in.To
		d.To = &to
	}
	return d
}
