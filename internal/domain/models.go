package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

type Channel string

const (
	ChannelRetail    Channel = "retail"
	ChannelWholesale Channel = "wholesale"
)

func (c Channel) Valid() bool {
	return c == ChannelRetail || c == ChannelWholesale
}

type PaymentMethod string

const (
	PaymentCash   PaymentMethod = "cash"
	PaymentCard   PaymentMethod = "card"
	PaymentSplit  PaymentMethod = "split"
	PaymentCredit PaymentMethod = "credit"
)

// PaymentMethods lists the fixed set of accepted methods in reporting order.
var PaymentMethods = []PaymentMethod{PaymentCash, PaymentCard, PaymentSplit, PaymentCredit}

func (m PaymentMethod) Valid() bool {
	switch m {
	case PaymentCash, PaymentCard, PaymentSplit, PaymentCredit:
		return true
	}
	return false
}

type SaleStatus string

const (
	SaleStatusCompleted SaleStatus = "completed"
	SaleStatusHold      SaleStatus = "hold"
	SaleStatusRefunded  SaleStatus = "refunded"
)

const (
	RoleAdmin   = "admin"
	RoleCashier = "cashier"
)

type Product struct {
	ID                  string    `json:"id"`
	SKU                 string    `json:"sku"`
	Barcode             string    `json:"barcode,omitempty"`
	Name                string    `json:"name"`
	Category            string    `json:"category"`
	Description         string    `json:"description,omitempty"`
	Unit                string    `json:"unit"`
	CostPriceCents      int64     `json:"cost_price_cents"`
	RetailPriceCents    int64     `json:"retail_price_cents"`
	WholesalePriceCents int64     `json:"wholesale_price_cents"`
	MinWholesaleQty     int       `json:"min_wholesale_qty"`
	StockLevel          int       `json:"stock_level"`
	AlertLevel          int       `json:"alert_level"`
	CreatedAt           time.Time `json:"created_at"`
	UpdatedAt           time.Time `json:"updated_at"`
}

// PriceFor resolves the unit price a channel sells this product at.
func (p Product) PriceFor(channel Channel) int64 {
	if channel == ChannelWholesale {
		return p.WholesalePriceCents
	}
	return p.RetailPriceCents
}

type ProductCreateRequest struct {
	SKU                 string `json:"sku"`
	Barcode             string `json:"barcode,omitempty"`
	Name                string `json:"name"`
	Category            string `json:"category"`
	Description         string `json:"description,omitempty"`
	Unit                string `json:"unit"`
	CostPriceCents      int64  `json:"cost_price_cents"`
	RetailPriceCents    int64  `json:"retail_price_cents"`
	WholesalePriceCents int64  `json:"wholesale_price_cents"`
	MinWholesaleQty     int    `json:"min_wholesale_qty"`
	AlertLevel          int    `json:"alert_level"`
	InitialStock        int    `json:"initial_stock"`
}

type ProductUpdateRequest struct {
	SKU                 *string `json:"sku,omitempty"`
	Barcode             *string `json:"barcode,omitempty"`
	Name                *string `json:"name,omitempty"`
	Category            *string `json:"category,omitempty"`
	Description         *string `json:"description,omitempty"`
	Unit                *string `json:"unit,omitempty"`
	RetailPriceCents    *int64  `json:"retail_price_cents,omitempty"`
	WholesalePriceCents *int64  `json:"wholesale_price_cents,omitempty"`
	MinWholesaleQty     *int    `json:"min_wholesale_qty,omitempty"`
	AlertLevel          *int    `json:"alert_level,omitempty"`
}

// InventoryReceipt is an append-only goods-received entry. An empty VendorID
// means own production.
type InventoryReceipt struct {
	ID            string     `json:"id"`
	ProductID     string     `json:"product_id"`
	VendorID      string     `json:"vendor_id,omitempty"`
	Quantity      int        `json:"quantity"`
	UnitCostCents int64      `json:"unit_cost_cents"`
	BatchNumber   string     `json:"batch_number,omitempty"`
	ExpiryDate    *time.Time `json:"expiry_date,omitempty"`
	ReceivedBy    string     `json:"received_by,omitempty"`
	ReceivedAt    time.Time  `json:"received_at"`
}

type ReceiveStockRequest struct {
	ProductID     string `json:"product_id"`
	VendorID      string `json:"vendor_id,omitempty"`
	Quantity      int    `json:"quantity"`
	UnitCostCents int64  `json:"unit_cost_cents"`
	BatchNumber   string `json:"batch_number,omitempty"`
	ExpiryDate    string `json:"expiry_date,omitempty"`
}

type ReceiveStockResponse struct {
	Receipt InventoryReceipt `json:"receipt"`
	Product Product          `json:"product"`
}

type SaleItem struct {
	ProductID      string `json:"product_id"`
	ProductName    string `json:"product_name"`
	Quantity       int    `json:"quantity"`
	UnitPriceCents int64  `json:"unit_price_cents"`
	SubtotalCents  int64  `json:"subtotal_cents"`
}

type Sale struct {
	ID                string          `json:"id"`
	IdempotencyKey    string          `json:"idempotency_key"`
	TerminalID        string          `json:"terminal_id"`
	CustomerID        string          `json:"customer_id,omitempty"`
	CustomerName      string          `json:"customer_name,omitempty"`
	Channel           Channel         `json:"channel"`
	Items             []SaleItem      `json:"items"`
	SubtotalCents     int64           `json:"subtotal_cents"`
	DiscountCents     int64           `json:"discount_cents"`
	TaxRatePercent    decimal.Decimal `json:"tax_rate_percent"`
	TaxCents          int64           `json:"tax_cents"`
	TotalCents        int64           `json:"total_cents"`
	CashReceivedCents int64           `json:"cash_received_cents"`
	ChangeCents       int64           `json:"change_cents"`
	PaymentMethod     PaymentMethod   `json:"payment_method"`
	Status            SaleStatus      `json:"status"`
	RefundReason      string          `json:"refund_reason,omitempty"`
	RefundedAt        *time.Time      `json:"refunded_at,omitempty"`
	CreatedBy         string          `json:"created_by,omitempty"`
	CreatedAt         time.Time       `json:"created_at"`
}

// AmountDueCents is what the customer pays: the net total plus tax.
func (s Sale) AmountDueCents() int64 {
	return s.TotalCents + s.TaxCents
}

type Customer struct {
	ID                      string    `json:"id"`
	Name                    string    `json:"name"`
	Phone                   string    `json:"phone"`
	Email                   string    `json:"email,omitempty"`
	Type                    Channel   `json:"type"`
	TotalSpentCents         int64     `json:"total_spent_cents"`
	CreditLimitCents        int64     `json:"credit_limit_cents"`
	OutstandingBalanceCents int64     `json:"outstanding_balance_cents"`
	CreatedAt               time.Time `json:"created_at"`
}

type CustomerCreateRequest struct {
	Name             string  `json:"name"`
	Phone            string  `json:"phone"`
	Email            string  `json:"email,omitempty"`
	Type             Channel `json:"type"`
	CreditLimitCents int64   `json:"credit_limit_cents"`
}

type Vendor struct {
	ID            string    `json:"id"`
	Name          string    `json:"name"`
	ContactPerson string    `json:"contact_person"`
	Phone         string    `json:"phone"`
	Email         string    `json:"email,omitempty"`
	Address       string    `json:"address,omitempty"`
	TaxID         string    `json:"tax_id,omitempty"`
	CreatedAt     time.Time `json:"created_at"`
}

type VendorCreateRequest struct {
	Name          string `json:"name"`
	ContactPerson string `json:"contact_person"`
	Phone         string `json:"phone"`
	Email         string `json:"email,omitempty"`
	Address       string `json:"address,omitempty"`
	TaxID         string `json:"tax_id,omitempty"`
}

type Settings struct {
	StoreName      string          `json:"store_name"`
	Address        string          `json:"address"`
	Phone          string          `json:"phone"`
	Email          string          `json:"email,omitempty"`
	ReceiptHeader  string          `json:"receipt_header"`
	ReceiptFooter  string          `json:"receipt_footer"`
	Currency       string          `json:"currency"`
	TaxRatePercent decimal.Decimal `json:"tax_rate_percent"`
	UpdatedAt      time.Time       `json:"updated_at"`
}

// DefaultSettings mirrors the values a fresh store starts with.
func DefaultSettings(taxRatePercent decimal.Decimal) Settings {
	return Settings{
		StoreName:      "My Wholesale & Retail Store",
		Address:        "123 Market Street",
		Phone:          "555-0123",
		ReceiptHeader:  "Thank you for shopping!",
		ReceiptFooter:  "See you next time!",
		Currency:       "USD",
		TaxRatePercent: taxRatePercent,
	}
}

type SettingsUpdateRequest struct {
	StoreName      *string          `json:"store_name,omitempty"`
	Address        *string          `json:"address,omitempty"`
	Phone          *string          `json:"phone,omitempty"`
	Email          *string          `json:"email,omitempty"`
	ReceiptHeader  *string          `json:"receipt_header,omitempty"`
	ReceiptFooter  *string          `json:"receipt_footer,omitempty"`
	Currency       *string          `json:"currency,omitempty"`
	TaxRatePercent *decimal.Decimal `json:"tax_rate_percent,omitempty"`
}

// CartLine keeps both channel prices of the product so a channel switch can
// re-price without another catalog read.
type CartLine struct {
	ProductID           string `json:"product_id"`
	SKU                 string `json:"sku"`
	ProductName         string `json:"product_name"`
	RetailPriceCents    int64  `json:"retail_price_cents"`
	WholesalePriceCents int64  `json:"wholesale_price_cents"`
	MinWholesaleQty     int    `json:"min_wholesale_qty"`
	Quantity            int    `json:"quantity"`
	UnitPriceCents      int64  `json:"unit_price_cents"`
	SubtotalCents       int64  `json:"subtotal_cents"`
}

type CartState struct {
	TerminalID string     `json:"terminal_id"`
	Channel    Channel    `json:"channel"`
	Lines      []CartLine `json:"lines"`
	UpdatedAt  time.Time  `json:"updated_at"`
}

type CartWarning struct {
	ProductID string `json:"product_id"`
	Code      string `json:"code"`
	Message   string `json:"message"`
}

type CartView struct {
	CartState
	SubtotalCents  int64           `json:"subtotal_cents"`
	TaxRatePercent decimal.Decimal `json:"tax_rate_percent"`
	TaxCents       int64           `json:"tax_cents"`
	AmountDueCents int64           `json:"amount_due_cents"`
	Warnings       []CartWarning   `json:"warnings"`
}

type CartAddRequest struct {
	ProductID string `json:"product_id,omitempty"`
	Barcode   string `json:"barcode,omitempty"`
}

type CartQuantityRequest struct {
	Delta int `json:"delta"`
}

type CartChannelRequest struct {
	Channel Channel `json:"channel"`
}

type CheckoutRequest struct {
	IdempotencyKey    string        `json:"idempotency_key"`
	PaymentMethod     PaymentMethod `json:"payment_method"`
	CustomerID        string        `json:"customer_id,omitempty"`
	DiscountCents     int64         `json:"discount_cents"`
	CashReceivedCents int64         `json:"cash_received_cents"`
}

type CheckoutResponse struct {
	Sale           Sale  `json:"sale"`
	AmountDueCents int64 `json:"amount_due_cents"`
	Duplicate      bool  `json:"duplicate"`
}

type RefundRequest struct {
	Reason     string `json:"reason"`
	ManagerPIN string `json:"manager_pin"`
}

type LoginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

type LoginResponse struct {
	AccessToken string `json:"access_token"`
	Role        string `json:"role"`
	ExpiresAt   string `json:"expires_at"`
}

type Actor struct {
	Username string
	Role     string
}

type CashierCreateRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

type CashierUser struct {
	Username  string    `json:"username"`
	Role      string    `json:"role"`
	Active    bool      `json:"active"`
	CreatedAt time.Time `json:"created_at"`
}

// UserAccount is an internal persistence model for auth credentials.
type UserAccount struct {
	Username  string
	Password  string
	Role      string
	Active    bool
	CreatedAt time.Time
}

type AuditLog struct {
	ID            string    `json:"id"`
	ActorUsername string    `json:"actor_username"`
	ActorRole     string    `json:"actor_role"`
	Action        string    `json:"action"`
	EntityType    string    `json:"entity_type"`
	EntityID      string    `json:"entity_id"`
	Detail        string    `json:"detail"`
	CreatedAt     time.Time `json:"created_at"`
}
