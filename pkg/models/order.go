package models

import (
	"time"

	"github.com/shopspring/decimal"
)

const (
	StatusPending   = "pending"
	StatusPaid      = "paid"
	StatusCancelled = "cancelled"
	StatusRefunded  = "refunded"
)

type Order struct {
	ID             string          `json:"id"`
	CustomerID     string          `json:"customer_id"`
	Lines          []OrderLine     `json:"items"`
	TotalAmount    decimal.Decimal `json:"total_amount"`
	Status         string          `json:"status"`
	PaymentMethod  string          `json:"payment_method,omitempty"`
	IdempotencyKey string          `json:"idempotency_key,omitempty"`
	QRCodeData     string          `json:"qr_code_data,omitempty"`
	CreatedAt      time.Time       `json:"created_at"`
	UpdatedAt      time.Time       `json:"updated_at"`
}

// OrderLine snapshots the product at purchase time. Later catalog edits
// never change an existing line.
type OrderLine struct {
	OrderID     string          `json:"order_id,omitempty"`
	ProductID   string          `json:"product_id"`
	ProductName string          `json:"name"`
	Quantity    int             `json:"quantity"`
	UnitPrice   decimal.Decimal `json:"unit_price"`
	LineTotal   decimal.Decimal `json:"line_total"`
}

// CartItem is a client-submitted line before pricing.
type CartItem struct {
	ProductID string `json:"product_id"`
	Quantity  int    `json:"quantity"`
}

type OrderFilter struct {
	Status string
	Limit  int
	Offset int
}

func ValidStatus(s string) bool {
	switch s {
	case StatusPending, StatusPaid, StatusCancelled, StatusRefunded:
		return true
	}
	return false
}
