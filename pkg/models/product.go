package models

import (
	"time"

	"github.com/shopspring/decimal"
)

type Product struct {
	ID            string          `json:"id"`
	Name          string          `json:"name"`
	Description   string          `json:"description,omitempty"`
	UnitPrice     decimal.Decimal `json:"unit_price"`
	Barcode       string          `json:"barcode"`
	Category      string          `json:"category,omitempty"`
	StockQuantity int             `json:"stock_quantity"`
	ImageURL      string          `json:"image_url,omitempty"`
	Active        bool            `json:"active"`
	CreatedAt     time.Time       `json:"created_at"`
	UpdatedAt     time.Time       `json:"updated_at"`
}

// ProductUpdate carries a partial admin edit. Nil fields are left untouched.
type ProductUpdate struct {
	Name          *string          `json:"name,omitempty"`
	Description   *string          `json:"description,omitempty"`
	UnitPrice     *decimal.Decimal `json:"unit_price,omitempty"`
	Category      *string          `json:"category,omitempty"`
	StockQuantity *int             `json:"stock_quantity,omitempty"`
	ImageURL      *string          `json:"image_url,omitempty"`
	Active        *bool            `json:"active,omitempty"`
}

type ProductFilter struct {
	Category   string
	ActiveOnly bool
	Search     string
	Limit      int
	Offset     int
}
