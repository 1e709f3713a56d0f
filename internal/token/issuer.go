// Package token issues and verifies the proof-of-purchase payload shown
// at the exit gate. The payload is a pointer plus display data, not a
// credential: it carries no signature, so verification trusts only the
// order id inside it and re-reads everything else from the ledger.
package token

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"github.com/jogardn/selfcheckout/pkg/models"
)

var ErrInvalidPayload = errors.New("invalid redemption payload")

type PayloadItem struct {
	ProductID string          `json:"product_id"`
	Name      string          `json:"name"`
	Quantity  int             `json:"quantity"`
	UnitPrice decimal.Decimal `json:"unit_price"`
	LineTotal decimal.Decimal `json:"line_total"`
}

type Payload struct {
	OrderID     string          `json:"order_id"`
	CustomerID  string          `json:"customer_id"`
	TotalAmount decimal.Decimal `json:"total_amount"`
	CreatedAt   string          `json:"created_at"`
	Items       []PayloadItem   `json:"items"`
}

// VerificationResult is ledger truth for the order named by a payload.
type VerificationResult struct {
	OrderID     string          `json:"order_id"`
	Status      string          `json:"status"`
	TotalAmount decimal.Decimal `json:"total_amount"`
	CreatedAt   time.Time       `json:"created_at"`
}

// OrderLookup is the slice of the ledger verification needs.
type OrderLookup interface {
	GetForVerification(ctx context.Context, id string) (*models.Order, error)
}

type Issuer struct {
	ledger OrderLookup
}

func NewIssuer(ledger OrderLookup) *Issuer {
	return &Issuer{ledger: ledger}
}

// Issue serializes the order into a compact base64url string small enough
// for a 2-D barcode.
func (i *Issuer) Issue(order *models.Order) (string, error) {
	payload := Payload{
		OrderID:     order.ID,
		CustomerID:  order.CustomerID,
		TotalAmount: order.TotalAmount,
		CreatedAt:   order.CreatedAt.UTC().Format(time.RFC3339),
	}
	for _, line := range order.Lines {
		payload.Items = append(payload.Items, PayloadItem{
			ProductID: line.ProductID,
			Name:      line.ProductName,
			Quantity:  line.Quantity,
			UnitPrice: line.UnitPrice,
			LineTotal: line.LineTotal,
		})
	}

	data, err := json.Marshal(payload)
	if err != nil {
		return "", fmt.Errorf("failed to encode payload: %w", err)
	}
	return base64.URLEncoding.EncodeToString(data), nil
}

// Decode parses a scanned payload without trusting it.
func Decode(raw string) (*Payload, error) {
	data, err := base64.URLEncoding.DecodeString(raw)
	if err != nil {
		return nil, ErrInvalidPayload
	}
	var payload Payload
	if err := json.Unmarshal(data, &payload); err != nil {
		return nil, ErrInvalidPayload
	}
	if payload.OrderID == "" {
		return nil, ErrInvalidPayload
	}
	return &payload, nil
}

// Verify looks up the order named by the payload and reports the ledger's
// stored status and total. Embedded amounts and items are ignored; a
// tampered payload can at most point at a different order id, which then
// fails the lookup or reveals that order's true state.
func (i *Issuer) Verify(ctx context.Context, raw string) (*VerificationResult, error) {
	payload, err := Decode(raw)
	if err != nil {
		return nil, err
	}

	order, err := i.ledger.GetForVerification(ctx, payload.OrderID)
	if err != nil {
		return nil, err
	}
	return &VerificationResult{
		OrderID:     order.ID,
		Status:      order.Status,
		TotalAmount: order.TotalAmount,
		CreatedAt:   order.CreatedAt,
	}, nil
}
