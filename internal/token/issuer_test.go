package token

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"github.com/jogardn/selfcheckout/internal/ledger"
	"github.com/jogardn/selfcheckout/pkg/models"
)

type fakeLookup struct {
	orders map[string]*models.Order
}

func (f *fakeLookup) GetForVerification(_ context.Context, id string) (*models.Order, error) {
	o, ok := f.orders[id]
	if !ok {
		return nil, ledger.ErrNotFound
	}
	return o, nil
}

func sampleOrder() *models.Order {
	total, _ := decimal.NewFromString("5.20")
	unit, _ := decimal.NewFromString("2.60")
	return &models.Order{
		ID:          "order-1",
		CustomerID:  "cust-1",
		TotalAmount: total,
		Status:      models.StatusPaid,
		CreatedAt:   time.Date(2026, 3, 14, 9, 30, 0, 0, time.UTC),
		Lines: []models.OrderLine{
			{ProductID: "p1", ProductName: "Milk", Quantity: 2, UnitPrice: unit, LineTotal: total},
		},
	}
}

func TestIssueDecodeRoundTrip(t *testing.T) {
	order := sampleOrder()
	issuer := NewIssuer(nil)

	raw, err := issuer.Issue(order)
	if err != nil {
		t.Fatalf("Issue failed: %v", err)
	}

	payload, err := Decode(raw)
	if err != nil {
		t.Fatalf("Decode failed: %v", err)
	}
	if payload.OrderID != "order-1" {
		t.Errorf("OrderID = %s, want order-1", payload.OrderID)
	}
	if payload.CreatedAt != "2026-03-14T09:30:00Z" {
		t.Errorf("CreatedAt = %s, want RFC3339 UTC", payload.CreatedAt)
	}
	if len(payload.Items) != 1 || payload.Items[0].Quantity != 2 {
		t.Errorf("Items not preserved: %+v", payload.Items)
	}
}

func TestVerifyReturnsLedgerTruth(t *testing.T) {
	order := sampleOrder()
	issuer := NewIssuer(&fakeLookup{orders: map[string]*models.Order{order.ID: order}})

	raw, err := issuer.Issue(order)
	if err != nil {
		t.Fatalf("Issue failed: %v", err)
	}

	result, err := issuer.Verify(context.Background(), raw)
	if err != nil {
		t.Fatalf("Verify failed: %v", err)
	}
	if result.OrderID != order.ID || result.Status != models.StatusPaid {
		t.Errorf("Result = %+v", result)
	}
	if !result.TotalAmount.Equal(order.TotalAmount) {
		t.Errorf("TotalAmount = %s, want %s", result.TotalAmount, order.TotalAmount)
	}
}

// A tampered embedded total must not survive verification: the result is
// always the ledger's stored amount.
func TestVerifyIgnoresTamperedTotal(t *testing.T) {
	order := sampleOrder()
	issuer := NewIssuer(&fakeLookup{orders: map[string]*models.Order{order.ID: order}})

	raw, err := issuer.Issue(order)
	if err != nil {
		t.Fatalf("Issue failed: %v", err)
	}

	data, err := base64.URLEncoding.DecodeString(raw)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	var payload map[string]interface{}
	if err := json.Unmarshal(data, &payload); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	payload["total_amount"] = "0.01"
	tampered, _ := json.Marshal(payload)

	result, err := issuer.Verify(context.Background(), base64.URLEncoding.EncodeToString(tampered))
	if err != nil {
		t.Fatalf("Verify failed: %v", err)
	}
	if !result.TotalAmount.Equal(order.TotalAmount) {
		t.Errorf("Verify returned tampered total %s, want ledger total %s",
			result.TotalAmount, order.TotalAmount)
	}
}

func TestVerifyRejectsMalformedPayloads(t *testing.T) {
	issuer := NewIssuer(&fakeLookup{orders: map[string]*models.Order{}})

	for _, raw := range []string{
		"not base64!!!",
		base64.URLEncoding.EncodeToString([]byte("not json")),
		base64.URLEncoding.EncodeToString([]byte(`{"items":[]}`)),
	} {
		if _, err := issuer.Verify(context.Background(), raw); !errors.Is(err, ErrInvalidPayload) {
			t.Errorf("Verify(%q) err = %v, want ErrInvalidPayload", raw, err)
		}
	}
}

func TestVerifyUnknownOrder(t *testing.T) {
	issuer := NewIssuer(&fakeLookup{orders: map[string]*models.Order{}})

	raw, err := issuer.Issue(sampleOrder())
	if err != nil {
		t.Fatalf("Issue failed: %v", err)
	}
	if _, err := issuer.Verify(context.Background(), raw); !errors.Is(err, ledger.ErrNotFound) {
		t.Errorf("Verify err = %v, want ErrNotFound", err)
	}
}
