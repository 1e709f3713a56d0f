package checkout

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"

	"github.com/jogardn/selfcheckout/internal/catalog"
	"github.com/jogardn/selfcheckout/internal/ledger"
	"github.com/jogardn/selfcheckout/pkg/models"
)

var ErrEmptyCart = errors.New("cart is empty")

type InvalidQuantityError struct {
	ProductID string
	Quantity  int
}

func (e *InvalidQuantityError) Error() string {
	return fmt.Sprintf("invalid quantity %d for product %s", e.Quantity, e.ProductID)
}

type ProductNotFoundError struct {
	ProductID string
}

func (e *ProductNotFoundError) Error() string {
	return fmt.Sprintf("product %s not found or inactive", e.ProductID)
}

// ProductSource is the slice of the catalog the engine reads.
type ProductSource interface {
	Get(ctx context.Context, id string) (*models.Product, error)
}

// OrderStore commits orders atomically: CreateOrder must insert the order,
// its lines, and decrement stock for every line all-or-nothing, failing
// with an InsufficientStockError when a concurrent checkout got there
// first.
type OrderStore interface {
	CreateOrder(ctx context.Context, order *models.Order) error
	SetQRCodeData(ctx context.Context, id, payload string) error
	FindByIdempotencyKey(ctx context.Context, customerID, key string) (*models.Order, error)
}

// PayloadIssuer derives the redemption payload from a committed order.
type PayloadIssuer interface {
	Issue(order *models.Order) (string, error)
}

// Publisher receives post-commit notifications. Failures are logged and
// never fail the checkout.
type Publisher interface {
	PublishOrderCreated(order *models.Order) error
}

type Broadcaster interface {
	Broadcast(messageType string, data interface{}, source string)
}

// Engine turns a client cart into a committed order with no oversell and
// an exact total. Validation failures leave no trace in either store.
type Engine struct {
	catalog   ProductSource
	orders    OrderStore
	issuer    PayloadIssuer
	publisher Publisher
	hub       Broadcaster
	logger    *logrus.Logger
}

func NewEngine(catalog ProductSource, orders OrderStore, issuer PayloadIssuer, logger *logrus.Logger) *Engine {
	return &Engine{catalog: catalog, orders: orders, issuer: issuer, logger: logger}
}

// SetPublisher wires an optional event producer.
func (e *Engine) SetPublisher(p Publisher) {
	e.publisher = p
}

// SetBroadcaster wires an optional live-feed hub.
func (e *Engine) SetBroadcaster(b Broadcaster) {
	e.hub = b
}

// Checkout commits a cart for a customer. The returned bool is true when
// an idempotency key matched a previous order and that order was returned
// instead of creating a new one.
func (e *Engine) Checkout(ctx context.Context, customerID string, cart []models.CartItem, paymentMethod, idempotencyKey string) (*models.Order, bool, error) {
	if len(cart) == 0 {
		return nil, false, ErrEmptyCart
	}
	for _, item := range cart {
		if item.Quantity <= 0 {
			return nil, false, &InvalidQuantityError{ProductID: item.ProductID, Quantity: item.Quantity}
		}
	}

	if idempotencyKey != "" {
		existing, err := e.orders.FindByIdempotencyKey(ctx, customerID, idempotencyKey)
		if err == nil {
			e.logger.WithFields(logrus.Fields{
				"order_id":        existing.ID,
				"idempotency_key": idempotencyKey,
			}).Info("Replaying order for idempotency key")
			return existing, true, nil
		}
		if !errors.Is(err, ledger.ErrNotFound) {
			return nil, false, err
		}
	}

	order, err := e.priceCart(ctx, customerID, cart)
	if err != nil {
		return nil, false, err
	}
	order.PaymentMethod = paymentMethod
	order.IdempotencyKey = idempotencyKey

	// The insufficiency pre-check in priceCart is advisory: the commit
	// re-checks inside the transaction and is the only check that counts.
	if err := e.orders.CreateOrder(ctx, order); err != nil {
		if errors.Is(err, ledger.ErrDuplicateKey) && idempotencyKey != "" {
			existing, ferr := e.orders.FindByIdempotencyKey(ctx, customerID, idempotencyKey)
			if ferr == nil {
				return existing, true, nil
			}
		}
		return nil, false, err
	}

	payload, err := e.issuer.Issue(order)
	if err != nil {
		// The order is committed; a payload failure degrades the response
		// rather than orphaning the sale.
		e.logger.WithError(err).WithField("order_id", order.ID).Error("Failed to issue redemption payload")
	} else {
		if err := e.orders.SetQRCodeData(ctx, order.ID, payload); err != nil {
			e.logger.WithError(err).WithField("order_id", order.ID).Error("Failed to persist redemption payload")
		} else {
			order.QRCodeData = payload
		}
	}

	e.notify(order)
	return order, false, nil
}

// priceCart resolves every cart line against the catalog, snapshots unit
// prices, and computes totals. Any missing, inactive, or understocked
// product fails the whole cart.
func (e *Engine) priceCart(ctx context.Context, customerID string, cart []models.CartItem) (*models.Order, error) {
	order := &models.Order{
		ID:          uuid.New().String(),
		CustomerID:  customerID,
		Status:      models.StatusPending,
		TotalAmount: decimal.Zero,
	}

	for _, item := range cart {
		product, err := e.catalog.Get(ctx, item.ProductID)
		if err != nil {
			if errors.Is(err, catalog.ErrNotFound) {
				return nil, &ProductNotFoundError{ProductID: item.ProductID}
			}
			return nil, err
		}
		if !product.Active {
			return nil, &ProductNotFoundError{ProductID: item.ProductID}
		}
		if product.StockQuantity < item.Quantity {
			return nil, &catalog.InsufficientStockError{
				ProductID: product.ID,
				Available: product.StockQuantity,
				Requested: item.Quantity,
			}
		}

		lineTotal := product.UnitPrice.Mul(decimal.NewFromInt(int64(item.Quantity)))
		order.Lines = append(order.Lines, models.OrderLine{
			OrderID:     order.ID,
			ProductID:   product.ID,
			ProductName: product.Name,
			Quantity:    item.Quantity,
			UnitPrice:   product.UnitPrice,
			LineTotal:   lineTotal,
		})
		order.TotalAmount = order.TotalAmount.Add(lineTotal)
	}
	return order, nil
}

func (e *Engine) notify(order *models.Order) {
	if e.publisher != nil {
		if err := e.publisher.PublishOrderCreated(order); err != nil {
			e.logger.WithError(err).WithField("order_id", order.ID).Error("Failed to publish order event")
		}
	}
	if e.hub != nil {
		e.hub.Broadcast("order_created", order, "checkout")
	}
}
