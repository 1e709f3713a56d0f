package httpapi

import (
	"context"
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"github.com/gorilla/mux"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"

	"github.com/jogardn/selfcheckout/internal/pricing"
	"github.com/jogardn/selfcheckout/internal/token"
	"github.com/jogardn/selfcheckout/pkg/models"
)

type CatalogStore interface {
	Get(ctx context.Context, id string) (*models.Product, error)
	GetByBarcode(ctx context.Context, barcode string) (*models.Product, error)
	List(ctx context.Context, filter models.ProductFilter) ([]*models.Product, error)
	Create(ctx context.Context, p *models.Product) error
	Update(ctx context.Context, id string, u models.ProductUpdate) (*models.Product, error)
	Deactivate(ctx context.Context, id string) error
	AdjustStock(ctx context.Context, id string, qty int) (*models.Product, error)
}

type LedgerStore interface {
	Get(ctx context.Context, id, customerID string) (*models.Order, error)
	List(ctx context.Context, customerID string, filter models.OrderFilter) ([]*models.Order, error)
	SetStatus(ctx context.Context, id, customerID, newStatus string) (*models.Order, error)
}

type CheckoutEngine interface {
	Checkout(ctx context.Context, customerID string, cart []models.CartItem, paymentMethod, idempotencyKey string) (*models.Order, bool, error)
}

type QRVerifier interface {
	Verify(ctx context.Context, raw string) (*token.VerificationResult, error)
}

type PricingGateway interface {
	Suggest(ctx context.Context, productID string) (*pricing.Suggestion, error)
	Apply(ctx context.Context, productID string) (*pricing.Suggestion, error)
}

type StatusPublisher interface {
	PublishOrderStatus(order *models.Order) error
}

type Broadcaster interface {
	Broadcast(messageType string, data interface{}, source string)
}

type Handler struct {
	catalog      CatalogStore
	ledger       LedgerStore
	engine       CheckoutEngine
	verifier     QRVerifier
	pricing      PricingGateway
	publisher    StatusPublisher
	hub          Broadcaster
	storeTimeout time.Duration
	logger       *logrus.Logger
}

func NewHandler(catalog CatalogStore, ledger LedgerStore, engine CheckoutEngine, verifier QRVerifier, gateway PricingGateway, storeTimeout time.Duration, logger *logrus.Logger) *Handler {
	if storeTimeout <= 0 {
		storeTimeout = 5 * time.Second
	}
	return &Handler{
		catalog:      catalog,
		ledger:       ledger,
		engine:       engine,
		verifier:     verifier,
		pricing:      gateway,
		storeTimeout: storeTimeout,
		logger:       logger,
	}
}

func (h *Handler) SetStatusPublisher(p StatusPublisher) {
	h.publisher = p
}

func (h *Handler) SetBroadcaster(b Broadcaster) {
	h.hub = b
}

// storeContext bounds every store call so a wedged connection surfaces as
// a retryable failure instead of hanging the request.
func (h *Handler) storeContext(r *http.Request) (context.Context, context.CancelFunc) {
	return context.WithTimeout(r.Context(), h.storeTimeout)
}

type createProductRequest struct {
	Name          string          `json:"name"`
	Description   string          `json:"description"`
	Price         decimal.Decimal `json:"price"`
	Barcode       string          `json:"barcode"`
	Category      string          `json:"category"`
	StockQuantity int             `json:"stock_quantity"`
	ImageURL      string          `json:"image_url"`
}

func (h *Handler) CreateProduct(w http.ResponseWriter, r *http.Request) {
	var req createProductRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondWithError(w, http.StatusBadRequest, "Invalid request body")
		return
	}
	if req.Name == "" || req.Barcode == "" {
		respondWithError(w, http.StatusBadRequest, "name and barcode are required")
		return
	}
	if !req.Price.IsPositive() {
		respondWithError(w, http.StatusBadRequest, "price must be positive")
		return
	}
	if req.StockQuantity < 0 {
		respondWithError(w, http.StatusBadRequest, "stock_quantity must not be negative")
		return
	}

	product := &models.Product{
		Name:          req.Name,
		Description:   req.Description,
		UnitPrice:     req.Price,
		Barcode:       req.Barcode,
		Category:      req.Category,
		StockQuantity: req.StockQuantity,
		ImageURL:      req.ImageURL,
	}

	ctx, cancel := h.storeContext(r)
	defer cancel()
	if err := h.catalog.Create(ctx, product); err != nil {
		h.logger.WithError(err).Warn("Failed to create product")
		respondWithStoreError(w, err)
		return
	}
	respondWithJSON(w, http.StatusCreated, product)
}

func (h *Handler) GetProduct(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]

	ctx, cancel := h.storeContext(r)
	defer cancel()
	product, err := h.catalog.Get(ctx, id)
	if err != nil {
		respondWithStoreError(w, err)
		return
	}
	respondWithJSON(w, http.StatusOK, product)
}

func (h *Handler) GetProductByBarcode(w http.ResponseWriter, r *http.Request) {
	code := mux.Vars(r)["code"]

	ctx, cancel := h.storeContext(r)
	defer cancel()
	product, err := h.catalog.GetByBarcode(ctx, code)
	if err != nil {
		respondWithStoreError(w, err)
		return
	}
	respondWithJSON(w, http.StatusOK, product)
}

func (h *Handler) ListProducts(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	filter := models.ProductFilter{
		Category:   q.Get("category"),
		Search:     q.Get("search"),
		ActiveOnly: q.Get("include_inactive") != "true",
		Limit:      parseIntParam(q.Get("limit"), 50),
		Offset:     parseIntParam(q.Get("offset"), 0),
	}

	ctx, cancel := h.storeContext(r)
	defer cancel()
	products, err := h.catalog.List(ctx, filter)
	if err != nil {
		h.logger.WithError(err).Error("Failed to list products")
		respondWithStoreError(w, err)
		return
	}
	respondWithJSON(w, http.StatusOK, map[string]interface{}{
		"success":  true,
		"products": products,
		"count":    len(products),
	})
}

func (h *Handler) UpdateProduct(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]

	var update models.ProductUpdate
	if err := json.NewDecoder(r.Body).Decode(&update); err != nil {
		respondWithError(w, http.StatusBadRequest, "Invalid request body")
		return
	}
	if update.UnitPrice != nil && !update.UnitPrice.IsPositive() {
		respondWithError(w, http.StatusBadRequest, "price must be positive")
		return
	}
	if update.StockQuantity != nil && *update.StockQuantity < 0 {
		respondWithError(w, http.StatusBadRequest, "stock_quantity must not be negative")
		return
	}

	ctx, cancel := h.storeContext(r)
	defer cancel()
	product, err := h.catalog.Update(ctx, id, update)
	if err != nil {
		respondWithStoreError(w, err)
		return
	}
	respondWithJSON(w, http.StatusOK, product)
}

func (h *Handler) DeleteProduct(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]

	ctx, cancel := h.storeContext(r)
	defer cancel()
	if err := h.catalog.Deactivate(ctx, id); err != nil {
		respondWithStoreError(w, err)
		return
	}
	respondWithJSON(w, http.StatusOK, map[string]interface{}{
		"success": true,
		"message": "Product deactivated",
	})
}

type restockRequest struct {
	Quantity int `json:"quantity"`
}

func (h *Handler) RestockProduct(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]

	var req restockRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondWithError(w, http.StatusBadRequest, "Invalid request body")
		return
	}
	if req.Quantity == 0 {
		respondWithError(w, http.StatusBadRequest, "quantity must not be zero")
		return
	}

	ctx, cancel := h.storeContext(r)
	defer cancel()
	product, err := h.catalog.AdjustStock(ctx, id, req.Quantity)
	if err != nil {
		respondWithStoreError(w, err)
		return
	}
	respondWithJSON(w, http.StatusOK, product)
}

func (h *Handler) HealthCheck(w http.ResponseWriter, r *http.Request) {
	respondWithJSON(w, http.StatusOK, map[string]string{
		"status":  "healthy",
		"service": "checkout-service",
	})
}

func parseIntParam(raw string, fallback int) int {
	if raw == "" {
		return fallback
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n < 0 {
		return fallback
	}
	return n
}
