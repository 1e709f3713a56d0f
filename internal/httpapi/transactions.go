package httpapi

import (
	"encoding/json"
	"net/http"

	"github.com/gorilla/mux"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"

	"github.com/jogardn/selfcheckout/pkg/models"
)

type createTransactionRequest struct {
	Items          []models.CartItem `json:"items"`
	PaymentMethod  string            `json:"payment_method"`
	IdempotencyKey string            `json:"idempotency_key"`
}

type transactionResponse struct {
	Success       bool               `json:"success"`
	TransactionID string             `json:"transaction_id"`
	TotalAmount   decimal.Decimal    `json:"total_amount"`
	Status        string             `json:"status"`
	Items         []models.OrderLine `json:"items"`
	QRCodeData    string             `json:"qr_code_data"`
	Replayed      bool               `json:"replayed,omitempty"`
}

func (h *Handler) CreateTransaction(w http.ResponseWriter, r *http.Request) {
	identity, _ := IdentityFromContext(r.Context())

	var req createTransactionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondWithError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	ctx, cancel := h.storeContext(r)
	defer cancel()
	order, replayed, err := h.engine.Checkout(ctx, identity.UserID, req.Items, req.PaymentMethod, req.IdempotencyKey)
	if err != nil {
		h.logger.WithError(err).WithField("customer_id", identity.UserID).Warn("Checkout rejected")
		respondWithStoreError(w, err)
		return
	}

	h.logger.WithFields(logrus.Fields{
		"order_id":     order.ID,
		"customer_id":  identity.UserID,
		"total_amount": order.TotalAmount,
		"item_count":   len(order.Lines),
		"replayed":     replayed,
	}).Info("Checkout completed")

	code := http.StatusCreated
	if replayed {
		code = http.StatusOK
	}
	respondWithJSON(w, code, transactionResponse{
		Success:       true,
		TransactionID: order.ID,
		TotalAmount:   order.TotalAmount,
		Status:        order.Status,
		Items:         order.Lines,
		QRCodeData:    order.QRCodeData,
		Replayed:      replayed,
	})
}

func (h *Handler) GetTransaction(w http.ResponseWriter, r *http.Request) {
	identity, _ := IdentityFromContext(r.Context())
	id := mux.Vars(r)["id"]

	ctx, cancel := h.storeContext(r)
	defer cancel()
	order, err := h.ledger.Get(ctx, id, identity.UserID)
	if err != nil {
		respondWithStoreError(w, err)
		return
	}
	respondWithJSON(w, http.StatusOK, order)
}

func (h *Handler) ListTransactions(w http.ResponseWriter, r *http.Request) {
	identity, _ := IdentityFromContext(r.Context())
	q := r.URL.Query()

	status := q.Get("status")
	if status != "" && !models.ValidStatus(status) {
		respondWithError(w, http.StatusBadRequest, "Unknown status filter")
		return
	}

	filter := models.OrderFilter{
		Status: status,
		Limit:  parseIntParam(q.Get("limit"), 20),
		Offset: parseIntParam(q.Get("offset"), 0),
	}

	ctx, cancel := h.storeContext(r)
	defer cancel()
	orders, err := h.ledger.List(ctx, identity.UserID, filter)
	if err != nil {
		h.logger.WithError(err).Error("Failed to list orders")
		respondWithStoreError(w, err)
		return
	}
	respondWithJSON(w, http.StatusOK, map[string]interface{}{
		"success":      true,
		"transactions": orders,
		"count":        len(orders),
	})
}

type statusUpdateRequest struct {
	Status string `json:"status"`
}

func (h *Handler) UpdateTransactionStatus(w http.ResponseWriter, r *http.Request) {
	identity, _ := IdentityFromContext(r.Context())
	id := mux.Vars(r)["id"]

	var req statusUpdateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondWithError(w, http.StatusBadRequest, "Invalid request body")
		return
	}
	if !models.ValidStatus(req.Status) {
		respondWithError(w, http.StatusBadRequest, "Unknown status")
		return
	}

	ctx, cancel := h.storeContext(r)
	defer cancel()
	order, err := h.ledger.SetStatus(ctx, id, identity.UserID, req.Status)
	if err != nil {
		respondWithStoreError(w, err)
		return
	}

	if h.publisher != nil {
		if err := h.publisher.PublishOrderStatus(order); err != nil {
			h.logger.WithError(err).WithField("order_id", order.ID).Error("Failed to publish status event")
		}
	}
	if h.hub != nil {
		h.hub.Broadcast("order_status", order, "api")
	}

	respondWithJSON(w, http.StatusOK, order)
}

type verifyQRRequest struct {
	QRData string `json:"qr_data"`
}

func (h *Handler) VerifyQR(w http.ResponseWriter, r *http.Request) {
	var req verifyQRRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondWithError(w, http.StatusBadRequest, "Invalid request body")
		return
	}
	if req.QRData == "" {
		respondWithError(w, http.StatusBadRequest, "qr_data is required")
		return
	}

	ctx, cancel := h.storeContext(r)
	defer cancel()
	result, err := h.verifier.Verify(ctx, req.QRData)
	if err != nil {
		respondWithStoreError(w, err)
		return
	}
	respondWithJSON(w, http.StatusOK, result)
}
