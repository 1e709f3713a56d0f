package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"github.com/jogardn/selfcheckout/internal/catalog"
	"github.com/jogardn/selfcheckout/internal/checkout"
	"github.com/jogardn/selfcheckout/internal/ledger"
	"github.com/jogardn/selfcheckout/internal/token"
)

func respondWithJSON(w http.ResponseWriter, code int, payload interface{}) {
	response, _ := json.Marshal(payload)
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	w.Write(response)
}

func respondWithError(w http.ResponseWriter, code int, message string) {
	respondWithJSON(w, code, map[string]interface{}{
		"success": false,
		"error":   message,
	})
}

// respondWithStoreError maps domain errors onto the HTTP taxonomy. No
// driver or SQL detail ever reaches the client.
func respondWithStoreError(w http.ResponseWriter, err error) {
	var insufficient *catalog.InsufficientStockError
	var notFound *checkout.ProductNotFoundError
	var badQty *checkout.InvalidQuantityError
	var badTransition *ledger.InvalidTransitionError

	switch {
	case errors.As(err, &insufficient):
		respondWithJSON(w, http.StatusBadRequest, map[string]interface{}{
			"success":    false,
			"error":      insufficient.Error(),
			"product_id": insufficient.ProductID,
			"available":  insufficient.Available,
			"requested":  insufficient.Requested,
		})
	case errors.As(err, &notFound):
		respondWithJSON(w, http.StatusBadRequest, map[string]interface{}{
			"success":    false,
			"error":      notFound.Error(),
			"product_id": notFound.ProductID,
		})
	case errors.As(err, &badQty):
		respondWithError(w, http.StatusBadRequest, badQty.Error())
	case errors.As(err, &badTransition):
		respondWithError(w, http.StatusBadRequest, badTransition.Error())
	case errors.Is(err, checkout.ErrEmptyCart):
		respondWithError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, token.ErrInvalidPayload):
		respondWithError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, catalog.ErrDuplicateBarcode):
		respondWithError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, catalog.ErrNotFound), errors.Is(err, ledger.ErrNotFound):
		respondWithError(w, http.StatusNotFound, "Not found")
	case errors.Is(err, context.DeadlineExceeded):
		respondWithJSON(w, http.StatusServiceUnavailable, map[string]interface{}{
			"success":   false,
			"error":     "Store temporarily unavailable",
			"retryable": true,
		})
	default:
		respondWithError(w, http.StatusInternalServerError, "Internal error")
	}
}
