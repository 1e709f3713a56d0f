package httpapi

import (
	"net/http"

	"github.com/gorilla/mux"
)

func (h *Handler) GetPricingSuggestion(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]

	ctx, cancel := h.storeContext(r)
	defer cancel()
	suggestion, err := h.pricing.Suggest(ctx, id)
	if err != nil {
		respondWithStoreError(w, err)
		return
	}
	respondWithJSON(w, http.StatusOK, suggestion)
}

func (h *Handler) ApplyPricingSuggestion(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]

	ctx, cancel := h.storeContext(r)
	defer cancel()
	suggestion, err := h.pricing.Apply(ctx, id)
	if err != nil {
		h.logger.WithError(err).WithField("product_id", id).Error("Failed to apply pricing suggestion")
		respondWithStoreError(w, err)
		return
	}
	respondWithJSON(w, http.StatusOK, map[string]interface{}{
		"success":       true,
		"product_id":    suggestion.ProductID,
		"applied_price": suggestion.SuggestedPrice,
		"confidence":    suggestion.Confidence,
		"is_fallback":   suggestion.IsFallback,
	})
}
