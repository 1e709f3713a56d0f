package httpapi

import (
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"github.com/sirupsen/logrus"
)

// NewRouter wires the §-by-§ API surface. Paths are stable; mobile
// clients hard-code them.
func NewRouter(h *Handler, auth *Authenticator, wsHandler http.HandlerFunc, logger *logrus.Logger) *mux.Router {
	router := mux.NewRouter()
	router.Use(loggingMiddleware(logger))

	router.HandleFunc("/health", h.HealthCheck).Methods("GET")

	admin := func(fn http.HandlerFunc) http.Handler { return auth.RequireAdmin(fn) }
	user := func(fn http.HandlerFunc) http.Handler { return auth.RequireAuth(fn) }

	router.Handle("/products", admin(h.CreateProduct)).Methods("POST")
	router.Handle("/products", user(h.ListProducts)).Methods("GET")
	router.Handle("/products/barcode/{code}", user(h.GetProductByBarcode)).Methods("GET")
	router.Handle("/products/{id}", user(h.GetProduct)).Methods("GET")
	router.Handle("/products/{id}", admin(h.UpdateProduct)).Methods("PUT")
	router.Handle("/products/{id}", admin(h.DeleteProduct)).Methods("DELETE")
	router.Handle("/products/{id}/stock", admin(h.RestockProduct)).Methods("POST")
	router.Handle("/products/{id}/pricing-suggestion", admin(h.GetPricingSuggestion)).Methods("GET")
	router.Handle("/products/{id}/apply-pricing", admin(h.ApplyPricingSuggestion)).Methods("POST")

	router.Handle("/transactions", user(h.CreateTransaction)).Methods("POST")
	router.Handle("/transactions", user(h.ListTransactions)).Methods("GET")
	router.Handle("/transactions/verify-qr", user(h.VerifyQR)).Methods("POST")
	router.Handle("/transactions/{id}", user(h.GetTransaction)).Methods("GET")
	router.Handle("/transactions/{id}/status", user(h.UpdateTransactionStatus)).Methods("PATCH")

	if wsHandler != nil {
		router.Handle("/ws", user(wsHandler)).Methods("GET")
	}

	return router
}

func loggingMiddleware(logger *logrus.Logger) mux.MiddlewareFunc {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()

			next.ServeHTTP(w, r)

			logger.WithFields(logrus.Fields{
				"method":   r.Method,
				"path":     r.URL.Path,
				"duration": time.Since(start).String(),
			}).Info("Request handled")
		})
	}
}
