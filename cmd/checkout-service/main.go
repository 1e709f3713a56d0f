package main

import (
	"context"
	"database/sql"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	_ "github.com/lib/pq"
	"github.com/sirupsen/logrus"

	"github.com/jogardn/selfcheckout/internal/catalog"
	"github.com/jogardn/selfcheckout/internal/checkout"
	"github.com/jogardn/selfcheckout/internal/config"
	"github.com/jogardn/selfcheckout/internal/events"
	"github.com/jogardn/selfcheckout/internal/httpapi"
	"github.com/jogardn/selfcheckout/internal/ledger"
	"github.com/jogardn/selfcheckout/internal/pricing"
	"github.com/jogardn/selfcheckout/internal/token"
	"github.com/jogardn/selfcheckout/internal/ws"
)

func main() {
	logger := logrus.New()
	logger.SetFormatter(&logrus.JSONFormatter{})

	cfg, err := config.Load()
	if err != nil {
		logger.WithError(err).Fatal("Failed to load configuration")
	}
	if level, err := logrus.ParseLevel(cfg.LogLevel); err == nil {
		logger.SetLevel(level)
	}

	db, err := sql.Open("postgres", cfg.DSN())
	if err != nil {
		logger.WithError(err).Fatal("Failed to connect to database")
	}
	defer db.Close()

	for i := 0; i < 30; i++ {
		if err := db.Ping(); err == nil {
			logger.Info("Database connection established")
			break
		}
		logger.Info("Waiting for database...")
		time.Sleep(2 * time.Second)
	}

	if err := createTables(db); err != nil {
		logger.WithError(err).Fatal("Failed to create tables")
	}

	catalogStore := catalog.NewStore(db, logger)
	ledgerStore := ledger.NewStore(db, logger)
	issuer := token.NewIssuer(ledgerStore)

	engine := checkout.NewEngine(catalogStore, ledgerStore, issuer, logger)

	advisor := pricing.NewFileAdvisor(cfg.PricingPredictionsPath, cfg.PricingMetricsPath, logger)
	gateway := pricing.NewGateway(advisor, catalogStore, logger)

	handler := httpapi.NewHandler(catalogStore, ledgerStore, engine, issuer, gateway, cfg.StoreTimeout, logger)

	hub := ws.NewHub(logger)
	go hub.Run()
	engine.SetBroadcaster(hub)
	handler.SetBroadcaster(hub)

	if cfg.KafkaBrokers != "" {
		producer, err := events.NewKafkaProducer(cfg.KafkaBrokers, logger)
		if err != nil {
			logger.WithError(err).Fatal("Failed to create Kafka producer")
		}
		defer producer.Close()
		engine.SetPublisher(producer)
		handler.SetStatusPublisher(producer)
	} else {
		logger.Info("Kafka brokers not configured, event publishing disabled")
	}

	auth := httpapi.NewAuthenticator(cfg.TokenSecret, logger)
	router := httpapi.NewRouter(handler, auth, hub.HandleWebSocket, logger)

	srv := &http.Server{
		Addr:         ":" + cfg.ServerPort,
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		logger.WithField("port", cfg.ServerPort).Info("Starting checkout service")
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.WithError(err).Fatal("Failed to start server")
		}
	}()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	<-sigChan

	logger.Info("Shutting down server...")
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		logger.WithError(err).Error("Server forced to shutdown")
	}

	logger.Info("Server gracefully stopped")
}

func createTables(db *sql.DB) error {
	queries := []string{
		`CREATE TABLE IF NOT EXISTS products (
			id TEXT PRIMARY KEY,
			name TEXT NOT NULL,
			description TEXT NOT NULL DEFAULT '',
			unit_price DECIMAL(10,2) NOT NULL,
			barcode TEXT NOT NULL UNIQUE,
			category TEXT NOT NULL DEFAULT '',
			stock_quantity INTEGER NOT NULL DEFAULT 0 CHECK (stock_quantity >= 0),
			image_url TEXT NOT NULL DEFAULT '',
			active BOOLEAN NOT NULL DEFAULT true,
			created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
			updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
		)`,
		`CREATE TABLE IF NOT EXISTS orders (
			id TEXT PRIMARY KEY,
			customer_id TEXT NOT NULL,
			total_amount DECIMAL(10,2) NOT NULL,
			status TEXT NOT NULL DEFAULT 'pending',
			payment_method TEXT,
			idempotency_key TEXT,
			qr_code_data TEXT,
			created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
			updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
			UNIQUE (customer_id, idempotency_key)
		)`,
		`CREATE TABLE IF NOT EXISTS order_lines (
			order_id TEXT NOT NULL REFERENCES orders(id),
			product_id TEXT NOT NULL REFERENCES products(id),
			product_name TEXT NOT NULL,
			quantity INTEGER NOT NULL CHECK (quantity > 0),
			unit_price DECIMAL(10,2) NOT NULL,
			line_total DECIMAL(10,2) NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_orders_customer ON orders(customer_id, created_at DESC)`,
		`CREATE INDEX IF NOT EXISTS idx_order_lines_order ON order_lines(order_id)`,
	}

	for _, query := range queries {
		if _, err := db.Exec(query); err != nil {
			return err
		}
	}
	return nil
}
