// pricing-refresh runs the external pricing scorer once and exits. It is
// meant for cron or a manual admin invocation; the API server only ever
// reads the files this run regenerates.
package main

import (
	"context"
	"os"

	"github.com/sirupsen/logrus"

	"github.com/jogardn/selfcheckout/internal/config"
	"github.com/jogardn/selfcheckout/internal/pricing"
)

func main() {
	logger := logrus.New()
	logger.SetFormatter(&logrus.JSONFormatter{})

	cfg, err := config.Load()
	if err != nil {
		logger.WithError(err).Fatal("Failed to load configuration")
	}
	if cfg.PricingScorerCommand == "" {
		logger.Fatal("PRICING_SCORER_COMMAND must be set")
	}

	advisor := pricing.NewFileAdvisor(cfg.PricingPredictionsPath, cfg.PricingMetricsPath, logger)
	runner := pricing.NewRunner(cfg.PricingScorerCommand, cfg.PricingScorerTimeout, advisor, logger)

	if err := runner.Refresh(context.Background()); err != nil {
		logger.WithError(err).Error("Scorer refresh failed")
		os.Exit(1)
	}
	logger.Info("Pricing artifacts refreshed")
}
