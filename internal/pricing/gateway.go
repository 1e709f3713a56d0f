package pricing

import (
	"context"
	"fmt"

	"github.com/sirupsen/logrus"

	"github.com/jogardn/selfcheckout/pkg/models"
)

// CatalogAccess is the slice of the catalog the gateway reads and writes.
type CatalogAccess interface {
	Get(ctx context.Context, id string) (*models.Product, error)
	Update(ctx context.Context, id string, u models.ProductUpdate) (*models.Product, error)
}

// Gateway glues an Advisor to the catalog for the admin endpoints.
type Gateway struct {
	advisor Advisor
	catalog CatalogAccess
	logger  *logrus.Logger
}

func NewGateway(advisor Advisor, catalog CatalogAccess, logger *logrus.Logger) *Gateway {
	return &Gateway{advisor: advisor, catalog: catalog, logger: logger}
}

func (g *Gateway) Suggest(ctx context.Context, productID string) (*Suggestion, error) {
	product, err := g.catalog.Get(ctx, productID)
	if err != nil {
		return nil, err
	}
	return g.advisor.Suggest(ctx, product)
}

// Apply re-fetches the product and re-derives the suggestion against the
// price on file right now, then writes it through. Reusing a previously
// returned suggestion would compound a multiplier on every call.
func (g *Gateway) Apply(ctx context.Context, productID string) (*Suggestion, error) {
	product, err := g.catalog.Get(ctx, productID)
	if err != nil {
		return nil, err
	}

	suggestion, err := g.advisor.Suggest(ctx, product)
	if err != nil {
		return nil, fmt.Errorf("failed to derive suggestion: %w", err)
	}

	if _, err := g.catalog.Update(ctx, productID, models.ProductUpdate{
		UnitPrice: &suggestion.SuggestedPrice,
	}); err != nil {
		return nil, err
	}

	g.logger.WithFields(logrus.Fields{
		"product_id":     productID,
		"previous_price": suggestion.CurrentPrice,
		"applied_price":  suggestion.SuggestedPrice,
		"confidence":     suggestion.Confidence,
		"fallback":       suggestion.IsFallback,
		"source":         suggestion.Source,
	}).Info("Pricing suggestion applied")
	return suggestion, nil
}
