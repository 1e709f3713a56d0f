// Package pricing is the advisor gateway: it maps the external scorer's
// precomputed output into price suggestions, with a deterministic
// category-multiplier fallback when no per-product prediction exists.
package pricing

import (
	"context"
	"encoding/csv"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"sync"

	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"

	"github.com/jogardn/selfcheckout/pkg/models"
)

const (
	// fallbackPenalty discounts confidence when a suggestion comes from
	// the category multiplier table rather than a per-product prediction.
	fallbackPenalty = 0.5
	// floorConfidence is reported when neither a prediction nor a
	// multiplier is available.
	floorConfidence = 0.1

	defaultCategoryBucket = "Grocery"
)

// categoryAliases maps catalog categories onto the buckets the scorer
// was trained on. Anything unmapped falls into the generic bucket.
var categoryAliases = map[string]string{
	"Snacks":      "Grocery",
	"Drinks":      "Beverages",
	"Soft Drinks": "Beverages",
	"Produce":     "Fruits",
	"Household":   "Home Goods",
}

type Suggestion struct {
	ProductID      string          `json:"product_id"`
	CurrentPrice   decimal.Decimal `json:"current_price"`
	SuggestedPrice decimal.Decimal `json:"suggested_price"`
	Confidence     float64         `json:"confidence"`
	IsFallback     bool            `json:"is_fallback"`
	Source         string          `json:"source"`
}

// Advisor produces a suggestion for a product. Implementations may be
// batch-precomputed files, a live model server, or a rule table; callers
// never depend on which.
type Advisor interface {
	Suggest(ctx context.Context, product *models.Product) (*Suggestion, error)
}

// modelMetrics mirrors the scorer's model_metrics.json.
type modelMetrics struct {
	RMSE                float64            `json:"rmse"`
	R2Score             float64            `json:"r2_score"`
	MAE                 float64            `json:"mae"`
	LastUpdated         string             `json:"last_updated"`
	CategoryMultipliers map[string]float64 `json:"category_multipliers"`
}

// FileAdvisor serves suggestions from the scorer's precomputed artifacts:
// a predictions CSV (Product_ID, Predicted_Price columns) and a metrics
// JSON. Missing files are not an error; the advisor degrades to the
// multiplier fallback or the floor suggestion.
type FileAdvisor struct {
	predictionsPath string
	metricsPath     string
	logger          *logrus.Logger

	mu          sync.RWMutex
	predictions map[string]decimal.Decimal
	metrics     *modelMetrics
}

func NewFileAdvisor(predictionsPath, metricsPath string, logger *logrus.Logger) *FileAdvisor {
	a := &FileAdvisor{
		predictionsPath: predictionsPath,
		metricsPath:     metricsPath,
		logger:          logger,
		predictions:     map[string]decimal.Decimal{},
	}
	a.Reload()
	return a
}

// Reload re-reads the scorer artifacts. Called at construction and after
// a refresh run; parse failures keep the previous data and log.
func (a *FileAdvisor) Reload() {
	predictions, err := loadPredictions(a.predictionsPath)
	if err != nil {
		a.logger.WithError(err).WithField("path", a.predictionsPath).
			Warn("Pricing predictions unavailable, falling back to multipliers")
	}

	metrics, err := loadMetrics(a.metricsPath)
	if err != nil {
		a.logger.WithError(err).WithField("path", a.metricsPath).
			Warn("Pricing model metrics unavailable")
	}

	a.mu.Lock()
	defer a.mu.Unlock()
	if predictions != nil {
		a.predictions = predictions
	}
	if metrics != nil {
		a.metrics = metrics
	}
}

func (a *FileAdvisor) Suggest(_ context.Context, product *models.Product) (*Suggestion, error) {
	a.mu.RLock()
	defer a.mu.RUnlock()

	s := &Suggestion{
		ProductID:    product.ID,
		CurrentPrice: product.UnitPrice,
	}

	if predicted, ok := a.predictions[product.ID]; ok && a.metrics != nil {
		s.SuggestedPrice = predicted.Round(2)
		s.Confidence = clampConfidence(a.metrics.R2Score)
		s.IsFallback = false
		s.Source = "model"
		return s, nil
	}

	if a.metrics != nil {
		bucket := product.Category
		if _, ok := a.metrics.CategoryMultipliers[bucket]; !ok {
			if alias, ok := categoryAliases[bucket]; ok {
				bucket = alias
			} else {
				bucket = defaultCategoryBucket
			}
		}
		if mult, ok := a.metrics.CategoryMultipliers[bucket]; ok {
			s.SuggestedPrice = product.UnitPrice.Mul(decimal.NewFromFloat(mult)).Round(2)
			s.Confidence = clampConfidence(a.metrics.R2Score * fallbackPenalty)
			s.IsFallback = true
			s.Source = "category_multiplier"
			return s, nil
		}
	}

	s.SuggestedPrice = product.UnitPrice
	s.Confidence = floorConfidence
	s.IsFallback = true
	s.Source = "none"
	return s, nil
}

func clampConfidence(c float64) float64 {
	if c < 0 {
		return 0
	}
	if c > 1 {
		return 1
	}
	return c
}

// loadPredictions averages Predicted_Price per product: the scorer emits
// one row per historical sale, not per product.
func loadPredictions(path string) (map[string]decimal.Decimal, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	r := csv.NewReader(f)
	header, err := r.Read()
	if err != nil {
		return nil, fmt.Errorf("failed to read predictions header: %w", err)
	}

	idCol, priceCol := -1, -1
	for i, name := range header {
		switch name {
		case "Product_ID":
			idCol = i
		case "Predicted_Price":
			priceCol = i
		}
	}
	if idCol < 0 || priceCol < 0 {
		return nil, fmt.Errorf("predictions file missing Product_ID/Predicted_Price columns")
	}

	sums := map[string]decimal.Decimal{}
	counts := map[string]int64{}
	for {
		record, err := r.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("failed to read predictions row: %w", err)
		}
		price, err := decimal.NewFromString(record[priceCol])
		if err != nil {
			continue
		}
		id := record[idCol]
		sums[id] = sums[id].Add(price)
		counts[id]++
	}

	predictions := make(map[string]decimal.Decimal, len(sums))
	for id, sum := range sums {
		predictions[id] = sum.Div(decimal.NewFromInt(counts[id]))
	}
	return predictions, nil
}

func loadMetrics(path string) (*modelMetrics, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var m modelMetrics
	if err := json.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("failed to parse model metrics: %w", err)
	}
	return &m, nil
}
