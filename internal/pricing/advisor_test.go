package pricing

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"

	"github.com/jogardn/selfcheckout/pkg/models"
)

func testLogger() *logrus.Logger {
	logger := logrus.New()
	logger.SetLevel(logrus.ErrorLevel)
	return logger
}

func writeArtifacts(t *testing.T, predictions, metrics string) (string, string) {
	t.Helper()
	dir := t.TempDir()
	predPath := filepath.Join(dir, "dynamic_pricing_results.csv")
	metricsPath := filepath.Join(dir, "model_metrics.json")
	if predictions != "" {
		if err := os.WriteFile(predPath, []byte(predictions), 0o644); err != nil {
			t.Fatal(err)
		}
	}
	if metrics != "" {
		if err := os.WriteFile(metricsPath, []byte(metrics), 0o644); err != nil {
			t.Fatal(err)
		}
	}
	return predPath, metricsPath
}

const sampleMetrics = `{
	"rmse": 0.42,
	"r2_score": 0.8,
	"mae": 0.3,
	"last_updated": "2026-08-01T00:00:00",
	"category_multipliers": {"Grocery": 1.1, "Beverages": 0.95}
}`

const samplePredictions = "Product_ID,Category,Predicted_Price\n" +
	"p1,Grocery,2.40\n" +
	"p1,Grocery,2.60\n" +
	"p2,Beverages,3.10\n"

func product(id, category, unitPrice string) *models.Product {
	p, _ := decimal.NewFromString(unitPrice)
	return &models.Product{ID: id, Name: id, Category: category, UnitPrice: p, Active: true}
}

func TestSuggestUsesModelPrediction(t *testing.T) {
	predPath, metricsPath := writeArtifacts(t, samplePredictions, sampleMetrics)
	advisor := NewFileAdvisor(predPath, metricsPath, testLogger())

	s, err := advisor.Suggest(context.Background(), product("p1", "Grocery", "2.00"))
	if err != nil {
		t.Fatalf("Suggest failed: %v", err)
	}

	// Two rows for p1 average to 2.50.
	if want, _ := decimal.NewFromString("2.50"); !s.SuggestedPrice.Equal(want) {
		t.Errorf("SuggestedPrice = %s, want 2.50", s.SuggestedPrice)
	}
	if s.Confidence != 0.8 {
		t.Errorf("Confidence = %v, want 0.8", s.Confidence)
	}
	if s.IsFallback {
		t.Error("Model-backed suggestion flagged as fallback")
	}
}

func TestSuggestFallsBackToCategoryMultiplier(t *testing.T) {
	predPath, metricsPath := writeArtifacts(t, samplePredictions, sampleMetrics)
	advisor := NewFileAdvisor(predPath, metricsPath, testLogger())

	s, err := advisor.Suggest(context.Background(), product("p9", "Grocery", "2.00"))
	if err != nil {
		t.Fatalf("Suggest failed: %v", err)
	}
	if want, _ := decimal.NewFromString("2.20"); !s.SuggestedPrice.Equal(want) {
		t.Errorf("SuggestedPrice = %s, want 2.20", s.SuggestedPrice)
	}
	if s.Confidence != 0.4 {
		t.Errorf("Confidence = %v, want 0.4 (r2 * penalty)", s.Confidence)
	}
	if !s.IsFallback {
		t.Error("Multiplier suggestion not flagged as fallback")
	}
}

func TestSuggestResolvesCategoryAliases(t *testing.T) {
	predPath, metricsPath := writeArtifacts(t, "", sampleMetrics)
	advisor := NewFileAdvisor(predPath, metricsPath, testLogger())

	// "Drinks" aliases to Beverages (0.95).
	s, err := advisor.Suggest(context.Background(), product("p9", "Drinks", "2.00"))
	if err != nil {
		t.Fatalf("Suggest failed: %v", err)
	}
	if want, _ := decimal.NewFromString("1.90"); !s.SuggestedPrice.Equal(want) {
		t.Errorf("SuggestedPrice = %s, want 1.90", s.SuggestedPrice)
	}

	// An unmapped category lands in the generic Grocery bucket.
	s, err = advisor.Suggest(context.Background(), product("p9", "Electronics", "2.00"))
	if err != nil {
		t.Fatalf("Suggest failed: %v", err)
	}
	if want, _ := decimal.NewFromString("2.20"); !s.SuggestedPrice.Equal(want) {
		t.Errorf("SuggestedPrice = %s, want 2.20 (Grocery bucket)", s.SuggestedPrice)
	}
}

// With no scorer artifacts at all the advisor returns the floor
// suggestion: current price back, low confidence, fallback flagged.
func TestSuggestFloorWhenNoArtifacts(t *testing.T) {
	dir := t.TempDir()
	advisor := NewFileAdvisor(filepath.Join(dir, "none.csv"), filepath.Join(dir, "none.json"), testLogger())

	s, err := advisor.Suggest(context.Background(), product("p1", "Unknown", "2.00"))
	if err != nil {
		t.Fatalf("Suggest failed: %v", err)
	}
	if !s.SuggestedPrice.Equal(s.CurrentPrice) {
		t.Errorf("SuggestedPrice = %s, want current price %s", s.SuggestedPrice, s.CurrentPrice)
	}
	if s.Confidence != 0.1 {
		t.Errorf("Confidence = %v, want 0.1", s.Confidence)
	}
	if !s.IsFallback {
		t.Error("Floor suggestion not flagged as fallback")
	}
}

func TestConfidenceIsClamped(t *testing.T) {
	metrics := `{"r2_score": 1.7, "category_multipliers": {"Grocery": 1.1}}`
	predPath, metricsPath := writeArtifacts(t, samplePredictions, metrics)
	advisor := NewFileAdvisor(predPath, metricsPath, testLogger())

	s, err := advisor.Suggest(context.Background(), product("p1", "Grocery", "2.00"))
	if err != nil {
		t.Fatalf("Suggest failed: %v", err)
	}
	if s.Confidence != 1.0 {
		t.Errorf("Confidence = %v, want clamped 1.0", s.Confidence)
	}
}

type fakeCatalog struct {
	products map[string]*models.Product
	updates  int
}

func (f *fakeCatalog) Get(_ context.Context, id string) (*models.Product, error) {
	p := *f.products[id]
	return &p, nil
}

func (f *fakeCatalog) Update(_ context.Context, id string, u models.ProductUpdate) (*models.Product, error) {
	if u.UnitPrice != nil {
		f.products[id].UnitPrice = *u.UnitPrice
	}
	f.updates++
	p := *f.products[id]
	return &p, nil
}

// Apply must re-derive from the price on file at apply time. Applying a
// multiplier twice therefore compounds through the catalog, not through a
// stale cached suggestion.
func TestApplyRederivesFromCurrentPrice(t *testing.T) {
	predPath, metricsPath := writeArtifacts(t, "", sampleMetrics)
	advisor := NewFileAdvisor(predPath, metricsPath, testLogger())

	cat := &fakeCatalog{products: map[string]*models.Product{
		"p9": product("p9", "Grocery", "2.00"),
	}}
	gateway := NewGateway(advisor, cat, testLogger())

	first, err := gateway.Apply(context.Background(), "p9")
	if err != nil {
		t.Fatalf("Apply failed: %v", err)
	}
	if want, _ := decimal.NewFromString("2.20"); !first.SuggestedPrice.Equal(want) {
		t.Errorf("First applied price = %s, want 2.20", first.SuggestedPrice)
	}

	second, err := gateway.Apply(context.Background(), "p9")
	if err != nil {
		t.Fatalf("Second apply failed: %v", err)
	}
	if want, _ := decimal.NewFromString("2.20"); !second.CurrentPrice.Equal(want) {
		t.Errorf("Second apply read current price %s, want refreshed 2.20", second.CurrentPrice)
	}
	if want, _ := decimal.NewFromString("2.42"); !second.SuggestedPrice.Equal(want) {
		t.Errorf("Second applied price = %s, want 2.42", second.SuggestedPrice)
	}
	if cat.updates != 2 {
		t.Errorf("Catalog updates = %d, want 2", cat.updates)
	}
}
