package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config is read once at boot and handed to each component at
// construction. Nothing reads the environment after that.
type Config struct {
	ServerPort string `mapstructure:"SERVER_PORT"`

	DBHost     string `mapstructure:"DB_HOST"`
	DBPort     string `mapstructure:"DB_PORT"`
	DBUser     string `mapstructure:"DB_USER"`
	DBPassword string `mapstructure:"DB_PASSWORD"`
	DBName     string `mapstructure:"DB_NAME"`
	DBSSLMode  string `mapstructure:"DB_SSLMODE"`

	// Empty brokers disables event publishing entirely.
	KafkaBrokers string `mapstructure:"KAFKA_BROKERS"`

	TokenSecret string `mapstructure:"TOKEN_SECRET"`

	// Pricing scorer artifacts and invocation.
	PricingPredictionsPath string        `mapstructure:"PRICING_PREDICTIONS_PATH"`
	PricingMetricsPath     string        `mapstructure:"PRICING_METRICS_PATH"`
	PricingScorerCommand   string        `mapstructure:"PRICING_SCORER_COMMAND"`
	PricingScorerTimeout   time.Duration `mapstructure:"PRICING_SCORER_TIMEOUT"`

	StoreTimeout time.Duration `mapstructure:"STORE_TIMEOUT"`
	LogLevel     string        `mapstructure:"LOG_LEVEL"`
}

func Load() (*Config, error) {
	v := viper.New()

	v.SetDefault("SERVER_PORT", "8080")
	v.SetDefault("DB_HOST", "localhost")
	v.SetDefault("DB_PORT", "5432")
	v.SetDefault("DB_USER", "checkout")
	v.SetDefault("DB_PASSWORD", "checkout")
	v.SetDefault("DB_NAME", "checkout")
	v.SetDefault("DB_SSLMODE", "disable")
	v.SetDefault("KAFKA_BROKERS", "")
	v.SetDefault("TOKEN_SECRET", "")
	v.SetDefault("PRICING_PREDICTIONS_PATH", "analytics/dynamic_pricing_results.csv")
	v.SetDefault("PRICING_METRICS_PATH", "analytics/model_metrics.json")
	v.SetDefault("PRICING_SCORER_COMMAND", "")
	v.SetDefault("PRICING_SCORER_TIMEOUT", 2*time.Minute)
	v.SetDefault("STORE_TIMEOUT", 5*time.Second)
	v.SetDefault("LOG_LEVEL", "info")

	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}
	if cfg.TokenSecret == "" {
		return nil, fmt.Errorf("TOKEN_SECRET must be set")
	}
	return &cfg, nil
}

func (c *Config) DSN() string {
	return fmt.Sprintf("host=%s port=%s user=%s password=%s dbname=%s sslmode=%s",
		c.DBHost, c.DBPort, c.DBUser, c.DBPassword, c.DBName, c.DBSSLMode)
}
