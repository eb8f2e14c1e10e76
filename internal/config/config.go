package config

import (
	"fmt"
	"log"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/nikolayk812/storefront-checkout/internal/domain"
	"github.com/nikolayk812/storefront-checkout/internal/pricing"
	"github.com/shopspring/decimal"
	"golang.org/x/text/currency"
)

type Config struct {
	BackendURL     string
	APIToken       string
	RequestTimeout time.Duration

	Currency              currency.Unit
	FreeShippingThreshold domain.Money
	FlatShippingFee       domain.Money
	TaxRate               decimal.Decimal

	AddressCap       int
	PaymentDelay     time.Duration
	DeliveryEstimate time.Duration

	RedisAddr      string
	MongoURI       string
	MongoDB        string
	PostgresURL    string
	MigrationsPath string
	HTTPPort       string
	JWTSecret      string

	LogLevel       string
	LogDevelopment bool
}

// Load reads an optional .env file and then the process environment.
func Load() (Config, error) {
	if err := godotenv.Load(); err != nil {
		log.Println(".env not loaded:", err)
	}

	cur, err := currency.ParseISO(getEnvOrDefault("CURRENCY", "USD"))
	if err != nil {
		return Config{}, fmt.Errorf("CURRENCY: %w", err)
	}

	threshold, err := domain.ParseMoney(getEnvOrDefault("FREE_SHIPPING_THRESHOLD", "200.00"), cur)
	if err != nil {
		return Config{}, fmt.Errorf("FREE_SHIPPING_THRESHOLD: %w", err)
	}

	flatFee, err := domain.ParseMoney(getEnvOrDefault("FLAT_SHIPPING_FEE", "29.99"), cur)
	if err != nil {
		return Config{}, fmt.Errorf("FLAT_SHIPPING_FEE: %w", err)
	}

	taxRate, err := decimal.NewFromString(getEnvOrDefault("TAX_RATE", "0.08"))
	if err != nil {
		return Config{}, fmt.Errorf("TAX_RATE: %w", err)
	}
	if taxRate.IsNegative() {
		return Config{}, fmt.Errorf("TAX_RATE must not be negative")
	}

	return Config{
		BackendURL:     getEnvOrDefault("BACKEND_URL", "http://127.0.0.1:8000/api"),
		APIToken:       getEnvOrDefault("API_TOKEN", ""),
		RequestTimeout: getDurationEnv("REQUEST_TIMEOUT", 5, time.Second),

		Currency:              cur,
		FreeShippingThreshold: threshold,
		FlatShippingFee:       flatFee,
		TaxRate:               taxRate,

		AddressCap:       getIntEnv("ADDRESS_CAP", 3),
		PaymentDelay:     getDurationEnv("PAYMENT_DELAY", 3000, time.Millisecond),
		DeliveryEstimate: getDurationEnv("DELIVERY_ESTIMATE_DAYS", 7, 24*time.Hour),

		RedisAddr:      getEnvOrDefault("REDIS_ADDR", "localhost:6379"),
		MongoURI:       getEnvOrDefault("MONGO_URI", "mongodb://localhost:27017"),
		MongoDB:        getEnvOrDefault("MONGO_DB", "storefront"),
		PostgresURL:    getEnvOrDefault("POSTGRES_URL", ""),
		MigrationsPath: getEnvOrDefault("MIGRATIONS_PATH", "./internal/migrations"),
		HTTPPort:       getEnvOrDefault("HTTP_PORT", "8000"),
		JWTSecret:      getEnvOrDefault("JWT_SECRET", ""),

		LogLevel:       getEnvOrDefault("LOG_LEVEL", "info"),
		LogDevelopment: getEnvOrDefault("LOG_DEVELOPMENT", "false") == "true",
	}, nil
}

func (c Config) PricingRules() pricing.Rules {
	return pricing.Rules{
		Currency:              c.Currency,
		FreeShippingThreshold: c.FreeShippingThreshold,
		FlatShippingFee:       c.FlatShippingFee,
		TaxRate:               c.TaxRate,
	}
}

func getEnvOrDefault(key, defaultValue string) string {
	if value := strings.TrimSpace(os.Getenv(key)); value != "" {
		return value
	}
	return defaultValue
}

func getIntEnv(key string, defaultValue int) int {
	if value := strings.TrimSpace(os.Getenv(key)); value != "" {
		if parsed, err := strconv.Atoi(value); err == nil && parsed > 0 {
			return parsed
		}
	}
	return defaultValue
}

func getDurationEnv(key string, defaultValue int, unit time.Duration) time.Duration {
	if value := strings.TrimSpace(os.Getenv(key)); value != "" {
		if parsed, err := strconv.Atoi(value); err == nil && parsed > 0 {
			return time.Duration(parsed) * unit
		}
	}
	return time.Duration(defaultValue) * unit
}
