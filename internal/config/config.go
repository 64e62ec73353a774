package config

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config holds all configuration values.
type Config struct {
	AppPort  string `mapstructure:"APP_PORT"`
	Env      string `mapstructure:"ENV"`
	RunLocal bool   `mapstructure:"RUN_LOCAL"`
	// CORSAllowOrigins is a comma separated origin list; "*" allows any origin.
	CORSAllowOrigins string `mapstructure:"CORS_ALLOW_ORIGINS"`

	// Storage.
	StoreBackend      string `mapstructure:"STORE_BACKEND"`
	PaymentsTable     string `mapstructure:"PAYMENTS_TABLE"`
	IdempotencyTable  string `mapstructure:"IDEMPOTENCY_TABLE"`
	CouponsTable      string `mapstructure:"COUPONS_TABLE"`
	UserBookingsTable string `mapstructure:"USER_BOOKINGS_TABLE"`
	MongoURL          string `mapstructure:"MONGO_URL"`
	MongoDatabase     string `mapstructure:"MONGO_DATABASE"`

	// Messaging and metrics.
	EventsQueueURL   string `mapstructure:"EVENTS_QUEUE_URL"`
	MetricsNamespace string `mapstructure:"METRICS_NAMESPACE"`

	// Rate limiting.
	RateLimitBackend      string `mapstructure:"RATE_LIMIT_BACKEND"`
	CouponRateLimitPerMin int    `mapstructure:"COUPON_RATE_LIMIT_PER_MIN"`
	RateLimitSweepEvery   int    `mapstructure:"RATE_LIMIT_SWEEP_EVERY"`
	RedisAddr             string `mapstructure:"REDIS_ADDR"`
	RedisPassword         string `mapstructure:"REDIS_PASSWORD"`
	RedisDB               int    `mapstructure:"REDIS_DB"`

	// Payments and pricing.
	RateTokenSecret string  `mapstructure:"RATE_TOKEN_SECRET"`
	IdramRecAccount string  `mapstructure:"IDRAM_REC_ACCOUNT"`
	IdramSecretKey  string  `mapstructure:"IDRAM_SECRET_KEY"`
	IdramPaymentURL string  `mapstructure:"IDRAM_PAYMENT_URL"`
	AmountEpsilon   float64 `mapstructure:"AMOUNT_EPSILON"`
	// CurrencyEpsilon is a comma separated CUR=tolerance list, e.g. "AMD=1,JPY=1".
	CurrencyEpsilon string        `mapstructure:"CURRENCY_EPSILON"`
	HotelMarkup     float64       `mapstructure:"HOTEL_MARKUP"`
	IdempotencyTTL  time.Duration `mapstructure:"IDEMPOTENCY_TTL"`

	// Supplier.
	SupplierBaseURL string        `mapstructure:"SUPPLIER_BASE_URL"`
	SupplierAPIKey  string        `mapstructure:"SUPPLIER_API_KEY"`
	SupplierTimeout time.Duration `mapstructure:"SUPPLIER_TIMEOUT"`
}

var keys = []string{
	"APP_PORT", "ENV", "RUN_LOCAL", "CORS_ALLOW_ORIGINS",
	"STORE_BACKEND", "PAYMENTS_TABLE", "IDEMPOTENCY_TABLE", "COUPONS_TABLE", "USER_BOOKINGS_TABLE",
	"MONGO_URL", "MONGO_DATABASE",
	"EVENTS_QUEUE_URL", "METRICS_NAMESPACE",
	"RATE_LIMIT_BACKEND", "COUPON_RATE_LIMIT_PER_MIN", "RATE_LIMIT_SWEEP_EVERY",
	"REDIS_ADDR", "REDIS_PASSWORD", "REDIS_DB",
	"RATE_TOKEN_SECRET", "IDRAM_REC_ACCOUNT", "IDRAM_SECRET_KEY", "IDRAM_PAYMENT_URL",
	"AMOUNT_EPSILON", "CURRENCY_EPSILON", "HOTEL_MARKUP", "IDEMPOTENCY_TTL",
	"SUPPLIER_BASE_URL", "SUPPLIER_API_KEY", "SUPPLIER_TIMEOUT",
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("APP_PORT", "8080")
	v.SetDefault("ENV", "development")
	v.SetDefault("RUN_LOCAL", false)
	v.SetDefault("CORS_ALLOW_ORIGINS", "*")
	v.SetDefault("STORE_BACKEND", "dynamodb")
	v.SetDefault("PAYMENTS_TABLE", "pending_payments")
	v.SetDefault("IDEMPOTENCY_TABLE", "idempotency")
	v.SetDefault("COUPONS_TABLE", "coupons")
	v.SetDefault("USER_BOOKINGS_TABLE", "user_bookings")
	v.SetDefault("MONGO_URL", "mongodb://localhost:27017")
	v.SetDefault("MONGO_DATABASE", "hotel_payments")
	v.SetDefault("METRICS_NAMESPACE", "HotelPaymentFlow")
	v.SetDefault("RATE_LIMIT_BACKEND", "memory")
	v.SetDefault("COUPON_RATE_LIMIT_PER_MIN", 10)
	v.SetDefault("RATE_LIMIT_SWEEP_EVERY", 100)
	v.SetDefault("REDIS_ADDR", "localhost:6379")
	v.SetDefault("REDIS_PASSWORD", "")
	v.SetDefault("REDIS_DB", 0)
	v.SetDefault("IDRAM_PAYMENT_URL", "https://banking.idram.am/Payment/GetPayment")
	v.SetDefault("AMOUNT_EPSILON", 0.01)
	v.SetDefault("HOTEL_MARKUP", 0.0)
	v.SetDefault("IDEMPOTENCY_TTL", 48*time.Hour)
	v.SetDefault("SUPPLIER_TIMEOUT", 30*time.Second)
}

// Load reads config.yaml from . or ./config when present, then overlays the environment.
func Load() (*Config, error) {
	return load(viper.New())
}

func load(v *viper.Viper) (*Config, error) {
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")
	v.AddConfigPath("./config")
	v.AutomaticEnv()
	setDefaults(v)
	// AutomaticEnv only answers keys viper already knows about during Unmarshal.
	for _, k := range keys {
		_ = v.BindEnv(k)
	}

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("read config file: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}
	return &cfg, nil
}

// IsProduction reports whether ENV is production.
func (c *Config) IsProduction() bool {
	return c.Env == "production"
}

// Validate rejects configurations the payment path cannot run with.
func (c *Config) Validate() error {
	var missing []string
	if c.RateTokenSecret == "" {
		missing = append(missing, "RATE_TOKEN_SECRET")
	}
	if c.IdramSecretKey == "" {
		missing = append(missing, "IDRAM_SECRET_KEY")
	}
	if c.IdramRecAccount == "" {
		missing = append(missing, "IDRAM_REC_ACCOUNT")
	}
	if len(missing) > 0 {
		return fmt.Errorf("missing required config: %s", strings.Join(missing, ", "))
	}
	switch c.StoreBackend {
	case "dynamodb", "mongo":
	default:
		return fmt.Errorf("unknown STORE_BACKEND %q", c.StoreBackend)
	}
	switch c.RateLimitBackend {
	case "memory", "redis":
	default:
		return fmt.Errorf("unknown RATE_LIMIT_BACKEND %q", c.RateLimitBackend)
	}
	if c.AmountEpsilon < 0 {
		return fmt.Errorf("AMOUNT_EPSILON must not be negative")
	}
	if _, err := c.CurrencyEpsilons(); err != nil {
		return err
	}
	return nil
}

// CurrencyEpsilons parses CurrencyEpsilon into a map keyed by upper-case currency code.
func (c *Config) CurrencyEpsilons() (map[string]float64, error) {
	out := map[string]float64{}
	if strings.TrimSpace(c.CurrencyEpsilon) == "" {
		return out, nil
	}
	for _, pair := range strings.Split(c.CurrencyEpsilon, ",") {
		cur, val, ok := strings.Cut(strings.TrimSpace(pair), "=")
		if !ok {
			return nil, fmt.Errorf("CURRENCY_EPSILON: malformed entry %q", pair)
		}
		eps, err := strconv.ParseFloat(strings.TrimSpace(val), 64)
		if err != nil || eps < 0 {
			return nil, fmt.Errorf("CURRENCY_EPSILON: bad tolerance for %s", cur)
		}
		out[strings.ToUpper(strings.TrimSpace(cur))] = eps
	}
	return out, nil
}

// CORSOrigins splits CORS_ALLOW_ORIGINS, dropping blanks.
func (c *Config) CORSOrigins() []string {
	var out []string
	for _, o := range strings.Split(c.CORSAllowOrigins, ",") {
		if o = strings.TrimSpace(o); o != "" {
			out = append(out, o)
		}
	}
	return out
}
