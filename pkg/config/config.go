package config

import (
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/kelseyhightower/envconfig"
	"github.com/shopspring/decimal"
)

type Config struct {
	App          AppConfig
	Service      ServiceConfig
	DB           DBConfig
	Redis        RedisConfig
	JWT          JWTConfig
	Gateway      GatewayConfig
	Pricing      PricingConfig
	Escalation   EscalationConfig
	FeatureFlags FeatureFlagsConfig
	GCP          GCPConfig
	PubSub       PubSubConfig
	Outbox       OutboxConfig
}

func Load() (*Config, error) {
	var cfg Config
	if err := envconfig.Process(EnvPrefix, &cfg); err != nil {
		return nil, fmt.Errorf("parsing config: %w", err)
	}
	if err := cfg.DB.ensureDSN(); err != nil {
		return nil, err
	}
	if _, err := cfg.Pricing.Rate(); err != nil {
		return nil, err
	}
	if err := cfg.Escalation.validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

type AppConfig struct {
	Env          string `envconfig:"VENDIQ_APP_ENV" required:"true"`
	Port         string `envconfig:"VENDIQ_APP_PORT" required:"true"`
	LogLevel     string `envconfig:"VENDIQ_LOG_LEVEL" default:"info"`
	LogWarnStack bool   `envconfig:"VENDIQ_LOG_WARN_STACK" default:"false"`
}

func (a AppConfig) IsDev() bool {
	return strings.EqualFold(a.Env, AppEnvDev)
}

func (a AppConfig) IsProd() bool {
	return strings.EqualFold(a.Env, AppEnvProd)
}

type ServiceConfig struct {
	Kind string `envconfig:"VENDIQ_SERVICE_KIND" default:"api"`
}

type DBConfig struct {
	DSN    string `envconfig:"VENDIQ_DB_DSN"`
	Driver string `envconfig:"VENDIQ_DB_DRIVER" default:"postgres"`

	LegacyHost     string `envconfig:"VENDIQ_DB_HOST"`
	LegacyPort     int    `envconfig:"VENDIQ_DB_PORT" default:"5432"`
	LegacyUser     string `envconfig:"VENDIQ_DB_USER"`
	LegacyPassword string `envconfig:"VENDIQ_DB_PASSWORD"`
	LegacyName     string `envconfig:"VENDIQ_DB_NAME"`
	LegacySSLMode  string `envconfig:"VENDIQ_DB_SSLMODE" default:"disable"`

	MaxOpenConns    int           `envconfig:"VENDIQ_DB_MAX_OPEN_CONNS" default:"20"`
	MaxIdleConns    int           `envconfig:"VENDIQ_DB_MAX_IDLE_CONNS" default:"10"`
	ConnMaxLifetime time.Duration `envconfig:"VENDIQ_DB_CONN_MAX_LIFETIME" default:"1h"`
	ConnMaxIdleTime time.Duration `envconfig:"VENDIQ_DB_CONN_MAX_IDLE_TIME" default:"10m"`
}

type RedisConfig struct {
	URL          string        `envconfig:"VENDIQ_REDIS_URL" required:"true"`
	Address      string        `envconfig:"VENDIQ_REDIS_ADDR"`
	Password     string        `envconfig:"VENDIQ_REDIS_PASSWORD"`
	DB           int           `envconfig:"VENDIQ_REDIS_DB" default:"0"`
	PoolSize     int           `envconfig:"VENDIQ_REDIS_POOL_SIZE" default:"10"`
	MinIdleConns int           `envconfig:"VENDIQ_REDIS_MIN_IDLE_CONNS" default:"2"`
	DialTimeout  time.Duration `envconfig:"VENDIQ_REDIS_DIAL_TIMEOUT" default:"5s"`
	ReadTimeout  time.Duration `envconfig:"VENDIQ_REDIS_READ_TIMEOUT" default:"5s"`
	WriteTimeout time.Duration `envconfig:"VENDIQ_REDIS_WRITE_TIMEOUT" default:"5s"`
}

type JWTConfig struct {
	Secret            string `envconfig:"VENDIQ_JWT_SECRET" required:"true"`
	Issuer            string `envconfig:"VENDIQ_JWT_ISSUER" required:"true"`
	ExpirationMinutes int    `envconfig:"VENDIQ_JWT_EXPIRATION_MINUTES" default:"60"`
}

// GatewayConfig holds the Square credentials used for payment intents and
// the shared secret webhook confirmations are signed with.
type GatewayConfig struct {
	AccessToken   string        `envconfig:"VENDIQ_GATEWAY_ACCESS_TOKEN"`
	Environment   string        `envconfig:"VENDIQ_GATEWAY_ENV" default:"sandbox"`
	LocationID    string        `envconfig:"VENDIQ_GATEWAY_LOCATION_ID"`
	WebhookSecret string        `envconfig:"VENDIQ_GATEWAY_WEBHOOK_SECRET" required:"true"`
	CallTimeout   time.Duration `envconfig:"VENDIQ_GATEWAY_CALL_TIMEOUT" default:"10s"`
	Currency      string        `envconfig:"VENDIQ_GATEWAY_CURRENCY" default:"USD"`
}

// PricingConfig carries the fixed pricing constants applied at order creation.
// All amounts are in minor currency units.
type PricingConfig struct {
	ShippingFlatCents      int64         `envconfig:"VENDIQ_PRICING_SHIPPING_FLAT_CENTS" default:"99"`
	TaxRate                string        `envconfig:"VENDIQ_PRICING_TAX_RATE" default:"0.18"`
	DiscountThresholdCents int64         `envconfig:"VENDIQ_PRICING_DISCOUNT_THRESHOLD_CENTS" default:"500000"`
	DiscountCents          int64         `envconfig:"VENDIQ_PRICING_DISCOUNT_CENTS" default:"5000"`
	DeliveryLeadTime       time.Duration `envconfig:"VENDIQ_PRICING_DELIVERY_LEAD_TIME" default:"120h"`
}

// Rate parses the configured tax rate.
func (p PricingConfig) Rate() (decimal.Decimal, error) {
	rate, err := decimal.NewFromString(strings.TrimSpace(p.TaxRate))
	if err != nil {
		return decimal.Decimal{}, fmt.Errorf("invalid tax rate %q: %w", p.TaxRate, err)
	}
	if rate.IsNegative() {
		return decimal.Decimal{}, fmt.Errorf("tax rate must not be negative")
	}
	return rate, nil
}

// EscalationConfig holds the time thresholds for automatic status promotion,
// all measured from order creation.
type EscalationConfig struct {
	PendingAfter    time.Duration `envconfig:"VENDIQ_ESCALATION_PENDING_AFTER" default:"2h"`
	ProcessingAfter time.Duration `envconfig:"VENDIQ_ESCALATION_PROCESSING_AFTER" default:"48h"`
	ShippedAfter    time.Duration `envconfig:"VENDIQ_ESCALATION_SHIPPED_AFTER" default:"120h"`
	SweepInterval   time.Duration `envconfig:"VENDIQ_ESCALATION_SWEEP_INTERVAL" default:"1h"`
	SweepBatchSize  int           `envconfig:"VENDIQ_ESCALATION_SWEEP_BATCH_SIZE" default:"200"`
}

func (e EscalationConfig) validate() error {
	if e.PendingAfter <= 0 || e.ProcessingAfter <= 0 || e.ShippedAfter <= 0 {
		return fmt.Errorf("escalation thresholds must be positive")
	}
	if !(e.PendingAfter < e.ProcessingAfter && e.ProcessingAfter < e.ShippedAfter) {
		return fmt.Errorf("escalation thresholds must be strictly increasing")
	}
	return nil
}

type FeatureFlagsConfig struct {
	AutoMigrate bool `envconfig:"VENDIQ_AUTO_MIGRATE" default:"false"`
}

type GCPConfig struct {
	ProjectID string `envconfig:"VENDIQ_GCP_PROJECT_ID"`
}

type PubSubConfig struct {
	OrdersTopic        string `envconfig:"VENDIQ_PUBSUB_ORDERS_TOPIC" default:"vq-order-events"`
	OrdersSubscription string `envconfig:"VENDIQ_PUBSUB_ORDERS_SUBSCRIPTION"`
}

type OutboxConfig struct {
	BatchSize      int `envconfig:"VENDIQ_OUTBOX_PUBLISH_BATCH_SIZE" default:"50"`
	PollIntervalMS int `envconfig:"VENDIQ_OUTBOX_PUBLISH_POLL_MS" default:"500"`
	MaxAttempts    int `envconfig:"VENDIQ_OUTBOX_MAX_ATTEMPTS" default:"10"`
}

func (db *DBConfig) ensureDSN() error {
	if db.DSN != "" {
		return nil
	}

	missing := []string{}
	legacyValues := map[string]string{
		EnvDBHost: db.LegacyHost,
		EnvDBUser: db.LegacyUser,
		EnvDBName: db.LegacyName,
	}
	for _, env := range legacyDBEnvVars {
		if legacyValues[env] == "" {
			missing = append(missing, env)
		}
	}

	if len(missing) > 0 {
		return fmt.Errorf("either %s or %s are required", EnvDBDSN, strings.Join(missing, ", "))
	}

	userInfo := url.User(db.LegacyUser)
	if db.LegacyPassword != "" {
		userInfo = url.UserPassword(db.LegacyUser, db.LegacyPassword)
	}

	u := &url.URL{
		Scheme: "postgres",
		User:   userInfo,
		Host:   fmt.Sprintf("%s:%d", db.LegacyHost, db.LegacyPort),
		Path:   db.LegacyName,
	}

	if db.LegacySSLMode != "" {
		q := u.Query()
		q.Set("sslmode", db.LegacySSLMode)
		u.RawQuery = q.Encode()
	}

	db.DSN = u.String()
	return nil
}
