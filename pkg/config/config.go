package config

import (
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/kelseyhightower/envconfig"
)

type Config struct {
	App          AppConfig
	Service      ServiceConfig
	DB           DBConfig
	Redis        RedisConfig
	Auth         AuthConfig
	RateLimit    RateLimitConfig
	FeatureFlags FeatureFlagsConfig
	Gateway      GatewayConfig
	Carrier      CarrierConfig
	Payouts      PayoutsConfig
	Settings     SettingsConfig
	Eventing     EventingConfig
	GCP          GCPConfig
	PubSub       PubSubConfig
	Kafka        KafkaConfig
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
	if err := cfg.Eventing.validate(cfg.PubSub, cfg.Kafka); err != nil {
		return nil, err
	}
	return &cfg, nil
}

type AppConfig struct {
	Env          string `envconfig:"SETTLEMENT_APP_ENV" required:"true"`
	Port         string `envconfig:"SETTLEMENT_APP_PORT" required:"true"`
	LogLevel     string `envconfig:"SETTLEMENT_LOG_LEVEL" default:"info"`
	LogWarnStack bool   `envconfig:"SETTLEMENT_LOG_WARN_STACK" default:"false"`
	// LogFormat is json or console.
	LogFormat string `envconfig:"SETTLEMENT_LOG_FORMAT" default:"json"`
	// CORSOrigins is a comma separated allow list for browser callers.
	CORSOrigins []string `envconfig:"SETTLEMENT_CORS_ORIGINS" default:"http://localhost:3000"`
}

func (a AppConfig) IsDev() bool {
	return strings.EqualFold(a.Env, AppEnvDev)
}

func (a AppConfig) IsProd() bool {
	return strings.EqualFold(a.Env, AppEnvProd)
}

type ServiceConfig struct {
	Kind string `envconfig:"SETTLEMENT_SERVICE_KIND" default:"api"`
}

type DBConfig struct {
	DSN    string `envconfig:"SETTLEMENT_DB_DSN"`
	Driver string `envconfig:"SETTLEMENT_DB_DRIVER" default:"postgres"`

	LegacyHost     string `envconfig:"SETTLEMENT_DB_HOST"`
	LegacyPort     int    `envconfig:"SETTLEMENT_DB_PORT" default:"5432"`
	LegacyUser     string `envconfig:"SETTLEMENT_DB_USER"`
	LegacyPassword string `envconfig:"SETTLEMENT_DB_PASSWORD"`
	LegacyName     string `envconfig:"SETTLEMENT_DB_NAME"`
	LegacySSLMode  string `envconfig:"SETTLEMENT_DB_SSLMODE" default:"disable"`

	MaxOpenConns    int           `envconfig:"SETTLEMENT_DB_MAX_OPEN_CONNS" default:"20"`
	MaxIdleConns    int           `envconfig:"SETTLEMENT_DB_MAX_IDLE_CONNS" default:"10"`
	ConnMaxLifetime time.Duration `envconfig:"SETTLEMENT_DB_CONN_MAX_LIFETIME" default:"1h"`
	ConnMaxIdleTime time.Duration `envconfig:"SETTLEMENT_DB_CONN_MAX_IDLE_TIME" default:"10m"`
	// SlowQuery logs statements slower than this at warn level. Zero disables.
	SlowQuery time.Duration `envconfig:"SETTLEMENT_DB_SLOW_QUERY" default:"250ms"`
}

type RedisConfig struct {
	URL          string        `envconfig:"SETTLEMENT_REDIS_URL" required:"true"`
	Address      string        `envconfig:"SETTLEMENT_REDIS_ADDR"`
	Password     string        `envconfig:"SETTLEMENT_REDIS_PASSWORD"`
	DB           int           `envconfig:"SETTLEMENT_REDIS_DB" default:"0"`
	PoolSize     int           `envconfig:"SETTLEMENT_REDIS_POOL_SIZE" default:"10"`
	MinIdleConns int           `envconfig:"SETTLEMENT_REDIS_MIN_IDLE_CONNS" default:"2"`
	DialTimeout  time.Duration `envconfig:"SETTLEMENT_REDIS_DIAL_TIMEOUT" default:"5s"`
	ReadTimeout  time.Duration `envconfig:"SETTLEMENT_REDIS_READ_TIMEOUT" default:"5s"`
	WriteTimeout time.Duration `envconfig:"SETTLEMENT_REDIS_WRITE_TIMEOUT" default:"5s"`
}

// AuthConfig describes the trusted edge in front of the API. The edge
// authenticates callers and either forwards the actor in request headers,
// guarded by UpstreamToken, or signs a short-lived actor assertion with
// JWTSecret.
type AuthConfig struct {
	UpstreamToken string `envconfig:"SETTLEMENT_AUTH_UPSTREAM_TOKEN"`
	JWTSecret     string `envconfig:"SETTLEMENT_AUTH_JWT_SECRET"`
	JWTIssuer     string `envconfig:"SETTLEMENT_AUTH_JWT_ISSUER" default:"settlement-edge"`
}

// UsesAssertions reports whether actors must present a signed assertion.
func (a AuthConfig) UsesAssertions() bool {
	return a.JWTSecret != ""
}

// RateLimitConfig throttles the unauthenticated webhook endpoints per source IP.
type RateLimitConfig struct {
	WebhookWindow  time.Duration `envconfig:"SETTLEMENT_RATE_LIMIT_WEBHOOK_WINDOW" default:"1m"`
	WebhookIPLimit int           `envconfig:"SETTLEMENT_RATE_LIMIT_WEBHOOK_IP_LIMIT" default:"600"`
}

type FeatureFlagsConfig struct {
	AutoMigrate bool `envconfig:"SETTLEMENT_AUTO_MIGRATE" default:"false"`
}

// GatewayConfig holds the payment gateway credentials and webhook secret.
type GatewayConfig struct {
	BaseURL         string        `envconfig:"SETTLEMENT_GATEWAY_BASE_URL" default:"https://api.gateway.example/v1"`
	KeyID           string        `envconfig:"SETTLEMENT_GATEWAY_KEY_ID" required:"true"`
	KeySecret       string        `envconfig:"SETTLEMENT_GATEWAY_KEY_SECRET" required:"true"`
	WebhookSecret   string        `envconfig:"SETTLEMENT_GATEWAY_WEBHOOK_SECRET" required:"true"`
	Currency        string        `envconfig:"SETTLEMENT_GATEWAY_CURRENCY" default:"INR"`
	Timeout         time.Duration `envconfig:"SETTLEMENT_GATEWAY_TIMEOUT" default:"10s"`
	ReplayTolerance time.Duration `envconfig:"SETTLEMENT_GATEWAY_REPLAY_TOLERANCE" default:"0s"`
	WebhookDedupTTL time.Duration `envconfig:"SETTLEMENT_GATEWAY_WEBHOOK_DEDUP_TTL" default:"72h"`
}

// CarrierConfig holds the shipping aggregator credentials.
type CarrierConfig struct {
	BaseURL         string        `envconfig:"SETTLEMENT_CARRIER_BASE_URL" default:"https://api.carrier.example/v1"`
	APIToken        string        `envconfig:"SETTLEMENT_CARRIER_API_TOKEN" required:"true"`
	WebhookToken    string        `envconfig:"SETTLEMENT_CARRIER_WEBHOOK_TOKEN"`
	PickupLocation  string        `envconfig:"SETTLEMENT_CARRIER_PICKUP_LOCATION" default:"Primary"`
	Timeout         time.Duration `envconfig:"SETTLEMENT_CARRIER_TIMEOUT" default:"15s"`
	WebhookDedupTTL time.Duration `envconfig:"SETTLEMENT_CARRIER_WEBHOOK_DEDUP_TTL" default:"24h"`
}

// PayoutsConfig controls the payout batch engine and its cron cadence.
type PayoutsConfig struct {
	Atomic            bool          `envconfig:"SETTLEMENT_PAYOUTS_ATOMIC" default:"true"`
	CronInterval      time.Duration `envconfig:"SETTLEMENT_PAYOUTS_CRON_INTERVAL" default:"6h"`
	LinkingStaleAfter time.Duration `envconfig:"SETTLEMENT_PAYOUTS_LINKING_STALE_AFTER" default:"15m"`
}

type SettingsConfig struct {
	CacheTTL time.Duration `envconfig:"SETTLEMENT_SETTINGS_CACHE_TTL" default:"60s"`
}

type EventingConfig struct {
	Transport            string        `envconfig:"SETTLEMENT_EVENTING_TRANSPORT" default:"pubsub"`
	OutboxIdempotencyTTL time.Duration `envconfig:"SETTLEMENT_EVENTING_IDEMPOTENCY_TTL" default:"720h"`
}

// UsesKafka reports whether outbox events are published to Kafka instead of Pub/Sub.
func (e EventingConfig) UsesKafka() bool {
	return strings.EqualFold(strings.TrimSpace(e.Transport), TransportKafka)
}

func (e EventingConfig) validate(ps PubSubConfig, k KafkaConfig) error {
	switch strings.ToLower(strings.TrimSpace(e.Transport)) {
	case "", TransportPubSub:
		return nil
	case TransportKafka:
		if len(k.Brokers) == 0 {
			return fmt.Errorf("%s is required when transport is kafka", EnvKafkaBrokers)
		}
		return nil
	default:
		return fmt.Errorf("unsupported eventing transport %q", e.Transport)
	}
}

type GCPConfig struct {
	// ProjectID is required for the pubsub transport. Credentials come from
	// the ambient application default chain.
	ProjectID string `envconfig:"SETTLEMENT_GCP_PROJECT_ID"`
}

type PubSubConfig struct {
	OrdersTopic       string `envconfig:"SETTLEMENT_PUBSUB_ORDERS_TOPIC" default:"settlement-order-events"`
	PayoutsTopic      string `envconfig:"SETTLEMENT_PUBSUB_PAYOUTS_TOPIC" default:"settlement-payout-events"`
	NotificationTopic string `envconfig:"SETTLEMENT_PUBSUB_NOTIFICATION_TOPIC" default:"settlement-notification-events"`
}

type KafkaConfig struct {
	Brokers []string `envconfig:"SETTLEMENT_KAFKA_BROKERS"`
}

type OutboxConfig struct {
	BatchSize      int `envconfig:"SETTLEMENT_OUTBOX_PUBLISH_BATCH_SIZE" default:"50"`
	PollIntervalMS int `envconfig:"SETTLEMENT_OUTBOX_PUBLISH_POLL_MS" default:"500"`
	MaxAttempts    int `envconfig:"SETTLEMENT_OUTBOX_MAX_ATTEMPTS" default:"10"`

	Retention           time.Duration `envconfig:"SETTLEMENT_OUTBOX_RETENTION" default:"720h"`
	DeadLetterRetention time.Duration `envconfig:"SETTLEMENT_OUTBOX_DEAD_LETTER_RETENTION" default:"2160h"`
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
