package config

import (
	"fmt"
	"net"
	"net/url"
	"slices"
	"strconv"
	"strings"
	"time"

	"github.com/kelseyhightower/envconfig"
)

type Config struct {
	App          AppConfig
	Service      ServiceConfig
	DB           DBConfig
	Redis        RedisConfig
	JWT          JWTConfig
	FeatureFlags FeatureFlagsConfig
	Eventing     EventingConfig
	GCP          GCPConfig
	PubSub       PubSubConfig
	Kafka        KafkaConfig
	Outbox       OutboxConfig
	Fulfillment  FulfillmentConfig
	Cron         CronConfig
}

// Load reads the PACKFINDERZ_* environment and checks cross-field rules.
func Load() (*Config, error) {
	cfg := new(Config)
	if err := envconfig.Process(EnvPrefix, cfg); err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	for _, check := range []func() error{cfg.DB.resolveDSN, cfg.Eventing.validate, cfg.Fulfillment.validate} {
		if err := check(); err != nil {
			return nil, err
		}
	}
	return cfg, nil
}

type AppConfig struct {
	Env          string   `envconfig:"PACKFINDERZ_APP_ENV" required:"true"`
	Port         string   `envconfig:"PACKFINDERZ_APP_PORT" required:"true"`
	LogLevel     string   `envconfig:"PACKFINDERZ_LOG_LEVEL" default:"info"`
	LogWarnStack bool     `envconfig:"PACKFINDERZ_LOG_WARN_STACK" default:"false"`
	LogFormat    string   `envconfig:"PACKFINDERZ_LOG_FORMAT" default:"json"`
	CORSOrigins  []string `envconfig:"PACKFINDERZ_CORS_ORIGINS"`
}

// ConsoleLogs reports whether logs should be rendered for humans.
func (a AppConfig) ConsoleLogs() bool {
	return strings.EqualFold(a.LogFormat, "console")
}

func (a AppConfig) IsDev() bool {
	return strings.EqualFold(a.Env, AppEnvDev)
}

func (a AppConfig) IsProd() bool {
	return strings.EqualFold(a.Env, AppEnvProd) || strings.EqualFold(a.Env, "production")
}

type ServiceConfig struct {
	Kind string `envconfig:"PACKFINDERZ_SERVICE_KIND" default:"api"`
}

type DBConfig struct {
	DSN    string `envconfig:"PACKFINDERZ_DB_DSN"`
	Driver string `envconfig:"PACKFINDERZ_DB_DRIVER" default:"postgres"`

	// Used only when DSN is empty.
	Host     string `envconfig:"PACKFINDERZ_DB_HOST"`
	Port     int    `envconfig:"PACKFINDERZ_DB_PORT" default:"5432"`
	User     string `envconfig:"PACKFINDERZ_DB_USER"`
	Password string `envconfig:"PACKFINDERZ_DB_PASSWORD"`
	Name     string `envconfig:"PACKFINDERZ_DB_NAME"`
	SSLMode  string `envconfig:"PACKFINDERZ_DB_SSLMODE" default:"disable"`

	MaxOpenConns    int           `envconfig:"PACKFINDERZ_DB_MAX_OPEN_CONNS" default:"20"`
	MaxIdleConns    int           `envconfig:"PACKFINDERZ_DB_MAX_IDLE_CONNS" default:"10"`
	ConnMaxLifetime time.Duration `envconfig:"PACKFINDERZ_DB_CONN_MAX_LIFETIME" default:"1h"`
	ConnMaxIdleTime time.Duration `envconfig:"PACKFINDERZ_DB_CONN_MAX_IDLE_TIME" default:"10m"`

	TxRetryAttempts    int           `envconfig:"PACKFINDERZ_DB_TX_RETRY_ATTEMPTS" default:"3"`
	SlowQueryThreshold time.Duration `envconfig:"PACKFINDERZ_DB_SLOW_QUERY_THRESHOLD" default:"500ms"`
}

type RedisConfig struct {
	URL          string        `envconfig:"PACKFINDERZ_REDIS_URL" required:"true"`
	Address      string        `envconfig:"PACKFINDERZ_REDIS_ADDR"`
	Password     string        `envconfig:"PACKFINDERZ_REDIS_PASSWORD"`
	DB           int           `envconfig:"PACKFINDERZ_REDIS_DB" default:"0"`
	PoolSize     int           `envconfig:"PACKFINDERZ_REDIS_POOL_SIZE" default:"10"`
	MinIdleConns int           `envconfig:"PACKFINDERZ_REDIS_MIN_IDLE_CONNS" default:"2"`
	DialTimeout  time.Duration `envconfig:"PACKFINDERZ_REDIS_DIAL_TIMEOUT" default:"5s"`
	ReadTimeout  time.Duration `envconfig:"PACKFINDERZ_REDIS_READ_TIMEOUT" default:"5s"`
	WriteTimeout time.Duration `envconfig:"PACKFINDERZ_REDIS_WRITE_TIMEOUT" default:"5s"`
	KeyPrefix    string        `envconfig:"PACKFINDERZ_REDIS_KEY_PREFIX" default:"pf"`
}

type JWTConfig struct {
	Secret            string `envconfig:"PACKFINDERZ_JWT_SECRET" required:"true"`
	Issuer            string `envconfig:"PACKFINDERZ_JWT_ISSUER" required:"true"`
	ExpirationMinutes int    `envconfig:"PACKFINDERZ_JWT_EXPIRATION_MINUTES" default:"60"`
}

// TTL returns the access token lifetime.
func (j JWTConfig) TTL() time.Duration {
	if j.ExpirationMinutes <= 0 {
		return time.Hour
	}
	return time.Duration(j.ExpirationMinutes) * time.Minute
}

type FeatureFlagsConfig struct {
	AutoMigrate  bool `envconfig:"PACKFINDERZ_AUTO_MIGRATE" default:"false"`
	AdminSweepOn bool `envconfig:"PACKFINDERZ_FEATURE_ADMIN_SWEEP" default:"true"`
}

type EventingConfig struct {
	Broker string `envconfig:"PACKFINDERZ_EVENTING_BROKER" default:"pubsub"`
}

func (e EventingConfig) UseKafka() bool {
	return strings.EqualFold(strings.TrimSpace(e.Broker), BrokerKafka)
}

func (e EventingConfig) validate() error {
	switch strings.ToLower(strings.TrimSpace(e.Broker)) {
	case BrokerPubSub, BrokerKafka:
		return nil
	default:
		return fmt.Errorf("%s must be %q or %q, got %q", EnvEventingBroker, BrokerPubSub, BrokerKafka, e.Broker)
	}
}

type GCPConfig struct {
	ProjectID              string `envconfig:"PACKFINDERZ_GCP_PROJECT_ID"`
	ApplicationCredentials string `envconfig:"PACKFINDERZ_GOOGLE_APPLICATION_CREDENTIALS"`
	CredentialsJSON        string `envconfig:"PACKFINDERZ_GCP_CREDENTIALS_JSON"`
}

type PubSubConfig struct {
	OrdersTopic       string `envconfig:"PACKFINDERZ_PUBSUB_ORDERS_TOPIC" default:"pf-order-events"`
	InventoryTopic    string `envconfig:"PACKFINDERZ_PUBSUB_INVENTORY_TOPIC" default:"pf-inventory-events"`
	NotificationTopic string `envconfig:"PACKFINDERZ_PUBSUB_NOTIFICATION_TOPIC" default:"pf-notification-events"`
	BillingTopic      string `envconfig:"PACKFINDERZ_PUBSUB_BILLING_TOPIC" default:"pf-billing-events"`
	// OrderedDelivery publishes with the aggregate id as ordering key.
	OrderedDelivery bool `envconfig:"PACKFINDERZ_PUBSUB_ORDERED_DELIVERY" default:"true"`
}

type KafkaConfig struct {
	Brokers      []string      `envconfig:"PACKFINDERZ_KAFKA_BROKERS" default:"localhost:9092"`
	ClientID     string        `envconfig:"PACKFINDERZ_KAFKA_CLIENT_ID" default:"packfinderz-fulfillment"`
	BatchTimeout time.Duration `envconfig:"PACKFINDERZ_KAFKA_BATCH_TIMEOUT" default:"50ms"`
	RequiredAcks int           `envconfig:"PACKFINDERZ_KAFKA_REQUIRED_ACKS" default:"-1"`
}

type OutboxConfig struct {
	BatchSize      int    `envconfig:"PACKFINDERZ_OUTBOX_PUBLISH_BATCH_SIZE" default:"50"`
	PollIntervalMS int    `envconfig:"PACKFINDERZ_OUTBOX_PUBLISH_POLL_MS" default:"500"`
	MaxAttempts    int    `envconfig:"PACKFINDERZ_OUTBOX_MAX_ATTEMPTS" default:"10"`
	RetentionDays  int    `envconfig:"PACKFINDERZ_OUTBOX_RETENTION_DAYS" default:"30"`
	RetentionBatch int    `envconfig:"PACKFINDERZ_OUTBOX_RETENTION_BATCH" default:"1000"`
	MetricsListen  string `envconfig:"PACKFINDERZ_OUTBOX_METRICS_ADDR" default:":9103"`
}

// FulfillmentConfig carries the reservation and lifecycle tunables.
type FulfillmentConfig struct {
	ReservationTTLMinutes         int `envconfig:"PACKFINDERZ_RESERVATION_TTL_MINUTES" default:"15"`
	DeferredReservationTTLMinutes int `envconfig:"PACKFINDERZ_DEFERRED_RESERVATION_TTL_MINUTES" default:"2880"`
	DefaultReturnWindowDays       int `envconfig:"PACKFINDERZ_RETURN_WINDOW_DAYS" default:"7"`
	SweeperBatchSize              int `envconfig:"PACKFINDERZ_SWEEPER_BATCH_SIZE" default:"100"`
	SweeperMaxBatches             int `envconfig:"PACKFINDERZ_SWEEPER_MAX_BATCHES" default:"50"`
	SweeperConcurrency            int `envconfig:"PACKFINDERZ_SWEEPER_CONCURRENCY" default:"4"`
}

func (f FulfillmentConfig) ReservationTTL() time.Duration {
	return time.Duration(f.ReservationTTLMinutes) * time.Minute
}

func (f FulfillmentConfig) DeferredReservationTTL() time.Duration {
	return time.Duration(f.DeferredReservationTTLMinutes) * time.Minute
}

func (f FulfillmentConfig) validate() error {
	if f.ReservationTTLMinutes <= 0 {
		return fmt.Errorf("%s must be positive", EnvReservationTTL)
	}
	if f.DeferredReservationTTLMinutes < f.ReservationTTLMinutes {
		return fmt.Errorf("%s must not be shorter than %s", EnvDeferredReservationTTL, EnvReservationTTL)
	}
	if f.DefaultReturnWindowDays < 0 {
		return fmt.Errorf("%s must not be negative", EnvReturnWindowDays)
	}
	if f.SweeperBatchSize <= 0 {
		return fmt.Errorf("%s must be positive", EnvSweeperBatchSize)
	}
	return nil
}

type CronConfig struct {
	Interval       time.Duration `envconfig:"PACKFINDERZ_CRON_INTERVAL" default:"1m"`
	LockTTL        time.Duration `envconfig:"PACKFINDERZ_CRON_LOCK_TTL" default:"5m"`
	RetentionEvery time.Duration `envconfig:"PACKFINDERZ_CRON_RETENTION_EVERY" default:"1h"`
	MetricsListen  string        `envconfig:"PACKFINDERZ_CRON_METRICS_ADDR" default:":9102"`
}

// resolveDSN builds a postgres URL from the discrete connection fields when
// no DSN was given. sqlite has no such fallback.
func (db *DBConfig) resolveDSN() error {
	if db.DSN != "" {
		return nil
	}
	if strings.EqualFold(db.Driver, "sqlite") {
		return fmt.Errorf("%s is required for the sqlite driver", EnvDBDSN)
	}

	var missing []string
	for env, value := range map[string]string{EnvDBHost: db.Host, EnvDBUser: db.User, EnvDBName: db.Name} {
		if strings.TrimSpace(value) == "" {
			missing = append(missing, env)
		}
	}
	if len(missing) > 0 {
		slices.Sort(missing)
		return fmt.Errorf("set %s or all of %s", EnvDBDSN, strings.Join(missing, ", "))
	}

	dsn := url.URL{
		Scheme: "postgres",
		User:   url.User(db.User),
		Host:   net.JoinHostPort(db.Host, strconv.Itoa(db.Port)),
		Path:   "/" + db.Name,
	}
	if db.Password != "" {
		dsn.User = url.UserPassword(db.User, db.Password)
	}
	if db.SSLMode != "" {
		dsn.RawQuery = url.Values{"sslmode": {db.SSLMode}}.Encode()
	}
	db.DSN = dsn.String()
	return nil
}
