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
	JWT          JWTConfig
	FeatureFlags FeatureFlagsConfig
	Reservation  ReservationConfig
	Cron         CronConfig
	Outbox       OutboxConfig
	GCP          GCPConfig
	PubSub       PubSubConfig
	Kafka        KafkaConfig
	Shipping     ShippingConfig
	Tracing      TracingConfig
	RateLimit    RateLimitConfig
}

func Load() (*Config, error) {
	var cfg Config
	if err := envconfig.Process(EnvPrefix, &cfg); err != nil {
		return nil, fmt.Errorf("parsing config: %w", err)
	}
	if err := cfg.DB.ensureDSN(); err != nil {
		return nil, err
	}
	if err := cfg.Outbox.validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

type AppConfig struct {
	Env          string `envconfig:"DANTE_APP_ENV" required:"true"`
	Port         string `envconfig:"DANTE_APP_PORT" default:"8080"`
	LogLevel     string `envconfig:"DANTE_LOG_LEVEL" default:"info"`
	LogWarnStack bool   `envconfig:"DANTE_LOG_WARN_STACK" default:"false"`
	CORSOrigins  string `envconfig:"DANTE_CORS_ORIGINS" default:"*"`
}

func (a AppConfig) IsDev() bool {
	return strings.EqualFold(a.Env, AppEnvDev)
}

func (a AppConfig) IsProd() bool {
	return strings.EqualFold(a.Env, AppEnvProd)
}

// AllowedOrigins splits the comma separated CORS origin list.
func (a AppConfig) AllowedOrigins() []string {
	out := []string{}
	for _, origin := range strings.Split(a.CORSOrigins, ",") {
		if trimmed := strings.TrimSpace(origin); trimmed != "" {
			out = append(out, trimmed)
		}
	}
	return out
}

type ServiceConfig struct {
	Kind string `envconfig:"DANTE_SERVICE_KIND" default:"api"`
}

type DBConfig struct {
	DSN    string `envconfig:"DANTE_DB_DSN"`
	Driver string `envconfig:"DANTE_DB_DRIVER" default:"postgres"`

	Host     string `envconfig:"DANTE_DB_HOST"`
	Port     int    `envconfig:"DANTE_DB_PORT" default:"5432"`
	User     string `envconfig:"DANTE_DB_USER"`
	Password string `envconfig:"DANTE_DB_PASSWORD"`
	Name     string `envconfig:"DANTE_DB_NAME"`
	SSLMode  string `envconfig:"DANTE_DB_SSLMODE" default:"disable"`

	MaxOpenConns    int           `envconfig:"DANTE_DB_MAX_OPEN_CONNS" default:"20"`
	MaxIdleConns    int           `envconfig:"DANTE_DB_MAX_IDLE_CONNS" default:"10"`
	ConnMaxLifetime time.Duration `envconfig:"DANTE_DB_CONN_MAX_LIFETIME" default:"1h"`
	ConnMaxIdleTime time.Duration `envconfig:"DANTE_DB_CONN_MAX_IDLE_TIME" default:"10m"`
	SlowQuery       time.Duration `envconfig:"DANTE_DB_SLOW_QUERY" default:"500ms"`
}

type RedisConfig struct {
	URL          string        `envconfig:"DANTE_REDIS_URL" required:"true"`
	Address      string        `envconfig:"DANTE_REDIS_ADDR"`
	Password     string        `envconfig:"DANTE_REDIS_PASSWORD"`
	DB           int           `envconfig:"DANTE_REDIS_DB" default:"0"`
	PoolSize     int           `envconfig:"DANTE_REDIS_POOL_SIZE" default:"10"`
	MinIdleConns int           `envconfig:"DANTE_REDIS_MIN_IDLE_CONNS" default:"2"`
	DialTimeout  time.Duration `envconfig:"DANTE_REDIS_DIAL_TIMEOUT" default:"5s"`
	ReadTimeout  time.Duration `envconfig:"DANTE_REDIS_READ_TIMEOUT" default:"5s"`
	WriteTimeout time.Duration `envconfig:"DANTE_REDIS_WRITE_TIMEOUT" default:"5s"`
}

// JWTConfig only carries what is needed to verify tokens issued elsewhere.
type JWTConfig struct {
	Secret        string `envconfig:"DANTE_JWT_SECRET" required:"true"`
	Issuer        string `envconfig:"DANTE_JWT_ISSUER" required:"true"`
	Audience      string `envconfig:"DANTE_JWT_AUDIENCE"`
	LeewaySeconds int    `envconfig:"DANTE_JWT_LEEWAY_SECONDS" default:"30"`
}

type FeatureFlagsConfig struct {
	AutoMigrate  bool `envconfig:"DANTE_AUTO_MIGRATE" default:"false"`
	AdminTrigger bool `envconfig:"DANTE_FEATURE_ADMIN_SWEEP" default:"true"`
}

type ReservationConfig struct {
	HoldDuration   time.Duration `envconfig:"DANTE_RESERVATION_HOLD" default:"24h"`
	LockTimeout    time.Duration `envconfig:"DANTE_RESERVATION_LOCK_TIMEOUT" default:"3s"`
	RetryAttempts  int           `envconfig:"DANTE_RESERVATION_RETRY_ATTEMPTS" default:"3"`
	RetryBackoff   time.Duration `envconfig:"DANTE_RESERVATION_RETRY_BACKOFF" default:"50ms"`
	SweepBatchSize int           `envconfig:"DANTE_RESERVATION_SWEEP_BATCH" default:"100"`
}

type CronConfig struct {
	Interval        time.Duration `envconfig:"DANTE_CRON_INTERVAL" default:"1m"`
	LockTTL         time.Duration `envconfig:"DANTE_CRON_LOCK_TTL" default:"2m"`
	OutboxRetention int           `envconfig:"DANTE_CRON_OUTBOX_RETENTION_DAYS" default:"30"`
	DLQRetention    int           `envconfig:"DANTE_CRON_DLQ_RETENTION_DAYS" default:"90"`
	MetricsAddr     string        `envconfig:"DANTE_CRON_METRICS_ADDR"`
}

type OutboxConfig struct {
	Sink           string `envconfig:"DANTE_OUTBOX_SINK" default:"pubsub"`
	BatchSize      int    `envconfig:"DANTE_OUTBOX_PUBLISH_BATCH_SIZE" default:"50"`
	PollIntervalMS int    `envconfig:"DANTE_OUTBOX_PUBLISH_POLL_MS" default:"500"`
	MaxAttempts    int    `envconfig:"DANTE_OUTBOX_MAX_ATTEMPTS" default:"10"`
	MetricsAddr    string `envconfig:"DANTE_OUTBOX_METRICS_ADDR"`
}

func (o OutboxConfig) validate() error {
	switch strings.ToLower(strings.TrimSpace(o.Sink)) {
	case OutboxSinkPubSub, OutboxSinkKafka:
		return nil
	default:
		return fmt.Errorf("%s must be one of %s, %s", EnvOutboxSink, OutboxSinkPubSub, OutboxSinkKafka)
	}
}

type GCPConfig struct {
	ProjectID string `envconfig:"DANTE_GCP_PROJECT_ID"`
}

type PubSubConfig struct {
	OrdersTopic    string `envconfig:"DANTE_PUBSUB_ORDERS_TOPIC" default:"orders"`
	InventoryTopic string `envconfig:"DANTE_PUBSUB_INVENTORY_TOPIC" default:"inventory"`
}

type KafkaConfig struct {
	Brokers      string        `envconfig:"DANTE_KAFKA_BROKERS" default:"localhost:9092"`
	ClientID     string        `envconfig:"DANTE_KAFKA_CLIENT_ID" default:"dante-outbox"`
	BatchTimeout time.Duration `envconfig:"DANTE_KAFKA_BATCH_TIMEOUT" default:"10ms"`
}

// BrokerList splits the comma separated broker addresses.
func (k KafkaConfig) BrokerList() []string {
	out := []string{}
	for _, broker := range strings.Split(k.Brokers, ",") {
		if trimmed := strings.TrimSpace(broker); trimmed != "" {
			out = append(out, trimmed)
		}
	}
	return out
}

type ShippingConfig struct {
	BaseURL  string        `envconfig:"DANTE_SHIPPING_BASE_URL" default:"https://api.rajaongkir.com/starter"`
	APIKey   string        `envconfig:"DANTE_SHIPPING_API_KEY"`
	Timeout  time.Duration `envconfig:"DANTE_SHIPPING_TIMEOUT" default:"10s"`
	CacheTTL time.Duration `envconfig:"DANTE_SHIPPING_CACHE_TTL" default:"12h"`
}

type TracingConfig struct {
	Enabled  bool    `envconfig:"DANTE_TRACING_ENABLED" default:"false"`
	Endpoint string  `envconfig:"DANTE_TRACING_ENDPOINT" default:"localhost:4318"`
	Insecure bool    `envconfig:"DANTE_TRACING_INSECURE" default:"true"`
	Sample   float64 `envconfig:"DANTE_TRACING_SAMPLE_RATIO" default:"1"`
}

// RateLimitConfig throttles checkout per client address and per user.
type RateLimitConfig struct {
	CheckoutWindow    time.Duration `envconfig:"DANTE_RATE_LIMIT_CHECKOUT_WINDOW" default:"1m"`
	CheckoutIPLimit   int           `envconfig:"DANTE_RATE_LIMIT_CHECKOUT_IP" default:"60"`
	CheckoutUserLimit int           `envconfig:"DANTE_RATE_LIMIT_CHECKOUT_USER" default:"10"`
}

func (db *DBConfig) ensureDSN() error {
	if db.DSN != "" {
		return nil
	}

	driver := strings.ToLower(strings.TrimSpace(db.Driver))
	if driver == DBDriverSQLite {
		return fmt.Errorf("%s is required for the sqlite driver", EnvDBDSN)
	}

	missing := []string{}
	values := map[string]string{
		EnvDBHost: db.Host,
		EnvDBUser: db.User,
		EnvDBName: db.Name,
	}
	for _, env := range dsnPartEnvVars {
		if values[env] == "" {
			missing = append(missing, env)
		}
	}
	if len(missing) > 0 {
		return fmt.Errorf("either %s or %s are required", EnvDBDSN, strings.Join(missing, ", "))
	}

	if driver == DBDriverMySQL {
		db.DSN = fmt.Sprintf("%s:%s@tcp(%s:%d)/%s?parseTime=true&loc=UTC",
			db.User, db.Password, db.Host, db.Port, db.Name)
		return nil
	}

	userInfo := url.User(db.User)
	if db.Password != "" {
		userInfo = url.UserPassword(db.User, db.Password)
	}

	u := &url.URL{
		Scheme: "postgres",
		User:   userInfo,
		Host:   fmt.Sprintf("%s:%d", db.Host, db.Port),
		Path:   db.Name,
	}
	if db.SSLMode != "" {
		q := u.Query()
		q.Set("sslmode", db.SSLMode)
		u.RawQuery = q.Encode()
	}

	db.DSN = u.String()
	return nil
}
