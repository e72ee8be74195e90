package config

const EnvPrefix = "DANTE"

const (
	AppEnvDev  = "dev"
	AppEnvProd = "prod"
)

const (
	DBDriverPostgres = "postgres"
	DBDriverMySQL    = "mysql"
	DBDriverSQLite   = "sqlite"
)

const (
	OutboxSinkPubSub = "pubsub"
	OutboxSinkKafka  = "kafka"
)

const (
	EnvAppEnv      = "DANTE_APP_ENV"
	EnvPort        = "DANTE_APP_PORT"
	EnvDBDSN       = "DANTE_DB_DSN"
	EnvDBDriver    = "DANTE_DB_DRIVER"
	EnvDBHost      = "DANTE_DB_HOST"
	EnvDBUser      = "DANTE_DB_USER"
	EnvDBPassword  = "DANTE_DB_PASSWORD"
	EnvDBName      = "DANTE_DB_NAME"
	EnvRedisURL    = "DANTE_REDIS_URL"
	EnvJWTSecret   = "DANTE_JWT_SECRET"
	EnvJWTIssuer   = "DANTE_JWT_ISSUER"
	EnvHold        = "DANTE_RESERVATION_HOLD"
	EnvRetries     = "DANTE_RESERVATION_RETRY_ATTEMPTS"
	EnvOutboxSink  = "DANTE_OUTBOX_SINK"
	EnvKafkaBroker = "DANTE_KAFKA_BROKERS"
)

var dsnPartEnvVars = []string{EnvDBHost, EnvDBUser, EnvDBName}
