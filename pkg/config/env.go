package config

const (
	EnvPrefix = "PACKFINDERZ"

	AppEnvDev  = "dev"
	AppEnvProd = "prod"

	BrokerPubSub = "pubsub"
	BrokerKafka  = "kafka"
)

const (
	EnvAppEnv   = "PACKFINDERZ_APP_ENV"
	EnvPort     = "PACKFINDERZ_APP_PORT"
	EnvLogLevel = "PACKFINDERZ_LOG_LEVEL"

	EnvDBDSN  = "PACKFINDERZ_DB_DSN"
	EnvDBHost = "PACKFINDERZ_DB_HOST"
	EnvDBUser = "PACKFINDERZ_DB_USER"
	EnvDBName = "PACKFINDERZ_DB_NAME"

	EnvRedisURL  = "PACKFINDERZ_REDIS_URL"
	EnvJWTSecret = "PACKFINDERZ_JWT_SECRET"
	EnvJWTIssuer = "PACKFINDERZ_JWT_ISSUER"

	EnvEventingBroker = "PACKFINDERZ_EVENTING_BROKER"
	EnvKafkaBrokers   = "PACKFINDERZ_KAFKA_BROKERS"

	EnvReservationTTL         = "PACKFINDERZ_RESERVATION_TTL_MINUTES"
	EnvDeferredReservationTTL = "PACKFINDERZ_DEFERRED_RESERVATION_TTL_MINUTES"
	EnvReturnWindowDays       = "PACKFINDERZ_RETURN_WINDOW_DAYS"
	EnvSweeperBatchSize       = "PACKFINDERZ_SWEEPER_BATCH_SIZE"
)
