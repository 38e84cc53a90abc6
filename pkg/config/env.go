package config

// EnvPrefix is handed to envconfig; every field carries a fully qualified tag.
const EnvPrefix = "SETTLEMENT"

const (
	AppEnvDev  = "dev"
	AppEnvProd = "prod"

	TransportPubSub = "pubsub"
	TransportKafka  = "kafka"
)

const (
	EnvAppEnv = "SETTLEMENT_APP_ENV"
	EnvPort   = "SETTLEMENT_APP_PORT"

	EnvDBDSN  = "SETTLEMENT_DB_DSN"
	EnvDBHost = "SETTLEMENT_DB_HOST"
	EnvDBUser = "SETTLEMENT_DB_USER"
	EnvDBName = "SETTLEMENT_DB_NAME"

	EnvRedisURL = "SETTLEMENT_REDIS_URL"

	EnvGatewayKeyID         = "SETTLEMENT_GATEWAY_KEY_ID"
	EnvGatewayKeySecret     = "SETTLEMENT_GATEWAY_KEY_SECRET"
	EnvGatewayWebhookSecret = "SETTLEMENT_GATEWAY_WEBHOOK_SECRET"

	EnvCarrierAPIToken = "SETTLEMENT_CARRIER_API_TOKEN"

	EnvPayoutsAtomic = "SETTLEMENT_PAYOUTS_ATOMIC"

	EnvEventingTransport = "SETTLEMENT_EVENTING_TRANSPORT"
	EnvKafkaBrokers      = "SETTLEMENT_KAFKA_BROKERS"
)

var legacyDBEnvVars = []string{EnvDBHost, EnvDBUser, EnvDBName}
