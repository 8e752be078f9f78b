package config

const EnvPrefix = "PACKFINDERZ"

const (
	AppEnvDev  = "dev"
	AppEnvProd = "prod"

	PayoutProviderStripe = "stripe"
	PayoutProviderManual = "manual"
)

const (
	EnvAppEnv = "PACKFINDERZ_APP_ENV"
	EnvPort   = "PACKFINDERZ_APP_PORT"

	EnvDBDSN  = "PACKFINDERZ_DB_DSN"
	EnvDBHost = "PACKFINDERZ_DB_HOST"
	EnvDBUser = "PACKFINDERZ_DB_USER"
	EnvDBName = "PACKFINDERZ_DB_NAME"

	EnvRedisURL     = "PACKFINDERZ_REDIS_URL"
	EnvGCPProjectID = "PACKFINDERZ_GCP_PROJECT_ID"

	EnvPubSubPayoutsTopic = "PACKFINDERZ_PUBSUB_PAYOUTS_TOPIC"
	EnvPubSubPayoutsSub   = "PACKFINDERZ_PUBSUB_PAYOUTS_SUBSCRIPTION"

	EnvPayoutsProvider       = "PACKFINDERZ_PAYOUTS_PROVIDER"
	EnvPayoutsScanBatchSize  = "PACKFINDERZ_PAYOUTS_SCAN_BATCH_SIZE"
	EnvPayoutsScanRetryCount = "PACKFINDERZ_PAYOUTS_SCAN_RETRY_COUNT"
)

var legacyDBEnvVars = []string{EnvDBHost, EnvDBUser, EnvDBName}
