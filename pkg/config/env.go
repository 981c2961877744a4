package config

const (
	EnvPrefix = "DERMASHOP"

	AppEnvDev  = "dev"
	AppEnvProd = "prod"

	DBDriverPostgres = "postgres"
	DBDriverSQLite   = "sqlite"
)

const (
	EnvAppEnv        = "DERMASHOP_APP_ENV"
	EnvPort          = "DERMASHOP_APP_PORT"
	EnvLogLevel      = "DERMASHOP_LOG_LEVEL"
	EnvDBDSN         = "DERMASHOP_DB_DSN"
	EnvDBHost        = "DERMASHOP_DB_HOST"
	EnvDBUser        = "DERMASHOP_DB_USER"
	EnvDBName        = "DERMASHOP_DB_NAME"
	EnvRedisURL      = "DERMASHOP_REDIS_URL"
	EnvJWTSecret     = "DERMASHOP_JWT_SECRET"
	EnvJWTIssuer     = "DERMASHOP_JWT_ISSUER"
	EnvCartTTL       = "DERMASHOP_CART_TTL"
	EnvInferenceURL  = "DERMASHOP_INFERENCE_BASE_URL"
	EnvGCPProjectID  = "DERMASHOP_GCP_PROJECT_ID"
	EnvUseSQLite     = "DERMASHOP_USE_SQLITE"
	EnvWithdrawalMin = "DERMASHOP_WITHDRAWAL_MINIMUM_AMOUNT"
	EnvCronJobs      = "DERMASHOP_CRON_JOBS"
)

var legacyDBEnvVars = []string{EnvDBHost, EnvDBUser, EnvDBName}
