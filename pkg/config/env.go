package config

const EnvPrefix = "ESCROWLEDGER"

const (
	AppEnvDev  = "dev"
	AppEnvProd = "prod"
)

const (
	EnvAppEnv       = "ESCROWLEDGER_APP_ENV"
	EnvPort         = "ESCROWLEDGER_APP_PORT"
	EnvLogLevel     = "ESCROWLEDGER_LOG_LEVEL"
	EnvLogFormat    = "ESCROWLEDGER_LOG_FORMAT"
	EnvLogWarnStack = "ESCROWLEDGER_LOG_WARN_STACK"
	EnvAutoMigrate  = "ESCROWLEDGER_AUTO_MIGRATE"

	EnvDBDSN      = "ESCROWLEDGER_DB_DSN"
	EnvDBHost     = "ESCROWLEDGER_DB_HOST"
	EnvDBPort     = "ESCROWLEDGER_DB_PORT"
	EnvDBUser     = "ESCROWLEDGER_DB_USER"
	EnvDBPassword = "ESCROWLEDGER_DB_PASSWORD"
	EnvDBName     = "ESCROWLEDGER_DB_NAME"
	EnvDBSSLMode  = "ESCROWLEDGER_DB_SSLMODE"

	EnvRedisURL = "ESCROWLEDGER_REDIS_URL"

	EnvJWTSecret = "ESCROWLEDGER_JWT_SECRET"
	EnvJWTIssuer = "ESCROWLEDGER_JWT_ISSUER"

	EnvIntegrityInterval      = "ESCROWLEDGER_INTEGRITY_INTERVAL"
	EnvIntegrityDailyInterval = "ESCROWLEDGER_INTEGRITY_DAILY_INTERVAL"
	EnvIntegrityOrphanAge     = "ESCROWLEDGER_INTEGRITY_ORPHAN_AGE"
	EnvIntegrityDedupWindow   = "ESCROWLEDGER_INTEGRITY_DEDUP_WINDOW"
	EnvIntegrityLockTTL       = "ESCROWLEDGER_INTEGRITY_LOCK_TTL"

	EnvPayoutDispatchBatch    = "ESCROWLEDGER_PAYOUT_DISPATCH_BATCH"
	EnvPayoutDispatchInterval = "ESCROWLEDGER_PAYOUT_DISPATCH_INTERVAL"

	EnvStripeAPIKey  = "ESCROWLEDGER_STRIPE_API_KEY"
	EnvStripeEnv     = "ESCROWLEDGER_STRIPE_ENV"
	EnvStripeRetries = "ESCROWLEDGER_STRIPE_MAX_RETRIES"

	EnvTransferBreakerMaxFailures = "ESCROWLEDGER_TRANSFER_BREAKER_MAX_FAILURES"
	EnvTransferBreakerTimeout     = "ESCROWLEDGER_TRANSFER_BREAKER_TIMEOUT"
)
