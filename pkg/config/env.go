package config

const (
	EnvPrefix = "NEST"

	AppEnvDev  = "dev"
	AppEnvProd = "prod"

	DriverPostgres = "postgres"
	DriverSQLite   = "sqlite"
)

// Environment variable names referenced outside struct tags.
const (
	EnvAppEnv           = "NEST_APP_ENV"
	EnvPort             = "NEST_APP_PORT"
	EnvDBDSN            = "NEST_DB_DSN"
	EnvDBDriver         = "NEST_DB_DRIVER"
	EnvDBHost           = "NEST_DB_HOST"
	EnvDBUser           = "NEST_DB_USER"
	EnvDBName           = "NEST_DB_NAME"
	EnvRedisURL         = "NEST_REDIS_URL"
	EnvJWTSecret        = "NEST_JWT_SECRET"
	EnvJWTIssuer        = "NEST_JWT_ISSUER"
	EnvJWTExpMins       = "NEST_JWT_EXPIRATION_MINUTES"
	EnvGatewayKeyID     = "NEST_GATEWAY_KEY_ID"
	EnvGatewayKeySecret = "NEST_GATEWAY_KEY_SECRET"
	EnvGatewayWebhook   = "NEST_GATEWAY_WEBHOOK_SECRET"
	EnvUseSQLite        = "NEST_USE_SQLITE"
	EnvCORSOrigins      = "NEST_CORS_ALLOWED_ORIGINS"
)

var discreteDBEnvVars = []string{EnvDBHost, EnvDBUser, EnvDBName}
