package config

// EnvPrefix is empty because every field declares its fully-prefixed
// environment variable name explicitly.
const EnvPrefix = ""

const (
	AppEnvDev  = "dev"
	AppEnvProd = "prod"
)

const (
	EnvAppEnv = "CASHIER_APP_ENV"
	EnvDBDSN  = "CASHIER_DB_DSN"
	EnvDBHost = "CASHIER_DB_HOST"
	EnvDBUser = "CASHIER_DB_USER"
	EnvDBName = "CASHIER_DB_NAME"
)

var legacyDBEnvVars = []string{EnvDBHost, EnvDBUser, EnvDBName}
