package config

// EnvPrefix is passed to envconfig; individual fields carry fully
// qualified envconfig tags so the prefix stays empty.
const EnvPrefix = ""

const (
	AppEnvDev  = "dev"
	AppEnvProd = "prod"
)

const (
	EnvDBDSN  = "VENDIQ_DB_DSN"
	EnvDBHost = "VENDIQ_DB_HOST"
	EnvDBUser = "VENDIQ_DB_USER"
	EnvDBName = "VENDIQ_DB_NAME"
)

var legacyDBEnvVars = []string{EnvDBHost, EnvDBUser, EnvDBName}
