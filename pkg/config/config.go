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
	DB           DBConfig
	Redis        RedisConfig
	Razorpay     RazorpayConfig
	Webhook      WebhookConfig
	FeatureFlags FeatureFlagsConfig
}

func Load() (*Config, error) {
	var cfg Config
	if err := envconfig.Process(EnvPrefix, &cfg); err != nil {
		return nil, fmt.Errorf("parsing config: %w", err)
	}
	if err := cfg.DB.ensureDSN(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

type AppConfig struct {
	Env          string `envconfig:"CASHIER_APP_ENV" required:"true"`
	Port         string `envconfig:"CASHIER_APP_PORT" required:"true"`
	LogLevel     string `envconfig:"CASHIER_LOG_LEVEL" default:"info"`
	LogWarnStack bool   `envconfig:"CASHIER_LOG_WARN_STACK" default:"false"`
}

func (a AppConfig) IsDev() bool {
	return strings.EqualFold(a.Env, AppEnvDev)
}

func (a AppConfig) IsProd() bool {
	return strings.EqualFold(a.Env, AppEnvProd)
}

type DBConfig struct {
	DSN    string `envconfig:"CASHIER_DB_DSN"`
	Driver string `envconfig:"CASHIER_DB_DRIVER" default:"postgres"`

	LegacyHost     string `envconfig:"CASHIER_DB_HOST"`
	LegacyPort     int    `envconfig:"CASHIER_DB_PORT" default:"5432"`
	LegacyUser     string `envconfig:"CASHIER_DB_USER"`
	LegacyPassword string `envconfig:"CASHIER_DB_PASSWORD"`
	LegacyName     string `envconfig:"CASHIER_DB_NAME"`
	LegacySSLMode  string `envconfig:"CASHIER_DB_SSLMODE" default:"disable"`

	MaxOpenConns    int           `envconfig:"CASHIER_DB_MAX_OPEN_CONNS" default:"20"`
	MaxIdleConns    int           `envconfig:"CASHIER_DB_MAX_IDLE_CONNS" default:"10"`
	ConnMaxLifetime time.Duration `envconfig:"CASHIER_DB_CONN_MAX_LIFETIME" default:"1h"`
	ConnMaxIdleTime time.Duration `envconfig:"CASHIER_DB_CONN_MAX_IDLE_TIME" default:"10m"`
}

type RedisConfig struct {
	URL          string        `envconfig:"CASHIER_REDIS_URL" required:"true"`
	Address      string        `envconfig:"CASHIER_REDIS_ADDR"`
	Password     string        `envconfig:"CASHIER_REDIS_PASSWORD"`
	DB           int           `envconfig:"CASHIER_REDIS_DB" default:"0"`
	PoolSize     int           `envconfig:"CASHIER_REDIS_POOL_SIZE" default:"10"`
	MinIdleConns int           `envconfig:"CASHIER_REDIS_MIN_IDLE_CONNS" default:"2"`
	DialTimeout  time.Duration `envconfig:"CASHIER_REDIS_DIAL_TIMEOUT" default:"5s"`
	ReadTimeout  time.Duration `envconfig:"CASHIER_REDIS_READ_TIMEOUT" default:"5s"`
	WriteTimeout time.Duration `envconfig:"CASHIER_REDIS_WRITE_TIMEOUT" default:"5s"`
}

type RazorpayConfig struct {
	KeyID         string `envconfig:"CASHIER_RAZORPAY_KEY_ID" required:"true"`
	KeySecret     string `envconfig:"CASHIER_RAZORPAY_KEY_SECRET" required:"true"`
	WebhookSecret string `envconfig:"CASHIER_RAZORPAY_WEBHOOK_SECRET"`
	Currency      string `envconfig:"CASHIER_RAZORPAY_CURRENCY" default:"INR"`
	Locale        string `envconfig:"CASHIER_RAZORPAY_LOCALE" default:"en"`

	// WebhookPath is the route segment the gateway posts to: /{path}/webhook.
	WebhookPath string `envconfig:"CASHIER_RAZORPAY_WEBHOOK_PATH" default:"razorpay"`

	// DeactivatePastDue makes past-due subscriptions count as inactive.
	DeactivatePastDue bool `envconfig:"CASHIER_RAZORPAY_DEACTIVATE_PAST_DUE" default:"false"`
}

// SignatureCheckEnabled reports whether webhook signatures will be verified.
// Verification is skipped only when no webhook secret is configured.
func (r RazorpayConfig) SignatureCheckEnabled() bool {
	return strings.TrimSpace(r.WebhookSecret) != ""
}

type WebhookConfig struct {
	EventGuardTTL time.Duration `envconfig:"CASHIER_WEBHOOK_EVENT_GUARD_TTL" default:"72h"`
}

type FeatureFlagsConfig struct {
	AutoMigrate bool `envconfig:"CASHIER_AUTO_MIGRATE" default:"false"`
}

func (db *DBConfig) ensureDSN() error {
	if db.DSN != "" {
		return nil
	}

	missing := []string{}
	legacyValues := map[string]string{
		EnvDBHost: db.LegacyHost,
		EnvDBUser: db.LegacyUser,
		EnvDBName: db.LegacyName,
	}
	for _, env := range legacyDBEnvVars {
		if legacyValues[env] == "" {
			missing = append(missing, env)
		}
	}

	if len(missing) > 0 {
		return fmt.Errorf("either %s or %s are required", EnvDBDSN, strings.Join(missing, ", "))
	}

	userInfo := url.User(db.LegacyUser)
	if db.LegacyPassword != "" {
		userInfo = url.UserPassword(db.LegacyUser, db.LegacyPassword)
	}

	u := &url.URL{
		Scheme: "postgres",
		User:   userInfo,
		Host:   fmt.Sprintf("%s:%d", db.LegacyHost, db.LegacyPort),
		Path:   db.LegacyName,
	}

	if db.LegacySSLMode != "" {
		q := u.Query()
		q.Set("sslmode", db.LegacySSLMode)
		u.RawQuery = q.Encode()
	}

	db.DSN = u.String()
	return nil
}
