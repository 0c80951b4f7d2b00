package config

import (
	"errors"
	"fmt"
	"net/url"
	"reflect"
	"strconv"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/kelseyhightower/envconfig"
	"go.uber.org/multierr"
)

// Config is the full process configuration. Every field is read from an
// ESCROWLEDGER_* variable; see env.go for the names.
type Config struct {
	App       AppConfig
	DB        DBConfig
	Redis     RedisConfig
	JWT       JWTConfig
	Integrity IntegrityConfig
	Payouts   PayoutsConfig
	Stripe    StripeConfig
	Transfers TransfersConfig
}

// Load reads the environment, fills the DSN from its parts when needed, and
// checks value ranges. Range failures are reported together.
func Load() (*Config, error) {
	var cfg Config
	if err := envconfig.Process(EnvPrefix, &cfg); err != nil {
		return nil, fmt.Errorf("parsing config: %w", err)
	}
	if err := cfg.DB.resolveDSN(); err != nil {
		return nil, err
	}
	if err := check(&cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}

type AppConfig struct {
	Env          string   `envconfig:"ESCROWLEDGER_APP_ENV" required:"true"`
	Port         string   `envconfig:"ESCROWLEDGER_APP_PORT" default:"8080" validate:"numeric"`
	LogLevel     string   `envconfig:"ESCROWLEDGER_LOG_LEVEL" default:"info"`
	LogFormat    string   `envconfig:"ESCROWLEDGER_LOG_FORMAT" default:"json" validate:"oneof=json console"`
	LogWarnStack bool     `envconfig:"ESCROWLEDGER_LOG_WARN_STACK" default:"false"`
	AutoMigrate  bool     `envconfig:"ESCROWLEDGER_AUTO_MIGRATE" default:"false"`
	CORSOrigins  []string `envconfig:"ESCROWLEDGER_CORS_ORIGINS"`
}

func (a AppConfig) IsDev() bool {
	return strings.EqualFold(a.Env, AppEnvDev)
}

func (a AppConfig) IsProd() bool {
	return strings.EqualFold(a.Env, AppEnvProd)
}

// DBConfig takes either a full DSN or its parts. A DSN wins when both are set.
type DBConfig struct {
	DSN string `envconfig:"ESCROWLEDGER_DB_DSN"`

	Host     string `envconfig:"ESCROWLEDGER_DB_HOST"`
	Port     int    `envconfig:"ESCROWLEDGER_DB_PORT" default:"5432"`
	User     string `envconfig:"ESCROWLEDGER_DB_USER"`
	Password string `envconfig:"ESCROWLEDGER_DB_PASSWORD"`
	Name     string `envconfig:"ESCROWLEDGER_DB_NAME"`
	SSLMode  string `envconfig:"ESCROWLEDGER_DB_SSLMODE" default:"disable"`

	MaxOpenConns    int           `envconfig:"ESCROWLEDGER_DB_MAX_OPEN_CONNS" default:"20" validate:"min=1"`
	MaxIdleConns    int           `envconfig:"ESCROWLEDGER_DB_MAX_IDLE_CONNS" default:"10" validate:"min=0,ltefield=MaxOpenConns"`
	ConnMaxLifetime time.Duration `envconfig:"ESCROWLEDGER_DB_CONN_MAX_LIFETIME" default:"1h"`
	ConnMaxIdleTime time.Duration `envconfig:"ESCROWLEDGER_DB_CONN_MAX_IDLE_TIME" default:"10m"`
}

func (db *DBConfig) resolveDSN() error {
	if strings.TrimSpace(db.DSN) != "" {
		return nil
	}

	parts := []struct{ env, value string }{
		{EnvDBHost, db.Host},
		{EnvDBUser, db.User},
		{EnvDBName, db.Name},
	}
	var missing []string
	for _, p := range parts {
		if strings.TrimSpace(p.value) == "" {
			missing = append(missing, p.env)
		}
	}
	if len(missing) > 0 {
		return fmt.Errorf("%s is not set and the parts are incomplete (missing %s)", EnvDBDSN, strings.Join(missing, ", "))
	}

	dsn := url.URL{
		Scheme: "postgres",
		User:   url.User(db.User),
		Host:   db.Host + ":" + strconv.Itoa(db.Port),
		Path:   "/" + db.Name,
	}
	if db.Password != "" {
		dsn.User = url.UserPassword(db.User, db.Password)
	}
	if db.SSLMode != "" {
		dsn.RawQuery = url.Values{"sslmode": {db.SSLMode}}.Encode()
	}
	db.DSN = dsn.String()
	return nil
}

type RedisConfig struct {
	URL          string        `envconfig:"ESCROWLEDGER_REDIS_URL" required:"true" validate:"startswith=redis"`
	PoolSize     int           `envconfig:"ESCROWLEDGER_REDIS_POOL_SIZE" default:"10" validate:"min=1"`
	MinIdleConns int           `envconfig:"ESCROWLEDGER_REDIS_MIN_IDLE_CONNS" default:"2"`
	DialTimeout  time.Duration `envconfig:"ESCROWLEDGER_REDIS_DIAL_TIMEOUT" default:"5s"`
	ReadTimeout  time.Duration `envconfig:"ESCROWLEDGER_REDIS_READ_TIMEOUT" default:"5s"`
	WriteTimeout time.Duration `envconfig:"ESCROWLEDGER_REDIS_WRITE_TIMEOUT" default:"5s"`
}

// JWTConfig verifies operator tokens. Tokens are issued elsewhere.
type JWTConfig struct {
	Secret string `envconfig:"ESCROWLEDGER_JWT_SECRET" required:"true" validate:"min=8"`
	Issuer string `envconfig:"ESCROWLEDGER_JWT_ISSUER" required:"true"`
}

type IntegrityConfig struct {
	Interval      time.Duration `envconfig:"ESCROWLEDGER_INTEGRITY_INTERVAL" default:"4h" validate:"gt=0"`
	DailyInterval time.Duration `envconfig:"ESCROWLEDGER_INTEGRITY_DAILY_INTERVAL" default:"24h" validate:"gt=0"`
	OrphanAge     time.Duration `envconfig:"ESCROWLEDGER_INTEGRITY_ORPHAN_AGE" default:"24h" validate:"gt=0"`
	DedupWindow   time.Duration `envconfig:"ESCROWLEDGER_INTEGRITY_DEDUP_WINDOW" default:"24h" validate:"gte=0"`
	LockTTL       time.Duration `envconfig:"ESCROWLEDGER_INTEGRITY_LOCK_TTL" default:"30m" validate:"gt=0"`
}

type PayoutsConfig struct {
	DispatchBatch    int           `envconfig:"ESCROWLEDGER_PAYOUT_DISPATCH_BATCH" default:"50" validate:"min=1,max=500"`
	DispatchInterval time.Duration `envconfig:"ESCROWLEDGER_PAYOUT_DISPATCH_INTERVAL" default:"5m" validate:"gt=0"`
}

// StripeConfig is optional in dev; the transfer sandbox takes over without a key.
type StripeConfig struct {
	APIKey            string `envconfig:"ESCROWLEDGER_STRIPE_API_KEY"`
	Env               string `envconfig:"ESCROWLEDGER_STRIPE_ENV" default:"test"`
	MaxNetworkRetries int    `envconfig:"ESCROWLEDGER_STRIPE_MAX_RETRIES" default:"2" validate:"min=0,max=10"`
}

type TransfersConfig struct {
	BreakerMaxFailures uint32        `envconfig:"ESCROWLEDGER_TRANSFER_BREAKER_MAX_FAILURES" default:"5" validate:"min=1"`
	BreakerTimeout     time.Duration `envconfig:"ESCROWLEDGER_TRANSFER_BREAKER_TIMEOUT" default:"60s" validate:"gt=0"`
	BreakerInterval    time.Duration `envconfig:"ESCROWLEDGER_TRANSFER_BREAKER_INTERVAL" default:"2m" validate:"gte=0"`
}

// check runs the validate tags. Violations name the env variable, not the Go field.
func check(cfg *Config) error {
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		return f.Tag.Get("envconfig")
	})

	err := v.Struct(cfg)
	var fields validator.ValidationErrors
	if !errors.As(err, &fields) {
		return err
	}
	var combined error
	for _, fe := range fields {
		rule := fe.Tag()
		if fe.Param() != "" {
			rule += "=" + fe.Param()
		}
		combined = multierr.Append(combined, fmt.Errorf("%s=%v violates %s", fe.Field(), fe.Value(), rule))
	}
	return fmt.Errorf("invalid config: %w", combined)
}
