package config

import (
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/kelseyhightower/envconfig"
)

type Config struct {
	App           AppConfig
	Service       ServiceConfig
	DB            DBConfig
	Redis         RedisConfig
	JWT           JWTConfig
	Password      PasswordConfig
	AuthRateLimit AuthRateLimitConfig
	FeatureFlags  FeatureFlagsConfig
	Gateway       GatewayConfig
	CORS          CORSConfig
	Webhooks      WebhookConfig
	Reconcile     ReconcileConfig
}

func Load() (*Config, error) {
	var cfg Config
	if err := envconfig.Process(EnvPrefix, &cfg); err != nil {
		return nil, fmt.Errorf("parsing config: %w", err)
	}
	if cfg.FeatureFlags.UseSQLite {
		cfg.DB.Driver = DriverSQLite
	}
	if err := cfg.DB.ensureDSN(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

type AppConfig struct {
	Env          string `envconfig:"NEST_APP_ENV" required:"true"`
	Port         string `envconfig:"NEST_APP_PORT" required:"true"`
	LogLevel     string `envconfig:"NEST_LOG_LEVEL" default:"info"`
	LogFormat    string `envconfig:"NEST_LOG_FORMAT" default:"json"`
	LogWarnStack bool   `envconfig:"NEST_LOG_WARN_STACK" default:"false"`
}

func (a AppConfig) IsDev() bool {
	return strings.EqualFold(a.Env, AppEnvDev)
}

func (a AppConfig) IsProd() bool {
	return strings.EqualFold(a.Env, AppEnvProd)
}

type ServiceConfig struct {
	Kind string `envconfig:"NEST_SERVICE_KIND" default:"api"`
}

type DBConfig struct {
	DSN    string `envconfig:"NEST_DB_DSN"`
	Driver string `envconfig:"NEST_DB_DRIVER" default:"postgres"`

	Host     string `envconfig:"NEST_DB_HOST"`
	Port     int    `envconfig:"NEST_DB_PORT" default:"5432"`
	User     string `envconfig:"NEST_DB_USER"`
	Password string `envconfig:"NEST_DB_PASSWORD"`
	Name     string `envconfig:"NEST_DB_NAME"`
	SSLMode  string `envconfig:"NEST_DB_SSLMODE" default:"disable"`

	MaxOpenConns    int           `envconfig:"NEST_DB_MAX_OPEN_CONNS" default:"20"`
	MaxIdleConns    int           `envconfig:"NEST_DB_MAX_IDLE_CONNS" default:"10"`
	ConnMaxLifetime time.Duration `envconfig:"NEST_DB_CONN_MAX_LIFETIME" default:"1h"`
	ConnMaxIdleTime time.Duration `envconfig:"NEST_DB_CONN_MAX_IDLE_TIME" default:"10m"`
	SlowQuery       time.Duration `envconfig:"NEST_DB_SLOW_QUERY" default:"500ms"`
}

// IsSQLite reports whether the configured driver targets SQLite.
func (db DBConfig) IsSQLite() bool {
	return strings.EqualFold(db.Driver, DriverSQLite)
}

type RedisConfig struct {
	URL          string        `envconfig:"NEST_REDIS_URL" required:"true"`
	Address      string        `envconfig:"NEST_REDIS_ADDR"`
	Password     string        `envconfig:"NEST_REDIS_PASSWORD"`
	DB           int           `envconfig:"NEST_REDIS_DB" default:"0"`
	PoolSize     int           `envconfig:"NEST_REDIS_POOL_SIZE" default:"10"`
	MinIdleConns int           `envconfig:"NEST_REDIS_MIN_IDLE_CONNS" default:"2"`
	DialTimeout  time.Duration `envconfig:"NEST_REDIS_DIAL_TIMEOUT" default:"5s"`
	ReadTimeout  time.Duration `envconfig:"NEST_REDIS_READ_TIMEOUT" default:"5s"`
	WriteTimeout time.Duration `envconfig:"NEST_REDIS_WRITE_TIMEOUT" default:"5s"`
}

type JWTConfig struct {
	Secret            string `envconfig:"NEST_JWT_SECRET" required:"true"`
	Issuer            string `envconfig:"NEST_JWT_ISSUER" required:"true"`
	ExpirationMinutes int    `envconfig:"NEST_JWT_EXPIRATION_MINUTES" required:"true"`
}

type PasswordConfig struct {
	ArgonMemoryKB    int `envconfig:"NEST_ARGON_MEMORY_KB" default:"65536"`
	ArgonTime        int `envconfig:"NEST_ARGON_TIME" default:"3"`
	ArgonParallelism int `envconfig:"NEST_ARGON_PARALLELISM" default:"2"`
	ArgonSaltLen     int `envconfig:"NEST_ARGON_SALT_LEN" default:"16"`
	ArgonKeyLen      int `envconfig:"NEST_ARGON_KEY_LEN" default:"32"`
}

type AuthRateLimitConfig struct {
	LoginWindow        time.Duration `envconfig:"NEST_AUTH_RATE_LIMIT_LOGIN_WINDOW" default:"1m"`
	LoginEmailLimit    int           `envconfig:"NEST_AUTH_RATE_LIMIT_LOGIN_EMAIL_LIMIT" default:"5"`
	LoginIPLimit       int           `envconfig:"NEST_AUTH_RATE_LIMIT_LOGIN_IP_LIMIT" default:"20"`
	RegisterWindow     time.Duration `envconfig:"NEST_AUTH_RATE_LIMIT_REGISTER_WINDOW" default:"5m"`
	RegisterEmailLimit int           `envconfig:"NEST_AUTH_RATE_LIMIT_REGISTER_EMAIL_LIMIT" default:"3"`
	RegisterIPLimit    int           `envconfig:"NEST_AUTH_RATE_LIMIT_REGISTER_IP_LIMIT" default:"20"`
}

type FeatureFlagsConfig struct {
	UseSQLite   bool `envconfig:"NEST_USE_SQLITE" default:"false"`
	AutoMigrate bool `envconfig:"NEST_AUTO_MIGRATE" default:"false"`
}

// GatewayConfig holds the payment gateway credentials. The checkout key secret
// and the webhook secret are configured separately.
type GatewayConfig struct {
	KeyID         string        `envconfig:"NEST_GATEWAY_KEY_ID" required:"true"`
	KeySecret     string        `envconfig:"NEST_GATEWAY_KEY_SECRET" required:"true"`
	WebhookSecret string        `envconfig:"NEST_GATEWAY_WEBHOOK_SECRET" required:"true"`
	BaseURL       string        `envconfig:"NEST_GATEWAY_BASE_URL" default:"https://api.razorpay.com/v1"`
	Timeout       time.Duration `envconfig:"NEST_GATEWAY_TIMEOUT" default:"10s"`
	Currency      string        `envconfig:"NEST_GATEWAY_CURRENCY" default:"INR"`
}

type CORSConfig struct {
	AllowedOrigins []string `envconfig:"NEST_CORS_ALLOWED_ORIGINS" default:"http://localhost:3000"`
}

type WebhookConfig struct {
	IdempotencyTTL time.Duration `envconfig:"NEST_WEBHOOK_IDEMPOTENCY_TTL" default:"72h"`
}

type ReconcileConfig struct {
	Interval     time.Duration `envconfig:"NEST_RECONCILE_INTERVAL" default:"5m"`
	PendingGrace time.Duration `envconfig:"NEST_RECONCILE_PENDING_GRACE" default:"15m"`
	ExpireAfter  time.Duration `envconfig:"NEST_RECONCILE_EXPIRE_AFTER" default:"24h"`
	BatchSize    int           `envconfig:"NEST_RECONCILE_BATCH_SIZE" default:"100"`
	JobTimeout   time.Duration `envconfig:"NEST_RECONCILE_JOB_TIMEOUT" default:"4m"`
	// MetricsAddr is where the worker serves /metrics; empty disables it.
	MetricsAddr  string        `envconfig:"NEST_RECONCILE_METRICS_ADDR" default:":9102"`
}

func (db *DBConfig) ensureDSN() error {
	if db.DSN != "" {
		return nil
	}
	if db.IsSQLite() {
		return fmt.Errorf("%s is required when using sqlite", EnvDBDSN)
	}

	missing := []string{}
	values := map[string]string{
		EnvDBHost: db.Host,
		EnvDBUser: db.User,
		EnvDBName: db.Name,
	}
	for _, env := range discreteDBEnvVars {
		if values[env] == "" {
			missing = append(missing, env)
		}
	}

	if len(missing) > 0 {
		return fmt.Errorf("either %s or %s are required", EnvDBDSN, strings.Join(missing, ", "))
	}

	userInfo := url.User(db.User)
	if db.Password != "" {
		userInfo = url.UserPassword(db.User, db.Password)
	}

	u := &url.URL{
		Scheme: "postgres",
		User:   userInfo,
		Host:   fmt.Sprintf("%s:%d", db.Host, db.Port),
		Path:   db.Name,
	}

	if db.SSLMode != "" {
		q := u.Query()
		q.Set("sslmode", db.SSLMode)
		u.RawQuery = q.Encode()
	}

	db.DSN = u.String()
	return nil
}
