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
	JWT          JWTConfig
	Cart         CartConfig
	Payments     PaymentsConfig
	Courier      CourierConfig
	Inference    InferenceConfig
	SkinAnalysis SkinAnalysisConfig
	Withdrawals  WithdrawalsConfig
	GCP          GCPConfig
	PubSub       PubSubConfig
	Cron         CronConfig
	FeatureFlags FeatureFlagsConfig
}

func Load() (*Config, error) {
	var cfg Config
	if err := envconfig.Process(EnvPrefix, &cfg); err != nil {
		return nil, fmt.Errorf("parsing config: %w", err)
	}
	if err := cfg.DB.ensureDSN(cfg.FeatureFlags.UseSQLite); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// ToolConfig is the subset the migration tool needs. It skips the API's
// required settings so migrations run with database credentials alone.
type ToolConfig struct {
	Env          string `envconfig:"DERMASHOP_APP_ENV" default:"dev"`
	LogLevel     string `envconfig:"DERMASHOP_LOG_LEVEL" default:"info"`
	DB           DBConfig
	FeatureFlags FeatureFlagsConfig
}

func LoadTool() (*ToolConfig, error) {
	var cfg ToolConfig
	if err := envconfig.Process(EnvPrefix, &cfg); err != nil {
		return nil, fmt.Errorf("parsing config: %w", err)
	}
	if err := cfg.DB.ensureDSN(cfg.FeatureFlags.UseSQLite); err != nil {
		return nil, err
	}
	return &cfg, nil
}

type AppConfig struct {
	Env          string `envconfig:"DERMASHOP_APP_ENV" required:"true"`
	Port         string `envconfig:"DERMASHOP_APP_PORT" required:"true"`
	LogLevel     string `envconfig:"DERMASHOP_LOG_LEVEL" default:"info"`
	LogWarnStack bool   `envconfig:"DERMASHOP_LOG_WARN_STACK" default:"false"`
}

func (a AppConfig) IsDev() bool {
	return strings.EqualFold(a.Env, AppEnvDev)
}

func (a AppConfig) IsProd() bool {
	return strings.EqualFold(a.Env, AppEnvProd)
}

type DBConfig struct {
	DSN    string `envconfig:"DERMASHOP_DB_DSN"`
	Driver string `envconfig:"DERMASHOP_DB_DRIVER" default:"postgres"`

	LegacyHost     string `envconfig:"DERMASHOP_DB_HOST"`
	LegacyPort     int    `envconfig:"DERMASHOP_DB_PORT" default:"5432"`
	LegacyUser     string `envconfig:"DERMASHOP_DB_USER"`
	LegacyPassword string `envconfig:"DERMASHOP_DB_PASSWORD"`
	LegacyName     string `envconfig:"DERMASHOP_DB_NAME"`
	LegacySSLMode  string `envconfig:"DERMASHOP_DB_SSLMODE" default:"disable"`

	MaxOpenConns    int           `envconfig:"DERMASHOP_DB_MAX_OPEN_CONNS" default:"20"`
	MaxIdleConns    int           `envconfig:"DERMASHOP_DB_MAX_IDLE_CONNS" default:"10"`
	ConnMaxLifetime time.Duration `envconfig:"DERMASHOP_DB_CONN_MAX_LIFETIME" default:"1h"`
	ConnMaxIdleTime time.Duration `envconfig:"DERMASHOP_DB_CONN_MAX_IDLE_TIME" default:"10m"`
}

type RedisConfig struct {
	URL          string        `envconfig:"DERMASHOP_REDIS_URL"`
	Address      string        `envconfig:"DERMASHOP_REDIS_ADDR"`
	Password     string        `envconfig:"DERMASHOP_REDIS_PASSWORD"`
	DB           int           `envconfig:"DERMASHOP_REDIS_DB" default:"0"`
	PoolSize     int           `envconfig:"DERMASHOP_REDIS_POOL_SIZE" default:"10"`
	MinIdleConns int           `envconfig:"DERMASHOP_REDIS_MIN_IDLE_CONNS" default:"2"`
	DialTimeout  time.Duration `envconfig:"DERMASHOP_REDIS_DIAL_TIMEOUT" default:"5s"`
	ReadTimeout  time.Duration `envconfig:"DERMASHOP_REDIS_READ_TIMEOUT" default:"5s"`
	WriteTimeout time.Duration `envconfig:"DERMASHOP_REDIS_WRITE_TIMEOUT" default:"5s"`
}

type JWTConfig struct {
	Secret            string `envconfig:"DERMASHOP_JWT_SECRET" required:"true"`
	Issuer            string `envconfig:"DERMASHOP_JWT_ISSUER" required:"true"`
	ExpirationMinutes int    `envconfig:"DERMASHOP_JWT_EXPIRATION_MINUTES" default:"60"`
}

// CartConfig controls the ephemeral cart snapshot and its per-user lock.
type CartConfig struct {
	TTL              time.Duration `envconfig:"DERMASHOP_CART_TTL" default:"24h"`
	LockEnabled      bool          `envconfig:"DERMASHOP_CART_LOCK_ENABLED" default:"true"`
	LockTTL          time.Duration `envconfig:"DERMASHOP_CART_LOCK_TTL" default:"10s"`
	LockWait         time.Duration `envconfig:"DERMASHOP_CART_LOCK_WAIT" default:"3s"`
	LockPollInterval time.Duration `envconfig:"DERMASHOP_CART_LOCK_POLL_INTERVAL" default:"50ms"`
}

type PaymentsConfig struct {
	TransferWindow    time.Duration `envconfig:"DERMASHOP_PAYMENT_TRANSFER_WINDOW" default:"24h"`
	BankAccountName   string        `envconfig:"DERMASHOP_PAYMENT_BANK_ACCOUNT_NAME" default:"PT Dermashop Indonesia"`
	BankAccountNumber string        `envconfig:"DERMASHOP_PAYMENT_BANK_ACCOUNT_NUMBER"`
	WebhookTTL        time.Duration `envconfig:"DERMASHOP_PAYMENT_WEBHOOK_IDEMPOTENCY_TTL" default:"720h"`
	WebhookSecret     string        `envconfig:"DERMASHOP_PAYMENT_WEBHOOK_SECRET"`
}

type CourierConfig struct {
	WebhookTTL    time.Duration `envconfig:"DERMASHOP_COURIER_WEBHOOK_IDEMPOTENCY_TTL" default:"720h"`
	WebhookSecret string        `envconfig:"DERMASHOP_COURIER_WEBHOOK_SECRET"`
}

type InferenceConfig struct {
	BaseURL string        `envconfig:"DERMASHOP_INFERENCE_BASE_URL" required:"true"`
	APIKey  string        `envconfig:"DERMASHOP_INFERENCE_API_KEY"`
	Timeout time.Duration `envconfig:"DERMASHOP_INFERENCE_TIMEOUT" default:"30s"`
}

type SkinAnalysisConfig struct {
	MaxUploadMB     int           `envconfig:"DERMASHOP_SKIN_ANALYSIS_MAX_UPLOAD_MB" default:"10"`
	RateLimit       int64         `envconfig:"DERMASHOP_SKIN_ANALYSIS_RATE_LIMIT" default:"20"`
	RateLimitWindow time.Duration `envconfig:"DERMASHOP_SKIN_ANALYSIS_RATE_LIMIT_WINDOW" default:"1h"`
}

// MaxUploadBytes converts the configured limit into bytes.
func (s SkinAnalysisConfig) MaxUploadBytes() int64 {
	if s.MaxUploadMB <= 0 {
		return 10 << 20
	}
	return int64(s.MaxUploadMB) << 20
}

type WithdrawalsConfig struct {
	MinimumAmount int64 `envconfig:"DERMASHOP_WITHDRAWAL_MINIMUM_AMOUNT" default:"50000"`
}

type GCPConfig struct {
	ProjectID       string `envconfig:"DERMASHOP_GCP_PROJECT_ID"`
	CredentialsJSON string `envconfig:"DERMASHOP_GCP_CREDENTIALS_JSON"`
}

type PubSubConfig struct {
	NotificationTopic string `envconfig:"DERMASHOP_PUBSUB_NOTIFICATION_TOPIC" default:"dermashop-notification-events"`
}

type CronConfig struct {
	Interval time.Duration `envconfig:"DERMASHOP_CRON_INTERVAL" default:"5m"`
	LockKey  string        `envconfig:"DERMASHOP_CRON_LOCK_KEY" default:"cron:lock"`
	LockTTL  time.Duration `envconfig:"DERMASHOP_CRON_LOCK_TTL" default:"4m"`
	Jobs     []string      `envconfig:"DERMASHOP_CRON_JOBS"`
}

type FeatureFlagsConfig struct {
	UseSQLite   bool `envconfig:"DERMASHOP_USE_SQLITE" default:"false"`
	AutoMigrate bool `envconfig:"DERMASHOP_AUTO_MIGRATE" default:"false"`
}

// PubSubEnabled reports whether event fan-out to Pub/Sub is configured.
func (c *Config) PubSubEnabled() bool {
	return strings.TrimSpace(c.GCP.ProjectID) != "" && strings.TrimSpace(c.PubSub.NotificationTopic) != ""
}

func (db *DBConfig) ensureDSN(useSQLite bool) error {
	if db.DSN != "" {
		return nil
	}
	if useSQLite {
		db.Driver = DBDriverSQLite
		db.DSN = "file:dermashop.db?cache=shared"
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
