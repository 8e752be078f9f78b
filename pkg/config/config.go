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
	Service      ServiceConfig
	DB           DBConfig
	Redis        RedisConfig
	JWT          JWTConfig
	FeatureFlags FeatureFlagsConfig
	Eventing     EventingConfig
	GCP          GCPConfig
	PubSub       PubSubConfig
	Stripe       StripeConfig
	Manual       ManualProviderConfig
	Outbox       OutboxConfig
	Payouts      PayoutsConfig
}

func Load() (*Config, error) {
	var cfg Config
	if err := envconfig.Process(EnvPrefix, &cfg); err != nil {
		return nil, fmt.Errorf("parsing config: %w", err)
	}
	if err := cfg.DB.ensureDSN(); err != nil {
		return nil, err
	}
	if err := cfg.Payouts.validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

type AppConfig struct {
	Env          string `envconfig:"PACKFINDERZ_APP_ENV" required:"true"`
	Port         string `envconfig:"PACKFINDERZ_APP_PORT" required:"true"`
	LogLevel     string `envconfig:"PACKFINDERZ_LOG_LEVEL" default:"info"`
	LogFormat    string `envconfig:"PACKFINDERZ_LOG_FORMAT"`
	LogWarnStack bool   `envconfig:"PACKFINDERZ_LOG_WARN_STACK" default:"false"`
}

func (a AppConfig) IsDev() bool {
	return strings.EqualFold(a.Env, AppEnvDev)
}

func (a AppConfig) IsProd() bool {
	return strings.EqualFold(a.Env, AppEnvProd)
}

type ServiceConfig struct {
	Kind string `envconfig:"PACKFINDERZ_SERVICE_KIND" default:"api"`
}

type DBConfig struct {
	DSN    string `envconfig:"PACKFINDERZ_DB_DSN"`
	Driver string `envconfig:"PACKFINDERZ_DB_DRIVER" default:"postgres"`

	LegacyHost     string `envconfig:"PACKFINDERZ_DB_HOST"`
	LegacyPort     int    `envconfig:"PACKFINDERZ_DB_PORT" default:"5432"`
	LegacyUser     string `envconfig:"PACKFINDERZ_DB_USER"`
	LegacyPassword string `envconfig:"PACKFINDERZ_DB_PASSWORD"`
	LegacyName     string `envconfig:"PACKFINDERZ_DB_NAME"`
	LegacySSLMode  string `envconfig:"PACKFINDERZ_DB_SSLMODE" default:"disable"`

	MaxOpenConns    int           `envconfig:"PACKFINDERZ_DB_MAX_OPEN_CONNS" default:"20"`
	MaxIdleConns    int           `envconfig:"PACKFINDERZ_DB_MAX_IDLE_CONNS" default:"10"`
	ConnMaxLifetime time.Duration `envconfig:"PACKFINDERZ_DB_CONN_MAX_LIFETIME" default:"1h"`
	ConnMaxIdleTime time.Duration `envconfig:"PACKFINDERZ_DB_CONN_MAX_IDLE_TIME" default:"10m"`

	SlowQueryThreshold time.Duration `envconfig:"PACKFINDERZ_DB_SLOW_QUERY_THRESHOLD" default:"500ms"`
}

type RedisConfig struct {
	URL          string        `envconfig:"PACKFINDERZ_REDIS_URL" required:"true"`
	Address      string        `envconfig:"PACKFINDERZ_REDIS_ADDR"`
	Password     string        `envconfig:"PACKFINDERZ_REDIS_PASSWORD"`
	DB           int           `envconfig:"PACKFINDERZ_REDIS_DB" default:"0"`
	PoolSize     int           `envconfig:"PACKFINDERZ_REDIS_POOL_SIZE" default:"10"`
	MinIdleConns int           `envconfig:"PACKFINDERZ_REDIS_MIN_IDLE_CONNS" default:"2"`
	DialTimeout  time.Duration `envconfig:"PACKFINDERZ_REDIS_DIAL_TIMEOUT" default:"5s"`
	ReadTimeout  time.Duration `envconfig:"PACKFINDERZ_REDIS_READ_TIMEOUT" default:"5s"`
	WriteTimeout time.Duration `envconfig:"PACKFINDERZ_REDIS_WRITE_TIMEOUT" default:"5s"`
}

// JWTConfig verifies seller and operator tokens on the payouts API.
type JWTConfig struct {
	Secret            string `envconfig:"PACKFINDERZ_JWT_SECRET"`
	Issuer            string `envconfig:"PACKFINDERZ_JWT_ISSUER" default:"packfinderz"`
	ExpirationMinutes int    `envconfig:"PACKFINDERZ_JWT_EXPIRATION_MINUTES" default:"60"`
}

type FeatureFlagsConfig struct {
	UseSQLite   bool `envconfig:"PACKFINDERZ_USE_SQLITE" default:"false"`
	AutoMigrate bool `envconfig:"PACKFINDERZ_AUTO_MIGRATE" default:"false"`
}

type EventingConfig struct {
	OutboxIdempotencyTTL  time.Duration `envconfig:"PACKFINDERZ_EVENTING_IDEMPOTENCY_TTL" default:"720h"`
	WebhookIdempotencyTTL time.Duration `envconfig:"PACKFINDERZ_EVENTING_WEBHOOK_IDEMPOTENCY_TTL" default:"168h"`
}

type GCPConfig struct {
	ProjectID string `envconfig:"PACKFINDERZ_GCP_PROJECT_ID" required:"true"`
}

type PubSubConfig struct {
	PayoutsTopic        string `envconfig:"PACKFINDERZ_PUBSUB_PAYOUTS_TOPIC" default:"pf-payout-events"`
	PayoutsSubscription string `envconfig:"PACKFINDERZ_PUBSUB_PAYOUTS_SUBSCRIPTION" required:"true"`
	DomainTopic         string `envconfig:"PACKFINDERZ_PUBSUB_DOMAIN_TOPIC" default:"pf-domain-events"`
}

type OutboxConfig struct {
	BatchSize      int `envconfig:"PACKFINDERZ_OUTBOX_PUBLISH_BATCH_SIZE" default:"50"`
	PollIntervalMS int `envconfig:"PACKFINDERZ_OUTBOX_PUBLISH_POLL_MS" default:"500"`
	MaxAttempts    int `envconfig:"PACKFINDERZ_OUTBOX_MAX_ATTEMPTS" default:"10"`
	RetentionDays  int `envconfig:"PACKFINDERZ_OUTBOX_RETENTION_DAYS" default:"30"`
}

type StripeConfig struct {
	APIKey     string `envconfig:"PACKFINDERZ_STRIPE_API_KEY"`
	Secret     string `envconfig:"PACKFINDERZ_STRIPE_SECRET"`
	Env        string `envconfig:"PACKFINDERZ_STRIPE_ENV" default:"test"`
	Country    string `envconfig:"PACKFINDERZ_STRIPE_CONNECT_COUNTRY" default:"US"`
	RefreshURL string `envconfig:"PACKFINDERZ_STRIPE_ONBOARDING_REFRESH_URL"`
	ReturnURL  string `envconfig:"PACKFINDERZ_STRIPE_ONBOARDING_RETURN_URL"`
}

// ManualProviderConfig configures the operator-driven payout provider.
type ManualProviderConfig struct {
	WebhookSecret string `envconfig:"PACKFINDERZ_MANUAL_PAYOUT_WEBHOOK_SECRET"`
	OnboardingURL string `envconfig:"PACKFINDERZ_MANUAL_PAYOUT_ONBOARDING_URL" default:"https://ops.packfinderz.com/payouts/onboarding"`
}

type PayoutsConfig struct {
	Provider           string        `envconfig:"PACKFINDERZ_PAYOUTS_PROVIDER" default:"stripe"`
	ScanBatchSize      int           `envconfig:"PACKFINDERZ_PAYOUTS_SCAN_BATCH_SIZE" default:"100"`
	ScanRetryCount     int           `envconfig:"PACKFINDERZ_PAYOUTS_SCAN_RETRY_COUNT" default:"3"`
	ScanBaseDelayMS    int           `envconfig:"PACKFINDERZ_PAYOUTS_SCAN_BASE_DELAY_MS" default:"1000"`
	ScanInterval       time.Duration `envconfig:"PACKFINDERZ_PAYOUTS_SCAN_INTERVAL" default:"24h"`
	ProviderMaxRetries int           `envconfig:"PACKFINDERZ_PAYOUTS_PROVIDER_MAX_RETRIES" default:"3"`
	ProviderBaseDelay  time.Duration `envconfig:"PACKFINDERZ_PAYOUTS_PROVIDER_BASE_DELAY" default:"500ms"`
	ConsumerRetryDelay time.Duration `envconfig:"PACKFINDERZ_PAYOUTS_CONSUMER_RETRY_DELAY" default:"30s"`
	StepLogRetention   int           `envconfig:"PACKFINDERZ_PAYOUTS_STEP_LOG_RETENTION_DAYS" default:"90"`
}

// ScanBaseDelay returns the configured per-position scan delay.
func (p PayoutsConfig) ScanBaseDelay() time.Duration {
	if p.ScanBaseDelayMS <= 0 {
		return 0
	}
	return time.Duration(p.ScanBaseDelayMS) * time.Millisecond
}

func (p PayoutsConfig) validate() error {
	switch strings.ToLower(strings.TrimSpace(p.Provider)) {
	case PayoutProviderStripe, PayoutProviderManual:
	default:
		return fmt.Errorf("%s must be %q or %q", EnvPayoutsProvider, PayoutProviderStripe, PayoutProviderManual)
	}
	if p.ScanBatchSize <= 0 {
		return fmt.Errorf("%s must be positive", EnvPayoutsScanBatchSize)
	}
	if p.ScanRetryCount <= 0 {
		return fmt.Errorf("%s must be positive", EnvPayoutsScanRetryCount)
	}
	return nil
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
