package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/ilyakaznacheev/cleanenv"
	"github.com/joho/godotenv"
)

// Config aggregates runtime configuration for the service.
type Config struct {
	App          AppConfig          `yaml:"app"`
	Postgres     PostgresConfig     `yaml:"postgres"`
	Redis        RedisConfig        `yaml:"redis"`
	Lock         LockConfig         `yaml:"lock"`
	Logger       LoggerConfig       `yaml:"logger"`
	Auth         AuthConfig         `yaml:"auth"`
	SLA          SLAConfig          `yaml:"sla"`
	Scanner      ScannerConfig      `yaml:"scanner"`
	RedFlag      RedFlagConfig      `yaml:"red_flag"`
	Notification NotificationConfig `yaml:"notification"`
}

// AppConfig controls server level behavior.
type AppConfig struct {
	Name                  string `yaml:"name" env:"APP_NAME" env-default:"helpdesk-service"`
	Env                   string `yaml:"env" env:"APP_ENV" env-default:"development"`
	Host                  string `yaml:"host" env:"APP_HOST" env-default:"0.0.0.0"`
	Port                  string `yaml:"port" env:"APP_PORT" env-default:"8080"`
	Version               string `yaml:"version" env:"APP_VERSION" env-default:"dev"`
	RequestTimeoutSeconds int    `yaml:"request_timeout_seconds" env:"HTTP_REQUEST_TIMEOUT_SECONDS" env-default:"30"`
}

// PostgresConfig holds DB connection values. An empty DSN selects in-memory storage.
type PostgresConfig struct {
	DSN             string `yaml:"dsn" env:"POSTGRES_DSN"`
	MaxConns        int32  `yaml:"max_conns" env:"POSTGRES_MAX_CONNS" env-default:"10"`
	MinConns        int32  `yaml:"min_conns" env:"POSTGRES_MIN_CONNS" env-default:"2"`
	RunMigrations   bool   `yaml:"run_migrations" env:"POSTGRES_RUN_MIGRATIONS" env-default:"true"`
	ConnMaxIdleSec  int32  `yaml:"conn_max_idle_seconds" env:"POSTGRES_CONN_MAX_IDLE_SECONDS" env-default:"30"`
	ConnMaxLifeSec  int32  `yaml:"conn_max_life_seconds" env:"POSTGRES_CONN_MAX_LIFE_SECONDS" env-default:"300"`
	ConnectAttempts int    `yaml:"connect_attempts" env:"POSTGRES_CONNECT_ATTEMPTS" env-default:"5"`
}

// RedisConfig holds Redis connection values. An empty Addr selects in-process locking.
type RedisConfig struct {
	Addr     string `yaml:"addr" env:"REDIS_ADDR"`
	Password string `yaml:"password" env:"REDIS_PASSWORD"`
	DB       int    `yaml:"db" env:"REDIS_DB" env-default:"0"`
}

// LockConfig bounds per-ticket lock acquisition.
type LockConfig struct {
	Wait  time.Duration `yaml:"wait" env:"LOCK_WAIT" env-default:"5s"`
	TTL   time.Duration `yaml:"ttl" env:"LOCK_TTL" env-default:"30s"`
	Retry time.Duration `yaml:"retry" env:"LOCK_RETRY" env-default:"50ms"`
}

// LoggerConfig configures logging behavior.
type LoggerConfig struct {
	Level      string `yaml:"level" env:"LOG_LEVEL" env-default:"info"`
	File       string `yaml:"file" env:"LOG_FILE"`
	MaxSizeMB  int    `yaml:"max_size_mb" env:"LOG_MAX_SIZE_MB" env-default:"100"`
	MaxBackups int    `yaml:"max_backups" env:"LOG_MAX_BACKUPS" env-default:"5"`
	MaxAgeDays int    `yaml:"max_age_days" env:"LOG_MAX_AGE_DAYS" env-default:"30"`
}

// AuthConfig defines bearer token parameters. Admins of PlatformTenantID manage
// global policies, global rules and the feature catalog; empty disables those writes.
type AuthConfig struct {
	JWTSecret             string `yaml:"jwt_secret" env:"AUTH_JWT_SECRET" env-default:"dev-secret"`
	AccessTokenTTLMinutes int    `yaml:"access_token_ttl_minutes" env:"AUTH_ACCESS_TOKEN_TTL_MINUTES" env-default:"60"`
	PlatformTenantID      string `yaml:"platform_tenant_id" env:"AUTH_PLATFORM_TENANT_ID"`
}

// SLAConfig holds global policy defaults and the fallback business calendar.
type SLAConfig struct {
	LowFirstResponseMinutes      int           `yaml:"low_first_response_minutes" env:"SLA_LOW_FIRST_RESPONSE_MINUTES" env-default:"1440"`
	LowResolutionMinutes         int           `yaml:"low_resolution_minutes" env:"SLA_LOW_RESOLUTION_MINUTES" env-default:"7200"`
	MediumFirstResponseMinutes   int           `yaml:"medium_first_response_minutes" env:"SLA_MEDIUM_FIRST_RESPONSE_MINUTES" env-default:"480"`
	MediumResolutionMinutes      int           `yaml:"medium_resolution_minutes" env:"SLA_MEDIUM_RESOLUTION_MINUTES" env-default:"2880"`
	HighFirstResponseMinutes     int           `yaml:"high_first_response_minutes" env:"SLA_HIGH_FIRST_RESPONSE_MINUTES" env-default:"120"`
	HighResolutionMinutes        int           `yaml:"high_resolution_minutes" env:"SLA_HIGH_RESOLUTION_MINUTES" env-default:"1440"`
	CriticalFirstResponseMinutes int           `yaml:"critical_first_response_minutes" env:"SLA_CRITICAL_FIRST_RESPONSE_MINUTES" env-default:"30"`
	CriticalResolutionMinutes    int           `yaml:"critical_resolution_minutes" env:"SLA_CRITICAL_RESOLUTION_MINUTES" env-default:"240"`
	BusinessHoursOnly            bool          `yaml:"business_hours_only" env:"SLA_BUSINESS_HOURS_ONLY" env-default:"false"`
	Timezone                     string        `yaml:"timezone" env:"SLA_TIMEZONE" env-default:"UTC"`
	WorkingDays                  []string      `yaml:"working_days" env:"SLA_WORKING_DAYS" env-default:"mon,tue,wed,thu,fri"`
	DayStart                     string        `yaml:"day_start" env:"SLA_DAY_START" env-default:"09:00"`
	DayEnd                       string        `yaml:"day_end" env:"SLA_DAY_END" env-default:"18:00"`
	Holidays                     []string      `yaml:"holidays" env:"SLA_HOLIDAYS"`
	AutoCloseGrace               time.Duration `yaml:"auto_close_grace" env:"SLA_AUTO_CLOSE_GRACE" env-default:"168h"`
}

// ScannerConfig controls the breach scanner schedule.
type ScannerConfig struct {
	Enabled   bool          `yaml:"enabled" env:"SCANNER_ENABLED" env-default:"true"`
	Interval  time.Duration `yaml:"interval" env:"SCANNER_INTERVAL" env-default:"60s"`
	BatchSize int           `yaml:"batch_size" env:"SCANNER_BATCH_SIZE" env-default:"500"`
}

// RedFlagConfig configures the sentiment scorer.
type RedFlagConfig struct {
	Threshold int           `yaml:"threshold" env:"RED_FLAG_THRESHOLD" env-default:"50"`
	Timeout   time.Duration `yaml:"timeout" env:"RED_FLAG_TIMEOUT" env-default:"3s"`
	APIKey    string        `yaml:"api_key" env:"GEMINI_API_KEY"`
	Model     string        `yaml:"model" env:"GEMINI_MODEL" env-default:"gemini-1.5-flash"`
}

// NotificationConfig configures the outbound notification channels.
type NotificationConfig struct {
	Workers      int           `yaml:"workers" env:"NOTIFY_WORKERS" env-default:"2"`
	QueueSize    int           `yaml:"queue_size" env:"NOTIFY_QUEUE_SIZE" env-default:"256"`
	EmailFrom    string        `yaml:"email_from" env:"NOTIFY_EMAIL_FROM" env-default:"helpdesk@example.com"`
	EmailTo      []string      `yaml:"email_to" env:"NOTIFY_EMAIL_TO"`
	SMTPHost     string        `yaml:"smtp_host" env:"NOTIFY_SMTP_HOST"`
	SMTPPort     int           `yaml:"smtp_port" env:"NOTIFY_SMTP_PORT" env-default:"587"`
	SMTPUser     string        `yaml:"smtp_user" env:"NOTIFY_SMTP_USER"`
	SMTPPassword string        `yaml:"smtp_password" env:"NOTIFY_SMTP_PASSWORD"`
	WebhookURL   string        `yaml:"webhook_url" env:"NOTIFY_WEBHOOK_URL"`
	Timeout      time.Duration `yaml:"timeout" env:"NOTIFY_TIMEOUT" env-default:"10s"`
	KafkaBrokers []string      `yaml:"kafka_brokers" env:"NOTIFY_KAFKA_BROKERS"`
	KafkaTopic   string        `yaml:"kafka_topic" env:"NOTIFY_KAFKA_TOPIC" env-default:"helpdesk.escalations"`
}

// Load reads configuration from an optional YAML file and the environment, applying defaults.
func Load() (*Config, error) {
	_ = godotenv.Load()

	var cfg Config
	if path := strings.TrimSpace(os.Getenv("CONFIG_PATH")); path != "" {
		if err := cleanenv.ReadConfig(path, &cfg); err != nil {
			return nil, fmt.Errorf("read config %s: %w", path, err)
		}
	} else if err := cleanenv.ReadEnv(&cfg); err != nil {
		return nil, fmt.Errorf("read env: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate rejects values the service cannot run with.
func (c *Config) Validate() error {
	if c.Scanner.Interval <= 0 {
		return fmt.Errorf("SCANNER_INTERVAL must be positive")
	}
	if c.RedFlag.Threshold < 0 || c.RedFlag.Threshold > 100 {
		return fmt.Errorf("RED_FLAG_THRESHOLD must be within 0..100")
	}
	if c.Lock.Wait <= 0 || c.Lock.TTL <= 0 {
		return fmt.Errorf("LOCK_WAIT and LOCK_TTL must be positive")
	}
	if _, err := time.LoadLocation(c.SLA.Timezone); err != nil {
		return fmt.Errorf("invalid SLA_TIMEZONE: %w", err)
	}
	return nil
}

// Addr returns the HTTP bind address.
func (a AppConfig) Addr() string {
	return fmt.Sprintf("%s:%s", a.Host, a.Port)
}

// RequestTimeout returns the configured request timeout duration.
func (a AppConfig) RequestTimeout() time.Duration {
	if a.RequestTimeoutSeconds <= 0 {
		return 0
	}
	return time.Duration(a.RequestTimeoutSeconds) * time.Second
}
