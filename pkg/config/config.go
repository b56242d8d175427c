package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/kelseyhightower/envconfig"
)

const (
	EnvPrefix = "adboard"

	AppEnvDev  = "dev"
	AppEnvProd = "prod"
)

type Config struct {
	App          AppConfig
	Service      ServiceConfig
	DB           DBConfig
	Redis        RedisConfig
	GCP          GCPConfig
	PubSub       PubSubConfig
	Scoring      ScoringConfig
	Moderation   ModerationConfig
	FeatureFlags FeatureFlagsConfig
}

func Load() (*Config, error) {
	var cfg Config
	if err := envconfig.Process(EnvPrefix, &cfg); err != nil {
		return nil, fmt.Errorf("parsing config: %w", err)
	}
	return &cfg, nil
}

type AppConfig struct {
	Env          string `envconfig:"ADBOARD_APP_ENV" required:"true"`
	Port         string `envconfig:"ADBOARD_APP_PORT" default:"8080"`
	LogLevel     string `envconfig:"ADBOARD_LOG_LEVEL" default:"info"`
	LogWarnStack bool   `envconfig:"ADBOARD_LOG_WARN_STACK" default:"false"`
}

func (a AppConfig) IsDev() bool {
	return strings.EqualFold(a.Env, AppEnvDev)
}

func (a AppConfig) IsProd() bool {
	return strings.EqualFold(a.Env, AppEnvProd)
}

type ServiceConfig struct {
	Kind string `envconfig:"ADBOARD_SERVICE_KIND" default:"api"`
}

type DBConfig struct {
	DSN string `envconfig:"ADBOARD_DB_DSN" required:"true"`

	MaxOpenConns    int           `envconfig:"ADBOARD_DB_MAX_OPEN_CONNS" default:"20"`
	MaxIdleConns    int           `envconfig:"ADBOARD_DB_MAX_IDLE_CONNS" default:"10"`
	ConnMaxLifetime time.Duration `envconfig:"ADBOARD_DB_CONN_MAX_LIFETIME" default:"1h"`
	ConnMaxIdleTime time.Duration `envconfig:"ADBOARD_DB_CONN_MAX_IDLE_TIME" default:"10m"`
}

type RedisConfig struct {
	URL          string        `envconfig:"ADBOARD_REDIS_URL" required:"true"`
	Address      string        `envconfig:"ADBOARD_REDIS_ADDR"`
	Password     string        `envconfig:"ADBOARD_REDIS_PASSWORD"`
	DB           int           `envconfig:"ADBOARD_REDIS_DB" default:"0"`
	PoolSize     int           `envconfig:"ADBOARD_REDIS_POOL_SIZE" default:"10"`
	MinIdleConns int           `envconfig:"ADBOARD_REDIS_MIN_IDLE_CONNS" default:"2"`
	DialTimeout  time.Duration `envconfig:"ADBOARD_REDIS_DIAL_TIMEOUT" default:"5s"`
	ReadTimeout  time.Duration `envconfig:"ADBOARD_REDIS_READ_TIMEOUT" default:"5s"`
	WriteTimeout time.Duration `envconfig:"ADBOARD_REDIS_WRITE_TIMEOUT" default:"5s"`
}

type GCPConfig struct {
	ProjectID string `envconfig:"ADBOARD_GCP_PROJECT_ID" required:"true"`
}

type PubSubConfig struct {
	TaskTopic        string `envconfig:"ADBOARD_PUBSUB_TASK_TOPIC" default:"moderation-tasks"`
	TaskSubscription string `envconfig:"ADBOARD_PUBSUB_TASK_SUBSCRIPTION" required:"true"`
	DeadLetterTopic  string `envconfig:"ADBOARD_PUBSUB_DLQ_TOPIC" default:"moderation-tasks-dlq"`
}

type ScoringConfig struct {
	Timeout   time.Duration `envconfig:"ADBOARD_SCORING_TIMEOUT" default:"10s"`
	Threshold float64       `envconfig:"ADBOARD_SCORING_THRESHOLD" default:"0.5"`
}

type ModerationConfig struct {
	// MaxAttempts bounds transient redeliveries before a task is dead-lettered.
	MaxAttempts int           `envconfig:"ADBOARD_MODERATION_MAX_ATTEMPTS" default:"5"`
	AttemptTTL  time.Duration `envconfig:"ADBOARD_MODERATION_ATTEMPT_TTL" default:"24h"`

	// RepublishAfter is how long a pending row may sit without a ledger entry
	// before the reconciler re-publishes its task message.
	RepublishAfter time.Duration `envconfig:"ADBOARD_MODERATION_REPUBLISH_AFTER" default:"5m"`
	// FailAfter is the hard deadline after which an unreconciled pending row is
	// marked failed with an enqueue-failure message.
	FailAfter       time.Duration `envconfig:"ADBOARD_MODERATION_FAIL_AFTER" default:"1h"`
	ReconcileBatch  int           `envconfig:"ADBOARD_MODERATION_RECONCILE_BATCH" default:"100"`
	LedgerRetention time.Duration `envconfig:"ADBOARD_MODERATION_LEDGER_RETENTION" default:"720h"`

	CronInterval time.Duration `envconfig:"ADBOARD_CRON_INTERVAL" default:"1m"`
}

type FeatureFlagsConfig struct {
	AutoMigrate bool `envconfig:"ADBOARD_AUTO_MIGRATE" default:"false"`
}
