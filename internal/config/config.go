package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/Netflix/go-env"
	"github.com/joho/godotenv"
)

const (
	RetryModeInProcess = "inprocess"
	RetryModeRequeue   = "requeue"
)

type Config struct {
	DatabaseDSN string `env:"DATABASE_DSN"`
	RabbitMQURL string `env:"RABBITMQ_URL,required=true"`
	RedisURL    string `env:"REDIS_URL"`
	APIPort     int    `env:"API_PORT,default=8080"`
	MetricsPort int    `env:"METRICS_PORT,default=9090"`
	LogLevel    string `env:"LOG_LEVEL,default=info"`

	UserQueue     string `env:"USER_QUEUE,default=user_queue"`
	TemplateQueue string `env:"TEMPLATE_QUEUE,default=template_queue"`
	AuthQueue     string `env:"AUTH_QUEUE,default=auth_queue"`
	EmailRPCQueue string `env:"EMAIL_RPC_QUEUE,default=email.rpc"`
	PushRPCQueue  string `env:"PUSH_RPC_QUEUE,default=push.rpc"`

	DefaultLanguage string `env:"DEFAULT_LANGUAGE,default=en"`

	CircuitFailureThreshold uint          `env:"CIRCUIT_FAILURE_THRESHOLD,default=5"`
	CircuitCooldown         time.Duration `env:"CIRCUIT_COOLDOWN,default=60s"`

	RetryMode         string `env:"RETRY_MODE,default=inprocess"`
	MaxRetries        int    `env:"MAX_RETRIES,default=3"`
	WorkerConcurrency int    `env:"WORKER_CONCURRENCY,default=16"`
	ConsumerRequeue   bool   `env:"CONSUMER_REQUEUE,default=false"`

	EmailRelayURL   string `env:"EMAIL_RELAY_URL"`
	EmailFrom       string `env:"EMAIL_FROM,default=noreply@example.com"`
	PushRelayURL    string `env:"PUSH_RELAY_URL"`
	RateLimitPerSec int    `env:"RATE_LIMIT_PER_SEC,default=100"`

	SweepInterval  time.Duration `env:"SWEEP_INTERVAL,default=1m"`
	PendingTimeout time.Duration `env:"PENDING_TIMEOUT,default=15m"`
}

// Load reads an optional .env file and then the process environment.
// Values already present in the environment win over the file.
func Load() (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("failed to read .env: %w", err)
	}

	var cfg Config
	_, err := env.UnmarshalFromEnviron(&cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) validate() error {
	if strings.TrimSpace(c.RabbitMQURL) == "" {
		return fmt.Errorf("failed to load config: RABBITMQ_URL is required")
	}
	c.RetryMode = strings.ToLower(strings.TrimSpace(c.RetryMode))
	switch c.RetryMode {
	case RetryModeInProcess, RetryModeRequeue:
	default:
		return fmt.Errorf("invalid RETRY_MODE %q: want %s or %s", c.RetryMode, RetryModeInProcess, RetryModeRequeue)
	}
	if c.MaxRetries < 0 {
		return fmt.Errorf("MAX_RETRIES must not be negative")
	}
	if c.CircuitFailureThreshold == 0 {
		return fmt.Errorf("CIRCUIT_FAILURE_THRESHOLD must be positive")
	}
	if c.WorkerConcurrency <= 0 {
		return fmt.Errorf("WORKER_CONCURRENCY must be positive")
	}
	return nil
}

// RequireDatabase is checked by processes that own delivery logs.
func (c *Config) RequireDatabase() error {
	if strings.TrimSpace(c.DatabaseDSN) == "" {
		return fmt.Errorf("failed to load config: DATABASE_DSN is required")
	}
	return nil
}
