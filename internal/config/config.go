package config

import (
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/kelseyhightower/envconfig"
	"go.uber.org/zap"
)

// Storage drivers.
const (
	StoragePostgres = "postgres"
	StorageMemory   = "memory"
)

// Config holds the storybook server configuration.
type Config struct {
	Port        string `envconfig:"SERVER_PORT" default:"8080"`
	LogLevel    string `envconfig:"LOG_LEVEL" default:"info"`
	LogEncoding string `envconfig:"LOG_ENCODING" default:"json"`
	SecretsDir  string `envconfig:"SECRETS_DIR" default:"/run/secrets"`

	StorageDriver string `envconfig:"STORAGE_DRIVER" default:"postgres"`

	DBHost        string        `envconfig:"DB_HOST" default:"localhost"`
	DBPort        string        `envconfig:"DB_PORT" default:"5432"`
	DBUser        string        `envconfig:"DB_USER" default:"storybook"`
	DBName        string        `envconfig:"DB_NAME" default:"storybook"`
	DBSSLMode     string        `envconfig:"DB_SSL_MODE" default:"disable"`
	DBMaxConns    int           `envconfig:"DB_MAX_CONNECTIONS" default:"10"`
	DBIdleTimeout time.Duration `envconfig:"DB_MAX_IDLE_MINUTES" default:"5m"`
	RunMigrations bool          `envconfig:"RUN_MIGRATIONS" default:"true"`
	// Secret, read from db_password.
	DBPassword string `ignored:"true"`

	RabbitMQURL            string `envconfig:"RABBITMQ_URL" required:"true"`
	GenerationTaskQueue    string `envconfig:"GENERATION_TASK_QUEUE" default:"story_generation_tasks"`
	GenerationResultsQueue string `envconfig:"GENERATION_RESULTS_QUEUE" default:"story_generation_results"`
	ClientUpdatesQueue     string `envconfig:"CLIENT_UPDATES_QUEUE" default:"client_updates"`

	// Empty disables the distributed submission lock.
	RedisAddr          string        `envconfig:"REDIS_ADDR" default:""`
	RedisDB            int           `envconfig:"REDIS_DB" default:"0"`
	SubmissionLockTTL  time.Duration `envconfig:"SUBMISSION_LOCK_TTL" default:"10s"`
	SubmissionLockWait time.Duration `envconfig:"SUBMISSION_LOCK_WAIT" default:"2s"`

	CustomerMonthlyLimit int           `envconfig:"CUSTOMER_MONTHLY_LIMIT" default:"2"`
	WebhookClaimTTL      time.Duration `envconfig:"WEBHOOK_CLAIM_TTL" default:"1m"`

	CORSAllowedOrigins []string `envconfig:"CORS_ALLOWED_ORIGINS" default:"http://localhost:3000"`

	// Secrets, read from jwt_secret and billing_webhook_token.
	JWTSecret           string `ignored:"true"`
	BillingWebhookToken string `ignored:"true"`
}

// LoadConfig reads the environment and the secret files under SECRETS_DIR.
func LoadConfig() (*Config, error) {
	var cfg Config
	if err := envconfig.Process("", &cfg); err != nil {
		return nil, fmt.Errorf("failed to load storybook-server configuration: %w", err)
	}
	if err := cfg.validate(); err != nil {
		return nil, err
	}

	var err error
	if cfg.StorageDriver == StoragePostgres {
		if cfg.DBPassword, err = ReadSecret(cfg.SecretsDir, "db_password"); err != nil {
			return nil, err
		}
	}
	if cfg.JWTSecret, err = ReadSecret(cfg.SecretsDir, "jwt_secret"); err != nil {
		return nil, err
	}
	if cfg.BillingWebhookToken, err = ReadSecret(cfg.SecretsDir, "billing_webhook_token"); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) validate() error {
	switch c.StorageDriver {
	case StoragePostgres, StorageMemory:
	default:
		return fmt.Errorf("unsupported STORAGE_DRIVER %q", c.StorageDriver)
	}
	if c.RabbitMQURL == "" {
		return fmt.Errorf("RABBITMQ_URL must not be empty")
	}
	if c.CustomerMonthlyLimit < 0 {
		return fmt.Errorf("CUSTOMER_MONTHLY_LIMIT must not be negative, got %d", c.CustomerMonthlyLimit)
	}
	if c.WebhookClaimTTL <= 0 {
		return fmt.Errorf("WEBHOOK_CLAIM_TTL must be positive, got %s", c.WebhookClaimTTL)
	}
	return nil
}

// ReadSecret reads a docker secret file from dir.
func ReadSecret(dir, name string) (string, error) {
	path := filepath.Join(dir, name)
	raw, err := os.ReadFile(path)
	if err != nil {
		return "", fmt.Errorf("failed to read secret file %s: %w", path, err)
	}
	secret := strings.TrimSpace(string(raw))
	if secret == "" {
		return "", fmt.Errorf("secret file %s is empty", path)
	}
	return secret, nil
}

// GetDSN returns the PostgreSQL connection string.
func (c *Config) GetDSN() string {
	return c.dsn(url.UserPassword(c.DBUser, c.DBPassword).String())
}

// MaskedDSN returns the connection string with the password hidden.
func (c *Config) MaskedDSN() string {
	return c.dsn(url.User(c.DBUser).String() + ":***")
}

func (c *Config) dsn(userinfo string) string {
	return fmt.Sprintf("postgres://%s@%s:%s/%s?sslmode=%s",
		userinfo, c.DBHost, c.DBPort, c.DBName, c.DBSSLMode)
}

// LogSummary logs the loaded configuration without secrets.
func (c *Config) LogSummary(logger *zap.Logger) {
	fields := []zap.Field{
		zap.String("port", c.Port),
		zap.String("logLevel", c.LogLevel),
		zap.String("storageDriver", c.StorageDriver),
		zap.String("rabbitmqURL", maskURL(c.RabbitMQURL)),
		zap.String("generationTaskQueue", c.GenerationTaskQueue),
		zap.String("generationResultsQueue", c.GenerationResultsQueue),
		zap.String("clientUpdatesQueue", c.ClientUpdatesQueue),
		zap.String("redisAddr", c.RedisAddr),
		zap.Int("customerMonthlyLimit", c.CustomerMonthlyLimit),
		zap.Duration("webhookClaimTTL", c.WebhookClaimTTL),
		zap.Strings("corsAllowedOrigins", c.CORSAllowedOrigins),
		zap.Bool("jwtSecretLoaded", c.JWTSecret != ""),
		zap.Bool("billingWebhookTokenLoaded", c.BillingWebhookToken != ""),
	}
	if c.StorageDriver == StoragePostgres {
		fields = append(fields,
			zap.String("dbDSN", c.MaskedDSN()),
			zap.Int("dbMaxConns", c.DBMaxConns),
			zap.Duration("dbIdleTimeout", c.DBIdleTimeout),
			zap.Bool("runMigrations", c.RunMigrations),
		)
	}
	logger.Info("Configuration loaded", fields...)
}

func maskURL(raw string) string {
	u, err := url.Parse(raw)
	if err != nil || u.User == nil {
		return raw
	}
	if _, hasPassword := u.User.Password(); hasPassword {
		u.User = url.UserPassword(u.User.Username(), "xxx")
	}
	return u.String()
}
