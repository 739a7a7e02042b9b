package config

import (
	"fmt"
	"os"
	"time"

	"github.com/ilyakaznacheev/cleanenv"
)

type Config struct {
	Port             string        `yaml:"port" env:"PORT" env-default:"8085"`
	Database         Database      `yaml:"database"`
	Redis            Redis         `yaml:"redis"`
	Kafka            Kafka         `yaml:"kafka"`
	PerformerService RemoteService `yaml:"performer_service" env-prefix:"PERFORMER_"`
	ReviewService    RemoteService `yaml:"review_service" env-prefix:"REVIEW_"`
	Worker           Worker        `yaml:"worker"`
	Log              Log           `yaml:"log"`
}

type Database struct {
	// Driver selects the concert store: postgres or memory
	Driver       string `yaml:"driver" env:"DB_DRIVER" env-default:"postgres"`
	User         string `yaml:"user" env:"DB_USER" env-default:"postgres"`
	Password     string `yaml:"password" env:"DB_PASSWORD" env-default:"password"`
	DatabaseName string `yaml:"database_name" env:"DB_NAME" env-default:"concerts"`
	Host         string `yaml:"host" env:"DB_HOST" env-default:"localhost"`
	Port         string `yaml:"port" env:"DB_PORT" env-default:"5432"`
	SSLMode      string `yaml:"ssl_mode" env:"DB_SSL_MODE" env-default:"disable"`

	// Connection Pool Settings
	MaxOpenConns    int `yaml:"max_open_conns" env:"DB_MAX_OPEN_CONNS" env-default:"25"`
	MaxIdleConns    int `yaml:"max_idle_conns" env:"DB_MAX_IDLE_CONNS" env-default:"10"`
	ConnMaxLifetime int `yaml:"conn_max_lifetime_minutes" env:"DB_CONN_MAX_LIFETIME" env-default:"30"`
}

func (d *Database) GetDatabaseURL() string {
	return fmt.Sprintf("postgres://%s:%s@%s:%s/%s?sslmode=%s",
		d.User, d.Password, d.Host, d.Port, d.DatabaseName, d.SSLMode)
}

type Redis struct {
	Enabled  bool   `yaml:"enabled" env:"REDIS_ENABLED"`
	Host     string `yaml:"host" env:"REDIS_HOST" env-default:"localhost"`
	Port     string `yaml:"port" env:"REDIS_PORT" env-default:"6379"`
	Password string `yaml:"password" env:"REDIS_PASSWORD" env-default:""`
	DB       int    `yaml:"db" env:"REDIS_DB" env-default:"0"`

	ConcertTTL int `yaml:"concert_ttl_seconds" env:"REDIS_CONCERT_TTL" env-default:"300"`
	ListTTL    int `yaml:"list_ttl_seconds" env:"REDIS_LIST_TTL" env-default:"120"`
}

func (r *Redis) GetRedisURL() string {
	return fmt.Sprintf("%s:%s", r.Host, r.Port)
}

type Kafka struct {
	Enabled            bool     `yaml:"enabled" env:"KAFKA_ENABLED"`
	Brokers            []string `yaml:"brokers" env:"KAFKA_BROKERS" env-default:"localhost:9092" env-separator:","`
	ReviewCleanupTopic string   `yaml:"review_cleanup_topic" env:"KAFKA_REVIEW_CLEANUP_TOPIC" env-default:"review-cleanup-requests"`
	ConsumerGroup      string   `yaml:"consumer_group" env:"KAFKA_CONSUMER_GROUP" env-default:"concert-service"`
}

// RemoteService configures the HTTP client of one external collaborator.
// The same block is used for the performer registry and the review store.
type RemoteService struct {
	BaseURL string `yaml:"base_url" env:"SERVICE_URL"`

	// HTTP Connection Pool Settings
	MaxIdleConns        int `yaml:"max_idle_conns" env:"HTTP_MAX_IDLE_CONNS" env-default:"20"`
	MaxIdleConnsPerHost int `yaml:"max_idle_conns_per_host" env:"HTTP_MAX_IDLE_CONNS_PER_HOST" env-default:"10"`
	MaxConnsPerHost     int `yaml:"max_conns_per_host" env:"HTTP_MAX_CONNS_PER_HOST" env-default:"20"`
	IdleConnTimeout     int `yaml:"idle_conn_timeout_seconds" env:"HTTP_IDLE_CONN_TIMEOUT" env-default:"90"`
	RequestTimeout      int `yaml:"request_timeout_seconds" env:"HTTP_REQUEST_TIMEOUT" env-default:"5"`

	// Retry policy for transport failures and 5xx responses
	MaxRetries   int `yaml:"max_retries" env:"HTTP_MAX_RETRIES" env-default:"2"`
	RetryBackoff int `yaml:"retry_backoff_ms" env:"HTTP_RETRY_BACKOFF_MS" env-default:"200"`
}

func (s *RemoteService) Timeout() time.Duration {
	return time.Duration(s.RequestTimeout) * time.Second
}

func (s *RemoteService) Backoff() time.Duration {
	return time.Duration(s.RetryBackoff) * time.Millisecond
}

type Worker struct {
	MaxWorkers  int `yaml:"max_workers" env:"WORKER_MAX_WORKERS" env-default:"10"`
	MaxAttempts int `yaml:"max_attempts" env:"WORKER_MAX_ATTEMPTS" env-default:"5"`
	// RetryDelay is multiplied by the attempt number before a redelivered deletion runs
	RetryDelay int `yaml:"retry_delay_seconds" env:"WORKER_RETRY_DELAY" env-default:"5"`
}

func (w *Worker) Delay() time.Duration {
	return time.Duration(w.RetryDelay) * time.Second
}

type Log struct {
	Level  string `yaml:"level" env:"LOG_LEVEL" env-default:"info"`
	Format string `yaml:"format" env:"LOG_FORMAT" env-default:"json"`
}

func Initialise(configPath string, useEnv bool) (*Config, error) {
	cfg := &Config{}

	if useEnv {
		if err := cleanenv.ReadEnv(cfg); err != nil {
			return nil, fmt.Errorf("failed to read environment variables: %w", err)
		}
		return cfg, cfg.Validate()
	}

	if configPath != "" {
		if _, err := os.Stat(configPath); err == nil {
			if err := cleanenv.ReadConfig(configPath, cfg); err != nil {
				return nil, fmt.Errorf("failed to read config file %s: %w", configPath, err)
			}
			return cfg, cfg.Validate()
		}
	}

	// Fallback to environment variables
	if err := cleanenv.ReadEnv(cfg); err != nil {
		return nil, fmt.Errorf("failed to read environment variables: %w", err)
	}

	return cfg, cfg.Validate()
}

// Validate rejects configurations the service cannot start with.
func (c *Config) Validate() error {
	if c.PerformerService.BaseURL == "" {
		return fmt.Errorf("performer_service.base_url is required")
	}
	if c.ReviewService.BaseURL == "" {
		return fmt.Errorf("review_service.base_url is required")
	}
	switch c.Database.Driver {
	case "postgres", "memory":
	default:
		return fmt.Errorf("unsupported database driver %q", c.Database.Driver)
	}
	if c.PerformerService.MaxRetries < 0 || c.ReviewService.MaxRetries < 0 {
		return fmt.Errorf("max_retries must not be negative")
	}
	return nil
}
