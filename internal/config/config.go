package config

import (
	"fmt"
	"os"
	"time"

	"github.com/caarlos0/env/v11"
	"gopkg.in/yaml.v3"
)

const (
	// MinPort is the minimum valid port number
	MinPort = 1
	// MaxPort is the maximum valid port number
	MaxPort = 65535
)

// EnvPrefix prefixes every environment override, e.g. BOT_RUNNER_DATABASE_HOST
const EnvPrefix = "BOT_RUNNER_"

// Queue backends
const (
	QueueBackendRabbitMQ = "rabbitmq"
	QueueBackendRedis    = "redis"
)

// Config represents the complete application configuration
type Config struct {
	Server   ServerConfig   `yaml:"server" envPrefix:"SERVER_"`
	Database DatabaseConfig `yaml:"database" envPrefix:"DATABASE_"`
	Queue    QueueConfig    `yaml:"queue" envPrefix:"QUEUE_"`
	RabbitMQ RabbitMQConfig `yaml:"rabbitmq" envPrefix:"RABBITMQ_"`
	Redis    RedisConfig    `yaml:"redis" envPrefix:"REDIS_"`
	Logging  LoggingConfig  `yaml:"logging" envPrefix:"LOG_"`
	Metrics  MetricsConfig  `yaml:"metrics" envPrefix:"METRICS_"`
	App      AppConfig      `yaml:"app" envPrefix:"APP_"`
	Worker   WorkerConfig   `yaml:"worker" envPrefix:"WORKER_"`
}

// ServerConfig holds HTTP server configuration
type ServerConfig struct {
	Port            int           `yaml:"port" env:"PORT"`
	ReadTimeout     time.Duration `yaml:"read_timeout" env:"READ_TIMEOUT"`
	WriteTimeout    time.Duration `yaml:"write_timeout" env:"WRITE_TIMEOUT"`
	IdleTimeout     time.Duration `yaml:"idle_timeout" env:"IDLE_TIMEOUT"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout" env:"SHUTDOWN_TIMEOUT"`
}

// DatabaseConfig holds PostgreSQL connection configuration
type DatabaseConfig struct {
	Host            string        `yaml:"host" env:"HOST"`
	Port            int           `yaml:"port" env:"PORT"`
	User            string        `yaml:"user" env:"USER"`
	Password        string        `yaml:"password" env:"PASSWORD"`
	Database        string        `yaml:"database" env:"NAME"`
	SSLMode         string        `yaml:"sslmode" env:"SSLMODE"`
	ConnectTimeout  time.Duration `yaml:"connect_timeout" env:"CONNECT_TIMEOUT"`
	MaxOpenConns    int           `yaml:"max_open_conns" env:"MAX_OPEN_CONNS"`
	MaxIdleConns    int           `yaml:"max_idle_conns" env:"MAX_IDLE_CONNS"`
	ConnMaxLifetime time.Duration `yaml:"conn_max_lifetime" env:"CONN_MAX_LIFETIME"`
	ConnMaxIdleTime time.Duration `yaml:"conn_max_idle_time" env:"CONN_MAX_IDLE_TIME"`
}

// QueueConfig selects the broker carrying job messages
type QueueConfig struct {
	Backend string `yaml:"backend" env:"BACKEND"`
}

// RabbitMQConfig holds RabbitMQ connection and exchange/queue configuration
type RabbitMQConfig struct {
	Host       string            `yaml:"host" env:"HOST"`
	Port       int               `yaml:"port" env:"PORT"`
	User       string            `yaml:"user" env:"USER"`
	Password   string            `yaml:"password" env:"PASSWORD"`
	VHost      string            `yaml:"vhost" env:"VHOST"`
	Exchange   ExchangeConfig    `yaml:"exchange" envPrefix:"EXCHANGE_"`
	Queue      RabbitQueueConfig `yaml:"queue" envPrefix:"QUEUE_"`
	RoutingKey string            `yaml:"routing_key" env:"ROUTING_KEY"`
	Connection ConnectionConfig  `yaml:"connection" envPrefix:"CONNECTION_"`
	Publish    PublishConfig     `yaml:"publish" envPrefix:"PUBLISH_"`
	Consumer   ConsumerConfig    `yaml:"consumer" envPrefix:"CONSUMER_"`
}

// ExchangeConfig holds RabbitMQ exchange configuration
type ExchangeConfig struct {
	Name       string `yaml:"name" env:"NAME"`
	Type       string `yaml:"type" env:"TYPE"`
	Durable    bool   `yaml:"durable" env:"DURABLE"`
	AutoDelete bool   `yaml:"auto_delete" env:"AUTO_DELETE"`
}

// RabbitQueueConfig holds RabbitMQ queue configuration
type RabbitQueueConfig struct {
	Name       string `yaml:"name" env:"NAME"`
	Durable    bool   `yaml:"durable" env:"DURABLE"`
	AutoDelete bool   `yaml:"auto_delete" env:"AUTO_DELETE"`
	Exclusive  bool   `yaml:"exclusive" env:"EXCLUSIVE"`
}

// ConnectionConfig holds RabbitMQ connection settings
type ConnectionConfig struct {
	RetryAttempts     int           `yaml:"retry_attempts" env:"RETRY_ATTEMPTS"`
	RetryInterval     time.Duration `yaml:"retry_interval" env:"RETRY_INTERVAL"`
	Heartbeat         time.Duration `yaml:"heartbeat" env:"HEARTBEAT"`
	ConnectionTimeout time.Duration `yaml:"connection_timeout" env:"TIMEOUT"`
}

// PublishConfig holds RabbitMQ publish settings
type PublishConfig struct {
	Confirms bool          `yaml:"confirms" env:"CONFIRMS"`
	Timeout  time.Duration `yaml:"timeout" env:"TIMEOUT"`
}

// ConsumerConfig holds RabbitMQ consumer settings
type ConsumerConfig struct {
	PrefetchCount int `yaml:"prefetch_count" env:"PREFETCH_COUNT"`
}

// RedisConfig holds the Redis queue backend settings
type RedisConfig struct {
	Addr         string        `yaml:"addr" env:"ADDR"`
	Password     string        `yaml:"password" env:"PASSWORD"`
	DB           int           `yaml:"db" env:"DB"`
	QueueKey     string        `yaml:"queue_key" env:"QUEUE_KEY"`
	BlockTimeout time.Duration `yaml:"block_timeout" env:"BLOCK_TIMEOUT"`
	// HeartbeatTTL is how long a silent consumer keeps its in-flight messages
	HeartbeatTTL time.Duration `yaml:"heartbeat_ttl" env:"HEARTBEAT_TTL"`
	DialTimeout  time.Duration `yaml:"dial_timeout" env:"DIAL_TIMEOUT"`
	ReadTimeout  time.Duration `yaml:"read_timeout" env:"READ_TIMEOUT"`
	WriteTimeout time.Duration `yaml:"write_timeout" env:"WRITE_TIMEOUT"`
	PoolSize     int           `yaml:"pool_size" env:"POOL_SIZE"`
}

// LoggingConfig holds logging configuration
type LoggingConfig struct {
	Level        string `yaml:"level" env:"LEVEL"`
	Format       string `yaml:"format" env:"FORMAT"`
	Output       string `yaml:"output" env:"OUTPUT"`
	EnableCaller bool   `yaml:"enable_caller" env:"ENABLE_CALLER"`
}

// MetricsConfig holds the Prometheus endpoint settings. The API service
// serves metrics on its own router; the worker listens on Port.
type MetricsConfig struct {
	Enabled bool   `yaml:"enabled" env:"ENABLED"`
	Port    int    `yaml:"port" env:"PORT"`
	Path    string `yaml:"path" env:"PATH"`
}

// AppConfig holds application metadata
type AppConfig struct {
	Name        string `yaml:"name" env:"NAME"`
	Version     string `yaml:"version" env:"VERSION"`
	Environment string `yaml:"environment" env:"ENVIRONMENT"`
}

// WorkerConfig holds worker service configuration
type WorkerConfig struct {
	// ID is the consumer tag; unique per running worker
	ID              string        `yaml:"id" env:"ID"`
	Concurrency     int           `yaml:"concurrency" env:"CONCURRENCY"`
	ScriptStepDelay time.Duration `yaml:"script_step_delay" env:"SCRIPT_STEP_DELAY"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout" env:"SHUTDOWN_TIMEOUT"`
	// RetryDelay is the pause before a message is handed back to the broker
	// because the job store was unreachable
	RetryDelay time.Duration `yaml:"retry_delay" env:"RETRY_DELAY"`
}

// Load reads the configuration file and applies environment overrides
func Load(configPath string) (*Config, error) {
	data, err := os.ReadFile(configPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	var config Config
	if err := yaml.Unmarshal(data, &config); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	if err := env.ParseWithOptions(&config, env.Options{Prefix: EnvPrefix}); err != nil {
		return nil, fmt.Errorf("failed to apply environment overrides: %w", err)
	}

	config.applyDefaults()
	return &config, nil
}

func (c *Config) applyDefaults() {
	if c.Queue.Backend == "" {
		c.Queue.Backend = QueueBackendRabbitMQ
	}
	if c.Redis.QueueKey == "" {
		c.Redis.QueueKey = "bot_jobs"
	}
	if c.Redis.HeartbeatTTL == 0 {
		c.Redis.HeartbeatTTL = 30 * time.Second
	}
	if c.Worker.RetryDelay == 0 {
		c.Worker.RetryDelay = 2 * time.Second
	}
	if c.Metrics.Path == "" {
		c.Metrics.Path = "/metrics"
	}
	if c.Worker.ID == "" {
		host, err := os.Hostname()
		if err != nil || host == "" {
			host = "worker"
		}
		c.Worker.ID = host
	}
}

// ValidateAPIConfig checks the settings the API service needs
func (c *Config) ValidateAPIConfig() error {
	if c.Server.Port < MinPort || c.Server.Port > MaxPort {
		return fmt.Errorf("invalid server port: %d (must be between %d and %d)", c.Server.Port, MinPort, MaxPort)
	}

	if err := c.validateStores(); err != nil {
		return err
	}

	return nil
}

// ValidateWorkerConfig checks the settings the worker service needs
func (c *Config) ValidateWorkerConfig() error {
	if err := c.validateStores(); err != nil {
		return err
	}

	if c.Worker.Concurrency <= 0 {
		return fmt.Errorf("worker concurrency must be greater than 0")
	}

	if c.Worker.ScriptStepDelay < 0 {
		return fmt.Errorf("worker script_step_delay must not be negative")
	}

	if c.Worker.ShutdownTimeout <= 0 {
		return fmt.Errorf("worker shutdown_timeout must be greater than 0")
	}

	if c.Worker.RetryDelay < 0 {
		return fmt.Errorf("worker retry_delay must not be negative")
	}

	if c.Metrics.Enabled && (c.Metrics.Port < MinPort || c.Metrics.Port > MaxPort) {
		return fmt.Errorf("invalid metrics port: %d (must be between %d and %d)", c.Metrics.Port, MinPort, MaxPort)
	}

	return nil
}

func (c *Config) validateStores() error {
	if c.Database.Host == "" {
		return fmt.Errorf("database host is required")
	}

	if c.Database.Port < MinPort || c.Database.Port > MaxPort {
		return fmt.Errorf("invalid database port: %d (must be between %d and %d)", c.Database.Port, MinPort, MaxPort)
	}

	if c.Database.Database == "" {
		return fmt.Errorf("database name is required")
	}

	switch c.Queue.Backend {
	case QueueBackendRabbitMQ:
		if c.RabbitMQ.Host == "" {
			return fmt.Errorf("rabbitmq host is required")
		}

		if c.RabbitMQ.Port < MinPort || c.RabbitMQ.Port > MaxPort {
			return fmt.Errorf("invalid rabbitmq port: %d (must be between %d and %d)", c.RabbitMQ.Port, MinPort, MaxPort)
		}

		if c.RabbitMQ.Exchange.Name == "" {
			return fmt.Errorf("rabbitmq exchange name is required")
		}

		if c.RabbitMQ.Queue.Name == "" {
			return fmt.Errorf("rabbitmq queue name is required")
		}
	case QueueBackendRedis:
		if c.Redis.Addr == "" {
			return fmt.Errorf("redis addr is required")
		}

		if c.Redis.HeartbeatTTL != 0 && c.Redis.HeartbeatTTL < time.Second {
			return fmt.Errorf("redis heartbeat_ttl must be at least 1s, got %s", c.Redis.HeartbeatTTL)
		}
	default:
		return fmt.Errorf("unknown queue backend: %q (must be %q or %q)", c.Queue.Backend, QueueBackendRabbitMQ, QueueBackendRedis)
	}

	return nil
}
