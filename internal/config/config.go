package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
	"github.com/spf13/viper"
)

// EnvPrefix prefixes every environment override, e.g. PNEUSCOPE_SERVER_PORT.
const EnvPrefix = "PNEUSCOPE"

type Config struct {
	Server    ServerConfig    `mapstructure:"server" envconfig:"server"`
	CORS      CORSConfig      `mapstructure:"cors" envconfig:"cors"`
	Database  DatabaseConfig  `mapstructure:"database" envconfig:"database"`
	Mongo     MongoConfig     `mapstructure:"mongo" envconfig:"mongo"`
	Redis     RedisConfig     `mapstructure:"redis" envconfig:"redis"`
	JWT       JWTConfig       `mapstructure:"jwt" envconfig:"jwt"`
	ML        MLConfig        `mapstructure:"ml" envconfig:"ml"`
	Predict   PredictConfig   `mapstructure:"predict" envconfig:"predict"`
	Stream    StreamConfig    `mapstructure:"stream" envconfig:"stream"`
	RateLimit RateLimitConfig `mapstructure:"rate_limit" envconfig:"rate_limit"`
	Outbox    OutboxConfig    `mapstructure:"outbox" envconfig:"outbox"`
	SMTP      SMTPConfig      `mapstructure:"smtp" envconfig:"smtp"`
	Retention RetentionConfig `mapstructure:"retention" envconfig:"retention"`
	Log       LogConfig       `mapstructure:"log" envconfig:"log"`
}

type ServerConfig struct {
	Port           int           `mapstructure:"port" envconfig:"port"`
	Env            string        `mapstructure:"env" envconfig:"env"`
	ReadTimeout    time.Duration `mapstructure:"read_timeout" envconfig:"read_timeout"`
	WriteTimeout   time.Duration `mapstructure:"write_timeout" envconfig:"write_timeout"`
	RequestTimeout time.Duration `mapstructure:"request_timeout" envconfig:"request_timeout"`
	MaxBodyBytes   int64         `mapstructure:"max_body_bytes" envconfig:"max_body_bytes"`
}

func (s ServerConfig) IsProduction() bool {
	return strings.EqualFold(s.Env, "production")
}

type CORSConfig struct {
	AllowedOrigins []string `mapstructure:"allowed_origins" envconfig:"allowed_origins"`
}

type DatabaseConfig struct {
	Host            string        `mapstructure:"host" envconfig:"host"`
	Port            int           `mapstructure:"port" envconfig:"port"`
	User            string        `mapstructure:"user" envconfig:"user"`
	Password        string        `mapstructure:"password" envconfig:"password"`
	Name            string        `mapstructure:"name" envconfig:"name"`
	SSLMode         string        `mapstructure:"sslmode" envconfig:"sslmode"`
	MaxOpenConns    int           `mapstructure:"max_open_conns" envconfig:"max_open_conns"`
	MaxIdleConns    int           `mapstructure:"max_idle_conns" envconfig:"max_idle_conns"`
	ConnMaxLifetime time.Duration `mapstructure:"conn_max_lifetime" envconfig:"conn_max_lifetime"`
}

// DSN renders the lib/pq connection string.
func (d DatabaseConfig) DSN() string {
	return fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		d.Host, d.Port, d.User, d.Password, d.Name, d.SSLMode,
	)
}

type MongoConfig struct {
	URI      string        `mapstructure:"uri" envconfig:"uri"`
	Database string        `mapstructure:"database" envconfig:"database"`
	Timeout  time.Duration `mapstructure:"timeout" envconfig:"timeout"`
}

type RedisConfig struct {
	URL          string        `mapstructure:"url" envconfig:"url"`
	MaxRetries   int           `mapstructure:"max_retries" envconfig:"max_retries"`
	RetryBackoff time.Duration `mapstructure:"retry_backoff" envconfig:"retry_backoff"`
	PoolSize     int           `mapstructure:"pool_size" envconfig:"pool_size"`
	MinIdleConns int           `mapstructure:"min_idle_conns" envconfig:"min_idle_conns"`
}

type JWTConfig struct {
	Secret     string        `mapstructure:"secret" envconfig:"secret"`
	Expiry     time.Duration `mapstructure:"expiry" envconfig:"expiry"`
	CookieName string        `mapstructure:"cookie_name" envconfig:"cookie_name"`
}

type MLConfig struct {
	URL             string        `mapstructure:"url" envconfig:"url"`
	Timeout         time.Duration `mapstructure:"timeout" envconfig:"timeout"`
	BreakerFailures uint32        `mapstructure:"breaker_failures" envconfig:"breaker_failures"`
	BreakerTimeout  time.Duration `mapstructure:"breaker_timeout" envconfig:"breaker_timeout"`
}

type PredictConfig struct {
	MaxSamples        int     `mapstructure:"max_samples" envconfig:"max_samples"`
	HighRiskThreshold float64 `mapstructure:"high_risk_threshold" envconfig:"high_risk_threshold"`
}

type StreamConfig struct {
	Interval  time.Duration `mapstructure:"interval" envconfig:"interval"`
	BatchSize int           `mapstructure:"batch_size" envconfig:"batch_size"`
	Window    time.Duration `mapstructure:"window" envconfig:"window"`
}

type RateLimitConfig struct {
	Enabled bool    `mapstructure:"enabled" envconfig:"enabled"`
	RPS     float64 `mapstructure:"rps" envconfig:"rps"`
	Burst   int     `mapstructure:"burst" envconfig:"burst"`
}

type OutboxConfig struct {
	BatchSize     int           `mapstructure:"batch_size" envconfig:"batch_size"`
	PollInterval  time.Duration `mapstructure:"poll_interval" envconfig:"poll_interval"`
	RetryAttempts int           `mapstructure:"retry_attempts" envconfig:"retry_attempts"`
	RetryDelay    time.Duration `mapstructure:"retry_delay" envconfig:"retry_delay"`
	MaxRetries    int           `mapstructure:"max_retries" envconfig:"max_retries"`
}

type SMTPConfig struct {
	Host     string `mapstructure:"host" envconfig:"host"`
	Port     int    `mapstructure:"port" envconfig:"port"`
	Username string `mapstructure:"username" envconfig:"username"`
	Password string `mapstructure:"password" envconfig:"password"`
	From     string `mapstructure:"from" envconfig:"from"`
}

type RetentionConfig struct {
	OutboxHours    int    `mapstructure:"outbox_hours" envconfig:"outbox_hours"`
	AuditDays      int    `mapstructure:"audit_days" envconfig:"audit_days"`
	OutboxSchedule string `mapstructure:"outbox_schedule" envconfig:"outbox_schedule"`
	AuditSchedule  string `mapstructure:"audit_schedule" envconfig:"audit_schedule"`
}

type LogConfig struct {
	Level  string `mapstructure:"level" envconfig:"level"`
	Pretty bool   `mapstructure:"pretty" envconfig:"pretty"`
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.port", 5000)
	v.SetDefault("server.env", "development")
	v.SetDefault("server.read_timeout", 15*time.Second)
	v.SetDefault("server.write_timeout", 15*time.Second)
	v.SetDefault("server.request_timeout", 30*time.Second)
	v.SetDefault("server.max_body_bytes", 10<<20)

	v.SetDefault("cors.allowed_origins", []string{"http://localhost:3000"})

	v.SetDefault("database.host", "localhost")
	v.SetDefault("database.port", 5432)
	v.SetDefault("database.user", "postgres")
	v.SetDefault("database.name", "pneuscope")
	v.SetDefault("database.sslmode", "disable")
	v.SetDefault("database.max_open_conns", 25)
	v.SetDefault("database.max_idle_conns", 5)
	v.SetDefault("database.conn_max_lifetime", 5*time.Minute)

	v.SetDefault("mongo.uri", "mongodb://localhost:27017")
	v.SetDefault("mongo.database", "pneuscope")
	v.SetDefault("mongo.timeout", 10*time.Second)

	v.SetDefault("redis.url", "redis://localhost:6379/0")
	v.SetDefault("redis.max_retries", 3)
	v.SetDefault("redis.retry_backoff", 100*time.Millisecond)
	v.SetDefault("redis.pool_size", 10)

	v.SetDefault("jwt.expiry", 7*24*time.Hour)
	v.SetDefault("jwt.cookie_name", "token")

	v.SetDefault("ml.url", "http://localhost:5001")
	v.SetDefault("ml.timeout", 5*time.Second)
	v.SetDefault("ml.breaker_failures", 5)
	v.SetDefault("ml.breaker_timeout", 30*time.Second)

	v.SetDefault("predict.max_samples", 10000)
	v.SetDefault("predict.high_risk_threshold", 0.7)

	v.SetDefault("stream.interval", time.Second)
	v.SetDefault("stream.batch_size", 5)
	v.SetDefault("stream.window", time.Minute)

	v.SetDefault("rate_limit.enabled", true)
	v.SetDefault("rate_limit.rps", 20)
	v.SetDefault("rate_limit.burst", 40)

	v.SetDefault("outbox.batch_size", 50)
	v.SetDefault("outbox.poll_interval", 2*time.Second)
	v.SetDefault("outbox.retry_attempts", 3)
	v.SetDefault("outbox.retry_delay", 200*time.Millisecond)
	v.SetDefault("outbox.max_retries", 5)

	v.SetDefault("smtp.port", 587)
	v.SetDefault("smtp.from", "PneuScope <no-reply@pneuscope.local>")

	v.SetDefault("retention.outbox_hours", 24)
	v.SetDefault("retention.audit_days", 90)
	v.SetDefault("retention.outbox_schedule", "@hourly")
	v.SetDefault("retention.audit_schedule", "0 3 * * *")

	v.SetDefault("log.level", "info")
}

// LoadConfig reads config.yaml (when present), then .env, then
// PNEUSCOPE_* environment overrides.
func LoadConfig(paths ...string) (*Config, error) {
	// A missing .env is normal outside local development.
	_ = godotenv.Load()

	v := viper.New()
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	if len(paths) == 0 {
		paths = []string{".", "./config", "/app/config"}
	}
	for _, p := range paths {
		v.AddConfigPath(p)
	}
	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if err := envconfig.Process(EnvPrefix, &cfg); err != nil {
		return nil, fmt.Errorf("failed to apply environment overrides: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate rejects configurations the service cannot run with.
func (c *Config) Validate() error {
	var problems []string
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		problems = append(problems, "server.port must be between 1 and 65535")
	}
	if c.JWT.Secret == "" {
		problems = append(problems, "jwt.secret is required")
	}
	if c.JWT.Expiry <= 0 {
		problems = append(problems, "jwt.expiry must be positive")
	}
	if c.Predict.MaxSamples <= 0 {
		problems = append(problems, "predict.max_samples must be positive")
	}
	if c.Predict.HighRiskThreshold <= 0 || c.Predict.HighRiskThreshold > 1 {
		problems = append(problems, "predict.high_risk_threshold must be within (0,1]")
	}
	if c.Stream.Interval <= 0 || c.Stream.BatchSize <= 0 || c.Stream.Window < c.Stream.Interval {
		problems = append(problems, "stream interval, batch_size and window must be positive and window >= interval")
	}
	if c.Outbox.BatchSize <= 0 || c.Outbox.PollInterval <= 0 || c.Outbox.RetryAttempts <= 0 || c.Outbox.RetryDelay <= 0 {
		problems = append(problems, "outbox settings must be positive")
	}
	if len(problems) > 0 {
		return fmt.Errorf("invalid configuration: %s", strings.Join(problems, "; "))
	}
	return nil
}
