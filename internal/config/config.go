package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config is the full service configuration
type Config struct {
	Port     int    `mapstructure:"port"`
	LogLevel string `mapstructure:"log_level"`
	Env      string `mapstructure:"env"`

	DB          DBConfig          `mapstructure:"db"`
	Redis       RedisConfig       `mapstructure:"redis"`
	Kafka       KafkaConfig       `mapstructure:"kafka"`
	Stripe      StripeConfig      `mapstructure:"stripe"`
	Cloudinary  CloudinaryConfig  `mapstructure:"cloudinary"`
	SMTP        SMTPConfig        `mapstructure:"smtp"`
	Auth        AuthConfig        `mapstructure:"auth"`
	Reservation ReservationConfig `mapstructure:"reservation"`
	RateLimit   RateLimitConfig   `mapstructure:"rate_limit"`
	Outbox      OutboxConfig      `mapstructure:"outbox"`
}

// DBConfig holds the database configuration
type DBConfig struct {
	Host     string `mapstructure:"host"`
	Port     int    `mapstructure:"port"`
	User     string `mapstructure:"user"`
	Password string `mapstructure:"password"`
	Name     string `mapstructure:"name"`
	SSLMode  string `mapstructure:"sslmode"`
	MaxOpen  int    `mapstructure:"max_open_conns"`
	MaxIdle  int    `mapstructure:"max_idle_conns"`
}

// RedisConfig points at the settings cache; an empty Addr disables caching
type RedisConfig struct {
	Addr     string        `mapstructure:"addr"`
	Password string        `mapstructure:"password"`
	DB       int           `mapstructure:"db"`
	TTL      time.Duration `mapstructure:"ttl"`
}

// KafkaConfig configures event publishing; no brokers means events go straight to the mailer
type KafkaConfig struct {
	Brokers       []string `mapstructure:"brokers"`
	EventsTopic   string   `mapstructure:"events_topic"`
	ConsumerGroup string   `mapstructure:"consumer_group"`
	ClientID      string   `mapstructure:"client_id"`
}

// Enabled reports whether any broker is configured
func (k KafkaConfig) Enabled() bool {
	return len(k.Brokers) > 0
}

// StripeConfig holds the payment gateway credentials
type StripeConfig struct {
	SecretKey     string `mapstructure:"secret_key"`
	WebhookSecret string `mapstructure:"webhook_secret"`
	Currency      string `mapstructure:"currency"`
}

// CloudinaryConfig holds the image host credentials
type CloudinaryConfig struct {
	URL    string `mapstructure:"url"`
	Folder string `mapstructure:"folder"`
}

// SMTPConfig holds outbound mail settings
type SMTPConfig struct {
	Host       string `mapstructure:"host"`
	Port       int    `mapstructure:"port"`
	Username   string `mapstructure:"username"`
	Password   string `mapstructure:"password"`
	From       string `mapstructure:"from"`
	AdminEmail string `mapstructure:"admin_email"`
	SiteURL    string `mapstructure:"site_url"`
}

// AuthConfig configures identity tokens
type AuthConfig struct {
	JWTSecret string        `mapstructure:"jwt_secret"`
	TokenTTL  time.Duration `mapstructure:"token_ttl"`
	Issuer    string        `mapstructure:"issuer"`
}

// ReservationConfig controls the stale reservation sweep. A zero TTL disables it.
type ReservationConfig struct {
	TTL           time.Duration `mapstructure:"ttl"`
	SweepInterval time.Duration `mapstructure:"sweep_interval"`
}

// RateLimitConfig configures per-IP limits on public write endpoints
type RateLimitConfig struct {
	RequestsPerSecond float64 `mapstructure:"rps"`
	Burst             int     `mapstructure:"burst"`
	TrustForwardedFor bool    `mapstructure:"trust_forwarded_for"`
}

// OutboxConfig configures the outbox and dead-letter processors
type OutboxConfig struct {
	PollingInterval    time.Duration `mapstructure:"polling_interval"`
	BatchSize          int           `mapstructure:"batch_size"`
	MaxRetries         int           `mapstructure:"max_retries"`
	DeadLetterInterval time.Duration `mapstructure:"dead_letter_interval"`
	ProcessingLease    time.Duration `mapstructure:"processing_lease"`
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("port", 8080)
	v.SetDefault("log_level", "info")
	v.SetDefault("env", "development")

	v.SetDefault("db.host", "localhost")
	v.SetDefault("db.port", 5432)
	v.SetDefault("db.user", "postgres")
	v.SetDefault("db.password", "postgres")
	v.SetDefault("db.name", "gallery")
	v.SetDefault("db.sslmode", "disable")
	v.SetDefault("db.max_open_conns", 25)
	v.SetDefault("db.max_idle_conns", 5)

	v.SetDefault("redis.addr", "")
	v.SetDefault("redis.ttl", 10*time.Minute)

	v.SetDefault("kafka.brokers", []string{})
	v.SetDefault("kafka.events_topic", "gallery.events")
	v.SetDefault("kafka.consumer_group", "gallery-notifier")
	v.SetDefault("kafka.client_id", "gallery-api")

	v.SetDefault("stripe.currency", "usd")
	v.SetDefault("cloudinary.folder", "gallery/commissions")

	v.SetDefault("smtp.port", 587)
	v.SetDefault("smtp.from", "studio@localhost")
	v.SetDefault("smtp.site_url", "http://localhost:5173")

	v.SetDefault("auth.token_ttl", 24*time.Hour)
	v.SetDefault("auth.issuer", "gallery-api")

	v.SetDefault("reservation.ttl", time.Duration(0))
	v.SetDefault("reservation.sweep_interval", 10*time.Minute)

	v.SetDefault("rate_limit.rps", 2.0)
	v.SetDefault("rate_limit.burst", 10)

	v.SetDefault("outbox.polling_interval", 5*time.Second)
	v.SetDefault("outbox.batch_size", 10)
	v.SetDefault("outbox.max_retries", 3)
	v.SetDefault("outbox.dead_letter_interval", 30*time.Second)
	v.SetDefault("outbox.processing_lease", 5*time.Minute)
}

// envAliases keeps the flat variable names the deployment already uses
var envAliases = map[string]string{
	"port":                  "PORT",
	"log_level":             "LOG_LEVEL",
	"env":                   "APP_ENV",
	"db.host":               "DB_HOST",
	"db.port":               "DB_PORT",
	"db.user":               "DB_USER",
	"db.password":           "DB_PASSWORD",
	"db.name":               "DB_NAME",
	"db.sslmode":            "DB_SSLMODE",
	"redis.addr":            "REDIS_ADDR",
	"redis.password":        "REDIS_PASSWORD",
	"kafka.brokers":         "KAFKA_BROKERS",
	"stripe.secret_key":     "STRIPE_SECRET_KEY",
	"stripe.webhook_secret": "STRIPE_WEBHOOK_SECRET",
	"stripe.currency":       "STRIPE_CURRENCY",
	"cloudinary.url":        "CLOUDINARY_URL",
	"smtp.host":             "SMTP_HOST",
	"smtp.port":             "SMTP_PORT",
	"smtp.username":         "SMTP_USERNAME",
	"smtp.password":         "SMTP_PASSWORD",
	"smtp.from":             "SMTP_FROM",
	"smtp.admin_email":      "ADMIN_EMAIL",
	"smtp.site_url":         "SITE_URL",
	"auth.jwt_secret":       "JWT_SECRET",
	"reservation.ttl":       "RESERVATION_TTL",
}

// Load reads defaults, then the optional file named by GALLERY_CONFIG, then environment variables
func Load() (*Config, error) {
	return LoadFile(os.Getenv("GALLERY_CONFIG"))
}

// LoadFile is Load with an explicit config file path; an empty path skips the file
func LoadFile(path string) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	v.SetEnvPrefix("GALLERY")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	for key, env := range envAliases {
		if err := v.BindEnv(key, "GALLERY_"+strings.ToUpper(strings.ReplaceAll(key, ".", "_")), env); err != nil {
			return nil, fmt.Errorf("bind env %s: %w", env, err)
		}
	}

	if path != "" {
		v.SetConfigFile(path)

		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("read config file %s: %w", path, err)
		}
	}

	var cfg Config

	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}

	// a comma separated KAFKA_BROKERS arrives as a single element
	if len(cfg.Kafka.Brokers) == 1 && strings.Contains(cfg.Kafka.Brokers[0], ",") {
		cfg.Kafka.Brokers = strings.Split(cfg.Kafka.Brokers[0], ",")
	}
	if len(cfg.Kafka.Brokers) == 1 && strings.TrimSpace(cfg.Kafka.Brokers[0]) == "" {
		cfg.Kafka.Brokers = nil
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

// Validate checks invariants that would otherwise fail at first use
func (c *Config) Validate() error {
	if c.Port <= 0 || c.Port > 65535 {
		return fmt.Errorf("invalid port: %d", c.Port)
	}

	if c.DB.Port <= 0 {
		return fmt.Errorf("invalid DB_PORT: %d", c.DB.Port)
	}

	if c.IsProduction() {
		if c.Auth.JWTSecret == "" {
			return fmt.Errorf("JWT_SECRET is required in production")
		}
		if c.Stripe.WebhookSecret == "" {
			return fmt.Errorf("STRIPE_WEBHOOK_SECRET is required in production")
		}
	}

	if c.Reservation.TTL < 0 {
		return fmt.Errorf("reservation TTL must not be negative")
	}

	return nil
}

// IsProduction reports whether the service runs with production settings
func (c *Config) IsProduction() bool {
	return strings.EqualFold(c.Env, "production")
}

// GetDBConnString returns the database connection string
func (c *Config) GetDBConnString() string {
	return fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		c.DB.Host, c.DB.Port, c.DB.User, c.DB.Password, c.DB.Name, c.DB.SSLMode)
}
