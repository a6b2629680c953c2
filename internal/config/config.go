package config

import (
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
)

type Config struct {
	Env  string `validate:"required,oneof=development stage production"`
	Http Http

	Cors CORS `validate:"required"`

	Kafka Kafka `validate:"required"`

	Postgres Postgres `validate:"required"`

	Redis Redis `validate:"required"`

	Payment Payment `validate:"required"`

	Checkout Checkout `validate:"required"`

	Auth Auth `validate:"required"`

	SMTP SMTP

	Cache Cache

	Notify Notify `validate:"required"`
}

type Http struct {
	Host string `validate:"required,hostname|ip"`
	Port string `validate:"required,gt=0,lte=65535"`
}

type Kafka struct {
	Enabled bool

	GroupID            string   `validate:"required_if=Enabled true"`
	Brokers            []string `validate:"required_if=Enabled true,dive,hostname_port"`
	PaymentsTopic      string   `validate:"required_if=Enabled true"`
	NotificationsTopic string   `validate:"required_if=Enabled true"`

	ReaderMaxWait time.Duration `validate:"gte=0"`
	BatchTimeout  time.Duration `validate:"gte=0"`
}

type Postgres struct {
	Host     string `validate:"required,hostname|ip"`
	Port     int    `validate:"required,gt=0,lte=65535"`
	DBName   string `validate:"required"`
	User     string `validate:"required"`
	Password string `validate:"required"`

	SSLMode string `validate:"required,oneof=disable require verify-ca verify-full"`

	MaxOpenConns    int           `validate:"gte=1"`
	MaxIdleConns    int           `validate:"gte=0"`
	ConnMaxLifetime time.Duration `validate:"gte=0"`
}

type Redis struct {
	Addr     string `validate:"required,hostname_port"`
	Password string
	DB       int           `validate:"gte=0"`
	CartTTL  time.Duration `validate:"gt=0"`
	LockTTL  time.Duration `validate:"gt=0"`
}

type Payment struct {
	SecretKey     string `validate:"required"`
	WebhookSecret string `validate:"required"`
	Currency      string `validate:"required,len=3,lowercase"`

	BreakerTimeout     time.Duration `validate:"gt=0"`
	BreakerMaxFailures uint32        `validate:"gte=1"`
}

type Checkout struct {
	// ставки в базисных пунктах: 500 = 5%
	TaxRateBP         int64 `validate:"gte=0,lte=10000"`
	CommissionBP      int64 `validate:"gte=0,lte=10000"`
	LowStockThreshold int   `validate:"gte=0"`
}

type Auth struct {
	JWTSecret string `validate:"required"`
}

type SMTP struct {
	Host     string
	Port     int `validate:"gte=0,lte=65535"`
	User     string
	Password string
	From     string `validate:"omitempty,email"`
}

type Cache struct {
	Capacity int           `validate:"gte=0"`
	TTL      time.Duration `validate:"gte=0"`
}

type Notify struct {
	Mode string `validate:"required,oneof=sync queue"`
}

type CORS struct {
	AllowedOrigins []string `validate:"required,min=1,dive,url"`
}

func New() Config {
	return Config{
		Env: env("ENV", "development"),

		Http: Http{
			Host: env("HOST", "localhost"),
			Port: env("PORT", "8080"),
		},

		Cors: CORS{
			AllowedOrigins: strings.Split(env("ALLOWED_CORS_ORIGINS", "http://localhost:3000"), ","),
		},

		Kafka: Kafka{
			Enabled:            envBool("KAFKA_ENABLED", true),
			GroupID:            env("KAFKA_GROUP_ID", "marketplace-checkout"),
			PaymentsTopic:      env("KAFKA_PAYMENTS_TOPIC", "payment-events"),
			NotificationsTopic: env("KAFKA_NOTIFICATIONS_TOPIC", "order-notifications"),
			Brokers:            strings.Split(env("KAFKA_BROKERS", "localhost:9092"), ","),

			ReaderMaxWait: envDuration("KAFKA_READER_MAX_WAIT", 10*time.Millisecond),
			BatchTimeout:  envDuration("KAFKA_BATCH_TIMEOUT", 10*time.Millisecond),
		},

		Postgres: Postgres{
			Port:     envInt("POSTGRES_PORT", 5432),
			Host:     env("POSTGRES_HOST", "localhost"),
			DBName:   env("POSTGRES_DB", "marketplace"),
			User:     env("POSTGRES_USER", ""),
			Password: env("POSTGRES_PASSWORD", ""),

			SSLMode: env("POSTGRES_SSL_MODE", "disable"),

			MaxOpenConns:    envInt("POSTGRES_MAX_OPEN_CONNS", 25),
			MaxIdleConns:    envInt("POSTGRES_MAX_IDLE_CONNS", 25),
			ConnMaxLifetime: envDuration("POSTGRES_CONN_MAX_LIFETIME", 5*time.Minute),
		},

		Redis: Redis{
			Addr:     env("REDIS_ADDR", "localhost:6379"),
			Password: env("REDIS_PASSWORD", ""),
			DB:       envInt("REDIS_DB", 0),
			CartTTL:  envDuration("REDIS_CART_TTL", 15*time.Minute),
			LockTTL:  envDuration("REDIS_LOCK_TTL", 30*time.Second),
		},

		Payment: Payment{
			SecretKey:     env("STRIPE_SECRET_KEY", ""),
			WebhookSecret: env("STRIPE_WEBHOOK_SECRET", ""),
			Currency:      env("PAYMENT_CURRENCY", "usd"),

			BreakerTimeout:     envDuration("PAYMENT_BREAKER_TIMEOUT", 30*time.Second),
			BreakerMaxFailures: uint32(envInt("PAYMENT_BREAKER_MAX_FAILURES", 5)),
		},

		Checkout: Checkout{
			TaxRateBP:         int64(envInt("TAX_RATE_BP", 500)),
			CommissionBP:      int64(envInt("COMMISSION_BP", 1000)),
			LowStockThreshold: envInt("LOW_STOCK_THRESHOLD", 5),
		},

		Auth: Auth{
			JWTSecret: env("JWT_SECRET", ""),
		},

		SMTP: SMTP{
			Host:     env("SMTP_HOST", ""),
			Port:     envInt("SMTP_PORT", 587),
			User:     env("SMTP_USER", ""),
			Password: env("SMTP_PASSWORD", ""),
			From:     env("SMTP_FROM", ""),
		},

		Cache: Cache{
			Capacity: envInt("CACHE_CAPACITY", 1000),
			TTL:      envDuration("CACHE_TTL", 5*time.Minute),
		},

		Notify: Notify{
			Mode: env("NOTIFY_MODE", "sync"),
		},
	}
}

func (c Config) Validate() error {
	validate := validator.New()
	return validate.Struct(c)
}

func env(key string, fallback string) string {
	if value, ok := os.LookupEnv(key); ok {
		return value
	}
	return fallback
}

func envInt(key string, fallback int) int {
	if value, ok := os.LookupEnv(key); ok {
		i, err := strconv.Atoi(value)
		if err == nil {
			return i
		}
	}
	return fallback
}

func envBool(key string, fallback bool) bool {
	if value, ok := os.LookupEnv(key); ok {
		b, err := strconv.ParseBool(value)
		if err == nil {
			return b
		}
	}
	return fallback
}

func envDuration(key string, fallback time.Duration) time.Duration {
	if value, ok := os.LookupEnv(key); ok {
		d, err := time.ParseDuration(value)
		if err == nil {
			return d
		}
	}
	return fallback
}
