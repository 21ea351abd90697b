package config

import (
	"fmt"
	"os"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// Config holds all application configuration, loaded from environment
// variables (with .env support for local development).
type Config struct {
	Server   ServerConfig   `mapstructure:"server"`
	Database DatabaseConfig `mapstructure:"database"`
	Redis    RedisConfig    `mapstructure:"redis"`
	Log      LogConfig      `mapstructure:"log"`
	Payment  PaymentConfig  `mapstructure:"payment"`
	Worker   WorkerConfig   `mapstructure:"worker"`
	Stripe   StripeConfig   `mapstructure:"stripe"`
	Alipay   AlipayConfig   `mapstructure:"alipay"`
	WeChat   WeChatConfig   `mapstructure:"wechat"`
}

type ServerConfig struct {
	Port    string `mapstructure:"port"`
	GinMode string `mapstructure:"gin_mode"`
}

type DatabaseConfig struct {
	Host        string `mapstructure:"host"`
	Port        int    `mapstructure:"port"`
	User        string `mapstructure:"user"`
	Password    string `mapstructure:"password"`
	Name        string `mapstructure:"name"`
	PoolSize    int    `mapstructure:"pool_size"`
	MaxOverflow int    `mapstructure:"max_overflow"`
	Echo        bool   `mapstructure:"echo"`
}

// DSN returns the postgres connection string for gorm.io/driver/postgres.
func (c *DatabaseConfig) DSN() string {
	return fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=disable",
		c.Host, c.Port, c.User, c.Password, c.Name,
	)
}

type RedisConfig struct {
	URL      string `mapstructure:"url"`
	Password string `mapstructure:"password"`
}

type LogConfig struct {
	Level string `mapstructure:"level"`
}

type PaymentConfig struct {
	ExpireMinutesDefault int `mapstructure:"expire_minutes_default"`
}

type WorkerConfig struct {
	PollInterval time.Duration `mapstructure:"poll_interval"`
	BatchSize    int           `mapstructure:"batch_size"`
	MaxRetries   int           `mapstructure:"max_retries"`
}

type StripeConfig struct {
	SecretKey     string `mapstructure:"secret_key"`
	WebhookSecret string `mapstructure:"webhook_secret"`
}

type AlipayConfig struct {
	AppID      string `mapstructure:"app_id"`
	PrivateKey string `mapstructure:"private_key"`
	PublicKey  string `mapstructure:"public_key"`
	Sandbox    bool   `mapstructure:"sandbox"`
}

type WeChatConfig struct {
	MchID        string `mapstructure:"mch_id"`
	SerialNo     string `mapstructure:"serial_no"`
	APIV3Key     string `mapstructure:"api_v3_key"`
	PrivateKey   string `mapstructure:"private_key"`
	PlatformCert string `mapstructure:"platform_cert"`
}

// Load reads configuration from built-in defaults, a .env file (if
// present), and process environment variables, in that order of
// increasing priority: .env values never override a variable already
// set in the environment.
func Load() (*Config, error) {
	_ = godotenv.Load()

	v := viper.New()
	setDefaults(v)
	bindEnv(v)

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	// Secret-bearing values are re-read directly from the environment so
	// they are never silently shadowed by a stale viper default.
	if v := os.Getenv("DB_PASSWORD"); v != "" {
		cfg.Database.Password = v
	}
	if v := os.Getenv("REDIS_PASSWORD"); v != "" {
		cfg.Redis.Password = v
	}
	if v := os.Getenv("STRIPE_SECRET_KEY"); v != "" {
		cfg.Stripe.SecretKey = v
	}
	if v := os.Getenv("STRIPE_WEBHOOK_SECRET"); v != "" {
		cfg.Stripe.WebhookSecret = v
	}
	if v := os.Getenv("ALIPAY_PRIVATE_KEY"); v != "" {
		cfg.Alipay.PrivateKey = v
	}
	if v := os.Getenv("ALIPAY_PUBLIC_KEY"); v != "" {
		cfg.Alipay.PublicKey = v
	}
	if v := os.Getenv("WECHATPAY_API_V3_KEY"); v != "" {
		cfg.WeChat.APIV3Key = v
	}
	if v := os.Getenv("WECHATPAY_PRIVATE_KEY"); v != "" {
		cfg.WeChat.PrivateKey = v
	}
	if v := os.Getenv("WECHATPAY_PLATFORM_CERT"); v != "" {
		cfg.WeChat.PlatformCert = v
	}

	// The payment-expiry default must stay within [1, 1440] minutes.
	if cfg.Payment.ExpireMinutesDefault < 1 {
		cfg.Payment.ExpireMinutesDefault = 1
	}
	if cfg.Payment.ExpireMinutesDefault > 1440 {
		cfg.Payment.ExpireMinutesDefault = 1440
	}

	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.port", "8080")
	v.SetDefault("server.gin_mode", "release")

	v.SetDefault("database.host", "localhost")
	v.SetDefault("database.port", 5432)
	v.SetDefault("database.user", "postgres")
	v.SetDefault("database.name", "payment_gateway")
	v.SetDefault("database.pool_size", 10)
	v.SetDefault("database.max_overflow", 20)
	v.SetDefault("database.echo", false)

	v.SetDefault("redis.url", "redis://localhost:6379/0")

	v.SetDefault("log.level", "info")

	v.SetDefault("payment.expire_minutes_default", 30)

	v.SetDefault("worker.poll_interval", 2*time.Second)
	v.SetDefault("worker.batch_size", 50)
	v.SetDefault("worker.max_retries", 10)

	v.SetDefault("alipay.sandbox", false)
}

// bindEnv wires each mapstructure key to the flat, non-prefixed
// environment variable name this service's operators actually set.
func bindEnv(v *viper.Viper) {
	v.AutomaticEnv()

	binds := map[string]string{
		"server.port":     "SERVER_PORT",
		"server.gin_mode": "GIN_MODE",

		"database.host":         "DB_HOST",
		"database.port":         "DB_PORT",
		"database.user":         "DB_USER",
		"database.password":     "DB_PASSWORD",
		"database.name":         "DB_NAME",
		"database.pool_size":    "DB_POOL_SIZE",
		"database.max_overflow": "DB_MAX_OVERFLOW",
		"database.echo":         "DB_ECHO",

		"redis.url":      "REDIS_URL",
		"redis.password": "REDIS_PASSWORD",

		"log.level": "LOG_LEVEL",

		"payment.expire_minutes_default": "PAYMENT_EXPIRE_MINUTES_DEFAULT",

		"worker.poll_interval": "WORKER_POLL_INTERVAL",
		"worker.batch_size":    "WORKER_BATCH_SIZE",
		"worker.max_retries":   "WORKER_MAX_RETRIES",

		"stripe.secret_key":     "STRIPE_SECRET_KEY",
		"stripe.webhook_secret": "STRIPE_WEBHOOK_SECRET",

		"alipay.app_id":      "ALIPAY_APP_ID",
		"alipay.private_key": "ALIPAY_PRIVATE_KEY",
		"alipay.public_key":  "ALIPAY_PUBLIC_KEY",
		"alipay.sandbox":     "ALIPAY_SANDBOX",

		"wechat.mch_id":        "WECHATPAY_MCH_ID",
		"wechat.serial_no":     "WECHATPAY_SERIAL_NO",
		"wechat.api_v3_key":    "WECHATPAY_API_V3_KEY",
		"wechat.private_key":   "WECHATPAY_PRIVATE_KEY",
		"wechat.platform_cert": "WECHATPAY_PLATFORM_CERT",
	}
	for key, env := range binds {
		_ = v.BindEnv(key, env)
	}
}
