package config

import (
	"fmt"
	"os"
	"time"

	"github.com/spf13/viper"
)

// Config holds all application configuration.
type Config struct {
	Server     ServerConfig     `mapstructure:"server"`
	Redis      RedisConfig      `mapstructure:"redis"`
	Backend    BackendConfig    `mapstructure:"backend"`
	Gateway    GatewayConfig    `mapstructure:"gateway"`
	Reconcile  ReconcileConfig  `mapstructure:"reconcile"`
	Session    SessionConfig    `mapstructure:"session"`
	Auth       AuthConfig       `mapstructure:"auth"`
	Storefront StorefrontConfig `mapstructure:"storefront"`
	Log        LogConfig        `mapstructure:"log"`
}

// ServerConfig holds HTTP server configuration.
type ServerConfig struct {
	Address      string        `mapstructure:"address"`
	ReadTimeout  time.Duration `mapstructure:"read_timeout"`
	WriteTimeout time.Duration `mapstructure:"write_timeout"`
	IdleTimeout  time.Duration `mapstructure:"idle_timeout"`
	CORSOrigins  []string      `mapstructure:"cors_origins"`
}

// RedisConfig holds Redis configuration.
type RedisConfig struct {
	Address  string `mapstructure:"address"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
}

// BackendConfig holds commerce backend API client configuration.
type BackendConfig struct {
	BaseURL             string        `mapstructure:"base_url"`
	DialTimeout         time.Duration `mapstructure:"dial_timeout"`
	ResponseTimeout     time.Duration `mapstructure:"response_timeout"`
	KeepAlive           time.Duration `mapstructure:"keep_alive"`
	MaxIdleConns        int           `mapstructure:"max_idle_conns"`
	MaxIdleConnsPerHost int           `mapstructure:"max_idle_conns_per_host"`
	IdleConnTimeout     time.Duration `mapstructure:"idle_conn_timeout"`
	TLSHandshakeTimeout time.Duration `mapstructure:"tls_handshake_timeout"`
	BreakerMaxRequests  uint32        `mapstructure:"breaker_max_requests"`
	BreakerInterval     time.Duration `mapstructure:"breaker_interval"`
	BreakerTimeout      time.Duration `mapstructure:"breaker_timeout"`
	BreakerMinRequests  uint32        `mapstructure:"breaker_min_requests"`
	BreakerFailureRatio float64       `mapstructure:"breaker_failure_ratio"`
}

// GatewayConfig holds payment gateway configuration.
type GatewayConfig struct {
	Default  string         `mapstructure:"default"`
	Razorpay RazorpayConfig `mapstructure:"razorpay"`
	Stripe   StripeConfig   `mapstructure:"stripe"`
}

// RazorpayConfig holds Razorpay credentials and checkout asset settings.
type RazorpayConfig struct {
	KeyID        string `mapstructure:"key_id"`
	KeySecret    string `mapstructure:"key_secret"`
	ScriptURL    string `mapstructure:"script_url"`
	MerchantName string `mapstructure:"merchant_name"`
	ThemeColor   string `mapstructure:"theme_color"`
}

// StripeConfig holds Stripe credentials for the redirect checkout flow.
type StripeConfig struct {
	SecretKey string `mapstructure:"secret_key"`
}

// ReconcileConfig holds payment confirmation polling configuration.
type ReconcileConfig struct {
	MaxAttempts   int           `mapstructure:"max_attempts"`
	Interval      time.Duration `mapstructure:"interval"`
	RedirectDelay time.Duration `mapstructure:"redirect_delay"`
}

// SessionConfig holds checkout session store configuration.
type SessionConfig struct {
	TTL time.Duration `mapstructure:"ttl"`
}

// AuthConfig holds authentication configuration.
type AuthConfig struct {
	JWTSecret string `mapstructure:"jwt_secret"`
}

// StorefrontConfig holds storefront routing configuration used when building
// outcome and return URLs.
type StorefrontConfig struct {
	BaseURL string `mapstructure:"base_url"`
}

// LogConfig holds logging configuration.
type LogConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

// Load loads configuration from file and environment.
func Load() (*Config, error) {
	v := viper.New()

	// Set config file name and paths
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")
	v.AddConfigPath("./configs")
	v.AddConfigPath("/etc/tiffinbox")

	// Set defaults
	setDefaults(v)

	// Read config file
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("read config: %w", err)
		}
		// Config file not found, use defaults and env
	}

	// Read from environment variables
	v.SetEnvPrefix("CHECKOUT")
	v.AutomaticEnv()

	// Unmarshal config
	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	// Override with environment variables for sensitive values
	if secret := os.Getenv("CHECKOUT_JWT_SECRET"); secret != "" {
		cfg.Auth.JWTSecret = secret
	}
	if password := os.Getenv("CHECKOUT_REDIS_PASSWORD"); password != "" {
		cfg.Redis.Password = password
	}
	if secret := os.Getenv("CHECKOUT_RAZORPAY_KEY_SECRET"); secret != "" {
		cfg.Gateway.Razorpay.KeySecret = secret
	}
	if key := os.Getenv("CHECKOUT_STRIPE_SECRET_KEY"); key != "" {
		cfg.Gateway.Stripe.SecretKey = key
	}

	return &cfg, nil
}

// setDefaults sets default configuration values.
func setDefaults(v *viper.Viper) {
	// Server defaults
	v.SetDefault("server.address", ":8080")
	v.SetDefault("server.read_timeout", 30*time.Second)
	v.SetDefault("server.write_timeout", 30*time.Second)
	v.SetDefault("server.idle_timeout", 120*time.Second)
	v.SetDefault("server.cors_origins", []string{"http://localhost:3000"})

	// Redis defaults
	v.SetDefault("redis.address", "localhost:6379")
	v.SetDefault("redis.db", 0)

	// Backend defaults
	v.SetDefault("backend.base_url", "http://localhost:9000")
	v.SetDefault("backend.dial_timeout", 5*time.Second)
	v.SetDefault("backend.response_timeout", 15*time.Second)
	v.SetDefault("backend.keep_alive", 30*time.Second)
	v.SetDefault("backend.max_idle_conns", 100)
	v.SetDefault("backend.max_idle_conns_per_host", 10)
	v.SetDefault("backend.idle_conn_timeout", 90*time.Second)
	v.SetDefault("backend.tls_handshake_timeout", 10*time.Second)
	v.SetDefault("backend.breaker_max_requests", 3)
	v.SetDefault("backend.breaker_interval", 60*time.Second)
	v.SetDefault("backend.breaker_timeout", 30*time.Second)
	v.SetDefault("backend.breaker_min_requests", 5)
	v.SetDefault("backend.breaker_failure_ratio", 0.6)

	// Gateway defaults
	v.SetDefault("gateway.default", "razorpay")
	v.SetDefault("gateway.razorpay.script_url", "https://checkout.razorpay.com/v1/checkout.js")
	v.SetDefault("gateway.razorpay.merchant_name", "TiffinBox")
	v.SetDefault("gateway.razorpay.theme_color", "#f97316")

	// Reconcile defaults
	v.SetDefault("reconcile.max_attempts", 5)
	v.SetDefault("reconcile.interval", 2*time.Second)
	v.SetDefault("reconcile.redirect_delay", 1500*time.Millisecond)

	// Session defaults
	v.SetDefault("session.ttl", 24*time.Hour)

	// Storefront defaults
	v.SetDefault("storefront.base_url", "")

	// Log defaults
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")
}
