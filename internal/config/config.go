package config

import (
	"errors"
	"fmt"
	"time"

	"github.com/spf13/viper"
)

// Config aggregates application settings that may be sourced from files or environment variables.
type Config struct {
	API         APIConfig         `mapstructure:"api"`
	Database    DatabaseConfig    `mapstructure:"database"`
	Redis       RedisConfig       `mapstructure:"redis"`
	Spaces      SpacesConfig      `mapstructure:"spaces"`
	Auth        AuthConfig        `mapstructure:"auth"`
	Clamd       ClamdConfig       `mapstructure:"clamd"`
	TextImprove TextImproveConfig `mapstructure:"text_improve"`
}

// APIConfig contains HTTP server settings.
type APIConfig struct {
	Port                  int      `mapstructure:"port"`
	AllowedOrigins        []string `mapstructure:"allowed_origins"`
	LoginRateLimitPerHour int      `mapstructure:"login_rate_limit_per_hour"`
	LoginLockThreshold    int      `mapstructure:"login_lock_threshold"`
	LoginLockTTLMinutes   int      `mapstructure:"login_lock_ttl_minutes"`
}

// DatabaseConfig contains connection options for PostgreSQL.
type DatabaseConfig struct {
	Host     string `mapstructure:"host"`
	Port     int    `mapstructure:"port"`
	Name     string `mapstructure:"name"`
	User     string `mapstructure:"user"`
	Password string `mapstructure:"password"`
	SSLMode  string `mapstructure:"sslmode"`
}

// RedisConfig contains Redis connection options.
type RedisConfig struct {
	Host string `mapstructure:"host"`
	Port int    `mapstructure:"port"`
}

// SpacesConfig contains connection options for DigitalOcean Spaces
// (or any S3-compatible storage).
type SpacesConfig struct {
	Endpoint        string `mapstructure:"endpoint"`
	AccessKeyID     string `mapstructure:"access_key_id"`
	SecretAccessKey string `mapstructure:"secret_access_key"`
	Region          string `mapstructure:"region"`
	UseSSL          bool   `mapstructure:"use_ssl"`
	Bucket          string `mapstructure:"bucket"`
	PublicEndpoint  string `mapstructure:"public_endpoint"`
}

// AuthConfig contains JWT signing key locations and token lifetimes.
type AuthConfig struct {
	PrivateKeyPath      string `mapstructure:"private_key_path"`
	PublicKeyPath       string `mapstructure:"public_key_path"`
	AccessTTLMinutes    int    `mapstructure:"access_ttl_minutes"`
	RefreshTTLHours     int    `mapstructure:"refresh_ttl_hours"`
	RefreshCookieDomain string `mapstructure:"refresh_cookie_domain"`
}

// ClamdConfig points at an optional clamd daemon for upload scanning.
// An empty address disables scanning.
type ClamdConfig struct {
	Addr string `mapstructure:"addr"`
}

// TextImproveConfig configures the external note-improvement API.
// An empty API key disables the feature.
type TextImproveConfig struct {
	BaseURL string `mapstructure:"base_url"`
	APIKey  string `mapstructure:"api_key"`
}

// DSN builds a lib/pq compatible connection string.
func (d DatabaseConfig) DSN() string {
	return fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		d.Host,
		d.Port,
		d.User,
		d.Password,
		d.Name,
		d.SSLMode,
	)
}

// Addr returns the host:port pair for the Redis client.
func (r RedisConfig) Addr() string {
	return fmt.Sprintf("%s:%d", r.Host, r.Port)
}

// AccessTTL returns the access token lifetime as a duration.
func (a AuthConfig) AccessTTL() time.Duration {
	return time.Duration(a.AccessTTLMinutes) * time.Minute
}

// RefreshTTL returns the refresh token lifetime as a duration.
func (a AuthConfig) RefreshTTL() time.Duration {
	return time.Duration(a.RefreshTTLHours) * time.Hour
}

// LoginLockTTL returns how long a locked account stays locked.
func (a APIConfig) LoginLockTTL() time.Duration {
	return time.Duration(a.LoginLockTTLMinutes) * time.Minute
}

// Load reads configuration solely from environment variables (with optional defaults).
func Load() (*Config, error) {
	v := viper.New()
	setDefaults(v)
	v.AutomaticEnv()

	if err := bindEnv(v); err != nil {
		return nil, fmt.Errorf("bind env: %w", err)
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	if err := validate(cfg); err != nil {
		return nil, err
	}

	return &cfg, nil
}

// MustLoad wraps Load and panics on failure.
func MustLoad() *Config {
	cfg, err := Load()
	if err != nil {
		panic(err)
	}
	return cfg
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("api.port", 8080)
	v.SetDefault("api.login_rate_limit_per_hour", 10)
	v.SetDefault("api.login_lock_threshold", 5)
	v.SetDefault("api.login_lock_ttl_minutes", 15)
	v.SetDefault("database.host", "localhost")
	v.SetDefault("database.port", 5432)
	v.SetDefault("database.name", "learnhub")
	v.SetDefault("database.user", "learnhub")
	v.SetDefault("database.password", "learnhub")
	v.SetDefault("database.sslmode", "disable")
	v.SetDefault("redis.host", "localhost")
	v.SetDefault("redis.port", 6379)
	v.SetDefault("spaces.endpoint", "localhost:9000")
	v.SetDefault("spaces.region", "us-east-1")
	v.SetDefault("spaces.use_ssl", false)
	v.SetDefault("spaces.bucket", "course-content")
	v.SetDefault("auth.access_ttl_minutes", 15)
	v.SetDefault("auth.refresh_ttl_hours", 720)
}

func bindEnv(v *viper.Viper) error {
	mappings := map[string]string{
		"api.port":                      "API_PORT",
		"api.allowed_origins":           "API_ALLOWED_ORIGINS",
		"api.login_rate_limit_per_hour": "LOGIN_RATE_LIMIT_PER_HOUR",
		"api.login_lock_threshold":      "LOGIN_LOCK_THRESHOLD",
		"api.login_lock_ttl_minutes":    "LOGIN_LOCK_TTL_MINUTES",
		"database.host":                 "DATABASE_HOST",
		"database.port":                 "DATABASE_PORT",
		"database.name":                 "POSTGRES_DB",
		"database.user":                 "POSTGRES_USER",
		"database.password":             "POSTGRES_PASSWORD",
		"database.sslmode":              "DATABASE_SSLMODE",
		"redis.host":                    "REDIS_HOST",
		"redis.port":                    "REDIS_PORT",
		"spaces.endpoint":               "SPACES_ENDPOINT",
		"spaces.access_key_id":          "SPACES_ACCESS_KEY_ID",
		"spaces.secret_access_key":      "SPACES_SECRET_ACCESS_KEY",
		"spaces.region":                 "SPACES_REGION",
		"spaces.use_ssl":                "SPACES_USE_SSL",
		"spaces.bucket":                 "SPACES_BUCKET",
		"spaces.public_endpoint":        "SPACES_PUBLIC_ENDPOINT",
		"auth.private_key_path":         "JWT_PRIVATE_KEY_PATH",
		"auth.public_key_path":          "JWT_PUBLIC_KEY_PATH",
		"auth.access_ttl_minutes":       "JWT_ACCESS_TTL_MINUTES",
		"auth.refresh_ttl_hours":        "JWT_REFRESH_TTL_HOURS",
		"auth.refresh_cookie_domain":    "JWT_REFRESH_COOKIE_DOMAIN",
		"clamd.addr":                    "CLAMD_ADDR",
		"text_improve.base_url":         "TEXT_IMPROVE_BASE_URL",
		"text_improve.api_key":          "TEXT_IMPROVE_API_KEY",
	}

	for key, env := range mappings {
		if err := v.BindEnv(key, env); err != nil {
			return fmt.Errorf("bind %s to %s: %w", key, env, err)
		}
	}

	return nil
}

func validate(cfg Config) error {
	if cfg.API.Port <= 0 {
		return errors.New("api port must be positive")
	}
	if cfg.Database.Host == "" {
		return errors.New("database host is required")
	}
	if cfg.Database.Port <= 0 {
		return errors.New("database port must be positive")
	}
	if cfg.Database.Name == "" {
		return errors.New("database name is required")
	}
	if cfg.Database.User == "" {
		return errors.New("database user is required")
	}
	if cfg.Database.Password == "" {
		return errors.New("database password is required")
	}
	if cfg.Database.SSLMode == "" {
		return errors.New("database sslmode is required")
	}
	if cfg.Redis.Host == "" {
		return errors.New("redis host is required")
	}
	if cfg.Redis.Port <= 0 {
		return errors.New("redis port must be positive")
	}
	if cfg.Spaces.Endpoint == "" {
		return errors.New("spaces endpoint is required")
	}
	if cfg.Spaces.AccessKeyID == "" {
		return errors.New("spaces access key id is required")
	}
	if cfg.Spaces.SecretAccessKey == "" {
		return errors.New("spaces secret access key is required")
	}
	if cfg.Spaces.Bucket == "" {
		return errors.New("spaces bucket is required")
	}
	if cfg.Auth.PrivateKeyPath == "" {
		return errors.New("jwt private key path is required")
	}
	if cfg.Auth.PublicKeyPath == "" {
		return errors.New("jwt public key path is required")
	}
	if cfg.Auth.AccessTTLMinutes <= 0 {
		return errors.New("jwt access ttl must be positive")
	}
	if cfg.Auth.RefreshTTLHours <= 0 {
		return errors.New("jwt refresh ttl must be positive")
	}
	if cfg.TextImprove.APIKey != "" && cfg.TextImprove.BaseURL == "" {
		return errors.New("text improve base url is required when api key is set")
	}
	return nil
}
