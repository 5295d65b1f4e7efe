package config

import (
	"errors"
	"fmt"
	"net/netip"
	"strings"
	"time"

	"github.com/spf13/viper"
)

type Config struct {
	Addr           string `mapstructure:"API_ADDR"`
	Env            string `mapstructure:"LA_ENV"`
	LogLevel       string `mapstructure:"LA_LOG_LEVEL"`
	DatabaseURL    string `mapstructure:"DATABASE_URL"`
	MigrationsDir  string `mapstructure:"LA_MIGRATIONS_DIR"`
	DBMaxOpenConns int    `mapstructure:"LA_DB_MAX_OPEN_CONNS"`
	DBMaxIdleConns int    `mapstructure:"LA_DB_MAX_IDLE_CONNS"`
	TokenSecret    string `mapstructure:"LA_TOKEN_SECRET"`
	CORSOrigin     string `mapstructure:"LA_CORS_ORIGIN"`
	// Redis backs the verification cache; empty disables caching.
	RedisURL             string        `mapstructure:"REDIS_URL"`
	VerificationCacheTTL time.Duration `mapstructure:"LA_VERIFICATION_CACHE_TTL"`
	ViewTTL              time.Duration `mapstructure:"LA_VIEW_TTL"`
	MaxRequestsPerMin    int           `mapstructure:"LA_MAX_REQUESTS_PER_MIN"`
	// Comma-separated proxy IPs or CIDRs allowed to set X-Forwarded-For.
	TrustedProxies string `mapstructure:"LA_TRUSTED_PROXIES"`
}

func (c Config) IsProduction() bool {
	return c.Env == "production"
}

// TrustedProxyPrefixes parses TrustedProxies. A bare IP becomes a single
// host prefix.
func (c Config) TrustedProxyPrefixes() ([]netip.Prefix, error) {
	var prefixes []netip.Prefix
	for _, raw := range strings.Split(c.TrustedProxies, ",") {
		raw = strings.TrimSpace(raw)
		if raw == "" {
			continue
		}
		if !strings.Contains(raw, "/") {
			addr, err := netip.ParseAddr(raw)
			if err != nil {
				return nil, fmt.Errorf("config: LA_TRUSTED_PROXIES entry %q: %w", raw, err)
			}
			prefixes = append(prefixes, netip.PrefixFrom(addr.Unmap(), addr.Unmap().BitLen()))
			continue
		}
		prefix, err := netip.ParsePrefix(raw)
		if err != nil {
			return nil, fmt.Errorf("config: LA_TRUSTED_PROXIES entry %q: %w", raw, err)
		}
		prefixes = append(prefixes, prefix.Masked())
	}
	return prefixes, nil
}

// Load reads config.yaml from the working directory or ./config when
// present, with environment variables taking precedence.
func Load() (Config, error) {
	v := viper.New()
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")
	v.AddConfigPath("./config")
	return load(v)
}

func load(v *viper.Viper) (Config, error) {
	v.AllowEmptyEnv(true)
	v.AutomaticEnv()
	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return Config{}, fmt.Errorf("read config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("decode config: %w", err)
	}
	if err := cfg.validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("API_ADDR", ":8787")
	v.SetDefault("LA_ENV", "development")
	v.SetDefault("LA_LOG_LEVEL", "info")
	v.SetDefault("DATABASE_URL", "postgres://la:la@localhost:5432/la?sslmode=disable")
	v.SetDefault("LA_MIGRATIONS_DIR", "./db/migrations")
	v.SetDefault("LA_DB_MAX_OPEN_CONNS", 20)
	v.SetDefault("LA_DB_MAX_IDLE_CONNS", 10)
	v.SetDefault("LA_TOKEN_SECRET", "la-dev-secret")
	v.SetDefault("LA_CORS_ORIGIN", "*")
	v.SetDefault("REDIS_URL", "redis://localhost:6379/0")
	v.SetDefault("LA_VERIFICATION_CACHE_TTL", 5*time.Minute)
	v.SetDefault("LA_VIEW_TTL", 30*time.Minute)
	v.SetDefault("LA_MAX_REQUESTS_PER_MIN", 120)
	v.SetDefault("LA_TRUSTED_PROXIES", "")
}

func (c Config) validate() error {
	if c.IsProduction() && c.TokenSecret == "la-dev-secret" {
		return errors.New("config: LA_TOKEN_SECRET must be set in production")
	}
	if c.ViewTTL <= 0 {
		return fmt.Errorf("config: LA_VIEW_TTL must be positive, got %s", c.ViewTTL)
	}
	if c.MaxRequestsPerMin < 0 {
		return fmt.Errorf("config: LA_MAX_REQUESTS_PER_MIN must not be negative, got %d", c.MaxRequestsPerMin)
	}
	if _, err := c.TrustedProxyPrefixes(); err != nil {
		return err
	}
	return nil
}
