package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

const (
	DriverSQLite   = "sqlite"
	DriverPostgres = "postgres"
	DriverRedis    = "redis"
	DriverMemory   = "memory"

	// ScopeGlobal keeps one fingerprint history for every visitor.
	ScopeGlobal = "global"
	// ScopeAccount keeps one history per account identifier.
	ScopeAccount = "account"
)

type Config struct {
	API        APIConfig
	Store      StoreConfig
	Redis      RedisConfig
	Risk       RiskConfig
	RateLimit  RateLimitConfig
	Security   SecurityConfig
	Monitoring MonitoringConfig
}

type APIConfig struct {
	Port        string
	Host        string
	Environment string
}

type StoreConfig struct {
	Driver       string
	SQLitePath   string
	DatabaseURL  string
	MaxConns     int
	MaxIdleConns int
}

type RedisConfig struct {
	Addr      string
	Password  string
	DB        int
	KeyPrefix string
}

type RiskConfig struct {
	HistoryScope string
}

type RateLimitConfig struct {
	Requests int
	Window   time.Duration
	// UseRedis counts requests in Redis even when records live elsewhere.
	UseRedis bool
}

type SecurityConfig struct {
	CORSOrigins []string
}

type MonitoringConfig struct {
	EnableMetrics bool
	LogLevel      string
}

// Load reads configuration from the environment, falling back to an
// optional flowauth.yaml in the working directory and then to defaults.
func Load() (*Config, error) {
	v := viper.New()
	setDefaults(v)
	v.AutomaticEnv()

	v.SetConfigName("flowauth")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	cfg := &Config{
		API: APIConfig{
			Port:        v.GetString("API_PORT"),
			Host:        v.GetString("API_HOST"),
			Environment: v.GetString("ENVIRONMENT"),
		},
		Store: StoreConfig{
			Driver:       strings.ToLower(v.GetString("STORE_DRIVER")),
			SQLitePath:   v.GetString("SQLITE_PATH"),
			DatabaseURL:  v.GetString("DATABASE_URL"),
			MaxConns:     v.GetInt("DB_MAX_CONNS"),
			MaxIdleConns: v.GetInt("DB_MAX_IDLE_CONNS"),
		},
		Redis: RedisConfig{
			Addr:      v.GetString("REDIS_ADDR"),
			Password:  v.GetString("REDIS_PASSWORD"),
			DB:        v.GetInt("REDIS_DB"),
			KeyPrefix: v.GetString("REDIS_KEY_PREFIX"),
		},
		Risk: RiskConfig{
			HistoryScope: strings.ToLower(v.GetString("HISTORY_SCOPE")),
		},
		RateLimit: RateLimitConfig{
			Requests: v.GetInt("RATE_LIMIT_REQUESTS"),
			Window:   v.GetDuration("RATE_LIMIT_WINDOW"),
			UseRedis: v.GetBool("RATE_LIMIT_REDIS"),
		},
		Security: SecurityConfig{
			// viper splits env slices on whitespace, origins are comma separated
			CORSOrigins: splitList(v.GetString("CORS_ORIGINS")),
		},
		Monitoring: MonitoringConfig{
			EnableMetrics: v.GetBool("ENABLE_METRICS"),
			LogLevel:      v.GetString("LOG_LEVEL"),
		},
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("API_PORT", "6969")
	v.SetDefault("API_HOST", "0.0.0.0")
	v.SetDefault("ENVIRONMENT", "development")

	v.SetDefault("STORE_DRIVER", DriverSQLite)
	v.SetDefault("SQLITE_PATH", "./data/flowauth.db")
	v.SetDefault("DATABASE_URL", "")
	v.SetDefault("DB_MAX_CONNS", 25)
	v.SetDefault("DB_MAX_IDLE_CONNS", 5)

	v.SetDefault("REDIS_ADDR", "localhost:6379")
	v.SetDefault("REDIS_PASSWORD", "")
	v.SetDefault("REDIS_DB", 0)
	v.SetDefault("REDIS_KEY_PREFIX", "flowauth")

	v.SetDefault("HISTORY_SCOPE", ScopeGlobal)

	v.SetDefault("RATE_LIMIT_REQUESTS", 1000)
	v.SetDefault("RATE_LIMIT_WINDOW", time.Minute)
	v.SetDefault("RATE_LIMIT_REDIS", false)

	v.SetDefault("CORS_ORIGINS", "*")

	v.SetDefault("ENABLE_METRICS", true)
	v.SetDefault("LOG_LEVEL", "info")
}

func (c *Config) Validate() error {
	switch c.Store.Driver {
	case DriverSQLite, DriverRedis, DriverMemory:
	case DriverPostgres:
		if c.Store.DatabaseURL == "" {
			return fmt.Errorf("DATABASE_URL is required when STORE_DRIVER is postgres")
		}
	default:
		return fmt.Errorf("unsupported STORE_DRIVER %q", c.Store.Driver)
	}

	switch c.Risk.HistoryScope {
	case ScopeGlobal, ScopeAccount:
	default:
		return fmt.Errorf("HISTORY_SCOPE must be %q or %q", ScopeGlobal, ScopeAccount)
	}

	if c.RateLimit.Requests <= 0 {
		return fmt.Errorf("RATE_LIMIT_REQUESTS must be positive")
	}
	if c.RateLimit.Window <= 0 {
		return fmt.Errorf("RATE_LIMIT_WINDOW must be positive")
	}
	return nil
}

func splitList(value string) []string {
	var result []string
	for _, item := range strings.Split(value, ",") {
		if item = strings.TrimSpace(item); item != "" {
			result = append(result, item)
		}
	}
	return result
}
