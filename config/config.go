package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

const (
	BackendRedis = "redis"
	BackendMySQL = "mysql"

	TokenSourceStore   = "store"
	TokenSourceProcess = "process"
)

type Config struct {
	HTTPHost string
	HTTPPort string
	GRPCHost string
	GRPCPort string

	RedisHost     string
	RedisPort     int
	RedisUser     string
	RedisPassword string
	RedisDB       int

	MySQLDSN     string
	MySQLMaxOpen int
	MySQLMaxIdle int
	MySQLMaxLife time.Duration

	LockBackend       string
	LockTokenSource   string
	LockRenewInterval time.Duration
	LockExtendTimeout time.Duration
	LockEvents        bool

	LogLevel  string
	LogFormat string
}

func Load() (*Config, error) {
	_ = godotenv.Load()

	cfg := &Config{
		HTTPHost: getEnv("HTTP_HOST", "0.0.0.0"),
		HTTPPort: getEnv("HTTP_PORT", "8080"),
		GRPCHost: getEnv("GRPC_HOST", "0.0.0.0"),
		GRPCPort: getEnv("GRPC_PORT", "9090"),

		RedisHost:     getEnv("REDIS_HOST", "127.0.0.1"),
		RedisUser:     getEnv("REDIS_USER", ""),
		RedisPassword: getEnv("REDIS_PASS", ""),

		MySQLDSN: getEnv("MYSQL_DSN", ""),

		LockBackend:     strings.ToLower(getEnv("LOCK_BACKEND", BackendRedis)),
		LockTokenSource: strings.ToLower(getEnv("LOCK_TOKEN_SOURCE", TokenSourceStore)),

		LogLevel:  getEnv("LOG_LEVEL", "info"),
		LogFormat: getEnv("LOG_FORMAT", "text"),
	}

	var err error
	if cfg.RedisPort, err = getEnvInt("REDIS_PORT", 6379); err != nil {
		return nil, err
	}
	if cfg.RedisDB, err = getEnvInt("REDIS_DB", 0); err != nil {
		return nil, err
	}
	if cfg.MySQLMaxOpen, err = getEnvInt("MYSQL_MAX_OPEN", 10); err != nil {
		return nil, err
	}
	if cfg.MySQLMaxIdle, err = getEnvInt("MYSQL_MAX_IDLE", 5); err != nil {
		return nil, err
	}
	if cfg.MySQLMaxLife, err = getEnvDuration("MYSQL_MAX_LIFE", 5*time.Minute); err != nil {
		return nil, err
	}
	if cfg.LockRenewInterval, err = getEnvDuration("LOCK_RENEW_INTERVAL", 5*time.Second); err != nil {
		return nil, err
	}
	if cfg.LockExtendTimeout, err = getEnvDuration("LOCK_EXTEND_TIMEOUT", 3*time.Second); err != nil {
		return nil, err
	}

	if cfg.LockEvents, err = getEnvBool("LOCK_EVENTS", true); err != nil {
		return nil, err
	}

	switch cfg.LockBackend {
	case BackendRedis:
	case BackendMySQL:
		if cfg.MySQLDSN == "" {
			return nil, fmt.Errorf("MYSQL_DSN is required when LOCK_BACKEND=mysql")
		}
	default:
		return nil, fmt.Errorf("unsupported LOCK_BACKEND: %s", cfg.LockBackend)
	}

	switch cfg.LockTokenSource {
	case TokenSourceStore, TokenSourceProcess:
	default:
		return nil, fmt.Errorf("unsupported LOCK_TOKEN_SOURCE: %s", cfg.LockTokenSource)
	}

	return cfg, nil
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) (int, error) {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue, nil
	}
	n, err := strconv.Atoi(value)
	if err != nil {
		return 0, fmt.Errorf("invalid %s: %w", key, err)
	}
	return n, nil
}

func getEnvDuration(key string, defaultValue time.Duration) (time.Duration, error) {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue, nil
	}
	d, err := time.ParseDuration(value)
	if err != nil {
		return 0, fmt.Errorf("invalid %s: %w", key, err)
	}
	return d, nil
}

func getEnvBool(key string, defaultValue bool) (bool, error) {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue, nil
	}
	b, err := strconv.ParseBool(value)
	if err != nil {
		return false, fmt.Errorf("invalid %s: %w", key, err)
	}
	return b, nil
}
