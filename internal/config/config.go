// Package config reads service settings from the environment, optionally
// seeded from a .env file.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"net"
	"net/url"
	"os"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"
)

type Config struct {
	AppName     string
	Version     string
	Environment string
	Mode        string

	DB    DBConfig
	Web   WebConfig
	Redis RedisConfig
	Log   LogConfig

	TokenCacheTTL time.Duration
	AuthRateLimit float64
	AuthRateBurst int64
}

type DBConfig struct {
	Host     string
	Port     string
	User     string
	Password string
	Name     string
	SSLMode  string
	// URL, when set, takes precedence over the individual parts.
	URL string
}

type WebConfig struct {
	Host string
	Port string
}

type RedisConfig struct {
	Addr     string
	Password string
	DB       int
}

type LogConfig struct {
	Global  string
	Summary string
	Level   string
}

// Load reads envFile (if it exists) into the process environment without
// overriding variables that are already set, then builds a Config.
func Load(envFile string) (*Config, error) {
	if envFile != "" {
		if err := godotenv.Load(envFile); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("failed to load %s: %w", envFile, err)
		}
	}

	redisDB, err := getEnvInt("REDIS_DB", 0)
	if err != nil {
		return nil, err
	}
	ttl, err := getEnvDuration("TOKEN_CACHE_TTL", time.Hour)
	if err != nil {
		return nil, err
	}
	rate, err := getEnvFloat("AUTH_RATE_LIMIT", 0)
	if err != nil {
		return nil, err
	}
	burst, err := getEnvInt("AUTH_RATE_BURST", 10)
	if err != nil {
		return nil, err
	}

	cfg := &Config{
		AppName:     getEnv("APP_NAME", "accounts"),
		Version:     getEnv("VERSION", "1"),
		Environment: getEnv("ENVIRONMENT", "development"),
		Mode:        os.Getenv("GIN_MODE"),
		DB: DBConfig{
			Host:     getEnv("DB_HOST", "localhost"),
			Port:     getEnv("DB_PORT", "5432"),
			User:     getEnv("DB_USER", "postgres"),
			Password: getEnv("DB_PASSWORD", "postgres"),
			Name:     getEnv("DB_NAME", "accounts"),
			SSLMode:  getEnv("DB_SSLMODE", "disable"),
			URL:      os.Getenv("DATABASE_URL"),
		},
		Web: WebConfig{
			Host: getEnv("WEB_HOST", "0.0.0.0"),
			Port: getEnv("WEB_PORT", "8080"),
		},
		Redis: RedisConfig{
			Addr:     getEnv("REDIS_ADDR", "localhost:6379"),
			Password: os.Getenv("REDIS_PASSWORD"),
			DB:       redisDB,
		},
		Log: LogConfig{
			Global:  getEnv("LOG_GLOBAL", "logs/global.log"),
			Summary: getEnv("LOG_SUMMARY", "logs/summary.log"),
			Level:   getEnv("LOG_LEVEL", "debug"),
		},
		TokenCacheTTL: ttl,
		AuthRateLimit: rate,
		AuthRateBurst: int64(burst),
	}
	return cfg, nil
}

// APIPrefix is the route prefix carrying the API version and application name.
func (c *Config) APIPrefix() string {
	return fmt.Sprintf("/api/v%s/%s", c.Version, c.AppName)
}

// GinMode returns Mode, read from GIN_MODE, when set. Otherwise production runs
// in release mode and every other environment in debug mode.
func (c *Config) GinMode() string {
	if c.Mode != "" {
		return c.Mode
	}
	if c.Environment == "production" {
		return gin.ReleaseMode
	}
	return gin.DebugMode
}

func (c *Config) WebAddr() string {
	return net.JoinHostPort(c.Web.Host, c.Web.Port)
}

// DSN returns a lib/pq connection URL.
func (c *Config) DSN() string {
	if c.DB.URL != "" {
		return c.DB.URL
	}
	u := url.URL{
		Scheme:   "postgres",
		User:     url.UserPassword(c.DB.User, c.DB.Password),
		Host:     net.JoinHostPort(c.DB.Host, c.DB.Port),
		Path:     c.DB.Name,
		RawQuery: "sslmode=" + url.QueryEscape(c.DB.SSLMode),
	}
	return u.String()
}

func getEnv(key, fallback string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return fallback
}

func getEnvInt(key string, fallback int) (int, error) {
	value := os.Getenv(key)
	if value == "" {
		return fallback, nil
	}
	n, err := strconv.Atoi(value)
	if err != nil {
		return 0, fmt.Errorf("invalid %s %q: %w", key, value, err)
	}
	return n, nil
}

func getEnvFloat(key string, fallback float64) (float64, error) {
	value := os.Getenv(key)
	if value == "" {
		return fallback, nil
	}
	f, err := strconv.ParseFloat(value, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid %s %q: %w", key, value, err)
	}
	return f, nil
}

func getEnvDuration(key string, fallback time.Duration) (time.Duration, error) {
	value := os.Getenv(key)
	if value == "" {
		return fallback, nil
	}
	d, err := time.ParseDuration(value)
	if err != nil {
		return 0, fmt.Errorf("invalid %s %q: %w", key, value, err)
	}
	return d, nil
}
