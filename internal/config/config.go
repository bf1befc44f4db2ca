package config

import (
	"fmt"
	"os"
	"strconv"
	"time"
)

type Config struct {
	Server   ServerConfig
	Database DatabaseConfig
	Redis    RedisConfig
	Session  SessionConfig
	Limits   LimitConfig
	Dispatch DispatchConfig
	Sweeper  SweeperConfig
}

type ServerConfig struct {
	Address string
}

// DatabaseConfig is optional; without POSTGRES_URL the activity log is
// disabled.
type DatabaseConfig struct {
	Enabled     bool
	PostgresURL string
}

// RedisConfig is optional; without REDIS_ADDR credentials are kept on
// the local filesystem.
type RedisConfig struct {
	Enabled  bool
	Address  string
	Password string
	DB       int
}

type SessionConfig struct {
	CredentialDir     string
	AuthTimeout       time.Duration
	ArtifactWait      time.Duration
	ReconnectAttempts int
	DefaultCountry    string
}

type LimitConfig struct {
	Cooldown  time.Duration
	MaxPerDay int
	TimeZone  string
}

type DispatchConfig struct {
	MaxRetries int
}

type SweeperConfig struct {
	Interval time.Duration
}

func LoadAll() (*Config, error) {
	cfg := &Config{
		Server: ServerConfig{
			Address: getEnv("SERVER_ADDRESS", ":8080"),
		},
		Database: loadDatabaseConfig(),
		Redis:    loadRedisConfig(),
		Session: SessionConfig{
			CredentialDir:     getEnv("CREDENTIAL_DIR", "credentials"),
			AuthTimeout:       time.Duration(getEnvInt("AUTH_TIMEOUT_SECONDS", 60)) * time.Second,
			ArtifactWait:      time.Duration(getEnvInt("AUTH_ARTIFACT_WAIT_SECONDS", 30)) * time.Second,
			ReconnectAttempts: getEnvInt("RECONNECT_ATTEMPTS", 5),
			DefaultCountry:    getEnv("DEFAULT_COUNTRY_CODE", "36"),
		},
		Limits: LimitConfig{
			Cooldown:  time.Duration(getEnvInt("COOLDOWN_MS", 300000)) * time.Millisecond,
			MaxPerDay: getEnvInt("MAX_PER_DAY", 50),
			TimeZone:  getEnv("QUOTA_TZ", "UTC"),
		},
		Dispatch: DispatchConfig{
			MaxRetries: getEnvInt("DISPATCH_MAX_RETRIES", 3),
		},
		Sweeper: SweeperConfig{
			Interval: time.Duration(getEnvInt("SWEEP_INTERVAL_SECONDS", 120)) * time.Second,
		},
	}

	validate(cfg)
	return cfg, nil
}

func loadDatabaseConfig() DatabaseConfig {
	url := os.Getenv("POSTGRES_URL")
	if url == "" {
		return DatabaseConfig{Enabled: false}
	}
	return DatabaseConfig{Enabled: true, PostgresURL: url}
}

func loadRedisConfig() RedisConfig {
	addr := os.Getenv("REDIS_ADDR")
	if addr == "" {
		return RedisConfig{Enabled: false}
	}

	return RedisConfig{
		Enabled:  true,
		Address:  addr,
		Password: os.Getenv("REDIS_PASSWORD"),
		DB:       getEnvInt("REDIS_DB", 0),
	}
}

func validate(cfg *Config) {
	if cfg.Session.CredentialDir == "" {
		panic("CREDENTIAL_DIR must not be empty")
	}
	if cfg.Session.AuthTimeout <= 0 {
		panic("AUTH_TIMEOUT_SECONDS must be > 0")
	}
	if cfg.Session.ArtifactWait <= 0 || cfg.Session.ArtifactWait >= cfg.Session.AuthTimeout {
		panic("AUTH_ARTIFACT_WAIT_SECONDS must be > 0 and below AUTH_TIMEOUT_SECONDS")
	}
	if cfg.Session.ReconnectAttempts <= 0 {
		panic("RECONNECT_ATTEMPTS must be > 0")
	}
	if cfg.Limits.Cooldown < 0 {
		panic("COOLDOWN_MS must be >= 0")
	}
	if cfg.Limits.MaxPerDay <= 0 {
		panic("MAX_PER_DAY must be > 0")
	}
	if _, err := time.LoadLocation(cfg.Limits.TimeZone); err != nil {
		panic(fmt.Sprintf("invalid QUOTA_TZ: %s", cfg.Limits.TimeZone))
	}
	if cfg.Dispatch.MaxRetries <= 0 {
		panic("DISPATCH_MAX_RETRIES must be > 0")
	}
	if cfg.Sweeper.Interval <= 0 {
		panic("SWEEP_INTERVAL_SECONDS must be > 0")
	}
}

func getEnv(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func getEnvInt(key string, def int) int {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	i, err := strconv.Atoi(v)
	if err != nil {
		panic(fmt.Sprintf("invalid int for env %s: %s", key, v))
	}
	return i
}
