// Package config assembles the service's runtime configuration from
// environment variables. There is no loading framework: a plain struct
// plus getEnv helpers, matching the teacher's cmd/server/main.go style.
package config

import (
	"os"
	"strconv"
	"time"
)

// Config holds every recognized runtime option.
type Config struct {
	Port int

	Datasource   DatasourceConfig
	Pool         PoolConfig
	Gate         GateConfig
	Breaker      BreakerConfig
	Trade        TradeServiceConfig
	Redis        RedisConfig
	ReconcileLog ReconcileLogConfig

	SubmitBatchMax     int
	CreateBatchMax     int
	ReconcileChunkSize int

	RetryAfterBaseSeconds int
	RetryAfterMaxSeconds  int
}

// DatasourceConfig is the PostgreSQL connection target.
type DatasourceConfig struct {
	URL      string
	User     string
	Password string
}

// PoolConfig controls pgxpool sizing and timeouts.
type PoolConfig struct {
	MaxSize        int
	MinIdle        int
	ConnTimeout    time.Duration
	IdleTimeout    time.Duration
	MaxLifetime    time.Duration
	LeakDetectTime time.Duration
}

// GateConfig controls the bounded concurrency gate.
type GateConfig struct {
	Permits        int64
	AcquireTimeout time.Duration
}

// BreakerConfig controls the circuit breaker.
type BreakerConfig struct {
	Enabled              bool
	UtilizationThreshold float64
	ConsecutiveSamples   int
	FailureThreshold     int
	FailureWindow        time.Duration
	OpenDuration         time.Duration
}

// TradeServiceConfig addresses the downstream trade execution service.
type TradeServiceConfig struct {
	URL            string
	ConnectTimeout time.Duration
	TotalTimeout   time.Duration
	MaxConnections int
}

// RedisConfig addresses the optional Redis-backed circuit breaker
// failure window. Addr empty means the breaker keeps its failure count
// in-memory instead.
type RedisConfig struct {
	Addr string
}

// ReconcileLogConfig controls the rotated reconciliation audit log.
// FilePath empty means the audit trail falls back to the regular
// application logger instead of a dedicated rotated file.
type ReconcileLogConfig struct {
	FilePath   string
	MaxSizeMB  int
	MaxBackups int
	MaxAgeDays int
}

// Load builds a Config from environment variables, applying the
// defaults spec'd alongside each key.
func Load() *Config {
	poolMax := getEnvInt("POOL_SIZE_MAX", 20)

	return &Config{
		Port: getEnvInt("PORT", 8080),

		Datasource: DatasourceConfig{
			URL:      getEnv("DATASOURCE_URL", "postgres://localhost:5432/orders?sslmode=disable"),
			User:     getEnv("DATASOURCE_USER", "orders"),
			Password: getEnv("DATASOURCE_PASSWORD", ""),
		},

		Pool: PoolConfig{
			MaxSize:        poolMax,
			MinIdle:        getEnvInt("POOL_SIZE_MIN_IDLE", 2),
			ConnTimeout:    getEnvMillis("POOL_TIMEOUT_CONNECTION_MS", 5000),
			IdleTimeout:    getEnvMillis("POOL_TIMEOUT_IDLE_MS", 600000),
			MaxLifetime:    getEnvMillis("POOL_TIMEOUT_MAX_LIFETIME_MS", 1800000),
			LeakDetectTime: getEnvMillis("POOL_LEAK_DETECT_MS", 0),
		},

		Gate: GateConfig{
			Permits:        int64(getEnvInt("GATE_PERMITS", maxInt(1, int(float64(poolMax)*0.4)))),
			AcquireTimeout: getEnvMillis("GATE_ACQUIRE_TIMEOUT_MS", 2000),
		},

		Breaker: BreakerConfig{
			Enabled:              getEnvBool("BREAKER_ENABLED", true),
			UtilizationThreshold: getEnvFloat("BREAKER_UTIL_THRESHOLD", 0.90),
			ConsecutiveSamples:   getEnvInt("BREAKER_CONSECUTIVE_SAMPLES", 3),
			FailureThreshold:     getEnvInt("BREAKER_FAILURE_THRESHOLD", 5),
			FailureWindow:        getEnvMillis("BREAKER_FAILURE_WINDOW_MS", 60000),
			OpenDuration:         getEnvMillis("BREAKER_OPEN_DURATION_MS", 15000),
		},

		Trade: TradeServiceConfig{
			URL:            getEnv("TRADE_SERVICE_URL", "http://localhost:8081"),
			ConnectTimeout: getEnvMillis("TRADE_SERVICE_TIMEOUT_CONNECT_MS", 10000),
			TotalTimeout:   getEnvMillis("TRADE_SERVICE_TIMEOUT_TOTAL_MS", 60000),
			MaxConnections: getEnvInt("TRADE_SERVICE_MAX_CONNECTIONS", 10),
		},

		Redis: RedisConfig{
			Addr: getEnv("REDIS_ADDR", ""),
		},

		ReconcileLog: ReconcileLogConfig{
			FilePath:   getEnv("RECONCILE_AUDIT_LOG_PATH", ""),
			MaxSizeMB:  getEnvInt("RECONCILE_AUDIT_LOG_MAX_SIZE_MB", 50),
			MaxBackups: getEnvInt("RECONCILE_AUDIT_LOG_MAX_BACKUPS", 10),
			MaxAgeDays: getEnvInt("RECONCILE_AUDIT_LOG_MAX_AGE_DAYS", 90),
		},

		SubmitBatchMax:     getEnvInt("SUBMIT_BATCH_MAX", 100),
		CreateBatchMax:     getEnvInt("CREATE_BATCH_MAX", 1000),
		ReconcileChunkSize: getEnvInt("RECONCILE_CHUNK_SIZE", 50),

		RetryAfterBaseSeconds: getEnvInt("RETRY_AFTER_BASE_SECONDS", 60),
		RetryAfterMaxSeconds:  getEnvInt("RETRY_AFTER_MAX_SECONDS", 300),
	}
}

func getEnv(key, defaultValue string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return defaultValue
}

func getEnvFloat(key string, defaultValue float64) float64 {
	if v := os.Getenv(key); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			return f
		}
	}
	return defaultValue
}

func getEnvBool(key string, defaultValue bool) bool {
	if v := os.Getenv(key); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			return b
		}
	}
	return defaultValue
}

func getEnvMillis(key string, defaultMillis int) time.Duration {
	return time.Duration(getEnvInt(key, defaultMillis)) * time.Millisecond
}

func maxInt(a, b int) int {
	if a > b {
		return a
	}
	return b
}
