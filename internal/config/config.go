package config

import (
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/lelandsequel/metalledger/internal/pkg/egress"
)

const (
	StoreDriverPostgres = "postgres"
	StoreDriverMemory   = "memory"
)

type AppConfig struct {
	HTTPAddr    string
	GRPCAddr    string
	StoreDriver string
	DatabaseURL string

	RedisAddr string
	RedisPass string

	KafkaBrokers     []string
	KafkaLedgerTopic string

	EgressAllowlist []string

	LogLevel  string
	LogFormat string

	SeedAccounts        bool
	AuditVerifyInterval time.Duration
	AccountCacheTTL     time.Duration
}

func Load() AppConfig {
	return AppConfig{
		HTTPAddr:    getEnv("HTTP_ADDR", ":8023"),
		GRPCAddr:    getEnv("GRPC_ADDR", ":8024"),
		StoreDriver: strings.ToLower(getEnv("STORE_DRIVER", StoreDriverPostgres)),
		DatabaseURL: databaseURL(),

		RedisAddr: getEnv("REDIS_ADDR", ""),
		RedisPass: getEnv("REDIS_PASS", ""),

		KafkaBrokers:     getEnvSlice("KAFKA_BROKERS", nil),
		KafkaLedgerTopic: getEnv("KAFKA_LEDGER_TOPIC", "ledger.events"),

		EgressAllowlist: getEnvSlice("EGRESS_ALLOWLIST", egress.DefaultAllowlist),

		LogLevel:  getEnv("LOG_LEVEL", "info"),
		LogFormat: getEnv("LOG_FORMAT", "json"),

		SeedAccounts:        getEnvAsBool("SEED_ACCOUNTS", true),
		AuditVerifyInterval: getEnvAsDuration("AUDIT_VERIFY_INTERVAL", 15*time.Minute),
		AccountCacheTTL:     getEnvAsDuration("ACCOUNT_CACHE_TTL", 5*time.Minute),
	}
}

// databaseURL prefers DATABASE_URL and otherwise assembles one from the
// DB_* variables.
func databaseURL() string {
	if v := os.Getenv("DATABASE_URL"); v != "" {
		return v
	}
	return "postgres://" +
		getEnv("DB_USER", "metalledger") + ":" +
		getEnv("DB_PASSWORD", "secret") + "@" +
		getEnv("DB_HOST", "localhost") + ":" +
		getEnv("DB_PORT", "5432") + "/" +
		getEnv("DB_NAME", "metalledger") + "?sslmode=disable"
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func getEnvSlice(key string, defaultValue []string) []string {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	var out []string
	for _, part := range strings.Split(value, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return out
}

func getEnvAsBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if b, err := strconv.ParseBool(value); err == nil {
			return b
		}
	}
	return defaultValue
}

func getEnvAsDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
	}
	return defaultValue
}
