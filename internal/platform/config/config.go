package config

import (
	"os"
	"strconv"
	"strings"
	"time"
)

// Server captures process-level configuration.
type Server struct {
	Addr            string
	Environment     string
	JWTSigningKey   string
	DatabaseURL     string
	RedisURL        string
	KafkaBrokers    []string
	MetadataBaseURL string

	// Chain/lifecycle tuning.
	PollInterval     time.Duration
	ConfirmTimeout   time.Duration
	MinConfirmations uint64
	MiningInterval   time.Duration
	OwnerAddress     string
}

// FromEnv builds a Server config from environment variables so main stays lean.
func FromEnv() Server {
	cfg := Server{
		Addr:             getEnv("CREDORA_ADDR", ":8080"),
		Environment:      getEnv("CREDORA_ENV", "development"),
		JWTSigningKey:    getEnv("JWT_SIGNING_KEY", "dev-secret-key-change-in-production"),
		DatabaseURL:      os.Getenv("DATABASE_URL"),
		RedisURL:         os.Getenv("REDIS_URL"),
		MetadataBaseURL:  getEnv("METADATA_BASE_URL", "https://metadata.credora.dev"),
		PollInterval:     getDuration("TX_POLL_INTERVAL", 2*time.Second),
		ConfirmTimeout:   getDuration("TX_CONFIRM_TIMEOUT", 60*time.Second),
		MinConfirmations: getUint("TX_MIN_CONFIRMATIONS", 2),
		MiningInterval:   getDuration("CHAIN_MINING_INTERVAL", time.Second),
		OwnerAddress:     getEnv("REGISTRY_OWNER_ADDRESS", "0x0000000000000000000000000000000000000001"),
	}
	if brokers := os.Getenv("KAFKA_BROKERS"); brokers != "" {
		cfg.KafkaBrokers = strings.Split(brokers, ",")
	}
	return cfg
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func getDuration(key string, fallback time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return fallback
}

func getUint(key string, fallback uint64) uint64 {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.ParseUint(v, 10, 64); err == nil {
			return n
		}
	}
	return fallback
}
