package config

import (
	"os"
	"strconv"
	"time"

	"github.com/shopspring/decimal"

	"github.com/taskhive/task-marketplace/settlement-service/internal/fees"
)

type Config struct {
	DatabaseURL    string
	RedisURL       string
	KafkaBrokers   string
	NatsURL        string
	JaegerEndpoint string
	Port           string

	GatewayURL     string
	GatewayTimeout time.Duration

	ReconcileInterval time.Duration
	ReconcileAfter    time.Duration

	Fees fees.Schedule
}

func Load() *Config {
	port := os.Getenv("PORT")
	if port == "" {
		port = "8084"
	}

	gatewayURL := os.Getenv("GATEWAY_URL")
	if gatewayURL == "" {
		gatewayURL = "http://localhost:8090"
	}

	return &Config{
		DatabaseURL:    os.Getenv("DATABASE_URL"),
		RedisURL:       os.Getenv("REDIS_URL"),
		KafkaBrokers:   os.Getenv("KAFKA_BROKERS"),
		NatsURL:        os.Getenv("NATS_URL"),
		JaegerEndpoint: os.Getenv("JAEGER_ENDPOINT"),
		Port:           port,

		GatewayURL:     gatewayURL,
		GatewayTimeout: duration("GATEWAY_TIMEOUT", 30*time.Second),

		ReconcileInterval: duration("RECONCILE_INTERVAL", 5*time.Minute),
		ReconcileAfter:    duration("RECONCILE_AFTER", 10*time.Minute),

		Fees: fees.Schedule{
			PlatformRate:   rate("PLATFORM_FEE_RATE", 0.05),
			ProcessingRate: rate("PROCESSING_FEE_RATE", 0.029),
			ProcessingFlat: rate("PROCESSING_FIXED_FEE", 0.30),
		},
	}
}

func duration(key string, fallback time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return fallback
}

func rate(key string, fallback float64) decimal.Decimal {
	if v := os.Getenv(key); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			return decimal.NewFromFloat(f)
		}
	}
	return decimal.NewFromFloat(fallback)
}
