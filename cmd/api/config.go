package main

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"

	"github.com/market-console/finance-portal/pkg/kafka"
)

// Config holds application configuration
type Config struct {
	ServerAddr      string
	UpstreamBaseURL string
	UpstreamTimeout time.Duration
	Location        *time.Location
	SessionTTL      time.Duration

	LogLevel     string
	Environment  string
	TracingOn    bool
	OTLPEndpoint string

	RateLimitRPS   float64
	RateLimitBurst int

	KafkaEnabled     bool
	KafkaBrokers     []string
	KafkaExportTopic string
}

// loadConfig reads the environment. A .env file in the working directory,
// when present, fills in variables that are not already set.
func loadConfig() (*Config, error) {
	_ = godotenv.Load()

	timeout, err := getDuration("UPSTREAM_TIMEOUT", 30*time.Second)
	if err != nil {
		return nil, err
	}
	ttl, err := getDuration("SESSION_TTL", 30*time.Minute)
	if err != nil {
		return nil, err
	}
	zone := getEnv("FINANCE_TIMEZONE", "Asia/Ho_Chi_Minh")
	loc, err := time.LoadLocation(zone)
	if err != nil {
		return nil, fmt.Errorf("FINANCE_TIMEZONE %q: %w", zone, err)
	}

	return &Config{
		ServerAddr:       getEnv("SERVER_ADDR", ":8021"),
		UpstreamBaseURL:  strings.TrimRight(getEnv("UPSTREAM_BASE_URL", "http://localhost:8000"), "/"),
		UpstreamTimeout:  timeout,
		Location:         loc,
		SessionTTL:       ttl,
		LogLevel:         getEnv("LOG_LEVEL", "info"),
		Environment:      getEnv("ENVIRONMENT", "development"),
		TracingOn:        getBool("TRACING_ENABLED", true),
		OTLPEndpoint:     getEnv("OTEL_EXPORTER_OTLP_ENDPOINT", "localhost:4317"),
		RateLimitRPS:     getFloat("RATE_LIMIT_RPS", 10),
		RateLimitBurst:   getInt("RATE_LIMIT_BURST", 30),
		KafkaEnabled:     getBool("KAFKA_ENABLED", false),
		KafkaBrokers:     splitList(getEnv("KAFKA_BROKERS", "localhost:9092")),
		KafkaExportTopic: getEnv("KAFKA_EXPORT_TOPIC", kafka.Topics.FinanceExports),
	}, nil
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getBool(key string, defaultValue bool) bool {
	value, err := strconv.ParseBool(getEnv(key, strconv.FormatBool(defaultValue)))
	if err != nil {
		return defaultValue
	}
	return value
}

func getFloat(key string, defaultValue float64) float64 {
	value, err := strconv.ParseFloat(getEnv(key, ""), 64)
	if err != nil {
		return defaultValue
	}
	return value
}

func getInt(key string, defaultValue int) int {
	value, err := strconv.Atoi(getEnv(key, ""))
	if err != nil {
		return defaultValue
	}
	return value
}

func getDuration(key string, defaultValue time.Duration) (time.Duration, error) {
	raw := os.Getenv(key)
	if raw == "" {
		return defaultValue, nil
	}
	d, err := time.ParseDuration(raw)
	if err != nil {
		return 0, fmt.Errorf("%s %q: %w", key, raw, err)
	}
	if d <= 0 {
		return 0, fmt.Errorf("%s must be positive", key)
	}
	return d, nil
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
