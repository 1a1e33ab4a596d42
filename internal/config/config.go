// Package config provides centralized configuration loaded from environment
// variables, with .env support for local development.
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"

	"github.com/civicwatch/incident-proximity-service/internal/domain"
)

// Config holds all service settings, populated from environment variables.
type Config struct {
	KafkaBrokers       []string
	KafkaIncidentTopic string
	KafkaAlertTopic    string
	KafkaGroupID       string
	HTTPAddr           string
	LogLevel           string
	LogFormat          string
	ShutdownTimeout    time.Duration

	BatchSize          int
	BatchFlushInterval time.Duration

	// Key-value store. Empty DatabaseURL selects the in-memory store.
	DatabaseURL string

	// Location engine tuning.
	LocationTTL     time.Duration
	FixTimeout      time.Duration
	FixStaleness    time.Duration
	DefaultLocation domain.Coordinate
	NearbyRadiusKm  float64

	CORSAllowOrigins []string
}

// Load reads configuration from the environment (and a .env file when
// present), applying defaults where unset.
func Load() (*Config, error) {
	// Best-effort: absence of a .env file is the normal production case.
	_ = godotenv.Load()

	shutdownTimeout, err := durationOrDefault("SHUTDOWN_TIMEOUT", 10*time.Second)
	if err != nil {
		return nil, err
	}
	flushInterval, err := durationOrDefault("BATCH_FLUSH_INTERVAL", 500*time.Millisecond)
	if err != nil {
		return nil, err
	}
	locationTTL, err := durationOrDefault("LOCATION_TTL", 24*time.Hour)
	if err != nil {
		return nil, err
	}
	fixTimeout, err := durationOrDefault("FIX_TIMEOUT", 10*time.Second)
	if err != nil {
		return nil, err
	}
	fixStaleness, err := durationOrDefault("FIX_STALENESS", 5*time.Minute)
	if err != nil {
		return nil, err
	}

	batchSize, err := intOrDefault("BATCH_SIZE", 50)
	if err != nil {
		return nil, err
	}

	defaultLat, err := floatOrDefault("DEFAULT_LAT", 9.9281)
	if err != nil {
		return nil, err
	}
	defaultLng, err := floatOrDefault("DEFAULT_LNG", -84.0907)
	if err != nil {
		return nil, err
	}
	nearbyRadius, err := floatOrDefault("NEARBY_RADIUS_KM", 5)
	if err != nil {
		return nil, err
	}

	cfg := &Config{
		KafkaBrokers:       splitCommaList(envOrDefault("KAFKA_BROKERS", "localhost:9092")),
		KafkaIncidentTopic: envOrDefault("KAFKA_INCIDENT_TOPIC", "reported-incidents"),
		KafkaAlertTopic:    envOrDefault("KAFKA_ALERT_TOPIC", "proximity-alert-decisions"),
		KafkaGroupID:       envOrDefault("KAFKA_GROUP_ID", "incident-proximity"),
		HTTPAddr:           envOrDefault("HTTP_ADDR", ":8080"),
		LogLevel:           envOrDefault("LOG_LEVEL", "info"),
		LogFormat:          envOrDefault("LOG_FORMAT", "json"),
		ShutdownTimeout:    shutdownTimeout,
		BatchSize:          batchSize,
		BatchFlushInterval: flushInterval,

		DatabaseURL: os.Getenv("DATABASE_URL"),

		LocationTTL:     locationTTL,
		FixTimeout:      fixTimeout,
		FixStaleness:    fixStaleness,
		DefaultLocation: domain.Coordinate{Lat: defaultLat, Lng: defaultLng},
		NearbyRadiusKm:  nearbyRadius,

		CORSAllowOrigins: splitCommaList(envOrDefault("CORS_ALLOW_ORIGINS", "*")),
	}

	if len(cfg.KafkaBrokers) == 0 {
		return nil, errors.New("KAFKA_BROKERS is required")
	}
	if cfg.KafkaIncidentTopic == "" {
		return nil, errors.New("KAFKA_INCIDENT_TOPIC is required")
	}
	if cfg.KafkaAlertTopic == "" {
		return nil, errors.New("KAFKA_ALERT_TOPIC is required")
	}
	if !cfg.DefaultLocation.Valid() {
		return nil, errors.New("DEFAULT_LAT/DEFAULT_LNG out of range")
	}
	if cfg.LocationTTL <= 0 {
		return nil, errors.New("LOCATION_TTL must be positive")
	}
	if cfg.NearbyRadiusKm <= 0 {
		return nil, errors.New("NEARBY_RADIUS_KM must be positive")
	}

	return cfg, nil
}

func envOrDefault(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

// splitCommaList splits a comma-separated list, trimming whitespace and
// dropping empty entries.
func splitCommaList(s string) []string {
	parts := strings.Split(s, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

func durationOrDefault(key string, fallback time.Duration) (time.Duration, error) {
	s := os.Getenv(key)
	if s == "" {
		return fallback, nil
	}
	d, err := time.ParseDuration(s)
	if err != nil || d <= 0 {
		return 0, fmt.Errorf("invalid %s: %q", key, s)
	}
	return d, nil
}

func intOrDefault(key string, fallback int) (int, error) {
	s := os.Getenv(key)
	if s == "" {
		return fallback, nil
	}
	n, err := strconv.Atoi(s)
	if err != nil || n <= 0 {
		return 0, fmt.Errorf("invalid %s: %q", key, s)
	}
	return n, nil
}

func floatOrDefault(key string, fallback float64) (float64, error) {
	s := os.Getenv(key)
	if s == "" {
		return fallback, nil
	}
	f, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid %s: %q", key, s)
	}
	return f, nil
}
