package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// ClientConfig captures all tunable parameters for one client instance.
// Values are primarily loaded from environment variables with sane defaults
// so the binary can run locally without excessive setup.
type ClientConfig struct {
	APIBaseURL   string
	OSRMEndpoint string

	PushBackend   string // "ws" or "redis"
	WSURL         string
	RedisAddr     string
	RedisPassword string

	KafkaBrokers []string
	KafkaTopic   string

	ReconnectDelay     time.Duration
	RouteQuietInterval time.Duration
	RouteMinMoveMeters float64
	PublishMinMeters   float64
	PublishMinInterval time.Duration
	PublishFallback    time.Duration
	SettleDelay        time.Duration
	NoticeDismissDelay time.Duration
	MinTripMeters      float64

	LogLevel  string
	LogFormat string // "json" or "text"
}

func defaultClientConfig() ClientConfig {
	return ClientConfig{
		APIBaseURL:         "http://localhost:8080",
		OSRMEndpoint:       "http://localhost:5000",
		PushBackend:        "ws",
		WSURL:              "ws://localhost:8080/ws",
		KafkaTopic:         "position-journal",
		ReconnectDelay:     5 * time.Second,
		RouteQuietInterval: 3 * time.Second,
		RouteMinMoveMeters: 0,
		PublishMinMeters:   10,
		PublishMinInterval: time.Second,
		PublishFallback:    3 * time.Second,
		SettleDelay:        3 * time.Second,
		NoticeDismissDelay: 5 * time.Second,
		MinTripMeters:      500,
		LogLevel:           "info",
		LogFormat:          "json",
	}
}

func LoadClientConfig() (ClientConfig, error) {
	cfg := defaultClientConfig()
	var errs []error

	setStringFromEnv(&cfg.APIBaseURL, "API_BASE_URL")
	setStringFromEnv(&cfg.OSRMEndpoint, "OSRM_ENDPOINT")
	setStringFromEnv(&cfg.PushBackend, "PUSH_BACKEND")
	setStringFromEnv(&cfg.WSURL, "WS_URL")

	cfg.RedisAddr = strings.TrimSpace(os.Getenv("REDIS_ADDR"))
	cfg.RedisPassword = os.Getenv("REDIS_PASSWORD")

	if brokers := os.Getenv("KAFKA_BROKERS"); brokers != "" {
		cfg.KafkaBrokers = splitAndTrim(brokers)
	}
	setStringFromEnv(&cfg.KafkaTopic, "KAFKA_TOPIC")

	setDurationFromEnv(&cfg.ReconnectDelay, "PUSH_RECONNECT_DELAY", &errs)
	setDurationFromEnv(&cfg.RouteQuietInterval, "ROUTE_QUIET_INTERVAL", &errs)
	setFloatFromEnv(&cfg.RouteMinMoveMeters, "ROUTE_MIN_MOVE_METERS", &errs)
	setFloatFromEnv(&cfg.PublishMinMeters, "PUBLISH_MIN_DISTANCE_METERS", &errs)
	setDurationFromEnv(&cfg.PublishMinInterval, "PUBLISH_MIN_INTERVAL", &errs)
	setDurationFromEnv(&cfg.PublishFallback, "PUBLISH_FALLBACK_INTERVAL", &errs)
	setDurationFromEnv(&cfg.SettleDelay, "SETTLE_DELAY", &errs)
	setDurationFromEnv(&cfg.NoticeDismissDelay, "NOTICE_DISMISS_DELAY", &errs)
	setFloatFromEnv(&cfg.MinTripMeters, "MIN_TRIP_DISTANCE_METERS", &errs)

	if v := os.Getenv("LOG_LEVEL"); v != "" {
		cfg.LogLevel = strings.ToLower(v)
	}
	if v := os.Getenv("LOG_FORMAT"); v != "" {
		cfg.LogFormat = strings.ToLower(v)
	}

	switch cfg.PushBackend {
	case "ws", "redis":
	default:
		errs = append(errs, fmt.Errorf("PUSH_BACKEND must be ws or redis, got %q", cfg.PushBackend))
	}
	if cfg.PushBackend == "redis" && cfg.RedisAddr == "" {
		errs = append(errs, fmt.Errorf("REDIS_ADDR required when PUSH_BACKEND=redis"))
	}
	if cfg.ReconnectDelay <= 0 {
		errs = append(errs, fmt.Errorf("PUSH_RECONNECT_DELAY must be > 0"))
	}
	if cfg.RouteQuietInterval <= 0 {
		errs = append(errs, fmt.Errorf("ROUTE_QUIET_INTERVAL must be > 0"))
	}
	if cfg.MinTripMeters < 0 {
		errs = append(errs, fmt.Errorf("MIN_TRIP_DISTANCE_METERS must be >= 0"))
	}

	return cfg, errors.Join(errs...)
}

func setDurationFromEnv(target *time.Duration, key string, errs *[]error) {
	if v := os.Getenv(key); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil {
			*errs = append(*errs, fmt.Errorf("invalid %s: %w", key, err))
			return
		}
		*target = d
	}
}

func setFloatFromEnv(target *float64, key string, errs *[]error) {
	if v := os.Getenv(key); v != "" {
		f, err := strconv.ParseFloat(v, 64)
		if err != nil {
			*errs = append(*errs, fmt.Errorf("invalid %s: %w", key, err))
			return
		}
		*target = f
	}
}

func setStringFromEnv(target *string, key string) {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		*target = v
	}
}

func splitAndTrim(v string) []string {
	raw := strings.Split(v, ",")
	out := make([]string, 0, len(raw))
	for _, r := range raw {
		r = strings.TrimSpace(r)
		if r == "" {
			continue
		}
		out = append(out, r)
	}
	return out
}
