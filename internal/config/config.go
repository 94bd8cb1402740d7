package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// ServerConfig captures all tunable parameters for the webhook server.
// Values are loaded from environment variables with sane defaults so
// the binary can run locally without excessive setup.
type ServerConfig struct {
	HTTPAddr        string
	ReadTimeout     time.Duration
	WriteTimeout    time.Duration
	IdleTimeout     time.Duration
	ShutdownTimeout time.Duration

	// Session store. GridAPIURL selects the remote row-grid backend;
	// PGDSN selects postgres; neither selects the in-memory store.
	GridAPIURL string
	GridAuthID string
	GridID     string
	GridViewID string
	PGDSN      string

	// External Google-hosted services.
	GoogleAPIKey string
	GeocodeURL   string
	DistanceURL  string
	TranslateURL string

	// Outbound SMS.
	TwilioAccountSID string
	TwilioAuthToken  string
	TwilioFrom       string

	ProfanityURL string

	RedisAddr     string
	RedisPassword string

	KafkaBrokers []string
	KafkaTopic   string

	MatchThresholdMinutes float64
	DistanceCacheTTL      time.Duration

	LogLevel      string
	RunMigrations bool
}

// SweeperConfig covers the standalone expiry-sweep binary.
type SweeperConfig struct {
	MetricsAddr   string
	SweepInterval time.Duration
	SearchTimeout time.Duration

	GridAPIURL string
	GridAuthID string
	GridID     string
	GridViewID string
	PGDSN      string

	TwilioAccountSID string
	TwilioAuthToken  string
	TwilioFrom       string

	KafkaBrokers []string
	KafkaTopic   string

	LogLevel string
}

func defaultServerConfig() ServerConfig {
	return ServerConfig{
		HTTPAddr:              ":8080",
		ReadTimeout:           5 * time.Second,
		WriteTimeout:          10 * time.Second,
		IdleTimeout:           120 * time.Second,
		ShutdownTimeout:       15 * time.Second,
		GeocodeURL:            "https://maps.googleapis.com/maps/api/geocode/json",
		DistanceURL:           "https://maps.googleapis.com/maps/api/distancematrix/json",
		TranslateURL:          "https://translation.googleapis.com/language/translate/v2",
		ProfanityURL:          "https://www.purgomalum.com/service/json",
		KafkaTopic:            "ride-events",
		MatchThresholdMinutes: 10,
		DistanceCacheTTL:      5 * time.Minute,
		LogLevel:              "info",
	}
}

func defaultSweeperConfig() SweeperConfig {
	return SweeperConfig{
		MetricsAddr:   ":2112",
		SweepInterval: time.Minute,
		SearchTimeout: 10 * time.Minute,
		KafkaTopic:    "ride-events",
		LogLevel:      "info",
	}
}

func LoadServerConfig() (ServerConfig, error) {
	cfg := defaultServerConfig()
	var errs []error

	setStringFromEnv(&cfg.HTTPAddr, "HTTP_ADDR")
	setDurationFromEnv(&cfg.ReadTimeout, "HTTP_READ_TIMEOUT", &errs)
	setDurationFromEnv(&cfg.WriteTimeout, "HTTP_WRITE_TIMEOUT", &errs)
	setDurationFromEnv(&cfg.IdleTimeout, "HTTP_IDLE_TIMEOUT", &errs)
	setDurationFromEnv(&cfg.ShutdownTimeout, "HTTP_SHUTDOWN_TIMEOUT", &errs)

	loadStoreEnv(&cfg.GridAPIURL, &cfg.GridAuthID, &cfg.GridID, &cfg.GridViewID, &cfg.PGDSN)

	cfg.GoogleAPIKey = os.Getenv("GOOGLE_API_KEY")
	setStringFromEnv(&cfg.GeocodeURL, "GEOCODE_URL")
	setStringFromEnv(&cfg.DistanceURL, "DISTANCE_URL")
	setStringFromEnv(&cfg.TranslateURL, "TRANSLATE_URL")

	loadTwilioEnv(&cfg.TwilioAccountSID, &cfg.TwilioAuthToken, &cfg.TwilioFrom)

	setStringFromEnv(&cfg.ProfanityURL, "PROFANITY_URL")

	cfg.RedisAddr = strings.TrimSpace(os.Getenv("REDIS_ADDR"))
	cfg.RedisPassword = os.Getenv("REDIS_PASSWORD")

	if brokers := os.Getenv("KAFKA_BROKERS"); brokers != "" {
		cfg.KafkaBrokers = splitAndTrim(brokers)
	}
	setStringFromEnv(&cfg.KafkaTopic, "KAFKA_TOPIC")

	setFloatFromEnv(&cfg.MatchThresholdMinutes, "MATCH_THRESHOLD_MINUTES", &errs)
	setDurationFromEnv(&cfg.DistanceCacheTTL, "DISTANCE_CACHE_TTL", &errs)

	if v := os.Getenv("LOG_LEVEL"); v != "" {
		cfg.LogLevel = strings.ToLower(v)
	}

	cfg.RunMigrations = strings.EqualFold(os.Getenv("MIGRATE"), "true")

	if cfg.MatchThresholdMinutes <= 0 {
		errs = append(errs, fmt.Errorf("MATCH_THRESHOLD_MINUTES must be > 0"))
	}
	if cfg.GridAPIURL != "" && cfg.GridID == "" {
		errs = append(errs, fmt.Errorf("GRID_ID is required when GRID_API_URL is set"))
	}

	return cfg, errors.Join(errs...)
}

func LoadSweeperConfig() (SweeperConfig, error) {
	cfg := defaultSweeperConfig()
	var errs []error

	setStringFromEnv(&cfg.MetricsAddr, "METRICS_ADDR")
	setDurationFromEnv(&cfg.SweepInterval, "SWEEP_INTERVAL", &errs)
	setDurationFromEnv(&cfg.SearchTimeout, "SEARCH_TIMEOUT", &errs)

	loadStoreEnv(&cfg.GridAPIURL, &cfg.GridAuthID, &cfg.GridID, &cfg.GridViewID, &cfg.PGDSN)
	loadTwilioEnv(&cfg.TwilioAccountSID, &cfg.TwilioAuthToken, &cfg.TwilioFrom)

	if brokers := os.Getenv("KAFKA_BROKERS"); brokers != "" {
		cfg.KafkaBrokers = splitAndTrim(brokers)
	}
	setStringFromEnv(&cfg.KafkaTopic, "KAFKA_TOPIC")

	if v := os.Getenv("LOG_LEVEL"); v != "" {
		cfg.LogLevel = strings.ToLower(v)
	}

	if cfg.SweepInterval <= 0 {
		errs = append(errs, fmt.Errorf("SWEEP_INTERVAL must be > 0"))
	}
	if cfg.SearchTimeout <= 0 {
		errs = append(errs, fmt.Errorf("SEARCH_TIMEOUT must be > 0"))
	}

	return cfg, errors.Join(errs...)
}

func loadStoreEnv(apiURL, authID, gridID, viewID, pgDSN *string) {
	*apiURL = strings.TrimSpace(os.Getenv("GRID_API_URL"))
	*authID = os.Getenv("GRID_AUTH_ID")
	*gridID = os.Getenv("GRID_ID")
	*viewID = os.Getenv("GRID_VIEW_ID")
	*pgDSN = os.Getenv("PG_DSN")
}

func loadTwilioEnv(sid, token, from *string) {
	*sid = os.Getenv("TWILIO_ACCOUNT_SID")
	*token = os.Getenv("TWILIO_AUTH_TOKEN")
	*from = os.Getenv("TWILIO_FROM")
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
