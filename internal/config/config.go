package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"time"

	sharedcfg "github.com/couchcryptid/storm-data-shared/config"
)

// Config holds all service settings, populated from environment variables.
type Config struct {
	HTTPAddr        string
	LogLevel        string
	LogFormat       string
	ShutdownTimeout time.Duration

	// Analysis configuration.
	DatasetPath       string
	ScanWorkers       int
	ScanTimeout       time.Duration
	RollingWindow     int
	BaselineCacheSize int

	// Live reading stream configuration.
	StreamEnabled      bool
	KafkaBrokers       []string
	KafkaSourceTopic   string
	KafkaSinkTopic     string
	KafkaGroupID       string
	BatchSize          int
	BatchFlushInterval time.Duration

	// OpenWeatherMap configuration.
	OpenWeatherAPIKey  string
	OpenWeatherEnabled bool
	OpenWeatherTimeout time.Duration
	OpenWeatherBaseURL string
}

// Load reads configuration from environment variables, applying defaults where unset.
func Load() (*Config, error) {
	shutdownTimeout, err := sharedcfg.ParseShutdownTimeout()
	if err != nil {
		return nil, err
	}

	batchSize, err := sharedcfg.ParseBatchSize()
	if err != nil {
		return nil, err
	}

	flushInterval, err := sharedcfg.ParseBatchFlushInterval()
	if err != nil {
		return nil, err
	}

	scanWorkers, err := parsePositiveInt("SCAN_WORKERS", 4)
	if err != nil {
		return nil, err
	}

	rollingWindow, err := parsePositiveInt("ROLLING_WINDOW", 30)
	if err != nil {
		return nil, err
	}

	scanTimeout, err := parseDuration("SCAN_TIMEOUT", "30s")
	if err != nil {
		return nil, err
	}

	weatherTimeout, err := parseDuration("OPENWEATHER_TIMEOUT", "5s")
	if err != nil {
		return nil, err
	}

	weatherKey := os.Getenv("OPENWEATHER_API_KEY")
	weatherEnabled := weatherKey != ""
	if v := os.Getenv("OPENWEATHER_ENABLED"); v != "" {
		weatherEnabled = v == "true"
	}

	cfg := &Config{
		HTTPAddr:        sharedcfg.EnvOrDefault("HTTP_ADDR", ":8080"),
		LogLevel:        sharedcfg.EnvOrDefault("LOG_LEVEL", "info"),
		LogFormat:       sharedcfg.EnvOrDefault("LOG_FORMAT", "json"),
		ShutdownTimeout: shutdownTimeout,

		DatasetPath:       sharedcfg.EnvOrDefault("DATASET_PATH", "data/temperature_data.csv"),
		ScanWorkers:       scanWorkers,
		ScanTimeout:       scanTimeout,
		RollingWindow:     rollingWindow,
		BaselineCacheSize: parseCacheSize(),

		StreamEnabled:      os.Getenv("STREAM_ENABLED") == "true",
		KafkaBrokers:       sharedcfg.ParseBrokers(sharedcfg.EnvOrDefault("KAFKA_BROKERS", "localhost:9092")),
		KafkaSourceTopic:   sharedcfg.EnvOrDefault("KAFKA_SOURCE_TOPIC", "live-temperature-readings"),
		KafkaSinkTopic:     sharedcfg.EnvOrDefault("KAFKA_SINK_TOPIC", "temperature-verdicts"),
		KafkaGroupID:       sharedcfg.EnvOrDefault("KAFKA_GROUP_ID", "temperature-anomaly"),
		BatchSize:          batchSize,
		BatchFlushInterval: flushInterval,

		OpenWeatherAPIKey:  weatherKey,
		OpenWeatherEnabled: weatherEnabled,
		OpenWeatherTimeout: weatherTimeout,
		OpenWeatherBaseURL: sharedcfg.EnvOrDefault("OPENWEATHER_BASE_URL", "https://api.openweathermap.org/data/2.5/weather"),
	}

	if cfg.DatasetPath == "" {
		return nil, errors.New("DATASET_PATH is required")
	}
	if cfg.StreamEnabled {
		if len(cfg.KafkaBrokers) == 0 {
			return nil, errors.New("KAFKA_BROKERS is required when STREAM_ENABLED is true")
		}
		if cfg.KafkaSourceTopic == "" {
			return nil, errors.New("KAFKA_SOURCE_TOPIC is required when STREAM_ENABLED is true")
		}
		if cfg.KafkaSinkTopic == "" {
			return nil, errors.New("KAFKA_SINK_TOPIC is required when STREAM_ENABLED is true")
		}
	}
	if cfg.OpenWeatherEnabled && cfg.OpenWeatherAPIKey == "" {
		return nil, errors.New("OPENWEATHER_ENABLED is true but OPENWEATHER_API_KEY is not set")
	}

	return cfg, nil
}

func parsePositiveInt(key string, def int) (int, error) {
	s := os.Getenv(key)
	if s == "" {
		return def, nil
	}
	n, err := strconv.Atoi(s)
	if err != nil || n < 1 {
		return 0, fmt.Errorf("invalid %s: must be a positive integer", key)
	}
	return n, nil
}

func parseDuration(key, def string) (time.Duration, error) {
	d, err := time.ParseDuration(sharedcfg.EnvOrDefault(key, def))
	if err != nil || d <= 0 {
		return 0, fmt.Errorf("invalid %s", key)
	}
	return d, nil
}

func parseCacheSize() int {
	if s := os.Getenv("BASELINE_CACHE_SIZE"); s != "" {
		if n, err := strconv.Atoi(s); err == nil && n > 0 {
			return n
		}
	}
	return 16
}
