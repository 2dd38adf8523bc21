package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	sharedcfg "github.com/couchcryptid/storm-data-shared/config"
)

// Snapshot destinations.
const (
	SnapshotNone     = "none"
	SnapshotFile     = "file"
	SnapshotSQLite   = "sqlite"
	SnapshotPostgres = "postgres"
	SnapshotS3       = "s3"
)

// Change feeds.
const (
	FeedNone  = "none"
	FeedKafka = "kafka"
	FeedNATS  = "nats"
)

// Config holds all service settings, populated from environment variables.
type Config struct {
	HTTPAddr        string
	LogLevel        string
	LogFormat       string
	ShutdownTimeout time.Duration

	SeedPath       string
	AlertRetention int
	AdminAPIKeys   []string
	WSSendBuffer   int

	// Snapshot persistence.
	SnapshotDriver   string
	SnapshotPath     string
	SnapshotDSN      string
	SnapshotS3Bucket string
	SnapshotS3Key    string
	SnapshotS3Region string
	SnapshotEndpoint string

	// Kafka observation ingestion.
	KafkaEnabled          bool
	KafkaBrokers          []string
	KafkaObservationTopic string
	KafkaGroupID          string
	BatchSize             int
	BatchFlushInterval    time.Duration

	// Outbound change feed.
	ChangeFeed        string
	KafkaChangeTopic  string
	NATSURL           string
	NATSSubjectPrefix string

	// Mapbox geocoding configuration.
	MapboxToken     string
	MapboxEnabled   bool
	MapboxCountry   string
	MapboxTimeout   time.Duration
	MapboxCacheSize int
}

// Load reads configuration from environment variables, applying defaults where unset.
func Load() (*Config, error) {
	shutdownTimeout, err := sharedcfg.ParseShutdownTimeout()
	if err != nil {
		return nil, err
	}

	mapboxTimeoutStr := sharedcfg.EnvOrDefault("MAPBOX_TIMEOUT", "5s")
	mapboxTimeout, err2 := time.ParseDuration(mapboxTimeoutStr)
	if err2 != nil || mapboxTimeout <= 0 {
		return nil, errors.New("invalid MAPBOX_TIMEOUT")
	}

	batchSize, err := sharedcfg.ParseBatchSize()
	if err != nil {
		return nil, err
	}

	flushInterval, err := sharedcfg.ParseBatchFlushInterval()
	if err != nil {
		return nil, err
	}

	alertRetention, err := parsePositiveInt("ALERT_RETENTION", 200)
	if err != nil {
		return nil, err
	}

	sendBuffer, err := parsePositiveInt("WS_SEND_BUFFER", 256)
	if err != nil {
		return nil, err
	}

	mapboxCacheSize := parseMapboxCacheSize()

	mapboxToken := os.Getenv("MAPBOX_TOKEN")
	mapboxEnabled := mapboxToken != ""
	if v := os.Getenv("MAPBOX_ENABLED"); v != "" {
		mapboxEnabled = v == "true"
	}

	driver := strings.ToLower(sharedcfg.EnvOrDefault("SNAPSHOT_DRIVER", SnapshotFile))

	cfg := &Config{
		HTTPAddr:        sharedcfg.EnvOrDefault("HTTP_ADDR", ":8080"),
		LogLevel:        sharedcfg.EnvOrDefault("LOG_LEVEL", "info"),
		LogFormat:       sharedcfg.EnvOrDefault("LOG_FORMAT", "json"),
		ShutdownTimeout: shutdownTimeout,

		SeedPath:       sharedcfg.EnvOrDefault("SEED_PATH", "data/places.json"),
		AlertRetention: alertRetention,
		AdminAPIKeys:   parseList(os.Getenv("ADMIN_API_KEYS")),
		WSSendBuffer:   sendBuffer,

		SnapshotDriver:   driver,
		SnapshotPath:     sharedcfg.EnvOrDefault("SNAPSHOT_PATH", "data/snapshot.json"),
		SnapshotDSN:      os.Getenv("SNAPSHOT_DSN"),
		SnapshotS3Bucket: os.Getenv("SNAPSHOT_S3_BUCKET"),
		SnapshotS3Key:    sharedcfg.EnvOrDefault("SNAPSHOT_S3_KEY", "placehub/snapshot.json"),
		SnapshotS3Region: sharedcfg.EnvOrDefault("SNAPSHOT_S3_REGION", "us-east-1"),
		SnapshotEndpoint: os.Getenv("SNAPSHOT_S3_ENDPOINT"),

		KafkaEnabled:          os.Getenv("KAFKA_ENABLED") == "true",
		KafkaBrokers:          sharedcfg.ParseBrokers(sharedcfg.EnvOrDefault("KAFKA_BROKERS", "localhost:9092")),
		KafkaObservationTopic: sharedcfg.EnvOrDefault("KAFKA_OBSERVATION_TOPIC", "place-observations"),
		KafkaGroupID:          sharedcfg.EnvOrDefault("KAFKA_GROUP_ID", "place-state-hub"),
		BatchSize:             batchSize,
		BatchFlushInterval:    flushInterval,

		ChangeFeed:        strings.ToLower(sharedcfg.EnvOrDefault("CHANGE_FEED", FeedNone)),
		KafkaChangeTopic:  sharedcfg.EnvOrDefault("KAFKA_CHANGE_TOPIC", "place-changes"),
		NATSURL:           sharedcfg.EnvOrDefault("NATS_URL", "nats://localhost:4222"),
		NATSSubjectPrefix: sharedcfg.EnvOrDefault("NATS_SUBJECT_PREFIX", "placehub"),

		MapboxToken:     mapboxToken,
		MapboxEnabled:   mapboxEnabled,
		MapboxCountry:   os.Getenv("MAPBOX_COUNTRY"),
		MapboxTimeout:   mapboxTimeout,
		MapboxCacheSize: mapboxCacheSize,
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (cfg *Config) validate() error {
	switch cfg.SnapshotDriver {
	case SnapshotNone:
	case SnapshotFile:
		if cfg.SnapshotPath == "" {
			return errors.New("SNAPSHOT_PATH is required for the file snapshot driver")
		}
	case SnapshotSQLite:
		if cfg.SnapshotDSN == "" {
			cfg.SnapshotDSN = "data/snapshot.db"
		}
	case SnapshotPostgres:
		if cfg.SnapshotDSN == "" {
			return errors.New("SNAPSHOT_DSN is required for the postgres snapshot driver")
		}
	case SnapshotS3:
		if cfg.SnapshotS3Bucket == "" {
			return errors.New("SNAPSHOT_S3_BUCKET is required for the s3 snapshot driver")
		}
	default:
		return fmt.Errorf("invalid SNAPSHOT_DRIVER %q", cfg.SnapshotDriver)
	}

	switch cfg.ChangeFeed {
	case FeedNone, FeedNATS:
	case FeedKafka:
		if cfg.KafkaChangeTopic == "" {
			return errors.New("KAFKA_CHANGE_TOPIC is required for the kafka change feed")
		}
	default:
		return fmt.Errorf("invalid CHANGE_FEED %q", cfg.ChangeFeed)
	}

	if (cfg.KafkaEnabled || cfg.ChangeFeed == FeedKafka) && len(cfg.KafkaBrokers) == 0 {
		return errors.New("KAFKA_BROKERS is required")
	}
	if cfg.KafkaEnabled && cfg.KafkaObservationTopic == "" {
		return errors.New("KAFKA_OBSERVATION_TOPIC is required")
	}
	if cfg.MapboxEnabled && cfg.MapboxToken == "" {
		return errors.New("MAPBOX_ENABLED is true but MAPBOX_TOKEN is not set")
	}
	return nil
}

func parsePositiveInt(key string, def int) (int, error) {
	s := os.Getenv(key)
	if s == "" {
		return def, nil
	}
	n, err := strconv.Atoi(s)
	if err != nil || n <= 0 {
		return 0, fmt.Errorf("invalid %s %q: must be a positive integer", key, s)
	}
	return n, nil
}

func parseList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

func parseMapboxCacheSize() int {
	if s := os.Getenv("MAPBOX_CACHE_SIZE"); s != "" {
		if n, err := strconv.Atoi(s); err == nil && n > 0 {
			return n
		}
	}
	return 1000
}
