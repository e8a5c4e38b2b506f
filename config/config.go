package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/ilyakaznacheev/cleanenv"
	"github.com/joho/godotenv"

	"github.com/Ramsey-B/sage/pkg/database"
	"github.com/Ramsey-B/sage/pkg/kafka"
	"github.com/Ramsey-B/sage/pkg/matching"
	"github.com/Ramsey-B/sage/pkg/processor"
	"github.com/Ramsey-B/sage/pkg/redis"
	"github.com/Ramsey-B/sage/pkg/review"
	"github.com/Ramsey-B/sage/pkg/snapshot"
	"github.com/Ramsey-B/sage/pkg/tracing"
)

type Config struct {
	AppName            string `env:"APP_NAME" env-default:"sage"`
	Version            string `env:"APP_VERSION" env-default:"dev"`
	Port               int    `env:"PORT" env-default:"3004"`
	LogLevel           string `env:"LOG_LEVEL" env-default:"info"`
	PrettyLogs         bool   `env:"PRETTY_LOGS" env-default:"false"`
	StartupMaxAttempts int    `env:"STARTUP_MAX_ATTEMPTS" env-default:"5"`

	// PostgreSQL
	DatabaseDriver                string        `env:"DB_DRIVER" env-default:"postgres"`
	DatabaseHost                  string        `env:"DB_HOST" env-default:"localhost"`
	DatabasePort                  string        `env:"DB_PORT" env-default:"5432"`
	DatabaseUserName              string        `env:"DB_USER_NAME" env-default:""`
	DatabasePassword              string        `env:"DB_PASSWORD" env-default:""`
	DatabaseName                  string        `env:"DB_NAME" env-default:"sage"`
	DatabaseSSLMode               string        `env:"DB_SSL_MODE" env-default:"disable"`
	DatabaseMaxOpenConns          int           `env:"DB_MAX_OPEN_CONNS" env-default:"25"`
	DatabaseMaxIdleConns          int           `env:"DB_MAX_IDLE_CONNS" env-default:"10"`
	DatabaseConnMaxLifetime       time.Duration `env:"DB_CONN_MAX_LIFETIME" env-default:"10m"`
	DatabaseMigrationFolderPath   string        `env:"DB_MIGRATION_FOLDER_PATH" env-default:"db/pg"`
	DatabaseMigrationVersion      uint          `env:"DB_MIGRATION_VERSION" env-default:"0"`
	DatabaseMigrationForce        int           `env:"DB_MIGRATION_FORCE" env-default:"0"`
	DatabaseMigrationAutoRollback bool          `env:"DB_MIGRATION_AUTO_ROLLBACK" env-default:"true"`
	DatabaseMigrateOnStart        bool          `env:"DB_MIGRATE_ON_START" env-default:"true"`

	// Redis (locks and snapshot cache)
	RedisHost     string `env:"REDIS_HOST" env-default:"localhost"`
	RedisPort     int    `env:"REDIS_PORT" env-default:"6379"`
	RedisPassword string `env:"REDIS_PASSWORD" env-default:""`
	RedisDB       int    `env:"REDIS_DB" env-default:"0"`

	// Kafka producer (sync re-queue)
	KafkaBrokers      []string      `env:"KAFKA_BROKERS" env-default:"localhost:9092"`
	KafkaSyncTopic    string        `env:"KAFKA_SYNC_TOPIC" env-default:"lead-sync-requests"`
	KafkaBatchSize    int           `env:"KAFKA_BATCH_SIZE" env-default:"100"`
	KafkaBatchTimeout time.Duration `env:"KAFKA_BATCH_TIMEOUT" env-default:"100ms"`
	KafkaRequiredAcks int           `env:"KAFKA_REQUIRED_ACKS" env-default:"1"`
	KafkaCompression  string        `env:"KAFKA_COMPRESSION" env-default:"snappy"`

	// Tracing
	OTLPEndpoint string        `env:"OTEL_EXPORTER_OTLP_ENDPOINT" env-default:""`
	OTLPProtocol string        `env:"OTEL_EXPORTER_OTLP_PROTOCOL" env-default:"grpc"`
	OTLPInsecure bool          `env:"OTEL_EXPORTER_OTLP_INSECURE" env-default:"true"`
	OTLPTimeout  time.Duration `env:"OTEL_EXPORTER_OTLP_TIMEOUT" env-default:"10s"`

	// Matching
	MatchHighThreshold   float64 `env:"MATCH_HIGH_THRESHOLD" env-default:"0.85"`
	MatchMediumThreshold float64 `env:"MATCH_MEDIUM_THRESHOLD" env-default:"0.65"`
	MatchLowThreshold    float64 `env:"MATCH_LOW_THRESHOLD" env-default:"0.40"`
	MatchMaxCandidates   int     `env:"MATCH_MAX_CANDIDATES" env-default:"25"`
	MatchWorkerCount     int     `env:"MATCH_WORKER_COUNT" env-default:"8"`

	// Review
	ReviewSLA               time.Duration `env:"REVIEW_SLA" env-default:"24h"`
	ReviewDefaultAssignee   string        `env:"REVIEW_DEFAULT_ASSIGNEE" env-default:""`
	ReviewAutoApproveFields []string      `env:"REVIEW_AUTO_APPROVE_FIELDS" env-default:"qualification_score,last_meeting_date,meeting_count,relationship_stage"`
	ReviewSweepInterval     time.Duration `env:"REVIEW_SWEEP_INTERVAL" env-default:"5m"`
	ReviewSweepBatchSize    int           `env:"REVIEW_SWEEP_BATCH_SIZE" env-default:"100"`
	ReviewLockTTL           time.Duration `env:"REVIEW_LOCK_TTL" env-default:"60s"`
	SyncRelayBatchSize      int           `env:"SYNC_RELAY_BATCH_SIZE" env-default:"100"`

	// External snapshots
	SnapshotBaseURL  string        `env:"SNAPSHOT_BASE_URL" env-default:""`
	SnapshotTimeout  time.Duration `env:"SNAPSHOT_TIMEOUT" env-default:"5s"`
	SnapshotCacheTTL time.Duration `env:"SNAPSHOT_CACHE_TTL" env-default:"5m"`
	FieldMappingPath string        `env:"FIELD_MAPPING_PATH" env-default:""`
}

// Load reads an optional .env file and then the environment.
func Load() (*Config, error) {
	_ = godotenv.Load()

	var cfg Config
	if err := cleanenv.ReadEnv(&cfg); err != nil {
		return nil, fmt.Errorf("failed to read config: %w", err)
	}
	return &cfg, nil
}

func (c *Config) Database() database.ConnectionConfig {
	return database.ConnectionConfig{
		Driver:          c.DatabaseDriver,
		Host:            c.DatabaseHost,
		Port:            c.DatabasePort,
		User:            c.DatabaseUserName,
		Password:        c.DatabasePassword,
		Name:            c.DatabaseName,
		SSLMode:         c.DatabaseSSLMode,
		MaxOpenConns:    c.DatabaseMaxOpenConns,
		MaxIdleConns:    c.DatabaseMaxIdleConns,
		ConnMaxLifetime: c.DatabaseConnMaxLifetime,
	}
}

func (c *Config) Migration() *database.MigrationConfig {
	return &database.MigrationConfig{
		MigrationFolderPath: c.DatabaseMigrationFolderPath,
		Version:             c.DatabaseMigrationVersion,
		Force:               c.DatabaseMigrationForce,
		AutoRollback:        c.DatabaseMigrationAutoRollback,
	}
}

func (c *Config) Redis() redis.Config {
	return redis.Config{
		Host:     c.RedisHost,
		Port:     c.RedisPort,
		Password: c.RedisPassword,
		DB:       c.RedisDB,
	}
}

func (c *Config) Kafka() kafka.ProducerConfig {
	return kafka.ProducerConfig{
		Brokers:      c.KafkaBrokers,
		Topic:        c.KafkaSyncTopic,
		BatchSize:    c.KafkaBatchSize,
		BatchTimeout: c.KafkaBatchTimeout,
		RequiredAcks: c.KafkaRequiredAcks,
		Compression:  c.KafkaCompression,
	}
}

func (c *Config) Tracing() tracing.Config {
	return tracing.Config{
		ServiceName: c.AppName,
		Endpoint:    c.OTLPEndpoint,
		Protocol:    c.OTLPProtocol,
		Insecure:    c.OTLPInsecure,
		Timeout:     c.OTLPTimeout,
	}
}

// MatchPolicy overlays the configured thresholds on the default weights. The engine
// falls back to the default thresholds unless HIGH > MEDIUM > LOW within (0, 1].
func (c *Config) MatchPolicy() matching.Policy {
	p := matching.DefaultPolicy()
	p.HighThreshold = c.MatchHighThreshold
	p.MediumThreshold = c.MatchMediumThreshold
	p.LowThreshold = c.MatchLowThreshold
	if c.MatchMaxCandidates > 0 {
		p.MaxCandidates = c.MatchMaxCandidates
	}
	return p
}

func (c *Config) ReviewPolicy() review.Policy {
	fields := make([]string, 0, len(c.ReviewAutoApproveFields))
	for _, f := range c.ReviewAutoApproveFields {
		if f = strings.TrimSpace(f); f != "" {
			fields = append(fields, f)
		}
	}
	return review.Policy{
		SLA:               c.ReviewSLA,
		DefaultAssignee:   c.ReviewDefaultAssignee,
		AutoApproveFields: fields,
		SweepBatchSize:    c.ReviewSweepBatchSize,
	}
}

func (c *Config) Sweep() review.SweepConfig {
	return review.SweepConfig{
		Interval: c.ReviewSweepInterval,
		LockTTL:  c.ReviewLockTTL,
	}
}

func (c *Config) Processor() processor.Config {
	return processor.Config{
		Workers:         c.MatchWorkerCount,
		SnapshotTimeout: c.SnapshotTimeout,
	}
}

func (c *Config) Snapshot() snapshot.HTTPConfig {
	cfg := snapshot.DefaultHTTPConfig(c.SnapshotBaseURL)
	if c.SnapshotTimeout > 0 {
		cfg.Timeout = c.SnapshotTimeout
	}
	return cfg
}
