package config

import (
	"time"

	"github.com/caarlos0/env/v10"
	"github.com/joho/godotenv"
)

// Config holds all application configuration.
type Config struct {
	LogLevel         string  `env:"LOG_LEVEL" envDefault:"info"`
	IngestServerAddr string  `env:"INGEST_SERVER_ADDR" envDefault:":8080"`
	AdminServerAddr  string  `env:"ADMIN_SERVER_ADDR" envDefault:":9091"`
	MaxBodySize      int64   `env:"MAX_BODY_SIZE_BYTES" envDefault:"1048576"` // 1MB
	IngestRateLimit  float64 `env:"INGEST_RATE_LIMIT" envDefault:"1000"`      // readings/s
	IngestRateBurst  int     `env:"INGEST_RATE_BURST" envDefault:"100"`

	PostgresURL string `env:"POSTGRES_URL,required"`
	RedisURL    string `env:"REDIS_URL"` // empty disables the live feed

	BufferTargetCapacity int           `env:"BUFFER_TARGET_CAPACITY" envDefault:"4096"`
	MinReadingInterval   time.Duration `env:"MIN_READING_INTERVAL" envDefault:"0s"`
	TransferInterval     time.Duration `env:"TRANSFER_INTERVAL" envDefault:"1s"`
	SinkRetryCount       int           `env:"SINK_RETRY_COUNT" envDefault:"3"`
	SinkRetryBackoff     time.Duration `env:"SINK_RETRY_BACKOFF" envDefault:"1s"`

	WALPath        string `env:"WAL_PATH" envDefault:"./wal"`
	WALSegmentSize int64  `env:"WAL_SEGMENT_SIZE_BYTES" envDefault:"104857600"`  // 100MB
	WALMaxDiskSize int64  `env:"WAL_MAX_DISK_SIZE_BYTES" envDefault:"1073741824"` // 1GB
	SpillThreshold int    `env:"SPILL_THRESHOLD" envDefault:"16384"`
}

// Load reads configuration from environment variables.
func Load() (*Config, error) {
	// Attempt to load .env file for local development.
	_ = godotenv.Load()

	cfg := &Config{}
	if err := env.Parse(cfg); err != nil {
		return nil, err
	}

	return cfg, nil
}
