package redis

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/redis/go-redis/v9"
	"github.com/user/meter-logger/internal/domain"
)

const (
	liveStreamPrefix = "readings:live:"
	liveStreamMaxLen = 1000
)

// LivePublisher implements domain.LiveFeed using Redis Streams. Every
// channel gets its own capped stream so dashboards can tail recent readings
// without touching the sink.
type LivePublisher struct {
	client *redis.Client
	logger *slog.Logger
}

// NewLivePublisher creates a new Redis-backed live feed.
func NewLivePublisher(client *redis.Client, logger *slog.Logger) *LivePublisher {
	return &LivePublisher{
		client: client,
		logger: logger.With("component", "redis_live_feed"),
	}
}

// PublishReadings appends the readings to the channel's capped stream in one
// pipeline round trip.
func (p *LivePublisher) PublishReadings(ctx context.Context, channel string, readings []domain.Reading) error {
	if len(readings) == 0 {
		return nil
	}

	stream := liveStreamPrefix + channel
	pipe := p.client.Pipeline()
	for _, reading := range readings {
		pipe.XAdd(ctx, &redis.XAddArgs{
			Stream: stream,
			MaxLen: liveStreamMaxLen,
			Approx: true,
			Values: map[string]interface{}{
				"value":   reading.Value,
				"time_ms": reading.TimeMs(),
			},
		})
	}

	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("failed to publish readings to stream %s: %w", stream, err)
	}
	return nil
}

// Ping reports whether the Redis backend is reachable.
func (p *LivePublisher) Ping(ctx context.Context) error {
	return p.client.Ping(ctx).Err()
}
