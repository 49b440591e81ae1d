package usecase

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/user/meter-logger/internal/adapter/metrics"
	"github.com/user/meter-logger/internal/domain"
)

// ErrMissingChannel is returned when a reading arrives without a channel name.
var ErrMissingChannel = errors.New("reading has no channel name")

// IngestReadingUseCase handles the business logic for accepting a reading
// into its channel's source buffer.
type IngestReadingUseCase struct {
	channels *ChannelSet
	metrics  *metrics.LoggerMetrics
	logger   *slog.Logger
}

// NewIngestReadingUseCase creates a new IngestReadingUseCase. metrics may be
// nil in tests.
func NewIngestReadingUseCase(channels *ChannelSet, m *metrics.LoggerMetrics, logger *slog.Logger) *IngestReadingUseCase {
	return &IngestReadingUseCase{
		channels: channels,
		metrics:  m,
		logger:   logger,
	}
}

// Ingest validates and enriches a reading and pushes it into the channel's
// source buffer. A zero timestamp is replaced with the server receive time.
func (uc *IngestReadingUseCase) Ingest(ctx context.Context, channel string, value float64, at time.Time) error {
	if channel == "" {
		return ErrMissingChannel
	}
	if at.IsZero() {
		at = time.Now().UTC()
	}

	p := uc.channels.Get(channel)
	p.Source.Push(domain.Reading{
		Value:   value,
		Time:    at,
		Channel: p.Channel,
	})

	if uc.metrics != nil {
		uc.metrics.ReadingsReceived.WithLabelValues(channel).Inc()
	}
	return nil
}
